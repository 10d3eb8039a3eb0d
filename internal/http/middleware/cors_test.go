package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCORS(t *testing.T) {
	console := CORSPolicy{
		Origins: []string{"https://console.example"},
		Methods: []string{"get", "post", "put"},
		Headers: []string{"Authorization", "Content-Type", "X-Tenant-Id"},
	}
	cases := []struct {
		name        string
		policy      CORSPolicy
		method      string
		origin      string
		preflight   string
		wantOrigin  string
		wantStatus  int
		wantReached bool
	}{
		{name: "listed origin", policy: console, method: http.MethodGet, origin: "https://console.example", wantOrigin: "https://console.example", wantStatus: http.StatusOK, wantReached: true},
		{name: "unknown origin", policy: console, method: http.MethodGet, origin: "https://evil.example", wantStatus: http.StatusOK, wantReached: true},
		{name: "no origin header", policy: console, method: http.MethodGet, wantStatus: http.StatusOK, wantReached: true},
		{name: "wildcard echoes", policy: CORSPolicy{Origins: []string{" * "}}, method: http.MethodGet, origin: "https://any.example", wantOrigin: "https://any.example", wantStatus: http.StatusOK, wantReached: true},
		{name: "preflight short circuits", policy: console, method: http.MethodOptions, origin: "https://console.example", preflight: http.MethodPut, wantOrigin: "https://console.example", wantStatus: http.StatusNoContent},
		{name: "preflight for unlisted method", policy: console, method: http.MethodOptions, origin: "https://console.example", preflight: http.MethodDelete, wantStatus: http.StatusForbidden},
		{name: "preflight from unknown origin", policy: console, method: http.MethodOptions, origin: "https://evil.example", preflight: http.MethodGet, wantStatus: http.StatusForbidden},
		{name: "options without preflight header passes", policy: console, method: http.MethodOptions, origin: "https://console.example", wantOrigin: "https://console.example", wantStatus: http.StatusOK, wantReached: true},
		{name: "default methods exclude put", policy: CORSPolicy{Origins: []string{"*"}}, method: http.MethodOptions, origin: "https://any.example", preflight: http.MethodPut, wantStatus: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reached := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				reached = true
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(tc.method, "/tenants/t1/leads/l1", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.preflight != "" {
				req.Header.Set("Access-Control-Request-Method", tc.preflight)
			}
			rec := httptest.NewRecorder()
			CORS(tc.policy)(next).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if reached != tc.wantReached {
				t.Fatalf("handler reached = %v, want %v", reached, tc.wantReached)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Fatalf("allow origin = %q, want %q", got, tc.wantOrigin)
			}
		})
	}
}

func TestCORSPreflightAdvertisesPolicy(t *testing.T) {
	policy := CORSPolicy{
		Origins: []string{"https://console.example"},
		Methods: []string{http.MethodPut, http.MethodGet},
		Headers: []string{"x-tenant-id", "Authorization"},
		MaxAge:  time.Minute,
	}
	req := httptest.NewRequest(http.MethodOptions, "/admin/automation", nil)
	req.Header.Set("Origin", "https://console.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	CORS(policy)(http.NotFoundHandler()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, OPTIONS, PUT" {
		t.Fatalf("allow methods = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Authorization, X-Tenant-Id" {
		t.Fatalf("allow headers = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "60" {
		t.Fatalf("max age = %q", got)
	}
	if !strings.Contains(rec.Header().Get("Vary"), "Origin") {
		t.Fatalf("expected Vary: Origin")
	}
}

func TestCORSPolicyEnabled(t *testing.T) {
	if (CORSPolicy{}).Enabled() {
		t.Fatalf("empty policy should be disabled")
	}
	if (CORSPolicy{Origins: []string{" "}}).Enabled() {
		t.Fatalf("blank origins should be disabled")
	}
	if !(CORSPolicy{Origins: []string{"https://console.example"}}).Enabled() {
		t.Fatalf("listed origin should enable the policy")
	}
}
