package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wolfman30/leadflow/internal/tenancy"
)

func TestRateLimiterRefills(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("expected burst of 2 to pass")
	}
	if rl.Allow("a") {
		t.Fatalf("expected third request to be limited")
	}
	if !rl.Allow("b") {
		t.Fatalf("expected separate key to have its own bucket")
	}
	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Fatalf("expected one token after a second")
	}
}

func TestRateLimiterEvict(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }
	rl.Allow("old")
	now = now.Add(11 * time.Minute)
	rl.Allow("fresh")

	if removed := rl.Evict(); removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Fatalf("fresh bucket should survive eviction")
	}
}

func TestRateLimitMiddlewareByTenant(t *testing.T) {
	rl := NewRateLimiter(0.5, 1)
	handler := RateLimit(rl, KeyByTenant)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func(tenantID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/tenants/"+tenantID+"/leads/l1", nil)
		req = req.WithContext(tenancy.WithTenantID(context.Background(), tenantID))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := request("t1"); rec.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", rec.Code)
	}
	rec := request("t1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	if rec := request("t2"); rec.Code != http.StatusOK {
		t.Fatalf("expected other tenant to pass, got %d", rec.Code)
	}
}

func TestKeyByIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	if got := KeyByIP(req); got != "ip:10.1.2.3" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := KeyByTenant(req); got != "ip:10.1.2.3" {
		t.Fatalf("expected ip fallback without tenant, got %q", got)
	}
}
