package leads

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/leadflow/internal/tenancy"
	"github.com/wolfman30/leadflow/pkg/logging"
)

func newLeadRequest(tenantID, leadID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/tenants/"+tenantID+"/leads/"+leadID, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("leadID", leadID)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if tenantID != "" {
		ctx = tenancy.WithTenantID(ctx, tenantID)
	}
	return req.WithContext(ctx)
}

func TestGetLead_Success(t *testing.T) {
	repo := NewInMemoryRepository()
	lead := repo.Put(&Lead{TenantID: "t1", Phone: "7701", Temperature: TemperatureHot})
	handler := NewHandler(repo, logging.Default())

	w := httptest.NewRecorder()
	handler.GetLead(w, newLeadRequest("t1", lead.ID))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got Lead
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Temperature != TemperatureHot {
		t.Fatalf("expected hot lead, got %s", got.Temperature)
	}
}

func TestGetLead_NotFound(t *testing.T) {
	handler := NewHandler(NewInMemoryRepository(), nil)

	w := httptest.NewRecorder()
	handler.GetLead(w, newLeadRequest("t1", "missing"))

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetLead_MissingTenant(t *testing.T) {
	handler := NewHandler(NewInMemoryRepository(), nil)

	w := httptest.NewRecorder()
	handler.GetLead(w, newLeadRequest("", "lead"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
