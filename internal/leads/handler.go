package leads

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/leadflow/internal/tenancy"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Handler handles HTTP requests for leads
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new leads handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// GetLead handles GET /tenants/{tenantID}/leads/{leadID}
func (h *Handler) GetLead(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return
	}
	leadID := chi.URLParam(r, "leadID")

	lead, err := h.repo.Get(r.Context(), tenantID, leadID)
	if err != nil {
		if errors.Is(err, ErrLeadNotFound) {
			http.Error(w, "lead not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to load lead", "error", err, "tenant_id", tenantID, "lead_id", leadID)
		http.Error(w, "failed to load lead", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(lead)
}
