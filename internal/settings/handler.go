package settings

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/leadflow/pkg/logging"
)

// Handler exposes tenant settings to admins.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates a settings handler.
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// Get handles GET /admin/tenants/{tenantID}/settings.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	cfg, err := h.store.Get(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to load settings", "error", err, "tenant_id", tenantID)
		http.Error(w, "failed to load settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Put handles PUT /admin/tenants/{tenantID}/settings.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	var req MessagingSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.TenantID = tenantID
	if err := h.store.Put(r.Context(), &req); err != nil {
		if errors.Is(err, ErrInvalidSettings) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to save settings", "error", err, "tenant_id", tenantID)
		http.Error(w, "failed to save settings", http.StatusInternalServerError)
		return
	}
	h.logger.Info("tenant settings updated", "tenant_id", tenantID)
	writeJSON(w, http.StatusOK, req)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
