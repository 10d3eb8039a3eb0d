package conversation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/leadflow/internal/audit"
	"github.com/wolfman30/leadflow/internal/gateway"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/messaging"
	"github.com/wolfman30/leadflow/internal/tenancy"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Handler exposes conversation operations over HTTP.
type Handler struct {
	orchestrator *Orchestrator
	history      messaging.Recorder
	decisions    audit.Recorder
	logger       *logging.Logger
}

func NewHandler(o *Orchestrator, history messaging.Recorder, decisions audit.Recorder, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{orchestrator: o, history: history, decisions: decisions, logger: logger}
}

type textRequest struct {
	Text string `json:"text"`
}

type messageRequest struct {
	Text      string `json:"text"`
	MediaURL  string `json:"media_url"`
	MediaType string `json:"media_type"`
}

type automationRequest struct {
	Enabled *bool `json:"enabled"`
}

// FakeIncoming handles POST /tenants/{tenantID}/leads/{leadID}/fake-incoming
func (h *Handler) FakeIncoming(w http.ResponseWriter, r *http.Request) {
	tenantID, leadID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	result, err := h.orchestrator.HandleInbound(r.Context(), tenantID, leadID, req.Text)
	if err != nil {
		h.fail(w, err, "failed to handle inbound message", tenantID, leadID)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ListMessages handles GET /tenants/{tenantID}/leads/{leadID}/messages
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	tenantID, leadID, ok := h.scope(w, r)
	if !ok {
		return
	}
	records, err := h.history.ListByLead(r.Context(), tenantID, leadID, queryLimit(r))
	if err != nil {
		h.fail(w, err, "failed to list messages", tenantID, leadID)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"messages": records})
}

// SendMessage handles POST /tenants/{tenantID}/leads/{leadID}/messages
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	tenantID, leadID, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	var media *gateway.MediaMessage
	if mediaURL := strings.TrimSpace(req.MediaURL); mediaURL != "" {
		media = &gateway.MediaMessage{URL: mediaURL, Kind: gateway.MediaKind(strings.TrimSpace(req.MediaType))}
	}
	if strings.TrimSpace(req.Text) == "" && media == nil {
		http.Error(w, "text or media_url is required", http.StatusBadRequest)
		return
	}
	res, err := h.orchestrator.SendOperatorMessage(r.Context(), tenantID, leadID, req.Text, media)
	if err != nil {
		h.fail(w, err, "failed to send message", tenantID, leadID)
		return
	}
	payload := map[string]any{"message_id": res.MessageID, "status": res.Status}
	if res.Err != nil {
		payload["error"] = res.Err.Error()
	}
	h.writeJSON(w, http.StatusOK, payload)
}

// TakeOver handles POST /tenants/{tenantID}/leads/{leadID}/handoff/take-over
func (h *Handler) TakeOver(w http.ResponseWriter, r *http.Request) {
	tenantID, leadID, ok := h.scope(w, r)
	if !ok {
		return
	}
	lead, err := h.orchestrator.TakeOver(r.Context(), tenantID, leadID)
	if err != nil {
		h.fail(w, err, "failed to take over lead", tenantID, leadID)
		return
	}
	h.writeJSON(w, http.StatusOK, lead)
}

// Release handles POST /tenants/{tenantID}/leads/{leadID}/handoff/release
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	tenantID, leadID, ok := h.scope(w, r)
	if !ok {
		return
	}
	lead, err := h.orchestrator.Release(r.Context(), tenantID, leadID)
	if err != nil {
		h.fail(w, err, "failed to release lead", tenantID, leadID)
		return
	}
	h.writeJSON(w, http.StatusOK, lead)
}

// GetAutomation handles GET /admin/automation
func (h *Handler) GetAutomation(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]bool{"enabled": h.orchestrator.AutomationEnabled()})
}

// PutAutomation handles PUT /admin/automation
func (h *Handler) PutAutomation(w http.ResponseWriter, r *http.Request) {
	var req automationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	h.orchestrator.SetAutomationEnabled(*req.Enabled)
	h.writeJSON(w, http.StatusOK, map[string]bool{"enabled": h.orchestrator.AutomationEnabled()})
}

// ListDecisions handles GET /admin/tenants/{tenantID}/leads/{leadID}/decisions
func (h *Handler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	leadID := chi.URLParam(r, "leadID")
	if tenantID == "" || leadID == "" {
		http.Error(w, "tenant and lead are required", http.StatusBadRequest)
		return
	}
	decisions, err := h.decisions.List(r.Context(), tenantID, leadID, queryLimit(r))
	if err != nil {
		h.fail(w, err, "failed to list decisions", tenantID, leadID)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"decisions": decisions})
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant context", http.StatusBadRequest)
		return "", "", false
	}
	leadID := chi.URLParam(r, "leadID")
	if leadID == "" {
		http.Error(w, "lead id is required", http.StatusBadRequest)
		return "", "", false
	}
	return tenantID, leadID, true
}

func (h *Handler) fail(w http.ResponseWriter, err error, msg, tenantID, leadID string) {
	switch {
	case errors.Is(err, leads.ErrLeadNotFound):
		http.Error(w, "lead not found", http.StatusNotFound)
	case errors.Is(err, messaging.ErrEmptyMessage),
		errors.Is(err, gateway.ErrNonPublicMedia),
		errors.Is(err, gateway.ErrUnsupportedMedia):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error(msg, "error", err, "tenant_id", tenantID, "lead_id", leadID)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return 0
	}
	return limit
}
