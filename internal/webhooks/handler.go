package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/leadflow/internal/conversation"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/pkg/logging"
)

const (
	maxBodyBytes    = 1 << 20
	signatureHeader = "X-Hub-Signature-256"
)

// InboundHandler runs the conversation pipeline for one message.
type InboundHandler interface {
	HandleInbound(ctx context.Context, tenantID, leadID, text string) (conversation.Result, error)
}

// Config wires a Handler. A non-empty Secret enables HMAC-SHA256 verification
// of the X-Hub-Signature-256 header.
type Config struct {
	Leads      leads.Repository
	Inbound    InboundHandler
	Normalizer *Normalizer
	Processed  ProcessedTracker
	Secret     string
	Metrics    *metrics.LeadMetrics
	Logger     *logging.Logger
}

// Handler serves POST /webhooks/{provider}/{tenantID}.
type Handler struct {
	leads      leads.Repository
	inbound    InboundHandler
	normalizer *Normalizer
	processed  ProcessedTracker
	secret     string
	metrics    *metrics.LeadMetrics
	logger     *logging.Logger
}

func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = NewNormalizer()
	}
	return &Handler{
		leads:      cfg.Leads,
		inbound:    cfg.Inbound,
		normalizer: cfg.Normalizer,
		processed:  cfg.Processed,
		secret:     strings.TrimSpace(cfg.Secret),
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.Component("webhooks"),
	}
}

type replyPayload struct {
	LeadID            string               `json:"lead_id"`
	Handled           bool                 `json:"handled"`
	Outcome           conversation.Outcome `json:"outcome"`
	FollowUpScheduled bool                 `json:"follow_up_scheduled"`
}

type response struct {
	Received bool          `json:"received"`
	Reply    *replyPayload `json:"reply"`
	Debug    string        `json:"debug,omitempty"`
	Strategy string        `json:"strategy,omitempty"`
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	tenantID := chi.URLParam(r, "tenantID")
	defer func() {
		h.metrics.ObserveWebhookLatency(provider, time.Since(start).Seconds())
	}()
	if provider == "" || tenantID == "" {
		http.Error(w, "provider and tenant are required", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if h.secret != "" && !verifySignature(h.secret, body, r.Header.Get(signatureHeader)) {
		h.logger.Warn("invalid webhook signature", "provider", provider, "tenant_id", tenantID)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	log := h.logger.With("provider", provider, "tenant_id", tenantID)
	in, strategy, err := h.normalizer.Normalize(body)
	h.metrics.ObserveWebhook(provider, strategy)
	if err != nil {
		log.Info("webhook payload not recognised", "reason", err.Error(), "bytes", len(body))
		h.writeJSON(w, response{Received: true, Debug: err.Error()})
		return
	}

	if in.MessageID != "" && h.processed != nil {
		seen, err := h.processed.AlreadyProcessed(r.Context(), provider, in.MessageID)
		if err != nil {
			log.Warn("processed lookup failed", "error", err)
		} else if seen {
			h.writeJSON(w, response{Received: true, Strategy: strategy, Debug: "duplicate message " + in.MessageID})
			return
		}
	}

	lead, err := h.leads.FindOrCreateByPhone(r.Context(), tenantID, in.Phone, in.Name)
	if err != nil {
		log.Error("failed to resolve lead", "error", err)
		http.Error(w, "failed to resolve lead", http.StatusInternalServerError)
		return
	}
	result, err := h.inbound.HandleInbound(r.Context(), tenantID, lead.ID, in.Text)
	if err != nil {
		if errors.Is(err, leads.ErrLeadNotFound) {
			h.writeJSON(w, response{Received: true, Strategy: strategy, Debug: err.Error()})
			return
		}
		log.Error("failed to handle inbound webhook", "error", err, "lead_id", lead.ID)
		http.Error(w, "failed to handle message", http.StatusInternalServerError)
		return
	}

	if in.MessageID != "" && h.processed != nil {
		if _, err := h.processed.MarkProcessed(r.Context(), provider, in.MessageID); err != nil {
			log.Warn("failed to mark webhook processed", "error", err, "message_id", in.MessageID)
		}
	}
	log.Info("inbound webhook handled", "lead_id", lead.ID, "strategy", strategy, "outcome", result.Outcome)
	h.writeJSON(w, response{
		Received: true,
		Strategy: strategy,
		Reply: &replyPayload{
			LeadID:            lead.ID,
			Handled:           result.Handled,
			Outcome:           result.Outcome,
			FollowUpScheduled: result.FollowUpScheduled,
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, payload response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode webhook response", "error", err)
	}
}

func verifySignature(secret string, payload []byte, header string) bool {
	const prefix = "sha256="
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), provided)
}
