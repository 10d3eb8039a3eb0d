package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/leadflow/internal/gateway"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// ErrEmptyMessage is returned when an outbound message has neither body nor media.
var ErrEmptyMessage = errors.New("messaging: body or media required")

// Gateway delivers messages to the external provider.
type Gateway interface {
	SendText(ctx context.Context, cred gateway.Credential, phone, body string) error
	SendMedia(ctx context.Context, cred gateway.Credential, phone string, media gateway.MediaMessage) error
}

// OutboundMessage is a message to persist and deliver to a lead.
type OutboundMessage struct {
	TenantID   string
	LeadID     string
	Phone      string
	Source     Source
	Body       string
	Media      *gateway.MediaMessage
	Credential gateway.Credential
}

// DispatchResult describes what happened to an outbound message.
type DispatchResult struct {
	MessageID uuid.UUID
	Status    Status
	// Err holds the delivery failure, if any. It never reflects persistence errors.
	Err error
}

// Delivered reports whether the gateway accepted the message.
func (r DispatchResult) Delivered() bool {
	return r.Status == StatusSent
}

// Dispatcher persists outbound messages before attempting delivery.
type Dispatcher struct {
	recorder Recorder
	gateway  Gateway
	logger   *logging.Logger
	metrics  *metrics.LeadMetrics
	now      func() time.Time
}

// NewDispatcher wires a recorder and gateway.
func NewDispatcher(recorder Recorder, gw Gateway, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		recorder: recorder,
		gateway:  gw,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches delivery counters.
func (d *Dispatcher) WithMetrics(m *metrics.LeadMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// Recorder exposes the underlying message recorder.
func (d *Dispatcher) Recorder() Recorder {
	return d.recorder
}

// RecordInbound stores a message received from a lead.
func (d *Dispatcher) RecordInbound(ctx context.Context, tenantID, leadID, body string) (uuid.UUID, error) {
	id, err := d.recorder.InsertMessage(ctx, MessageRecord{
		TenantID:  tenantID,
		LeadID:    leadID,
		Direction: DirectionInbound,
		Source:    SourceHuman,
		Kind:      KindText,
		Body:      body,
		Status:    StatusReceived,
		CreatedAt: d.now(),
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("messaging: record inbound: %w", err)
	}
	return id, nil
}

// Send persists msg as pending, attempts one delivery and records the outcome.
// The returned error is non-nil only when the message could not be recorded.
func (d *Dispatcher) Send(ctx context.Context, msg OutboundMessage) (DispatchResult, error) {
	if strings.TrimSpace(msg.Body) == "" && msg.Media == nil {
		return DispatchResult{}, ErrEmptyMessage
	}
	rec := MessageRecord{
		TenantID:  msg.TenantID,
		LeadID:    msg.LeadID,
		Direction: DirectionOutbound,
		Source:    msg.Source,
		Kind:      KindText,
		Body:      msg.Body,
		Status:    StatusPending,
		CreatedAt: d.now(),
	}
	if msg.Media != nil {
		rec.Kind = KindMedia
		rec.MediaURL = msg.Media.URL
		rec.MediaType = string(msg.Media.Kind)
		if rec.Body == "" {
			rec.Body = msg.Media.Caption
		}
	}
	id, err := d.recorder.InsertMessage(ctx, rec)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("messaging: persist outbound: %w", err)
	}

	var sendErr error
	if d.gateway == nil {
		sendErr = &gateway.DeliveryError{Op: "dispatch", Err: gateway.ErrConfigMissing}
	} else if msg.Media != nil {
		sendErr = d.gateway.SendMedia(ctx, msg.Credential, msg.Phone, *msg.Media)
	} else {
		sendErr = d.gateway.SendText(ctx, msg.Credential, msg.Phone, msg.Body)
	}

	result := DispatchResult{MessageID: id, Status: StatusSent, Err: sendErr}
	errMsg := ""
	switch {
	case sendErr == nil:
	case gateway.IsConfigMissing(sendErr):
		result.Status = StatusSkipped
		errMsg = sendErr.Error()
		d.logger.Warn("outbound delivery skipped, gateway not configured",
			"tenant_id", msg.TenantID, "lead_id", msg.LeadID, "message_id", id)
	default:
		result.Status = StatusFailed
		errMsg = sendErr.Error()
		d.logger.Warn("outbound delivery failed",
			"tenant_id", msg.TenantID, "lead_id", msg.LeadID, "message_id", id, "error", sendErr)
	}
	if err := d.recorder.UpdateStatus(ctx, id, result.Status, errMsg); err != nil {
		d.logger.Warn("failed to update message status", "error", err, "message_id", id, "status", result.Status)
	}
	d.metrics.ObserveOutbound(string(msg.Source), string(result.Status))
	return result, nil
}
