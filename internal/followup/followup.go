// Package followup owns the per-lead deferred nudge timers.
package followup

import (
	"context"
	"time"

	"github.com/wolfman30/leadflow/internal/messaging"
)

// FollowUp is a nudge queued for a lead that has gone silent.
type FollowUp struct {
	TenantID string    `json:"tenant_id"`
	LeadID   string    `json:"lead_id"`
	Text     string    `json:"text"`
	FireAt   time.Time `json:"fire_at"`
}

// Persister stores pending follow-ups so they survive a restart.
type Persister interface {
	Save(ctx context.Context, f FollowUp) error
	Remove(ctx context.Context, leadID string) error
	LoadAll(ctx context.Context) ([]FollowUp, error)
}

// Sender persists and delivers an outbound message.
type Sender interface {
	Send(ctx context.Context, msg messaging.OutboundMessage) (messaging.DispatchResult, error)
}

// Outcome is the terminal result of one timer firing.
type Outcome string

const (
	OutcomeSent     Outcome = "sent"
	OutcomeFailed   Outcome = "failed"
	OutcomeAborted  Outcome = "aborted"
	OutcomeDeferred Outcome = "deferred"
	OutcomeError    Outcome = "error"
)
