// Package messaging records lead conversations and dispatches outbound messages.
package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Direction of a message relative to the tenant.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Source identifies who authored a message.
type Source string

const (
	SourceHuman  Source = "human"
	SourceAI     Source = "ai"
	SourceSystem Source = "system"
)

// Kind is the payload type.
type Kind string

const (
	KindText  Kind = "text"
	KindMedia Kind = "media"
)

// Status tracks delivery of a message.
type Status string

const (
	StatusReceived Status = "received"
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// MessageRecord is one persisted conversation message.
type MessageRecord struct {
	ID        uuid.UUID  `json:"id"`
	TenantID  string     `json:"tenant_id"`
	LeadID    string     `json:"lead_id"`
	Direction Direction  `json:"direction"`
	Source    Source     `json:"source"`
	Kind      Kind       `json:"kind"`
	Body      string     `json:"body"`
	MediaURL  string     `json:"media_url,omitempty"`
	MediaType string     `json:"media_type,omitempty"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
}

// Recorder persists message records.
type Recorder interface {
	InsertMessage(ctx context.Context, rec MessageRecord) (uuid.UUID, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string) error
	ListByLead(ctx context.Context, tenantID, leadID string, limit int) ([]MessageRecord, error)
}
