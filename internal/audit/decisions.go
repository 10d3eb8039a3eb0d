// Package audit records why the automation acted on a lead.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DecisionType classifies a recorded decision.
type DecisionType string

const (
	DecisionClassification    DecisionType = "conversation.classification"
	DecisionNightReply        DecisionType = "conversation.night_reply"
	DecisionAutomationOff     DecisionType = "conversation.automation_off"
	DecisionHandoffTakeOver   DecisionType = "handoff.take_over"
	DecisionHandoffRelease    DecisionType = "handoff.release"
	DecisionFollowUpScheduled DecisionType = "followup.scheduled"
	DecisionFollowUpDeferred  DecisionType = "followup.deferred"
	DecisionFollowUpAborted   DecisionType = "followup.aborted"
	DecisionFollowUpFired     DecisionType = "followup.fired"
)

const defaultListLimit = 50

// Decision is an immutable record of an automated decision about a lead.
type Decision struct {
	ID        string          `json:"id"`
	Type      DecisionType    `json:"type"`
	TenantID  string          `json:"tenant_id"`
	LeadID    string          `json:"lead_id"`
	Rule      string          `json:"rule,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	PatchKeys []string        `json:"patch_keys,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Recorder stores decisions.
type Recorder interface {
	Record(ctx context.Context, d Decision) error
	List(ctx context.Context, tenantID, leadID string, limit int) ([]Decision, error)
}

// DecisionLog writes decisions to the lead_decisions table.
type DecisionLog struct {
	db *sql.DB
}

// NewDecisionLog creates a new decision log.
func NewDecisionLog(db *sql.DB) *DecisionLog {
	return &DecisionLog{db: db}
}

var _ Recorder = (*DecisionLog)(nil)

func prepare(d *Decision) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	keys := make([]string, len(d.PatchKeys))
	copy(keys, d.PatchKeys)
	sort.Strings(keys)
	d.PatchKeys = keys
}

// Record inserts a decision.
func (l *DecisionLog) Record(ctx context.Context, d Decision) error {
	prepare(&d)
	query := `
		INSERT INTO lead_decisions (
			id, decision_type, tenant_id, lead_id, rule, reason, patch_keys, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := l.db.ExecContext(ctx, query,
		d.ID,
		string(d.Type),
		d.TenantID,
		d.LeadID,
		nullString(d.Rule),
		nullString(d.Reason),
		pq.Array(d.PatchKeys),
		nullJSON(d.Details),
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record decision: %w", err)
	}
	return nil
}

// List returns the most recent decisions for a lead, newest first.
func (l *DecisionLog) List(ctx context.Context, tenantID, leadID string, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
		SELECT id, decision_type, tenant_id, lead_id, rule, reason, patch_keys, details, created_at
		FROM lead_decisions
		WHERE tenant_id = $1 AND lead_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := l.db.QueryContext(ctx, query, tenantID, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var (
			d            Decision
			decisionType string
			rule, reason sql.NullString
			details      []byte
		)
		if err := rows.Scan(&d.ID, &decisionType, &d.TenantID, &d.LeadID, &rule, &reason,
			pq.Array(&d.PatchKeys), &details, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan decision: %w", err)
		}
		d.Type = DecisionType(decisionType)
		d.Rule = rule.String
		d.Reason = reason.String
		if len(details) > 0 {
			d.Details = json.RawMessage(details)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// MemoryLog keeps decisions in process memory.
type MemoryLog struct {
	mu        sync.RWMutex
	decisions []Decision
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

var _ Recorder = (*MemoryLog)(nil)

func (m *MemoryLog) Record(ctx context.Context, d Decision) error {
	prepare(&d)
	m.mu.Lock()
	m.decisions = append(m.decisions, d)
	m.mu.Unlock()
	return nil
}

func (m *MemoryLog) List(ctx context.Context, tenantID, leadID string, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Decision
	for i := len(m.decisions) - 1; i >= 0 && len(out) < limit; i-- {
		d := m.decisions[i]
		if d.TenantID == tenantID && d.LeadID == leadID {
			out = append(out, d)
		}
	}
	return out, nil
}

// Types returns the recorded decision types in order.
func (m *MemoryLog) Types() []DecisionType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DecisionType, 0, len(m.decisions))
	for _, d := range m.decisions {
		out = append(out, d.Type)
	}
	return out
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
