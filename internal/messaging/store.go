package messaging

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultListLimit = 100

// PgxPool is the subset of pgxpool.Pool used by Store.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists lead messages in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

var _ Recorder = (*Store)(nil)

func (s *Store) InsertMessage(ctx context.Context, rec MessageRecord) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Kind == "" {
		rec.Kind = KindText
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO lead_messages (
			id, tenant_id, lead_id, direction, source, kind,
			body, media_url, media_type, status, error, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8, ''),NULLIF($9, ''),$10,NULLIF($11, ''),$12)
	`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.TenantID, rec.LeadID, string(rec.Direction), string(rec.Source), string(rec.Kind),
		rec.Body, rec.MediaURL, rec.MediaType, string(rec.Status), rec.Error, rec.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("messaging: insert message: %w", err)
	}
	return rec.ID, nil
}

// UpdateStatus records the delivery outcome of a message.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string) error {
	query := `
		UPDATE lead_messages
		SET status = $2,
			error = NULLIF($3, ''),
			sent_at = CASE WHEN $2 = 'sent' THEN now() ELSE sent_at END
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, id, string(status), errMsg); err != nil {
		return fmt.Errorf("messaging: update message status: %w", err)
	}
	return nil
}

// ListByLead returns the most recent messages of a lead, oldest first.
func (s *Store) ListByLead(ctx context.Context, tenantID, leadID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
		SELECT id, tenant_id, lead_id, direction, source, kind, body,
			COALESCE(media_url, ''), COALESCE(media_type, ''), status, COALESCE(error, ''),
			created_at, sent_at
		FROM (
			SELECT * FROM lead_messages
			WHERE tenant_id = $1 AND lead_id = $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, tenantID, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("messaging: list messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var (
			rec                           MessageRecord
			direction, source, kind, stat string
		)
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.LeadID, &direction, &source, &kind, &rec.Body,
			&rec.MediaURL, &rec.MediaType, &stat, &rec.Error, &rec.CreatedAt, &rec.SentAt); err != nil {
			return nil, fmt.Errorf("messaging: scan message: %w", err)
		}
		rec.Direction = Direction(direction)
		rec.Source = Source(source)
		rec.Kind = Kind(kind)
		rec.Status = Status(stat)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MemoryStore is a Recorder kept in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []MessageRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

var _ Recorder = (*MemoryStore)(nil)

func (m *MemoryStore) InsertMessage(ctx context.Context, rec MessageRecord) (uuid.UUID, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Kind == "" {
		rec.Kind = KindText
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return rec.ID, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID != id {
			continue
		}
		m.records[i].Status = status
		m.records[i].Error = errMsg
		if status == StatusSent {
			now := time.Now().UTC()
			m.records[i].SentAt = &now
		}
		return nil
	}
	return fmt.Errorf("messaging: message %s not found", id)
}

func (m *MemoryStore) ListByLead(ctx context.Context, tenantID, leadID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	m.mu.RLock()
	var out []MessageRecord
	for _, rec := range m.records {
		if rec.TenantID == tenantID && rec.LeadID == leadID {
			out = append(out, rec)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// All returns every record in insertion order.
func (m *MemoryStore) All() []MessageRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MessageRecord(nil), m.records...)
}
