package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ProcessedTracker remembers provider message ids that were already handled.
type ProcessedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore keeps processed ids in the processed_webhooks table.
type ProcessedStore struct {
	pool rowQuerier
}

func NewProcessedStore(pool rowQuerier) *ProcessedStore {
	if pool == nil {
		panic("webhooks: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

var _ ProcessedTracker = (*ProcessedStore)(nil)

func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	var exists int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM processed_webhooks WHERE provider = $1 AND event_id = $2`, provider, eventID).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("webhooks: check processed: %w", err)
	}
	return true, nil
}

// MarkProcessed returns false if the id was already recorded.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO processed_webhooks (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("webhooks: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// MemoryProcessed is a ProcessedTracker for single-process deployments and tests.
type MemoryProcessed struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryProcessed() *MemoryProcessed {
	return &MemoryProcessed{seen: make(map[string]struct{})}
}

func (m *MemoryProcessed) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[provider+"/"+eventID]
	return ok, nil
}

func (m *MemoryProcessed) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := provider + "/" + eventID
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = struct{}{}
	return true, nil
}
