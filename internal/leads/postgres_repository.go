package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool used by the repository.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool PgxPool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool PgxPool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

var _ Repository = (*PostgresRepository)(nil)

const leadColumns = `id, tenant_id, name, phone, temperature, pipeline_stage_id, stage_type,
	ai_active, notes, last_message_at, last_message_preview, no_response_since,
	attributes, created_at, updated_at`

// Get fetches a lead scoped to the tenant.
func (r *PostgresRepository) Get(ctx context.Context, tenantID, leadID string) (*Lead, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrMissingTenantID
	}
	query := `SELECT ` + leadColumns + ` FROM leads WHERE tenant_id = $1 AND id = $2`
	return scanLead(r.pool.QueryRow(ctx, query, tenantID, leadID))
}

// FindOrCreateByPhone returns the tenant's lead for phone, inserting one on first contact.
func (r *PostgresRepository) FindOrCreateByPhone(ctx context.Context, tenantID, phone, name string) (*Lead, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrMissingTenantID
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, ErrInvalidPhone
	}

	query := `SELECT ` + leadColumns + ` FROM leads WHERE tenant_id = $1 AND phone = $2`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, tenantID, phone))
	if err == nil {
		return lead, nil
	}
	if !errors.Is(err, ErrLeadNotFound) {
		return nil, err
	}

	stageID, err := r.ResolveStage(ctx, tenantID, StageNew)
	if err != nil {
		return nil, err
	}
	insert := `
		INSERT INTO leads (id, tenant_id, name, phone, temperature, pipeline_stage_id, stage_type, ai_active, attributes)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, TRUE, '{}'::jsonb)
		ON CONFLICT (tenant_id, phone) DO UPDATE SET updated_at = leads.updated_at
		RETURNING ` + leadColumns
	return scanLead(r.pool.QueryRow(ctx, insert,
		uuid.NewString(),
		tenantID,
		strings.TrimSpace(name),
		phone,
		string(TemperatureCold),
		stageID,
		string(StageNew),
	))
}

// Update locks the row, applies fn and writes the conversation fields back.
func (r *PostgresRepository) Update(ctx context.Context, tenantID, leadID string, fn func(*Lead) error) (*Lead, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("leads: begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + leadColumns + ` FROM leads WHERE tenant_id = $1 AND id = $2 FOR UPDATE`
	lead, err := scanLead(tx.QueryRow(ctx, query, tenantID, leadID))
	if err != nil {
		return nil, err
	}
	if err := fn(lead); err != nil {
		return nil, err
	}

	attrs, err := json.Marshal(lead.Attributes)
	if err != nil {
		return nil, fmt.Errorf("leads: marshal attributes: %w", err)
	}
	lead.UpdatedAt = time.Now().UTC()
	update := `
		UPDATE leads
		SET name = $3, temperature = $4, pipeline_stage_id = NULLIF($5, ''), stage_type = $6,
			ai_active = $7, notes = $8, last_message_at = $9, last_message_preview = $10,
			no_response_since = $11, attributes = $12, updated_at = $13
		WHERE tenant_id = $1 AND id = $2
	`
	if _, err := tx.Exec(ctx, update,
		tenantID,
		leadID,
		lead.Name,
		string(lead.Temperature),
		lead.PipelineStageID,
		string(lead.StageType),
		lead.AIActive,
		lead.Notes,
		lead.LastMessageAt,
		lead.LastMessagePreview,
		lead.NoResponseSince,
		attrs,
		lead.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("leads: update failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("leads: commit update: %w", err)
	}
	return lead, nil
}

// ResolveStage returns the first tenant stage of the given type, or "" when the
// tenant has not configured one.
func (r *PostgresRepository) ResolveStage(ctx context.Context, tenantID string, stage StageType) (string, error) {
	query := `
		SELECT id FROM pipeline_stages
		WHERE tenant_id = $1 AND stage_type = $2
		ORDER BY position
		LIMIT 1
	`
	var id string
	if err := r.pool.QueryRow(ctx, query, tenantID, string(stage)).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("leads: resolve stage: %w", err)
	}
	return id, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead        Lead
		name        *string
		stageID     *string
		notes       *string
		preview     *string
		temperature string
		stageType   string
		attrs       []byte
	)
	if err := row.Scan(
		&lead.ID,
		&lead.TenantID,
		&name,
		&lead.Phone,
		&temperature,
		&stageID,
		&stageType,
		&lead.AIActive,
		&notes,
		&lead.LastMessageAt,
		&preview,
		&lead.NoResponseSince,
		&attrs,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	lead.Name = deref(name)
	lead.PipelineStageID = deref(stageID)
	lead.Notes = deref(notes)
	lead.LastMessagePreview = deref(preview)
	lead.Temperature = Temperature(temperature)
	lead.StageType = StageType(stageType)
	lead.Attributes = Attributes{}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &lead.Attributes); err != nil {
			return nil, fmt.Errorf("leads: decode attributes: %w", err)
		}
	}
	return &lead, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
