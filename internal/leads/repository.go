package leads

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository is the single write path for lead state.
type Repository interface {
	Get(ctx context.Context, tenantID, leadID string) (*Lead, error)
	FindOrCreateByPhone(ctx context.Context, tenantID, phone, name string) (*Lead, error)
	// Update loads the lead, applies fn and persists the result atomically.
	Update(ctx context.Context, tenantID, leadID string, fn func(*Lead) error) (*Lead, error)
	ResolveStage(ctx context.Context, tenantID string, stage StageType) (string, error)
}

// InMemoryRepository is a Repository backed by process memory.
type InMemoryRepository struct {
	mu     sync.RWMutex
	leads  map[string]*Lead
	stages map[string]map[StageType]string
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads:  make(map[string]*Lead),
		stages: make(map[string]map[StageType]string),
	}
}

var _ Repository = (*InMemoryRepository)(nil)

// Put stores a copy of lead, assigning an id and timestamps when missing.
func (r *InMemoryRepository) Put(lead *Lead) *Lead {
	cp := lead.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	if cp.Attributes == nil {
		cp.Attributes = Attributes{}
	}
	r.mu.Lock()
	r.leads[cp.ID] = cp
	r.mu.Unlock()
	return cp.Clone()
}

// SetStage registers the tenant's stage id for a stage type.
func (r *InMemoryRepository) SetStage(tenantID string, stage StageType, stageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages[tenantID] == nil {
		r.stages[tenantID] = make(map[StageType]string)
	}
	r.stages[tenantID][stage] = stageID
}

func (r *InMemoryRepository) Get(ctx context.Context, tenantID, leadID string) (*Lead, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrMissingTenantID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[leadID]
	if !ok || lead.TenantID != tenantID {
		return nil, ErrLeadNotFound
	}
	return lead.Clone(), nil
}

func (r *InMemoryRepository) FindOrCreateByPhone(ctx context.Context, tenantID, phone, name string) (*Lead, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, ErrMissingTenantID
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, ErrInvalidPhone
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lead := range r.leads {
		if lead.TenantID == tenantID && lead.Phone == phone {
			return lead.Clone(), nil
		}
	}
	now := time.Now().UTC()
	lead := &Lead{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Name:        strings.TrimSpace(name),
		Phone:       phone,
		Temperature: TemperatureCold,
		StageType:   StageNew,
		AIActive:    true,
		Attributes:  Attributes{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if id, ok := r.stages[tenantID][StageNew]; ok {
		lead.PipelineStageID = id
	}
	r.leads[lead.ID] = lead
	return lead.Clone(), nil
}

func (r *InMemoryRepository) Update(ctx context.Context, tenantID, leadID string, fn func(*Lead) error) (*Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.leads[leadID]
	if !ok || current.TenantID != tenantID {
		return nil, ErrLeadNotFound
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = current.ID
	working.TenantID = current.TenantID
	working.UpdatedAt = time.Now().UTC()
	r.leads[leadID] = working
	return working.Clone(), nil
}

func (r *InMemoryRepository) ResolveStage(ctx context.Context, tenantID string, stage StageType) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.stages[tenantID][stage]; ok {
		return id, nil
	}
	return string(stage), nil
}
