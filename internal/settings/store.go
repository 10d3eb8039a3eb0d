package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const keyPrefix = "tenant_settings:"

// Provider reads tenant settings.
type Provider interface {
	Get(ctx context.Context, tenantID string) (*MessagingSettings, error)
}

// Store reads and writes tenant settings.
type Store interface {
	Provider
	Put(ctx context.Context, s *MessagingSettings) error
}

// RedisStore keeps settings as JSON documents in Redis.
type RedisStore struct {
	redis           *redis.Client
	tracer          trace.Tracer
	defaultTimezone string
}

// NewRedisStore creates a Redis-backed settings store.
func NewRedisStore(client *redis.Client, defaultTimezone string) *RedisStore {
	return &RedisStore{
		redis:           client,
		tracer:          otel.Tracer("leadflow.internal.settings"),
		defaultTimezone: defaultTimezone,
	}
}

var _ Store = (*RedisStore)(nil)

func key(tenantID string) string {
	return keyPrefix + tenantID
}

// Get retrieves tenant settings, returning defaults if none are stored.
func (s *RedisStore) Get(ctx context.Context, tenantID string) (*MessagingSettings, error) {
	ctx, span := s.tracer.Start(ctx, "settings.get")
	defer span.End()
	span.SetAttributes(attribute.String("leadflow.tenant_id", tenantID))

	data, err := s.redis.Get(ctx, key(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Default(tenantID, s.defaultTimezone), nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: get: %w", err)
	}
	var out MessagingSettings
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("settings: unmarshal: %w", err)
	}
	if out.Timezone == "" {
		out.Timezone = s.defaultTimezone
	}
	return &out, nil
}

// Put validates and saves tenant settings.
func (s *RedisStore) Put(ctx context.Context, in *MessagingSettings) error {
	if err := in.Validate(); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, "settings.put")
	defer span.End()
	span.SetAttributes(attribute.String("leadflow.tenant_id", in.TenantID))

	cp := *in
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if err := s.redis.Set(ctx, key(cp.TenantID), data, 0).Err(); err != nil {
		return fmt.Errorf("settings: set: %w", err)
	}
	return nil
}

// InMemoryStore is a Store for tests and single-process deployments.
type InMemoryStore struct {
	mu              sync.RWMutex
	items           map[string]MessagingSettings
	defaultTimezone string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore(defaultTimezone string) *InMemoryStore {
	return &InMemoryStore{items: make(map[string]MessagingSettings), defaultTimezone: defaultTimezone}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) Get(ctx context.Context, tenantID string) (*MessagingSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[strings.TrimSpace(tenantID)]
	if !ok {
		return Default(tenantID, s.defaultTimezone), nil
	}
	return &item, nil
}

func (s *InMemoryStore) Put(ctx context.Context, in *MessagingSettings) error {
	if err := in.Validate(); err != nil {
		return err
	}
	cp := *in
	cp.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.items[strings.TrimSpace(cp.TenantID)] = cp
	s.mu.Unlock()
	return nil
}
