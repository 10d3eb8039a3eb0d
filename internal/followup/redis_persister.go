package followup

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	payloadKey = "followups:payload"
	dueKey     = "followups:due"
)

// RedisPersister keeps follow-ups in a hash of payloads plus a sorted set by fire time.
type RedisPersister struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisPersister(client *redis.Client) *RedisPersister {
	if client == nil {
		return nil
	}
	return &RedisPersister{
		redis:  client,
		tracer: otel.Tracer("leadflow.internal.followup"),
	}
}

var _ Persister = (*RedisPersister)(nil)

func (p *RedisPersister) Save(ctx context.Context, f FollowUp) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("followup: marshal: %w", err)
	}
	ctx, span := p.tracer.Start(ctx, "followup.persist.save")
	defer span.End()
	span.SetAttributes(attribute.String("leadflow.lead_id", f.LeadID))

	pipe := p.redis.TxPipeline()
	pipe.HSet(ctx, payloadKey, f.LeadID, data)
	pipe.ZAdd(ctx, dueKey, redis.Z{Score: float64(f.FireAt.UnixMilli()), Member: f.LeadID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("followup: save: %w", err)
	}
	return nil
}

func (p *RedisPersister) Remove(ctx context.Context, leadID string) error {
	ctx, span := p.tracer.Start(ctx, "followup.persist.remove")
	defer span.End()
	span.SetAttributes(attribute.String("leadflow.lead_id", leadID))

	pipe := p.redis.TxPipeline()
	pipe.HDel(ctx, payloadKey, leadID)
	pipe.ZRem(ctx, dueKey, leadID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("followup: remove: %w", err)
	}
	return nil
}

// LoadAll returns every stored follow-up ordered by fire time.
func (p *RedisPersister) LoadAll(ctx context.Context) ([]FollowUp, error) {
	ctx, span := p.tracer.Start(ctx, "followup.persist.load")
	defer span.End()

	ids, err := p.redis.ZRange(ctx, dueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("followup: load ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	payloads, err := p.redis.HMGet(ctx, payloadKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("followup: load payloads: %w", err)
	}
	out := make([]FollowUp, 0, len(ids))
	for i, raw := range payloads {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var f FollowUp
		if err := json.Unmarshal([]byte(str), &f); err != nil {
			return nil, fmt.Errorf("followup: decode %s: %w", ids[i], err)
		}
		out = append(out, f)
	}
	span.SetAttributes(attribute.Int("leadflow.followups", len(out)))
	return out, nil
}
