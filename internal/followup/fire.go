package followup

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/wolfman30/leadflow/internal/audit"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/messaging"
	"github.com/wolfman30/leadflow/internal/messaging/compliance"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
)

func (s *Scheduler) fire(leadID string, gen uint64) {
	defer s.inFlight.Done()
	f, ok := s.take(leadID, gen)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	outcome := s.deliver(ctx, f)
	if s.onFired != nil {
		s.onFired(f, outcome)
	}
}

func (s *Scheduler) deliver(ctx context.Context, f FollowUp) Outcome {
	log := s.logger.With("tenant_id", f.TenantID, "lead_id", f.LeadID)
	if s.enabled != nil && !s.enabled() {
		return s.abort(ctx, f, "automation disabled")
	}

	lead, err := s.leads.Get(ctx, f.TenantID, f.LeadID)
	if errors.Is(err, leads.ErrLeadNotFound) {
		return s.abort(ctx, f, "lead not found")
	}
	if err != nil {
		log.Error("follow-up lead lookup failed", "error", err)
		return OutcomeError
	}
	switch {
	case !lead.AIActive:
		return s.abort(ctx, f, "ai inactive")
	case lead.StageType == leads.StageWantsCall:
		return s.abort(ctx, f, "lead wants a call")
	case lead.HasScheduledCall():
		return s.abort(ctx, f, "call already scheduled")
	}

	cfg, err := s.settings.Get(ctx, f.TenantID)
	if err != nil {
		log.Error("follow-up settings lookup failed", "error", err)
		return OutcomeError
	}

	now := s.now()
	if q, ok := cfg.QuietHours(); ok {
		local := cfg.LocalTime(now)
		if q.Contains(local) {
			minutes := compliance.MinutesUntilEnd(compliance.ClockOf(local), q.End)
			if minutes < 1 {
				minutes = 1
			}
			next := f
			next.FireAt = now.Add(time.Duration(minutes) * time.Minute)
			if !s.rearm(next, time.Duration(minutes)*time.Minute) {
				log.Info("follow-up superseded during night deferral")
				return OutcomeAborted
			}
			s.metrics.ObserveFollowUp(metrics.FollowUpDeferred)
			s.record(ctx, audit.Decision{
				Type:     audit.DecisionFollowUpDeferred,
				TenantID: f.TenantID,
				LeadID:   f.LeadID,
				Reason:   "inside night window",
				Details:  mustJSON(map[string]any{"minutes": minutes, "fire_at": next.FireAt}),
			})
			log.Info("follow-up deferred until night window ends", "minutes", minutes, "fire_at", next.FireAt)
			return OutcomeDeferred
		}
	}

	res, err := s.sender.Send(ctx, messaging.OutboundMessage{
		TenantID:   f.TenantID,
		LeadID:     f.LeadID,
		Phone:      lead.Phone,
		Source:     messaging.SourceAI,
		Body:       f.Text,
		Credential: cfg.Credential(),
	})
	if err != nil {
		log.Error("follow-up could not be recorded", "error", err)
		return OutcomeError
	}

	if _, err := s.leads.Update(ctx, f.TenantID, f.LeadID, func(l *leads.Lead) error {
		l.RecordOutbound(now, f.Text, true)
		return nil
	}); err != nil {
		log.Error("follow-up lead update failed", "error", err)
	}

	s.metrics.ObserveFollowUp(metrics.FollowUpFired)
	s.record(ctx, audit.Decision{
		Type:     audit.DecisionFollowUpFired,
		TenantID: f.TenantID,
		LeadID:   f.LeadID,
		Reason:   string(res.Status),
	})
	if !res.Delivered() {
		log.Warn("follow-up delivery failed", "status", res.Status, "error", res.Err)
		return OutcomeFailed
	}
	log.Info("follow-up sent", "message_id", res.MessageID)
	return OutcomeSent
}

func (s *Scheduler) abort(ctx context.Context, f FollowUp, reason string) Outcome {
	s.metrics.ObserveFollowUp(metrics.FollowUpAborted)
	s.record(ctx, audit.Decision{
		Type:     audit.DecisionFollowUpAborted,
		TenantID: f.TenantID,
		LeadID:   f.LeadID,
		Reason:   reason,
	})
	s.logger.Info("follow-up aborted", "tenant_id", f.TenantID, "lead_id", f.LeadID, "reason", reason)
	return OutcomeAborted
}

func (s *Scheduler) record(ctx context.Context, d audit.Decision) {
	if s.decisions == nil {
		return
	}
	if err := s.decisions.Record(ctx, d); err != nil {
		s.logger.Warn("failed to record follow-up decision", "error", err, "lead_id", d.LeadID, "type", d.Type)
	}
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
