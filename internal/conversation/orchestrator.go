// Package conversation runs the inbound lead message pipeline.
package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/leadflow/internal/audit"
	"github.com/wolfman30/leadflow/internal/classifier"
	"github.com/wolfman30/leadflow/internal/gateway"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/messaging"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/internal/settings"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// Dispatcher records inbound messages and delivers outbound ones.
type Dispatcher interface {
	RecordInbound(ctx context.Context, tenantID, leadID, body string) (uuid.UUID, error)
	Send(ctx context.Context, msg messaging.OutboundMessage) (messaging.DispatchResult, error)
}

// FollowUps schedules and cancels deferred nudges.
type FollowUps interface {
	Schedule(tenantID, leadID string, delayMinutes int, text string)
	Cancel(leadID string) bool
}

// Outcome labels how an inbound message was handled.
type Outcome string

const (
	OutcomeAutomationOff Outcome = "automation_off"
	OutcomeNightReply    Outcome = "night_reply"
	OutcomeAIDisabled    Outcome = "ai_disabled"
	OutcomeHumanActive   Outcome = "human_active"
	OutcomeReplied       Outcome = "replied"
	OutcomeNoReply       Outcome = "no_reply"
)

// Result describes what HandleInbound did.
type Result struct {
	Handled           bool                      `json:"handled"`
	Outcome           Outcome                   `json:"outcome"`
	Lead              *leads.Lead               `json:"lead,omitempty"`
	Rule              string                    `json:"rule,omitempty"`
	Reason            string                    `json:"reason,omitempty"`
	Reply             *messaging.DispatchResult `json:"-"`
	ReplyStatus       messaging.Status          `json:"reply_status,omitempty"`
	FollowUpScheduled bool                      `json:"follow_up_scheduled"`
}

// Orchestrator sequences classification, lead updates, replies and follow-ups
// for one inbound message.
type Orchestrator struct {
	leads      leads.Repository
	settings   settings.Provider
	classifier classifier.Classifier
	dispatcher Dispatcher
	followUps  FollowUps
	decisions  audit.Recorder
	logger     *logging.Logger
	metrics    *metrics.LeadMetrics
	automation atomic.Bool
	now        func() time.Time
}

// NewOrchestrator wires the pipeline. Automation starts enabled.
func NewOrchestrator(repo leads.Repository, provider settings.Provider, c classifier.Classifier, dispatcher Dispatcher, followUps FollowUps, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	if c == nil {
		c = classifier.New()
	}
	o := &Orchestrator{
		leads:      repo,
		settings:   provider,
		classifier: c,
		dispatcher: dispatcher,
		followUps:  followUps,
		logger:     logger.Component("conversation"),
		now:        func() time.Time { return time.Now().UTC() },
	}
	o.automation.Store(true)
	return o
}

func (o *Orchestrator) WithDecisions(r audit.Recorder) *Orchestrator {
	o.decisions = r
	return o
}

func (o *Orchestrator) WithMetrics(m *metrics.LeadMetrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithClock overrides the wall clock used for liveness and night checks.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	if now != nil {
		o.now = now
	}
	return o
}

// SetAutomationEnabled flips the system-wide kill switch.
func (o *Orchestrator) SetAutomationEnabled(enabled bool) {
	prev := o.automation.Swap(enabled)
	if prev != enabled {
		o.logger.Info("automation kill switch changed", "enabled", enabled)
	}
}

// AutomationEnabled reports the kill switch state.
func (o *Orchestrator) AutomationEnabled() bool {
	return o.automation.Load()
}

// HandleInbound processes one message received from a lead.
func (o *Orchestrator) HandleInbound(ctx context.Context, tenantID, leadID, text string) (Result, error) {
	lead, err := o.leads.Get(ctx, tenantID, leadID)
	if err != nil {
		return Result{}, err
	}
	log := o.logger.With("tenant_id", tenantID, "lead_id", leadID)
	now := o.now()

	if !o.AutomationEnabled() {
		if _, err := o.dispatcher.RecordInbound(ctx, tenantID, leadID, text); err != nil {
			return Result{}, err
		}
		if o.followUps != nil {
			o.followUps.Cancel(leadID)
		}
		updated, err := o.leads.Update(ctx, tenantID, leadID, func(l *leads.Lead) error {
			l.RecordInbound(now, text)
			return nil
		})
		if err != nil {
			return Result{}, fmt.Errorf("conversation: update lead: %w", err)
		}
		o.record(ctx, audit.Decision{Type: audit.DecisionAutomationOff, TenantID: tenantID, LeadID: leadID, Reason: "automation disabled"})
		o.metrics.ObserveInbound(string(OutcomeAutomationOff))
		log.Info("automation disabled, inbound recorded only")
		return Result{Outcome: OutcomeAutomationOff, Lead: updated}, nil
	}

	if _, err := o.dispatcher.RecordInbound(ctx, tenantID, leadID, text); err != nil {
		return Result{}, err
	}
	if o.followUps != nil && o.followUps.Cancel(leadID) {
		log.Debug("pending follow-up superseded by inbound message")
	}

	cls := o.classifier.Classify(text)
	stageID := ""
	if cls.StageHint != "" {
		stageID, err = o.leads.ResolveStage(ctx, tenantID, cls.StageHint)
		if err != nil {
			return Result{}, err
		}
	}
	lead, err = o.leads.Update(ctx, tenantID, leadID, func(l *leads.Lead) error {
		cls.Apply(l)
		if stageID != "" {
			l.PipelineStageID = stageID
		}
		l.RecordInbound(now, text)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("conversation: update lead: %w", err)
	}
	o.metrics.ObserveClassification(cls.Rule)
	o.record(ctx, audit.Decision{
		Type:      audit.DecisionClassification,
		TenantID:  tenantID,
		LeadID:    leadID,
		Rule:      cls.Rule,
		Reason:    cls.Reason,
		PatchKeys: patchKeys(cls.Patch),
	})
	result := Result{Lead: lead, Rule: cls.Rule, Reason: cls.Reason}

	cfg, err := o.settings.Get(ctx, tenantID)
	if err != nil {
		return result, fmt.Errorf("conversation: load settings: %w", err)
	}

	if cfg.InNightWindow(now) {
		result.Handled = true
		result.Outcome = OutcomeNightReply
		if msg := strings.TrimSpace(cfg.NightMessage); msg != "" {
			if err := o.reply(ctx, cfg, lead, messaging.SourceSystem, msg, &result); err != nil {
				return result, err
			}
		}
		o.record(ctx, audit.Decision{Type: audit.DecisionNightReply, TenantID: tenantID, LeadID: leadID, Reason: "inside night window"})
		o.metrics.ObserveInbound(string(result.Outcome))
		log.Info("night mode reply", "reply_status", result.ReplyStatus)
		return result, nil
	}

	if !cfg.AIEnabled {
		result.Outcome = OutcomeAIDisabled
		o.metrics.ObserveInbound(string(result.Outcome))
		return result, nil
	}
	if !lead.AIActive {
		result.Outcome = OutcomeHumanActive
		o.metrics.ObserveInbound(string(result.Outcome))
		return result, nil
	}

	result.Handled = true
	result.Outcome = OutcomeNoReply
	if body := ComposeReply(cfg, lead); body != "" {
		if err := o.reply(ctx, cfg, lead, messaging.SourceAI, body, &result); err != nil {
			return result, err
		}
		result.Outcome = OutcomeReplied
	}

	if o.followUps != nil && cfg.FollowUpConfigured() && result.Lead.StageType != leads.StageWantsCall {
		o.followUps.Schedule(tenantID, leadID, cfg.FollowUpDelayMinutes, cfg.FollowUpMessage)
		result.FollowUpScheduled = true
		o.record(ctx, audit.Decision{
			Type:     audit.DecisionFollowUpScheduled,
			TenantID: tenantID,
			LeadID:   leadID,
			Reason:   fmt.Sprintf("delay %d minutes", cfg.FollowUpDelayMinutes),
		})
	}
	o.metrics.ObserveInbound(string(result.Outcome))
	return result, nil
}

// reply persists and delivers an automated message. Delivery failures are
// kept in the result; only persistence failures are returned.
func (o *Orchestrator) reply(ctx context.Context, cfg *settings.MessagingSettings, lead *leads.Lead, source messaging.Source, body string, result *Result) error {
	res, err := o.dispatcher.Send(ctx, messaging.OutboundMessage{
		TenantID:   lead.TenantID,
		LeadID:     lead.ID,
		Phone:      lead.Phone,
		Source:     source,
		Body:       body,
		Credential: cfg.Credential(),
	})
	if err != nil {
		return err
	}
	result.Reply = &res
	result.ReplyStatus = res.Status

	updated, err := o.leads.Update(ctx, lead.TenantID, lead.ID, func(l *leads.Lead) error {
		l.RecordOutbound(o.now(), body, false)
		return nil
	})
	if err != nil {
		return fmt.Errorf("conversation: update lead after reply: %w", err)
	}
	result.Lead = updated
	return nil
}

// ComposeReply joins the tenant's enabled reply fragments.
func ComposeReply(cfg *settings.MessagingSettings, lead *leads.Lead) string {
	var parts []string
	if cfg.CallSuggestionEnabled && lead.StageType != leads.StageWantsCall {
		if text := strings.TrimSpace(cfg.CallSuggestionText); text != "" {
			parts = append(parts, text)
		}
	}
	if cfg.QuestionPromptEnabled {
		if text := strings.TrimSpace(cfg.QuestionPromptText); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// TakeOver hands the conversation to a human operator and drops any queued nudge.
func (o *Orchestrator) TakeOver(ctx context.Context, tenantID, leadID string) (*leads.Lead, error) {
	lead, err := o.leads.Update(ctx, tenantID, leadID, func(l *leads.Lead) error {
		l.AIActive = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	if o.followUps != nil {
		o.followUps.Cancel(leadID)
	}
	o.record(ctx, audit.Decision{Type: audit.DecisionHandoffTakeOver, TenantID: tenantID, LeadID: leadID})
	o.logger.Info("lead taken over by operator", "tenant_id", tenantID, "lead_id", leadID)
	return lead, nil
}

// Release returns the conversation to the automation.
func (o *Orchestrator) Release(ctx context.Context, tenantID, leadID string) (*leads.Lead, error) {
	lead, err := o.leads.Update(ctx, tenantID, leadID, func(l *leads.Lead) error {
		l.AIActive = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.record(ctx, audit.Decision{Type: audit.DecisionHandoffRelease, TenantID: tenantID, LeadID: leadID})
	o.logger.Info("lead released to automation", "tenant_id", tenantID, "lead_id", leadID)
	return lead, nil
}

// SendOperatorMessage delivers a message written by a human operator. With
// media set, body becomes the attachment caption.
func (o *Orchestrator) SendOperatorMessage(ctx context.Context, tenantID, leadID, body string, media *gateway.MediaMessage) (messaging.DispatchResult, error) {
	body = strings.TrimSpace(body)
	if body == "" && media == nil {
		return messaging.DispatchResult{}, messaging.ErrEmptyMessage
	}
	preview := body
	if media != nil {
		m := *media
		if err := m.Validate(); err != nil {
			return messaging.DispatchResult{}, err
		}
		if strings.TrimSpace(m.Caption) == "" {
			m.Caption = body
		}
		media = &m
		if preview == "" {
			preview = m.FallbackText()
		}
	}
	lead, err := o.leads.Get(ctx, tenantID, leadID)
	if err != nil {
		return messaging.DispatchResult{}, err
	}
	cfg, err := o.settings.Get(ctx, tenantID)
	if err != nil {
		return messaging.DispatchResult{}, fmt.Errorf("conversation: load settings: %w", err)
	}
	res, err := o.dispatcher.Send(ctx, messaging.OutboundMessage{
		TenantID:   tenantID,
		LeadID:     leadID,
		Phone:      lead.Phone,
		Source:     messaging.SourceHuman,
		Body:       body,
		Media:      media,
		Credential: cfg.Credential(),
	})
	if err != nil {
		return res, err
	}
	if _, err := o.leads.Update(ctx, tenantID, leadID, func(l *leads.Lead) error {
		l.RecordOutbound(o.now(), preview, false)
		return nil
	}); err != nil {
		return res, fmt.Errorf("conversation: update lead after operator message: %w", err)
	}
	return res, nil
}

func (o *Orchestrator) record(ctx context.Context, d audit.Decision) {
	if o.decisions == nil {
		return
	}
	if err := o.decisions.Record(ctx, d); err != nil {
		o.logger.Warn("failed to record decision", "error", err, "lead_id", d.LeadID, "type", d.Type)
	}
}

func patchKeys(patch leads.Attributes) []string {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
