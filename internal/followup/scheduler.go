package followup

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/leadflow/internal/audit"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/internal/settings"
	"github.com/wolfman30/leadflow/pkg/logging"
)

const (
	persistQueueSize = 256
	fireTimeout      = 30 * time.Second
)

type entry struct {
	gen      uint64
	timer    *time.Timer
	followUp FollowUp
}

type persistOp struct {
	save     bool
	followUp FollowUp
}

// Scheduler keeps at most one armed timer per lead. Registry bookkeeping is
// synchronous; only the fire callback performs I/O.
type Scheduler struct {
	mu       sync.Mutex
	pending  map[string]*entry
	gen      uint64
	stopped  bool
	inFlight sync.WaitGroup

	leads     leads.Repository
	settings  settings.Provider
	sender    Sender
	decisions audit.Recorder
	persister Persister
	persistQ  chan persistOp
	logger    *logging.Logger
	metrics   *metrics.LeadMetrics
	now       func() time.Time
	enabled   func() bool
	onFired   func(FollowUp, Outcome)
}

// NewScheduler creates a scheduler that fires through sender.
func NewScheduler(repo leads.Repository, provider settings.Provider, sender Sender, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		pending:  make(map[string]*entry),
		leads:    repo,
		settings: provider,
		sender:   sender,
		logger:   logger.Component("followup"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithPersister mirrors the registry into p. Writes are applied by Run.
func (s *Scheduler) WithPersister(p Persister) *Scheduler {
	s.persister = p
	if p != nil && s.persistQ == nil {
		s.persistQ = make(chan persistOp, persistQueueSize)
	}
	return s
}

func (s *Scheduler) WithDecisions(r audit.Recorder) *Scheduler {
	s.decisions = r
	return s
}

func (s *Scheduler) WithMetrics(m *metrics.LeadMetrics) *Scheduler {
	s.metrics = m
	return s
}

// WithAutomation gates every fire on enabled, typically the conversation kill switch.
func (s *Scheduler) WithAutomation(enabled func() bool) *Scheduler {
	s.enabled = enabled
	return s
}

// WithClock overrides the wall clock used for night checks and fire times.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	if now != nil {
		s.now = now
	}
	return s
}

// Schedule replaces any pending follow-up for the lead. A delay of zero or
// less fires immediately.
func (s *Scheduler) Schedule(tenantID, leadID string, delayMinutes int, text string) {
	delay := time.Duration(delayMinutes) * time.Minute
	if delay < 0 {
		delay = 0
	}
	f := FollowUp{TenantID: tenantID, LeadID: leadID, Text: text, FireAt: s.now().Add(delay)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.logger.Warn("follow-up scheduler stopped, dropping schedule", "lead_id", leadID)
		return
	}
	s.cancelLocked(leadID)
	s.armLocked(f, delay, true)
	s.metrics.ObserveFollowUp(metrics.FollowUpScheduled)
	s.logger.Debug("follow-up scheduled", "tenant_id", tenantID, "lead_id", leadID, "fire_at", f.FireAt)
}

// Cancel removes the pending follow-up for the lead. It reports whether one existed.
func (s *Scheduler) Cancel(leadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cancelLocked(leadID) {
		return false
	}
	s.enqueueLocked(persistOp{followUp: FollowUp{LeadID: leadID}})
	s.metrics.ObserveFollowUp(metrics.FollowUpCancelled)
	return true
}

// Pending returns the queued follow-up for a lead.
func (s *Scheduler) Pending(leadID string) (FollowUp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[leadID]
	if !ok {
		return FollowUp{}, false
	}
	return e.followUp, true
}

// Len returns the number of armed timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Wait blocks until every armed timer has either fired or been cancelled.
func (s *Scheduler) Wait() {
	s.inFlight.Wait()
}

// Restore re-arms persisted follow-ups in fire-time order. Past-due entries fire immediately.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	if s.persister == nil || s.isStopped() {
		return 0, nil
	}
	items, err := s.persister.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].FireAt.Before(items[j].FireAt) })

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, nil
	}
	now := s.now()
	restored := 0
	for _, f := range items {
		if f.LeadID == "" {
			continue
		}
		delay := f.FireAt.Sub(now)
		if delay < 0 {
			delay = 0
		}
		s.cancelLocked(f.LeadID)
		s.armLocked(f, delay, false)
		s.metrics.ObserveFollowUp(metrics.FollowUpRestored)
		restored++
	}
	if restored > 0 {
		s.logger.Info("follow-ups restored", "count", restored)
	}
	return restored, nil
}

// Run applies persistence writes in order until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if s.persistQ == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return
		case op := <-s.persistQ:
			s.apply(ctx, op)
		}
	}
}

// Stop disarms every timer without touching persisted state and waits for
// in-flight fires to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for leadID := range s.pending {
		s.cancelLocked(leadID)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) armLocked(f FollowUp, delay time.Duration, persist bool) {
	s.gen++
	gen := s.gen
	e := &entry{gen: gen, followUp: f}
	s.inFlight.Add(1)
	e.timer = time.AfterFunc(delay, func() { s.fire(f.LeadID, gen) })
	s.pending[f.LeadID] = e
	if persist {
		s.enqueueLocked(persistOp{save: true, followUp: f})
	}
}

// cancelLocked disarms the lead's timer. A timer whose callback already started
// is left to notice the generation change.
func (s *Scheduler) cancelLocked(leadID string) bool {
	e, ok := s.pending[leadID]
	if !ok {
		return false
	}
	delete(s.pending, leadID)
	if e.timer.Stop() {
		s.inFlight.Done()
	}
	return true
}

func (s *Scheduler) enqueueLocked(op persistOp) {
	if s.persistQ == nil {
		return
	}
	select {
	case s.persistQ <- op:
	default:
		s.logger.Warn("follow-up persist queue full, dropping write", "lead_id", op.followUp.LeadID, "save", op.save)
	}
}

func (s *Scheduler) apply(ctx context.Context, op persistOp) {
	var err error
	if op.save {
		err = s.persister.Save(ctx, op.followUp)
	} else {
		err = s.persister.Remove(ctx, op.followUp.LeadID)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("follow-up persistence failed", "error", err, "lead_id", op.followUp.LeadID, "save", op.save)
	}
}

func (s *Scheduler) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case op := <-s.persistQ:
			s.apply(ctx, op)
		default:
			return
		}
	}
}

// take claims the entry for a firing timer if it is still current.
func (s *Scheduler) take(leadID string, gen uint64) (FollowUp, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[leadID]
	if !ok || e.gen != gen {
		return FollowUp{}, false
	}
	delete(s.pending, leadID)
	s.enqueueLocked(persistOp{followUp: FollowUp{LeadID: leadID}})
	return e.followUp, true
}

// rearm re-arms a follow-up unless a newer one was scheduled meanwhile.
func (s *Scheduler) rearm(f FollowUp, delay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if _, exists := s.pending[f.LeadID]; exists {
		return false
	}
	s.armLocked(f, delay, true)
	return true
}
