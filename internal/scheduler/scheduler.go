// Package scheduler orchestrates autonomous work: it plans units on phase
// changes, executes their action sequences against the registry, deducts
// budget, and records summaries. One scheduler instance drives execution
// per process.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"dayline/internal/budget"
	"dayline/internal/domain"
	"dayline/internal/events"
	"dayline/internal/phase"
	"dayline/internal/planner"
	"dayline/internal/queue"
	"dayline/internal/registry"
	"dayline/internal/repo"
	"dayline/internal/template"
)

// actorID stamped on events written by the scheduler itself.
const actorID = "scheduler"

// Config wires the scheduler's collaborators. All fields are required
// except Logger, TickInterval and Now.
type Config struct {
	DB           *sql.DB
	Repo         repo.Repo
	Events       events.Writer
	Registry     *registry.Registry
	Templates    *template.Store
	Queue        *queue.Manager
	Ledger       *budget.Ledger
	Policy       planner.Policy
	Tracker      *phase.Tracker
	Logger       *log.Logger
	TickInterval time.Duration
	Now          func() time.Time
}

// Scheduler pulls queued work for the current phase and runs one unit to
// completion per tick. The tick loop and the phase tracker's loop are the
// only two goroutines; they meet at the queue manager and the phase-change
// callback.
type Scheduler struct {
	db        *sql.DB
	repo      repo.Repo
	events    events.Writer
	registry  *registry.Registry
	templates *template.Store
	queue     *queue.Manager
	ledger    *budget.Ledger
	policy    planner.Policy
	tracker   *phase.Tracker
	logger    *log.Logger
	interval  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	paused    bool
	runningID string
	cancels   map[string]bool

	runCtx context.Context
}

// New validates the wiring and returns a stopped scheduler.
func New(cfg Config) (*Scheduler, error) {
	switch {
	case cfg.DB == nil:
		return nil, errors.New("scheduler: db required")
	case cfg.Registry == nil:
		return nil, errors.New("scheduler: registry required")
	case cfg.Templates == nil:
		return nil, errors.New("scheduler: template store required")
	case cfg.Queue == nil:
		return nil, errors.New("scheduler: queue manager required")
	case cfg.Ledger == nil:
		return nil, errors.New("scheduler: budget ledger required")
	case cfg.Tracker == nil:
		return nil, errors.New("scheduler: phase tracker required")
	}
	if cfg.Policy == nil {
		cfg.Policy = planner.Nop{}
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		db:        cfg.DB,
		repo:      cfg.Repo,
		events:    cfg.Events,
		registry:  cfg.Registry,
		templates: cfg.Templates,
		queue:     cfg.Queue,
		ledger:    cfg.Ledger,
		policy:    cfg.Policy,
		tracker:   cfg.Tracker,
		logger:    cfg.Logger,
		interval:  cfg.TickInterval,
		now:       cfg.Now,
		cancels:   map[string]bool{},
		runCtx:    context.Background(),
	}, nil
}

// Restore rebuilds runtime state after a restart: queued units go back to
// their phase queues and the ledger is primed from today's persisted
// entries so spend cannot be counted twice.
func (s *Scheduler) Restore(ctx context.Context) error {
	units, err := s.repo.PendingWorkUnits(ctx)
	if err != nil {
		return fmt.Errorf("restore queue: %w", err)
	}
	for _, u := range units {
		s.queue.Enqueue(u)
	}
	day := budget.Day(s.now())
	spent, byCategory, err := s.repo.SpendForDay(ctx, day)
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	s.ledger.Restore(day, spent, byCategory)
	return nil
}

// Start subscribes to phase changes and runs the tick loop until ctx is
// done. Call at most once.
func (s *Scheduler) Start(ctx context.Context) {
	s.runCtx = ctx
	s.tracker.OnPhaseChange(func(prev, next domain.Phase, at time.Time) {
		s.onPhaseChange(prev, next, at)
	})
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rollBudgetDay(ctx)
			if s.Paused() {
				continue
			}
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Printf("scheduler: tick: %v", err)
			}
		}
	}
}

// rollBudgetDay resets the ledger when the calendar day changes.
func (s *Scheduler) rollBudgetDay(ctx context.Context) {
	day := budget.Day(s.now())
	if day == s.ledger.CurrentDay() {
		return
	}
	s.ledger.ResetForNewDay()
	if err := s.events.AppendNoTx(ctx, events.TypeBudgetReset, "budget", day, actorID, events.EventPayload{"day": day}); err != nil {
		s.logger.Printf("scheduler: record budget reset: %v", err)
	}
}

// onPhaseChange records the transition and asks the planning policy what
// to enqueue for the new phase. Runs on the tracker's goroutine, so only
// queue and db work happens here, never action execution.
func (s *Scheduler) onPhaseChange(prev, next domain.Phase, at time.Time) {
	ctx := s.runCtx
	if err := s.events.AppendNoTx(ctx, events.TypePhaseChanged, "phase", string(next), actorID, events.EventPayload{
		"from": string(prev),
		"to":   string(next),
		"at":   at.UTC().Format(time.RFC3339),
	}); err != nil {
		s.logger.Printf("scheduler: record phase change: %v", err)
	}
	for _, pick := range s.policy.PlanForPhase(next, s.templates.All()) {
		if _, err := s.Enqueue(ctx, pick.TemplateID, next, pick.Priority); err != nil {
			s.logger.Printf("scheduler: plan %s for %s: %v", pick.TemplateID, next, err)
		}
	}
}

// Enqueue instantiates a template as a fresh work unit for a phase. A zero
// priority falls back to the template default.
func (s *Scheduler) Enqueue(ctx context.Context, templateID string, target domain.Phase, priority int) (domain.WorkUnit, error) {
	tpl, err := s.templates.Get(templateID)
	if err != nil {
		return domain.WorkUnit{}, err
	}
	if !target.Valid() {
		return domain.WorkUnit{}, fmt.Errorf("invalid phase %q", target)
	}
	if priority == 0 {
		priority = tpl.Priority
	}
	u := domain.WorkUnit{
		ID:          uuid.New().String(),
		TemplateID:  tpl.ID,
		TargetPhase: target,
		Priority:    priority,
		QueuedAt:    s.now().UTC().Format(time.RFC3339),
		Status:      domain.UnitQueued,
	}
	u = s.queue.Enqueue(u)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkUnit{}, err
	}
	defer tx.Rollback()
	if err := s.repo.InsertWorkUnit(ctx, tx, u); err != nil {
		return domain.WorkUnit{}, fmt.Errorf("persist work unit: %w", err)
	}
	if err := s.events.Append(ctx, tx, events.TypeUnitEnqueued, "work_unit", u.ID, actorID, events.EventPayload{
		"template_id": tpl.ID,
		"phase":       string(target),
		"priority":    priority,
	}); err != nil {
		return domain.WorkUnit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkUnit{}, err
	}
	return u, nil
}

// Tick dequeues the next unit for the current phase and runs it fully,
// including all sequential actions. Returns false when nothing was queued.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	current := s.tracker.Current()
	u, ok := s.queue.DequeueNext(current)
	if !ok {
		return false, nil
	}
	s.setRunning(u.ID)
	defer s.setRunning("")

	if err := s.markStarted(ctx, u); err != nil {
		return true, err
	}
	s.runUnit(ctx, u)
	return true, nil
}

func (s *Scheduler) setRunning(id string) {
	s.mu.Lock()
	s.runningID = id
	s.mu.Unlock()
}

func (s *Scheduler) markStarted(ctx context.Context, u domain.WorkUnit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := s.repo.UpdateWorkUnit(ctx, tx, u); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	if err := s.events.Append(ctx, tx, events.TypeUnitStarted, "work_unit", u.ID, actorID, events.EventPayload{
		"template_id": u.TemplateID,
		"phase":       string(u.TargetPhase),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// runUnit executes the unit's action sequence. A failed action aborts the
// remaining sequence; exceptions from handlers become failed summaries,
// never crashes.
func (s *Scheduler) runUnit(ctx context.Context, u domain.WorkUnit) {
	tpl, err := s.templates.Get(u.TemplateID)
	if err != nil {
		// Unreachable after startup validation, but a unit restored from an
		// older config could still carry a stale template id.
		s.finish(ctx, u, nil, 0, err.Error())
		return
	}
	var results []domain.ActionResult
	var totalCost float64
	for i, actionID := range tpl.ActionSequence {
		if s.cancelRequested(u.ID) {
			s.finishCanceled(ctx, u, results, totalCost)
			return
		}
		def, err := s.registry.Resolve(actionID)
		if err != nil {
			s.finish(ctx, u, results, totalCost, err.Error())
			return
		}
		if !s.ledger.CanAfford(def.EstimatedCost) {
			if i == 0 {
				// Nothing ran yet, so the whole unit can wait for budget.
				s.defer_(ctx, u, def)
				return
			}
			s.finish(ctx, u, results, totalCost, budget.ExceededError{
				Category:  def.Category,
				AmountUSD: def.EstimatedCost,
				SpentUSD:  s.ledger.Snapshot().SpentUSD,
				LimitUSD:  s.ledger.Snapshot().LimitUSD,
			}.Error())
			return
		}
		result := s.execute(ctx, def, u)
		results = append(results, result)
		if !result.Success {
			msg := result.Error
			if msg == "" {
				msg = fmt.Sprintf("action %s failed", def.ID)
			}
			s.finish(ctx, u, results, totalCost, msg)
			return
		}
		receipt, err := s.ledger.Deduct(result.CostUSD, def.Category)
		if err != nil {
			// The action already ran; the unit fails with the refusal
			// recorded rather than pretending the work did not happen.
			s.finish(ctx, u, results, totalCost, err.Error())
			return
		}
		totalCost += result.CostUSD
		s.recordDeduction(ctx, u, def, receipt)
	}
	s.finish(ctx, u, results, totalCost, "")
}

// execute invokes the handler with panic isolation.
func (s *Scheduler) execute(ctx context.Context, def domain.ActionDefinition, u domain.WorkUnit) (result domain.ActionResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("scheduler: handler %s panicked: %v", def.HandlerRef, r)
			result = domain.ActionResult{
				ActionID: def.ID,
				Success:  false,
				Error:    fmt.Sprintf("handler panic: %v", r),
			}
		}
	}()
	h, err := s.registry.Handler(def)
	if err != nil {
		return domain.ActionResult{ActionID: def.ID, Success: false, Error: err.Error()}
	}
	result = h.Execute(ctx, registry.Invocation{
		WorkUnitID: u.ID,
		TemplateID: u.TemplateID,
		Phase:      u.TargetPhase,
		Definition: def,
	})
	if result.ActionID == "" {
		result.ActionID = def.ID
	}
	return result
}

func (s *Scheduler) recordDeduction(ctx context.Context, u domain.WorkUnit, def domain.ActionDefinition, r budget.Receipt) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Printf("scheduler: record deduction: %v", err)
		return
	}
	defer tx.Rollback()
	entry := domain.BudgetEntry{
		Day:        r.Day,
		TS:         r.TS,
		Category:   r.Category,
		AmountUSD:  r.AmountUSD,
		BalanceUSD: r.BalanceUSD,
		WorkUnitID: u.ID,
		ActionID:   def.ID,
	}
	if err := s.repo.InsertBudgetEntry(ctx, tx, entry); err != nil {
		s.logger.Printf("scheduler: record deduction: %v", err)
		return
	}
	if err := s.events.Append(ctx, tx, events.TypeBudgetDeducted, "budget", u.ID, actorID, events.EventPayload{
		"category":   r.Category,
		"amount_usd": r.AmountUSD,
		"action_id":  def.ID,
	}); err != nil {
		s.logger.Printf("scheduler: record deduction: %v", err)
		return
	}
	if err := tx.Commit(); err != nil {
		s.logger.Printf("scheduler: record deduction: %v", err)
	}
}

// defer_ returns an unstarted unit to its queue with a fresh queued_at, so
// it lands behind equal-priority peers and waits for budget.
func (s *Scheduler) defer_(ctx context.Context, u domain.WorkUnit, def domain.ActionDefinition) {
	s.clearCancel(u.ID)
	u.Status = domain.UnitQueued
	u.StartedAt = nil
	u.QueuedAt = s.now().UTC().Format(time.RFC3339)
	u = s.queue.Enqueue(u)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Printf("scheduler: defer %s: %v", u.ID, err)
		return
	}
	defer tx.Rollback()
	if err := s.repo.UpdateWorkUnit(ctx, tx, u); err != nil {
		s.logger.Printf("scheduler: defer %s: %v", u.ID, err)
		return
	}
	if err := s.events.Append(ctx, tx, events.TypeUnitDeferred, "work_unit", u.ID, actorID, events.EventPayload{
		"action_id":          def.ID,
		"estimated_cost_usd": def.EstimatedCost,
		"reason":             "budget",
	}); err != nil {
		s.logger.Printf("scheduler: defer %s: %v", u.ID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		s.logger.Printf("scheduler: defer %s: %v", u.ID, err)
	}
}

// finish writes the terminal state and the immutable summary in one
// transaction. An empty errMsg means success.
func (s *Scheduler) finish(ctx context.Context, u domain.WorkUnit, results []domain.ActionResult, totalCost float64, errMsg string) {
	s.clearCancel(u.ID)
	completed := s.now().UTC().Format(time.RFC3339)
	u.CompletedAt = &completed
	started := completed
	if u.StartedAt != nil {
		started = *u.StartedAt
	}
	summary := domain.WorkSummary{
		WorkUnitID:    u.ID,
		TemplateID:    u.TemplateID,
		Phase:         u.TargetPhase,
		StartedAt:     started,
		CompletedAt:   completed,
		Success:       errMsg == "",
		ActualCost:    totalCost,
		ActionResults: results,
	}
	evtType := events.TypeUnitCompleted
	if errMsg != "" {
		u.Status = domain.UnitFailed
		summary.Error = &errMsg
		evtType = events.TypeUnitFailed
	} else {
		u.Status = domain.UnitCompleted
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Printf("scheduler: finish %s: %v", u.ID, err)
		return
	}
	defer tx.Rollback()
	if err := s.repo.UpdateWorkUnit(ctx, tx, u); err != nil {
		s.logger.Printf("scheduler: finish %s: %v", u.ID, err)
		return
	}
	if err := s.repo.InsertWorkSummary(ctx, tx, summary); err != nil {
		s.logger.Printf("scheduler: finish %s: %v", u.ID, err)
		return
	}
	payload := events.EventPayload{
		"template_id":     u.TemplateID,
		"phase":           string(u.TargetPhase),
		"actual_cost_usd": totalCost,
	}
	if errMsg != "" {
		payload["error"] = errMsg
	}
	if err := s.events.Append(ctx, tx, evtType, "work_unit", u.ID, actorID, payload); err != nil {
		s.logger.Printf("scheduler: finish %s: %v", u.ID, err)
		return
	}
	if err := tx.Commit(); err != nil {
		s.logger.Printf("scheduler: finish %s: %v", u.ID, err)
	}
}

func (s *Scheduler) finishCanceled(ctx context.Context, u domain.WorkUnit, results []domain.ActionResult, totalCost float64) {
	s.finish(ctx, u, results, totalCost, "canceled by operator")
	if err := s.events.AppendNoTx(ctx, events.TypeUnitCanceled, "work_unit", u.ID, actorID, nil); err != nil {
		s.logger.Printf("scheduler: record cancel %s: %v", u.ID, err)
	}
}

// Cancel requests cancellation of a unit. A queued unit is removed and
// finalized immediately; a running unit stops at the next action boundary,
// its in-flight action always completing naturally.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	if u, ok := s.queue.Remove(id); ok {
		s.finishCanceled(ctx, u, nil, 0)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runningID == id {
		s.cancels[id] = true
		return nil
	}
	return fmt.Errorf("work unit %s is not queued or running", id)
}

func (s *Scheduler) cancelRequested(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels[id]
}

func (s *Scheduler) clearCancel(id string) {
	s.mu.Lock()
	delete(s.cancels, id)
	s.mu.Unlock()
}

// Pause stops dequeuing new units; the current unit, if any, finishes.
func (s *Scheduler) Pause(ctx context.Context) {
	s.mu.Lock()
	already := s.paused
	s.paused = true
	s.mu.Unlock()
	if already {
		return
	}
	if err := s.events.AppendNoTx(ctx, events.TypeSchedulerPaused, "scheduler", "", actorID, nil); err != nil {
		s.logger.Printf("scheduler: record pause: %v", err)
	}
}

// Resume re-enables the tick loop.
func (s *Scheduler) Resume(ctx context.Context) {
	s.mu.Lock()
	already := !s.paused
	s.paused = false
	s.mu.Unlock()
	if already {
		return
	}
	if err := s.events.AppendNoTx(ctx, events.TypeSchedulerResumed, "scheduler", "", actorID, nil); err != nil {
		s.logger.Printf("scheduler: record resume: %v", err)
	}
}

// Paused reports whether the tick loop is suspended.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Peek returns the pending units for a phase in dequeue order.
func (s *Scheduler) Peek(p domain.Phase) []domain.WorkUnit {
	return s.queue.Peek(p)
}

// Status is the operator-facing snapshot served by the API and CLI.
type Status struct {
	Phase       domain.Phase          `json:"phase"`
	Paused      bool                  `json:"paused"`
	RunningUnit string                `json:"running_unit,omitempty"`
	QueueDepths map[domain.Phase]int  `json:"queue_depths"`
	UnitCounts  map[string]int        `json:"unit_counts"`
	Budget      domain.BudgetSnapshot `json:"budget"`
}

// CurrentStatus assembles the snapshot.
func (s *Scheduler) CurrentStatus(ctx context.Context) (Status, error) {
	counts, err := s.repo.CountWorkUnitsByStatus(ctx)
	if err != nil {
		return Status{}, err
	}
	s.mu.Lock()
	running := s.runningID
	paused := s.paused
	s.mu.Unlock()
	return Status{
		Phase:       s.tracker.Current(),
		Paused:      paused,
		RunningUnit: running,
		QueueDepths: s.queue.Depths(),
		UnitCounts:  counts,
		Budget:      s.ledger.Snapshot(),
	}, nil
}
