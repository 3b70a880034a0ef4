// Package app assembles a validated scheduler stack from configuration.
// All startup validation happens here: a config defect prevents the
// scheduler from ever starting instead of surfacing at dispatch time.
package app

import (
	"database/sql"
	"log"
	"time"

	"dayline/internal/actions"
	"dayline/internal/budget"
	"dayline/internal/config"
	"dayline/internal/events"
	"dayline/internal/phase"
	"dayline/internal/planner"
	"dayline/internal/queue"
	"dayline/internal/registry"
	"dayline/internal/repo"
	"dayline/internal/scheduler"
	"dayline/internal/template"
)

// Stack is the fully wired set of collaborators for one process.
type Stack struct {
	Config    *config.Config
	Repo      repo.Repo
	Events    events.Writer
	Registry  *registry.Registry
	Templates *template.Store
	Queue     *queue.Manager
	Ledger    *budget.Ledger
	Tracker   *phase.Tracker
	Scheduler *scheduler.Scheduler
}

// Options tweaks construction; zero value is fine.
type Options struct {
	Logger *log.Logger
	Now    func() time.Time
	// Handlers are bound in addition to the builtins, keyed by handler ref.
	Handlers map[string]registry.Handler
}

// Build constructs and validates the stack. Returned validation errors are
// fatal: the caller must not start the scheduler when any are present.
func Build(conn *sql.DB, cfg *config.Config, opts Options) (*Stack, []config.ValidationError, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	verrs := cfg.Validate()
	if len(verrs) > 0 {
		return nil, verrs, nil
	}

	reg := registry.New(logger)
	actions.BindBuiltins(reg)
	for ref, h := range opts.Handlers {
		reg.Bind(ref, h)
	}
	verrs = append(verrs, reg.Register(cfg.ActionDefinitions())...)

	tpls, terrs := template.Load(cfg.TemplateDefinitions())
	verrs = append(verrs, terrs...)
	verrs = append(verrs, tpls.ValidateAgainst(reg)...)
	if len(verrs) > 0 {
		return nil, verrs, nil
	}

	boundaries, err := phase.ParseBoundaries(cfg.Phases)
	if err != nil {
		return nil, nil, err
	}
	tracker := phase.NewTracker(boundaries, time.Duration(cfg.Scheduler.PollIntervalSeconds)*time.Second, logger)
	tracker.Now = now

	qm := queue.NewManager()
	qm.Now = now

	ledger := budget.New(cfg.Budget.DailyLimitUSD, cfg.Budget.CategoryLimitsUSD)
	ledger.Now = now

	r := repo.Repo{DB: conn}
	ev := events.Writer{DB: conn, Now: now}

	sched, err := scheduler.New(scheduler.Config{
		DB:           conn,
		Repo:         r,
		Events:       ev,
		Registry:     reg,
		Templates:    tpls,
		Queue:        qm,
		Ledger:       ledger,
		Policy:       planner.NewStatic(cfg.Plan),
		Tracker:      tracker,
		Logger:       logger,
		TickInterval: time.Duration(cfg.Scheduler.TickIntervalSeconds) * time.Second,
		Now:          now,
	})
	if err != nil {
		return nil, nil, err
	}

	return &Stack{
		Config:    cfg,
		Repo:      r,
		Events:    ev,
		Registry:  reg,
		Templates: tpls,
		Queue:     qm,
		Ledger:    ledger,
		Tracker:   tracker,
		Scheduler: sched,
	}, nil, nil
}
