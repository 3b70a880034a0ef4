package scheduler_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dayline/internal/app"
	"dayline/internal/config"
	"dayline/internal/db"
	"dayline/internal/domain"
	"dayline/internal/events"
	"dayline/internal/migrate"
	"dayline/internal/repo"
)

type testEnv struct {
	Stack *app.Stack
	Ctx   context.Context
	Now   time.Time
}

// newTestEnv builds a full stack over a throwaway sqlite db with a frozen
// clock parked mid-morning.
func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	env := &testEnv{Ctx: context.Background(), Now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	stack, verrs, err := app.Build(conn, cfg, app.Options{Now: func() time.Time { return env.Now }})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(verrs) > 0 {
		t.Fatalf("validation: %v", config.Join(verrs))
	}
	// Align the tracker with the frozen clock before any listeners exist.
	stack.Tracker.Observe()
	env.Stack = stack
	return env
}

func (e *testEnv) mustEnqueue(t *testing.T, templateID string, phase domain.Phase, priority int) domain.WorkUnit {
	t.Helper()
	u, err := e.Stack.Scheduler.Enqueue(e.Ctx, templateID, phase, priority)
	if err != nil {
		t.Fatalf("enqueue %s: %v", templateID, err)
	}
	return u
}

func (e *testEnv) tick(t *testing.T) bool {
	t.Helper()
	ran, err := e.Stack.Scheduler.Tick(e.Ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	return ran
}

func TestRunUnitToCompletion(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.mustEnqueue(t, "daily_reflection", domain.PhaseMorning, 0)

	if !env.tick(t) {
		t.Fatal("tick ran nothing")
	}

	got, err := env.Stack.Repo.GetWorkUnit(env.Ctx, u.ID)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if got.Status != domain.UnitCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatal("timestamps not stamped")
	}

	summary, err := env.Stack.Repo.GetWorkSummary(env.Ctx, u.ID)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if !summary.Success {
		t.Fatalf("summary failed: %v", summary.Error)
	}
	// reflect 0.10 + journal 0.15
	if summary.ActualCost != 0.25 {
		t.Fatalf("actual cost = %.2f, want 0.25", summary.ActualCost)
	}
	if len(summary.ActionResults) != 2 {
		t.Fatalf("action results = %d, want 2", len(summary.ActionResults))
	}
	for _, r := range summary.ActionResults {
		if !r.Success {
			t.Fatalf("action %s failed: %s", r.ActionID, r.Error)
		}
	}

	entries, err := env.Stack.Repo.ListBudgetEntries(env.Ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("list budget entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("budget entries = %d, want 2", len(entries))
	}
	if snap := env.Stack.Ledger.Snapshot(); snap.SpentUSD != 0.25 {
		t.Fatalf("ledger spent = %.2f, want 0.25", snap.SpentUSD)
	}
}

func TestFailedActionAbortsSequence(t *testing.T) {
	cfg := config.Default()
	cfg.Actions = append(cfg.Actions, config.ActionSpec{
		ID: "broken", Name: "Broken step", Category: "growth", Handler: "builtin:fail",
	})
	cfg.Templates = append(cfg.Templates, config.TemplateSpec{
		ID: "fragile", Name: "Fragile", Category: "growth",
		Actions: []string{"reflect", "broken", "journal"},
	})
	env := newTestEnv(t, cfg)
	u := env.mustEnqueue(t, "fragile", domain.PhaseMorning, 0)

	env.tick(t)

	summary, err := env.Stack.Repo.GetWorkSummary(env.Ctx, u.ID)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if summary.Success {
		t.Fatal("summary should be failed")
	}
	// results stop at the failing action; journal never runs
	if len(summary.ActionResults) != 2 {
		t.Fatalf("action results = %d, want 2", len(summary.ActionResults))
	}
	if summary.ActionResults[1].ActionID != "broken" || summary.ActionResults[1].Success {
		t.Fatalf("last result should be the failure: %+v", summary.ActionResults[1])
	}
	// only the successful reflect action was charged
	if summary.ActualCost != 0.10 {
		t.Fatalf("actual cost = %.2f, want 0.10", summary.ActualCost)
	}
	got, _ := env.Stack.Repo.GetWorkUnit(env.Ctx, u.ID)
	if got.Status != domain.UnitFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
}

func TestUnaffordableUnitIsDeferred(t *testing.T) {
	cfg := config.Default()
	cfg.Budget.DailyLimitUSD = 0.05 // below the cheapest first action
	env := newTestEnv(t, cfg)
	u := env.mustEnqueue(t, "daily_reflection", domain.PhaseMorning, 0)

	if !env.tick(t) {
		t.Fatal("tick ran nothing")
	}

	// no summary, unit back in its queue in queued state
	if _, err := env.Stack.Repo.GetWorkSummary(env.Ctx, u.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want no summary, got %v", err)
	}
	got, err := env.Stack.Repo.GetWorkUnit(env.Ctx, u.ID)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if got.Status != domain.UnitQueued {
		t.Fatalf("status = %q, want queued", got.Status)
	}
	pending := env.Stack.Scheduler.Peek(domain.PhaseMorning)
	if len(pending) != 1 || pending[0].ID != u.ID {
		t.Fatalf("unit not requeued: %+v", pending)
	}

	evts, err := env.Stack.Repo.ListEvents(env.Ctx, repo.EventFilter{Type: events.TypeUnitDeferred})
	if err != nil || len(evts) != 1 {
		t.Fatalf("deferred events = %d (%v), want 1", len(evts), err)
	}
}

func TestBudgetExhaustionMidSequenceFailsUnit(t *testing.T) {
	cfg := config.Default()
	cfg.Budget.DailyLimitUSD = 0.12 // covers reflect (0.10) but not journal (0.15)
	env := newTestEnv(t, cfg)
	u := env.mustEnqueue(t, "daily_reflection", domain.PhaseMorning, 0)

	env.tick(t)

	summary, err := env.Stack.Repo.GetWorkSummary(env.Ctx, u.ID)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if summary.Success {
		t.Fatal("summary should be failed")
	}
	if summary.Error == nil || !strings.Contains(*summary.Error, "budget exceeded") {
		t.Fatalf("error should name the budget: %v", summary.Error)
	}
	if len(summary.ActionResults) != 1 {
		t.Fatalf("action results = %d, want 1", len(summary.ActionResults))
	}
	if summary.ActualCost != 0.10 {
		t.Fatalf("actual cost = %.2f, want 0.10", summary.ActualCost)
	}
}

func TestSecondUnitWaitsWhenBudgetCannotCoverIt(t *testing.T) {
	cfg := config.Default()
	cfg.Budget.DailyLimitUSD = 5.00
	cfg.Actions = append(cfg.Actions,
		config.ActionSpec{ID: "deep_research", Name: "Deep research", Category: "research", Handler: "builtin:note", CostUSD: 3.00},
		config.ActionSpec{ID: "long_reflection", Name: "Long reflection", Category: "reflection", Handler: "builtin:note", CostUSD: 2.50},
	)
	cfg.Templates = append(cfg.Templates,
		config.TemplateSpec{ID: "unit_a", Name: "A", Category: "research", Actions: []string{"deep_research"}},
		config.TemplateSpec{ID: "unit_b", Name: "B", Category: "reflection", Actions: []string{"long_reflection"}},
	)
	env := newTestEnv(t, cfg)
	a := env.mustEnqueue(t, "unit_a", domain.PhaseMorning, 2)
	b := env.mustEnqueue(t, "unit_b", domain.PhaseMorning, 1)

	env.tick(t)
	summary, err := env.Stack.Repo.GetWorkSummary(env.Ctx, a.ID)
	if err != nil || !summary.Success {
		t.Fatalf("unit A should complete: %v %+v", err, summary)
	}
	if snap := env.Stack.Ledger.Snapshot(); snap.SpentUSD != 3.00 {
		t.Fatalf("spent = %.2f, want 3.00", snap.SpentUSD)
	}

	// 3.00 + 2.50 passes the 5.00 limit, so B waits instead of running
	env.tick(t)
	if _, err := env.Stack.Repo.GetWorkSummary(env.Ctx, b.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unit B should not have a summary: %v", err)
	}
	got, _ := env.Stack.Repo.GetWorkUnit(env.Ctx, b.ID)
	if got.Status != domain.UnitQueued {
		t.Fatalf("unit B status = %q, want queued", got.Status)
	}
	if snap := env.Stack.Ledger.Snapshot(); snap.SpentUSD != 3.00 {
		t.Fatalf("spent changed to %.2f on refusal", snap.SpentUSD)
	}
}

func TestTickSkipsOtherPhases(t *testing.T) {
	env := newTestEnv(t, nil)
	// current phase is morning; queue work for the evening
	env.mustEnqueue(t, "wind_down", domain.PhaseEvening, 0)
	if env.tick(t) {
		t.Fatal("tick should not run evening work during the morning")
	}
	if got := env.Stack.Scheduler.Peek(domain.PhaseEvening); len(got) != 1 {
		t.Fatalf("evening queue drained: %d", len(got))
	}
}

func TestCancelQueuedUnit(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.mustEnqueue(t, "daily_reflection", domain.PhaseMorning, 0)

	if err := env.Stack.Scheduler.Cancel(env.Ctx, u.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, err := env.Stack.Repo.GetWorkUnit(env.Ctx, u.ID)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if got.Status != domain.UnitFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	summary, err := env.Stack.Repo.GetWorkSummary(env.Ctx, u.ID)
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if summary.Error == nil || !strings.Contains(*summary.Error, "canceled") {
		t.Fatalf("summary should record cancellation: %v", summary.Error)
	}
	// the queue no longer holds it
	if env.tick(t) {
		t.Fatal("canceled unit still ran")
	}
	// canceling a finished unit errors
	if err := env.Stack.Scheduler.Cancel(env.Ctx, u.ID); err == nil {
		t.Fatal("cancel of finished unit should error")
	}
}

func TestPauseAndResume(t *testing.T) {
	env := newTestEnv(t, nil)
	s := env.Stack.Scheduler
	if s.Paused() {
		t.Fatal("fresh scheduler should not be paused")
	}
	s.Pause(env.Ctx)
	s.Pause(env.Ctx) // idempotent
	if !s.Paused() {
		t.Fatal("pause did not stick")
	}
	s.Resume(env.Ctx)
	if s.Paused() {
		t.Fatal("resume did not stick")
	}
	evts, err := env.Stack.Repo.ListEvents(env.Ctx, repo.EventFilter{Type: events.TypeSchedulerPaused})
	if err != nil || len(evts) != 1 {
		t.Fatalf("paused events = %d (%v), want 1", len(evts), err)
	}
}

func TestEnqueueUnknownTemplate(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.Stack.Scheduler.Enqueue(env.Ctx, "no_such", domain.PhaseMorning, 0); err == nil {
		t.Fatal("enqueue of unknown template should error")
	}
	if _, err := env.Stack.Scheduler.Enqueue(env.Ctx, "daily_reflection", domain.Phase("dusk"), 0); err == nil {
		t.Fatal("enqueue for invalid phase should error")
	}
}

func TestEnqueueFallsBackToTemplatePriority(t *testing.T) {
	env := newTestEnv(t, nil)
	u := env.mustEnqueue(t, "daily_reflection", domain.PhaseMorning, 0)
	if u.Priority != 2 {
		t.Fatalf("priority = %d, want template default 2", u.Priority)
	}
	override := env.mustEnqueue(t, "daily_reflection", domain.PhaseMorning, 7)
	if override.Priority != 7 {
		t.Fatalf("priority = %d, want override 7", override.Priority)
	}
}

func TestRestoreRebuildsQueueAndLedger(t *testing.T) {
	env := newTestEnv(t, nil)
	completed := env.mustEnqueue(t, "daily_reflection", domain.PhaseMorning, 0)
	env.tick(t)
	pending := env.mustEnqueue(t, "research_block", domain.PhaseAfternoon, 0)

	// second stack over the same database simulates a restart
	cfg := config.Default()
	stack2, verrs, err := app.Build(env.Stack.Repo.DB, cfg, app.Options{Now: func() time.Time { return env.Now }})
	if err != nil || len(verrs) > 0 {
		t.Fatalf("rebuild: %v %v", err, verrs)
	}
	stack2.Tracker.Observe()
	if err := stack2.Scheduler.Restore(env.Ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got := stack2.Scheduler.Peek(domain.PhaseAfternoon)
	if len(got) != 1 || got[0].ID != pending.ID {
		t.Fatalf("pending unit not restored: %+v", got)
	}
	if len(stack2.Scheduler.Peek(domain.PhaseMorning)) != 0 {
		t.Fatalf("completed unit %s restored as pending", completed.ID)
	}
	// spend from before the restart is not available again
	if snap := stack2.Ledger.Snapshot(); snap.SpentUSD != 0.25 {
		t.Fatalf("restored spend = %.2f, want 0.25", snap.SpentUSD)
	}
}

func TestCurrentStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mustEnqueue(t, "daily_reflection", domain.PhaseMorning, 0)
	st, err := env.Stack.Scheduler.CurrentStatus(env.Ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Phase != domain.PhaseMorning {
		t.Fatalf("phase = %s", st.Phase)
	}
	if st.QueueDepths[domain.PhaseMorning] != 1 {
		t.Fatalf("queue depths = %v", st.QueueDepths)
	}
	if st.UnitCounts["queued"] != 1 {
		t.Fatalf("unit counts = %v", st.UnitCounts)
	}
	if st.Budget.LimitUSD != 5.00 {
		t.Fatalf("budget limit = %.2f", st.Budget.LimitUSD)
	}
}

func TestPhaseChangePlansWork(t *testing.T) {
	env := newTestEnv(t, nil)
	// Start wires the phase-change listener; run it briefly with a ticker
	// that never fires before cancel.
	ctx, cancel := context.WithCancel(env.Ctx)
	go env.Stack.Scheduler.Start(ctx)
	defer cancel()
	time.Sleep(20 * time.Millisecond)

	// morning -> afternoon plans the research block
	env.Now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	env.Stack.Tracker.Observe()

	pending := env.Stack.Scheduler.Peek(domain.PhaseAfternoon)
	if len(pending) != 1 || pending[0].TemplateID != "research_block" {
		t.Fatalf("planned units = %+v", pending)
	}
	evts, err := env.Stack.Repo.ListEvents(env.Ctx, repo.EventFilter{Type: events.TypePhaseChanged})
	if err != nil || len(evts) != 1 {
		t.Fatalf("phase change events = %d (%v), want 1", len(evts), err)
	}
}
