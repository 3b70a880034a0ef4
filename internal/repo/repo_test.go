package repo_test

import (
	"context"
	"errors"
	"testing"

	"dayline/internal/db"
	"dayline/internal/domain"
	"dayline/internal/migrate"
	"dayline/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, context.Context) {
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
	return repo.Repo{DB: conn}, context.Background()
}

func seedUnit(t *testing.T, r repo.Repo, ctx context.Context, id string, phase domain.Phase, status string) domain.WorkUnit {
	t.Helper()
	u := domain.WorkUnit{
		ID:          id,
		TemplateID:  "daily_reflection",
		TargetPhase: phase,
		Status:      status,
		Priority:    1,
		QueuedAt:    "2026-03-02T09:00:00Z",
	}
	if err := r.InsertWorkUnit(ctx, nil, u); err != nil {
		t.Fatalf("insert unit %s: %v", id, err)
	}
	return u
}

func TestWorkUnitRoundTrip(t *testing.T) {
	r, ctx := newTestRepo(t)
	u := seedUnit(t, r, ctx, "u1", domain.PhaseMorning, domain.UnitQueued)

	got, err := r.GetWorkUnit(ctx, u.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TargetPhase != domain.PhaseMorning || got.Status != domain.UnitQueued {
		t.Fatalf("round trip lost fields: %+v", got)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Fatalf("null timestamps materialized: %+v", got)
	}

	started := "2026-03-02T09:05:00Z"
	got.Status = domain.UnitRunning
	got.StartedAt = &started
	if err := r.UpdateWorkUnit(ctx, nil, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = r.GetWorkUnit(ctx, u.ID)
	if got.Status != domain.UnitRunning || got.StartedAt == nil || *got.StartedAt != started {
		t.Fatalf("update lost fields: %+v", got)
	}
}

func TestGetWorkUnitNotFound(t *testing.T) {
	r, ctx := newTestRepo(t)
	if _, err := r.GetWorkUnit(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	err := r.UpdateWorkUnit(ctx, nil, domain.WorkUnit{ID: "missing", Status: domain.UnitFailed})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("update of missing unit: %v", err)
	}
}

func TestListWorkUnitsFilters(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedUnit(t, r, ctx, "m1", domain.PhaseMorning, domain.UnitQueued)
	seedUnit(t, r, ctx, "m2", domain.PhaseMorning, domain.UnitCompleted)
	seedUnit(t, r, ctx, "e1", domain.PhaseEvening, domain.UnitQueued)

	units, err := r.ListWorkUnits(ctx, repo.WorkUnitFilter{Phase: "morning"})
	if err != nil || len(units) != 2 {
		t.Fatalf("phase filter: %d (%v)", len(units), err)
	}
	units, err = r.ListWorkUnits(ctx, repo.WorkUnitFilter{Status: domain.UnitQueued})
	if err != nil || len(units) != 2 {
		t.Fatalf("status filter: %d (%v)", len(units), err)
	}
	units, err = r.ListWorkUnits(ctx, repo.WorkUnitFilter{Phase: "morning", Status: domain.UnitQueued})
	if err != nil || len(units) != 1 || units[0].ID != "m1" {
		t.Fatalf("combined filter: %+v (%v)", units, err)
	}

	pending, err := r.PendingWorkUnits(ctx)
	if err != nil || len(pending) != 2 {
		t.Fatalf("pending: %d (%v)", len(pending), err)
	}

	counts, err := r.CountWorkUnitsByStatus(ctx)
	if err != nil || counts[domain.UnitQueued] != 2 || counts[domain.UnitCompleted] != 1 {
		t.Fatalf("counts: %v (%v)", counts, err)
	}
}

func TestWorkSummaryWithActionResults(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedUnit(t, r, ctx, "u1", domain.PhaseMorning, domain.UnitCompleted)
	s := domain.WorkSummary{
		WorkUnitID:  "u1",
		TemplateID:  "daily_reflection",
		Phase:       domain.PhaseMorning,
		StartedAt:   "2026-03-02T09:00:00Z",
		CompletedAt: "2026-03-02T09:20:00Z",
		Success:     true,
		ActualCost:  0.25,
		ActionResults: []domain.ActionResult{
			{ActionID: "reflect", Success: true, Output: "ok", CostUSD: 0.10},
			{ActionID: "journal", Success: true, CostUSD: 0.15},
		},
	}
	if err := r.InsertWorkSummary(ctx, nil, s); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetWorkSummary(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Success || got.ActualCost != 0.25 {
		t.Fatalf("summary fields: %+v", got)
	}
	if len(got.ActionResults) != 2 || got.ActionResults[0].ActionID != "reflect" || got.ActionResults[1].ActionID != "journal" {
		t.Fatalf("action results out of order: %+v", got.ActionResults)
	}

	if _, err := r.GetWorkSummary(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListWorkSummariesSuccessFilter(t *testing.T) {
	r, ctx := newTestRepo(t)
	seedUnit(t, r, ctx, "ok", domain.PhaseMorning, domain.UnitCompleted)
	seedUnit(t, r, ctx, "bad", domain.PhaseMorning, domain.UnitFailed)
	errMsg := "action broken failed"
	for _, s := range []domain.WorkSummary{
		{WorkUnitID: "ok", TemplateID: "t", Phase: domain.PhaseMorning, StartedAt: "2026-03-02T09:00:00Z", CompletedAt: "2026-03-02T09:10:00Z", Success: true},
		{WorkUnitID: "bad", TemplateID: "t", Phase: domain.PhaseMorning, StartedAt: "2026-03-02T10:00:00Z", CompletedAt: "2026-03-02T10:10:00Z", Success: false, Error: &errMsg},
	} {
		if err := r.InsertWorkSummary(ctx, nil, s); err != nil {
			t.Fatalf("insert %s: %v", s.WorkUnitID, err)
		}
	}
	failed := false
	got, err := r.ListWorkSummaries(ctx, repo.SummaryFilter{Success: &failed})
	if err != nil || len(got) != 1 || got[0].WorkUnitID != "bad" {
		t.Fatalf("success filter: %+v (%v)", got, err)
	}
	if got[0].Error == nil || *got[0].Error != errMsg {
		t.Fatalf("error not persisted: %+v", got[0])
	}
	// newest first
	all, err := r.ListWorkSummaries(ctx, repo.SummaryFilter{})
	if err != nil || len(all) != 2 || all[0].WorkUnitID != "bad" {
		t.Fatalf("ordering: %+v (%v)", all, err)
	}
}

func TestBudgetEntriesAndSpendForDay(t *testing.T) {
	r, ctx := newTestRepo(t)
	entries := []domain.BudgetEntry{
		{Day: "2026-03-02", TS: "2026-03-02T09:00:00Z", Category: "research", AmountUSD: 0.25, BalanceUSD: 0.25},
		{Day: "2026-03-02", TS: "2026-03-02T10:00:00Z", Category: "reflection", AmountUSD: 0.50, BalanceUSD: 0.75},
		{Day: "2026-03-03", TS: "2026-03-03T09:00:00Z", Category: "research", AmountUSD: 1.00, BalanceUSD: 1.00},
	}
	for _, e := range entries {
		if err := r.InsertBudgetEntry(ctx, nil, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	day, err := r.ListBudgetEntries(ctx, "2026-03-02")
	if err != nil || len(day) != 2 {
		t.Fatalf("list: %d (%v)", len(day), err)
	}
	if day[0].Category != "research" || day[1].Category != "reflection" {
		t.Fatalf("insertion order lost: %+v", day)
	}
	total, byCategory, err := r.SpendForDay(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("spend: %v", err)
	}
	if total != 0.75 || byCategory["research"] != 0.25 || byCategory["reflection"] != 0.50 {
		t.Fatalf("spend = %.2f %v", total, byCategory)
	}
	// a day with no entries is zero, not an error
	total, byCategory, err = r.SpendForDay(ctx, "2026-03-04")
	if err != nil || total != 0 || len(byCategory) != 0 {
		t.Fatalf("empty day: %.2f %v (%v)", total, byCategory, err)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	r, ctx := newTestRepo(t)
	hash := repo.HashAPIKey("dk_secret")
	if err := r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k1", ActorID: "operator", Name: "ci", KeyHash: hash}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	key, err := r.GetAPIKeyByHash(ctx, hash)
	if err != nil || key.ActorID != "operator" {
		t.Fatalf("get by hash: %+v (%v)", key, err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey("dk_other")); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	keys, err := r.ListAPIKeys(ctx)
	if err != nil || len(keys) != 1 {
		t.Fatalf("list: %d (%v)", len(keys), err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, hash); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("key survived delete: %v", err)
	}
}
