package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dayline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- work units ---

func (r Repo) InsertWorkUnit(ctx context.Context, tx *sql.Tx, u domain.WorkUnit) error {
	_, err := exec(ctx, r.DB, tx, `INSERT INTO work_units(id,template_id,target_phase,status,priority,queued_at,started_at,completed_at) VALUES (?,?,?,?,?,?,?,?)`,
		u.ID, u.TemplateID, string(u.TargetPhase), u.Status, u.Priority, u.QueuedAt, u.StartedAt, u.CompletedAt)
	return err
}

func (r Repo) UpdateWorkUnit(ctx context.Context, tx *sql.Tx, u domain.WorkUnit) error {
	res, err := exec(ctx, r.DB, tx, `UPDATE work_units SET status=?, priority=?, queued_at=?, started_at=?, completed_at=? WHERE id=?`,
		u.Status, u.Priority, u.QueuedAt, u.StartedAt, u.CompletedAt, u.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return err
}

func scanWorkUnit(scan func(dest ...any) error) (domain.WorkUnit, error) {
	var u domain.WorkUnit
	var phase string
	var started, completed sql.NullString
	err := scan(&u.ID, &u.TemplateID, &phase, &u.Status, &u.Priority, &u.QueuedAt, &started, &completed)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.TargetPhase = domain.Phase(phase)
	if started.Valid {
		u.StartedAt = &started.String
	}
	if completed.Valid {
		u.CompletedAt = &completed.String
	}
	return u, nil
}

const workUnitCols = `id,template_id,target_phase,status,priority,queued_at,started_at,completed_at`

func (r Repo) GetWorkUnit(ctx context.Context, id string) (domain.WorkUnit, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+workUnitCols+` FROM work_units WHERE id=?`, id)
	return scanWorkUnit(row.Scan)
}

// WorkUnitFilter narrows ListWorkUnits.
type WorkUnitFilter struct {
	Phase  string
	Status string
	Limit  int
}

func (r Repo) ListWorkUnits(ctx context.Context, f WorkUnitFilter) ([]domain.WorkUnit, error) {
	query := `SELECT ` + workUnitCols + ` FROM work_units`
	var args []any
	var where []string
	if f.Phase != "" {
		where = append(where, `target_phase=?`)
		args = append(args, f.Phase)
	}
	if f.Status != "" {
		where = append(where, `status=?`)
		args = append(args, f.Status)
	}
	for i, w := range where {
		if i == 0 {
			query += ` WHERE ` + w
		} else {
			query += ` AND ` + w
		}
	}
	query += ` ORDER BY queued_at DESC, id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []domain.WorkUnit
	for rows.Next() {
		u, err := scanWorkUnit(rows.Scan)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// PendingWorkUnits returns queued units, oldest first, used to rebuild the
// in-memory queues after a restart.
func (r Repo) PendingWorkUnits(ctx context.Context) ([]domain.WorkUnit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+workUnitCols+` FROM work_units WHERE status=? ORDER BY queued_at, id`, domain.UnitQueued)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var units []domain.WorkUnit
	for rows.Next() {
		u, err := scanWorkUnit(rows.Scan)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (r Repo) CountWorkUnitsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM work_units GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- work summaries ---

// InsertWorkSummary persists the summary together with its ordered action
// results in one transaction.
func (r Repo) InsertWorkSummary(ctx context.Context, tx *sql.Tx, s domain.WorkSummary) error {
	_, err := exec(ctx, r.DB, tx, `INSERT INTO work_summaries(work_unit_id,template_id,phase,started_at,completed_at,success,error,actual_cost_usd) VALUES (?,?,?,?,?,?,?,?)`,
		s.WorkUnitID, s.TemplateID, string(s.Phase), s.StartedAt, s.CompletedAt, boolInt(s.Success), s.Error, s.ActualCost)
	if err != nil {
		return err
	}
	for i, res := range s.ActionResults {
		_, err := exec(ctx, r.DB, tx, `INSERT INTO action_results(work_unit_id,seq,action_id,success,output,cost_usd,error) VALUES (?,?,?,?,?,?,?)`,
			s.WorkUnitID, i, res.ActionID, boolInt(res.Success), nullable(res.Output), res.CostUSD, nullable(res.Error))
		if err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetWorkSummary(ctx context.Context, workUnitID string) (domain.WorkSummary, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT work_unit_id,template_id,phase,started_at,completed_at,success,error,actual_cost_usd FROM work_summaries WHERE work_unit_id=?`, workUnitID)
	s, err := scanSummary(row.Scan)
	if err != nil {
		return s, err
	}
	s.ActionResults, err = r.listActionResults(ctx, workUnitID)
	return s, err
}

func scanSummary(scan func(dest ...any) error) (domain.WorkSummary, error) {
	var s domain.WorkSummary
	var phase string
	var success int
	var errMsg sql.NullString
	err := scan(&s.WorkUnitID, &s.TemplateID, &phase, &s.StartedAt, &s.CompletedAt, &success, &errMsg, &s.ActualCost)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Phase = domain.Phase(phase)
	s.Success = success != 0
	if errMsg.Valid {
		s.Error = &errMsg.String
	}
	return s, nil
}

func (r Repo) listActionResults(ctx context.Context, workUnitID string) ([]domain.ActionResult, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT action_id,success,COALESCE(output,''),cost_usd,COALESCE(error,'') FROM action_results WHERE work_unit_id=? ORDER BY seq`, workUnitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []domain.ActionResult
	for rows.Next() {
		var res domain.ActionResult
		var success int
		if err := rows.Scan(&res.ActionID, &success, &res.Output, &res.CostUSD, &res.Error); err != nil {
			return nil, err
		}
		res.Success = success != 0
		results = append(results, res)
	}
	return results, rows.Err()
}

// SummaryFilter narrows ListWorkSummaries.
type SummaryFilter struct {
	Phase   string
	Success *bool
	Limit   int
}

func (r Repo) ListWorkSummaries(ctx context.Context, f SummaryFilter) ([]domain.WorkSummary, error) {
	query := `SELECT work_unit_id,template_id,phase,started_at,completed_at,success,error,actual_cost_usd FROM work_summaries`
	var args []any
	var where []string
	if f.Phase != "" {
		where = append(where, `phase=?`)
		args = append(args, f.Phase)
	}
	if f.Success != nil {
		where = append(where, `success=?`)
		args = append(args, boolInt(*f.Success))
	}
	for i, w := range where {
		if i == 0 {
			query += ` WHERE ` + w
		} else {
			query += ` AND ` + w
		}
	}
	query += ` ORDER BY completed_at DESC, work_unit_id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var summaries []domain.WorkSummary
	for rows.Next() {
		s, err := scanSummary(rows.Scan)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].ActionResults, err = r.listActionResults(ctx, summaries[i].WorkUnitID)
		if err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

// --- budget ---

func (r Repo) InsertBudgetEntry(ctx context.Context, tx *sql.Tx, e domain.BudgetEntry) error {
	_, err := exec(ctx, r.DB, tx, `INSERT INTO budget_entries(day,ts,category,amount_usd,balance_usd,work_unit_id,action_id) VALUES (?,?,?,?,?,?,?)`,
		e.Day, e.TS, e.Category, e.AmountUSD, e.BalanceUSD, nullable(e.WorkUnitID), nullable(e.ActionID))
	return err
}

func (r Repo) ListBudgetEntries(ctx context.Context, day string) ([]domain.BudgetEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,day,ts,category,amount_usd,balance_usd,COALESCE(work_unit_id,''),COALESCE(action_id,'') FROM budget_entries WHERE day=? ORDER BY id`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []domain.BudgetEntry
	for rows.Next() {
		var e domain.BudgetEntry
		if err := rows.Scan(&e.ID, &e.Day, &e.TS, &e.Category, &e.AmountUSD, &e.BalanceUSD, &e.WorkUnitID, &e.ActionID); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SpendForDay sums persisted spend for a calendar day, total and per
// category. Used to prime the ledger on startup.
func (r Repo) SpendForDay(ctx context.Context, day string) (float64, map[string]float64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT category, SUM(amount_usd) FROM budget_entries WHERE day=? GROUP BY category`, day)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()
	var total float64
	byCategory := map[string]float64{}
	for rows.Next() {
		var cat string
		var sum float64
		if err := rows.Scan(&cat, &sum); err != nil {
			return 0, nil, err
		}
		byCategory[cat] = sum
		total += sum
	}
	return total, byCategory, rows.Err()
}

// --- events ---

// EventFilter narrows ListEvents.
type EventFilter struct {
	Type     string
	EntityID string
	Limit    int
}

func (r Repo) ListEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var args []any
	var where []string
	if f.Type != "" {
		where = append(where, `type=?`)
		args = append(args, f.Type)
	}
	if f.EntityID != "" {
		where = append(where, `entity_id=?`)
		args = append(args, f.EntityID)
	}
	for i, w := range where {
		if i == 0 {
			query += ` WHERE ` + w
		} else {
			query += ` AND ` + w
		}
	}
	query += ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- helpers ---

func exec(ctx context.Context, db *sql.DB, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return db.ExecContext(ctx, query, args...)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
