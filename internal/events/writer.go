package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types emitted by the scheduler and its collaborators.
const (
	TypePhaseChanged     = "phase.changed"
	TypeUnitEnqueued     = "unit.enqueued"
	TypeUnitStarted      = "unit.started"
	TypeUnitCompleted    = "unit.completed"
	TypeUnitFailed       = "unit.failed"
	TypeUnitDeferred     = "unit.deferred"
	TypeUnitCanceled     = "unit.canceled"
	TypeBudgetDeducted   = "budget.deducted"
	TypeBudgetReset      = "budget.reset"
	TypeSchedulerPaused  = "scheduler.paused"
	TypeSchedulerResumed = "scheduler.resumed"
)

// Writer appends to the event diary. Append is expected to run inside the
// same transaction as the mutation it records.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

// AppendNoTx opens a short transaction for callers without one in flight.
func (w Writer) AppendNoTx(ctx context.Context, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	tx, err := w.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
