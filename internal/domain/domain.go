package domain

// Phase is a named time-of-day window. Exactly one phase is current at any
// moment; transitions are strictly cyclic.
type Phase string

const (
	PhaseMorning   Phase = "morning"
	PhaseAfternoon Phase = "afternoon"
	PhaseEvening   Phase = "evening"
	PhaseNight     Phase = "night"
)

// Phases lists all phases in cycle order.
var Phases = []Phase{PhaseMorning, PhaseAfternoon, PhaseEvening, PhaseNight}

// Next returns the phase that follows p in the daily cycle.
func (p Phase) Next() Phase {
	switch p {
	case PhaseMorning:
		return PhaseAfternoon
	case PhaseAfternoon:
		return PhaseEvening
	case PhaseEvening:
		return PhaseNight
	default:
		return PhaseMorning
	}
}

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseMorning, PhaseAfternoon, PhaseEvening, PhaseNight:
		return true
	}
	return false
}

// ActionDefinition is the static description of one executable action.
// Definitions are loaded once at startup and immutable afterwards.
type ActionDefinition struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	HandlerRef    string  `json:"handler_ref"`
	EstimatedCost float64 `json:"estimated_cost_usd"`
	EstimatedMins int     `json:"estimated_duration_minutes"`
	Priority      int     `json:"priority"`
}

// WorkUnitTemplate is a named, reusable definition of an action sequence.
type WorkUnitTemplate struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Category       string   `json:"category"`
	ActionSequence []string `json:"action_sequence"`
	EstimatedCost  float64  `json:"estimated_total_cost_usd"`
	EstimatedMins  int      `json:"estimated_total_duration_minutes"`
	Priority       int      `json:"priority"`
}

// WorkUnit statuses. queued -> running -> completed|failed; completed and
// failed are terminal. A running unit that defers on budget returns to
// queued without having executed anything.
const (
	UnitQueued    = "queued"
	UnitRunning   = "running"
	UnitCompleted = "completed"
	UnitFailed    = "failed"
)

// WorkUnit is one runtime instantiation of a template. Units are retained
// after completion as historical records.
type WorkUnit struct {
	ID          string  `json:"id"`
	TemplateID  string  `json:"template_id"`
	TargetPhase Phase   `json:"target_phase"`
	Status      string  `json:"status" enum:"queued,running,completed,failed"`
	Priority    int     `json:"priority"`
	QueuedAt    string  `json:"queued_at" format:"date-time"`
	StartedAt   *string `json:"started_at,omitempty" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`

	// Seq orders units enqueued within the same second; assigned by the
	// queue manager, never persisted.
	Seq uint64 `json:"-"`
}

// ActionResult is the outcome of one handler invocation.
type ActionResult struct {
	ActionID string  `json:"action_id"`
	Success  bool    `json:"success"`
	Output   string  `json:"output,omitempty"`
	CostUSD  float64 `json:"cost_usd"`
	Error    string  `json:"error,omitempty"`
}

// WorkSummary is the persisted record of a finished WorkUnit. Created once
// at completion, immutable thereafter.
type WorkSummary struct {
	WorkUnitID    string         `json:"work_unit_id"`
	TemplateID    string         `json:"template_id"`
	Phase         Phase          `json:"phase"`
	StartedAt     string         `json:"started_at" format:"date-time"`
	CompletedAt   string         `json:"completed_at" format:"date-time"`
	Success       bool           `json:"success"`
	Error         *string        `json:"error,omitempty"`
	ActualCost    float64        `json:"actual_cost_usd"`
	ActionResults []ActionResult `json:"action_results"`
}

// BudgetEntry is one row in the daily spend ledger.
type BudgetEntry struct {
	ID         int64   `json:"id"`
	Day        string  `json:"day"`
	TS         string  `json:"ts" format:"date-time"`
	Category   string  `json:"category"`
	AmountUSD  float64 `json:"amount_usd"`
	BalanceUSD float64 `json:"balance_usd"`
	WorkUnitID string  `json:"work_unit_id,omitempty"`
	ActionID   string  `json:"action_id,omitempty"`
}

// BudgetSnapshot is a read-only view of the ledger at a point in time.
type BudgetSnapshot struct {
	Day        string             `json:"day"`
	LimitUSD   float64            `json:"daily_limit_usd"`
	SpentUSD   float64            `json:"spent_usd"`
	ByCategory map[string]float64 `json:"spent_by_category"`
}

// Event is one entry in the append-only diary of scheduler activity.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey authenticates operators against the reporting API.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
