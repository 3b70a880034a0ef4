package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"dayline/internal/domain"
)

// Config models dayline.yml: the declarative source for the action catalog,
// work unit templates, phase boundaries, budget limits and plan policy.
// Loaded once at startup; the scheduler never mutates it.
type Config struct {
	Vessel struct {
		ID string `yaml:"id"`
	} `yaml:"vessel"`
	Enabled bool `yaml:"enabled"`
	Budget  struct {
		DailyLimitUSD     float64            `yaml:"daily_limit_usd"`
		CategoryLimitsUSD map[string]float64 `yaml:"category_limits_usd"`
	} `yaml:"budget"`
	// Phases maps each phase to its start time ("HH:MM", local clock).
	Phases    map[string]string `yaml:"phases"`
	Scheduler struct {
		TickIntervalSeconds int `yaml:"tick_interval_seconds"`
		PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	} `yaml:"scheduler"`
	Actions   []ActionSpec   `yaml:"actions"`
	Templates []TemplateSpec `yaml:"templates"`
	// Plan maps a phase to the templates enqueued on entry to that phase.
	Plan map[string][]PlanEntry `yaml:"plan"`
}

type ActionSpec struct {
	ID              string  `yaml:"id"`
	Name            string  `yaml:"name"`
	Category        string  `yaml:"category"`
	Handler         string  `yaml:"handler"`
	CostUSD         float64 `yaml:"estimated_cost_usd"`
	DurationMinutes int     `yaml:"estimated_duration_minutes"`
	Priority        int     `yaml:"priority"`
}

type TemplateSpec struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Category string   `yaml:"category"`
	Actions  []string `yaml:"actions"`
	Priority int      `yaml:"priority"`
}

type PlanEntry struct {
	Template string `yaml:"template"`
	Priority int    `yaml:"priority"`
}

// ValidationError describes one startup-time configuration defect. Scope
// names the config section, ID the offending entry, Ref the unresolved
// reference when there is one.
type ValidationError struct {
	Scope string
	ID    string
	Ref   string
	Msg   string
}

func (e ValidationError) Error() string {
	switch {
	case e.ID != "" && e.Ref != "":
		return fmt.Sprintf("%s %s: %s (%s)", e.Scope, e.ID, e.Msg, e.Ref)
	case e.ID != "":
		return fmt.Sprintf("%s %s: %s", e.Scope, e.ID, e.Msg)
	default:
		return fmt.Sprintf("%s: %s", e.Scope, e.Msg)
	}
}

// Join collapses a list of validation errors into one error, nil when empty.
func Join(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

const FileName = "dayline.yml"

// Path returns the config location for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads the workspace config, falling back to defaults when the file
// does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses raw config bytes.
func FromYAML(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// ToYAML renders the config back out, used by `dl config show/init`.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks structural invariants: unique ids, sane amounts, phase
// boundaries that parse, plan entries that reference known templates.
// Cross-checking template action sequences against the registry happens in
// the template store, after handlers are bound.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	if c.Budget.DailyLimitUSD <= 0 {
		errs = append(errs, ValidationError{Scope: "budget", Msg: "daily_limit_usd must be positive"})
	}
	for cat, limit := range c.Budget.CategoryLimitsUSD {
		if limit < 0 {
			errs = append(errs, ValidationError{Scope: "budget", ID: cat, Msg: "category limit must not be negative"})
		}
	}
	errs = append(errs, c.validatePhases()...)
	seenActions := map[string]bool{}
	for _, a := range c.Actions {
		if a.ID == "" {
			errs = append(errs, ValidationError{Scope: "action", Msg: "id is required"})
			continue
		}
		if seenActions[a.ID] {
			errs = append(errs, ValidationError{Scope: "action", ID: a.ID, Msg: "duplicate id"})
		}
		seenActions[a.ID] = true
		if a.Handler == "" {
			errs = append(errs, ValidationError{Scope: "action", ID: a.ID, Msg: "handler is required"})
		}
		if a.CostUSD < 0 {
			errs = append(errs, ValidationError{Scope: "action", ID: a.ID, Msg: "estimated_cost_usd must not be negative"})
		}
	}
	seenTemplates := map[string]bool{}
	for _, t := range c.Templates {
		if t.ID == "" {
			errs = append(errs, ValidationError{Scope: "template", Msg: "id is required"})
			continue
		}
		if seenTemplates[t.ID] {
			errs = append(errs, ValidationError{Scope: "template", ID: t.ID, Msg: "duplicate id"})
		}
		seenTemplates[t.ID] = true
		if len(t.Actions) == 0 {
			errs = append(errs, ValidationError{Scope: "template", ID: t.ID, Msg: "action sequence is empty"})
		}
	}
	for phase, entries := range c.Plan {
		if !domain.Phase(phase).Valid() {
			errs = append(errs, ValidationError{Scope: "plan", ID: phase, Msg: "unknown phase"})
			continue
		}
		for _, entry := range entries {
			if !seenTemplates[entry.Template] {
				errs = append(errs, ValidationError{Scope: "plan", ID: phase, Ref: entry.Template, Msg: "unknown template"})
			}
		}
	}
	return errs
}

func (c *Config) validatePhases() []ValidationError {
	var errs []ValidationError
	if len(c.Phases) == 0 {
		errs = append(errs, ValidationError{Scope: "phases", Msg: "phase boundaries are required"})
		return errs
	}
	for _, p := range domain.Phases {
		raw, ok := c.Phases[string(p)]
		if !ok {
			errs = append(errs, ValidationError{Scope: "phases", ID: string(p), Msg: "start time missing"})
			continue
		}
		if _, err := ParseClock(raw); err != nil {
			errs = append(errs, ValidationError{Scope: "phases", ID: string(p), Msg: err.Error()})
		}
	}
	for name := range c.Phases {
		if !domain.Phase(name).Valid() {
			errs = append(errs, ValidationError{Scope: "phases", ID: name, Msg: "unknown phase"})
		}
	}
	return errs
}

// ParseClock parses "HH:MM" into minutes past midnight.
func ParseClock(raw string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(raw), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", raw)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", raw)
	}
	return h*60 + m, nil
}

// ActionDefinitions converts the catalog section into domain records.
func (c *Config) ActionDefinitions() []domain.ActionDefinition {
	defs := make([]domain.ActionDefinition, 0, len(c.Actions))
	for _, a := range c.Actions {
		defs = append(defs, domain.ActionDefinition{
			ID:            a.ID,
			Name:          a.Name,
			Category:      a.Category,
			HandlerRef:    a.Handler,
			EstimatedCost: a.CostUSD,
			EstimatedMins: a.DurationMinutes,
			Priority:      a.Priority,
		})
	}
	return defs
}

// TemplateDefinitions converts the template section into domain records,
// filling estimated totals from the catalog.
func (c *Config) TemplateDefinitions() []domain.WorkUnitTemplate {
	byID := map[string]ActionSpec{}
	for _, a := range c.Actions {
		byID[a.ID] = a
	}
	tpls := make([]domain.WorkUnitTemplate, 0, len(c.Templates))
	for _, t := range c.Templates {
		var cost float64
		var mins int
		for _, id := range t.Actions {
			if a, ok := byID[id]; ok {
				cost += a.CostUSD
				mins += a.DurationMinutes
			}
		}
		tpls = append(tpls, domain.WorkUnitTemplate{
			ID:             t.ID,
			Name:           t.Name,
			Category:       t.Category,
			ActionSequence: append([]string(nil), t.Actions...),
			EstimatedCost:  cost,
			EstimatedMins:  mins,
			Priority:       t.Priority,
		})
	}
	return tpls
}

// Default returns the seed configuration used when no dayline.yml exists.
func Default() *Config {
	c := &Config{}
	c.Vessel.ID = "vessel"
	c.Enabled = true
	c.Budget.DailyLimitUSD = 5.00
	c.Phases = map[string]string{
		"morning":   "06:00",
		"afternoon": "12:00",
		"evening":   "18:00",
		"night":     "22:00",
	}
	c.Scheduler.TickIntervalSeconds = 15
	c.Scheduler.PollIntervalSeconds = 30
	c.Actions = []ActionSpec{
		{ID: "reflect", Name: "Reflection pass", Category: "reflection", Handler: "builtin:note", CostUSD: 0.10, DurationMinutes: 10, Priority: 2},
		{ID: "research", Name: "Research reading", Category: "research", Handler: "builtin:note", CostUSD: 0.25, DurationMinutes: 20, Priority: 2},
		{ID: "journal", Name: "Journal entry", Category: "growth", Handler: "builtin:note", CostUSD: 0.15, DurationMinutes: 15, Priority: 1},
		{ID: "rest", Name: "Idle pause", Category: "rest", Handler: "builtin:pause", CostUSD: 0, DurationMinutes: 5, Priority: 0},
	}
	c.Templates = []TemplateSpec{
		{ID: "daily_reflection", Name: "Daily reflection", Category: "reflection", Actions: []string{"reflect", "journal"}, Priority: 2},
		{ID: "research_block", Name: "Research block", Category: "research", Actions: []string{"research", "reflect"}, Priority: 2},
		{ID: "wind_down", Name: "Wind down", Category: "rest", Actions: []string{"journal", "rest"}, Priority: 1},
	}
	c.Plan = map[string][]PlanEntry{
		"morning":   {{Template: "daily_reflection", Priority: 3}},
		"afternoon": {{Template: "research_block", Priority: 2}},
		"evening":   {{Template: "wind_down", Priority: 1}},
	}
	return c
}
