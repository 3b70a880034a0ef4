// Package planner decides which templates to enqueue when a phase begins.
package planner

import (
	"dayline/internal/config"
	"dayline/internal/domain"
)

// Pick names one template to instantiate and the priority it should carry,
// which may differ from the template's default.
type Pick struct {
	TemplateID string
	Priority   int
}

// Policy is the pluggable planning strategy, consulted once per phase
// transition.
type Policy interface {
	PlanForPhase(phase domain.Phase, available []domain.WorkUnitTemplate) []Pick
}

// Static plans from the config's per-phase table. Unknown templates have
// already been rejected at startup validation, so no filtering happens
// here.
type Static struct {
	plan map[domain.Phase][]Pick
}

// NewStatic builds the default policy from config.
func NewStatic(plan map[string][]config.PlanEntry) *Static {
	byPhase := map[domain.Phase][]Pick{}
	for phase, entries := range plan {
		picks := make([]Pick, 0, len(entries))
		for _, e := range entries {
			picks = append(picks, Pick{TemplateID: e.Template, Priority: e.Priority})
		}
		byPhase[domain.Phase(phase)] = picks
	}
	return &Static{plan: byPhase}
}

func (s *Static) PlanForPhase(phase domain.Phase, available []domain.WorkUnitTemplate) []Pick {
	picks := s.plan[phase]
	out := make([]Pick, len(picks))
	copy(out, picks)
	return out
}

// Nop plans nothing; used when the scheduler runs on manual enqueues only.
type Nop struct{}

func (Nop) PlanForPhase(domain.Phase, []domain.WorkUnitTemplate) []Pick { return nil }
