package planner_test

import (
	"testing"

	"dayline/internal/config"
	"dayline/internal/domain"
	"dayline/internal/planner"
)

func TestStaticPlansPerPhase(t *testing.T) {
	p := planner.NewStatic(map[string][]config.PlanEntry{
		"morning": {{Template: "daily_reflection", Priority: 3}, {Template: "research_block", Priority: 1}},
		"evening": {{Template: "wind_down", Priority: 1}},
	})
	picks := p.PlanForPhase(domain.PhaseMorning, nil)
	if len(picks) != 2 || picks[0].TemplateID != "daily_reflection" || picks[0].Priority != 3 {
		t.Fatalf("morning picks: %+v", picks)
	}
	if got := p.PlanForPhase(domain.PhaseNight, nil); len(got) != 0 {
		t.Fatalf("unplanned phase should be empty: %+v", got)
	}
	// callers must not be able to mutate the plan
	picks[0].TemplateID = "mutated"
	again := p.PlanForPhase(domain.PhaseMorning, nil)
	if again[0].TemplateID != "daily_reflection" {
		t.Fatal("plan table mutated through a returned slice")
	}
}

func TestNopPlansNothing(t *testing.T) {
	if got := (planner.Nop{}).PlanForPhase(domain.PhaseMorning, nil); got != nil {
		t.Fatalf("nop picks: %+v", got)
	}
}
