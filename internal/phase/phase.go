// Package phase tracks the day's current phase and notifies listeners on
// transitions. Transitions are strictly cyclic: morning -> afternoon ->
// evening -> night -> morning.
package phase

import (
	"time"

	"dayline/internal/config"
	"dayline/internal/domain"
)

// Boundaries holds each phase's start time as minutes past midnight.
type Boundaries struct {
	starts map[domain.Phase]int
}

// ParseBoundaries builds boundaries from the config's "HH:MM" strings. The
// config has already been validated, so parse failures here are reported
// as-is without their own error type.
func ParseBoundaries(raw map[string]string) (Boundaries, error) {
	starts := make(map[domain.Phase]int, len(domain.Phases))
	for _, p := range domain.Phases {
		min, err := config.ParseClock(raw[string(p)])
		if err != nil {
			return Boundaries{}, err
		}
		starts[p] = min
	}
	return Boundaries{starts: starts}, nil
}

// Start returns a phase's start as minutes past midnight.
func (b Boundaries) Start(p domain.Phase) int {
	return b.starts[p]
}

// PhaseAt returns the phase active at t. A clock before the earliest start
// belongs to the phase that wraps from the previous day.
func (b Boundaries) PhaseAt(t time.Time) domain.Phase {
	minute := t.Hour()*60 + t.Minute()
	best := b.wrapPhase()
	bestStart := -1
	for _, p := range domain.Phases {
		start := b.starts[p]
		if start <= minute && start > bestStart {
			best = p
			bestStart = start
		}
	}
	return best
}

// wrapPhase is the phase with the latest start, the one active across
// midnight.
func (b Boundaries) wrapPhase() domain.Phase {
	best := domain.PhaseNight
	bestStart := -1
	for _, p := range domain.Phases {
		if b.starts[p] > bestStart {
			best = p
			bestStart = b.starts[p]
		}
	}
	return best
}

// BoundaryTime returns the wall-clock instant phase p begins on the day of
// ref, in ref's location.
func (b Boundaries) BoundaryTime(ref time.Time, p domain.Phase) time.Time {
	start := b.starts[p]
	return time.Date(ref.Year(), ref.Month(), ref.Day(), start/60, start%60, 0, 0, ref.Location())
}
