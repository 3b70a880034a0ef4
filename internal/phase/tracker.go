package phase

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"dayline/internal/domain"
)

// Callback is invoked exactly once per transition with the previous phase,
// the new phase, and the boundary timestamp that was crossed.
type Callback func(prev, next domain.Phase, at time.Time)

// Tracker observes the wall clock and fires callbacks when a phase
// boundary is crossed. It runs in its own goroutine so slow work in the
// scheduler never delays transition detection.
type Tracker struct {
	boundaries Boundaries
	interval   time.Duration
	logger     *log.Logger
	Now        func() time.Time

	mu        sync.Mutex
	current   domain.Phase
	callbacks []Callback
}

// NewTracker creates a tracker whose initial phase is derived from the
// clock at construction time.
func NewTracker(b Boundaries, pollInterval time.Duration, logger *log.Logger) *Tracker {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	t := &Tracker{
		boundaries: b,
		interval:   pollInterval,
		logger:     logger,
		Now:        time.Now,
	}
	t.current = b.PhaseAt(t.Now())
	return t
}

// Current returns the active phase.
func (t *Tracker) Current() domain.Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// OnPhaseChange registers a listener. Listeners run in registration order;
// a failing listener is logged and does not block the rest.
func (t *Tracker) OnPhaseChange(cb Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

// Start runs the observation loop until ctx is done.
func (t *Tracker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Observe()
		}
	}
}

// Observe compares the clock against the current phase and fires one
// callback round per crossed boundary. Exported so tests (and a frozen
// clock) can drive transitions without the ticker.
func (t *Tracker) Observe() {
	now := t.Now()
	target := t.boundaries.PhaseAt(now)

	t.mu.Lock()
	current := t.current
	t.mu.Unlock()
	if target == current {
		return
	}

	// Step through intermediate phases so a stalled process still fires
	// every transition exactly once, each with its own boundary time.
	for current != target {
		next := current.Next()
		at := t.boundaries.BoundaryTime(now, next)
		t.mu.Lock()
		t.current = next
		callbacks := append([]Callback(nil), t.callbacks...)
		t.mu.Unlock()
		for _, cb := range callbacks {
			t.invoke(cb, current, next, at)
		}
		current = next
	}
}

// invoke isolates a single listener: a panic is logged, the tracker and
// the remaining listeners carry on.
func (t *Tracker) invoke(cb Callback, prev, next domain.Phase, at time.Time) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Printf("phase tracker: listener panic on %s -> %s: %v", prev, next, r)
		}
	}()
	cb(prev, next, at)
}

// ForceTransition advances the tracker one phase regardless of the clock.
// Operator tooling only; the normal path is Observe.
func (t *Tracker) ForceTransition() (domain.Phase, domain.Phase) {
	t.mu.Lock()
	prev := t.current
	next := prev.Next()
	t.current = next
	callbacks := append([]Callback(nil), t.callbacks...)
	t.mu.Unlock()
	at := t.Now()
	for _, cb := range callbacks {
		t.invoke(cb, prev, next, at)
	}
	return prev, next
}

// String implements fmt.Stringer for log lines.
func (t *Tracker) String() string {
	return fmt.Sprintf("phase-tracker(current=%s)", t.Current())
}
