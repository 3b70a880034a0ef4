package phase_test

import (
	"sync/atomic"
	"testing"
	"time"

	"dayline/internal/config"
	"dayline/internal/domain"
	"dayline/internal/phase"
)

func defaultBoundaries(t *testing.T) phase.Boundaries {
	t.Helper()
	b, err := phase.ParseBoundaries(config.Default().Phases)
	if err != nil {
		t.Fatalf("parse boundaries: %v", err)
	}
	return b
}

func clock(h, m int) time.Time {
	return time.Date(2026, 3, 1, h, m, 0, 0, time.UTC)
}

func TestPhaseCycle(t *testing.T) {
	order := []domain.Phase{domain.PhaseMorning, domain.PhaseAfternoon, domain.PhaseEvening, domain.PhaseNight}
	p := domain.PhaseMorning
	for i := 1; i <= 4; i++ {
		p = p.Next()
		if want := order[i%4]; p != want {
			t.Fatalf("step %d: got %s, want %s", i, p, want)
		}
	}
	if p != domain.PhaseMorning {
		t.Fatalf("four steps should return to morning, got %s", p)
	}
}

func TestPhaseAt(t *testing.T) {
	b := defaultBoundaries(t)
	cases := []struct {
		h, m int
		want domain.Phase
	}{
		{6, 0, domain.PhaseMorning},
		{11, 59, domain.PhaseMorning},
		{12, 0, domain.PhaseAfternoon},
		{17, 59, domain.PhaseAfternoon},
		{18, 0, domain.PhaseEvening},
		{21, 59, domain.PhaseEvening},
		{22, 0, domain.PhaseNight},
		{23, 59, domain.PhaseNight},
		{0, 0, domain.PhaseNight},
		{5, 59, domain.PhaseNight},
	}
	for _, tc := range cases {
		if got := b.PhaseAt(clock(tc.h, tc.m)); got != tc.want {
			t.Fatalf("PhaseAt(%02d:%02d) = %s, want %s", tc.h, tc.m, got, tc.want)
		}
	}
}

func TestTrackerFiresOnBoundary(t *testing.T) {
	b := defaultBoundaries(t)
	now := clock(11, 59)
	tr := phase.NewTracker(b, time.Second, nil)
	tr.Now = func() time.Time { return now }
	tr.Observe()
	if tr.Current() != domain.PhaseMorning {
		t.Fatalf("initial phase = %s", tr.Current())
	}

	var fired int32
	tr.OnPhaseChange(func(prev, next domain.Phase, at time.Time) {
		atomic.AddInt32(&fired, 1)
		if prev != domain.PhaseMorning || next != domain.PhaseAfternoon {
			t.Errorf("transition %s -> %s", prev, next)
		}
		if at.Hour() != 12 || at.Minute() != 0 {
			t.Errorf("boundary time = %s", at)
		}
	})

	now = clock(12, 0)
	tr.Observe()
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("fired %d times, want 1", got)
	}
	// same clock again must not re-fire
	tr.Observe()
	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Fatalf("re-observe fired again: %d", got)
	}
	if tr.Current() != domain.PhaseAfternoon {
		t.Fatalf("current = %s", tr.Current())
	}
}

func TestTrackerStepsThroughMissedBoundaries(t *testing.T) {
	b := defaultBoundaries(t)
	now := clock(11, 0)
	tr := phase.NewTracker(b, time.Second, nil)
	tr.Now = func() time.Time { return now }
	tr.Observe()

	var transitions []string
	tr.OnPhaseChange(func(prev, next domain.Phase, at time.Time) {
		transitions = append(transitions, string(prev)+">"+string(next))
	})

	// jump straight from morning to night
	now = clock(22, 30)
	tr.Observe()
	want := []string{"morning>afternoon", "afternoon>evening", "evening>night"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions %v, want %v", transitions, want)
		}
	}
}

func TestTrackerIsolatesPanickingListener(t *testing.T) {
	b := defaultBoundaries(t)
	now := clock(11, 59)
	tr := phase.NewTracker(b, time.Second, nil)
	tr.Now = func() time.Time { return now }
	tr.Observe()

	var survived bool
	tr.OnPhaseChange(func(prev, next domain.Phase, at time.Time) {
		panic("listener bug")
	})
	tr.OnPhaseChange(func(prev, next domain.Phase, at time.Time) {
		survived = true
	})

	now = clock(12, 0)
	tr.Observe()
	if !survived {
		t.Fatal("second listener never ran")
	}
	if tr.Current() != domain.PhaseAfternoon {
		t.Fatalf("tracker state corrupted: %s", tr.Current())
	}
}

func TestForceTransition(t *testing.T) {
	b := defaultBoundaries(t)
	tr := phase.NewTracker(b, time.Second, nil)
	tr.Now = func() time.Time { return clock(9, 0) }
	tr.Observe()
	prev, next := tr.ForceTransition()
	if prev != domain.PhaseMorning || next != domain.PhaseAfternoon {
		t.Fatalf("force: %s -> %s", prev, next)
	}
	if tr.Current() != domain.PhaseAfternoon {
		t.Fatalf("current = %s", tr.Current())
	}
}

func TestBoundaryTime(t *testing.T) {
	b := defaultBoundaries(t)
	ref := clock(15, 45)
	at := b.BoundaryTime(ref, domain.PhaseEvening)
	if at.Hour() != 18 || at.Minute() != 0 || at.Day() != ref.Day() {
		t.Fatalf("boundary time = %s", at)
	}
}
