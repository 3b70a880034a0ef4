package queue_test

import (
	"testing"
	"time"

	"dayline/internal/domain"
	"dayline/internal/queue"
)

func frozen(m *queue.Manager) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return at }
}

func TestPriorityOrdering(t *testing.T) {
	m := queue.NewManager()
	frozen(m)
	for i, prio := range []int{3, 1, 2} {
		m.Enqueue(domain.WorkUnit{ID: string(rune('a' + i)), TargetPhase: domain.PhaseMorning, Priority: prio})
	}
	var got []int
	for {
		u, ok := m.DequeueNext(domain.PhaseMorning)
		if !ok {
			break
		}
		got = append(got, u.Priority)
	}
	want := []int{3, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dequeue order %v, want %v", got, want)
		}
	}
}

func TestFIFOWithinPriority(t *testing.T) {
	m := queue.NewManager()
	frozen(m)
	m.Enqueue(domain.WorkUnit{ID: "first", TargetPhase: domain.PhaseEvening, Priority: 1})
	m.Enqueue(domain.WorkUnit{ID: "second", TargetPhase: domain.PhaseEvening, Priority: 1})
	m.Enqueue(domain.WorkUnit{ID: "third", TargetPhase: domain.PhaseEvening, Priority: 1})
	for _, want := range []string{"first", "second", "third"} {
		u, ok := m.DequeueNext(domain.PhaseEvening)
		if !ok || u.ID != want {
			t.Fatalf("got %q, want %q", u.ID, want)
		}
	}
}

func TestDequeueTransitionsToRunning(t *testing.T) {
	m := queue.NewManager()
	frozen(m)
	m.Enqueue(domain.WorkUnit{ID: "u1", TargetPhase: domain.PhaseMorning})
	u, ok := m.DequeueNext(domain.PhaseMorning)
	if !ok {
		t.Fatal("expected a unit")
	}
	if u.Status != domain.UnitRunning {
		t.Fatalf("status = %q, want running", u.Status)
	}
	if u.StartedAt == nil || *u.StartedAt == "" {
		t.Fatal("StartedAt not stamped")
	}
	if _, ok := m.DequeueNext(domain.PhaseMorning); ok {
		t.Fatal("queue should be empty")
	}
}

func TestEnqueueStampsQueuedAtOnce(t *testing.T) {
	m := queue.NewManager()
	frozen(m)
	u := m.Enqueue(domain.WorkUnit{ID: "u1", TargetPhase: domain.PhaseNight})
	if u.QueuedAt == "" {
		t.Fatal("QueuedAt not stamped")
	}
	requeued := m.Enqueue(domain.WorkUnit{ID: "u2", TargetPhase: domain.PhaseNight, QueuedAt: "2026-02-28T23:00:00Z"})
	if requeued.QueuedAt != "2026-02-28T23:00:00Z" {
		t.Fatalf("existing QueuedAt overwritten: %s", requeued.QueuedAt)
	}
}

func TestQueuesAreIndependentPerPhase(t *testing.T) {
	m := queue.NewManager()
	frozen(m)
	m.Enqueue(domain.WorkUnit{ID: "m1", TargetPhase: domain.PhaseMorning})
	m.Enqueue(domain.WorkUnit{ID: "n1", TargetPhase: domain.PhaseNight})
	if _, ok := m.DequeueNext(domain.PhaseAfternoon); ok {
		t.Fatal("afternoon queue should be empty")
	}
	if m.Len(domain.PhaseMorning) != 1 || m.Len(domain.PhaseNight) != 1 {
		t.Fatalf("depths wrong: %v", m.Depths())
	}
}

func TestRemove(t *testing.T) {
	m := queue.NewManager()
	frozen(m)
	m.Enqueue(domain.WorkUnit{ID: "keep", TargetPhase: domain.PhaseMorning, Priority: 1})
	m.Enqueue(domain.WorkUnit{ID: "drop", TargetPhase: domain.PhaseMorning, Priority: 2})
	u, ok := m.Remove("drop")
	if !ok || u.ID != "drop" {
		t.Fatalf("remove: %v %+v", ok, u)
	}
	if _, ok := m.Remove("drop"); ok {
		t.Fatal("second remove should miss")
	}
	left, ok := m.DequeueNext(domain.PhaseMorning)
	if !ok || left.ID != "keep" {
		t.Fatalf("remaining unit wrong: %+v", left)
	}
}

func TestPeekDoesNotMutate(t *testing.T) {
	m := queue.NewManager()
	frozen(m)
	m.Enqueue(domain.WorkUnit{ID: "u1", TargetPhase: domain.PhaseMorning})
	before := m.Len(domain.PhaseMorning)
	peeked := m.Peek(domain.PhaseMorning)
	if len(peeked) != 1 || peeked[0].ID != "u1" {
		t.Fatalf("peek: %+v", peeked)
	}
	if m.Len(domain.PhaseMorning) != before {
		t.Fatal("peek changed the queue")
	}
}
