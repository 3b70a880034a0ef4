// Package queue implements the per-phase queues of pending work units. The
// manager is the only component that moves units between queued and
// running; callers get copies and never reach into queue internals.
package queue

import (
	"sort"
	"sync"
	"time"

	"dayline/internal/domain"
)

// Manager owns one ordered queue per phase. Within a phase, higher priority
// dequeues first; ties break FIFO by queued_at, then by enqueue sequence so
// ordering stays deterministic under a frozen clock.
type Manager struct {
	mu     sync.Mutex
	queues map[domain.Phase][]domain.WorkUnit
	seq    uint64
	Now    func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		queues: map[domain.Phase][]domain.WorkUnit{},
		Now:    time.Now,
	}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Enqueue adds a unit to its target phase queue in queued state. The
// unit's QueuedAt is stamped here unless already set (requeued units keep
// a fresh timestamp assigned by the caller).
func (m *Manager) Enqueue(u domain.WorkUnit) domain.WorkUnit {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.QueuedAt == "" {
		u.QueuedAt = m.now().UTC().Format(time.RFC3339)
	}
	u.Status = domain.UnitQueued
	m.seq++
	u.Seq = m.seq
	q := append(m.queues[u.TargetPhase], u)
	sort.SliceStable(q, func(i, j int) bool { return less(q[i], q[j]) })
	m.queues[u.TargetPhase] = q
	return u
}

func less(a, b domain.WorkUnit) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if a.QueuedAt != b.QueuedAt {
		return a.QueuedAt < b.QueuedAt
	}
	return a.Seq < b.Seq
}

// DequeueNext pops the highest-priority unit for a phase and transitions it
// to running, stamping StartedAt. Returns false when the phase queue is
// empty.
func (m *Manager) DequeueNext(phase domain.Phase) (domain.WorkUnit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[phase]
	if len(q) == 0 {
		return domain.WorkUnit{}, false
	}
	u := q[0]
	m.queues[phase] = q[1:]
	u.Status = domain.UnitRunning
	started := m.now().UTC().Format(time.RFC3339)
	u.StartedAt = &started
	return u, true
}

// Peek returns the ordered pending units for a phase without mutating it.
func (m *Manager) Peek(phase domain.Phase) []domain.WorkUnit {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[phase]
	out := make([]domain.WorkUnit, len(q))
	copy(out, q)
	return out
}

// Remove pulls a queued unit out of its queue by id, for operator
// cancellation before the unit ever runs.
func (m *Manager) Remove(id string) (domain.WorkUnit, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for phase, q := range m.queues {
		for i, u := range q {
			if u.ID == id {
				m.queues[phase] = append(q[:i:i], q[i+1:]...)
				return u, true
			}
		}
	}
	return domain.WorkUnit{}, false
}

// Depths reports pending counts per phase.
func (m *Manager) Depths() map[domain.Phase]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	depths := make(map[domain.Phase]int, len(m.queues))
	for _, p := range domain.Phases {
		depths[p] = len(m.queues[p])
	}
	return depths
}

// Len reports pending units for one phase.
func (m *Manager) Len(phase domain.Phase) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queues[phase])
}
