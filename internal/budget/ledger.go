// Package budget tracks spend against the daily limit. CanAfford and
// Deduct share one mutex so check-then-act stays atomic even if action
// executors ever run concurrently.
package budget

import (
	"fmt"
	"sync"
	"time"

	"dayline/internal/domain"
)

// ExceededError is a recoverable refusal: the deduction would pass the
// daily limit (or a category cap), so the action must be skipped or
// deferred, never executed.
type ExceededError struct {
	Category  string
	AmountUSD float64
	SpentUSD  float64
	LimitUSD  float64
	// CategoryCap is set when a per-category cap, not the daily pool,
	// refused the deduction.
	CategoryCap bool
}

func (e ExceededError) Error() string {
	if e.CategoryCap {
		return fmt.Sprintf("budget exceeded: category %s cap %.2f would be passed by %.2f", e.Category, e.LimitUSD, e.AmountUSD)
	}
	return fmt.Sprintf("budget exceeded: %.2f spent of %.2f, cannot deduct %.2f", e.SpentUSD, e.LimitUSD, e.AmountUSD)
}

// Receipt records one successful deduction.
type Receipt struct {
	Day        string
	TS         string
	Category   string
	AmountUSD  float64
	BalanceUSD float64
}

// Ledger is the single source of truth for daily spend. One pool with soft
// per-category attribution; hard per-category caps apply only when
// configured.
type Ledger struct {
	mu           sync.Mutex
	limitUSD     float64
	categoryCaps map[string]float64
	day          string
	spentUSD     float64
	byCategory   map[string]float64
	Now          func() time.Time
}

// New creates a ledger for the given daily limit. categoryCaps may be nil.
func New(limitUSD float64, categoryCaps map[string]float64) *Ledger {
	caps := map[string]float64{}
	for k, v := range categoryCaps {
		caps[k] = v
	}
	l := &Ledger{
		limitUSD:     limitUSD,
		categoryCaps: caps,
		byCategory:   map[string]float64{},
		Now:          time.Now,
	}
	l.day = Day(l.Now())
	return l
}

// Day formats a calendar day the way budget rows key on it.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// CanAfford reports whether a deduction of amount would stay within the
// daily limit. Advisory only; Deduct re-checks under the same lock.
func (l *Ledger) CanAfford(amountUSD float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spentUSD+amountUSD <= l.limitUSD
}

// Deduct attributes amount to a category. Refuses with ExceededError when
// the pool limit, or a configured category cap, would be passed; the spend
// state is untouched on refusal.
func (l *Ledger) Deduct(amountUSD float64, category string) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amountUSD < 0 {
		return Receipt{}, fmt.Errorf("negative deduction %.2f", amountUSD)
	}
	if l.spentUSD+amountUSD > l.limitUSD {
		return Receipt{}, ExceededError{
			Category:  category,
			AmountUSD: amountUSD,
			SpentUSD:  l.spentUSD,
			LimitUSD:  l.limitUSD,
		}
	}
	if cap, ok := l.categoryCaps[category]; ok && l.byCategory[category]+amountUSD > cap {
		return Receipt{}, ExceededError{
			Category:    category,
			AmountUSD:   amountUSD,
			SpentUSD:    l.byCategory[category],
			LimitUSD:    cap,
			CategoryCap: true,
		}
	}
	l.spentUSD += amountUSD
	l.byCategory[category] += amountUSD
	return Receipt{
		Day:        l.day,
		TS:         l.now().UTC().Format(time.RFC3339),
		Category:   category,
		AmountUSD:  amountUSD,
		BalanceUSD: l.spentUSD,
	}, nil
}

// Restore primes the ledger from persisted entries, so a process restart
// mid-day cannot double-spend.
func (l *Ledger) Restore(day string, spentUSD float64, byCategory map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.day = day
	l.spentUSD = spentUSD
	l.byCategory = map[string]float64{}
	for k, v := range byCategory {
		l.byCategory[k] = v
	}
}

// ResetForNewDay zeroes all spend. Idempotent: resetting twice leaves the
// same empty state.
func (l *Ledger) ResetForNewDay() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.day = Day(l.now())
	l.spentUSD = 0
	l.byCategory = map[string]float64{}
}

// CurrentDay returns the calendar day the ledger is tracking.
func (l *Ledger) CurrentDay() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.day
}

// Snapshot returns a copy of the current spend state.
func (l *Ledger) Snapshot() domain.BudgetSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	byCategory := make(map[string]float64, len(l.byCategory))
	for k, v := range l.byCategory {
		byCategory[k] = v
	}
	return domain.BudgetSnapshot{
		Day:        l.day,
		LimitUSD:   l.limitUSD,
		SpentUSD:   l.spentUSD,
		ByCategory: byCategory,
	}
}
