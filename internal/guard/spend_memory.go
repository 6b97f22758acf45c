package guard

import (
	"context"
	"sync"
	"time"
)

// MemorySpendTracker is a mutex-guarded in-process SpendTracker for
// single-node deployments and tests.
type MemorySpendTracker struct {
	mu    sync.Mutex
	spent map[string]int64 // childID|day -> cents
}

// NewMemorySpendTracker creates an empty in-memory spend tracker.
func NewMemorySpendTracker() *MemorySpendTracker {
	return &MemorySpendTracker{spent: make(map[string]int64)}
}

func spendKey(childID string, day time.Time) string {
	return childID + "|" + day.Format("2006-01-02")
}

func (t *MemorySpendTracker) ReserveSpend(ctx context.Context, childID string, day time.Time, amount, limit int64) (bool, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := spendKey(childID, day)
	current := t.spent[key]
	if current+amount > limit {
		return false, current, nil
	}

	t.spent[key] = current + amount
	return true, current + amount, nil
}

func (t *MemorySpendTracker) ReleaseSpend(ctx context.Context, childID string, day time.Time, amount int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := spendKey(childID, day)
	t.spent[key] -= amount
	if t.spent[key] <= 0 {
		delete(t.spent, key)
	}
	return nil
}

// SpentToday returns the current reserved total for the child on the given day.
func (t *MemorySpendTracker) SpentToday(childID string, day time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent[spendKey(childID, day)]
}
