package ratelimit

import (
	"sync"
	"time"

	"github.com/sproutmarket/guard/internal/models"
)

// Store holds per-key rate limit entries. Update must execute fn atomically
// with respect to concurrent calls for the same key, so two simultaneous
// requests can never both be admitted past the limit boundary.
//
// Deployments running more than one server instance should back this with an
// external atomic counter store instead of local memory.
type Store interface {
	// Update runs fn with the current entry for key (nil when absent) and
	// stores the returned entry. Returning nil evicts the key.
	Update(key string, fn func(entry *models.RateLimitEntry) *models.RateLimitEntry)

	// Get returns a copy of the entry for key, or nil when absent.
	Get(key string) *models.RateLimitEntry

	// PurgeExpired evicts entries whose window and block period have both
	// passed, and returns how many were removed.
	PurgeExpired(now time.Time, window time.Duration) int
}

// MemoryStore is a mutex-guarded in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*models.RateLimitEntry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*models.RateLimitEntry),
	}
}

func (s *MemoryStore) Update(key string, fn func(entry *models.RateLimitEntry) *models.RateLimitEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.entries[key])
	if next == nil {
		delete(s.entries, key)
		return
	}
	s.entries[key] = next
}

func (s *MemoryStore) Get(key string) *models.RateLimitEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	copied := *entry
	return &copied
}

func (s *MemoryStore) PurgeExpired(now time.Time, window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, entry := range s.entries {
		if entry.IsBlocked(now) {
			continue
		}
		if entry.WindowExpired(now, window) {
			delete(s.entries, key)
			purged++
		}
	}
	return purged
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
