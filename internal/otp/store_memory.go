package otp

import (
	"context"
	"sync"
	"time"

	"github.com/sproutmarket/guard/internal/models"
)

// MemoryStore is a mutex-guarded in-process ChallengeStore for single-node
// deployments and tests. Multi-instance deployments need the Postgres-backed
// store so the at-most-one-consumption invariant holds across processes.
type MemoryStore struct {
	mu    sync.Mutex
	byKey map[string]*models.OtpChallenge
	live  map[string]string // target|purpose -> verification key of the live challenge
}

// NewMemoryStore creates an empty in-memory challenge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey: make(map[string]*models.OtpChallenge),
		live:  make(map[string]string),
	}
}

func pairKey(target string, purpose models.OtpPurpose) string {
	return target + "|" + string(purpose)
}

func (s *MemoryStore) Replace(ctx context.Context, challenge *models.OtpChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := pairKey(challenge.Target, challenge.Purpose)
	if prevKey, ok := s.live[pair]; ok {
		if prev, ok := s.byKey[prevKey]; ok && prev.ConsumedAt == nil {
			now := time.Now()
			prev.ConsumedAt = &now
		}
	}

	copied := *challenge
	s.byKey[challenge.VerificationKey] = &copied
	s.live[pair] = challenge.VerificationKey
	return nil
}

func (s *MemoryStore) GetByKey(ctx context.Context, verificationKey string) (*models.OtpChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.byKey[verificationKey]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *challenge
	return &copied, nil
}

func (s *MemoryStore) Consume(ctx context.Context, verificationKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.byKey[verificationKey]
	if !ok {
		return false, models.ErrNotFound
	}
	if challenge.ConsumedAt != nil {
		return false, nil
	}

	now := time.Now()
	challenge.ConsumedAt = &now
	return true, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, challenge := range s.byKey {
		if challenge.ExpiresAt.Before(before) {
			delete(s.byKey, key)
			pair := pairKey(challenge.Target, challenge.Purpose)
			if s.live[pair] == key {
				delete(s.live, pair)
			}
			deleted++
		}
	}
	return deleted, nil
}
