package storage

import (
	"context"
	"sync"
	"time"
)

// Ensure MemoryStorage implements StateStore
var _ StateStore = (*MemoryStorage)(nil)

// MemoryStorage keeps consumed states in process memory. Suitable for a
// single instance; restarts forget consumed states, which is acceptable
// because states also expire with their cookie.
type MemoryStorage struct {
	mu       sync.Mutex
	consumed map[string]time.Time // state key -> expiry
	now      func() time.Time
}

// NewMemoryStorage creates a new storage instance
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		consumed: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Consume implements StateStore
func (s *MemoryStorage) Consume(_ context.Context, state string, expiresAt time.Time) (bool, error) {
	key := stateKey(state)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.consumed[key]; ok {
		return false, nil
	}
	s.consumed[key] = expiresAt
	return true, nil
}

// CleanupExpired implements StateStore
func (s *MemoryStorage) CleanupExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, exp := range s.consumed {
		if !now.Before(exp) {
			delete(s.consumed, key)
			removed++
		}
	}
	return removed, nil
}

// Close implements StateStore
func (s *MemoryStorage) Close() error {
	return nil
}
