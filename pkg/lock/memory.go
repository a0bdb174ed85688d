package lock

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Memory is an in-process lock provider backed by an expiring cache.
type Memory struct {
	mu sync.Mutex
	c  *cache.Cache
}

// NewMemory creates an in-process lock provider. Expired keys are purged
// every cleanupInterval; expiry itself is exact regardless of the interval.
func NewMemory(cleanupInterval ...time.Duration) *Memory {
	interval := time.Minute
	if len(cleanupInterval) > 0 && cleanupInterval[0] > 0 {
		interval = cleanupInterval[0]
	}
	return &Memory{c: cache.New(cache.NoExpiration, interval)}
}

// TryAcquire sets key to owner if it is absent or expired.
func (m *Memory) TryAcquire(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.c.Add(key, owner, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// Release deletes key only while owner still holds it.
func (m *Memory) Release(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.c.Get(key); ok && v.(string) == owner {
		m.c.Delete(key)
	}
	return nil
}

// IsHeld reports whether any owner holds key.
func (m *Memory) IsHeld(_ context.Context, key string) (bool, error) {
	_, ok := m.c.Get(key)
	return ok, nil
}

// Owner returns the token key is held with, or "" when it is free.
func (m *Memory) Owner(key string) string {
	if v, ok := m.c.Get(key); ok {
		return v.(string)
	}
	return ""
}

// Held returns the number of locks currently held.
func (m *Memory) Held() int {
	return m.c.ItemCount()
}
