// Package cache stores upstream signal counts between collection runs.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache maps keys to integer counts with a per-entry TTL.
// A failed or missing lookup reports ok=false; callers refetch.
type Cache interface {
	Get(ctx context.Context, key string) (n int, ok bool)
	Set(ctx context.Context, key string, n int, ttl time.Duration)
}

type entry struct {
	n       int
	expires time.Time
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return 0, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.entries, key)
		return 0, false
	}
	return e.n, true
}

// Set stores n under key. A non-positive ttl never expires.
func (m *Memory) Set(_ context.Context, key string, n int, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := entry{n: n}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.entries[key] = e
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// New returns a Redis cache when redisAddr is set, otherwise a Memory cache.
func New(redisAddr string) Cache {
	if redisAddr == "" {
		return NewMemory()
	}
	return NewRedis(redisAddr, 0)
}
