package source

import (
	"context"
	"time"

	"github.com/elonfeng/paperpulse/internal/metrics"
	"github.com/elonfeng/paperpulse/pkg/cache"
)

// CachedCounter serves counts from a cache and asks the wrapped Counter
// only for papers it has not seen within ttl.
type CachedCounter struct {
	inner Counter
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedCounter wraps inner.
func NewCachedCounter(inner Counter, c cache.Cache, ttl time.Duration) *CachedCounter {
	return &CachedCounter{inner: inner, cache: c, ttl: ttl}
}

func (c *CachedCounter) Name() string { return c.inner.Name() }

// Counts returns cached and fresh counts together. Only counts the inner
// Counter actually returned are cached; its error is passed through.
func (c *CachedCounter) Counts(ctx context.Context, papers []Paper) (map[string]int, error) {
	counts := make(map[string]int, len(papers))
	var missing []Paper

	for _, p := range papers {
		if n, ok := c.cache.Get(ctx, c.key(p.ID)); ok {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			counts[p.ID] = n
			continue
		}
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		missing = append(missing, p)
	}
	if len(missing) == 0 {
		return counts, nil
	}

	fresh, err := c.inner.Counts(ctx, missing)
	for id, n := range fresh {
		counts[id] = n
		c.cache.Set(ctx, c.key(id), n, c.ttl)
	}
	return counts, err
}

func (c *CachedCounter) key(paperID string) string {
	return c.inner.Name() + ":" + paperID
}
