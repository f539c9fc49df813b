package cache

import (
	"context"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"
)

// ComputeFunc loads the value list for a key on a cache miss.
type ComputeFunc func(ctx context.Context) ([]string, error)

// OptionCache memoizes filter option lists per field. Concurrent misses for
// the same key share one computation; failures are never cached.
type OptionCache struct {
	entries *LRUCache[[]string]
	group   singleflight.Group
}

// NewOptionCache creates an option cache holding at most maxEntries lists,
// each valid for ttl.
func NewOptionCache(maxEntries int, ttl time.Duration) *OptionCache {
	return &OptionCache{entries: NewLRUCache[[]string](maxEntries, ttl)}
}

// GetOrCompute returns the cached list for key or computes, stores and
// returns it. The returned slice is a copy. A cancelled ctx only abandons
// this caller's wait; compute is expected to apply its own deadline.
func (c *OptionCache) GetOrCompute(ctx context.Context, key string, compute ComputeFunc) ([]string, error) {
	if values, ok := c.entries.Get(key); ok {
		return slices.Clone(values), nil
	}

	// The computation is shared by every waiter for key, so it must not
	// end when the caller that started it goes away.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if values, ok := c.entries.Get(key); ok {
			return values, nil
		}
		values, err := compute(shared)
		if err != nil {
			return nil, err
		}
		c.entries.Set(key, values)
		return values, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]string)), nil
	}
}

// Invalidate drops the cached list for key.
func (c *OptionCache) Invalidate(key string) { c.entries.Delete(key) }

// StoredAt reports when the list for key was computed.
func (c *OptionCache) StoredAt(key string) (time.Time, bool) { return c.entries.StoredAt(key) }

// CleanExpired implements Cleaner.
func (c *OptionCache) CleanExpired() int { return c.entries.CleanExpired() }

// Stats returns usage counters of the underlying cache.
func (c *OptionCache) Stats() Stats { return c.entries.Stats() }
