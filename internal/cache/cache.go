package cache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is used when a non-positive size is requested
const DefaultSize = 512

// Stats represents cache statistics
type Stats struct {
	TotalEntries int64   `json:"total_entries"`
	HitRate      float64 `json:"hit_rate"`
	MissRate     float64 `json:"miss_rate"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
}

// Cache is a process-wide, size-bounded get-or-set store for values that
// never go stale during a process lifetime (relation topology, table
// schemas). It is safe for concurrent use.
type Cache[K comparable, V any] struct {
	entries *lru.Cache[K, V]
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache holding at most size entries
func New[K comparable, V any](size int) (*Cache[K, V], error) {
	if size <= 0 {
		size = DefaultSize
	}

	entries, err := lru.New[K, V](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}

	return &Cache[K, V]{entries: entries}, nil
}

// Get returns the cached value for key
func (c *Cache[K, V]) Get(key K) (V, bool) {
	v, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}

	return v, ok
}

// Set stores value under key, evicting the least recently used entry if full
func (c *Cache[K, V]) Set(key K, value V) {
	c.entries.Add(key, value)
}

// GetOrSet returns the cached value for key, computing and storing it on a
// miss. compute runs without holding any lock, so concurrent misses for the
// same key may both compute; the last write wins. Errors are not cached.
func (c *Cache[K, V]) GetOrSet(key K, compute func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := compute()
	if err != nil {
		var zero V
		return zero, err
	}

	c.entries.Add(key, v)

	return v, nil
}

// Delete removes key
func (c *Cache[K, V]) Delete(key K) {
	c.entries.Remove(key)
}

// Clear removes every entry and resets the counters
func (c *Cache[K, V]) Clear() {
	c.entries.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Len returns the number of cached entries
func (c *Cache[K, V]) Len() int {
	return c.entries.Len()
}

// GetStats returns hit/miss counters
func (c *Cache[K, V]) GetStats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	stats := Stats{
		TotalEntries: int64(c.entries.Len()),
		Hits:         hits,
		Misses:       misses,
	}

	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
		stats.MissRate = float64(misses) / float64(total)
	}

	return stats
}
