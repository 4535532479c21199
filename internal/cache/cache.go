// Package cache provides a TTL'd in-memory cache plus an HTTP fetch cache
// that deduplicates concurrent requests and persists bodies to SQLite.
package cache

import (
	"sync"
	"time"
)

type item[V any] struct {
	value   V
	expires time.Time
}

// Cache is a concurrency-safe map with per-cache TTL. Expired items are
// dropped lazily on read and in bulk by SweepExpired.
type Cache[K comparable, V any] struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[K]item[V]
}

// New creates a cache whose entries live for ttl. A non-positive ttl means
// entries never expire.
func New[K comparable, V any](ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		ttl:   ttl,
		items: make(map[K]item[V]),
	}
}

// Get returns the cached value for key, if present and not expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.expired(it, time.Now()) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores value under key, resetting its TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item[V]{value: value, expires: time.Now().Add(c.ttl)}
}

// GetOrInsert returns the cached value for key, computing and storing it via
// fill on a miss. fill runs under the cache lock so concurrent callers for
// the same key compute at most once.
func (c *Cache[K, V]) GetOrInsert(key K, fill func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if ok && !c.expired(it, time.Now()) {
		return it.value
	}
	value := fill()
	c.items[key] = item[V]{value: value, expires: time.Now().Add(c.ttl)}
	return value
}

// Delete removes key if present.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of entries, expired ones included.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// SweepExpired removes all expired entries and returns how many were dropped.
func (c *Cache[K, V]) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	dropped := 0
	for key, it := range c.items {
		if c.expired(it, now) {
			delete(c.items, key)
			dropped++
		}
	}
	return dropped
}

func (c *Cache[K, V]) expired(it item[V], now time.Time) bool {
	return c.ttl > 0 && now.After(it.expires)
}
