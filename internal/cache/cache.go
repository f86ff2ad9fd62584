// Package cache provides the in-memory read-through store used by the fetcher.
package cache

import (
	"sync"
	"time"
)

// Clock abstracts time so expiry can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Stats reports cache effectiveness.
type Stats struct {
	Size    int     `json:"size"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	TTL     string  `json:"ttl"`
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache is a mutex-guarded map whose entries expire after a fixed TTL.
// Expired entries are evicted lazily on read and by Sweep. It never
// persists anything.
type TTLCache[V any] struct {
	mu     sync.RWMutex
	data   map[string]entry[V]
	ttl    time.Duration
	clock  Clock
	hits   int64
	misses int64
}

// New creates a cache. A nil clock uses the system clock.
func New[V any](ttl time.Duration, clock Clock) *TTLCache[V] {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TTLCache[V]{
		data:  make(map[string]entry[V]),
		ttl:   ttl,
		clock: clock,
	}
}

// Get returns the live value for key.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[key]
	if ok && now.Before(e.expiresAt) {
		c.hits++
		return e.value, true
	}
	if ok {
		delete(c.data, key)
	}
	c.misses++
	var zero V
	return zero, false
}

// Set stores value under key for the cache TTL.
func (c *TTLCache[V]) Set(key string, value V) {
	expires := c.clock.Now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry[V]{value: value, expiresAt: expires}
}

// Delete removes key.
func (c *TTLCache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear removes all entries and resets statistics.
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]entry[V])
	c.hits = 0
	c.misses = 0
}

// Sweep evicts expired entries and returns how many were removed.
func (c *TTLCache[V]) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.data {
		if !now.Before(e.expiresAt) {
			delete(c.data, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Stats returns cache statistics.
func (c *TTLCache[V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Size:    len(c.data),
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
		TTL:     c.ttl.String(),
	}
}
