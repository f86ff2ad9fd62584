package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestGetSetExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := New[string](time.Minute, clock)

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Set("k", "v")
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)

	clock.Advance(59 * time.Second)
	_, ok = c.Get("k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("k")
	assert.False(t, ok, "entries expire exactly at the TTL")
	assert.Equal(t, 0, c.Len(), "expired entries are evicted on read")

	stats := c.Stats()
	assert.EqualValues(t, 2, stats.Hits)
	assert.EqualValues(t, 2, stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Equal(t, "1m0s", stats.TTL)
}

func TestSweepAndClear(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := New[int](10*time.Second, clock)

	c.Set("old", 1)
	clock.Advance(6 * time.Second)
	c.Set("new", 2)
	clock.Advance(5 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())

	c.Delete("new")
	assert.Equal(t, 0, c.Len())

	c.Set("x", 3)
	_, _ = c.Get("x")
	c.Clear()
	assert.Equal(t, Stats{TTL: "10s"}, c.Stats())
}

func TestNilClockUsesSystemTime(t *testing.T) {
	c := New[int](time.Hour, nil)
	c.Set("k", 1)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int](time.Hour, nil)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%4)
			c.Set(key, i)
			_, _ = c.Get(key)
			c.Sweep()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, c.Len())
}
