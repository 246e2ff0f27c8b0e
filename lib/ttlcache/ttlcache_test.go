package ttlcache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestGetSet(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := New(4, time.Hour, WithClock[string, int](clock.Now))

	_, ok := cache.Get("missing")
	require.False(t, ok)

	cache.Set("a", 1)
	v, ok := cache.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	cache.Set("a", 2)
	v, ok = cache.Get("a")
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.Equal(t, 1, cache.Len())
}

func TestTTLExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := New(4, time.Hour, WithClock[string, int](clock.Now))

	cache.Set("a", 1)

	clock.Advance(time.Hour - time.Second)
	_, ok := cache.Get("a")
	require.True(t, ok)

	clock.Advance(2 * time.Second)
	_, ok = cache.Get("a")
	require.False(t, ok)
	require.Equal(t, 0, cache.Len())
}

func TestLRUEviction(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := New(3, time.Hour, WithClock[string, int](clock.Now))

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3)

	// touching "a" makes "b" the eviction candidate
	_, ok := cache.Get("a")
	require.True(t, ok)

	cache.Set("d", 4)
	require.Equal(t, 3, cache.Len())

	_, ok = cache.Get("b")
	require.False(t, ok)
	for _, k := range []string{"a", "c", "d"} {
		_, ok := cache.Get(k)
		require.True(t, ok, "key %q should have survived", k)
	}
}

func TestSetSweepsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cache := New(100, time.Hour, WithClock[string, int](clock.Now))

	for i := 0; i < 10; i++ {
		cache.Set(fmt.Sprintf("old%d", i), i)
	}
	clock.Advance(2 * time.Hour)

	// a single insert sweeps all the stale entries out
	cache.Set("fresh", 1)
	require.Equal(t, 1, cache.Len())
}

func TestStats(t *testing.T) {
	cache := New[string, int](600, time.Hour)
	cache.Set("a", 1)
	require.Equal(t, Stats{Size: 1, MaxSize: 600}, cache.Stats())
}

func TestConcurrentAccess(t *testing.T) {
	cache := New[int, int](64, time.Hour)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				cache.Set(i%100, i)
				cache.Get((i + g) % 100)
			}
		}(g)
	}
	wg.Wait()

	require.LessOrEqual(t, cache.Len(), 64)
}
