package ttlcache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a small bounded TTL+LRU store: maxEntries bounds memory,
// ttl bounds staleness. All eviction is lazy, performed under the lock of
// the Get/Set that touches an expired or over-capacity entry; there is no
// background sweeper goroutine.
//
// Entries live in a doubly linked list ordered least- to most-recently
// used, so both the recency bookkeeping and the eviction sweeps are O(1)
// amortized.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	ll    *list.List
	items map[K]*list.Element
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	insertedAt time.Time
}

type Option[K comparable, V any] func(*Cache[K, V])

// WithClock swaps the time source, letting tests drive TTL expiry with a
// simulated clock.
func WithClock[K comparable, V any](now func() time.Time) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.now = now
	}
}

func New[K comparable, V any](maxEntries int, ttl time.Duration, opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
		ll:         list.New(),
		items:      make(map[K]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key if it is present and younger than the
// ttl, promoting it to most-recently-used. An expired hit is evicted and
// reported as a miss.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	ent := el.Value.(*entry[K, V])
	if now.Sub(ent.insertedAt) > c.ttl {
		c.removeElement(el)
		return zero, false
	}
	c.ll.MoveToBack(el)
	return ent.value, true
}

// Set inserts or overwrites key, marks it most-recently-used, then runs a
// cheap expired-entry sweep from the least-recently-used end followed by a
// size sweep back down to maxEntries.
func (c *Cache[K, V]) Set(key K, value V) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[K, V])
		ent.value = value
		ent.insertedAt = now
		c.ll.MoveToBack(el)
	} else {
		c.items[key] = c.ll.PushBack(&entry[K, V]{key: key, value: value, insertedAt: now})
	}

	// recency approximates insertion order, so expired entries cluster at
	// the front; stop at the first live one
	for el := c.ll.Front(); el != nil; el = c.ll.Front() {
		if now.Sub(el.Value.(*entry[K, V]).insertedAt) <= c.ttl {
			break
		}
		c.removeElement(el)
	}

	for len(c.items) > c.maxEntries {
		c.removeElement(c.ll.Front())
	}
}

func (c *Cache[K, V]) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry[K, V]).key)
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

type Stats struct {
	Size    int `json:"size"`
	MaxSize int `json:"maxsize"`
}

func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: len(c.items), MaxSize: c.maxEntries}
}
