// Package cache provides a generic TTL cache. The engine uses it to
// memoize device configuration reads so repeated lookups do not round
// trip over the wire.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// EvictCallback is invoked after an entry is removed by expiry or
// Delete. It runs outside the cache lock.
type EvictCallback[V any] func(key string, value V)

// Statistics counts cache activity. All counters are atomic.
type Statistics struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	size      atomic.Int64
}

// Snapshot is a point-in-time copy of the statistics.
type Snapshot struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int64 `json:"size"`
}

func (s *Statistics) snapshot() Snapshot {
	return Snapshot{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions.Load(),
		Size:      s.size.Load(),
	}
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *entry[V]) expired() bool {
	return time.Now().After(e.expiresAt)
}

// TTL is a thread-safe cache whose entries expire a fixed duration
// after they are set. A background goroutine sweeps expired entries;
// Close stops it.
type TTL[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	items   map[string]*entry[V]
	stats   Statistics
	evictFn EvictCallback[V]

	closeOnce sync.Once
	shutdown  chan struct{}
}

// Option configures a TTL cache.
type Option[V any] func(*TTL[V])

// WithEvictCallback registers a callback for expired or deleted
// entries.
func WithEvictCallback[V any](fn EvictCallback[V]) Option[V] {
	return func(c *TTL[V]) { c.evictFn = fn }
}

// NewTTL creates a TTL cache. cleanupInterval bounds how long expired
// entries linger before the sweeper removes them; reads never return
// expired values regardless.
func NewTTL[V any](ttl, cleanupInterval time.Duration, opts ...Option[V]) *TTL[V] {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = ttl
	}

	c := &TTL[V]{
		ttl:      ttl,
		items:    make(map[string]*entry[V]),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.sweep(cleanupInterval)
	return c
}

// Get returns the cached value for key if present and fresh.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		c.stats.misses.Add(1)
		return zero, false
	}

	if e.expired() {
		c.removeExpired(key)
		var zero V
		c.stats.misses.Add(1)
		return zero, false
	}

	c.stats.hits.Add(1)
	return e.value, true
}

// Set stores value under key, resetting its TTL.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	c.items[key] = &entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.stats.size.Store(int64(len(c.items)))
	c.mu.Unlock()
}

// Delete removes key. Unknown keys are a no-op.
func (c *TTL[V]) Delete(key string) {
	c.mu.Lock()
	e, ok := c.items[key]
	if ok {
		delete(c.items, key)
		c.stats.size.Store(int64(len(c.items)))
	}
	c.mu.Unlock()

	if ok && c.evictFn != nil {
		c.evictFn(key, e.value)
	}
}

// Len returns the number of entries, including any not yet swept.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns a snapshot of cache activity.
func (c *TTL[V]) Stats() Snapshot {
	return c.stats.snapshot()
}

// Close stops the background sweeper. The cache stays readable.
func (c *TTL[V]) Close() {
	c.closeOnce.Do(func() { close(c.shutdown) })
}

func (c *TTL[V]) removeExpired(key string) {
	c.mu.Lock()
	e, ok := c.items[key]
	if ok && e.expired() {
		delete(c.items, key)
		c.stats.evictions.Add(1)
		c.stats.size.Store(int64(len(c.items)))
	} else {
		ok = false
	}
	c.mu.Unlock()

	if ok && c.evictFn != nil {
		c.evictFn(key, e.value)
	}
}

func (c *TTL[V]) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			var evicted []struct {
				key   string
				value V
			}
			c.mu.Lock()
			for key, e := range c.items {
				if e.expired() {
					delete(c.items, key)
					c.stats.evictions.Add(1)
					evicted = append(evicted, struct {
						key   string
						value V
					}{key, e.value})
				}
			}
			c.stats.size.Store(int64(len(c.items)))
			c.mu.Unlock()

			if c.evictFn != nil {
				for _, ev := range evicted {
					c.evictFn(ev.key, ev.value)
				}
			}
		}
	}
}
