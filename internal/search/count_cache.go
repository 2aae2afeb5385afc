package search

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"torrentstream/catalog/internal/domain"
	"torrentstream/catalog/internal/metrics"
)

const (
	defaultCountCacheSize    = 256
	defaultCountComputeLimit = 5 * time.Second
)

type countEntry struct {
	value     int64
	expiresAt time.Time
	lastUsed  atomic.Int64 // unix nanos
}

// CountCache holds total-match counts keyed by query signature. Lookups of a
// live entry take no lock; inserts, expiry removal and eviction are
// serialised by mu. A hit refreshes recency only, never expiry.
type CountCache struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time
	remote   *RedisCountBackend
	// computeTimeout bounds a shared count, which outlives any one caller.
	computeTimeout time.Duration

	entries sync.Map // string -> *countEntry
	mu      sync.Mutex
	size    atomic.Int64
	group   singleflight.Group
}

type CountCacheOption func(*CountCache)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) CountCacheOption {
	return func(c *CountCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRemoteTier shares counts between processes through Redis. The local
// tier is still consulted first.
func WithRemoteTier(backend *RedisCountBackend) CountCacheOption {
	return func(c *CountCache) {
		c.remote = backend
	}
}

// WithComputeTimeout bounds each shared count computation. Non-positive
// values keep the default.
func WithComputeTimeout(timeout time.Duration) CountCacheOption {
	return func(c *CountCache) {
		if timeout > 0 {
			c.computeTimeout = timeout
		}
	}
}

// NewCountCache returns a cache with the given lifetime and capacity. A zero
// ttl disables caching: every lookup misses and every count is recomputed.
func NewCountCache(ttl time.Duration, capacity int, opts ...CountCacheOption) *CountCache {
	if capacity <= 0 {
		capacity = defaultCountCacheSize
	}
	c := &CountCache{
		ttl:            ttl,
		capacity:       capacity,
		now:            time.Now,
		computeTimeout: defaultCountComputeLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CountCache) Enabled() bool {
	return c != nil && c.ttl > 0
}

func (c *CountCache) Len() int {
	if c == nil {
		return 0
	}
	return int(c.size.Load())
}

// Get returns a live count. An expired entry is removed and reported as a miss.
func (c *CountCache) Get(key string) (int64, bool) {
	if !c.Enabled() {
		return 0, false
	}
	raw, ok := c.entries.Load(key)
	if !ok {
		return 0, false
	}
	entry := raw.(*countEntry)
	now := c.now()
	if !now.Before(entry.expiresAt) {
		c.mu.Lock()
		if c.entries.CompareAndDelete(key, entry) {
			c.size.Add(-1)
		}
		c.mu.Unlock()
		return 0, false
	}
	entry.lastUsed.Store(now.UnixNano())
	return entry.value, true
}

// Set stores value under key, overwriting any previous entry, then trims the
// cache back to capacity if the insert overflowed it.
func (c *CountCache) Set(key string, value int64) {
	if !c.Enabled() {
		return
	}
	now := c.now()
	entry := &countEntry{value: value, expiresAt: now.Add(c.ttl)}
	entry.lastUsed.Store(now.UnixNano())

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, loaded := c.entries.Swap(key, entry); !loaded {
		c.size.Add(1)
	}
	if int(c.size.Load()) > c.capacity {
		c.trimLocked(now)
	}
}

// Reset empties the local tier and flushes the remote one. Run it after the
// searched data changes in bulk, such as a document index sync.
func (c *CountCache) Reset(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	c.mu.Lock()
	c.entries.Range(func(k, v any) bool {
		if c.entries.CompareAndDelete(k, v) {
			c.size.Add(-1)
		}
		return true
	})
	c.mu.Unlock()

	if c.remote != nil {
		if _, err := c.remote.Flush(ctx); err != nil {
			return domain.BackendUnavailable("redis", err)
		}
	}
	return nil
}

// trimLocked drops expired entries, then the least recently used ones until
// the cache fits. Callers hold mu.
func (c *CountCache) trimLocked(now time.Time) {
	type pair struct {
		key      string
		entry    *countEntry
		lastUsed int64
	}
	items := make([]pair, 0, c.size.Load())
	c.entries.Range(func(k, v any) bool {
		key := k.(string)
		entry := v.(*countEntry)
		if !now.Before(entry.expiresAt) {
			if c.entries.CompareAndDelete(key, entry) {
				c.size.Add(-1)
			}
			return true
		}
		items = append(items, pair{key: key, entry: entry, lastUsed: entry.lastUsed.Load()})
		return true
	})

	excess := int(c.size.Load()) - c.capacity
	if excess <= 0 {
		return
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].lastUsed < items[j].lastUsed
	})
	for i := 0; i < excess && i < len(items); i++ {
		if c.entries.CompareAndDelete(items[i].key, items[i].entry) {
			c.size.Add(-1)
			metrics.CountCacheEvictionsTotal.Inc()
		}
	}
}

// GetOrCompute returns the cached count for key or computes it with fn.
// Concurrent callers for one key share a single fn call. That call runs
// detached from every caller's cancellation, bounded by the compute timeout,
// so a caller that gives up only abandons its own wait. Errors from fn are
// never cached and come back wrapped as domain.ErrBackendUnavailable.
func (c *CountCache) GetOrCompute(ctx context.Context, key string, fn func(context.Context) (int64, error)) (int64, error) {
	if !c.Enabled() {
		n, err := fn(ctx)
		if err != nil {
			return 0, domain.BackendUnavailable("count", err)
		}
		return n, nil
	}

	if n, ok := c.Get(key); ok {
		metrics.CountCacheHitsTotal.Inc()
		return n, nil
	}

	if c.remote != nil {
		n, found, err := c.remote.Get(ctx, key)
		if err == nil && found {
			metrics.CountCacheHitsTotal.Inc()
			c.Set(key, n)
			return n, nil
		}
	}
	metrics.CountCacheMissesTotal.Inc()

	ch := c.group.DoChan(key, func() (any, error) {
		if n, ok := c.Get(key); ok {
			return n, nil
		}
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()
		n, err := fn(shared)
		if err != nil {
			return int64(0), err
		}
		c.Set(key, n)
		if c.remote != nil {
			_ = c.remote.Set(shared, key, n, c.ttl)
		}
		return n, nil
	})

	select {
	case <-ctx.Done():
		return 0, domain.BackendUnavailable("count", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return 0, domain.BackendUnavailable("count", res.Err)
		}
		return res.Val.(int64), nil
	}
}
