package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/calcengine/calcengine/pkg/types"
)

// Entry is a cached result together with the time it was stored.
type Entry struct {
	Key      string
	Value    *types.CalculationResult
	StoredAt time.Time
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Size         int     `json:"size"`
	MaxSize      int     `json:"max_size"`
	UsagePercent float64 `json:"usage_percent"`
	Hits         uint64  `json:"hits"`
	Misses       uint64  `json:"misses"`
	Evictions    uint64  `json:"evictions"`
	Expired      uint64  `json:"expired"`
	TTLSeconds   float64 `json:"ttl_seconds"`
}

// Cache is a thread-safe bounded LRU of calculation results.
type Cache struct {
	mu      sync.Mutex
	lru     *simplelru.LRU[string, *Entry]
	maxSize int
	ttl     time.Duration
	now     func() time.Time // injectable for deterministic tests

	hits, misses, evictions, expired uint64
}

// New creates a Cache holding at most maxSize entries. A ttl of zero disables
// expiry.
func New(maxSize int, ttl time.Duration) (*Cache, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("cache: max size must be positive, got %d", maxSize)
	}
	l, err := simplelru.NewLRU[string, *Entry](maxSize, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Cache{lru: l, maxSize: maxSize, ttl: ttl, now: time.Now}, nil
}

// Get returns a copy of the result stored under key and marks it most recently
// used. Expired entries are removed and reported as a miss.
func (c *Cache) Get(key string) (*types.CalculationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if ok && c.stale(e, c.now()) {
		c.lru.Remove(key)
		c.expired++
		ok = false
	}
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return e.Value.Copy(), true
}

// Set stores a copy of v under key. An existing entry is replaced and becomes
// most recently used; otherwise the least recently used entry is evicted when
// the cache is full.
func (c *Cache) Set(key string, v *types.CalculationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if evicted := c.lru.Add(key, &Entry{Key: key, Value: v.Copy(), StoredAt: c.now()}); evicted {
		c.evictions++
	}
}

// Has reports whether a live entry exists for key without touching recency or
// hit counters.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Peek(key)
	return ok && !c.stale(e, c.now())
}

// Delete removes key and reports whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Clear removes every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Keys returns the cached keys from least to most recently used.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Len returns the number of entries currently held, including expired ones
// not yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Resize changes the capacity, evicting least recently used entries if the
// cache shrinks below its current size. It returns the number evicted.
func (c *Cache) Resize(maxSize int) (int, error) {
	if maxSize <= 0 {
		return 0, fmt.Errorf("cache: max size must be positive, got %d", maxSize)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.lru.Resize(maxSize)
	c.maxSize = maxSize
	c.evictions += uint64(n)
	return n, nil
}

// SetTTL changes the expiry applied to entries. Zero disables expiry.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ttl = ttl
}

// Stats returns the current size, capacity and counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	size := c.lru.Len()
	return Stats{
		Size:         size,
		MaxSize:      c.maxSize,
		UsagePercent: float64(size) / float64(c.maxSize) * 100,
		Hits:         c.hits,
		Misses:       c.misses,
		Evictions:    c.evictions,
		Expired:      c.expired,
		TTLSeconds:   c.ttl.Seconds(),
	}
}

// stale reports whether e has outlived the TTL at now. Callers hold c.mu.
func (c *Cache) stale(e *Entry, now time.Time) bool {
	return c.ttl > 0 && !e.StoredAt.After(now.Add(-c.ttl))
}

// Evict removes entries stored before now minus TTL and returns the number
// removed. It is a no-op when expiry is disabled.
func (c *Cache) Evict(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl <= 0 {
		return 0
	}
	removed := 0
	for _, k := range c.lru.Keys() {
		if e, ok := c.lru.Peek(k); ok && c.stale(e, now) {
			c.lru.Remove(k)
			removed++
		}
	}
	c.expired += uint64(removed)
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	c.mu.Lock()
	interval := c.ttl / 2
	c.mu.Unlock()
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := c.Evict(now); n > 0 {
				slog.Debug("cache: evicted expired results", "count", n)
			}
		}
	}
}
