// Package cache provides the process-wide TTL cache for raw secret
// material. Entries expire on a monotonic clock and are evicted lazily on
// read; no background sweeper runs, so Size reflects stored entries
// including stale ones that have not been read since expiring.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value     string
	expiresAt time.Time
}

// TTLCache is a mutex-guarded map from key to value with a per-entry TTL.
// It is safe for concurrent use; no operation performs I/O or blocks beyond
// the critical section.
type TTLCache struct {
	mu      sync.Mutex
	entries map[string]entry

	// now is injectable for deterministic expiry tests. time.Time carries a
	// monotonic reading, so expiry is immune to wall-clock adjustment.
	now func() time.Time
}

// New creates an empty cache.
func New() *TTLCache {
	return NewWithClock(time.Now)
}

// NewWithClock creates a cache that reads time through now. Tests use this
// to advance time without sleeping.
func NewWithClock(now func() time.Time) *TTLCache {
	return &TTLCache{
		entries: make(map[string]entry),
		now:     now,
	}
}

// Set stores value under key, overwriting any existing entry. The entry
// expires ttl from now.
func (c *TTLCache) Set(key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Get returns the value for key if present and unexpired. Stale entries are
// evicted on read.
func (c *TTLCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return "", false
	}

	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return "", false
	}

	return e.value, true
}

// Delete removes the entry for key if present.
func (c *TTLCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// Clear removes all entries.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]entry)
}

// Size returns the number of stored entries, counting stale entries that
// have not yet been evicted by a read.
func (c *TTLCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

var (
	defaultOnce  sync.Once
	defaultCache *TTLCache
)

// Default returns the shared process-wide cache, created on first use.
// Providers accept an injected cache; this instance exists so that
// independently constructed providers share entries by default.
func Default() *TTLCache {
	defaultOnce.Do(func() {
		defaultCache = New()
	})
	return defaultCache
}
