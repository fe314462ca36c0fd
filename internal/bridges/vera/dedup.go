package vera

import (
	"sync"
	"time"
)

// DedupCache remembers keys for a fixed window.
//
// Seen is a single check-and-set under the cache lock, so two concurrent
// callers can never both see a key as new. A hit does not extend the
// window: the key is accepted again once ttl has passed since the first
// acceptance.
type DedupCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
}

// NewDedupCache returns a cache with the given window. A nil clock uses time.Now.
func NewDedupCache(ttl time.Duration, now func() time.Time) *DedupCache {
	if now == nil {
		now = time.Now
	}
	return &DedupCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]time.Time),
	}
}

// Seen reports whether key was accepted within the window. When it was not,
// the key is recorded as accepted now.
func (c *DedupCache) Seen(key string) bool {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.entries[key]; ok && now.Sub(last) < c.ttl {
		return true
	}
	c.entries[key] = now
	return false
}

// Sweep drops expired keys and returns how many were removed.
func (c *DedupCache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, last := range c.entries {
		if now.Sub(last) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Prune drops every key for which keep returns false.
func (c *DedupCache) Prune(keep func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if !keep(key) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys, expired or not.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
