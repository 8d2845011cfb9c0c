package tokens

import "sync"

// Entry is the per-token configuration loaded from the token store.
type Entry struct {
	RateLimit int
}

// Cache holds the current token set in memory.
type Cache struct {
	mu sync.RWMutex
	m  map[string]Entry
}

// NewCache returns an empty, not yet ready cache.
func NewCache() *Cache {
	return &Cache{}
}

// Replace swaps in a copy of m and marks the cache ready.
func (c *Cache) Replace(m map[string]Entry) {
	cp := make(map[string]Entry, len(m))
	for k, v := range m {
		cp[k] = v
	}
	c.mu.Lock()
	c.m = cp
	c.mu.Unlock()
}

// Ready returns true if the cache has been initialized at least once.
func (c *Cache) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.m != nil
}

// Validate checks whether the given token exists in the cached list.
func (c *Cache) Validate(token string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.m[token]
	return ok
}

// RateLimit returns the configured rate limit for token. Unknown tokens
// return 0, which disables per-token limiting.
func (c *Cache) RateLimit(token string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.m[token].RateLimit
}
