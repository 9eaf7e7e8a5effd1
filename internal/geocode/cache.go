// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package geocode

import "sync"

// cached pairs a provider result with the provider that produced it.
type cached struct {
	result   ProviderResult
	provider string
	fallback bool
}

// Cache short-circuits repeated lookups of identical normalized addresses
// within the process lifetime. State is process-local; duplicate lookups
// across instances are wasteful but safe.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cached
}

// NewCache returns an empty geocode cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cached)}
}

func (c *Cache) get(key string) (cached, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *Cache) put(key string, e cached) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
}

func (c *Cache) drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of cached addresses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
