package catalog

import (
	"slices"
	"sync"
	"time"
)

// Clock supplies the current time. Tests inject a fake.
type Clock func() time.Time

type cacheEntry struct {
	models   []Model
	storedAt time.Time
}

// Cache holds discovered model lists keyed by backend, expiring entries
// after a TTL. The gateway owns one instance and hands it to the catalog
// service.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     Clock
	entries map[string]cacheEntry
}

// NewCache creates a cache with the given TTL. A nil clock uses time.Now;
// a non-positive TTL disables expiry.
func NewCache(ttl time.Duration, now Clock) *Cache {
	if now == nil {
		now = time.Now
	}

	return &Cache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]cacheEntry),
	}
}

// Put stores a model list under a key, resetting its expiry.
func (c *Cache) Put(key string, models []Model) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		models:   slices.Clone(models),
		storedAt: c.now(),
	}
}

// Get returns the unexpired list stored under key.
func (c *Cache) Get(key string) ([]Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.expired(entry) {
		return nil, false
	}

	return slices.Clone(entry.models), true
}

// Merge merges the unexpired entries named by keys, in argument order, so
// later keys win conflicts. Missing and expired entries are skipped.
func (c *Cache) Merge(keys ...string) []Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lists := make([][]Model, 0, len(keys))
	for _, key := range keys {
		entry, ok := c.entries[key]
		if !ok || c.expired(entry) {
			continue
		}
		lists = append(lists, entry.models)
	}

	return MergeModels(lists...)
}

func (c *Cache) expired(entry cacheEntry) bool {
	if c.ttl <= 0 {
		return false
	}

	return c.now().Sub(entry.storedAt) >= c.ttl
}
