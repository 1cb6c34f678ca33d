package marketdata

import (
	"context"
	"path"
	"sync"
	"time"

	"portfolio-sentry/internal/models"
)

type memoryEntry struct {
	value    models.PriceData
	storedAt time.Time
	ttl      time.Duration
}

func (e memoryEntry) fresh(now time.Time) bool {
	return now.Sub(e.storedAt) < e.ttl
}

// MemoryCache is the in-process CacheStore backend. Safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	statsMu sync.Mutex
	stats   CacheStats

	now func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		stats:   CacheStats{Backend: "memory"},
		now:     time.Now,
	}
}

// Get returns the value for key if a fresh entry exists.
func (c *MemoryCache) Get(_ context.Context, key string) (models.PriceData, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !entry.fresh(c.now()) {
		c.count(func(s *CacheStats) { s.Misses++ })
		return models.PriceData{}, false, nil
	}

	c.count(func(s *CacheStats) { s.Hits++ })
	return entry.value, true, nil
}

// GetStale returns the value for key regardless of freshness.
func (c *MemoryCache) GetStale(_ context.Context, key string) (models.PriceData, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return models.PriceData{}, false, nil
	}
	if !entry.fresh(c.now()) {
		c.count(func(s *CacheStats) { s.StaleHits++ })
	}
	return entry.value, true, nil
}

// Set stores value under key with the given TTL.
func (c *MemoryCache) Set(_ context.Context, key string, value models.PriceData, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = memoryEntry{value: value, storedAt: c.now(), ttl: ttl}
	c.mu.Unlock()

	c.count(func(s *CacheStats) { s.Sets++ })
	return nil
}

// ClearPattern removes all entries matching the glob pattern.
func (c *MemoryCache) ClearPattern(_ context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if ok, err := path.Match(pattern, key); err != nil {
			return removed, err
		} else if ok {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}

// HealthCheck always succeeds for the in-process backend.
func (c *MemoryCache) HealthCheck(_ context.Context) error {
	return nil
}

// Stats returns a snapshot of cache counters.
func (c *MemoryCache) Stats() CacheStats {
	c.statsMu.Lock()
	stats := c.stats
	c.statsMu.Unlock()

	c.mu.RLock()
	stats.Entries = len(c.entries)
	c.mu.RUnlock()
	return stats
}

// Close releases the cache contents.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) count(fn func(*CacheStats)) {
	c.statsMu.Lock()
	fn(&c.stats)
	c.statsMu.Unlock()
}
