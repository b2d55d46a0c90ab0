package rules

import (
	"sync"
	"time"

	"signalcraft-go/internal/domain"
	"signalcraft-go/internal/metrics"
)

// cacheEntry holds one workspace's enabled rule set.
type cacheEntry struct {
	rules    []*domain.RoutingRule
	cachedAt time.Time
}

// Cache is a per-workspace rule cache with a fixed TTL. Invalidation is
// immediately visible to subsequent reads in the same process; other
// instances converge within the TTL.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

// NewCache creates a rule cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Get returns the cached rule set for a workspace, or false when absent or
// expired.
func (c *Cache) Get(workspaceID string) ([]*domain.RoutingRule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[workspaceID]
	if !ok || time.Since(entry.cachedAt) >= c.ttl {
		metrics.RuleCacheHitsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.RuleCacheHitsTotal.WithLabelValues("hit").Inc()
	return entry.rules, true
}

// Set stores a workspace's rule set.
func (c *Cache) Set(workspaceID string, rules []*domain.RoutingRule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[workspaceID] = cacheEntry{rules: rules, cachedAt: time.Now()}
}

// Invalidate drops a workspace's entry. Must be called on any rule mutation
// so the cache never serves a rule set its owning workspace knows is stale.
func (c *Cache) Invalidate(workspaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, workspaceID)
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}
