package routing

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

const cacheKeySep = "\x00"

// cacheEntry is one cached routing decision.
type cacheEntry struct {
	// decision is the cached value, stored without the CacheHit flag.
	decision Decision

	// expiresAt is when this entry expires (zero time = no expiry).
	expiresAt time.Time

	// lastAccessedAt tracks the last access time for LRU eviction.
	lastAccessedAt time.Time

	// createdAt is when this entry was created.
	createdAt time.Time
}

// DecisionCache is a thread-safe TTL cache for routing decisions with
// LRU eviction and explicit per-route invalidation. Keys combine scope,
// operation, and the usage estimate, so identical requests within the
// TTL return the identical decision without re-reading the route table.
type DecisionCache struct {
	// entries maps cache keys to cached decisions
	entries map[string]*cacheEntry

	// ttl is the time-to-live for cache entries (0 = no expiry)
	ttl time.Duration

	// maxEntries is the maximum number of entries (0 = unlimited)
	maxEntries int

	// mu protects concurrent access to the cache
	mu sync.RWMutex

	// stopCh signals the cleanup goroutine to stop
	stopCh chan struct{}

	// cleanupInterval is how often to run expiry cleanup
	cleanupInterval time.Duration
}

// NewDecisionCache creates a decision cache with the specified TTL and
// max entries. If ttl is 0, entries never expire. If maxEntries is 0,
// the cache has unlimited size.
func NewDecisionCache(ttl time.Duration, maxEntries int) *DecisionCache {
	cleanupInterval := time.Minute
	if ttl > 0 {
		cleanupInterval = ttl / 2
		if cleanupInterval < 10*time.Second {
			cleanupInterval = 10 * time.Second
		}
	}

	cache := &DecisionCache{
		entries:         make(map[string]*cacheEntry),
		ttl:             ttl,
		maxEntries:      maxEntries,
		stopCh:          make(chan struct{}),
		cleanupInterval: cleanupInterval,
	}

	if ttl > 0 {
		go cache.cleanupExpired()
	}

	return cache
}

// cacheKey builds the cache key for one routing request.
func cacheKey(scopeID, operationID string, est Estimate) string {
	return scopeID + cacheKeySep + operationID + cacheKeySep +
		strconv.FormatInt(est.InputUnits, 10) + cacheKeySep +
		strconv.FormatInt(est.OutputUnits, 10)
}

// routePrefix is the key prefix shared by all estimates of one
// (scope, operation) pair. Used for targeted invalidation.
func routePrefix(scopeID, operationID string) string {
	return scopeID + cacheKeySep + operationID + cacheKeySep
}

// Get retrieves a cached decision. Returns (decision, true) if found
// and not expired; the returned decision has CacheHit unset so callers
// decide how to mark it.
func (c *DecisionCache) Get(key string) (Decision, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	if !ok {
		c.mu.RUnlock()
		return Decision{}, false
	}
	if c.ttl > 0 && time.Now().After(entry.expiresAt) {
		c.mu.RUnlock()
		return Decision{}, false
	}
	decision := entry.decision
	c.mu.RUnlock()

	c.mu.Lock()
	// Re-check: the entry may have been invalidated between locks.
	if entry, ok := c.entries[key]; ok {
		entry.lastAccessedAt = time.Now()
	}
	c.mu.Unlock()

	return decision, true
}

// Set stores a decision with the configured TTL. When the cache is
// full the least recently accessed entry is evicted.
func (c *DecisionCache) Set(key string, decision Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictLRU()
		}
	}

	now := time.Now()
	expiresAt := time.Time{}
	if c.ttl > 0 {
		expiresAt = now.Add(c.ttl)
	}

	decision.CacheHit = false
	c.entries[key] = &cacheEntry{
		decision:       decision,
		expiresAt:      expiresAt,
		createdAt:      now,
		lastAccessedAt: now,
	}
}

// InvalidateRoute drops every cached decision for (scope, operation),
// regardless of estimate. Called when an approved route change lands.
func (c *DecisionCache) InvalidateRoute(scopeID, operationID string) {
	prefix := routePrefix(scopeID, operationID)

	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Size returns the current number of entries in the cache.
func (c *DecisionCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Clear removes all entries from the cache.
func (c *DecisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
}

// Close stops the background cleanup goroutine. After calling Close,
// the cache should not be used.
func (c *DecisionCache) Close() {
	close(c.stopCh)
}

// evictLRU evicts the least recently used entry. Must be called with
// the write lock held.
func (c *DecisionCache) evictLRU() {
	if len(c.entries) == 0 {
		return
	}

	var oldestKey string
	var oldestTime time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastAccessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastAccessedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// cleanupExpired runs periodically to remove expired entries until
// Close() is called.
func (c *DecisionCache) cleanupExpired() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

// removeExpired removes all expired entries from the cache.
func (c *DecisionCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl == 0 {
		return
	}

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
