/*
Package cache provides caching of WordPress taxonomy lookups.

Resolving a category or tag name to its numeric id costs one or two REST calls
per target. The ids are stable, so they are kept in an in-memory cache with a
TTL and shared by every publish attempt.
*/
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/Nexora-Open-Source/feed-republisher/monitoring"
)

// DefaultTTL is how long a resolved term id is trusted.
const DefaultTTL = 30 * time.Minute

// CacheItem is a cached term id with expiration
type CacheItem struct {
	ID        int
	ExpiresAt time.Time
}

// IsExpired checks if the cache item has expired at now
func (c *CacheItem) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// TermCache is the lookup surface used by the WordPress client.
type TermCache interface {
	Get(targetURL, taxonomy, name string) (int, bool)
	Set(targetURL, taxonomy, name string, id int)
	Invalidate(targetURL string)
}

// CategoryCache implements TermCache in memory.
type CategoryCache struct {
	items map[string]*CacheItem
	mutex sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
}

// NewCategoryCache creates a cache whose entries live for ttl
func NewCategoryCache(ttl time.Duration) *CategoryCache {
	return &CategoryCache{
		items: make(map[string]*CacheItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

// key is case-insensitive on the term name, like WordPress term lookups.
func key(targetURL, taxonomy, name string) string {
	return strings.TrimRight(targetURL, "/") + "|" + taxonomy + "|" + strings.ToLower(strings.TrimSpace(name))
}

// Get returns the cached id of a term
func (c *CategoryCache) Get(targetURL, taxonomy, name string) (int, bool) {
	c.mutex.RLock()
	item, exists := c.items[key(targetURL, taxonomy, name)]
	c.mutex.RUnlock()

	if !exists || item.IsExpired(c.now()) {
		monitoring.RecordCacheMiss(taxonomy)
		return 0, false
	}
	monitoring.RecordCacheHit(taxonomy)
	return item.ID, true
}

// Set stores the id of a term
func (c *CategoryCache) Set(targetURL, taxonomy, name string, id int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key(targetURL, taxonomy, name)] = &CacheItem{
		ID:        id,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

// Invalidate drops every entry of a target
func (c *CategoryCache) Invalidate(targetURL string) {
	prefix := strings.TrimRight(targetURL, "/") + "|"

	c.mutex.Lock()
	defer c.mutex.Unlock()

	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
}

// Cleanup removes expired items and returns how many were dropped
func (c *CategoryCache) Cleanup() int {
	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for k, item := range c.items {
		if item.IsExpired(now) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries, expired ones included
func (c *CategoryCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.items)
}
