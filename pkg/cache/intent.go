// Package cache holds the process-wide in-memory caches: normalized intents
// and quality metrics. Both are safe for concurrent use.
package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// intentEntry is one cached intent. A single entry can be reachable through
// several keys (the canonical key plus synonym-expanded variants); eviction
// removes every alias at once.
type intentEntry struct {
	intent    models.Intent
	createdAt time.Time
	ttl       time.Duration
	keys      []string
}

func (e *intentEntry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) > e.ttl
}

// IntentCache is a bounded LRU from cache key to normalized intent.
// Capacity counts entries, not keys.
type IntentCache struct {
	mu       sync.RWMutex
	capacity int
	ttl      time.Duration

	ll    *list.List               // front = most recent; values are *intentEntry
	index map[string]*list.Element // every alias key points at the shared element

	hits   uint64
	misses uint64
}

// NewIntentCache creates an IntentCache. Non-positive capacity falls back to
// 10000 entries; non-positive ttl falls back to 7 days.
func NewIntentCache(capacity int, ttl time.Duration) *IntentCache {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &IntentCache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Get returns the cached intent for key. Expiry is checked on read; an
// expired entry is removed and counted as a miss.
func (c *IntentCache) Get(key string) (models.Intent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.misses++
		return models.Intent{}, false
	}

	entry := el.Value.(*intentEntry)
	if entry.expired(time.Now()) {
		c.removeElement(el)
		c.misses++
		return models.Intent{}, false
	}

	c.ll.MoveToFront(el)
	c.hits++
	return entry.intent, true
}

// Set stores intent under key, plus any variantKeys aliasing the same entry.
// Evicts the least recently used entry when over capacity.
func (c *IntentCache) Set(key string, intent models.Intent, variantKeys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Replacing an existing key drops the old entry (and all its aliases)
	// rather than patching in place.
	if el, ok := c.index[key]; ok {
		c.removeElement(el)
	}

	keys := append([]string{key}, variantKeys...)
	entry := &intentEntry{
		intent:    intent,
		createdAt: time.Now(),
		ttl:       c.ttl,
		keys:      keys,
	}

	el := c.ll.PushFront(entry)
	for _, k := range keys {
		if old, ok := c.index[k]; ok && old != el {
			c.removeElement(old)
		}
		c.index[k] = el
	}

	for c.ll.Len() > c.capacity {
		c.removeElement(c.ll.Back())
	}
}

// Invalidate removes the entry reachable through key, including all aliases.
func (c *IntentCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.removeElement(el)
	}
}

// Clear drops all entries. Hit/miss counters are preserved.
func (c *IntentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.index = make(map[string]*list.Element)
}

// Len returns the number of distinct entries (not alias keys).
func (c *IntentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ll.Len()
}

// Stats returns hit/miss counters and the derived hit rate.
func (c *IntentCache) Stats() (hits, misses uint64, hitRate float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hits, misses = c.hits, c.misses
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return hits, misses, hitRate
}

// removeElement must be called with the write lock held.
func (c *IntentCache) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	entry := el.Value.(*intentEntry)
	for _, k := range entry.keys {
		if c.index[k] == el {
			delete(c.index, k)
		}
	}
	c.ll.Remove(el)
}
