package cache

import (
	"sync"
	"time"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// QualityCache stores the latest known quality metric per table name. Entries
// never expire on read: staleness is the caller's concern (the health checker
// and disambiguation scoring consult cache age explicitly).
type QualityCache struct {
	mu      sync.RWMutex
	entries map[string]models.CachedQualityMetric
}

// NewQualityCache creates an empty QualityCache.
func NewQualityCache() *QualityCache {
	return &QualityCache{entries: make(map[string]models.CachedQualityMetric)}
}

// Get returns the cached metric for a table, stale or not.
func (c *QualityCache) Get(tableName string) (models.CachedQualityMetric, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[tableName]
	return m, ok
}

// GetScore returns the quality score normalized to [0,1] (stored value is
// 0-100), or def when the table has no cached metric.
func (c *QualityCache) GetScore(tableName string, def float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.entries[tableName]
	if !ok {
		return def
	}
	return m.QualityScore / 100.0
}

// Set stores or replaces the metric for a table, stamping cached_at.
func (c *QualityCache) Set(tableName string, score float64, sourceUpdatedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[tableName] = models.CachedQualityMetric{
		QualityScore:    score,
		SourceUpdatedAt: sourceUpdatedAt,
		CachedAt:        time.Now(),
	}
}

// SetBulk stores a batch of quality records, stamping a single cached_at.
func (c *QualityCache) SetBulk(records []models.QualityRecord) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		c.entries[r.TableName] = models.CachedQualityMetric{
			QualityScore:    r.QualityScore,
			SourceUpdatedAt: r.LastUpdated,
			CachedAt:        now,
		}
	}
}

// Len returns the number of cached tables.
func (c *QualityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// OldestAge returns the age of the oldest entry, or zero if the cache is
// empty. Used by the health checker to report degradation after long periods
// without a sync.
func (c *QualityCache) OldestAge(now time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var oldest time.Duration
	for _, m := range c.entries {
		if age := now.Sub(m.CachedAt); age > oldest {
			oldest = age
		}
	}
	return oldest
}
