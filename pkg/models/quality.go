package models

import "time"

// QualityRecord is one row from the external quality source.
type QualityRecord struct {
	TableName    string    `json:"table_name"`
	QualityScore float64   `json:"quality_score"` // 0-100
	LastUpdated  time.Time `json:"last_updated"`
}

// CachedQualityMetric is a quality record as held by the local cache.
// Get returns the entry even if stale; callers consult CacheAge themselves.
type CachedQualityMetric struct {
	QualityScore    float64   `json:"quality_score"` // 0-100
	SourceUpdatedAt time.Time `json:"source_updated_at"`
	CachedAt        time.Time `json:"cached_at"`
}

// CacheAge returns how long ago the entry was cached.
func (m *CachedQualityMetric) CacheAge(now time.Time) time.Duration {
	return now.Sub(m.CachedAt)
}

// IsStale reports whether the entry is older than maxStale.
func (m *CachedQualityMetric) IsStale(now time.Time, maxStale time.Duration) bool {
	return m.CacheAge(now) > maxStale
}
