// Package metrics collects per-request search telemetry and ships periodic
// snapshots to the data mesh.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// RequestMetrics is one recorded retrieval run.
type RequestMetrics struct {
	RequestID         string    `json:"request_id"`
	Timestamp         time.Time `json:"timestamp"`
	LatencyMS         float64   `json:"latency_ms"`
	IntentCacheHit    bool      `json:"intent_cache_hit"`
	Matched           bool      `json:"matched"`
	AmbiguityDetected bool      `json:"ambiguity_detected"`
	Reranked          bool      `json:"reranked"`
	TopScore          float64   `json:"top_score"`
	UseCase           string    `json:"use_case,omitempty"`
}

// Counters is the cumulative counter set since process start.
type Counters struct {
	Requests            uint64 `json:"requests"`
	Matches             uint64 `json:"matches"`
	NoMatches           uint64 `json:"no_matches"`
	CacheHits           uint64 `json:"cache_hits"`
	CacheMisses         uint64 `json:"cache_misses"`
	AmbiguityDetections uint64 `json:"ambiguity_detections"`
	RerankActivations   uint64 `json:"rerank_activations"`
	Approvals           uint64 `json:"approvals"`
	Rejections          uint64 `json:"rejections"`
	FalsePositives      uint64 `json:"false_positives"`
	Errors              uint64 `json:"errors"`
}

// Percentiles is the latency distribution summary.
type Percentiles struct {
	P50 float64 `json:"p50_ms"`
	P95 float64 `json:"p95_ms"`
	P99 float64 `json:"p99_ms"`
}

// Aggregate summarizes the request buffer over a time window.
type Aggregate struct {
	WindowStart   time.Time   `json:"window_start"`
	WindowEnd     time.Time   `json:"window_end"`
	Requests      int         `json:"requests"`
	MatchRate     float64     `json:"match_rate"`
	CacheHitRate  float64     `json:"cache_hit_rate"`
	AmbiguityRate float64     `json:"ambiguity_rate"`
	RerankRate    float64     `json:"rerank_rate"`
	Latency       Percentiles `json:"latency"`
}

// Snapshot is the exporter payload: counters plus the live latency profile.
type Snapshot struct {
	Timestamp time.Time   `json:"timestamp"`
	Counters  Counters    `json:"counters"`
	Latency   Percentiles `json:"latency"`
	Requests  int         `json:"buffered_requests"`
}

// falsePositiveThreshold: a rejection this confident counts as a false
// positive of the scorer.
const falsePositiveThreshold = 0.7

// Collector keeps a circular buffer of recent requests plus cumulative
// counters. All methods are safe for concurrent use.
type Collector struct {
	mu       sync.RWMutex
	counters Counters

	buf     []RequestMetrics // circular, len == cap once full
	bufNext int
	bufFull bool

	latencies []float64 // parallel bounded list, same rotation as buf
}

// NewCollector creates a Collector holding up to maxRequests entries.
// Non-positive maxRequests defaults to 10000.
func NewCollector(maxRequests int) *Collector {
	if maxRequests <= 0 {
		maxRequests = 10000
	}
	return &Collector{
		buf:       make([]RequestMetrics, maxRequests),
		latencies: make([]float64, 0, maxRequests),
	}
}

// RecordRequest adds one retrieval run to the buffer and counters.
func (c *Collector) RecordRequest(m RequestMetrics) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters.Requests++
	if m.Matched {
		c.counters.Matches++
	} else {
		c.counters.NoMatches++
	}
	if m.IntentCacheHit {
		c.counters.CacheHits++
	} else {
		c.counters.CacheMisses++
	}
	if m.AmbiguityDetected {
		c.counters.AmbiguityDetections++
	}
	if m.Reranked {
		c.counters.RerankActivations++
	}

	c.buf[c.bufNext] = m
	c.bufNext++
	if c.bufNext == len(c.buf) {
		c.bufNext = 0
		c.bufFull = true
	}

	if len(c.latencies) < cap(c.latencies) {
		c.latencies = append(c.latencies, m.LatencyMS)
	} else {
		// Same rotation index as the request buffer.
		c.latencies[(c.bufNext+len(c.buf)-1)%len(c.buf)] = m.LatencyMS
	}
}

// RecordFeedback updates approval counters. A rejection whose score at
// decision time exceeded the confidence threshold also counts as a false
// positive.
func (c *Collector) RecordFeedback(outcome models.DecisionOutcome, scoreAtDecision float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch outcome {
	case models.OutcomeApproved:
		c.counters.Approvals++
	case models.OutcomeRejected, models.OutcomeModified:
		c.counters.Rejections++
		if scoreAtDecision > falsePositiveThreshold {
			c.counters.FalsePositives++
		}
	}
}

// RecordError increments the error counter.
func (c *Collector) RecordError() {
	c.mu.Lock()
	c.counters.Errors++
	c.mu.Unlock()
}

// GetCounters returns a copy of the cumulative counters.
func (c *Collector) GetCounters() Counters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters
}

// ErrorRate returns errors/requests, or 0 with no traffic.
func (c *Collector) ErrorRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.counters.Requests == 0 {
		return 0
	}
	return float64(c.counters.Errors) / float64(c.counters.Requests)
}

// LatencyPercentiles computes p50/p95/p99 from the recent latency list.
func (c *Collector) LatencyPercentiles() Percentiles {
	c.mu.RLock()
	sorted := make([]float64, len(c.latencies))
	copy(sorted, c.latencies)
	c.mu.RUnlock()

	return percentilesOf(sorted)
}

// percentilesOf sorts in place and reads the nearest-rank percentiles.
func percentilesOf(latencies []float64) Percentiles {
	if len(latencies) == 0 {
		return Percentiles{}
	}
	sort.Float64s(latencies)
	return Percentiles{
		P50: percentile(latencies, 0.50),
		P95: percentile(latencies, 0.95),
		P99: percentile(latencies, 0.99),
	}
}

// percentile assumes sorted input; nearest-rank method.
func percentile(sorted []float64, p float64) float64 {
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// AggregateHourly summarizes the last hour of buffered requests.
func (c *Collector) AggregateHourly(now time.Time) Aggregate {
	return c.aggregateWindow(now.Add(-time.Hour), now)
}

// AggregateDaily summarizes the last 24 hours of buffered requests.
func (c *Collector) AggregateDaily(now time.Time) Aggregate {
	return c.aggregateWindow(now.Add(-24*time.Hour), now)
}

func (c *Collector) aggregateWindow(from, to time.Time) Aggregate {
	c.mu.RLock()
	entries := make([]RequestMetrics, len(c.bufferedLocked()))
	copy(entries, c.bufferedLocked())
	c.mu.RUnlock()

	agg := Aggregate{WindowStart: from, WindowEnd: to}
	var matched, cacheHits, ambiguous, reranked int
	var latencies []float64

	for i := range entries {
		m := &entries[i]
		if m.Timestamp.Before(from) || m.Timestamp.After(to) {
			continue
		}
		agg.Requests++
		if m.Matched {
			matched++
		}
		if m.IntentCacheHit {
			cacheHits++
		}
		if m.AmbiguityDetected {
			ambiguous++
		}
		if m.Reranked {
			reranked++
		}
		latencies = append(latencies, m.LatencyMS)
	}

	if agg.Requests > 0 {
		n := float64(agg.Requests)
		agg.MatchRate = float64(matched) / n
		agg.CacheHitRate = float64(cacheHits) / n
		agg.AmbiguityRate = float64(ambiguous) / n
		agg.RerankRate = float64(reranked) / n
		agg.Latency = percentilesOf(latencies)
	}
	return agg
}

// GetSnapshot builds the exporter payload.
func (c *Collector) GetSnapshot() Snapshot {
	c.mu.RLock()
	counters := c.counters
	n := len(c.latencies)
	sorted := make([]float64, n)
	copy(sorted, c.latencies)
	c.mu.RUnlock()

	return Snapshot{
		Timestamp: time.Now(),
		Counters:  counters,
		Latency:   percentilesOf(sorted),
		Requests:  n,
	}
}

// bufferedLocked returns the live entries; caller holds at least the read
// lock and must copy before releasing it.
func (c *Collector) bufferedLocked() []RequestMetrics {
	if c.bufFull {
		return c.buf
	}
	return c.buf[:c.bufNext]
}
