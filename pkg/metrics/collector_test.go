package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

func TestRecordRequestCounters(t *testing.T) {
	c := NewCollector(100)

	c.RecordRequest(RequestMetrics{Matched: true, IntentCacheHit: true, LatencyMS: 120})
	c.RecordRequest(RequestMetrics{Matched: false, AmbiguityDetected: true, Reranked: true, LatencyMS: 340})

	got := c.GetCounters()
	assert.Equal(t, uint64(2), got.Requests)
	assert.Equal(t, uint64(1), got.Matches)
	assert.Equal(t, uint64(1), got.NoMatches)
	assert.Equal(t, uint64(1), got.CacheHits)
	assert.Equal(t, uint64(1), got.CacheMisses)
	assert.Equal(t, uint64(1), got.AmbiguityDetections)
	assert.Equal(t, uint64(1), got.RerankActivations)
}

func TestRecordFeedbackFalsePositive(t *testing.T) {
	c := NewCollector(100)

	c.RecordFeedback(models.OutcomeApproved, 0.9)
	c.RecordFeedback(models.OutcomeRejected, 0.5)
	c.RecordFeedback(models.OutcomeRejected, 0.85)
	c.RecordFeedback(models.OutcomeModified, 0.95)

	got := c.GetCounters()
	assert.Equal(t, uint64(1), got.Approvals)
	assert.Equal(t, uint64(3), got.Rejections)
	assert.Equal(t, uint64(2), got.FalsePositives,
		"only rejections with score_at_decision > 0.7 count as false positives")
}

func TestLatencyPercentiles(t *testing.T) {
	c := NewCollector(1000)
	for i := 1; i <= 100; i++ {
		c.RecordRequest(RequestMetrics{LatencyMS: float64(i)})
	}

	p := c.LatencyPercentiles()
	assert.InDelta(t, 51, p.P50, 1)
	assert.InDelta(t, 96, p.P95, 1)
	assert.InDelta(t, 100, p.P99, 1)
}

func TestLatencyPercentilesEmpty(t *testing.T) {
	c := NewCollector(10)
	assert.Equal(t, Percentiles{}, c.LatencyPercentiles())
}

func TestCircularBufferOverwrite(t *testing.T) {
	c := NewCollector(3)
	base := time.Now()

	for i := 0; i < 5; i++ {
		c.RecordRequest(RequestMetrics{
			RequestID: string(rune('a' + i)),
			Timestamp: base,
			Matched:   true,
		})
	}

	// Counters see all 5; the window aggregate only sees the retained 3.
	assert.Equal(t, uint64(5), c.GetCounters().Requests)
	agg := c.AggregateHourly(base.Add(time.Minute))
	assert.Equal(t, 3, agg.Requests)
}

func TestAggregateHourlyFiltersByTimestamp(t *testing.T) {
	c := NewCollector(100)
	now := time.Now()

	c.RecordRequest(RequestMetrics{Timestamp: now.Add(-2 * time.Hour), Matched: true, LatencyMS: 10})
	c.RecordRequest(RequestMetrics{Timestamp: now.Add(-10 * time.Minute), Matched: true, IntentCacheHit: true, LatencyMS: 20})
	c.RecordRequest(RequestMetrics{Timestamp: now.Add(-5 * time.Minute), Matched: false, LatencyMS: 40})

	agg := c.AggregateHourly(now)
	assert.Equal(t, 2, agg.Requests)
	assert.InDelta(t, 0.5, agg.MatchRate, 1e-9)
	assert.InDelta(t, 0.5, agg.CacheHitRate, 1e-9)

	daily := c.AggregateDaily(now)
	assert.Equal(t, 3, daily.Requests)
}

func TestErrorRate(t *testing.T) {
	c := NewCollector(10)
	assert.Zero(t, c.ErrorRate())

	for i := 0; i < 10; i++ {
		c.RecordRequest(RequestMetrics{})
	}
	c.RecordError()

	assert.InDelta(t, 0.1, c.ErrorRate(), 1e-9)
}

func TestGetSnapshot(t *testing.T) {
	c := NewCollector(10)
	c.RecordRequest(RequestMetrics{Matched: true, LatencyMS: 50})

	snap := c.GetSnapshot()
	assert.Equal(t, uint64(1), snap.Counters.Requests)
	assert.Equal(t, 1, snap.Requests)
	assert.InDelta(t, 50, snap.Latency.P50, 1e-9)
	assert.False(t, snap.Timestamp.IsZero())
}
