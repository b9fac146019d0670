package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/cache"
	"github.com/catalogo-ai/catalog-engine/pkg/metrics"
	"github.com/catalogo-ai/catalog-engine/pkg/retriever"
)

func healthFixture() (*HealthChecker, *retriever.MockRetriever, *metrics.Collector, *cache.QualityCache) {
	index := retriever.NewMockRetriever()
	collector := metrics.NewCollector(100)
	quality := cache.NewQualityCache()
	h := NewHealthChecker(index, collector, quality, nil, true, zap.NewNop())
	return h, index, collector, quality
}

func componentByName(t *testing.T, r HealthReport, name string) ComponentHealth {
	t.Helper()
	for _, c := range r.Components {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("component %s not in report", name)
	return ComponentHealth{}
}

func TestHealthCheckAllGreen(t *testing.T) {
	h, _, collector, _ := healthFixture()
	collector.RecordRequest(metrics.RequestMetrics{LatencyMS: 120, Matched: true})

	report := h.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	for _, c := range report.Components {
		assert.Equal(t, StatusHealthy, c.Status, c.Name)
	}
}

func TestHealthUnhealthyWhenLLMKeyMissing(t *testing.T) {
	h, _, _, _ := healthFixture()
	h.llmConfigured = false

	report := h.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, StatusUnhealthy, componentByName(t, report, "llm").Status)
}

func TestHealthUnhealthyWhenIndexDown(t *testing.T) {
	h, index, _, _ := healthFixture()
	index.HealthyFunc = func(context.Context) error { return errors.New("connection refused") }

	report := h.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	c := componentByName(t, report, "vector_index")
	assert.Equal(t, StatusUnhealthy, c.Status)
	assert.Contains(t, c.Detail, "connection refused")
}

func TestHealthErrorRateThresholds(t *testing.T) {
	h, _, collector, _ := healthFixture()

	// 100 requests, 8 errors: 8% sits in the degraded band.
	for i := 0; i < 100; i++ {
		collector.RecordRequest(metrics.RequestMetrics{LatencyMS: 50, Matched: true})
	}
	for i := 0; i < 8; i++ {
		collector.RecordError()
	}
	report := h.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusDegraded, componentByName(t, report, "error_rate").Status)

	// Push past 10%.
	for i := 0; i < 5; i++ {
		collector.RecordError()
	}
	report = h.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, componentByName(t, report, "error_rate").Status)
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestHealthLatencyThresholds(t *testing.T) {
	h, _, collector, _ := healthFixture()

	collector.RecordRequest(metrics.RequestMetrics{LatencyMS: 3000, Matched: true})
	report := h.Check(context.Background())
	c := componentByName(t, report, "latency")
	assert.Equal(t, StatusDegraded, c.Status)
	assert.Contains(t, c.Detail, "p95")

	collector.RecordRequest(metrics.RequestMetrics{LatencyMS: 9000, Matched: true})
	report = h.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, componentByName(t, report, "latency").Status)
}

func TestHealthQualityCacheStaleness(t *testing.T) {
	h, _, _, quality := healthFixture()
	quality.Set("tb_vendas", 90, time.Now())

	report := h.Check(context.Background())
	require.Equal(t, StatusHealthy, componentByName(t, report, "quality_cache").Status)

	// Advance the checker's clock past the staleness window.
	h.now = func() time.Time { return time.Now().Add(72 * time.Hour) }
	report = h.Check(context.Background())
	assert.Equal(t, StatusDegraded, componentByName(t, report, "quality_cache").Status)
	assert.Equal(t, StatusDegraded, report.Status)
}

func TestHealthSkipsAbsentComponents(t *testing.T) {
	h := NewHealthChecker(nil, nil, nil, nil, true, zap.NewNop())
	report := h.Check(context.Background())
	require.Len(t, report.Components, 1, "only the llm check runs")
	assert.Equal(t, StatusHealthy, report.Status)
}
