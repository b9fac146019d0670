package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/cache"
	"github.com/catalogo-ai/catalog-engine/pkg/metrics"
	"github.com/catalogo-ai/catalog-engine/pkg/retriever"
)

// ============================================================================
// Health checker
// ============================================================================

// Component statuses, from best to worst. The overall status is the worst
// component status observed.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const (
	errorRateDegraded  = 0.05
	errorRateUnhealthy = 0.10
	p95DegradedMs      = 2000.0
	p95UnhealthyMs     = 5000.0

	// qualityStaleAfter flags the quality cache when no sync has refreshed
	// it for two days.
	qualityStaleAfter = 48 * time.Hour

	// exporterIdleAfter flags the exporter when captured metrics sit
	// unflushed for too long.
	exporterIdleAfter = 30 * time.Minute
)

// ComponentHealth is the status of one dependency.
type ComponentHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthReport aggregates component checks into one overall status.
type HealthReport struct {
	Status     string            `json:"status"`
	Components []ComponentHealth `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// HealthChecker probes the engine's dependencies. All probes are local or
// cached; Check is cheap enough to serve on every request.
type HealthChecker struct {
	index         retriever.Retriever
	collector     *metrics.Collector
	quality       *cache.QualityCache
	exporter      *metrics.Exporter
	llmConfigured bool
	logger        *zap.Logger
	now           func() time.Time
}

// NewHealthChecker wires the checker. Nil collaborators skip their component
// check, so partial deployments still report on what they run.
func NewHealthChecker(
	index retriever.Retriever,
	collector *metrics.Collector,
	quality *cache.QualityCache,
	exporter *metrics.Exporter,
	llmConfigured bool,
	logger *zap.Logger,
) *HealthChecker {
	return &HealthChecker{
		index:         index,
		collector:     collector,
		quality:       quality,
		exporter:      exporter,
		llmConfigured: llmConfigured,
		logger:        logger.Named("health"),
		now:           time.Now,
	}
}

// Check runs all component probes and returns the aggregate report.
func (h *HealthChecker) Check(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    StatusHealthy,
		CheckedAt: h.now(),
	}

	report.add(h.checkLLM())
	if h.index != nil {
		report.add(h.checkIndex(ctx))
	}
	if h.collector != nil {
		report.add(h.checkErrorRate())
		report.add(h.checkLatency())
	}
	if h.quality != nil {
		report.add(h.checkQualityCache())
	}
	if h.exporter != nil {
		report.add(h.checkExporter())
	}
	return report
}

func (r *HealthReport) add(c ComponentHealth) {
	r.Components = append(r.Components, c)
	if worse(c.Status, r.Status) {
		r.Status = c.Status
	}
}

func worse(a, b string) bool {
	return rank(a) > rank(b)
}

func rank(status string) int {
	switch status {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

func (h *HealthChecker) checkLLM() ComponentHealth {
	if !h.llmConfigured {
		return ComponentHealth{
			Name:   "llm",
			Status: StatusUnhealthy,
			Detail: "API key not configured",
		}
	}
	return ComponentHealth{Name: "llm", Status: StatusHealthy}
}

func (h *HealthChecker) checkIndex(ctx context.Context) ComponentHealth {
	if err := h.index.Healthy(ctx); err != nil {
		h.logger.Warn("vector index unreachable", zap.Error(err))
		return ComponentHealth{
			Name:   "vector_index",
			Status: StatusUnhealthy,
			Detail: err.Error(),
		}
	}
	return ComponentHealth{Name: "vector_index", Status: StatusHealthy}
}

func (h *HealthChecker) checkErrorRate() ComponentHealth {
	rate := h.collector.ErrorRate()
	c := ComponentHealth{Name: "error_rate", Status: StatusHealthy}
	switch {
	case rate > errorRateUnhealthy:
		c.Status = StatusUnhealthy
	case rate > errorRateDegraded:
		c.Status = StatusDegraded
	}
	if c.Status != StatusHealthy {
		c.Detail = fmt.Sprintf("error rate %.1f%%", rate*100)
	}
	return c
}

func (h *HealthChecker) checkLatency() ComponentHealth {
	p := h.collector.LatencyPercentiles()
	c := ComponentHealth{Name: "latency", Status: StatusHealthy}
	switch {
	case p.P95 > p95UnhealthyMs:
		c.Status = StatusUnhealthy
	case p.P95 > p95DegradedMs:
		c.Status = StatusDegraded
	}
	if c.Status != StatusHealthy {
		c.Detail = fmt.Sprintf("p95 %.0fms", p.P95)
	}
	return c
}

func (h *HealthChecker) checkQualityCache() ComponentHealth {
	age := h.quality.OldestAge(h.now())
	if age > qualityStaleAfter {
		return ComponentHealth{
			Name:   "quality_cache",
			Status: StatusDegraded,
			Detail: fmt.Sprintf("oldest entry is %s old", age.Round(time.Hour)),
		}
	}
	return ComponentHealth{Name: "quality_cache", Status: StatusHealthy}
}

func (h *HealthChecker) checkExporter() ComponentHealth {
	last := h.exporter.LastFlush()
	pending := h.exporter.Pending()
	if pending > 0 && !last.IsZero() && h.now().Sub(last) > exporterIdleAfter {
		return ComponentHealth{
			Name:   "exporter",
			Status: StatusDegraded,
			Detail: fmt.Sprintf("%d records pending since %s", pending, last.Format(time.RFC3339)),
		}
	}
	return ComponentHealth{Name: "exporter", Status: StatusHealthy}
}
