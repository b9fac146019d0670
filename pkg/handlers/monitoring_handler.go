package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/cache"
	"github.com/catalogo-ai/catalog-engine/pkg/metrics"
	"github.com/catalogo-ai/catalog-engine/pkg/quality"
	"github.com/catalogo-ai/catalog-engine/pkg/services"
)

// ============================================================================
// Response Types
// ============================================================================

// IntentCacheStats is the intent-cache portion of the dashboard.
type IntentCacheStats struct {
	Entries int     `json:"entries"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// QualityCacheStats is the quality-cache portion of the dashboard.
type QualityCacheStats struct {
	Entries      int       `json:"entries"`
	OldestAgeSec float64   `json:"oldest_age_seconds"`
	LastSync     time.Time `json:"last_sync"`
	LastSyncKind string    `json:"last_sync_kind,omitempty"`
	Stale        bool      `json:"stale"`
}

// ExporterStats is the exporter portion of the dashboard.
type ExporterStats struct {
	LastFlush time.Time `json:"last_flush"`
	Pending   int       `json:"pending"`
}

// DashboardResponse aggregates the operational view for GET
// /monitoring/dashboard.
type DashboardResponse struct {
	Status      string              `json:"status"`
	Counters    metrics.Counters    `json:"counters"`
	Latency     metrics.Percentiles `json:"latency"`
	LastHour    metrics.Aggregate   `json:"last_hour"`
	IntentCache *IntentCacheStats   `json:"intent_cache,omitempty"`
	Quality     *QualityCacheStats  `json:"quality,omitempty"`
	Exporter    *ExporterStats      `json:"exporter,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// ============================================================================
// Handler
// ============================================================================

// MonitoringHandler exposes metrics, health, and the export trigger.
type MonitoringHandler struct {
	collector *metrics.Collector
	health    *services.HealthChecker
	exporter  *metrics.Exporter
	intents   *cache.IntentCache
	quality   *cache.QualityCache
	sync      *quality.SyncService
	logger    *zap.Logger
}

// NewMonitoringHandler creates a new monitoring handler. Exporter, caches and
// sync service may be nil in partial deployments; the dashboard omits them.
func NewMonitoringHandler(
	collector *metrics.Collector,
	health *services.HealthChecker,
	exporter *metrics.Exporter,
	intents *cache.IntentCache,
	qualityCache *cache.QualityCache,
	syncService *quality.SyncService,
	logger *zap.Logger,
) *MonitoringHandler {
	return &MonitoringHandler{
		collector: collector,
		health:    health,
		exporter:  exporter,
		intents:   intents,
		quality:   qualityCache,
		sync:      syncService,
		logger:    logger.Named("monitoring_handler"),
	}
}

// RegisterRoutes registers the monitoring routes on the given mux.
func (h *MonitoringHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /monitoring/metrics", h.Metrics)
	mux.HandleFunc("GET /monitoring/metrics/hourly", h.MetricsHourly)
	mux.HandleFunc("GET /monitoring/health", h.Health)
	mux.HandleFunc("GET /monitoring/dashboard", h.Dashboard)
	mux.HandleFunc("POST /monitoring/export/now", h.ExportNow)
	mux.HandleFunc("GET /health", h.Liveness)
}

// Liveness handles GET /health: a bare liveness probe for the platform.
func (h *MonitoringHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Metrics handles GET /monitoring/metrics.
func (h *MonitoringHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.collector.GetSnapshot()); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// MetricsHourly handles GET /monitoring/metrics/hourly.
func (h *MonitoringHandler) MetricsHourly(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.collector.AggregateHourly(time.Now())); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Health handles GET /monitoring/health. Degraded still answers 200; only a
// hard-down engine answers 503 so orchestrators keep routing while degraded.
func (h *MonitoringHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())
	status := http.StatusOK
	if report.Status == services.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	if err := WriteJSON(w, status, report); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// Dashboard handles GET /monitoring/dashboard.
func (h *MonitoringHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	report := h.health.Check(r.Context())

	resp := DashboardResponse{
		Status:      report.Status,
		Counters:    h.collector.GetCounters(),
		Latency:     h.collector.LatencyPercentiles(),
		LastHour:    h.collector.AggregateHourly(now),
		GeneratedAt: now,
	}

	if h.intents != nil {
		hits, misses, rate := h.intents.Stats()
		resp.IntentCache = &IntentCacheStats{
			Entries: h.intents.Len(),
			Hits:    hits,
			Misses:  misses,
			HitRate: rate,
		}
	}
	if h.quality != nil {
		stats := QualityCacheStats{
			Entries:      h.quality.Len(),
			OldestAgeSec: h.quality.OldestAge(now).Seconds(),
		}
		if h.sync != nil {
			stats.LastSync, stats.LastSyncKind = h.sync.LastSync()
			stats.Stale = h.sync.IsStale()
		}
		resp.Quality = &stats
	}
	if h.exporter != nil {
		resp.Exporter = &ExporterStats{
			LastFlush: h.exporter.LastFlush(),
			Pending:   h.exporter.Pending(),
		}
	}

	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

// ExportNow handles POST /monitoring/export/now: captures a snapshot and
// flushes the exporter buffer synchronously.
func (h *MonitoringHandler) ExportNow(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		if err := ErrorResponse(w, http.StatusServiceUnavailable, "unavailable", "exporter not configured"); err != nil {
			h.logger.Error("failed to write error response", zap.Error(err))
		}
		return
	}
	if err := h.exporter.FlushNow(r.Context()); err != nil {
		ServiceErrorResponse(w, h.logger, err)
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "flushed"}); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}
