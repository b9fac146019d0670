package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/cache"
	"github.com/catalogo-ai/catalog-engine/pkg/catalog"
	"github.com/catalogo-ai/catalog-engine/pkg/config"
	"github.com/catalogo-ai/catalog-engine/pkg/database"
	"github.com/catalogo-ai/catalog-engine/pkg/feedback"
	"github.com/catalogo-ai/catalog-engine/pkg/handlers"
	"github.com/catalogo-ai/catalog-engine/pkg/llm"
	"github.com/catalogo-ai/catalog-engine/pkg/metrics"
	"github.com/catalogo-ai/catalog-engine/pkg/middleware"
	"github.com/catalogo-ai/catalog-engine/pkg/notify"
	"github.com/catalogo-ai/catalog-engine/pkg/quality"
	"github.com/catalogo-ai/catalog-engine/pkg/retriever"
	"github.com/catalogo-ai/catalog-engine/pkg/scheduler"
	"github.com/catalogo-ai/catalog-engine/pkg/services"
	"github.com/catalogo-ai/catalog-engine/pkg/services/dag"
	"github.com/catalogo-ai/catalog-engine/pkg/synonyms"
	"github.com/catalogo-ai/catalog-engine/pkg/workflow"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("qdrant", cfg.Retriever.URL),
		zap.String("llm_model", cfg.LLM.Model),
	)

	// The vector index embeds queries through the LLM endpoint, so neither
	// can be omitted. The chat model itself is optional: without it intent
	// extraction falls back to heuristics and reranking is skipped.
	if cfg.Retriever.URL == "" {
		logger.Fatal("QDRANT_URL is required")
	}
	if cfg.LLM.Endpoint == "" {
		logger.Fatal("LLM_ENDPOINT is required (query embeddings)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Migrations run over database/sql; the pool below uses pgx natively.
	migrateDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("failed to open database for migrations", zap.Error(err))
	}
	if err := database.RunMigrations(migrateDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	_ = migrateDB.Close()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	llmClient, err := llm.NewClient(&llm.Config{
		Endpoint:       cfg.LLM.Endpoint,
		Model:          cfg.LLM.Model,
		APIKey:         cfg.LLM.APIKey,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create LLM client", zap.Error(err))
	}
	var model llm.LanguageModel
	if cfg.LLM.IsAvailable() {
		model = llmClient
	} else {
		logger.Warn("no LLM model configured; intent extraction uses heuristics and reranking is disabled")
	}

	index, err := retriever.NewQdrantIndex(retriever.QdrantConfig{
		URL:              cfg.Retriever.URL,
		APIKey:           cfg.Retriever.APIKey,
		TableCollection:  cfg.Retriever.TableCollection,
		ColumnCollection: cfg.Retriever.ColumnCollection,
		Dims:             cfg.Retriever.Dims,
	}, llmClient, logger)
	if err != nil {
		logger.Fatal("failed to connect to vector index", zap.Error(err))
	}
	defer func() { _ = index.Close() }()
	if err := index.EnsureCollections(ctx); err != nil {
		logger.Fatal("failed to ensure vector collections", zap.Error(err))
	}

	dict, err := synonyms.New(cfg.Synonyms.Path, logger)
	if err != nil {
		logger.Fatal("failed to load synonym dictionary", zap.Error(err))
	}
	if cfg.Synonyms.LearnedPath != "" {
		if err := dict.LoadLearned(cfg.Synonyms.LearnedPath); err != nil {
			logger.Warn("failed to load learned synonyms", zap.Error(err))
		}
	}

	intents := cache.NewIntentCache(cfg.Search.IntentCacheSize, time.Duration(cfg.Search.IntentCacheTTLDays)*24*time.Hour)
	qualityCache := cache.NewQualityCache()
	catalogStore := catalog.NewStore()
	collector := metrics.NewCollector(cfg.Metrics.MaxEvents)

	feedbackStore := feedback.NewStore(
		feedback.NewPostgresRepository(db),
		cfg.Feedback.MinSamples,
		time.Duration(cfg.Feedback.CacheTTLMinutes)*time.Minute,
		logger,
	)

	exporter := metrics.NewExporter(
		collector,
		newMetricsSink(cfg, logger),
		time.Duration(cfg.Metrics.ExportIntervalMinutes)*time.Minute,
		cfg.Metrics.BatchSize,
		logger,
	)
	exporter.Start(ctx)
	defer exporter.Stop()

	var syncService *quality.SyncService
	if cfg.Quality.SourceURL != "" {
		syncService = quality.NewSyncService(
			quality.NewHTTPSource(cfg.Quality.SourceURL),
			qualityCache,
			quality.SyncConfig{
				SyncHour:      cfg.Quality.SyncHour,
				CheckInterval: time.Duration(cfg.Quality.CheckIntervalHours) * time.Hour,
				MaxStale:      time.Duration(cfg.Quality.MaxStaleHours) * time.Hour,
			},
			logger,
		)
		syncService.Start(ctx)
		defer syncService.Stop()
	} else {
		logger.Warn("no quality source configured; quality scores default to neutral")
	}

	pipeline := dag.New(dag.Deps{
		Catalog:    catalogStore,
		Normalizer: services.NewIntentNormalizer(model, intents, dict, logger),
		Tables:     services.NewTableSearchService(index, feedbackStore, qualityCache, logger),
		Columns:    services.NewColumnSearchService(index, logger),
		Reranker: services.NewReranker(model, services.RerankerConfig{
			SpreadThreshold: cfg.Search.RerankSpreadThreshold,
			MaxCandidates:   cfg.Search.RerankMaxCandidates,
		}, logger),
		Collector: collector,
		Ambiguity: services.AmbiguityConfig{
			ScoreTieThreshold: cfg.Search.ScoreTieThreshold,
			MinimumConfidence: cfg.Search.MinimumConfidence,
		},
		Logger: logger,
	})

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Notifier.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notifier.WebhookURL)
	}

	workflowSvc := workflow.NewService(
		workflow.NewPostgresVariableRepository(db),
		workflow.NewPostgresMatchRepository(db),
		workflow.NewPostgresResponseRepository(db),
		workflow.NewPostgresInvolvementRepository(db),
		workflow.NewPostgresHistoryRepository(db),
		catalogStore,
		feedbackStore,
		notifier,
		logger,
	)

	health := services.NewHealthChecker(index, collector, qualityCache, exporter, cfg.LLM.IsAvailable(), logger)

	sched := scheduler.New(logger)
	if err := sched.Register(scheduler.Job{
		Name:    "involvement_sweep",
		Cron:    "0 8 * * *",
		Timeout: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			res, err := workflowSvc.SweepInvolvements(ctx, time.Now())
			if err != nil {
				return err
			}
			logger.Info("involvement sweep finished",
				zap.Int("checked", res.Checked),
				zap.Int("marked_overdue", res.MarkedOverdue),
				zap.Int("reminders", res.Reminders),
			)
			return nil
		},
	}); err != nil {
		logger.Fatal("failed to register involvement sweep", zap.Error(err))
	}
	sched.Start()

	mux := http.NewServeMux()
	handlers.NewSearchHandler(pipeline, logger).RegisterRoutes(mux)
	handlers.NewFeedbackHandler(feedbackStore, collector, cfg.Feedback.MinSamples, logger).RegisterRoutes(mux)
	handlers.NewWorkflowHandler(workflowSvc, logger).RegisterRoutes(mux)
	handlers.NewInvolvementHandler(workflowSvc, logger).RegisterRoutes(mux)
	handlers.NewMonitoringHandler(collector, health, exporter, intents, qualityCache, syncService, logger).RegisterRoutes(mux)
	handlers.NewCatalogHandler(catalogStore, index, logger).RegisterRoutes(mux)

	handler := middleware.RequestID(
		middleware.RequestLogger(logger)(
			middleware.Timeout(time.Duration(cfg.RequestTimeoutSeconds) * time.Second)(mux)))

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting catalog-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown incomplete", zap.Error(err))
	}
	if err := exporter.FlushNow(shutdownCtx); err != nil {
		logger.Warn("final metrics flush failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newMetricsSink picks the export sink from configuration. Unknown or
// incomplete targets disable exporting rather than failing startup.
func newMetricsSink(cfg *config.Config, logger *zap.Logger) metrics.Sink {
	switch cfg.Metrics.ExportTarget {
	case "":
		return metrics.NoopSink{}
	case "http":
		if cfg.Metrics.ExportURL == "" {
			logger.Warn("metrics export target is http but export_url is empty; exports disabled")
			return metrics.NoopSink{}
		}
		return metrics.NewHTTPSink(cfg.Metrics.ExportURL, cfg.Metrics.ExportBearerToken)
	case "object":
		if cfg.Metrics.ExportURL == "" {
			logger.Warn("metrics export target is object but export_url is empty; exports disabled")
			return metrics.NoopSink{}
		}
		return metrics.NewObjectStoreSink(dirObjectStore{root: cfg.Metrics.ExportURL}, "metrics/")
	default:
		logger.Warn("unknown metrics export target; exports disabled",
			zap.String("target", cfg.Metrics.ExportTarget))
		return metrics.NoopSink{}
	}
}

// dirObjectStore satisfies metrics.ObjectStore on a local directory, for
// deployments that mount the bucket as a filesystem.
type dirObjectStore struct {
	root string
}

func (d dirObjectStore) Append(_ context.Context, key string, data []byte) error {
	path := filepath.Join(d.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}
