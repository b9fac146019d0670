package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for catalog-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values. Secrets
// (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// RequestTimeoutSeconds bounds a single retrieval run end to end.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS" env-default:"30"`

	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Search    SearchConfig    `yaml:"search"`
	Quality   QualityConfig   `yaml:"quality"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Synonyms  SynonymsConfig  `yaml:"synonyms"`
	Notifier  NotifierConfig  `yaml:"notifier"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"catalogo"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"catalog_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LLMConfig holds the OpenAI-compatible endpoint configuration.
type LLMConfig struct {
	Endpoint       string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`
	Model          string `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey         string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	EmbeddingModel string `yaml:"embedding_model" env:"LLM_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
}

// IsAvailable returns true if an LLM endpoint is configured.
func (c *LLMConfig) IsAvailable() bool {
	return c.Endpoint != "" && c.Model != ""
}

// RetrieverConfig holds vector index configuration.
type RetrieverConfig struct {
	URL              string `yaml:"url" env:"QDRANT_URL" env-default:""`
	APIKey           string `yaml:"-" env:"QDRANT_API_KEY"` // Secret - not in YAML
	TableCollection  string `yaml:"table_collection" env:"QDRANT_TABLE_COLLECTION" env-default:"catalog_tables"`
	ColumnCollection string `yaml:"column_collection" env:"QDRANT_COLUMN_COLLECTION" env-default:"catalog_columns"`
	Dims             uint64 `yaml:"dims" env:"QDRANT_DIMS" env-default:"1536"`
}

// SearchConfig holds retrieval pipeline tuning knobs.
type SearchConfig struct {
	IntentCacheSize       int     `yaml:"intent_cache_size" env:"INTENT_CACHE_SIZE" env-default:"10000"`
	IntentCacheTTLDays    int     `yaml:"intent_cache_ttl_days" env:"INTENT_CACHE_TTL_DAYS" env-default:"7"`
	ScoreTieThreshold     float64 `yaml:"score_tie_threshold" env:"SCORE_TIE_THRESHOLD" env-default:"0.05"`
	MinimumConfidence     float64 `yaml:"minimum_confidence" env:"MINIMUM_CONFIDENCE" env-default:"0.40"`
	HighConfidence        float64 `yaml:"high_confidence" env:"HIGH_CONFIDENCE" env-default:"0.75"`
	RerankSpreadThreshold float64 `yaml:"rerank_spread_threshold" env:"RERANK_SPREAD_THRESHOLD" env-default:"0.15"`
	RerankMaxCandidates   int     `yaml:"rerank_max_candidates" env:"RERANK_MAX_CANDIDATES" env-default:"10"`
	UseTableThreshold     float64 `yaml:"action_use_table_threshold" env:"ACTION_USE_TABLE_THRESHOLD" env-default:"0.70"`
}

// QualityConfig holds quality-metric sync configuration.
type QualityConfig struct {
	SourceURL          string `yaml:"source_url" env:"QUALITY_SOURCE_URL" env-default:""`
	SyncHour           int    `yaml:"quality_sync_hour" env:"QUALITY_SYNC_HOUR" env-default:"6"`
	CheckIntervalHours int    `yaml:"quality_sync_check_interval_hours" env:"QUALITY_SYNC_CHECK_INTERVAL_HOURS" env-default:"1"`
	MaxStaleHours      int    `yaml:"quality_cache_max_stale_hours" env:"QUALITY_CACHE_MAX_STALE_HOURS" env-default:"25"`
}

// MetricsConfig holds collector and exporter configuration.
type MetricsConfig struct {
	ExportIntervalMinutes int    `yaml:"metrics_export_interval_minutes" env:"METRICS_EXPORT_INTERVAL_MINUTES" env-default:"5"`
	BatchSize             int    `yaml:"metrics_batch_size" env:"METRICS_BATCH_SIZE" env-default:"100"`
	MaxEvents             int    `yaml:"metrics_max_events" env:"METRICS_MAX_EVENTS" env-default:"10000"`
	ExportTarget          string `yaml:"export_target" env:"METRICS_EXPORT_TARGET" env-default:""` // object | stream | http
	ExportURL             string `yaml:"export_url" env:"METRICS_EXPORT_URL" env-default:""`
	ExportBearerToken     string `yaml:"-" env:"EXPORT_BEARER_TOKEN"` // Secret - not in YAML
}

// FeedbackConfig holds feedback-store tuning knobs.
type FeedbackConfig struct {
	CacheTTLMinutes int `yaml:"feedback_cache_ttl_minutes" env:"FEEDBACK_CACHE_TTL_MINUTES" env-default:"5"`
	MinSamples      int `yaml:"feedback_min_samples" env:"FEEDBACK_MIN_SAMPLES" env-default:"3"`
}

// SynonymsConfig locates the corporate glossary overlay.
type SynonymsConfig struct {
	Path        string `yaml:"path" env:"SYNONYMS_PATH" env-default:""`
	LearnedPath string `yaml:"learned_path" env:"SYNONYMS_LEARNED_PATH" env-default:""`
}

// NotifierConfig holds the webhook notification sink.
type NotifierConfig struct {
	WebhookURL string `yaml:"webhook_url" env:"NOTIFIER_WEBHOOK_URL" env-default:""`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time. If config.yaml
// does not exist, configuration comes from environment variables alone.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Search.IntentCacheSize <= 0 {
		return fmt.Errorf("intent_cache_size must be positive")
	}
	if c.Search.UseTableThreshold <= 0 || c.Search.UseTableThreshold > 1 {
		return fmt.Errorf("action_use_table_threshold must be in (0,1]")
	}
	if c.Quality.SyncHour < 0 || c.Quality.SyncHour > 23 {
		return fmt.Errorf("quality_sync_hour must be in [0,23]")
	}
	if c.Metrics.BatchSize <= 0 {
		return fmt.Errorf("metrics_batch_size must be positive")
	}
	return nil
}
