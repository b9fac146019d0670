package quality

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/catalogo-ai/catalog-engine/pkg/cache"
	"github.com/catalogo-ai/catalog-engine/pkg/retry"
)

// SyncConfig tunes the sync scheduler.
type SyncConfig struct {
	SyncHour      int           // calendar hour after which the daily incremental runs
	CheckInterval time.Duration // how often the background task wakes
	MaxStale      time.Duration // beyond this, health reports stale
}

// SyncService keeps the QualityCache populated: a full sync at startup, then
// one incremental sync per calendar day after SyncHour. Transient source
// errors are logged and retried on the next tick.
type SyncService struct {
	source Source
	cache  *cache.QualityCache
	cfg    SyncConfig
	logger *zap.Logger

	group singleflight.Group
	now   func() time.Time // swapped in tests

	mu         sync.Mutex
	lastSyncAt time.Time
	lastDay    string // YYYY-MM-DD of the last completed incremental
	lastStatus string

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSyncService creates a SyncService. Zero-valued config fields fall back
// to the defaults (hour 6, 1h interval, 25h staleness).
func NewSyncService(source Source, qc *cache.QualityCache, cfg SyncConfig, logger *zap.Logger) *SyncService {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	if cfg.MaxStale <= 0 {
		cfg.MaxStale = 25 * time.Hour
	}
	return &SyncService{
		source: source,
		cache:  qc,
		cfg:    cfg,
		logger: logger.Named("quality-sync"),
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start performs the startup full sync and launches the background tick loop.
// A failed startup sync is logged, not fatal: the next tick retries.
func (s *SyncService) Start(ctx context.Context) {
	if err := s.fullSync(ctx); err != nil {
		s.logger.Error("startup sync failed", zap.Error(err))
	}

	go s.run(ctx)
}

// Stop signals the background loop and waits for the in-flight sync to
// finish.
func (s *SyncService) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *SyncService) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// tick runs the daily incremental sync if it is due.
func (s *SyncService) tick(ctx context.Context) {
	now := s.now()
	today := now.Format("2006-01-02")

	s.mu.Lock()
	due := now.Hour() >= s.cfg.SyncHour && s.lastDay != today
	since := s.lastSyncAt
	s.mu.Unlock()

	if !due {
		return
	}

	if err := s.incrementalSync(ctx, since, today); err != nil {
		s.logger.Error("incremental sync failed, will retry next tick", zap.Error(err))
	}
}

func (s *SyncService) fullSync(ctx context.Context) error {
	var count int
	err := retry.DoIfRetryable(ctx, nil, func() error {
		records, err := s.source.GetAll(ctx)
		if err != nil {
			return err
		}
		s.cache.SetBulk(records)
		count = len(records)
		return nil
	})
	if err != nil {
		return err
	}

	now := s.now()
	s.mu.Lock()
	s.lastSyncAt = now
	s.lastStatus = "full"
	s.mu.Unlock()

	s.logger.Info("full sync completed", zap.Int("tables", count))
	return nil
}

func (s *SyncService) incrementalSync(ctx context.Context, since time.Time, day string) error {
	records, err := s.source.GetUpdatedSince(ctx, since)
	if err != nil {
		return err
	}

	status := "incremental"
	if len(records) == 0 {
		status = "skipped: no_updates"
	} else {
		s.cache.SetBulk(records)
	}

	now := s.now()
	s.mu.Lock()
	s.lastSyncAt = now
	s.lastDay = day
	s.lastStatus = status
	s.mu.Unlock()

	s.logger.Info("incremental sync completed",
		zap.Int("tables", len(records)),
		zap.String("status", status))
	return nil
}

// ForceSync bypasses the daily guard and performs a full sync. Concurrent
// callers are collapsed into a single upstream call.
func (s *SyncService) ForceSync(ctx context.Context) error {
	_, err, _ := s.group.Do("force-sync", func() (any, error) {
		return nil, s.fullSync(ctx)
	})
	return err
}

// LastSync reports the time and status of the most recent sync. Used by the
// health checker to detect a stalled pipeline.
func (s *SyncService) LastSync() (time.Time, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncAt, s.lastStatus
}

// IsStale reports whether the cache has gone too long without a sync.
func (s *SyncService) IsStale() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSyncAt.IsZero() || s.now().Sub(s.lastSyncAt) > s.cfg.MaxStale
}
