package feedback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/apperrors"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// CachedSampleCount is returned as the sample count when GetHistoricalScore
// answers from the aggregate cache instead of the repository.
const CachedSampleCount = -1

// Store exposes the decision log to the rest of the engine.
type Store interface {
	// RecordDecision appends a decision record and returns its id.
	// Invalidates the aggregate cache entry for the record's concept/table.
	RecordDecision(ctx context.Context, rec *models.DecisionRecord) (int64, error)

	// GetHistoricalScore returns the empirical approval rate for a
	// concept/table pair. Below minSamples the result is the neutral
	// (0.5, count). Cached hits return (score, CachedSampleCount).
	GetHistoricalScore(ctx context.Context, conceptHash, tableID string) (float64, int, error)

	// GetTopTablesForConcept returns the historically best tables for a
	// concept, each with at least 3 samples.
	GetTopTablesForConcept(ctx context.Context, conceptHash string, limit int) ([]models.TableApproval, error)
}

type cachedAggregate struct {
	score    float64
	cachedAt time.Time
}

type store struct {
	repo       Repository
	minSamples int
	cacheTTL   time.Duration
	logger     *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedAggregate // concept_hash|table_id
}

// NewStore creates a Store over the given repository. Non-positive minSamples
// defaults to 3; non-positive cacheTTL defaults to 5 minutes.
func NewStore(repo Repository, minSamples int, cacheTTL time.Duration, logger *zap.Logger) Store {
	if minSamples <= 0 {
		minSamples = 3
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &store{
		repo:       repo,
		minSamples: minSamples,
		cacheTTL:   cacheTTL,
		logger:     logger.Named("feedback"),
		cache:      make(map[string]cachedAggregate),
	}
}

var _ Store = (*store)(nil)

func aggKey(conceptHash, tableID string) string {
	return conceptHash + "|" + tableID
}

func (s *store) RecordDecision(ctx context.Context, rec *models.DecisionRecord) (int64, error) {
	if rec.RequestID == "" || rec.TableID == "" {
		return 0, fmt.Errorf("%w: request_id and table_id are required", apperrors.ErrValidation)
	}
	if !models.IsValidDecisionOutcome(rec.Outcome) {
		return 0, fmt.Errorf("%w: invalid outcome %q", apperrors.ErrValidation, rec.Outcome)
	}
	if rec.Outcome == models.OutcomeModified {
		if rec.ActualTableID == "" || rec.ActualTableID == rec.TableID {
			return 0, fmt.Errorf("%w: MODIFIED requires actual_table_id distinct from table_id", apperrors.ErrValidation)
		}
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	id, err := s.repo.Insert(ctx, rec)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	delete(s.cache, aggKey(rec.ConceptHash, rec.TableID))
	s.mu.Unlock()

	s.logger.Debug("decision recorded",
		zap.Int64("id", id),
		zap.String("concept_hash", rec.ConceptHash),
		zap.String("table_id", rec.TableID),
		zap.String("outcome", string(rec.Outcome)))

	return id, nil
}

func (s *store) GetHistoricalScore(ctx context.Context, conceptHash, tableID string) (float64, int, error) {
	key := aggKey(conceptHash, tableID)

	s.mu.RLock()
	if entry, ok := s.cache[key]; ok && time.Since(entry.cachedAt) < s.cacheTTL {
		s.mu.RUnlock()
		return entry.score, CachedSampleCount, nil
	}
	s.mu.RUnlock()

	approved, total, err := s.repo.Aggregate(ctx, conceptHash, tableID)
	if err != nil {
		return 0, 0, err
	}

	if total < s.minSamples {
		return 0.5, total, nil
	}

	score := float64(approved) / float64(total)
	s.mu.Lock()
	s.cache[key] = cachedAggregate{score: score, cachedAt: time.Now()}
	s.mu.Unlock()

	return score, total, nil
}

func (s *store) GetTopTablesForConcept(ctx context.Context, conceptHash string, limit int) ([]models.TableApproval, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.repo.TopTablesForConcept(ctx, conceptHash, limit, 3)
}
