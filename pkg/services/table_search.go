package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/cache"
	"github.com/catalogo-ai/catalog-engine/pkg/catalog"
	"github.com/catalogo-ai/catalog-engine/pkg/feedback"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/retriever"
)

const (
	maxTableMatches    = 10
	tableRetrieveLimit = 20

	dataExistsThreshold        = 0.60
	dataNeedsCreationThreshold = 0.30
)

// TableSearchInput carries everything the table search needs for one run.
type TableSearchInput struct {
	Intent       *models.Intent
	Owners       []models.OwnerMatch
	DomainFilter string
	UseCase      string
	UserDomain   string
	UserProduct  string
}

// TableSearchService ranks catalog tables for an intent, blending semantic
// similarity with certification, freshness, quality, context, and historical
// approval.
type TableSearchService struct {
	retriever retriever.Retriever
	feedback  feedback.Store
	quality   *cache.QualityCache
	logger    *zap.Logger
	now       func() time.Time
}

// NewTableSearchService creates a TableSearchService.
func NewTableSearchService(r retriever.Retriever, fs feedback.Store, qc *cache.QualityCache, logger *zap.Logger) *TableSearchService {
	return &TableSearchService{
		retriever: r,
		feedback:  fs,
		quality:   qc,
		logger:    logger.Named("table-search"),
		now:       time.Now,
	}
}

// Search returns up to 10 ranked table matches plus the data-existence
// verdict. Retriever failure degrades to an empty result with UNCERTAIN; it
// is never surfaced to the caller.
func (s *TableSearchService) Search(ctx context.Context, snap *catalog.Snapshot, in TableSearchInput) ([]models.TableMatch, models.DataExistence) {
	query := composeTableQuery(in.Intent)

	hits, err := s.retriever.SearchTables(ctx, query, retriever.Filter{DomainID: in.DomainFilter}, tableRetrieveLimit)
	if err != nil {
		s.logger.Warn("retriever unavailable, returning empty candidates", zap.Error(err))
		return nil, models.DataUncertain
	}

	matches := s.scoreHits(ctx, snap, in, hits)

	sortTableMatches(matches)
	if len(matches) > maxTableMatches {
		matches = matches[:maxTableMatches]
	}

	return matches, dataExistence(matches)
}

// scoreHits joins retriever hits against the snapshot and computes the
// combined score for each.
func (s *TableSearchService) scoreHits(ctx context.Context, snap *catalog.Snapshot, in TableSearchInput, hits []retriever.TableHit) []models.TableMatch {
	conceptHash := feedback.ConceptHash(in.Intent)
	historical := s.historicalScores(ctx, conceptHash, hits)

	ownerSet := make(map[string]struct{}, len(in.Owners))
	for _, om := range in.Owners {
		ownerSet[om.Owner.ID] = struct{}{}
	}

	now := s.now()
	matches := make([]models.TableMatch, 0, len(hits))
	for _, hit := range hits {
		table := snap.Table(hit.TableID)
		if table == nil {
			s.logger.Debug("hit references unknown table, skipping", zap.String("table_id", hit.TableID))
			continue
		}

		ctxScore, productMatch := contextScore(table, in.UserDomain, in.UserProduct)
		components := models.DisambiguationComponents{
			Certification: certificationScore(table),
			Freshness:     freshnessScore(table, now),
			Quality:       s.quality.GetScore(table.Name, 0.5),
			Context:       ctxScore,
		}

		scores := models.ScoreComponents{
			Semantic:       float64(hit.Score),
			Disambiguation: disambiguationScore(components, in.UseCase),
			Historical:     historical[hit.TableID],
			Components:     components,
		}
		if _, ok := ownerSet[table.OwnerID]; ok {
			scores.OwnerBoost = ownerBoostValue
		}

		matches = append(matches, models.TableMatch{
			Table:             *table,
			Score:             combinedScore(scores),
			Scores:            scores,
			Reasoning:         scoreReasoning(scores),
			IsDoubleCertified: table.IsDoubleCertified(),
			HasProductMatch:   productMatch,
		})
	}
	return matches
}

// historicalScores resolves the historical approval rate per candidate: one
// batch call for the concept's known-good tables, then per-table lookups for
// the misses. A feedback-store failure degrades to neutral 0.5 everywhere.
func (s *TableSearchService) historicalScores(ctx context.Context, conceptHash string, hits []retriever.TableHit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	for _, hit := range hits {
		out[hit.TableID] = 0.5
	}

	top, err := s.feedback.GetTopTablesForConcept(ctx, conceptHash, tableRetrieveLimit)
	if err != nil {
		s.logger.Warn("feedback batch lookup failed, using neutral history", zap.Error(err))
		return out
	}
	batched := make(map[string]struct{}, len(top))
	for _, t := range top {
		if _, ok := out[t.TableID]; ok {
			out[t.TableID] = t.ApprovalRate
			batched[t.TableID] = struct{}{}
		}
	}

	for _, hit := range hits {
		if _, ok := batched[hit.TableID]; ok {
			continue
		}
		score, _, err := s.feedback.GetHistoricalScore(ctx, conceptHash, hit.TableID)
		if err != nil {
			s.logger.Warn("feedback lookup failed, using neutral history",
				zap.String("table_id", hit.TableID), zap.Error(err))
			continue
		}
		out[hit.TableID] = score
	}
	return out
}

// composeTableQuery builds the retrieval query from the intent's structured
// fields, falling back to the raw query when extraction produced nothing.
func composeTableQuery(intent *models.Intent) string {
	if intent.DataNeed == "" {
		return intent.OriginalQuery
	}

	var b strings.Builder
	b.WriteString(intent.DataNeed)
	if intent.TargetEntity != "" {
		fmt.Fprintf(&b, " entidade:%s", intent.TargetEntity)
	}
	if intent.TargetProduct != "" {
		fmt.Fprintf(&b, " produto:%s", intent.TargetProduct)
	}
	if intent.TargetSegment != "" {
		fmt.Fprintf(&b, " segmento:%s", intent.TargetSegment)
	}
	if intent.Granularity != "" {
		fmt.Fprintf(&b, " granularidade:%s", intent.Granularity)
	}
	return b.String()
}

// sortTableMatches orders matches by score descending with stable id
// tiebreak, so identical inputs always produce identical rankings.
func sortTableMatches(matches []models.TableMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Table.ID < matches[j].Table.ID
	})
}

// dataExistence derives the verdict from the top score.
func dataExistence(matches []models.TableMatch) models.DataExistence {
	if len(matches) == 0 {
		return models.DataNeedsCreation
	}
	top := matches[0].Score
	switch {
	case top >= dataExistsThreshold:
		return models.DataExists
	case top < dataNeedsCreationThreshold:
		return models.DataNeedsCreation
	default:
		return models.DataUncertain
	}
}
