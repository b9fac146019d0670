package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/catalog"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/retriever"
)

const (
	columnRetrieveLimit = 20

	// columnMergeBoost is added to a table's score when its columns also
	// matched the query.
	columnMergeBoost = 0.15
)

var columnTriggerKeywords = []string{"campo", "coluna", "atributo", "variável", "field"}

var columnTriggerEntities = map[string]struct{}{
	"cpf":    {},
	"cnpj":   {},
	"campo":  {},
	"coluna": {},
}

// ShouldSearchColumns reports whether the column branch activates: the raw
// query mentions a field-level keyword, or the extracted entity is itself a
// field-ish term.
func ShouldSearchColumns(rawQuery string, intent *models.Intent) bool {
	q := strings.ToLower(rawQuery)
	for _, kw := range columnTriggerKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	_, ok := columnTriggerEntities[strings.ToLower(intent.TargetEntity)]
	return ok
}

// ColumnGroup is the column hits for one parent table: the best column
// similarity becomes the group score.
type ColumnGroup struct {
	TableID        string
	Score          float64
	MatchedColumns []string
}

// ColumnSearchService searches the column index and groups hits by parent
// table.
type ColumnSearchService struct {
	retriever retriever.Retriever
	logger    *zap.Logger
}

// NewColumnSearchService creates a ColumnSearchService.
func NewColumnSearchService(r retriever.Retriever, logger *zap.Logger) *ColumnSearchService {
	return &ColumnSearchService{retriever: r, logger: logger.Named("column-search")}
}

// Search returns column groups ordered by score. Retriever failure degrades
// to an empty result.
func (s *ColumnSearchService) Search(ctx context.Context, query string) []ColumnGroup {
	hits, err := s.retriever.SearchColumns(ctx, query, columnRetrieveLimit)
	if err != nil {
		s.logger.Warn("column retriever unavailable", zap.Error(err))
		return nil
	}

	byTable := make(map[string]*ColumnGroup)
	var order []string
	for _, hit := range hits {
		g := byTable[hit.TableID]
		if g == nil {
			g = &ColumnGroup{TableID: hit.TableID}
			byTable[hit.TableID] = g
			order = append(order, hit.TableID)
		}
		if float64(hit.Score) > g.Score {
			g.Score = float64(hit.Score)
		}
		g.MatchedColumns = append(g.MatchedColumns, hit.ColumnName)
	}

	groups := make([]ColumnGroup, 0, len(order))
	for _, id := range order {
		groups = append(groups, *byTable[id])
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Score != groups[j].Score {
			return groups[i].Score > groups[j].Score
		}
		return groups[i].TableID < groups[j].TableID
	})
	return groups
}

// MergeColumnMatches folds column groups into the table result set. Tables
// already present get a score boost and the matched column names; tables only
// found via columns are inserted with neutral non-semantic components.
func MergeColumnMatches(snap *catalog.Snapshot, tableMatches []models.TableMatch, groups []ColumnGroup, useCase string) []models.TableMatch {
	if len(groups) == 0 {
		return tableMatches
	}

	merged := make([]models.TableMatch, len(tableMatches))
	copy(merged, tableMatches)

	index := make(map[string]int, len(merged))
	for i := range merged {
		index[merged[i].Table.ID] = i
	}

	for _, g := range groups {
		if i, ok := index[g.TableID]; ok {
			m := &merged[i]
			m.Score = min(1.0, m.Score+columnMergeBoost)
			m.MatchedEntities = appendUnique(m.MatchedEntities, g.MatchedColumns)
			m.Reasoning += fmt.Sprintf(" · colunas encontradas: %s", strings.Join(g.MatchedColumns, ", "))
			continue
		}

		table := snap.Table(g.TableID)
		if table == nil {
			continue
		}

		components := models.DisambiguationComponents{
			Certification: 0.5,
			Freshness:     0.5,
			Quality:       0.5,
			Context:       0.3,
		}
		scores := models.ScoreComponents{
			Semantic:       g.Score,
			Disambiguation: disambiguationScore(components, useCase),
			Historical:     0.5,
			Components:     components,
		}
		merged = append(merged, models.TableMatch{
			Table:           *table,
			Score:           combinedScore(scores),
			Scores:          scores,
			Reasoning:       fmt.Sprintf("colunas encontradas: %s", strings.Join(g.MatchedColumns, ", ")),
			MatchedEntities: appendUnique(nil, g.MatchedColumns),
		})
		index[g.TableID] = len(merged) - 1
	}

	sortTableMatches(merged)
	if len(merged) > maxTableMatches {
		merged = merged[:maxTableMatches]
	}
	return merged
}

func appendUnique(base []string, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, s := range base {
		seen[s] = struct{}{}
	}
	for _, s := range extra {
		if _, ok := seen[s]; !ok {
			base = append(base, s)
			seen[s] = struct{}{}
		}
	}
	return base
}

