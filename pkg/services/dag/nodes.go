package dag

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/catalogo-ai/catalog-engine/pkg/metrics"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/services"
)

// Node is one step of the retrieval pipeline. Execute mutates the shared
// state; an error aborts the run and triggers the fallback result.
type Node interface {
	Name() string
	Execute(ctx context.Context, state *SearchState) error
}

// ============================================================================
// normalize_intent
// ============================================================================

type normalizeIntentNode struct {
	normalizer *services.IntentNormalizer
}

func (n *normalizeIntentNode) Name() string { return "normalize_intent" }

func (n *normalizeIntentNode) Execute(ctx context.Context, state *SearchState) error {
	intent, hit := n.normalizer.Normalize(ctx, services.NormalizeInput{
		RawQuery:     state.Request.RawQuery,
		VariableName: state.Request.VariableName,
		VariableType: state.Request.VariableType,
		Context:      state.Request.Context,
	})
	state.Intent = &intent
	state.IntentFromCache = hit
	return ctx.Err()
}

// ============================================================================
// search_domains / search_owners
// ============================================================================

type searchDomainsNode struct{}

func (n *searchDomainsNode) Name() string { return "search_domains" }

func (n *searchDomainsNode) Execute(ctx context.Context, state *SearchState) error {
	state.DomainMatches = services.SearchDomains(state.Snapshot, state.Intent)
	return ctx.Err()
}

type searchOwnersNode struct{}

func (n *searchOwnersNode) Name() string { return "search_owners" }

func (n *searchOwnersNode) Execute(ctx context.Context, state *SearchState) error {
	state.OwnerMatches = services.SearchOwners(state.Snapshot, state.DomainMatches)
	return ctx.Err()
}

// ============================================================================
// search_tables ∥ search_columns
// ============================================================================

type searchCandidatesNode struct {
	tables  *services.TableSearchService
	columns *services.ColumnSearchService
}

func (n *searchCandidatesNode) Name() string { return "search_candidates" }

func (n *searchCandidatesNode) Execute(ctx context.Context, state *SearchState) error {
	mode := state.Request.SearchMode
	runTables := mode != ModeColumnOnly
	runColumns := mode == ModeHybrid || mode == ModeColumnOnly ||
		(mode == "" || mode == ModeAuto) && services.ShouldSearchColumns(state.Request.RawQuery, state.Intent)

	g, gctx := errgroup.WithContext(ctx)

	if runTables {
		g.Go(func() error {
			matches, existence := n.tables.Search(gctx, state.Snapshot, services.TableSearchInput{
				Intent:       state.Intent,
				Owners:       state.OwnerMatches,
				DomainFilter: state.Request.DomainFilter,
				UseCase:      state.Request.UseCase,
				UserDomain:   state.Request.UserDomain(),
				UserProduct:  state.Request.UserProduct(),
			})
			state.TableMatches = matches
			state.DataExistence = existence
			return nil
		})
	} else {
		state.DataExistence = models.DataUncertain
	}

	if runColumns {
		g.Go(func() error {
			state.ColumnGroups = n.columns.Search(gctx, state.Request.RawQuery)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ============================================================================
// merge_results
// ============================================================================

type mergeResultsNode struct{}

func (n *mergeResultsNode) Name() string { return "merge_results" }

func (n *mergeResultsNode) Execute(ctx context.Context, state *SearchState) error {
	if len(state.ColumnGroups) > 0 {
		state.TableMatches = services.MergeColumnMatches(
			state.Snapshot, state.TableMatches, state.ColumnGroups, state.Request.UseCase)
		state.DataExistence = existenceOf(state.TableMatches)
	}
	return ctx.Err()
}

// existenceOf re-derives the verdict after the merge changed scores.
func existenceOf(matches []models.TableMatch) models.DataExistence {
	if len(matches) == 0 {
		return models.DataNeedsCreation
	}
	switch top := matches[0].Score; {
	case top >= 0.60:
		return models.DataExists
	case top < 0.30:
		return models.DataNeedsCreation
	default:
		return models.DataUncertain
	}
}

// ============================================================================
// llm_rerank
// ============================================================================

type rerankNode struct {
	reranker *services.Reranker
}

func (n *rerankNode) Name() string { return "llm_rerank" }

func (n *rerankNode) Execute(ctx context.Context, state *SearchState) error {
	state.TableMatches, state.Reranked = n.reranker.Rerank(ctx, state.TableMatches, state.Request.SkipRerank)
	return ctx.Err()
}

// ============================================================================
// check_ambiguity
// ============================================================================

type ambiguityNode struct {
	cfg services.AmbiguityConfig
}

func (n *ambiguityNode) Name() string { return "check_ambiguity" }

func (n *ambiguityNode) Execute(ctx context.Context, state *SearchState) error {
	state.Ambiguity = services.DetectAmbiguity(state.TableMatches, n.cfg)
	return ctx.Err()
}

// ============================================================================
// build_decision
// ============================================================================

// useTableScoreThreshold is the minimum top score for an unattended USE_TABLE
// recommendation.
const useTableScoreThreshold = 0.70

type buildDecisionNode struct{}

func (n *buildDecisionNode) Name() string { return "build_decision" }

func (n *buildDecisionNode) Execute(ctx context.Context, state *SearchState) error {
	top := state.TopMatch()

	switch {
	case state.DataExistence == models.DataExists && top != nil && top.Score >= useTableScoreThreshold:
		state.Action = models.ActionUseTable
		state.Reasoning = fmt.Sprintf("tabela %s atende com score %.2f", top.Table.Name, top.Score)
	case state.DataExistence == models.DataNeedsCreation:
		state.Action = models.ActionCreateInvolvement
		state.Reasoning = "nenhuma tabela candidata; o dado precisa ser criado"
	default:
		state.Action = models.ActionConfirmWithOwner
		if top != nil {
			state.Reasoning = fmt.Sprintf("melhor candidata %s (score %.2f) precisa de confirmação do dono", top.Table.Name, top.Score)
		} else {
			state.Reasoning = "resultado incerto; confirmar com o dono do domínio"
		}
	}
	return nil
}

// ============================================================================
// record_metrics
// ============================================================================

type recordMetricsNode struct {
	collector *metrics.Collector
}

func (n *recordMetricsNode) Name() string { return "record_metrics" }

func (n *recordMetricsNode) Execute(_ context.Context, state *SearchState) error {
	if n.collector == nil {
		return nil
	}
	m := metrics.RequestMetrics{
		RequestID:         state.Request.RequestID,
		Timestamp:         state.StartedAt,
		LatencyMS:         float64(state.Elapsed().Milliseconds()),
		IntentCacheHit:    state.IntentFromCache,
		Matched:           len(state.TableMatches) > 0,
		AmbiguityDetected: state.Ambiguity.Type != models.AmbiguityNone,
		Reranked:          state.Reranked,
		UseCase:           state.Request.UseCase,
	}
	if top := state.TopMatch(); top != nil {
		m.TopScore = top.Score
	}
	n.collector.RecordRequest(m)
	return nil
}
