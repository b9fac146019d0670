package dag

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/catalog"
	"github.com/catalogo-ai/catalog-engine/pkg/metrics"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/services"
)

// Deps are the services the pipeline nodes delegate to.
type Deps struct {
	Catalog    *catalog.Store
	Normalizer *services.IntentNormalizer
	Tables     *services.TableSearchService
	Columns    *services.ColumnSearchService
	Reranker   *services.Reranker
	Collector  *metrics.Collector
	Ambiguity  services.AmbiguityConfig
	Logger     *zap.Logger
}

// Pipeline runs the retrieval graph for one request. Nodes execute in a
// fixed order; the table and column branches run concurrently inside
// search_candidates. Dependency failures degrade inside the nodes, so the
// only abort path is request cancellation, which yields the fallback result.
type Pipeline struct {
	catalog  *catalog.Store
	stages   []Node
	terminal []Node
	logger   *zap.Logger
}

// New wires the node sequence.
func New(deps Deps) *Pipeline {
	return &Pipeline{
		catalog: deps.Catalog,
		stages: []Node{
			&normalizeIntentNode{normalizer: deps.Normalizer},
			&searchDomainsNode{},
			&searchOwnersNode{},
			&searchCandidatesNode{tables: deps.Tables, columns: deps.Columns},
			&mergeResultsNode{},
			&rerankNode{reranker: deps.Reranker},
			&ambiguityNode{cfg: deps.Ambiguity},
		},
		terminal: []Node{
			&buildDecisionNode{},
			&recordMetricsNode{collector: deps.Collector},
		},
		logger: deps.Logger.Named("pipeline"),
	}
}

// Run executes the pipeline. It never returns an error: cancellation
// produces the fallback result so callers always get a well-formed state.
func (p *Pipeline) Run(ctx context.Context, req SearchRequest) *SearchState {
	state := &SearchState{
		Request:       req,
		Snapshot:      p.catalog.Load(),
		StartedAt:     time.Now(),
		DataExistence: models.DataUncertain,
		Ambiguity:     models.Ambiguity{Type: models.AmbiguityNone},
	}

	for _, node := range p.stages {
		if err := ctx.Err(); err != nil {
			p.fallback(state, node.Name(), err)
			break
		}
		start := time.Now()
		if err := node.Execute(ctx, state); err != nil {
			p.fallback(state, node.Name(), err)
			break
		}
		p.logger.Debug("node done",
			zap.String("node", node.Name()),
			zap.String("request_id", req.RequestID),
			zap.Duration("took", time.Since(start)))
	}

	// Decision and metrics run even for a fallback: the caller still gets an
	// action, and the degraded request still counts.
	for _, node := range p.terminal {
		_ = node.Execute(ctx, state)
	}
	return state
}

// fallback overwrites the state with the degraded result.
func (p *Pipeline) fallback(state *SearchState, node string, cause error) {
	p.logger.Warn("pipeline short-circuit",
		zap.String("node", node),
		zap.String("request_id", state.Request.RequestID),
		zap.Error(cause))

	dataNeed := state.Request.VariableName
	if dataNeed == "" {
		dataNeed = state.Request.RawQuery
	}
	state.Fallback = true
	state.Intent = &models.Intent{
		DataNeed:             dataNeed,
		OriginalQuery:        state.Request.RawQuery,
		ExtractionConfidence: 0.3,
	}
	state.TableMatches = nil
	state.ColumnGroups = nil
	state.DataExistence = models.DataUncertain
	state.Ambiguity = models.Ambiguity{Type: models.AmbiguityNone}
	state.Reranked = false
}
