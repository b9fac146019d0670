package dag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/cache"
	"github.com/catalogo-ai/catalog-engine/pkg/catalog"
	"github.com/catalogo-ai/catalog-engine/pkg/feedback"
	"github.com/catalogo-ai/catalog-engine/pkg/llm"
	"github.com/catalogo-ai/catalog-engine/pkg/metrics"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/retriever"
	"github.com/catalogo-ai/catalog-engine/pkg/services"
	"github.com/catalogo-ai/catalog-engine/pkg/synonyms"
)

type fixture struct {
	pipeline  *Pipeline
	model     *llm.MockLanguageModel
	retriever *retriever.MockRetriever
	collector *metrics.Collector
	quality   *cache.QualityCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()

	store := catalog.NewStore()
	store.Replace(catalog.NewSnapshot(
		[]models.DomainInfo{{ID: "vendas", Name: "Vendas", Keywords: []string{"venda", "vendas", "consignado"}}},
		[]models.OwnerInfo{{ID: "o1", Name: "Ana", DomainID: "vendas", ApprovalRate: 0.9}},
		[]models.TableInfo{
			{ID: "t1", Name: "tb_vendas_consig", DomainID: "vendas", OwnerID: "o1",
				DataLayer: models.DataLayerSpec, IsGoldenSource: true, InferredProduct: "consig"},
			{ID: "t2", Name: "tb_vendas_raw", DomainID: "vendas", OwnerID: "o1",
				DataLayer: models.DataLayerSoR},
		},
		nil,
	))

	model := llm.NewMockLanguageModel()
	model.CompleteFunc = func(context.Context, string, string) (string, error) {
		return `{"data_need": "vendas consignado", "target_product": "consig", "inferred_domains": ["vendas"]}`, nil
	}

	dict, err := synonyms.New("", logger)
	require.NoError(t, err)
	normalizer := services.NewIntentNormalizer(model, cache.NewIntentCache(100, time.Hour), dict, logger)

	mock := retriever.NewMockRetriever()
	mock.SearchTablesFunc = func(context.Context, string, retriever.Filter, int) ([]retriever.TableHit, error) {
		return []retriever.TableHit{{TableID: "t1", Score: 0.9}, {TableID: "t2", Score: 0.4}}, nil
	}

	quality := cache.NewQualityCache()
	quality.Set("tb_vendas_consig", 95, time.Now())

	fs := feedback.NewStore(feedback.NewMemoryRepository(), 3, time.Minute, logger)
	tables := services.NewTableSearchService(mock, fs, quality, logger)
	columns := services.NewColumnSearchService(mock, logger)
	collector := metrics.NewCollector(100)

	p := New(Deps{
		Catalog:    store,
		Normalizer: normalizer,
		Tables:     tables,
		Columns:    columns,
		Reranker:   services.NewReranker(model, services.RerankerConfig{}, logger),
		Collector:  collector,
		Logger:     logger,
	})
	return &fixture{pipeline: p, model: model, retriever: mock, collector: collector, quality: quality}
}

func TestPipelineHappyPath(t *testing.T) {
	f := newFixture(t)

	state := f.pipeline.Run(context.Background(), SearchRequest{
		RequestID: "r1",
		RawQuery:  "vendas do consignado",
		UseCase:   "analytical",
		Context:   map[string]string{"dominio": "vendas", "produto": "consig"},
	})

	require.NotNil(t, state.Intent)
	assert.False(t, state.Fallback)
	assert.NotEmpty(t, state.DomainMatches)
	assert.NotEmpty(t, state.OwnerMatches)
	require.NotEmpty(t, state.TableMatches)
	assert.Equal(t, "t1", state.TableMatches[0].Table.ID)
	assert.Equal(t, models.ActionUseTable, state.Action, "strong EXISTS match recommends direct use")
	assert.NotEmpty(t, state.Reasoning)

	counters := f.collector.GetCounters()
	assert.Equal(t, uint64(1), counters.Requests)
	assert.Equal(t, uint64(1), counters.Matches)
}

func TestPipelineColumnBranchOnlyWhenTriggered(t *testing.T) {
	f := newFixture(t)

	f.pipeline.Run(context.Background(), SearchRequest{RequestID: "r1", RawQuery: "vendas consignado"})
	assert.Zero(t, f.retriever.SearchColumnsCalls, "no field keyword, auto mode skips columns")

	f.pipeline.Run(context.Background(), SearchRequest{RequestID: "r2", RawQuery: "campo cpf do cliente"})
	assert.Equal(t, 1, f.retriever.SearchColumnsCalls)
}

func TestPipelineHybridRunsBothBranches(t *testing.T) {
	f := newFixture(t)

	f.pipeline.Run(context.Background(), SearchRequest{
		RequestID:  "r1",
		RawQuery:   "vendas consignado",
		SearchMode: ModeHybrid,
	})

	assert.Equal(t, 1, f.retriever.SearchTablesCalls)
	assert.Equal(t, 1, f.retriever.SearchColumnsCalls)
}

func TestPipelineColumnOnlySkipsTables(t *testing.T) {
	f := newFixture(t)
	f.retriever.SearchColumnsFunc = func(context.Context, string, int) ([]retriever.ColumnHit, error) {
		return []retriever.ColumnHit{{ColumnID: "c1", ColumnName: "nr_cpf", TableID: "t1", Score: 0.9}}, nil
	}

	state := f.pipeline.Run(context.Background(), SearchRequest{
		RequestID:  "r1",
		RawQuery:   "campo cpf",
		SearchMode: ModeColumnOnly,
	})

	assert.Zero(t, f.retriever.SearchTablesCalls)
	require.NotEmpty(t, state.TableMatches, "column hits surface their parent tables")
	assert.Equal(t, "t1", state.TableMatches[0].Table.ID)
	assert.Equal(t, []string{"nr_cpf"}, state.TableMatches[0].MatchedEntities)
}

func TestPipelineCancelledContextFallsBack(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := f.pipeline.Run(ctx, SearchRequest{
		RequestID:    "r1",
		RawQuery:     "vendas",
		VariableName: "vl_vendas",
	})

	assert.True(t, state.Fallback)
	require.NotNil(t, state.Intent)
	assert.Equal(t, "vl_vendas", state.Intent.DataNeed)
	assert.InDelta(t, 0.3, state.Intent.ExtractionConfidence, 1e-9)
	assert.Empty(t, state.TableMatches)
	assert.Equal(t, models.DataUncertain, state.DataExistence)
	assert.Equal(t, models.ActionConfirmWithOwner, state.Action)

	// Degraded requests still count.
	assert.Equal(t, uint64(1), f.collector.GetCounters().Requests)
}

func TestPipelineRetrieverDownDegrades(t *testing.T) {
	f := newFixture(t)
	f.retriever.SearchTablesFunc = func(context.Context, string, retriever.Filter, int) ([]retriever.TableHit, error) {
		return nil, context.DeadlineExceeded
	}

	state := f.pipeline.Run(context.Background(), SearchRequest{RequestID: "r1", RawQuery: "vendas"})

	assert.False(t, state.Fallback, "dependency failure degrades in place, not a short-circuit")
	assert.Empty(t, state.TableMatches)
	assert.Equal(t, models.DataUncertain, state.DataExistence)
	assert.Equal(t, models.ActionConfirmWithOwner, state.Action)
}

func TestPipelineIntentCacheHitAcrossRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.pipeline.Run(ctx, SearchRequest{RequestID: "r1", RawQuery: "vendas do consignado"})
	state := f.pipeline.Run(ctx, SearchRequest{RequestID: "r2", RawQuery: "VENDAS do consignado!"})

	assert.True(t, state.IntentFromCache)
	assert.Equal(t, uint64(1), f.collector.GetCounters().CacheHits)
}

func TestPipelineRerankActivatesOnTie(t *testing.T) {
	f := newFixture(t)
	// Matching quality keeps the combined scores within the spread threshold.
	f.quality.Set("tb_vendas_raw", 95, time.Now())
	f.retriever.SearchTablesFunc = func(context.Context, string, retriever.Filter, int) ([]retriever.TableHit, error) {
		return []retriever.TableHit{{TableID: "t1", Score: 0.71}, {TableID: "t2", Score: 0.70}}, nil
	}
	f.model.CompleteFunc = func(_ context.Context, prompt, system string) (string, error) {
		if system == "" || len(prompt) == 0 {
			return "", nil
		}
		// First call extracts the intent, the second reranks.
		if f.model.CompleteCalls == 1 {
			return `{"data_need": "vendas"}`, nil
		}
		return `{"ranking": ["t2", "t1"], "reasoning": "fonte mais adequada", "confidence": 0.8}`, nil
	}

	state := f.pipeline.Run(context.Background(), SearchRequest{RequestID: "r1", RawQuery: "vendas"})

	assert.True(t, state.Reranked)
	assert.Equal(t, "t2", state.TableMatches[0].Table.ID)
	assert.Equal(t, uint64(1), f.collector.GetCounters().RerankActivations)
}

func TestPipelineSkipRerank(t *testing.T) {
	f := newFixture(t)
	f.retriever.SearchTablesFunc = func(context.Context, string, retriever.Filter, int) ([]retriever.TableHit, error) {
		return []retriever.TableHit{{TableID: "t1", Score: 0.71}, {TableID: "t2", Score: 0.70}}, nil
	}

	state := f.pipeline.Run(context.Background(), SearchRequest{
		RequestID:  "r1",
		RawQuery:   "vendas",
		SkipRerank: true,
	})

	assert.False(t, state.Reranked)
}
