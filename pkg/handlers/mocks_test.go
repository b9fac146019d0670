package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/cache"
	"github.com/catalogo-ai/catalog-engine/pkg/catalog"
	"github.com/catalogo-ai/catalog-engine/pkg/feedback"
	"github.com/catalogo-ai/catalog-engine/pkg/llm"
	"github.com/catalogo-ai/catalog-engine/pkg/metrics"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/notify"
	"github.com/catalogo-ai/catalog-engine/pkg/retriever"
	"github.com/catalogo-ai/catalog-engine/pkg/services"
	"github.com/catalogo-ai/catalog-engine/pkg/services/dag"
	"github.com/catalogo-ai/catalog-engine/pkg/synonyms"
	"github.com/catalogo-ai/catalog-engine/pkg/workflow"
)

// handlerFixture wires every handler onto one mux over in-memory
// collaborators, mirroring the production wiring in main.
type handlerFixture struct {
	mux       *http.ServeMux
	store     *catalog.Store
	index     *retriever.MockRetriever
	model     *llm.MockLanguageModel
	collector *metrics.Collector
	quality   *cache.QualityCache
	intents   *cache.IntentCache
	feedback  feedback.Store
	workflow  *workflow.Service
	notifier  *notify.MockNotifier
	exporter  *metrics.Exporter
	sink      *recordingSink
	health    *services.HealthChecker

	variables    workflow.VariableRepository
	matches      workflow.MatchRepository
	involvements workflow.InvolvementRepository
}

// recordingSink captures exporter flushes.
type recordingSink struct {
	Batches [][]metrics.Snapshot
	Err     error
}

func (s *recordingSink) Write(_ context.Context, batch []metrics.Snapshot) error {
	if s.Err != nil {
		return s.Err
	}
	s.Batches = append(s.Batches, batch)
	return nil
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	logger := zap.NewNop()

	store := catalog.NewStore()
	store.Replace(catalog.NewSnapshot(
		[]models.DomainInfo{{ID: "vendas", Name: "Vendas", Keywords: []string{"venda", "vendas", "consignado"}}},
		[]models.OwnerInfo{
			{ID: "o1", Name: "Ana", DomainID: "vendas", ApprovalRate: 0.9},
			{ID: "o2", Name: "Bruno", DomainID: "vendas"},
		},
		[]models.TableInfo{
			{ID: "t1", Name: "tb_vendas_consig", DomainID: "vendas", OwnerID: "o1",
				DataLayer: models.DataLayerSpec, IsGoldenSource: true, InferredProduct: "consig"},
			{ID: "t2", Name: "tb_vendas_corrigida", DomainID: "vendas", OwnerID: "o2",
				DataLayer: models.DataLayerSoR},
		},
		nil,
	))

	model := llm.NewMockLanguageModel()
	model.CompleteFunc = func(context.Context, string, string) (string, error) {
		return `{"data_need": "vendas consignado", "target_product": "consig", "inferred_domains": ["vendas"]}`, nil
	}

	index := retriever.NewMockRetriever()
	index.SearchTablesFunc = func(context.Context, string, retriever.Filter, int) ([]retriever.TableHit, error) {
		return []retriever.TableHit{{TableID: "t1", Score: 0.9}, {TableID: "t2", Score: 0.4}}, nil
	}

	qualityCache := cache.NewQualityCache()
	qualityCache.Set("tb_vendas_consig", 95, time.Now())

	intents := cache.NewIntentCache(100, time.Hour)
	dict, err := synonyms.New("", logger)
	require.NoError(t, err)

	fs := feedback.NewStore(feedback.NewMemoryRepository(), 3, time.Minute, logger)
	collector := metrics.NewCollector(100)
	sink := &recordingSink{}
	exporter := metrics.NewExporter(collector, sink, time.Minute, 10, logger)

	pipeline := dag.New(dag.Deps{
		Catalog:    store,
		Normalizer: services.NewIntentNormalizer(model, intents, dict, logger),
		Tables:     services.NewTableSearchService(index, fs, qualityCache, logger),
		Columns:    services.NewColumnSearchService(index, logger),
		Reranker:   services.NewReranker(model, services.RerankerConfig{}, logger),
		Collector:  collector,
		Logger:     logger,
	})

	f := &handlerFixture{
		mux:          http.NewServeMux(),
		store:        store,
		index:        index,
		model:        model,
		collector:    collector,
		quality:      qualityCache,
		intents:      intents,
		feedback:     fs,
		notifier:     &notify.MockNotifier{},
		exporter:     exporter,
		sink:         sink,
		variables:    workflow.NewMemoryVariableRepository(),
		matches:      workflow.NewMemoryMatchRepository(),
		involvements: workflow.NewMemoryInvolvementRepository(),
	}
	f.workflow = workflow.NewService(
		f.variables, f.matches, workflow.NewMemoryResponseRepository(), f.involvements,
		workflow.NewMemoryHistoryRepository(), store, fs, f.notifier, logger)
	f.health = services.NewHealthChecker(index, collector, qualityCache, exporter, true, logger)

	NewSearchHandler(pipeline, logger).RegisterRoutes(f.mux)
	NewFeedbackHandler(fs, collector, 3, logger).RegisterRoutes(f.mux)
	NewWorkflowHandler(f.workflow, logger).RegisterRoutes(f.mux)
	NewInvolvementHandler(f.workflow, logger).RegisterRoutes(f.mux)
	NewMonitoringHandler(collector, f.health, exporter, intents, qualityCache, nil, logger).RegisterRoutes(f.mux)
	NewCatalogHandler(store, index, logger).RegisterRoutes(f.mux)
	return f
}

// do issues a JSON request against the fixture mux.
func (f *handlerFixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

// decodeInto parses a recorded JSON response body.
func decodeInto(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(dst))
}
