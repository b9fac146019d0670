package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/cache"
	"github.com/catalogo-ai/catalog-engine/pkg/llm"
	"github.com/catalogo-ai/catalog-engine/pkg/synonyms"
)

func newNormalizer(t *testing.T, model llm.LanguageModel) *IntentNormalizer {
	t.Helper()
	dict, err := synonyms.New("", zap.NewNop())
	require.NoError(t, err)
	return NewIntentNormalizer(model, cache.NewIntentCache(100, time.Hour), dict, zap.NewNop())
}

func TestCacheKeyNormalization(t *testing.T) {
	// Whitespace, case, punctuation, and stopwords must not matter.
	base := CacheKey("vendas mensais consignado", nil)
	assert.Equal(t, base, CacheKey("  VENDAS   mensais, consignado!! ", nil))
	assert.Equal(t, base, CacheKey("as vendas mensais do consignado", nil))
	assert.Equal(t, base, CacheKey("consignado mensais vendas", nil), "token order is irrelevant")

	assert.NotEqual(t, base, CacheKey("saldo consignado", nil))
	assert.Len(t, base, 32)
}

func TestCacheKeyContextPairs(t *testing.T) {
	noCtx := CacheKey("vendas", nil)
	withCtx := CacheKey("vendas", map[string]string{"produto": "consig"})
	assert.NotEqual(t, noCtx, withCtx)

	// Map iteration order must not leak into the key.
	a := CacheKey("vendas", map[string]string{"produto": "consig", "segmento": "varejo"})
	b := CacheKey("vendas", map[string]string{"segmento": "varejo", "produto": "consig"})
	assert.Equal(t, a, b)
}

func TestNormalizeCacheMissCallsModel(t *testing.T) {
	mock := llm.NewMockLanguageModel()
	mock.CompleteFunc = func(context.Context, string, string) (string, error) {
		return `{"data_need": "vendas mensais", "target_product": "consignado", "inferred_domains": ["vendas"]}`, nil
	}
	n := newNormalizer(t, mock)

	intent, hit := n.Normalize(context.Background(), NormalizeInput{RawQuery: "vendas mensais do consignado"})

	assert.False(t, hit)
	assert.Equal(t, 1, mock.CompleteCalls)
	assert.Equal(t, "vendas mensais", intent.DataNeed)
	assert.Equal(t, "vendas mensais do consignado", intent.OriginalQuery)
	assert.InDelta(t, llmExtractionConfidence, intent.ExtractionConfidence, 1e-9)
}

func TestNormalizeCacheHitSkipsModel(t *testing.T) {
	mock := llm.NewMockLanguageModel()
	mock.CompleteFunc = func(context.Context, string, string) (string, error) {
		return `{"data_need": "vendas mensais"}`, nil
	}
	n := newNormalizer(t, mock)
	ctx := context.Background()

	_, hit := n.Normalize(ctx, NormalizeInput{RawQuery: "vendas mensais consignado"})
	require.False(t, hit)

	// Same intent, different surface form.
	intent, hit := n.Normalize(ctx, NormalizeInput{RawQuery: "as VENDAS mensais, consignado"})
	assert.True(t, hit)
	assert.Equal(t, 1, mock.CompleteCalls, "cache hit must not call the model")
	assert.Equal(t, "as VENDAS mensais, consignado", intent.OriginalQuery,
		"original_query is rewritten to the live query")
}

func TestNormalizeLLMFailureFallback(t *testing.T) {
	mock := llm.NewMockLanguageModel()
	mock.CompleteFunc = func(context.Context, string, string) (string, error) {
		return "", errors.New("model unavailable")
	}
	n := newNormalizer(t, mock)

	intent, hit := n.Normalize(context.Background(), NormalizeInput{
		RawQuery:     "algo obscuro",
		VariableName: "vl_algo",
	})

	assert.False(t, hit)
	assert.Equal(t, "vl_algo", intent.DataNeed, "variable name wins over raw query in fallback")
	assert.InDelta(t, fallbackExtractionConfidence, intent.ExtractionConfidence, 1e-9)
	assert.True(t, intent.IsFallback())
}

func TestNormalizeFallbackWithoutVariableName(t *testing.T) {
	n := newNormalizer(t, nil)

	intent, _ := n.Normalize(context.Background(), NormalizeInput{RawQuery: "algo obscuro"})
	assert.Equal(t, "algo obscuro", intent.DataNeed)
}

func TestNormalizeUnparseableReplyFallback(t *testing.T) {
	mock := llm.NewMockLanguageModel()
	mock.CompleteFunc = func(context.Context, string, string) (string, error) {
		return "não consigo responder em JSON", nil
	}
	n := newNormalizer(t, mock)

	intent, _ := n.Normalize(context.Background(), NormalizeInput{RawQuery: "vendas"})
	assert.True(t, intent.IsFallback())
}

func TestNormalizeExpandsInferredDomains(t *testing.T) {
	mock := llm.NewMockLanguageModel()
	mock.CompleteFunc = func(context.Context, string, string) (string, error) {
		return `{"data_need": "receita", "inferred_domains": ["faturamento"]}`, nil
	}
	n := newNormalizer(t, mock)

	intent, _ := n.Normalize(context.Background(), NormalizeInput{RawQuery: "receita total"})

	assert.Contains(t, intent.InferredDomains, "faturamento")
	assert.Contains(t, intent.InferredDomains, "receita", "synonyms of the seeded domain are added")
	assert.LessOrEqual(t, len(intent.InferredDomains), 1+maxSynonymsPerDomain)
}

func TestNormalizeVariantKeysHitCache(t *testing.T) {
	mock := llm.NewMockLanguageModel()
	mock.CompleteFunc = func(context.Context, string, string) (string, error) {
		return `{"data_need": "saldo de clientes"}`, nil
	}
	n := newNormalizer(t, mock)
	ctx := context.Background()

	_, hit := n.Normalize(ctx, NormalizeInput{RawQuery: "saldo cliente"})
	require.False(t, hit)

	// "balanço" is a builtin synonym of "saldo"; the variant key was
	// registered at Set time, so the paraphrase hits without a model call.
	_, hit = n.Normalize(ctx, NormalizeInput{RawQuery: "balanço cliente"})
	assert.True(t, hit)
	assert.Equal(t, 1, mock.CompleteCalls)
}
