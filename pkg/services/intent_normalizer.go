package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/cache"
	"github.com/catalogo-ai/catalog-engine/pkg/llm"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
	"github.com/catalogo-ai/catalog-engine/pkg/synonyms"
)

// Extraction confidence levels. Cache hits keep the stored confidence;
// fresh extractions get the LLM level; failures the fallback level.
const (
	llmExtractionConfidence      = 0.85
	fallbackExtractionConfidence = 0.3
)

// maxSynonymsPerDomain bounds inferred-domain expansion.
const maxSynonymsPerDomain = 2

// maxQueryVariants bounds how many synonym-expanded aliases a cache entry
// gets.
const maxQueryVariants = 3

// portugueseStopwords is the fixed stopword set for cache-key normalization.
var portugueseStopwords = map[string]struct{}{
	"a": {}, "as": {}, "o": {}, "os": {}, "um": {}, "uma": {}, "uns": {}, "umas": {},
	"de": {}, "do": {}, "da": {}, "dos": {}, "das": {}, "no": {}, "na": {}, "nos": {}, "nas": {},
	"em": {}, "por": {}, "para": {}, "com": {}, "sem": {}, "sobre": {}, "entre": {},
	"e": {}, "ou": {}, "que": {}, "se": {}, "ao": {}, "aos": {}, "pela": {}, "pelo": {},
	"qual": {}, "quais": {}, "onde": {}, "quando": {}, "como": {}, "quero": {}, "preciso": {},
	"tem": {}, "ter": {}, "ser": {}, "estar": {}, "é": {}, "são": {},
}

const intentSystemPrompt = `Você extrai a intenção estruturada de pedidos de dados corporativos em português. Responda APENAS com JSON válido.`

const intentPromptTemplate = `Extraia a intenção do pedido de dados abaixo.

Pedido: %q
Nome da variável: %q
Tipo da variável: %q
Contexto: %s

Responda com JSON contendo exatamente estes campos (string vazia quando não identificado):
{
  "data_need": "o que o usuário precisa, em poucas palavras",
  "data_type": "cadastral|transacional|agregado|indicador|outro",
  "target_entity": "entidade principal (cliente, contrato, conta...)",
  "target_segment": "segmento (varejo, atacado, pj...)",
  "target_product": "produto (consignado, imobiliario, cartao...)",
  "target_audience": "público-alvo",
  "granularity": "granularidade (cliente, contrato, dia, mes...)",
  "time_reference": "referência temporal mencionada",
  "inferred_domains": ["domínios de negócio prováveis"]
}`

// NormalizeInput is one normalization request.
type NormalizeInput struct {
	RawQuery     string
	VariableName string
	VariableType string
	Context      map[string]string
}

// IntentNormalizer converts free-form requests into canonical intents,
// caching aggressively to keep the LLM out of the hot path.
type IntentNormalizer struct {
	model      llm.LanguageModel
	cache      *cache.IntentCache
	dictionary *synonyms.Dictionary
	logger     *zap.Logger
}

// NewIntentNormalizer creates an IntentNormalizer. model may be nil; every
// call then takes the fallback path.
func NewIntentNormalizer(model llm.LanguageModel, c *cache.IntentCache, dict *synonyms.Dictionary, logger *zap.Logger) *IntentNormalizer {
	return &IntentNormalizer{
		model:      model,
		cache:      c,
		dictionary: dict,
		logger:     logger.Named("intent"),
	}
}

// Normalize returns the canonical intent for the input, plus whether it was
// served from cache. Never returns an error: LLM failure produces a fallback
// intent with low confidence.
func (n *IntentNormalizer) Normalize(ctx context.Context, in NormalizeInput) (models.Intent, bool) {
	key := CacheKey(in.RawQuery, in.Context)

	if cached, ok := n.cache.Get(key); ok {
		cached.OriginalQuery = in.RawQuery
		return cached, true
	}

	intent, err := n.extract(ctx, in)
	if err != nil {
		n.logger.Warn("intent extraction failed, using fallback", zap.Error(err))
		return n.fallback(in), false
	}

	intent.OriginalQuery = in.RawQuery
	intent.ExtractionConfidence = llmExtractionConfidence
	n.expandDomains(&intent)

	n.cache.Set(key, intent, n.variantKeys(in)...)
	return intent, false
}

// extract calls the model and parses its JSON reply.
func (n *IntentNormalizer) extract(ctx context.Context, in NormalizeInput) (models.Intent, error) {
	if n.model == nil {
		return models.Intent{}, fmt.Errorf("no language model configured")
	}

	prompt := fmt.Sprintf(intentPromptTemplate,
		in.RawQuery, in.VariableName, in.VariableType, formatContext(in.Context))

	response, err := n.model.Complete(ctx, prompt, intentSystemPrompt)
	if err != nil {
		return models.Intent{}, err
	}

	return llm.ParseJSONResponse[models.Intent](response)
}

// fallback builds the degraded intent used when extraction is impossible.
func (n *IntentNormalizer) fallback(in NormalizeInput) models.Intent {
	dataNeed := in.VariableName
	if dataNeed == "" {
		dataNeed = in.RawQuery
	}
	return models.Intent{
		DataNeed:             dataNeed,
		OriginalQuery:        in.RawQuery,
		ExtractionConfidence: fallbackExtractionConfidence,
	}
}

// expandDomains widens inferred_domains with up to two synonyms per seeded
// domain, keeping first-seen order.
func (n *IntentNormalizer) expandDomains(intent *models.Intent) {
	if n.dictionary == nil || len(intent.InferredDomains) == 0 {
		return
	}

	seen := make(map[string]struct{}, len(intent.InferredDomains))
	expanded := make([]string, 0, len(intent.InferredDomains)*(maxSynonymsPerDomain+1))
	for _, d := range intent.InferredDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if _, ok := seen[d]; !ok {
			seen[d] = struct{}{}
			expanded = append(expanded, d)
		}
		added := 0
		for _, syn := range n.dictionary.GetSynonyms(d) {
			if added == maxSynonymsPerDomain {
				break
			}
			if _, ok := seen[syn]; !ok {
				seen[syn] = struct{}{}
				expanded = append(expanded, syn)
				added++
			}
		}
	}
	intent.InferredDomains = expanded
}

// variantKeys derives extra cache keys from synonym-expanded forms of the
// query, so a paraphrased repeat still hits.
func (n *IntentNormalizer) variantKeys(in NormalizeInput) []string {
	if n.dictionary == nil {
		return nil
	}

	variants := n.dictionary.ExpandQuery(in.RawQuery, maxQueryVariants)
	keys := make([]string, 0, len(variants)-1)
	primary := CacheKey(in.RawQuery, in.Context)
	for _, v := range variants[1:] { // variants[0] is the original
		if k := CacheKey(v, in.Context); k != primary {
			keys = append(keys, k)
		}
	}
	return keys
}

// CacheKey derives the canonical cache key for a query plus context:
// lowercase, letters and spaces only, stopwords removed, tokens deduped and
// sorted, context pairs appended in sorted order, first 32 hex chars of the
// SHA-256.
func CacheKey(rawQuery string, context map[string]string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(rawQuery) {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}

	tokenSet := make(map[string]struct{})
	for _, tok := range strings.Fields(b.String()) {
		if _, stop := portugueseStopwords[tok]; stop {
			continue
		}
		tokenSet[tok] = struct{}{}
	}

	tokens := make([]string, 0, len(tokenSet))
	for tok := range tokenSet {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	pairs := make([]string, 0, len(context))
	for k, v := range context {
		pairs = append(pairs, k+":"+strings.ToLower(v))
	}
	sort.Strings(pairs)

	material := strings.Join(tokens, " ") + "|" + strings.Join(pairs, ",")
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])[:32]
}

func formatContext(context map[string]string) string {
	if len(context) == 0 {
		return "nenhum"
	}
	pairs := make([]string, 0, len(context))
	for k, v := range context {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ", ")
}
