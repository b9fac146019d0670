package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/llm"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

const rerankReasoningMaxLen = 100

const rerankSystemPrompt = `Você é um especialista em catálogo de dados corporativo. ` +
	`Sua tarefa é reordenar tabelas candidatas para uma necessidade de dados, ` +
	`priorizando fontes certificadas, atualizadas e com histórico de aprovação. ` +
	`Responda APENAS com JSON válido.`

// rerankResponse is the JSON shape the model must return.
type rerankResponse struct {
	Ranking    []string `json:"ranking"`
	Reasoning  string   `json:"reasoning"`
	Confidence float64  `json:"confidence"`
}

// RerankerConfig tunes activation.
type RerankerConfig struct {
	SpreadThreshold float64 // activate when the top-5 spread is below this
	MaxCandidates   int     // at most this many candidates go to the model
}

// Reranker asks the LLM to break near-ties in the table ranking. On any
// model or parse failure the input ordering is returned unchanged.
type Reranker struct {
	model  llm.LanguageModel
	cfg    RerankerConfig
	logger *zap.Logger
}

// NewReranker creates a Reranker. Zero config fields fall back to the
// defaults (0.15 spread, 10 candidates).
func NewReranker(model llm.LanguageModel, cfg RerankerConfig, logger *zap.Logger) *Reranker {
	if cfg.SpreadThreshold <= 0 {
		cfg.SpreadThreshold = 0.15
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = 10
	}
	return &Reranker{model: model, cfg: cfg, logger: logger.Named("reranker")}
}

// ShouldActivate reports whether reranking is worth a model call: at least
// two candidates whose top-5 scores are too close to trust the ranking.
func (r *Reranker) ShouldActivate(matches []models.TableMatch, skipRerank bool) bool {
	if skipRerank || r.model == nil || len(matches) < 2 {
		return false
	}
	last := min(5, len(matches)) - 1
	return matches[0].Score-matches[last].Score < r.cfg.SpreadThreshold
}

// Rerank reorders matches by the model's ranking. Returns the reordered
// slice and whether a rerank actually happened.
func (r *Reranker) Rerank(ctx context.Context, matches []models.TableMatch, skipRerank bool) ([]models.TableMatch, bool) {
	if !r.ShouldActivate(matches, skipRerank) {
		return matches, false
	}

	n := min(r.cfg.MaxCandidates, len(matches))
	head, tail := matches[:n], matches[n:]

	response, err := r.model.Complete(ctx, buildRerankPrompt(head), rerankSystemPrompt)
	if err != nil {
		r.logger.Warn("rerank call failed, keeping original order", zap.Error(err))
		return matches, false
	}

	parsed, err := llm.ParseJSONResponse[rerankResponse](response)
	if err != nil {
		r.logger.Warn("rerank response unparseable, keeping original order", zap.Error(err))
		return matches, false
	}

	reordered := applyRanking(head, parsed.Ranking)
	reasoning := parsed.Reasoning
	if len(reasoning) > rerankReasoningMaxLen {
		reasoning = reasoning[:rerankReasoningMaxLen]
	}
	if reasoning != "" {
		for i := range reordered {
			reordered[i].Reasoning += " · rerank: " + reasoning
		}
	}

	r.logger.Debug("reranked candidates",
		zap.Int("candidates", n),
		zap.Float64("confidence", parsed.Confidence))

	return append(reordered, tail...), true
}

// applyRanking orders matches by the returned id list. Matches the model
// skipped keep their relative order after the ranked ones.
func applyRanking(matches []models.TableMatch, ranking []string) []models.TableMatch {
	byID := make(map[string]int, len(matches))
	for i := range matches {
		byID[matches[i].Table.ID] = i
	}

	used := make(map[int]bool, len(matches))
	out := make([]models.TableMatch, 0, len(matches))
	for _, id := range ranking {
		if i, ok := byID[id]; ok && !used[i] {
			out = append(out, matches[i])
			used[i] = true
		}
	}
	for i := range matches {
		if !used[i] {
			out = append(out, matches[i])
		}
	}
	return out
}

func buildRerankPrompt(matches []models.TableMatch) string {
	var b strings.Builder
	b.WriteString("Candidatas para a necessidade de dados, em ordem atual:\n\n")
	for i := range matches {
		m := &matches[i]
		fmt.Fprintf(&b, "- id: %s | tabela: %s | score: %.3f | golden_source: %t | visao_cliente: %t | camada: %s\n  motivo: %s\n",
			m.Table.ID, m.Table.Name, m.Score,
			m.Table.IsGoldenSource, m.Table.IsVisaoCliente, m.Table.DataLayer,
			m.Reasoning)
	}
	b.WriteString("\nReordene da melhor para a pior. Responda com JSON:\n")
	b.WriteString(`{"ranking": ["id1", "id2", ...], "reasoning": "justificativa curta", "confidence": 0.0}`)
	return b.String()
}
