package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/catalogo-ai/catalog-engine/pkg/llm"
	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

func rerankMatches(scores ...float64) []models.TableMatch {
	out := make([]models.TableMatch, 0, len(scores))
	for i, s := range scores {
		out = append(out, match("t"+string(rune('1'+i)), "vendas", "", s))
	}
	return out
}

func TestRerankerShouldActivate(t *testing.T) {
	r := NewReranker(llm.NewMockLanguageModel(), RerankerConfig{}, zap.NewNop())

	tests := []struct {
		name    string
		matches []models.TableMatch
		skip    bool
		want    bool
	}{
		{"tight spread", rerankMatches(0.72, 0.70, 0.68, 0.65, 0.62), false, true},
		{"wide spread", rerankMatches(0.90, 0.60, 0.50), false, false},
		{"boundary spread not activated", rerankMatches(0.80, 0.65), false, false},
		{"single candidate", rerankMatches(0.50), false, false},
		{"empty", nil, false, false},
		{"skip flag", rerankMatches(0.72, 0.70), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.ShouldActivate(tt.matches, tt.skip))
		})
	}
}

func TestRerankerNilModelNeverActivates(t *testing.T) {
	r := NewReranker(nil, RerankerConfig{}, zap.NewNop())
	assert.False(t, r.ShouldActivate(rerankMatches(0.72, 0.70), false))
}

func TestRerankReorders(t *testing.T) {
	mock := llm.NewMockLanguageModel()
	mock.CompleteFunc = func(context.Context, string, string) (string, error) {
		return `{"ranking": ["t3", "t1", "t2"], "reasoning": "t3 é golden source", "confidence": 0.9}`, nil
	}
	r := NewReranker(mock, RerankerConfig{}, zap.NewNop())

	out, activated := r.Rerank(context.Background(), rerankMatches(0.72, 0.71, 0.70), false)

	assert.True(t, activated)
	require.Len(t, out, 3)
	assert.Equal(t, "t3", out[0].Table.ID)
	assert.Equal(t, "t1", out[1].Table.ID)
	assert.Equal(t, "t2", out[2].Table.ID)
	assert.Contains(t, out[0].Reasoning, "rerank: t3 é golden source")
}

func TestRerankPartialRankingKeepsSkippedOrder(t *testing.T) {
	mock := llm.NewMockLanguageModel()
	mock.CompleteFunc = func(context.Context, string, string) (string, error) {
		// Mentions only t3 and an unknown id; t1 and t2 keep relative order.
		return `{"ranking": ["t3", "ghost"], "reasoning": "", "confidence": 0.4}`, nil
	}
	r := NewReranker(mock, RerankerConfig{}, zap.NewNop())

	out, activated := r.Rerank(context.Background(), rerankMatches(0.72, 0.71, 0.70), false)

	assert.True(t, activated)
	ids := []string{out[0].Table.ID, out[1].Table.ID, out[2].Table.ID}
	assert.Equal(t, []string{"t3", "t1", "t2"}, ids)
}

func TestRerankTruncatesReasoning(t *testing.T) {
	long := strings.Repeat("a", 300)
	mock := llm.NewMockLanguageModel()
	mock.CompleteFunc = func(context.Context, string, string) (string, error) {
		return `{"ranking": ["t2", "t1"], "reasoning": "` + long + `", "confidence": 0.8}`, nil
	}
	r := NewReranker(mock, RerankerConfig{}, zap.NewNop())

	out, _ := r.Rerank(context.Background(), rerankMatches(0.72, 0.71), false)

	idx := strings.Index(out[0].Reasoning, "rerank: ")
	require.GreaterOrEqual(t, idx, 0)
	appended := out[0].Reasoning[idx+len("rerank: "):]
	assert.Len(t, appended, rerankReasoningMaxLen)
}

func TestRerankModelFailureKeepsOrder(t *testing.T) {
	mock := llm.NewMockLanguageModel()
	mock.CompleteFunc = func(context.Context, string, string) (string, error) {
		return "", errors.New("timeout")
	}
	r := NewReranker(mock, RerankerConfig{}, zap.NewNop())

	in := rerankMatches(0.72, 0.71)
	out, activated := r.Rerank(context.Background(), in, false)

	assert.False(t, activated)
	assert.Equal(t, in, out)
}

func TestRerankUnparseableReplyKeepsOrder(t *testing.T) {
	mock := llm.NewMockLanguageModel()
	mock.CompleteFunc = func(context.Context, string, string) (string, error) {
		return "sem json aqui", nil
	}
	r := NewReranker(mock, RerankerConfig{}, zap.NewNop())

	in := rerankMatches(0.72, 0.71)
	out, activated := r.Rerank(context.Background(), in, false)

	assert.False(t, activated)
	assert.Equal(t, in, out)
}

func TestRerankRespectsMaxCandidates(t *testing.T) {
	mock := llm.NewMockLanguageModel()
	mock.CompleteFunc = func(_ context.Context, prompt, _ string) (string, error) {
		assert.NotContains(t, prompt, "t3", "candidates past the cap stay out of the prompt")
		return `{"ranking": ["t2", "t1"], "reasoning": "", "confidence": 0.5}`, nil
	}
	r := NewReranker(mock, RerankerConfig{MaxCandidates: 2}, zap.NewNop())

	out, activated := r.Rerank(context.Background(), rerankMatches(0.72, 0.71, 0.70), false)

	assert.True(t, activated)
	// Tail past the cap keeps its position at the end.
	assert.Equal(t, "t2", out[0].Table.ID)
	assert.Equal(t, "t1", out[1].Table.ID)
	assert.Equal(t, "t3", out[2].Table.ID)
}
