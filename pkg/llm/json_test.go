package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "plain object",
			response: `{"action": "USE_TABLE"}`,
			want:     `{"action": "USE_TABLE"}`,
		},
		{
			name:     "markdown code block",
			response: "```json\n{\"score\": 0.82}\n```",
			want:     `{"score": 0.82}`,
		},
		{
			name:     "surrounding prose",
			response: `Here is the ranking: {"ranking": ["a", "b"]} as requested.`,
			want:     `{"ranking": ["a", "b"]}`,
		},
		{
			name:     "think tags stripped",
			response: "<think>\nLet me consider the options...\n</think>\n{\"confidence\": 0.9}",
			want:     `{"confidence": 0.9}`,
		},
		{
			name:     "nested object",
			response: `{"outer": {"inner": [1, 2, {"deep": true}]}}`,
			want:     `{"outer": {"inner": [1, 2, {"deep": true}]}}`,
		},
		{
			name:     "braces inside strings",
			response: `{"reasoning": "tables {a} and {b} overlap"}`,
			want:     `{"reasoning": "tables {a} and {b} overlap"}`,
		},
		{
			name:     "escaped quotes inside strings",
			response: `{"label": "tabela \"clientes\""}`,
			want:     `{"label": "tabela \"clientes\""}`,
		},
		{
			name:     "top-level array",
			response: `The list: ["tbl_a", "tbl_b"]`,
			want:     `["tbl_a", "tbl_b"]`,
		},
		{
			name:     "no JSON at all",
			response: "I cannot answer that.",
			wantErr:  true,
		},
		{
			name:     "unbalanced braces",
			response: `{"broken": `,
			wantErr:  true,
		},
		{
			name:     "empty response",
			response: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	type ranking struct {
		Ranking    []string `json:"ranking"`
		Confidence float64  `json:"confidence"`
	}

	t.Run("valid response", func(t *testing.T) {
		got, err := ParseJSONResponse[ranking](`Result: {"ranking": ["b", "a"], "confidence": 0.8}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a"}, got.Ranking)
		assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := ParseJSONResponse[ranking](`{"ranking": "not-an-array"}`)
		require.Error(t, err)
	})

	t.Run("no JSON", func(t *testing.T) {
		_, err := ParseJSONResponse[ranking]("nothing here")
		require.Error(t, err)
	})
}

func TestMockLanguageModelTracksCalls(t *testing.T) {
	mock := NewMockLanguageModel()
	mock.CompleteFunc = func(_ context.Context, prompt, _ string) (string, error) {
		return `{"echo": "` + prompt + `"}`, nil
	}

	out, err := mock.Complete(context.Background(), "oi", "system")
	require.NoError(t, err)
	assert.Equal(t, `{"echo": "oi"}`, out)
	assert.Equal(t, 1, mock.CompleteCalls)

	mock.Reset()
	assert.Equal(t, 0, mock.CompleteCalls)
}
