package llm

import "context"

// MockLanguageModel is a configurable mock for testing LLM functionality.
// Set the function fields to control behavior in tests.
type MockLanguageModel struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns empty string and nil error.
	CompleteFunc func(ctx context.Context, prompt string, systemMessage string) (string, error)

	// CreateEmbeddingFunc is called when CreateEmbedding is invoked.
	// If nil, returns nil slice and nil error.
	CreateEmbeddingFunc func(ctx context.Context, input string) ([]float32, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	// Call tracking for verification
	CompleteCalls        int
	CreateEmbeddingCalls int
}

// NewMockLanguageModel creates a new mock with sensible defaults.
func NewMockLanguageModel() *MockLanguageModel {
	return &MockLanguageModel{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// Complete implements LanguageModel.
func (m *MockLanguageModel) Complete(ctx context.Context, prompt string, systemMessage string) (string, error) {
	m.CompleteCalls++
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, systemMessage)
	}
	return "", nil
}

// CreateEmbedding implements LanguageModel.
func (m *MockLanguageModel) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	m.CreateEmbeddingCalls++
	if m.CreateEmbeddingFunc != nil {
		return m.CreateEmbeddingFunc(ctx, input)
	}
	return nil, nil
}

// GetModel implements LanguageModel.
func (m *MockLanguageModel) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetEndpoint implements LanguageModel.
func (m *MockLanguageModel) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}

// Reset clears call tracking counters.
func (m *MockLanguageModel) Reset() {
	m.CompleteCalls = 0
	m.CreateEmbeddingCalls = 0
}

// Ensure MockLanguageModel implements LanguageModel at compile time.
var _ LanguageModel = (*MockLanguageModel)(nil)
