// Package llm provides OpenAI-compatible LLM client functionality.
package llm

import "context"

// LanguageModel defines the interface for LLM operations. Combines chat
// completion and embedding capabilities. Use this interface for dependency
// injection to enable mocking in tests.
type LanguageModel interface {
	// Complete generates a chat completion for the prompt. Blocks until the
	// context deadline; cancellation is supported.
	Complete(ctx context.Context, prompt string, systemMessage string) (string, error)

	// CreateEmbedding generates an embedding vector for the input text.
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure Client implements LanguageModel at compile time.
var _ LanguageModel = (*Client)(nil)
