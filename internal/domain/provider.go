package domain

import "context"

// LLMProvider is the interface for any LLM backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "gemini", "openai").
	Name() string
}

// ModelNamer is implemented by providers that can report the model they call.
type ModelNamer interface {
	Model() string
}
