// Package llm — Task 5.1: Provider interface.
// Adapters (Ollama, OpenAI, etc.) implement this interface so the chat motor
// is never coupled to a specific LLM vendor. The generation call is an
// opaque collaborator: it may fail, and bus handlers that invoke it surface
// that failure only as a response event, never as a handler fault.
package llm

import "context"

// Provider is the model-agnostic interface for LLM operations.
type Provider interface {
	// ChatCompletion performs a non-streaming chat completion.
	ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// ModelInfo returns static metadata about the provider/model.
	ModelInfo() ModelMeta

	// HealthCheck returns nil if the provider is reachable and operational.
	HealthCheck(ctx context.Context) error
}
