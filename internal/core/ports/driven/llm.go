// Package driven provides interfaces for infrastructure adapters (secondary/outbound ports).
package driven

import "context"

// LLMService sends a prompt to a hosted chat-completion endpoint.
// Implementations hold no memory of previous calls; multi-stage chaining
// is the pipeline's job.
//
// Implementations may include:
//   - OpenAI (and compatible APIs)
//   - Ollama (local models)
//   - Gemini
//
// Errors wrap domain.ErrAuthentication, domain.ErrProvider or domain.ErrTimeout.
type LLMService interface {
	// Generate sends prompt as a single user message and returns the raw reply.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// ModelName returns the name of the LLM model being used.
	ModelName() string

	// Ping validates the service is reachable by making a lightweight test request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// GenerateOptions configures text generation behaviour.
type GenerateOptions struct {
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic, 1.0 = creative).
	Temperature float64

	// StopWords are sequences that stop generation when encountered.
	StopWords []string
}
