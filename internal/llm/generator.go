// Package llm provides text generation for keyword extraction, triple
// extraction, and answer synthesis. Implementations cover OpenAI-compatible
// chat APIs and a mock for tests.
package llm

import "context"

// Generator produces a completion for a prompt.
type Generator interface {
	// Generate returns the model's completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// Close releases resources.
	Close() error
}
