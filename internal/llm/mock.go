package llm

import (
	"context"
	"sync"
)

// MockGenerator is a scriptable generator for tests. It records every prompt
// and is safe for concurrent use.
type MockGenerator struct {
	// RespondFunc, when set, computes the reply per prompt.
	RespondFunc func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

// Generate records the prompt and returns the scripted reply.
func (g *MockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	fn := g.RespondFunc
	g.mu.Unlock()
	if fn != nil {
		return fn(prompt)
	}
	return "mock answer", nil
}

// Prompts returns a copy of all prompts seen so far.
func (g *MockGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.prompts))
	copy(out, g.prompts)
	return out
}

// CallCount returns how many times Generate was called.
func (g *MockGenerator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// Close is a no-op for MockGenerator.
func (g *MockGenerator) Close() error {
	return nil
}
