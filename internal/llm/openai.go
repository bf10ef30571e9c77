package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const defaultMaxTokens = 2048

// OpenAIGenerator calls an OpenAI-compatible chat completions endpoint. A
// custom base URL points it at compatible providers (Ollama, vLLM, LiteLLM).
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIGenerator creates a generator against an OpenAI-compatible API.
// An empty baseURL uses the official endpoint.
func NewOpenAIGenerator(apiKey, baseURL, model string, maxTokens int, temperature float32) (*OpenAIGenerator, error) {
	if model == "" {
		return nil, fmt.Errorf("chat model name is required")
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

// Generate returns the completion for prompt.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Close releases nothing; the HTTP client needs no teardown.
func (g *OpenAIGenerator) Close() error {
	return nil
}
