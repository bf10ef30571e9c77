package embedding

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperjump/tsunagu/pkg/utils"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint. A custom
// base URL points it at compatible providers (Ollama, vLLM, LiteLLM).
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
	cache      *Cache
}

// maxConcurrentEmbedCalls bounds parallel API requests in EmbedBatch.
const maxConcurrentEmbedCalls = 10

// NewOpenAIEmbedder creates an embedder against an OpenAI-compatible API.
// An empty baseURL uses the official endpoint.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimensions, cacheSize int) (*OpenAIEmbedder, error) {
	if model == "" {
		return nil, fmt.Errorf("embedding model name is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", dimensions)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
		cache:      NewCache(cacheSize),
	}, nil
}

// Embed returns the embedding for text, using cache when available.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embeddings response contained no data")
	}

	raw := resp.Data[0].Embedding
	if len(raw) != e.dimensions {
		return nil, fmt.Errorf("model returned %d dimensions, expected %d", len(raw), e.dimensions)
	}
	embedding := make([]float32, len(raw))
	for i := range raw {
		embedding[i] = float32(raw[i])
	}

	utils.NormalizeL2(embedding)
	e.cache.Set(text, embedding)
	return embedding, nil
}

// EmbedBatch embeds texts with bounded parallelism. The first error cancels
// nothing in flight but is returned once all workers finish.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	errChan := make(chan error, len(texts))
	sem := make(chan struct{}, maxConcurrentEmbedCalls)

	for i := range texts {
		sem <- struct{}{}
		go func(idx int) {
			defer func() { <-sem }()
			emb, err := e.Embed(ctx, texts[idx])
			if err != nil {
				errChan <- fmt.Errorf("text %d: %w", idx, err)
				return
			}
			embeddings[idx] = emb
			errChan <- nil
		}(i)
	}

	var firstErr error
	for range texts {
		if err := <-errChan; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases nothing; the HTTP client needs no teardown.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
