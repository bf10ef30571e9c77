package rag

import (
	"context"
	"fmt"

	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/pipeline"
)

// VectorQuery embeds the question and searches the chunk index for the
// vector-channel candidates.
type VectorQuery struct {
	embedder embedding.Embedder
	index    VectorSearcher
}

// NewVectorQuery creates the similarity-search operator.
func NewVectorQuery(embedder embedding.Embedder, index VectorSearcher) *VectorQuery {
	return &VectorQuery{embedder: embedder, index: index}
}

func (o *VectorQuery) Name() string { return "vector_query" }

func (o *VectorQuery) Requires() []pipeline.Key { return []pipeline.Key{KeyQuery} }

func (o *VectorQuery) Provides() []pipeline.Key { return []pipeline.Key{KeyVector} }

func (o *VectorQuery) SkipWhenMissing() bool { return false }

func (o *VectorQuery) Run(ctx context.Context, c *Context) error {
	emb, err := o.embedder.Embed(ctx, c.Request.Question)
	if err != nil {
		return fmt.Errorf("%w: embed question: %v", ErrUpstream, err)
	}
	hits, err := o.index.Search(emb, c.Request.TopK)
	if err != nil {
		return fmt.Errorf("chunk search: %w", err)
	}
	candidates := make([]models.Candidate, 0, len(hits))
	for _, hit := range hits {
		content, ok := hit.Props[models.PropContent].(string)
		if !ok || content == "" {
			continue
		}
		candidates = append(candidates, models.Candidate{
			Content:    content,
			FromVector: true,
			Distance:   float64(hit.Distance),
		})
	}
	c.VectorCandidates = candidates
	return nil
}
