// Package rerank scores retrieval candidates against a query. The lexical
// scorer is local and deterministic; the remote scorer calls a rerank API
// and reports transient failures as ErrUnavailable so callers can degrade
// instead of failing the request.
package rerank

import (
	"context"
	"errors"
)

// ErrUnavailable marks a transient remote-reranker failure. Callers fall
// back to lexical scoring when they see it.
var ErrUnavailable = errors.New("reranker unavailable")

// Scorer assigns a relevance score to each candidate text for a query.
// Scores are returned in input order, one per text.
type Scorer interface {
	Scores(ctx context.Context, query string, texts []string) ([]float64, error)
}
