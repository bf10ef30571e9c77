// Package rag answers questions over two retrieval channels: vector
// similarity over indexed chunks and neighbor-path expansion over a
// knowledge graph. Operators run in a declared-order chain over a shared
// typed context; the merge operator fuses both channels before answer
// synthesis.
package rag

import (
	"context"
	"errors"

	"github.com/hyperjump/tsunagu/internal/graph"
	"github.com/hyperjump/tsunagu/internal/vector"
)

// ErrUpstream marks a failure of an external collaborator (embedding
// service, graph server, or LLM). It propagates unchanged; retries are the
// caller's business.
var ErrUpstream = errors.New("upstream failure")

// GraphReader is the graph access the retrieval operators need.
type GraphReader interface {
	ExistingVertexIDs(ctx context.Context, ids []string) ([]string, error)
	NeighborPaths(ctx context.Context, vids []string, depth, limit int) ([]graph.Path, error)
}

// KeywordMatcher resolves a keyword to candidate vertex ids.
type KeywordMatcher interface {
	Match(keyword string, limit int) ([]string, error)
}

// VectorSearcher is the similarity search the retrieval operators need.
type VectorSearcher interface {
	Search(query []float32, topK int) ([]vector.Hit, error)
}
