package rag

import (
	"context"
	"fmt"

	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/pipeline"
)

// GraphQuery expands neighbor paths around the resolved vertex ids and
// renders them as graph-channel candidates.
type GraphQuery struct {
	graph    GraphReader
	depth    int
	maxItems int
}

// NewGraphQuery creates the traversal operator. depth is capped by the
// server query; maxItems bounds the candidate count.
func NewGraphQuery(graph GraphReader, depth, maxItems int) *GraphQuery {
	if depth <= 0 {
		depth = 2
	}
	if maxItems <= 0 {
		maxItems = 30
	}
	return &GraphQuery{graph: graph, depth: depth, maxItems: maxItems}
}

func (o *GraphQuery) Name() string { return "graph_query" }

func (o *GraphQuery) Requires() []pipeline.Key { return []pipeline.Key{KeyVids} }

func (o *GraphQuery) Provides() []pipeline.Key { return []pipeline.Key{KeyGraph} }

// SkipWhenMissing: no vids key means the graph channel was not requested.
func (o *GraphQuery) SkipWhenMissing() bool { return true }

// Run produces the graph candidates. Zero resolved vids is an empty result,
// not an error.
func (o *GraphQuery) Run(ctx context.Context, c *Context) error {
	if len(c.Vids) == 0 {
		c.GraphCandidates = nil
		return nil
	}
	paths, err := o.graph.NeighborPaths(ctx, c.Vids, o.depth, o.maxItems)
	if err != nil {
		return fmt.Errorf("%w: neighbor paths: %v", ErrUpstream, err)
	}
	candidates := make([]models.Candidate, 0, len(paths))
	for _, p := range paths {
		candidates = append(candidates, models.Candidate{
			Content:   p.Text,
			FromGraph: true,
			Hops:      p.Hops,
		})
	}
	c.GraphCandidates = candidates
	return nil
}
