package rag

import (
	"context"
	"fmt"

	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/pipeline"
)

// VidResolve maps extracted keywords to graph vertex ids in three tiers:
// exact id lookup, fuzzy name match, then semantic match over the vid
// index. Later tiers run only while a keyword still has fewer than
// perKeyword resolved ids.
type VidResolve struct {
	graph      GraphReader
	matcher    KeywordMatcher
	vidIndex   VectorSearcher
	embedder   embedding.Embedder
	perKeyword int
}

// NewVidResolve creates the resolution operator. matcher and vidIndex may
// be nil; their tiers are then skipped.
func NewVidResolve(graph GraphReader, matcher KeywordMatcher, vidIndex VectorSearcher, embedder embedding.Embedder, perKeyword int) *VidResolve {
	if perKeyword <= 0 {
		perKeyword = 1
	}
	return &VidResolve{
		graph:      graph,
		matcher:    matcher,
		vidIndex:   vidIndex,
		embedder:   embedder,
		perKeyword: perKeyword,
	}
}

func (o *VidResolve) Name() string { return "vid_resolve" }

func (o *VidResolve) Requires() []pipeline.Key { return []pipeline.Key{KeyKeywords} }

func (o *VidResolve) Provides() []pipeline.Key { return []pipeline.Key{KeyVids} }

// SkipWhenMissing: no keywords key means the graph channel was not
// requested, so doing nothing is correct.
func (o *VidResolve) SkipWhenMissing() bool { return true }

func (o *VidResolve) Run(ctx context.Context, c *Context) error {
	seen := make(map[string]struct{})
	var vids []string
	add := func(ids []string) int {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			vids = append(vids, id)
		}
		return len(ids)
	}

	for _, kw := range c.Keywords {
		exact, err := o.graph.ExistingVertexIDs(ctx, []string{kw})
		if err != nil {
			return fmt.Errorf("%w: vertex lookup for %q: %v", ErrUpstream, kw, err)
		}
		found := add(exact)
		if found >= o.perKeyword {
			continue
		}

		if o.matcher != nil {
			fuzzy, err := o.matcher.Match(kw, o.perKeyword-found)
			if err != nil {
				return fmt.Errorf("fuzzy match for %q: %w", kw, err)
			}
			found += add(fuzzy)
			if found >= o.perKeyword {
				continue
			}
		}

		if o.vidIndex != nil && o.embedder != nil {
			emb, err := o.embedder.Embed(ctx, kw)
			if err != nil {
				return fmt.Errorf("%w: embed keyword %q: %v", ErrUpstream, kw, err)
			}
			hits, err := o.vidIndex.Search(emb, o.perKeyword-found)
			if err != nil {
				return fmt.Errorf("semantic match for %q: %w", kw, err)
			}
			for _, hit := range hits {
				if vid, ok := hit.Props[models.PropVid].(string); ok && vid != "" {
					add([]string{vid})
				}
			}
		}
	}

	c.Vids = vids
	return nil
}
