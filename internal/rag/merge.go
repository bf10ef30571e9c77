package rag

import (
	"context"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/pipeline"
	"github.com/hyperjump/tsunagu/internal/rerank"
	"github.com/hyperjump/tsunagu/pkg/utils"
)

// MergeDedupRerank fuses the graph and vector channels into one ranked
// sequence: dedup by canonical content, score, order each origin pool,
// apply the graph/vector quota, and prepend pinned custom info. A remote
// reranker failure never fails the run; the result is marked degraded and
// ranked lexically instead.
type MergeDedupRerank struct {
	lexical *rerank.Lexical
	remote  rerank.Scorer
	log     *zap.Logger
}

// NewMergeDedupRerank creates the fusion operator. remote may be nil; lexical
// ranking is then the only method and remote requests degrade.
func NewMergeDedupRerank(remote rerank.Scorer, log *zap.Logger) *MergeDedupRerank {
	if log == nil {
		log = zap.NewNop()
	}
	return &MergeDedupRerank{
		lexical: rerank.NewLexical(),
		remote:  remote,
		log:     log,
	}
}

func (o *MergeDedupRerank) Name() string { return "merge_dedup_rerank" }

func (o *MergeDedupRerank) Requires() []pipeline.Key { return []pipeline.Key{KeyQuery} }

func (o *MergeDedupRerank) Provides() []pipeline.Key { return []pipeline.Key{KeyMerged} }

func (o *MergeDedupRerank) SkipWhenMissing() bool { return false }

func (o *MergeDedupRerank) Run(ctx context.Context, c *Context) error {
	req := c.Request

	// Channel results enter in a fixed order (graph first) so that dedup's
	// first-occurrence-wins rule is deterministic. An absent key means the
	// channel was never requested; an empty slice means it found nothing.
	var stream []models.Candidate
	if c.Keys().Has(KeyGraph) {
		stream = append(stream, c.GraphCandidates...)
	}
	if c.Keys().Has(KeyVector) {
		stream = append(stream, c.VectorCandidates...)
	}

	deduped := dedupeCandidates(stream)

	scores, degraded := o.score(ctx, req.RerankMethod, req.Question, candidateTexts(deduped))
	for i := range deduped {
		deduped[i].RankScore = scores[i]
	}

	// Dual-origin candidates charge the graph quota.
	var graphPool, vectorPool []models.Candidate
	for _, cand := range deduped {
		switch {
		case cand.FromGraph:
			graphPool = append(graphPool, cand)
		case cand.FromVector:
			vectorPool = append(vectorPool, cand)
		}
	}

	remoteOrder := req.RerankMethod == models.RerankRemote && !degraded
	orderGraphPool(graphPool, remoteOrder, req.NearNeighborFirst)
	orderVectorPool(vectorPool, remoteOrder)

	graphTake, vectorTake := quota(len(graphPool), len(vectorPool), req.TopK, req.GraphRatio)

	merged := make([]models.Candidate, 0, 1+graphTake+vectorTake)
	if req.CustomPriorityInfo != "" {
		merged = append(merged, models.Candidate{Content: req.CustomPriorityInfo, Pinned: true})
	}
	merged = append(merged, graphPool[:graphTake]...)
	merged = append(merged, vectorPool[:vectorTake]...)

	c.Merged = models.Ranking{Candidates: merged, Degraded: degraded}
	return nil
}

// score computes a RankScore per text. Remote failures of any kind fall
// back to lexical and flip the degraded flag.
func (o *MergeDedupRerank) score(ctx context.Context, method models.RerankMethod, query string, texts []string) ([]float64, bool) {
	degraded := false
	if method == models.RerankRemote {
		if o.remote == nil {
			o.log.Warn("remote reranker requested but not configured, using lexical ranking")
			degraded = true
		} else {
			scores, err := o.remote.Scores(ctx, query, texts)
			if err != nil {
				o.log.Warn("remote rerank failed, using lexical ranking", zap.Error(err))
				degraded = true
			} else {
				return scores, false
			}
		}
	}
	scores, _ := o.lexical.Scores(ctx, query, texts)
	return scores, degraded
}

// dedupeCandidates collapses candidates sharing canonical content (Unicode
// lower-case, trimmed, whitespace runs collapsed; punctuation significant).
// The first occurrence keeps its slot; origin flags are OR-merged and a
// dual-origin candidate retains the smaller distance and hop count.
func dedupeCandidates(stream []models.Candidate) []models.Candidate {
	slot := make(map[string]int, len(stream))
	out := make([]models.Candidate, 0, len(stream))
	for _, cand := range stream {
		key := utils.Canonical(cand.Content)
		if key == "" {
			continue
		}
		i, ok := slot[key]
		if !ok {
			slot[key] = len(out)
			out = append(out, cand)
			continue
		}
		kept := &out[i]
		if cand.FromVector {
			if !kept.FromVector || cand.Distance < kept.Distance {
				kept.Distance = cand.Distance
			}
			kept.FromVector = true
		}
		if cand.FromGraph {
			if !kept.FromGraph || cand.Hops < kept.Hops {
				kept.Hops = cand.Hops
			}
			kept.FromGraph = true
		}
	}
	return out
}

// quota splits target slots between the pools. round(target × ratio) goes
// to graph, the rest to vector; a pool shorter than its share donates the
// remainder. One empty pool hands everything to the other.
func quota(graphLen, vectorLen, target int, ratio float64) (graphTake, vectorTake int) {
	if target <= 0 {
		return 0, 0
	}
	switch {
	case graphLen == 0 && vectorLen == 0:
		return 0, 0
	case graphLen == 0:
		return 0, minInt(target, vectorLen)
	case vectorLen == 0:
		return minInt(target, graphLen), 0
	}

	graphTake = int(math.Round(float64(target) * ratio))
	if graphTake > target {
		graphTake = target
	}
	if graphTake < 0 {
		graphTake = 0
	}
	vectorTake = target - graphTake

	if graphTake > graphLen {
		vectorTake += graphTake - graphLen
		graphTake = graphLen
	}
	if vectorTake > vectorLen {
		graphTake += vectorTake - vectorLen
		vectorTake = vectorLen
		if graphTake > graphLen {
			graphTake = graphLen
		}
	}
	return graphTake, vectorTake
}

// orderGraphPool sorts the graph allocation in place. Remote ordering is
// score-only; lexical ordering walks hop count (when near-neighbor-first),
// score, then dual-origin, keeping input order for full ties.
func orderGraphPool(pool []models.Candidate, remoteOrder, nearNeighborFirst bool) {
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if remoteOrder {
			return a.RankScore > b.RankScore
		}
		if nearNeighborFirst && a.Hops != b.Hops {
			return a.Hops < b.Hops
		}
		if a.RankScore != b.RankScore {
			return a.RankScore > b.RankScore
		}
		if a.DualOrigin() != b.DualOrigin() {
			return a.DualOrigin()
		}
		return false
	})
}

// orderVectorPool sorts the vector allocation in place: distance is the
// primary lexical key, score breaks ties.
func orderVectorPool(pool []models.Candidate, remoteOrder bool) {
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if remoteOrder {
			return a.RankScore > b.RankScore
		}
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.RankScore > b.RankScore
	})
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
