// Package models defines the data structures shared across the retrieval pipeline.
package models

// Candidate is one unit of retrieved evidence: a graph path rendered as text,
// or an embedded text chunk. Candidates from both channels flow through
// merge/dedup/rerank and come out as one ordered sequence.
type Candidate struct {
	Content string `json:"content"`
	// Origin flags. Both true means the candidate was found by both channels
	// (dual-origin), which matters for quota accounting and tie-breaking.
	FromGraph  bool `json:"from_graph"`
	FromVector bool `json:"from_vector"`
	// Distance is the squared-L2 distance of a vector-origin candidate to the
	// query embedding. Smaller is closer. Only meaningful when FromVector.
	Distance float64 `json:"distance,omitempty"`
	// Hops is the path depth of a graph-origin candidate (1 = direct
	// neighbor). Only meaningful when FromGraph.
	Hops int `json:"hops,omitempty"`
	// RankScore is assigned by the rerank step and drives final ordering
	// within each channel's allocation.
	RankScore float64 `json:"rank_score"`
	// Pinned marks injected custom related information. Pinned candidates
	// bypass dedup and quota and always rank first.
	Pinned bool `json:"pinned,omitempty"`
}

// DualOrigin reports whether the candidate was retrieved by both channels.
func (c Candidate) DualOrigin() bool {
	return c.FromGraph && c.FromVector
}

// Origin returns a short label for logs and API responses.
func (c Candidate) Origin() string {
	switch {
	case c.Pinned:
		return "pinned"
	case c.FromGraph && c.FromVector:
		return "graph+vector"
	case c.FromGraph:
		return "graph"
	case c.FromVector:
		return "vector"
	default:
		return "unknown"
	}
}

// Ranking is the outcome of merge/dedup/rerank. Degraded is part of the type
// so callers cannot consume the candidates without seeing that the remote
// reranker was replaced by the local lexical ranking for this call.
type Ranking struct {
	Candidates []Candidate `json:"candidates"`
	Degraded   bool        `json:"degraded"`
}

// Texts returns the candidate contents in rank order.
func (r Ranking) Texts() []string {
	out := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.Content
	}
	return out
}
