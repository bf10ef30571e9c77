package models

import "time"

// RerankMethod selects how merged candidates are ordered.
type RerankMethod string

const (
	// RerankLexical orders candidates by local n-gram overlap with the query.
	RerankLexical RerankMethod = "lexical"
	// RerankRemote orders candidates with an external reranking service,
	// falling back to lexical when the service is unavailable.
	RerankRemote RerankMethod = "remote"
)

// AnswerRequest configures one retrieval run. All knobs travel with the
// request; the service holds no mutable per-request state.
type AnswerRequest struct {
	Question string `json:"question"`

	// Answer variants to generate. At least one must be set.
	RawAnswer   bool `json:"raw_answer"`
	VectorOnly  bool `json:"vector_only"`
	GraphOnly   bool `json:"graph_only"`
	GraphVector bool `json:"graph_vector"`

	// GraphRatio is the share of merged slots allocated to graph-origin
	// candidates when both channels return results, in [0,1].
	GraphRatio float64 `json:"graph_ratio"`
	// TopK is the target size of the merged candidate sequence.
	TopK              int          `json:"top_k"`
	RerankMethod      RerankMethod `json:"rerank_method"`
	NearNeighborFirst bool         `json:"near_neighbor_first"`
	// CustomPriorityInfo is free text injected as a pinned candidate ahead of
	// everything retrieved.
	CustomPriorityInfo string `json:"custom_priority_info,omitempty"`
	// AnswerPrompt overrides the default synthesis prompt template. It must
	// contain the placeholders described in rag.DefaultAnswerPrompt.
	AnswerPrompt string `json:"answer_prompt,omitempty"`
}

// VectorSearch reports whether the vector channel must run.
func (r *AnswerRequest) VectorSearch() bool {
	return r.VectorOnly || r.GraphVector
}

// GraphSearch reports whether the graph channel must run.
func (r *AnswerRequest) GraphSearch() bool {
	return r.GraphOnly || r.GraphVector
}

// Validate normalizes the request and rejects impossible ones.
// A request selecting no answer variant at all is reported as
// ErrEmptyRetrievalRequest; the caller surfaces it to the user.
func (r *AnswerRequest) Validate() error {
	if !r.RawAnswer && !r.VectorOnly && !r.GraphOnly && !r.GraphVector {
		return ErrEmptyRetrievalRequest
	}
	if r.Question == "" {
		return ErrEmptyQuestion
	}
	if r.GraphRatio < 0 || r.GraphRatio > 1 {
		return ErrInvalidGraphRatio
	}
	if r.TopK <= 0 {
		r.TopK = DefaultTopK
	}
	if r.RerankMethod == "" {
		r.RerankMethod = RerankLexical
	}
	if r.RerankMethod != RerankLexical && r.RerankMethod != RerankRemote {
		return ErrUnknownRerankMethod
	}
	return nil
}

// DefaultTopK is the merged result size used when a request leaves TopK unset.
const DefaultTopK = 10

// AnswerResponse carries up to four generated answers plus the degradation
// flag. Variants that were not requested are empty strings.
type AnswerResponse struct {
	Question          string `json:"question"`
	RawAnswer         string `json:"raw_answer,omitempty"`
	VectorOnlyAnswer  string `json:"vector_only_answer,omitempty"`
	GraphOnlyAnswer   string `json:"graph_only_answer,omitempty"`
	GraphVectorAnswer string `json:"graph_vector_answer,omitempty"`
	// Degraded is true when the remote reranker failed and the local lexical
	// ranking was used instead. The answers are still valid.
	Degraded bool `json:"degraded"`
	// Candidates is the merged evidence sequence the graph-vector answer was
	// generated from, for explainability.
	Candidates []Candidate   `json:"candidates,omitempty"`
	Took       time.Duration `json:"took_ns"`
}
