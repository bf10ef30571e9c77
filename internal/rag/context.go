package rag

import (
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/pipeline"
)

// Keys for the fields operators declare against. A key is marked once the
// producing operator has run; an unmarked key means that part of the
// retrieval was never requested.
const (
	KeyQuery    pipeline.Key = "query"
	KeyKeywords pipeline.Key = "keywords"
	KeyVids     pipeline.Key = "vids"
	KeyGraph    pipeline.Key = "graph_candidates"
	KeyVector   pipeline.Key = "vector_candidates"
	KeyMerged   pipeline.Key = "merged"
	KeyAnswers  pipeline.Key = "answers"
)

// Context carries one answer request through the operator chain. Fields are
// written by the operator that provides the matching key and read by
// operators that require it.
type Context struct {
	keys pipeline.KeySet

	Request models.AnswerRequest

	Keywords         []string
	Vids             []string
	GraphCandidates  []models.Candidate
	VectorCandidates []models.Candidate
	Merged           models.Ranking

	RawAnswer         string
	VectorOnlyAnswer  string
	GraphOnlyAnswer   string
	GraphVectorAnswer string
}

// NewContext creates a chain context for the request with the query key
// already present.
func NewContext(req models.AnswerRequest) *Context {
	c := &Context{
		keys:    pipeline.NewKeySet(),
		Request: req,
	}
	c.keys.Mark(KeyQuery)
	return c
}

// Keys reports which context fields have been produced so far.
func (c *Context) Keys() pipeline.KeySet {
	return c.keys
}
