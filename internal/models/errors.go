package models

import "errors"

// Request validation errors. These are user-facing conditions, not crashes:
// the HTTP layer maps them to 400 and the CLI prints them as hints.
var (
	// ErrEmptyRetrievalRequest means no answer variant was selected, so there
	// is nothing to retrieve and nothing to generate.
	ErrEmptyRetrievalRequest = errors.New("no answer variant selected: enable at least one of raw_answer, vector_only, graph_only, graph_vector")
	ErrEmptyQuestion         = errors.New("question must not be empty")
	ErrInvalidGraphRatio     = errors.New("graph_ratio must be in [0,1]")
	ErrUnknownRerankMethod   = errors.New(`rerank_method must be "lexical" or "remote"`)
)
