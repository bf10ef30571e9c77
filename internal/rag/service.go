package rag

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/llm"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/pipeline"
	"github.com/hyperjump/tsunagu/internal/rerank"
	"github.com/hyperjump/tsunagu/pkg/utils"
)

// ServiceOptions are the retrieval tuning knobs that do not travel with
// individual requests.
type ServiceOptions struct {
	// MaxKeywords caps how many entities keyword extraction asks for.
	MaxKeywords int
	// TopKPerKeyword caps resolved vertex ids per keyword.
	TopKPerKeyword int
	// GraphDepth is the maximum neighbor-path length in edges.
	GraphDepth int
	// MaxGraphItems caps the graph channel's candidate count.
	MaxGraphItems int
}

// DefaultServiceOptions returns the defaults used when opts is nil.
func DefaultServiceOptions() *ServiceOptions {
	return &ServiceOptions{
		MaxKeywords:    5,
		TopKPerKeyword: 1,
		GraphDepth:     2,
		MaxGraphItems:  30,
	}
}

// Service answers questions by assembling and running a retrieval chain per
// request. It is safe for concurrent use; all per-request state lives in
// the chain context.
type Service struct {
	embedder   embedding.Embedder
	generator  llm.Generator
	graph      GraphReader
	matcher    KeywordMatcher
	chunkIndex VectorSearcher
	vidIndex   VectorSearcher
	remote     rerank.Scorer
	log        *zap.Logger
	opts       ServiceOptions
}

// NewService wires the retrieval service. matcher, vidIndex, and remote may
// be nil; the corresponding tiers and the remote rerank method then degrade
// gracefully.
func NewService(
	embedder embedding.Embedder,
	generator llm.Generator,
	graph GraphReader,
	matcher KeywordMatcher,
	chunkIndex VectorSearcher,
	vidIndex VectorSearcher,
	remote rerank.Scorer,
	log *zap.Logger,
	opts *ServiceOptions,
) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opts == nil {
		opts = DefaultServiceOptions()
	}
	return &Service{
		embedder:   embedder,
		generator:  generator,
		graph:      graph,
		matcher:    matcher,
		chunkIndex: chunkIndex,
		vidIndex:   vidIndex,
		remote:     remote,
		log:        log,
		opts:       *opts,
	}
}

// Answer validates the request, runs the retrieval chain it calls for, and
// maps the chain context to a response. A request selecting nothing returns
// models.ErrEmptyRetrievalRequest before any collaborator is touched.
func (s *Service) Answer(ctx context.Context, req models.AnswerRequest) (*models.AnswerResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	state := NewContext(req)
	chain := s.buildChain(req)
	if err := chain.Validate(KeyQuery); err != nil {
		return nil, fmt.Errorf("assemble retrieval chain: %w", err)
	}

	if _, err := chain.Run(ctx, state); err != nil {
		return nil, err
	}

	if state.Merged.Degraded {
		s.log.Warn("remote rerank degraded to lexical ranking",
			zap.String("question", utils.Truncate(req.Question, 80)))
	}
	s.log.Debug("answer complete",
		zap.String("question", utils.Truncate(req.Question, 80)),
		zap.Int("merged_candidates", len(state.Merged.Candidates)),
		zap.Duration("took", time.Since(start)))

	return &models.AnswerResponse{
		Question:          req.Question,
		RawAnswer:         state.RawAnswer,
		VectorOnlyAnswer:  state.VectorOnlyAnswer,
		GraphOnlyAnswer:   state.GraphOnlyAnswer,
		GraphVectorAnswer: state.GraphVectorAnswer,
		Degraded:          state.Merged.Degraded,
		Candidates:        state.Merged.Candidates,
		Took:              time.Since(start),
	}, nil
}

// buildChain registers only the operators the request's flags call for. The
// merge operator joins whenever at least one retrieval channel runs, so the
// response always carries the fused candidate sequence.
func (s *Service) buildChain(req models.AnswerRequest) *pipeline.Chain[*Context] {
	chain := pipeline.NewChain[*Context](s.log)
	if req.GraphSearch() {
		chain.Use(
			NewKeywordExtract(s.generator, s.opts.MaxKeywords),
			NewVidResolve(s.graph, s.matcher, s.vidIndex, s.embedder, s.opts.TopKPerKeyword),
			NewGraphQuery(s.graph, s.opts.GraphDepth, s.opts.MaxGraphItems),
		)
	}
	if req.VectorSearch() {
		chain.Use(NewVectorQuery(s.embedder, s.chunkIndex))
	}
	if req.GraphSearch() || req.VectorSearch() {
		chain.Use(NewMergeDedupRerank(s.remote, s.log))
	}
	chain.Use(NewAnswerSynthesize(s.generator))
	return chain
}
