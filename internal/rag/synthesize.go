package rag

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/tsunagu/internal/llm"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/pipeline"
)

// AnswerSynthesize generates the requested answer variants. The variants
// are independent, so their generation calls run concurrently; the first
// failure aborts the operator.
type AnswerSynthesize struct {
	generator llm.Generator
}

// NewAnswerSynthesize creates the synthesis operator.
func NewAnswerSynthesize(generator llm.Generator) *AnswerSynthesize {
	return &AnswerSynthesize{generator: generator}
}

func (o *AnswerSynthesize) Name() string { return "answer_synthesize" }

func (o *AnswerSynthesize) Requires() []pipeline.Key { return []pipeline.Key{KeyQuery} }

func (o *AnswerSynthesize) Provides() []pipeline.Key { return []pipeline.Key{KeyAnswers} }

func (o *AnswerSynthesize) SkipWhenMissing() bool { return false }

func (o *AnswerSynthesize) Run(ctx context.Context, c *Context) error {
	req := c.Request

	type variant struct {
		name     string
		contexts []string
		out      *string
	}
	var variants []variant
	if req.RawAnswer {
		variants = append(variants, variant{"raw", nil, &c.RawAnswer})
	}
	if req.VectorOnly && c.Keys().Has(KeyVector) {
		variants = append(variants, variant{"vector_only", candidateTexts(c.VectorCandidates), &c.VectorOnlyAnswer})
	}
	if req.GraphOnly && c.Keys().Has(KeyGraph) {
		variants = append(variants, variant{"graph_only", candidateTexts(c.GraphCandidates), &c.GraphOnlyAnswer})
	}
	if req.GraphVector && c.Keys().Has(KeyMerged) {
		variants = append(variants, variant{"graph_vector", c.Merged.Texts(), &c.GraphVectorAnswer})
	}
	if len(variants) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errChan := make(chan error, len(variants))
	for _, v := range variants {
		wg.Add(1)
		go func(v variant) {
			defer wg.Done()
			prompt := answerPrompt(req.AnswerPrompt, req.Question, v.contexts)
			answer, err := o.generator.Generate(ctx, prompt)
			if err != nil {
				errChan <- fmt.Errorf("%w: %s answer: %v", ErrUpstream, v.name, err)
				return
			}
			*v.out = answer
		}(v)
	}
	wg.Wait()
	close(errChan)
	for err := range errChan {
		return err
	}
	return nil
}

func candidateTexts(cands []models.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Content
	}
	return out
}
