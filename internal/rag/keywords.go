package rag

import (
	"context"
	"fmt"

	"github.com/hyperjump/tsunagu/internal/llm"
	"github.com/hyperjump/tsunagu/internal/pipeline"
)

// KeywordExtract asks the LLM for the entity keywords of the question. It
// opens the graph channel; a generation failure fails the run.
type KeywordExtract struct {
	generator   llm.Generator
	maxKeywords int
}

// NewKeywordExtract creates the extraction operator.
func NewKeywordExtract(generator llm.Generator, maxKeywords int) *KeywordExtract {
	if maxKeywords <= 0 {
		maxKeywords = 5
	}
	return &KeywordExtract{generator: generator, maxKeywords: maxKeywords}
}

func (o *KeywordExtract) Name() string { return "keyword_extract" }

func (o *KeywordExtract) Requires() []pipeline.Key { return []pipeline.Key{KeyQuery} }

func (o *KeywordExtract) Provides() []pipeline.Key { return []pipeline.Key{KeyKeywords} }

func (o *KeywordExtract) SkipWhenMissing() bool { return false }

// Run extracts keywords from the question. An empty keyword list is a valid
// outcome; downstream operators then find no vertices.
func (o *KeywordExtract) Run(ctx context.Context, c *Context) error {
	out, err := o.generator.Generate(ctx, keywordPrompt(c.Request.Question, o.maxKeywords))
	if err != nil {
		return fmt.Errorf("%w: keyword extraction: %v", ErrUpstream, err)
	}
	c.Keywords = parseKeywords(out, o.maxKeywords)
	return nil
}
