package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/tsunagu/internal/embedding"
	"github.com/hyperjump/tsunagu/internal/graph"
	"github.com/hyperjump/tsunagu/internal/llm"
	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/internal/pipeline"
	"github.com/hyperjump/tsunagu/internal/vector"
)

func TestServiceAnswer_RejectsEmptySelection(t *testing.T) {
	gen := &llm.MockGenerator{}
	g := &fakeGraphReader{}
	chunks := &fakeSearcher{}
	svc := NewService(embedding.NewMockEmbedder(8), gen, g, nil, chunks, nil, nil, nil, nil)

	_, err := svc.Answer(context.Background(), models.AnswerRequest{Question: "anything"})
	if !errors.Is(err, models.ErrEmptyRetrievalRequest) {
		t.Fatalf("want ErrEmptyRetrievalRequest, got %v", err)
	}
	// The empty request must be rejected before any collaborator is touched.
	if gen.CallCount() != 0 {
		t.Errorf("generator called %d times", gen.CallCount())
	}
	if g.existingCalls != 0 || g.pathCalls != 0 {
		t.Errorf("graph touched: %d existing, %d path calls", g.existingCalls, g.pathCalls)
	}
	if chunks.calls != 0 {
		t.Errorf("chunk index touched: %d calls", chunks.calls)
	}
}

func TestServiceAnswer_RejectsEmptyQuestion(t *testing.T) {
	svc := NewService(embedding.NewMockEmbedder(8), &llm.MockGenerator{}, &fakeGraphReader{}, nil, &fakeSearcher{}, nil, nil, nil, nil)
	_, err := svc.Answer(context.Background(), models.AnswerRequest{RawAnswer: true})
	if !errors.Is(err, models.ErrEmptyQuestion) {
		t.Fatalf("want ErrEmptyQuestion, got %v", err)
	}
}

func TestServiceAnswer_GraphVectorFlow(t *testing.T) {
	gen := &llm.MockGenerator{RespondFunc: func(prompt string) (string, error) {
		if strings.HasPrefix(prompt, "Extract") {
			return "KEYWORDS: tokyo", nil
		}
		return "generated answer", nil
	}}
	g := &fakeGraphReader{
		existing: map[string]bool{"tokyo": true},
		paths:    []graph.Path{{Text: "tokyo -[capital_of]-> japan", Hops: 1}},
	}
	chunks := &fakeSearcher{hits: []vector.Hit{
		{Distance: 0.2, Props: vector.Properties{models.PropContent: "Tokyo is the capital of Japan."}},
	}}
	svc := NewService(embedding.NewMockEmbedder(8), gen, g, nil, chunks, nil, nil, nil, nil)

	resp, err := svc.Answer(context.Background(), models.AnswerRequest{
		Question:    "What is the capital of Japan?",
		GraphVector: true,
		TopK:        5,
		GraphRatio:  0.5,
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}

	if resp.GraphVectorAnswer != "generated answer" {
		t.Errorf("GraphVectorAnswer = %q", resp.GraphVectorAnswer)
	}
	if resp.RawAnswer != "" || resp.VectorOnlyAnswer != "" || resp.GraphOnlyAnswer != "" {
		t.Error("unrequested variants must stay empty")
	}
	if resp.Degraded {
		t.Error("lexical ranking must not be degraded")
	}
	if resp.Question != "What is the capital of Japan?" {
		t.Errorf("Question = %q", resp.Question)
	}
	// One keyword extraction plus one synthesis call.
	if gen.CallCount() != 2 {
		t.Errorf("generator calls = %d, want 2", gen.CallCount())
	}
	if len(resp.Candidates) != 2 {
		t.Fatalf("candidates = %d, want the graph path and the chunk", len(resp.Candidates))
	}
	contents := []string{resp.Candidates[0].Content, resp.Candidates[1].Content}
	joined := strings.Join(contents, "|")
	if !strings.Contains(joined, "tokyo -[capital_of]-> japan") || !strings.Contains(joined, "Tokyo is the capital of Japan.") {
		t.Errorf("candidates = %v", contents)
	}
}

func TestServiceAnswer_RawOnlySkipsRetrieval(t *testing.T) {
	gen := &llm.MockGenerator{}
	g := &fakeGraphReader{}
	chunks := &fakeSearcher{}
	svc := NewService(embedding.NewMockEmbedder(8), gen, g, nil, chunks, nil, nil, nil, nil)

	resp, err := svc.Answer(context.Background(), models.AnswerRequest{
		Question:  "just ask the model",
		RawAnswer: true,
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if resp.RawAnswer != "mock answer" {
		t.Errorf("RawAnswer = %q", resp.RawAnswer)
	}
	prompts := gen.Prompts()
	if len(prompts) != 1 || prompts[0] != "just ask the model" {
		t.Errorf("raw variant must receive the bare question, got %v", prompts)
	}
	if g.existingCalls != 0 || g.pathCalls != 0 || chunks.calls != 0 {
		t.Error("raw-only request must not touch retrieval collaborators")
	}
	if len(resp.Candidates) != 0 {
		t.Errorf("candidates = %v, want none", resp.Candidates)
	}
}

func TestServiceAnswer_VectorOnlyFlow(t *testing.T) {
	gen := &llm.MockGenerator{}
	g := &fakeGraphReader{}
	chunks := &fakeSearcher{hits: []vector.Hit{
		{Distance: 0.1, Props: vector.Properties{models.PropContent: "relevant chunk"}},
	}}
	svc := NewService(embedding.NewMockEmbedder(8), gen, g, nil, chunks, nil, nil, nil, nil)

	resp, err := svc.Answer(context.Background(), models.AnswerRequest{
		Question:   "alpha",
		VectorOnly: true,
		TopK:       3,
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if resp.VectorOnlyAnswer != "mock answer" {
		t.Errorf("VectorOnlyAnswer = %q", resp.VectorOnlyAnswer)
	}
	// No graph channel: no keyword extraction, no vertex traffic.
	if gen.CallCount() != 1 {
		t.Errorf("generator calls = %d, want 1", gen.CallCount())
	}
	if g.existingCalls != 0 || g.pathCalls != 0 {
		t.Error("vector-only request must not touch the graph")
	}
	if chunks.calls != 1 {
		t.Errorf("chunk index calls = %d, want 1", chunks.calls)
	}
}

func TestServiceAnswer_DegradedSurfaces(t *testing.T) {
	chunks := &fakeSearcher{hits: []vector.Hit{
		{Distance: 0.1, Props: vector.Properties{models.PropContent: "relevant chunk"}},
	}}
	remote := &scriptedScorer{err: errors.New("rerank service down")}
	svc := NewService(embedding.NewMockEmbedder(8), &llm.MockGenerator{}, &fakeGraphReader{}, nil, chunks, nil, remote, nil, nil)

	resp, err := svc.Answer(context.Background(), models.AnswerRequest{
		Question:     "q",
		VectorOnly:   true,
		TopK:         2,
		RerankMethod: models.RerankRemote,
	})
	if err != nil {
		t.Fatalf("a failing reranker must not fail the answer: %v", err)
	}
	if !resp.Degraded {
		t.Error("degraded flag must surface in the response")
	}
	if resp.VectorOnlyAnswer == "" {
		t.Error("answer must still be generated on the lexical fallback")
	}
}

func TestServiceAnswer_UpstreamFailureIsTagged(t *testing.T) {
	gen := &llm.MockGenerator{RespondFunc: func(prompt string) (string, error) {
		if strings.HasPrefix(prompt, "Extract") {
			return "", errors.New("model overloaded")
		}
		return "generated answer", nil
	}}
	svc := NewService(embedding.NewMockEmbedder(8), gen, &fakeGraphReader{}, nil, &fakeSearcher{}, nil, nil, nil, nil)

	_, err := svc.Answer(context.Background(), models.AnswerRequest{
		Question:  "q",
		GraphOnly: true,
	})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("want ErrUpstream, got %v", err)
	}
	var opErr *pipeline.OpError
	if !errors.As(err, &opErr) {
		t.Fatalf("want *pipeline.OpError, got %T", err)
	}
	if opErr.Op != "keyword_extract" {
		t.Errorf("failing operator = %q, want keyword_extract", opErr.Op)
	}
	if len(opErr.Completed) != 0 {
		t.Errorf("completed operators = %v, want none", opErr.Completed)
	}
}

func TestServiceAnswer_GraphOnlyWithNoMatches(t *testing.T) {
	// Keywords resolve to nothing: the graph channel legitimately returns no
	// candidates, and the graph-only answer falls back to the bare question.
	gen := &llm.MockGenerator{RespondFunc: func(prompt string) (string, error) {
		if strings.HasPrefix(prompt, "Extract") {
			return "KEYWORDS: nonexistent", nil
		}
		return "best effort answer", nil
	}}
	g := &fakeGraphReader{existing: map[string]bool{}}
	svc := NewService(embedding.NewMockEmbedder(8), gen, g, nil, &fakeSearcher{}, nil, nil, nil, nil)

	resp, err := svc.Answer(context.Background(), models.AnswerRequest{
		Question:  "who?",
		GraphOnly: true,
	})
	if err != nil {
		t.Fatalf("Answer failed: %v", err)
	}
	if resp.GraphOnlyAnswer != "best effort answer" {
		t.Errorf("GraphOnlyAnswer = %q", resp.GraphOnlyAnswer)
	}
	if g.pathCalls != 0 {
		t.Errorf("traversal must not run without resolved vids, got %d calls", g.pathCalls)
	}
	if len(resp.Candidates) != 0 {
		t.Errorf("candidates = %v, want none", resp.Candidates)
	}
}
