package models

import (
	"errors"
	"testing"
)

func TestAnswerRequestValidate(t *testing.T) {
	t.Run("no variant selected", func(t *testing.T) {
		req := &AnswerRequest{Question: "who is sarah"}
		if err := req.Validate(); !errors.Is(err, ErrEmptyRetrievalRequest) {
			t.Fatalf("expected ErrEmptyRetrievalRequest, got %v", err)
		}
	})

	t.Run("empty question", func(t *testing.T) {
		req := &AnswerRequest{RawAnswer: true}
		if err := req.Validate(); !errors.Is(err, ErrEmptyQuestion) {
			t.Fatalf("expected ErrEmptyQuestion, got %v", err)
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		req := &AnswerRequest{Question: "q", GraphVector: true, GraphRatio: 0.5}
		if err := req.Validate(); err != nil {
			t.Fatalf("Validate error: %v", err)
		}
		if req.TopK != DefaultTopK {
			t.Errorf("TopK = %d, want %d", req.TopK, DefaultTopK)
		}
		if req.RerankMethod != RerankLexical {
			t.Errorf("RerankMethod = %q, want lexical", req.RerankMethod)
		}
	})

	t.Run("ratio out of range", func(t *testing.T) {
		req := &AnswerRequest{Question: "q", GraphVector: true, GraphRatio: 1.2}
		if err := req.Validate(); !errors.Is(err, ErrInvalidGraphRatio) {
			t.Fatalf("expected ErrInvalidGraphRatio, got %v", err)
		}
	})

	t.Run("unknown rerank method", func(t *testing.T) {
		req := &AnswerRequest{Question: "q", VectorOnly: true, RerankMethod: "bm25"}
		if err := req.Validate(); !errors.Is(err, ErrUnknownRerankMethod) {
			t.Fatalf("expected ErrUnknownRerankMethod, got %v", err)
		}
	})
}

func TestCandidateOrigin(t *testing.T) {
	c := Candidate{Content: "x", FromGraph: true, FromVector: true}
	if !c.DualOrigin() {
		t.Error("expected dual origin")
	}
	if c.Origin() != "graph+vector" {
		t.Errorf("Origin = %q", c.Origin())
	}
	if (Candidate{FromGraph: true}).Origin() != "graph" {
		t.Error("graph origin label")
	}
	if (Candidate{Pinned: true}).Origin() != "pinned" {
		t.Error("pinned origin label")
	}
}

func TestRequestChannelFlags(t *testing.T) {
	req := &AnswerRequest{GraphVector: true}
	if !req.VectorSearch() || !req.GraphSearch() {
		t.Error("graph_vector activates both channels")
	}
	req = &AnswerRequest{VectorOnly: true}
	if !req.VectorSearch() || req.GraphSearch() {
		t.Error("vector_only activates only the vector channel")
	}
	req = &AnswerRequest{RawAnswer: true}
	if req.VectorSearch() || req.GraphSearch() {
		t.Error("raw answer activates no retrieval channel")
	}
}
