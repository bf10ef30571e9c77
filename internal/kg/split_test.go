package kg

import (
	"fmt"
	"strings"
	"testing"
)

func TestSplitter_ParagraphBoundaries(t *testing.T) {
	s := NewSplitter(100, 10)
	text := "Tokyo is the capital of Japan.\n\nKyoto was the capital before Tokyo."

	chunks := s.Split("doc1", text)
	if len(chunks) != 2 {
		t.Fatalf("want 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Content != "Tokyo is the capital of Japan." {
		t.Errorf("chunk 0 content = %q", chunks[0].Content)
	}
	if chunks[1].Content != "Kyoto was the capital before Tokyo." {
		t.Errorf("chunk 1 content = %q", chunks[1].Content)
	}
	for i, c := range chunks {
		if c.Position != i {
			t.Errorf("chunk %d position = %d", i, c.Position)
		}
		if c.DocumentID != "doc1" {
			t.Errorf("chunk %d document id = %q", i, c.DocumentID)
		}
		if !strings.HasPrefix(c.ID, "doc1_") {
			t.Errorf("chunk %d id = %q, want doc1_ prefix", i, c.ID)
		}
	}
	if chunks[0].ID == chunks[1].ID {
		t.Error("chunk ids should be unique")
	}
}

func TestSplitter_CollapsesWhitespace(t *testing.T) {
	s := NewSplitter(100, 10)
	chunks := s.Split("doc1", "a\tb\nc   d")
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "a b c d" {
		t.Errorf("content = %q, want %q", chunks[0].Content, "a b c d")
	}
}

func TestSplitter_LongParagraphWindows(t *testing.T) {
	s := NewSplitter(5, 2)
	words := make([]string, 12)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i+1)
	}

	chunks := s.Split("doc1", strings.Join(words, " "))
	// step = 3: windows [0:5], [3:8], [6:11], [9:12]
	if len(chunks) != 4 {
		t.Fatalf("want 4 chunks, got %d", len(chunks))
	}
	if chunks[0].Content != "w1 w2 w3 w4 w5" {
		t.Errorf("chunk 0 = %q", chunks[0].Content)
	}
	if chunks[1].Content != "w4 w5 w6 w7 w8" {
		t.Errorf("chunk 1 = %q", chunks[1].Content)
	}
	if chunks[3].Content != "w10 w11 w12" {
		t.Errorf("chunk 3 = %q", chunks[3].Content)
	}
	if chunks[3].Position != 3 {
		t.Errorf("chunk 3 position = %d", chunks[3].Position)
	}
}

func TestSplitter_BlankYieldsNothing(t *testing.T) {
	s := NewSplitter(100, 10)
	if chunks := s.Split("doc1", ""); chunks != nil {
		t.Errorf("empty text should yield no chunks, got %d", len(chunks))
	}
	if chunks := s.Split("doc1", "\n \n\t\n"); chunks != nil {
		t.Errorf("whitespace text should yield no chunks, got %d", len(chunks))
	}
}

func TestSplitter_Defaults(t *testing.T) {
	s := NewSplitter(0, 0)
	if s.maxWords != 512 || s.overlap != 50 {
		t.Errorf("defaults = %d/%d, want 512/50", s.maxWords, s.overlap)
	}
	// Overlap must stay below the window or the walk would not advance.
	s = NewSplitter(10, 20)
	if s.overlap >= s.maxWords {
		t.Errorf("overlap %d not clamped below window %d", s.overlap, s.maxWords)
	}
}
