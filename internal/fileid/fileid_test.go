package fileid

import (
	"strings"
	"testing"
)

func TestFileDocID(t *testing.T) {
	// Deterministic: same path gives same ID
	id1 := FileDocID("/docs/tokyo.txt")
	id2 := FileDocID("/docs/tokyo.txt")
	if id1 != id2 {
		t.Errorf("same path should give same ID: %q vs %q", id1, id2)
	}
	if id1 == "" {
		t.Error("ID should not be empty")
	}
	if !strings.HasPrefix(id1, filePrefix) {
		t.Errorf("ID should have prefix %q: got %q", filePrefix, id1)
	}
}

func TestFileDocID_differentPaths(t *testing.T) {
	id1 := FileDocID("/docs/tokyo.txt")
	id2 := FileDocID("/docs/kyoto.txt")
	if id1 == id2 {
		t.Errorf("different paths should give different IDs: %q", id1)
	}
}

func TestFileDocID_normalized(t *testing.T) {
	// Clean path: /docs/a and /docs/a/ and /docs/./a should match
	id1 := FileDocID("/docs/a")
	id2 := FileDocID("/docs/a/")
	id3 := FileDocID("/docs/./a")
	if id1 != id2 {
		t.Errorf("paths differing only by trailing slash should match: %q vs %q", id1, id2)
	}
	if id1 != id3 {
		t.Errorf("paths with . should normalize: %q vs %q", id1, id3)
	}
}

func TestTextDocID(t *testing.T) {
	id1 := TextDocID("notes", "some inline text")
	id2 := TextDocID("notes", "some inline text")
	if id1 != id2 {
		t.Errorf("same title+text should give same ID: %q vs %q", id1, id2)
	}
	if !strings.HasPrefix(id1, textPrefix) {
		t.Errorf("ID should have prefix %q: got %q", textPrefix, id1)
	}
	// Title participates: same text under another title is a distinct document.
	if other := TextDocID("minutes", "some inline text"); other == id1 {
		t.Errorf("different titles should give different IDs: %q", other)
	}
	if other := TextDocID("notes", "different text"); other == id1 {
		t.Errorf("different text should give different IDs: %q", other)
	}
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash("abc")
	h2 := ContentHash("abc")
	if h1 != h2 {
		t.Errorf("same text should hash the same: %q vs %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("want 64 hex chars, got %d: %q", len(h1), h1)
	}
	if ContentHash("abd") == h1 {
		t.Error("different text should hash differently")
	}
}
