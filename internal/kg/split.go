package kg

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/hyperjump/tsunagu/internal/models"
)

var paragraphGap = regexp.MustCompile(`\n[ \t]*\n`)

// Splitter splits document text into chunks, the granularity of both
// embedding and triple extraction. Paragraph boundaries are respected;
// a paragraph longer than maxWords falls back to overlapping word windows.
type Splitter struct {
	maxWords int
	overlap  int
}

// NewSplitter creates a splitter with the given window size and overlap,
// both in words. Zero values fall back to 512/50.
func NewSplitter(maxWords, overlap int) *Splitter {
	if maxWords <= 0 {
		maxWords = 512
	}
	if overlap <= 0 {
		overlap = 50
	}
	if overlap >= maxWords {
		overlap = maxWords / 4
	}
	return &Splitter{maxWords: maxWords, overlap: overlap}
}

// Split returns the chunks of text in reading order. Whitespace runs inside
// a chunk are collapsed to single spaces. Blank text yields no chunks.
func (s *Splitter) Split(docID, text string) []models.Chunk {
	var chunks []models.Chunk
	for _, para := range paragraphGap.Split(text, -1) {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		if len(words) <= s.maxWords {
			chunks = append(chunks, s.chunk(docID, len(chunks), strings.Join(words, " ")))
			continue
		}
		step := s.maxWords - s.overlap
		if step <= 0 {
			step = 1
		}
		for i := 0; i < len(words); i += step {
			end := i + s.maxWords
			if end > len(words) {
				end = len(words)
			}
			chunks = append(chunks, s.chunk(docID, len(chunks), strings.Join(words[i:end], " ")))
			if end >= len(words) {
				break
			}
		}
	}
	return chunks
}

func (s *Splitter) chunk(docID string, position int, content string) models.Chunk {
	return models.Chunk{
		ID:         fmt.Sprintf("%s_%s", docID, uuid.New().String()[:8]),
		DocumentID: docID,
		Position:   position,
		Content:    content,
	}
}
