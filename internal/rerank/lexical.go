package rerank

import (
	"context"
	"math"
	"strings"
	"unicode"
)

const lexicalMaxN = 4

// Lexical scores candidates by smoothed n-gram precision against the query
// (BLEU with the query as reference). Identical text scores 1, disjoint
// text scores 0, and the same inputs always produce the same scores.
type Lexical struct{}

// NewLexical returns the local n-gram scorer.
func NewLexical() *Lexical {
	return &Lexical{}
}

// Scores returns one score in [0,1] per text. It never fails; the error is
// always nil and exists to satisfy Scorer.
func (l *Lexical) Scores(_ context.Context, query string, texts []string) ([]float64, error) {
	ref := lexTokens(query)
	scores := make([]float64, len(texts))
	for i, text := range texts {
		scores[i] = ngramScore(ref, lexTokens(text))
	}
	return scores, nil
}

// ngramScore computes brevity-penalized geometric-mean n-gram precision of
// hyp against ref. Orders above len(hyp) are skipped; orders above 1 use
// add-one smoothing so a single missing bigram does not zero the score.
func ngramScore(ref, hyp []string) float64 {
	if len(ref) == 0 || len(hyp) == 0 {
		return 0
	}

	maxN := lexicalMaxN
	if len(hyp) < maxN {
		maxN = len(hyp)
	}

	logSum := 0.0
	for n := 1; n <= maxN; n++ {
		matches, total := clippedMatches(ref, hyp, n)
		var p float64
		if n == 1 {
			if matches == 0 {
				return 0
			}
			p = float64(matches) / float64(total)
		} else {
			p = float64(matches+1) / float64(total+1)
		}
		logSum += math.Log(p)
	}
	score := math.Exp(logSum / float64(maxN))

	// Brevity penalty: candidates much shorter than the query are demoted.
	if len(hyp) < len(ref) {
		score *= math.Exp(1 - float64(len(ref))/float64(len(hyp)))
	}
	return score
}

// clippedMatches counts hyp n-grams also present in ref, clipped by the ref
// occurrence count, plus the total number of hyp n-grams.
func clippedMatches(ref, hyp []string, n int) (matches, total int) {
	refCounts := make(map[string]int)
	for i := 0; i+n <= len(ref); i++ {
		refCounts[strings.Join(ref[i:i+n], "\x00")]++
	}
	for i := 0; i+n <= len(hyp); i++ {
		total++
		key := strings.Join(hyp[i:i+n], "\x00")
		if refCounts[key] > 0 {
			refCounts[key]--
			matches++
		}
	}
	return matches, total
}

// lexTokens lower-cases and splits on any non-letter, non-digit rune.
func lexTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
