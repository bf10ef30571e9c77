// Package cli provides CLI output formatting for Tsunagu.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/hyperjump/tsunagu/internal/models"
	"github.com/hyperjump/tsunagu/pkg/utils"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one answer per line for shell pipelines.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch s {
	case "", "text":
		return OutputText, nil
	case "compact":
		return OutputCompact, nil
	case "json":
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// answerSections pairs each variant label with its value, in display order.
// Labels match the batch answer sheet columns.
func answerSections(resp *models.AnswerResponse) [][2]string {
	return [][2]string{
		{"Basic LLM Answer", resp.RawAnswer},
		{"Vector-only Answer", resp.VectorOnlyAnswer},
		{"Graph-only Answer", resp.GraphOnlyAnswer},
		{"Graph-Vector Answer", resp.GraphVectorAnswer},
	}
}

// WriteAnswer writes the generated answer variants to w in the given format.
// Variants that were not requested are omitted.
func WriteAnswer(w io.Writer, resp *models.AnswerResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case OutputCompact:
		for _, sec := range answerSections(resp) {
			if sec[1] == "" {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\n", sec[0], sec[1])
		}
		return nil
	default:
		writeAnswerText(w, resp)
		return nil
	}
}

func writeAnswerText(w io.Writer, resp *models.AnswerResponse) {
	if resp.Degraded {
		fmt.Fprintln(w, "note: remote reranker unavailable, answers ranked with local lexical scoring")
		fmt.Fprintln(w)
	}
	for _, sec := range answerSections(resp) {
		if sec[1] == "" {
			continue
		}
		fmt.Fprintf(w, "--- %s ---\n%s\n\n", sec[0], sec[1])
	}
	if len(resp.Candidates) > 0 {
		fmt.Fprintln(w, "--- Evidence ---")
		for i, c := range resp.Candidates {
			fmt.Fprintf(w, "%2d. [%s] %s\n", i+1, c.Origin(), utils.Truncate(c.Content, 120))
		}
	}
}

// WriteBuildResult writes one build run's summary to w.
func WriteBuildResult(w io.Writer, res *models.BuildResult, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if res.Skipped {
		fmt.Fprintf(w, "run %s (%s): source unchanged, nothing to do\n", res.RunID, res.Mode)
		return nil
	}
	fmt.Fprintf(w, "run %s (%s): %d chunks, %d vertices, %d edges, %d indexed in %s\n",
		res.RunID, res.Mode, res.Chunks, res.Vertices, res.Edges, res.Indexed,
		res.Took.Round(time.Millisecond))
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	return nil
}
