package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/tsunagu/internal/models"
)

func TestWriteAnswer_JSON(t *testing.T) {
	resp := &models.AnswerResponse{
		Question:          "what is the capital of japan",
		RawAnswer:         "Tokyo.",
		GraphVectorAnswer: "Tokyo, according to the graph.",
		Degraded:          true,
		Candidates: []models.Candidate{
			{Content: "1:tokyo capital_of 1:japan", FromGraph: true, RankScore: 0.9},
		},
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, resp, OutputJSON); err != nil {
		t.Fatalf("WriteAnswer(json): %v", err)
	}
	var decoded models.AnswerResponse
	if err := json.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.RawAnswer != resp.RawAnswer || !decoded.Degraded {
		t.Errorf("decoded: got %+v", decoded)
	}
	if len(decoded.Candidates) != 1 || !decoded.Candidates[0].FromGraph {
		t.Errorf("candidates: got %+v", decoded.Candidates)
	}
}

func TestWriteAnswer_text(t *testing.T) {
	resp := &models.AnswerResponse{
		Question:          "q",
		GraphVectorAnswer: "both channels agree",
		Candidates: []models.Candidate{
			{Content: "evidence line", FromGraph: true, FromVector: true},
		},
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, resp, OutputText); err != nil {
		t.Fatalf("WriteAnswer(text): %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Graph-Vector Answer") {
		t.Errorf("missing section header:\n%s", out)
	}
	if !strings.Contains(out, "both channels agree") {
		t.Errorf("missing answer body:\n%s", out)
	}
	if !strings.Contains(out, "[graph+vector] evidence line") {
		t.Errorf("missing evidence line:\n%s", out)
	}
	// Unrequested variants must not produce empty sections.
	if strings.Contains(out, "Basic LLM Answer") {
		t.Errorf("unexpected section for empty variant:\n%s", out)
	}
	if strings.Contains(out, "reranker unavailable") {
		t.Errorf("degraded note without degradation:\n%s", out)
	}
}

func TestWriteAnswer_textDegraded(t *testing.T) {
	resp := &models.AnswerResponse{Question: "q", RawAnswer: "a", Degraded: true}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "reranker unavailable") {
		t.Errorf("expected degraded note:\n%s", buf.String())
	}
}

func TestWriteAnswer_compact(t *testing.T) {
	resp := &models.AnswerResponse{
		Question:         "q",
		RawAnswer:        "raw answer",
		VectorOnlyAnswer: "vector answer",
	}
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, resp, OutputCompact); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "Basic LLM Answer\traw answer" {
		t.Errorf("line 0: got %q", lines[0])
	}
	if lines[1] != "Vector-only Answer\tvector answer" {
		t.Errorf("line 1: got %q", lines[1])
	}
}

func TestWriteBuildResult(t *testing.T) {
	res := &models.BuildResult{
		RunID:    "run-1",
		Mode:     "append",
		Chunks:   3,
		Vertices: 5,
		Edges:    4,
		Indexed:  8,
		Warnings: []string{"2 edges dropped: unknown endpoint"},
	}
	var buf bytes.Buffer
	if err := WriteBuildResult(&buf, res, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "run run-1 (append): 3 chunks, 5 vertices, 4 edges, 8 indexed") {
		t.Errorf("summary line: got %q", out)
	}
	if !strings.Contains(out, "warning: 2 edges dropped") {
		t.Errorf("missing warning: got %q", out)
	}
}

func TestWriteBuildResult_skipped(t *testing.T) {
	res := &models.BuildResult{RunID: "run-2", Mode: "append", Skipped: true}
	var buf bytes.Buffer
	if err := WriteBuildResult(&buf, res, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "source unchanged") {
		t.Errorf("skipped line: got %q", buf.String())
	}
}

func TestParseOutputFormat(t *testing.T) {
	cases := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"compact", OutputCompact, false},
		{"json", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tc := range cases {
		got, err := ParseOutputFormat(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseOutputFormat(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseOutputFormat(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}
