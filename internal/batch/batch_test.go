package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/tsunagu/internal/models"
)

type fakeAnswerer struct {
	calls   int
	failOn  string
	onCall  func(n int)
	degrade bool
}

func (f *fakeAnswerer) Answer(_ context.Context, req models.AnswerRequest) (*models.AnswerResponse, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	if f.failOn != "" && req.Question == f.failOn {
		return nil, errors.New("model down")
	}
	resp := &models.AnswerResponse{Question: req.Question, Degraded: f.degrade}
	if req.RawAnswer {
		resp.RawAnswer = "raw: " + req.Question
	}
	if req.VectorOnly {
		resp.VectorOnlyAnswer = "vector: " + req.Question
	}
	if req.GraphOnly {
		resp.GraphOnlyAnswer = "graph: " + req.Question
	}
	if req.GraphVector {
		resp.GraphVectorAnswer = "graph-vector: " + req.Question
	}
	return resp, nil
}

// writeQuestions builds an input sheet with a header row plus the given
// question/expected pairs.
func writeQuestions(t *testing.T, path string, rows [][2]string) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	_ = f.SetCellValue("Sheet1", "A1", "Question")
	_ = f.SetCellValue("Sheet1", "B1", "Expected Answer")
	for i, row := range rows {
		_ = f.SetCellValue("Sheet1", fmt.Sprintf("A%d", i+2), row[0])
		_ = f.SetCellValue("Sheet1", fmt.Sprintf("B%d", i+2), row[1])
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("write questions file: %v", err)
	}
}

func cell(t *testing.T, f *excelize.File, ref string) string {
	t.Helper()
	v, err := f.GetCellValue("Sheet1", ref)
	if err != nil {
		t.Fatalf("read cell %s: %v", ref, err)
	}
	return v
}

func TestRun_AnswersEveryRow(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "questions.xlsx")
	out := filepath.Join(dir, "answers.xlsx")
	writeQuestions(t, in, [][2]string{
		{"what is the capital of japan", "Tokyo"},
		{"who wrote dune", "Frank Herbert"},
	})

	answer := &fakeAnswerer{}
	runner := NewRunner(answer, nil)
	template := models.AnswerRequest{RawAnswer: true, GraphVector: true}
	res, err := runner.Run(context.Background(), in, out, template)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Rows != 2 || res.Answered != 2 || res.Failed != 0 {
		t.Errorf("result: got %+v", res)
	}
	if answer.calls != 2 {
		t.Errorf("answer calls: got %d, want 2", answer.calls)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatalf("open answer sheet: %v", err)
	}
	defer f.Close()
	if got := cell(t, f, "A1"); got != "Question" {
		t.Errorf("header A1: got %q", got)
	}
	if got := cell(t, f, "F1"); got != "Graph-Vector Answer" {
		t.Errorf("header F1: got %q", got)
	}
	if got := cell(t, f, "B2"); got != "Tokyo" {
		t.Errorf("expected answer carried through: got %q", got)
	}
	if got := cell(t, f, "C2"); got != "raw: what is the capital of japan" {
		t.Errorf("raw answer: got %q", got)
	}
	if got := cell(t, f, "F3"); got != "graph-vector: who wrote dune" {
		t.Errorf("graph-vector answer: got %q", got)
	}
	// Variants that were not requested stay blank.
	if got := cell(t, f, "D2"); got != "" {
		t.Errorf("vector answer should be empty, got %q", got)
	}
}

func TestRun_EmptySelectionFailsFast(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "questions.xlsx")
	out := filepath.Join(dir, "answers.xlsx")
	writeQuestions(t, in, [][2]string{{"q", ""}})

	answer := &fakeAnswerer{}
	runner := NewRunner(answer, nil)
	_, err := runner.Run(context.Background(), in, out, models.AnswerRequest{})
	if !errors.Is(err, models.ErrEmptyRetrievalRequest) {
		t.Fatalf("err: got %v, want ErrEmptyRetrievalRequest", err)
	}
	if answer.calls != 0 {
		t.Errorf("answerer must not be called, got %d calls", answer.calls)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Errorf("no output file expected, stat err: %v", statErr)
	}
}

func TestRun_RowFailureRecorded(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "questions.xlsx")
	out := filepath.Join(dir, "answers.xlsx")
	writeQuestions(t, in, [][2]string{
		{"good one", ""},
		{"bad one", ""},
		{"another good one", ""},
	})

	answer := &fakeAnswerer{failOn: "bad one"}
	runner := NewRunner(answer, nil)
	res, err := runner.Run(context.Background(), in, out, models.AnswerRequest{RawAnswer: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Answered != 2 || res.Failed != 1 {
		t.Errorf("result: got %+v", res)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatalf("open answer sheet: %v", err)
	}
	defer f.Close()
	if got := cell(t, f, "C3"); !strings.HasPrefix(got, "ERROR:") {
		t.Errorf("failed row cell: got %q, want ERROR prefix", got)
	}
	if got := cell(t, f, "C4"); got != "raw: another good one" {
		t.Errorf("row after failure: got %q", got)
	}
}

func TestRun_CancelKeepsFinishedRows(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "questions.xlsx")
	out := filepath.Join(dir, "answers.xlsx")
	writeQuestions(t, in, [][2]string{
		{"first", ""},
		{"second", ""},
		{"third", ""},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	answer := &fakeAnswerer{onCall: func(n int) {
		if n == 1 {
			cancel()
		}
	}}
	runner := NewRunner(answer, nil)
	res, err := runner.Run(ctx, in, out, models.AnswerRequest{RawAnswer: true})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err: got %v, want context.Canceled", err)
	}
	if res == nil || res.Answered != 1 {
		t.Fatalf("result: got %+v, want 1 answered", res)
	}
	if answer.calls != 1 {
		t.Errorf("answer calls: got %d, want 1", answer.calls)
	}

	// The row finished before the cancel must be on disk.
	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatalf("open partial answer sheet: %v", err)
	}
	defer f.Close()
	if got := cell(t, f, "C2"); got != "raw: first" {
		t.Errorf("first row: got %q", got)
	}
	rows, err := f.GetRows("Sheet1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Errorf("rows on disk: got %d, want header plus one", len(rows))
	}
}

func TestRun_SkipsBlankQuestionRows(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "questions.xlsx")
	out := filepath.Join(dir, "answers.xlsx")
	writeQuestions(t, in, [][2]string{
		{"real question", ""},
		{"", "orphan expected answer"},
		{"another", ""},
	})

	answer := &fakeAnswerer{}
	runner := NewRunner(answer, nil)
	res, err := runner.Run(context.Background(), in, out, models.AnswerRequest{RawAnswer: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Rows != 2 || res.Answered != 2 {
		t.Errorf("result: got %+v, want 2 rows answered", res)
	}
}

func TestRun_MissingInputFile(t *testing.T) {
	dir := t.TempDir()
	runner := NewRunner(&fakeAnswerer{}, nil)
	_, err := runner.Run(context.Background(), filepath.Join(dir, "nope.xlsx"),
		filepath.Join(dir, "out.xlsx"), models.AnswerRequest{RawAnswer: true})
	if err == nil {
		t.Fatal("expected error for missing input file")
	}
}

func TestRun_DegradedCounted(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "questions.xlsx")
	out := filepath.Join(dir, "answers.xlsx")
	writeQuestions(t, in, [][2]string{{"q1", ""}, {"q2", ""}})

	answer := &fakeAnswerer{degrade: true}
	runner := NewRunner(answer, nil)
	res, err := runner.Run(context.Background(), in, out, models.AnswerRequest{GraphVector: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Degraded != 2 {
		t.Errorf("degraded: got %d, want 2", res.Degraded)
	}
}
