// Package batch answers spreadsheets of questions in bulk.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/tsunagu/internal/models"
)

// Columns of the answer sheet, in order. Input files need at least the
// Question column; Expected Answer is carried through when present.
var columns = []string{
	"Question",
	"Expected Answer",
	"Basic LLM Answer",
	"Vector-only Answer",
	"Graph-only Answer",
	"Graph-Vector Answer",
}

var colLetters = [...]string{"A", "B", "C", "D", "E", "F"}

// Answerer generates answers for retrieval requests.
type Answerer interface {
	Answer(ctx context.Context, req models.AnswerRequest) (*models.AnswerResponse, error)
}

// Result summarizes one batch run.
type Result struct {
	Rows     int
	Answered int
	Failed   int
	Degraded int
	Took     time.Duration
}

// Runner answers every question in a spreadsheet with the same retrieval
// settings, one row at a time.
type Runner struct {
	answer Answerer
	log    *zap.Logger
}

// NewRunner wires a batch runner.
func NewRunner(answer Answerer, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{answer: answer, log: log}
}

// Run reads questions from the xlsx at inPath, answers them sequentially, and
// writes the answer sheet to outPath. template carries the variant flags and
// retrieval knobs shared by every row; its Question field is replaced per row.
//
// Cancellation is checked between rows. On cancellation the rows answered so
// far are still written to outPath before the context error is returned.
func (r *Runner) Run(ctx context.Context, inPath, outPath string, template models.AnswerRequest) (*Result, error) {
	// Surface a bad template before any file is touched, not once per row.
	probe := template
	probe.Question = "probe"
	if err := probe.Validate(); err != nil {
		return nil, err
	}

	questions, expected, err := readQuestions(inPath)
	if err != nil {
		return nil, err
	}

	out := excelize.NewFile()
	defer out.Close()
	const sheet = "Sheet1"
	for j, name := range columns {
		_ = out.SetCellValue(sheet, colLetters[j]+"1", name)
	}

	start := time.Now()
	res := &Result{Rows: len(questions)}
	for i, q := range questions {
		if err := ctx.Err(); err != nil {
			return r.abort(res, out, outPath, start, err)
		}
		rowNum := i + 2
		_ = out.SetCellValue(sheet, fmt.Sprintf("A%d", rowNum), q)
		_ = out.SetCellValue(sheet, fmt.Sprintf("B%d", rowNum), expected[i])

		req := template
		req.Question = q
		resp, err := r.answer.Answer(ctx, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return r.abort(res, out, outPath, start, err)
			}
			// One failed question must not sink the rest of the sheet.
			res.Failed++
			r.log.Warn("batch row failed", zap.Int("row", rowNum), zap.String("question", q), zap.Error(err))
			msg := "ERROR: " + err.Error()
			for j := 2; j < len(columns); j++ {
				_ = out.SetCellValue(sheet, fmt.Sprintf("%s%d", colLetters[j], rowNum), msg)
			}
			continue
		}
		res.Answered++
		if resp.Degraded {
			res.Degraded++
		}
		_ = out.SetCellValue(sheet, fmt.Sprintf("C%d", rowNum), resp.RawAnswer)
		_ = out.SetCellValue(sheet, fmt.Sprintf("D%d", rowNum), resp.VectorOnlyAnswer)
		_ = out.SetCellValue(sheet, fmt.Sprintf("E%d", rowNum), resp.GraphOnlyAnswer)
		_ = out.SetCellValue(sheet, fmt.Sprintf("F%d", rowNum), resp.GraphVectorAnswer)
		r.log.Debug("batch row answered", zap.Int("row", rowNum), zap.Int("total", len(questions)))
	}

	if err := out.SaveAs(outPath); err != nil {
		return nil, fmt.Errorf("save answer sheet: %w", err)
	}
	res.Took = time.Since(start)
	r.log.Info("batch finished",
		zap.Int("rows", res.Rows),
		zap.Int("answered", res.Answered),
		zap.Int("failed", res.Failed),
		zap.String("out", outPath))
	return res, nil
}

// abort saves whatever rows were finished before the cancellation so the work
// is not lost, then hands the context error back.
func (r *Runner) abort(res *Result, out *excelize.File, outPath string, start time.Time, err error) (*Result, error) {
	if saveErr := out.SaveAs(outPath); saveErr != nil {
		r.log.Warn("save partial answer sheet", zap.Error(saveErr))
	}
	res.Took = time.Since(start)
	r.log.Info("batch aborted",
		zap.Int("answered", res.Answered),
		zap.Int("rows", res.Rows),
		zap.String("out", outPath))
	return res, err
}

// readQuestions loads the first sheet of the file: a header row, questions in
// the first column, expected answers in the second when present. Rows with an
// empty question are dropped.
func readQuestions(path string) (questions, expected []string, err error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open questions file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("questions file %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read questions file: %w", err)
	}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		questions = append(questions, strings.TrimSpace(row[0]))
		exp := ""
		if len(row) > 1 {
			exp = row[1]
		}
		expected = append(expected, exp)
	}
	if len(questions) == 0 {
		return nil, nil, fmt.Errorf("questions file %s has no questions", path)
	}
	return questions, expected, nil
}
