package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"slagie/internal/authoring"
	"slagie/internal/domain"
	"slagie/internal/logger"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var ErrNoQuestions = errors.New("importer: sheet contains no questions")

// ImageStore receives pictures embedded in the sheet and returns their public URL.
type ImageStore interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// Options configures one import.
type Options struct {
	Title       string
	Description string
	Category    string
	Sheet       string
	// Images is optional; without it embedded pictures are ignored.
	Images  ImageStore
	Publish bool
}

// RowIssue is a problem found on one sheet row.
type RowIssue struct {
	Line    int    `json:"line"`
	Number  int    `json:"number,omitempty"`
	Message string `json:"message"`
}

// Report summarizes an import.
type Report struct {
	ExamID    string     `json:"exam_id,omitempty"`
	Imported  int        `json:"imported"`
	Images    int        `json:"images"`
	Published bool       `json:"published"`
	Skipped   []RowIssue `json:"skipped,omitempty"`
	Warnings  []RowIssue `json:"warnings,omitempty"`
}

func (r *Report) skip(row Row, format string, args ...interface{}) {
	r.Skipped = append(r.Skipped, RowIssue{Line: row.Line, Number: row.Number, Message: fmt.Sprintf(format, args...)})
}

func (r *Report) warn(row Row, format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, RowIssue{Line: row.Line, Number: row.Number, Message: fmt.Sprintf(format, args...)})
}

// Import reads the workbook in src, builds a draft from its rows and saves it
// through store. With Options.Publish the saved exam is published as well;
// an incomplete exam stays a draft and the returned error lists why.
func Import(ctx context.Context, store domain.ExamStore, src io.Reader, opts Options) (*Report, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logger.Get().Warn("Failed to close workbook", zap.Error(cerr))
		}
	}()

	rows, err := ReadSheet(f, opts.Sheet)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	if opts.Images != nil {
		if err := uploadPictures(ctx, opts.Images, rows, report); err != nil {
			return report, err
		}
	}

	draft := authoring.NewDraft(store, authoring.WithLogger(logger.Named("importer")))
	if err := applyHeader(draft, opts); err != nil {
		return report, err
	}
	if err := Build(draft, rows, report); err != nil {
		return report, err
	}

	saved, err := draft.Save(ctx)
	if err != nil {
		return report, err
	}
	report.ExamID = saved.ID
	logger.Get().Info("Exam imported",
		zap.String("exam_id", saved.ID),
		zap.Int("imported", report.Imported),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("warnings", len(report.Warnings)),
	)

	if opts.Publish {
		if err := draft.Publish(ctx); err != nil {
			return report, err
		}
		report.Published = true
	}
	return report, nil
}

func applyHeader(d *authoring.Draft, opts Options) error {
	if err := d.SetTitle(opts.Title); err != nil {
		return err
	}
	if err := d.SetDescription(opts.Description); err != nil {
		return err
	}
	if opts.Category != "" {
		return d.SetCategory(opts.Category)
	}
	return nil
}

func uploadPictures(ctx context.Context, images ImageStore, rows []Row, report *Report) error {
	for i := range rows {
		pic := rows[i].Picture
		if pic == nil {
			continue
		}
		ref := rows[i].Number
		if ref == 0 {
			ref = rows[i].Line
		}
		url, err := images.Put(ctx, fmt.Sprintf("vraag_%d%s", ref, pic.Extension), pic.Data)
		if err != nil {
			return fmt.Errorf("failed to store picture of row %d: %w", rows[i].Line, err)
		}
		rows[i].Image = url
		report.Images++
	}
	return nil
}

// Build replaces the draft's questions with one question per row. Rows that
// cannot become a question are recorded in report.Skipped; questions that
// still need an author's attention are recorded in report.Warnings.
func Build(d *authoring.Draft, rows []Row, report *Report) error {
	first := true
	for _, row := range rows {
		t, err := domain.ParseQuestionType(row.Type)
		if err != nil {
			report.skip(row, "unknown question type %q", row.Type)
			continue
		}
		kind, _ := domain.KindOf(t)
		if kind.Input() == domain.InputAnswerID && len(row.Options) < 2 {
			report.skip(row, "needs at least two options, found %d", len(row.Options))
			continue
		}
		if kind.Input() == domain.InputFreeText && row.Answer == "" {
			report.skip(row, "open question has no %s", ColAnswer)
			continue
		}

		qi := 0
		if first {
			// a new draft starts with one empty multiple-choice question
			err = d.ChangeType(0, t)
		} else {
			qi, err = d.AddQuestion(t)
		}
		if err != nil {
			return err
		}
		first = false

		if err := fillQuestion(d, qi, kind, row, report); err != nil {
			return fmt.Errorf("row %d: %w", row.Line, err)
		}
		report.Imported++
	}
	if report.Imported == 0 {
		return ErrNoQuestions
	}
	return nil
}

func fillQuestion(d *authoring.Draft, qi int, kind domain.QuestionKind, row Row, report *Report) error {
	if err := d.SetQuestionText(qi, row.Text); err != nil {
		return err
	}
	if err := d.SetQuestionImage(qi, row.Image); err != nil {
		return err
	}
	if err := d.SetQuestionCategory(qi, row.Theme); err != nil {
		return err
	}

	if kind.Input() == domain.InputFreeText {
		return d.SetExpectedText(qi, row.Answer)
	}

	for n := len(d.Exam().Questions[qi].Answers); n < len(row.Options); n++ {
		if _, err := d.AddAnswer(qi); err != nil {
			return err
		}
	}
	for ai, text := range row.Options {
		if err := d.SetAnswerText(qi, ai, text); err != nil {
			return err
		}
	}

	if correct := MatchAnswer(row.Answer, row.Options); correct >= 0 {
		if err := d.ToggleCorrect(qi, correct); err != nil {
			return err
		}
	} else {
		report.warn(row, "%s %q matches no option", ColAnswer, row.Answer)
	}
	if kind.Positioned() {
		report.warn(row, "markers need a position on the image")
	}
	return nil
}

// MatchAnswer resolves the Antwoord cell to an option index: first by option
// text, case-insensitively, then as a single option letter. -1 when neither fits.
func MatchAnswer(answer string, options []string) int {
	target := normalizeHeader(answer)
	if target == "" {
		return -1
	}
	for i, o := range options {
		if normalizeHeader(o) == target {
			return i
		}
	}
	if i := domain.LabelIndex(answer); i >= 0 && i < len(options) {
		return i
	}
	return -1
}

// DirImageStore writes pictures into Dir and serves them under BaseURL.
type DirImageStore struct {
	Dir     string
	BaseURL string
}

func (s DirImageStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}
	name = filepath.Base(name)
	if err := os.WriteFile(filepath.Join(s.Dir, name), data, 0o644); err != nil {
		return "", err
	}
	return strings.TrimSuffix(s.BaseURL, "/") + "/" + name, nil
}
