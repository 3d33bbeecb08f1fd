// Package authoring builds or edits an exam in memory and saves it as one document.
package authoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"slagie/internal/domain"
	"slagie/internal/logger"

	"go.uber.org/zap"
)

var (
	ErrLastQuestion    = errors.New("authoring: an exam keeps at least one question")
	ErrNoSuchQuestion  = errors.New("authoring: question index out of range")
	ErrNoSuchAnswer    = errors.New("authoring: answer index out of range")
	ErrFixedAnswers    = errors.New("authoring: open questions have exactly one expected answer")
	ErrNotPositioned   = errors.New("authoring: question type has no image markers")
	ErrNotArmed        = errors.New("authoring: no marker armed for this question")
	ErrNotOpenQuestion = errors.New("authoring: expected text only applies to open questions")
	ErrSaveInProgress  = errors.New("authoring: save in progress")
	ErrNotSaved        = errors.New("authoring: exam must be saved first")
)

// Target names the answer armed to receive the next click on its question's image.
type Target struct {
	Question int
	Answer   int
}

type Option func(*Draft)

func WithLogger(l *zap.Logger) Option {
	return func(d *Draft) { d.log = l }
}

// Draft is one authoring instance. The positioning target belongs to the draft,
// so several drafts can be edited side by side.
type Draft struct {
	store domain.ExamStore
	log   *zap.Logger

	mu     sync.Mutex
	exam   *domain.Exam
	target *Target
	saving bool
	err    error
}

// NewDraft starts a new exam with one empty multiple-choice question.
func NewDraft(store domain.ExamStore, opts ...Option) *Draft {
	exam := domain.NewExam("")
	q, _ := domain.NewQuestion(domain.MultipleChoice)
	exam.Questions = []domain.Question{q}
	return newDraft(store, exam, opts)
}

// Open rehydrates an existing exam for editing.
func Open(ctx context.Context, store domain.ExamStore, examID string, opts ...Option) (*Draft, error) {
	exam, err := store.FetchExam(ctx, examID)
	if err != nil {
		return nil, domain.NewLoadError(examID, err)
	}
	if exam == nil {
		return nil, domain.NewLoadError(examID, errors.New("empty response"))
	}
	exam = exam.Clone()
	if len(exam.Questions) == 0 {
		q, _ := domain.NewQuestion(domain.MultipleChoice)
		exam.Questions = []domain.Question{q}
	}
	return newDraft(store, exam, opts), nil
}

func newDraft(store domain.ExamStore, exam *domain.Exam, opts []Option) *Draft {
	d := &Draft{store: store, exam: exam, log: logger.Named("authoring")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Exam returns a copy of the current document.
func (d *Draft) Exam() *domain.Exam {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exam.Clone()
}

// Err is the last SubmitError, cleared by a successful save.
func (d *Draft) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Issues lists everything that keeps the draft from being publishable.
func (d *Draft) Issues() domain.ValidationErrors {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exam.Issues()
}

func (d *Draft) edit(fn func(e *domain.Exam) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.saving {
		return ErrSaveInProgress
	}
	return fn(d.exam)
}

func (d *Draft) question(i int) (*domain.Question, domain.QuestionKind, error) {
	if i < 0 || i >= len(d.exam.Questions) {
		return nil, nil, ErrNoSuchQuestion
	}
	q := &d.exam.Questions[i]
	kind, err := q.Kind()
	if err != nil {
		return nil, nil, err
	}
	return q, kind, nil
}

func (d *Draft) answer(qi, ai int) (*domain.Question, domain.QuestionKind, error) {
	q, kind, err := d.question(qi)
	if err != nil {
		return nil, nil, err
	}
	if ai < 0 || ai >= len(q.Answers) {
		return nil, nil, ErrNoSuchAnswer
	}
	return q, kind, nil
}

func (d *Draft) SetTitle(title string) error {
	return d.edit(func(e *domain.Exam) error {
		e.Title = title
		return nil
	})
}

func (d *Draft) SetDescription(desc string) error {
	return d.edit(func(e *domain.Exam) error {
		e.Description = desc
		return nil
	})
}

func (d *Draft) SetCoverImage(url string) error {
	return d.edit(func(e *domain.Exam) error {
		e.CoverImage = url
		return nil
	})
}

func (d *Draft) SetCategory(category string) error {
	return d.edit(func(e *domain.Exam) error {
		e.Category = category
		return nil
	})
}

// SetTimeLimit sets the limit in minutes; nil means unlimited.
func (d *Draft) SetTimeLimit(minutes *int) error {
	if minutes != nil && *minutes < 0 {
		return domain.ValidationErrors{domain.NewValidationError("time_limit_minutes", "must not be negative")}
	}
	return d.edit(func(e *domain.Exam) error {
		e.TimeLimitMinutes = copyInt(minutes)
		return nil
	})
}

// SetPassingScore sets the pass mark in percent; nil falls back to the default.
func (d *Draft) SetPassingScore(percent *int) error {
	if percent != nil && (*percent < 0 || *percent > 100) {
		return domain.ValidationErrors{domain.NewOutOfRangeError("passing_score_percent", *percent, 0, 100)}
	}
	return d.edit(func(e *domain.Exam) error {
		e.PassingScorePercent = copyInt(percent)
		return nil
	})
}

// SetPublished marks whether the next save creates or keeps the exam published.
func (d *Draft) SetPublished(published bool) error {
	return d.edit(func(e *domain.Exam) error {
		e.IsPublished = published
		return nil
	})
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// AddQuestion appends a question of type t with its default answers.
func (d *Draft) AddQuestion(t domain.QuestionType) (int, error) {
	q, err := domain.NewQuestion(t)
	if err != nil {
		return -1, err
	}
	idx := -1
	err = d.edit(func(e *domain.Exam) error {
		e.Questions = append(e.Questions, q)
		idx = len(e.Questions) - 1
		return nil
	})
	return idx, err
}

// RemoveQuestion deletes question i. The last remaining question cannot be removed.
func (d *Draft) RemoveQuestion(i int) error {
	return d.edit(func(e *domain.Exam) error {
		if i < 0 || i >= len(e.Questions) {
			return ErrNoSuchQuestion
		}
		if len(e.Questions) == 1 {
			return ErrLastQuestion
		}
		e.Questions = append(e.Questions[:i], e.Questions[i+1:]...)
		if d.target != nil {
			switch {
			case d.target.Question == i:
				d.target = nil
			case d.target.Question > i:
				d.target.Question--
			}
		}
		return nil
	})
}

// MoveQuestion moves question from to position to.
func (d *Draft) MoveQuestion(from, to int) error {
	return d.edit(func(e *domain.Exam) error {
		n := len(e.Questions)
		if from < 0 || from >= n || to < 0 || to >= n {
			return ErrNoSuchQuestion
		}
		q := e.Questions[from]
		e.Questions = append(e.Questions[:from], e.Questions[from+1:]...)
		e.Questions = append(e.Questions[:to], append([]domain.Question{q}, e.Questions[to:]...)...)
		d.target = nil
		return nil
	})
}

func (d *Draft) SetQuestionText(i int, text string) error {
	return d.edit(func(e *domain.Exam) error {
		q, _, err := d.question(i)
		if err != nil {
			return err
		}
		q.Text = text
		return nil
	})
}

func (d *Draft) SetQuestionImage(i int, url string) error {
	return d.edit(func(e *domain.Exam) error {
		q, _, err := d.question(i)
		if err != nil {
			return err
		}
		q.ImageURL = url
		return nil
	})
}

func (d *Draft) SetQuestionExplanation(i int, text string) error {
	return d.edit(func(e *domain.Exam) error {
		q, _, err := d.question(i)
		if err != nil {
			return err
		}
		q.Explanation = text
		return nil
	})
}

// SetQuestionCategory tags question i with a theme, e.g. a CBR exam section.
func (d *Draft) SetQuestionCategory(i int, category string) error {
	return d.edit(func(e *domain.Exam) error {
		q, _, err := d.question(i)
		if err != nil {
			return err
		}
		q.Category = category
		return nil
	})
}

// ChangeType switches question i to type t and resets its answers to the
// new kind's minimal shape. Choosing the current type changes nothing.
func (d *Draft) ChangeType(i int, t domain.QuestionType) error {
	kind, err := domain.KindOf(t)
	if err != nil {
		return err
	}
	return d.edit(func(e *domain.Exam) error {
		if i < 0 || i >= len(e.Questions) {
			return ErrNoSuchQuestion
		}
		q := &e.Questions[i]
		if q.Type == t {
			return nil
		}
		q.Type = t
		q.Answers = kind.DefaultAnswers()
		if d.target != nil && d.target.Question == i {
			d.target = nil
		}
		return nil
	})
}

// AddAnswer appends an empty, non-correct option to question q.
func (d *Draft) AddAnswer(qi int) (int, error) {
	idx := -1
	err := d.edit(func(e *domain.Exam) error {
		q, kind, err := d.question(qi)
		if err != nil {
			return err
		}
		if kind.Input() == domain.InputFreeText {
			return ErrFixedAnswers
		}
		q.Answers = append(q.Answers, domain.Answer{Order: len(q.Answers)})
		idx = len(q.Answers) - 1
		return nil
	})
	return idx, err
}

func (d *Draft) RemoveAnswer(qi, ai int) error {
	return d.edit(func(e *domain.Exam) error {
		q, kind, err := d.answer(qi, ai)
		if err != nil {
			return err
		}
		if kind.Input() == domain.InputFreeText {
			return ErrFixedAnswers
		}
		q.Answers = append(q.Answers[:ai], q.Answers[ai+1:]...)
		if d.target != nil && d.target.Question == qi {
			switch {
			case d.target.Answer == ai:
				d.target = nil
			case d.target.Answer > ai:
				d.target.Answer--
			}
		}
		return nil
	})
}

func (d *Draft) SetAnswerText(qi, ai int, text string) error {
	return d.edit(func(e *domain.Exam) error {
		q, _, err := d.answer(qi, ai)
		if err != nil {
			return err
		}
		q.Answers[ai].Text = text
		return nil
	})
}

// ToggleCorrect marks answer ai correct and clears its siblings. Toggling the
// answer that is already correct leaves it correct, so once chosen a question
// always has exactly one correct answer.
func (d *Draft) ToggleCorrect(qi, ai int) error {
	return d.edit(func(e *domain.Exam) error {
		q, kind, err := d.answer(qi, ai)
		if err != nil {
			return err
		}
		if !kind.SingleCorrect() {
			return ErrFixedAnswers
		}
		if q.Answers[ai].IsCorrect {
			return nil
		}
		for j := range q.Answers {
			q.Answers[j].IsCorrect = j == ai
		}
		return nil
	})
}

// SetExpectedText sets the canonical answer of an open question.
func (d *Draft) SetExpectedText(qi int, text string) error {
	return d.edit(func(e *domain.Exam) error {
		q, kind, err := d.question(qi)
		if err != nil {
			return err
		}
		if kind.Input() != domain.InputFreeText {
			return ErrNotOpenQuestion
		}
		if len(q.Answers) == 0 {
			q.Answers = kind.DefaultAnswers()
		}
		q.Answers[0].Text = text
		q.Answers[0].IsCorrect = true
		return nil
	})
}

// Arm names the answer that receives the next image click. It replaces any
// previously armed answer.
func (d *Draft) Arm(qi, ai int) error {
	return d.edit(func(e *domain.Exam) error {
		_, kind, err := d.answer(qi, ai)
		if err != nil {
			return err
		}
		if !kind.Positioned() {
			return ErrNotPositioned
		}
		d.target = &Target{Question: qi, Answer: ai}
		return nil
	})
}

func (d *Draft) Disarm() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.target = nil
}

// Target returns the armed answer, if any.
func (d *Draft) Target() (Target, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.target == nil {
		return Target{}, false
	}
	return *d.target, true
}

// ClickImage handles a click at pixel offset (px, py) inside question qi's
// rendered image of size w x h. The armed answer gets the click as a percent
// position and the target is disarmed.
func (d *Draft) ClickImage(qi int, px, py, w, h float64) (domain.Position, error) {
	var pos domain.Position
	err := d.edit(func(e *domain.Exam) error {
		if d.target == nil || d.target.Question != qi {
			return ErrNotArmed
		}
		q, _, err := d.answer(d.target.Question, d.target.Answer)
		if err != nil {
			d.target = nil
			return err
		}
		pos, err = domain.PositionFromPixels(px, py, w, h)
		if err != nil {
			return err
		}
		p := pos
		q.Answers[d.target.Answer].Position = &p
		d.target = nil
		return nil
	})
	return pos, err
}

// Save validates locally, then creates or updates the exam in one call.
// A blank title, or an incomplete exam marked published, is rejected without
// contacting the store. On store failure the draft is left as it was.
func (d *Draft) Save(ctx context.Context) (*domain.Exam, error) {
	d.mu.Lock()
	if d.saving {
		d.mu.Unlock()
		return nil, ErrSaveInProgress
	}
	if err := d.exam.ValidateTitle(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	if d.exam.IsPublished {
		if err := d.exam.ValidatePublishable(); err != nil {
			d.mu.Unlock()
			return nil, err
		}
	}
	d.target = nil
	d.exam.ReindexOrder()
	payload := d.exam.Clone()
	d.saving = true
	d.mu.Unlock()

	var (
		saved *domain.Exam
		err   error
	)
	if payload.ID == "" {
		saved, err = d.store.SaveExam(ctx, payload)
	} else {
		saved, err = d.store.UpdateExam(ctx, payload.ID, payload)
	}
	if err == nil && saved == nil {
		err = errors.New("empty response")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.saving = false
	if err != nil {
		d.err = domain.NewSubmitError(err)
		d.log.Warn("Failed to save exam", zap.String("exam_id", payload.ID), zap.Error(err))
		return nil, d.err
	}
	d.err = nil
	d.exam = saved.Clone()
	d.log.Info("Exam saved",
		zap.String("exam_id", saved.ID),
		zap.Int("questions", len(saved.Questions)),
		zap.Bool("published", saved.IsPublished))
	return saved.Clone(), nil
}

// Publish makes a saved exam visible to students. Completeness is checked locally first.
func (d *Draft) Publish(ctx context.Context) error {
	return d.setPublished(ctx, true)
}

// Unpublish turns the exam back into a draft.
func (d *Draft) Unpublish(ctx context.Context) error {
	return d.setPublished(ctx, false)
}

func (d *Draft) setPublished(ctx context.Context, publish bool) error {
	d.mu.Lock()
	if d.saving {
		d.mu.Unlock()
		return ErrSaveInProgress
	}
	id := d.exam.ID
	if id == "" {
		d.mu.Unlock()
		return ErrNotSaved
	}
	if publish {
		if err := d.exam.ValidatePublishable(); err != nil {
			d.mu.Unlock()
			return err
		}
	}
	d.saving = true
	d.mu.Unlock()

	var (
		res *domain.Exam
		err error
	)
	if publish {
		res, err = d.store.Publish(ctx, id)
	} else {
		res, err = d.store.Unpublish(ctx, id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.saving = false
	if err != nil {
		d.err = domain.NewSubmitError(fmt.Errorf("set published=%t: %w", publish, err))
		return d.err
	}
	d.err = nil
	d.exam.IsPublished = publish
	switch {
	case res != nil && res.PublishedAt != nil:
		t := *res.PublishedAt
		d.exam.PublishedAt = &t
	case publish:
		t := time.Now().UTC()
		d.exam.PublishedAt = &t
	default:
		d.exam.PublishedAt = nil
	}
	return nil
}
