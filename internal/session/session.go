// Package session drives one attempt at an exam: question sequencing, answer
// capture by question kind, feedback, score accumulation and completion.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"slagie/internal/domain"
	"slagie/internal/logger"

	"go.uber.org/zap"
)

// State is the position of a session in its lifecycle.
type State int

const (
	Loading State = iota
	Answering
	// Checking is Answering with a check_answer call in flight.
	Checking
	Feedback
	Finished
	// Failed is terminal after a LoadError.
	Failed
	// Abandoned is terminal after the user left the exam.
	Abandoned
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Answering:
		return "answering"
	case Checking:
		return "checking"
	case Feedback:
		return "feedback"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	case Abandoned:
		return "abandoned"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrInvalidState     = errors.New("session: operation not allowed in current state")
	ErrAlreadySubmitted = errors.New("session: answer already submitted for this question")
	ErrNoSelection      = errors.New("session: no answer selected")
	ErrUnknownAnswer    = errors.New("session: answer does not belong to the current question")
	ErrWrongInput       = errors.New("session: input does not match the question type")
	ErrNoMarker         = errors.New("session: no marker at this position")
	ErrTimeExpired      = errors.New("session: time limit reached")
	// ErrStaleResponse is returned when a check result arrived after the session moved on.
	ErrStaleResponse = errors.New("session: response discarded, session has moved on")
)

// Selection is the pending input for the current question.
type Selection struct {
	AnswerID string
	FreeText string
}

// Outcome records how one question was answered.
type Outcome struct {
	QuestionID        string
	Selection         Selection
	Answered          bool
	IsCorrect         bool
	CorrectAnswerText string
	Explanation       string
}

// Result is the verdict of a finished attempt, computed locally.
type Result struct {
	ExamID     string
	Score      int
	Total      int
	Percentage float64
	Threshold  float64
	Passed     bool
	Expired    bool
	Outcomes   []Outcome
}

// Snapshot is a consistent read-only view for rendering.
type Snapshot struct {
	State     State
	ExamID    string
	Title     string
	Index     int
	Total     int
	Question  *domain.Question
	Input     domain.InputMode
	Selection Selection
	CanSubmit bool
	Score     int
	Answered  int
	Feedback  *domain.CheckResult
	Err       error
	Deadline  time.Time
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithClock replaces time.Now, for deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithHitRadius sets how far, in percent, a marker click may land from the marker.
func WithHitRadius(r float64) Option {
	return func(s *Session) { s.hitRadius = r }
}

// WithReportTimeout bounds the background finish_exam call.
func WithReportTimeout(d time.Duration) Option {
	return func(s *Session) { s.reportTimeout = d }
}

// Session is one attempt. It is safe for concurrent use; collaborator calls
// run without holding the lock.
type Session struct {
	examID        string
	source        domain.ExamSource
	scorer        domain.ScoringCollaborator
	log           *zap.Logger
	now           func() time.Time
	hitRadius     float64
	reportTimeout time.Duration

	mu        sync.Mutex
	state     State
	loading   bool
	exam      *domain.Exam
	index     int
	epoch     uint64
	selection Selection
	score     int
	answered  int
	outcomes  []Outcome
	feedback  *domain.CheckResult
	err       error
	deadline  time.Time
	result    *Result

	reported  chan struct{}
	record    *domain.AttemptRecord
	reportErr error
}

// New creates a session in Loading. Call Load to fetch the exam.
func New(examID string, source domain.ExamSource, scorer domain.ScoringCollaborator, opts ...Option) *Session {
	s := &Session{
		examID:        examID,
		source:        source,
		scorer:        scorer,
		log:           logger.Named("session"),
		now:           time.Now,
		hitRadius:     domain.DefaultHitRadius,
		reportTimeout: 10 * time.Second,
		state:         Loading,
		reported:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("exam_id", examID))
	return s
}

// Load fetches the ordered question list. Failure is terminal.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Loading || s.loading {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.loading = true
	s.mu.Unlock()

	exam, err := s.source.FetchExamQuestions(ctx, s.examID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if s.state != Loading {
		return ErrStaleResponse
	}
	if err == nil && (exam == nil || len(exam.Questions) == 0) {
		err = errors.New("exam has no questions")
	}
	if err != nil {
		s.state = Failed
		s.err = domain.NewLoadError(s.examID, err)
		s.log.Error("Failed to load exam", zap.Error(err))
		return s.err
	}

	s.exam = exam.Clone()
	s.outcomes = make([]Outcome, len(exam.Questions))
	for i, q := range s.exam.Questions {
		s.outcomes[i].QuestionID = q.ID
	}
	if limit := s.exam.TimeLimit(); limit > 0 {
		s.deadline = s.now().Add(limit)
	}
	s.state = Answering
	s.log.Info("Exam loaded",
		zap.Int("questions", len(s.exam.Questions)),
		zap.Time("deadline", s.deadline))
	return nil
}

func (s *Session) current() *domain.Question {
	return &s.exam.Questions[s.index]
}

func (s *Session) currentKind() domain.QuestionKind {
	kind, err := s.current().Kind()
	if err != nil {
		// Unknown types fall back to option input so the question stays answerable.
		kind, _ = domain.KindOf(domain.MultipleChoice)
	}
	return kind
}

// selectable reports whether the pending selection may still change.
func (s *Session) selectable() error {
	switch s.state {
	case Answering:
		return nil
	case Checking, Feedback:
		return ErrAlreadySubmitted
	}
	return ErrInvalidState
}

// SelectAnswer captures an answer id for option and marker questions.
func (s *Session) SelectAnswer(answerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.selectable(); err != nil {
		return err
	}
	if s.currentKind().Input() != domain.InputAnswerID {
		return ErrWrongInput
	}
	if s.current().AnswerByID(answerID) == nil {
		return ErrUnknownAnswer
	}
	s.selection = Selection{AnswerID: answerID}
	return nil
}

// SelectMarkerAt captures the marker nearest to a click given in percent of the image.
// It converges on the same selection as SelectAnswer.
func (s *Session) SelectMarkerAt(x, y float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.selectable(); err != nil {
		return "", err
	}
	kind := s.currentKind()
	if !kind.Positioned() {
		return "", ErrWrongInput
	}
	q := s.current()
	i := domain.NearestMarker(q.Answers, domain.Position{X: x, Y: y}.Clamp(), s.hitRadius)
	if i < 0 {
		return "", ErrNoMarker
	}
	s.selection = Selection{AnswerID: q.Answers[i].ID}
	return q.Answers[i].ID, nil
}

// EnterText captures the free-text answer of an open question.
func (s *Session) EnterText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.selectable(); err != nil {
		return err
	}
	if s.currentKind().Input() != domain.InputFreeText {
		return ErrWrongInput
	}
	s.selection = Selection{FreeText: text}
	return nil
}

// CanSubmit reports whether the submit action is enabled.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canSubmit()
}

func (s *Session) canSubmit() bool {
	if s.state != Answering {
		return false
	}
	if s.currentKind().Input() == domain.InputFreeText {
		return strings.TrimSpace(s.selection.FreeText) != ""
	}
	return s.selection.AnswerID != ""
}

func (s *Session) expired() bool {
	return !s.deadline.IsZero() && !s.now().Before(s.deadline)
}

// Submit sends the pending selection to check_answer. It is called at most
// once per question: while a check is in flight, and after one succeeded,
// further calls return ErrAlreadySubmitted without contacting the scorer.
func (s *Session) Submit(ctx context.Context) (*domain.CheckResult, error) {
	s.mu.Lock()
	switch s.state {
	case Checking, Feedback:
		s.mu.Unlock()
		return nil, ErrAlreadySubmitted
	case Answering:
	default:
		s.mu.Unlock()
		return nil, ErrInvalidState
	}
	if s.expired() {
		s.finishLocked(ctx, true)
		s.mu.Unlock()
		return nil, ErrTimeExpired
	}
	if !s.canSubmit() {
		s.mu.Unlock()
		return nil, ErrNoSelection
	}

	q := s.current()
	req := domain.CheckAnswerRequest{QuestionID: q.ID}
	if s.currentKind().Input() == domain.InputFreeText {
		text := strings.TrimSpace(s.selection.FreeText)
		req.FreeText = &text
	} else {
		id := s.selection.AnswerID
		req.SelectedAnswerID = &id
	}
	s.epoch++
	index, epoch := s.index, s.epoch
	s.state = Checking
	s.err = nil
	s.mu.Unlock()

	res, err := s.scorer.CheckAnswer(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Checking || s.index != index || s.epoch != epoch {
		s.log.Info("Discarding stale check result",
			zap.String("question_id", req.QuestionID),
			zap.Int("index", index),
			zap.Stringer("state", s.state))
		return nil, ErrStaleResponse
	}
	if err == nil && res == nil {
		err = errors.New("empty check result")
	}
	if err != nil {
		s.state = Answering
		s.err = domain.NewCheckError(req.QuestionID, err)
		s.log.Warn("Answer check failed", zap.String("question_id", req.QuestionID), zap.Error(err))
		return nil, s.err
	}

	// The only score mutation point.
	if res.IsCorrect {
		s.score++
	}
	s.answered++
	s.outcomes[index] = Outcome{
		QuestionID:        req.QuestionID,
		Selection:         s.selection,
		Answered:          true,
		IsCorrect:         res.IsCorrect,
		CorrectAnswerText: res.CorrectAnswerText,
		Explanation:       res.Explanation,
	}
	fb := *res
	s.feedback = &fb
	s.state = Feedback
	return &fb, nil
}

// Next leaves Feedback for the next question, or finishes after the last one.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Feedback {
		return ErrInvalidState
	}
	if s.index+1 < len(s.exam.Questions) {
		s.index++
		s.selection = Selection{}
		s.feedback = nil
		s.state = Answering
		if s.expired() {
			s.finishLocked(ctx, true)
			return ErrTimeExpired
		}
		return nil
	}
	s.finishLocked(ctx, false)
	return nil
}

// Expire ends the attempt because the time limit passed. Unanswered questions count as wrong.
func (s *Session) Expire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Answering, Checking, Feedback:
		s.finishLocked(ctx, true)
		return nil
	}
	return ErrInvalidState
}

// Abandon ends the attempt without reporting. In-flight results are discarded.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Finished, Failed, Abandoned:
		return
	}
	s.epoch++
	s.state = Abandoned
	s.log.Info("Exam abandoned", zap.Int("index", s.index), zap.Int("score", s.score))
}

// finishLocked moves to Finished exactly once and reports in the background.
func (s *Session) finishLocked(ctx context.Context, expired bool) {
	s.epoch++
	s.state = Finished
	s.feedback = nil

	total := len(s.exam.Questions)
	r := &Result{
		ExamID:    s.examID,
		Score:     s.score,
		Total:     total,
		Threshold: s.exam.PassingThreshold(),
		Passed:    s.exam.Passed(s.score, total),
		Expired:   expired,
		Outcomes:  append([]Outcome(nil), s.outcomes...),
	}
	if total > 0 {
		r.Percentage = float64(s.score) / float64(total) * 100
	}
	s.result = r
	s.log.Info("Exam finished",
		zap.Int("score", r.Score),
		zap.Int("total", r.Total),
		zap.Bool("passed", r.Passed),
		zap.Bool("expired", expired))

	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.reportTimeout)
	go func() {
		defer cancel()
		s.report(reportCtx, r.Score, r.Total)
	}()
}

func (s *Session) report(ctx context.Context, score, total int) {
	defer close(s.reported)
	rec, err := s.scorer.FinishExam(ctx, s.examID, score, total)
	if err != nil {
		s.log.Warn("Failed to record attempt", zap.Error(err))
	}
	s.mu.Lock()
	s.record, s.reportErr = rec, err
	s.mu.Unlock()
}

// Result returns the local verdict once Finished.
func (s *Session) Result() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Finished {
		return Result{}, ErrInvalidState
	}
	r := *s.result
	r.Outcomes = append([]Outcome(nil), s.result.Outcomes...)
	return r, nil
}

// WaitReported blocks until the finish_exam call has completed.
func (s *Session) WaitReported(ctx context.Context) (*domain.AttemptRecord, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != Finished {
		return nil, ErrInvalidState
	}
	select {
	case <-s.reported:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record, s.reportErr
}

// Snapshot returns a copy of everything a view needs.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:     s.state,
		ExamID:    s.examID,
		Index:     s.index,
		Selection: s.selection,
		CanSubmit: s.canSubmit(),
		Score:     s.score,
		Answered:  s.answered,
		Err:       s.err,
		Deadline:  s.deadline,
	}
	if s.exam == nil {
		return snap
	}
	snap.Title = s.exam.Title
	snap.Total = len(s.exam.Questions)
	if s.state == Answering || s.state == Checking || s.state == Feedback {
		q := s.current().Clone()
		snap.Question = &q
		snap.Input = s.currentKind().Input()
	}
	if s.feedback != nil {
		fb := *s.feedback
		snap.Feedback = &fb
	}
	return snap
}
