package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"slagie/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeBackend grades against the full exam it serves, like the real backend.
type fakeBackend struct {
	exam *domain.Exam

	loadErr  error
	checkErr error
	// gate, when set, blocks CheckAnswer until it is closed or receives.
	gate chan struct{}

	mu       sync.Mutex
	checks   []domain.CheckAnswerRequest
	finishes int32
	finished chan struct{}
	lastScore, lastTotal int
}

func newFakeBackend(exam *domain.Exam) *fakeBackend {
	return &fakeBackend{exam: exam, finished: make(chan struct{}, 1)}
}

func (f *fakeBackend) FetchExamQuestions(ctx context.Context, examID string) (*domain.Exam, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	e := f.exam.Clone()
	for i := range e.Questions {
		e.Questions[i] = e.Questions[i].StripCorrectness()
	}
	return e, nil
}

func (f *fakeBackend) CheckAnswer(ctx context.Context, req domain.CheckAnswerRequest) (*domain.CheckResult, error) {
	f.mu.Lock()
	f.checks = append(f.checks, req)
	err := f.checkErr
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	if err != nil {
		return nil, err
	}
	q, _ := f.exam.QuestionByID(req.QuestionID)
	correct := q.CorrectAnswer()
	res := &domain.CheckResult{CorrectAnswerText: correct.Text, Explanation: q.Explanation}
	switch {
	case req.SelectedAnswerID != nil:
		res.IsCorrect = *req.SelectedAnswerID == correct.ID
	case req.FreeText != nil:
		res.IsCorrect = *req.FreeText == correct.Text
	}
	return res, nil
}

func (f *fakeBackend) FinishExam(ctx context.Context, examID string, score, total int) (*domain.AttemptRecord, error) {
	atomic.AddInt32(&f.finishes, 1)
	f.mu.Lock()
	f.lastScore, f.lastTotal = score, total
	f.mu.Unlock()
	f.finished <- struct{}{}
	return &domain.AttemptRecord{ID: "att-1", ExamID: examID, Score: score, Total: total}, nil
}

func (f *fakeBackend) checkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.checks)
}

func option(id, text string, correct bool) domain.Answer {
	return domain.Answer{ID: id, Text: text, IsCorrect: correct}
}

// twoQuestionExam has correct answers B and A.
func twoQuestionExam() *domain.Exam {
	return &domain.Exam{
		ID:    "exam-1",
		Title: "Theorie 1",
		Questions: []domain.Question{
			{ID: "q1", Text: "Wie heeft voorrang?", Type: domain.MultipleChoice, Explanation: "Rechts gaat voor.", Answers: []domain.Answer{
				option("q1-a", "De fietser", false),
				option("q1-b", "De auto van rechts", true),
			}},
			{ID: "q2", Text: "Mag u hier parkeren?", Type: domain.MultipleChoice, Answers: []domain.Answer{
				option("q2-a", "Nee", true),
				option("q2-b", "Ja", false),
			}},
		},
	}
}

func loaded(t *testing.T, backend *fakeBackend, opts ...Option) *Session {
	t.Helper()
	s := New(backend.exam.ID, backend, backend, opts...)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func answer(t *testing.T, s *Session, answerID string) *domain.CheckResult {
	t.Helper()
	require.NoError(t, s.SelectAnswer(answerID))
	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	return res
}

func waitFinish(t *testing.T, b *fakeBackend) {
	t.Helper()
	select {
	case <-b.finished:
	case <-time.After(2 * time.Second):
		t.Fatal("finish_exam was not called")
	}
}

func TestSession_ScenarioA_AllCorrect(t *testing.T) {
	backend := newFakeBackend(twoQuestionExam())
	s := loaded(t, backend)

	res := answer(t, s, "q1-b")
	assert.True(t, res.IsCorrect)
	assert.Equal(t, "Rechts gaat voor.", res.Explanation)
	require.NoError(t, s.Next(context.Background()))

	res = answer(t, s, "q2-a")
	assert.True(t, res.IsCorrect)
	require.NoError(t, s.Next(context.Background()))

	result, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, 2, result.Score)
	assert.Equal(t, 2, result.Total)
	assert.True(t, result.Passed)
	assert.InDelta(t, 0.86, result.Threshold, 1e-9)
	assert.InDelta(t, 100.0, result.Percentage, 1e-9)

	rec, err := s.WaitReported(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Score)
	assert.Equal(t, int32(1), atomic.LoadInt32(&backend.finishes))
}

func TestSession_ScenarioB_OneWrong(t *testing.T) {
	backend := newFakeBackend(twoQuestionExam())
	s := loaded(t, backend)

	res := answer(t, s, "q1-a")
	assert.False(t, res.IsCorrect)
	assert.Equal(t, "De auto van rechts", res.CorrectAnswerText)
	require.NoError(t, s.Next(context.Background()))
	answer(t, s, "q2-a")
	require.NoError(t, s.Next(context.Background()))

	result, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Score)
	assert.InDelta(t, 50.0, result.Percentage, 1e-9)
	assert.False(t, result.Passed)
	waitFinish(t, backend)
	assert.Equal(t, 1, backend.lastScore)
	assert.Equal(t, 2, backend.lastTotal)
}

func TestSession_ThresholdFromExam(t *testing.T) {
	exam := twoQuestionExam()
	half := 50
	exam.PassingScorePercent = &half
	backend := newFakeBackend(exam)
	s := loaded(t, backend)

	answer(t, s, "q1-a")
	require.NoError(t, s.Next(context.Background()))
	answer(t, s, "q2-a")
	require.NoError(t, s.Next(context.Background()))

	result, err := s.Result()
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestSession_ScenarioD_OpenQuestionSendsFreeText(t *testing.T) {
	exam := &domain.Exam{ID: "exam-open", Title: "Open", Questions: []domain.Question{{
		ID: "q1", Text: "Wat moet u verlenen aan verkeer van rechts?", Type: domain.OpenQuestion,
		Answers: []domain.Answer{option("q1-exp", "voorrang", true)},
	}}}
	backend := newFakeBackend(exam)
	s := loaded(t, backend)

	assert.ErrorIs(t, s.SelectAnswer("q1-exp"), ErrWrongInput)
	assert.False(t, s.CanSubmit())
	require.NoError(t, s.EnterText("   "))
	assert.False(t, s.CanSubmit(), "blank text keeps submit disabled")
	require.NoError(t, s.EnterText(" voorrang "))
	assert.True(t, s.CanSubmit())

	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)

	require.Equal(t, 1, backend.checkCount())
	req := backend.checks[0]
	require.NotNil(t, req.FreeText)
	assert.Equal(t, "voorrang", *req.FreeText)
	assert.Nil(t, req.SelectedAnswerID)
}

func TestSession_DragDropMarkerAndListConverge(t *testing.T) {
	exam := &domain.Exam{ID: "exam-dd", Title: "Gevaar", Questions: []domain.Question{{
		ID: "q1", Text: "Klik op het gevaar", Type: domain.DragDrop, ImageURL: "/img/kruising.jpg",
		Answers: []domain.Answer{
			{ID: "m1", Text: "Fietser", IsCorrect: true, Position: &domain.Position{X: 30, Y: 40}},
			{ID: "m2", Text: "Voetganger", Position: &domain.Position{X: 70, Y: 60}},
		},
	}}}
	backend := newFakeBackend(exam)
	s := loaded(t, backend)

	_, err := s.SelectMarkerAt(50, 50)
	assert.ErrorIs(t, err, ErrNoMarker)

	id, err := s.SelectMarkerAt(69, 61)
	require.NoError(t, err)
	assert.Equal(t, "m2", id)

	id, err = s.SelectMarkerAt(31, 39)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
	viaMarker := s.Snapshot().Selection

	require.NoError(t, s.SelectAnswer("m1"))
	assert.Equal(t, viaMarker, s.Snapshot().Selection)

	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)
	assert.Equal(t, "m1", *backend.checks[0].SelectedAnswerID)
}

func TestSession_SelectionRules(t *testing.T) {
	backend := newFakeBackend(twoQuestionExam())
	s := New("exam-1", backend, backend)

	assert.ErrorIs(t, s.SelectAnswer("q1-a"), ErrInvalidState, "not loaded yet")
	require.NoError(t, s.Load(context.Background()))
	assert.ErrorIs(t, s.Load(context.Background()), ErrInvalidState)

	assert.False(t, s.CanSubmit())
	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNoSelection)
	assert.Zero(t, backend.checkCount())

	assert.ErrorIs(t, s.SelectAnswer("q2-a"), ErrUnknownAnswer)
	assert.ErrorIs(t, s.EnterText("text"), ErrWrongInput)
	_, err = s.SelectMarkerAt(10, 10)
	assert.ErrorIs(t, err, ErrWrongInput)

	require.NoError(t, s.SelectAnswer("q1-a"))
	require.NoError(t, s.SelectAnswer("q1-b"), "selection may change before submit")
	assert.ErrorIs(t, s.Next(context.Background()), ErrInvalidState)
}

func TestSession_AtMostOnceCheck(t *testing.T) {
	backend := newFakeBackend(twoQuestionExam())
	s := loaded(t, backend)

	answer(t, s, "q1-b")
	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.ErrorIs(t, s.SelectAnswer("q1-a"), ErrAlreadySubmitted, "submitted selection is immutable")
	assert.Equal(t, 1, backend.checkCount())
	assert.Equal(t, "q1-b", s.Snapshot().Selection.AnswerID)
}

func TestSession_ConcurrentSubmitCallsScorerOnce(t *testing.T) {
	backend := newFakeBackend(twoQuestionExam())
	backend.gate = make(chan struct{})
	s := loaded(t, backend)
	require.NoError(t, s.SelectAnswer("q1-b"))

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Submit(context.Background())
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return s.Snapshot().State == Checking }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(errs) == callers-1 }, time.Second, time.Millisecond)
	close(backend.gate)
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadySubmitted):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, dup)
	assert.Equal(t, 1, backend.checkCount())
	assert.Equal(t, 1, s.Snapshot().Score)
}

func TestSession_CheckFailureIsRetriable(t *testing.T) {
	backend := newFakeBackend(twoQuestionExam())
	backend.checkErr = errors.New("502 bad gateway")
	s := loaded(t, backend)
	require.NoError(t, s.SelectAnswer("q1-b"))

	_, err := s.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeCheck))

	snap := s.Snapshot()
	assert.Equal(t, Answering, snap.State)
	assert.Equal(t, "q1-b", snap.Selection.AnswerID, "selection survives the failure")
	assert.Zero(t, snap.Score)
	assert.True(t, domain.HasCode(snap.Err, domain.CodeCheck))
	assert.True(t, snap.CanSubmit)

	backend.mu.Lock()
	backend.checkErr = nil
	backend.mu.Unlock()
	res, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)
	assert.Equal(t, 1, s.Snapshot().Score)
	assert.Nil(t, s.Snapshot().Err)
}

func TestSession_LoadFailureIsTerminal(t *testing.T) {
	backend := newFakeBackend(twoQuestionExam())
	backend.loadErr = errors.New("404 exam not found")
	s := New("exam-1", backend, backend)

	err := s.Load(context.Background())
	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.CodeLoad))
	assert.Equal(t, Failed, s.Snapshot().State)

	assert.ErrorIs(t, s.Load(context.Background()), ErrInvalidState)
	assert.ErrorIs(t, s.SelectAnswer("q1-a"), ErrInvalidState)
	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Zero(t, backend.checkCount())
}

func TestSession_EmptyExamFailsToLoad(t *testing.T) {
	backend := newFakeBackend(&domain.Exam{ID: "empty", Title: "Leeg"})
	s := New("empty", backend, backend)
	err := s.Load(context.Background())
	assert.True(t, domain.HasCode(err, domain.CodeLoad))
}

func TestSession_StaleResponseDiscardedAfterAbandon(t *testing.T) {
	backend := newFakeBackend(twoQuestionExam())
	backend.gate = make(chan struct{})
	s := loaded(t, backend)
	require.NoError(t, s.SelectAnswer("q1-b"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return backend.checkCount() == 1 }, time.Second, time.Millisecond)

	s.Abandon()
	close(backend.gate)

	assert.ErrorIs(t, <-done, ErrStaleResponse)
	snap := s.Snapshot()
	assert.Equal(t, Abandoned, snap.State)
	assert.Zero(t, snap.Score, "late correct answer must not be scored")
	assert.Zero(t, atomic.LoadInt32(&backend.finishes))
}

func TestSession_ExpireDuringCheckDiscardsResponse(t *testing.T) {
	backend := newFakeBackend(twoQuestionExam())
	backend.gate = make(chan struct{})
	s := loaded(t, backend)
	require.NoError(t, s.SelectAnswer("q1-b"))

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool { return backend.checkCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, s.Expire(context.Background()))
	close(backend.gate)
	assert.ErrorIs(t, <-done, ErrStaleResponse)

	result, err := s.Result()
	require.NoError(t, err)
	assert.True(t, result.Expired)
	assert.Zero(t, result.Score)
	assert.Equal(t, 2, result.Total)
	waitFinish(t, backend)
}

func TestSession_DeadlineEndsAttempt(t *testing.T) {
	exam := twoQuestionExam()
	limit := 30
	exam.TimeLimitMinutes = &limit
	backend := newFakeBackend(exam)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time { mu.Lock(); defer mu.Unlock(); return now }
	s := loaded(t, backend, WithClock(clock))
	assert.Equal(t, now.Add(30*time.Minute), s.Snapshot().Deadline)

	answer(t, s, "q1-b")
	mu.Lock()
	now = now.Add(31 * time.Minute)
	mu.Unlock()

	assert.ErrorIs(t, s.Next(context.Background()), ErrTimeExpired)
	result, err := s.Result()
	require.NoError(t, err)
	assert.True(t, result.Expired)
	assert.Equal(t, 1, result.Score)
	assert.False(t, result.Outcomes[1].Answered)
	waitFinish(t, backend)
}

func TestSession_FinishFailureDoesNotBlockResult(t *testing.T) {
	exam := twoQuestionExam()
	exam.Questions = exam.Questions[:1]
	scorer := new(mockScorer)
	source := newFakeBackend(exam)
	scorer.On("CheckAnswer", mock.Anything, mock.Anything).
		Return(&domain.CheckResult{IsCorrect: true, CorrectAnswerText: "De auto van rechts"}, nil).Once()
	scorer.On("FinishExam", mock.Anything, "exam-1", 1, 1).
		Return(nil, errors.New("503 unavailable")).Once()

	s := New("exam-1", source, scorer)
	require.NoError(t, s.Load(context.Background()))
	require.NoError(t, s.SelectAnswer("q1-b"))
	_, err := s.Submit(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Next(context.Background()))

	result, err := s.Result()
	require.NoError(t, err)
	assert.True(t, result.Passed)

	_, err = s.WaitReported(context.Background())
	assert.Error(t, err)
	assert.Equal(t, Finished, s.Snapshot().State)
	scorer.AssertExpectations(t)
}

func TestSession_ScoreMonotonicRandomized(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for run := 0; run < 50; run++ {
		n := 1 + r.Intn(10)
		exam := &domain.Exam{ID: "rnd", Title: "Random"}
		for i := 0; i < n; i++ {
			id := string(rune('a' + i))
			exam.Questions = append(exam.Questions, domain.Question{
				ID: id, Text: id, Type: domain.MultipleChoice,
				Answers: []domain.Answer{option(id+"-0", "x", true), option(id+"-1", "y", false)},
			})
		}
		backend := newFakeBackend(exam)
		s := loaded(t, backend)

		prev := 0
		for i := 0; i < n; i++ {
			pick := exam.Questions[i].Answers[r.Intn(2)].ID
			answer(t, s, pick)
			score := s.Snapshot().Score
			assert.Contains(t, []int{prev, prev + 1}, score)
			prev = score
			require.NoError(t, s.Next(context.Background()))
		}
		result, err := s.Result()
		require.NoError(t, err)
		assert.Equal(t, prev, result.Score)
		waitFinish(t, backend)
		assert.Equal(t, int32(1), atomic.LoadInt32(&backend.finishes))
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "answering", Answering.String())
	assert.Equal(t, "abandoned", Abandoned.String())
	assert.Equal(t, "state(42)", State(42).String())
}

type mockScorer struct {
	mock.Mock
}

func (m *mockScorer) CheckAnswer(ctx context.Context, req domain.CheckAnswerRequest) (*domain.CheckResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckResult), args.Error(1)
}

func (m *mockScorer) FinishExam(ctx context.Context, examID string, score, total int) (*domain.AttemptRecord, error) {
	args := m.Called(ctx, examID, score, total)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AttemptRecord), args.Error(1)
}
