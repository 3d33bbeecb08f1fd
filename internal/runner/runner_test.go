package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"slagie/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu        sync.Mutex
	exam      *domain.Exam
	listed    []*domain.Exam
	checkErrs []error
	checks    []domain.CheckAnswerRequest
	finished  []int
}

func (b *fakeBackend) ListPublished(ctx context.Context) ([]*domain.Exam, error) {
	return b.listed, nil
}

func (b *fakeBackend) FetchExamQuestions(ctx context.Context, examID string) (*domain.Exam, error) {
	if b.exam == nil || b.exam.ID != examID {
		return nil, domain.NewNotPublishedError(examID)
	}
	return b.exam.Clone(), nil
}

func (b *fakeBackend) CheckAnswer(ctx context.Context, req domain.CheckAnswerRequest) (*domain.CheckResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checks = append(b.checks, req)
	if len(b.checkErrs) > 0 {
		err := b.checkErrs[0]
		b.checkErrs = b.checkErrs[1:]
		return nil, err
	}
	switch req.QuestionID {
	case "q1":
		return &domain.CheckResult{IsCorrect: *req.SelectedAnswerID == "q1-b", CorrectAnswerText: "Nee", Explanation: "Doorgetrokken streep."}, nil
	default:
		return &domain.CheckResult{IsCorrect: strings.EqualFold(*req.FreeText, "50"), CorrectAnswerText: "50"}, nil
	}
}

func (b *fakeBackend) FinishExam(ctx context.Context, examID string, score, total int) (*domain.AttemptRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finished = append(b.finished, score, total)
	return &domain.AttemptRecord{ID: "attempt-1", ExamID: examID, Score: score, Total: total}, nil
}

func testExam() *domain.Exam {
	return &domain.Exam{
		ID:    "exam-1",
		Title: "Oefenexamen",
		Questions: []domain.Question{
			{ID: "q1", Text: "Mag u hier inhalen?", Type: domain.MultipleChoice, Answers: []domain.Answer{
				{ID: "q1-a", Text: "Ja"}, {ID: "q1-b", Text: "Nee"},
			}},
			{ID: "q2", Text: "Maximumsnelheid binnen de bebouwde kom?", Type: domain.OpenQuestion},
		},
	}
}

func TestRun_PlaysExam(t *testing.T) {
	backend := &fakeBackend{exam: testExam()}
	var out bytes.Buffer

	err := Run(context.Background(), strings.NewReader("b\n50\n"), &out, backend, Config{ExamID: "exam-1"})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Oefenexamen: 2 vragen")
	assert.Contains(t, text, "Vraag 1/2: Mag u hier inhalen?")
	assert.Contains(t, text, "  B. Nee")
	assert.Contains(t, text, "Doorgetrokken streep.")
	assert.Contains(t, text, "Geslaagd: 2/2")
	assert.Contains(t, text, "Resultaat opgeslagen (attempt-1).")
	assert.Equal(t, []int{2, 2}, backend.finished)
}

func TestRun_InvalidChoiceIsReprompted(t *testing.T) {
	backend := &fakeBackend{exam: testExam()}
	var out bytes.Buffer

	err := Run(context.Background(), strings.NewReader("z\na\nveertig\n"), &out, backend, Config{ExamID: "exam-1"})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "! kies een van de opties")
	assert.Contains(t, text, "Fout. Het juiste antwoord is: Nee")
	assert.Contains(t, text, "Gezakt: 0/2")
	assert.Len(t, backend.checks, 2, "invalid input never reaches the backend")
}

func TestRun_CheckFailureAllowsRetry(t *testing.T) {
	backend := &fakeBackend{exam: testExam(), checkErrs: []error{errors.New("connection reset")}}
	var out bytes.Buffer

	err := Run(context.Background(), strings.NewReader("b\nb\n50\n"), &out, backend, Config{ExamID: "exam-1"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "! controle mislukt, probeer het opnieuw")
	assert.Contains(t, out.String(), "Geslaagd: 2/2")
	assert.Len(t, backend.checks, 3)
}

func TestRun_Stop(t *testing.T) {
	backend := &fakeBackend{exam: testExam()}
	var out bytes.Buffer

	err := Run(context.Background(), strings.NewReader("stop\n"), &out, backend, Config{ExamID: "exam-1"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Examen gestopt.")
	assert.Empty(t, backend.finished, "an abandoned attempt is not reported")
}

func TestRun_PicksFromPublishedList(t *testing.T) {
	backend := &fakeBackend{
		exam:   testExam(),
		listed: []*domain.Exam{{ID: "other", Title: "Ander examen"}, {ID: "exam-1", Title: "Oefenexamen", QuestionCount: 2}},
	}
	var out bytes.Buffer

	err := Run(context.Background(), strings.NewReader("7\n2\nb\n50\n"), &out, backend, Config{})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "2. Oefenexamen (2 vragen)")
	assert.Contains(t, text, "Ongeldige keuze.")
	assert.Contains(t, text, "Geslaagd: 2/2")
}

func TestRun_LoadFailure(t *testing.T) {
	backend := &fakeBackend{exam: testExam()}

	err := Run(context.Background(), strings.NewReader(""), &bytes.Buffer{}, backend, Config{ExamID: "missing"})
	assert.True(t, domain.HasCode(err, domain.CodeLoad))
}

func TestRun_InputClosed(t *testing.T) {
	backend := &fakeBackend{exam: testExam()}

	err := Run(context.Background(), strings.NewReader("b\n"), &bytes.Buffer{}, backend, Config{ExamID: "exam-1"})
	assert.Error(t, err)
	assert.Empty(t, backend.finished)
}

func TestParsePoint(t *testing.T) {
	x, y, ok := parsePoint("12.5, 40")
	assert.True(t, ok)
	assert.Equal(t, 12.5, x)
	assert.Equal(t, 40.0, y)

	_, _, ok = parsePoint("A")
	assert.False(t, ok)
	_, _, ok = parsePoint("a,b")
	assert.False(t, ok)
}
