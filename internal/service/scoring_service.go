package service

import (
	"context"
	"math"
	"strings"

	"slagie/internal/domain"
	"slagie/internal/logger"
	"slagie/internal/validation"

	"go.uber.org/zap"
)

// ScoringService is the authoritative side of answer checking and attempt recording.
type ScoringService interface {
	CheckAnswer(ctx context.Context, req domain.CheckAnswerRequest) (*domain.CheckResult, error)
	// FinishExam records an attempt for userID, empty for anonymous users.
	FinishExam(ctx context.Context, userID, examID string, score, total int) (*domain.AttemptRecord, error)
	ListAttempts(ctx context.Context, examID string, limit int) ([]*domain.AttemptRecord, error)
}

type scoringService struct {
	exams     domain.ExamRepository
	attempts  domain.AttemptRepository
	matcher   *AnswerMatcher
	judge     domain.AnswerJudge
	validator *validation.Validator
}

// NewScoringService creates a ScoringService. judge may be nil, in which case
// open answers are decided by the matcher alone.
func NewScoringService(exams domain.ExamRepository, attempts domain.AttemptRepository, matcher *AnswerMatcher, judge domain.AnswerJudge) ScoringService {
	if matcher == nil {
		matcher = NewAnswerMatcher(1)
	}
	return &scoringService{
		exams:     exams,
		attempts:  attempts,
		matcher:   matcher,
		judge:     judge,
		validator: validation.NewValidator(),
	}
}

func (s *scoringService) CheckAnswer(ctx context.Context, req domain.CheckAnswerRequest) (*domain.CheckResult, error) {
	if errs := s.validator.ValidateCheckAnswerRequest(req); len(errs) > 0 {
		return nil, errs
	}

	q, _, err := s.exams.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		return nil, domain.NewInternalError("Failed to get question", err)
	}
	if q == nil {
		return nil, domain.NewQuestionNotFoundError(req.QuestionID)
	}
	kind, err := q.Kind()
	if err != nil {
		return nil, domain.NewInternalError("Stored question has an unknown type", err)
	}

	correct := q.CorrectAnswer()
	if correct == nil {
		return nil, domain.NewInternalError("Question has no correct answer", nil).WithContext("questionID", q.ID)
	}
	result := &domain.CheckResult{
		CorrectAnswerID:   correct.ID,
		CorrectAnswerText: answerText(q, correct),
		Explanation:       q.Explanation,
	}

	switch kind.Input() {
	case domain.InputAnswerID:
		if req.SelectedAnswerID == nil {
			return nil, domain.NewInvalidInputError("question expects selected_answer_id")
		}
		selected := q.AnswerByID(*req.SelectedAnswerID)
		if selected == nil {
			return nil, domain.NewInvalidAnswerError("answer does not belong to question").
				WithContext("questionID", q.ID).
				WithContext("answerID", *req.SelectedAnswerID)
		}
		result.IsCorrect = selected.IsCorrect
	case domain.InputFreeText:
		if req.FreeText == nil {
			return nil, domain.NewInvalidInputError("question expects free_text")
		}
		result.IsCorrect = s.judgeText(ctx, q, correct.Text, *req.FreeText)
	}

	logger.Get().Debug("Answer checked",
		zap.String("questionID", q.ID),
		zap.String("type", string(q.Type)),
		zap.Bool("correct", result.IsCorrect))
	return result, nil
}

// judgeText asks the judge only when the textual comparison fails; a judge
// error keeps the textual verdict.
func (s *scoringService) judgeText(ctx context.Context, q *domain.Question, expected, given string) bool {
	if s.matcher.Match(expected, given) {
		return true
	}
	if s.judge == nil || strings.TrimSpace(given) == "" {
		return false
	}
	ok, err := s.judge.Judge(ctx, q.Text, expected, given)
	if err != nil {
		logger.Get().Warn("Answer judge failed, keeping textual verdict",
			zap.String("questionID", q.ID), zap.Error(err))
		return false
	}
	return ok
}

// answerText is the text shown as the right answer. Hotspot markers usually
// have no text, so their label is used instead.
func answerText(q *domain.Question, a *domain.Answer) string {
	if strings.TrimSpace(a.Text) != "" {
		return a.Text
	}
	for i := range q.Answers {
		if q.Answers[i].ID == a.ID {
			return domain.Label(i)
		}
	}
	return ""
}

func (s *scoringService) FinishExam(ctx context.Context, userID, examID string, score, total int) (*domain.AttemptRecord, error) {
	if errs := s.validator.ValidateFinishRequest(score, total); len(errs) > 0 {
		return nil, errs
	}
	exam, err := s.exams.GetExam(ctx, examID)
	if err != nil {
		return nil, domain.NewInternalError("Failed to get exam", err)
	}
	if exam == nil {
		return nil, domain.NewExamNotFoundError(examID)
	}

	attempt := &domain.AttemptRecord{
		ExamID:     examID,
		UserID:     userID,
		Score:      score,
		Total:      total,
		Passed:     exam.Passed(score, total),
		Percentage: percentage(score, total),
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return nil, domain.NewInternalError("Failed to record attempt", err)
	}

	logger.Get().Info("Exam finished",
		zap.String("examID", examID),
		zap.String("userID", userID),
		zap.Int("score", score),
		zap.Int("total", total),
		zap.Bool("passed", attempt.Passed))
	return attempt, nil
}

func (s *scoringService) ListAttempts(ctx context.Context, examID string, limit int) ([]*domain.AttemptRecord, error) {
	attempts, err := s.attempts.ListAttemptsByExam(ctx, examID, limit)
	if err != nil {
		return nil, domain.NewInternalError("Failed to list attempts", err)
	}
	return attempts, nil
}

func percentage(score, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(score)*10000/float64(total)) / 100
}
