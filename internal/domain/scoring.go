package domain

import (
	"context"
	"strings"
	"time"
)

// CheckAnswerRequest carries exactly one of SelectedAnswerID or FreeText.
type CheckAnswerRequest struct {
	QuestionID       string  `json:"question_id"`
	SelectedAnswerID *string `json:"selected_answer_id,omitempty"`
	FreeText         *string `json:"free_text,omitempty"`
}

// Validate enforces the exactly-one rule and a non-empty question id.
func (r CheckAnswerRequest) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(r.QuestionID) == "" {
		errs = append(errs, NewMissingFieldError("question_id"))
	}
	hasID := r.SelectedAnswerID != nil && *r.SelectedAnswerID != ""
	hasText := r.FreeText != nil && strings.TrimSpace(*r.FreeText) != ""
	switch {
	case hasID && hasText:
		errs = append(errs, NewValidationError("selected_answer_id", "only one of selected_answer_id and free_text may be set"))
	case !hasID && !hasText:
		errs = append(errs, NewValidationError("selected_answer_id", "one of selected_answer_id and free_text is required"))
	}
	return errs.Err()
}

// CheckResult is the authoritative verdict for one answered question.
type CheckResult struct {
	IsCorrect         bool   `json:"is_correct"`
	CorrectAnswerID   string `json:"correct_answer_id,omitempty"`
	CorrectAnswerText string `json:"correct_answer_text"`
	Explanation       string `json:"explanation,omitempty"`
}

// AttemptRecord is the persisted outcome of one finished attempt.
type AttemptRecord struct {
	ID          string    `json:"id" db:"id"`
	ExamID      string    `json:"exam_id" db:"exam_id"`
	UserID      string    `json:"user_id,omitempty" db:"user_id"`
	Score       int       `json:"score" db:"score"`
	Total       int       `json:"total" db:"total"`
	Passed      bool      `json:"passed" db:"passed"`
	Percentage  float64   `json:"percentage" db:"percentage"`
	CompletedAt time.Time `json:"completed_at" db:"completed_at"`
}

// ScoringCollaborator is the authoritative side of answer checking.
type ScoringCollaborator interface {
	CheckAnswer(ctx context.Context, req CheckAnswerRequest) (*CheckResult, error)
	FinishExam(ctx context.Context, examID string, score, total int) (*AttemptRecord, error)
}

// ExamSource feeds a quiz session.
type ExamSource interface {
	// FetchExamQuestions returns the published exam with its ordered questions, correctness hidden.
	FetchExamQuestions(ctx context.Context, examID string) (*Exam, error)
}

// ExamStore is the persistence collaborator of the authoring machine.
type ExamStore interface {
	FetchExam(ctx context.Context, examID string) (*Exam, error)
	SaveExam(ctx context.Context, exam *Exam) (*Exam, error)
	UpdateExam(ctx context.Context, examID string, exam *Exam) (*Exam, error)
	Publish(ctx context.Context, examID string) (*Exam, error)
	Unpublish(ctx context.Context, examID string) (*Exam, error)
}
