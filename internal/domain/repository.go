package domain

import (
	"context"
	"time"
)

// ExamRepository persists exams with their questions and answers.
// Getters return (nil, nil) when the row does not exist.
type ExamRepository interface {
	// ListExams returns exam headers with QuestionCount set and Questions nil.
	ListExams(ctx context.Context, publishedOnly bool) ([]*Exam, error)
	GetExam(ctx context.Context, id string) (*Exam, error)
	// CreateExam inserts the exam and its whole question tree.
	CreateExam(ctx context.Context, exam *Exam) error
	// UpdateExam overwrites the exam header and replaces its question tree.
	UpdateExam(ctx context.Context, exam *Exam) error
	SetPublished(ctx context.Context, id string, published bool, at *time.Time) error
	DeleteExam(ctx context.Context, id string) error
	// GetQuestion returns a question with its answers and the id of its exam.
	GetQuestion(ctx context.Context, questionID string) (*Question, string, error)
}

// AttemptRepository stores finished attempts.
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, attempt *AttemptRecord) error
	ListAttemptsByExam(ctx context.Context, examID string, limit int) ([]*AttemptRecord, error)
}

// TransactionManager runs fn inside one database transaction.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
