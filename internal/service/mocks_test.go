package service

import (
	"context"
	"time"

	"slagie/internal/domain"

	"github.com/stretchr/testify/mock"
)

// --- MockExamRepository ---
type MockExamRepository struct {
	mock.Mock
}

func (m *MockExamRepository) ListExams(ctx context.Context, publishedOnly bool) ([]*domain.Exam, error) {
	args := m.Called(ctx, publishedOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Exam), args.Error(1)
}

func (m *MockExamRepository) GetExam(ctx context.Context, id string) (*domain.Exam, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Exam), args.Error(1)
}

func (m *MockExamRepository) CreateExam(ctx context.Context, exam *domain.Exam) error {
	args := m.Called(ctx, exam)
	return args.Error(0)
}

func (m *MockExamRepository) UpdateExam(ctx context.Context, exam *domain.Exam) error {
	args := m.Called(ctx, exam)
	return args.Error(0)
}

func (m *MockExamRepository) SetPublished(ctx context.Context, id string, published bool, at *time.Time) error {
	args := m.Called(ctx, id, published, at)
	return args.Error(0)
}

func (m *MockExamRepository) DeleteExam(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockExamRepository) GetQuestion(ctx context.Context, questionID string) (*domain.Question, string, error) {
	args := m.Called(ctx, questionID)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*domain.Question), args.String(1), args.Error(2)
}

// --- MockAttemptRepository ---
type MockAttemptRepository struct {
	mock.Mock
}

func (m *MockAttemptRepository) CreateAttempt(ctx context.Context, attempt *domain.AttemptRecord) error {
	args := m.Called(ctx, attempt)
	return args.Error(0)
}

func (m *MockAttemptRepository) ListAttemptsByExam(ctx context.Context, examID string, limit int) ([]*domain.AttemptRecord, error) {
	args := m.Called(ctx, examID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AttemptRecord), args.Error(1)
}

// --- passThroughTx runs fn directly ---
type passThroughTx struct {
	calls int
}

func (p *passThroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

// --- MockCache ---
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *MockCache) Delete(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func (m *MockCache) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- MockAnswerJudge ---
type MockAnswerJudge struct {
	mock.Mock
}

func (m *MockAnswerJudge) Judge(ctx context.Context, questionText, expected, given string) (bool, error) {
	args := m.Called(ctx, questionText, expected, given)
	return args.Bool(0), args.Error(1)
}
