package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"slagie/internal/domain"
	"slagie/internal/logger"
	"slagie/internal/util"

	"go.uber.org/zap"
)

// ExamService manages exams for authors and serves published exams to students.
type ExamService interface {
	ListExams(ctx context.Context) ([]*domain.Exam, error)
	ListPublishedExams(ctx context.Context) ([]*domain.Exam, error)
	// GetExam returns the full exam including correctness, for authors.
	GetExam(ctx context.Context, id string) (*domain.Exam, error)
	// GetPublishedExam returns the student view of a published exam.
	GetPublishedExam(ctx context.Context, id string) (*domain.Exam, error)
	CreateExam(ctx context.Context, exam *domain.Exam) (*domain.Exam, error)
	UpdateExam(ctx context.Context, id string, exam *domain.Exam) (*domain.Exam, error)
	Publish(ctx context.Context, id string) (*domain.Exam, error)
	Unpublish(ctx context.Context, id string) (*domain.Exam, error)
	DeleteExam(ctx context.Context, id string) error
}

type examService struct {
	repo  domain.ExamRepository
	tx    domain.TransactionManager
	cache *ExamCache
	now   func() time.Time
}

// NewExamService creates a new ExamService.
func NewExamService(repo domain.ExamRepository, tx domain.TransactionManager, cache *ExamCache) ExamService {
	if cache == nil {
		cache = NewExamCache(nil, 0)
	}
	return &examService{repo: repo, tx: tx, cache: cache, now: time.Now}
}

func (s *examService) ListExams(ctx context.Context) ([]*domain.Exam, error) {
	exams, err := s.repo.ListExams(ctx, false)
	if err != nil {
		return nil, domain.NewInternalError("Failed to list exams", err)
	}
	return exams, nil
}

func (s *examService) ListPublishedExams(ctx context.Context) ([]*domain.Exam, error) {
	return s.cache.PublishedList(ctx, func(ctx context.Context) ([]*domain.Exam, error) {
		exams, err := s.repo.ListExams(ctx, true)
		if err != nil {
			return nil, domain.NewInternalError("Failed to list published exams", err)
		}
		return exams, nil
	})
}

func (s *examService) GetExam(ctx context.Context, id string) (*domain.Exam, error) {
	exam, err := s.repo.GetExam(ctx, id)
	if err != nil {
		return nil, domain.NewInternalError("Failed to get exam", err)
	}
	if exam == nil {
		return nil, domain.NewExamNotFoundError(id)
	}
	return exam, nil
}

func (s *examService) GetPublishedExam(ctx context.Context, id string) (*domain.Exam, error) {
	return s.cache.Exam(ctx, id, func(ctx context.Context) (*domain.Exam, error) {
		exam, err := s.GetExam(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exam.IsPublished {
			return nil, domain.NewNotPublishedError(id)
		}
		return studentView(exam), nil
	})
}

// studentView strips everything that would give the answers away.
func studentView(exam *domain.Exam) *domain.Exam {
	view := exam.Clone()
	for i := range view.Questions {
		view.Questions[i] = view.Questions[i].StripCorrectness()
	}
	view.QuestionCount = len(view.Questions)
	return view
}

func (s *examService) CreateExam(ctx context.Context, exam *domain.Exam) (*domain.Exam, error) {
	if err := s.prepare(exam); err != nil {
		return nil, err
	}
	exam.ID = util.NewULID()
	now := s.now()
	exam.CreatedAt, exam.UpdatedAt = now, now
	exam.PublishedAt = nil
	if exam.IsPublished {
		exam.PublishedAt = &now
	}

	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return s.repo.CreateExam(ctx, exam)
	})
	if err != nil {
		return nil, domain.NewInternalError("Failed to create exam", err)
	}
	if exam.IsPublished {
		s.cache.Invalidate(ctx, exam.ID)
	}
	logger.Get().Info("Exam created", zap.String("examID", exam.ID), zap.Int("questions", len(exam.Questions)))
	return exam, nil
}

func (s *examService) UpdateExam(ctx context.Context, id string, exam *domain.Exam) (*domain.Exam, error) {
	if err := s.prepare(exam); err != nil {
		return nil, err
	}

	var updated *domain.Exam
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetExam(ctx, id)
		if err != nil {
			return domain.NewInternalError("Failed to get exam", err)
		}
		if current == nil {
			return domain.NewExamNotFoundError(id)
		}

		exam.ID = id
		exam.CreatedAt = current.CreatedAt
		exam.UpdatedAt = s.now()
		switch {
		case !exam.IsPublished:
			exam.PublishedAt = nil
		case current.IsPublished && current.PublishedAt != nil:
			exam.PublishedAt = current.PublishedAt
		default:
			at := exam.UpdatedAt
			exam.PublishedAt = &at
		}

		if err := s.repo.UpdateExam(ctx, exam); err != nil {
			return domain.NewInternalError("Failed to update exam", err)
		}
		updated = exam
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, id)
	logger.Get().Info("Exam updated", zap.String("examID", id), zap.Int("questions", len(exam.Questions)))
	return updated, nil
}

// prepare validates an incoming exam and normalises it for storage.
func (s *examService) prepare(exam *domain.Exam) error {
	if exam == nil {
		return domain.NewInvalidInputError("exam payload is required")
	}
	exam.Title = strings.TrimSpace(exam.Title)
	if err := exam.ValidateTitle(); err != nil {
		return err
	}
	var errs domain.ValidationErrors
	for i := range exam.Questions {
		if _, err := exam.Questions[i].Kind(); err != nil {
			errs = append(errs, domain.NewValidationError(fmt.Sprintf("questions[%d].type", i), err.Error()))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	if exam.IsPublished {
		if err := exam.ValidatePublishable(); err != nil {
			return err
		}
	}

	if exam.TimeLimitMinutes == nil {
		limit := domain.DefaultTimeLimitMinutes
		exam.TimeLimitMinutes = &limit
	}
	if strings.TrimSpace(exam.Category) == "" {
		exam.Category = domain.DefaultCategory
	}
	assignIDs(exam)
	exam.ReindexOrder()
	return nil
}

// assignIDs gives every question and answer without a valid ULID a fresh one.
func assignIDs(exam *domain.Exam) {
	for i := range exam.Questions {
		q := &exam.Questions[i]
		if !util.IsULID(q.ID) {
			q.ID = util.NewULID()
		}
		for j := range q.Answers {
			a := &q.Answers[j]
			if !util.IsULID(a.ID) {
				a.ID = util.NewULID()
			}
			if a.Position != nil {
				p := a.Position.Clamp()
				a.Position = &p
			}
		}
	}
}

func (s *examService) Publish(ctx context.Context, id string) (*domain.Exam, error) {
	exam, err := s.GetExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := exam.ValidatePublishable(); err != nil {
		return nil, err
	}
	if exam.IsPublished {
		return exam, nil
	}

	now := s.now()
	if err := s.repo.SetPublished(ctx, id, true, &now); err != nil {
		return nil, domain.NewInternalError("Failed to publish exam", err)
	}
	s.cache.Invalidate(ctx, id)
	logger.Get().Info("Exam published", zap.String("examID", id))

	exam.IsPublished = true
	exam.PublishedAt = &now
	exam.UpdatedAt = now
	return exam, nil
}

func (s *examService) Unpublish(ctx context.Context, id string) (*domain.Exam, error) {
	exam, err := s.GetExam(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exam.IsPublished {
		return exam, nil
	}

	if err := s.repo.SetPublished(ctx, id, false, nil); err != nil {
		return nil, domain.NewInternalError("Failed to unpublish exam", err)
	}
	s.cache.Invalidate(ctx, id)
	logger.Get().Info("Exam unpublished", zap.String("examID", id))

	exam.IsPublished = false
	exam.PublishedAt = nil
	exam.UpdatedAt = s.now()
	return exam, nil
}

func (s *examService) DeleteExam(ctx context.Context, id string) error {
	if _, err := s.GetExam(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteExam(ctx, id); err != nil {
		return domain.NewInternalError("Failed to delete exam", err)
	}
	s.cache.Invalidate(ctx, id)
	logger.Get().Info("Exam deleted", zap.String("examID", id))
	return nil
}
