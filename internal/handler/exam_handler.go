package handler

import (
	"slagie/internal/domain"
	"slagie/internal/logger"
	"slagie/internal/middleware"
	"slagie/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const defaultAttemptLimit = 50

// ExamHandler exposes exam authoring to administrators.
type ExamHandler struct {
	exams   service.ExamService
	scoring service.ScoringService
}

// NewExamHandler creates a new ExamHandler instance
func NewExamHandler(exams service.ExamService, scoring service.ScoringService) *ExamHandler {
	return &ExamHandler{exams: exams, scoring: scoring}
}

// ListExams godoc
// @Summary List all exams
// @Description Returns every exam, published or not
// @Tags admin
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {array} domain.Exam
// @Failure 401 {object} middleware.ErrorResponse
// @Router /admin/exams [get]
func (h *ExamHandler) ListExams(c *fiber.Ctx) error {
	exams, err := h.exams.ListExams(c.UserContext())
	if err != nil {
		return err
	}
	if exams == nil {
		exams = []*domain.Exam{}
	}
	return c.JSON(exams)
}

// GetExam godoc
// @Summary Get an exam
// @Description Returns the exam with correctness flags, for editing
// @Tags admin
// @Security ApiKeyAuth
// @Produce json
// @Param id path string true "Exam ID (ULID)"
// @Success 200 {object} domain.Exam
// @Failure 404 {object} middleware.ErrorResponse
// @Router /admin/exams/{id} [get]
func (h *ExamHandler) GetExam(c *fiber.Ctx) error {
	exam, err := h.exams.GetExam(c.UserContext(), pathID(c))
	if err != nil {
		return err
	}
	return c.JSON(exam)
}

// CreateExam godoc
// @Summary Create an exam
// @Description Saves a new exam with all its questions and answers
// @Tags admin
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param exam body domain.Exam true "Exam"
// @Success 201 {object} domain.Exam
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Router /admin/exams [post]
func (h *ExamHandler) CreateExam(c *fiber.Ctx) error {
	var exam domain.Exam
	if err := c.BodyParser(&exam); err != nil {
		return domain.NewInvalidInputError("Invalid exam payload")
	}
	saved, err := h.exams.CreateExam(c.UserContext(), &exam)
	if err != nil {
		return err
	}
	logger.Get().Info("Exam created",
		zap.String("exam_id", saved.ID),
		zap.String("author", middleware.UserID(c)),
	)
	return c.Status(fiber.StatusCreated).JSON(saved)
}

// UpdateExam godoc
// @Summary Update an exam
// @Description Replaces the exam, its questions and answers
// @Tags admin
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param id path string true "Exam ID (ULID)"
// @Param exam body domain.Exam true "Exam"
// @Success 200 {object} domain.Exam
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /admin/exams/{id} [put]
func (h *ExamHandler) UpdateExam(c *fiber.Ctx) error {
	var exam domain.Exam
	if err := c.BodyParser(&exam); err != nil {
		return domain.NewInvalidInputError("Invalid exam payload")
	}
	saved, err := h.exams.UpdateExam(c.UserContext(), pathID(c), &exam)
	if err != nil {
		return err
	}
	return c.JSON(saved)
}

// PublishExam godoc
// @Summary Publish an exam
// @Tags admin
// @Security ApiKeyAuth
// @Produce json
// @Param id path string true "Exam ID (ULID)"
// @Success 200 {object} domain.Exam
// @Failure 400 {object} middleware.ValidationErrorResponse "Exam is incomplete"
// @Failure 404 {object} middleware.ErrorResponse
// @Router /admin/exams/{id}/publish [put]
func (h *ExamHandler) PublishExam(c *fiber.Ctx) error {
	exam, err := h.exams.Publish(c.UserContext(), pathID(c))
	if err != nil {
		return err
	}
	return c.JSON(exam)
}

// UnpublishExam godoc
// @Summary Unpublish an exam
// @Description Turns the exam back into a draft
// @Tags admin
// @Security ApiKeyAuth
// @Produce json
// @Param id path string true "Exam ID (ULID)"
// @Success 200 {object} domain.Exam
// @Failure 404 {object} middleware.ErrorResponse
// @Router /admin/exams/{id}/unpublish [put]
func (h *ExamHandler) UnpublishExam(c *fiber.Ctx) error {
	exam, err := h.exams.Unpublish(c.UserContext(), pathID(c))
	if err != nil {
		return err
	}
	return c.JSON(exam)
}

// DeleteExam godoc
// @Summary Delete an exam
// @Tags admin
// @Security ApiKeyAuth
// @Param id path string true "Exam ID (ULID)"
// @Success 204
// @Failure 404 {object} middleware.ErrorResponse
// @Router /admin/exams/{id} [delete]
func (h *ExamHandler) DeleteExam(c *fiber.Ctx) error {
	id := pathID(c)
	if err := h.exams.DeleteExam(c.UserContext(), id); err != nil {
		return err
	}
	logger.Get().Info("Exam deleted", zap.String("exam_id", id), zap.String("author", middleware.UserID(c)))
	return c.SendStatus(fiber.StatusNoContent)
}

// ListAttempts godoc
// @Summary List attempts of an exam
// @Description Most recent finished attempts first
// @Tags admin
// @Security ApiKeyAuth
// @Produce json
// @Param id path string true "Exam ID (ULID)"
// @Param limit query int false "Maximum number of attempts" default(50)
// @Success 200 {array} domain.AttemptRecord
// @Router /admin/exams/{id}/attempts [get]
func (h *ExamHandler) ListAttempts(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultAttemptLimit)
	if limit <= 0 {
		limit = defaultAttemptLimit
	}
	attempts, err := h.scoring.ListAttempts(c.UserContext(), pathID(c), limit)
	if err != nil {
		return err
	}
	if attempts == nil {
		attempts = []*domain.AttemptRecord{}
	}
	return c.JSON(attempts)
}
