package handler

import (
	"slagie/internal/domain"
	"slagie/internal/logger"
	"slagie/internal/middleware"
	"slagie/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// StudentHandler serves published exams and scores answers.
type StudentHandler struct {
	exams   service.ExamService
	scoring service.ScoringService
}

// NewStudentHandler creates a new StudentHandler instance
func NewStudentHandler(exams service.ExamService, scoring service.ScoringService) *StudentHandler {
	return &StudentHandler{exams: exams, scoring: scoring}
}

// FinishExamRequest is the body of POST /exams/{id}/finish.
type FinishExamRequest struct {
	Score int `json:"score"`
	Total int `json:"total"`
}

// ListPublishedExams godoc
// @Summary List published exams
// @Description Returns the headers of every published exam
// @Tags student
// @Produce json
// @Success 200 {array} domain.Exam
// @Failure 500 {object} middleware.ErrorResponse
// @Router /student/exams [get]
func (h *StudentHandler) ListPublishedExams(c *fiber.Ctx) error {
	exams, err := h.exams.ListPublishedExams(c.UserContext())
	if err != nil {
		return err
	}
	if exams == nil {
		exams = []*domain.Exam{}
	}
	return c.JSON(exams)
}

// GetPublishedExam godoc
// @Summary Get a published exam
// @Description Returns the exam header with its question count, without questions
// @Tags student
// @Produce json
// @Param id path string true "Exam ID (ULID)"
// @Success 200 {object} domain.Exam
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /student/exams/{id} [get]
func (h *StudentHandler) GetPublishedExam(c *fiber.Ctx) error {
	exam, err := h.exams.GetPublishedExam(c.UserContext(), pathID(c))
	if err != nil {
		return err
	}
	header := *exam
	header.QuestionCount = len(exam.Questions)
	header.Questions = nil
	return c.JSON(header)
}

// StartExam godoc
// @Summary Start an exam
// @Description Returns the published exam with its ordered questions. Correctness and explanations are hidden.
// @Tags student
// @Produce json
// @Param id path string true "Exam ID (ULID)"
// @Success 200 {object} domain.Exam
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /student/exams/{id}/start [get]
func (h *StudentHandler) StartExam(c *fiber.Ctx) error {
	exam, err := h.exams.GetPublishedExam(c.UserContext(), pathID(c))
	if err != nil {
		return err
	}
	logger.Get().Debug("Exam started",
		zap.String("exam_id", exam.ID),
		zap.String("user_id", middleware.UserID(c)),
		zap.Int("questions", len(exam.Questions)),
	)
	return c.JSON(exam)
}

// CheckAnswer godoc
// @Summary Check an answer
// @Description Scores one answer. Exactly one of selected_answer_id and free_text must be set.
// @Tags student
// @Accept json
// @Produce json
// @Param request body domain.CheckAnswerRequest true "Answer"
// @Success 200 {object} domain.CheckResult
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Failure 500 {object} middleware.ErrorResponse
// @Router /student/exams/check-answer [post]
func (h *StudentHandler) CheckAnswer(c *fiber.Ctx) error {
	var req domain.CheckAnswerRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.NewInvalidInputError("Invalid request body")
	}
	result, err := h.scoring.CheckAnswer(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// FinishExam godoc
// @Summary Finish an exam
// @Description Records the final score of an attempt. Anonymous attempts are stored without a user.
// @Tags student
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param id path string true "Exam ID (ULID)"
// @Param request body FinishExamRequest true "Score"
// @Success 200 {object} domain.AttemptRecord
// @Failure 400 {object} middleware.ValidationErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /exams/{id}/finish [post]
func (h *StudentHandler) FinishExam(c *fiber.Ctx) error {
	var req FinishExamRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.NewInvalidInputError("Invalid request body")
	}
	record, err := h.scoring.FinishExam(c.UserContext(), middleware.UserID(c), pathID(c), req.Score, req.Total)
	if err != nil {
		return err
	}
	return c.JSON(record)
}

// pathID prefers the id checked by ValidateIDParam.
func pathID(c *fiber.Ctx) string {
	if id, ok := c.Locals(middleware.ValidatedIDKey).(string); ok && id != "" {
		return id
	}
	return c.Params("id")
}
