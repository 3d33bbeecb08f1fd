package handler

import (
	"slagie/internal/middleware"
	"slagie/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Student *StudentHandler
	Exam    *ExamHandler
	Health  *HealthHandler
}

// RegisterRoutes mounts the API on router, normally the /api group.
func RegisterRoutes(router fiber.Router, h Handlers, tokens service.TokenService) {
	validator := middleware.NewValidationMiddleware()
	withID := validator.ValidateIDParam()

	if h.Health != nil {
		router.Get("/health", h.Health.Health)
	}

	student := router.Group("/student/exams", middleware.OptionalAuth(tokens))
	student.Get("/", h.Student.ListPublishedExams)
	student.Post("/check-answer", h.Student.CheckAnswer)
	student.Get("/:id", withID, h.Student.GetPublishedExam)
	student.Get("/:id/start", withID, h.Student.StartExam)

	router.Post("/exams/:id/finish", middleware.OptionalAuth(tokens), withID, h.Student.FinishExam)

	admin := router.Group("/admin/exams", middleware.Protected(tokens))
	admin.Get("/", h.Exam.ListExams)
	admin.Post("/", h.Exam.CreateExam)
	admin.Get("/:id", withID, h.Exam.GetExam)
	admin.Put("/:id", withID, h.Exam.UpdateExam)
	admin.Delete("/:id", withID, h.Exam.DeleteExam)
	admin.Put("/:id/publish", withID, h.Exam.PublishExam)
	admin.Put("/:id/unpublish", withID, h.Exam.UnpublishExam)
	admin.Get("/:id/attempts", withID, h.Exam.ListAttempts)
}
