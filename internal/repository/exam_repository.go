package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"slagie/internal/domain"
	"slagie/internal/repository/models"
	"slagie/internal/util"
)

const examColumns = `e.id "id",
		e.title "title",
		e.description "description",
		e.cover_image "cover_image",
		e.time_limit_minutes "time_limit_minutes",
		e.passing_score_percent "passing_score_percent",
		e.category "category",
		e.is_published "is_published",
		e.created_at "created_at",
		e.updated_at "updated_at",
		e.published_at "published_at"`

const questionColumns = `q.id "id",
		q.exam_id "exam_id",
		q.question_text "question_text",
		q.image_url "image_url",
		q.question_type "question_type",
		q.explanation "explanation",
		q.category "category",
		q.sort_order "sort_order"`

const answerColumns = `a.id "id",
		a.question_id "question_id",
		a.answer_text "answer_text",
		a.is_correct "is_correct",
		a.sort_order "sort_order",
		a.position_x "position_x",
		a.position_y "position_y"`

// ExamDatabaseAdapter implements domain.ExamRepository on Oracle through sqlx.
// Every method runs on the transaction carried by ctx when there is one.
type ExamDatabaseAdapter struct {
	db DBTX
}

// NewExamDatabaseAdapter creates a new instance of ExamDatabaseAdapter
func NewExamDatabaseAdapter(db DBTX) *ExamDatabaseAdapter {
	return &ExamDatabaseAdapter{db: db}
}

var _ domain.ExamRepository = (*ExamDatabaseAdapter)(nil)

// ListExams implements domain.ExamRepository
func (a *ExamDatabaseAdapter) ListExams(ctx context.Context, publishedOnly bool) ([]*domain.Exam, error) {
	query := `SELECT ` + examColumns + `,
		(SELECT COUNT(*) FROM exam_questions q WHERE q.exam_id = e.id) "question_count"
	FROM exams e
	WHERE e.deleted_at IS NULL`
	var args []interface{}
	if publishedOnly {
		query += ` AND e.is_published = :1`
		args = append(args, 1)
	}
	query += ` ORDER BY e.created_at DESC`

	var rows []models.Exam
	if err := GetExecutor(ctx, a.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}
	exams := make([]*domain.Exam, 0, len(rows))
	for i := range rows {
		exams = append(exams, toDomainExam(&rows[i]))
	}
	return exams, nil
}

// GetExam implements domain.ExamRepository
func (a *ExamDatabaseAdapter) GetExam(ctx context.Context, id string) (*domain.Exam, error) {
	db := GetExecutor(ctx, a.db)

	var row models.Exam
	query := `SELECT ` + examColumns + `
	FROM exams e
	WHERE e.id = :1 AND e.deleted_at IS NULL`
	if err := db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get exam %s: %w", id, err)
	}
	exam := toDomainExam(&row)

	var questions []models.ExamQuestion
	qQuery := `SELECT ` + questionColumns + `
	FROM exam_questions q
	WHERE q.exam_id = :1
	ORDER BY q.sort_order`
	if err := db.SelectContext(ctx, &questions, qQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get questions of exam %s: %w", id, err)
	}

	var answers []models.ExamAnswer
	aQuery := `SELECT ` + answerColumns + `
	FROM exam_answers a
	JOIN exam_questions q ON q.id = a.question_id
	WHERE q.exam_id = :1
	ORDER BY q.sort_order, a.sort_order`
	if err := db.SelectContext(ctx, &answers, aQuery, id); err != nil {
		return nil, fmt.Errorf("failed to get answers of exam %s: %w", id, err)
	}

	byQuestion := make(map[string][]domain.Answer, len(questions))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = append(byQuestion[answers[i].QuestionID], toDomainAnswer(&answers[i]))
	}
	exam.Questions = make([]domain.Question, 0, len(questions))
	for i := range questions {
		q := toDomainQuestion(&questions[i])
		q.Answers = byQuestion[q.ID]
		exam.Questions = append(exam.Questions, q)
	}
	exam.QuestionCount = len(exam.Questions)
	return exam, nil
}

// CreateExam implements domain.ExamRepository
func (a *ExamDatabaseAdapter) CreateExam(ctx context.Context, exam *domain.Exam) error {
	m := fromDomainExam(exam)
	query := `INSERT INTO exams (id, title, description, cover_image, time_limit_minutes, passing_score_percent, category, is_published, created_at, updated_at, published_at)
	VALUES (:1, :2, :3, :4, :5, :6, :7, :8, :9, :10, :11)`
	_, err := GetExecutor(ctx, a.db).ExecContext(ctx, query,
		m.ID, m.Title, m.Description, m.CoverImage, m.TimeLimitMinutes, m.PassingScorePercent,
		m.Category, m.IsPublished, m.CreatedAt, m.UpdatedAt, m.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert exam: %w", err)
	}
	return a.insertQuestions(ctx, exam)
}

// UpdateExam implements domain.ExamRepository
func (a *ExamDatabaseAdapter) UpdateExam(ctx context.Context, exam *domain.Exam) error {
	db := GetExecutor(ctx, a.db)
	m := fromDomainExam(exam)
	query := `UPDATE exams SET title = :1, description = :2, cover_image = :3, time_limit_minutes = :4,
		passing_score_percent = :5, category = :6, is_published = :7, updated_at = :8, published_at = :9
	WHERE id = :10 AND deleted_at IS NULL`
	if _, err := db.ExecContext(ctx, query,
		m.Title, m.Description, m.CoverImage, m.TimeLimitMinutes, m.PassingScorePercent,
		m.Category, m.IsPublished, m.UpdatedAt, m.PublishedAt, m.ID,
	); err != nil {
		return fmt.Errorf("failed to update exam %s: %w", exam.ID, err)
	}

	// Answers go first: exam_answers references exam_questions.
	if _, err := db.ExecContext(ctx,
		`DELETE FROM exam_answers WHERE question_id IN (SELECT id FROM exam_questions WHERE exam_id = :1)`, exam.ID); err != nil {
		return fmt.Errorf("failed to delete answers of exam %s: %w", exam.ID, err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM exam_questions WHERE exam_id = :1`, exam.ID); err != nil {
		return fmt.Errorf("failed to delete questions of exam %s: %w", exam.ID, err)
	}
	return a.insertQuestions(ctx, exam)
}

func (a *ExamDatabaseAdapter) insertQuestions(ctx context.Context, exam *domain.Exam) error {
	db := GetExecutor(ctx, a.db)
	qQuery := `INSERT INTO exam_questions (id, exam_id, question_text, image_url, question_type, explanation, category, sort_order)
	VALUES (:1, :2, :3, :4, :5, :6, :7, :8)`
	aQuery := `INSERT INTO exam_answers (id, question_id, answer_text, is_correct, sort_order, position_x, position_y)
	VALUES (:1, :2, :3, :4, :5, :6, :7)`

	for i := range exam.Questions {
		q := fromDomainQuestion(exam.ID, &exam.Questions[i])
		if _, err := db.ExecContext(ctx, qQuery,
			q.ID, q.ExamID, q.Text, q.ImageURL, q.QuestionType, q.Explanation, q.Category, q.SortOrder,
		); err != nil {
			return fmt.Errorf("failed to insert question %d of exam %s: %w", i, exam.ID, err)
		}
		for j := range exam.Questions[i].Answers {
			ans := fromDomainAnswer(q.ID, &exam.Questions[i].Answers[j])
			if _, err := db.ExecContext(ctx, aQuery,
				ans.ID, ans.QuestionID, ans.Text, ans.IsCorrect, ans.SortOrder, ans.PositionX, ans.PositionY,
			); err != nil {
				return fmt.Errorf("failed to insert answer %d of question %s: %w", j, q.ID, err)
			}
		}
	}
	return nil
}

// SetPublished implements domain.ExamRepository
func (a *ExamDatabaseAdapter) SetPublished(ctx context.Context, id string, published bool, at *time.Time) error {
	query := `UPDATE exams SET is_published = :1, published_at = :2, updated_at = :3 WHERE id = :4 AND deleted_at IS NULL`
	_, err := GetExecutor(ctx, a.db).ExecContext(ctx, query, util.BoolToInt(published), util.TimePtrToNullTime(at), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set published=%t on exam %s: %w", published, id, err)
	}
	return nil
}

// DeleteExam soft-deletes the exam; its questions stay for attempt history.
func (a *ExamDatabaseAdapter) DeleteExam(ctx context.Context, id string) error {
	query := `UPDATE exams SET deleted_at = :1, is_published = 0 WHERE id = :2 AND deleted_at IS NULL`
	if _, err := GetExecutor(ctx, a.db).ExecContext(ctx, query, time.Now(), id); err != nil {
		return fmt.Errorf("failed to delete exam %s: %w", id, err)
	}
	return nil
}

// GetQuestion implements domain.ExamRepository
func (a *ExamDatabaseAdapter) GetQuestion(ctx context.Context, questionID string) (*domain.Question, string, error) {
	db := GetExecutor(ctx, a.db)

	var row models.ExamQuestion
	query := `SELECT ` + questionColumns + `
	FROM exam_questions q
	JOIN exams e ON e.id = q.exam_id
	WHERE q.id = :1 AND e.deleted_at IS NULL`
	if err := db.GetContext(ctx, &row, query, questionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to get question %s: %w", questionID, err)
	}

	var answers []models.ExamAnswer
	aQuery := `SELECT ` + answerColumns + `
	FROM exam_answers a
	WHERE a.question_id = :1
	ORDER BY a.sort_order`
	if err := db.SelectContext(ctx, &answers, aQuery, questionID); err != nil {
		return nil, "", fmt.Errorf("failed to get answers of question %s: %w", questionID, err)
	}

	q := toDomainQuestion(&row)
	for i := range answers {
		q.Answers = append(q.Answers, toDomainAnswer(&answers[i]))
	}
	return &q, row.ExamID, nil
}

func toDomainExam(m *models.Exam) *domain.Exam {
	return &domain.Exam{
		ID:                  m.ID,
		Title:               m.Title,
		Description:         m.Description.String,
		CoverImage:          m.CoverImage.String,
		TimeLimitMinutes:    util.NullInt64ToIntPtr(m.TimeLimitMinutes),
		PassingScorePercent: util.NullInt64ToIntPtr(m.PassingScorePercent),
		Category:            m.Category.String,
		IsPublished:         m.IsPublished != 0,
		QuestionCount:       m.QuestionCount,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
		PublishedAt:         util.NullTimeToPtr(m.PublishedAt),
	}
}

func fromDomainExam(e *domain.Exam) *models.Exam {
	return &models.Exam{
		ID:                  e.ID,
		Title:               e.Title,
		Description:         util.StringToNullString(e.Description),
		CoverImage:          util.StringToNullString(e.CoverImage),
		TimeLimitMinutes:    util.IntPtrToNullInt64(e.TimeLimitMinutes),
		PassingScorePercent: util.IntPtrToNullInt64(e.PassingScorePercent),
		Category:            util.StringToNullString(e.Category),
		IsPublished:         util.BoolToInt(e.IsPublished),
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
		PublishedAt:         util.TimePtrToNullTime(e.PublishedAt),
	}
}

func toDomainQuestion(m *models.ExamQuestion) domain.Question {
	return domain.Question{
		ID:          m.ID,
		Text:        m.Text.String,
		ImageURL:    m.ImageURL.String,
		Type:        domain.QuestionType(m.QuestionType),
		Explanation: m.Explanation.String,
		Category:    m.Category.String,
		Order:       m.SortOrder,
	}
}

func fromDomainQuestion(examID string, q *domain.Question) *models.ExamQuestion {
	return &models.ExamQuestion{
		ID:           q.ID,
		ExamID:       examID,
		Text:         util.StringToNullString(q.Text),
		ImageURL:     util.StringToNullString(q.ImageURL),
		QuestionType: string(q.Type),
		Explanation:  util.StringToNullString(q.Explanation),
		Category:     util.StringToNullString(q.Category),
		SortOrder:    q.Order,
	}
}

func toDomainAnswer(m *models.ExamAnswer) domain.Answer {
	a := domain.Answer{
		ID:        m.ID,
		Text:      m.Text.String,
		IsCorrect: m.IsCorrect != 0,
		Order:     m.SortOrder,
	}
	if m.PositionX.Valid && m.PositionY.Valid {
		a.Position = &domain.Position{X: m.PositionX.Float64, Y: m.PositionY.Float64}
	}
	return a
}

func fromDomainAnswer(questionID string, a *domain.Answer) *models.ExamAnswer {
	m := &models.ExamAnswer{
		ID:         a.ID,
		QuestionID: questionID,
		Text:       util.StringToNullString(a.Text),
		IsCorrect:  util.BoolToInt(a.IsCorrect),
		SortOrder:  a.Order,
	}
	if a.Position != nil {
		m.PositionX = sql.NullFloat64{Float64: a.Position.X, Valid: true}
		m.PositionY = sql.NullFloat64{Float64: a.Position.Y, Valid: true}
	}
	return m
}
