package models

import (
	"database/sql"
	"time"
)

// Exam is a row of the exams table.
type Exam struct {
	ID                  string         `db:"id"`
	Title               string         `db:"title"`
	Description         sql.NullString `db:"description"`
	CoverImage          sql.NullString `db:"cover_image"`
	TimeLimitMinutes    sql.NullInt64  `db:"time_limit_minutes"`
	PassingScorePercent sql.NullInt64  `db:"passing_score_percent"`
	Category            sql.NullString `db:"category"`
	IsPublished         int            `db:"is_published"` // NUMBER(1)
	QuestionCount       int            `db:"question_count"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
	PublishedAt         sql.NullTime   `db:"published_at"`
}

// ExamQuestion is a row of the exam_questions table.
type ExamQuestion struct {
	ID           string         `db:"id"`
	ExamID       string         `db:"exam_id"`
	Text         sql.NullString `db:"question_text"`
	ImageURL     sql.NullString `db:"image_url"`
	QuestionType string         `db:"question_type"`
	Explanation  sql.NullString `db:"explanation"`
	Category     sql.NullString `db:"category"`
	SortOrder    int            `db:"sort_order"`
}

// ExamAnswer is a row of the exam_answers table. Position columns are NULL
// for answers that are not hotspot markers.
type ExamAnswer struct {
	ID         string          `db:"id"`
	QuestionID string          `db:"question_id"`
	Text       sql.NullString  `db:"answer_text"`
	IsCorrect  int             `db:"is_correct"`
	SortOrder  int             `db:"sort_order"`
	PositionX  sql.NullFloat64 `db:"position_x"`
	PositionY  sql.NullFloat64 `db:"position_y"`
}

// ExamAttempt is a row of the exam_attempts table.
type ExamAttempt struct {
	ID          string         `db:"id"`
	ExamID      string         `db:"exam_id"`
	UserID      sql.NullString `db:"user_id"`
	Score       int            `db:"score"`
	Total       int            `db:"total"`
	Passed      int            `db:"passed"`
	Percentage  float64        `db:"percentage"`
	CompletedAt time.Time      `db:"completed_at"`
}
