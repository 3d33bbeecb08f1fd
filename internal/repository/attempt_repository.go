package repository

import (
	"context"
	"fmt"
	"time"

	"slagie/internal/domain"
	"slagie/internal/repository/models"
	"slagie/internal/util"
)

// sqlxAttemptRepository implements domain.AttemptRepository using sqlx.
type sqlxAttemptRepository struct {
	db DBTX
}

// NewSQLXAttemptRepository creates a new instance of sqlxAttemptRepository.
func NewSQLXAttemptRepository(db DBTX) domain.AttemptRepository {
	return &sqlxAttemptRepository{db: db}
}

func toDomainAttempt(m *models.ExamAttempt) *domain.AttemptRecord {
	if m == nil {
		return nil
	}
	return &domain.AttemptRecord{
		ID:          m.ID,
		ExamID:      m.ExamID,
		UserID:      m.UserID.String,
		Score:       m.Score,
		Total:       m.Total,
		Passed:      m.Passed != 0,
		Percentage:  m.Percentage,
		CompletedAt: m.CompletedAt,
	}
}

func fromDomainAttempt(a *domain.AttemptRecord) *models.ExamAttempt {
	if a == nil {
		return nil
	}
	return &models.ExamAttempt{
		ID:          a.ID,
		ExamID:      a.ExamID,
		UserID:      util.StringToNullString(a.UserID),
		Score:       a.Score,
		Total:       a.Total,
		Passed:      util.BoolToInt(a.Passed),
		Percentage:  a.Percentage,
		CompletedAt: a.CompletedAt,
	}
}

func (r *sqlxAttemptRepository) CreateAttempt(ctx context.Context, attempt *domain.AttemptRecord) error {
	if attempt.ID == "" {
		attempt.ID = util.NewULID()
	}
	if attempt.CompletedAt.IsZero() {
		attempt.CompletedAt = time.Now()
	}
	m := fromDomainAttempt(attempt)

	query := `INSERT INTO exam_attempts (id, exam_id, user_id, score, total, passed, percentage, completed_at)
	          VALUES (:1, :2, :3, :4, :5, :6, :7, :8)`
	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		m.ID, m.ExamID, m.UserID, m.Score, m.Total, m.Passed, m.Percentage, m.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert exam attempt: %w", err)
	}
	return nil
}

func (r *sqlxAttemptRepository) ListAttemptsByExam(ctx context.Context, examID string, limit int) ([]*domain.AttemptRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id "id", exam_id "exam_id", user_id "user_id", score "score", total "total",
		passed "passed", percentage "percentage", completed_at "completed_at"
	FROM exam_attempts
	WHERE exam_id = :1
	ORDER BY completed_at DESC
	FETCH FIRST :2 ROWS ONLY`

	var rows []models.ExamAttempt
	if err := GetExecutor(ctx, r.db).SelectContext(ctx, &rows, query, examID, limit); err != nil {
		return nil, fmt.Errorf("failed to list attempts of exam %s: %w", examID, err)
	}
	attempts := make([]*domain.AttemptRecord, 0, len(rows))
	for i := range rows {
		attempts = append(attempts, toDomainAttempt(&rows[i]))
	}
	return attempts, nil
}
