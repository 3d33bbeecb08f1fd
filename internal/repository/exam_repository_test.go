package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"slagie/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupExamTestDB creates a new sqlx.DB instance and sqlmock for exam repository testing.
func setupExamTestDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

var (
	examRowColumns     = []string{"id", "title", "description", "cover_image", "time_limit_minutes", "passing_score_percent", "category", "is_published", "created_at", "updated_at", "published_at"}
	questionRowColumns = []string{"id", "exam_id", "question_text", "image_url", "question_type", "explanation", "category", "sort_order"}
	answerRowColumns   = []string{"id", "question_id", "answer_text", "is_correct", "sort_order", "position_x", "position_y"}
)

func sampleExam() *domain.Exam {
	limit, pass := 30, 80
	return &domain.Exam{
		ID:                  "E1",
		Title:               "Theorie 1",
		TimeLimitMinutes:    &limit,
		PassingScorePercent: &pass,
		Category:            domain.DefaultCategory,
		Questions: []domain.Question{
			{ID: "Q1", Text: "Wie heeft voorrang?", Type: domain.MultipleChoice, Order: 0, Answers: []domain.Answer{
				{ID: "A1", Text: "Rechts", IsCorrect: true, Order: 0},
				{ID: "A2", Text: "Links", Order: 1},
			}},
			{ID: "Q2", Text: "Klik het bord", ImageURL: "/img/kruispunt.png", Type: domain.DragDrop, Order: 1, Answers: []domain.Answer{
				{ID: "A3", IsCorrect: true, Order: 0, Position: &domain.Position{X: 30, Y: 40}},
			}},
		},
	}
}

func TestExamDatabaseAdapter_GetExam_AssemblesTree(t *testing.T) {
	db, mock := setupExamTestDB(t)
	defer db.Close()
	repo := NewExamDatabaseAdapter(db)
	now := time.Now().Truncate(time.Second)

	mock.ExpectQuery(`FROM exams e\s+WHERE e.id = :1 AND e.deleted_at IS NULL`).
		WithArgs("E1").
		WillReturnRows(sqlmock.NewRows(examRowColumns).
			AddRow("E1", "Theorie 1", nil, nil, 30, nil, "Theorie", 1, now, now, now))
	mock.ExpectQuery(`FROM exam_questions q\s+WHERE q.exam_id = :1`).
		WithArgs("E1").
		WillReturnRows(sqlmock.NewRows(questionRowColumns).
			AddRow("Q1", "E1", "Wie heeft voorrang?", nil, "multiple_choice", "Rechts gaat voor", nil, 0).
			AddRow("Q2", "E1", "Klik het bord", "/img/k.png", "drag_drop", nil, nil, 1))
	mock.ExpectQuery(`FROM exam_answers a\s+JOIN exam_questions q`).
		WithArgs("E1").
		WillReturnRows(sqlmock.NewRows(answerRowColumns).
			AddRow("A1", "Q1", "Rechts", 1, 0, nil, nil).
			AddRow("A2", "Q1", "Links", 0, 1, nil, nil).
			AddRow("A3", "Q2", nil, 1, 0, 30.0, 40.0))

	exam, err := repo.GetExam(context.Background(), "E1")
	require.NoError(t, err)
	require.NotNil(t, exam)

	assert.Equal(t, "Theorie 1", exam.Title)
	assert.True(t, exam.IsPublished)
	require.NotNil(t, exam.PublishedAt)
	require.NotNil(t, exam.TimeLimitMinutes)
	assert.Equal(t, 30, *exam.TimeLimitMinutes)
	assert.Nil(t, exam.PassingScorePercent)
	require.Len(t, exam.Questions, 2)
	assert.Equal(t, 2, exam.QuestionCount)
	assert.Equal(t, domain.MultipleChoice, exam.Questions[0].Type)
	assert.Equal(t, "Rechts gaat voor", exam.Questions[0].Explanation)
	require.Len(t, exam.Questions[0].Answers, 2)
	assert.True(t, exam.Questions[0].Answers[0].IsCorrect)
	assert.Nil(t, exam.Questions[0].Answers[0].Position)
	require.Len(t, exam.Questions[1].Answers, 1)
	assert.Equal(t, &domain.Position{X: 30, Y: 40}, exam.Questions[1].Answers[0].Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamDatabaseAdapter_GetExam_NotFound(t *testing.T) {
	db, mock := setupExamTestDB(t)
	defer db.Close()
	repo := NewExamDatabaseAdapter(db)

	mock.ExpectQuery(`FROM exams e`).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	exam, err := repo.GetExam(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, exam)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamDatabaseAdapter_CreateExam_InsertsTree(t *testing.T) {
	db, mock := setupExamTestDB(t)
	defer db.Close()
	repo := NewExamDatabaseAdapter(db)
	exam := sampleExam()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO exams`)).
		WithArgs("E1", "Theorie 1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), 0, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO exam_questions`)).
		WithArgs("Q1", "E1", sqlmock.AnyArg(), sqlmock.AnyArg(), "multiple_choice", sqlmock.AnyArg(), sqlmock.AnyArg(), 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO exam_answers`)).
		WithArgs("A1", "Q1", sqlmock.AnyArg(), 1, 0, sql.NullFloat64{}, sql.NullFloat64{}).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO exam_answers`)).
		WithArgs("A2", "Q1", sqlmock.AnyArg(), 0, 1, sql.NullFloat64{}, sql.NullFloat64{}).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO exam_questions`)).
		WithArgs("Q2", "E1", sqlmock.AnyArg(), sqlmock.AnyArg(), "drag_drop", sqlmock.AnyArg(), sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO exam_answers`)).
		WithArgs("A3", "Q2", sqlmock.AnyArg(), 1, 0,
			sql.NullFloat64{Float64: 30, Valid: true}, sql.NullFloat64{Float64: 40, Valid: true}).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.CreateExam(context.Background(), exam))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamDatabaseAdapter_UpdateExam_ReplacesQuestions(t *testing.T) {
	db, mock := setupExamTestDB(t)
	defer db.Close()
	repo := NewExamDatabaseAdapter(db)
	exam := sampleExam()
	exam.Questions = exam.Questions[:1]
	exam.Questions[0].Answers = exam.Questions[0].Answers[:1]

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE exams SET title`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM exam_answers`)).WithArgs("E1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM exam_questions`)).WithArgs("E1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO exam_questions`)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO exam_answers`)).WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.UpdateExam(context.Background(), exam))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamDatabaseAdapter_CreateExam_QuestionFailure(t *testing.T) {
	db, mock := setupExamTestDB(t)
	defer db.Close()
	repo := NewExamDatabaseAdapter(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO exams`)).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO exam_questions`)).WillReturnError(errors.New("ORA-00001"))

	err := repo.CreateExam(context.Background(), sampleExam())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORA-00001")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamDatabaseAdapter_ListExams_PublishedOnly(t *testing.T) {
	db, mock := setupExamTestDB(t)
	defer db.Close()
	repo := NewExamDatabaseAdapter(db)
	now := time.Now()

	cols := append(append([]string{}, examRowColumns...), "question_count")
	mock.ExpectQuery(`FROM exams e\s+WHERE e.deleted_at IS NULL AND e.is_published = :1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("E1", "Theorie 1", "Oefenexamen", nil, 30, 86, "Theorie", 1, now, now, now, 25))

	exams, err := repo.ListExams(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, 25, exams[0].QuestionCount)
	assert.Equal(t, "Oefenexamen", exams[0].Description)
	assert.Nil(t, exams[0].Questions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamDatabaseAdapter_SetPublishedAndDelete(t *testing.T) {
	db, mock := setupExamTestDB(t)
	defer db.Close()
	repo := NewExamDatabaseAdapter(db)
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE exams SET is_published = :1`)).
		WithArgs(1, sql.NullTime{Time: at, Valid: true}, sqlmock.AnyArg(), "E1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE exams SET is_published = :1`)).
		WithArgs(0, sql.NullTime{}, sqlmock.AnyArg(), "E1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE exams SET deleted_at`)).
		WithArgs(sqlmock.AnyArg(), "E1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, repo.SetPublished(ctx, "E1", true, &at))
	require.NoError(t, repo.SetPublished(ctx, "E1", false, nil))
	require.NoError(t, repo.DeleteExam(ctx, "E1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamDatabaseAdapter_GetQuestion(t *testing.T) {
	db, mock := setupExamTestDB(t)
	defer db.Close()
	repo := NewExamDatabaseAdapter(db)

	mock.ExpectQuery(`FROM exam_questions q\s+JOIN exams e`).
		WithArgs("Q9").
		WillReturnRows(sqlmock.NewRows(questionRowColumns).
			AddRow("Q9", "E1", "Hoe heet dit bord?", nil, "open_question", nil, nil, 3))
	mock.ExpectQuery(`FROM exam_answers a\s+WHERE a.question_id = :1`).
		WithArgs("Q9").
		WillReturnRows(sqlmock.NewRows(answerRowColumns).AddRow("A9", "Q9", "Stopbord", 1, 0, nil, nil))

	q, examID, err := repo.GetQuestion(context.Background(), "Q9")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, "E1", examID)
	assert.Equal(t, domain.OpenQuestion, q.Type)
	require.Len(t, q.Answers, 1)
	assert.Equal(t, "Stopbord", q.Answers[0].Text)

	mock.ExpectQuery(`FROM exam_questions q`).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	q, examID, err = repo.GetQuestion(context.Background(), "nope")
	assert.NoError(t, err)
	assert.Nil(t, q)
	assert.Empty(t, examID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionManager_CommitAndRollback(t *testing.T) {
	db, mock := setupExamTestDB(t)
	defer db.Close()
	tm := NewTransactionManagerAdapter(db)
	repo := NewExamDatabaseAdapter(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE exams SET deleted_at`)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	err := tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		return repo.DeleteExam(ctx, "E1")
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE exams SET deleted_at`)).WillReturnError(errors.New("locked"))
	mock.ExpectRollback()
	err = tm.WithTransaction(context.Background(), func(ctx context.Context) error {
		return repo.DeleteExam(ctx, "E1")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}
