package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPassingScorePercent applies when an exam carries no passing score.
	// Read it through Exam.PassingThreshold, never directly.
	DefaultPassingScorePercent = 86
	DefaultTimeLimitMinutes    = 30
	DefaultCategory            = "Theorie"
)

// Exam is an ordered list of questions plus the settings of an attempt.
type Exam struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	CoverImage          string     `json:"cover_image,omitempty"`
	TimeLimitMinutes    *int       `json:"time_limit_minutes,omitempty"`
	PassingScorePercent *int       `json:"passing_score_percent,omitempty"`
	Category            string     `json:"category,omitempty"`
	IsPublished         bool       `json:"is_published"`
	Questions           []Question `json:"questions"`
	QuestionCount       int        `json:"question_count,omitempty"`
	CreatedAt           time.Time  `json:"created_at,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at,omitempty"`
	PublishedAt         *time.Time `json:"published_at,omitempty"`
}

// Question is one exam item. Its Type selects the answer shape through KindOf.
type Question struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	ImageURL    string       `json:"image_url,omitempty"`
	Type        QuestionType `json:"type"`
	Explanation string       `json:"explanation,omitempty"`
	Category    string       `json:"category,omitempty"`
	Order       int          `json:"order"`
	Answers     []Answer     `json:"answers"`
}

// Answer is an option, a hotspot marker, or the expected text of an open question.
type Answer struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	IsCorrect bool      `json:"is_correct"`
	Order     int       `json:"order"`
	Position  *Position `json:"position,omitempty"`
}

// NewExam returns an exam with the documented defaults filled in.
func NewExam(title string) *Exam {
	timeLimit := DefaultTimeLimitMinutes
	return &Exam{
		Title:            title,
		TimeLimitMinutes: &timeLimit,
		Category:         DefaultCategory,
	}
}

// NewQuestion returns a question of type t with the kind's default answers.
func NewQuestion(t QuestionType) (Question, error) {
	kind, err := KindOf(t)
	if err != nil {
		return Question{}, err
	}
	return Question{Type: t, Answers: kind.DefaultAnswers()}, nil
}

// PassingThreshold is the single source of the pass mark, as a fraction in [0,1].
func (e *Exam) PassingThreshold() float64 {
	pct := DefaultPassingScorePercent
	if e.PassingScorePercent != nil {
		pct = *e.PassingScorePercent
	}
	return float64(pct) / 100
}

// Passed reports whether score out of total meets the exam's threshold.
func (e *Exam) Passed(score, total int) bool {
	if total <= 0 {
		return false
	}
	return float64(score)/float64(total) >= e.PassingThreshold()
}

// TimeLimit returns the attempt duration, zero when unlimited.
func (e *Exam) TimeLimit() time.Duration {
	if e.TimeLimitMinutes == nil || *e.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(*e.TimeLimitMinutes) * time.Minute
}

// ReindexOrder rewrites every question and answer order from its list position.
func (e *Exam) ReindexOrder() {
	for i := range e.Questions {
		e.Questions[i].Order = i
		e.Questions[i].ReindexOrder()
	}
}

// ValidateTitle is the only check applied to every save.
func (e *Exam) ValidateTitle() error {
	if strings.TrimSpace(e.Title) == "" {
		return ValidationErrors{NewMissingFieldError("title")}
	}
	return nil
}

// Issues lists every reason the exam cannot be published yet.
func (e *Exam) Issues() ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(e.Title) == "" {
		errs = append(errs, NewMissingFieldError("title"))
	}
	if p := e.PassingScorePercent; p != nil && (*p < 0 || *p > 100) {
		errs = append(errs, NewOutOfRangeError("passing_score_percent", *p, 0, 100))
	}
	if t := e.TimeLimitMinutes; t != nil && *t < 0 {
		errs = append(errs, NewValidationError("time_limit_minutes", "must not be negative"))
	}
	if len(e.Questions) == 0 {
		errs = append(errs, NewValidationError("questions", "exam has no questions"))
	}
	for i := range e.Questions {
		errs = append(errs, e.Questions[i].Issues(fmt.Sprintf("questions[%d]", i))...)
	}
	return errs
}

// ValidatePublishable returns nil when the exam may be published.
func (e *Exam) ValidatePublishable() error {
	return e.Issues().Err()
}

// QuestionByID finds a question and its index.
func (e *Exam) QuestionByID(id string) (*Question, int) {
	for i := range e.Questions {
		if e.Questions[i].ID == id {
			return &e.Questions[i], i
		}
	}
	return nil, -1
}

// Clone returns a deep copy so callers can hand out snapshots.
func (e *Exam) Clone() *Exam {
	c := *e
	if e.TimeLimitMinutes != nil {
		v := *e.TimeLimitMinutes
		c.TimeLimitMinutes = &v
	}
	if e.PassingScorePercent != nil {
		v := *e.PassingScorePercent
		c.PassingScorePercent = &v
	}
	if e.PublishedAt != nil {
		v := *e.PublishedAt
		c.PublishedAt = &v
	}
	c.Questions = make([]Question, len(e.Questions))
	for i := range e.Questions {
		c.Questions[i] = e.Questions[i].Clone()
	}
	return &c
}

// Kind resolves the question's type rules.
func (q *Question) Kind() (QuestionKind, error) {
	return KindOf(q.Type)
}

// Issues validates the question text and the kind's answer shape.
func (q *Question) Issues(path string) ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(q.Text) == "" {
		errs = append(errs, NewMissingFieldError(path+".text"))
	}
	kind, err := q.Kind()
	if err != nil {
		return append(errs, NewValidationError(path+".type", err.Error()))
	}
	return append(errs, kind.Validate(q, path)...)
}

// Validate returns nil when the question is complete.
func (q *Question) Validate() error {
	return q.Issues("question").Err()
}

// ReindexOrder rewrites answer orders densely from list positions.
func (q *Question) ReindexOrder() {
	for i := range q.Answers {
		q.Answers[i].Order = i
	}
}

// CorrectCount is the number of answers flagged correct.
func (q *Question) CorrectCount() int {
	n := 0
	for _, a := range q.Answers {
		if a.IsCorrect {
			n++
		}
	}
	return n
}

// CorrectAnswer returns the first correct answer, or nil.
func (q *Question) CorrectAnswer() *Answer {
	for i := range q.Answers {
		if q.Answers[i].IsCorrect {
			return &q.Answers[i]
		}
	}
	return nil
}

// AnswerByID finds an answer of this question.
func (q *Question) AnswerByID(id string) *Answer {
	for i := range q.Answers {
		if q.Answers[i].ID == id {
			return &q.Answers[i]
		}
	}
	return nil
}

// Clone deep-copies the question and its answers.
func (q Question) Clone() Question {
	c := q
	c.Answers = make([]Answer, len(q.Answers))
	for i, a := range q.Answers {
		c.Answers[i] = a
		if a.Position != nil {
			p := *a.Position
			c.Answers[i].Position = &p
		}
	}
	return c
}

// StripCorrectness hides what a student must not see before answering.
func (q Question) StripCorrectness() Question {
	c := q.Clone()
	c.Explanation = ""
	kind, _ := KindOf(q.Type)
	if kind != nil && kind.Input() == InputFreeText {
		c.Answers = nil
		return c
	}
	for i := range c.Answers {
		c.Answers[i].IsCorrect = false
	}
	return c
}

// Label derives the display letter for the answer at index i: A, B, ... Z, AA, AB.
func Label(i int) string {
	if i < 0 {
		return ""
	}
	var b []byte
	for n := i; ; n = n/26 - 1 {
		b = append([]byte{byte('A' + n%26)}, b...)
		if n < 26 {
			break
		}
	}
	return string(b)
}

// LabelIndex is the inverse of Label for a single letter, -1 otherwise.
func LabelIndex(s string) int {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 1 || s[0] < 'A' || s[0] > 'Z' {
		return -1
	}
	return int(s[0] - 'A')
}
