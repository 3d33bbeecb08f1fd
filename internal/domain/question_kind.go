package domain

import (
	"fmt"
	"strings"
)

// QuestionType is the closed tag that selects a question's answer shape and scoring branch.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	DragDrop       QuestionType = "drag_drop"
	OpenQuestion   QuestionType = "open_question"
)

// InputMode is how a question's pending selection is captured.
type InputMode int

const (
	// InputAnswerID captures one answer id (option list or marker click).
	InputAnswerID InputMode = iota
	// InputFreeText captures a free-text string.
	InputFreeText
)

// QuestionKind holds every type-dependent rule. Both state machines and the
// backend branch on a question's kind, never on its raw type string.
type QuestionKind interface {
	Type() QuestionType
	// DefaultAnswers is the minimal shape a question gets on creation or type change.
	DefaultAnswers() []Answer
	Input() InputMode
	// SingleCorrect reports whether toggling one answer correct clears its siblings.
	SingleCorrect() bool
	// Positioned reports whether answers carry hotspot positions on the image.
	Positioned() bool
	// Validate returns the completeness problems of q, field paths prefixed with path.
	Validate(q *Question, path string) ValidationErrors
}

var kinds = map[QuestionType]QuestionKind{
	MultipleChoice: multipleChoiceKind{},
	DragDrop:       dragDropKind{},
	OpenQuestion:   openQuestionKind{},
}

// QuestionTypes lists the supported types in display order.
var QuestionTypes = []QuestionType{MultipleChoice, DragDrop, OpenQuestion}

// KindOf resolves the kind for t.
func KindOf(t QuestionType) (QuestionKind, error) {
	k, ok := kinds[t]
	if !ok {
		return nil, NewValidationError("type", fmt.Sprintf("unknown question type %q", t))
	}
	return k, nil
}

// ParseQuestionType accepts the canonical names plus a few spellings seen in imports.
func ParseQuestionType(s string) (QuestionType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	switch norm {
	case "", "multiple_choice", "mc", "meerkeuze":
		return MultipleChoice, nil
	case "drag_drop", "dragdrop", "hotspot":
		return DragDrop, nil
	case "open_question", "open", "open_vraag":
		return OpenQuestion, nil
	}
	return "", NewValidationError("type", fmt.Sprintf("unknown question type %q", s))
}

func emptyOptions() []Answer {
	return []Answer{{Order: 0}, {Order: 1}}
}

// validateSingleCorrect is shared by the kinds whose answers are selectable options.
func validateSingleCorrect(q *Question, path string) ValidationErrors {
	var errs ValidationErrors
	switch n := q.CorrectCount(); {
	case n == 0:
		errs = append(errs, NewValidationError(path+".answers", "no correct answer selected"))
	case n > 1:
		errs = append(errs, NewValidationError(path+".answers", "more than one correct answer"))
	}
	return errs
}

type multipleChoiceKind struct{}

func (multipleChoiceKind) Type() QuestionType       { return MultipleChoice }
func (multipleChoiceKind) DefaultAnswers() []Answer { return emptyOptions() }
func (multipleChoiceKind) Input() InputMode         { return InputAnswerID }
func (multipleChoiceKind) SingleCorrect() bool      { return true }
func (multipleChoiceKind) Positioned() bool         { return false }

func (multipleChoiceKind) Validate(q *Question, path string) ValidationErrors {
	var errs ValidationErrors
	if len(q.Answers) < 2 {
		errs = append(errs, NewValidationError(path+".answers", "needs at least two options"))
	}
	for i, a := range q.Answers {
		if strings.TrimSpace(a.Text) == "" {
			errs = append(errs, NewMissingFieldError(fmt.Sprintf("%s.answers[%d].text", path, i)))
		}
	}
	return append(errs, validateSingleCorrect(q, path)...)
}

type dragDropKind struct{}

func (dragDropKind) Type() QuestionType       { return DragDrop }
func (dragDropKind) DefaultAnswers() []Answer { return emptyOptions() }
func (dragDropKind) Input() InputMode         { return InputAnswerID }
func (dragDropKind) SingleCorrect() bool      { return true }
func (dragDropKind) Positioned() bool         { return true }

func (dragDropKind) Validate(q *Question, path string) ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(q.ImageURL) == "" {
		errs = append(errs, NewMissingFieldError(path+".image_url"))
	}
	if len(q.Answers) == 0 {
		errs = append(errs, NewValidationError(path+".answers", "needs at least one marker"))
	}
	for i, a := range q.Answers {
		field := fmt.Sprintf("%s.answers[%d].position", path, i)
		if a.Position == nil {
			errs = append(errs, NewValidationError(field, "marker has no position"))
			continue
		}
		if !a.Position.InBounds() {
			errs = append(errs, NewOutOfRangeError(field, *a.Position, 0, 100))
		}
	}
	return append(errs, validateSingleCorrect(q, path)...)
}

type openQuestionKind struct{}

func (openQuestionKind) Type() QuestionType { return OpenQuestion }
func (openQuestionKind) DefaultAnswers() []Answer {
	return []Answer{{IsCorrect: true, Order: 0}}
}
func (openQuestionKind) Input() InputMode    { return InputFreeText }
func (openQuestionKind) SingleCorrect() bool { return false }
func (openQuestionKind) Positioned() bool    { return false }

func (openQuestionKind) Validate(q *Question, path string) ValidationErrors {
	var errs ValidationErrors
	if len(q.Answers) != 1 {
		return append(errs, NewValidationError(path+".answers", "open question needs exactly one expected answer"))
	}
	if !q.Answers[0].IsCorrect {
		errs = append(errs, NewValidationError(path+".answers[0].is_correct", "expected answer must be correct"))
	}
	if strings.TrimSpace(q.Answers[0].Text) == "" {
		errs = append(errs, NewMissingFieldError(path+".answers[0].text"))
	}
	return errs
}
