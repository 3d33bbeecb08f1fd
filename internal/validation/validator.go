package validation

import (
	"strings"
	"unicode/utf8"

	"slagie/internal/domain"
	"slagie/internal/util"
)

// MaxFreeTextLength bounds an open-question answer in runes.
const MaxFreeTextLength = 2000

// Validator provides request validation functionality
type Validator struct{}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateID checks a path or body identifier.
func (v *Validator) ValidateID(field, id string) domain.ValidationErrors {
	var errors domain.ValidationErrors
	if strings.TrimSpace(id) == "" {
		errors = append(errors, domain.NewMissingFieldError(field))
	} else if !util.IsULID(id) {
		errors = append(errors, domain.NewInvalidFormatError(field, id))
	}
	return errors
}

// ValidateCheckAnswerRequest validates the check answer request
func (v *Validator) ValidateCheckAnswerRequest(req domain.CheckAnswerRequest) domain.ValidationErrors {
	var errors domain.ValidationErrors

	if err := req.Validate(); err != nil {
		if verrs, ok := err.(domain.ValidationErrors); ok {
			errors = append(errors, verrs...)
		}
	}
	if req.QuestionID != "" && !util.IsULID(req.QuestionID) {
		errors = append(errors, domain.NewInvalidFormatError("question_id", req.QuestionID))
	}
	if req.SelectedAnswerID != nil && *req.SelectedAnswerID != "" && !util.IsULID(*req.SelectedAnswerID) {
		errors = append(errors, domain.NewInvalidFormatError("selected_answer_id", *req.SelectedAnswerID))
	}
	if req.FreeText != nil {
		if n := utf8.RuneCountInString(*req.FreeText); n > MaxFreeTextLength {
			errors = append(errors, domain.NewOutOfRangeError("free_text", n, 1, MaxFreeTextLength))
		}
	}

	return errors
}

// ValidateFinishRequest validates a finish_exam payload.
func (v *Validator) ValidateFinishRequest(score, total int) domain.ValidationErrors {
	var errors domain.ValidationErrors
	if total < 0 {
		errors = append(errors, domain.NewValidationError("total", "must not be negative"))
	}
	if score < 0 || score > total {
		errors = append(errors, domain.NewOutOfRangeError("score", score, 0, total))
	}
	return errors
}
