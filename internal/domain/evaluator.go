package domain

import "context"

// AnswerJudge decides whether a free-text answer means the same as the expected text.
// It is consulted only after the textual comparison found no match.
type AnswerJudge interface {
	Judge(ctx context.Context, questionText, expected, given string) (bool, error)
}
