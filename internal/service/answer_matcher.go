package service

import "slagie/internal/util"

// AnswerMatcher decides whether a free-text answer matches the expected text
// without calling out to a judge.
type AnswerMatcher struct {
	maxDistance int
}

// NewAnswerMatcher tolerates up to maxDistance edits after normalization.
// A negative value is treated as zero.
func NewAnswerMatcher(maxDistance int) *AnswerMatcher {
	if maxDistance < 0 {
		maxDistance = 0
	}
	return &AnswerMatcher{maxDistance: maxDistance}
}

// Match reports whether given equals expected up to case, punctuation,
// whitespace and the configured edit distance. A blank answer never matches.
func (m *AnswerMatcher) Match(expected, given string) bool {
	e, g := util.NormalizeAnswer(expected), util.NormalizeAnswer(given)
	if g == "" || e == "" {
		return false
	}
	if e == g {
		return true
	}
	// Short answers like "ja" must match exactly.
	if len([]rune(e)) <= 2*m.maxDistance {
		return false
	}
	return util.Levenshtein(e, g) <= m.maxDistance
}
