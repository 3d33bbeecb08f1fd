package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnswerMatcher_Match(t *testing.T) {
	m := NewAnswerMatcher(1)

	tests := []struct {
		name     string
		expected string
		given    string
		want     bool
	}{
		{"exact", "Stopbord", "Stopbord", true},
		{"case and punctuation", "Voorrangsweg", "voorrangsweg!", true},
		{"extra whitespace", "rechts houden", "  rechts   houden ", true},
		{"one typo", "voorrangskruising", "voorangskruising", true},
		{"two typos", "voorrangskruising", "voorangskrusing", false},
		{"different answer", "Stopbord", "Voorrangsbord", false},
		{"blank answer", "Stopbord", "   ", false},
		{"short answers exact only", "ja", "je", false},
		{"short answer exact", "Ja", "ja.", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(tt.expected, tt.given))
		})
	}
}

func TestAnswerMatcher_ZeroDistance(t *testing.T) {
	m := NewAnswerMatcher(-3)
	assert.True(t, m.Match("Stopbord", "stopbord"))
	assert.False(t, m.Match("Stopbord", "stopbrd"))
}
