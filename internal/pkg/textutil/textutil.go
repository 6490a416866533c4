package textutil

import (
	"strings"
	"unicode/utf8"
)

const (
	MaxTextChars    = 50000
	MinTextWords    = 10
	MaxSummaryChars = 10000
	MaxPromptChars  = 1000
)

// CountWords splits on runs of whitespace and discards empty tokens.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CharCount counts characters, not bytes.
func CharCount(text string) int {
	return utf8.RuneCountInString(text)
}

// Check is the outcome of validating a text for summarization.
type Check struct {
	Valid     bool   `json:"valid"`
	WordCount int    `json:"wordCount,omitempty"`
	Reason    string `json:"error,omitempty"`
}

// Validate applies the summarization input rule: non-empty after trimming,
// at most MaxTextChars characters and at least MinTextWords words.
func Validate(text string) Check {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Check{Reason: "Text cannot be empty"}
	}
	if CharCount(trimmed) > MaxTextChars {
		return Check{Reason: "Text cannot exceed 50,000 characters"}
	}
	words := CountWords(trimmed)
	if words < MinTextWords {
		return Check{Reason: "Text must have at least 10 words for meaningful summarization"}
	}
	return Check{Valid: true, WordCount: words}
}
