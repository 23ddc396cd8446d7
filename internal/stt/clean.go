package stt

import (
	"strings"
	"unicode"
)

// MinTranscriptLength is the shortest cleaned transcript treated as speech.
const MinTranscriptLength = 2

// CleanTranscript lowercases text, drops punctuation other than apostrophes
// and collapses whitespace.
func CleanTranscript(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'':
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// usable reports whether a cleaned transcript counts as an answer.
func usable(cleaned string) bool {
	return len([]rune(cleaned)) >= MinTranscriptLength
}
