package narrator

import (
	"fmt"
	"strings"

	"github.com/lexiqai/slide-narrator/internal/slides"
	"github.com/lexiqai/slide-narrator/internal/stt"
)

// QAPolicy decides whether a narrated slide opens a Q&A window.
type QAPolicy func(index int) bool

// QAAlways opens Q&A after every narration.
func QAAlways() QAPolicy {
	return func(int) bool { return true }
}

// QANever disables Q&A.
func QANever() QAPolicy {
	return func(int) bool { return false }
}

// QAFromIndex opens Q&A for slides at or after from.
func QAFromIndex(from int) QAPolicy {
	return func(index int) bool { return index >= from }
}

// ParseQAPolicy maps the QA_MODE setting to a policy.
func ParseQAPolicy(mode string, from int) (QAPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "always":
		return QAAlways(), nil
	case "never":
		return QANever(), nil
	case "from":
		if from < 1 {
			return nil, fmt.Errorf("qa from index must be >= 1, got %d", from)
		}
		return QAFromIndex(from), nil
	default:
		return nil, fmt.Errorf("unknown qa mode %q", mode)
	}
}

// ContextScope selects which notes are handed to the answerer.
type ContextScope string

const (
	ScopeSlide ContextScope = "slide"
	ScopeDeck  ContextScope = "deck"
)

// ParseContextScope maps the QA_CONTEXT_SCOPE setting to a scope.
func ParseContextScope(s string) (ContextScope, error) {
	switch ContextScope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeSlide:
		return ScopeSlide, nil
	case ScopeDeck:
		return ScopeDeck, nil
	default:
		return "", fmt.Errorf("unknown qa context scope %q", s)
	}
}

func (s ContextScope) contextFor(notes slides.NotesMap, slideNotes string) string {
	if s == ScopeDeck {
		return notes.DeckContext()
	}
	return slideNotes
}

var negativeResponses = map[string]struct{}{
	"no":           {},
	"nope":         {},
	"nah":          {},
	"no questions": {},
	"no thank you": {},
	"no thanks":    {},
	"not now":      {},
	"none":         {},
	"nothing":      {},
	"skip":         {},
}

// IsNegativeResponse reports whether text declines further questions. The
// whole cleaned utterance must be one of the known phrases; "no idea why"
// is a question.
func IsNegativeResponse(text string) bool {
	_, ok := negativeResponses[stt.CleanTranscript(text)]
	return ok
}
