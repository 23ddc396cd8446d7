package narrator

// State is the orchestrator's position in a slide visit.
type State int

const (
	StateIdleWait State = iota
	StateResolving
	StateNarrating
	StateQAPrompting
	StateQAListening
	StateQAAnswering
)

func (s State) String() string {
	switch s {
	case StateIdleWait:
		return "idle_wait"
	case StateResolving:
		return "resolving"
	case StateNarrating:
		return "narrating"
	case StateQAPrompting:
		return "qa_prompting"
	case StateQAListening:
		return "qa_listening"
	case StateQAAnswering:
		return "qa_answering"
	default:
		return "unknown"
	}
}

// Outcome is how a single slide event was handled.
type Outcome int

const (
	OutcomeNarrated Outcome = iota
	OutcomeSkippedEmpty
	OutcomeDuplicate
	OutcomeSpeakFailed
	OutcomePanicked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNarrated:
		return "narrated"
	case OutcomeSkippedEmpty:
		return "skipped_empty"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeSpeakFailed:
		return "speak_failed"
	case OutcomePanicked:
		return "panicked"
	default:
		return "unknown"
	}
}

// Q&A window outcomes, used as metric labels.
const (
	qaDeclined  = "declined"
	qaSilence   = "silence"
	qaTurnLimit = "turn_limit"
	qaError     = "error"
)
