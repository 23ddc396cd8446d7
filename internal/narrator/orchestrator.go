// Package narrator drives the slide visit loop: it consumes slide-change
// events, narrates each slide's notes once per visit and runs a short
// spoken Q&A window afterwards.
package narrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/slide-narrator/internal/events"
	"github.com/lexiqai/slide-narrator/internal/observability"
	"github.com/lexiqai/slide-narrator/internal/slides"
	"github.com/lexiqai/slide-narrator/internal/stt"
)

// Spoken prompts.
const (
	PromptAnyQuestions   = "Any questions?"
	PromptOtherQuestions = "Any other questions?"
	Apology              = "Sorry, I ran into a problem with that question. Let's move on."
)

// Defaults applied by New for zero config values.
const (
	DefaultMaxTurns              = 2
	DefaultFirstListenTimeout    = 10 * time.Second
	DefaultFollowUpListenTimeout = 5 * time.Second
)

// EventSource yields raw slide identifiers in arrival order.
type EventSource interface {
	Pop(ctx context.Context) (string, error)
}

// Resolver maps a slide identifier to its 1-based index.
type Resolver interface {
	Resolve(id string) int
}

// Speaker renders text as audio and returns once playback is done.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Listener records one utterance and returns its transcript, or "" when
// nothing usable was heard within timeout.
type Listener interface {
	Listen(ctx context.Context, timeout time.Duration) (string, error)
}

// Answerer answers a question from the supplied notes context.
type Answerer interface {
	Answer(ctx context.Context, question, notesContext string) (string, error)
}

// Cue signals the audience that the microphone is open.
type Cue interface {
	Play(ctx context.Context) error
}

// Dependencies are the collaborators an Orchestrator is built from.
type Dependencies struct {
	Events   EventSource
	Resolver Resolver
	Notes    slides.NotesMap
	Speaker  Speaker
	Listener Listener
	Answerer Answerer
	Cue      Cue // optional
}

// Config controls the Q&A window.
type Config struct {
	QAPolicy              QAPolicy
	MaxTurns              int
	FirstListenTimeout    time.Duration
	FollowUpListenTimeout time.Duration
	ContextScope          ContextScope
}

// Orchestrator owns the narration state for one presentation session.
// Run must only be called from a single goroutine.
type Orchestrator struct {
	deps   Dependencies
	cfg    Config
	logger zerolog.Logger

	state   atomic.Int32
	running atomic.Bool

	// index of the last successfully narrated slide, 0 when none
	lastNarrated int
	// index resolved for the previous event, 0 before the first
	lastVisited int
}

// New creates an orchestrator. Zero config values take the defaults.
func New(deps Dependencies, cfg Config, logger zerolog.Logger) *Orchestrator {
	if cfg.QAPolicy == nil {
		cfg.QAPolicy = QAAlways()
	}
	if cfg.MaxTurns < 1 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.FirstListenTimeout <= 0 {
		cfg.FirstListenTimeout = DefaultFirstListenTimeout
	}
	if cfg.FollowUpListenTimeout <= 0 {
		cfg.FollowUpListenTimeout = DefaultFollowUpListenTimeout
	}
	if cfg.ContextScope == "" {
		cfg.ContextScope = ScopeSlide
	}
	if deps.Notes == nil {
		deps.Notes = slides.NotesMap{}
	}

	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With().Str("component", "narrator").Logger(),
	}
}

// Run consumes events until ctx is done or the event source is closed,
// then returns nil. A visit already in progress when ctx is cancelled runs
// to completion first.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.running.Store(true)
	defer o.running.Store(false)

	o.logger.Info().
		Int("slides_with_notes", len(o.deps.Notes)).
		Int("max_turns", o.cfg.MaxTurns).
		Str("context_scope", string(o.cfg.ContextScope)).
		Msg("Narrator loop started")

	for {
		o.setState(StateIdleWait)

		raw, err := o.deps.Events.Pop(ctx)
		if err != nil {
			if errors.Is(err, events.ErrQueueClosed) || ctx.Err() != nil {
				o.logger.Info().Msg("Narrator loop stopped")
				return nil
			}
			return fmt.Errorf("failed to read slide event: %w", err)
		}

		o.HandleEvent(context.WithoutCancel(ctx), raw)
	}
}

// Running reports whether Run is consuming events.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// LastNarrated returns the last narrated index, 0 when nothing was narrated.
func (o *Orchestrator) LastNarrated() int {
	return o.lastNarrated
}

// HandleEvent performs one slide visit for a raw identifier. It never
// panics and never returns an error; failures are logged and contained to
// the visit.
func (o *Orchestrator) HandleEvent(ctx context.Context, raw string) (outcome Outcome) {
	o.setState(StateResolving)

	id := events.NormalizeIdentifier(raw)
	index := o.deps.Resolver.Resolve(id)
	previous := o.lastVisited
	o.lastVisited = index

	logger := observability.WithCorrelationID(o.logger, "").With().
		Str("slide_id", id).
		Int("slide_index", index).
		Logger()

	metrics := observability.NewVisitMetrics(index)
	defer metrics.RecordVisitEnd()

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordError("panic", "narrator")
			logger.Error().Interface("panic", r).Msg("Recovered from panic during slide visit")
			outcome = OutcomePanicked
		}
	}()

	text, ok := o.deps.Notes.Get(index)
	if !ok {
		logger.Debug().Msg("No notes for slide, skipping")
		return OutcomeSkippedEmpty
	}
	if index == o.lastNarrated && previous == index {
		logger.Debug().Msg("Slide already narrated in this visit")
		return OutcomeDuplicate
	}

	o.setState(StateNarrating)
	logger.Info().Int("chars", len(text)).Msg("Narrating slide")

	if err := o.speak(ctx, text); err != nil {
		metrics.RecordNarration(false)
		metrics.RecordError("speak_failed", "narrator")
		logger.Error().Err(err).Msg("Narration failed, skipping Q&A")
		return OutcomeSpeakFailed
	}
	metrics.RecordNarration(true)

	if o.cfg.QAPolicy(index) {
		result := o.runQA(ctx, o.cfg.ContextScope.contextFor(o.deps.Notes, text), logger, metrics)
		metrics.RecordQAOutcome(result)
		logger.Info().Str("outcome", result).Msg("Q&A finished")
	}

	o.lastNarrated = index
	return OutcomeNarrated
}

func (o *Orchestrator) runQA(ctx context.Context, notesContext string, logger zerolog.Logger, metrics *observability.Metrics) string {
	o.setState(StateQAPrompting)
	if err := o.speak(ctx, PromptAnyQuestions); err != nil {
		metrics.RecordError("speak_failed", "narrator")
		logger.Error().Err(err).Msg("Failed to prompt for questions")
		return qaError
	}

	for turn := 1; turn <= o.cfg.MaxTurns; turn++ {
		timeout := o.cfg.FollowUpListenTimeout
		if turn == 1 {
			timeout = o.cfg.FirstListenTimeout
		}

		o.setState(StateQAListening)
		o.playCue(ctx, logger)

		question, err := o.listen(ctx, timeout, logger)
		if err != nil {
			metrics.RecordError("listen_failed", "narrator")
			logger.Error().Err(err).Int("turn", turn).Msg("Listening failed")
			o.apologize(ctx, logger)
			return qaError
		}
		if question == "" {
			logger.Info().Int("turn", turn).Msg("No question heard")
			return qaSilence
		}
		if IsNegativeResponse(question) {
			logger.Info().Int("turn", turn).Str("response", question).Msg("Audience declined further questions")
			return qaDeclined
		}

		o.setState(StateQAAnswering)
		logger.Info().Int("turn", turn).Str("question", question).Msg("Answering question")

		answer, err := o.answer(ctx, question, notesContext)
		if err != nil {
			metrics.RecordError("answer_failed", "narrator")
			logger.Error().Err(err).Int("turn", turn).Msg("Answering failed")
			o.apologize(ctx, logger)
			return qaError
		}
		if err := o.speak(ctx, answer); err != nil {
			metrics.RecordError("speak_failed", "narrator")
			logger.Error().Err(err).Int("turn", turn).Msg("Failed to speak answer")
			o.apologize(ctx, logger)
			return qaError
		}
		metrics.RecordQATurn()

		if turn < o.cfg.MaxTurns {
			o.setState(StateQAPrompting)
			if err := o.speak(ctx, PromptOtherQuestions); err != nil {
				metrics.RecordError("speak_failed", "narrator")
				logger.Error().Err(err).Msg("Failed to prompt for more questions")
				return qaError
			}
		}
	}

	return qaTurnLimit
}

func (o *Orchestrator) speak(ctx context.Context, text string) error {
	start := time.Now()
	err := o.deps.Speaker.Speak(ctx, text)
	observability.RecordCapability("speak", start, err == nil)
	return err
}

func (o *Orchestrator) answer(ctx context.Context, question, notesContext string) (string, error) {
	start := time.Now()
	answer, err := o.deps.Answerer.Answer(ctx, question, notesContext)
	observability.RecordCapability("answer", start, err == nil)
	return answer, err
}

type listenResult struct {
	text string
	err  error
}

// listen enforces timeout even against a listener that ignores ctx. A
// timed-out or too-short utterance is reported as "".
func (o *Orchestrator) listen(ctx context.Context, timeout time.Duration, logger zerolog.Logger) (string, error) {
	start := time.Now()
	listenCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan listenResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- listenResult{err: fmt.Errorf("listener panicked: %v", r)}
			}
		}()
		text, err := o.deps.Listener.Listen(listenCtx, timeout)
		done <- listenResult{text: text, err: err}
	}()

	var res listenResult
	select {
	case res = <-done:
	case <-listenCtx.Done():
		logger.Debug().Dur("timeout", timeout).Msg("Listen window elapsed")
		observability.RecordCapability("listen", start, true)
		return "", nil
	}

	if res.err != nil && listenCtx.Err() != nil && errors.Is(res.err, context.DeadlineExceeded) {
		res.err = nil
		res.text = ""
	}
	observability.RecordCapability("listen", start, res.err == nil)
	if res.err != nil {
		return "", res.err
	}

	question := stt.CleanTranscript(res.text)
	if len([]rune(question)) < stt.MinTranscriptLength {
		return "", nil
	}
	return question, nil
}

func (o *Orchestrator) playCue(ctx context.Context, logger zerolog.Logger) {
	if o.deps.Cue == nil {
		return
	}
	if err := o.deps.Cue.Play(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to play listening cue")
	}
}

func (o *Orchestrator) apologize(ctx context.Context, logger zerolog.Logger) {
	if err := o.speak(ctx, Apology); err != nil {
		logger.Error().Err(err).Msg("Failed to speak apology")
	}
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
	observability.SetOrchestratorState(int(s))
}
