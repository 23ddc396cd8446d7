package narrator

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/slide-narrator/internal/events"
	"github.com/lexiqai/slide-narrator/internal/slides"
	"github.com/lexiqai/slide-narrator/internal/tracker"
)

// scriptedSource replays ids, then reports the queue as closed.
type scriptedSource struct {
	ids []string
}

func (s *scriptedSource) Pop(ctx context.Context) (string, error) {
	if len(s.ids) == 0 {
		return "", events.ErrQueueClosed
	}
	id := s.ids[0]
	s.ids = s.ids[1:]
	return id, nil
}

type fakeSpeaker struct {
	mu     sync.Mutex
	spoken []string
	failOn map[string]error
	panics bool
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("speaker exploded")
	}
	f.spoken = append(f.spoken, text)
	if err, ok := f.failOn[text]; ok {
		return err
	}
	return nil
}

func (f *fakeSpeaker) Spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type listenReply struct {
	text  string
	err   error
	block bool
}

type fakeListener struct {
	mu       sync.Mutex
	replies  []listenReply
	repeat   *listenReply
	timeouts []time.Duration
}

func (f *fakeListener) Listen(ctx context.Context, timeout time.Duration) (string, error) {
	f.mu.Lock()
	f.timeouts = append(f.timeouts, timeout)
	var reply listenReply
	switch {
	case len(f.replies) > 0:
		reply = f.replies[0]
		f.replies = f.replies[1:]
	case f.repeat != nil:
		reply = *f.repeat
	}
	f.mu.Unlock()

	if reply.block {
		// Ignores ctx on purpose.
		time.Sleep(time.Hour)
	}
	return reply.text, reply.err
}

func (f *fakeListener) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timeouts)
}

type fakeAnswerer struct {
	mu        sync.Mutex
	questions []string
	contexts  []string
	err       error
}

func (f *fakeAnswerer) Answer(ctx context.Context, question, notesContext string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, question)
	f.contexts = append(f.contexts, notesContext)
	if f.err != nil {
		return "", f.err
	}
	return "answer to " + question, nil
}

type fakeCue struct {
	plays int
	err   error
}

func (f *fakeCue) Play(ctx context.Context) error {
	f.plays++
	return f.err
}

func newTracker(ids ...string) *tracker.Tracker {
	tr := tracker.New()
	for i, id := range ids {
		tr.Register(id, i+1)
	}
	return tr
}

type harness struct {
	speaker  *fakeSpeaker
	listener *fakeListener
	answerer *fakeAnswerer
	cue      *fakeCue
	orch     *Orchestrator
}

func newHarness(notes slides.NotesMap, cfg Config, src EventSource) *harness {
	h := &harness{
		speaker:  &fakeSpeaker{},
		listener: &fakeListener{},
		answerer: &fakeAnswerer{},
		cue:      &fakeCue{},
	}
	if cfg.FirstListenTimeout == 0 {
		cfg.FirstListenTimeout = 200 * time.Millisecond
	}
	if cfg.FollowUpListenTimeout == 0 {
		cfg.FollowUpListenTimeout = 100 * time.Millisecond
	}
	h.orch = New(Dependencies{
		Events:   src,
		Resolver: newTracker("gA", "gB", "gC", "gD"),
		Notes:    notes,
		Speaker:  h.speaker,
		Listener: h.listener,
		Answerer: h.answerer,
		Cue:      h.cue,
	}, cfg, zerolog.Nop())
	return h
}

func TestRun_EndToEndScenario(t *testing.T) {
	notes := slides.NotesMap{1: "Welcome", 2: "", 3: "Summary"}
	src := &scriptedSource{ids: []string{"gA", "gA", "gB", "gC"}}
	h := newHarness(notes, Config{QAPolicy: QANever()}, src)

	if err := h.orch.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{"Welcome", "Summary"}
	if got := h.speaker.Spoken(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected narration %v, got %v", want, got)
	}
	if h.orch.LastNarrated() != 3 {
		t.Errorf("Expected last narrated 3, got %d", h.orch.LastNarrated())
	}
	if h.orch.Running() {
		t.Error("Expected Running to be false after Run returns")
	}
}

func TestHandleEvent_Dedup(t *testing.T) {
	notes := slides.NotesMap{1: "One", 2: "Two"}
	h := newHarness(notes, Config{QAPolicy: QANever()}, nil)
	ctx := context.Background()

	steps := []struct {
		id   string
		want Outcome
	}{
		{"gA", OutcomeNarrated},
		{"gA", OutcomeDuplicate},
		{"gA", OutcomeDuplicate},
		{"gB", OutcomeNarrated},
		{"gB", OutcomeDuplicate},
		{"gA", OutcomeNarrated},
	}
	for i, step := range steps {
		if got := h.orch.HandleEvent(ctx, step.id); got != step.want {
			t.Errorf("step %d (%s): expected %v, got %v", i, step.id, step.want, got)
		}
	}

	want := []string{"One", "Two", "One"}
	if got := h.speaker.Spoken(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected narration %v, got %v", want, got)
	}
}

func TestHandleEvent_EmptySlideEndsVisit(t *testing.T) {
	notes := slides.NotesMap{1: "One"}
	h := newHarness(notes, Config{QAPolicy: QANever()}, nil)
	ctx := context.Background()

	h.orch.HandleEvent(ctx, "gA")
	if got := h.orch.HandleEvent(ctx, "gB"); got != OutcomeSkippedEmpty {
		t.Errorf("Expected empty slide to be skipped, got %v", got)
	}
	if h.orch.LastNarrated() != 1 {
		t.Errorf("Expected skip to leave last narrated at 1, got %d", h.orch.LastNarrated())
	}
	if got := h.orch.HandleEvent(ctx, "gA"); got != OutcomeNarrated {
		t.Errorf("Expected return to slide 1 to narrate again, got %v", got)
	}

	if got := len(h.speaker.Spoken()); got != 2 {
		t.Errorf("Expected 2 narrations, got %d", got)
	}
}

func TestHandleEvent_SkipEmpty(t *testing.T) {
	h := newHarness(slides.NotesMap{}, Config{}, nil)

	if got := h.orch.HandleEvent(context.Background(), "gC"); got != OutcomeSkippedEmpty {
		t.Errorf("Expected skipped_empty, got %v", got)
	}
	if len(h.speaker.Spoken()) != 0 {
		t.Errorf("Expected no speech, got %v", h.speaker.Spoken())
	}
	if h.orch.LastNarrated() != 0 {
		t.Errorf("Expected last narrated to stay 0, got %d", h.orch.LastNarrated())
	}
}

func TestHandleEvent_UnknownIdentifierFallsBack(t *testing.T) {
	h := newHarness(slides.NotesMap{1: "Welcome"}, Config{QAPolicy: QANever()}, nil)

	if got := h.orch.HandleEvent(context.Background(), "id.unknown"); got != OutcomeNarrated {
		t.Errorf("Expected fallback to slide 1, got %v", got)
	}
	if got := h.speaker.Spoken(); len(got) != 1 || got[0] != "Welcome" {
		t.Errorf("Expected Welcome, got %v", got)
	}
}

func TestHandleEvent_SpeakFailureSkipsQAAndCommit(t *testing.T) {
	h := newHarness(slides.NotesMap{1: "Welcome"}, Config{}, nil)
	h.speaker.failOn = map[string]error{"Welcome": errors.New("player missing")}

	if got := h.orch.HandleEvent(context.Background(), "gA"); got != OutcomeSpeakFailed {
		t.Errorf("Expected speak_failed, got %v", got)
	}
	if h.listener.Calls() != 0 {
		t.Error("Expected Q&A to be skipped after narration failure")
	}
	if h.orch.LastNarrated() != 0 {
		t.Errorf("Expected last narrated to stay 0, got %d", h.orch.LastNarrated())
	}

	// The same slide is retried on the next event.
	h.speaker.failOn = nil
	if got := h.orch.HandleEvent(context.Background(), "gA"); got != OutcomeNarrated {
		t.Errorf("Expected retry to narrate, got %v", got)
	}
}

func TestHandleEvent_PanicIsContained(t *testing.T) {
	h := newHarness(slides.NotesMap{1: "Welcome"}, Config{}, nil)
	h.speaker.panics = true

	if got := h.orch.HandleEvent(context.Background(), "gA"); got != OutcomePanicked {
		t.Errorf("Expected panicked outcome, got %v", got)
	}
}

func TestQA_TurnBound(t *testing.T) {
	h := newHarness(slides.NotesMap{1: "Welcome"}, Config{MaxTurns: 2}, nil)
	h.listener.repeat = &listenReply{text: "what is the roadmap"}

	h.orch.HandleEvent(context.Background(), "gA")

	if got := h.listener.Calls(); got != 2 {
		t.Errorf("Expected exactly 2 listen turns, got %d", got)
	}
	if got := len(h.answerer.questions); got != 2 {
		t.Errorf("Expected 2 answers, got %d", got)
	}

	want := []string{
		"Welcome",
		PromptAnyQuestions,
		"answer to what is the roadmap",
		PromptOtherQuestions,
		"answer to what is the roadmap",
	}
	if got := h.speaker.Spoken(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected speech %v, got %v", want, got)
	}
	if h.cue.plays != 2 {
		t.Errorf("Expected cue before each listen, got %d plays", h.cue.plays)
	}
}

func TestQA_ListenTimeoutsPerTurn(t *testing.T) {
	h := newHarness(slides.NotesMap{1: "Welcome"}, Config{
		FirstListenTimeout:    300 * time.Millisecond,
		FollowUpListenTimeout: 150 * time.Millisecond,
	}, nil)
	h.listener.repeat = &listenReply{text: "why"}

	h.orch.HandleEvent(context.Background(), "gA")

	want := []time.Duration{300 * time.Millisecond, 150 * time.Millisecond}
	if !reflect.DeepEqual(h.listener.timeouts, want) {
		t.Errorf("Expected timeouts %v, got %v", want, h.listener.timeouts)
	}
}

func TestQA_NegativeResponses(t *testing.T) {
	for _, reply := range []string{"no", "Nope.", "No thanks!", "NOT NOW"} {
		t.Run(reply, func(t *testing.T) {
			h := newHarness(slides.NotesMap{1: "Welcome"}, Config{}, nil)
			h.listener.replies = []listenReply{{text: reply}}

			h.orch.HandleEvent(context.Background(), "gA")

			if len(h.answerer.questions) != 0 {
				t.Errorf("Expected no answer call for %q, got %v", reply, h.answerer.questions)
			}
			want := []string{"Welcome", PromptAnyQuestions}
			if got := h.speaker.Spoken(); !reflect.DeepEqual(got, want) {
				t.Errorf("Expected speech %v, got %v", want, got)
			}
		})
	}
}

func TestQA_QuestionContainingNo(t *testing.T) {
	h := newHarness(slides.NotesMap{1: "Welcome"}, Config{MaxTurns: 1}, nil)
	h.listener.replies = []listenReply{{text: "No idea what that means"}}

	h.orch.HandleEvent(context.Background(), "gA")

	if len(h.answerer.questions) != 1 || h.answerer.questions[0] != "no idea what that means" {
		t.Errorf("Expected the question to be answered, got %v", h.answerer.questions)
	}
}

func TestQA_SecondTurnDeclined(t *testing.T) {
	h := newHarness(slides.NotesMap{1: "Welcome"}, Config{}, nil)
	h.listener.replies = []listenReply{{text: "how much does it cost"}, {text: "no thank you"}}

	h.orch.HandleEvent(context.Background(), "gA")

	if got := len(h.answerer.questions); got != 1 {
		t.Errorf("Expected 1 answer, got %d", got)
	}
	if h.orch.LastNarrated() != 1 {
		t.Errorf("Expected slide 1 committed, got %d", h.orch.LastNarrated())
	}
}

func TestQA_SilenceEndsWindow(t *testing.T) {
	h := newHarness(slides.NotesMap{1: "Welcome"}, Config{}, nil)
	h.listener.replies = []listenReply{{text: ""}}

	h.orch.HandleEvent(context.Background(), "gA")

	if h.listener.Calls() != 1 {
		t.Errorf("Expected a single listen, got %d", h.listener.Calls())
	}
	if len(h.answerer.questions) != 0 {
		t.Error("Expected no answer on silence")
	}
}

func TestQA_ShortTranscriptIsSilence(t *testing.T) {
	h := newHarness(slides.NotesMap{1: "Welcome"}, Config{}, nil)
	h.listener.replies = []listenReply{{text: " a. "}}

	h.orch.HandleEvent(context.Background(), "gA")

	if len(h.answerer.questions) != 0 {
		t.Errorf("Expected one-letter transcript to be ignored, got %v", h.answerer.questions)
	}
}

func TestQA_BlockingListenTimesOut(t *testing.T) {
	h := newHarness(slides.NotesMap{1: "Welcome"}, Config{FirstListenTimeout: 100 * time.Millisecond}, nil)
	h.listener.replies = []listenReply{{block: true}}

	start := time.Now()
	h.orch.HandleEvent(context.Background(), "gA")
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("Expected listen to give up near its timeout, took %v", elapsed)
	}
	if len(h.answerer.questions) != 0 {
		t.Error("Expected timeout to count as no question")
	}
	if h.orch.LastNarrated() != 1 {
		t.Errorf("Expected slide committed after timeout, got %d", h.orch.LastNarrated())
	}
}

func TestQA_ListenErrorApologizes(t *testing.T) {
	h := newHarness(slides.NotesMap{1: "Welcome"}, Config{}, nil)
	h.listener.replies = []listenReply{{err: errors.New("microphone unplugged")}}

	if got := h.orch.HandleEvent(context.Background(), "gA"); got != OutcomeNarrated {
		t.Errorf("Expected visit to complete, got %v", got)
	}

	want := []string{"Welcome", PromptAnyQuestions, Apology}
	if got := h.speaker.Spoken(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected speech %v, got %v", want, got)
	}
}

func TestQA_AnswerErrorApologizes(t *testing.T) {
	h := newHarness(slides.NotesMap{1: "Welcome"}, Config{}, nil)
	h.listener.repeat = &listenReply{text: "what next"}
	h.answerer.err = errors.New("upstream 503")

	h.orch.HandleEvent(context.Background(), "gA")

	want := []string{"Welcome", PromptAnyQuestions, Apology}
	if got := h.speaker.Spoken(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected speech %v, got %v", want, got)
	}
	if h.listener.Calls() != 1 {
		t.Errorf("Expected Q&A to end after the failure, got %d listens", h.listener.Calls())
	}
}

func TestQA_CueFailureIsIgnored(t *testing.T) {
	h := newHarness(slides.NotesMap{1: "Welcome"}, Config{MaxTurns: 1}, nil)
	h.cue.err = errors.New("chime missing")
	h.listener.replies = []listenReply{{text: "what next"}}

	h.orch.HandleEvent(context.Background(), "gA")

	if len(h.answerer.questions) != 1 {
		t.Errorf("Expected question to be answered despite cue failure, got %v", h.answerer.questions)
	}
}

func TestQA_Policies(t *testing.T) {
	notes := slides.NotesMap{1: "One", 2: "Two", 3: "Three", 4: "Four"}
	tests := []struct {
		name   string
		policy QAPolicy
		want   int
	}{
		{"always", QAAlways(), 4},
		{"never", QANever(), 0},
		{"from three", QAFromIndex(3), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &scriptedSource{ids: []string{"gA", "gB", "gC", "gD"}}
			h := newHarness(notes, Config{QAPolicy: tt.policy}, src)
			h.listener.repeat = &listenReply{text: "no"}

			if err := h.orch.Run(context.Background()); err != nil {
				t.Fatalf("Run returned error: %v", err)
			}
			if got := h.listener.Calls(); got != tt.want {
				t.Errorf("Expected %d Q&A windows, got %d", tt.want, got)
			}
		})
	}
}

func TestQA_ContextScope(t *testing.T) {
	notes := slides.NotesMap{1: "One", 2: "Two"}

	slide := newHarness(notes, Config{MaxTurns: 1}, nil)
	slide.listener.repeat = &listenReply{text: "why"}
	slide.orch.HandleEvent(context.Background(), "gB")
	if got := slide.answerer.contexts; len(got) != 1 || got[0] != "Two" {
		t.Errorf("Expected slide context, got %v", got)
	}

	deck := newHarness(notes, Config{MaxTurns: 1, ContextScope: ScopeDeck}, nil)
	deck.listener.repeat = &listenReply{text: "why"}
	deck.orch.HandleEvent(context.Background(), "gB")
	if got := deck.answerer.contexts; len(got) != 1 || got[0] != "One\nTwo" {
		t.Errorf("Expected deck context, got %v", got)
	}
}

type blockingSpeaker struct {
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (b *blockingSpeaker) Speak(ctx context.Context, text string) error {
	close(b.started)
	<-b.release
	b.ctxErr <- ctx.Err()
	return nil
}

func TestRun_ShutdownFinishesInFlightVisit(t *testing.T) {
	queue := events.NewQueue()
	speaker := &blockingSpeaker{
		started: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 1),
	}
	orch := New(Dependencies{
		Events:   queue,
		Resolver: newTracker("gA"),
		Notes:    slides.NotesMap{1: "Welcome"},
		Speaker:  speaker,
		Listener: &fakeListener{},
		Answerer: &fakeAnswerer{},
	}, Config{QAPolicy: QANever()}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- orch.Run(ctx) }()

	if err := queue.Push("gA"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	select {
	case <-speaker.started:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for narration to start")
	}

	cancel()
	queue.Close()
	close(speaker.release)

	if err := <-speaker.ctxErr; err != nil {
		t.Errorf("Expected in-flight narration context to survive shutdown, got %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil from Run on shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}
}

func TestRun_IdleUntilCancelled(t *testing.T) {
	speaker := &fakeSpeaker{}
	orch := New(Dependencies{
		Events:   events.NewQueue(),
		Resolver: newTracker(),
		Notes:    slides.NotesMap{1: "Welcome"},
		Speaker:  speaker,
		Listener: &fakeListener{},
		Answerer: &fakeAnswerer{},
	}, Config{}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := orch.Run(ctx); err != nil {
		t.Errorf("Expected nil on cancellation, got %v", err)
	}
	if len(speaker.Spoken()) != 0 {
		t.Error("Expected no narration before any slide event")
	}
	if orch.State() != StateIdleWait {
		t.Errorf("Expected idle_wait, got %v", orch.State())
	}
}
