package events

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestParseFragment(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr error
	}{
		{"#slide=id.g42", "g42", nil},
		{"#slide=g42", "g42", nil},
		{"  #slide=id.p  ", "p", nil},
		{"#slide=", "", ErrEmptyIdentifier},
		{"#slide=id.", "", ErrEmptyIdentifier},
		{"slide=g42", "", ErrMalformedFragment},
		{"#page=3", "", ErrMalformedFragment},
		{"", "", ErrMalformedFragment},
	}

	for _, tt := range tests {
		got, err := ParseFragment(tt.raw)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ParseFragment(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseFragment(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for _, id := range []string{"gA", "gA", "gB", "gC"} {
		if err := q.Push(id); err != nil {
			t.Fatalf("Push failed: %v", err)
		}
	}

	ctx := context.Background()
	for _, want := range []string{"gA", "gA", "gB", "gC"} {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop failed: %v", err)
		}
		if got != want {
			t.Errorf("Pop() = %q, want %q", got, want)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue, got %d", q.Len())
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := NewQueue()
	const producers, perProducer = 8, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(fmt.Sprintf("p%d-%d", p, i))
			}
		}(p)
	}
	wg.Wait()

	// Per-producer order must survive interleaving.
	next := make(map[string]int)
	for i := 0; i < producers*perProducer; i++ {
		id, err := q.Pop(context.Background())
		if err != nil {
			t.Fatalf("Pop failed: %v", err)
		}
		var p, n int
		fmt.Sscanf(id, "p%d-%d", &p, &n)
		key := fmt.Sprintf("p%d", p)
		if n != next[key] {
			t.Fatalf("Producer %s out of order: got %d, want %d", key, n, next[key])
		}
		next[key]++
	}
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := NewQueue()
	got := make(chan string, 1)
	go func() {
		id, _ := q.Pop(context.Background())
		got <- id
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push("g7")

	select {
	case id := <-got:
		if id != "g7" {
			t.Errorf("Expected g7, got %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueue_PopContextCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue()
	errs := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()
	q.Close()

	select {
	case err := <-errs:
		if !errors.Is(err, ErrQueueClosed) {
			t.Errorf("Expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}

	if err := q.Push("g1"); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected Push after Close to fail, got %v", err)
	}
}

func newTestHandler() (*Handler, *Queue) {
	q := NewQueue()
	return NewHandler(q, zerolog.Nop()), q
}

func TestSlideChange_Queues(t *testing.T) {
	h, q := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/slide-change?hash="+url.QueryEscape("#slide=id.g42"), nil)
	rec := httptest.NewRecorder()
	h.SlideChange(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("Expected body 'ok', got %q", rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected CORS origin *, got %q", got)
	}
	if q.Len() != 1 {
		t.Fatalf("Expected 1 queued event, got %d", q.Len())
	}
	if id, _ := q.Pop(context.Background()); id != "g42" {
		t.Errorf("Expected g42, got %q", id)
	}
}

func TestSlideChange_DropsMalformed(t *testing.T) {
	h, q := newTestHandler()

	for _, hash := range []string{"", "#page=2", "slide=g1", "#slide="} {
		req := httptest.NewRequest(http.MethodGet, "/slide-change?hash="+url.QueryEscape(hash), nil)
		rec := httptest.NewRecorder()
		h.SlideChange(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("hash %q: expected 200, got %d", hash, rec.Code)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Expected malformed notifications to be dropped, queue has %d", q.Len())
	}
}

func TestSlideChange_Preflight(t *testing.T) {
	h, q := newTestHandler()

	req := httptest.NewRequest(http.MethodOptions, "/slide-change", nil)
	req.Header.Set("Origin", "https://docs.google.com")
	rec := httptest.NewRecorder()
	h.SlideChange(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "GET") {
		t.Errorf("Expected GET in allowed methods, got %q", got)
	}
	if q.Len() != 0 {
		t.Error("Expected preflight to have no side effect")
	}
}

func TestSlideChange_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler()
	rec := httptest.NewRecorder()
	h.SlideChange(rec, httptest.NewRequest(http.MethodPost, "/slide-change", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestSlideEvents_WebSocket(t *testing.T) {
	h, q := newTestHandler()
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/slide-events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"https://docs.google.com"}})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	frames := []string{`{"hash":"#slide=id.gA"}`, "#slide=gB", "garbage", `{"hash":"#nope"}`}
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, want := range []string{"gA", "gB"} {
		got, err := q.Pop(ctx)
		if err != nil {
			t.Fatalf("Pop failed: %v", err)
		}
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}
