package events

import (
	"context"
	"errors"
	"sync"

	"github.com/lexiqai/slide-narrator/internal/observability"
)

// ErrQueueClosed is returned by Push and Pop once Close has been called.
var ErrQueueClosed = errors.New("event queue closed")

// Queue is an unbounded FIFO of raw slide identifiers. Any number of
// producers may Push concurrently; a single consumer drains it with Pop.
type Queue struct {
	mu     sync.Mutex
	items  []string
	ready  chan struct{}
	done   chan struct{}
	closed bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends id. It never blocks.
func (q *Queue) Push(id string) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, id)
	depth := len(q.items)
	q.mu.Unlock()

	observability.SetQueueDepth(depth)

	// Wake the consumer; a pending signal already covers this item.
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Pop blocks until an identifier is available, ctx is done or the queue is
// closed. Items still queued at Close are discarded.
func (q *Queue) Pop(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return "", ErrQueueClosed
		}
		if len(q.items) > 0 {
			id := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			depth := len(q.items)
			q.mu.Unlock()
			observability.SetQueueDepth(depth)
			return id, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.done:
		case <-q.ready:
		}
	}
}

// Len returns the number of queued identifiers.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue. Further Push calls fail and a blocked Pop returns
// ErrQueueClosed. Close is idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
	observability.SetQueueDepth(0)
}
