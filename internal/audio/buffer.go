package audio

import (
	"sync"
)

// RingBuffer is a fixed-size byte ring that overwrites its oldest bytes when
// full. It holds the pre-roll audio captured before speech is detected.
type RingBuffer struct {
	buffer []byte
	start  int
	length int
	mu     sync.Mutex
}

// NewRingBuffer creates a ring holding at most size bytes
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{buffer: make([]byte, size)}
}

// Write appends data, discarding the oldest bytes once the ring is full.
func (rb *RingBuffer) Write(data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.buffer)
	if len(data) >= size {
		copy(rb.buffer, data[len(data)-size:])
		rb.start = 0
		rb.length = size
		return
	}

	for _, b := range data {
		end := (rb.start + rb.length) % size
		rb.buffer[end] = b
		if rb.length < size {
			rb.length++
		} else {
			rb.start = (rb.start + 1) % size
		}
	}
}

// Snapshot returns the buffered bytes in write order.
func (rb *RingBuffer) Snapshot() []byte {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	out := make([]byte, rb.length)
	size := len(rb.buffer)
	for i := 0; i < rb.length; i++ {
		out[i] = rb.buffer[(rb.start+i)%size]
	}
	return out
}

// Len returns the number of buffered bytes
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.length
}

// Clear empties the ring
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.start = 0
	rb.length = 0
}

// Utterance accumulates one spoken question: the pre-roll ring plus every
// frame after speech onset, capped at maxBytes.
type Utterance struct {
	preroll  *RingBuffer
	data     []byte
	maxBytes int
	started  bool
}

// NewUtterance creates an utterance buffer with prerollBytes of lookback.
func NewUtterance(prerollBytes, maxBytes int) *Utterance {
	return &Utterance{
		preroll:  NewRingBuffer(prerollBytes),
		maxBytes: maxBytes,
	}
}

// Add records a frame. Before Start it only feeds the pre-roll ring.
// It reports false once the cap is reached.
func (u *Utterance) Add(frame []byte) bool {
	if !u.started {
		u.preroll.Write(frame)
		return true
	}
	room := u.maxBytes - len(u.data)
	if room <= 0 {
		return false
	}
	if len(frame) > room {
		frame = frame[:room]
	}
	u.data = append(u.data, frame...)
	return len(u.data) < u.maxBytes
}

// Start marks speech onset, seeding the utterance with the pre-roll.
func (u *Utterance) Start() {
	if u.started {
		return
	}
	u.started = true
	pre := u.preroll.Snapshot()
	if len(pre) > u.maxBytes {
		pre = pre[len(pre)-u.maxBytes:]
	}
	u.data = append(u.data[:0], pre...)
	u.preroll.Clear()
}

// Started reports whether speech onset was marked.
func (u *Utterance) Started() bool {
	return u.started
}

// Bytes returns the captured PCM.
func (u *Utterance) Bytes() []byte {
	return u.data
}
