package tracker

import "sync"

// FallbackIndex is returned for identifiers that were never registered, and
// by Current before the first resolution.
const FallbackIndex = 1

// Tracker maps host-assigned slide object ids to 1-based slide indices and
// remembers the most recently resolved index.
type Tracker struct {
	mu      sync.RWMutex
	ids     map[string]int
	current int
}

// New creates an empty tracker.
func New() *Tracker {
	return &Tracker{
		ids:     make(map[string]int),
		current: FallbackIndex,
	}
}

// Register associates id with index. Re-registering an id overwrites it.
func (t *Tracker) Register(id string, index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids[id] = index
}

// Resolve returns the index registered for id, or FallbackIndex, and makes
// it the current index. It never fails.
func (t *Tracker) Resolve(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	index, ok := t.ids[id]
	if !ok {
		index = FallbackIndex
	}
	t.current = index
	return index
}

// Lookup reports the index registered for id without changing Current.
func (t *Tracker) Lookup(id string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	index, ok := t.ids[id]
	return index, ok
}

// Current returns the last resolved index.
func (t *Tracker) Current() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Len returns the number of registered identifiers.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ids)
}
