// Package slides loads a presentation's speaker notes, keyed by 1-based
// slide index.
package slides

import (
	"context"
	"sort"
	"strings"
)

// Slide is one page of the presentation in display order.
type Slide struct {
	Index    int    // 1-based position
	ObjectID string // host-assigned object id, may be empty
	Notes    string // normalised speaker notes, may be empty
}

// Deck is a loaded presentation.
type Deck struct {
	PresentationID string
	Slides         []Slide
}

// Loader fetches a deck once at startup.
type Loader interface {
	Load(ctx context.Context) (*Deck, error)
}

// Registrar receives object id to index associations.
type Registrar interface {
	Register(id string, index int)
}

// NotesMap maps slide index to non-empty notes text. It is never mutated
// after construction.
type NotesMap map[int]string

// Get returns the notes for index. Missing and empty entries are equivalent.
func (m NotesMap) Get(index int) (string, bool) {
	text, ok := m[index]
	return text, ok && text != ""
}

// Indices returns the indices that have notes, ascending.
func (m NotesMap) Indices() []int {
	out := make([]int, 0, len(m))
	for idx := range m {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// DeckContext joins every slide's notes with newlines in index order.
func (m NotesMap) DeckContext() string {
	indices := m.Indices()
	parts := make([]string, 0, len(indices))
	for _, idx := range indices {
		parts = append(parts, m[idx])
	}
	return strings.Join(parts, "\n")
}

// Notes builds the NotesMap, omitting slides without notes.
func (d *Deck) Notes() NotesMap {
	notes := make(NotesMap, len(d.Slides))
	for _, s := range d.Slides {
		if s.Notes != "" {
			notes[s.Index] = s.Notes
		}
	}
	return notes
}

// RegisterWith hands every slide's object id to r.
func (d *Deck) RegisterWith(r Registrar) int {
	n := 0
	for _, s := range d.Slides {
		if s.ObjectID == "" {
			continue
		}
		r.Register(s.ObjectID, s.Index)
		n++
	}
	return n
}

// NormalizeNotes collapses all whitespace runs to single spaces.
func NormalizeNotes(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
