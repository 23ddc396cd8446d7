package slides

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DeckFile is the on-disk YAML form of a deck, used for rehearsals and for
// presentations that do not live in Google Slides.
//
//	presentation: quarterly-review
//	slides:
//	  - id: g1
//	    notes: Welcome everyone.
//	  - id: g2
type DeckFile struct {
	Presentation string          `yaml:"presentation"`
	Slides       []DeckFileSlide `yaml:"slides"`
}

// DeckFileSlide is one entry of DeckFile.Slides. Position in the list is the
// slide index.
type DeckFileSlide struct {
	ID    string `yaml:"id"`
	Notes string `yaml:"notes"`
}

// FileLoader reads a DeckFile from disk.
type FileLoader struct {
	path string
}

// NewFileLoader creates a loader for path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load reads and parses the deck file.
func (l *FileLoader) Load(ctx context.Context) (*Deck, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("slides: open deck file %q: %w", l.path, err)
	}
	defer f.Close()

	deck, err := LoadDeckFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("slides: parse deck file %q: %w", l.path, err)
	}
	return deck, nil
}

// LoadDeckFromReader parses deck YAML. Unknown keys are rejected.
func LoadDeckFromReader(r io.Reader) (*Deck, error) {
	var df DeckFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&df); err != nil {
		return nil, fmt.Errorf("decode deck yaml: %w", err)
	}

	deck := &Deck{
		PresentationID: df.Presentation,
		Slides:         make([]Slide, 0, len(df.Slides)),
	}
	for i, s := range df.Slides {
		deck.Slides = append(deck.Slides, Slide{
			Index:    i + 1,
			ObjectID: s.ID,
			Notes:    NormalizeNotes(s.Notes),
		})
	}
	return deck, nil
}
