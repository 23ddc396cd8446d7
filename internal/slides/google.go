package slides

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/api/option"
	gslides "google.golang.org/api/slides/v1"
)

// ErrInvalidPresentationURL is returned when no presentation id can be found
// in a Google Slides URL.
var ErrInvalidPresentationURL = errors.New("invalid Google Slides URL")

var presentationIDPattern = regexp.MustCompile(`/d/([A-Za-z0-9_-]+)`)

// ParsePresentationID extracts the presentation id from a Google Slides URL.
func ParsePresentationID(url string) (string, error) {
	m := presentationIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPresentationURL, url)
	}
	return m[1], nil
}

// GoogleLoader reads speaker notes through the Slides API with a service
// account.
type GoogleLoader struct {
	presentationID string
	opts           []option.ClientOption
}

// NewGoogleLoader validates the URL and prepares a loader authenticated with
// the service account file at credentialsPath. Extra options are appended
// after the defaults.
func NewGoogleLoader(slidesURL, credentialsPath string, extra ...option.ClientOption) (*GoogleLoader, error) {
	id, err := ParsePresentationID(slidesURL)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithScopes(gslides.PresentationsReadonlyScope)}
	if credentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsPath))
	}
	opts = append(opts, extra...)

	return &GoogleLoader{presentationID: id, opts: opts}, nil
}

// PresentationID returns the parsed presentation id.
func (l *GoogleLoader) PresentationID() string {
	return l.presentationID
}

// Load fetches the presentation and extracts per-slide notes.
func (l *GoogleLoader) Load(ctx context.Context) (*Deck, error) {
	srv, err := gslides.NewService(ctx, l.opts...)
	if err != nil {
		return nil, fmt.Errorf("slides: create service: %w", err)
	}

	pres, err := srv.Presentations.Get(l.presentationID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("slides: get presentation %s: %w", l.presentationID, err)
	}

	deck := &Deck{
		PresentationID: l.presentationID,
		Slides:         make([]Slide, 0, len(pres.Slides)),
	}
	for i, page := range pres.Slides {
		deck.Slides = append(deck.Slides, Slide{
			Index:    i + 1,
			ObjectID: page.ObjectId,
			Notes:    NormalizeNotes(notesText(page)),
		})
	}
	return deck, nil
}

func notesText(page *gslides.Page) string {
	if page == nil || page.SlideProperties == nil || page.SlideProperties.NotesPage == nil {
		return ""
	}

	var sb strings.Builder
	for _, el := range page.SlideProperties.NotesPage.PageElements {
		if el == nil || el.Shape == nil || el.Shape.Text == nil {
			continue
		}
		for _, te := range el.Shape.Text.TextElements {
			if te != nil && te.TextRun != nil {
				sb.WriteString(te.TextRun.Content)
			}
		}
	}
	return sb.String()
}
