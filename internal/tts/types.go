package tts

import "context"

// Audio is a synthesized utterance in a container format a system player
// understands.
type Audio struct {
	Data   []byte
	Format string // file extension, e.g. "mp3"
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize renders text and returns the whole clip
	Synthesize(ctx context.Context, text string) (*Audio, error)

	// Name identifies the provider in logs and metrics
	Name() string
}

// AudioPlayer plays an encoded clip and blocks until playback ends.
type AudioPlayer interface {
	PlayBytes(ctx context.Context, data []byte, format string) error
}
