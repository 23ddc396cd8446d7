package tts

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Speaker turns text into audible speech: synthesize, then play to the end.
type Speaker struct {
	synth  Synthesizer
	player AudioPlayer
	logger zerolog.Logger
}

// NewSpeaker pairs a synthesizer with a player.
func NewSpeaker(synth Synthesizer, player AudioPlayer, logger zerolog.Logger) *Speaker {
	return &Speaker{
		synth:  synth,
		player: player,
		logger: logger.With().Str("component", "speaker").Str("provider", synth.Name()).Logger(),
	}
}

// Speak blocks until text has been played. Blank text is a no-op.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	clip, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return err
	}

	s.logger.Debug().Int("bytes", len(clip.Data)).Str("format", clip.Format).Msg("Playing speech")
	if err := s.player.PlayBytes(ctx, clip.Data, clip.Format); err != nil {
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}
