package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/slide-narrator/internal/config"
	"github.com/lexiqai/slide-narrator/internal/narrator"
	"github.com/lexiqai/slide-narrator/internal/playback"
	"github.com/lexiqai/slide-narrator/internal/qa"
	"github.com/lexiqai/slide-narrator/internal/slides"
	"github.com/lexiqai/slide-narrator/internal/stt"
	"github.com/lexiqai/slide-narrator/internal/tracker"
	"github.com/lexiqai/slide-narrator/internal/tts"
)

type capabilities struct {
	speaker  narrator.Speaker
	listener narrator.Listener
	answerer narrator.Answerer
	cue      narrator.Cue
}

// newLoader picks the notes source. A deck file wins over a Slides URL.
func newLoader(cfg *config.Config) (slides.Loader, error) {
	if cfg.NotesFile != "" {
		return slides.NewFileLoader(cfg.NotesFile), nil
	}
	return slides.NewGoogleLoader(cfg.SlidesURL, cfg.GoogleCredentialsPath)
}

func loadNotes(ctx context.Context, cfg *config.Config, tr *tracker.Tracker, logger zerolog.Logger) (slides.NotesMap, error) {
	loader, err := newLoader(cfg)
	if err != nil {
		return nil, err
	}

	deck, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	registered := deck.RegisterWith(tr)
	notes := deck.Notes()

	logger.Info().
		Str("presentation_id", deck.PresentationID).
		Int("slides", len(deck.Slides)).
		Int("registered_ids", registered).
		Ints("slides_with_notes", notes.Indices()).
		Msg("Speaker notes loaded")

	return notes, nil
}

func buildCapabilities(cfg *config.Config, logger zerolog.Logger) (*capabilities, error) {
	player, err := playback.NewPlayer(cfg.PlayerCommand, logger)
	if err != nil {
		return nil, err
	}

	var synth tts.Synthesizer
	switch cfg.TTSProvider {
	case "openai":
		synth = tts.NewOpenAIClient(cfg, logger)
	default:
		synth = tts.NewElevenLabsClient(cfg, logger)
	}

	recorder, err := stt.NewCommandRecorder(cfg.RecordCommand)
	if err != nil {
		return nil, err
	}

	var transcriber stt.Transcriber
	switch cfg.STTProvider {
	case "deepgram":
		transcriber = stt.NewDeepgramTranscriber(cfg, logger)
	default:
		transcriber = stt.NewWhisperTranscriber(cfg)
	}

	listener := stt.NewMicListener(recorder, transcriber, stt.MicListenerConfig{
		SampleRate:        cfg.AudioSampleRate,
		EnergyThreshold:   cfg.VADEnergyThreshold,
		SilenceFrames:     cfg.VADSilenceFrames,
		TranscribeReserve: time.Duration(cfg.STTTranscribeReserve) * time.Millisecond,
	}, logger)

	caps := &capabilities{
		speaker:  tts.NewSpeaker(synth, player, logger),
		listener: listener,
		answerer: qa.NewClient(cfg, logger),
	}

	if cfg.ChimePath != "" {
		chime, err := playback.NewChime(player, cfg.ChimePath)
		if err != nil {
			return nil, fmt.Errorf("chime: %w", err)
		}
		caps.cue = chime
	}

	logger.Info().
		Strs("player", player.Command()).
		Str("synthesizer", synth.Name()).
		Str("transcriber", transcriber.Name()).
		Bool("chime", caps.cue != nil).
		Msg("Voice capabilities ready")

	return caps, nil
}
