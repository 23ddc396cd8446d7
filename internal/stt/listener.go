package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/slide-narrator/internal/audio"
	"github.com/lexiqai/slide-narrator/internal/observability"
)

const (
	frameMs   = 20
	prerollMs = 300
)

// MicListenerConfig tunes capture and end-of-speech detection.
type MicListenerConfig struct {
	SampleRate        int
	EnergyThreshold   float64
	SilenceFrames     int
	TranscribeReserve time.Duration // part of each listen window kept for transcription
}

// MicListener records from a Recorder until the speaker stops, then
// transcribes the utterance.
type MicListener struct {
	recorder    Recorder
	transcriber Transcriber
	config      MicListenerConfig
	logger      zerolog.Logger
}

// NewMicListener creates a listener.
func NewMicListener(recorder Recorder, transcriber Transcriber, cfg MicListenerConfig, logger zerolog.Logger) *MicListener {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &MicListener{
		recorder:    recorder,
		transcriber: transcriber,
		config:      cfg,
		logger:      logger.With().Str("component", "stt").Str("provider", transcriber.Name()).Logger(),
	}
}

// Listen captures for at most timeout minus the transcription reserve (never
// less than half of timeout) and returns "" when no speech was detected or
// the transcript is too short to be a question.
func (l *MicListener) Listen(ctx context.Context, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	pcm, err := l.capture(ctx, l.captureWindow(timeout))
	if err != nil {
		return "", err
	}
	if pcm == nil {
		l.logger.Debug().Dur("timeout", timeout).Msg("No speech detected")
		return "", nil
	}

	start := time.Now()
	raw, err := l.transcriber.Transcribe(ctx, pcm, l.config.SampleRate)
	observability.RecordCapability("transcribe", start, err == nil)
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	text := CleanTranscript(raw)
	l.logger.Debug().
		Str("raw", raw).
		Str("cleaned", text).
		Int("audio_ms", audio.Duration(pcm, l.config.SampleRate)).
		Msg("Transcribed utterance")

	if !usable(text) {
		return "", nil
	}
	return text, nil
}

func (l *MicListener) captureWindow(timeout time.Duration) time.Duration {
	window := timeout - l.config.TranscribeReserve
	if window < timeout/2 {
		window = timeout / 2
	}
	return window
}

// capture returns the utterance PCM, or nil when speech never started.
func (l *MicListener) capture(ctx context.Context, window time.Duration) ([]byte, error) {
	captureCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	stream, err := l.recorder.Open(captureCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to open microphone: %w", err)
	}
	defer stream.Close()

	// Close the stream at the window edge so a blocked read returns.
	go func() {
		<-captureCtx.Done()
		stream.Close()
	}()

	rate := l.config.SampleRate
	frameBytes := audio.FrameBytes(rate, frameMs)
	vad := audio.NewVADDetector(&audio.VADConfig{
		EnergyThreshold: l.config.EnergyThreshold,
		StartFrames:     audio.DefaultVADConfig().StartFrames,
		SilenceFrames:   l.config.SilenceFrames,
		FrameSize:       frameBytes / 2,
	})
	maxBytes := int(window.Seconds() * float64(rate) * 2)
	utterance := audio.NewUtterance(audio.FrameBytes(rate, prerollMs), maxBytes)

	frame := make([]byte, frameBytes)
	for {
		if _, err := io.ReadFull(stream, frame); err != nil {
			if captureCtx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				l.logger.Warn().Err(err).Msg("Microphone read ended unexpectedly")
			}
			break
		}

		event := vad.ProcessFrame(audio.BytesToSamples(frame))
		if event == audio.VADSpeechStart {
			utterance.Start()
		}
		if !utterance.Add(frame) {
			break
		}
		if event == audio.VADSpeechEnd {
			break
		}
	}

	if !utterance.Started() {
		return nil, nil
	}
	return utterance.Bytes(), nil
}
