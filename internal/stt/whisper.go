package stt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/slide-narrator/internal/audio"
	"github.com/lexiqai/slide-narrator/internal/config"
	"github.com/lexiqai/slide-narrator/internal/observability"
	"github.com/lexiqai/slide-narrator/internal/resilience"
)

// WhisperTranscriber uploads each utterance as WAV to the OpenAI
// transcription endpoint.
type WhisperTranscriber struct {
	client         *openai.Client
	language       string
	retryConfig    *resilience.RetryConfig
	circuitBreaker *resilience.CircuitBreaker
}

// NewWhisperTranscriber creates a transcriber sharing the OpenAI credentials.
func NewWhisperTranscriber(cfg *config.Config) *WhisperTranscriber {
	oc := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		oc.BaseURL = cfg.OpenAIBaseURL
	}

	cb := resilience.NewCircuitBreaker(
		"whisper",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	observability.ObserveCircuitBreaker(cb)

	return &WhisperTranscriber{
		client:         openai.NewClientWithConfig(oc),
		language:       cfg.STTLanguage,
		retryConfig:    resilience.NewRetryConfig(cfg.RetryMaxAttempts, cfg.RetryInitialBackoff),
		circuitBreaker: cb,
	}
}

// Name returns the provider name
func (w *WhisperTranscriber) Name() string {
	return "whisper"
}

// Transcribe sends pcm to whisper-1 and returns the raw text.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	wav, err := audio.EncodeWAV(pcm, sampleRate)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	var text string
	err = w.circuitBreaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
				Model:    openai.Whisper1,
				Reader:   bytes.NewReader(wav),
				FilePath: "question.wav",
				Language: w.language,
				Format:   openai.AudioResponseFormatJSON,
			})
			if err != nil {
				return err
			}
			text = resp.Text
			return nil
		}, w.retryConfig, resilience.IsRetryableNetworkError)
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return text, nil
}
