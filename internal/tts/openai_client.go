package tts

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/slide-narrator/internal/config"
	"github.com/lexiqai/slide-narrator/internal/observability"
	"github.com/lexiqai/slide-narrator/internal/resilience"
)

// OpenAIClient implements Synthesizer with the OpenAI speech endpoint.
type OpenAIClient struct {
	client         *openai.Client
	voice          openai.SpeechVoice
	retryConfig    *resilience.RetryConfig
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewOpenAIClient creates a speech client sharing the OpenAI credentials.
func NewOpenAIClient(cfg *config.Config, logger zerolog.Logger) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		oc.BaseURL = cfg.OpenAIBaseURL
	}

	cb := resilience.NewCircuitBreaker(
		"openai_tts",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	observability.ObserveCircuitBreaker(cb)

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(oc),
		voice:          openai.SpeechVoice(cfg.OpenAITTSVoice),
		retryConfig:    resilience.NewRetryConfig(cfg.RetryMaxAttempts, cfg.RetryInitialBackoff),
		circuitBreaker: cb,
		logger:         logger.With().Str("component", "tts").Str("provider", "openai").Logger(),
	}
}

// Name returns the provider name
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Synthesize converts text to MP3 audio
func (c *OpenAIClient) Synthesize(ctx context.Context, text string) (*Audio, error) {
	req := openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          c.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	}

	var data []byte
	start := time.Now()
	err := c.circuitBreaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			resp, err := c.client.CreateSpeech(ctx, req)
			if err != nil {
				return err
			}
			defer resp.Close()

			data, err = io.ReadAll(resp)
			if err != nil {
				return resilience.NewRetryableError(fmt.Errorf("failed to read audio: %w", err))
			}
			if len(data) == 0 {
				return fmt.Errorf("openai returned empty audio")
			}
			return nil
		}, c.retryConfig, resilience.IsRetryableNetworkError)
	})
	observability.RecordCapability("synthesize", start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("openai speech synthesis failed: %w", err)
	}

	c.logger.Debug().Int("bytes", len(data)).Dur("latency", time.Since(start)).Msg("Synthesized speech")
	return &Audio{Data: data, Format: "mp3"}, nil
}
