package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/slide-narrator/internal/config"
	"github.com/lexiqai/slide-narrator/internal/observability"
	"github.com/lexiqai/slide-narrator/internal/resilience"
)

const defaultElevenLabsURL = "https://api.elevenlabs.io"

// ElevenLabsClient implements Synthesizer using the ElevenLabs REST API
type ElevenLabsClient struct {
	apiKey         string
	baseURL        string
	voiceID        string
	modelID        string
	outputFormat   string
	httpClient     *http.Client
	retryConfig    *resilience.RetryConfig
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// ElevenLabsRequest represents the request payload for text-to-speech
type ElevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id,omitempty"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// VoiceSettings tunes the ElevenLabs voice
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// NewElevenLabsClient creates a new ElevenLabs TTS client
func NewElevenLabsClient(cfg *config.Config, logger zerolog.Logger) *ElevenLabsClient {
	cb := resilience.NewCircuitBreaker(
		"elevenlabs",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	observability.ObserveCircuitBreaker(cb)

	return &ElevenLabsClient{
		apiKey:         cfg.ElevenLabsAPIKey,
		baseURL:        defaultElevenLabsURL,
		voiceID:        cfg.ElevenLabsVoiceID,
		modelID:        cfg.ElevenLabsModelID,
		outputFormat:   cfg.ElevenLabsOutputFormat,
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		retryConfig:    resilience.NewRetryConfig(cfg.RetryMaxAttempts, cfg.RetryInitialBackoff),
		circuitBreaker: cb,
		logger:         logger.With().Str("component", "tts").Str("provider", "elevenlabs").Logger(),
	}
}

// WithBaseURL points the client at a different API host.
func (c *ElevenLabsClient) WithBaseURL(baseURL string) *ElevenLabsClient {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Name returns the provider name
func (c *ElevenLabsClient) Name() string {
	return "elevenlabs"
}

// Synthesize converts text to audio
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) (*Audio, error) {
	body, err := json.Marshal(ElevenLabsRequest{
		Text:    text,
		ModelID: c.modelID,
		VoiceSettings: VoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var data []byte
	start := time.Now()
	err = c.circuitBreaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			var callErr error
			data, callErr = c.post(ctx, body)
			return callErr
		}, c.retryConfig, resilience.IsRetryableNetworkError)
	})
	observability.RecordCapability("synthesize", start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs synthesis failed: %w", err)
	}

	c.logger.Debug().
		Int("bytes", len(data)).
		Int("text_length", len(text)).
		Dur("latency", time.Since(start)).
		Msg("Synthesized speech")

	return &Audio{Data: data, Format: formatExtension(c.outputFormat)}, nil
}

func (c *ElevenLabsClient) post(ctx context.Context, body []byte) ([]byte, error) {
	u := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		c.baseURL, url.PathEscape(c.voiceID), url.QueryEscape(c.outputFormat))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := fmt.Errorf("elevenlabs API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, resilience.NewRetryableError(statusErr)
		}
		return nil, statusErr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("elevenlabs returned empty audio")
	}
	return data, nil
}

// formatExtension maps an output format such as mp3_44100_128 to a file
// extension.
func formatExtension(outputFormat string) string {
	codec, _, _ := strings.Cut(outputFormat, "_")
	if codec == "" {
		return "mp3"
	}
	return codec
}
