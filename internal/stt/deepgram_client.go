package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/slide-narrator/internal/audio"
	"github.com/lexiqai/slide-narrator/internal/config"
	"github.com/lexiqai/slide-narrator/internal/observability"
	"github.com/lexiqai/slide-narrator/internal/resilience"
)

const (
	deepgramChunkMs  = 100
	deepgramMulawHz  = 8000
	deepgramSettleMs = 700
)

// messageCallbackHandler embeds the default handler and overrides only the
// methods we need
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

// Message forwards transcription results
func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

// Error reports provider errors to the active session
func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.errorHandler != nil {
		return m.errorHandler(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// DeepgramTranscriber streams each utterance over a Deepgram live websocket
// and collects the final results.
type DeepgramTranscriber struct {
	apiKey          string
	model           string
	language        string
	encoding        string
	reconnectConfig *resilience.ReconnectConfig
	circuitBreaker  *resilience.CircuitBreaker
	logger          zerolog.Logger
}

// NewDeepgramTranscriber creates a Deepgram transcriber
func NewDeepgramTranscriber(cfg *config.Config, logger zerolog.Logger) *DeepgramTranscriber {
	cb := resilience.NewCircuitBreaker(
		"deepgram",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	observability.ObserveCircuitBreaker(cb)

	return &DeepgramTranscriber{
		apiKey:   cfg.DeepgramAPIKey,
		model:    cfg.DeepgramModel,
		language: cfg.STTLanguage,
		encoding: cfg.DeepgramEncoding,
		reconnectConfig: &resilience.ReconnectConfig{
			MaxAttempts: cfg.ReconnectMaxAttempts,
			Backoff:     time.Duration(cfg.ReconnectBackoff) * time.Millisecond,
			Multiplier:  2.0,
			MaxBackoff:  5 * time.Second,
		},
		circuitBreaker: cb,
		logger:         logger.With().Str("component", "stt").Str("provider", "deepgram").Logger(),
	}
}

// Name returns the provider name
func (d *DeepgramTranscriber) Name() string {
	return "deepgram"
}

// Transcribe streams pcm and returns the concatenated final transcripts.
func (d *DeepgramTranscriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	payload, rate, err := d.encode(pcm, sampleRate)
	if err != nil {
		return "", err
	}

	var text string
	err = d.circuitBreaker.Call(func() error {
		var callErr error
		text, callErr = d.stream(ctx, payload, rate)
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("deepgram transcription: %w", err)
	}
	return text, nil
}

// LiveOptions returns the transcription options for a session at rate.
func (d *DeepgramTranscriber) LiveOptions(rate int) *interfaces.LiveTranscriptionOptions {
	return &interfaces.LiveTranscriptionOptions{
		Model:       d.model,
		Language:    d.language,
		Punctuate:   true,
		SmartFormat: true,
		Encoding:    d.encoding,
		Channels:    1,
		SampleRate:  rate,
	}
}

func (d *DeepgramTranscriber) encode(pcm []byte, sampleRate int) ([]byte, int, error) {
	if d.encoding != "mulaw" {
		return pcm, sampleRate, nil
	}
	ulaw, err := audio.PCMToMulaw(pcm, sampleRate, deepgramMulawHz)
	if err != nil {
		return nil, 0, fmt.Errorf("encode mulaw: %w", err)
	}
	return ulaw, deepgramMulawHz, nil
}

func (d *DeepgramTranscriber) stream(ctx context.Context, payload []byte, rate int) (string, error) {
	session := newTranscriptCollector()
	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                session.handleMessage,
		errorHandler: func(errorResponse *msginterfaces.ErrorResponse) error {
			d.logger.Error().Interface("response", errorResponse).Msg("Deepgram error")
			session.fail(fmt.Errorf("deepgram error: %+v", errorResponse))
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(ctx, d.apiKey, nil, d.LiveOptions(rate), callback)
	if err != nil {
		return "", fmt.Errorf("failed to create Deepgram client: %w", err)
	}

	err = resilience.Reconnect(ctx, func() error {
		if !client.Connect() {
			return errors.New("deepgram websocket connect failed")
		}
		return nil
	}, d.reconnectConfig)
	if err != nil {
		return "", err
	}
	defer client.Finish()

	chunk := rate * deepgramChunkMs / 1000
	if d.encoding != "mulaw" {
		chunk *= 2
	}
	for off := 0; off < len(payload); off += chunk {
		end := off + chunk
		if end > len(payload) {
			end = len(payload)
		}
		if _, err := client.Write(payload[off:end]); err != nil {
			return "", resilience.NewRetryableError(fmt.Errorf("failed to send audio to Deepgram: %w", err))
		}
	}

	return session.wait(ctx, deepgramSettleMs*time.Millisecond)
}

// transcriptCollector gathers final results of one streaming session.
type transcriptCollector struct {
	mu      sync.Mutex
	finals  []string
	err     error
	updates chan struct{}
}

func newTranscriptCollector() *transcriptCollector {
	return &transcriptCollector{updates: make(chan struct{}, 1)}
}

func (c *transcriptCollector) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil || len(msg.Channel.Alternatives) == 0 {
		return
	}
	result := TranscriptionResult{
		Text:       strings.TrimSpace(msg.Channel.Alternatives[0].Transcript),
		IsFinal:    msg.IsFinal,
		Confidence: msg.Channel.Alternatives[0].Confidence,
	}
	c.add(result)
}

func (c *transcriptCollector) add(result TranscriptionResult) {
	c.mu.Lock()
	if result.IsFinal && result.Text != "" {
		c.finals = append(c.finals, result.Text)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *transcriptCollector) fail(err error) {
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	c.notify()
}

func (c *transcriptCollector) notify() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// wait returns once no message has arrived for settle, an error was
// reported or ctx is done.
func (c *transcriptCollector) wait(ctx context.Context, settle time.Duration) (string, error) {
	timer := time.NewTimer(settle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.result()
		case <-timer.C:
			return c.result()
		case <-c.updates:
			c.mu.Lock()
			failed := c.err != nil
			c.mu.Unlock()
			if failed {
				return c.result()
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(settle)
		}
	}
}

func (c *transcriptCollector) result() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return strings.Join(c.finals, " "), nil
}
