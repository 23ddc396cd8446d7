// Package qa answers audience questions about the presentation with an
// OpenAI chat model.
package qa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/lexiqai/slide-narrator/internal/config"
	"github.com/lexiqai/slide-narrator/internal/observability"
	"github.com/lexiqai/slide-narrator/internal/resilience"
)

// SystemPrompt frames every answer.
const SystemPrompt = "You are a concise assistant answering slide-related questions."

// ErrEmptyAnswer is returned when the model produced no text.
var ErrEmptyAnswer = errors.New("qa: model returned an empty answer")

// Client calls the chat completions API.
type Client struct {
	client         *openai.Client
	model          string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	retryConfig    *resilience.RetryConfig
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewClient creates an answer client from the service configuration.
func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	oc := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		oc.BaseURL = cfg.OpenAIBaseURL
	}

	cb := resilience.NewCircuitBreaker(
		"answer",
		cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
	)
	observability.ObserveCircuitBreaker(cb)

	return &Client{
		client:         openai.NewClientWithConfig(oc),
		model:          cfg.OpenAIModel,
		temperature:    cfg.OpenAITemperature,
		maxTokens:      cfg.OpenAIMaxTokens,
		timeout:        cfg.AnswerTimeoutDuration(),
		retryConfig:    resilience.NewRetryConfig(cfg.RetryMaxAttempts, cfg.RetryInitialBackoff),
		circuitBreaker: cb,
		logger:         logger.With().Str("component", "qa").Logger(),
	}
}

// Answer asks the model question, grounded in notesContext.
func (c *Client) Answer(ctx context.Context, question, notesContext string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    BuildMessages(question, notesContext),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	var answer string
	start := time.Now()
	err := c.circuitBreaker.Call(func() error {
		return resilience.Retry(ctx, func(ctx context.Context) error {
			resp, err := c.client.CreateChatCompletion(ctx, req)
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return ErrEmptyAnswer
			}
			answer = strings.TrimSpace(resp.Choices[0].Message.Content)
			if answer == "" {
				return ErrEmptyAnswer
			}
			return nil
		}, c.retryConfig, isRetryableError)
	})
	if err != nil {
		return "", fmt.Errorf("qa: chat completion: %w", err)
	}

	c.logger.Debug().
		Str("model", c.model).
		Dur("latency", time.Since(start)).
		Int("answer_length", len(answer)).
		Msg("Answer received")
	return answer, nil
}

// BuildMessages returns the chat transcript sent for one question.
func BuildMessages(question, notesContext string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Context:\n%s\n\nQuestion: %s", notesContext, question)},
	}
}

func isRetryableError(err error) bool {
	if errors.Is(err, ErrEmptyAnswer) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return resilience.IsRetryableNetworkError(err)
}
