package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// maxAttempts bounds the retry loop: one initial call plus two retries.
	maxAttempts = 3

	defaultCallTimeout  = 120 * time.Second
	availabilityTimeout = 10 * time.Second
)

// Config selects the provider endpoint and model for one client instance.
type Config struct {
	APIKey  string
	BaseURL string // empty means the provider default
	Model   string
	Timeout time.Duration // per-call default, zero means defaultCallTimeout
	Sink    *DebugSink    // nil disables the debug transcript
}

// chatCompleter is the slice of the OpenAI SDK the client uses. Tests inject
// scripted implementations.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
type OpenAIClient struct {
	chat    chatCompleter
	model   string
	timeout time.Duration
	sink    *DebugSink
	logger  *slog.Logger
}

// NewOpenAIClient builds a client for the configured endpoint.
func NewOpenAIClient(cfg Config, logger *slog.Logger) *OpenAIClient {
	sdkCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIClient{
		chat:    openai.NewClientWithConfig(sdkCfg),
		model:   cfg.Model,
		timeout: timeout,
		sink:    cfg.Sink,
		logger:  logger.With("component", "llm", "model", cfg.Model),
	}
}

// Generate implements Client.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, opts CallOptions) (string, error) {
	watched, stop := opts.watchCancel(ctx)
	defer stop()

	var out string
	attempt := 0
	op := func() error {
		attempt++
		if opts.cancelled() {
			return backoff.Permanent(ErrCancelled)
		}

		callCtx, cancel := context.WithTimeout(watched, c.callTimeout(opts))
		defer cancel()

		start := time.Now()
		resp, err := c.chat.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		elapsed := time.Since(start)

		if err != nil {
			c.sink.Record(c.model, prompt, "", err, elapsed)
			if opts.cancelled() {
				return backoff.Permanent(ErrCancelled)
			}
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("LLM call failed, will retry",
				"attempt", attempt,
				"max_attempts", maxAttempts,
				"error", err)
			return err
		}
		if len(resp.Choices) == 0 {
			c.sink.Record(c.model, prompt, "", errEmptyResponse, elapsed)
			return errEmptyResponse
		}

		out = resp.Choices[0].Message.Content
		c.sink.Record(c.model, prompt, out, nil, elapsed)
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(newBackOff(), watched)); err != nil {
		if errors.Is(err, ErrCancelled) || opts.cancelled() {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("llm call failed after %d attempt(s): %w", attempt, err)
	}
	return out, nil
}

// IsAvailable implements Client with a minimal one-token completion.
func (c *OpenAIClient) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	_, err := c.chat.CreateChatCompletion(probeCtx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: 1,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "ping"},
		},
	})
	return err == nil
}

// Close implements Client. The SDK holds no connection state beyond the
// default HTTP transport.
func (c *OpenAIClient) Close() error {
	return nil
}

func (c *OpenAIClient) callTimeout(opts CallOptions) time.Duration {
	if opts.Timeout > 0 {
		return opts.Timeout
	}
	return c.timeout
}

var errEmptyResponse = errors.New("llm returned no choices")

// newBackOff configures the retry schedule: 1s initial, doubling, no jitter,
// capped by maxAttempts.
func newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	return backoff.WithMaxRetries(bo, maxAttempts-1)
}

// isRetryable classifies failures: transport errors, timeouts, rate limits
// and server-side errors retry; client-side errors do not.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Unclassified errors from the transport layer are treated as transient.
	return true
}
