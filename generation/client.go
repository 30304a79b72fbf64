package generation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semplan/llm"
	"github.com/c360studio/semplan/metrics"
)

// Backend is the generative text service: request in, raw text out.
// Implementations must be safe to retry.
type Backend interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// Decoder post-processes a parsed response. An error marks the response as
// malformed and the attempt is retried.
type Decoder func(value any) (any, error)

// CallOption configures a single Call.
type CallOption func(*callOptions)

type callOptions struct {
	decode Decoder
}

// WithDecoder applies decode to every successfully parsed response.
func WithDecoder(decode Decoder) CallOption {
	return func(o *callOptions) {
		o.decode = decode
	}
}

// Client issues generation requests with retries inside a shared Pool.
type Client struct {
	backend Backend
	pool    *Pool
	retry   RetryConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(c *Client) {
		c.retry = cfg
	}
}

// WithPool shares an existing worker pool.
func WithPool(p *Pool) ClientOption {
	return func(c *Client) {
		c.pool = p
	}
}

// WithMetrics records attempt results.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a generation client over backend.
func NewClient(backend Backend, opts ...ClientOption) *Client {
	c := &Client{
		backend: backend,
		retry:   DefaultRetryConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pool == nil {
		c.pool = NewPool(DefaultWorkers, c.metrics)
	}
	if c.retry.MaxAttempts < 1 {
		c.retry.MaxAttempts = 1
	}
	return c
}

// Call invokes the backend, sanitizes the reply and returns the parsed
// value. Backend errors and malformed replies are retried until
// MaxAttempts calls have been made, after which an *ExhaustedError is
// returned. The worker slot is released during backoff.
func (c *Client) Call(ctx context.Context, req Request, opts ...CallOption) (any, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		value, err := c.attempt(ctx, req, o)
		if err == nil {
			c.metrics.ObserveAttempt(req.Component, "success")
			if attempt > 1 {
				c.logger.Debug("Generation succeeded after retry",
					"component", req.Component,
					"attempt", attempt)
			}
			return value, nil
		}

		lastErr = err
		c.metrics.ObserveAttempt(req.Component, attemptResult(err))
		c.logger.Warn("Generation attempt failed",
			"component", req.Component,
			"attempt", attempt,
			"max_attempts", c.retry.MaxAttempts,
			"error", err)

		if attempt < c.retry.MaxAttempts {
			backoff := c.retry.Delay(attempt)
			select {
			case <-ctx.Done():
				return nil, &ExhaustedError{Component: req.Component, Attempts: attempt, LastErr: ctx.Err()}
			case <-time.After(backoff):
			}
		}
	}

	return nil, &ExhaustedError{
		Component: req.Component,
		Attempts:  c.retry.MaxAttempts,
		LastErr:   lastErr,
	}
}

// attempt performs exactly one backend call inside the pool.
func (c *Client) attempt(ctx context.Context, req Request, o callOptions) (any, error) {
	var raw string
	err := c.pool.Do(ctx, func(ctx context.Context) error {
		var invokeErr error
		raw, invokeErr = c.backend.Invoke(ctx, req)
		return invokeErr
	})
	if err != nil {
		return nil, err
	}

	value, err := llm.Clean(raw)
	if err != nil {
		return nil, err
	}

	if o.decode != nil {
		value, err = o.decode(value)
		if err != nil {
			if llm.IsMalformed(err) {
				return nil, err
			}
			return nil, llm.NewMalformedResponseError(raw, err)
		}
	}
	return value, nil
}

func attemptResult(err error) string {
	if llm.IsMalformed(err) {
		return "malformed"
	}
	return "backend_error"
}

// LLMBackend adapts an llm.Client to the Backend interface.
type LLMBackend struct {
	client *llm.Client
}

// NewLLMBackend wraps client.
func NewLLMBackend(client *llm.Client) *LLMBackend {
	return &LLMBackend{client: client}
}

// Invoke sends the system and user prompts as a two-message chat.
func (b *LLMBackend) Invoke(ctx context.Context, req Request) (string, error) {
	temperature := req.Temperature
	messages := make([]llm.Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.UserPrompt})

	resp, err := b.client.Complete(ctx, llm.Request{
		Model:       req.ModelID,
		Capability:  req.Capability,
		Messages:    messages,
		Temperature: &temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("complete %s: %w", req.Component, err)
	}
	return resp.Content, nil
}
