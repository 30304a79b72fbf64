// Package llm provides a provider-agnostic client for the generative text
// backend, together with error classification and response sanitation.
// It integrates with the model.Registry for capability-based model selection.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/c360studio/semplan/metrics"
	"github.com/c360studio/semplan/model"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client sends single completion attempts to a configured endpoint,
// falling back across the capability chain. Retries belong to the caller.
type Client struct {
	registry   *model.Registry
	httpClient *http.Client
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines an LLM completion request.
type Request struct {
	// Model names a registry endpoint to try first. Optional.
	Model string

	// Capability selects the fallback chain ("writing", "fast", ...).
	Capability string

	// Messages is the chat history to send to the LLM.
	Messages []Message

	// Temperature controls randomness. nil uses endpoint default, 0 is deterministic.
	Temperature *float64

	// MaxTokens limits response length. 0 uses endpoint default.
	MaxTokens int

	// JSONOutput asks providers that support it to constrain output to a
	// JSON object.
	JSONOutput bool
}

// TokenUsage represents token consumption details for an LLM call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the LLM completion result.
type Response struct {
	// RequestID uniquely identifies this LLM call for log correlation.
	RequestID string

	// Content is the generated text.
	Content string

	// Model is the actual model that was used.
	Model string

	// Usage contains detailed token consumption metrics.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the transport-level timeout for a single request.
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		if d > 0 {
			client.httpClient.Timeout = d
		}
	}
}

// WithRateLimit bounds outbound requests per second. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(client *Client) {
		if rps <= 0 {
			client.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMetrics records backend latency and errors.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(client *Client) {
		client.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a new LLM client with the given model registry.
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry: registry,
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // Allow time for LLM responses
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends one completion attempt, trying the requested model first
// and then the remaining models of the capability chain on transient errors.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, NewBackendError(KindBadRequest, 0, errors.New("at least one message is required"))
	}

	requestID := uuid.New().String()
	chain := c.chainFor(req)
	if len(chain) == 0 {
		return nil, NewBackendError(KindUnavailable, 0,
			fmt.Errorf("no models configured for model %q capability %q", req.Model, req.Capability))
	}

	var lastErr error
	for _, modelName := range chain {
		endpoint := c.registry.GetEndpoint(modelName)
		if endpoint == nil {
			c.logger.Debug("No endpoint for model, skipping", "model", modelName)
			continue
		}

		// Check circuit breaker status
		if !c.registry.IsEndpointAvailable(modelName) {
			c.logger.Debug("Endpoint circuit open, skipping", "model", modelName)
			continue
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, NewBackendError(KindTransport, 0, fmt.Errorf("rate limiter: %w", err))
			}
		}

		startedAt := time.Now()
		resp, err := c.doRequest(ctx, endpoint, req)
		c.metrics.ObserveBackend(modelName, time.Since(startedAt), err)

		if err == nil {
			c.registry.MarkEndpointSuccess(modelName)
			resp.RequestID = requestID
			c.logger.Debug("LLM request completed",
				"request_id", requestID,
				"model", modelName,
				"duration_ms", time.Since(startedAt).Milliseconds(),
				"total_tokens", resp.Usage.TotalTokens)
			return resp, nil
		}

		lastErr = err
		if IsFatal(err) {
			// Auth or bad-request errors indicate config issues, not endpoint health.
			c.logger.Warn("Fatal backend error, not trying fallbacks",
				"request_id", requestID,
				"model", modelName,
				"error", err)
			return nil, err
		}

		c.registry.MarkEndpointFailure(modelName)
		c.logger.Warn("Endpoint failed, trying fallback",
			"request_id", requestID,
			"model", modelName,
			"provider", endpoint.Provider,
			"error", err)
	}

	if lastErr == nil {
		return nil, NewBackendError(KindUnavailable, 0, fmt.Errorf("no available endpoint for %q", req.Capability))
	}
	return nil, fmt.Errorf("all endpoints failed: %w", lastErr)
}

// chainFor returns the models to try, requested model first, without duplicates.
func (c *Client) chainFor(req Request) []string {
	var chain []string
	if req.Model != "" {
		chain = append(chain, req.Model)
	}
	if req.Capability != "" || req.Model == "" {
		capVal := model.ParseCapability(req.Capability)
		if capVal == "" {
			capVal = model.CapabilityWriting
		}
		for _, name := range c.registry.GetAvailableFallbackChain(capVal) {
			if !slices.Contains(chain, name) {
				chain = append(chain, name)
			}
		}
	}
	return chain
}

// doRequest executes a single HTTP request to the LLM endpoint.
func (c *Client) doRequest(ctx context.Context, ep *model.EndpointConfig, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewBackendError(KindBadRequest, 0, fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	url := provider.BuildURL(ep.URL)

	body, err := provider.BuildRequestBody(ep.Model, req)
	if err != nil {
		return nil, NewBackendError(KindBadRequest, 0, fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending LLM request",
		"provider", ep.Provider,
		"model", ep.Model,
		"url", url,
		"messages", len(req.Messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewBackendError(KindBadRequest, 0, fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq, ep.APIKey())

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewBackendError(KindTransport, 0, fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	// Read response body with size limit to prevent memory exhaustion
	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewBackendError(KindTransport, httpResp.StatusCode, fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	resp, err := provider.ParseResponse(respBody)
	if err != nil {
		// An unreadable envelope is usually a proxy hiccup; let the caller retry.
		return nil, NewBackendError(KindServer, httpResp.StatusCode, err)
	}
	if resp.Model == "" {
		resp.Model = ep.Model
	}
	return resp, nil
}

// classifyHTTPError maps an HTTP status to a backend error kind.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewBackendError(KindRateLimit, statusCode, err)
	case statusCode >= 500:
		return NewBackendError(KindServer, statusCode, err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		return NewBackendError(KindAuth, statusCode, err)
	default:
		// Bad requests and unknown statuses are not worth another endpoint.
		return NewBackendError(KindBadRequest, statusCode, err)
	}
}
