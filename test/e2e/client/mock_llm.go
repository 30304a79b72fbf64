package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// MockLLMClient provides operations against the mock LLM server for e2e testing.
// It talks to mock-llm directly, not through semplan.
type MockLLMClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMockLLMClient creates a new client for the mock LLM server.
func NewMockLLMClient(baseURL string) *MockLLMClient {
	return &MockLLMClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// MockStats contains call statistics from the mock LLM server.
type MockStats struct {
	TotalCalls       int64            `json:"total_calls"`
	CallsByComponent map[string]int64 `json:"calls_by_component"`
}

// CapturedMessage is one chat message seen by the mock.
type CapturedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CapturedRequest is one request seen by the mock.
type CapturedRequest struct {
	Model     string            `json:"model"`
	Messages  []CapturedMessage `json:"messages"`
	CallIndex int               `json:"call_index"`
}

// GetStats retrieves call statistics from the mock LLM server.
func (c *MockLLMClient) GetStats(ctx context.Context) (*MockStats, error) {
	var stats MockStats
	if err := c.get(ctx, "/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetRequests retrieves the requests captured for a component.
func (c *MockLLMClient) GetRequests(ctx context.Context, component string) ([]CapturedRequest, error) {
	var out struct {
		Requests map[string][]CapturedRequest `json:"requests_by_component"`
	}
	if err := c.get(ctx, "/requests?component="+url.QueryEscape(component), &out); err != nil {
		return nil, err
	}
	return out.Requests[component], nil
}

func (c *MockLLMClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
