// Package client provides test clients for e2e scenarios.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/c360studio/semplan/api"
	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/intent"
	"github.com/c360studio/semplan/service"
	"github.com/c360studio/semplan/storage"
)

// HTTPClient provides HTTP operations for e2e tests.
// It talks to the semplan API as one owner.
type HTTPClient struct {
	baseURL    string
	owner      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client for e2e testing.
func NewHTTPClient(baseURL, owner string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		owner:   owner,
		httpClient: &http.Client{
			Timeout: 240 * time.Second,
		},
	}
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Catalog is the GET /catalog answer.
type Catalog struct {
	Domain     string              `json:"domain"`
	Components []api.ComponentInfo `json:"components"`
}

// HealthCheck checks if the service is healthy.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// WaitForHealthy waits for the service to become healthy.
func (c *HTTPClient) WaitForHealthy(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := c.HealthCheck(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for service to be healthy: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// GetCatalog returns the configured component catalog.
func (c *HTTPClient) GetCatalog(ctx context.Context) (*Catalog, error) {
	var out Catalog
	if err := c.do(ctx, http.MethodGet, "/api/v1/catalog", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Generate creates a document.
func (c *HTTPClient) Generate(ctx context.Context, req api.GenerateRequest) (*document.Document, error) {
	var doc document.Document
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents", req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocument fetches a document.
func (c *HTTPClient) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	var doc document.Document
	if err := c.do(ctx, http.MethodGet, docPath(id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments lists the owner's documents.
func (c *HTTPClient) ListDocuments(ctx context.Context) ([]document.Metadata, error) {
	var out struct {
		Items []document.Metadata `json:"documents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/documents", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// DeleteDocument removes a document.
func (c *HTTPClient) DeleteDocument(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, docPath(id), nil, nil)
}

// Analyze classifies a chat message without applying it.
func (c *HTTPClient) Analyze(ctx context.Context, id, message string) (*intent.Intent, error) {
	var out intent.Intent
	if err := c.do(ctx, http.MethodPost, docPath(id)+"/analyze", api.ChatRequest{Message: message}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat applies a chat message.
func (c *HTTPClient) Chat(ctx context.Context, id, message string) (*service.ChatResult, error) {
	var out service.ChatResult
	if err := c.do(ctx, http.MethodPost, docPath(id)+"/chat", api.ChatRequest{Message: message}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListChat returns the chat history of a document.
func (c *HTTPClient) ListChat(ctx context.Context, id string) ([]storage.ChatEntry, error) {
	var out struct {
		Items []storage.ChatEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, docPath(id)+"/chat", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Regenerate rewrites one component.
func (c *HTTPClient) Regenerate(ctx context.Context, id, component, directive string) (*service.ChatResult, error) {
	var out service.ChatResult
	path := docPath(id) + "/components/" + url.PathEscape(component) + "/regenerate"
	if err := c.do(ctx, http.MethodPost, path, api.RegenerateRequest{Directive: directive}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListVersions returns stored versions, newest first.
func (c *HTTPClient) ListVersions(ctx context.Context, id string) ([]document.Snapshot, error) {
	var out struct {
		Items []document.Snapshot `json:"versions"`
	}
	if err := c.do(ctx, http.MethodGet, docPath(id)+"/versions", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetVersion returns one stored version.
func (c *HTTPClient) GetVersion(ctx context.Context, id string, version int) (*document.Snapshot, error) {
	var out document.Snapshot
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/versions/%d", docPath(id), version), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export renders a document in format (json, yaml or markdown).
func (c *HTTPClient) Export(ctx context.Context, id, format string) (string, error) {
	var raw []byte
	path := docPath(id) + "/export?format=" + url.QueryEscape(format)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func docPath(id string) string {
	return "/api/v1/documents/" + url.PathEscape(id)
}

// do sends a JSON request and decodes a JSON answer into out when non-nil.
// A *[]byte out receives the body as is.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.OwnerHeader, c.owner)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil {
			apiErr.Message = string(data)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = data
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w (body: %s)", err, string(data))
	}
	return nil
}
