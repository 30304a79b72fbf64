// Package providers implements the wire formats the llm client can speak.
// Importing it registers every provider.
package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/c360studio/semplan/llm"
)

// anthropicVersion is the Messages API version header value.
const anthropicVersion = "2023-06-01"

// defaultAnthropicMaxTokens is used when the request leaves MaxTokens unset;
// the Messages API requires the field.
const defaultAnthropicMaxTokens = 4096

// AnthropicProvider implements the Anthropic Messages API.
type AnthropicProvider struct{}

func init() {
	llm.RegisterProvider(&AnthropicProvider{})
}

func (a *AnthropicProvider) Name() string {
	return "anthropic"
}

// BuildURL returns the messages endpoint under baseURL.
func (a *AnthropicProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return strings.TrimSuffix(baseURL, "/") + "/v1/messages"
}

func (a *AnthropicProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	req.Header.Set("anthropic-version", anthropicVersion)
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildRequestBody lifts system messages into the top-level system field.
// JSONOutput has no Anthropic equivalent and is ignored; the prompts already
// demand bare JSON.
func (a *AnthropicProvider) BuildRequestBody(model string, req llm.Request) ([]byte, error) {
	var system []string
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}
		messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	if len(messages) == 0 {
		return nil, errors.New("anthropic request needs at least one non-system message")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	return json.Marshal(anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Messages:    messages,
		System:      strings.Join(system, "\n\n"),
		Temperature: req.Temperature, // nil = provider default
	})
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// ParseResponse concatenates the text blocks of a Messages response.
func (a *AnthropicProvider) ParseResponse(body []byte) (*llm.Response, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse anthropic response: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return nil, fmt.Errorf("anthropic response %s has no text content", resp.ID)
	}

	return &llm.Response{
		Content: content.String(),
		Model:   resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		FinishReason: resp.StopReason,
	}, nil
}
