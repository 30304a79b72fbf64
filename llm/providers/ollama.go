package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/c360studio/semplan/llm"
)

// OllamaProvider speaks the OpenAI-compatible chat completions format served
// by Ollama, vLLM and most gateways.
type OllamaProvider struct{}

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}

func (o *OllamaProvider) Name() string {
	return "ollama"
}

func (o *OllamaProvider) BuildURL(baseURL string) string {
	return chatCompletionsURL(baseURL, "http://localhost:11434/v1")
}

// SetHeaders sends a bearer token only when the endpoint configures one.
func (o *OllamaProvider) SetHeaders(req *http.Request, apiKey string) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

func (o *OllamaProvider) BuildRequestBody(model string, req llm.Request) ([]byte, error) {
	return buildChatCompletion(model, req)
}

func (o *OllamaProvider) ParseResponse(body []byte) (*llm.Response, error) {
	return parseChatCompletion(body)
}

// chatCompletionsURL appends /chat/completions unless baseURL already ends with it.
func chatCompletionsURL(baseURL, fallback string) string {
	if baseURL == "" {
		baseURL = fallback
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

func buildChatCompletion(model string, req llm.Request) ([]byte, error) {
	messages := make([]chatMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}

	body := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature, // nil = provider default
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		body.MaxTokens = &maxTokens
	}
	if req.JSONOutput {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return json.Marshal(body)
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func parseChatCompletion(body []byte) (*llm.Response, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}

	choice := resp.Choices[0]
	return &llm.Response{
		Content: choice.Message.Content,
		Model:   resp.Model,
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: choice.FinishReason,
	}, nil
}
