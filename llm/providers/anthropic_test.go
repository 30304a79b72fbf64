package providers

import (
	"net/http"
	"testing"

	"github.com/c360studio/semplan/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicProvider_BuildURL(t *testing.T) {
	p := &AnthropicProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{"empty uses default", "", "https://api.anthropic.com/v1/messages"},
		{"custom base URL", "https://custom.api.com", "https://custom.api.com/v1/messages"},
		{"trailing slash handled", "https://api.anthropic.com/", "https://api.anthropic.com/v1/messages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL))
		})
	}
}

func TestAnthropicProvider_SetHeaders(t *testing.T) {
	p := &AnthropicProvider{}

	req, _ := http.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	p.SetHeaders(req, "sk-test")
	assert.Equal(t, "sk-test", req.Header.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, req.Header.Get("anthropic-version"))

	req, _ = http.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	p.SetHeaders(req, "")
	assert.Empty(t, req.Header.Get("x-api-key"))
}

func TestAnthropicProvider_BuildRequestBody(t *testing.T) {
	p := &AnthropicProvider{}

	temp := 0.7
	body, err := p.BuildRequestBody("claude-sonnet-4", llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "You design lessons."},
			{Role: "system", Content: "Reply with JSON."},
			{Role: "user", Content: "Generate objectives"},
		},
		Temperature: &temp,
		MaxTokens:   2048,
		JSONOutput:  true,
	})
	require.NoError(t, err)

	assert.Contains(t, string(body), `"system":"You design lessons.\n\nReply with JSON."`)
	assert.Contains(t, string(body), `"model":"claude-sonnet-4"`)
	assert.Contains(t, string(body), `"max_tokens":2048`)
	assert.Contains(t, string(body), `"temperature":0.7`)
	assert.NotContains(t, string(body), `"role":"system"`)
	assert.NotContains(t, string(body), `response_format`)
}

func TestAnthropicProvider_BuildRequestBody_Defaults(t *testing.T) {
	p := &AnthropicProvider{}

	body, err := p.BuildRequestBody("claude-haiku", llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hello"}},
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"max_tokens":4096`)
	assert.NotContains(t, string(body), `"temperature"`)

	zero := 0.0
	body, err = p.BuildRequestBody("claude-haiku", llm.Request{
		Messages:    []llm.Message{{Role: "user", Content: "Hello"}},
		Temperature: &zero,
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"temperature":0`)
}

func TestAnthropicProvider_BuildRequestBody_SystemOnly(t *testing.T) {
	p := &AnthropicProvider{}

	_, err := p.BuildRequestBody("claude-haiku", llm.Request{
		Messages: []llm.Message{{Role: "system", Content: "only"}},
	})
	assert.Error(t, err)
}

func TestAnthropicProvider_ParseResponse(t *testing.T) {
	p := &AnthropicProvider{}

	resp, err := p.ParseResponse([]byte(`{
		"id": "msg_123",
		"content": [
			{"type": "text", "text": "{\"objectives\": "},
			{"type": "text", "text": "[]}"}
		],
		"model": "claude-sonnet-4-20250514",
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 15, "output_tokens": 8}
	}`))
	require.NoError(t, err)

	assert.Equal(t, `{"objectives": []}`, resp.Content)
	assert.Equal(t, "claude-sonnet-4-20250514", resp.Model)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.PromptTokens)
	assert.Equal(t, 8, resp.Usage.CompletionTokens)
	assert.Equal(t, 23, resp.Usage.TotalTokens)
}

func TestAnthropicProvider_ParseResponse_Errors(t *testing.T) {
	p := &AnthropicProvider{}

	_, err := p.ParseResponse([]byte(`not json`))
	assert.Error(t, err)

	_, err = p.ParseResponse([]byte(`{"id": "msg_1", "content": []}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text content")
}
