package providers

import (
	"net/http"
	"testing"

	"github.com/c360studio/semplan/llm"
	"github.com/stretchr/testify/assert"
)

func TestOpenAIProvider_Name(t *testing.T) {
	assert.Equal(t, "openai", (&OpenAIProvider{}).Name())
}

func TestOpenAIProvider_BuildURL(t *testing.T) {
	p := &OpenAIProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{"empty uses default", "", "https://api.openai.com/v1/chat/completions"},
		{"bedrock gateway", "http://localhost:8000/api/v1", "http://localhost:8000/api/v1/chat/completions"},
		{"trailing slash handled", "https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL))
		})
	}
}

func TestOpenAIProvider_SetHeaders(t *testing.T) {
	p := &OpenAIProvider{}

	req, _ := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil)
	p.SetHeaders(req, "test-api-key")
	assert.Equal(t, "Bearer test-api-key", req.Header.Get("Authorization"))
}

func TestProvidersRegistered(t *testing.T) {
	assert.Equal(t, []string{"anthropic", "ollama", "openai"}, llm.ListProviders())
	assert.NotNil(t, llm.GetProvider("openai"))
	assert.Nil(t, llm.GetProvider("bedrock"))
}
