package providers

import "github.com/c360studio/semplan/llm"

// OpenAIProvider targets api.openai.com or an OpenAI-compatible gateway such
// as the Bedrock access gateway. It shares the wire format with
// OllamaProvider and differs only in its default URL.
type OpenAIProvider struct {
	OllamaProvider
}

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
}

func (o *OpenAIProvider) Name() string {
	return "openai"
}

func (o *OpenAIProvider) BuildURL(baseURL string) string {
	return chatCompletionsURL(baseURL, "https://api.openai.com/v1")
}
