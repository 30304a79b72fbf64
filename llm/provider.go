package llm

import (
	"net/http"
	"sort"
	"sync"
)

// Provider adapts the client to one wire format. Implementations register
// themselves from package providers.
type Provider interface {
	// Name returns the provider identifier (e.g., "anthropic", "ollama").
	Name() string

	// BuildURL constructs the full API endpoint URL.
	BuildURL(baseURL string) string

	// SetHeaders adds authentication and version headers. apiKey may be empty.
	SetHeaders(req *http.Request, apiKey string)

	// BuildRequestBody encodes req for the given provider model identifier.
	BuildRequestBody(model string, req Request) ([]byte, error)

	// ParseResponse extracts the completion from a provider response body.
	ParseResponse(body []byte) (*Response, error)
}

// providerRegistry holds registered providers.
var (
	providerRegistry = make(map[string]Provider)
	providerMu       sync.RWMutex
)

// RegisterProvider adds a provider to the registry.
func RegisterProvider(p Provider) {
	providerMu.Lock()
	defer providerMu.Unlock()
	providerRegistry[p.Name()] = p
}

// GetProvider retrieves a provider by name.
func GetProvider(name string) Provider {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// ListProviders returns all registered provider names, sorted.
func ListProviders() []string {
	providerMu.RLock()
	defer providerMu.RUnlock()

	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
