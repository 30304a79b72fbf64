package model

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Registry maps capabilities to ordered model chains and holds the endpoint
// settings for every model name. It also tracks endpoint health (see
// health.go). Safe for concurrent use.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	defaults     *DefaultsConfig
	health       *healthState
}

// CapabilityConfig defines model preferences for a capability.
type CapabilityConfig struct {
	// Description explains what this capability is for.
	Description string `json:"description"`

	// Preferred lists models in order of preference.
	Preferred []string `json:"preferred"`

	// Fallback lists backup models if all preferred fail.
	Fallback []string `json:"fallback"`
}

// EndpointConfig defines an available model endpoint.
type EndpointConfig struct {
	// Provider is the wire format (anthropic, ollama, openai).
	Provider string `json:"provider"`

	// URL is the API base URL. Anthropic uses its public URL when empty.
	URL string `json:"url,omitempty"`

	// Model is the actual model identifier to send to the provider.
	Model string `json:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"api_key_env,omitempty"`

	// MaxTokens is the context window size.
	MaxTokens int `json:"max_tokens,omitempty"`
}

// APIKey resolves the endpoint's API key from the environment.
func (e *EndpointConfig) APIKey() string {
	if e == nil || e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// DefaultsConfig holds default model settings.
type DefaultsConfig struct {
	// Model is used when a capability has no configuration.
	Model string `json:"model"`
}

// NewRegistry creates a new model registry with the given configuration.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		defaults: &DefaultsConfig{
			Model: "default",
		},
	}
}

// NewDefaultRegistry creates a registry that prefers Amazon Nova Pro through
// an OpenAI-compatible gateway, falling back to Anthropic and a local Ollama.
// Used when no registry file is configured.
func NewDefaultRegistry() *Registry {
	return &Registry{
		capabilities: map[Capability]*CapabilityConfig{
			CapabilityWriting: {
				Description: "Structured component content",
				Preferred:   []string{"nova-pro"},
				Fallback:    []string{"claude-sonnet", "qwen"},
			},
			CapabilityPrecise: {
				Description: "Low-temperature extraction",
				Preferred:   []string{"nova-pro"},
				Fallback:    []string{"claude-sonnet", "qwen"},
			},
			CapabilityFast: {
				Description: "Intent classification",
				Preferred:   []string{"nova-pro"},
				Fallback:    []string{"claude-haiku", "qwen"},
			},
		},
		endpoints: map[string]*EndpointConfig{
			"nova-pro": {
				Provider:  "openai",
				URL:       "http://localhost:8000/api/v1",
				Model:     "us.amazon.nova-pro-v1:0",
				APIKeyEnv: "GATEWAY_API_KEY",
				MaxTokens: 300000,
			},
			"claude-sonnet": {
				Provider:  "anthropic",
				Model:     "claude-sonnet-4-20250514",
				APIKeyEnv: "ANTHROPIC_API_KEY",
				MaxTokens: 200000,
			},
			"claude-haiku": {
				Provider:  "anthropic",
				Model:     "claude-haiku-3-5-20241022",
				APIKeyEnv: "ANTHROPIC_API_KEY",
				MaxTokens: 200000,
			},
			"qwen": {
				Provider:  "ollama",
				URL:       "http://localhost:11434/v1",
				Model:     "qwen2.5:14b",
				MaxTokens: 128000,
			},
		},
		defaults: &DefaultsConfig{
			Model: "nova-pro",
		},
	}
}

// Resolve returns the first preferred model for a capability.
func (r *Registry) Resolve(c Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[c]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaults.Model
}

// GetFallbackChain returns all models for a capability in order of preference.
func (r *Registry) GetFallbackChain(c Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[c]; ok {
		chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
		chain = append(chain, cfg.Preferred...)
		chain = append(chain, cfg.Fallback...)
		return chain
	}
	return []string{r.defaults.Model}
}

// ForTask returns the resolved model for a task's default capability.
func (r *Registry) ForTask(task string) string {
	return r.Resolve(CapabilityForTask(task))
}

// GetEndpoint returns the endpoint configuration for a model name.
// Returns nil if the model is not configured.
func (r *Registry) GetEndpoint(modelName string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.endpoints[modelName]
}

// SetCapability updates or adds a capability configuration.
func (r *Registry) SetCapability(c Capability, cfg *CapabilityConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capabilities == nil {
		r.capabilities = make(map[Capability]*CapabilityConfig)
	}
	r.capabilities[c] = cfg
}

// SetEndpoint updates or adds an endpoint configuration.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.endpoints == nil {
		r.endpoints = make(map[string]*EndpointConfig)
	}
	r.endpoints[name] = cfg
}

// ListEndpoints returns all configured endpoint names, sorted.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every model named by a capability has an endpoint.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for c, cfg := range r.capabilities {
		for _, name := range append(append([]string{}, cfg.Preferred...), cfg.Fallback...) {
			ep, ok := r.endpoints[name]
			if !ok {
				return fmt.Errorf("capability %s: model %q has no endpoint", c, name)
			}
			if ep.Provider == "" || ep.Model == "" {
				return fmt.Errorf("endpoint %q: provider and model are required", name)
			}
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler for the registry.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToConfig())
}
