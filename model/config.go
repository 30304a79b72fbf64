package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// RegistryConfig is the JSON form of a registry. A file may hold it at the
// top level or under a "model_registry" key.
type RegistryConfig struct {
	Capabilities map[string]*CapabilityConfig `json:"capabilities"`
	Endpoints    map[string]*EndpointConfig   `json:"endpoints"`
	Defaults     *DefaultsConfig              `json:"defaults,omitempty"`
}

// LoadFromFile loads and validates a registry from a JSON file.
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}

	r, err := LoadFromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid registry %s: %w", path, err)
	}
	return r, nil
}

// LoadFromJSON loads a registry from JSON data.
func LoadFromJSON(data []byte) (*Registry, error) {
	var wrapped struct {
		ModelRegistry *RegistryConfig `json:"model_registry"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.ModelRegistry != nil {
		return registryFromConfig(wrapped.ModelRegistry), nil
	}

	var cfg RegistryConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse registry config: %w", err)
	}
	return registryFromConfig(&cfg), nil
}

func registryFromConfig(cfg *RegistryConfig) *Registry {
	caps := make(map[Capability]*CapabilityConfig, len(cfg.Capabilities))
	for k, v := range cfg.Capabilities {
		// Unknown names are kept verbatim so custom capabilities still resolve.
		caps[Capability(k)] = v
	}

	endpoints := cfg.Endpoints
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}

	defaults := cfg.Defaults
	if defaults == nil {
		defaults = &DefaultsConfig{Model: "default"}
	}

	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		defaults:     defaults,
	}
}

// ToConfig converts a Registry to a RegistryConfig for serialization.
func (r *Registry) ToConfig() *RegistryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make(map[string]*CapabilityConfig, len(r.capabilities))
	for k, v := range r.capabilities {
		caps[string(k)] = v
	}

	return &RegistryConfig{
		Capabilities: caps,
		Endpoints:    r.endpoints,
		Defaults:     r.defaults,
	}
}
