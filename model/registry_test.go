package model

import (
	"encoding/json"
	"testing"
)

func TestNewDefaultRegistry(t *testing.T) {
	r := NewDefaultRegistry()

	if err := r.Validate(); err != nil {
		t.Fatalf("default registry invalid: %v", err)
	}
	endpoints := r.ListEndpoints()
	if len(endpoints) != 4 {
		t.Errorf("expected 4 endpoints, got %v", endpoints)
	}
}

func TestRegistryResolve(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		capability Capability
		expected   string
	}{
		{CapabilityWriting, "nova-pro"},
		{CapabilityFast, "nova-pro"},
		{CapabilityPrecise, "nova-pro"},
		{Capability("unknown"), "nova-pro"}, // Falls back to default
	}

	for _, tt := range tests {
		t.Run(string(tt.capability), func(t *testing.T) {
			if got := r.Resolve(tt.capability); got != tt.expected {
				t.Errorf("Resolve(%q) = %q, want %q", tt.capability, got, tt.expected)
			}
		})
	}

	if got := r.ForTask("intent"); got != "nova-pro" {
		t.Errorf("ForTask(intent) = %q", got)
	}
}

func TestRegistryGetFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()

	chain := r.GetFallbackChain(CapabilityFast)
	want := []string{"nova-pro", "claude-haiku", "qwen"}
	if len(chain) != len(want) {
		t.Fatalf("chain = %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("chain[%d] = %q, want %q", i, chain[i], want[i])
		}
	}

	if got := r.GetFallbackChain(Capability("none")); len(got) != 1 || got[0] != "nova-pro" {
		t.Errorf("unknown capability chain = %v", got)
	}
}

func TestRegistrySetters(t *testing.T) {
	r := NewRegistry(nil, nil)

	r.SetEndpoint("mock", &EndpointConfig{Provider: "openai", URL: "http://localhost:8090/v1", Model: "mock"})
	r.SetCapability(CapabilityWriting, &CapabilityConfig{Preferred: []string{"mock"}})

	if got := r.Resolve(CapabilityWriting); got != "mock" {
		t.Errorf("Resolve = %q, want mock", got)
	}
	if ep := r.GetEndpoint("mock"); ep == nil || ep.Provider != "openai" {
		t.Errorf("GetEndpoint = %+v", ep)
	}
	if ep := r.GetEndpoint("missing"); ep != nil {
		t.Errorf("expected nil endpoint, got %+v", ep)
	}
}

func TestRegistryValidate(t *testing.T) {
	tests := []struct {
		name    string
		reg     *Registry
		wantErr bool
	}{
		{
			name: "valid",
			reg: NewRegistry(
				map[Capability]*CapabilityConfig{CapabilityWriting: {Preferred: []string{"a"}}},
				map[string]*EndpointConfig{"a": {Provider: "ollama", Model: "llama3.2"}},
			),
		},
		{
			name: "missing endpoint",
			reg: NewRegistry(
				map[Capability]*CapabilityConfig{CapabilityWriting: {Fallback: []string{"b"}}},
				map[string]*EndpointConfig{},
			),
			wantErr: true,
		},
		{
			name: "endpoint without model",
			reg: NewRegistry(
				map[Capability]*CapabilityConfig{CapabilityFast: {Preferred: []string{"a"}}},
				map[string]*EndpointConfig{"a": {Provider: "ollama"}},
			),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryJSONRoundtrip(t *testing.T) {
	r := NewDefaultRegistry()

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	loaded, err := LoadFromJSON(data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := loaded.Resolve(CapabilityWriting); got != "nova-pro" {
		t.Errorf("Resolve after roundtrip = %q", got)
	}
	if ep := loaded.GetEndpoint("claude-sonnet"); ep == nil || ep.APIKeyEnv != "ANTHROPIC_API_KEY" {
		t.Errorf("endpoint after roundtrip = %+v", ep)
	}
}

func TestEndpointAPIKey(t *testing.T) {
	t.Setenv("SEMPLAN_TEST_KEY", "secret")

	ep := &EndpointConfig{APIKeyEnv: "SEMPLAN_TEST_KEY"}
	if got := ep.APIKey(); got != "secret" {
		t.Errorf("APIKey() = %q", got)
	}
	if got := (&EndpointConfig{}).APIKey(); got != "" {
		t.Errorf("APIKey() without env = %q", got)
	}
	var nilEP *EndpointConfig
	if got := nilEP.APIKey(); got != "" {
		t.Errorf("nil APIKey() = %q", got)
	}
}
