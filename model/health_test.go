package model

import (
	"testing"
	"time"
)

func TestEndpointHealthTracking(t *testing.T) {
	r := NewDefaultRegistry()

	if !r.IsEndpointAvailable("qwen") {
		t.Error("expected qwen to be available initially")
	}
	if h := r.GetEndpointHealth("qwen"); h != nil {
		t.Error("expected no health info before any requests")
	}

	r.MarkEndpointSuccess("qwen")

	h := r.GetEndpointHealth("qwen")
	if h == nil {
		t.Fatal("expected health info after success")
	}
	if h.FailureCount != 0 {
		t.Errorf("expected failure count 0, got %d", h.FailureCount)
	}
	if h.LastSuccess.IsZero() {
		t.Error("expected last success to be set")
	}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  30 * time.Millisecond,
	})

	r.MarkEndpointFailure("nova-pro")
	if !r.IsEndpointAvailable("nova-pro") {
		t.Error("expected nova-pro to be available after 1 failure")
	}

	r.MarkEndpointFailure("nova-pro")
	if r.IsEndpointAvailable("nova-pro") {
		t.Error("expected nova-pro to be unavailable after circuit opens")
	}
	if h := r.GetEndpointHealth("nova-pro"); h == nil || !h.CircuitOpen || h.FailureCount != 2 {
		t.Errorf("unexpected health %+v", h)
	}

	time.Sleep(50 * time.Millisecond)
	if !r.IsEndpointAvailable("nova-pro") {
		t.Error("expected half-open after recovery timeout")
	}

	r.MarkEndpointSuccess("nova-pro")
	if h := r.GetEndpointHealth("nova-pro"); h.CircuitOpen || h.FailureCount != 0 {
		t.Errorf("expected closed circuit after success, got %+v", h)
	}
}

func TestGetAvailableFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	r.MarkEndpointFailure("nova-pro")

	chain := r.GetAvailableFallbackChain(CapabilityWriting)
	want := []string{"claude-sonnet", "qwen"}
	if len(chain) != len(want) {
		t.Fatalf("chain = %v, want %v", chain, want)
	}
	for i := range want {
		if chain[i] != want[i] {
			t.Errorf("chain[%d] = %q, want %q", i, chain[i], want[i])
		}
	}
}

func TestGetAvailableFallbackChainAllUnavailable(t *testing.T) {
	r := NewDefaultRegistry()
	r.SetHealthConfig(HealthConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	for _, name := range r.GetFallbackChain(CapabilityFast) {
		r.MarkEndpointFailure(name)
	}

	chain := r.GetAvailableFallbackChain(CapabilityFast)
	if len(chain) != 3 {
		t.Errorf("expected full chain when all unavailable, got %v", chain)
	}
}
