package model

import (
	"sync"
	"time"
)

// EndpointHealth is a snapshot of one endpoint's circuit breaker.
type EndpointHealth struct {
	LastSuccess     time.Time `json:"last_success,omitempty"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
	FailureCount    int       `json:"failure_count"`
	CircuitOpen     bool      `json:"circuit_open"`
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
}

// HealthConfig configures the circuit breaker.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit rejects requests before
	// letting one through again.
	RecoveryTimeout time.Duration
}

// DefaultHealthConfig returns the breaker defaults.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

type healthState struct {
	mu       sync.Mutex
	config   HealthConfig
	statuses map[string]*EndpointHealth
	now      func() time.Time
}

func newHealthState(cfg HealthConfig) *healthState {
	return &healthState{
		config:   cfg,
		statuses: make(map[string]*EndpointHealth),
		now:      time.Now,
	}
}

// healthTracker lazily creates the health state.
func (r *Registry) healthTracker() *healthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.health == nil {
		r.health = newHealthState(DefaultHealthConfig())
	}
	return r.health
}

// SetHealthConfig replaces the breaker configuration.
func (r *Registry) SetHealthConfig(cfg HealthConfig) {
	h := r.healthTracker()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.config = cfg
}

// MarkEndpointSuccess closes the endpoint's circuit and resets its failure count.
func (r *Registry) MarkEndpointSuccess(name string) {
	h := r.healthTracker()
	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.status(name)
	status.LastSuccess = h.now()
	status.FailureCount = 0
	status.CircuitOpen = false
}

// MarkEndpointFailure records a failure and opens the circuit once the
// threshold is reached.
func (r *Registry) MarkEndpointFailure(name string) {
	h := r.healthTracker()
	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.status(name)
	status.LastFailure = h.now()
	status.FailureCount++
	if status.FailureCount >= h.config.FailureThreshold && !status.CircuitOpen {
		status.CircuitOpen = true
		status.CircuitOpenedAt = status.LastFailure
	}
}

// IsEndpointAvailable reports false while the endpoint's circuit is open and
// its recovery timeout has not elapsed.
func (r *Registry) IsEndpointAvailable(name string) bool {
	h := r.healthTracker()
	h.mu.Lock()
	defer h.mu.Unlock()

	status, ok := h.statuses[name]
	if !ok || !status.CircuitOpen {
		return true
	}
	return h.now().Sub(status.CircuitOpenedAt) > h.config.RecoveryTimeout
}

// GetEndpointHealth returns a copy of the endpoint's health, or nil if no
// request has been recorded for it.
func (r *Registry) GetEndpointHealth(name string) *EndpointHealth {
	h := r.healthTracker()
	h.mu.Lock()
	defer h.mu.Unlock()

	status, ok := h.statuses[name]
	if !ok {
		return nil
	}
	cp := *status
	return &cp
}

// GetAvailableFallbackChain returns the capability chain without endpoints
// whose circuit is open. When every endpoint is open the full chain is
// returned so the caller still has something to try.
func (r *Registry) GetAvailableFallbackChain(c Capability) []string {
	chain := r.GetFallbackChain(c)
	available := make([]string, 0, len(chain))
	for _, name := range chain {
		if r.IsEndpointAvailable(name) {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return chain
	}
	return available
}

// status returns the entry for name, creating it. Must hold h.mu.
func (h *healthState) status(name string) *EndpointHealth {
	s, ok := h.statuses[name]
	if !ok {
		s = &EndpointHealth{}
		h.statuses[name] = s
	}
	return s
}
