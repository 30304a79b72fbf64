// Package metrics exposes Prometheus collectors for document generation.
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "semplan"

// Metrics holds the collectors for one process.
type Metrics struct {
	attempts        *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	phaseDuration   *prometheus.HistogramVec
	backendDuration *prometheus.HistogramVec
	backendErrors   *prometheus.CounterVec
	inflight        prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// A nil reg leaves the collectors unregistered, which tests rely on.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Generation attempts per component, labelled by result.",
		}, []string{"component", "result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_outcomes_total",
			Help:      "Final per-component outcomes by phase.",
		}, []string{"component", "phase", "status"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time of one orchestration phase.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"phase"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Latency of single backend requests.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"model"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_errors_total",
			Help:      "Failed backend requests per model.",
		}, []string{"model"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_inflight_requests",
			Help:      "Backend calls currently holding a worker slot.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route pattern.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"route"}),
	}

	if reg != nil {
		reg.MustRegister(m.attempts, m.outcomes, m.phaseDuration,
			m.backendDuration, m.backendErrors, m.inflight,
			m.httpRequests, m.httpDuration)
	}
	return m
}

// ObserveAttempt counts one generation attempt. result is "success",
// "backend_error" or "malformed".
func (m *Metrics) ObserveAttempt(component, result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(component, result).Inc()
}

// ObserveOutcome counts the settled outcome of a component in a phase.
func (m *Metrics) ObserveOutcome(component, phase string, ok bool) {
	if m == nil {
		return
	}
	status := "failure"
	if ok {
		status = "success"
	}
	m.outcomes.WithLabelValues(component, phase, status).Inc()
}

// ObservePhase records how long a phase took to settle.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveBackend records a single backend request.
func (m *Metrics) ObserveBackend(model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(model).Observe(d.Seconds())
	if err != nil {
		m.backendErrors.WithLabelValues(model).Inc()
	}
}

// SlotAcquired and SlotReleased track worker pool occupancy.
func (m *Metrics) SlotAcquired() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) SlotReleased() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}

// ObserveRequest records one API request.
func (m *Metrics) ObserveRequest(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
