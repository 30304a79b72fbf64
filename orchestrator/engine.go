// Package orchestrator schedules component generation. A full run generates
// the foundation tier, merges it into an enriched context, then generates
// the dependent tier against that context. Chat updates rerun the same
// phases restricted to the components an intent names.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/semplan/catalog"
	"github.com/c360studio/semplan/generation"
	"github.com/c360studio/semplan/metrics"
	"github.com/c360studio/semplan/prompts"
)

// Phase labels used in logs and metrics.
const (
	PhaseFoundation       = "foundation"
	PhaseDependent        = "dependent"
	PhaseUpdateFoundation = "update_foundation"
	PhaseUpdate           = "update"
)

// FoundationPolicy decides what a full run does when every foundation
// component fails.
type FoundationPolicy string

const (
	// FoundationProceed continues with skeleton-only context.
	FoundationProceed FoundationPolicy = "proceed"
	// FoundationAbort fails the run with a *FoundationFailedError.
	FoundationAbort FoundationPolicy = "abort"
)

// ParseFoundationPolicy accepts "proceed" (or empty) and "abort".
func ParseFoundationPolicy(s string) (FoundationPolicy, error) {
	switch FoundationPolicy(s) {
	case "", FoundationProceed:
		return FoundationProceed, nil
	case FoundationAbort:
		return FoundationAbort, nil
	}
	return "", fmt.Errorf("unknown foundation failure policy %q (use proceed or abort)", s)
}

// engine holds what Generator and Updater share.
type engine struct {
	client   *generation.Client
	builder  *prompts.Builder
	catalog  *catalog.Catalog
	metrics  *metrics.Metrics
	logger   *slog.Logger
	strict   bool
	policy   FoundationPolicy
	defaults map[string]string
	now      func() time.Time
	newID    func() string
}

// Option configures a Generator or Updater.
type Option func(*engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *engine) {
		e.logger = logger
	}
}

// WithMetrics records phase durations and per-component outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *engine) {
		e.metrics = m
	}
}

// WithStrictSchema rejects replies that do not match the component schema,
// so they are retried. Otherwise a mismatch is only logged.
func WithStrictSchema(strict bool) Option {
	return func(e *engine) {
		e.strict = strict
	}
}

// WithFoundationPolicy sets the total foundation failure policy.
func WithFoundationPolicy(p FoundationPolicy) Option {
	return func(e *engine) {
		e.policy = p
	}
}

// WithDefaults sets base context values used when the caller leaves them
// empty, e.g. grade "default" and subject "Mathematics".
func WithDefaults(defaults map[string]string) Option {
	return func(e *engine) {
		e.defaults = defaults
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *engine) {
		e.now = now
	}
}

// WithIDGenerator overrides document ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *engine) {
		e.newID = newID
	}
}

func newEngine(client *generation.Client, builder *prompts.Builder, opts []Option) engine {
	e := engine{
		client:  client,
		builder: builder,
		catalog: builder.Catalog(),
		logger:  slog.Default(),
		policy:  FoundationProceed,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Catalog returns the component catalog the engine generates from.
func (e *engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// runPhase generates every component concurrently and waits for all of
// them. A failure never cancels its siblings. Outcomes are returned in the
// order of components.
func (e *engine) runPhase(ctx context.Context, phase string, components []string, contextFor func(name string) prompts.Context) []generation.Outcome {
	if len(components) == 0 {
		return nil
	}

	e.logger.Info("Starting phase",
		"phase", phase,
		"components", components)
	start := time.Now()

	outcomes := make([]generation.Outcome, len(components))
	var wg sync.WaitGroup
	for i, name := range components {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			outcomes[i] = e.generate(ctx, name, contextFor(name))
		}(i, name)
	}
	wg.Wait()

	elapsed := time.Since(start)
	e.metrics.ObservePhase(phase, elapsed)

	failed := 0
	for _, o := range outcomes {
		e.metrics.ObserveOutcome(o.Component, phase, o.Succeeded())
		if !o.Succeeded() {
			failed++
			e.logger.Warn("Component generation failed",
				"phase", phase,
				"component", o.Component,
				"error", o.Err)
		}
	}

	e.logger.Info("Phase settled",
		"phase", phase,
		"succeeded", len(outcomes)-failed,
		"failed", failed,
		"duration", elapsed)
	return outcomes
}

// generate produces one settled outcome for name.
func (e *engine) generate(ctx context.Context, name string, pctx prompts.Context) generation.Outcome {
	spec, err := e.catalog.SpecFor(name)
	if err != nil {
		return generation.Outcome{Component: name, Err: err}
	}
	req, err := e.builder.Build(name, pctx)
	if err != nil {
		return generation.Outcome{Component: name, Err: err}
	}

	value, err := e.client.Call(ctx, req, generation.WithDecoder(e.decoder(spec)))
	return generation.Outcome{Component: name, Value: value, Err: err}
}

// decoder unwraps {"<component>": value} replies. A bare value is accepted
// only when it already satisfies the schema; anything else is malformed.
func (e *engine) decoder(spec *catalog.ComponentSpec) generation.Decoder {
	return func(value any) (any, error) {
		if obj, ok := value.(map[string]any); ok {
			if inner, ok := obj[spec.Name]; ok {
				return e.checkSchema(spec, inner)
			}
		}
		if err := spec.Schema.Validate(value); err == nil {
			return value, nil
		}
		return nil, fmt.Errorf("reply is neither wrapped in %q nor a value matching its schema", spec.Name)
	}
}

func (e *engine) checkSchema(spec *catalog.ComponentSpec, value any) (any, error) {
	err := spec.Schema.Validate(value)
	if err == nil {
		return value, nil
	}
	if e.strict {
		return nil, fmt.Errorf("%s does not match schema: %w", spec.Name, err)
	}
	e.logger.Warn("Component does not match schema, keeping it",
		"component", spec.Name,
		"error", err)
	return value, nil
}

// skeleton returns the schema-derived placeholder for name.
func (e *engine) skeleton(name string) any {
	spec, err := e.catalog.SpecFor(name)
	if err != nil {
		return nil
	}
	return spec.Schema.EmptyValue()
}
