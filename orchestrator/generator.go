package orchestrator

import (
	"context"
	"fmt"

	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/generation"
	"github.com/c360studio/semplan/prompts"
	"github.com/google/uuid"
)

// Generator builds complete documents.
type Generator struct {
	engine
}

// NewGenerator creates a generator. The catalog comes from builder.
func NewGenerator(client *generation.Client, builder *prompts.Builder, opts ...Option) *Generator {
	g := &Generator{engine: newEngine(client, builder, opts)}
	if g.newID == nil {
		g.newID = uuid.NewString
	}
	return g
}

// GenerateDocument runs Init, FoundationPhase, Merge, DependentPhase and
// Assemble. Per-component failures are contained: the document always holds
// every foundation component and every requested component, with schema
// skeletons standing in for failures. The only run-level failures are an
// unknown requested component and, under FoundationAbort, a foundation tier
// where every component failed.
//
// Generation is detached from ctx cancellation: an abandoned request lets
// in-flight calls finish and its result is discarded.
func (g *Generator) GenerateDocument(ctx context.Context, topic string, base BaseContext) (*document.Document, error) {
	ctx = context.WithoutCancel(ctx)

	// Init
	requested := base.Components
	if len(requested) == 0 {
		requested = g.catalog.Components()
	}
	for _, name := range requested {
		if _, err := g.catalog.SpecFor(name); err != nil {
			return nil, err
		}
	}
	baseCtx := base.promptContext(topic, g.defaults)

	g.logger.Info("Generating document",
		"domain", g.catalog.Domain(),
		"topic", topic,
		"components", len(requested))

	// FoundationPhase
	foundation := g.catalog.FoundationComponents()
	outcomes := g.runPhase(ctx, PhaseFoundation, foundation, func(string) prompts.Context {
		return baseCtx
	})

	// Merge
	enriched, err := g.merge(baseCtx, outcomes)
	if err != nil {
		return nil, err
	}

	// DependentPhase
	dependents := g.catalog.DependentComponents(requested)
	depOutcomes := g.runPhase(ctx, PhaseDependent, dependents, func(string) prompts.Context {
		return enriched.Prompt()
	})

	// Assemble
	doc := document.New(g.metadata(topic, base, baseCtx))
	for _, name := range foundation {
		v, _ := enriched.Foundation(name)
		if err := doc.SetValue(name, v); err != nil {
			return nil, fmt.Errorf("assemble %s: %w", name, err)
		}
	}
	for _, o := range depOutcomes {
		value := o.Value
		if !o.Succeeded() {
			value = g.skeleton(o.Component)
		}
		if err := doc.SetValue(o.Component, value); err != nil {
			return nil, fmt.Errorf("assemble %s: %w", o.Component, err)
		}
	}
	for _, name := range doc.Missing(requested) {
		if err := doc.SetValue(name, g.skeleton(name)); err != nil {
			return nil, fmt.Errorf("assemble %s: %w", name, err)
		}
	}
	doc.Reorder(g.catalog.Components())

	return doc, nil
}

// merge builds the enriched context, substituting skeletons for failed
// foundation components.
func (g *Generator) merge(baseCtx prompts.Context, outcomes []generation.Outcome) (EnrichedContext, error) {
	values := make(map[string]any, len(outcomes))
	failures := make(map[string]error)
	for _, o := range outcomes {
		if o.Succeeded() {
			values[o.Component] = o.Value
			continue
		}
		failures[o.Component] = o.Err
		values[o.Component] = g.skeleton(o.Component)
	}

	if len(outcomes) > 0 && len(failures) == len(outcomes) {
		if g.policy == FoundationAbort {
			return EnrichedContext{}, &FoundationFailedError{Failures: failures}
		}
		g.logger.Warn("Every foundation component failed, continuing with skeleton context",
			"failed", len(failures))
	}
	return newEnrichedContext(baseCtx, values), nil
}

func (g *Generator) metadata(topic string, base BaseContext, baseCtx prompts.Context) document.Metadata {
	id := base.DocumentID
	if id == "" {
		id = g.newID()
	}
	meta := document.Metadata{
		DocumentID:      id,
		OwnerID:         base.OwnerID,
		Domain:          g.catalog.Domain(),
		Topic:           topic,
		Grade:           baseCtx.String(prompts.KeyGrade),
		Subject:         baseCtx.String(prompts.KeySubject),
		Goals:           baseCtx.String(prompts.KeyGoals),
		ExperienceLevel: baseCtx.String(prompts.KeyExperienceLevel),
		AvailableDays:   baseCtx.String(prompts.KeyAvailableDays),
		LastModified:    g.now().UTC(),
		Version:         1,
	}
	if base.Profile != nil {
		meta.ProfileID = base.profileID()
	}
	return meta
}
