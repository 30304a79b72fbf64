package orchestrator

import (
	"context"
	"fmt"

	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/generation"
	"github.com/c360studio/semplan/intent"
	"github.com/c360studio/semplan/prompts"
)

// Updater applies chat-driven targeted updates to existing documents.
type Updater struct {
	engine
}

// UpdateOption configures a single Apply call.
type UpdateOption func(*updateConfig)

type updateConfig struct {
	profile map[string]any
}

// WithProfile supplies the learner profile the document was generated for.
// Without it prompts only carry the document's profile ID.
func WithProfile(profile map[string]any) UpdateOption {
	return func(c *updateConfig) {
		c.profile = profile
	}
}

// NewUpdater creates an updater. The catalog comes from builder.
func NewUpdater(client *generation.Client, builder *prompts.Builder, opts ...Option) *Updater {
	return &Updater{engine: newEngine(client, builder, opts)}
}

// Apply regenerates the components in in.AffectedComponents and writes the
// successes into doc in place. Failed components keep their prior value;
// chat updates never fall back to skeletons. Every other component is left
// byte-identical. The returned names are the components that changed, in
// document order.
//
// When the intent requires a foundation update, the named foundation
// components are regenerated first and the dependents are then generated
// against the document's values with the new foundation merged in.
// Otherwise all named components are updated in one phase against the
// document's current values.
func (u *Updater) Apply(ctx context.Context, in *intent.Intent, doc *document.Document, message string, opts ...UpdateOption) (*document.Document, []string, error) {
	if in == nil {
		return nil, nil, &intent.ValidationError{Field: "intent", Reason: "is required"}
	}
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}
	if doc == nil {
		return nil, nil, &document.ValidationError{Field: "document", Reason: "is required"}
	}
	for _, name := range in.AffectedComponents {
		if _, err := u.catalog.SpecFor(name); err != nil {
			return nil, nil, err
		}
	}
	ctx = context.WithoutCancel(ctx)

	var cfg updateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	base := prompts.FromMetadata(doc.Metadata)
	if cfg.profile != nil {
		base[prompts.KeyProfile] = cfg.profile
	}
	base[prompts.KeyUserFeedback] = message
	base[prompts.KeyDirective] = in.Directive
	if in.Directive == "" {
		base[prompts.KeyDirective] = message
	}

	existing, err := u.currentValues(doc)
	if err != nil {
		return nil, nil, err
	}

	u.logger.Info("Applying chat update",
		"document_id", doc.Metadata.DocumentID,
		"components", in.AffectedComponents,
		"tier", in.Tier,
		"foundation_update", in.RequiresFoundationUpdate)

	var outcomes []generation.Outcome
	if in.RequiresFoundationUpdate {
		var targets []string
		for _, name := range in.AffectedComponents {
			if u.catalog.IsFoundation(name) {
				targets = append(targets, name)
			}
		}

		// FoundationPhase, restricted.
		before := newEnrichedContext(base, existing)
		first := u.runPhase(ctx, PhaseUpdateFoundation, targets, func(name string) prompts.Context {
			return u.editContext(before, doc, name)
		})

		// Merge: fresh context seeded from every existing value, with
		// foundation successes on top.
		merged := make(map[string]any, len(existing))
		for name, v := range existing {
			merged[name] = v
		}
		for _, o := range first {
			if o.Succeeded() {
				merged[o.Component] = o.Value
			}
		}
		after := newEnrichedContext(base, merged)

		// DependentPhase, restricted.
		second := u.runPhase(ctx, PhaseDependent, u.catalog.DependentComponents(in.AffectedComponents), func(name string) prompts.Context {
			return u.editContext(after, doc, name)
		})
		outcomes = append(first, second...)
	} else {
		enriched := newEnrichedContext(base, existing)
		outcomes = u.runPhase(ctx, PhaseUpdate, in.AffectedComponents, func(name string) prompts.Context {
			return u.editContext(enriched, doc, name)
		})
	}

	changed := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Succeeded() {
			u.logger.Warn("Keeping prior value",
				"document_id", doc.Metadata.DocumentID,
				"component", o.Component)
			continue
		}
		if err := doc.SetValue(o.Component, o.Value); err != nil {
			return nil, nil, fmt.Errorf("apply %s: %w", o.Component, err)
		}
		changed = append(changed, o.Component)
	}
	doc.Reorder(u.catalog.Components())

	return doc, u.catalog.Sort(changed), nil
}

// currentValues decodes every component the document holds.
func (u *Updater) currentValues(doc *document.Document) (map[string]any, error) {
	out := make(map[string]any, doc.Len())
	for _, name := range doc.Components() {
		v, err := doc.Value(name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// editContext returns the prompt context for updating name: the enriched
// context plus the component's current value when it has one.
func (u *Updater) editContext(enriched EnrichedContext, doc *document.Document, name string) prompts.Context {
	ctx := enriched.Prompt()
	if raw, ok := doc.Get(name); ok {
		ctx[prompts.KeyCurrentContent] = raw
	}
	return ctx
}
