package prompts

import (
	"log/slog"
	"sort"

	"github.com/c360studio/semplan/catalog"
	"github.com/c360studio/semplan/generation"
	"github.com/c360studio/semplan/model"
)

// Overrides replace template defaults when set. Per-component catalog
// settings still win over MaxTokens and Temperature for full generation.
type Overrides struct {
	Capability  string
	MaxTokens   int
	Temperature *float64
}

// Builder turns a component name and Context into a generation.Request.
// It is read-only after construction and safe for concurrent use.
type Builder struct {
	catalog   *catalog.Catalog
	templates map[string]Template
	modelID   string
	logger    *slog.Logger

	generationOverrides Overrides
	analysisOverrides   Overrides
}

// Option configures a Builder.
type Option func(*Builder)

// WithModel pins every request to a registry endpoint name.
func WithModel(id string) Option {
	return func(b *Builder) {
		b.modelID = id
	}
}

// WithGenerationOverrides sets overrides for component requests.
func WithGenerationOverrides(o Overrides) Option {
	return func(b *Builder) {
		b.generationOverrides = o
	}
}

// WithAnalysisOverrides sets overrides for intent requests.
func WithAnalysisOverrides(o Overrides) Option {
	return func(b *Builder) {
		b.analysisOverrides = o
	}
}

// WithTemplate registers or replaces a template family.
func WithTemplate(t Template) Option {
	return func(b *Builder) {
		b.templates[t.ID] = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a prompt builder over cat.
func NewBuilder(cat *catalog.Catalog, opts ...Option) *Builder {
	b := &Builder{
		catalog:   cat,
		templates: builtinTemplates(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Catalog returns the catalog the builder resolves components against.
func (b *Builder) Catalog() *catalog.Catalog {
	return b.catalog
}

// Templates lists the registered template family IDs.
func (b *Builder) Templates() []string {
	ids := make([]string, 0, len(b.templates))
	for id := range b.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Build returns the request for component. When ctx carries current
// content the request edits it: foundation components use the regenerate
// family, dependents the update family. Unknown components fail with
// *catalog.UnknownComponentError; missing context keys never fail.
func (b *Builder) Build(component string, ctx Context) (generation.Request, error) {
	spec, err := b.catalog.SpecFor(component)
	if err != nil {
		return generation.Request{}, err
	}

	id := spec.TemplateID
	maxTokens, temperature := spec.MaxTokens, spec.Temperature
	if ctx.HasCurrentContent() {
		id = TemplateUpdate
		if spec.IsFoundation() {
			id = TemplateRegenerate
		}
		maxTokens, temperature = 0, nil
	}

	vars := make(map[string]any, len(ctx)+4)
	for k, v := range ctx {
		vars[k] = v
	}
	vars["component"] = spec.Name
	vars["description"] = spec.Description
	if spec.Description == "" {
		vars["description"] = spec.Name
	}
	vars["schema"] = spec.Schema.Indented()
	vars["context"] = ctx.JSON()

	return b.request(component, b.template(id), vars, b.generationOverrides, maxTokens, temperature), nil
}

// template returns the family for id, falling back to generic.
func (b *Builder) template(id string) Template {
	if t, ok := b.templates[id]; ok {
		return t
	}
	b.logger.Debug("Unknown template family, using generic", "template", id)
	return b.templates[TemplateGeneric]
}

func (b *Builder) request(component string, tmpl Template, vars map[string]any, o Overrides, maxTokens int, temperature *float64) generation.Request {
	capability := o.Capability
	if capability == "" {
		capability = model.CapabilityForTask(tmpl.Task).String()
	}

	if maxTokens <= 0 {
		maxTokens = o.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = tmpl.MaxTokens
	}

	temp := tmpl.Temperature
	switch {
	case temperature != nil:
		temp = *temperature
	case o.Temperature != nil:
		temp = *o.Temperature
	}

	return generation.Request{
		Component:    component,
		ModelID:      b.modelID,
		Capability:   capability,
		SystemPrompt: Interpolate(tmpl.System, vars),
		UserPrompt:   Interpolate(tmpl.User, vars),
		MaxTokens:    maxTokens,
		Temperature:  temp,
	}
}
