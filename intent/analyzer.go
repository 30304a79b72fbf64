package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/generation"
	"github.com/c360studio/semplan/prompts"
)

// Analyzer classifies chat messages with one generation call each.
type Analyzer struct {
	client  *generation.Client
	builder *prompts.Builder
	logger  *slog.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(client *generation.Client, builder *prompts.Builder, opts ...Option) *Analyzer {
	a := &Analyzer{
		client:  client,
		builder: builder,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze classifies message against doc. The reply must name at least one
// component present in doc; the analyzer does not judge whether the chosen
// components are the right ones.
func (a *Analyzer) Analyze(ctx context.Context, message string, doc *document.Document) (*Intent, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if doc == nil || doc.Len() == 0 {
		return nil, &ValidationError{Field: "document", Reason: "has no components"}
	}

	req := a.builder.BuildIntent(prompts.IntentInput{
		Message:    message,
		Components: doc.Components(),
		Context:    prompts.FromMetadata(doc.Metadata),
	})

	value, err := a.client.Call(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("analyze message: %w", err)
	}

	in, dropped, err := Parse(value, doc.Components())
	if len(dropped) > 0 {
		a.logger.Warn("Analyzer named components not in document",
			"dropped", dropped,
			"document_id", doc.Metadata.DocumentID)
	}
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Message classified",
		"components", in.AffectedComponents,
		"tier", in.Tier,
		"foundation_update", in.RequiresFoundationUpdate)
	return in, nil
}
