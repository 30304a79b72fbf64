package scenarios

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/c360studio/semplan/api"
	"github.com/c360studio/semplan/export"
	"github.com/c360studio/semplan/test/e2e/client"
	"github.com/c360studio/semplan/test/e2e/config"
)

// GenerateScenario generates a full document and checks it was stored with
// every catalog component at version 1.
type GenerateScenario struct {
	name        string
	description string
	config      *config.Config
	http        *client.HTTPClient
	mockLLM     *client.MockLLMClient

	components []string
	domain     string
	docID      string
}

// NewGenerateScenario creates the generation scenario.
func NewGenerateScenario(cfg *config.Config) *GenerateScenario {
	return &GenerateScenario{
		name:        "generate",
		description: "Generate a document and verify components, listing and version 1",
		config:      cfg,
	}
}

// Name returns the scenario name.
func (s *GenerateScenario) Name() string {
	return s.name
}

// Description returns the scenario description.
func (s *GenerateScenario) Description() string {
	return s.description
}

// Setup creates clients and waits for the service.
func (s *GenerateScenario) Setup(ctx context.Context) error {
	var err error
	s.http, s.mockLLM, err = setupClients(ctx, s.config)
	return err
}

// Execute runs the generation stages.
func (s *GenerateScenario) Execute(ctx context.Context) (*Result, error) {
	return runStages(ctx, NewResult(s.name), s.config.StageTimeout, []stage{
		{"catalog", s.stageCatalog},
		{"generate", s.stageGenerate},
		{"verify-document", s.stageVerifyDocument},
		{"verify-listed", s.stageVerifyListed},
		{"verify-version", s.stageVerifyVersion},
		{"export", s.stageExport},
		{"mock-calls", s.stageMockCalls},
	}), nil
}

// Teardown deletes the generated document.
func (s *GenerateScenario) Teardown(ctx context.Context) error {
	return deleteIfPresent(ctx, s.http, s.docID)
}

func (s *GenerateScenario) stageCatalog(ctx context.Context, result *Result) error {
	cat, err := s.http.GetCatalog(ctx)
	if err != nil {
		return fmt.Errorf("get catalog: %w", err)
	}
	if len(cat.Components) == 0 {
		return errors.New("catalog has no components")
	}
	s.domain = cat.Domain
	s.components = s.components[:0]
	for _, c := range cat.Components {
		s.components = append(s.components, c.Name)
	}
	result.SetDetail("domain", cat.Domain)
	result.SetMetric("catalog_components", len(s.components))
	return nil
}

func (s *GenerateScenario) stageGenerate(ctx context.Context, result *Result) error {
	doc, err := s.http.Generate(ctx, api.GenerateRequest{
		Topic:   "Adding fractions with unlike denominators",
		Grade:   "5",
		Subject: "Mathematics",
	})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	s.docID = doc.Metadata.DocumentID
	result.SetDetail("document_id", s.docID)
	return nil
}

func (s *GenerateScenario) stageVerifyDocument(ctx context.Context, result *Result) error {
	doc, err := s.http.GetDocument(ctx, s.docID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	if missing := doc.Missing(s.components); len(missing) > 0 {
		return fmt.Errorf("document is missing components %v", missing)
	}
	if doc.Metadata.Version != 1 {
		return fmt.Errorf("expected version 1, got %d", doc.Metadata.Version)
	}
	if doc.Metadata.OwnerID != s.config.OwnerID {
		return fmt.Errorf("expected owner %q, got %q", s.config.OwnerID, doc.Metadata.OwnerID)
	}
	if doc.Metadata.Domain != s.domain {
		return fmt.Errorf("expected domain %q, got %q", s.domain, doc.Metadata.Domain)
	}
	result.SetMetric("document_components", doc.Len())
	result.SetDetail("generated_components", doc.Components())
	return nil
}

func (s *GenerateScenario) stageVerifyListed(ctx context.Context, _ *Result) error {
	list, err := s.http.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	for _, meta := range list {
		if meta.DocumentID == s.docID {
			return nil
		}
	}
	return fmt.Errorf("document %s not listed", s.docID)
}

func (s *GenerateScenario) stageVerifyVersion(ctx context.Context, result *Result) error {
	versions, err := s.http.ListVersions(ctx, s.docID)
	if err != nil {
		return fmt.Errorf("list versions: %w", err)
	}
	if len(versions) != 1 || versions[0].Version != 1 {
		return fmt.Errorf("expected exactly version 1, got %d versions", len(versions))
	}
	result.SetMetric("versions", len(versions))
	return nil
}

// stageExport checks the Markdown export has one section per component.
func (s *GenerateScenario) stageExport(ctx context.Context, result *Result) error {
	md, err := s.http.Export(ctx, s.docID, "markdown")
	if err != nil {
		return fmt.Errorf("export markdown: %w", err)
	}
	if !strings.HasPrefix(md, "# ") {
		return errors.New("markdown export has no title")
	}
	for _, name := range s.components {
		if !strings.Contains(md, "\n## "+export.Humanize(name)+"\n") {
			return fmt.Errorf("markdown export has no section for %s", name)
		}
	}
	result.SetMetric("markdown_bytes", len(md))
	return nil
}

// stageMockCalls checks every component reached the backend at least once.
func (s *GenerateScenario) stageMockCalls(ctx context.Context, result *Result) error {
	if s.mockLLM == nil {
		result.AddWarning("mock-llm URL not set, skipping call checks")
		return nil
	}
	stats, err := s.mockLLM.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("mock stats: %w", err)
	}
	var uncalled []string
	for _, name := range s.components {
		if stats.CallsByComponent[name] == 0 {
			uncalled = append(uncalled, name)
		}
	}
	if len(uncalled) > 0 {
		return fmt.Errorf("components never requested: %v", uncalled)
	}
	result.SetMetric("llm_calls", stats.TotalCalls)
	return nil
}

// setupClients creates the API client, and the mock client when configured,
// then waits for the service.
func setupClients(ctx context.Context, cfg *config.Config) (*client.HTTPClient, *client.MockLLMClient, error) {
	c := client.NewHTTPClient(cfg.HTTPBaseURL, cfg.OwnerID)

	setupCtx, cancel := context.WithTimeout(ctx, cfg.SetupTimeout)
	defer cancel()
	if err := c.WaitForHealthy(setupCtx); err != nil {
		return nil, nil, fmt.Errorf("service not healthy: %w", err)
	}

	var mock *client.MockLLMClient
	if cfg.MockLLMURL != "" {
		mock = client.NewMockLLMClient(cfg.MockLLMURL)
	}
	return c, mock, nil
}

func deleteIfPresent(ctx context.Context, c *client.HTTPClient, id string) error {
	if c == nil || id == "" {
		return nil
	}
	if err := c.DeleteDocument(ctx, id); err != nil && !client.IsStatus(err, http.StatusNotFound) {
		return err
	}
	return nil
}

func dependentComponents(cat *client.Catalog) []string {
	var out []string
	for _, c := range cat.Components {
		if c.Tier != "foundation" {
			out = append(out, c.Name)
		}
	}
	return slices.Clip(out)
}
