package scenarios

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/c360studio/semplan/api"
	"github.com/c360studio/semplan/test/e2e/client"
	"github.com/c360studio/semplan/test/e2e/config"
)

// ChatScenario refines a generated document through chat and component
// regeneration, then checks history, versions and deletion.
type ChatScenario struct {
	name        string
	description string
	config      *config.Config
	http        *client.HTTPClient
	mockLLM     *client.MockLLMClient

	catalog         *client.Catalog
	target          string
	docID           string
	expectedVersion int
	chatEntries     int
}

// NewChatScenario creates the chat refinement scenario.
func NewChatScenario(cfg *config.Config) *ChatScenario {
	return &ChatScenario{
		name:        "chat",
		description: "Analyze and apply chat feedback, regenerate a component, check history and versions",
		config:      cfg,
	}
}

// Name returns the scenario name.
func (s *ChatScenario) Name() string {
	return s.name
}

// Description returns the scenario description.
func (s *ChatScenario) Description() string {
	return s.description
}

// Setup creates clients and waits for the service.
func (s *ChatScenario) Setup(ctx context.Context) error {
	var err error
	s.http, s.mockLLM, err = setupClients(ctx, s.config)
	return err
}

// Execute runs the chat stages.
func (s *ChatScenario) Execute(ctx context.Context) (*Result, error) {
	return runStages(ctx, NewResult(s.name), s.config.StageTimeout, []stage{
		{"generate", s.stageGenerate},
		{"analyze", s.stageAnalyze},
		{"chat", s.stageChat},
		{"regenerate", s.stageRegenerate},
		{"unknown-component", s.stageUnknownComponent},
		{"history", s.stageHistory},
		{"versions", s.stageVersions},
		{"mock-calls", s.stageMockCalls},
		{"delete", s.stageDelete},
	}), nil
}

// Teardown deletes the document if a stage failed before deletion.
func (s *ChatScenario) Teardown(ctx context.Context) error {
	return deleteIfPresent(ctx, s.http, s.docID)
}

func (s *ChatScenario) stageGenerate(ctx context.Context, result *Result) error {
	cat, err := s.http.GetCatalog(ctx)
	if err != nil {
		return fmt.Errorf("get catalog: %w", err)
	}
	dependent := dependentComponents(cat)
	if len(dependent) == 0 {
		return errors.New("catalog has no dependent components")
	}
	s.catalog = cat
	s.target = dependent[len(dependent)-1]

	doc, err := s.http.Generate(ctx, api.GenerateRequest{Topic: "Photosynthesis", Grade: "7", Subject: "Science"})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	s.docID = doc.Metadata.DocumentID
	s.expectedVersion = doc.Metadata.Version
	result.SetDetail("document_id", s.docID)
	result.SetDetail("target_component", s.target)
	return nil
}

func (s *ChatScenario) message() string {
	return "Please make the " + s.target + " more challenging"
}

func (s *ChatScenario) stageAnalyze(ctx context.Context, result *Result) error {
	in, err := s.http.Analyze(ctx, s.docID, s.message())
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	if len(in.AffectedComponents) == 0 {
		return errors.New("analysis named no components")
	}
	names := make([]string, 0, len(s.catalog.Components))
	for _, c := range s.catalog.Components {
		names = append(names, c.Name)
	}
	for _, c := range in.AffectedComponents {
		if !slices.Contains(names, c) {
			return fmt.Errorf("analysis named unknown component %q", c)
		}
	}
	result.SetDetail("analysis_components", in.AffectedComponents)
	result.SetMetric("analysis_tier", in.Tier)
	return nil
}

func (s *ChatScenario) stageChat(ctx context.Context, result *Result) error {
	res, err := s.http.Chat(ctx, s.docID, s.message())
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	s.chatEntries++
	if res.Response == "" {
		return errors.New("empty chat response")
	}
	if len(res.Changed) > 0 {
		s.expectedVersion++
	}
	if res.Version != s.expectedVersion {
		return fmt.Errorf("expected version %d after chat, got %d", s.expectedVersion, res.Version)
	}
	result.SetDetail("chat_changed", res.Changed)
	return nil
}

func (s *ChatScenario) stageRegenerate(ctx context.Context, result *Result) error {
	res, err := s.http.Regenerate(ctx, s.docID, s.target, "use a real-world example")
	if err != nil {
		return fmt.Errorf("regenerate: %w", err)
	}
	s.chatEntries++
	if len(res.Changed) > 0 {
		s.expectedVersion++
		if !slices.Contains(res.Changed, s.target) {
			return fmt.Errorf("regenerate changed %v but not %s", res.Changed, s.target)
		}
	}
	if res.Version != s.expectedVersion {
		return fmt.Errorf("expected version %d after regenerate, got %d", s.expectedVersion, res.Version)
	}
	result.SetDetail("regenerate_changed", res.Changed)
	return nil
}

func (s *ChatScenario) stageUnknownComponent(ctx context.Context, _ *Result) error {
	_, err := s.http.Regenerate(ctx, s.docID, "noSuchComponent", "anything")
	if !client.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("expected 404 for unknown component, got %v", err)
	}
	return nil
}

func (s *ChatScenario) stageHistory(ctx context.Context, result *Result) error {
	entries, err := s.http.ListChat(ctx, s.docID)
	if err != nil {
		return fmt.Errorf("list chat: %w", err)
	}
	if len(entries) != s.chatEntries {
		return fmt.Errorf("expected %d chat entries, got %d", s.chatEntries, len(entries))
	}
	if entries[0].Message != s.message() {
		return fmt.Errorf("first entry message %q, want %q", entries[0].Message, s.message())
	}
	result.SetMetric("chat_entries", len(entries))
	return nil
}

func (s *ChatScenario) stageVersions(ctx context.Context, result *Result) error {
	versions, err := s.http.ListVersions(ctx, s.docID)
	if err != nil {
		return fmt.Errorf("list versions: %w", err)
	}
	if len(versions) != s.expectedVersion {
		return fmt.Errorf("expected %d versions, got %d", s.expectedVersion, len(versions))
	}
	for i, v := range versions {
		if want := s.expectedVersion - i; v.Version != want {
			return fmt.Errorf("versions out of order: position %d has %d, want %d", i, v.Version, want)
		}
	}

	first, err := s.http.GetVersion(ctx, s.docID, 1)
	if err != nil {
		return fmt.Errorf("get version 1: %w", err)
	}
	if first.Document == nil || first.Document.Metadata.Version != 1 {
		return errors.New("version 1 snapshot does not hold the version 1 document")
	}
	result.SetMetric("versions", len(versions))
	return nil
}

// stageMockCalls checks the target reached the backend once for
// generation, once for the chat update and once for regeneration.
func (s *ChatScenario) stageMockCalls(ctx context.Context, result *Result) error {
	if s.mockLLM == nil {
		result.AddWarning("mock-llm URL not set, skipping call checks")
		return nil
	}
	stats, err := s.mockLLM.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("mock stats: %w", err)
	}
	if n := stats.CallsByComponent[s.target]; n < 3 {
		return fmt.Errorf("expected at least 3 calls for %s, got %d", s.target, n)
	}
	result.SetMetric("llm_calls", stats.TotalCalls)
	return nil
}

func (s *ChatScenario) stageDelete(ctx context.Context, _ *Result) error {
	if err := s.http.DeleteDocument(ctx, s.docID); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	_, err := s.http.GetDocument(ctx, s.docID)
	if !client.IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("expected 404 after delete, got %v", err)
	}
	s.docID = ""
	return nil
}
