// Package service is the request boundary: it loads and persists documents
// around the generation and chat orchestrators and keeps the version and
// chat history.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/semplan/catalog"
	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/intent"
	"github.com/c360studio/semplan/orchestrator"
	"github.com/c360studio/semplan/storage"
)

// Service coordinates generation, chat updates and persistence.
type Service struct {
	generator *orchestrator.Generator
	updater   *orchestrator.Updater
	analyzer  *intent.Analyzer
	store     storage.Store
	catalog   *catalog.Catalog
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock sets the time source for versions and chat entries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator sets the chat entry ID source.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// New creates a service.
func New(gen *orchestrator.Generator, upd *orchestrator.Updater, an *intent.Analyzer, store storage.Store, opts ...Option) *Service {
	s := &Service{
		generator: gen,
		updater:   upd,
		analyzer:  an,
		store:     store,
		catalog:   gen.Catalog(),
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the active component catalog.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// GenerateDocument generates a full document for ownerID, stores it and
// records it as version 1. A base.ProfileID is resolved against the owner's
// stored profiles.
func (s *Service) GenerateDocument(ctx context.Context, ownerID, topic string, base orchestrator.BaseContext) (*document.Document, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, &document.ValidationError{Field: "topic", Reason: "is required"}
	}
	base.OwnerID = ownerID
	if err := s.resolveProfile(ctx, ownerID, &base); err != nil {
		return nil, err
	}

	doc, err := s.generator.GenerateDocument(ctx, topic, base)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, doc, false); err != nil {
		return nil, err
	}

	s.logger.Info("Document generated",
		"document_id", doc.Metadata.DocumentID,
		"owner_id", ownerID,
		"components", doc.Len())
	return doc, nil
}

// GetDocument returns the latest version of a document.
func (s *Service) GetDocument(ctx context.Context, ownerID, docID string) (*document.Document, error) {
	doc, err := s.store.GetDocument(ctx, ownerID, docID)
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", docID, err)
	}
	return doc, nil
}

// ListDocuments returns the owner's documents, newest first.
func (s *Service) ListDocuments(ctx context.Context, ownerID string) ([]document.Metadata, error) {
	return s.store.ListDocuments(ctx, ownerID)
}

// DeleteDocument removes a document with its versions and chat history.
func (s *Service) DeleteDocument(ctx context.Context, ownerID, docID string) error {
	if err := s.store.DeleteDocument(ctx, ownerID, docID); err != nil {
		return fmt.Errorf("delete document %s: %w", docID, err)
	}
	return nil
}

// AnalyzeMessage classifies message against the stored document.
func (s *Service) AnalyzeMessage(ctx context.Context, ownerID, docID, message string) (*intent.Intent, error) {
	doc, err := s.GetDocument(ctx, ownerID, docID)
	if err != nil {
		return nil, err
	}
	return s.analyzer.Analyze(ctx, message, doc)
}

// ChatResult is the outcome of one chat update.
type ChatResult struct {
	Document *document.Document `json:"document"`
	Intent   *intent.Intent     `json:"analysis"`
	Changed  []string           `json:"updatedComponents"`
	Response string             `json:"chatResponse"`
	Version  int                `json:"version"`
}

// ApplyChatUpdate applies message to the stored document. When in is nil
// the message is analyzed first. A new version is stored only when at
// least one component changed; the chat entry is recorded either way.
func (s *Service) ApplyChatUpdate(ctx context.Context, ownerID, docID, message string, in *intent.Intent) (*ChatResult, error) {
	doc, err := s.GetDocument(ctx, ownerID, docID)
	if err != nil {
		return nil, err
	}
	if in == nil {
		if in, err = s.analyzer.Analyze(ctx, message, doc); err != nil {
			return nil, err
		}
	}
	return s.apply(ctx, ownerID, doc, message, in)
}

// RegenerateComponent rewrites a single component following directive,
// without classifying a message first.
func (s *Service) RegenerateComponent(ctx context.Context, ownerID, docID, component, directive string) (*ChatResult, error) {
	if strings.TrimSpace(directive) == "" {
		return nil, &document.ValidationError{Field: "directive", Reason: "is required"}
	}
	if _, err := s.catalog.SpecFor(component); err != nil {
		return nil, err
	}
	doc, err := s.GetDocument(ctx, ownerID, docID)
	if err != nil {
		return nil, err
	}

	tier := intent.TierTargeted
	if s.catalog.IsFoundation(component) {
		tier = intent.TierFoundation
	}
	in := &intent.Intent{
		AffectedComponents: []string{component},
		Tier:               tier,
		Rationale:          "explicit regenerate request",
		Directive:          directive,
	}
	return s.apply(ctx, ownerID, doc, directive, in)
}

func (s *Service) apply(ctx context.Context, ownerID string, doc *document.Document, message string, in *intent.Intent) (*ChatResult, error) {
	docID := doc.Metadata.DocumentID
	updated, changed, err := s.updater.Apply(ctx, in, doc, message, s.updateOptions(ctx, ownerID, doc)...)
	if err != nil {
		return nil, err
	}

	if len(changed) > 0 {
		updated.Touch(s.now())
		if err := s.save(ctx, updated, true); err != nil {
			return nil, err
		}
	}

	result := &ChatResult{
		Document: updated,
		Intent:   in,
		Changed:  changed,
		Response: s.chatResponse(changed),
		Version:  updated.Metadata.Version,
	}

	entry := storage.ChatEntry{
		ID:         s.newID(),
		DocumentID: docID,
		OwnerID:    ownerID,
		Message:    message,
		Response:   result.Response,
		Rationale:  in.Rationale,
		Tier:       in.Tier,
		Affected:   in.AffectedComponents,
		Changed:    changed,
		Version:    result.Version,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.AppendChat(ctx, entry); err != nil {
		return nil, fmt.Errorf("record chat for %s: %w", docID, err)
	}

	s.logger.Info("Chat update applied",
		"document_id", docID,
		"changed", changed,
		"version", result.Version)
	return result, nil
}

// SaveDocument stores a user-edited document as the next version. Each
// component in edited must be a catalog component whose value matches its
// schema; components edited leaves out keep their stored values. Identity
// metadata comes from the stored document. A non-zero edited version must
// equal the stored one, otherwise the edit was made against a stale copy.
func (s *Service) SaveDocument(ctx context.Context, ownerID, docID string, edited *document.Document) (*document.Document, error) {
	if edited == nil {
		return nil, &document.ValidationError{Field: "document", Reason: "is required"}
	}
	stored, err := s.GetDocument(ctx, ownerID, docID)
	if err != nil {
		return nil, err
	}
	if v := edited.Metadata.Version; v != 0 && v != stored.Metadata.Version {
		return nil, fmt.Errorf("document %s is at version %d, edit was based on %d: %w",
			docID, stored.Metadata.Version, v, storage.ErrVersionExists)
	}

	doc := stored.Clone()
	for _, name := range edited.Components() {
		spec, err := s.catalog.SpecFor(name)
		if err != nil {
			return nil, err
		}
		value, err := edited.Value(name)
		if err != nil {
			return nil, &document.ValidationError{Field: name, Reason: err.Error()}
		}
		if err := spec.Schema.Validate(value); err != nil {
			return nil, &document.ValidationError{Field: name, Reason: err.Error()}
		}
		raw, _ := edited.Get(name)
		if err := doc.Set(name, raw); err != nil {
			return nil, err
		}
	}
	doc.Reorder(s.catalog.Components())

	meta := &doc.Metadata
	for _, f := range []struct {
		dst *string
		v   string
	}{
		{&meta.Topic, edited.Metadata.Topic},
		{&meta.Grade, edited.Metadata.Grade},
		{&meta.Subject, edited.Metadata.Subject},
		{&meta.Goals, edited.Metadata.Goals},
		{&meta.ExperienceLevel, edited.Metadata.ExperienceLevel},
		{&meta.AvailableDays, edited.Metadata.AvailableDays},
	} {
		if v := strings.TrimSpace(f.v); v != "" {
			*f.dst = v
		}
	}

	doc.Touch(s.now())
	if err := s.save(ctx, doc, true); err != nil {
		return nil, err
	}

	s.logger.Info("Document saved",
		"document_id", docID,
		"components", edited.Components(),
		"version", doc.Metadata.Version)
	return doc, nil
}

// ListVersions returns the document's snapshots, newest first.
func (s *Service) ListVersions(ctx context.Context, ownerID, docID string) ([]document.Snapshot, error) {
	if _, err := s.GetDocument(ctx, ownerID, docID); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, docID)
}

// GetVersion returns one snapshot.
func (s *Service) GetVersion(ctx context.Context, ownerID, docID string, version int) (document.Snapshot, error) {
	if _, err := s.GetDocument(ctx, ownerID, docID); err != nil {
		return document.Snapshot{}, err
	}
	snap, err := s.store.GetVersion(ctx, docID, version)
	if err != nil {
		return document.Snapshot{}, fmt.Errorf("get version %d of %s: %w", version, docID, err)
	}
	return snap, nil
}

// ListChat returns the document's chat history, oldest first.
func (s *Service) ListChat(ctx context.Context, ownerID, docID string) ([]storage.ChatEntry, error) {
	if _, err := s.GetDocument(ctx, ownerID, docID); err != nil {
		return nil, err
	}
	return s.store.ListChat(ctx, docID)
}

// save writes the latest document and its snapshot. For a document that
// is already stored the snapshot goes first, so a version conflict leaves
// the latest document unchanged.
func (s *Service) save(ctx context.Context, doc *document.Document, exists bool) error {
	meta := doc.Metadata
	putDocument := func() error {
		if err := s.store.PutDocument(ctx, doc); err != nil {
			return fmt.Errorf("store document %s: %w", meta.DocumentID, err)
		}
		return nil
	}
	putVersion := func() error {
		snap := document.NewSnapshot(doc, meta.LastModified)
		if err := s.store.PutVersion(ctx, meta.DocumentID, meta.Version, snap); err != nil {
			return fmt.Errorf("store version %d of %s: %w", meta.Version, meta.DocumentID, err)
		}
		return nil
	}

	// A new document must exist before its first snapshot.
	steps := []func() error{putDocument, putVersion}
	if exists {
		steps = []func() error{putVersion, putDocument}
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) chatResponse(changed []string) string {
	noun := documentNoun(s.catalog.Domain())
	if len(changed) == 0 {
		return fmt.Sprintf("I wasn't able to update the %s this time. Could you rephrase or try again?", noun)
	}
	return fmt.Sprintf("I've updated the following components: %s. How else can I help improve the %s?",
		strings.Join(changed, ", "), noun)
}

func documentNoun(domain string) string {
	switch domain {
	case "training":
		return "training plan"
	case "lesson":
		return "lesson plan"
	default:
		return "document"
	}
}
