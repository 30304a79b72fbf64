// Package memory is an in-process storage.Store for tests and local runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/storage"
)

// Ensure Store implements the interface.
var _ storage.Store = (*Store)(nil)

type storedVersion struct {
	snap document.Snapshot
	body []byte
}

// Store keeps encoded documents in maps guarded by one RWMutex. Values are
// encoded on write so callers never share memory with the store.
type Store struct {
	mu       sync.RWMutex
	docs     map[string][]byte
	meta     map[string]document.Metadata
	versions map[string][]storedVersion
	chat     map[string][]storage.ChatEntry
	profiles map[string]map[string]storage.Profile // owner, then name
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		docs:     make(map[string][]byte),
		meta:     make(map[string]document.Metadata),
		versions: make(map[string][]storedVersion),
		chat:     make(map[string][]storage.ChatEntry),
		profiles: make(map[string]map[string]storage.Profile),
	}
}

// GetDocument retrieves a document.
func (s *Store) GetDocument(_ context.Context, ownerID, docID string) (*document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.meta[docID]
	if !ok || meta.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	var doc document.Document
	if err := json.Unmarshal(s.docs[docID], &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", docID, err)
	}
	return &doc, nil
}

// PutDocument stores or replaces a document.
func (s *Store) PutDocument(_ context.Context, doc *document.Document) error {
	if doc.Metadata.DocumentID == "" {
		return &document.ValidationError{Field: "documentId", Reason: "is required"}
	}
	body, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.Metadata.DocumentID] = body
	s.meta[doc.Metadata.DocumentID] = doc.Metadata
	return nil
}

// ListDocuments returns the owner's documents, newest first.
func (s *Store) ListDocuments(_ context.Context, ownerID string) ([]document.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []document.Metadata{}
	for _, meta := range s.meta {
		if meta.OwnerID == ownerID {
			out = append(out, meta)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out, nil
}

// DeleteDocument removes a document, its versions and chat history.
func (s *Store) DeleteDocument(_ context.Context, ownerID, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.meta[docID]
	if !ok || meta.OwnerID != ownerID {
		return storage.ErrNotFound
	}
	delete(s.docs, docID)
	delete(s.meta, docID)
	delete(s.versions, docID)
	delete(s.chat, docID)
	return nil
}

// PutVersion appends a snapshot.
func (s *Store) PutVersion(_ context.Context, docID string, version int, snap document.Snapshot) error {
	if snap.Document == nil {
		return &document.ValidationError{Field: "document", Reason: "is required"}
	}
	body, err := snap.Document.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meta[docID]; !ok {
		return storage.ErrNotFound
	}
	for _, v := range s.versions[docID] {
		if v.snap.Version == version {
			return fmt.Errorf("document %s version %d: %w", docID, version, storage.ErrVersionExists)
		}
	}

	snap.DocumentID = docID
	snap.Version = version
	snap.Document = nil
	s.versions[docID] = append(s.versions[docID], storedVersion{snap: snap, body: body})
	return nil
}

// ListVersions returns snapshots newest first.
func (s *Store) ListVersions(_ context.Context, docID string) ([]document.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := slices.Clone(s.versions[docID])
	sort.Slice(stored, func(i, j int) bool { return stored[i].snap.Version > stored[j].snap.Version })

	out := make([]document.Snapshot, 0, len(stored))
	for _, v := range stored {
		snap, err := v.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

// GetVersion returns one snapshot.
func (s *Store) GetVersion(_ context.Context, docID string, version int) (document.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.versions[docID] {
		if v.snap.Version == version {
			return v.decode()
		}
	}
	return document.Snapshot{}, storage.ErrNotFound
}

// AppendChat records a chat update.
func (s *Store) AppendChat(_ context.Context, entry storage.ChatEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meta[entry.DocumentID]; !ok {
		return storage.ErrNotFound
	}
	entry.Affected = slices.Clone(entry.Affected)
	entry.Changed = slices.Clone(entry.Changed)
	s.chat[entry.DocumentID] = append(s.chat[entry.DocumentID], entry)
	return nil
}

// ListChat returns chat history oldest first.
func (s *Store) ListChat(_ context.Context, docID string) ([]storage.ChatEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.ChatEntry, 0, len(s.chat[docID]))
	for _, e := range s.chat[docID] {
		e.Affected = slices.Clone(e.Affected)
		e.Changed = slices.Clone(e.Changed)
		out = append(out, e)
	}
	return out, nil
}

// PutProfile creates or replaces a profile.
func (s *Store) PutProfile(_ context.Context, p storage.Profile) error {
	if p.OwnerID == "" || p.Name == "" {
		return &document.ValidationError{Field: "profileName", Reason: "owner and name are required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	owned, ok := s.profiles[p.OwnerID]
	if !ok {
		owned = make(map[string]storage.Profile)
		s.profiles[p.OwnerID] = owned
	}
	owned[p.Name] = p
	return nil
}

// GetProfile retrieves a profile.
func (s *Store) GetProfile(_ context.Context, ownerID, name string) (storage.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[ownerID][name]
	if !ok {
		return storage.Profile{}, storage.ErrNotFound
	}
	return p, nil
}

// ListProfiles returns the owner's profiles ordered by name.
func (s *Store) ListProfiles(_ context.Context, ownerID string) ([]storage.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.Profile, 0, len(s.profiles[ownerID]))
	for _, p := range s.profiles[ownerID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteProfile removes a profile.
func (s *Store) DeleteProfile(_ context.Context, ownerID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[ownerID][name]; !ok {
		return storage.ErrNotFound
	}
	delete(s.profiles[ownerID], name)
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (v storedVersion) decode() (document.Snapshot, error) {
	var doc document.Document
	if err := json.Unmarshal(v.body, &doc); err != nil {
		return document.Snapshot{}, fmt.Errorf("decode snapshot %s/%d: %w", v.snap.DocumentID, v.snap.Version, err)
	}
	snap := v.snap
	snap.Document = &doc
	return snap, nil
}
