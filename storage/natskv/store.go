// Package natskv stores documents in NATS JetStream key-value buckets.
//
// Four buckets hold the latest documents, immutable version snapshots,
// per-document chat logs and learner profiles. Version keys are
// "<docID>.<version>", profile keys "<owner>.<name>" with the owner ID
// base64url-encoded, and each chat log is one JSON array updated with
// optimistic concurrency.
package natskv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/storage"
)

// Ensure Store implements the interface.
var _ storage.Store = (*Store)(nil)

// Default bucket prefix.
const DefaultPrefix = "SEMPLAN"

// maxAppendRetries bounds optimistic chat appends under contention.
const maxAppendRetries = 5

// validKey matches the key characters JetStream KV accepts.
var validKey = regexp.MustCompile(`^[-/_=a-zA-Z0-9]+$`)

// Store provides document storage backed by NATS KV.
type Store struct {
	conn     *nats.Conn // owned connection, nil when the caller passed JetStream
	docs     jetstream.KeyValue
	versions jetstream.KeyValue
	chat     jetstream.KeyValue
	profiles jetstream.KeyValue
}

// Connect dials url and opens the buckets under DefaultPrefix. Close
// drains the connection.
func Connect(ctx context.Context, url string) (*Store, error) {
	conn, err := nats.Connect(url, nats.Name("semplan"))
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	s, err := NewStore(ctx, js, DefaultPrefix)
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.conn = conn
	return s, nil
}

// BucketNames returns the documents, versions, chat and profiles bucket
// names for prefix.
func BucketNames(prefix string) (docs, versions, chat, profiles string) {
	return prefix + "_DOCUMENTS", prefix + "_VERSIONS", prefix + "_CHAT", prefix + "_PROFILES"
}

// NewStore creates the buckets under prefix if they don't exist.
func NewStore(ctx context.Context, js jetstream.JetStream, prefix string) (*Store, error) {
	docsName, versionsName, chatName, profilesName := BucketNames(prefix)

	docs, err := getOrCreateBucket(ctx, js, docsName, "latest documents", 5)
	if err != nil {
		return nil, fmt.Errorf("create documents bucket: %w", err)
	}
	versions, err := getOrCreateBucket(ctx, js, versionsName, "document versions", 1)
	if err != nil {
		return nil, fmt.Errorf("create versions bucket: %w", err)
	}
	chat, err := getOrCreateBucket(ctx, js, chatName, "chat history", 1)
	if err != nil {
		return nil, fmt.Errorf("create chat bucket: %w", err)
	}

	profiles, err := getOrCreateBucket(ctx, js, profilesName, "learner profiles", 1)
	if err != nil {
		return nil, fmt.Errorf("create profiles bucket: %w", err)
	}

	return &Store{docs: docs, versions: versions, chat: chat, profiles: profiles}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name, description string, history uint8) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "Semplan " + description,
		History:     history,
	})
}

// Close drains the connection when the store opened it.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}

// GetDocument retrieves a document.
func (s *Store) GetDocument(ctx context.Context, ownerID, docID string) (*document.Document, error) {
	if !validKey.MatchString(docID) {
		return nil, storage.ErrNotFound
	}
	doc, err := s.loadDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Metadata.OwnerID != ownerID {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

func (s *Store) loadDocument(ctx context.Context, docID string) (*document.Document, error) {
	entry, err := s.docs.Get(ctx, docID)
	if err != nil {
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get document %s: %w", docID, err)
	}
	var doc document.Document
	if err := json.Unmarshal(entry.Value(), &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", docID, err)
	}
	return &doc, nil
}

// PutDocument stores or replaces a document.
func (s *Store) PutDocument(ctx context.Context, doc *document.Document) error {
	id := doc.Metadata.DocumentID
	if id == "" {
		return &document.ValidationError{Field: "documentId", Reason: "is required"}
	}
	if !validKey.MatchString(id) {
		return &document.ValidationError{Field: "documentId", Reason: "contains characters NATS keys cannot hold"}
	}
	body, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err := s.docs.Put(ctx, id, body); err != nil {
		return fmt.Errorf("store document %s: %w", id, err)
	}
	return nil
}

// ListDocuments returns the owner's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, ownerID string) ([]document.Metadata, error) {
	keys, err := listKeys(ctx, s.docs)
	if err != nil {
		return nil, fmt.Errorf("list document keys: %w", err)
	}

	out := []document.Metadata{}
	for _, key := range keys {
		entry, err := s.docs.Get(ctx, key)
		if err != nil {
			if isNotFound(err) {
				continue // deleted since listing
			}
			return nil, fmt.Errorf("get document %s: %w", key, err)
		}
		var head struct {
			Metadata document.Metadata `json:"metadata"`
		}
		if err := json.Unmarshal(entry.Value(), &head); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", key, err)
		}
		if head.Metadata.OwnerID == ownerID {
			out = append(out, head.Metadata)
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
func (s *Store) DeleteDocument(ctx context.Context, ownerID, docID string) error {
	if _, err := s.GetDocument(ctx, ownerID, docID); err != nil {
		return err
	}

	versionKeys, err := s.versionKeys(ctx, docID)
	if err != nil {
		return err
	}
	for _, key := range versionKeys {
		if err := s.versions.Purge(ctx, key); err != nil {
			return fmt.Errorf("purge version %s: %w", key, err)
		}
	}
	if err := s.chat.Purge(ctx, docID); err != nil && !isNotFound(err) {
		return fmt.Errorf("purge chat %s: %w", docID, err)
	}
	if err := s.docs.Purge(ctx, docID); err != nil {
		return fmt.Errorf("purge document %s: %w", docID, err)
	}
	return nil
}

// storedSnapshot is the bucket form of a snapshot. Document keeps the
// document's own encoding so component bytes survive.
type storedSnapshot struct {
	DocumentID string          `json:"documentId"`
	Version    int             `json:"version"`
	CreatedAt  time.Time       `json:"createdAt"`
	Document   json.RawMessage `json:"document"`
}

// PutVersion appends a snapshot.
func (s *Store) PutVersion(ctx context.Context, docID string, version int, snap document.Snapshot) error {
	if snap.Document == nil {
		return &document.ValidationError{Field: "document", Reason: "is required"}
	}
	if !validKey.MatchString(docID) {
		return storage.ErrNotFound
	}
	if _, err := s.docs.Get(ctx, docID); err != nil {
		if isNotFound(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get document %s: %w", docID, err)
	}

	body, err := snap.Document.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	data, err := json.Marshal(storedSnapshot{
		DocumentID: docID,
		Version:    version,
		CreatedAt:  snap.CreatedAt.UTC(),
		Document:   body,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := s.versions.Create(ctx, versionKey(docID, version), data); err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("document %s version %d: %w", docID, version, storage.ErrVersionExists)
		}
		return fmt.Errorf("store version %s/%d: %w", docID, version, err)
	}
	return nil
}

// ListVersions returns snapshots newest first.
func (s *Store) ListVersions(ctx context.Context, docID string) ([]document.Snapshot, error) {
	if !validKey.MatchString(docID) {
		return []document.Snapshot{}, nil
	}
	keys, err := s.versionKeys(ctx, docID)
	if err != nil {
		return nil, err
	}

	out := make([]document.Snapshot, 0, len(keys))
	for _, key := range keys {
		snap, err := s.getVersion(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

// GetVersion returns one snapshot.
func (s *Store) GetVersion(ctx context.Context, docID string, version int) (document.Snapshot, error) {
	if !validKey.MatchString(docID) {
		return document.Snapshot{}, storage.ErrNotFound
	}
	return s.getVersion(ctx, versionKey(docID, version))
}

func (s *Store) getVersion(ctx context.Context, key string) (document.Snapshot, error) {
	entry, err := s.versions.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return document.Snapshot{}, storage.ErrNotFound
		}
		return document.Snapshot{}, fmt.Errorf("get version %s: %w", key, err)
	}

	var stored storedSnapshot
	if err := json.Unmarshal(entry.Value(), &stored); err != nil {
		return document.Snapshot{}, fmt.Errorf("decode version %s: %w", key, err)
	}
	var doc document.Document
	if err := json.Unmarshal(stored.Document, &doc); err != nil {
		return document.Snapshot{}, fmt.Errorf("decode version %s: %w", key, err)
	}
	return document.Snapshot{
		DocumentID: stored.DocumentID,
		Version:    stored.Version,
		CreatedAt:  stored.CreatedAt,
		Document:   &doc,
	}, nil
}

// versionKeys lists the version keys of one document.
func (s *Store) versionKeys(ctx context.Context, docID string) ([]string, error) {
	all, err := listKeys(ctx, s.versions)
	if err != nil {
		return nil, fmt.Errorf("list version keys: %w", err)
	}
	prefix := docID + "."
	var out []string
	for _, key := range all {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	return out, nil
}

// AppendChat records a chat update. The document's log is rewritten with
// the revision it was read at; a concurrent append forces a re-read.
func (s *Store) AppendChat(ctx context.Context, entry storage.ChatEntry) error {
	docID := entry.DocumentID
	if !validKey.MatchString(docID) {
		return storage.ErrNotFound
	}
	if _, err := s.docs.Get(ctx, docID); err != nil {
		if isNotFound(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("get document %s: %w", docID, err)
	}

	entry.Affected = nonNil(entry.Affected)
	entry.Changed = nonNil(entry.Changed)

	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		log, revision, err := s.readChat(ctx, docID)
		if err != nil {
			return err
		}
		data, err := json.Marshal(append(log, entry))
		if err != nil {
			return fmt.Errorf("encode chat: %w", err)
		}

		if revision == 0 {
			_, err = s.chat.Create(ctx, docID, data)
		} else {
			_, err = s.chat.Update(ctx, docID, data, revision)
		}
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return fmt.Errorf("append chat %s: %w", docID, err)
		}
	}
	return fmt.Errorf("append chat %s: too many concurrent writers", docID)
}

// ListChat returns chat history oldest first.
func (s *Store) ListChat(ctx context.Context, docID string) ([]storage.ChatEntry, error) {
	if !validKey.MatchString(docID) {
		return []storage.ChatEntry{}, nil
	}
	log, _, err := s.readChat(ctx, docID)
	return log, err
}

// readChat returns the chat log and its revision, zero when absent.
func (s *Store) readChat(ctx context.Context, docID string) ([]storage.ChatEntry, uint64, error) {
	entry, err := s.chat.Get(ctx, docID)
	if err != nil {
		if isNotFound(err) {
			return []storage.ChatEntry{}, 0, nil
		}
		return nil, 0, fmt.Errorf("get chat %s: %w", docID, err)
	}
	var log []storage.ChatEntry
	if err := json.Unmarshal(entry.Value(), &log); err != nil {
		return nil, 0, fmt.Errorf("decode chat %s: %w", docID, err)
	}
	return log, entry.Revision(), nil
}

// PutProfile creates or replaces a profile.
func (s *Store) PutProfile(ctx context.Context, p storage.Profile) error {
	if p.OwnerID == "" || p.Name == "" {
		return &document.ValidationError{Field: "profileName", Reason: "owner and name are required"}
	}
	if !validKey.MatchString(p.Name) {
		return &document.ValidationError{Field: "profileName", Reason: "contains characters NATS keys cannot hold"}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	key := profileKey(p.OwnerID, p.Name)
	if _, err := s.profiles.Put(ctx, key, data); err != nil {
		return fmt.Errorf("store profile %s: %w", p.Name, err)
	}
	return nil
}

// GetProfile retrieves a profile.
func (s *Store) GetProfile(ctx context.Context, ownerID, name string) (storage.Profile, error) {
	if ownerID == "" || !validKey.MatchString(name) {
		return storage.Profile{}, storage.ErrNotFound
	}
	return s.getProfile(ctx, profileKey(ownerID, name))
}

func (s *Store) getProfile(ctx context.Context, key string) (storage.Profile, error) {
	entry, err := s.profiles.Get(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return storage.Profile{}, storage.ErrNotFound
		}
		return storage.Profile{}, fmt.Errorf("get profile %s: %w", key, err)
	}
	var p storage.Profile
	if err := json.Unmarshal(entry.Value(), &p); err != nil {
		return storage.Profile{}, fmt.Errorf("decode profile %s: %w", key, err)
	}
	return p, nil
}

// ListProfiles returns the owner's profiles ordered by name.
func (s *Store) ListProfiles(ctx context.Context, ownerID string) ([]storage.Profile, error) {
	all, err := listKeys(ctx, s.profiles)
	if err != nil {
		return nil, fmt.Errorf("list profile keys: %w", err)
	}
	prefix := ownerKey(ownerID) + "."

	out := []storage.Profile{}
	for _, key := range all {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		p, err := s.getProfile(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteProfile removes a profile.
func (s *Store) DeleteProfile(ctx context.Context, ownerID, name string) error {
	if _, err := s.GetProfile(ctx, ownerID, name); err != nil {
		return err
	}
	if err := s.profiles.Purge(ctx, profileKey(ownerID, name)); err != nil {
		return fmt.Errorf("delete profile %s: %w", name, err)
	}
	return nil
}

// ownerKey encodes an owner ID, which may hold '@' or '.', as one key token.
func ownerKey(ownerID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(ownerID))
}

func profileKey(ownerID, name string) string {
	return ownerKey(ownerID) + "." + name
}

func versionKey(docID string, version int) string {
	return docID + "." + strconv.Itoa(version)
}

// listKeys lists a bucket's live keys, empty when it has none.
func listKeys(ctx context.Context, kv jetstream.KeyValue) ([]string, error) {
	list, err := kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, err
	}
	return list, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// isNotFound checks if an error indicates a key was not found or deleted.
func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}

// isConflict reports a lost optimistic write.
func isConflict(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
