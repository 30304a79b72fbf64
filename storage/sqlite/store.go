// Package sqlite is a storage.Store backed by a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/storage"
	"github.com/c360studio/semplan/storage/sqlite/migrations"
)

// Ensure Store implements the interface.
var _ storage.Store = (*Store)(nil)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists documents, versions and chat history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path and runs
// pending migrations.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate applies every NNN_name.up.sql newer than the recorded version,
// each in its own transaction.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}
	return nil
}

// ==================== Documents ====================

// GetDocument retrieves a document.
func (s *Store) GetDocument(ctx context.Context, ownerID, docID string) (*document.Document, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE id = ? AND owner_id = ?", docID, ownerID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}

	var doc document.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", docID, err)
	}
	return &doc, nil
}

// PutDocument stores or replaces a document.
func (s *Store) PutDocument(ctx context.Context, doc *document.Document) error {
	meta := doc.Metadata
	if meta.DocumentID == "" {
		return &document.ValidationError{Field: "documentId", Reason: "is required"}
	}
	body, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, owner_id, domain, topic, version, last_modified, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			domain = excluded.domain,
			topic = excluded.topic,
			version = excluded.version,
			last_modified = excluded.last_modified,
			body = excluded.body
	`, meta.DocumentID, meta.OwnerID, meta.Domain, meta.Topic, meta.Version,
		meta.LastModified.UTC().Format(timeFormat), body)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}
	return nil
}

// ListDocuments returns the owner's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, ownerID string) ([]document.Metadata, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT body FROM documents WHERE owner_id = ? ORDER BY last_modified DESC, id ASC", ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	out := []document.Metadata{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		var head struct {
			Metadata document.Metadata `json:"metadata"`
		}
		if err := json.Unmarshal(body, &head); err != nil {
			return nil, fmt.Errorf("decoding document metadata: %w", err)
		}
		out = append(out, head.Metadata)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document; versions and chat history cascade.
func (s *Store) DeleteDocument(ctx context.Context, ownerID, docID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ? AND owner_id = ?", docID, ownerID)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ==================== Versions ====================

// PutVersion appends a snapshot.
func (s *Store) PutVersion(ctx context.Context, docID string, version int, snap document.Snapshot) error {
	if snap.Document == nil {
		return &document.ValidationError{Field: "document", Reason: "is required"}
	}
	body, err := snap.Document.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := exists(ctx, tx, "SELECT 1 FROM documents WHERE id = ?", docID); err != nil {
		return err
	}
	err = exists(ctx, tx, "SELECT 1 FROM document_versions WHERE document_id = ? AND version = ?", docID, version)
	switch {
	case err == nil:
		return fmt.Errorf("document %s version %d: %w", docID, version, storage.ErrVersionExists)
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO document_versions (document_id, version, created_at, body) VALUES (?, ?, ?, ?)",
		docID, version, snap.CreatedAt.UTC().Format(timeFormat), body)
	if err != nil {
		return fmt.Errorf("saving version: %w", err)
	}
	return tx.Commit()
}

// ListVersions returns snapshots newest first.
func (s *Store) ListVersions(ctx context.Context, docID string) ([]document.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT version, created_at, body FROM document_versions WHERE document_id = ? ORDER BY version DESC", docID)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	out := []document.Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(docID, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// GetVersion returns one snapshot.
func (s *Store) GetVersion(ctx context.Context, docID string, version int) (document.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT version, created_at, body FROM document_versions WHERE document_id = ? AND version = ?", docID, version)
	snap, err := scanSnapshot(docID, row)
	if errors.Is(err, sql.ErrNoRows) {
		return document.Snapshot{}, storage.ErrNotFound
	}
	return snap, err
}

// ==================== Chat ====================

// AppendChat records a chat update.
func (s *Store) AppendChat(ctx context.Context, entry storage.ChatEntry) error {
	affected, err := json.Marshal(nonNil(entry.Affected))
	if err != nil {
		return err
	}
	changed, err := json.Marshal(nonNil(entry.Changed))
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := exists(ctx, tx, "SELECT 1 FROM documents WHERE id = ?", entry.DocumentID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_entries (id, document_id, owner_id, message, response, rationale, tier, affected, changed, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.DocumentID, entry.OwnerID, entry.Message, entry.Response, entry.Rationale,
		entry.Tier, string(affected), string(changed), entry.Version, entry.CreatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("saving chat entry: %w", err)
	}
	return tx.Commit()
}

// ListChat returns chat history oldest first.
func (s *Store) ListChat(ctx context.Context, docID string) ([]storage.ChatEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, message, response, rationale, tier, affected, changed, version, created_at
		FROM chat_entries WHERE document_id = ? ORDER BY seq ASC
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("querying chat: %w", err)
	}
	defer rows.Close()

	out := []storage.ChatEntry{}
	for rows.Next() {
		e := storage.ChatEntry{DocumentID: docID}
		var affected, changed, created string
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Message, &e.Response, &e.Rationale, &e.Tier,
			&affected, &changed, &e.Version, &created); err != nil {
			return nil, fmt.Errorf("scanning chat entry: %w", err)
		}
		if err := json.Unmarshal([]byte(affected), &e.Affected); err != nil {
			return nil, fmt.Errorf("decoding affected components: %w", err)
		}
		if err := json.Unmarshal([]byte(changed), &e.Changed); err != nil {
			return nil, fmt.Errorf("decoding changed components: %w", err)
		}
		if e.CreatedAt, err = time.Parse(timeFormat, created); err != nil {
			return nil, fmt.Errorf("parsing chat timestamp: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ==================== Profiles ====================

// PutProfile creates or replaces a profile.
func (s *Store) PutProfile(ctx context.Context, p storage.Profile) error {
	if p.OwnerID == "" || p.Name == "" {
		return &document.ValidationError{Field: "profileName", Reason: "owner and name are required"}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (owner_id, name, demographics, general_background, math_ability,
			engagement, special_considerations, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, name) DO UPDATE SET
			demographics = excluded.demographics,
			general_background = excluded.general_background,
			math_ability = excluded.math_ability,
			engagement = excluded.engagement,
			special_considerations = excluded.special_considerations,
			active = excluded.active,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, p.OwnerID, p.Name, p.Demographics, p.GeneralBackground, p.MathAbility,
		p.Engagement, p.SpecialConsiderations, p.Active,
		p.CreatedAt.UTC().Format(timeFormat), p.UpdatedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	return nil
}

const profileColumns = `owner_id, name, demographics, general_background, math_ability,
	engagement, special_considerations, active, created_at, updated_at`

// GetProfile retrieves a profile.
func (s *Store) GetProfile(ctx context.Context, ownerID, name string) (storage.Profile, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE owner_id = ? AND name = ?", ownerID, name)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Profile{}, storage.ErrNotFound
	}
	return p, err
}

// ListProfiles returns the owner's profiles ordered by name.
func (s *Store) ListProfiles(ctx context.Context, ownerID string) ([]storage.Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE owner_id = ? ORDER BY name ASC", ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying profiles: %w", err)
	}
	defer rows.Close()

	out := []storage.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProfile removes a profile.
func (s *Store) DeleteProfile(ctx context.Context, ownerID, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM profiles WHERE owner_id = ? AND name = ?", ownerID, name)
	if err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ==================== Helpers ====================

func scanProfile(row scanner) (storage.Profile, error) {
	var (
		p                storage.Profile
		created, updated string
	)
	if err := row.Scan(&p.OwnerID, &p.Name, &p.Demographics, &p.GeneralBackground, &p.MathAbility,
		&p.Engagement, &p.SpecialConsiderations, &p.Active, &created, &updated); err != nil {
		return storage.Profile{}, err
	}
	var err error
	if p.CreatedAt, err = time.Parse(timeFormat, created); err != nil {
		return storage.Profile{}, fmt.Errorf("parsing profile timestamp: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(timeFormat, updated); err != nil {
		return storage.Profile{}, fmt.Errorf("parsing profile timestamp: %w", err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(docID string, row scanner) (document.Snapshot, error) {
	var (
		version int
		created string
		body    []byte
	)
	if err := row.Scan(&version, &created, &body); err != nil {
		return document.Snapshot{}, err
	}
	createdAt, err := time.Parse(timeFormat, created)
	if err != nil {
		return document.Snapshot{}, fmt.Errorf("parsing version timestamp: %w", err)
	}
	var doc document.Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return document.Snapshot{}, fmt.Errorf("decoding snapshot %s/%d: %w", docID, version, err)
	}
	return document.Snapshot{DocumentID: docID, Version: version, CreatedAt: createdAt, Document: &doc}, nil
}

// exists returns nil when query yields a row and storage.ErrNotFound when
// it does not.
func exists(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
