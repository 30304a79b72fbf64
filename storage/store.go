// Package storage defines persistence for generated documents, their
// append-only version snapshots, the chat history that produced them and
// the learner profiles documents are generated for. Adapters live in
// storage/memory, storage/sqlite and storage/natskv.
package storage

import (
	"context"
	"time"

	"github.com/c360studio/semplan/document"
)

// ChatEntry records one applied chat update.
type ChatEntry struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	OwnerID    string    `json:"ownerId,omitempty"`
	Message    string    `json:"message"`
	Response   string    `json:"response"`
	Rationale  string    `json:"rationale,omitempty"`
	Tier       int       `json:"tier"`
	Affected   []string  `json:"affected"`
	Changed    []string  `json:"changed"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Profile describes a learner a document is tailored to. Names are unique
// per owner.
type Profile struct {
	OwnerID               string    `json:"ownerId,omitempty"`
	Name                  string    `json:"profileName"`
	Demographics          string    `json:"demographics"`
	GeneralBackground     string    `json:"generalBackground"`
	MathAbility           string    `json:"mathAbility"`
	Engagement            string    `json:"engagement"`
	SpecialConsiderations string    `json:"specialConsiderations"`
	Active                bool      `json:"active"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// Store persists documents. There is no cross-call transaction: concurrent
// read-modify-write of one document is last-writer-wins.
type Store interface {
	// GetDocument returns the latest document, or ErrNotFound when it is
	// missing or belongs to another owner.
	GetDocument(ctx context.Context, ownerID, docID string) (*document.Document, error)

	// PutDocument creates or replaces the latest document.
	PutDocument(ctx context.Context, doc *document.Document) error

	// ListDocuments returns the owner's document metadata, most recently
	// modified first.
	ListDocuments(ctx context.Context, ownerID string) ([]document.Metadata, error)

	// DeleteDocument removes a document with its versions and chat history.
	DeleteDocument(ctx context.Context, ownerID, docID string) error

	// PutVersion appends a snapshot. Writing an existing version returns
	// ErrVersionExists; an unknown document returns ErrNotFound.
	PutVersion(ctx context.Context, docID string, version int, snap document.Snapshot) error

	// ListVersions returns every snapshot, newest first.
	ListVersions(ctx context.Context, docID string) ([]document.Snapshot, error)

	// GetVersion returns one snapshot.
	GetVersion(ctx context.Context, docID string, version int) (document.Snapshot, error)

	// AppendChat records an applied chat update.
	AppendChat(ctx context.Context, entry ChatEntry) error

	// ListChat returns the document's chat history, oldest first.
	ListChat(ctx context.Context, docID string) ([]ChatEntry, error)

	// PutProfile creates or replaces a profile.
	PutProfile(ctx context.Context, p Profile) error

	// GetProfile returns ErrNotFound when the owner has no profile name.
	GetProfile(ctx context.Context, ownerID, name string) (Profile, error)

	// ListProfiles returns the owner's profiles ordered by name.
	ListProfiles(ctx context.Context, ownerID string) ([]Profile, error)

	// DeleteProfile returns ErrNotFound when the owner has no profile name.
	DeleteProfile(ctx context.Context, ownerID, name string) error

	Close() error
}
