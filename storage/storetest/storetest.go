// Package storetest is a conformance suite run against every storage.Store
// adapter.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/storage"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) storage.Store

var base = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"DocumentRoundTrip", testDocumentRoundTrip},
		{"OwnerIsolation", testOwnerIsolation},
		{"ListDocumentsNewestFirst", testListDocuments},
		{"ReplaceDocument", testReplaceDocument},
		{"Versions", testVersions},
		{"VersionRequiresDocument", testVersionRequiresDocument},
		{"Chat", testChat},
		{"DeleteCascades", testDeleteCascades},
		{"Profiles", testProfiles},
		{"ProfileOwnerIsolation", testProfileOwnerIsolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// NewDocument builds a two-component document whose values carry
// non-canonical spacing.
func NewDocument(t *testing.T, id, owner string, modified time.Time) *document.Document {
	t.Helper()
	doc := document.New(document.Metadata{
		DocumentID:   id,
		OwnerID:      owner,
		Domain:       "lesson",
		Topic:        "Adding fractions",
		Grade:        "4",
		LastModified: modified,
		Version:      1,
	})
	require.NoError(t, doc.Set("standardsAddressed", json.RawMessage(`{"standards": [ "4.NF.3" ]}`)))
	require.NoError(t, doc.Set("objectives", json.RawMessage(`{"items":["add like fractions"]}`)))
	return doc
}

func testDocumentRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	doc := NewDocument(t, "doc-1", "owner-a", base)
	require.NoError(t, s.PutDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "owner-a", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc.Components(), got.Components())
	assert.True(t, doc.Equal(got), "component bytes must survive storage")
	assert.Equal(t, "Adding fractions", got.Metadata.Topic)
	assert.True(t, base.Equal(got.Metadata.LastModified))

	raw, ok := got.Get("standardsAddressed")
	require.True(t, ok)
	assert.Equal(t, `{"standards": [ "4.NF.3" ]}`, string(raw))

	_, err = s.GetDocument(ctx, "owner-a", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	missingID := document.New(document.Metadata{Topic: "x"})
	assert.True(t, document.IsValidation(s.PutDocument(ctx, missingID)))
}

func testOwnerIsolation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutDocument(ctx, NewDocument(t, "doc-1", "owner-a", base)))

	_, err := s.GetDocument(ctx, "owner-b", "doc-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, s.DeleteDocument(ctx, "owner-b", "doc-1"), storage.ErrNotFound)

	list, err := s.ListDocuments(ctx, "owner-b")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testListDocuments(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutDocument(ctx, NewDocument(t, "old", "owner-a", base)))
	require.NoError(t, s.PutDocument(ctx, NewDocument(t, "new", "owner-a", base.Add(time.Hour))))
	require.NoError(t, s.PutDocument(ctx, NewDocument(t, "other", "owner-b", base.Add(2*time.Hour))))

	list, err := s.ListDocuments(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].DocumentID)
	assert.Equal(t, "old", list[1].DocumentID)
}

func testReplaceDocument(t *testing.T, s storage.Store) {
	ctx := context.Background()
	doc := NewDocument(t, "doc-1", "owner-a", base)
	require.NoError(t, s.PutDocument(ctx, doc))

	require.NoError(t, doc.SetValue("objectives", map[string]any{"items": []string{"compare fractions"}}))
	doc.Touch(base.Add(time.Minute))
	require.NoError(t, s.PutDocument(ctx, doc))

	got, err := s.GetDocument(ctx, "owner-a", "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Metadata.Version)
	raw, _ := got.Get("objectives")
	assert.JSONEq(t, `{"items":["compare fractions"]}`, string(raw))

	list, err := s.ListDocuments(ctx, "owner-a")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func testVersions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	doc := NewDocument(t, "doc-1", "owner-a", base)
	require.NoError(t, s.PutDocument(ctx, doc))
	require.NoError(t, s.PutVersion(ctx, "doc-1", 1, document.NewSnapshot(doc, base)))

	require.NoError(t, doc.SetValue("objectives", map[string]any{"items": []string{"v2"}}))
	doc.Touch(base.Add(time.Minute))
	require.NoError(t, s.PutVersion(ctx, "doc-1", 2, document.NewSnapshot(doc, base.Add(time.Minute))))

	err := s.PutVersion(ctx, "doc-1", 2, document.NewSnapshot(doc, base.Add(2*time.Minute)))
	assert.ErrorIs(t, err, storage.ErrVersionExists)

	versions, err := s.ListVersions(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, 1, versions[1].Version)
	assert.Equal(t, "doc-1", versions[1].DocumentID)
	assert.True(t, base.Equal(versions[1].CreatedAt))

	v1, err := s.GetVersion(ctx, "doc-1", 1)
	require.NoError(t, err)
	raw, _ := v1.Document.Get("objectives")
	assert.Equal(t, `{"items":["add like fractions"]}`, string(raw))

	_, err = s.GetVersion(ctx, "doc-1", 9)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	empty, err := s.ListVersions(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testVersionRequiresDocument(t *testing.T, s storage.Store) {
	doc := NewDocument(t, "doc-1", "owner-a", base)
	err := s.PutVersion(context.Background(), "doc-1", 1, document.NewSnapshot(doc, base))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testChat(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutDocument(ctx, NewDocument(t, "doc-1", "owner-a", base)))

	first := storage.ChatEntry{
		ID:         "chat-1",
		DocumentID: "doc-1",
		OwnerID:    "owner-a",
		Message:    "make objectives shorter",
		Response:   "I've updated the following components: objectives.",
		Rationale:  "wording only",
		Tier:       3,
		Affected:   []string{"objectives"},
		Changed:    []string{"objectives"},
		Version:    2,
		CreatedAt:  base.Add(time.Minute),
	}
	second := first
	second.ID = "chat-2"
	second.Message = "add an exit ticket"
	second.Affected = []string{"assessments", "objectives"}
	second.Changed = []string{}
	second.Version = 2
	second.CreatedAt = base.Add(2 * time.Minute)

	require.NoError(t, s.AppendChat(ctx, first))
	require.NoError(t, s.AppendChat(ctx, second))

	entries, err := s.ListChat(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "chat-1", entries[0].ID)
	assert.Equal(t, "chat-2", entries[1].ID)
	assert.Equal(t, []string{"assessments", "objectives"}, entries[1].Affected)
	assert.Empty(t, entries[1].Changed)
	assert.Equal(t, 3, entries[0].Tier)
	assert.Equal(t, "wording only", entries[0].Rationale)
	assert.True(t, first.CreatedAt.Equal(entries[0].CreatedAt))

	orphan := first
	orphan.ID = "chat-3"
	orphan.DocumentID = "unknown"
	assert.ErrorIs(t, s.AppendChat(ctx, orphan), storage.ErrNotFound)
}

func testDeleteCascades(t *testing.T, s storage.Store) {
	ctx := context.Background()
	doc := NewDocument(t, "doc-1", "owner-a", base)
	require.NoError(t, s.PutDocument(ctx, doc))
	require.NoError(t, s.PutVersion(ctx, "doc-1", 1, document.NewSnapshot(doc, base)))
	require.NoError(t, s.AppendChat(ctx, storage.ChatEntry{
		ID: "chat-1", DocumentID: "doc-1", Message: "m", Affected: []string{}, Changed: []string{}, CreatedAt: base,
	}))

	require.NoError(t, s.DeleteDocument(ctx, "owner-a", "doc-1"))

	_, err := s.GetDocument(ctx, "owner-a", "doc-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	versions, err := s.ListVersions(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, versions)
	chat, err := s.ListChat(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, chat)

	assert.ErrorIs(t, s.DeleteDocument(ctx, "owner-a", "doc-1"), storage.ErrNotFound)
}

// NewProfile builds an active profile created and updated at modified.
func NewProfile(owner, name string, modified time.Time) storage.Profile {
	return storage.Profile{
		OwnerID:               owner,
		Name:                  name,
		Demographics:          "Bilingual household",
		GeneralBackground:     "Enjoys drawing",
		MathAbility:           "Strong with patterns, slower with written computation",
		Engagement:            "Engages through stories",
		SpecialConsiderations: "Visual supports recommended",
		Active:                true,
		CreatedAt:             modified,
		UpdatedAt:             modified,
	}
}

func testProfiles(t *testing.T, s storage.Store) {
	ctx := context.Background()

	list, err := s.ListProfiles(ctx, "owner-a")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.GetProfile(ctx, "owner-a", "visual_learner")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	visual := NewProfile("owner-a", "visual_learner", base)
	require.NoError(t, s.PutProfile(ctx, visual))
	require.NoError(t, s.PutProfile(ctx, NewProfile("owner-a", "logical_learner", base)))

	got, err := s.GetProfile(ctx, "owner-a", "visual_learner")
	require.NoError(t, err)
	assert.Equal(t, visual.Name, got.Name)
	assert.Equal(t, visual.OwnerID, got.OwnerID)
	assert.Equal(t, visual.MathAbility, got.MathAbility)
	assert.Equal(t, visual.SpecialConsiderations, got.SpecialConsiderations)
	assert.True(t, got.Active)
	assert.True(t, base.Equal(got.CreatedAt))

	visual.Engagement = "Engages through art projects"
	visual.Active = false
	visual.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, s.PutProfile(ctx, visual))

	got, err = s.GetProfile(ctx, "owner-a", "visual_learner")
	require.NoError(t, err)
	assert.Equal(t, "Engages through art projects", got.Engagement)
	assert.False(t, got.Active)
	assert.True(t, base.Add(time.Hour).Equal(got.UpdatedAt))

	list, err = s.ListProfiles(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "logical_learner", list[0].Name)
	assert.Equal(t, "visual_learner", list[1].Name)

	require.NoError(t, s.DeleteProfile(ctx, "owner-a", "logical_learner"))
	assert.ErrorIs(t, s.DeleteProfile(ctx, "owner-a", "logical_learner"), storage.ErrNotFound)
	list, err = s.ListProfiles(ctx, "owner-a")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "visual_learner", list[0].Name)
}

func testProfileOwnerIsolation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.PutProfile(ctx, NewProfile("owner-a@example.com", "visual_learner", base)))

	_, err := s.GetProfile(ctx, "owner-b@example.com", "visual_learner")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteProfile(ctx, "owner-b@example.com", "visual_learner"), storage.ErrNotFound)

	list, err := s.ListProfiles(ctx, "owner-b@example.com")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.GetProfile(ctx, "owner-a@example.com", "visual_learner")
	require.NoError(t, err)
}
