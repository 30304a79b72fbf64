package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/intent"
	"github.com/c360studio/semplan/orchestrator"
	"github.com/c360studio/semplan/service"
	"github.com/c360studio/semplan/storage"
)

func visualLearner() storage.Profile {
	return storage.Profile{
		Name:                  "visual_learner",
		Demographics:          "Bilingual household",
		GeneralBackground:     "Enjoys drawing and building",
		MathAbility:           "Strong with patterns, slower with written computation",
		Engagement:            "Engages through art projects",
		SpecialConsiderations: "Visual supports recommended",
	}
}

func TestCreateProfile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	p, err := f.svc.CreateProfile(ctx, owner, visualLearner())
	require.NoError(t, err)
	assert.Equal(t, owner, p.OwnerID)
	assert.True(t, p.Active)
	assert.True(t, edited.Equal(p.CreatedAt))

	stored, err := f.store.GetProfile(ctx, owner, "visual_learner")
	require.NoError(t, err)
	assert.Equal(t, p.MathAbility, stored.MathAbility)

	_, err = f.svc.CreateProfile(ctx, owner, visualLearner())
	assert.ErrorIs(t, err, storage.ErrProfileExists)
}

func TestCreateProfile_Rejects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	missing := visualLearner()
	missing.Engagement = " "
	_, err := f.svc.CreateProfile(ctx, owner, missing)
	var verr *document.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "engagement", verr.Field)

	for _, name := range []string{"", "has space", "dots.not.allowed", "x/y"} {
		p := visualLearner()
		p.Name = name
		_, err := f.svc.CreateProfile(ctx, owner, p)
		assert.True(t, document.IsValidation(err), name)
	}
}

func TestListProfiles_SeedsDefaults(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	list, err := f.svc.ListProfiles(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "bilingual_narrative_learner", list[0].Name)
	assert.Equal(t, "creative_visual_learner", list[1].Name)
	assert.Equal(t, "technological_logical_learner", list[2].Name)
	for _, p := range list {
		assert.Equal(t, owner, p.OwnerID)
		assert.True(t, p.Active)
	}

	stored, err := f.store.ListProfiles(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	other, err := f.store.ListProfiles(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestListProfiles_ExistingSkipsSeeding(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.CreateProfile(ctx, owner, visualLearner())
	require.NoError(t, err)

	list, err := f.svc.ListProfiles(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "visual_learner", list[0].Name)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.CreateProfile(ctx, owner, visualLearner())
	require.NoError(t, err)

	inactive := false
	p, err := f.svc.UpdateProfile(ctx, owner, "visual_learner", service.ProfileUpdate{
		Engagement: "Engages through stories",
		Active:     &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "Engages through stories", p.Engagement)
	assert.Equal(t, "Visual supports recommended", p.SpecialConsiderations, "empty fields keep stored values")
	assert.False(t, p.Active)

	_, err = f.svc.UpdateProfile(ctx, owner, "missing", service.ProfileUpdate{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteProfile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.CreateProfile(ctx, owner, visualLearner())
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteProfile(ctx, owner, "visual_learner"))
	_, err = f.svc.GetProfile(ctx, owner, "visual_learner")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteProfile(ctx, owner, "visual_learner"), storage.ErrNotFound)
}

func TestGenerateDocument_ResolvesProfile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.CreateProfile(ctx, owner, visualLearner())
	require.NoError(t, err)

	doc, err := f.svc.GenerateDocument(ctx, owner, "fractions", orchestrator.BaseContext{
		Grade:     "3",
		ProfileID: "visual_learner",
		Profile:   map[string]any{"engagement": "Engages through music"},
	})
	require.NoError(t, err)
	assert.Equal(t, "visual_learner", doc.Metadata.ProfileID)

	for _, call := range f.mock.Calls() {
		prompt := call.Request.SystemPrompt + call.Request.UserPrompt
		assert.NotContains(t, prompt, "[profile]", call.Request.Component)
		if call.Request.Component == "objectives" {
			assert.Contains(t, prompt, "Strong with patterns, slower with written computation")
			assert.Contains(t, prompt, "Engages through music", "inline entries override stored fields")
		}
	}
}

func TestGenerateDocument_UnknownProfile(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.GenerateDocument(context.Background(), owner, "fractions", orchestrator.BaseContext{ProfileID: "missing"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Zero(t, f.mock.GetCallCount())
}

func TestApplyChatUpdate_UsesStoredProfile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.CreateProfile(ctx, owner, visualLearner())
	require.NoError(t, err)
	_, err = f.svc.GenerateDocument(ctx, owner, "fractions", orchestrator.BaseContext{ProfileID: "visual_learner"})
	require.NoError(t, err)
	f.mock.Reset()

	_, err = f.svc.ApplyChatUpdate(ctx, owner, "doc-1", "more visuals", &intent.Intent{
		AffectedComponents: []string{"objectives"},
		Tier:               intent.TierTargeted,
	})
	require.NoError(t, err)

	calls := f.mock.Calls()
	require.Len(t, calls, 1)
	prompt := calls[0].Request.SystemPrompt + calls[0].Request.UserPrompt
	assert.Contains(t, prompt, "Strong with patterns, slower with written computation")
	assert.NotContains(t, prompt, "[profile]")
}

func TestApplyChatUpdate_DeletedProfileStillUpdates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.svc.CreateProfile(ctx, owner, visualLearner())
	require.NoError(t, err)
	_, err = f.svc.GenerateDocument(ctx, owner, "fractions", orchestrator.BaseContext{ProfileID: "visual_learner"})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteProfile(ctx, owner, "visual_learner"))

	res, err := f.svc.ApplyChatUpdate(ctx, owner, "doc-1", "more visuals", &intent.Intent{
		AffectedComponents: []string{"objectives"},
		Tier:               intent.TierTargeted,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"objectives"}, res.Changed)
}

func TestProfileContext(t *testing.T) {
	ctx := service.ProfileContext(visualLearner())
	assert.Equal(t, "visual_learner", ctx["profileId"])
	assert.Equal(t, "Bilingual household", ctx["demographics"])
	assert.Len(t, ctx, 7)
}
