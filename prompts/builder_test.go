package prompts

import (
	"testing"

	"github.com/c360studio/semplan/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lessonBuilder(t *testing.T, opts ...Option) *Builder {
	t.Helper()
	def, err := catalog.Load("lesson")
	require.NoError(t, err)
	return NewBuilder(def.Catalog, opts...)
}

func lessonContext() Context {
	return Context{
		KeyTopic:   "fractions",
		KeyGrade:   "3",
		KeySubject: "Mathematics",
	}
}

func TestBuild_Standards(t *testing.T) {
	b := lessonBuilder(t)

	req, err := b.Build("standardsAddressed", lessonContext())
	require.NoError(t, err)

	assert.Equal(t, "standardsAddressed", req.Component)
	assert.Equal(t, "precise", req.Capability)
	assert.Equal(t, 1000, req.MaxTokens)
	assert.InDelta(t, 0.1, req.Temperature, 1e-9)
	assert.Contains(t, req.SystemPrompt, "grade 3 Mathematics")
	assert.Contains(t, req.SystemPrompt, `"focalStandard"`)
	assert.Contains(t, req.UserPrompt, "Topic: fractions")
	assert.Contains(t, req.UserPrompt, `only key is "standardsAddressed"`)
	assert.NotContains(t, req.SystemPrompt+req.UserPrompt, "{{")
}

func TestBuild_EmbedsSchema(t *testing.T) {
	b := lessonBuilder(t)
	spec, err := b.Catalog().SpecFor("lessonFlow")
	require.NoError(t, err)

	req, err := b.Build("lessonFlow", lessonContext())
	require.NoError(t, err)
	assert.Contains(t, req.UserPrompt, spec.Schema.Indented())
	assert.Equal(t, "writing", req.Capability)
	assert.Equal(t, 4000, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)
}

func TestBuild_MissingKeysAreBracketed(t *testing.T) {
	b := lessonBuilder(t)

	req, err := b.Build("objectives", Context{KeyTopic: "fractions"})
	require.NoError(t, err)
	assert.Contains(t, req.UserPrompt, "Grade Level: [grade]")
	assert.Contains(t, req.UserPrompt, "Profile: [profile]")
	assert.Contains(t, req.SystemPrompt, "grade [grade]")
}

func TestBuild_ContextCarriesFoundationValues(t *testing.T) {
	b := lessonBuilder(t)
	ctx := lessonContext().With("standardsAddressed", map[string]any{
		"focalStandard": []any{"3.NF.1"},
	})

	req, err := b.Build("assessments", ctx)
	require.NoError(t, err)
	assert.Contains(t, req.UserPrompt, `"standardsAddressed":{"focalStandard":["3.NF.1"]}`)
}

func TestBuild_UnknownComponent(t *testing.T) {
	b := lessonBuilder(t)

	_, err := b.Build("materials", lessonContext())
	require.Error(t, err)
	assert.True(t, catalog.IsUnknownComponent(err))
}

func TestBuild_UnknownTemplateFallsBackToGeneric(t *testing.T) {
	schema, err := catalog.NewSchema([]byte(`{"type": "object"}`))
	require.NoError(t, err)
	cat, err := catalog.New("custom", []*catalog.ComponentSpec{
		{Name: "summary", Tier: catalog.TierFoundation, TemplateID: "does-not-exist", Schema: schema},
	})
	require.NoError(t, err)

	req, err := NewBuilder(cat).Build("summary", Context{KeyTopic: "tides"})
	require.NoError(t, err)
	assert.Contains(t, req.SystemPrompt, "expert content generator")
	assert.Contains(t, req.UserPrompt, `Create summary (summary) for topic "tides"`)
}

func TestBuild_UpdateModes(t *testing.T) {
	b := lessonBuilder(t)
	current := map[string]any{"contentObjectives": []any{"old objective"}}

	ctx := lessonContext().
		With(KeyCurrentContent, current).
		With(KeyUserFeedback, "make it harder").
		With(KeyDirective, "raise the rigor of every objective")

	req, err := b.Build("objectives", ctx)
	require.NoError(t, err)
	assert.Contains(t, req.SystemPrompt, "component editor")
	assert.Contains(t, req.SystemPrompt, `{"contentObjectives":["old objective"]}`)
	assert.Contains(t, req.UserPrompt, "User Feedback: make it harder")
	assert.Contains(t, req.UserPrompt, "Requested change: raise the rigor of every objective")
	assert.InDelta(t, 0.7, req.Temperature, 1e-9)

	req, err = b.Build("standardsAddressed", ctx.With(KeyCurrentContent, map[string]any{"focalStandard": []any{}}))
	require.NoError(t, err)
	assert.Contains(t, req.SystemPrompt, "regenerate the standardsAddressed section")
	assert.Equal(t, 4000, req.MaxTokens, "catalog overrides apply to full generation only")
	assert.InDelta(t, 0.6, req.Temperature, 1e-9)
}

func TestBuild_Overrides(t *testing.T) {
	temp := 0.3
	b := lessonBuilder(t,
		WithModel("qwen"),
		WithGenerationOverrides(Overrides{Capability: "fast", MaxTokens: 2048, Temperature: &temp}),
	)

	req, err := b.Build("objectives", lessonContext())
	require.NoError(t, err)
	assert.Equal(t, "qwen", req.ModelID)
	assert.Equal(t, "fast", req.Capability)
	assert.Equal(t, 2048, req.MaxTokens)
	assert.InDelta(t, 0.3, req.Temperature, 1e-9)

	// Catalog settings still win for the component that declares them.
	req, err = b.Build("standardsAddressed", lessonContext())
	require.NoError(t, err)
	assert.Equal(t, 1000, req.MaxTokens)
	assert.InDelta(t, 0.1, req.Temperature, 1e-9)
}

func TestBuild_CustomTemplate(t *testing.T) {
	b := lessonBuilder(t, WithTemplate(Template{
		ID:        TemplatePedagogical,
		System:    "Teach {{topic}}",
		User:      "Write {{component}}",
		Task:      "generate",
		MaxTokens: 10,
	}))

	req, err := b.Build("accessibility", lessonContext())
	require.NoError(t, err)
	assert.Equal(t, "Teach fractions", req.SystemPrompt)
	assert.Equal(t, "Write accessibility", req.UserPrompt)
	assert.Equal(t, 10, req.MaxTokens)
	assert.Contains(t, b.Templates(), TemplateCoach)
}

func TestBuild_TrainingCoach(t *testing.T) {
	def, err := catalog.Load("training")
	require.NoError(t, err)
	b := NewBuilder(def.Catalog)

	req, err := b.Build("workoutRoutines", Context{
		KeyGoals:           "build strength",
		KeyExperienceLevel: "beginner",
		KeyAvailableDays:   "3",
	})
	require.NoError(t, err)
	assert.Contains(t, req.SystemPrompt, "beginner athlete training 3 days per week")
	assert.Contains(t, req.UserPrompt, "Goals: build strength")
	assert.Equal(t, 3000, req.MaxTokens)
}
