package intent_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/c360studio/semplan/catalog"
	"github.com/c360studio/semplan/document"
	"github.com/c360studio/semplan/generation"
	"github.com/c360studio/semplan/intent"
	"github.com/c360studio/semplan/llm/testutil"
	"github.com/c360studio/semplan/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAnalyzer(t *testing.T, mock *testutil.MockBackend) *intent.Analyzer {
	t.Helper()
	def, err := catalog.Load("lesson")
	require.NoError(t, err)

	client := generation.NewClient(mock, generation.WithRetryConfig(generation.RetryConfig{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
	}))
	return intent.NewAnalyzer(client, prompts.NewBuilder(def.Catalog))
}

func lessonDoc(t *testing.T) *document.Document {
	t.Helper()
	doc := document.New(document.Metadata{DocumentID: "d1", Topic: "fractions", Grade: "3"})
	for _, name := range []string{"standardsAddressed", "objectives", "markupProblemSets"} {
		require.NoError(t, doc.SetValue(name, map[string]any{}))
	}
	return doc
}

func TestAnalyze(t *testing.T) {
	mock := &testutil.MockBackend{
		Scripts: map[string][]testutil.Reply{
			prompts.IntentComponent: {{Content: "```json\n" + `{
				"components": ["markupProblemSets", "materials"],
				"intent": "add more practice problems",
				"tier": "2",
				"rationale": "I'll add more problems.",
				"requires_foundation_update": false
			}` + "\n```"}},
		},
	}
	a := newAnalyzer(t, mock)

	got, err := a.Analyze(context.Background(), "add some problems", lessonDoc(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"markupProblemSets"}, got.AffectedComponents)
	assert.Equal(t, 2, got.Tier)
	assert.Equal(t, "add more practice problems", got.Directive)
	assert.False(t, got.RequiresFoundationUpdate)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.True(t, strings.Contains(calls[0].Request.UserPrompt, "User Message: add some problems"))
	assert.Equal(t, "fast", calls[0].Request.Capability)
}

func TestAnalyze_ComponentsOutsideDocument(t *testing.T) {
	mock := &testutil.MockBackend{
		Scripts: map[string][]testutil.Reply{
			prompts.IntentComponent: {{Content: `{"components": ["lessonFlow"], "tier": 2}`}},
		},
	}
	a := newAnalyzer(t, mock)

	_, err := a.Analyze(context.Background(), "shorten the warm-up", lessonDoc(t))
	require.Error(t, err)
	assert.True(t, intent.IsValidation(err))
	assert.Equal(t, 1, mock.GetCallCount(), "validation errors are not retried")
}

func TestAnalyze_RejectsEmptyInput(t *testing.T) {
	mock := &testutil.MockBackend{}
	a := newAnalyzer(t, mock)

	_, err := a.Analyze(context.Background(), "   ", lessonDoc(t))
	assert.True(t, intent.IsValidation(err))

	_, err = a.Analyze(context.Background(), "hello", document.New(document.Metadata{}))
	assert.True(t, intent.IsValidation(err))
	assert.Zero(t, mock.GetCallCount())
}

func TestAnalyze_BackendFailure(t *testing.T) {
	mock := &testutil.MockBackend{Err: errors.New("gateway down")}
	a := newAnalyzer(t, mock)

	_, err := a.Analyze(context.Background(), "make it harder", lessonDoc(t))
	require.Error(t, err)
	assert.True(t, generation.IsExhausted(err))
	assert.False(t, intent.IsValidation(err))
	assert.Equal(t, 2, mock.GetCallCount())
}
