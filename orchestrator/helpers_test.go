package orchestrator_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/c360studio/semplan/catalog"
	"github.com/c360studio/semplan/generation"
	"github.com/c360studio/semplan/llm/testutil"
	"github.com/c360studio/semplan/orchestrator"
	"github.com/c360studio/semplan/prompts"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend unavailable")

type fixture struct {
	def     *catalog.Definition
	mock    *testutil.MockBackend
	builder *prompts.Builder
	client  *generation.Client
	opts    []orchestrator.Option
}

func newFixture(t *testing.T, mock *testutil.MockBackend, opts ...orchestrator.Option) *fixture {
	t.Helper()
	def, err := catalog.Load("lesson")
	require.NoError(t, err)

	if mock.Handler == nil {
		mock.Handler = generatedReply(def)
	}
	client := generation.NewClient(mock,
		generation.WithLogger(quietLogger()),
		generation.WithRetryConfig(generation.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxBackoff:  2 * time.Millisecond,
		}))

	base := []orchestrator.Option{
		orchestrator.WithLogger(quietLogger()),
		orchestrator.WithDefaults(def.Defaults()),
		orchestrator.WithClock(func() time.Time { return time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC) }),
		orchestrator.WithIDGenerator(func() string { return "doc-fixed" }),
	}
	return &fixture{
		def:     def,
		mock:    mock,
		builder: prompts.NewBuilder(def.Catalog),
		client:  client,
		opts:    append(base, opts...),
	}
}

func (f *fixture) generator() *orchestrator.Generator {
	return orchestrator.NewGenerator(f.client, f.builder, f.opts...)
}

func (f *fixture) updater() *orchestrator.Updater {
	return orchestrator.NewUpdater(f.client, f.builder, f.opts...)
}

func (f *fixture) skeleton(t *testing.T, name string) any {
	t.Helper()
	spec, err := f.def.SpecFor(name)
	require.NoError(t, err)
	return spec.Schema.EmptyValue()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// generatedValue is a schema-valid value for name that differs from its
// skeleton.
func generatedValue(def *catalog.Definition, name string) any {
	spec, err := def.SpecFor(name)
	if err != nil {
		return nil
	}
	switch v := spec.Schema.EmptyValue().(type) {
	case map[string]any:
		v["note"] = "generated " + name
		return v
	case []any:
		return []any{map[string]any{
			"type":       "practice",
			"difficulty": float64(1),
			"problem":    map[string]any{"stem": "generated " + name},
			"solution":   map[string]any{"answer": "1"},
		}}
	default:
		return v
	}
}

func generatedReply(def *catalog.Definition) func(generation.Request) (string, error) {
	return func(req generation.Request) (string, error) {
		return wrap(req.Component, generatedValue(def, req.Component)), nil
	}
}

func wrap(name string, value any) string {
	data, err := json.Marshal(map[string]any{name: value})
	if err != nil {
		panic(err)
	}
	return string(data)
}

func decode(t *testing.T, raw json.RawMessage) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// timeline records when backend calls start and finish.
type timeline struct {
	mu       sync.Mutex
	started  map[string]time.Time
	finished map[string]time.Time
}

func newTimeline() *timeline {
	return &timeline{started: map[string]time.Time{}, finished: map[string]time.Time{}}
}

func (tl *timeline) wrap(delay time.Duration, next func(generation.Request) (string, error)) func(generation.Request) (string, error) {
	return func(req generation.Request) (string, error) {
		tl.mu.Lock()
		tl.started[req.Component] = time.Now()
		tl.mu.Unlock()

		time.Sleep(delay)
		reply, err := next(req)

		tl.mu.Lock()
		tl.finished[req.Component] = time.Now()
		tl.mu.Unlock()
		return reply, err
	}
}
