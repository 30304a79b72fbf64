// Package e2etest runs the document API in-process so scenarios and the
// e2e runner can be tested without a deployed stack.
package e2etest

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/c360studio/semplan/api"
	"github.com/c360studio/semplan/catalog"
	"github.com/c360studio/semplan/generation"
	"github.com/c360studio/semplan/intent"
	"github.com/c360studio/semplan/llm/testutil"
	"github.com/c360studio/semplan/orchestrator"
	"github.com/c360studio/semplan/prompts"
	"github.com/c360studio/semplan/service"
	"github.com/c360studio/semplan/storage/memory"
)

// Server is a running in-process API plus a stats endpoint shaped like
// mock-llm's.
type Server struct {
	// URL is the API base URL.
	URL string

	// MockURL serves /stats for the scripted backend.
	MockURL string

	Backend *testutil.MockBackend
}

// Start runs a lesson API over a scripted backend that answers every
// component with its schema skeleton. Chat analysis targets the component
// named in "Please make the <component> more ...". Both servers close when
// the test ends.
func Start(tb testing.TB) *Server {
	tb.Helper()
	def, err := catalog.Load("lesson")
	require.NoError(tb, err)

	backend := &testutil.MockBackend{Handler: skeletonReply(def)}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := generation.NewClient(backend,
		generation.WithLogger(logger),
		generation.WithRetryConfig(generation.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond}))
	builder := prompts.NewBuilder(def.Catalog)
	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithDefaults(def.Defaults()),
	}
	svc := service.New(
		orchestrator.NewGenerator(client, builder, opts...),
		orchestrator.NewUpdater(client, builder, opts...),
		intent.NewAnalyzer(client, builder, intent.WithLogger(logger)),
		memory.NewStore(),
		service.WithLogger(logger),
	)

	apiSrv := httptest.NewServer(api.NewServer(svc, api.WithLogger(logger)).Handler())
	tb.Cleanup(apiSrv.Close)

	mockSrv := httptest.NewServer(statsHandler(backend))
	tb.Cleanup(mockSrv.Close)

	return &Server{URL: apiSrv.URL, MockURL: mockSrv.URL, Backend: backend}
}

func skeletonReply(def *catalog.Definition) func(generation.Request) (string, error) {
	return func(req generation.Request) (string, error) {
		if req.Component == prompts.IntentComponent {
			_, rest, _ := strings.Cut(req.UserPrompt, "Please make the ")
			target, _, _ := strings.Cut(rest, " more")
			data, err := json.Marshal(map[string]any{
				"components": []string{target},
				"intent":     "raise the difficulty",
				"tier":       2,
				"rationale":  "I'll make it harder.",
			})
			return string(data), err
		}
		spec, err := def.SpecFor(req.Component)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(map[string]any{req.Component: spec.Schema.EmptyValue()})
		return string(data), err
	}
}

func statsHandler(backend *testutil.MockBackend) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, _ *http.Request) {
		byComponent := make(map[string]int64)
		calls := backend.Calls()
		for _, c := range calls {
			byComponent[c.Request.Component]++
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total_calls":        len(calls),
			"calls_by_component": byComponent,
		})
	})
	return mux
}
