package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semplan/catalog"
	"github.com/c360studio/semplan/config"
	"github.com/c360studio/semplan/orchestrator"
)

var componentRe = regexp.MustCompile(`only key is "([^"]+)"`)

// fakeGateway answers OpenAI-compatible chat completions with the schema
// skeleton of the requested component, or a fixed analysis for chat.
func fakeGateway(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		content := `{"components":["assessments"],"intent":"harder questions","tier":2,"rationale":"I'll update the assessments.","requires_foundation_update":false}`
		for _, m := range req.Messages {
			match := componentRe.FindStringSubmatch(m.Content)
			if match == nil || strings.Contains(m.Content, "User Message:") {
				continue
			}
			_, schemaText, _ := strings.Cut(m.Content, "without deviation:\n")
			schema, err := catalog.NewSchema([]byte(schemaText))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := json.Marshal(map[string]any{match[1]: schema.EmptyValue()})
			content = string(data)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "test",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
}

func testConfig(t *testing.T, gatewayURL string) *config.Config {
	t.Helper()
	registry := `{
  "capabilities": {
    "writing": {"preferred": ["gateway"]},
    "precise": {"preferred": ["gateway"]},
    "fast": {"preferred": ["gateway"]}
  },
  "endpoints": {
    "gateway": {"provider": "openai", "url": "` + gatewayURL + `/v1", "model": "test-model"}
  }
}`
	path := filepath.Join(t.TempDir(), "models.json")
	require.NoError(t, os.WriteFile(path, []byte(registry), 0o644))

	cfg := config.DefaultConfig()
	cfg.Model.RegistryPath = path
	cfg.Storage.Driver = "memory"
	cfg.Generation.MaxAttempts = 1
	cfg.Generation.BaseDelay = time.Millisecond
	cfg.Generation.Workers = 2
	return cfg
}

func TestNewApp_GeneratesThroughGateway(t *testing.T) {
	var calls atomic.Int64
	gateway := fakeGateway(t, &calls)
	defer gateway.Close()

	app, err := NewApp(testConfig(t, gateway.URL), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	doc, err := app.service.GenerateDocument(ctx, "teacher-1", "Adding fractions",
		orchestrator.BaseContext{Grade: "4", Subject: "math"})
	require.NoError(t, err)

	assert.Equal(t, len(app.catalog.Catalog.Components()), doc.Len())
	assert.GreaterOrEqual(t, calls.Load(), int64(doc.Len()))

	stored, err := app.service.GetDocument(ctx, "teacher-1", doc.Metadata.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "Adding fractions", stored.Metadata.Topic)

	analysis, err := app.service.AnalyzeMessage(ctx, "teacher-1", doc.Metadata.DocumentID, "make the quiz harder")
	require.NoError(t, err)
	assert.Equal(t, []string{"assessments"}, analysis.AffectedComponents)
}

func TestNewApp_RejectsBadConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.DefaultConfig()
	cfg.Storage.Driver = "postgres"
	_, err := NewApp(cfg, logger)
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Storage.Driver = "memory"
	cfg.Catalog.Domain = "cooking"
	_, err = NewApp(cfg, logger)
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Storage.Driver = "memory"
	cfg.Generation.FoundationFailure = "ignore"
	_, err = NewApp(cfg, logger)
	assert.Error(t, err)
}

func TestApp_ServerExposesMetrics(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Driver = "memory"
	app, err := NewApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer app.Close()

	srv := httptest.NewServer(app.Server().Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNewApp_GeneratesForStoredProfile(t *testing.T) {
	var calls atomic.Int64
	gateway := fakeGateway(t, &calls)
	defer gateway.Close()

	app, err := NewApp(testConfig(t, gateway.URL), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer app.Close()

	ctx := context.Background()
	profiles, err := app.service.ListProfiles(ctx, "teacher-1")
	require.NoError(t, err)
	require.Len(t, profiles, 3)

	doc, err := app.service.GenerateDocument(ctx, "teacher-1", "Adding fractions",
		orchestrator.BaseContext{Grade: "4", ProfileID: profiles[0].Name})
	require.NoError(t, err)
	assert.Equal(t, profiles[0].Name, doc.Metadata.ProfileID)
}
