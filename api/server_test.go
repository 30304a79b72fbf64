package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semplan/api"
	"github.com/c360studio/semplan/catalog"
	"github.com/c360studio/semplan/generation"
	"github.com/c360studio/semplan/intent"
	"github.com/c360studio/semplan/llm/testutil"
	"github.com/c360studio/semplan/metrics"
	"github.com/c360studio/semplan/orchestrator"
	"github.com/c360studio/semplan/prompts"
	"github.com/c360studio/semplan/service"
	"github.com/c360studio/semplan/storage/memory"
)

const owner = "teacher@example.com"

type testServer struct {
	*httptest.Server
	mock *testutil.MockBackend
}

func newTestServer(t *testing.T, handler func(req generation.Request) (string, error), opts ...orchestrator.Option) *testServer {
	t.Helper()
	def, err := catalog.Load("lesson")
	require.NoError(t, err)

	mock := &testutil.MockBackend{Handler: handler}
	if mock.Handler == nil {
		mock.Handler = func(req generation.Request) (string, error) {
			if req.Component == prompts.IntentComponent {
				return `{"components":["assessments"],"tier":2,"rationale":"add an exit ticket","requires_foundation_update":false}`, nil
			}
			spec, err := def.SpecFor(req.Component)
			if err != nil {
				return "", err
			}
			data, err := json.Marshal(map[string]any{req.Component: spec.Schema.EmptyValue()})
			return string(data), err
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client := generation.NewClient(mock,
		generation.WithLogger(logger),
		generation.WithMetrics(m),
		generation.WithRetryConfig(generation.RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond}))
	builder := prompts.NewBuilder(def.Catalog)

	base := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(m),
		orchestrator.WithDefaults(def.Defaults()),
		orchestrator.WithIDGenerator(func() string { return "doc-1" }),
	}
	opts = append(base, opts...)
	svc := service.New(
		orchestrator.NewGenerator(client, builder, opts...),
		orchestrator.NewUpdater(client, builder, opts...),
		intent.NewAnalyzer(client, builder, intent.WithLogger(logger)),
		memory.NewStore(),
		service.WithLogger(logger),
	)

	srv := api.NewServer(svc, api.WithLogger(logger), api.WithMetrics(m, reg))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, mock: mock}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set(api.OwnerHeader, owner)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(bytes.TrimSpace(raw)) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func (ts *testServer) generate(t *testing.T) {
	t.Helper()
	resp, _ := ts.do(t, http.MethodPost, "/api/v1/documents", api.GenerateRequest{Topic: "fractions", Grade: "3"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestGenerateAndFetch(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/documents", api.GenerateRequest{Topic: "fractions", Grade: "3"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, "doc-1", meta["documentId"])
	assert.Equal(t, "3", meta["grade"])
	assert.Contains(t, body, "lessonFlow")

	resp, body = ts.do(t, http.MethodGet, "/api/v1/documents/doc-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "standardsAddressed")

	resp, body = ts.do(t, http.MethodGet, "/api/v1/documents", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["documents"], 1)
}

func TestChatFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.generate(t)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/documents/doc-1/analyze", api.ChatRequest{Message: "add an exit ticket"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"assessments"}, body["components"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/documents/doc-1/chat", api.ChatRequest{Message: "add an exit ticket"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"assessments"}, body["updatedComponents"])
	assert.Equal(t, float64(2), body["version"])
	assert.Contains(t, body["chatResponse"], "I've updated the following components: assessments.")

	resp, body = ts.do(t, http.MethodGet, "/api/v1/documents/doc-1/versions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["versions"], 2)

	resp, body = ts.do(t, http.MethodGet, "/api/v1/documents/doc-1/versions/1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["version"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/documents/doc-1/chat", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["entries"], 1)

	resp, body = ts.do(t, http.MethodPost, "/api/v1/documents/doc-1/components/objectives/regenerate",
		api.RegenerateRequest{Directive: "focus on equivalent fractions"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"objectives"}, body["updatedComponents"])
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.generate(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing document", http.MethodGet, "/api/v1/documents/nope", nil, http.StatusNotFound, "not_found"},
		{"unknown component", http.MethodPost, "/api/v1/documents/doc-1/components/materials/regenerate",
			api.RegenerateRequest{Directive: "x"}, http.StatusNotFound, "unknown_component"},
		{"empty topic", http.MethodPost, "/api/v1/documents", api.GenerateRequest{}, http.StatusUnprocessableEntity, "validation_failed"},
		{"unknown requested component", http.MethodPost, "/api/v1/documents",
			api.GenerateRequest{Topic: "t", Components: []string{"materials"}}, http.StatusNotFound, "unknown_component"},
		{"bad version", http.MethodGet, "/api/v1/documents/doc-1/versions/zero", nil, http.StatusUnprocessableEntity, "validation_failed"},
		{"missing version", http.MethodGet, "/api/v1/documents/doc-1/versions/7", nil, http.StatusNotFound, "not_found"},
		{"empty chat message", http.MethodPost, "/api/v1/documents/doc-1/analyze", api.ChatRequest{}, http.StatusUnprocessableEntity, "validation_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["error"])
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestFoundationFailureIsBadGateway(t *testing.T) {
	ts := newTestServer(t, func(req generation.Request) (string, error) {
		return "", errors.New("backend unavailable")
	}, orchestrator.WithFoundationPolicy(orchestrator.FoundationAbort))

	resp, body := ts.do(t, http.MethodPost, "/api/v1/documents", api.GenerateRequest{Topic: "fractions"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "foundation_failed", body["error"])
}

func TestBadRequestBody(t *testing.T) {
	ts := newTestServer(t, nil)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/documents", strings.NewReader("{not json"))
	require.NoError(t, err)
	req.Header.Set(api.OwnerHeader, owner)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOwnerHeaderRequired(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, err := http.Get(ts.URL + "/api/v1/documents")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDelete(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.generate(t)

	resp, _ := ts.do(t, http.MethodDelete, "/api/v1/documents/doc-1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodGet, "/api/v1/documents/doc-1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCatalogHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.generate(t)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/catalog", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "lesson", body["domain"])
	components := body["components"].([]any)
	require.Len(t, components, 9)
	first := components[0].(map[string]any)
	assert.Equal(t, "standardsAddressed", first["name"])
	assert.Equal(t, "foundation", first["tier"])

	resp, body = ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	metricsResp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	text, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), "semplan_generation_attempts_total")
	assert.Contains(t, string(text), "semplan_http_requests_total")
	assert.Contains(t, string(text), `code="201"`)
}

func TestExportDocument(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.generate(t)

	get := func(query string) (*http.Response, string) {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/documents/doc-1/export"+query, nil)
		require.NoError(t, err)
		req.Header.Set(api.OwnerHeader, owner)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp, string(raw)
	}

	resp, body := get("?format=markdown")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/markdown; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `"doc-1.md"`)
	assert.True(t, strings.HasPrefix(body, "# fractions\n"))
	assert.Contains(t, body, "## Lesson Flow")

	resp, body = get("?format=yaml")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "metadata:\n")

	resp, body = get("")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, `"standardsAddressed"`)

	resp, _ = get("?format=docx")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/documents/missing/export", nil)
	require.NoError(t, err)
	req.Header.Set(api.OwnerHeader, owner)
	missing, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestSaveDocument(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.generate(t)

	edit := map[string]any{
		"metadata":   map[string]any{"version": 1, "topic": "comparing fractions"},
		"objectives": map[string]any{"contentObjectives": []string{"compare 1/2 and 1/3"}, "successCriteria": []string{}},
	}
	resp, body := ts.do(t, http.MethodPut, "/api/v1/documents/doc-1", edit)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	meta := body["metadata"].(map[string]any)
	assert.EqualValues(t, 2, meta["version"])
	assert.Equal(t, "comparing fractions", meta["topic"])
	assert.Equal(t, "3", meta["grade"])
	objectives := body["objectives"].(map[string]any)
	assert.Equal(t, []any{"compare 1/2 and 1/3"}, objectives["contentObjectives"])
	assert.Contains(t, body, "lessonFlow", "components left out keep their stored values")

	resp, body = ts.do(t, http.MethodGet, "/api/v1/documents/doc-1/versions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["versions"], 2)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"schema violation", "/api/v1/documents/doc-1",
			map[string]any{"objectives": map[string]any{"contentObjectives": "not a list"}},
			http.StatusUnprocessableEntity, "validation_failed"},
		{"unknown component", "/api/v1/documents/doc-1",
			map[string]any{"materials": []string{}}, http.StatusNotFound, "unknown_component"},
		{"stale version", "/api/v1/documents/doc-1",
			map[string]any{"metadata": map[string]any{"version": 1}}, http.StatusConflict, "version_exists"},
		{"missing document", "/api/v1/documents/nope", edit, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["error"])
		})
	}

	resp, _ = ts.do(t, http.MethodPut, "/api/v1/documents/doc-1", "not an object")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/api/v1/documents/doc-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["metadata"].(map[string]any)["version"], "rejected saves store nothing")
}

func TestProfiles(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/profiles", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["profiles"], 3, "an owner without profiles gets the built-in ones")

	profile := map[string]any{
		"profileName":           "visual_learner",
		"demographics":          "Grade 3, urban school",
		"generalBackground":     "Draws to explain ideas",
		"mathAbility":           "Strong with patterns",
		"engagement":            "Engages through pictures",
		"specialConsiderations": "None",
	}
	resp, body = ts.do(t, http.MethodPost, "/api/v1/profiles", profile)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "visual_learner", body["profileName"])
	assert.Equal(t, true, body["active"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/profiles", profile)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "profile_exists", body["error"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/profiles", map[string]any{"profileName": "half_filled"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "validation_failed", body["error"])

	resp, body = ts.do(t, http.MethodPut, "/api/v1/profiles/visual_learner", map[string]any{"engagement": "Engages through music"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Engages through music", body["engagement"])
	assert.Equal(t, "Strong with patterns", body["mathAbility"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/profiles/visual_learner", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Engages through music", body["engagement"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/documents", api.GenerateRequest{Topic: "fractions", ProfileID: "visual_learner"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, "visual_learner", body["metadata"].(map[string]any)["profileId"])
	for _, call := range ts.mock.Calls() {
		if call.Request.Component == "objectives" {
			assert.Contains(t, call.Request.SystemPrompt+call.Request.UserPrompt, "Engages through music")
		}
	}

	resp, _ = ts.do(t, http.MethodDelete, "/api/v1/profiles/visual_learner", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, body = ts.do(t, http.MethodGet, "/api/v1/profiles/visual_learner", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/documents", api.GenerateRequest{Topic: "fractions", ProfileID: "visual_learner"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])
}
