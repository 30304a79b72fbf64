package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/c360studio/semplan/test/e2e/config"
	"github.com/c360studio/semplan/test/e2e/e2etest"
	"github.com/c360studio/semplan/test/e2e/scenarios"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	srv := e2etest.Start(t)
	cfg := config.DefaultConfig()
	cfg.HTTPBaseURL = srv.URL
	cfg.MockLLMURL = srv.MockURL
	cfg.SetupTimeout = 5 * time.Second
	cfg.StageTimeout = 10 * time.Second
	return cfg
}

func TestRun_TextReport(t *testing.T) {
	cfg := testConfig(t)

	var out bytes.Buffer
	if err := run(context.Background(), &out, cfg, "all", false); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}

	text := out.String()
	for _, want := range []string{
		"running generate: ",
		"running chat: ",
		"SCENARIO",
		"LLM CALLS",
		"generate changed: standardsAddressed, pedagogicalContext",
		"2 passed, 0 failed",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "FAIL") {
		t.Errorf("unexpected failure in report:\n%s", text)
	}
}

func TestRun_JSONReport(t *testing.T) {
	cfg := testConfig(t)

	var out bytes.Buffer
	if err := run(context.Background(), &out, cfg, "all", true); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}

	var rep report
	if err := json.Unmarshal(out.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out.String())
	}
	if rep.Passed != 2 || rep.Failed != 0 {
		t.Fatalf("expected 2 passed, got %d passed %d failed", rep.Passed, rep.Failed)
	}
	if rep.Target != cfg.HTTPBaseURL {
		t.Errorf("target = %q, want %q", rep.Target, cfg.HTTPBaseURL)
	}

	byName := make(map[string]scenarioReport)
	for _, sr := range rep.Scenarios {
		byName[sr.Name] = sr
	}

	gen := byName["generate"]
	if gen.DocumentID == "" {
		t.Error("generate: no document id")
	}
	if gen.Versions != 1 {
		t.Errorf("generate: versions = %d, want 1", gen.Versions)
	}
	if gen.LLMCalls == 0 {
		t.Error("generate: no llm calls reported")
	}
	if len(gen.Changed) == 0 {
		t.Error("generate: no generated components reported")
	}

	chat := byName["chat"]
	if chat.Versions < 2 {
		t.Errorf("chat: versions = %d, want at least 2", chat.Versions)
	}
	if len(chat.Changed) == 0 {
		t.Error("chat: no changed components reported")
	}
	if chat.LLMCalls <= gen.LLMCalls {
		t.Errorf("chat: llm calls %d should exceed the generate run's %d", chat.LLMCalls, gen.LLMCalls)
	}
}

func TestRun_SingleScenario(t *testing.T) {
	cfg := testConfig(t)

	var out bytes.Buffer
	if err := run(context.Background(), &out, cfg, "generate", false); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}
	if strings.Contains(out.String(), "running chat") {
		t.Errorf("chat ran although only generate was selected:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "1 passed, 0 failed") {
		t.Errorf("unexpected summary:\n%s", out.String())
	}
}

func TestRun_UnknownScenario(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &out, config.DefaultConfig(), "nope", false)
	if err == nil || !strings.Contains(err.Error(), "unknown scenario: nope") {
		t.Fatalf("expected unknown scenario error, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("expected no output, got %q", out.String())
	}
}

func TestRun_UnreachableServerFailsAtSetup(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HTTPBaseURL = "http://127.0.0.1:1"
	cfg.MockLLMURL = ""
	cfg.SetupTimeout = 600 * time.Millisecond

	var out bytes.Buffer
	err := run(context.Background(), &out, cfg, "generate", false)
	if err == nil || !strings.Contains(err.Error(), "1 of 1 scenarios failed") {
		t.Fatalf("expected failure, got %v", err)
	}
	if !strings.Contains(out.String(), "generate failed at setup: ") {
		t.Errorf("failure not reported:\n%s", out.String())
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := run(ctx, &out, config.DefaultConfig(), "all", true)
	if err == nil || !strings.Contains(err.Error(), "interrupted after 0 of 2") {
		t.Fatalf("expected interrupted error, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	r := scenarios.NewResult("chat")
	r.SetDetail("document_id", "doc-1")
	r.SetDetail("chat_changed", []string{"objectives"})
	r.SetDetail("regenerate_changed", []string{"objectives", "assessments"})
	r.SetMetric("versions", 3)
	r.SetMetric("llm_calls", int64(12))
	r.AddStage("chat", true, time.Millisecond, "")
	r.AddStage("versions", false, time.Millisecond, "expected 3 versions, got 2")
	r.Error = "versions failed: expected 3 versions, got 2"
	r.Complete()

	sr := summarize(r)
	if sr.DocumentID != "doc-1" || sr.Versions != 3 || sr.LLMCalls != 12 {
		t.Errorf("unexpected counts: %+v", sr)
	}
	if got := strings.Join(sr.Changed, ","); got != "objectives,assessments" {
		t.Errorf("changed = %q", got)
	}
	if sr.FailedStage != "versions" || sr.Passed {
		t.Errorf("failed stage = %q, passed = %v", sr.FailedStage, sr.Passed)
	}
}

func TestMetricInt(t *testing.T) {
	metrics := map[string]any{"a": 2, "b": int64(3), "c": float64(4), "d": "5"}
	for key, want := range map[string]int{"a": 2, "b": 3, "c": 4} {
		if got, ok := metricInt(metrics, key); !ok || got != want {
			t.Errorf("%s: got %d, %v", key, got, ok)
		}
	}
	if _, ok := metricInt(metrics, "d"); ok {
		t.Error("string metric should not read as a count")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"ünïcödé ërrör mëssägé", 10, "ünïcödé..."},
		{"日本語のエラーメッセージ", 6, "日本語..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		got := truncate(tt.in, tt.limit)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.limit)
		}
	}
}
