// Package main implements a mock LLM server for local runs and e2e tests.
// It serves OpenAI-compatible /v1/chat/completions responses, routing by the
// component named in the prompt rather than by model. This lets semplan run
// end to end without a real backend, fast, deterministic and offline.
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -port 11434
//
// Fixture files are JSON named by component (e.g., "objectives.json" answers
// every objectives prompt, "intent.json" answers chat analysis). The file
// content is returned as the assistant message.
//
// Sequential fixtures: If numbered files exist (e.g., "objectives.1.json",
// "objectives.2.json"), the Nth call for that component returns the Nth
// fixture. After exhausting numbered fixtures, the base "objectives.json" is
// used as a repeating fallback.
//
// Components without a fixture are answered with the schema skeleton
// derived from the JSON Schema embedded in the prompt, wrapped under the
// component key. Analysis prompts without a fixture name the components
// mentioned in the message.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360studio/semplan/catalog"
)

// intentKey routes chat analysis prompts.
const intentKey = "intent"

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Prompt inspection ---

var (
	// componentRe finds the component key the prompt asks for.
	componentRe = regexp.MustCompile(`only key is "([^"]+)"`)
	// schemaMarker precedes the embedded JSON Schema.
	schemaMarker = "without deviation:\n"
	// foundationRe captures the foundation bullet list of an analysis prompt.
	foundationRe = regexp.MustCompile(`(?s)Foundation components[^\n]*\n(.*?)\n\n`)
)

// route returns the fixture key for a request: the component name, or
// "intent" for analysis prompts.
func route(req chatRequest) string {
	for _, m := range req.Messages {
		if strings.Contains(m.Content, "User Message:") {
			return intentKey
		}
	}
	for _, m := range req.Messages {
		if match := componentRe.FindStringSubmatch(m.Content); match != nil {
			return match[1]
		}
	}
	return ""
}

// skeletonReply wraps the empty value of the prompt's embedded schema.
func skeletonReply(component string, req chatRequest) (string, error) {
	for _, m := range req.Messages {
		i := strings.Index(m.Content, schemaMarker)
		if i < 0 {
			continue
		}
		schema, err := catalog.NewSchema([]byte(strings.TrimSpace(m.Content[i+len(schemaMarker):])))
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(map[string]any{component: schema.EmptyValue()})
		return string(data), err
	}
	return "", fmt.Errorf("no schema in prompt for %q", component)
}

// intentReply names every listed component that the message mentions, or
// the last listed component when none is mentioned.
func intentReply(req chatRequest) (string, error) {
	var system, user string
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}

	message := between(user, "User Message: ", "\n")
	listed := strings.Split(strings.TrimSpace(after(user, "Current plan components:")), ", ")

	foundation := map[string]bool{}
	if match := foundationRe.FindStringSubmatch(system); match != nil {
		for _, line := range strings.Split(match[1], "\n") {
			foundation[strings.TrimPrefix(strings.TrimSpace(line), "* ")] = true
		}
	}

	var picked []string
	lower := strings.ToLower(message)
	for _, name := range listed {
		if name != "" && strings.Contains(lower, strings.ToLower(name)) {
			picked = append(picked, name)
		}
	}
	if len(picked) == 0 && len(listed) > 0 {
		picked = listed[len(listed)-1:]
	}

	tier, requiresFoundation := 2, false
	for _, name := range picked {
		if foundation[name] {
			tier, requiresFoundation = 1, true
		}
	}
	data, err := json.Marshal(map[string]any{
		"components":                 picked,
		"intent":                     message,
		"tier":                       tier,
		"rationale":                  "I'll update " + strings.Join(picked, ", ") + ".",
		"requires_foundation_update": requiresFoundation,
	})
	return string(data), err
}

func between(s, start, end string) string {
	rest := after(s, start)
	if i := strings.Index(rest, end); i >= 0 {
		return rest[:i]
	}
	return rest
}

func after(s, marker string) string {
	if i := strings.Index(s, marker); i >= 0 {
		return s[i+len(marker):]
	}
	return ""
}

// --- Server ---

// capturedRequest stores the key fields of an incoming LLM request for test verification.
type capturedRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	CallIndex int           `json:"call_index"` // 1-indexed per-component call number
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	fixtures map[string][]string // component → ordered fixture contents (sequential)
	calls    atomic.Int64        // total calls served

	// Per-component call counters for sequential fixture selection.
	componentCalls   map[string]*atomic.Int64
	componentCallsMu sync.Mutex // protects lazy init of componentCalls entries

	// Per-component request capture for prompt verification in e2e tests.
	requests   map[string][]capturedRequest
	requestsMu sync.Mutex
}

func newServer(fixtures map[string][]string) *server {
	if fixtures == nil {
		fixtures = make(map[string][]string)
	}
	return &server{
		fixtures:       fixtures,
		componentCalls: make(map[string]*atomic.Int64),
		requests:       make(map[string][]capturedRequest),
	}
}

// captureRequest stores a request for later retrieval via /requests endpoint.
func (s *server) captureRequest(key string, req chatRequest, callIndex int) {
	s.requestsMu.Lock()
	defer s.requestsMu.Unlock()
	s.requests[key] = append(s.requests[key], capturedRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		CallIndex: callIndex,
		Timestamp: time.Now().UnixMilli(),
	})
}

// counter returns the call counter for a component, creating it lazily.
func (s *server) counter(key string) *atomic.Int64 {
	s.componentCallsMu.Lock()
	defer s.componentCallsMu.Unlock()
	if c, ok := s.componentCalls[key]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.componentCalls[key] = c
	return c
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)
	return mux
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files (optional)")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	// Allow env var override
	if envDir := os.Getenv("MOCK_LLM_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}

	var fixtures map[string][]string
	if *fixtureDir != "" {
		var err error
		fixtures, err = loadFixtures(*fixtureDir)
		if err != nil {
			log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
		}
		log.Printf("Loaded %d component(s) from %s", len(fixtures), *fixtureDir)
		for component, seq := range fixtures {
			log.Printf("  component: %s (%d fixture(s))", component, len(seq))
		}
	} else {
		log.Printf("No fixtures; answering every component with its schema skeleton")
	}

	s := newServer(fixtures)
	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock LLM server listening on %s", addr)
	srv := &http.Server{Addr: addr, Handler: s.handler(), ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	key := route(req)
	if key == "" {
		log.Printf("[call %d] WARNING: no component in prompt, returning error", callNum)
		http.Error(w, "no component found in prompt", http.StatusBadRequest)
		return
	}

	callIndex := int(s.counter(key).Add(1) - 1) // 0-indexed
	s.captureRequest(key, req, callIndex+1)

	content, err := s.reply(key, callIndex, req)
	if err != nil {
		log.Printf("[call %d] component=%s error: %v", callNum, key, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Wrap in OpenAI response envelope
	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index: 0,
				Message: chatMessage{
					Role:    "assistant",
					Content: content,
				},
				FinishReason: "stop",
			},
		},
		Usage: chatUsage{
			PromptTokens:     len(content) / 4, // rough estimate
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(content) / 2,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
	log.Printf("[call %d] component=%s call_index=%d bytes=%d", callNum, key, callIndex+1, len(content))
}

// reply picks the fixture for the call, falling back to a generated answer.
func (s *server) reply(key string, callIndex int, req chatRequest) (string, error) {
	if seq, ok := s.fixtures[key]; ok {
		if callIndex < len(seq) {
			return seq[callIndex], nil
		}
		return seq[len(seq)-1], nil // repeat last fixture
	}
	if key == intentKey {
		return intentReply(req)
	}
	return skeletonReply(key, req)
}

// handleStats returns call counts for test assertions.
// Returns total_calls and per-component calls_by_component breakdown.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.componentCallsMu.Lock()
	byComponent := make(map[string]int64, len(s.componentCalls))
	for key, counter := range s.componentCalls {
		byComponent[key] = counter.Load()
	}
	s.componentCallsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":        s.calls.Load(),
		"calls_by_component": byComponent,
	})
}

// handleRequests returns captured request bodies for test assertions.
// Query params:
//   - component: filter by component name (optional)
//   - call: filter by call index, 1-indexed (optional)
//
// Returns {"requests_by_component": {"objectives": [...], ...}}
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	componentFilter := r.URL.Query().Get("component")
	callFilter := r.URL.Query().Get("call")

	s.requestsMu.Lock()
	result := make(map[string][]capturedRequest)
	for key, reqs := range s.requests {
		if componentFilter != "" && key != componentFilter {
			continue
		}
		if callFilter != "" {
			callIdx, err := strconv.Atoi(callFilter)
			if err == nil {
				for _, req := range reqs {
					if req.CallIndex == callIdx {
						result[key] = append(result[key], req)
					}
				}
				continue
			}
		}
		result[key] = reqs
	}
	s.requestsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"requests_by_component": result,
	})
}

// numberedFileRe matches files like "objectives.1.json", "lessonFlow.2.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadFixtures reads JSON files from dir and returns a map of component→content sequence.
//
// For each component, fixtures are ordered:
//  1. Numbered files (name.1.json, name.2.json, ...) in numeric order
//  2. Base file (name.json) appended as the final fallback
func loadFixtures(dir string) (map[string][]string, error) {
	baseFiles := make(map[string]string)             // component → content
	numberedFiles := make(map[string]map[int]string) // component → {index → content}

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", path)
		}

		content := string(data)

		// Check for numbered pattern: name.N.json
		if matches := numberedFileRe.FindStringSubmatch(info.Name()); matches != nil {
			component := matches[1]
			index, _ := strconv.Atoi(matches[2])
			if numberedFiles[component] == nil {
				numberedFiles[component] = make(map[int]string)
			}
			numberedFiles[component][index] = content
			return nil
		}

		baseFiles[strings.TrimSuffix(info.Name(), ".json")] = content
		return nil
	})

	if err != nil {
		return nil, err
	}

	all := make(map[string]bool)
	for c := range baseFiles {
		all[c] = true
	}
	for c := range numberedFiles {
		all[c] = true
	}

	fixtures := make(map[string][]string)
	for component := range all {
		var seq []string

		if numbered, ok := numberedFiles[component]; ok {
			indices := make([]int, 0, len(numbered))
			for idx := range numbered {
				indices = append(indices, idx)
			}
			sort.Ints(indices)

			for _, idx := range indices {
				seq = append(seq, numbered[idx])
			}
		}

		// Append base file as fallback
		if base, ok := baseFiles[component]; ok {
			seq = append(seq, base)
		}

		if len(seq) > 0 {
			fixtures[component] = seq
		}
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}

	return fixtures, nil
}
