// Package testutil provides test doubles for the generative backend.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/c360studio/semplan/generation"
)

// Reply is one scripted backend answer.
type Reply struct {
	Content string
	Err     error
}

// Call records one Invoke.
type Call struct {
	Request generation.Request
	At      time.Time
}

// MockBackend is a thread-safe scripted generation.Backend.
//
// Usage:
//
//	// Per-component scripts, consumed in order; the last reply repeats.
//	mock := &MockBackend{
//	    Scripts: map[string][]Reply{
//	        "objectives": {{Content: "not json"}, {Content: `{"objectives": {}}`}},
//	        "lessonFlow": {{Err: errors.New("connection failed")}},
//	    },
//	}
//
//	// Computed replies.
//	mock := &MockBackend{
//	    Handler: func(req generation.Request) (string, error) { ... },
//	}
type MockBackend struct {
	mu sync.Mutex

	// Scripts maps a component name to its replies.
	Scripts map[string][]Reply

	// Handler answers components without a script.
	Handler func(req generation.Request) (string, error)

	// Err is returned for every call when set.
	Err error

	// Latency delays every reply, for concurrency tests.
	Latency time.Duration

	calls       []Call
	cursor      map[string]int
	inflight    int
	maxInflight int
}

// Invoke implements generation.Backend.
func (m *MockBackend) Invoke(ctx context.Context, req generation.Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Request: req, At: time.Now()})
	m.inflight++
	if m.inflight > m.maxInflight {
		m.maxInflight = m.inflight
	}
	reply, handler := m.next(req.Component)
	latency := m.Latency
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inflight--
		m.mu.Unlock()
	}()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(latency):
		}
	}

	if handler != nil {
		return handler(req)
	}
	return reply.Content, reply.Err
}

// next picks the reply for component. Must hold mu.
func (m *MockBackend) next(component string) (Reply, func(generation.Request) (string, error)) {
	if m.Err != nil {
		return Reply{Err: m.Err}, nil
	}
	script, ok := m.Scripts[component]
	if ok && len(script) > 0 {
		if m.cursor == nil {
			m.cursor = make(map[string]int)
		}
		i := m.cursor[component]
		if i >= len(script) {
			i = len(script) - 1
		}
		m.cursor[component] = i + 1
		return script[i], nil
	}
	if m.Handler != nil {
		return Reply{}, m.Handler
	}
	return Reply{Content: "{}"}, nil
}

// GetCallCount returns the number of times Invoke was called.
func (m *MockBackend) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CallsFor returns the number of calls made for component.
func (m *MockBackend) CallsFor(component string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Request.Component == component {
			n++
		}
	}
	return n
}

// Calls returns a copy of every recorded call in arrival order.
func (m *MockBackend) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// MaxInflight returns the highest number of concurrent Invoke calls seen.
func (m *MockBackend) MaxInflight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInflight
}

// Reset clears recorded calls and script cursors.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.cursor = nil
	m.inflight = 0
	m.maxInflight = 0
}
