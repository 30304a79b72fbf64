// Package config provides configuration constants for e2e tests.
package config

import "time"

// Default service URLs.
const (
	DefaultHTTPURL    = "http://localhost:8080"
	DefaultMockLLMURL = "http://localhost:11434"
)

// Default timeouts. Generation runs one backend call per component, so
// stages allow more time than single requests.
const (
	DefaultCommandTimeout = 30 * time.Second
	DefaultSetupTimeout   = 60 * time.Second
	DefaultStageTimeout   = 2 * time.Minute
	DefaultPollInterval   = 500 * time.Millisecond
)

// E2EOwnerID is the owner every scenario acts as.
const E2EOwnerID = "e2e-runner"

// Config holds the e2e test configuration.
type Config struct {
	HTTPBaseURL string `json:"http_base_url"`

	// MockLLMURL enables call-count checks against mock-llm. Empty skips them.
	MockLLMURL string `json:"mock_llm_url,omitempty"`

	OwnerID        string        `json:"owner_id"`
	CommandTimeout time.Duration `json:"command_timeout"`
	SetupTimeout   time.Duration `json:"setup_timeout"`
	StageTimeout   time.Duration `json:"stage_timeout"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		HTTPBaseURL:    DefaultHTTPURL,
		MockLLMURL:     DefaultMockLLMURL,
		OwnerID:        E2EOwnerID,
		CommandTimeout: DefaultCommandTimeout,
		SetupTimeout:   DefaultSetupTimeout,
		StageTimeout:   DefaultStageTimeout,
	}
}
