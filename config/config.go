// Package config provides configuration loading and management for semplan.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete semplan configuration
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Generation GenerationConfig `yaml:"generation"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
}

// ModelConfig selects backend models
type ModelConfig struct {
	// RegistryPath is a JSON model registry (empty = built-in registry)
	RegistryPath string `yaml:"registry_path"`
	// Default pins every request to one registry model name (empty = route by capability)
	Default string `yaml:"default"`
	// GenerationCapability routes component calls (empty = per-task mapping)
	GenerationCapability string `yaml:"generation_capability"`
	// AnalysisCapability routes intent classification calls
	AnalysisCapability string `yaml:"analysis_capability"`
}

// GenerationConfig configures retries, concurrency and prompt settings
type GenerationConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	// Backoff is linear or exponential
	Backoff string `yaml:"backoff"`
	// Workers bounds concurrent backend calls process-wide
	Workers int `yaml:"workers"`
	// RequestsPerSecond limits outbound requests (0 = unlimited)
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	// RequestTimeout bounds a single backend HTTP call
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// StrictSchema retries replies that do not match the component schema
	StrictSchema bool `yaml:"strict_schema"`
	// FoundationFailure is proceed or abort when every foundation component fails
	FoundationFailure string `yaml:"foundation_failure"`

	// Zero values leave the template settings in place.
	MaxTokens           int      `yaml:"max_tokens"`
	Temperature         *float64 `yaml:"temperature,omitempty"`
	AnalysisMaxTokens   int      `yaml:"analysis_max_tokens"`
	AnalysisTemperature *float64 `yaml:"analysis_temperature,omitempty"`
}

// CatalogConfig selects the component catalog
type CatalogConfig struct {
	// Domain is a built-in catalog (lesson, training)
	Domain string `yaml:"domain"`
	// Path is a YAML or JSON catalog file that replaces the built-in one
	Path string `yaml:"path"`
}

// StorageConfig selects the document store
type StorageConfig struct {
	// Driver is memory, sqlite or nats
	Driver string `yaml:"driver"`
	// Path is the sqlite database file
	Path string `yaml:"path"`
	// URL is the NATS server for the nats driver
	URL string `yaml:"url,omitempty"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	Metrics        bool          `yaml:"metrics"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			AnalysisCapability: "fast",
		},
		Generation: GenerationConfig{
			MaxAttempts:       3,
			BaseDelay:         time.Second,
			MaxBackoff:        10 * time.Second,
			Backoff:           "linear",
			Workers:           5,
			RequestTimeout:    180 * time.Second,
			FoundationFailure: "proceed",
		},
		Catalog: CatalogConfig{
			Domain: "lesson",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   defaultDataPath(),
		},
		Server: ServerConfig{
			Addr:           ":8080",
			Metrics:        true,
			RequestTimeout: 5 * time.Minute,
		},
	}
}

// defaultDataPath returns ~/.local/share/semplan/semplan.db, or a relative
// path when the home directory is unknown.
func defaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "semplan.db"
	}
	return filepath.Join(home, ".local", "share", "semplan", "semplan.db")
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	g := c.Generation
	if g.MaxAttempts < 1 {
		return fmt.Errorf("generation.max_attempts must be at least 1")
	}
	if g.BaseDelay < 0 || g.MaxBackoff < 0 {
		return fmt.Errorf("generation delays must not be negative")
	}
	if g.Backoff != "linear" && g.Backoff != "exponential" {
		return fmt.Errorf("generation.backoff must be linear or exponential, got %q", g.Backoff)
	}
	if g.Workers < 1 {
		return fmt.Errorf("generation.workers must be at least 1")
	}
	if g.RequestsPerSecond < 0 {
		return fmt.Errorf("generation.requests_per_second must not be negative")
	}
	if g.FoundationFailure != "proceed" && g.FoundationFailure != "abort" {
		return fmt.Errorf("generation.foundation_failure must be proceed or abort, got %q", g.FoundationFailure)
	}
	for name, t := range map[string]*float64{"temperature": g.Temperature, "analysis_temperature": g.AnalysisTemperature} {
		if t != nil && (*t < 0 || *t > 1) {
			return fmt.Errorf("generation.%s must be between 0 and 1", name)
		}
	}
	if c.Catalog.Domain == "" && c.Catalog.Path == "" {
		return fmt.Errorf("catalog.domain or catalog.path is required")
	}
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for sqlite")
		}
	case "nats":
		if c.Storage.URL == "" {
			return fmt.Errorf("storage.url is required for nats")
		}
	default:
		return fmt.Errorf("storage.driver must be memory, sqlite or nats, got %q", c.Storage.Driver)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := config.mergeFile(path); err != nil {
		return nil, err
	}
	return config, nil
}

// mergeFile decodes a YAML file onto c. Keys absent from the file keep
// their current values, so layers can set false and zero explicitly.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
