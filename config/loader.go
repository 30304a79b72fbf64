package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "semplan.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/semplan"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvPrefix prefixes every environment override
	EnvPrefix = "SEMPLAN_"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger  *slog.Logger
	homeDir string
	workDir string
	lookup  func(string) (string, bool)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHomeDir overrides the directory holding the user config.
func WithHomeDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = dir
	}
}

// WithWorkDir overrides where the project config search starts.
func WithWorkDir(dir string) LoaderOption {
	return func(l *Loader) {
		l.workDir = dir
	}
}

// WithEnv replaces os.LookupEnv.
func WithEnv(lookup func(string) (string, bool)) LoaderOption {
	return func(l *Loader) {
		l.lookup = lookup
	}
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{logger: logger, lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/semplan/config.yaml)
// 3. Project config (semplan.yaml in current or parent directories)
// 4. Explicit file (the --config flag), when path is non-empty
// 5. Environment variables (SEMPLAN_*)
func (l *Loader) Load(path string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Load user config
	if userConfigPath := l.userConfigPath(); userConfigPath != "" {
		if err := config.mergeFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
		} else if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	// Load project config
	if projectConfigPath := l.findProjectConfig(); projectConfigPath != "" {
		if err := config.mergeFile(projectConfigPath); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
	} else {
		l.logger.Debug("No project config found")
	}

	if path != "" {
		if err := config.mergeFile(path); err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config file", slog.String("path", path))
	}

	if err := l.applyEnv(config); err != nil {
		return nil, err
	}

	// Validate final config
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() (string, error) {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return "", fmt.Errorf("home directory is unknown")
	}

	// Check if it already exists
	if _, err := os.Stat(userConfigPath); err == nil {
		return userConfigPath, nil
	}

	if err := DefaultConfig().SaveToFile(userConfigPath); err != nil {
		return "", err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return userConfigPath, nil
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home := l.homeDir
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for semplan.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	dir := l.workDir
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = cwd
	}

	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			break
		}
		dir = parent
	}

	return ""
}

// applyEnv applies SEMPLAN_* overrides.
func (l *Loader) applyEnv(c *Config) error {
	strs := map[string]*string{
		"MODEL_REGISTRY":      &c.Model.RegistryPath,
		"MODEL_DEFAULT":       &c.Model.Default,
		"GENERATION_BACKOFF":  &c.Generation.Backoff,
		"FOUNDATION_FAILURE":  &c.Generation.FoundationFailure,
		"CATALOG_DOMAIN":      &c.Catalog.Domain,
		"CATALOG_PATH":        &c.Catalog.Path,
		"STORAGE_DRIVER":      &c.Storage.Driver,
		"STORAGE_PATH":        &c.Storage.Path,
		"STORAGE_URL":         &c.Storage.URL,
		"SERVER_ADDR":         &c.Server.Addr,
		"ANALYSIS_CAPABILITY": &c.Model.AnalysisCapability,
	}
	for key, dst := range strs {
		if v, ok := l.lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"MAX_ATTEMPTS": &c.Generation.MaxAttempts,
		"WORKERS":      &c.Generation.Workers,
	}
	for key, dst := range ints {
		if v, ok := l.lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	if v, ok := l.lookup(EnvPrefix + "REQUEST_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sREQUEST_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Generation.RequestTimeout = d
	}
	if v, ok := l.lookup(EnvPrefix + "STRICT_SCHEMA"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSTRICT_SCHEMA: %w", EnvPrefix, err)
		}
		c.Generation.StrictSchema = b
	}
	return nil
}
