package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360studio/semplan/api"
	"github.com/c360studio/semplan/catalog"
	"github.com/c360studio/semplan/config"
	"github.com/c360studio/semplan/generation"
	"github.com/c360studio/semplan/intent"
	"github.com/c360studio/semplan/llm"
	"github.com/c360studio/semplan/metrics"
	"github.com/c360studio/semplan/model"
	"github.com/c360studio/semplan/orchestrator"
	"github.com/c360studio/semplan/prompts"
	"github.com/c360studio/semplan/service"
	"github.com/c360studio/semplan/storage"
	"github.com/c360studio/semplan/storage/memory"
	"github.com/c360studio/semplan/storage/natskv"
	"github.com/c360studio/semplan/storage/sqlite"
)

// App is the main application that wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *model.Registry
	catalog  *catalog.Definition
	reg      *prometheus.Registry
	metrics  *metrics.Metrics

	store   storage.Store
	service *service.Service
}

// NewApp builds the dependency graph: model registry, backend client,
// generation client and pool, prompt builder, orchestrators, store and
// service.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	registry, err := loadRegistry(cfg.Model)
	if err != nil {
		return nil, err
	}
	a.registry = registry

	def, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	a.catalog = def

	a.reg = prometheus.NewRegistry()
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(a.reg)

	policy, err := orchestrator.ParseFoundationPolicy(cfg.Generation.FoundationFailure)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.store = store

	g := cfg.Generation
	llmClient := llm.NewClient(registry,
		llm.WithTimeout(g.RequestTimeout),
		llm.WithRateLimit(g.RequestsPerSecond, g.Burst),
		llm.WithMetrics(a.metrics),
		llm.WithLogger(logger))

	client := generation.NewClient(generation.NewLLMBackend(llmClient),
		generation.WithPool(generation.NewPool(g.Workers, a.metrics)),
		generation.WithMetrics(a.metrics),
		generation.WithLogger(logger),
		generation.WithRetryConfig(generation.RetryConfig{
			MaxAttempts: g.MaxAttempts,
			BaseDelay:   g.BaseDelay,
			MaxBackoff:  g.MaxBackoff,
			Strategy:    generation.Backoff(g.Backoff),
		}))

	builder := prompts.NewBuilder(def.Catalog,
		prompts.WithModel(cfg.Model.Default),
		prompts.WithLogger(logger),
		prompts.WithGenerationOverrides(prompts.Overrides{
			Capability:  cfg.Model.GenerationCapability,
			MaxTokens:   g.MaxTokens,
			Temperature: g.Temperature,
		}),
		prompts.WithAnalysisOverrides(prompts.Overrides{
			Capability:  cfg.Model.AnalysisCapability,
			MaxTokens:   g.AnalysisMaxTokens,
			Temperature: g.AnalysisTemperature,
		}))

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithStrictSchema(g.StrictSchema),
		orchestrator.WithFoundationPolicy(policy),
		orchestrator.WithDefaults(def.Defaults()),
	}
	a.service = service.New(
		orchestrator.NewGenerator(client, builder, opts...),
		orchestrator.NewUpdater(client, builder, opts...),
		intent.NewAnalyzer(client, builder, intent.WithLogger(logger)),
		store,
		service.WithLogger(logger),
	)

	logger.Debug("Application wired",
		"domain", def.Domain(),
		"storage", cfg.Storage.Driver,
		"workers", g.Workers,
		"endpoints", registry.ListEndpoints())
	return a, nil
}

// Server returns the HTTP API for the app.
func (a *App) Server() *api.Server {
	opts := []api.Option{
		api.WithLogger(a.logger),
		api.WithRequestTimeout(a.cfg.Server.RequestTimeout),
		api.WithVersion(Version),
	}
	if a.cfg.Server.Metrics {
		opts = append(opts, api.WithMetrics(a.metrics, a.reg))
	} else {
		opts = append(opts, api.WithMetrics(a.metrics, nil))
	}
	return api.NewServer(a.service, opts...)
}

// Close releases the store.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func loadRegistry(cfg config.ModelConfig) (*model.Registry, error) {
	if cfg.RegistryPath == "" {
		return model.NewDefaultRegistry(), nil
	}
	registry, err := model.LoadFromFile(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("load model registry: %w", err)
	}
	return registry, nil
}

func loadCatalog(cfg config.CatalogConfig) (*catalog.Definition, error) {
	if cfg.Path != "" {
		def, err := catalog.LoadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("load catalog %s: %w", cfg.Path, err)
		}
		return def, nil
	}
	def, err := catalog.Load(cfg.Domain)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return def, nil
}

// natsConnectTimeout bounds bucket setup on startup.
const natsConnectTimeout = 10 * time.Second

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.NewStore(), nil
	case "sqlite":
		store, err := sqlite.NewStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case "nats":
		ctx, cancel := context.WithTimeout(context.Background(), natsConnectTimeout)
		defer cancel()
		store, err := natskv.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("open nats store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
