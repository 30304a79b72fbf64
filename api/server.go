// Package api exposes the document service over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/semplan/metrics"
	"github.com/c360studio/semplan/service"
)

// OwnerHeader carries the caller's owner ID. Authentication happens in
// front of this server.
const OwnerHeader = "X-Owner-ID"

// maxRequestBodySize limits request body sizes.
const maxRequestBodySize = 1 << 20 // 1 MB

// Server is the HTTP server for the document API.
type Server struct {
	svc      *service.Service
	logger   *slog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	timeout  time.Duration
	version  string
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics records request metrics and serves gatherer on /metrics.
// A nil gatherer leaves /metrics unregistered.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithRequestTimeout bounds every request. Generation keeps running past
// the timeout; only the response is abandoned.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// WithVersion sets the version reported by the OpenAPI description.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates a server for svc.
func NewServer(svc *service.Service, opts ...Option) *Server {
	s := &Server{
		svc:     svc,
		logger:  slog.Default(),
		timeout: 5 * time.Minute,
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.timeout > 0 {
			r.Use(middleware.Timeout(s.timeout))
		}
		r.Get("/catalog", s.handleCatalog)
		r.Get("/openapi.yaml", s.handleOpenAPI)

		r.Route("/documents", func(r chi.Router) {
			r.Use(requireOwner)
			r.Post("/", s.handleGenerate)
			r.Get("/", s.handleListDocuments)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDocument)
				r.Put("/", s.handleSaveDocument)
				r.Delete("/", s.handleDeleteDocument)
				r.Get("/export", s.handleExportDocument)
				r.Post("/analyze", s.handleAnalyze)
				r.Post("/chat", s.handleChat)
				r.Get("/chat", s.handleListChat)
				r.Post("/components/{component}/regenerate", s.handleRegenerate)
				r.Get("/versions", s.handleListVersions)
				r.Get("/versions/{version}", s.handleGetVersion)
			})
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Use(requireOwner)
			r.Post("/", s.handleCreateProfile)
			r.Get("/", s.handleListProfiles)

			r.Route("/{profileId}", func(r chi.Router) {
				r.Get("/", s.handleGetProfile)
				r.Put("/", s.handleUpdateProfile)
				r.Delete("/", s.handleDeleteProfile)
			})
		})
	})
	return r
}

// Start serves on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// logRequests logs every request and records it by route pattern.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveRequest(route, r.Method, status, elapsed)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// requireOwner rejects requests without an owner header.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(OwnerHeader) == "" {
			writeError(w, http.StatusUnauthorized, "missing_owner", OwnerHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func owner(r *http.Request) string {
	return r.Header.Get(OwnerHeader)
}
