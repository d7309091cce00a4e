// Package api exposes the HTTP interface for the extraction service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/config"
	"github.com/pagelens/pagelens/internal/extract"
	"github.com/pagelens/pagelens/internal/metrics"
	"github.com/pagelens/pagelens/internal/pipeline"
	"github.com/pagelens/pagelens/internal/storage"
	"github.com/pagelens/pagelens/internal/store"
)

// Runner executes one crawl-and-extract task.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Server wires HTTP handlers to the pipeline and stores.
type Server struct {
	router    chi.Router
	runner    Runner
	taskStore store.TaskStore
	blobStore storage.BlobStore
	registry  *extract.ProviderRegistry
	catalog   *extract.PromptCatalog
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runner Runner,
	taskStore store.TaskStore,
	blobStore storage.BlobStore,
	registry *extract.ProviderRegistry,
	catalog *extract.PromptCatalog,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:    runner,
		taskStore: taskStore,
		blobStore: blobStore,
		registry:  registry,
		catalog:   catalog,
		cfg:       cfg,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)

	r.Get("/", s.index)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Health probes and metrics scrapes stay open; only the API surface
	// requires the key.
	r.Route("/v1", func(r chi.Router) {
		if d := cfg.RequestTimeout(); d > 0 {
			r.Use(timeoutMiddleware(d))
		}
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/crawl", s.crawl)
		r.Get("/crawl", s.crawlQuery)
		r.Get("/providers", s.listProviders)
		r.Get("/modes", s.listModes)
		r.Get("/history", s.history)
		r.Route("/tasks/{task_id}", func(r chi.Router) {
			r.Get("/", s.getTask)
			r.Get("/artifacts", s.listArtifacts)
		})
		r.Get("/artifacts/{artifact_id}/preview", s.previewArtifact)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The task store is the only hard dependency at request time.
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.taskStore.ListTasks(ctx, 1, 0); err != nil {
		writeError(w, http.StatusServiceUnavailable, "task store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
