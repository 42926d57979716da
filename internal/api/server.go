// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/seo-crawler/internal/config"
	"github.com/JakeFAU/seo-crawler/internal/crawler"
	"github.com/JakeFAU/seo-crawler/internal/metrics"
)

const defaultRequestTimeout = 60 * time.Second

// Engine is the crawl engine surface the API drives.
type Engine interface {
	Crawl(ctx context.Context, job crawler.Job) (crawler.Result, error)
	CancelCrawl(jobID string) bool
	IsRunning(jobID string) bool
	ActiveJobForProject(projectID string) (string, bool)
	Stats() crawler.EngineStats
	UpdateOptions(patch crawler.OptionsPatch) crawler.Options
}

// RobotsInspector answers robots.txt diagnostics.
type RobotsInspector interface {
	IsAllowed(ctx context.Context, rawURL, userAgent string, allowedPaths []string) bool
	CrawlDelay(ctx context.Context, rawURL, userAgent string) (time.Duration, bool)
	Sitemaps(ctx context.Context, domain, userAgent string) []string
	ClearCache()
}

// Deps groups the collaborators of a Server. Robots, Metrics, Gatherer and
// Ready are optional.
type Deps struct {
	Engine   Engine
	Store    crawler.CrawlStore
	Robots   RobotsInspector
	IDs      crawler.IDGenerator
	Clock    crawler.Clock
	Metrics  *metrics.HTTP
	Gatherer prometheus.Gatherer
	Ready    func(ctx context.Context) error
	// BaseContext parents every background crawl. Defaults to context.Background.
	BaseContext context.Context
}

// Server wires HTTP handlers to the crawl engine and the crawl store.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
	runs   *runner
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("api: engine is required")
	}
	if deps.Store == nil {
		return nil, errors.New("api: crawl store is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("api: id generator is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("api: clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
		runs:   newRunner(deps.BaseContext, deps.Engine, deps.Store, deps.Clock, logger.Named("runner")),
	}

	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/projects/{project_id}/analyze", s.analyzeProject)
		r.Route("/crawls", func(r chi.Router) {
			r.Post("/", s.submitCrawl)
			r.Post("/standard", s.submitStandardCrawl)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getCrawl)
				r.Get("/pages", s.listPages)
				r.Get("/errors", s.listErrors)
				r.Post("/cancel", s.cancelCrawl)
			})
		})
		r.Get("/stats", s.stats)
		r.Patch("/options", s.updateOptions)
		r.Get("/robots", s.inspectRobots)
		r.Delete("/robots/cache", s.clearRobotsCache)
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown cancels background crawls and waits for them to record their
// outcome, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.runs.shutdown(ctx)
}

// Wait blocks until every crawl started through the API has returned.
func (s *Server) Wait() {
	s.runs.wait()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
