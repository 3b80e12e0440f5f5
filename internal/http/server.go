// Package http serves the admin batch triggers, health checks and metrics.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "reportbatch/internal/log"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config wires the server to the batch jobs.
type Config struct {
	Runner     BatchRunner
	AdminToken string
	// Store is checked by /readyz when set.
	Store Pinger
	// Gatherer is exposed on /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	// AdminRequestsPerMinute limits admin calls per client IP (default 10).
	AdminRequestsPerMinute int
}

// Server is the admin HTTP server.
type Server struct {
	http.Server

	logger       *slog.Logger
	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer configures routes, returning a ready-to-run server.
func NewServer(addr string, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perMinute := cfg.AdminRequestsPerMinute
	if perMinute <= 0 {
		perMinute = 10
	}

	s := &Server{
		logger:      logger,
		rateLimiter: newRateLimiter(perMinute, time.Minute),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(applog.Middleware(logger))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady(cfg.Store))
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/admin/batch", func(r chi.Router) {
		r.Use(securityHeaders)
		r.Use(s.rateLimiter.middleware)
		r.Use(RequireAdminToken(cfg.AdminToken, logger))
		r.Post("/report", s.runJob("report", cfg.Runner.RunReportJob))
		r.Post("/dead-letter", s.runJob("dead-letter", cfg.Runner.RunDeadLetterJob))
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops accepting requests and waits for in-flight triggers.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}
