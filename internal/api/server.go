// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/relatadb/relata/internal/platform/config"
	"github.com/relatadb/relata/internal/platform/constants"
	"github.com/relatadb/relata/internal/platform/middleware"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// Handlers groups the endpoint handlers wired by main.go.
type Handlers struct {
	// Gateway serves the single /api data-plane endpoint.
	Gateway *Gateway

	// Liveness is the /health handler — always 200 while the process runs.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler — 200 when all dependencies answer.
	Readiness http.HandlerFunc

	// Metrics serves the Prometheus exposition endpoint; nil disables it.
	Metrics http.Handler
}

// # Server Initialization

// NewServer constructs the chi router with the middleware chain and mounts
// the gateway plus infrastructure endpoints.
func NewServer(cfg *config.Config, log *slog.Logger, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Cross-cutting concerns only; authentication, rate limiting, and
	// caching are pipeline stages inside the gateway handler.
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	// Unauthenticated probes for container orchestration.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics)
	}

	// # Data Plane
	// One endpoint; the action parameter selects the operation.
	r.Handle("/api", h.Gateway)
	r.Handle("/api/*", h.Gateway)

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
