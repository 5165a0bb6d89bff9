// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/taibuivan/flowra/internal/core/group"
	"github.com/taibuivan/flowra/internal/core/workflow"
	"github.com/taibuivan/flowra/internal/executor"
	"github.com/taibuivan/flowra/internal/platform/config"
	"github.com/taibuivan/flowra/internal/platform/constants"
	"github.com/taibuivan/flowra/internal/platform/middleware"
	"github.com/taibuivan/flowra/internal/rbac"
	"github.com/taibuivan/flowra/internal/users/auth"
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

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
//
// # Usage
//
// New domains add a field here — no other change to server.go is required.
type Handlers struct {
	// Liveness is the /health handler — always returns 200 if process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler — returns 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Auth handles credential routes (register, login, refresh, logout).
	Auth *auth.Handler

	// Group manages user groups and memberships.
	Group *group.Handler

	// Workflow manages workflow definitions, steps, and shares.
	Workflow *workflow.Handler

	// Execute runs workflow steps. Registered on the workflow route tree.
	Execute *executor.Handler

	// Admin exposes the role-permission matrix and role assignment.
	Admin *rbac.Handler

	// TokenMonitor is the WebSocket endpoint streaming expiry warnings.
	TokenMonitor http.Handler
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
//
// The global request timeout is applied inside /api/v1 only: the WebSocket
// token monitor holds its connection open for the token's whole lifetime.
func NewServer(context context.Context, cfg *config.Config, log *slog.Logger, verifier middleware.AccessVerifier, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(middleware.RateLimit(context))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.Authenticate(verifier))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	// Unauthenticated health probes for container orchestration.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)

	// # Token Expiry Notifications
	// Authenticates via ?token= itself; browser WebSocket clients cannot
	// set an Authorization header.
	r.Method(http.MethodGet, "/ws/token-monitor", h.TokenMonitor)

	// # Application API
	// Domain-specific route groups mounted under versioned prefix.
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(chimw.Timeout(constants.GlobalRequestTimeout))

		api.Mount("/auth", h.Auth.Routes())
		api.Mount("/groups", h.Group.Routes())
		api.Mount("/admin", h.Admin.Routes())

		api.Route("/workflow", func(router chi.Router) {
			router.With(middleware.RequireAuth).
				Post("/{id}/execute", h.Execute.ExecuteWorkflow)
			router.Mount("/", h.Workflow.Routes())
		})
	})

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
