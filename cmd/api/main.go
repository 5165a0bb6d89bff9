// Copyright (c) 2026 Flowra. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Flowra HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Reconcile the role-permission matrix.
//  7. Wire domain services and HTTP handlers.
//  8. Start the cleanup scheduler and the HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/flowra/internal/api"
	"github.com/taibuivan/flowra/internal/cleanup"
	"github.com/taibuivan/flowra/internal/core/group"
	"github.com/taibuivan/flowra/internal/core/workflow"
	"github.com/taibuivan/flowra/internal/executor"
	"github.com/taibuivan/flowra/internal/notifier"
	"github.com/taibuivan/flowra/internal/platform/config"
	"github.com/taibuivan/flowra/internal/platform/constants"
	"github.com/taibuivan/flowra/internal/platform/migration"
	pgstore "github.com/taibuivan/flowra/internal/platform/postgres"
	redisstore "github.com/taibuivan/flowra/internal/platform/redis"
	"github.com/taibuivan/flowra/internal/platform/sec"
	"github.com/taibuivan/flowra/internal/rbac"
	"github.com/taibuivan/flowra/internal/users/auth"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "flowra"))
	slog.SetDefault(log)

	log.Info("[Flowra] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "flowra"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// Application context: outlives startup, cancelled on shutdown so that
	// background goroutines (rate-limit janitor) stop.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Token Service ──────────────────────────────────────────────────
	jwtSvc, err := sec.NewTokenService(cfg.JWTSecret, constants.AuthIssuer)
	must(log, err, "initialize jwt service")

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	userRepository := auth.NewUserRepository(pool)
	sessionRepository := auth.NewSessionRepository(pool)
	refreshTokenRepository := auth.NewRefreshTokenRepository(pool)
	resetTokenRepository := auth.NewResetTokenRepository(rdb)

	groupRepository := group.NewPostgresRepository(pool)
	groupService := group.NewService(groupRepository, userRepository)

	rbacService := rbac.NewService(
		rbac.NewRolePermissionRepository(pool),
		rbac.NewUserRoleRepository(pool),
		userRepository,
		groupService,
		log,
	)
	must(log, rbacService.Reconcile(startupCtx), "reconcile permission matrix")

	authService := auth.NewService(
		userRepository,
		sessionRepository,
		refreshTokenRepository,
		resetTokenRepository,
		jwtSvc,
		rbacService,
		cfg.AccessTokenTTL(),
		cfg.RefreshTokenTTL(),
	)

	workflowService := workflow.NewService(
		workflow.NewPostgresRepository(pool),
		workflow.NewLocalStepStorage(cfg.WorkflowDataDir),
		rbacService,
		groupService,
		log,
	)

	localRunner := executor.NewLocalRunner(cfg.ExecutionTimeout(), log)
	containerRunner := executor.NewContainerRunner(cfg.DockerBinary, nil, cfg.ExecutionTimeout(), log)
	executionRunner := executor.NewRunner(workflowService, localRunner, containerRunner, log)

	tokenMonitor := notifier.NewHandler(jwtSvc, notifier.NewClock(), log)

	// ── 9. Cleanup Scheduler ──────────────────────────────────────────────
	sweeper := cleanup.NewScheduler(sessionRepository, refreshTokenRepository, cfg.CleanupInterval(), log)
	sweeper.Start()
	defer sweeper.Stop()

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:     liveness,
		Readiness:    readiness,
		Auth:         auth.NewHandler(authService),
		Group:        group.NewHandler(groupService),
		Workflow:     workflow.NewHandler(workflowService),
		Execute:      executor.NewHandler(executionRunner),
		Admin:        rbac.NewHandler(rbacService),
		TokenMonitor: tokenMonitor,
	}

	server := api.NewServer(appCtx, cfg, log, authService, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
