// Copyright (c) 2026 Relata. All rights reserved.
// Author: eng@relata.dev

// Command api is the entry point for the Relata gateway server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to the relational database (MySQL or PostgreSQL).
//  4. Connect to Redis when a distributed store is configured.
//  5. Run the users migration when database auth is enabled (idempotent).
//  6. Wire the pipeline stages and HTTP handlers.
//  7. Start the HTTP server with graceful shutdown.
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
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/relatadb/relata/internal/api"
	"github.com/relatadb/relata/internal/auth"
	"github.com/relatadb/relata/internal/cache"
	"github.com/relatadb/relata/internal/crud"
	"github.com/relatadb/relata/internal/monitor"
	"github.com/relatadb/relata/internal/platform/config"
	"github.com/relatadb/relata/internal/platform/constants"
	"github.com/relatadb/relata/internal/platform/database"
	"github.com/relatadb/relata/internal/platform/migration"
	redisstore "github.com/relatadb/relata/internal/platform/redis"
	"github.com/relatadb/relata/internal/platform/sec"
	"github.com/relatadb/relata/internal/ratelimit"
	"github.com/relatadb/relata/internal/rbac"
	"github.com/relatadb/relata/internal/reqlog"
	"github.com/relatadb/relata/internal/schema"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Relata] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("driver", cfg.DatabaseDriver),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. Database ───────────────────────────────────────────────────────
	db, dialect, err := database.Open(startupCtx, cfg.DatabaseDriver, cfg.DatabaseURL, log)
	must(log, err, "connect to database")
	defer func() {
		log.Info("closing database pool")
		if cerr := db.Close(); cerr != nil {
			log.Error("database close error", slog.Any("error", cerr))
		}
	}()

	// ── 4. Redis (optional) ───────────────────────────────────────────────
	var rdb *goredis.Client
	if cfg.RedisURL != "" {
		rdb, err = redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing redis client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis close error", slog.Any("error", cerr))
			}
		}()
	}

	// ── 5. Migrations ─────────────────────────────────────────────────────
	// The users table is only needed when credentials live in the database.
	// Migrations are laid out per driver: data/migrations/<driver>/.
	if cfg.Auth.UseDatabaseAuth {
		migrationsDir := filepath.Join(cfg.MigrationPath, cfg.DatabaseDriver)
		must(log, migration.RunUp(cfg.DatabaseDriver, cfg.DatabaseURL, migrationsDir, log), "run migrations")
	}

	// ── 6. Pipeline Stages ────────────────────────────────────────────────
	inspector := schema.NewInspector(db, dialect)
	engine := crud.NewEngine(db, dialect, inspector)

	var tokens *sec.TokenService
	if cfg.Auth.JWTSecret != "" {
		tokens, err = sec.NewTokenService(
			cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience,
			time.Duration(cfg.Auth.JWTExpiration)*time.Second)
		must(log, err, "initialize jwt service")
	}

	var userStore auth.UserStore
	if cfg.Auth.UseDatabaseAuth {
		userStore = auth.NewSQLUserStore(db, dialect)
	}
	authenticator := auth.NewAuthenticator(cfg.Auth, tokens, userStore, log)

	rules, err := cfg.RBAC.ParseRules()
	must(log, err, "parse rbac rules")
	authorizer := rbac.New(rules)

	limiterStore, err := newLimiterStore(cfg, rdb)
	must(log, err, "initialize rate-limit store")
	limiter := ratelimit.NewLimiter(cfg.RateLimit, limiterStore)

	cacheManager := cache.NewManager(cfg.Cache, newCacheStore(cfg, rdb), log)

	var auditLog *reqlog.Logger
	if cfg.Logging.Enabled {
		auditLog, err = reqlog.New(reqlog.Options{
			Dir:            cfg.Logging.LogDir,
			LogHeaders:     cfg.Logging.LogHeaders,
			LogQueryParams: cfg.Logging.LogQueryParams,
			LogBody:        cfg.Logging.LogBody,
			LogResponse:    cfg.Logging.LogResponse,
			MaxBodyLength:  cfg.Logging.MaxBodyLength,
			SensitiveKeys:  cfg.Logging.SensitiveKeys,
			RotationSize:   cfg.Logging.RotationSize,
			MaxFiles:       cfg.Logging.MaxFiles,
		}, log)
		must(log, err, "initialize request log")
		defer func() { _ = auditLog.Close() }()
	}

	var mon *monitor.Monitor
	var exporter *monitor.Exporter
	if cfg.Monitor.Enabled {
		exporter = monitor.NewExporter()
		mon = monitor.New(cfg.Monitor, newAlerter(cfg, log), exporter)
	}

	// ── 7. HTTP Server ────────────────────────────────────────────────────
	gateway := api.NewGateway(engine, authenticator, authorizer, limiter,
		cacheManager, auditLog, mon, log, cfg.RateLimit.TrustProxyHeaders)

	var pingRedis func(context.Context) error
	if rdb != nil {
		pingRedis = func(ctx context.Context) error { return redisstore.Ping(ctx, rdb) }
	}

	handlers := api.Handlers{
		Gateway:   gateway,
		Liveness:  api.Liveness(),
		Readiness: api.Readiness(db, pingRedis),
	}
	if exporter != nil {
		handlers.Metrics = exporter.Handler()
	}

	server := api.NewServer(cfg, log, handlers)

	// ── 8. Graceful Shutdown ──────────────────────────────────────────────
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

// newLimiterStore selects the rate-limit store from configuration.
func newLimiterStore(cfg *config.Config, rdb *goredis.Client) (ratelimit.Store, error) {
	switch cfg.RateLimit.Store {
	case "redis":
		return ratelimit.NewRedisStore(rdb), nil
	case "file":
		return ratelimit.NewFileStore(cfg.RateLimit.StorageDir)
	default:
		return ratelimit.NewMemoryStore(), nil
	}
}

// newCacheStore selects the cache store from configuration.
func newCacheStore(cfg *config.Config, rdb *goredis.Client) cache.Store {
	if cfg.Cache.Driver == "redis" {
		return cache.NewRedisStore(rdb)
	}
	return cache.NewMemoryStore()
}

// newAlerter builds the ordered alert handler chain.
func newAlerter(cfg *config.Config, log *slog.Logger) *monitor.Alerter {
	var handlers []monitor.Handler
	for _, name := range cfg.Monitor.AlertHandlers {
		switch name {
		case "log":
			handlers = append(handlers, monitor.NewLogHandler(log))
		case "webhook":
			if cfg.Monitor.WebhookURL != "" {
				handlers = append(handlers, monitor.NewWebhookHandler(cfg.Monitor.WebhookURL))
			}
		}
	}
	return monitor.NewAlerter(handlers, log)
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
