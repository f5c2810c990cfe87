package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hotelcms/hotelcms/internal/app"
	"github.com/hotelcms/hotelcms/internal/assignments"
	"github.com/hotelcms/hotelcms/internal/audit"
	audithttp "github.com/hotelcms/hotelcms/internal/audit/http"
	"github.com/hotelcms/hotelcms/internal/auth"
	"github.com/hotelcms/hotelcms/internal/changes"
	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/observability"
	"github.com/hotelcms/hotelcms/internal/platform/cache"
	"github.com/hotelcms/hotelcms/internal/platform/db"
	"github.com/hotelcms/hotelcms/internal/rbac"
	"github.com/hotelcms/hotelcms/internal/shared"
	"github.com/hotelcms/hotelcms/jobs"
	"github.com/hotelcms/hotelcms/migrations"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if cfg.MigrateOnStart {
		if err := db.Migrate(ctx, cfg.PGDSN, migrations.FS); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	policy, err := entries.ParseExistencePolicy(cfg.ExistenceCheckedTypes)
	if err != nil {
		logger.Error("existence policy", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "hotelcms_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotency := shared.NewIdempotencyStore(dbpool)
	existence := entries.NewChecker(dbpool, policy)

	actors := rbac.NewCachedSource(rbac.NewService(dbpool), redisClient, cfg.PermissionCacheTTL, logger)

	assignmentService := assignments.NewService(assignments.NewRepository(dbpool), existence, auditLogger, logger)
	resolver := rbac.NewResolver(assignmentService, metrics)
	changeService := changes.NewService(
		changes.NewRepository(dbpool, logger),
		resolver,
		logger,
		changes.WithExistence(existence),
		changes.WithIdempotency(idempotency),
		changes.WithAudit(auditLogger),
		changes.WithMetrics(metrics),
	)

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        auth.NewHandler(logger, auth.NewService(auth.NewRepository(dbpool), logger), sessionManager, csrfManager, actors),
		Authenticator:      auth.NewAuthenticator(actors, logger),
		RBACMiddleware:     rbac.Middleware{Logger: logger},
		ChangesHandler:     changes.NewHandler(logger, changeService, cfg.ReviewRateLimitPerMinute),
		AssignmentsHandler: assignments.NewHandler(logger, assignmentService),
		AuditHandler:       audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool))),
		JobHandler:         jobs.NewHandler(jobClient, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
