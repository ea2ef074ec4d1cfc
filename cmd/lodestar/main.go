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

	"github.com/lodestar-scm/lodestar/internal/app"
	"github.com/lodestar-scm/lodestar/internal/ledger"
	"github.com/lodestar-scm/lodestar/internal/observability"
	"github.com/lodestar-scm/lodestar/internal/payreq"
	"github.com/lodestar-scm/lodestar/internal/platform/cache"
	"github.com/lodestar-scm/lodestar/internal/platform/db"
	"github.com/lodestar-scm/lodestar/internal/recon"
	"github.com/lodestar-scm/lodestar/internal/shared"
	"github.com/lodestar-scm/lodestar/internal/sourcing"
	"github.com/lodestar-scm/lodestar/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	metrics := observability.NewMetrics()

	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	gateway := sourcing.NewPGGateway(pool)
	requestRepo := payreq.NewRepository(pool)
	requestService := payreq.NewService(requestRepo, gateway, auditLogger, idempotency, logger, metrics)

	reconCache := recon.NewCache(redisClient, 10*time.Minute)
	reconService := recon.NewService(gateway, requestRepo, reconCache, logger)

	processor := ledger.NewProcessor(requestService, logger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		PaymentHandler:  payreq.NewHandler(logger, requestService, reconService, jobsClient),
		SourcingHandler: sourcing.NewHandler(logger, gateway, reconService),
		ReconHandler:    recon.NewHandler(logger, reconService),
		LedgerHandler:   ledger.NewHandler(logger, processor, reconService),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
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
