package main

import (
	"context"
	"log/slog"
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
		slog.Default().Info("test mode detected, skipping worker startup")
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

	gateway := sourcing.NewPGGateway(pool)
	requestRepo := payreq.NewRepository(pool)
	requestService := payreq.NewService(requestRepo, gateway, nil, nil, logger, metrics)
	reconCache := recon.NewCache(redisClient, 10*time.Minute)
	reconService := recon.NewService(gateway, requestRepo, reconCache, logger)
	processor := ledger.NewProcessor(requestService, logger)

	refreshJob := jobs.NewReconRefreshJob(reconService, logger, metrics)
	summaryJob := jobs.NewLedgerSummaryJob(processor, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), cfg.IdempotencyRetention, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReconRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskLedgerSummary, Handler: summaryJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SnapshotCron, Task: jobs.NewReconRefreshTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.LedgerSummaryCron, Task: jobs.NewLedgerSummaryTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.IdempotencyCleanupCron, Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
