package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lodestar-scm/lodestar/internal/observability"
	"github.com/lodestar-scm/lodestar/internal/shared"
)

// IdempotencyCleanupJob prunes idempotency keys past their retention
// window. Keys only need to survive long enough to absorb client retries.
type IdempotencyCleanupJob struct {
	Store     *shared.IdempotencyStore
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// NewIdempotencyCleanupJob wires dependencies for the cleanup handler.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger, metrics *observability.Metrics) *IdempotencyCleanupJob {
	if retention <= 0 {
		retention = 48 * time.Hour
	}
	return &IdempotencyCleanupJob{Store: store, Retention: retention, Logger: logger, Metrics: metrics}
}

// Handle processes idempotency cleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	logger := j.logger()
	if err := j.Store.Cleanup(cleanupCtx, j.Retention); err != nil {
		j.Metrics.CountJob(TaskIdempotencyCleanup, "error")
		logger.Error("prune idempotency keys", slog.Any("error", err))
		return err
	}

	j.Metrics.CountJob(TaskIdempotencyCleanup, "ok")
	logger.Info("pruned idempotency keys", slog.Duration("retention", j.Retention))
	return nil
}

func (j *IdempotencyCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIdempotencyCleanup))
	}
	return slog.Default().With(slog.String("job", TaskIdempotencyCleanup))
}
