package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lodestar-scm/lodestar/internal/observability"
	"github.com/lodestar-scm/lodestar/internal/recon"
)

// ReconRefreshJob recomputes the reconciliation dashboard and warms the
// snapshot cache so interactive reads stay cheap.
type ReconRefreshJob struct {
	Recon   *recon.Service
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// NewReconRefreshJob wires dependencies for the refresh handler.
func NewReconRefreshJob(reconSvc *recon.Service, logger *slog.Logger, metrics *observability.Metrics) *ReconRefreshJob {
	return &ReconRefreshJob{Recon: reconSvc, Logger: logger, Metrics: metrics}
}

// Handle processes recon refresh tasks.
func (j *ReconRefreshJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Recon == nil {
		return errors.New("recon refresh: handler not configured")
	}

	refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	logger := j.logger()
	start := time.Now()
	dashboard, err := j.Recon.Refresh(refreshCtx)
	if err != nil {
		j.Metrics.CountJob(TaskReconRefresh, "error")
		logger.Error("refresh dashboard snapshot", slog.Any("error", err))
		return err
	}

	j.Metrics.CountJob(TaskReconRefresh, "ok")
	logger.Info("refreshed dashboard snapshot",
		slog.String("paid_amount", dashboard.PaidAmount.String()),
		slog.String("pending_amount", dashboard.PendingAmount.String()),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *ReconRefreshJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReconRefresh))
	}
	return slog.Default().With(slog.String("job", TaskReconRefresh))
}
