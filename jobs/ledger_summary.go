package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/lodestar-scm/lodestar/internal/ledger"
	"github.com/lodestar-scm/lodestar/internal/observability"
	"github.com/lodestar-scm/lodestar/internal/payreq"
)

// LedgerSummaryJob walks the day ledger and reports which request days are
// still carrying open requests, with their outstanding totals.
type LedgerSummaryJob struct {
	Processor *ledger.Processor
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// NewLedgerSummaryJob wires dependencies for the summary handler.
func NewLedgerSummaryJob(processor *ledger.Processor, logger *slog.Logger, metrics *observability.Metrics) *LedgerSummaryJob {
	return &LedgerSummaryJob{Processor: processor, Logger: logger, Metrics: metrics}
}

// Handle processes ledger summary tasks.
func (j *LedgerSummaryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Processor == nil {
		return errors.New("ledger summary: handler not configured")
	}

	summaryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	logger := j.logger()
	groups, err := j.Processor.Groups(summaryCtx)
	if err != nil {
		j.Metrics.CountJob(TaskLedgerSummary, "error")
		logger.Error("build ledger groups", slog.Any("error", err))
		return err
	}

	openDays := 0
	openTotal := decimal.Zero
	for _, group := range groups {
		if group.AllCompleted {
			continue
		}
		openDays++
		dayOpen := decimal.Zero
		openItems := 0
		for _, item := range group.Items {
			if item.Status == payreq.StatusCompleted {
				continue
			}
			openItems++
			dayOpen = dayOpen.Add(item.Amount)
		}
		openTotal = openTotal.Add(dayOpen)
		logger.Info("open ledger day",
			slog.String("date", group.Date.Format("2006-01-02")),
			slog.Int("open_items", openItems),
			slog.String("open_amount", dayOpen.String()))
	}

	j.Metrics.CountJob(TaskLedgerSummary, "ok")
	logger.Info("ledger summary",
		slog.Int("days", len(groups)),
		slog.Int("open_days", openDays),
		slog.String("open_total", openTotal.String()))
	return nil
}

func (j *LedgerSummaryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerSummary))
	}
	return slog.Default().With(slog.String("job", TaskLedgerSummary))
}
