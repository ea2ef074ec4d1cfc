package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconRefresh recomputes the reconciliation dashboard snapshot
	// and warms the cache.
	TaskReconRefresh = "recon:refresh"
	// TaskLedgerSummary logs the outstanding day-ledger state so operators
	// see unsettled days without opening the dashboard.
	TaskLedgerSummary = "ledger:summary"
	// TaskIdempotencyCleanup prunes expired idempotency keys so the table
	// does not grow without bound.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NewReconRefreshTask constructs a dashboard refresh task. The task
// carries no payload; the handler always recomputes from current state.
func NewReconRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskReconRefresh, nil)
}

// NewLedgerSummaryTask constructs a nightly ledger summary task.
func NewLedgerSummaryTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerSummary, nil)
}

// NewIdempotencyCleanupTask constructs an idempotency key pruning task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
