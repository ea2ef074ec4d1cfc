package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lodestar-scm/lodestar/internal/payreq"
)

// RequestStore is the slice of the payment request service the processor
// drives.
type RequestStore interface {
	List(ctx context.Context, filter payreq.ListFilter) ([]payreq.PaymentRequest, error)
	BatchComplete(ctx context.Context, ids []uuid.UUID, paymentDate time.Time, completedBy int64) (int64, error)
	BatchRevert(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// Processor executes day-level bulk settlement over ledger groups.
type Processor struct {
	store  RequestStore
	logger *slog.Logger
	now    func() time.Time
}

// NewProcessor constructs a Processor.
func NewProcessor(store RequestStore, logger *slog.Logger) *Processor {
	return &Processor{store: store, logger: logger, now: time.Now}
}

// Groups rebuilds the full ledger from a fresh read.
func (p *Processor) Groups(ctx context.Context) ([]DateGroup, error) {
	requests, err := p.store.List(ctx, payreq.ListFilter{})
	if err != nil {
		return nil, err
	}
	return GroupByDate(requests), nil
}

// CompleteDay settles every still-Requested item in the given day's group,
// dating the payments today. Only the affected-row count is reported.
func (p *Processor) CompleteDay(ctx context.Context, date time.Time, completedBy int64) (int64, error) {
	ids, err := p.dayIDs(ctx, date, payreq.StatusRequested)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	affected, err := p.store.BatchComplete(ctx, ids, payreq.DateOnly(p.now()), completedBy)
	if err != nil {
		return 0, err
	}
	p.logger.Info("ledger day completed",
		slog.Time("date", payreq.DateOnly(date)),
		slog.Int64("affected", affected))
	return affected, nil
}

// RevertDay puts every Completed item in the day's group back into
// Requested state.
func (p *Processor) RevertDay(ctx context.Context, date time.Time) (int64, error) {
	ids, err := p.dayIDs(ctx, date, payreq.StatusCompleted)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	affected, err := p.store.BatchRevert(ctx, ids)
	if err != nil {
		return 0, err
	}
	p.logger.Info("ledger day reverted",
		slog.Time("date", payreq.DateOnly(date)),
		slog.Int64("affected", affected))
	return affected, nil
}

func (p *Processor) dayIDs(ctx context.Context, date time.Time, status payreq.RequestStatus) ([]uuid.UUID, error) {
	day := payreq.DateOnly(date)
	requests, err := p.store.List(ctx, payreq.ListFilter{
		Status:   status,
		FromDate: &day,
		ToDate:   &day,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(requests))
	for _, request := range requests {
		if payreq.DateOnly(request.RequestDate).Equal(day) {
			ids = append(ids, request.ID)
		}
	}
	return ids, nil
}
