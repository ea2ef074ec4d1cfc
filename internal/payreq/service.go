package payreq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lodestar-scm/lodestar/internal/observability"
	"github.com/lodestar-scm/lodestar/internal/shared"
	"github.com/lodestar-scm/lodestar/internal/sourcing"
)

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the payment request lifecycle.
type Service struct {
	repo        Repository
	sources     sourcing.Gateway
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	logger      *slog.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

// NewService constructs a Service. audit and idem may be nil.
func NewService(repo Repository, sources sourcing.Gateway, audit AuditPort, idem *shared.IdempotencyStore, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		repo:        repo,
		sources:     sources,
		audit:       audit,
		idempotency: idem,
		logger:      logger,
		metrics:     metrics,
		now:         time.Now,
	}
}

// releaseIdempotencyKey frees a reserved key after a failed create so the
// caller can retry with the same key.
func (s *Service) releaseIdempotencyKey(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	_ = s.idempotency.Delete(ctx, key)
}

// recordAudit writes a best-effort trail entry; audit failures never fail
// the business operation.
func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, request PaymentRequest) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment_request",
		EntityID: request.ID.String(),
		Meta: map[string]any{
			"number":       request.Number,
			"source_type":  string(request.SourceType),
			"source_id":    request.SourceID,
			"payment_type": string(request.PaymentType),
			"amount":       request.Amount.String(),
		},
	})
}

// DateOnly strips the time-of-day component; all lifecycle dates are
// calendar dates.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Create opens a new Requested payment request. The source record must
// exist, its slot for the payment type must not already be settled, and
// there must be no open request for the same key.
func (s *Service) Create(ctx context.Context, input CreateInput) (PaymentRequest, error) {
	if !input.SourceType.Valid() || !input.PaymentType.Valid() {
		return PaymentRequest{}, ErrInvalidPaymentType
	}
	if !input.PaymentType.AppliesTo(input.SourceType) {
		return PaymentRequest{}, ErrInvalidPaymentType
	}
	if !input.Amount.IsPositive() {
		return PaymentRequest{}, ErrInvalidAmount
	}

	// A slot whose payment date is already set is settled; opening a new
	// request for it would count the amount as both paid and pending.
	var paidOn *time.Time
	switch input.SourceType {
	case SourcePurchaseOrder:
		po, err := s.sources.GetPurchaseOrder(ctx, input.SourceID)
		if err != nil {
			return PaymentRequest{}, fmt.Errorf("load purchase order %d: %w", input.SourceID, err)
		}
		switch input.PaymentType {
		case PaymentAdvance:
			paidOn = po.AdvancePaymentDate
		case PaymentBalance:
			paidOn = po.BalancePaymentDate
		}
	case SourcePackingList:
		pl, err := s.sources.GetPackingList(ctx, input.SourceID)
		if err != nil {
			return PaymentRequest{}, fmt.Errorf("load packing list %d: %w", input.SourceID, err)
		}
		paidOn = pl.PaymentDate
	}
	if paidOn != nil {
		return PaymentRequest{}, fmt.Errorf("%w: %s on %s %d already paid on %s",
			ErrStateConflict, input.PaymentType, input.SourceType, input.SourceID, paidOn.Format("2006-01-02"))
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "payreq.create"); err != nil {
			return PaymentRequest{}, err
		}
	}

	key := Key{SourceType: input.SourceType, SourceID: input.SourceID, PaymentType: input.PaymentType}
	active, err := s.repo.HasActive(ctx, key)
	if err != nil {
		s.releaseIdempotencyKey(ctx, input.IdempotencyKey)
		return PaymentRequest{}, err
	}
	if active {
		s.releaseIdempotencyKey(ctx, input.IdempotencyKey)
		return PaymentRequest{}, ErrDuplicateRequest
	}

	request := PaymentRequest{
		ID:          uuid.New(),
		SourceType:  input.SourceType,
		SourceID:    input.SourceID,
		PaymentType: input.PaymentType,
		Amount:      input.Amount,
		Status:      StatusRequested,
		RequestDate: DateOnly(s.now()),
		RequestedBy: input.RequestedBy,
		Memo:        input.Memo,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextRequestNumber(ctx, request.RequestDate)
		if err != nil {
			return err
		}
		request.Number = number
		return tx.Insert(ctx, request)
	})
	if err != nil {
		s.releaseIdempotencyKey(ctx, input.IdempotencyKey)
		return PaymentRequest{}, err
	}

	s.metrics.CountRequestTransition("created")
	s.recordAudit(ctx, input.RequestedBy, "payreq.create", request)
	s.logger.Info("payment request created",
		slog.String("number", request.Number),
		slog.String("key", key.String()),
		slog.String("amount", request.Amount.String()))
	return s.repo.Get(ctx, request.ID)
}

// Complete marks a Requested request as paid on the given date and writes
// the date through to the source record. Both writes share one
// transaction, so a failed write-through rolls the status change back.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, paymentDate time.Time, completedBy int64) (PaymentRequest, error) {
	paymentDate = DateOnly(paymentDate)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockByIDs(ctx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return ErrNotFound
		}
		request := locked[0]
		ok, err := tx.CompleteRequest(ctx, id, paymentDate, completedBy)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s is %s", ErrStateConflict, request.Number, request.Status)
		}
		return tx.SetSourcePaymentDate(ctx, request.Key(), &paymentDate)
	})
	if err != nil {
		return PaymentRequest{}, err
	}

	s.metrics.CountRequestTransition("completed")
	completed, err := s.repo.Get(ctx, id)
	if err == nil {
		s.recordAudit(ctx, completedBy, "payreq.complete", completed)
	}
	return completed, err
}

// Revert puts a Completed request back into Requested state and clears the
// source record's payment date, restoring the pre-complete state.
func (s *Service) Revert(ctx context.Context, id uuid.UUID) (PaymentRequest, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockByIDs(ctx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return ErrNotFound
		}
		request := locked[0]
		ok, err := tx.RevertRequest(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s is %s", ErrStateConflict, request.Number, request.Status)
		}
		return tx.SetSourcePaymentDate(ctx, request.Key(), nil)
	})
	if err != nil {
		return PaymentRequest{}, err
	}

	s.metrics.CountRequestTransition("reverted")
	reverted, err := s.repo.Get(ctx, id)
	if err == nil {
		s.recordAudit(ctx, shared.ActorFromContext(ctx), "payreq.revert", reverted)
	}
	return reverted, err
}

// Delete removes a request that is still in Requested state. Completed
// requests must be reverted first so the source record's payment date
// never outlives its request silently.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted PaymentRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockByIDs(ctx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return ErrNotFound
		}
		if locked[0].Status != StatusRequested {
			return fmt.Errorf("%w: revert %s before deleting", ErrStateConflict, locked[0].Number)
		}
		ok, err := tx.DeleteRequested(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStateConflict
		}
		deleted = locked[0]
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, shared.ActorFromContext(ctx), "payreq.delete", deleted)
	return nil
}

// BatchComplete applies Complete semantics to every id currently in
// Requested state and reports how many rows transitioned. Ids already
// Completed are skipped on purpose: re-running a day's settlement must be
// idempotent, not an error.
func (s *Service) BatchComplete(ctx context.Context, ids []uuid.UUID, paymentDate time.Time, completedBy int64) (int64, error) {
	paymentDate = DateOnly(paymentDate)
	var affected int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		affected = 0
		locked, err := tx.LockByIDs(ctx, ids)
		if err != nil {
			return err
		}
		for _, request := range locked {
			if request.Status != StatusRequested {
				continue
			}
			ok, err := tx.CompleteRequest(ctx, request.ID, paymentDate, completedBy)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := tx.SetSourcePaymentDate(ctx, request.Key(), &paymentDate); err != nil {
				return err
			}
			affected++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.metrics.CountBatch("complete", affected)
	return affected, nil
}

// BatchRevert applies Revert semantics to every id currently in Completed
// state, skipping the rest. Symmetric to BatchComplete.
func (s *Service) BatchRevert(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var affected int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		affected = 0
		locked, err := tx.LockByIDs(ctx, ids)
		if err != nil {
			return err
		}
		for _, request := range locked {
			if request.Status != StatusCompleted {
				continue
			}
			ok, err := tx.RevertRequest(ctx, request.ID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := tx.SetSourcePaymentDate(ctx, request.Key(), nil); err != nil {
				return err
			}
			affected++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.metrics.CountBatch("revert", affected)
	return affected, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (PaymentRequest, error) {
	return s.repo.Get(ctx, id)
}

// List returns requests matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PaymentRequest, error) {
	return s.repo.List(ctx, filter)
}

// ListBySource returns all requests against one source record, optionally
// narrowed to a payment type, newest first.
func (s *Service) ListBySource(ctx context.Context, sourceType SourceType, sourceID int64, paymentType PaymentType) ([]PaymentRequest, error) {
	return s.repo.ListBySource(ctx, sourceType, sourceID, paymentType)
}
