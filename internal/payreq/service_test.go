package payreq

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lodestar-scm/lodestar/internal/sourcing"
	_ "github.com/lodestar-scm/lodestar/internal/testing/guard"
)

type memoryStore struct {
	requests     map[uuid.UUID]PaymentRequest
	orders       map[int64]sourcing.PurchaseOrder
	packingLists map[int64]sourcing.PackingList
	numberCursor int64
	failWrites   bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		requests:     make(map[uuid.UUID]PaymentRequest),
		orders:       make(map[int64]sourcing.PurchaseOrder),
		packingLists: make(map[int64]sourcing.PackingList),
	}
}

// memoryRepo implements Repository over the shared store. WithTx snapshots
// the store and restores it when the callback fails, mirroring a rollback.
type memoryRepo struct {
	store *memoryStore
}

type memoryTx struct {
	store *memoryStore
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	backupRequests := make(map[uuid.UUID]PaymentRequest, len(r.store.requests))
	for k, v := range r.store.requests {
		backupRequests[k] = v
	}
	backupOrders := make(map[int64]sourcing.PurchaseOrder, len(r.store.orders))
	for k, v := range r.store.orders {
		backupOrders[k] = v
	}
	backupLists := make(map[int64]sourcing.PackingList, len(r.store.packingLists))
	for k, v := range r.store.packingLists {
		backupLists[k] = v
	}
	if err := fn(ctx, &memoryTx{store: r.store}); err != nil {
		r.store.requests = backupRequests
		r.store.orders = backupOrders
		r.store.packingLists = backupLists
		return err
	}
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id uuid.UUID) (PaymentRequest, error) {
	request, ok := r.store.requests[id]
	if !ok {
		return PaymentRequest{}, ErrNotFound
	}
	return request, nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]PaymentRequest, error) {
	var out []PaymentRequest
	for _, request := range r.store.requests {
		if filter.Status != "" && request.Status != filter.Status {
			continue
		}
		if filter.SourceType != "" && request.SourceType != filter.SourceType {
			continue
		}
		if filter.PaymentType != "" && request.PaymentType != filter.PaymentType {
			continue
		}
		out = append(out, request)
	}
	return out, nil
}

func (r *memoryRepo) ListBySource(ctx context.Context, sourceType SourceType, sourceID int64, paymentType PaymentType) ([]PaymentRequest, error) {
	var out []PaymentRequest
	for _, request := range r.store.requests {
		if request.SourceType != sourceType || request.SourceID != sourceID {
			continue
		}
		if paymentType != "" && request.PaymentType != paymentType {
			continue
		}
		out = append(out, request)
	}
	return out, nil
}

func (r *memoryRepo) HasActive(ctx context.Context, key Key) (bool, error) {
	for _, request := range r.store.requests {
		if request.Key() == key && request.Status == StatusRequested {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) Insert(ctx context.Context, request PaymentRequest) error {
	for _, existing := range t.store.requests {
		if existing.Key() == request.Key() && existing.Status == StatusRequested {
			return ErrDuplicateRequest
		}
	}
	now := time.Now()
	request.CreatedAt = now
	request.UpdatedAt = now
	t.store.requests[request.ID] = request
	return nil
}

func (t *memoryTx) CompleteRequest(ctx context.Context, id uuid.UUID, paymentDate time.Time, completedBy int64) (bool, error) {
	request, ok := t.store.requests[id]
	if !ok || request.Status != StatusRequested {
		return false, nil
	}
	request.Status = StatusCompleted
	request.PaymentDate = &paymentDate
	request.CompletedBy = &completedBy
	request.UpdatedAt = time.Now()
	t.store.requests[id] = request
	return true, nil
}

func (t *memoryTx) RevertRequest(ctx context.Context, id uuid.UUID) (bool, error) {
	request, ok := t.store.requests[id]
	if !ok || request.Status != StatusCompleted {
		return false, nil
	}
	request.Status = StatusRequested
	request.PaymentDate = nil
	request.CompletedBy = nil
	request.UpdatedAt = time.Now()
	t.store.requests[id] = request
	return true, nil
}

func (t *memoryTx) DeleteRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	request, ok := t.store.requests[id]
	if !ok || request.Status != StatusRequested {
		return false, nil
	}
	delete(t.store.requests, id)
	return true, nil
}

func (t *memoryTx) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]PaymentRequest, error) {
	var out []PaymentRequest
	for _, id := range ids {
		if request, ok := t.store.requests[id]; ok {
			out = append(out, request)
		}
	}
	return out, nil
}

func (t *memoryTx) SetSourcePaymentDate(ctx context.Context, key Key, date *time.Time) error {
	if t.store.failWrites {
		return fmt.Errorf("%w: simulated failure", ErrSourceWrite)
	}
	switch key.PaymentType {
	case PaymentAdvance:
		po, ok := t.store.orders[key.SourceID]
		if !ok {
			return fmt.Errorf("%w: purchase order %d missing", ErrSourceWrite, key.SourceID)
		}
		po.AdvancePaymentDate = date
		t.store.orders[key.SourceID] = po
	case PaymentBalance:
		po, ok := t.store.orders[key.SourceID]
		if !ok {
			return fmt.Errorf("%w: purchase order %d missing", ErrSourceWrite, key.SourceID)
		}
		po.BalancePaymentDate = date
		t.store.orders[key.SourceID] = po
	case PaymentShipping:
		pl, ok := t.store.packingLists[key.SourceID]
		if !ok {
			return fmt.Errorf("%w: packing list %d missing", ErrSourceWrite, key.SourceID)
		}
		pl.PaymentDate = date
		t.store.packingLists[key.SourceID] = pl
	}
	return nil
}

func (t *memoryTx) NextRequestNumber(ctx context.Context, requestDate time.Time) (string, error) {
	t.store.numberCursor++
	return fmt.Sprintf("PR-%s-%04d", requestDate.Format("20060102"), t.store.numberCursor), nil
}

// memoryGateway serves reads over the same store.
type memoryGateway struct {
	store *memoryStore
}

func (g *memoryGateway) GetPurchaseOrder(ctx context.Context, id int64) (sourcing.PurchaseOrder, error) {
	po, ok := g.store.orders[id]
	if !ok {
		return sourcing.PurchaseOrder{}, sourcing.ErrNotFound
	}
	return po, nil
}

func (g *memoryGateway) ListPurchaseOrders(ctx context.Context, filter sourcing.ListFilter) ([]sourcing.PurchaseOrder, error) {
	var out []sourcing.PurchaseOrder
	for _, po := range g.store.orders {
		out = append(out, po)
	}
	return out, nil
}

func (g *memoryGateway) SetAdvancePaymentDate(ctx context.Context, id int64, date *time.Time) error {
	po, ok := g.store.orders[id]
	if !ok {
		return sourcing.ErrNotFound
	}
	po.AdvancePaymentDate = date
	g.store.orders[id] = po
	return nil
}

func (g *memoryGateway) SetBalancePaymentDate(ctx context.Context, id int64, date *time.Time) error {
	po, ok := g.store.orders[id]
	if !ok {
		return sourcing.ErrNotFound
	}
	po.BalancePaymentDate = date
	g.store.orders[id] = po
	return nil
}

func (g *memoryGateway) SetPurchaseOrderAdminCostPaid(ctx context.Context, id int64, paid bool, paidAt *time.Time) error {
	po, ok := g.store.orders[id]
	if !ok {
		return sourcing.ErrNotFound
	}
	po.AdminCostPaid = paid
	po.AdminCostPaidDate = paidAt
	g.store.orders[id] = po
	return nil
}

func (g *memoryGateway) GetPackingList(ctx context.Context, id int64) (sourcing.PackingList, error) {
	pl, ok := g.store.packingLists[id]
	if !ok {
		return sourcing.PackingList{}, sourcing.ErrNotFound
	}
	return pl, nil
}

func (g *memoryGateway) ListPackingLists(ctx context.Context, filter sourcing.ListFilter) ([]sourcing.PackingList, error) {
	var out []sourcing.PackingList
	for _, pl := range g.store.packingLists {
		out = append(out, pl)
	}
	return out, nil
}

func (g *memoryGateway) SetShippingPaymentDate(ctx context.Context, id int64, date *time.Time) error {
	pl, ok := g.store.packingLists[id]
	if !ok {
		return sourcing.ErrNotFound
	}
	pl.PaymentDate = date
	g.store.packingLists[id] = pl
	return nil
}

func (g *memoryGateway) SetPackingListAdminCostPaid(ctx context.Context, id int64, paid bool, paidAt *time.Time) error {
	pl, ok := g.store.packingLists[id]
	if !ok {
		return sourcing.ErrNotFound
	}
	pl.AdminCostPaid = paid
	pl.AdminCostPaidDate = paidAt
	g.store.packingLists[id] = pl
	return nil
}

func newTestService(store *memoryStore) *Service {
	svc := NewService(&memoryRepo{store: store}, &memoryGateway{store: store}, nil, nil, slog.Default(), nil)
	svc.now = func() time.Time {
		return time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	}
	return svc
}

func amount(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func seedOrder(store *memoryStore, id int64) {
	store.orders[id] = sourcing.PurchaseOrder{
		ID:        id,
		Number:    fmt.Sprintf("PO-%04d", id),
		OrderDate: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func seedPackingList(store *memoryStore, id int64) {
	store.packingLists[id] = sourcing.PackingList{
		ID:       id,
		Number:   fmt.Sprintf("PL-%04d", id),
		ShipDate: time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	seedOrder(store, 1)
	svc := newTestService(store)

	_, err := svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentAdvance, Amount: amount("0"), RequestedBy: 7,
	})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentAdvance, Amount: amount("-5"), RequestedBy: 7,
	})
	require.ErrorIs(t, err, ErrInvalidAmount)

	// Shipping settles packing lists, never purchase orders.
	_, err = svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentShipping, Amount: amount("10"), RequestedBy: 7,
	})
	require.ErrorIs(t, err, ErrInvalidPaymentType)

	_, err = svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 99,
		PaymentType: PaymentAdvance, Amount: amount("10"), RequestedBy: 7,
	})
	require.ErrorIs(t, err, sourcing.ErrNotFound)
}

func TestCreateRejectsDuplicateActive(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	seedOrder(store, 1)
	svc := newTestService(store)

	first, err := svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentAdvance, Amount: amount("360"), RequestedBy: 7,
	})
	require.NoError(t, err)
	require.Equal(t, StatusRequested, first.Status)
	require.Equal(t, "PR-20250310-0001", first.Number)
	require.Nil(t, first.PaymentDate)

	_, err = svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentAdvance, Amount: amount("360"), RequestedBy: 7,
	})
	require.ErrorIs(t, err, ErrDuplicateRequest)

	// A different payment type on the same source is a different slot.
	_, err = svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentBalance, Amount: amount("1049"), RequestedBy: 7,
	})
	require.NoError(t, err)
}

func TestCreateRejectsAlreadyPaidSlot(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	seedOrder(store, 1)
	seedPackingList(store, 3)
	svc := newTestService(store)

	paidOn := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	po := store.orders[1]
	po.AdvancePaymentDate = &paidOn
	store.orders[1] = po
	pl := store.packingLists[3]
	pl.PaymentDate = &paidOn
	store.packingLists[3] = pl

	// A request against a settled slot would count the same amount as both
	// paid (source date) and pending (open request).
	_, err := svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentAdvance, Amount: amount("360"), RequestedBy: 7,
	})
	require.ErrorIs(t, err, ErrStateConflict)

	_, err = svc.Create(ctx, CreateInput{
		SourceType: SourcePackingList, SourceID: 3,
		PaymentType: PaymentShipping, Amount: amount("91"), RequestedBy: 7,
	})
	require.ErrorIs(t, err, ErrStateConflict)

	// The balance slot is still open.
	created, err := svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentBalance, Amount: amount("1034"), RequestedBy: 7,
	})
	require.NoError(t, err)
	require.Equal(t, StatusRequested, created.Status)

	// Clearing the date reopens the slot.
	po = store.orders[1]
	po.AdvancePaymentDate = nil
	store.orders[1] = po
	_, err = svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentAdvance, Amount: amount("360"), RequestedBy: 7,
	})
	require.NoError(t, err)
}

func TestCompleteWritesThrough(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	seedOrder(store, 1)
	svc := newTestService(store)

	created, err := svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentAdvance, Amount: amount("360"), RequestedBy: 7,
	})
	require.NoError(t, err)

	paidOn := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	completed, err := svc.Complete(ctx, created.ID, paidOn, 9)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.PaymentDate)
	require.Equal(t, DateOnly(paidOn), *completed.PaymentDate)
	require.NotNil(t, completed.CompletedBy)
	require.Equal(t, int64(9), *completed.CompletedBy)

	po := store.orders[1]
	require.NotNil(t, po.AdvancePaymentDate)
	require.Equal(t, DateOnly(paidOn), *po.AdvancePaymentDate)

	// Completing twice conflicts.
	_, err = svc.Complete(ctx, created.ID, paidOn, 9)
	require.ErrorIs(t, err, ErrStateConflict)

	_, err = svc.Complete(ctx, uuid.New(), paidOn, 9)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCompleteRollsBackOnSourceWriteFailure(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	seedOrder(store, 1)
	svc := newTestService(store)

	created, err := svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentAdvance, Amount: amount("360"), RequestedBy: 7,
	})
	require.NoError(t, err)

	store.failWrites = true
	_, err = svc.Complete(ctx, created.ID, time.Now(), 9)
	require.ErrorIs(t, err, ErrSourceWrite)

	// The status change rolled back with the transaction.
	after, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRequested, after.Status)
	require.Nil(t, after.PaymentDate)
	require.Nil(t, store.orders[1].AdvancePaymentDate)
}

func TestRevertRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	seedPackingList(store, 3)
	svc := newTestService(store)

	created, err := svc.Create(ctx, CreateInput{
		SourceType: SourcePackingList, SourceID: 3,
		PaymentType: PaymentShipping, Amount: amount("91"), RequestedBy: 7,
	})
	require.NoError(t, err)

	_, err = svc.Revert(ctx, created.ID)
	require.ErrorIs(t, err, ErrStateConflict)

	completed, err := svc.Complete(ctx, created.ID, time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), 9)
	require.NoError(t, err)
	require.NotNil(t, store.packingLists[3].PaymentDate)

	reverted, err := svc.Revert(ctx, completed.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRequested, reverted.Status)
	require.Nil(t, reverted.PaymentDate)
	require.Nil(t, reverted.CompletedBy)
	require.Nil(t, store.packingLists[3].PaymentDate)
}

func TestDeleteOnlyRequested(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	seedOrder(store, 1)
	svc := newTestService(store)

	created, err := svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentAdvance, Amount: amount("360"), RequestedBy: 7,
	})
	require.NoError(t, err)

	_, err = svc.Complete(ctx, created.ID, time.Now(), 9)
	require.NoError(t, err)

	// Completed requests must be reverted before deletion so the source
	// payment date cannot silently outlive its request.
	err = svc.Delete(ctx, created.ID)
	require.ErrorIs(t, err, ErrStateConflict)

	_, err = svc.Revert(ctx, created.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, created.ID))

	err = svc.Delete(ctx, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBatchCompleteSkipsCompleted(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	seedOrder(store, 1)
	seedOrder(store, 2)
	seedPackingList(store, 3)
	svc := newTestService(store)

	a, err := svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentAdvance, Amount: amount("100"), RequestedBy: 7,
	})
	require.NoError(t, err)
	b, err := svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 2,
		PaymentType: PaymentBalance, Amount: amount("200"), RequestedBy: 7,
	})
	require.NoError(t, err)
	c, err := svc.Create(ctx, CreateInput{
		SourceType: SourcePackingList, SourceID: 3,
		PaymentType: PaymentShipping, Amount: amount("50"), RequestedBy: 7,
	})
	require.NoError(t, err)

	paidOn := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	_, err = svc.Complete(ctx, a.ID, paidOn, 9)
	require.NoError(t, err)

	// The already-completed id is skipped, not an error, and its amount
	// is untouched.
	affected, err := svc.BatchComplete(ctx, []uuid.UUID{a.ID, b.ID, c.ID}, paidOn, 9)
	require.NoError(t, err)
	require.Equal(t, int64(2), affected)

	for _, id := range []uuid.UUID{a.ID, b.ID, c.ID} {
		request, err := svc.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, StatusCompleted, request.Status)
		require.NotNil(t, request.PaymentDate)
	}
	require.True(t, store.requests[a.ID].Amount.Equal(amount("100")))
	require.NotNil(t, store.orders[2].BalancePaymentDate)
	require.NotNil(t, store.packingLists[3].PaymentDate)

	// Re-running the batch is a no-op.
	affected, err = svc.BatchComplete(ctx, []uuid.UUID{a.ID, b.ID, c.ID}, paidOn, 9)
	require.NoError(t, err)
	require.Zero(t, affected)

	affected, err = svc.BatchRevert(ctx, []uuid.UUID{a.ID, b.ID, c.ID})
	require.NoError(t, err)
	require.Equal(t, int64(3), affected)
	require.Nil(t, store.orders[1].AdvancePaymentDate)
	require.Nil(t, store.orders[2].BalancePaymentDate)
	require.Nil(t, store.packingLists[3].PaymentDate)

	affected, err = svc.BatchRevert(ctx, []uuid.UUID{a.ID, b.ID, c.ID})
	require.NoError(t, err)
	require.Zero(t, affected)
}

func TestStatusPaymentDateInvariant(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	seedOrder(store, 1)
	svc := newTestService(store)

	created, err := svc.Create(ctx, CreateInput{
		SourceType: SourcePurchaseOrder, SourceID: 1,
		PaymentType: PaymentAdvance, Amount: amount("360"), RequestedBy: 7,
	})
	require.NoError(t, err)

	check := func() {
		for _, request := range store.requests {
			if request.Status == StatusCompleted {
				require.NotNil(t, request.PaymentDate)
			} else {
				require.Equal(t, StatusRequested, request.Status)
				require.Nil(t, request.PaymentDate)
			}
		}
	}

	check()
	_, err = svc.Complete(ctx, created.ID, time.Now(), 9)
	require.NoError(t, err)
	check()
	_, err = svc.Revert(ctx, created.ID)
	require.NoError(t, err)
	check()
}
