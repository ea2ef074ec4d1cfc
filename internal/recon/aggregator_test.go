package recon

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lodestar-scm/lodestar/internal/payreq"
	"github.com/lodestar-scm/lodestar/internal/sourcing"
)

func d(v string) decimal.Decimal {
	dec, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return dec
}

func datePtr(y int, m time.Month, day int) *time.Time {
	t := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func testOrder(id int64) sourcing.PurchaseOrder {
	return sourcing.PurchaseOrder{
		ID:             id,
		Number:         "PO-1",
		OrderDate:      time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		UnitPrice:      d("10"),
		BackMargin:     d("2"),
		Quantity:       d("100"),
		CommissionRate: d("5"),
		AdvanceRate:    d("30"),
		AdvanceAmount:  d("360"),
		BalanceAmount:  d("904"),
	}
}

func requireBreakdownSums(t *testing.T, dash Dashboard) {
	t.Helper()
	require.True(t, dash.PaidDetail.Total().Equal(dash.PaidAmount), "paid: %s vs %s", dash.PaidDetail.Total(), dash.PaidAmount)
	require.True(t, dash.PendingDetail.Total().Equal(dash.PendingAmount))
	require.True(t, dash.RequestedDetail.Total().Equal(dash.RequestedAmount))
	require.True(t, dash.AdminPaidDetail.Total().Equal(dash.AdminPaidAmount))
	require.True(t, dash.AdminPendingDetail.Total().Equal(dash.AdminPendingAmount))
}

func TestAggregatePaidFromSourceDatesOnly(t *testing.T) {
	po := testOrder(1)
	po.AdvancePaymentDate = datePtr(2025, 3, 1)

	pl := sourcing.PackingList{
		ID: 3, Number: "PL-1",
		ShipDate:     time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC),
		ShippingCost: d("91"),
		PaymentDate:  datePtr(2025, 3, 2),
	}

	// Two historical completed requests against the advance slot; paid
	// totals must still count the source amount exactly once.
	completed := func() payreq.PaymentRequest {
		paid := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		return payreq.PaymentRequest{
			ID: uuid.New(), SourceType: payreq.SourcePurchaseOrder, SourceID: 1,
			PaymentType: payreq.PaymentAdvance, Amount: d("360"),
			Status: payreq.StatusCompleted, PaymentDate: &paid,
			RequestDate: time.Date(2025, 2, 25, 0, 0, 0, 0, time.UTC),
		}
	}
	snap := Snapshot{
		PurchaseOrders: []sourcing.PurchaseOrder{po},
		PackingLists:   []sourcing.PackingList{pl},
		Requests:       []payreq.PaymentRequest{completed(), completed()},
	}

	dash := Aggregate(snap, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	requireBreakdownSums(t, dash)

	require.True(t, dash.PaidDetail.Advance.Equal(d("360")))
	require.True(t, dash.PaidDetail.Shipping.Equal(d("91")))
	require.True(t, dash.PaidAmount.Equal(d("451")))

	// The unpaid balance has no request yet, so it is pending.
	require.True(t, dash.PendingDetail.Balance.Equal(d("904")))
	require.True(t, dash.PendingDetail.Advance.IsZero())
}

func TestAggregatePendingCountsOpenRequestsOnce(t *testing.T) {
	po := testOrder(1)
	open := payreq.PaymentRequest{
		ID: uuid.New(), SourceType: payreq.SourcePurchaseOrder, SourceID: 1,
		PaymentType: payreq.PaymentAdvance, Amount: d("360"),
		Status:      payreq.StatusRequested,
		RequestDate: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
	}
	snap := Snapshot{
		PurchaseOrders: []sourcing.PurchaseOrder{po},
		Requests:       []payreq.PaymentRequest{open},
	}

	dash := Aggregate(snap, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	requireBreakdownSums(t, dash)

	// The advance amount appears once, via the open request, not a second
	// time as an uninitiated source amount.
	require.True(t, dash.PendingDetail.Advance.Equal(d("360")))
	require.True(t, dash.PendingDetail.Balance.Equal(d("904")))
	require.True(t, dash.RequestedDetail.Advance.Equal(d("360")))
	require.True(t, dash.PaidAmount.IsZero())
}

func TestAggregateRequestedToDateExcludesFuture(t *testing.T) {
	today := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	past := payreq.PaymentRequest{
		ID: uuid.New(), SourceType: payreq.SourcePackingList, SourceID: 4,
		PaymentType: payreq.PaymentShipping, Amount: d("50"),
		Status: payreq.StatusRequested, RequestDate: today.AddDate(0, 0, -1),
	}
	future := payreq.PaymentRequest{
		ID: uuid.New(), SourceType: payreq.SourcePackingList, SourceID: 5,
		PaymentType: payreq.PaymentShipping, Amount: d("70"),
		Status: payreq.StatusRequested, RequestDate: today.AddDate(0, 0, 3),
	}
	snap := Snapshot{Requests: []payreq.PaymentRequest{past, future}}

	dash := Aggregate(snap, today)
	requireBreakdownSums(t, dash)
	require.True(t, dash.RequestedAmount.Equal(d("50")))
	// Both still count as pending work.
	require.True(t, dash.PendingDetail.Shipping.Equal(d("120")))
}

func TestAggregateAdminBuckets(t *testing.T) {
	paid := testOrder(1)
	paid.AdminCostPaid = true
	paid.AdminCostPaidDate = datePtr(2025, 3, 1)

	unpaid := testOrder(2)
	unpaid.OptionCostItems = []sourcing.CostItem{
		{Name: "fitting", Cost: d("30"), AdminOnly: true},
		{Name: "packing", Cost: d("20")},
	}

	override := testOrder(3)
	adminTotal := d("500")
	override.AdminTotalCost = &adminTotal

	pl := sourcing.PackingList{ID: 9, ShippingCostDifference: d("12")}

	snap := Snapshot{
		PurchaseOrders: []sourcing.PurchaseOrder{paid, unpaid, override},
		PackingLists:   []sourcing.PackingList{pl},
	}
	dash := Aggregate(snap, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	requireBreakdownSums(t, dash)

	// back_margin*qty = 200 for each order without an override.
	require.True(t, dash.AdminPaidDetail.BackMargin.Equal(d("200")))
	// 200 + admin-only item 30, plus the 500 override.
	require.True(t, dash.AdminPendingDetail.BackMargin.Equal(d("730")))
	require.True(t, dash.AdminPendingDetail.ShippingDifference.Equal(d("12")))
	require.True(t, dash.AdminPendingAmount.Equal(d("742")))
}

func TestBuildHistoryJoinsLatestRequest(t *testing.T) {
	po := testOrder(1)
	po.AdvancePaymentDate = datePtr(2025, 3, 1)

	older := payreq.PaymentRequest{
		ID: uuid.New(), Number: "PR-OLD", SourceType: payreq.SourcePurchaseOrder,
		SourceID: 1, PaymentType: payreq.PaymentAdvance, Amount: d("360"),
		Status: payreq.StatusCompleted, RequestDate: time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC),
	}
	newer := payreq.PaymentRequest{
		ID: uuid.New(), Number: "PR-NEW", SourceType: payreq.SourcePurchaseOrder,
		SourceID: 1, PaymentType: payreq.PaymentAdvance, Amount: d("360"),
		Status: payreq.StatusCompleted, RequestDate: time.Date(2025, 2, 25, 0, 0, 0, 0, time.UTC),
	}
	snap := Snapshot{
		PurchaseOrders: []sourcing.PurchaseOrder{po},
		Requests:       []payreq.PaymentRequest{older, newer},
	}

	rows := BuildHistory(snap, HistoryFilter{SourceType: payreq.SourcePurchaseOrder})
	require.Len(t, rows, 2)

	var advance HistoryRow
	for _, row := range rows {
		if row.PaymentType == payreq.PaymentAdvance {
			advance = row
		}
	}
	require.Equal(t, "PR-NEW", advance.RequestNumber)
	require.True(t, advance.Paid)

	paidOnly := BuildHistory(snap, HistoryFilter{State: StatePaid})
	require.Len(t, paidOnly, 1)
	require.Equal(t, payreq.PaymentAdvance, paidOnly[0].PaymentType)

	unpaidOnly := BuildHistory(snap, HistoryFilter{State: StateUnpaid})
	require.Len(t, unpaidOnly, 1)
	require.Equal(t, payreq.PaymentBalance, unpaidOnly[0].PaymentType)

	searched := BuildHistory(snap, HistoryFilter{Search: "pr-new"})
	require.Len(t, searched, 1)
}
