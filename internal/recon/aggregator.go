// Package recon computes reconciliation dashboard totals from one
// consistent snapshot of payment requests and source records. Totals are
// always recomputed wholesale; nothing here keeps running sums, so the
// dashboard can never drift from the source-of-truth fields.
package recon

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/lodestar-scm/lodestar/internal/payreq"
	"github.com/lodestar-scm/lodestar/internal/sourcing"
)

// Snapshot is one consistent read of everything the aggregator needs.
type Snapshot struct {
	PurchaseOrders []sourcing.PurchaseOrder `json:"purchase_orders"`
	PackingLists   []sourcing.PackingList   `json:"packing_lists"`
	Requests       []payreq.PaymentRequest  `json:"requests"`
}

// Breakdown splits a total by payment type. The sum of the parts must
// equal the reported total; Aggregate only ever derives totals from the
// parts so the two cannot diverge.
type Breakdown struct {
	Advance  decimal.Decimal `json:"advance"`
	Balance  decimal.Decimal `json:"balance"`
	Shipping decimal.Decimal `json:"shipping"`
}

// Total sums the breakdown.
func (b Breakdown) Total() decimal.Decimal {
	return b.Advance.Add(b.Balance).Add(b.Shipping)
}

// AdminBreakdown splits admin-billable totals by origin.
type AdminBreakdown struct {
	BackMargin         decimal.Decimal `json:"back_margin"`
	ShippingDifference decimal.Decimal `json:"shipping_difference"`
}

// Total sums the breakdown.
func (b AdminBreakdown) Total() decimal.Decimal {
	return b.BackMargin.Add(b.ShippingDifference)
}

// Dashboard is the reconciliation summary shown on the back-office home.
type Dashboard struct {
	PaidAmount      decimal.Decimal `json:"paid_amount"`
	PaidDetail      Breakdown       `json:"paid_detail"`
	PendingAmount   decimal.Decimal `json:"pending_amount"`
	PendingDetail   Breakdown       `json:"pending_detail"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	RequestedDetail Breakdown       `json:"requested_detail"`

	AdminPendingAmount decimal.Decimal `json:"admin_pending_amount"`
	AdminPendingDetail AdminBreakdown  `json:"admin_pending_detail"`
	AdminPaidAmount    decimal.Decimal `json:"admin_paid_amount"`
	AdminPaidDetail    AdminBreakdown  `json:"admin_paid_detail"`

	GeneratedAt time.Time `json:"generated_at"`
}

// Aggregate computes the dashboard from a snapshot. Paid totals come from
// the source-record date fields alone: complete() always writes those
// through, and counting them instead of request rows prevents double
// counting when a slot has more than one historical request.
func Aggregate(snap Snapshot, today time.Time) Dashboard {
	var out Dashboard
	out.GeneratedAt = today
	today = payreq.DateOnly(today)

	activeByKey := make(map[payreq.Key]bool)
	for _, request := range snap.Requests {
		if request.Status == payreq.StatusRequested {
			activeByKey[request.Key()] = true
		}
	}

	for _, po := range snap.PurchaseOrders {
		advance := po.EffectiveAdvanceAmount()
		balance := po.EffectiveBalanceAmount()

		if po.AdvancePaymentDate != nil {
			out.PaidDetail.Advance = out.PaidDetail.Advance.Add(advance)
		} else if !activeByKey[poKey(po.ID, payreq.PaymentAdvance)] {
			// Unpaid and nothing requested yet: still owed.
			out.PendingDetail.Advance = out.PendingDetail.Advance.Add(advance)
		}
		if po.BalancePaymentDate != nil {
			out.PaidDetail.Balance = out.PaidDetail.Balance.Add(balance)
		} else if !activeByKey[poKey(po.ID, payreq.PaymentBalance)] {
			out.PendingDetail.Balance = out.PendingDetail.Balance.Add(balance)
		}

		admin := po.AdminBillableAmount()
		if po.AdminCostPaid {
			out.AdminPaidDetail.BackMargin = out.AdminPaidDetail.BackMargin.Add(admin)
		} else {
			out.AdminPendingDetail.BackMargin = out.AdminPendingDetail.BackMargin.Add(admin)
		}
	}

	for _, pl := range snap.PackingLists {
		if pl.PaymentDate != nil {
			out.PaidDetail.Shipping = out.PaidDetail.Shipping.Add(pl.ShippingCost)
		} else if !activeByKey[plKey(pl.ID)] {
			out.PendingDetail.Shipping = out.PendingDetail.Shipping.Add(pl.ShippingCost)
		}

		admin := pl.AdminBillableAmount()
		if pl.AdminCostPaid {
			out.AdminPaidDetail.ShippingDifference = out.AdminPaidDetail.ShippingDifference.Add(admin)
		} else {
			out.AdminPendingDetail.ShippingDifference = out.AdminPendingDetail.ShippingDifference.Add(admin)
		}
	}

	for _, request := range snap.Requests {
		if request.Status != payreq.StatusRequested {
			continue
		}
		addToBreakdown(&out.PendingDetail, request.PaymentType, request.Amount)
		if !payreq.DateOnly(request.RequestDate).After(today) {
			addToBreakdown(&out.RequestedDetail, request.PaymentType, request.Amount)
		}
	}

	out.PaidAmount = out.PaidDetail.Total()
	out.PendingAmount = out.PendingDetail.Total()
	out.RequestedAmount = out.RequestedDetail.Total()
	out.AdminPaidAmount = out.AdminPaidDetail.Total()
	out.AdminPendingAmount = out.AdminPendingDetail.Total()
	return out
}

func addToBreakdown(b *Breakdown, paymentType payreq.PaymentType, amount decimal.Decimal) {
	switch paymentType {
	case payreq.PaymentAdvance:
		b.Advance = b.Advance.Add(amount)
	case payreq.PaymentBalance:
		b.Balance = b.Balance.Add(amount)
	case payreq.PaymentShipping:
		b.Shipping = b.Shipping.Add(amount)
	}
}

func poKey(id int64, paymentType payreq.PaymentType) payreq.Key {
	return payreq.Key{SourceType: payreq.SourcePurchaseOrder, SourceID: id, PaymentType: paymentType}
}

func plKey(id int64) payreq.Key {
	return payreq.Key{SourceType: payreq.SourcePackingList, SourceID: id, PaymentType: payreq.PaymentShipping}
}
