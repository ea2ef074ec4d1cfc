package recon

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lodestar-scm/lodestar/internal/payreq"
)

// PaymentState filters history rows by settlement state.
type PaymentState string

const (
	StateAny    PaymentState = ""
	StatePaid   PaymentState = "paid"
	StateUnpaid PaymentState = "unpaid"
)

// HistoryFilter narrows the payment history view.
type HistoryFilter struct {
	SourceType payreq.SourceType
	State      PaymentState
	FromDate   *time.Time
	ToDate     *time.Time
	Search     string
}

// HistoryRow joins one payable amount on a source record with the state of
// its payment request, if any.
type HistoryRow struct {
	SourceType    payreq.SourceType    `json:"source_type"`
	SourceID      int64                `json:"source_id"`
	SourceNumber  string               `json:"source_number"`
	SourceDate    time.Time            `json:"source_date"`
	PaymentType   payreq.PaymentType   `json:"payment_type"`
	Amount        decimal.Decimal      `json:"amount"`
	Paid          bool                 `json:"paid"`
	PaymentDate   *time.Time           `json:"payment_date,omitempty"`
	RequestStatus payreq.RequestStatus `json:"request_status,omitempty"`
	RequestNumber string               `json:"request_number,omitempty"`
	RequestDate   *time.Time           `json:"request_date,omitempty"`
}

// BuildHistory flattens the snapshot into per-installment rows with the
// latest request for each slot joined on. Pure; never mutates the snapshot.
func BuildHistory(snap Snapshot, filter HistoryFilter) []HistoryRow {
	latest := make(map[payreq.Key]payreq.PaymentRequest)
	for _, request := range snap.Requests {
		key := request.Key()
		if current, ok := latest[key]; !ok || request.RequestDate.After(current.RequestDate) {
			latest[key] = request
		}
	}

	var rows []HistoryRow
	appendRow := func(row HistoryRow) {
		if request, ok := latest[payreq.Key{SourceType: row.SourceType, SourceID: row.SourceID, PaymentType: row.PaymentType}]; ok {
			row.RequestStatus = request.Status
			row.RequestNumber = request.Number
			d := request.RequestDate
			row.RequestDate = &d
		}
		rows = append(rows, row)
	}

	if filter.SourceType == "" || filter.SourceType == payreq.SourcePurchaseOrder {
		for _, po := range snap.PurchaseOrders {
			appendRow(HistoryRow{
				SourceType:   payreq.SourcePurchaseOrder,
				SourceID:     po.ID,
				SourceNumber: po.Number,
				SourceDate:   po.OrderDate,
				PaymentType:  payreq.PaymentAdvance,
				Amount:       po.EffectiveAdvanceAmount(),
				Paid:         po.AdvancePaymentDate != nil,
				PaymentDate:  po.AdvancePaymentDate,
			})
			appendRow(HistoryRow{
				SourceType:   payreq.SourcePurchaseOrder,
				SourceID:     po.ID,
				SourceNumber: po.Number,
				SourceDate:   po.OrderDate,
				PaymentType:  payreq.PaymentBalance,
				Amount:       po.EffectiveBalanceAmount(),
				Paid:         po.BalancePaymentDate != nil,
				PaymentDate:  po.BalancePaymentDate,
			})
		}
	}
	if filter.SourceType == "" || filter.SourceType == payreq.SourcePackingList {
		for _, pl := range snap.PackingLists {
			appendRow(HistoryRow{
				SourceType:   payreq.SourcePackingList,
				SourceID:     pl.ID,
				SourceNumber: pl.Number,
				SourceDate:   pl.ShipDate,
				PaymentType:  payreq.PaymentShipping,
				Amount:       pl.ShippingCost,
				Paid:         pl.PaymentDate != nil,
				PaymentDate:  pl.PaymentDate,
			})
		}
	}

	filtered := rows[:0]
	for _, row := range rows {
		if filter.State == StatePaid && !row.Paid {
			continue
		}
		if filter.State == StateUnpaid && row.Paid {
			continue
		}
		if filter.FromDate != nil && row.SourceDate.Before(*filter.FromDate) {
			continue
		}
		if filter.ToDate != nil && row.SourceDate.After(*filter.ToDate) {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(row.SourceNumber), needle) &&
				!strings.Contains(strings.ToLower(row.RequestNumber), needle) {
				continue
			}
		}
		filtered = append(filtered, row)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if !filtered[i].SourceDate.Equal(filtered[j].SourceDate) {
			return filtered[i].SourceDate.After(filtered[j].SourceDate)
		}
		return filtered[i].SourceID > filtered[j].SourceID
	})
	return filtered
}
