// Package ledger groups payment requests into calendar-day batches for
// day-level settlement and printable ledgers. Groups are always rebuilt
// from a fresh read; nothing here is patched incrementally.
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lodestar-scm/lodestar/internal/payreq"
)

// GroupTotals breaks a day's requested amounts down by payment type.
type GroupTotals struct {
	Advance  decimal.Decimal `json:"advance"`
	Balance  decimal.Decimal `json:"balance"`
	Shipping decimal.Decimal `json:"shipping"`
}

// Total sums the day across payment types.
func (t GroupTotals) Total() decimal.Decimal {
	return t.Advance.Add(t.Balance).Add(t.Shipping)
}

// DateGroup is one request date's batch of payment requests.
type DateGroup struct {
	Date         time.Time               `json:"date"`
	Items        []payreq.PaymentRequest `json:"items"`
	Totals       GroupTotals             `json:"totals"`
	AllCompleted bool                    `json:"all_completed"`
}

// GroupByDate buckets requests by calendar request date, newest day first.
// A group is AllCompleted only when every item in it is Completed.
func GroupByDate(requests []payreq.PaymentRequest) []DateGroup {
	byDate := make(map[time.Time]*DateGroup)
	for _, request := range requests {
		day := payreq.DateOnly(request.RequestDate)
		group, ok := byDate[day]
		if !ok {
			group = &DateGroup{Date: day, AllCompleted: true}
			byDate[day] = group
		}
		group.Items = append(group.Items, request)
		switch request.PaymentType {
		case payreq.PaymentAdvance:
			group.Totals.Advance = group.Totals.Advance.Add(request.Amount)
		case payreq.PaymentBalance:
			group.Totals.Balance = group.Totals.Balance.Add(request.Amount)
		case payreq.PaymentShipping:
			group.Totals.Shipping = group.Totals.Shipping.Add(request.Amount)
		}
		if request.Status != payreq.StatusCompleted {
			group.AllCompleted = false
		}
	}

	out := make([]DateGroup, 0, len(byDate))
	for _, group := range byDate {
		sort.SliceStable(group.Items, func(i, j int) bool {
			return group.Items[i].Number < group.Items[j].Number
		})
		out = append(out, *group)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}
