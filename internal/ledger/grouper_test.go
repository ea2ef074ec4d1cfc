package ledger

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/lodestar-scm/lodestar/internal/payreq"
)

func d(v string) decimal.Decimal {
	dec, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return dec
}

func request(number string, day time.Time, paymentType payreq.PaymentType, amount string, status payreq.RequestStatus) payreq.PaymentRequest {
	r := payreq.PaymentRequest{
		ID:          uuid.New(),
		Number:      number,
		SourceType:  payreq.SourcePurchaseOrder,
		SourceID:    1,
		PaymentType: paymentType,
		Amount:      d(amount),
		Status:      status,
		RequestDate: day,
	}
	if status == payreq.StatusCompleted {
		paid := day.AddDate(0, 0, 1)
		r.PaymentDate = &paid
	}
	return r
}

func TestGroupByDateBucketsByCalendarDay(t *testing.T) {
	day1 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)

	groups := GroupByDate([]payreq.PaymentRequest{
		request("PR-3", day2, payreq.PaymentShipping, "50", payreq.StatusCompleted),
		request("PR-1", day1, payreq.PaymentAdvance, "360", payreq.StatusRequested),
		request("PR-2", day1, payreq.PaymentBalance, "904", payreq.StatusCompleted),
	})

	require.Len(t, groups, 2)
	// Newest day first.
	require.Equal(t, day2, groups[0].Date)
	require.Equal(t, day1, groups[1].Date)

	require.True(t, groups[0].AllCompleted)
	require.True(t, groups[0].Totals.Shipping.Equal(d("50")))
	require.True(t, groups[0].Totals.Total().Equal(d("50")))

	require.False(t, groups[1].AllCompleted)
	require.Len(t, groups[1].Items, 2)
	require.Equal(t, "PR-1", groups[1].Items[0].Number)
	require.True(t, groups[1].Totals.Advance.Equal(d("360")))
	require.True(t, groups[1].Totals.Balance.Equal(d("904")))
	require.True(t, groups[1].Totals.Total().Equal(d("1264")))
}

func TestGroupByDateIgnoresTimeOfDay(t *testing.T) {
	morning := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2025, 3, 10, 22, 30, 0, 0, time.UTC)

	groups := GroupByDate([]payreq.PaymentRequest{
		request("PR-1", morning, payreq.PaymentAdvance, "10", payreq.StatusRequested),
		request("PR-2", evening, payreq.PaymentAdvance, "20", payreq.StatusRequested),
	})

	require.Len(t, groups, 1)
	require.True(t, groups[0].Totals.Advance.Equal(d("30")))
}

func TestGroupByDateEmpty(t *testing.T) {
	require.Empty(t, GroupByDate(nil))
}
