package payreq

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/lodestar-scm/lodestar/internal/testing/guard"
)

func TestFilterFromQuery(t *testing.T) {
	r := httptest.NewRequest("GET", "/payment-requests?status=REQUESTED&source_type=PURCHASE_ORDER&payment_type=ADVANCE&from=2025-03-01&to=2025-03-31&limit=20", nil)
	filter, err := filterFromQuery(r)
	require.NoError(t, err)
	require.Equal(t, StatusRequested, filter.Status)
	require.Equal(t, SourcePurchaseOrder, filter.SourceType)
	require.Equal(t, PaymentAdvance, filter.PaymentType)
	require.NotNil(t, filter.FromDate)
	require.NotNil(t, filter.ToDate)
	require.Equal(t, 20, filter.Limit)
}

func TestFilterFromQueryRejectsUnknownValues(t *testing.T) {
	for _, query := range []string{
		"status=PENDING",
		"source_type=INVOICE",
		"payment_type=REFUND",
		"from=03/01/2025",
		"to=yesterday",
		"limit=-1",
	} {
		r := httptest.NewRequest("GET", "/payment-requests?"+query, nil)
		_, err := filterFromQuery(r)
		require.Error(t, err, query)
	}
}
