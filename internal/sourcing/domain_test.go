package sourcing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	_ "github.com/lodestar-scm/lodestar/internal/testing/guard"
)

func d(v string) decimal.Decimal {
	dec, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return dec
}

func currentEraOrder() PurchaseOrder {
	return PurchaseOrder{
		OrderDate:      time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		UnitPrice:      d("10"),
		BackMargin:     d("2"),
		Quantity:       d("100"),
		CommissionRate: d("5"),
		AdvanceRate:    d("30"),
		OptionCostItems: []CostItem{
			{Name: "gift wrap", Cost: d("50"), AdminOnly: false},
			{Name: "relabel", Cost: d("20"), AdminOnly: true},
		},
		LaborCostItems: []CostItem{
			{Name: "assembly", Cost: d("30"), AdminOnly: false},
		},
		ShippingCost:          d("40"),
		WarehouseShippingCost: d("10"),
	}
}

func TestCostItemSplit(t *testing.T) {
	po := currentEraOrder()

	require.True(t, po.NonAdminOptionCost().Equal(d("50")))
	require.True(t, po.NonAdminLaborCost().Equal(d("30")))
	require.True(t, po.AdminCostItemTotal().Equal(d("20")))
}

func TestDerivedSettlementAmounts(t *testing.T) {
	po := currentEraOrder()

	require.True(t, po.BasicCostTotal().Equal(d("1200")))
	require.True(t, po.CommissionAmount().Equal(d("64")), "got %s", po.CommissionAmount())

	// basic 1200 + commission 64 + shipping 50 + non-admin option 50 + labor 30
	final := po.FinalPaymentAmount()
	require.True(t, final.Equal(d("1394")), "got %s", final)

	require.True(t, po.ExpectedAdvanceAmount().Equal(d("360")))
	require.True(t, po.ExpectedBalanceAmount().Equal(d("1034")), "got %s", po.ExpectedBalanceAmount())
}

func TestLegacyOrderExcludesCostsFromCommission(t *testing.T) {
	po := currentEraOrder()
	po.OrderDate = time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)

	require.True(t, po.BasicCostTotal().Equal(d("1260")))
	require.True(t, po.CommissionAmount().Equal(d("60")))

	// basic 1260 + shipping 50 + non-admin option 50 + labor 30; no re-added commission
	final := po.FinalPaymentAmount()
	require.True(t, final.Equal(d("1390")), "got %s", final)
}

func TestEffectiveAmountsPreferStoredOverrides(t *testing.T) {
	po := currentEraOrder()

	po.AdvanceAmount = d("400")
	require.True(t, po.EffectiveAdvanceAmount().Equal(d("400")))
	require.True(t, po.EffectiveBalanceAmount().Equal(d("994")), "got %s", po.EffectiveBalanceAmount())

	po.BalanceAmount = d("1000")
	require.True(t, po.EffectiveBalanceAmount().Equal(d("1000")))

	po.AdvanceAmount = decimal.Zero
	require.True(t, po.EffectiveAdvanceAmount().Equal(d("360")))
}

func TestAdminBillableAmount(t *testing.T) {
	po := currentEraOrder()

	// back margin 2 * qty 100 + admin-only items 20
	require.True(t, po.AdminBillableAmount().Equal(d("220")), "got %s", po.AdminBillableAmount())

	override := d("180")
	po.AdminTotalCost = &override
	require.True(t, po.AdminBillableAmount().Equal(d("180")))

	pl := PackingList{ShippingCostDifference: d("12.5")}
	require.True(t, pl.AdminBillableAmount().Equal(d("12.5")))
}
