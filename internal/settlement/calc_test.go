package settlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	dec, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return dec
}

func TestRuleForCutoverBoundary(t *testing.T) {
	dayBefore := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	cutover := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

	require.Equal(t, RuleLegacy, RuleFor(dayBefore))
	require.Equal(t, RuleCurrent, RuleFor(cutover))
	require.Equal(t, RuleCurrent, RuleFor(cutover.AddDate(1, 0, 0)))
}

func TestCurrentFormula(t *testing.T) {
	orderDate := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	unitPrice := d("10")
	backMargin := d("2")
	qty := d("100")
	rate := d("5")

	require.True(t, OrderUnitPrice(unitPrice, backMargin).Equal(d("12")))

	basic := BasicCostTotal(unitPrice, qty, rate, backMargin, orderDate)
	require.True(t, basic.Equal(d("1200")), "got %s", basic)

	// Non-admin option+labor of 80 widens the commission base.
	commission := CommissionAmount(unitPrice, qty, rate, backMargin, orderDate, d("50"), d("30"))
	require.True(t, commission.Equal(d("64")), "got %s", commission)

	shipping := ShippingCostTotal(d("40"), d("10"))
	final := FinalPaymentAmount(basic, shipping, d("60"), d("35"), commission, orderDate)
	require.True(t, final.Equal(d("1409")), "got %s", final)
}

func TestLegacyFormula(t *testing.T) {
	orderDate := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	unitPrice := d("10")
	backMargin := d("2")
	qty := d("100")
	rate := d("5")

	basic := BasicCostTotal(unitPrice, qty, rate, backMargin, orderDate)
	require.True(t, basic.Equal(d("1260")), "got %s", basic)

	// Legacy commission base is goods only; option/labor are ignored.
	commission := CommissionAmount(unitPrice, qty, rate, backMargin, orderDate, d("50"), d("30"))
	require.True(t, commission.Equal(d("60")), "got %s", commission)

	// Commission is already inside the basic cost total and must not be
	// re-added.
	shipping := ShippingCostTotal(d("40"), d("10"))
	final := FinalPaymentAmount(basic, shipping, d("60"), d("35"), commission, orderDate)
	require.True(t, final.Equal(d("1405")), "got %s", final)
}

func TestAdvanceAndBalance(t *testing.T) {
	advance := AdvancePaymentAmount(d("10"), d("100"), d("30"), d("2"))
	require.True(t, advance.Equal(d("360")), "got %s", advance)

	balance := BalancePaymentAmount(d("1409"), advance)
	require.True(t, balance.Equal(d("1049")), "got %s", balance)
}

func TestExpectedFinalUnitPrice(t *testing.T) {
	// Packing-list shipping joins the projection even though it is
	// excluded from the final payment amount.
	price := ExpectedFinalUnitPrice(d("1409"), d("91"), d("100"))
	require.True(t, price.Equal(d("15")), "got %s", price)

	require.True(t, ExpectedFinalUnitPrice(d("1409"), d("91"), decimal.Zero).IsZero())
}

func TestShippingExcludesPackingList(t *testing.T) {
	total := ShippingCostTotal(d("25"), d("5"))
	require.True(t, total.Equal(d("30")))
}
