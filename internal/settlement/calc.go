// Package settlement implements the supplier settlement math for purchase
// orders. Every function is pure; the order date selects which formula
// generation applies so historical records keep their original math.
package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// FormulaCutover is the first order date settled under the current formula.
// Orders placed before it keep the legacy commission-inclusive math forever.
var FormulaCutover = time.Date(2025, time.January, 6, 0, 0, 0, 0, time.UTC)

// Rule identifies a formula generation.
type Rule int

const (
	// RuleLegacy bundles commission into the basic cost total.
	RuleLegacy Rule = iota
	// RuleCurrent keeps commission separate and widens its base with
	// non-admin option and labor costs.
	RuleCurrent
)

var hundred = decimal.NewFromInt(100)

// RuleFor returns the formula generation in effect for the given order date.
func RuleFor(orderDate time.Time) Rule {
	if orderDate.Before(FormulaCutover) {
		return RuleLegacy
	}
	return RuleCurrent
}

// OrderUnitPrice is the supplier unit price plus the admin back margin.
func OrderUnitPrice(unitPrice, backMargin decimal.Decimal) decimal.Decimal {
	return unitPrice.Add(backMargin)
}

// BasicCostTotal computes the base goods cost. Under the legacy rule the
// commission is folded in; under the current rule it is excluded and added
// separately via CommissionAmount.
func BasicCostTotal(unitPrice, qty, commissionRate, backMargin decimal.Decimal, orderDate time.Time) decimal.Decimal {
	goods := OrderUnitPrice(unitPrice, backMargin).Mul(qty)
	if RuleFor(orderDate) == RuleLegacy {
		return goods.Mul(decimal.NewFromInt(1).Add(commissionRate.Div(hundred)))
	}
	return goods
}

// CommissionAmount computes the agent commission. Cost items flagged
// admin-only are excluded from the base under both rules; the current rule
// additionally includes non-admin option and labor costs in the base.
func CommissionAmount(unitPrice, qty, commissionRate, backMargin decimal.Decimal, orderDate time.Time, nonAdminOptionCost, nonAdminLaborCost decimal.Decimal) decimal.Decimal {
	goods := OrderUnitPrice(unitPrice, backMargin).Mul(qty)
	if RuleFor(orderDate) == RuleLegacy {
		return goods.Mul(commissionRate).Div(hundred)
	}
	base := goods.Add(nonAdminOptionCost).Add(nonAdminLaborCost)
	return base.Mul(commissionRate).Div(hundred)
}

// ShippingCostTotal sums supplier and warehouse shipping. Packing-list
// shipping is settled as its own payment type and stays out of this total.
func ShippingCostTotal(shippingCost, warehouseShippingCost decimal.Decimal) decimal.Decimal {
	return shippingCost.Add(warehouseShippingCost)
}

// FinalPaymentAmount computes the total owed to the supplier. The legacy
// basic cost total already contains commission, so it is only re-added
// under the current rule.
func FinalPaymentAmount(basicCostTotal, shippingCostTotal, optionCost, laborCost, commission decimal.Decimal, orderDate time.Time) decimal.Decimal {
	total := basicCostTotal.Add(shippingCostTotal).Add(optionCost).Add(laborCost)
	if RuleFor(orderDate) == RuleCurrent {
		total = total.Add(commission)
	}
	return total
}

// ExpectedFinalUnitPrice projects the landed per-unit price. Packing-list
// shipping is included here even though FinalPaymentAmount excludes it;
// the projection is what the buyer ultimately pays per unit.
func ExpectedFinalUnitPrice(finalPaymentAmount, packingListShippingCost, qty decimal.Decimal) decimal.Decimal {
	if qty.IsZero() {
		return decimal.Zero
	}
	return finalPaymentAmount.Add(packingListShippingCost).Div(qty)
}

// AdvancePaymentAmount computes the first installment owed.
func AdvancePaymentAmount(unitPrice, qty, advanceRate, backMargin decimal.Decimal) decimal.Decimal {
	return OrderUnitPrice(unitPrice, backMargin).Mul(qty).Mul(advanceRate).Div(hundred)
}

// BalancePaymentAmount computes the remaining installment owed.
func BalancePaymentAmount(finalPaymentAmount, advancePaymentAmount decimal.Decimal) decimal.Decimal {
	return finalPaymentAmount.Sub(advancePaymentAmount)
}
