// Package sourcing owns the financial view of externally managed source
// records: purchase orders and packing-list shipments. The settlement core
// reads their cost fields and writes back payment dates and admin-cost
// flags; it never creates or destroys the records themselves.
package sourcing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lodestar-scm/lodestar/internal/settlement"
)

var ErrNotFound = errors.New("source record not found")

// CostItem is an option or labor cost line attached to a purchase order.
// AdminOnly items are billed to the managing admin and stay out of the
// supplier commission base.
type CostItem struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Cost      decimal.Decimal `json:"cost"`
	AdminOnly bool            `json:"admin_only"`
}

// PurchaseOrder is the financial slice of a purchase order record.
type PurchaseOrder struct {
	ID                    int64
	Number                string
	OrderDate             time.Time
	UnitPrice             decimal.Decimal
	BackMargin            decimal.Decimal
	Quantity              decimal.Decimal
	CommissionRate        decimal.Decimal
	AdvanceRate           decimal.Decimal
	OptionCostItems       []CostItem
	LaborCostItems        []CostItem
	ShippingCost          decimal.Decimal
	WarehouseShippingCost decimal.Decimal
	AdvanceAmount         decimal.Decimal
	AdvancePaymentDate    *time.Time
	BalanceAmount         decimal.Decimal
	BalancePaymentDate    *time.Time
	AdminTotalCost        *decimal.Decimal
	AdminCostPaid         bool
	AdminCostPaidDate     *time.Time
}

// PackingList is the financial slice of a packing-list shipment record.
type PackingList struct {
	ID                     int64
	Number                 string
	ShipDate               time.Time
	ShippingCost           decimal.Decimal
	Weight                 decimal.Decimal
	ChargeableWeight       decimal.Decimal
	PaymentDate            *time.Time
	ShippingCostDifference decimal.Decimal
	AdminCostPaid          bool
	AdminCostPaidDate      *time.Time
}

func sumCosts(items []CostItem, adminOnly bool) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		if item.AdminOnly == adminOnly {
			total = total.Add(item.Cost)
		}
	}
	return total
}

// NonAdminOptionCost sums option cost items billed to the supplier side.
func (po PurchaseOrder) NonAdminOptionCost() decimal.Decimal {
	return sumCosts(po.OptionCostItems, false)
}

// NonAdminLaborCost sums labor cost items billed to the supplier side.
func (po PurchaseOrder) NonAdminLaborCost() decimal.Decimal {
	return sumCosts(po.LaborCostItems, false)
}

// AdminCostItemTotal sums cost items flagged admin-only.
func (po PurchaseOrder) AdminCostItemTotal() decimal.Decimal {
	return sumCosts(po.OptionCostItems, true).Add(sumCosts(po.LaborCostItems, true))
}

// BasicCostTotal derives the base goods cost under the order's formula
// generation.
func (po PurchaseOrder) BasicCostTotal() decimal.Decimal {
	return settlement.BasicCostTotal(po.UnitPrice, po.Quantity, po.CommissionRate, po.BackMargin, po.OrderDate)
}

// CommissionAmount derives the agent commission under the order's formula
// generation.
func (po PurchaseOrder) CommissionAmount() decimal.Decimal {
	return settlement.CommissionAmount(
		po.UnitPrice, po.Quantity, po.CommissionRate, po.BackMargin, po.OrderDate,
		po.NonAdminOptionCost(), po.NonAdminLaborCost(),
	)
}

// FinalPaymentAmount derives the total supplier settlement for the order.
func (po PurchaseOrder) FinalPaymentAmount() decimal.Decimal {
	return settlement.FinalPaymentAmount(
		po.BasicCostTotal(),
		settlement.ShippingCostTotal(po.ShippingCost, po.WarehouseShippingCost),
		po.NonAdminOptionCost(),
		po.NonAdminLaborCost(),
		po.CommissionAmount(),
		po.OrderDate,
	)
}

// ExpectedAdvanceAmount derives the advance installment from the advance
// rate; the stored AdvanceAmount wins when an operator has overridden it.
func (po PurchaseOrder) ExpectedAdvanceAmount() decimal.Decimal {
	return settlement.AdvancePaymentAmount(po.UnitPrice, po.Quantity, po.AdvanceRate, po.BackMargin)
}

// ExpectedBalanceAmount derives the balance installment.
func (po PurchaseOrder) ExpectedBalanceAmount() decimal.Decimal {
	return settlement.BalancePaymentAmount(po.FinalPaymentAmount(), po.ExpectedAdvanceAmount())
}

// EffectiveAdvanceAmount is the stored advance amount when an operator has
// recorded one, otherwise the rate-derived amount.
func (po PurchaseOrder) EffectiveAdvanceAmount() decimal.Decimal {
	if po.AdvanceAmount.IsPositive() {
		return po.AdvanceAmount
	}
	return po.ExpectedAdvanceAmount()
}

// EffectiveBalanceAmount is the stored balance amount when recorded,
// otherwise the derived remainder.
func (po PurchaseOrder) EffectiveBalanceAmount() decimal.Decimal {
	if po.BalanceAmount.IsPositive() {
		return po.BalanceAmount
	}
	return settlement.BalancePaymentAmount(po.FinalPaymentAmount(), po.EffectiveAdvanceAmount())
}

// AdminBillableAmount is what the managing admin is owed for this order:
// the recorded admin total when present, otherwise back margin times
// quantity plus admin-only cost items.
func (po PurchaseOrder) AdminBillableAmount() decimal.Decimal {
	if po.AdminTotalCost != nil {
		return *po.AdminTotalCost
	}
	return po.BackMargin.Mul(po.Quantity).Add(po.AdminCostItemTotal())
}

// AdminBillableAmount for a shipment is the delta between actual and
// estimated shipping.
func (pl PackingList) AdminBillableAmount() decimal.Decimal {
	return pl.ShippingCostDifference
}
