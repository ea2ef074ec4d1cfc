package sourcing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Gateway provides read/write access to source record financial fields.
type Gateway interface {
	GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error)
	SetAdvancePaymentDate(ctx context.Context, id int64, date *time.Time) error
	SetBalancePaymentDate(ctx context.Context, id int64, date *time.Time) error
	SetPurchaseOrderAdminCostPaid(ctx context.Context, id int64, paid bool, paidAt *time.Time) error

	GetPackingList(ctx context.Context, id int64) (PackingList, error)
	ListPackingLists(ctx context.Context, filter ListFilter) ([]PackingList, error)
	SetShippingPaymentDate(ctx context.Context, id int64, date *time.Time) error
	SetPackingListAdminCostPaid(ctx context.Context, id int64, paid bool, paidAt *time.Time) error
}

// ListFilter narrows source record listings.
type ListFilter struct {
	FromDate *time.Time
	ToDate   *time.Time
	Search   string
	Limit    int
}

var _ Gateway = (*PGGateway)(nil)

// PGGateway is the PostgreSQL implementation of Gateway.
type PGGateway struct {
	pool *pgxpool.Pool
}

// NewPGGateway constructs a gateway over the shared pool.
func NewPGGateway(pool *pgxpool.Pool) *PGGateway {
	return &PGGateway{pool: pool}
}

const purchaseOrderColumns = `id, number, order_date, unit_price, back_margin, quantity,
	commission_rate, advance_rate, option_cost_items, labor_cost_items,
	shipping_cost, warehouse_shipping_cost,
	advance_amount, advance_payment_date, balance_amount, balance_payment_date,
	admin_total_cost, admin_cost_paid, admin_cost_paid_date`

func (g *PGGateway) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	row := g.pool.QueryRow(ctx,
		`SELECT `+purchaseOrderColumns+` FROM purchase_orders WHERE id = $1`, id)
	po, err := scanPurchaseOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, fmt.Errorf("sourcing: get purchase order: %w", err)
	}
	return po, nil
}

func (g *PGGateway) ListPurchaseOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	query := `SELECT ` + purchaseOrderColumns + ` FROM purchase_orders WHERE 1=1`
	args := []any{}
	if filter.FromDate != nil {
		args = append(args, *filter.FromDate)
		query += fmt.Sprintf(" AND order_date >= $%d", len(args))
	}
	if filter.ToDate != nil {
		args = append(args, *filter.ToDate)
		query += fmt.Sprintf(" AND order_date <= $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND number ILIKE $%d", len(args))
	}
	query += " ORDER BY order_date DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := g.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sourcing: list purchase orders: %w", err)
	}
	defer rows.Close()

	var out []PurchaseOrder
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("sourcing: scan purchase order: %w", err)
		}
		out = append(out, po)
	}
	return out, rows.Err()
}

func (g *PGGateway) SetAdvancePaymentDate(ctx context.Context, id int64, date *time.Time) error {
	return g.setPODate(ctx, id, "advance_payment_date", date)
}

func (g *PGGateway) SetBalancePaymentDate(ctx context.Context, id int64, date *time.Time) error {
	return g.setPODate(ctx, id, "balance_payment_date", date)
}

func (g *PGGateway) setPODate(ctx context.Context, id int64, column string, date *time.Time) error {
	tag, err := g.pool.Exec(ctx,
		`UPDATE purchase_orders SET `+column+` = $2, updated_at = now() WHERE id = $1`,
		id, toDate(date))
	if err != nil {
		return fmt.Errorf("sourcing: set %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *PGGateway) SetPurchaseOrderAdminCostPaid(ctx context.Context, id int64, paid bool, paidAt *time.Time) error {
	tag, err := g.pool.Exec(ctx,
		`UPDATE purchase_orders SET admin_cost_paid = $2, admin_cost_paid_date = $3, updated_at = now() WHERE id = $1`,
		id, paid, toDate(paidAt))
	if err != nil {
		return fmt.Errorf("sourcing: set admin cost paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const packingListColumns = `id, number, ship_date, shipping_cost, weight, chargeable_weight,
	payment_date, shipping_cost_difference, admin_cost_paid, admin_cost_paid_date`

func (g *PGGateway) GetPackingList(ctx context.Context, id int64) (PackingList, error) {
	row := g.pool.QueryRow(ctx,
		`SELECT `+packingListColumns+` FROM packing_lists WHERE id = $1`, id)
	pl, err := scanPackingList(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PackingList{}, ErrNotFound
		}
		return PackingList{}, fmt.Errorf("sourcing: get packing list: %w", err)
	}
	return pl, nil
}

func (g *PGGateway) ListPackingLists(ctx context.Context, filter ListFilter) ([]PackingList, error) {
	query := `SELECT ` + packingListColumns + ` FROM packing_lists WHERE 1=1`
	args := []any{}
	if filter.FromDate != nil {
		args = append(args, *filter.FromDate)
		query += fmt.Sprintf(" AND ship_date >= $%d", len(args))
	}
	if filter.ToDate != nil {
		args = append(args, *filter.ToDate)
		query += fmt.Sprintf(" AND ship_date <= $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND number ILIKE $%d", len(args))
	}
	query += " ORDER BY ship_date DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := g.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sourcing: list packing lists: %w", err)
	}
	defer rows.Close()

	var out []PackingList
	for rows.Next() {
		pl, err := scanPackingList(rows)
		if err != nil {
			return nil, fmt.Errorf("sourcing: scan packing list: %w", err)
		}
		out = append(out, pl)
	}
	return out, rows.Err()
}

func (g *PGGateway) SetShippingPaymentDate(ctx context.Context, id int64, date *time.Time) error {
	tag, err := g.pool.Exec(ctx,
		`UPDATE packing_lists SET payment_date = $2, updated_at = now() WHERE id = $1`,
		id, toDate(date))
	if err != nil {
		return fmt.Errorf("sourcing: set shipping payment date: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *PGGateway) SetPackingListAdminCostPaid(ctx context.Context, id int64, paid bool, paidAt *time.Time) error {
	tag, err := g.pool.Exec(ctx,
		`UPDATE packing_lists SET admin_cost_paid = $2, admin_cost_paid_date = $3, updated_at = now() WHERE id = $1`,
		id, paid, toDate(paidAt))
	if err != nil {
		return fmt.Errorf("sourcing: set admin cost paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Scanning helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchaseOrder(row rowScanner) (PurchaseOrder, error) {
	var (
		po                       PurchaseOrder
		orderDate                pgtype.Date
		unitPrice, backMargin    pgtype.Numeric
		quantity, commissionRate pgtype.Numeric
		advanceRate              pgtype.Numeric
		optionItems, laborItems  []byte
		shipping, warehouse      pgtype.Numeric
		advanceAmt, balanceAmt   pgtype.Numeric
		advanceDate, balanceDate pgtype.Date
		adminTotal               pgtype.Numeric
		adminPaidDate            pgtype.Date
	)
	if err := row.Scan(
		&po.ID, &po.Number, &orderDate, &unitPrice, &backMargin, &quantity,
		&commissionRate, &advanceRate, &optionItems, &laborItems,
		&shipping, &warehouse,
		&advanceAmt, &advanceDate, &balanceAmt, &balanceDate,
		&adminTotal, &po.AdminCostPaid, &adminPaidDate,
	); err != nil {
		return PurchaseOrder{}, err
	}
	po.OrderDate = orderDate.Time
	po.UnitPrice = numericToDecimal(unitPrice)
	po.BackMargin = numericToDecimal(backMargin)
	po.Quantity = numericToDecimal(quantity)
	po.CommissionRate = numericToDecimal(commissionRate)
	po.AdvanceRate = numericToDecimal(advanceRate)
	po.ShippingCost = numericToDecimal(shipping)
	po.WarehouseShippingCost = numericToDecimal(warehouse)
	po.AdvanceAmount = numericToDecimal(advanceAmt)
	po.BalanceAmount = numericToDecimal(balanceAmt)
	po.AdvancePaymentDate = fromDate(advanceDate)
	po.BalancePaymentDate = fromDate(balanceDate)
	po.AdminCostPaidDate = fromDate(adminPaidDate)
	if adminTotal.Valid {
		v := numericToDecimal(adminTotal)
		po.AdminTotalCost = &v
	}
	if err := json.Unmarshal(optionItems, &po.OptionCostItems); err != nil {
		return PurchaseOrder{}, fmt.Errorf("decode option cost items: %w", err)
	}
	if err := json.Unmarshal(laborItems, &po.LaborCostItems); err != nil {
		return PurchaseOrder{}, fmt.Errorf("decode labor cost items: %w", err)
	}
	return po, nil
}

func scanPackingList(row rowScanner) (PackingList, error) {
	var (
		pl                 PackingList
		shipDate           pgtype.Date
		shipping           pgtype.Numeric
		weight, chargeable pgtype.Numeric
		paymentDate        pgtype.Date
		difference         pgtype.Numeric
		adminPaidDate      pgtype.Date
	)
	if err := row.Scan(
		&pl.ID, &pl.Number, &shipDate, &shipping, &weight, &chargeable,
		&paymentDate, &difference, &pl.AdminCostPaid, &adminPaidDate,
	); err != nil {
		return PackingList{}, err
	}
	pl.ShipDate = shipDate.Time
	pl.ShippingCost = numericToDecimal(shipping)
	pl.Weight = numericToDecimal(weight)
	pl.ChargeableWeight = numericToDecimal(chargeable)
	pl.PaymentDate = fromDate(paymentDate)
	pl.ShippingCostDifference = numericToDecimal(difference)
	pl.AdminCostPaidDate = fromDate(adminPaidDate)
	return pl, nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func toDate(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

func fromDate(d pgtype.Date) *time.Time {
	if !d.Valid {
		return nil
	}
	v := d.Time
	return &v
}
