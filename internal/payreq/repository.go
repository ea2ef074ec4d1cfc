package payreq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lodestar-scm/lodestar/internal/platform/db"
)

// Repository defines payment request data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	Get(ctx context.Context, id uuid.UUID) (PaymentRequest, error)
	List(ctx context.Context, filter ListFilter) ([]PaymentRequest, error)
	ListBySource(ctx context.Context, sourceType SourceType, sourceID int64, paymentType PaymentType) ([]PaymentRequest, error)
	HasActive(ctx context.Context, key Key) (bool, error)
}

// TxRepository defines operations bound to one transaction. The source
// write-through methods update purchase_orders/packing_lists rows so a
// request transition and its source field change commit or roll back as a
// unit.
type TxRepository interface {
	Insert(ctx context.Context, request PaymentRequest) error
	// CompleteRequest transitions a Requested row to Completed. The update
	// is guarded on the current status; false means the row was not in
	// Requested state.
	CompleteRequest(ctx context.Context, id uuid.UUID, paymentDate time.Time, completedBy int64) (bool, error)
	// RevertRequest transitions a Completed row back to Requested.
	RevertRequest(ctx context.Context, id uuid.UUID) (bool, error)
	// DeleteRequested removes a row still in Requested state.
	DeleteRequested(ctx context.Context, id uuid.UUID) (bool, error)
	// LockByIDs loads and row-locks the given requests.
	LockByIDs(ctx context.Context, ids []uuid.UUID) ([]PaymentRequest, error)
	// SetSourcePaymentDate writes the payment date through to the source
	// record field matching the key's payment type; nil clears it.
	SetSourcePaymentDate(ctx context.Context, key Key, date *time.Time) error
	// NextRequestNumber reserves a human-readable request number.
	NextRequestNumber(ctx context.Context, requestDate time.Time) (string, error)
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const requestColumns = `id, number, source_type, source_id, payment_type, amount, status,
	request_date, payment_date, requested_by, completed_by, memo, created_at, updated_at`

func (r *pgRepository) Get(ctx context.Context, id uuid.UUID) (PaymentRequest, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM payment_requests WHERE id = $1`, id)
	request, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentRequest{}, ErrNotFound
		}
		return PaymentRequest{}, fmt.Errorf("payreq: get request: %w", err)
	}
	return request, nil
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]PaymentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM payment_requests WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.SourceType != "" {
		args = append(args, string(filter.SourceType))
		query += fmt.Sprintf(" AND source_type = $%d", len(args))
	}
	if filter.PaymentType != "" {
		args = append(args, string(filter.PaymentType))
		query += fmt.Sprintf(" AND payment_type = $%d", len(args))
	}
	if filter.FromDate != nil {
		args = append(args, *filter.FromDate)
		query += fmt.Sprintf(" AND request_date >= $%d", len(args))
	}
	if filter.ToDate != nil {
		args = append(args, *filter.ToDate)
		query += fmt.Sprintf(" AND request_date <= $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND (number ILIKE $%d OR memo ILIKE $%d)", len(args), len(args))
	}
	query += " ORDER BY request_date DESC, created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("payreq: list requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (r *pgRepository) ListBySource(ctx context.Context, sourceType SourceType, sourceID int64, paymentType PaymentType) ([]PaymentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM payment_requests
		WHERE source_type = $1 AND source_id = $2`
	args := []any{string(sourceType), sourceID}
	if paymentType != "" {
		args = append(args, string(paymentType))
		query += " AND payment_type = $3"
	}
	query += " ORDER BY request_date DESC, created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("payreq: list by source: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (r *pgRepository) HasActive(ctx context.Context, key Key) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM payment_requests
			WHERE source_type = $1 AND source_id = $2 AND payment_type = $3 AND status = $4
		)`,
		string(key.SourceType), key.SourceID, string(key.PaymentType), string(StatusRequested),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("payreq: has active: %w", err)
	}
	return exists, nil
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (t *pgTxRepository) Insert(ctx context.Context, request PaymentRequest) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO payment_requests
			(id, number, source_type, source_id, payment_type, amount, status,
			 request_date, requested_by, memo, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())`,
		request.ID, request.Number, string(request.SourceType), request.SourceID,
		string(request.PaymentType), decimalToNumeric(request.Amount),
		string(request.Status), pgtype.Date{Time: request.RequestDate, Valid: true},
		request.RequestedBy, request.Memo)
	if err != nil {
		// The partial unique index on (source_type, source_id, payment_type)
		// WHERE status='REQUESTED' backs the one-active-request invariant.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("payreq: insert request: %w", err)
	}
	return nil
}

func (t *pgTxRepository) CompleteRequest(ctx context.Context, id uuid.UUID, paymentDate time.Time, completedBy int64) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE payment_requests
		 SET status = $2, payment_date = $3, completed_by = $4, updated_at = now()
		 WHERE id = $1 AND status = $5`,
		id, string(StatusCompleted), pgtype.Date{Time: paymentDate, Valid: true},
		completedBy, string(StatusRequested))
	if err != nil {
		return false, fmt.Errorf("payreq: complete request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTxRepository) RevertRequest(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE payment_requests
		 SET status = $2, payment_date = NULL, completed_by = NULL, updated_at = now()
		 WHERE id = $1 AND status = $3`,
		id, string(StatusRequested), string(StatusCompleted))
	if err != nil {
		return false, fmt.Errorf("payreq: revert request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTxRepository) DeleteRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`DELETE FROM payment_requests WHERE id = $1 AND status = $2`,
		id, string(StatusRequested))
	if err != nil {
		return false, fmt.Errorf("payreq: delete request: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTxRepository) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]PaymentRequest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx,
		`SELECT `+requestColumns+` FROM payment_requests
		 WHERE id = ANY($1) ORDER BY created_at FOR UPDATE`, ids)
	if err != nil {
		return nil, fmt.Errorf("payreq: lock requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (t *pgTxRepository) SetSourcePaymentDate(ctx context.Context, key Key, date *time.Time) error {
	var query string
	switch key.PaymentType {
	case PaymentAdvance:
		query = `UPDATE purchase_orders SET advance_payment_date = $2, updated_at = now() WHERE id = $1`
	case PaymentBalance:
		query = `UPDATE purchase_orders SET balance_payment_date = $2, updated_at = now() WHERE id = $1`
	case PaymentShipping:
		query = `UPDATE packing_lists SET payment_date = $2, updated_at = now() WHERE id = $1`
	default:
		return fmt.Errorf("%w: unknown payment type %q", ErrSourceWrite, key.PaymentType)
	}
	var d pgtype.Date
	if date != nil {
		d = pgtype.Date{Time: *date, Valid: true}
	}
	tag, err := t.tx.Exec(ctx, query, key.SourceID, d)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceWrite, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: source record %s missing", ErrSourceWrite, key)
	}
	return nil
}

func (t *pgTxRepository) NextRequestNumber(ctx context.Context, requestDate time.Time) (string, error) {
	var seq int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('payment_request_number_seq')`).Scan(&seq); err != nil {
		return "", fmt.Errorf("payreq: next request number: %w", err)
	}
	return fmt.Sprintf("PR-%s-%04d", requestDate.Format("20060102"), seq), nil
}

// Scanning helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (PaymentRequest, error) {
	var (
		request     PaymentRequest
		sourceType  string
		paymentType string
		status      string
		amount      pgtype.Numeric
		requestDate pgtype.Date
		paymentDate pgtype.Date
		completedBy pgtype.Int8
		createdAt   pgtype.Timestamptz
		updatedAt   pgtype.Timestamptz
	)
	if err := row.Scan(
		&request.ID, &request.Number, &sourceType, &request.SourceID, &paymentType,
		&amount, &status, &requestDate, &paymentDate, &request.RequestedBy,
		&completedBy, &request.Memo, &createdAt, &updatedAt,
	); err != nil {
		return PaymentRequest{}, err
	}
	request.SourceType = SourceType(sourceType)
	request.PaymentType = PaymentType(paymentType)
	request.Status = RequestStatus(status)
	request.Amount = numericToDecimal(amount)
	request.RequestDate = requestDate.Time
	if paymentDate.Valid {
		v := paymentDate.Time
		request.PaymentDate = &v
	}
	if completedBy.Valid {
		v := completedBy.Int64
		request.CompletedBy = &v
	}
	request.CreatedAt = createdAt.Time
	request.UpdatedAt = updatedAt.Time
	return request, nil
}

func collectRequests(rows pgx.Rows) ([]PaymentRequest, error) {
	var out []PaymentRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("payreq: scan request: %w", err)
		}
		out = append(out, request)
	}
	return out, rows.Err()
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}
