package counter

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/numera-app/numera/internal/numbering"
)

// ErrNotFound indicates the counter bucket does not exist yet.
var ErrNotFound = errors.New("counter: not found")

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx so increments can
// run standalone or inside a caller-owned issuance transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides persistence for invoice counters. It is a concrete
// type rather than an interface because the issuance path composes its
// tx-scoped methods directly.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// IncrementIn atomically bumps the counter for (sellerID, periodKey) and
// returns the new value, creating the row on first use. The single upsert
// statement is the mutual exclusion: Postgres takes the row lock, so two
// concurrent issuances for the same bucket serialize and never observe
// the same value.
func (r *Repository) IncrementIn(ctx context.Context, q dbtx, sellerID int64, resetPeriod numbering.ResetPeriod, periodKey string) (int64, error) {
	const query = `
INSERT INTO invoice_number_counters (seller_id, reset_period, period_key, last_value)
VALUES ($1, $2, $3, 1)
ON CONFLICT ON CONSTRAINT unique_counter_scope
DO UPDATE SET last_value = invoice_number_counters.last_value + 1,
              reset_period = EXCLUDED.reset_period,
              updated_at = NOW()
RETURNING last_value`
	var value int64
	if err := q.QueryRow(ctx, query, sellerID, string(resetPeriod), periodKey).Scan(&value); err != nil {
		return 0, err
	}
	return value, nil
}

// Increment bumps the counter outside any caller transaction.
func (r *Repository) Increment(ctx context.Context, sellerID int64, resetPeriod numbering.ResetPeriod, periodKey string) (int64, error) {
	return r.IncrementIn(ctx, r.pool, sellerID, resetPeriod, periodKey)
}

// RecordIssuedNumberIn stores the rendered invoice number on the counter
// row for audit display. Runs in the issuance transaction so the counter
// never references a number that was rolled back.
func (r *Repository) RecordIssuedNumberIn(ctx context.Context, q dbtx, sellerID int64, periodKey, invoiceNumber string) error {
	const query = `
UPDATE invoice_number_counters
SET last_invoice_number = $3, updated_at = NOW()
WHERE seller_id = $1 AND period_key = $2`
	_, err := q.Exec(ctx, query, sellerID, periodKey, invoiceNumber)
	return err
}

const counterColumns = `seller_id, reset_period, period_key, last_value, base_offset, COALESCE(last_invoice_number, ''), created_at, updated_at`

func scanCounter(row pgx.Row) (*Counter, error) {
	var c Counter
	err := row.Scan(&c.SellerID, &c.ResetPeriod, &c.PeriodKey, &c.LastValue, &c.BaseOffset, &c.LastInvoiceNumber, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *Repository) Get(ctx context.Context, sellerID int64, periodKey string) (*Counter, error) {
	query := `SELECT ` + counterColumns + ` FROM invoice_number_counters WHERE seller_id = $1 AND period_key = $2`
	return scanCounter(r.pool.QueryRow(ctx, query, sellerID, periodKey))
}

// ListBySeller returns every counter bucket the seller has ever used,
// newest period first.
func (r *Repository) ListBySeller(ctx context.Context, sellerID int64) ([]Counter, error) {
	query := `SELECT ` + counterColumns + ` FROM invoice_number_counters WHERE seller_id = $1 ORDER BY period_key DESC`
	rows, err := r.pool.Query(ctx, query, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Counter
	for rows.Next() {
		var c Counter
		if err := rows.Scan(&c.SellerID, &c.ResetPeriod, &c.PeriodKey, &c.LastValue, &c.BaseOffset, &c.LastInvoiceNumber, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListSellerIDs returns the distinct seller ids that own at least one
// counter, for the periodic drift scan.
func (r *Repository) ListSellerIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT seller_id FROM invoice_number_counters ORDER BY seller_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// InvoiceCounts returns, per period key, how many invoices are actually
// recorded for the seller. This is the independent truth the audit
// compares counters against.
func (r *Repository) InvoiceCounts(ctx context.Context, sellerID int64) (map[string]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT period_key, COUNT(*) FROM invoices WHERE seller_id = $1 GROUP BY period_key`, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		out[key] = count
	}
	return out, rows.Err()
}

// RaiseTo lifts last_value to at least value. Forward-only: a reconcile
// can consume sequence numbers but never hand one out twice.
func (r *Repository) RaiseTo(ctx context.Context, sellerID int64, periodKey string, value int64) (int64, error) {
	const query = `
UPDATE invoice_number_counters
SET last_value = GREATEST(last_value, $3), updated_at = NOW()
WHERE seller_id = $1 AND period_key = $2
RETURNING last_value`
	var newValue int64
	err := r.pool.QueryRow(ctx, query, sellerID, periodKey, value).Scan(&newValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return newValue, nil
}
