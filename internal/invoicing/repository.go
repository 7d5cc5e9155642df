package invoicing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/numera-app/numera/internal/numbering"
	"github.com/numera-app/numera/internal/numbering/counter"
	"github.com/numera-app/numera/internal/platform/db"
)

// ErrNotFound indicates the invoice does not exist.
var ErrNotFound = errors.New("invoicing: not found")

// Repository persists invoices. Issuance runs the counter increment, the
// number rendering and the invoice insert in one transaction, so a
// failure at any step leaves neither a consumed sequence value nor a
// half-issued invoice.
type Repository struct {
	pool     *pgxpool.Pool
	counters *counter.Repository
}

func NewRepository(pool *pgxpool.Pool, counters *counter.Repository) *Repository {
	return &Repository{pool: pool, counters: counters}
}

// IssueAtomic allocates the next sequence value for the draft's bucket,
// renders the number via the callback and inserts the invoice. The render
// callback sees the allocated value while the row lock is still held;
// concurrent issuances for the same bucket serialize on that lock.
func (r *Repository) IssueAtomic(ctx context.Context, draft *Invoice, resetPeriod numbering.ResetPeriod, render func(sequence int64) (string, error)) (*Invoice, error) {
	issued := *draft
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		sequence, err := r.counters.IncrementIn(ctx, tx, draft.SellerID, resetPeriod, draft.PeriodKey)
		if err != nil {
			return err
		}
		number, err := render(sequence)
		if err != nil {
			return err
		}
		issued.SequenceNumber = sequence
		issued.Number = number

		err = tx.QueryRow(ctx, `
INSERT INTO invoices (reference, seller_id, number, sequence_number, period_key, issue_date,
                      department_code, department_name, customer_name, total_cents, currency)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id, created_at`,
			issued.Reference, issued.SellerID, issued.Number, issued.SequenceNumber, issued.PeriodKey,
			issued.IssueDate, issued.DepartmentCode, issued.DepartmentName, issued.CustomerName,
			issued.TotalCents, issued.Currency,
		).Scan(&issued.ID, &issued.CreatedAt)
		if err != nil {
			return err
		}

		return r.counters.RecordIssuedNumberIn(ctx, tx, issued.SellerID, issued.PeriodKey, issued.Number)
	})
	if err != nil {
		return nil, err
	}
	return &issued, nil
}

const invoiceColumns = `id, reference, seller_id, number, sequence_number, period_key, issue_date,
department_code, department_name, customer_name, total_cents, currency, created_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Reference, &inv.SellerID, &inv.Number, &inv.SequenceNumber,
		&inv.PeriodKey, &inv.IssueDate, &inv.DepartmentCode, &inv.DepartmentName,
		&inv.CustomerName, &inv.TotalCents, &inv.Currency, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *Repository) GetByReference(ctx context.Context, reference uuid.UUID) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE reference = $1`
	return scanInvoice(r.pool.QueryRow(ctx, query, reference))
}

// ListBySeller returns the seller's invoices, newest first.
func (r *Repository) ListBySeller(ctx context.Context, sellerID int64, limit int) ([]Invoice, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE seller_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, sellerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.Reference, &inv.SellerID, &inv.Number, &inv.SequenceNumber,
			&inv.PeriodKey, &inv.IssueDate, &inv.DepartmentCode, &inv.DepartmentName,
			&inv.CustomerName, &inv.TotalCents, &inv.Currency, &inv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
