package scheme

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/numera-app/numera/internal/numbering"
	"github.com/numera-app/numera/internal/platform/db"
)

var (
	// ErrNotFound indicates the scheme does not exist.
	ErrNotFound = errors.New("scheme: not found")
	// ErrConflict indicates a concurrent activation raced this one.
	ErrConflict = errors.New("scheme: concurrent activation")
)

// Constraint names from the migrations; collisions on these are retryable.
const (
	constraintSellerEffectiveVersion = "unique_seller_effective_version"
	constraintActiveScheme           = "unique_active_scheme"
)

// Repository provides persistence for numbering schemes.
type Repository interface {
	Get(ctx context.Context, id int64) (*Scheme, error)
	FindEffective(ctx context.Context, sellerID int64, date time.Time) (*Scheme, error)
	ListBySeller(ctx context.Context, sellerID int64) ([]Scheme, error)
	ListActiveBySeller(ctx context.Context, sellerID int64) ([]Scheme, error)
	CreateAndActivate(ctx context.Context, sellerID int64, template string, resetPeriod numbering.ResetPeriod, effectiveFrom time.Time) (int64, error)
	Archive(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Postgres-backed scheme repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const schemeColumns = `id, seller_id, template, reset_period, effective_from, version, status, created_at, updated_at`

func scanScheme(row pgx.Row) (*Scheme, error) {
	var s Scheme
	err := row.Scan(&s.ID, &s.SellerID, &s.Template, &s.ResetPeriod, &s.EffectiveFrom, &s.Version, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Scheme, error) {
	query := fmt.Sprintf(`SELECT %s FROM numbering_schemes WHERE id = $1`, schemeColumns)
	return scanScheme(r.pool.QueryRow(ctx, query, id))
}

// FindEffective returns the scheme governing invoices issued on date: the
// newest effective_from not after the date, highest version winning among
// revisions sharing an effective_from. DRAFT revisions never match.
func (r *repository) FindEffective(ctx context.Context, sellerID int64, date time.Time) (*Scheme, error) {
	query := fmt.Sprintf(`
SELECT %s FROM numbering_schemes
WHERE seller_id = $1
  AND effective_from <= $2
  AND status IN ('ACTIVE', 'ARCHIVED')
ORDER BY effective_from DESC, version DESC
LIMIT 1`, schemeColumns)
	return scanScheme(r.pool.QueryRow(ctx, query, sellerID, date))
}

func (r *repository) list(ctx context.Context, query string, args ...any) ([]Scheme, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Scheme
	for rows.Next() {
		var s Scheme
		if err := rows.Scan(&s.ID, &s.SellerID, &s.Template, &s.ResetPeriod, &s.EffectiveFrom, &s.Version, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) ListBySeller(ctx context.Context, sellerID int64) ([]Scheme, error) {
	query := fmt.Sprintf(`SELECT %s FROM numbering_schemes WHERE seller_id = $1 ORDER BY effective_from DESC, version DESC`, schemeColumns)
	return r.list(ctx, query, sellerID)
}

func (r *repository) ListActiveBySeller(ctx context.Context, sellerID int64) ([]Scheme, error) {
	query := fmt.Sprintf(`SELECT %s FROM numbering_schemes WHERE seller_id = $1 AND status = 'ACTIVE' ORDER BY effective_from DESC, version DESC`, schemeColumns)
	return r.list(ctx, query, sellerID)
}

// CreateAndActivate archives the currently active scheme and inserts the
// new revision as ACTIVE in one transaction. Unique-constraint collisions
// with a concurrent activation surface as ErrConflict.
func (r *repository) CreateAndActivate(ctx context.Context, sellerID int64, template string, resetPeriod numbering.ResetPeriod, effectiveFrom time.Time) (int64, error) {
	var id int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE numbering_schemes SET status = 'ARCHIVED', updated_at = NOW() WHERE seller_id = $1 AND status = 'ACTIVE'`,
			sellerID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
INSERT INTO numbering_schemes (seller_id, template, reset_period, effective_from, version, status)
SELECT $1, $2, $3, $4,
       COALESCE(MAX(version), 0) + 1,
       'ACTIVE'
FROM numbering_schemes
WHERE seller_id = $1 AND effective_from = $4
RETURNING id`,
			sellerID, template, string(resetPeriod), effectiveFrom).Scan(&id)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case constraintSellerEffectiveVersion, constraintActiveScheme:
				return 0, fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
			}
		}
		return 0, err
	}
	return id, nil
}

func (r *repository) Archive(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE numbering_schemes SET status = 'ARCHIVED', updated_at = NOW() WHERE id = $1 AND status <> 'ARCHIVED'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
