package sellers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the seller does not exist.
var ErrNotFound = errors.New("sellers: not found")

// Repository provides persistence for the seller registry.
type Repository interface {
	Get(ctx context.Context, id int64) (*Seller, error)
	List(ctx context.Context) ([]Seller, error)
	Create(ctx context.Context, name string, taxID *string) (int64, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Postgres-backed seller repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, id int64) (*Seller, error) {
	const query = `SELECT id, name, tax_id, is_active, created_at, updated_at FROM sellers WHERE id = $1`
	var s Seller
	err := r.pool.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.TaxID, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) List(ctx context.Context) ([]Seller, error) {
	const query = `SELECT id, name, tax_id, is_active, created_at, updated_at FROM sellers ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Seller
	for rows.Next() {
		var s Seller
		if err := rows.Scan(&s.ID, &s.Name, &s.TaxID, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) Create(ctx context.Context, name string, taxID *string) (int64, error) {
	const query = `INSERT INTO sellers (name, tax_id, is_active) VALUES ($1, $2, TRUE) RETURNING id`
	var id int64
	if err := r.pool.QueryRow(ctx, query, name, taxID).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) SetActive(ctx context.Context, id int64, active bool) error {
	const query = `UPDATE sellers SET is_active = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
