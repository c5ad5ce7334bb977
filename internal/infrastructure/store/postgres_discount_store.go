package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/storefront/internal/pricing"
	"github.com/lib/pq"
)

// PostgresDiscountStore reads discount codes. The uses counter is
// written only by order materialization, inside that transaction.
type PostgresDiscountStore struct {
	db *sql.DB
}

func NewPostgresDiscountStore(db *sql.DB) *PostgresDiscountStore {
	return &PostgresDiscountStore{db: db}
}

// GetByCode returns the discount code, or (nil, nil) when no such
// code exists; the resolver turns that into its not-found error.
func (s *PostgresDiscountStore) GetByCode(ctx context.Context, code string) (*pricing.DiscountCode, error) {
	var d pricing.DiscountCode
	var expiresAt sql.NullTime
	var limit sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT id, code, discount_type, amount, active, expires_at, usage_limit, uses, all_products, product_ids
		 FROM discount_codes WHERE code = $1`,
		code,
	).Scan(&d.ID, &d.Code, &d.Type, &d.Amount, &d.Active, &expiresAt, &limit, &d.Uses, &d.AllProducts, pq.Array(&d.ProductIDs))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discount code: %w", err)
	}

	if expiresAt.Valid {
		d.ExpiresAt = &expiresAt.Time
	}
	if limit.Valid {
		l := int(limit.Int64)
		d.Limit = &l
	}
	return &d, nil
}
