package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/storefront/internal/payment"
)

// PostgresProductStore reads the product catalog. The catalog is
// administered externally; checkout always prices from here, never
// from the client.
type PostgresProductStore struct {
	db *sql.DB
}

func NewPostgresProductStore(db *sql.DB) *PostgresProductStore {
	return &PostgresProductStore{db: db}
}

// GetProduct returns the product, or (nil, nil) when no active
// product with that id exists.
func (s *PostgresProductStore) GetProduct(ctx context.Context, id string) (*payment.Product, error) {
	var p payment.Product
	err := s.db.QueryRowContext(ctx,
		`SELECT id, price FROM products WHERE id = $1 AND active`,
		id,
	).Scan(&p.ID, &p.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// GetName resolves a product id to its display name for receipts.
func (s *PostgresProductStore) GetName(ctx context.Context, id string) (string, bool) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM products WHERE id = $1`,
		id,
	).Scan(&name)
	if err != nil {
		return "", false
	}
	return name, true
}
