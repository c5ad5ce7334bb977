package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/storefront/internal/order"
	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL error code for a unique
// constraint violation.
const uniqueViolation = "23505"

// PostgresOrderStore persists orders. Correctness under concurrent
// duplicate webhook deliveries rests on the UNIQUE constraint on
// orders.reservation_id, not on application-level locking.
type PostgresOrderStore struct {
	db *sql.DB
}

func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

// CreateOrder inserts the order, its lines, and the discount-code
// usage increment in one transaction. If another transaction already
// materialized the same reservation, the existing order is returned
// with a nil error: the collision is a designed-for condition.
func (s *PostgresOrderStore) CreateOrder(ctx context.Context, o *order.Order) (*order.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var discountCodeID sql.NullString
	if o.DiscountCodeID != "" {
		discountCodeID = sql.NullString{String: o.DiscountCodeID, Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, buyer_id, price_paid, currency, status, reservation_id, discount_code_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.BuyerID, o.PricePaid, o.Currency, o.Status, o.ReservationID, discountCodeID, o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race: the reservation already has its order.
			return s.GetByReservationID(ctx, o.ReservationID)
		}
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	for _, l := range o.Lines {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_lines (order_id, product_id, quantity, price)
			 VALUES ($1, $2, $3, $4)`,
			o.ID, l.ProductID, l.Quantity, l.Price,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert order line: %w", err)
		}
	}

	// Single-statement increment: never read-then-write, so
	// concurrent completions using the same code cannot lose updates.
	if o.DiscountCodeID != "" {
		_, err = tx.ExecContext(ctx,
			`UPDATE discount_codes SET uses = uses + 1 WHERE id = $1`,
			o.DiscountCodeID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to increment discount uses: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return s.GetByReservationID(ctx, o.ReservationID)
		}
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return o, nil
}

// GetByReservationID returns the order materialized for a
// reservation, or ErrOrderNotFound.
func (s *PostgresOrderStore) GetByReservationID(ctx context.Context, reservationID string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, buyer_id, price_paid, currency, status, reservation_id, COALESCE(discount_code_id, ''), created_at
		 FROM orders WHERE reservation_id = $1`,
		reservationID,
	)
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if o.Lines, err = s.loadLines(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

// ListByBuyer returns the buyer's orders, newest first.
func (s *PostgresOrderStore) ListByBuyer(ctx context.Context, buyerID string) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, buyer_id, price_paid, currency, status, reservation_id, COALESCE(discount_code_id, ''), created_at
		 FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`,
		buyerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		if o.Lines, err = s.loadLines(ctx, o.ID); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// HasPurchased reports whether the buyer holds a completed order
// containing the product. Open reservations do not count.
func (s *PostgresOrderStore) HasPurchased(ctx context.Context, buyerID, productID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM orders o
		   JOIN order_lines l ON l.order_id = o.id
		   WHERE o.buyer_id = $1 AND l.product_id = $2 AND o.status = $3
		 )`,
		buyerID, productID, order.StatusCompleted,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check purchases: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.BuyerID, &o.PricePaid, &o.Currency, &o.Status, &o.ReservationID, &o.DiscountCodeID, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	return &o, nil
}

func (s *PostgresOrderStore) loadLines(ctx context.Context, orderID string) ([]order.Line, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, quantity, price FROM order_lines WHERE order_id = $1`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load order lines: %w", err)
	}
	defer rows.Close()

	var lines []order.Line
	for rows.Next() {
		var l order.Line
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.Price); err != nil {
			return nil, fmt.Errorf("failed to scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
