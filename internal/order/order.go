package order

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusRefunded  Status = "refunded"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrBadMetadata   = errors.New("reservation metadata is missing required fields")
)

type Line struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int    `json:"price"`
}

// Order is the durable record of a completed reservation. The unique
// constraint on ReservationID is what makes materialization
// exactly-once under retried and concurrent webhook deliveries.
type Order struct {
	ID             string    `json:"id"`
	BuyerID        string    `json:"buyer_id"`
	PricePaid      int       `json:"price_paid"`
	Currency       string    `json:"currency"`
	Status         Status    `json:"status"`
	ReservationID  string    `json:"reservation_id"`
	DiscountCodeID string    `json:"discount_code_id,omitempty"`
	Lines          []Line    `json:"lines"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is the durable order persistence contract. CreateOrder must
// insert the order, its lines, and the discount-code usage increment
// in one transaction, and must return the existing order (not an
// error) when the reservation id is already taken.
type Store interface {
	CreateOrder(ctx context.Context, o *Order) (*Order, error)
	GetByReservationID(ctx context.Context, reservationID string) (*Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*Order, error)
	HasPurchased(ctx context.Context, buyerID, productID string) (bool, error)
}
