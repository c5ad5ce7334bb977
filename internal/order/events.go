package order

import "time"

const EventOrderCreated = "OrderCreated"

// OrderCreated is published to Kafka after materialization commits.
// The notifier consumes it to send the receipt.
type OrderCreated struct {
	OrderID       string    `json:"order_id"`
	BuyerID       string    `json:"buyer_id"`
	BuyerEmail    string    `json:"buyer_email,omitempty"`
	ReservationID string    `json:"reservation_id"`
	PricePaid     int       `json:"price_paid"`
	Currency      string    `json:"currency"`
	Lines         []Line    `json:"lines"`
	CreatedAt     time.Time `json:"created_at"`
}
