package payment

import (
	"context"
	"errors"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

type CheckoutType string

const (
	CheckoutSingle CheckoutType = "single"
	CheckoutCart   CheckoutType = "cart"
)

var (
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
)

// Metadata travels with the reservation and is the only trusted input
// for order materialization once the payment completes.
type Metadata struct {
	CheckoutType   CheckoutType `json:"checkout_type"`
	BuyerID        string       `json:"buyer_id"`
	BuyerEmail     string       `json:"buyer_email,omitempty"`
	ProductID      string       `json:"product_id,omitempty"`
	CartSummary    string       `json:"cart_summary,omitempty"`
	DiscountCodeID string       `json:"discount_code_id,omitempty"`
}

// Reservation is a provisional hold for a charge amount held by the
// payment processor. The amount is fixed here at creation; the client
// never reports it back.
type Reservation struct {
	ID           string   `json:"id"`
	Amount       int      `json:"amount"`
	Currency     string   `json:"currency"`
	Status       Status   `json:"status"`
	ClientSecret string   `json:"client_secret,omitempty"`
	Metadata     Metadata `json:"metadata"`
}

// Open reports whether the reservation can still be amended.
func (r *Reservation) Open() bool {
	return r.Status == StatusOpen
}

// Processor is the payment-processor contract this system relies on.
// Update replaces both the amount and the metadata: the two describe
// the same checkout and must never drift apart.
type Processor interface {
	Create(ctx context.Context, amount int, currency string, md Metadata) (*Reservation, error)
	Get(ctx context.Context, id string) (*Reservation, error)
	Update(ctx context.Context, id string, amount int, md Metadata) (*Reservation, error)
}
