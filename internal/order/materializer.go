package order

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/example/storefront/internal/cart"
	"github.com/example/storefront/internal/payment"
	"github.com/google/uuid"
)

// Publisher emits order events. Failures after commit are logged,
// never propagated.
type Publisher interface {
	Publish(ctx context.Context, key, eventType string, event any) error
}

// Materializer turns a completed reservation into a durable order.
// Everything about the order is derived from the reservation's own
// metadata; no client-supplied payload is consulted.
type Materializer struct {
	store     Store
	publisher Publisher
}

func NewMaterializer(store Store, publisher Publisher) *Materializer {
	return &Materializer{store: store, publisher: publisher}
}

// Materialize creates the order for a completed reservation, exactly
// once. A reservation that already has an order returns that order;
// the store maps the unique-constraint violation for us, so two
// concurrent calls both come back with the same order.
func (m *Materializer) Materialize(ctx context.Context, res *payment.Reservation) (*Order, error) {
	lines, err := linesFromMetadata(res)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:             uuid.New().String(),
		BuyerID:        res.Metadata.BuyerID,
		PricePaid:      res.Amount,
		Currency:       res.Currency,
		Status:         StatusCompleted,
		ReservationID:  res.ID,
		DiscountCodeID: res.Metadata.DiscountCodeID,
		Lines:          lines,
		CreatedAt:      time.Now(),
	}

	created, err := m.store.CreateOrder(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("failed to create order for reservation %s: %w", res.ID, err)
	}

	if created.ID != o.ID {
		// Another delivery got there first; nothing new to announce.
		log.Printf("[Order] Reservation %s already materialized as order %s", res.ID, created.ID)
		return created, nil
	}

	// Receipt dispatch is fire-and-forget once the order is durable.
	if m.publisher != nil {
		event := OrderCreated{
			OrderID:       created.ID,
			BuyerID:       created.BuyerID,
			BuyerEmail:    res.Metadata.BuyerEmail,
			ReservationID: created.ReservationID,
			PricePaid:     created.PricePaid,
			Currency:      created.Currency,
			Lines:         created.Lines,
			CreatedAt:     created.CreatedAt,
		}
		if err := m.publisher.Publish(ctx, created.ID, EventOrderCreated, event); err != nil {
			log.Printf("[Order] Failed to publish OrderCreated for order %s: %v", created.ID, err)
		}
	}

	return created, nil
}

// linesFromMetadata rebuilds the order lines from the reservation. A
// completed reservation with unusable metadata is a real payment we
// cannot account for, so the error is loud and the caller must not
// acknowledge the notification.
func linesFromMetadata(res *payment.Reservation) ([]Line, error) {
	if res.Metadata.BuyerID == "" {
		return nil, fmt.Errorf("%w: buyer_id on reservation %s", ErrBadMetadata, res.ID)
	}

	switch res.Metadata.CheckoutType {
	case payment.CheckoutSingle:
		if res.Metadata.ProductID == "" {
			return nil, fmt.Errorf("%w: product_id on reservation %s", ErrBadMetadata, res.ID)
		}
		return []Line{{ProductID: res.Metadata.ProductID, Quantity: 1, Price: res.Amount}}, nil

	case payment.CheckoutCart:
		var snapshot []cart.Line
		if err := json.Unmarshal([]byte(res.Metadata.CartSummary), &snapshot); err != nil {
			return nil, fmt.Errorf("%w: cart summary on reservation %s: %v", ErrBadMetadata, res.ID, err)
		}
		if len(snapshot) == 0 {
			return nil, fmt.Errorf("%w: empty cart summary on reservation %s", ErrBadMetadata, res.ID)
		}
		lines := make([]Line, len(snapshot))
		for i, l := range snapshot {
			lines[i] = Line{ProductID: l.ProductID, Quantity: l.Quantity, Price: l.UnitPrice}
		}
		return lines, nil

	default:
		return nil, fmt.Errorf("%w: checkout_type %q on reservation %s", ErrBadMetadata, res.Metadata.CheckoutType, res.ID)
	}
}
