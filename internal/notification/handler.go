package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/storefront/internal/email"
	"github.com/example/storefront/internal/infrastructure/kafka"
	"github.com/example/storefront/internal/order"
)

// ProductNames resolves product ids to display names for the receipt.
// A miss is fine; the receipt falls back to the id.
type ProductNames interface {
	GetName(ctx context.Context, productID string) (string, bool)
}

// Handler processes order events and sends receipt emails. Receipts
// are best-effort: any failure here is logged and the order stands.
type Handler struct {
	emailService *email.Service
	products     ProductNames
}

// NewHandler creates a new notification handler
func NewHandler(emailSvc *email.Service, products ProductNames) *Handler {
	return &Handler{
		emailService: emailSvc,
		products:     products,
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event kafka.Event
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	// Only OrderCreated events carry a receipt to send.
	if event.Type != order.EventOrderCreated {
		return nil
	}
	return h.handleOrderCreated(ctx, event)
}

func (h *Handler) handleOrderCreated(ctx context.Context, event kafka.Event) error {
	var e order.OrderCreated
	if err := json.Unmarshal(event.Data, &e); err != nil {
		log.Printf("[Notifier] Failed to unmarshal OrderCreated event: %v", err)
		return err
	}

	log.Printf("[Notifier] Processing OrderCreated event for order %s, buyer %s", e.OrderID, e.BuyerID)

	if e.BuyerEmail == "" {
		log.Printf("[Notifier] No email on order %s, skipping receipt", e.OrderID)
		return nil
	}

	receiptLines := make([]email.ReceiptLine, len(e.Lines))
	for i, line := range e.Lines {
		name := line.ProductID
		if h.products != nil {
			if resolved, ok := h.products.GetName(ctx, line.ProductID); ok {
				name = resolved
			}
		}
		receiptLines[i] = email.ReceiptLine{
			ProductID: line.ProductID,
			Name:      name,
			Quantity:  line.Quantity,
			Price:     line.Price,
		}
	}

	if err := h.emailService.SendReceipt(e.BuyerEmail, e.OrderID, e.PricePaid, receiptLines); err != nil {
		log.Printf("[Notifier] Failed to send receipt to %s: %v", e.BuyerEmail, err)
		return err
	}

	log.Printf("[Notifier] Receipt sent to %s for order %s", e.BuyerEmail, e.OrderID)
	return nil
}
