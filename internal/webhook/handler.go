package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/example/storefront/internal/order"
	"github.com/example/storefront/internal/payment"
)

// EventReservationCompleted is the one completion event type this
// system acts on. Everything else is acknowledged and ignored.
const EventReservationCompleted = "reservation.completed"

type Outcome string

const (
	OutcomeProcessed Outcome = "acknowledged-processed"
	OutcomeDuplicate Outcome = "acknowledged-duplicate"
	OutcomeIgnored   Outcome = "acknowledged-ignored"
	OutcomeRejected  Outcome = "rejected-unverified"
)

// Acknowledged reports whether the processor should treat the
// delivery as received (HTTP 200). Rejection and handler errors are
// the only paths that invite a retry.
func (o Outcome) Acknowledged() bool {
	return o != OutcomeRejected
}

var ErrMalformedPayload = errors.New("malformed notification payload")

// Notification is the parsed webhook envelope. ID is the processor's
// event id, the dedupe key; a retried delivery carries the same id.
type Notification struct {
	ID          string               `json:"id"`
	Type        string               `json:"type"`
	Reservation *payment.Reservation `json:"reservation"`
}

// Ledger is the append-only record of processed notification ids.
// Record must be atomic insert-if-absent; implementations back it
// with a unique constraint or a conditional write.
type Ledger interface {
	Seen(ctx context.Context, notificationID string) (bool, error)
	Record(ctx context.Context, notificationID string) error
}

// Materializer converts a completed reservation into an order.
type Materializer interface {
	Materialize(ctx context.Context, res *payment.Reservation) (*order.Order, error)
}

// Handler runs the completion state machine for one notification:
// verify, dedupe, dispatch, materialize, ledger write. It holds no
// state of its own; every guarantee rests on the ledger's and order
// store's uniqueness constraints, so concurrent duplicate deliveries
// are safe.
type Handler struct {
	signingSecret string
	ledger        Ledger
	materializer  Materializer
}

func NewHandler(signingSecret string, ledger Ledger, materializer Materializer) *Handler {
	return &Handler{
		signingSecret: signingSecret,
		ledger:        ledger,
		materializer:  materializer,
	}
}

// Handle processes one delivery. A non-nil error means the outcome
// must not be acknowledged yet; the processor's retry schedule covers
// redelivery, this system never schedules its own.
func (h *Handler) Handle(ctx context.Context, body []byte, sigHeader string) (Outcome, error) {
	// Security boundary first: an unverified payload is not parsed,
	// not recorded, not answered in detail.
	if err := payment.VerifySignature(body, sigHeader, h.signingSecret); err != nil {
		log.Printf("[Webhook] Rejected unverified notification: %v", err)
		return OutcomeRejected, nil
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil || n.ID == "" {
		return OutcomeRejected, nil
	}

	seen, err := h.ledger.Seen(ctx, n.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check ledger for %s: %w", n.ID, err)
	}
	if seen {
		log.Printf("[Webhook] Notification %s already processed, acknowledging replay", n.ID)
		return OutcomeDuplicate, nil
	}

	// Only the completion event materializes. Ignored types get no
	// ledger write, so a later relevant event for the same resource
	// is not blocked.
	if n.Type != EventReservationCompleted {
		return OutcomeIgnored, nil
	}
	if n.Reservation == nil {
		return "", fmt.Errorf("%w: notification %s has no reservation", ErrMalformedPayload, n.ID)
	}

	o, err := h.materializer.Materialize(ctx, n.Reservation)
	if err != nil {
		// Not acknowledged: the processor retries, and the order
		// store's reservation_id uniqueness absorbs the replay.
		return "", fmt.Errorf("failed to materialize reservation %s: %w", n.Reservation.ID, err)
	}

	if err := h.ledger.Record(ctx, n.ID); err != nil {
		// The order exists; a retry will hit the reservation_id
		// constraint and come back idempotent. Acknowledge.
		log.Printf("[Webhook] Order %s created but ledger write for %s failed: %v", o.ID, n.ID, err)
	}

	log.Printf("[Webhook] Notification %s materialized order %s", n.ID, o.ID)
	return OutcomeProcessed, nil
}
