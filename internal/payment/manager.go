package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/example/storefront/internal/cart"
	"github.com/example/storefront/internal/pricing"
)

// AlreadyPurchasedError carries the product ids the buyer already
// holds a completed order for.
type AlreadyPurchasedError struct {
	ProductIDs []string
}

func (e *AlreadyPurchasedError) Error() string {
	return "already purchased: " + strings.Join(e.ProductIDs, ", ")
}

// CompletedOrders answers the duplicate-purchase guard. Only completed
// orders count; an open reservation for the same product does not.
type CompletedOrders interface {
	HasPurchased(ctx context.Context, buyerID, productID string) (bool, error)
}

// Product is the read-only catalog lookup the manager needs.
type Product struct {
	ID    string
	Price int
}

type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
}

var (
	ErrProductNotFound = errors.New("product not found")
	ErrEmptyCheckout   = errors.New("checkout requires a product or cart lines")
)

// ReserveRequest describes one checkout attempt. Exactly one of
// ProductID (single checkout) or Lines (cart checkout) is set.
type ReserveRequest struct {
	BuyerID       string
	BuyerEmail    string
	ProductID     string
	Lines         []cart.Line
	DiscountCode  string
	ReservationID string // from a previous page load, may be stale
}

// Checkout is what the client needs to drive the processor's payment
// UI. The secret is handed out once; nothing durable exists yet.
type Checkout struct {
	ReservationID string `json:"reservation_id"`
	ClientSecret  string `json:"client_secret"`
	Amount        int    `json:"amount"`
}

// checkoutLine is a priced line, quantity 1 for single checkouts.
type checkoutLine struct {
	productID string
	price     int
	quantity  int
}

// Manager reconciles the client's cart with the processor's
// reservation lifecycle so a refreshed checkout page reuses the
// reservation it already has instead of minting a new one.
type Manager struct {
	processor Processor
	products  ProductLookup
	resolver  *pricing.Resolver
	orders    CompletedOrders
	currency  string
}

func NewManager(processor Processor, products ProductLookup, resolver *pricing.Resolver, orders CompletedOrders, currency string) *Manager {
	return &Manager{
		processor: processor,
		products:  products,
		resolver:  resolver,
		orders:    orders,
		currency:  currency,
	}
}

// EnsureReservation prices the checkout and returns an open
// reservation for it, reusing req.ReservationID when it still refers
// to an open reservation. Amount updates are applied server-side; the
// client never dictates the charge.
func (m *Manager) EnsureReservation(ctx context.Context, req ReserveRequest) (*Checkout, error) {
	lines, err := m.resolveLines(ctx, req)
	if err != nil {
		return nil, err
	}

	productIDs := make([]string, len(lines))
	for i, l := range lines {
		productIDs[i] = l.productID
	}

	if err := m.guardDuplicatePurchase(ctx, req.BuyerID, productIDs); err != nil {
		return nil, err
	}

	code, err := m.resolver.Resolve(ctx, req.DiscountCode, productIDs)
	if err != nil {
		return nil, err
	}

	var amount int
	for _, l := range lines {
		amount += pricing.Price(l.price, code) * l.quantity
	}

	md, err := buildMetadata(req, lines, code)
	if err != nil {
		return nil, err
	}

	// Reuse the reservation from a previous page load if it is still
	// open. A completed or canceled one gets replaced.
	if req.ReservationID != "" {
		existing, err := m.processor.Get(ctx, req.ReservationID)
		switch {
		case errors.Is(err, ErrReservationNotFound):
			// stale id, create a fresh reservation below
		case err != nil:
			return nil, err
		case existing.Open():
			// The metadata travels with the amount: a cart edit or a
			// late discount code must reach the materializer, or the
			// order describes a checkout the buyer no longer made.
			if existing.Amount != amount || existing.Metadata != md {
				if existing, err = m.processor.Update(ctx, existing.ID, amount, md); err != nil {
					return nil, err
				}
			}
			return &Checkout{ReservationID: existing.ID, ClientSecret: existing.ClientSecret, Amount: existing.Amount}, nil
		default:
			log.Printf("[Payment] Reservation %s is %s, creating a new one", existing.ID, existing.Status)
		}
	}

	res, err := m.processor.Create(ctx, amount, m.currency, md)
	if err != nil {
		return nil, err
	}
	return &Checkout{ReservationID: res.ID, ClientSecret: res.ClientSecret, Amount: res.Amount}, nil
}

// resolveLines fetches catalog prices for the request. Unit prices
// come from the catalog, not from the client's cart snapshot.
func (m *Manager) resolveLines(ctx context.Context, req ReserveRequest) ([]checkoutLine, error) {
	if req.ProductID != "" {
		p, err := m.lookupProduct(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		return []checkoutLine{{productID: p.ID, price: p.Price, quantity: 1}}, nil
	}

	if len(req.Lines) == 0 {
		return nil, ErrEmptyCheckout
	}
	lines := make([]checkoutLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		p, err := m.lookupProduct(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, checkoutLine{productID: p.ID, price: p.Price, quantity: l.Quantity})
	}
	return lines, nil
}

func (m *Manager) lookupProduct(ctx context.Context, id string) (*Product, error) {
	p, err := m.products.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p, nil
}

func (m *Manager) guardDuplicatePurchase(ctx context.Context, buyerID string, productIDs []string) error {
	var owned []string
	for _, id := range productIDs {
		has, err := m.orders.HasPurchased(ctx, buyerID, id)
		if err != nil {
			return err
		}
		if has {
			owned = append(owned, id)
		}
	}
	if len(owned) > 0 {
		sort.Strings(owned)
		return &AlreadyPurchasedError{ProductIDs: owned}
	}
	return nil
}

// buildMetadata snapshots the checkout into reservation metadata. The
// cart summary carries catalog prices, not the client's, so the
// materializer never trusts client-reported amounts.
func buildMetadata(req ReserveRequest, lines []checkoutLine, code *pricing.DiscountCode) (Metadata, error) {
	md := Metadata{BuyerID: req.BuyerID, BuyerEmail: req.BuyerEmail}
	if code != nil {
		md.DiscountCodeID = code.ID
	}
	if req.ProductID != "" {
		md.CheckoutType = CheckoutSingle
		md.ProductID = req.ProductID
		return md, nil
	}

	snapshot := make([]cart.Line, len(lines))
	for i, l := range lines {
		snapshot[i] = cart.Line{ProductID: l.productID, UnitPrice: l.price, Quantity: l.quantity}
	}
	summary, err := json.Marshal(snapshot)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to serialize cart summary: %w", err)
	}
	md.CheckoutType = CheckoutCart
	md.CartSummary = string(summary)
	return md, nil
}
