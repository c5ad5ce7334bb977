package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/cart"
	"github.com/example/storefront/internal/order"
	"github.com/example/storefront/internal/payment"
	"github.com/example/storefront/internal/pricing"
	"github.com/example/storefront/internal/webhook"
)

// SignatureHeader carries the payment processor's webhook signature.
const SignatureHeader = "Payment-Signature"

type Handlers struct {
	payments    *payment.Manager
	webhooks    *webhook.Handler
	orders      order.Store
	products    payment.ProductLookup
	cartPersist cart.Persistence
}

func NewHandlers(payments *payment.Manager, webhooks *webhook.Handler, orders order.Store, products payment.ProductLookup, cartPersist cart.Persistence) *Handlers {
	return &Handlers{
		payments:    payments,
		webhooks:    webhooks,
		orders:      orders,
		products:    products,
		cartPersist: cartPersist,
	}
}

// Checkout Handlers

func (h *Handlers) ReserveCheckout(w http.ResponseWriter, r *http.Request) {
	identity, email, ok := h.identify(w, r)
	if !ok {
		return
	}

	var req struct {
		ProductID     string `json:"product_id"`
		DiscountCode  string `json:"discount_code"`
		ReservationID string `json:"reservation_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	reserve := payment.ReserveRequest{
		BuyerID:       identity.ID,
		BuyerEmail:    email,
		ProductID:     req.ProductID,
		DiscountCode:  req.DiscountCode,
		ReservationID: req.ReservationID,
	}
	if req.ProductID == "" {
		// Cart checkout: lines come from the buyer's persisted cart,
		// never from the request body.
		lines, err := h.cartPersist.Load(r.Context(), identity)
		if err != nil {
			respondError(w, "failed to load cart", http.StatusInternalServerError)
			return
		}
		reserve.Lines = lines
	}

	checkout, err := h.payments.EnsureReservation(r.Context(), reserve)
	if err != nil {
		h.respondReserveError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, checkout)
}

func (h *Handlers) respondReserveError(w http.ResponseWriter, err error) {
	var purchased *payment.AlreadyPurchasedError
	switch {
	case errors.As(err, &purchased):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{
			"error":       "already purchased",
			"product_ids": purchased.ProductIDs,
		})
	case pricing.CodeRejected(err):
		respondError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, payment.ErrProcessorUnavailable):
		respondError(w, "payment processor unavailable, retry shortly", http.StatusBadGateway)
	case errors.Is(err, payment.ErrProductNotFound):
		respondError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, payment.ErrEmptyCheckout):
		respondError(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("[API] Checkout reservation failed: %v", err)
		respondError(w, "checkout failed", http.StatusInternalServerError)
	}
}

// Webhook Handlers

func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	outcome, err := h.webhooks.Handle(r.Context(), body, r.Header.Get(SignatureHeader))
	if err != nil {
		if errors.Is(err, webhook.ErrMalformedPayload) {
			respondError(w, "malformed payload", http.StatusBadRequest)
			return
		}
		// Not acknowledged; the processor will redeliver.
		log.Printf("[API] Webhook processing failed: %v", err)
		respondError(w, "processing failed", http.StatusInternalServerError)
		return
	}
	if outcome == webhook.OutcomeRejected {
		respondError(w, "invalid signature", http.StatusBadRequest)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}

// Cart Handlers

type cartView struct {
	Items         []cart.Line `json:"items"`
	TotalQuantity int         `json:"total_quantity"`
	TotalAmount   int         `json:"total_amount"`
}

func (h *Handlers) cartFor(w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	identity, _, ok := h.identify(w, r)
	if !ok {
		return nil, false
	}
	store := cart.NewStore(h.cartPersist)
	if err := store.SwitchIdentity(r.Context(), identity); err != nil {
		respondError(w, "failed to load cart", http.StatusInternalServerError)
		return nil, false
	}
	return store, true
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.cartFor(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, viewOf(store))
}

func (h *Handlers) AddToCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.cartFor(w, r)
	if !ok {
		return
	}

	var req struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	product, err := h.products.GetProduct(r.Context(), req.ProductID)
	if err != nil || product == nil {
		respondError(w, "product not found", http.StatusNotFound)
		return
	}

	result, err := store.Add(r.Context(), cart.Line{
		ProductID: product.ID,
		UnitPrice: product.Price,
		Quantity:  req.Quantity,
	})
	if err != nil {
		if errors.Is(err, cart.ErrInvalidProduct) {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondError(w, "failed to save cart", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.cartFor(w, r)
	if !ok {
		return
	}
	productID := extractPathParam(r.URL.Path, "/cart/items/")

	var req struct {
		Op       string `json:"op"` // set, increment, decrement
		Quantity int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result cart.Result
	var err error
	switch req.Op {
	case "increment":
		result, err = store.Increment(r.Context(), productID)
	case "decrement":
		result, err = store.Decrement(r.Context(), productID)
	case "set", "":
		result, err = store.SetQuantity(r.Context(), productID, req.Quantity)
	default:
		respondError(w, "unknown op: "+req.Op, http.StatusBadRequest)
		return
	}
	if err != nil {
		if errors.Is(err, cart.ErrLineNotFound) {
			respondError(w, "cart line not found", http.StatusNotFound)
			return
		}
		respondError(w, "failed to save cart", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.cartFor(w, r)
	if !ok {
		return
	}
	productID := extractPathParam(r.URL.Path, "/cart/items/")

	if err := store.Remove(r.Context(), productID); err != nil {
		if errors.Is(err, cart.ErrLineNotFound) {
			respondError(w, "cart line not found", http.StatusNotFound)
			return
		}
		respondError(w, "failed to save cart", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, viewOf(store))
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	store, ok := h.cartFor(w, r)
	if !ok {
		return
	}

	if err := store.Clear(r.Context()); err != nil {
		respondError(w, "failed to clear cart", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Order Handlers

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	identity, _, ok := h.identify(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListByBuyer(r.Context(), identity.ID)
	if err != nil {
		log.Printf("[API] Failed to list orders for %s: %v", identity.ID, err)
		respondError(w, "failed to list orders", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, orders)
}

// Helper functions

func viewOf(store *cart.Store) cartView {
	lines := store.Lines()
	qty, amount := store.Totals()
	return cartView{Items: lines, TotalQuantity: qty, TotalAmount: amount}
}

// identify resolves the shopper: JWT claims when present, guest id
// from the X-Guest-ID header otherwise.
func (h *Handlers) identify(w http.ResponseWriter, r *http.Request) (cart.Identity, string, bool) {
	if claims, ok := middleware.GetBuyerFromContext(r.Context()); ok {
		return cart.Identity{Kind: cart.KindUser, ID: claims.BuyerID}, claims.Email, true
	}
	if guestID := r.Header.Get("X-Guest-ID"); guestID != "" {
		return cart.Identity{Kind: cart.KindGuest, ID: guestID}, "", true
	}
	respondError(w, "buyer identity required", http.StatusUnauthorized)
	return cart.Identity{}, "", false
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
