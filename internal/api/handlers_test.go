package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/cart"
	"github.com/example/storefront/internal/infrastructure/cartstore"
	"github.com/example/storefront/internal/infrastructure/store/mocks"
	"github.com/example/storefront/internal/order"
	"github.com/example/storefront/internal/payment"
	"github.com/example/storefront/internal/pricing"
	"github.com/example/storefront/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningSecret = "whsec_test"

// ============================================
// Test doubles
// ============================================

type stubProcessor struct {
	reservations map[string]*payment.Reservation
	nextID       int
}

func newStubProcessor() *stubProcessor {
	return &stubProcessor{reservations: make(map[string]*payment.Reservation)}
}

func (p *stubProcessor) Create(ctx context.Context, amount int, currency string, md payment.Metadata) (*payment.Reservation, error) {
	p.nextID++
	res := &payment.Reservation{
		ID:           fmt.Sprintf("res_%d", p.nextID),
		Amount:       amount,
		Currency:     currency,
		Status:       payment.StatusOpen,
		ClientSecret: fmt.Sprintf("secret_%d", p.nextID),
		Metadata:     md,
	}
	p.reservations[res.ID] = res
	return res, nil
}

func (p *stubProcessor) Get(ctx context.Context, id string) (*payment.Reservation, error) {
	res, ok := p.reservations[id]
	if !ok {
		return nil, payment.ErrReservationNotFound
	}
	return res, nil
}

func (p *stubProcessor) Update(ctx context.Context, id string, amount int, md payment.Metadata) (*payment.Reservation, error) {
	res, ok := p.reservations[id]
	if !ok {
		return nil, payment.ErrReservationNotFound
	}
	res.Amount = amount
	res.Metadata = md
	return res, nil
}

type stubCatalog struct {
	prices map[string]int
}

func (c *stubCatalog) GetProduct(ctx context.Context, id string) (*payment.Product, error) {
	price, ok := c.prices[id]
	if !ok {
		return nil, nil
	}
	return &payment.Product{ID: id, Price: price}, nil
}

type stubCodeStore struct {
	codes map[string]*pricing.DiscountCode
}

func (s *stubCodeStore) GetByCode(ctx context.Context, code string) (*pricing.DiscountCode, error) {
	return s.codes[code], nil
}

// ============================================
// Test server wiring
// ============================================

type testServer struct {
	router     http.Handler
	jwtService *auth.JWTService
	orderStore *mocks.MockOrderStore
	processor  *stubProcessor
	cartStore  *cartstore.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	processor := newStubProcessor()
	catalog := &stubCatalog{prices: map[string]int{
		"prod-guide": 2999,
		"prod-video": 4999,
	}}
	codes := &stubCodeStore{codes: map[string]*pricing.DiscountCode{
		"LAUNCH10": {
			ID:          "code-1",
			Code:        "LAUNCH10",
			Type:        pricing.TypePercentage,
			Amount:      10,
			Active:      true,
			AllProducts: true,
		},
	}}

	orderStore := mocks.NewMockOrderStore()
	resolver := pricing.NewResolver(codes)
	manager := payment.NewManager(processor, catalog, resolver, orderStore, "usd")

	materializer := order.NewMaterializer(orderStore, mocks.NewMockPublisher())
	webhooks := webhook.NewHandler(testSigningSecret, mocks.NewMockLedger(), materializer)

	cartPersist := cartstore.NewMemoryStore()
	handlers := NewHandlers(manager, webhooks, orderStore, catalog, cartPersist)
	jwtService := auth.NewJWTService("test-secret", 15*time.Minute)

	return &testServer{
		router:     NewRouter(handlers, jwtService),
		jwtService: jwtService,
		orderStore: orderStore,
		processor:  processor,
		cartStore:  cartPersist,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if decorate != nil {
		decorate(req)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func asGuest(id string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("X-Guest-ID", id) }
}

func (s *testServer) asBuyer(t *testing.T, buyerID, email string) func(*http.Request) {
	t.Helper()
	token, _, err := s.jwtService.GenerateToken(buyerID, email)
	require.NoError(t, err)
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

// ============================================
// Checkout
// ============================================

func TestReserveCheckout_SingleProduct(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/checkout/reserve",
		map[string]string{"product_id": "prod-guide"}, asGuest("guest-1"))

	require.Equal(t, http.StatusOK, rec.Code)

	var checkout payment.Checkout
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &checkout))
	assert.Equal(t, "res_1", checkout.ReservationID)
	assert.Equal(t, "secret_1", checkout.ClientSecret)
	assert.Equal(t, 2999, checkout.Amount)
}

func TestReserveCheckout_DiscountApplied(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/checkout/reserve",
		map[string]string{"product_id": "prod-guide", "discount_code": "LAUNCH10"},
		asGuest("guest-1"))

	require.Equal(t, http.StatusOK, rec.Code)

	var checkout payment.Checkout
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &checkout))
	assert.Equal(t, 2700, checkout.Amount)
}

func TestReserveCheckout_RejectedCode(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/checkout/reserve",
		map[string]string{"product_id": "prod-guide", "discount_code": "NOPE"},
		asGuest("guest-1"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestReserveCheckout_AlreadyPurchased(t *testing.T) {
	s := newTestServer(t)

	_, err := s.orderStore.CreateOrder(context.Background(), &order.Order{
		ID:            "order-1",
		BuyerID:       "buyer-1",
		Status:        order.StatusCompleted,
		ReservationID: "res_done",
		Lines:         []order.Line{{ProductID: "prod-guide", Quantity: 1, Price: 2999}},
	})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/checkout/reserve",
		map[string]string{"product_id": "prod-guide"},
		s.asBuyer(t, "buyer-1", "buyer@example.com"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "prod-guide")
}

func TestReserveCheckout_CartCheckoutUsesPersistedCart(t *testing.T) {
	s := newTestServer(t)

	// Put two items in the guest's cart first.
	rec := s.do(t, http.MethodPost, "/cart/items",
		map[string]any{"product_id": "prod-guide", "quantity": 2}, asGuest("guest-7"))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/cart/items",
		map[string]any{"product_id": "prod-video", "quantity": 1}, asGuest("guest-7"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/checkout/reserve",
		map[string]string{}, asGuest("guest-7"))

	require.Equal(t, http.StatusOK, rec.Code)

	var checkout payment.Checkout
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &checkout))
	assert.Equal(t, 2*2999+4999, checkout.Amount)
}

func TestReserveCheckout_EmptyCart(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/checkout/reserve",
		map[string]string{}, asGuest("guest-empty"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReserveCheckout_NoIdentity(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/checkout/reserve",
		map[string]string{"product_id": "prod-guide"}, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================
// Webhook
// ============================================

func signedWebhook(t *testing.T, notificationID string, res *payment.Reservation) ([]byte, string) {
	t.Helper()
	body, err := json.Marshal(webhook.Notification{
		ID:          notificationID,
		Type:        webhook.EventReservationCompleted,
		Reservation: res,
	})
	require.NoError(t, err)
	return body, payment.Sign(body, testSigningSecret, time.Now())
}

func TestPaymentWebhook_MaterializesOrder(t *testing.T) {
	s := newTestServer(t)

	res := &payment.Reservation{
		ID:       "res_hook",
		Amount:   2999,
		Currency: "usd",
		Status:   payment.StatusCompleted,
		Metadata: payment.Metadata{
			CheckoutType: payment.CheckoutSingle,
			BuyerID:      "buyer-9",
			ProductID:    "prod-guide",
		},
	}
	body, sig := signedWebhook(t, "evt_1", res)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, sig)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), string(webhook.OutcomeProcessed))

	created, err := s.orderStore.GetByReservationID(context.Background(), "res_hook")
	require.NoError(t, err)
	assert.Equal(t, "buyer-9", created.BuyerID)
}

func TestPaymentWebhook_DuplicateDelivery(t *testing.T) {
	s := newTestServer(t)

	res := &payment.Reservation{
		ID:       "res_dup",
		Amount:   2999,
		Currency: "usd",
		Status:   payment.StatusCompleted,
		Metadata: payment.Metadata{
			CheckoutType: payment.CheckoutSingle,
			BuyerID:      "buyer-9",
			ProductID:    "prod-guide",
		},
	}
	body, sig := signedWebhook(t, "evt_dup", res)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
		req.Header.Set(SignatureHeader, sig)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Len(t, s.orderStore.Orders(), 1)
}

func TestPaymentWebhook_BadSignature(t *testing.T) {
	s := newTestServer(t)

	body := []byte(`{"id":"evt_2","type":"reservation.completed"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, s.orderStore.Orders())
}

// ============================================
// Cart
// ============================================

func TestCart_AddAndGet(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/cart/items",
		map[string]any{"product_id": "prod-guide", "quantity": 3}, asGuest("guest-c"))
	require.Equal(t, http.StatusOK, rec.Code)

	var result cart.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.OK)

	rec = s.do(t, http.MethodGet, "/cart", nil, asGuest("guest-c"))
	require.Equal(t, http.StatusOK, rec.Code)

	var view cartView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.TotalQuantity)
	assert.Equal(t, 3*2999, view.TotalAmount)
}

func TestCart_AddUnknownProduct(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/cart/items",
		map[string]any{"product_id": "prod-missing", "quantity": 1}, asGuest("guest-c"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCart_QuantityClampsAreNotErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/cart/items",
		map[string]any{"product_id": "prod-guide", "quantity": 1}, asGuest("guest-c"))
	require.Equal(t, http.StatusOK, rec.Code)

	// Decrement at the floor comes back 200 with ok=false.
	rec = s.do(t, http.MethodPatch, "/cart/items/prod-guide",
		map[string]any{"op": "decrement"}, asGuest("guest-c"))
	require.Equal(t, http.StatusOK, rec.Code)

	var result cart.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.OK)
	assert.Contains(t, result.Reason, "below 1")

	// Setting above the ceiling likewise.
	rec = s.do(t, http.MethodPatch, "/cart/items/prod-guide",
		map[string]any{"op": "set", "quantity": 100}, asGuest("guest-c"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.OK)
	assert.Contains(t, result.Reason, "exceed 99")
}

func TestCart_UpdateMissingLine(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPatch, "/cart/items/prod-guide",
		map[string]any{"op": "increment"}, asGuest("guest-c"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCart_RemoveMissingLine(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodDelete, "/cart/items/prod-guide", nil, asGuest("guest-c"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not found")
}

func TestCart_RemoveAndClear(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/cart/items",
		map[string]any{"product_id": "prod-guide", "quantity": 1}, asGuest("guest-c"))
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodPost, "/cart/items",
		map[string]any{"product_id": "prod-video", "quantity": 1}, asGuest("guest-c"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/cart/items/prod-guide", nil, asGuest("guest-c"))
	require.Equal(t, http.StatusOK, rec.Code)

	var view cartView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Len(t, view.Items, 1)

	rec = s.do(t, http.MethodDelete, "/cart", nil, asGuest("guest-c"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/cart", nil, asGuest("guest-c"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Empty(t, view.Items)
}

func TestCart_GuestAndBuyerCartsAreSeparate(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/cart/items",
		map[string]any{"product_id": "prod-guide", "quantity": 1}, asGuest("guest-x"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/cart", nil, s.asBuyer(t, "guest-x", "x@example.com"))
	require.Equal(t, http.StatusOK, rec.Code)

	var view cartView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Empty(t, view.Items)
}

// ============================================
// Orders
// ============================================

func TestGetOrders_ReturnsBuyersOrders(t *testing.T) {
	s := newTestServer(t)

	_, err := s.orderStore.CreateOrder(context.Background(), &order.Order{
		ID:            "order-1",
		BuyerID:       "buyer-1",
		Status:        order.StatusCompleted,
		ReservationID: "res_a",
	})
	require.NoError(t, err)
	_, err = s.orderStore.CreateOrder(context.Background(), &order.Order{
		ID:            "order-2",
		BuyerID:       "buyer-2",
		Status:        order.StatusCompleted,
		ReservationID: "res_b",
	})
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/orders", nil, s.asBuyer(t, "buyer-1", "b1@example.com"))
	require.Equal(t, http.StatusOK, rec.Code)

	var orders []*order.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "order-1", orders[0].ID)
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/checkout/reserve", nil, asGuest("guest-1"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = s.do(t, http.MethodDelete, "/webhooks/payment", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
