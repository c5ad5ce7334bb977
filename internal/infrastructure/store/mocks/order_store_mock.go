package mocks

import (
	"context"
	"sync"

	"github.com/example/storefront/internal/order"
)

// MockOrderStore is an in-memory order.Store for testing. It mirrors
// the real store's idempotency contract: creating an order for an
// already-materialized reservation returns the existing order.
type MockOrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order // reservationID -> order

	// For tracking calls in tests
	CreateCalls []*order.Order
	CreateErr   error
}

// NewMockOrderStore creates a new MockOrderStore
func NewMockOrderStore() *MockOrderStore {
	return &MockOrderStore{
		orders: make(map[string]*order.Order),
	}
}

func (m *MockOrderStore) CreateOrder(ctx context.Context, o *order.Order) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CreateCalls = append(m.CreateCalls, o)
	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	if existing, ok := m.orders[o.ReservationID]; ok {
		return existing, nil
	}
	m.orders[o.ReservationID] = o
	return o, nil
}

func (m *MockOrderStore) GetByReservationID(ctx context.Context, reservationID string) (*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[reservationID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

func (m *MockOrderStore) ListByBuyer(ctx context.Context, buyerID string) ([]*order.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var orders []*order.Order
	for _, o := range m.orders {
		if o.BuyerID == buyerID {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

func (m *MockOrderStore) HasPurchased(ctx context.Context, buyerID, productID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, o := range m.orders {
		if o.BuyerID != buyerID || o.Status != order.StatusCompleted {
			continue
		}
		for _, l := range o.Lines {
			if l.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

// Orders returns all stored orders.
func (m *MockOrderStore) Orders() []*order.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := make([]*order.Order, 0, len(m.orders))
	for _, o := range m.orders {
		orders = append(orders, o)
	}
	return orders
}
