package mocks

import (
	"context"
	"sync"
)

// MockLedger is an in-memory idempotency ledger for testing.
type MockLedger struct {
	mu        sync.Mutex
	processed map[string]bool

	// For tracking calls in tests
	RecordCalls []string
	RecordErr   error
	SeenErr     error
}

// NewMockLedger creates a new MockLedger
func NewMockLedger() *MockLedger {
	return &MockLedger{processed: make(map[string]bool)}
}

func (m *MockLedger) Seen(ctx context.Context, notificationID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SeenErr != nil {
		return false, m.SeenErr
	}
	return m.processed[notificationID], nil
}

func (m *MockLedger) Record(ctx context.Context, notificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.RecordCalls = append(m.RecordCalls, notificationID)
	m.processed[notificationID] = true
	return nil
}
