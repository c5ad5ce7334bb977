package mocks

import (
	"context"
	"sync"
)

// PublishCall records parameters passed to Publish
type PublishCall struct {
	Key       string
	EventType string
	Event     any
}

// MockPublisher records published events for testing.
type MockPublisher struct {
	mu sync.Mutex

	PublishCalls []PublishCall
	PublishErr   error
}

// NewMockPublisher creates a new MockPublisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, key, eventType string, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.PublishCalls = append(m.PublishCalls, PublishCall{Key: key, EventType: eventType, Event: event})
	return nil
}
