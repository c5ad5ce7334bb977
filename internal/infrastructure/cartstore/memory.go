package cartstore

import (
	"context"
	"sync"

	"github.com/example/storefront/internal/cart"
)

// MemoryStore keeps carts in process memory. Used in tests and
// single-node development setups.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[string][]cart.Line
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string][]cart.Line)}
}

func (s *MemoryStore) Load(ctx context.Context, identity cart.Identity) ([]cart.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := s.carts[identity.Key()]
	out := make([]cart.Line, len(lines))
	copy(out, lines)
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, identity cart.Identity, lines []cart.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]cart.Line, len(lines))
	copy(stored, lines)
	s.carts[identity.Key()] = stored
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, identity cart.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, identity.Key())
	return nil
}
