package cart

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

const (
	MinQuantity = 1
	MaxQuantity = 99
)

var (
	ErrInvalidProduct = errors.New("product_id is required")
	ErrLineNotFound   = errors.New("cart line not found")
)

// IdentityKind discriminates guest carts from authenticated ones.
type IdentityKind string

const (
	KindGuest IdentityKind = "guest"
	KindUser  IdentityKind = "user"
)

// Identity names the shopper a cart belongs to. Switching identity
// swaps the active cart wholesale; carts are never merged.
type Identity struct {
	Kind IdentityKind
	ID   string
}

// Key is the persistence key for this identity's cart.
func (i Identity) Key() string {
	return fmt.Sprintf("cart:%s:%s", i.Kind, i.ID)
}

// Line is a single product in the cart. UnitPrice is snapshotted at
// add time; checkout re-prices from the reservation, not from here.
type Line struct {
	ProductID string `json:"product_id"`
	UnitPrice int    `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// Result reports the outcome of a quantity mutation. Out-of-range
// adjustments are a normal UI condition, so they come back as a
// reason string rather than an error.
type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

var (
	resultOK      = Result{OK: true}
	resultAtFloor = Result{OK: false, Reason: "quantity cannot go below 1"}
	resultAtCeil  = Result{OK: false, Reason: "quantity cannot exceed 99"}
)

// Persistence stores a cart durably per identity. Implementations live
// under internal/infrastructure/cartstore.
type Persistence interface {
	Load(ctx context.Context, identity Identity) ([]Line, error)
	Save(ctx context.Context, identity Identity, lines []Line) error
	Delete(ctx context.Context, identity Identity) error
}

// Store holds the active shopper's cart in memory and writes through
// to the persistence port after every mutation.
type Store struct {
	mu       sync.Mutex
	identity Identity
	lines    map[string]Line // productID -> line
	persist  Persistence
}

func NewStore(persist Persistence) *Store {
	return &Store{
		lines:   make(map[string]Line),
		persist: persist,
	}
}

// SwitchIdentity replaces the active cart with the new identity's
// persisted cart and clears the previous identity's persisted copy.
func (s *Store) SwitchIdentity(ctx context.Context, next Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.identity
	lines, err := s.persist.Load(ctx, next)
	if err != nil {
		return fmt.Errorf("failed to load cart for %s: %w", next.Key(), err)
	}

	s.identity = next
	s.lines = make(map[string]Line, len(lines))
	for _, l := range lines {
		s.lines[l.ProductID] = l
	}

	if prev.ID != "" && prev != next {
		if err := s.persist.Delete(ctx, prev); err != nil {
			log.Printf("[Cart] Failed to clear cart for %s: %v", prev.Key(), err)
		}
	}
	return nil
}

// Add puts a line in the cart. Adding a product that is already
// present replaces its quantity rather than accumulating.
func (s *Store) Add(ctx context.Context, line Line) (Result, error) {
	if line.ProductID == "" {
		return Result{}, ErrInvalidProduct
	}
	if line.Quantity < MinQuantity {
		return resultAtFloor, nil
	}
	if line.Quantity > MaxQuantity {
		return resultAtCeil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[line.ProductID] = line
	return resultOK, s.save(ctx)
}

// Remove deletes a line from the cart.
func (s *Store) Remove(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lines[productID]; !ok {
		return ErrLineNotFound
	}
	delete(s.lines, productID)
	return s.save(ctx)
}

// SetQuantity sets a line's quantity. Values outside [1,99] leave the
// line untouched and report why.
func (s *Store) SetQuantity(ctx context.Context, productID string, qty int) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[productID]
	if !ok {
		return Result{}, ErrLineNotFound
	}
	if qty < MinQuantity {
		return resultAtFloor, nil
	}
	if qty > MaxQuantity {
		return resultAtCeil, nil
	}

	line.Quantity = qty
	s.lines[productID] = line
	return resultOK, s.save(ctx)
}

// Increment raises a line's quantity by one, capped at 99.
func (s *Store) Increment(ctx context.Context, productID string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[productID]
	if !ok {
		return Result{}, ErrLineNotFound
	}
	if line.Quantity >= MaxQuantity {
		return resultAtCeil, nil
	}

	line.Quantity++
	s.lines[productID] = line
	return resultOK, s.save(ctx)
}

// Decrement lowers a line's quantity by one. At quantity 1 the line
// stays; removal is an explicit Remove.
func (s *Store) Decrement(ctx context.Context, productID string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[productID]
	if !ok {
		return Result{}, ErrLineNotFound
	}
	if line.Quantity <= MinQuantity {
		return resultAtFloor, nil
	}

	line.Quantity--
	s.lines[productID] = line
	return resultOK, s.save(ctx)
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = make(map[string]Line)
	return s.persist.Delete(ctx, s.identity)
}

// Lines returns a copy of the cart's lines.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]Line, 0, len(s.lines))
	for _, l := range s.lines {
		lines = append(lines, l)
	}
	return lines
}

// Totals returns the total item count and amount in cents.
func (s *Store) Totals() (quantity, amountInCents int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.lines {
		quantity += l.Quantity
		amountInCents += l.Quantity * l.UnitPrice
	}
	return quantity, amountInCents
}

func (s *Store) save(ctx context.Context) error {
	lines := make([]Line, 0, len(s.lines))
	for _, l := range s.lines {
		lines = append(lines, l)
	}
	if err := s.persist.Save(ctx, s.identity, lines); err != nil {
		return fmt.Errorf("failed to persist cart for %s: %w", s.identity.Key(), err)
	}
	return nil
}
