package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPersistence is a test double recording saves per identity key.
type memPersistence struct {
	carts       map[string][]Line
	saveCalls   int
	deleteCalls []string
}

func newMemPersistence() *memPersistence {
	return &memPersistence{carts: make(map[string][]Line)}
}

func (m *memPersistence) Load(ctx context.Context, id Identity) ([]Line, error) {
	return m.carts[id.Key()], nil
}

func (m *memPersistence) Save(ctx context.Context, id Identity, lines []Line) error {
	m.saveCalls++
	m.carts[id.Key()] = lines
	return nil
}

func (m *memPersistence) Delete(ctx context.Context, id Identity) error {
	m.deleteCalls = append(m.deleteCalls, id.Key())
	delete(m.carts, id.Key())
	return nil
}

func newTestStore() (*Store, *memPersistence) {
	p := newMemPersistence()
	s := NewStore(p)
	_ = s.SwitchIdentity(context.Background(), Identity{Kind: KindGuest, ID: "g-1"})
	return s, p
}

// ============================================
// Add / Remove Tests
// ============================================

func TestStore_Add(t *testing.T) {
	s, p := newTestStore()
	ctx := context.Background()

	res, err := s.Add(ctx, Line{ProductID: "prod-1", UnitPrice: 2999, Quantity: 2})

	require.NoError(t, err)
	assert.True(t, res.OK)
	qty, amount := s.Totals()
	assert.Equal(t, 2, qty)
	assert.Equal(t, 5998, amount)
	assert.Equal(t, 1, p.saveCalls) // persisted after the mutation
}

func TestStore_Add_MissingProduct(t *testing.T) {
	s, _ := newTestStore()

	_, err := s.Add(context.Background(), Line{UnitPrice: 100, Quantity: 1})

	assert.ErrorIs(t, err, ErrInvalidProduct)
}

func TestStore_Add_QuantityOutOfRange(t *testing.T) {
	s, p := newTestStore()
	ctx := context.Background()

	res, err := s.Add(ctx, Line{ProductID: "prod-1", UnitPrice: 100, Quantity: 0})
	require.NoError(t, err)
	assert.False(t, res.OK)

	res, err = s.Add(ctx, Line{ProductID: "prod-1", UnitPrice: 100, Quantity: 100})
	require.NoError(t, err)
	assert.False(t, res.OK)

	assert.Empty(t, s.Lines())
	assert.Equal(t, 0, p.saveCalls)
}

func TestStore_Remove(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	_, _ = s.Add(ctx, Line{ProductID: "prod-1", UnitPrice: 100, Quantity: 1})

	require.NoError(t, s.Remove(ctx, "prod-1"))
	assert.Empty(t, s.Lines())

	assert.ErrorIs(t, s.Remove(ctx, "prod-1"), ErrLineNotFound)
}

// ============================================
// Quantity Clamp Tests
// ============================================

func TestStore_Decrement_AtFloor(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	_, _ = s.Add(ctx, Line{ProductID: "prod-1", UnitPrice: 100, Quantity: 1})

	res, err := s.Decrement(ctx, "prod-1")

	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "quantity cannot go below 1", res.Reason)
	qty, _ := s.Totals()
	assert.Equal(t, 1, qty) // unchanged
}

func TestStore_Increment_AtCeiling(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	_, _ = s.Add(ctx, Line{ProductID: "prod-1", UnitPrice: 100, Quantity: 99})

	res, err := s.Increment(ctx, "prod-1")

	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "quantity cannot exceed 99", res.Reason)
	qty, _ := s.Totals()
	assert.Equal(t, 99, qty)
}

func TestStore_SetQuantity(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	_, _ = s.Add(ctx, Line{ProductID: "prod-1", UnitPrice: 100, Quantity: 5})

	res, err := s.SetQuantity(ctx, "prod-1", 10)
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = s.SetQuantity(ctx, "prod-1", 0)
	require.NoError(t, err)
	assert.False(t, res.OK)

	res, err = s.SetQuantity(ctx, "prod-1", 100)
	require.NoError(t, err)
	assert.False(t, res.OK)

	qty, _ := s.Totals()
	assert.Equal(t, 10, qty)
}

func TestStore_SetQuantity_UnknownLine(t *testing.T) {
	s, _ := newTestStore()

	_, err := s.SetQuantity(context.Background(), "prod-9", 3)

	assert.ErrorIs(t, err, ErrLineNotFound)
}

// ============================================
// Identity Tests
// ============================================

func TestStore_SwitchIdentity_SwapsNotMerges(t *testing.T) {
	p := newMemPersistence()
	s := NewStore(p)
	ctx := context.Background()

	guest := Identity{Kind: KindGuest, ID: "g-1"}
	user := Identity{Kind: KindUser, ID: "u-1"}
	p.carts[user.Key()] = []Line{{ProductID: "prod-2", UnitPrice: 500, Quantity: 3}}

	require.NoError(t, s.SwitchIdentity(ctx, guest))
	_, _ = s.Add(ctx, Line{ProductID: "prod-1", UnitPrice: 100, Quantity: 1})

	require.NoError(t, s.SwitchIdentity(ctx, user))

	// The user's persisted cart replaces the guest cart wholesale.
	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "prod-2", lines[0].ProductID)

	// The guest's persisted cart was cleared on switch.
	assert.Contains(t, p.deleteCalls, guest.Key())
	assert.NotContains(t, p.carts, guest.Key())
}

func TestStore_Clear(t *testing.T) {
	s, p := newTestStore()
	ctx := context.Background()
	_, _ = s.Add(ctx, Line{ProductID: "prod-1", UnitPrice: 100, Quantity: 1})

	require.NoError(t, s.Clear(ctx))

	assert.Empty(t, s.Lines())
	assert.NotContains(t, p.carts, "cart:guest:g-1")
}

func TestIdentity_Key(t *testing.T) {
	assert.Equal(t, "cart:guest:abc", Identity{Kind: KindGuest, ID: "abc"}.Key())
	assert.Equal(t, "cart:user:u-1", Identity{Kind: KindUser, ID: "u-1"}.Key())
}
