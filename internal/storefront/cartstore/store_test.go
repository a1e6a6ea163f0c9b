package cartstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/example/grocery-storefront/internal/backend"
	"github.com/example/grocery-storefront/internal/backend/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(opts ...Option) (*Store, *mocks.MockClient) {
	client := mocks.NewMockClient()
	store := NewStore("user-1", "market-1", client, opts...)
	return store, client
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type memoryCache struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
	setErr    error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{snapshots: make(map[string]Snapshot)}
}

func (c *memoryCache) Get(ctx context.Context, ownerID string) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.snapshots[ownerID]
	if !ok {
		return nil, ErrCacheMiss
	}
	return &s, nil
}

func (c *memoryCache) Set(ctx context.Context, ownerID string, snapshot *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.snapshots[ownerID] = *snapshot
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, ownerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, ownerID)
	return nil
}

func assertTotalMatchesLines(t *testing.T, snap Snapshot) {
	t.Helper()
	expected := decimal.Zero
	for _, l := range snap.Lines {
		expected = expected.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	assert.True(t, expected.Round(2).Equal(snap.TotalPrice), "total %s != lines %s", snap.TotalPrice, expected)
}

// ============================================
// AddItem Tests
// ============================================

func TestStore_AddItem_CreatesCartLazily(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.AddItem(ctx, "apple", price("1.20"), 3))

	require.Len(t, client.CreateCartCalls, 1)
	require.Len(t, client.AddItemCalls, 1)
	assert.Equal(t, "cart-1", client.AddItemCalls[0].CartID)
	assert.Equal(t, 3, client.AddItemCalls[0].Quantity)

	snap := store.Snapshot()
	assert.Equal(t, "cart-1", snap.CartID)
	require.Len(t, snap.Lines, 1)
	assert.True(t, price("3.60").Equal(snap.TotalPrice))
	assert.Equal(t, uint64(1), snap.Revision)
}

func TestStore_AddItem_SameItemTwiceMergesLine(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.AddItem(ctx, "milk", price("2.00"), 1))
	require.NoError(t, store.AddItem(ctx, "milk", price("2.00"), 1))

	snap := store.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 2, snap.Lines[0].Quantity)
	assert.True(t, price("4.00").Equal(snap.TotalPrice))
	assert.Len(t, client.CreateCartCalls, 1)
}

func TestStore_AddItem_InvalidQuantityOnNewLine(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()

	for _, delta := range []int{0, -1} {
		err := store.AddItem(ctx, "bread", price("3.00"), delta)
		assert.ErrorIs(t, err, ErrInvalidQuantity)
	}

	assert.Empty(t, client.CreateCartCalls)
	assert.Empty(t, client.AddItemCalls)
	assert.Equal(t, uint64(0), store.Revision())
}

func TestStore_AddItem_Validation(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.AddItem(ctx, "", price("1"), 1), ErrInvalidItem)
	assert.ErrorIs(t, store.AddItem(ctx, "x", price("-1"), 1), ErrInvalidPrice)
}

func TestStore_AddItem_NegativeDeltaRemovesAtZero(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.AddItem(ctx, "egg", price("0.50"), 2))
	require.NoError(t, store.AddItem(ctx, "egg", price("0.50"), -2))

	assert.True(t, store.Snapshot().IsEmpty())
	require.Len(t, client.RemoveItemCalls, 1)
	assert.Equal(t, 0, client.RemoveItemCalls[0].Quantity)
}

func TestStore_AddItem_BackendFailureLeavesStateUnchanged(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.AddItem(ctx, "tea", price("4.00"), 1))
	before := store.Snapshot()

	client.CartErr = fmt.Errorf("dial tcp: %w", backend.ErrServiceUnavailable)
	err := store.AddItem(ctx, "tea", price("4.00"), 1)

	assert.ErrorIs(t, err, backend.ErrServiceUnavailable)
	assert.Equal(t, before, store.Snapshot())
}

func TestStore_AddItem_ConcurrentIncrementsSerialize(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, "rice", price("1.00"), 1))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.AddItem(ctx, "rice", price("1.00"), 1))
		}()
	}
	wg.Wait()

	snap := store.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 11, snap.Lines[0].Quantity)
	assert.True(t, price("11.00").Equal(snap.TotalPrice))
}

// ============================================
// RemoveItem Tests
// ============================================

func TestStore_RemoveItem_Scenario(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.AddItem(ctx, "cheese", price("25.00"), 1))
	require.NoError(t, store.AddItem(ctx, "cheese", price("25.00"), 1))
	assert.True(t, price("50.00").Equal(store.Snapshot().TotalPrice))

	require.NoError(t, store.RemoveItem(ctx, "cheese", 1, false))
	snap := store.Snapshot()
	assert.True(t, price("25.00").Equal(snap.TotalPrice))
	assert.Equal(t, 1, snap.Lines[0].Quantity)

	require.NoError(t, store.RemoveItem(ctx, "cheese", 1, false))
	snap = store.Snapshot()
	assert.True(t, snap.IsEmpty())
	assert.True(t, decimal.Zero.Equal(snap.TotalPrice))
}

func TestStore_RemoveItem_AbsentIsNoop(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.RemoveItem(ctx, "ghost", 1, false))

	assert.Empty(t, client.RemoveItemCalls)
	assert.Equal(t, uint64(0), store.Revision())
}

func TestStore_RemoveItem_Completely(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.AddItem(ctx, "oil", price("7.25"), 4))
	require.NoError(t, store.AddItem(ctx, "salt", price("0.99"), 1))
	require.NoError(t, store.RemoveItem(ctx, "oil", 0, true))

	snap := store.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "salt", snap.Lines[0].ItemID)
	assert.True(t, price("0.99").Equal(snap.TotalPrice))
	assert.Equal(t, 0, client.RemoveItemCalls[0].Quantity)
}

func TestStore_RemoveItem_InvalidDelta(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, "oil", price("7.25"), 1))

	assert.ErrorIs(t, store.RemoveItem(ctx, "oil", 0, false), ErrInvalidQuantity)
}

// ============================================
// SetQuantity Tests
// ============================================

func TestStore_SetQuantity(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, "yogurt", price("1.10"), 1))

	require.NoError(t, store.SetQuantity(ctx, "yogurt", 5))
	assert.Equal(t, 4, client.AddItemCalls[1].Quantity)
	assert.True(t, price("5.50").Equal(store.Snapshot().TotalPrice))

	require.NoError(t, store.SetQuantity(ctx, "yogurt", 2))
	assert.Equal(t, 3, client.RemoveItemCalls[0].Quantity)
	assert.True(t, price("2.20").Equal(store.Snapshot().TotalPrice))

	require.NoError(t, store.SetQuantity(ctx, "yogurt", 0))
	assert.True(t, store.Snapshot().IsEmpty())
}

func TestStore_SetQuantity_UnknownItem(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.SetQuantity(ctx, "unknown", 2), ErrUnknownItem)
	assert.NoError(t, store.SetQuantity(ctx, "unknown", 0))
}

func TestStore_SetQuantity_SameQuantityIsNoop(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, "yogurt", price("1.10"), 2))
	rev := store.Revision()

	require.NoError(t, store.SetQuantity(ctx, "yogurt", 2))

	assert.Equal(t, rev, store.Revision())
	assert.Len(t, client.AddItemCalls, 1)
}

// ============================================
// Empty / Discard / Snapshot Tests
// ============================================

func TestStore_Empty(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, "a", price("1"), 1))
	require.NoError(t, store.AddItem(ctx, "b", price("2"), 2))

	require.NoError(t, store.Empty(ctx))

	snap := store.Snapshot()
	assert.True(t, snap.IsEmpty())
	assert.True(t, decimal.Zero.Equal(snap.TotalPrice))
	assert.Equal(t, []string{"cart-1"}, client.EmptyCartCalls)
}

func TestStore_Discard_StartsNewCartOnNextAdd(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, "a", price("1"), 1))

	store.Discard(ctx)
	assert.True(t, store.Snapshot().IsEmpty())
	assert.Empty(t, store.Snapshot().CartID)

	require.NoError(t, store.AddItem(ctx, "a", price("1"), 1))
	assert.Len(t, client.CreateCartCalls, 2)
	assert.Equal(t, "cart-2", store.Snapshot().CartID)
}

func TestStore_Snapshot_IsDeepCopy(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, "a", price("1"), 1))

	snap := store.Snapshot()
	snap.Lines[0].Quantity = 99

	assert.Equal(t, 1, store.Snapshot().Lines[0].Quantity)
}

func TestStore_TotalInvariantAcrossOperations(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	steps := []func() error{
		func() error { return store.AddItem(ctx, "a", price("0.33"), 3) },
		func() error { return store.AddItem(ctx, "b", price("12.49"), 1) },
		func() error { return store.AddItem(ctx, "a", price("0.33"), 2) },
		func() error { return store.RemoveItem(ctx, "a", 4, false) },
		func() error { return store.SetQuantity(ctx, "b", 7) },
		func() error { return store.AddItem(ctx, "c", price("0.01"), 1) },
		func() error { return store.RemoveItem(ctx, "b", 0, true) },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		assertTotalMatchesLines(t, store.Snapshot())
	}
}

// ============================================
// Refresh / Restore / Cache Tests
// ============================================

func TestStore_Refresh_ReplacesLines(t *testing.T) {
	store, client := newTestStore(WithCartID("cart-9"))
	client.SetCart(backend.Cart{
		CartID: "cart-9",
		Items: []backend.CartItem{
			{ItemID: "a", Quantity: 2, Price: price("1.50")},
			{ItemID: "b", Quantity: 1, Price: price("3.00")},
		},
		TotalPrice: price("6.00"),
	})

	snap, err := store.Refresh(context.Background())

	require.NoError(t, err)
	assert.Len(t, snap.Lines, 2)
	assert.True(t, price("6.00").Equal(snap.TotalPrice))
}

func TestStore_Refresh_FailureKeepsLastSnapshot(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, "a", price("5"), 1))
	before := store.Snapshot()

	client.FetchErr = backend.ErrServiceUnavailable
	snap, err := store.Refresh(ctx)

	assert.ErrorIs(t, err, backend.ErrServiceUnavailable)
	assert.Equal(t, before, snap)
	assert.Equal(t, before, store.Snapshot())
}

func TestStore_Refresh_WithoutCartSkipsBackend(t *testing.T) {
	store, client := newTestStore()

	_, err := store.Refresh(context.Background())

	require.NoError(t, err)
	assert.Empty(t, client.FetchCartCalls)
}

func TestStore_Discard_ClearsCacheWithCanceledContext(t *testing.T) {
	cache := newMemoryCache()
	store, _ := newTestStore(WithCache(cache))
	require.NoError(t, store.AddItem(context.Background(), "a", price("5"), 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store.Discard(ctx)

	cached, err := cache.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, cached.IsEmpty())
	assert.Empty(t, cached.CartID)
}

// ============================================
// Checkout hold Tests
// ============================================

func TestStore_HoldForCheckout_RejectsMutations(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, "bread", price("5"), 2))
	before := store.Snapshot()

	release := store.HoldForCheckout()

	assert.ErrorIs(t, store.AddItem(ctx, "caviar", price("80"), 1), ErrCheckoutInProgress)
	assert.ErrorIs(t, store.AddItem(ctx, "bread", price("5"), 1), ErrCheckoutInProgress)
	assert.ErrorIs(t, store.RemoveItem(ctx, "bread", 1, false), ErrCheckoutInProgress)
	assert.ErrorIs(t, store.SetQuantity(ctx, "bread", 5), ErrCheckoutInProgress)
	assert.ErrorIs(t, store.Empty(ctx), ErrCheckoutInProgress)
	snap, err := store.Refresh(ctx)
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.Equal(t, before, snap)
	assert.Equal(t, before, store.Snapshot())
	assert.Len(t, client.AddItemCalls, 1, "no backend call while held")

	release()
	release()

	require.NoError(t, store.AddItem(ctx, "milk", price("2"), 1))
	assert.Len(t, store.Snapshot().Lines, 2)
}

func TestStore_HoldForCheckout_WaitsForInFlightMutation(t *testing.T) {
	store, client := newTestStore()
	ctx := context.Background()
	require.NoError(t, store.AddItem(ctx, "bread", price("5"), 1))

	started := make(chan struct{})
	unblock := make(chan struct{})
	client.AddItemCallback = func() {
		close(started)
		<-unblock
	}
	done := make(chan error, 1)
	go func() { done <- store.AddItem(ctx, "bread", price("5"), 1) }()
	<-started

	held := make(chan func(), 1)
	go func() { held <- store.HoldForCheckout() }()
	close(unblock)
	require.NoError(t, <-done)
	release := <-held
	defer release()

	line, ok := store.Snapshot().Line("bread")
	require.True(t, ok)
	assert.Equal(t, 2, line.Quantity, "hold sees the mutation that was in flight")
}

func TestStore_CachesEveryCommit(t *testing.T) {
	cache := newMemoryCache()
	store, _ := newTestStore(WithCache(cache))
	ctx := context.Background()

	require.NoError(t, store.AddItem(ctx, "a", price("2"), 2))

	cached, err := cache.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, store.Snapshot(), *cached)
}

func TestStore_CacheFailureDoesNotFailMutation(t *testing.T) {
	cache := newMemoryCache()
	cache.setErr = errors.New("redis down")
	store, _ := newTestStore(WithCache(cache))

	require.NoError(t, store.AddItem(context.Background(), "a", price("2"), 1))
	assert.Len(t, store.Snapshot().Lines, 1)
}

func TestStore_Restore(t *testing.T) {
	cache := newMemoryCache()
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "user-1", &Snapshot{
		CartID:        "cart-7",
		OwnerID:       "user-1",
		SupermarketID: "market-1",
		Lines:         []Line{{ItemID: "a", UnitPrice: price("2.50"), Quantity: 2}},
		Revision:      4,
	}))
	store, _ := newTestStore(WithCache(cache))

	restored, err := store.Restore(ctx)

	require.NoError(t, err)
	assert.True(t, restored)
	snap := store.Snapshot()
	assert.Equal(t, "cart-7", snap.CartID)
	assert.Equal(t, uint64(4), snap.Revision)
	assert.True(t, price("5.00").Equal(snap.TotalPrice))
}

func TestStore_Restore_IgnoresOtherSupermarket(t *testing.T) {
	cache := newMemoryCache()
	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "user-1", &Snapshot{CartID: "cart-7", SupermarketID: "market-2"}))
	store, _ := newTestStore(WithCache(cache))

	restored, err := store.Restore(ctx)

	require.NoError(t, err)
	assert.False(t, restored)
}

func TestStore_Restore_CacheMiss(t *testing.T) {
	store, _ := newTestStore(WithCache(newMemoryCache()))

	restored, err := store.Restore(context.Background())

	require.NoError(t, err)
	assert.False(t, restored)
}
