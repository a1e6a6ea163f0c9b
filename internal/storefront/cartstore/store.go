// Package cartstore keeps the storefront's copy of the owner's active cart.
//
// Every mutation is sent to the backend first and committed locally only
// after the backend accepted it, so a failed call leaves the cart unchanged.
// Mutations are serialized and each one computes its result from the latest
// committed lines. Snapshot never waits on an in-flight mutation.
package cartstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/grocery-storefront/internal/backend"
	"github.com/example/grocery-storefront/internal/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidItem     = errors.New("item_id is required")
	ErrInvalidPrice    = errors.New("unit price must not be negative")
	ErrUnknownItem     = errors.New("item is not in the cart")

	ErrCheckoutInProgress = errors.New("cart is held by a checkout submission")
)

type Store struct {
	ownerID       string
	supermarketID string
	api           backend.CartAPI
	cache         SnapshotCache
	logger        *zap.Logger
	now           func() time.Time

	// mutateMu is held across the backend round-trip of a mutation.
	mutateMu sync.Mutex
	held     bool // guarded by mutateMu

	mu        sync.RWMutex
	cartID    string
	lines     []Line
	total     decimal.Decimal
	revision  uint64
	updatedAt time.Time
}

type Option func(*Store)

func WithCache(cache SnapshotCache) Option {
	return func(s *Store) { s.cache = cache }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithCartID attaches the store to a cart that already exists on the backend.
func WithCartID(cartID string) Option {
	return func(s *Store) { s.cartID = cartID }
}

func NewStore(ownerID, supermarketID string, api backend.CartAPI, opts ...Option) *Store {
	s := &Store{
		ownerID:       ownerID,
		supermarketID: supermarketID,
		api:           api,
		logger:        zap.NewNop(),
		now:           time.Now,
		total:         decimal.Zero,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("cart").With(zap.String("owner_id", ownerID))
	return s
}

func (s *Store) OwnerID() string       { return s.ownerID }
func (s *Store) SupermarketID() string { return s.supermarketID }

// Snapshot returns a deep copy of the last committed state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		CartID:        s.cartID,
		OwnerID:       s.ownerID,
		SupermarketID: s.supermarketID,
		Lines:         append([]Line(nil), s.lines...),
		TotalPrice:    s.total,
		Revision:      s.revision,
		UpdatedAt:     s.updatedAt,
	}
}

// AddItem adds delta units of itemID. A new line needs delta >= 1. A negative
// delta on an existing line removes units and drops the line at zero.
func (s *Store) AddItem(ctx context.Context, itemID string, unitPrice decimal.Decimal, delta int) error {
	if itemID == "" {
		return ErrInvalidItem
	}
	if unitPrice.IsNegative() {
		return ErrInvalidPrice
	}

	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()
	if s.held {
		return ErrCheckoutInProgress
	}

	lines := s.committedLines()
	idx := indexOf(lines, itemID)
	if idx < 0 {
		if delta < 1 {
			return ErrInvalidQuantity
		}
		cartID, err := s.ensureCart(ctx)
		if err != nil {
			return err
		}
		if _, err := s.api.AddItem(ctx, cartID, itemID, delta, money.Round(unitPrice)); err != nil {
			return fmt.Errorf("add item %s: %w", itemID, err)
		}
		s.commit(ctx, append(lines, Line{ItemID: itemID, UnitPrice: money.Round(unitPrice), Quantity: delta}))
		return nil
	}

	if delta == 0 {
		return nil
	}
	if delta < 0 {
		return s.decrementLocked(ctx, lines, idx, -delta, false)
	}

	if _, err := s.api.AddItem(ctx, s.cartID, itemID, delta, money.Round(unitPrice)); err != nil {
		return fmt.Errorf("add item %s: %w", itemID, err)
	}
	lines[idx].Quantity += delta
	lines[idx].UnitPrice = money.Round(unitPrice)
	s.commit(ctx, lines)
	return nil
}

// RemoveItem removes delta units of itemID, or the whole line when
// removeCompletely is set. Removing an item that is not in the cart is a no-op.
func (s *Store) RemoveItem(ctx context.Context, itemID string, delta int, removeCompletely bool) error {
	if itemID == "" {
		return ErrInvalidItem
	}
	if !removeCompletely && delta < 1 {
		return ErrInvalidQuantity
	}

	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()
	if s.held {
		return ErrCheckoutInProgress
	}

	lines := s.committedLines()
	idx := indexOf(lines, itemID)
	if idx < 0 {
		s.logger.Debug("remove of absent item ignored", zap.String("item_id", itemID))
		return nil
	}
	return s.decrementLocked(ctx, lines, idx, delta, removeCompletely)
}

// SetQuantity sets the absolute quantity of an item already in the cart.
// Anything below 1 removes the line.
func (s *Store) SetQuantity(ctx context.Context, itemID string, quantity int) error {
	if itemID == "" {
		return ErrInvalidItem
	}

	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()
	if s.held {
		return ErrCheckoutInProgress
	}

	lines := s.committedLines()
	idx := indexOf(lines, itemID)
	if idx < 0 {
		if quantity < 1 {
			return nil
		}
		return ErrUnknownItem
	}
	if quantity < 1 {
		return s.decrementLocked(ctx, lines, idx, 0, true)
	}

	diff := quantity - lines[idx].Quantity
	switch {
	case diff > 0:
		if _, err := s.api.AddItem(ctx, s.cartID, itemID, diff, lines[idx].UnitPrice); err != nil {
			return fmt.Errorf("set quantity of %s: %w", itemID, err)
		}
	case diff < 0:
		if _, err := s.api.RemoveItem(ctx, s.cartID, itemID, -diff); err != nil {
			return fmt.Errorf("set quantity of %s: %w", itemID, err)
		}
	default:
		return nil
	}

	lines[idx].Quantity = quantity
	s.commit(ctx, lines)
	return nil
}

// Empty removes every line.
func (s *Store) Empty(ctx context.Context) error {
	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()
	if s.held {
		return ErrCheckoutInProgress
	}

	s.mu.RLock()
	cartID := s.cartID
	s.mu.RUnlock()

	if cartID != "" {
		if err := s.api.EmptyCart(ctx, cartID); err != nil {
			return fmt.Errorf("empty cart %s: %w", cartID, err)
		}
	}
	s.commit(ctx, nil)
	return nil
}

// HoldForCheckout waits for an in-flight mutation to finish, then makes
// every mutation and Refresh fail with ErrCheckoutInProgress until release
// is called. Discard still works while the cart is held.
func (s *Store) HoldForCheckout() (release func()) {
	s.mutateMu.Lock()
	s.held = true
	s.mutateMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mutateMu.Lock()
			s.held = false
			s.mutateMu.Unlock()
		})
	}
}

// Discard drops the local cart after the backend consumed it at checkout.
// The next AddItem creates a new backend cart. The cached snapshot is
// cleared even when ctx is already canceled, so a restart cannot restore a
// checked-out cart.
func (s *Store) Discard(ctx context.Context) {
	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()

	s.mu.Lock()
	s.cartID = ""
	s.mu.Unlock()
	s.commit(context.WithoutCancel(ctx), nil)
}

// Refresh replaces the local lines with the backend's copy of the cart. On
// failure the last known-good snapshot stays in place and is returned along
// with the error.
func (s *Store) Refresh(ctx context.Context) (Snapshot, error) {
	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()
	if s.held {
		return s.Snapshot(), ErrCheckoutInProgress
	}

	s.mu.RLock()
	cartID := s.cartID
	s.mu.RUnlock()

	if cartID == "" {
		return s.Snapshot(), nil
	}

	cart, err := s.api.FetchCart(ctx, cartID)
	if err != nil {
		s.logger.Warn("cart refresh failed, keeping last snapshot",
			zap.String("cart_id", cartID), zap.Error(err))
		return s.Snapshot(), fmt.Errorf("refresh cart %s: %w", cartID, err)
	}

	lines := make([]Line, 0, len(cart.Items))
	for _, item := range cart.Items {
		if item.Quantity < 1 {
			continue
		}
		if i := indexOf(lines, item.ItemID); i >= 0 {
			lines[i].Quantity += item.Quantity
			continue
		}
		lines = append(lines, Line{ItemID: item.ItemID, UnitPrice: money.Round(item.Price), Quantity: item.Quantity})
	}
	if total := totalOf(lines); !money.Equal(total, cart.TotalPrice) {
		s.logger.Warn("backend cart total disagrees with its lines",
			zap.String("cart_id", cartID),
			zap.String("backend_total", cart.TotalPrice.String()),
			zap.String("computed_total", total.String()))
	}
	s.commit(ctx, lines)
	return s.Snapshot(), nil
}

// Restore loads the cached snapshot for the owner into an empty store. It
// reports whether anything was restored.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	if s.cache == nil {
		return false, nil
	}

	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()

	snap, err := s.cache.Get(ctx, s.ownerID)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("restore cart snapshot: %w", err)
	}
	if snap.SupermarketID != s.supermarketID {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revision != 0 || len(s.lines) > 0 {
		return false, nil
	}
	s.cartID = snap.CartID
	s.lines = append([]Line(nil), snap.Lines...)
	s.total = totalOf(s.lines)
	s.revision = snap.Revision
	s.updatedAt = snap.UpdatedAt
	return true, nil
}

func (s *Store) decrementLocked(ctx context.Context, lines []Line, idx, delta int, removeCompletely bool) error {
	itemID := lines[idx].ItemID
	remaining := lines[idx].Quantity - delta
	complete := removeCompletely || remaining <= 0

	quantity := delta
	if complete {
		quantity = 0
	}
	if _, err := s.api.RemoveItem(ctx, s.cartID, itemID, quantity); err != nil {
		return fmt.Errorf("remove item %s: %w", itemID, err)
	}

	if complete {
		lines = append(lines[:idx], lines[idx+1:]...)
	} else {
		lines[idx].Quantity = remaining
	}
	s.commit(ctx, lines)
	return nil
}

func (s *Store) ensureCart(ctx context.Context) (string, error) {
	s.mu.RLock()
	cartID := s.cartID
	s.mu.RUnlock()
	if cartID != "" {
		return cartID, nil
	}

	cartID, err := s.api.CreateCart(ctx, s.ownerID, s.supermarketID)
	if err != nil {
		return "", fmt.Errorf("create cart: %w", err)
	}
	s.logger.Info("cart created", zap.String("cart_id", cartID), zap.String("supermarket_id", s.supermarketID))

	s.mu.Lock()
	s.cartID = cartID
	s.mu.Unlock()
	return cartID, nil
}

func (s *Store) committedLines() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Line(nil), s.lines...)
}

// commit installs lines as the new state. The total is always recomputed
// from the full list.
func (s *Store) commit(ctx context.Context, lines []Line) {
	s.mu.Lock()
	s.lines = lines
	s.total = totalOf(lines)
	s.revision++
	s.updatedAt = s.now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, s.ownerID, &snap); err != nil {
		s.logger.Warn("failed to cache cart snapshot", zap.Error(err))
	}
}
