// Package session keeps one storefront session per owner: the active cart,
// its checkout and the owner's order ledger.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/example/grocery-storefront/internal/backend"
	"github.com/example/grocery-storefront/internal/storefront/cartstore"
	"github.com/example/grocery-storefront/internal/storefront/checkout"
	"github.com/example/grocery-storefront/internal/storefront/ledger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNoSession  = errors.New("no supermarket selected")
	ErrActiveCart = errors.New("cart for another supermarket is not empty")
	ErrInvalidID  = errors.New("owner_id and supermarket_id are required")
)

type Session struct {
	OwnerID       string
	SupermarketID string
	Cart          *cartstore.Store
	Checkout      *checkout.Orchestrator
	Orders        *ledger.Ledger
}

type Registry struct {
	api         backend.Client
	cache       cartstore.SnapshotCache
	deliveryFee decimal.Decimal
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. cache may be nil.
func NewRegistry(api backend.Client, cache cartstore.SnapshotCache, deliveryFee decimal.Decimal, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		api:         api,
		cache:       cache,
		deliveryFee: deliveryFee,
		logger:      logger.Named("session"),
		sessions:    make(map[string]*Session),
	}
}

// Open returns the owner's session for supermarketID, creating it when the
// owner has none. Switching supermarkets is refused while the current cart
// still has lines.
func (r *Registry) Open(ctx context.Context, ownerID, supermarketID string) (*Session, error) {
	if ownerID == "" || supermarketID == "" {
		return nil, ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[ownerID]; ok {
		if current.SupermarketID == supermarketID {
			return current, nil
		}
		if !current.Cart.Snapshot().IsEmpty() {
			return nil, ErrActiveCart
		}
	}

	sess := r.newSession(ownerID, supermarketID)
	restored, err := sess.Cart.Restore(ctx)
	if err != nil {
		r.logger.Warn("could not restore cached cart", zap.String("owner_id", ownerID), zap.Error(err))
	}
	if restored {
		r.logger.Info("cart restored from cache",
			zap.String("owner_id", ownerID),
			zap.String("supermarket_id", supermarketID),
			zap.String("cart_id", sess.Cart.Snapshot().CartID))
	}
	r.sessions[ownerID] = sess
	return sess, nil
}

func (r *Registry) Get(ownerID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[ownerID]
	if !ok {
		return nil, ErrNoSession
	}
	return sess, nil
}

func (r *Registry) Close(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, ownerID)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) newSession(ownerID, supermarketID string) *Session {
	opts := []cartstore.Option{cartstore.WithLogger(r.logger)}
	if r.cache != nil {
		opts = append(opts, cartstore.WithCache(r.cache))
	}
	cart := cartstore.NewStore(ownerID, supermarketID, r.api, opts...)
	return &Session{
		OwnerID:       ownerID,
		SupermarketID: supermarketID,
		Cart:          cart,
		Checkout:      checkout.NewOrchestrator(ownerID, supermarketID, cart, r.api, r.deliveryFee, r.logger),
		Orders:        ledger.New(r.api, r.logger),
	}
}
