// Package query is the read side of the reference backend. Orders and
// accounts come from the projected read models; carts and wallets are read
// from their aggregates so a shopper sees their own writes at once.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/example/grocery-storefront/internal/domain/cart"
	"github.com/example/grocery-storefront/internal/domain/wallet"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/example/grocery-storefront/internal/readmodel"
	"go.uber.org/zap"
)

var ErrOrderNotFound = errors.New("order not found")

type Handler struct {
	readStore store.ReadStoreInterface
	cartSvc   *cart.Service
	walletSvc *wallet.Service
	slots     []string
	logger    *zap.Logger
}

func NewHandler(
	readStore store.ReadStoreInterface,
	cartSvc *cart.Service,
	walletSvc *wallet.Service,
	slots []string,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		readStore: readStore,
		cartSvc:   cartSvc,
		walletSvc: walletSvc,
		slots:     slots,
		logger:    logger.Named("query"),
	}
}

// Cart
func (h *Handler) GetCart(ctx context.Context, cartID string) (*cart.Cart, error) {
	return h.cartSvc.Get(ctx, cartID)
}

// Wallet
func (h *Handler) GetWallet(ctx context.Context, ownerID string) (*wallet.Wallet, error) {
	return h.walletSvc.Get(ctx, ownerID)
}

// Addresses returns the user's saved addresses, empty for an unknown user.
func (h *Handler) Addresses(ctx context.Context, userID string) ([]readmodel.AddressReadModel, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.Accounts, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", userID, err)
	}
	if !ok {
		return []readmodel.AddressReadModel{}, nil
	}
	addresses := data.(*readmodel.AccountReadModel).Addresses
	if addresses == nil {
		addresses = []readmodel.AddressReadModel{}
	}
	return addresses, nil
}

// Slots lists the delivery slots a supermarket offers besides "now". Every
// supermarket offers the configured slots.
func (h *Handler) Slots(supermarketID string) []string {
	return append([]string(nil), h.slots...)
}

// Orders

// GetOrder returns the full order, contributor roster included, to its owner
// or any contributor. Anyone else gets ErrOrderNotFound.
func (h *Handler) GetOrder(ctx context.Context, orderID, requesterID string) (*readmodel.OrderReadModel, error) {
	data, ok, err := h.readStore.Get(ctx, readmodel.Orders, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	if !ok {
		return nil, ErrOrderNotFound
	}
	o := data.(*readmodel.OrderReadModel)
	if requesterID != "" && !o.Involves(requesterID) {
		h.logger.Debug("order requested by outsider", zap.String("order_id", orderID), zap.String("requester_id", requesterID))
		return nil, ErrOrderNotFound
	}
	return o, nil
}

// ListOrdersByUser returns the orders the user owns or contributed to,
// newest first. Shared orders carry only the user's own contribution.
func (h *Handler) ListOrdersByUser(ctx context.Context, userID string) ([]*readmodel.OrderReadModel, error) {
	items, err := h.readStore.GetAll(ctx, readmodel.Orders)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]*readmodel.OrderReadModel, 0)
	for _, item := range items {
		o := item.(*readmodel.OrderReadModel)
		if !o.Involves(userID) {
			continue
		}
		if o.IsShared() {
			o = summaryFor(o, userID)
		}
		orders = append(orders, o)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func summaryFor(o *readmodel.OrderReadModel, userID string) *readmodel.OrderReadModel {
	summary := *o
	summary.Contributors = nil
	for _, c := range o.Contributors {
		if c.UserID == userID {
			summary.Contributors = []readmodel.ContributorReadModel{c}
			break
		}
	}
	return &summary
}
