// Package command is the write side of the reference backend. It validates
// requests, moves money through the wallet and coordinates the cart, order
// and shared cart aggregates.
package command

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/example/grocery-storefront/internal/domain/account"
	"github.com/example/grocery-storefront/internal/domain/cart"
	"github.com/example/grocery-storefront/internal/domain/order"
	"github.com/example/grocery-storefront/internal/domain/sharedcart"
	"github.com/example/grocery-storefront/internal/domain/submission"
	"github.com/example/grocery-storefront/internal/domain/wallet"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/example/grocery-storefront/internal/money"
	"github.com/example/grocery-storefront/internal/readmodel"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SlotNow asks for immediate delivery instead of a scheduled slot.
const SlotNow = "now"

// DefaultCloseDelay is used when a slot's time of day cannot be parsed.
const DefaultCloseDelay = 20 * time.Second

var (
	ErrInvalidCheckout = errors.New("attempt_id, cart_id, owner_id, supermarket_id, address_id and slot are required")
	ErrAttemptConflict = errors.New("attempt id was already used for another cart")
	ErrCartMismatch    = errors.New("cart does not belong to this owner and supermarket")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrUnknownAddress  = errors.New("unknown delivery address")
	ErrUnknownSlot     = errors.New("unknown delivery slot")
	ErrNotOrderOwner   = errors.New("only the order owner can do this")
)

// Config holds the backend's checkout settings.
type Config struct {
	DeliveryFee decimal.Decimal
	Slots       []string
	// CloseDelay closes shared carts this long after they open instead of
	// at slot time. Zero uses the slot time.
	CloseDelay time.Duration
}

// Services bundles the domain services the handler coordinates.
type Services struct {
	Carts       *cart.Service
	Wallets     *wallet.Service
	Orders      *order.Service
	SharedCarts *sharedcart.Service
	Accounts    *account.Service
	Submissions *submission.Service
}

// NewServices builds every domain service over one event store.
func NewServices(es store.EventStoreInterface, logger *zap.Logger) Services {
	return Services{
		Carts:       cart.NewService(es, logger),
		Wallets:     wallet.NewService(es, logger),
		Orders:      order.NewService(es, logger),
		SharedCarts: sharedcart.NewService(es, logger),
		Accounts:    account.NewService(es, logger),
		Submissions: submission.NewService(es),
	}
}

type Handler struct {
	cartSvc       *cart.Service
	walletSvc     *wallet.Service
	orderSvc      *order.Service
	sharedCartSvc *sharedcart.Service
	accountSvc    *account.Service
	submissionSvc *submission.Service
	readStore     store.ReadStoreInterface
	scheduler     Scheduler
	cfg           Config
	locks         *keyedMutex
	logger        *zap.Logger
	now           func() time.Time
}

func NewHandler(
	svcs Services,
	readStore store.ReadStoreInterface,
	scheduler Scheduler,
	cfg Config,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cartSvc:       svcs.Carts,
		walletSvc:     svcs.Wallets,
		orderSvc:      svcs.Orders,
		sharedCartSvc: svcs.SharedCarts,
		accountSvc:    svcs.Accounts,
		submissionSvc: svcs.Submissions,
		readStore:     readStore,
		scheduler:     scheduler,
		cfg:           cfg,
		locks:         newKeyedMutex(),
		logger:        logger.Named("command"),
		now:           time.Now,
	}
}

// Cart commands

func (h *Handler) CreateCart(ctx context.Context, cmd CreateCart) (*cart.Cart, error) {
	return h.cartSvc.Create(ctx, cmd.OwnerID, cmd.SupermarketID)
}

func (h *Handler) AddToCart(ctx context.Context, cmd AddToCart) (*cart.Cart, error) {
	unlock := h.locks.Lock(cartKey(cmd.CartID))
	defer unlock()
	return h.cartSvc.AddItem(ctx, cmd.CartID, cmd.ItemID, cmd.Quantity, cmd.Price)
}

func (h *Handler) RemoveFromCart(ctx context.Context, cmd RemoveFromCart) (*cart.Cart, error) {
	unlock := h.locks.Lock(cartKey(cmd.CartID))
	defer unlock()
	return h.cartSvc.RemoveItem(ctx, cmd.CartID, cmd.ItemID, cmd.Quantity)
}

func (h *Handler) EmptyCart(ctx context.Context, cmd EmptyCart) (*cart.Cart, error) {
	unlock := h.locks.Lock(cartKey(cmd.CartID))
	defer unlock()
	return h.cartSvc.Empty(ctx, cmd.CartID)
}

// Checkout

// SubmitCheckout turns a cart into an order. "now" debits the basket plus
// the delivery fee and places the order immediately. A scheduled slot debits
// the basket plus the full fee and joins the shared cart for the supermarket,
// address and slot; the fee is settled when the shared cart closes.
//
// Submissions are idempotent on AttemptID: a repeated attempt returns the
// first result without moving money again.
func (h *Handler) SubmitCheckout(ctx context.Context, cmd SubmitCheckout) (*submission.Result, error) {
	if cmd.AttemptID == "" || cmd.CartID == "" || cmd.OwnerID == "" ||
		cmd.SupermarketID == "" || cmd.AddressID == "" || cmd.Slot == "" {
		return nil, ErrInvalidCheckout
	}

	unlock := h.locks.Lock(ownerKey(cmd.OwnerID), cartKey(cmd.CartID))
	defer unlock()

	sub, err := h.submissionSvc.Get(ctx, cmd.AttemptID)
	switch {
	case err == nil:
		if sub.OwnerID != cmd.OwnerID || sub.CartID != cmd.CartID {
			return nil, ErrAttemptConflict
		}
		result := sub.Result
		return &result, nil
	case !errors.Is(err, submission.ErrSubmissionNotFound):
		return nil, err
	}

	c, err := h.checkoutCart(ctx, cmd)
	if err != nil {
		return nil, err
	}

	var result *submission.Result
	if cmd.Slot == SlotNow {
		result, err = h.orderNow(ctx, cmd, c)
	} else {
		result, err = h.joinSharedCart(ctx, cmd, c)
	}
	if err != nil {
		return nil, err
	}

	// Money has moved; from here failures are logged, not returned.
	if _, err := h.cartSvc.MarkCheckedOut(ctx, c.ID, cmd.AttemptID); err != nil {
		h.logger.Error("failed to mark cart checked out", zap.String("cart_id", c.ID), zap.Error(err))
	}
	if _, err := h.submissionSvc.Accept(ctx, cmd.AttemptID, cmd.OwnerID, c.ID, *result); err != nil {
		h.logger.Error("failed to record submission", zap.String("attempt_id", cmd.AttemptID), zap.Error(err))
	}
	return result, nil
}

func (h *Handler) checkoutCart(ctx context.Context, cmd SubmitCheckout) (*cart.Cart, error) {
	c, err := h.cartSvc.Get(ctx, cmd.CartID)
	if err != nil {
		return nil, err
	}
	if c.OwnerID != cmd.OwnerID || c.SupermarketID != cmd.SupermarketID {
		return nil, ErrCartMismatch
	}
	if c.Status != cart.StatusActive {
		return nil, cart.ErrCartInactive
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	acct, err := h.accountSvc.Get(ctx, cmd.OwnerID)
	if errors.Is(err, account.ErrAccountNotFound) {
		return nil, ErrUnknownAddress
	}
	if err != nil {
		return nil, err
	}
	if !acct.HasAddress(cmd.AddressID) {
		return nil, ErrUnknownAddress
	}

	if cmd.Slot != SlotNow && !slices.Contains(h.cfg.Slots, cmd.Slot) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, cmd.Slot)
	}
	return c, nil
}

func (h *Handler) orderNow(ctx context.Context, cmd SubmitCheckout, c *cart.Cart) (*submission.Result, error) {
	fee := money.Round(h.cfg.DeliveryFee)
	basket := c.Total()
	total := money.Sum(basket, fee)

	if _, err := h.walletSvc.Debit(ctx, cmd.OwnerID, total, c.ID); err != nil {
		return nil, err
	}

	o, err := h.orderSvc.Place(ctx, order.Placement{
		OwnerID:       cmd.OwnerID,
		SupermarketID: cmd.SupermarketID,
		AddressID:     cmd.AddressID,
		Slot:          cmd.Slot,
		CartID:        c.ID,
		Items:         orderItems(c.Items),
		DeliveryFee:   fee,
	})
	if err != nil {
		h.refund(ctx, cmd.OwnerID, total, c.ID)
		return nil, err
	}

	return &submission.Result{
		OrderID:      o.ID,
		DeliveryTime: SlotNow,
		Message:      "Order placed successfully",
		BasketValue:  o.BasketValue,
		DeliveryFee:  o.DeliveryFee,
		TotalAmount:  o.TotalAmount,
	}, nil
}

func (h *Handler) joinSharedCart(ctx context.Context, cmd SubmitCheckout, c *cart.Cart) (*submission.Result, error) {
	unlock := h.locks.Lock(sharedKey(sharedcart.StreamID(cmd.SupermarketID, cmd.AddressID, cmd.Slot)))
	defer unlock()

	sc, err := h.sharedCartSvc.Find(ctx, cmd.SupermarketID, cmd.AddressID, cmd.Slot)
	if err != nil {
		return nil, err
	}
	wasOpen := sc.IsOpen()

	fee := money.Round(h.cfg.DeliveryFee)
	feeDue := sc.FeeDue(cmd.OwnerID, fee)
	basket := c.Total()
	total := money.Sum(basket, feeDue)

	if _, err := h.walletSvc.Debit(ctx, cmd.OwnerID, total, c.ID); err != nil {
		return nil, err
	}

	sc, err = h.sharedCartSvc.Join(ctx, sc, fee, sharedcart.Contribution{
		UserID: cmd.OwnerID,
		CartID: c.ID,
		Items:  sharedItems(c.Items),
	}, feeDue)
	if err != nil {
		h.refund(ctx, cmd.OwnerID, total, c.ID)
		return nil, err
	}

	if !wasOpen {
		h.scheduleClose(sc.ID, sc.Round, sc.Slot, h.now())
	}

	return &submission.Result{
		SharedCartID: sc.CurrentID(),
		DeliveryTime: "Scheduled at " + cmd.Slot,
		Message:      "Added to the shared cart for " + cmd.Slot,
		BasketValue:  basket,
		DeliveryFee:  feeDue,
		TotalAmount:  total,
	}, nil
}

// Shared carts

// CloseSharedCart closes a round, refunds each contributor's fee
// overpayment and places the shared order.
func (h *Handler) CloseSharedCart(ctx context.Context, streamID string, round int) (*order.Order, error) {
	unlock := h.locks.Lock(sharedKey(streamID))
	defer unlock()

	sc, err := h.sharedCartSvc.Close(ctx, streamID, round)
	if err != nil {
		return nil, err
	}

	contributions := make([]order.Contribution, 0, len(sc.Contributors))
	for i, c := range sc.Contributors {
		share := sc.Shares[i]
		if share.Refund.IsPositive() {
			h.refund(ctx, c.UserID, share.Refund, sc.CurrentID())
		}
		items := make([]order.OrderItem, 0, len(c.Items))
		for _, item := range c.Items {
			items = append(items, order.OrderItem{ItemID: item.ItemID, Quantity: item.Quantity, Price: item.Price})
		}
		contributions = append(contributions, order.Contribution{
			UserID:      c.UserID,
			Items:       items,
			ItemsTotal:  c.ItemsTotal(),
			DeliveryFee: share.Share,
		})
	}

	o, err := h.orderSvc.PlaceShared(ctx, order.SharedPlacement{
		SupermarketID: sc.SupermarketID,
		AddressID:     sc.AddressID,
		Slot:          sc.Slot,
		SharedCartID:  sc.CurrentID(),
		DeliveryFee:   sc.DeliveryFee,
		Contributions: contributions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to place shared order for %s: %w", sc.CurrentID(), err)
	}
	return o, nil
}

// ResumeScheduled schedules the close of every shared cart round that is
// still open, as after a restart. It returns how many were scheduled.
func (h *Handler) ResumeScheduled(ctx context.Context) (int, error) {
	all, err := h.readStore.GetAll(ctx, readmodel.SharedCarts)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, item := range all {
		sc, ok := item.(*readmodel.SharedCartReadModel)
		if !ok || sc.Status != string(sharedcart.StatusOpen) {
			continue
		}
		h.scheduleClose(sc.ID, sc.Round, sc.Slot, sc.OpenedAt)
		n++
	}
	return n, nil
}

func (h *Handler) scheduleClose(streamID string, round int, slot string, openedAt time.Time) {
	if h.scheduler == nil {
		return
	}
	at := h.closeTime(slot, openedAt)
	h.scheduler.Schedule(sharedcart.RoundID(streamID, round), at, func() {
		if _, err := h.CloseSharedCart(context.Background(), streamID, round); err != nil {
			h.logger.Error("failed to close shared cart",
				zap.String("shared_cart_id", sharedcart.RoundID(streamID, round)),
				zap.Error(err))
		}
	})
	h.logger.Info("shared cart close scheduled",
		zap.String("shared_cart_id", sharedcart.RoundID(streamID, round)),
		zap.Time("at", at))
}

func (h *Handler) closeTime(slot string, openedAt time.Time) time.Time {
	if h.cfg.CloseDelay > 0 {
		return openedAt.Add(h.cfg.CloseDelay)
	}
	at, err := NextOccurrence(slot, openedAt)
	if err != nil {
		h.logger.Warn("falling back to default close delay", zap.String("slot", slot), zap.Error(err))
		return openedAt.Add(DefaultCloseDelay)
	}
	return at
}

// Orders

// CancelOrder cancels a pending order and refunds what was paid for it. A
// shared order refunds every contributor their own items and fee share.
func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) (*order.Order, error) {
	unlock := h.locks.Lock(orderKey(cmd.OrderID))
	defer unlock()

	o, err := h.orderSvc.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	if o.OwnerID != cmd.RequesterID {
		return nil, ErrNotOrderOwner
	}

	reason := cmd.Reason
	if reason == "" {
		reason = "canceled by owner"
	}
	o, err = h.orderSvc.Cancel(ctx, cmd.OrderID, reason)
	if err != nil {
		return nil, err
	}

	if !o.IsShared() {
		h.refund(ctx, o.OwnerID, o.TotalAmount, o.ID)
		return o, nil
	}
	for _, c := range o.Contributions {
		h.refund(ctx, c.UserID, money.Sum(c.ItemsTotal, c.DeliveryFee), o.ID)
	}
	return o, nil
}

func (h *Handler) CompleteOrder(ctx context.Context, cmd CompleteOrder) (*order.Order, error) {
	unlock := h.locks.Lock(orderKey(cmd.OrderID))
	defer unlock()
	return h.orderSvc.Complete(ctx, cmd.OrderID)
}

// Wallet and account commands

func (h *Handler) TopUpWallet(ctx context.Context, cmd TopUpWallet) (*wallet.Wallet, error) {
	unlock := h.locks.Lock(ownerKey(cmd.OwnerID))
	defer unlock()
	return h.walletSvc.TopUp(ctx, cmd.OwnerID, cmd.Amount)
}

func (h *Handler) RegisterAccount(ctx context.Context, cmd RegisterAccount) (*account.Account, error) {
	return h.accountSvc.Register(ctx, cmd.UserID, cmd.Name, cmd.Email)
}

func (h *Handler) AddAddress(ctx context.Context, cmd AddAddress) (*account.Address, error) {
	return h.accountSvc.AddAddress(ctx, cmd.UserID, cmd.Details)
}

// refund credits amount back and logs when it cannot. Credits never fail on
// balance, so a failure here is a store error.
func (h *Handler) refund(ctx context.Context, ownerID string, amount decimal.Decimal, reference string) {
	if _, err := h.walletSvc.Refund(ctx, ownerID, amount, reference); err != nil {
		h.logger.Error("refund failed",
			zap.String("owner_id", ownerID),
			zap.String("amount", amount.StringFixed(2)),
			zap.String("reference", reference),
			zap.Error(err))
	}
}

func orderItems(items []cart.Item) []order.OrderItem {
	out := make([]order.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, order.OrderItem{ItemID: item.ItemID, Quantity: item.Quantity, Price: item.Price})
	}
	return out
}

func sharedItems(items []cart.Item) []sharedcart.Item {
	out := make([]sharedcart.Item, 0, len(items))
	for _, item := range items {
		out = append(out, sharedcart.Item{ItemID: item.ItemID, Quantity: item.Quantity, Price: item.Price})
	}
	return out
}
