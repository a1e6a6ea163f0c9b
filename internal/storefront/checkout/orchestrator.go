// Package checkout runs one checkout attempt from address and slot selection
// through wallet gating to a single submission.
//
// State moves Collecting → Ready → Submitting → Completed, or to Failed when
// the backend call fails. A failed checkout can be submitted again and will
// reuse the same attempt id, so the backend never places two orders for one
// attempt.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/example/grocery-storefront/internal/backend"
	"github.com/example/grocery-storefront/internal/storefront/cartstore"
	"github.com/example/grocery-storefront/internal/storefront/walletgate"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Cart is the part of the cart store the orchestrator uses. Submit holds the
// cart from the snapshot it quotes until the submission settles.
type Cart interface {
	Snapshot() cartstore.Snapshot
	Revision() uint64
	HoldForCheckout() (release func())
	Discard(ctx context.Context)
}

type Orchestrator struct {
	ownerID       string
	supermarketID string
	cart          Cart
	api           backend.CheckoutAPI
	deliveryFee   decimal.Decimal
	logger        *zap.Logger
	newAttemptID  func() string
	now           func() time.Time

	// inflight makes Submit single-flight.
	inflight sync.Mutex

	mu        sync.Mutex
	state     State
	addresses []backend.Address
	slots     []string
	addressID string
	slot      string
	quote     *walletgate.Quote
	attemptID string
	receipt   *Receipt
	lastErr   error
}

func NewOrchestrator(ownerID, supermarketID string, cart Cart, api backend.CheckoutAPI, deliveryFee decimal.Decimal, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		ownerID:       ownerID,
		supermarketID: supermarketID,
		cart:          cart,
		api:           api,
		deliveryFee:   deliveryFee,
		logger:        logger.Named("checkout").With(zap.String("owner_id", ownerID)),
		newAttemptID:  uuid.NewString,
		now:           time.Now,
		state:         StateCollecting,
	}
}

// State re-evaluates readiness and returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evaluateLocked(false)
	return o.state
}

func (o *Orchestrator) View() View {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evaluateLocked(false)

	v := View{
		State:     o.state,
		Addresses: append([]backend.Address(nil), o.addresses...),
		Slots:     append([]string(nil), o.slots...),
		AddressID: o.addressID,
		Slot:      o.slot,
	}
	if o.quote != nil {
		q := *o.quote
		v.Quote = &q
	}
	if o.receipt != nil {
		r := *o.receipt
		v.Receipt = &r
	}
	if o.lastErr != nil {
		v.LastError = o.lastErr.Error()
	}
	return v
}

// Load fetches the owner's addresses and the supermarket's delivery slots.
func (o *Orchestrator) Load(ctx context.Context) error {
	addresses, err := o.api.FetchAddresses(ctx, o.ownerID)
	if err != nil {
		return fmt.Errorf("load addresses: %w", err)
	}
	slots, err := o.api.FetchDeliverySlots(ctx, o.supermarketID)
	if err != nil {
		return fmt.Errorf("load delivery slots: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.addresses = addresses
	o.slots = slots
	if o.addressID != "" && !o.knownAddressLocked(o.addressID) {
		o.addressID = ""
	}
	o.evaluateLocked(true)
	return nil
}

// Loaded reports whether Load has succeeded at least once.
func (o *Orchestrator) Loaded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.addresses != nil || o.slots != nil
}

func (o *Orchestrator) SelectAddress(addressID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.selectableLocked(); err != nil {
		return err
	}
	if addressID == "" || (o.addresses != nil && !o.knownAddressLocked(addressID)) {
		return ErrUnknownAddress
	}
	o.addressID = addressID
	o.evaluateLocked(true)
	return nil
}

func (o *Orchestrator) SelectSlot(slot string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.selectableLocked(); err != nil {
		return err
	}
	if slot == "" || (slot != SlotNow && o.slots != nil && !slices.Contains(o.slots, slot)) {
		return ErrUnknownSlot
	}
	o.slot = slot
	o.evaluateLocked(true)
	return nil
}

// Quote reads the cart and the wallet balance once and caches the result
// until the cart changes.
func (o *Orchestrator) Quote(ctx context.Context) (walletgate.Quote, error) {
	snap := o.cart.Snapshot()
	balance, err := o.api.FetchWalletBalance(ctx, o.ownerID)
	if err != nil {
		return walletgate.Quote{}, fmt.Errorf("fetch wallet balance: %w", err)
	}
	q := walletgate.NewQuote(snap, o.deliveryFee, balance)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.quote = &q
	o.evaluateLocked(true)
	return q, nil
}

// Submit places the checkout. Precondition failures leave the state as it
// was. The backend call is not canceled by ctx once started.
func (o *Orchestrator) Submit(ctx context.Context) (*Receipt, error) {
	if !o.inflight.TryLock() {
		return nil, ErrAlreadySubmitting
	}
	defer o.inflight.Unlock()

	o.mu.Lock()
	if o.state == StateCompleted {
		o.mu.Unlock()
		return nil, ErrAlreadyCompleted
	}
	addressID, slot := o.addressID, o.slot
	o.mu.Unlock()

	if addressID == "" || slot == "" {
		return nil, ErrIncompleteCheckout
	}

	release := o.cart.HoldForCheckout()
	defer release()
	snap := o.cart.Snapshot()
	if snap.IsEmpty() {
		return nil, ErrEmptyCart
	}

	quote, err := o.freshQuote(ctx, snap)
	if err != nil {
		return nil, err
	}
	if !quote.Sufficient() {
		o.logger.Info("checkout blocked by wallet balance",
			zap.String("total", quote.TotalAmount.String()),
			zap.String("balance", quote.WalletBalance.String()))
		return nil, fmt.Errorf("%w: total %s, wallet %s, short by %s",
			ErrInsufficientFunds, quote.TotalAmount, quote.WalletBalance, quote.Shortfall())
	}

	o.mu.Lock()
	if !quote.FreshFor(o.cart.Revision()) {
		o.mu.Unlock()
		return nil, ErrStaleQuote
	}
	if o.attemptID == "" {
		o.attemptID = o.newAttemptID()
	}
	req := backend.CheckoutRequest{
		AttemptID:     o.attemptID,
		CartID:        snap.CartID,
		OwnerID:       o.ownerID,
		SupermarketID: o.supermarketID,
		AddressID:     addressID,
		Slot:          slot,
	}
	o.state = StateSubmitting
	o.lastErr = nil
	o.mu.Unlock()

	o.logger.Info("submitting checkout",
		zap.String("attempt_id", req.AttemptID),
		zap.String("cart_id", req.CartID),
		zap.String("slot", slot),
		zap.String("total", quote.TotalAmount.String()))

	result, err := o.api.SubmitCheckout(context.WithoutCancel(ctx), req)
	if err != nil {
		if !errors.Is(err, backend.ErrServiceUnavailable) {
			err = fmt.Errorf("%w: %w", backend.ErrServiceUnavailable, err)
		}
		err = fmt.Errorf("submit checkout: %w", err)

		o.mu.Lock()
		o.state = StateFailed
		o.lastErr = err
		o.mu.Unlock()

		o.logger.Warn("checkout submission failed", zap.String("attempt_id", req.AttemptID), zap.Error(err))
		return nil, err
	}

	receipt := &Receipt{
		AttemptID:    req.AttemptID,
		OrderID:      result.OrderID,
		SharedCartID: result.SharedCartID,
		DeliveryTime: result.DeliveryTime,
		Message:      result.Message,
		Quote:        quote,
		SubmittedAt:  o.now(),
	}

	o.mu.Lock()
	o.state = StateCompleted
	o.receipt = receipt
	o.attemptID = ""
	o.mu.Unlock()

	o.cart.Discard(context.WithoutCancel(ctx))
	o.logger.Info("checkout completed",
		zap.String("attempt_id", req.AttemptID),
		zap.String("order_id", result.OrderID),
		zap.String("shared_cart_id", result.SharedCartID))

	r := *receipt
	return &r, nil
}

// Reset starts a new checkout after a completed one. Selections are kept.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateCompleted {
		return
	}
	o.state = StateCollecting
	o.receipt = nil
	o.quote = nil
	o.lastErr = nil
	o.evaluateLocked(true)
}

func (o *Orchestrator) freshQuote(ctx context.Context, snap cartstore.Snapshot) (walletgate.Quote, error) {
	o.mu.Lock()
	cached := o.quote
	o.mu.Unlock()

	if cached != nil && cached.FreshFor(snap.Revision) {
		return *cached, nil
	}
	return o.Quote(ctx)
}

func (o *Orchestrator) selectableLocked() error {
	switch o.state {
	case StateSubmitting:
		return ErrAlreadySubmitting
	case StateCompleted:
		return ErrAlreadyCompleted
	}
	return nil
}

// evaluateLocked moves between Collecting and Ready. Failed is left only on
// a user action, Submitting and Completed only by Submit and Reset.
func (o *Orchestrator) evaluateLocked(action bool) {
	switch o.state {
	case StateSubmitting, StateCompleted:
		return
	case StateFailed:
		if !action {
			return
		}
	}
	ready := o.addressID != "" && o.slot != "" &&
		o.quote != nil && o.quote.FreshFor(o.cart.Revision()) &&
		o.quote.Sufficient() && !o.cart.Snapshot().IsEmpty()
	switch {
	case ready:
		o.state = StateReady
	default:
		o.state = StateCollecting
	}
}

func (o *Orchestrator) knownAddressLocked(addressID string) bool {
	for _, a := range o.addresses {
		if a.AddressID == addressID {
			return true
		}
	}
	return false
}
