package checkout

import (
	"errors"
	"time"

	"github.com/example/grocery-storefront/internal/backend"
	"github.com/example/grocery-storefront/internal/storefront/walletgate"
)

// SlotNow is the delivery slot for an immediate order.
const SlotNow = "now"

var (
	ErrIncompleteCheckout = errors.New("delivery address and slot must both be selected")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInsufficientFunds  = errors.New("insufficient wallet balance")
	ErrAlreadySubmitting  = errors.New("checkout submission already in progress")
	ErrAlreadyCompleted   = errors.New("checkout already completed")
	ErrUnknownAddress     = errors.New("address is not in the owner's address book")
	ErrUnknownSlot        = errors.New("delivery slot is not offered by the supermarket")
	ErrStaleQuote         = errors.New("cart changed while the checkout was being quoted")
)

type State int

const (
	StateCollecting State = iota
	StateReady
	StateSubmitting
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCollecting:
		return "collecting"
	case StateReady:
		return "ready"
	case StateSubmitting:
		return "submitting"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Receipt describes an accepted checkout.
type Receipt struct {
	AttemptID    string           `json:"attempt_id"`
	OrderID      string           `json:"order_id,omitempty"`
	SharedCartID string           `json:"shared_cart_id,omitempty"`
	DeliveryTime string           `json:"delivery_time"`
	Message      string           `json:"message"`
	Quote        walletgate.Quote `json:"quote"`
	SubmittedAt  time.Time        `json:"submitted_at"`
}

// Shared reports whether the checkout joined a shared cart instead of
// placing an order immediately.
func (r Receipt) Shared() bool {
	return r.SharedCartID != ""
}

// View is a read-only picture of the checkout for rendering.
type View struct {
	State     State             `json:"state"`
	Addresses []backend.Address `json:"addresses"`
	Slots     []string          `json:"slots"`
	AddressID string            `json:"address_id,omitempty"`
	Slot      string            `json:"slot,omitempty"`
	Quote     *walletgate.Quote `json:"quote,omitempty"`
	Receipt   *Receipt          `json:"receipt,omitempty"`
	LastError string            `json:"last_error,omitempty"`
}
