package sharedcart

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventSharedCartOpened  = "SharedCartOpened"
	EventContributorJoined = "ContributorJoined"
	EventSharedCartClosed  = "SharedCartClosed"
)

type Item struct {
	ItemID   string          `json:"item_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type SharedCartOpened struct {
	SharedCartID  string          `json:"shared_cart_id"`
	Round         int             `json:"round"`
	SupermarketID string          `json:"supermarket_id"`
	AddressID     string          `json:"address_id"`
	Slot          string          `json:"slot"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	OpenedAt      time.Time       `json:"opened_at"`
}

// ContributorJoined adds a contributor's cart. FeePaid is what the
// contributor prepaid towards delivery with this join.
type ContributorJoined struct {
	SharedCartID string          `json:"shared_cart_id"`
	Round        int             `json:"round"`
	UserID       string          `json:"user_id"`
	CartID       string          `json:"cart_id"`
	Items        []Item          `json:"items"`
	FeePaid      decimal.Decimal `json:"fee_paid"`
	JoinedAt     time.Time       `json:"joined_at"`
}

// FeeShare is one contributor's final delivery fee and the refund of their
// prepayment above it.
type FeeShare struct {
	UserID string          `json:"user_id"`
	Share  decimal.Decimal `json:"share"`
	Refund decimal.Decimal `json:"refund"`
}

type SharedCartClosed struct {
	SharedCartID string     `json:"shared_cart_id"`
	Round        int        `json:"round"`
	Shares       []FeeShare `json:"shares"`
	ClosedAt     time.Time  `json:"closed_at"`
}
