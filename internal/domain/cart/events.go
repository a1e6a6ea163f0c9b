package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventCartCreated    = "CartCreated"
	EventItemAdded      = "ItemAddedToCart"
	EventItemRemoved    = "ItemRemovedFromCart"
	EventCartEmptied    = "CartEmptied"
	EventCartCheckedOut = "CartCheckedOut"
)

type CartCreated struct {
	CartID        string    `json:"cart_id"`
	OwnerID       string    `json:"owner_id"`
	SupermarketID string    `json:"supermarket_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type ItemAddedToCart struct {
	CartID   string          `json:"cart_id"`
	ItemID   string          `json:"item_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	AddedAt  time.Time       `json:"added_at"`
}

// ItemRemovedFromCart removes Quantity units; zero removes the whole line.
type ItemRemovedFromCart struct {
	CartID    string    `json:"cart_id"`
	ItemID    string    `json:"item_id"`
	Quantity  int       `json:"quantity"`
	RemovedAt time.Time `json:"removed_at"`
}

type CartEmptied struct {
	CartID    string    `json:"cart_id"`
	EmptiedAt time.Time `json:"emptied_at"`
}

type CartCheckedOut struct {
	CartID       string    `json:"cart_id"`
	OwnerID      string    `json:"owner_id"`
	AttemptID    string    `json:"attempt_id"`
	CheckedOutAt time.Time `json:"checked_out_at"`
}
