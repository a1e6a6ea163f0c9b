// Package readmodel defines the denormalized views the projector maintains
// and the query side serves.
package readmodel

import (
	"time"

	"github.com/shopspring/decimal"
)

// Collections
const (
	Orders      = "orders"
	Accounts    = "accounts"
	SharedCarts = "shared_carts"
)

// OrderItemReadModel represents an item in an order
type OrderItemReadModel struct {
	ItemID    string          `json:"item_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// ContributorReadModel is one participant's share of a shared order
type ContributorReadModel struct {
	UserID                  string          `json:"user_id"`
	Name                    string          `json:"name,omitempty"`
	ItemsTotal              decimal.Decimal `json:"items_total"`
	DeliveryFeeContribution decimal.Decimal `json:"delivery_fee_contribution"`
	TotalContribution       decimal.Decimal `json:"total_contribution"`
}

// OrderReadModel is the read model for orders
type OrderReadModel struct {
	ID            string                 `json:"id"`
	OwnerID       string                 `json:"owner_id"`
	SupermarketID string                 `json:"supermarket_id"`
	AddressID     string                 `json:"address_id"`
	Slot          string                 `json:"slot"`
	SharedCartID  string                 `json:"shared_cart_id,omitempty"`
	Status        string                 `json:"status"`
	Items         []OrderItemReadModel   `json:"items"`
	BasketValue   decimal.Decimal        `json:"basket_value"`
	DeliveryFee   decimal.Decimal        `json:"delivery_fee"`
	TotalAmount   decimal.Decimal        `json:"total_amount"`
	Contributors  []ContributorReadModel `json:"contributors,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func (o *OrderReadModel) IsShared() bool { return o.SharedCartID != "" }

// Involves reports whether userID owns or contributed to the order.
func (o *OrderReadModel) Involves(userID string) bool {
	if o.OwnerID == userID {
		return true
	}
	for _, c := range o.Contributors {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// AddressReadModel is a saved delivery address
type AddressReadModel struct {
	AddressID string `json:"address_id"`
	Details   string `json:"details"`
}

// AccountReadModel is the read model for shopper accounts
type AccountReadModel struct {
	UserID    string             `json:"user_id"`
	Name      string             `json:"name"`
	Email     string             `json:"email"`
	Addresses []AddressReadModel `json:"addresses"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// SharedCartReadModel tracks the current round of a shared cart stream
type SharedCartReadModel struct {
	ID            string    `json:"id"`
	RoundID       string    `json:"round_id"`
	Round         int       `json:"round"`
	SupermarketID string    `json:"supermarket_id"`
	AddressID     string    `json:"address_id"`
	Slot          string    `json:"slot"`
	Status        string    `json:"status"`
	Contributors  []string  `json:"contributors"`
	OpenedAt      time.Time `json:"opened_at"`
	ClosedAt      time.Time `json:"closed_at,omitempty"`
}

// Factories maps every collection to a constructor of its model, for stores
// that decode documents.
func Factories() map[string]func() any {
	return map[string]func() any{
		Orders:      func() any { return &OrderReadModel{} },
		Accounts:    func() any { return &AccountReadModel{} },
		SharedCarts: func() any { return &SharedCartReadModel{} },
	}
}
