package order

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced    = "OrderPlaced"
	EventOrderCompleted = "OrderCompleted"
	EventOrderCanceled  = "OrderCanceled"
)

type OrderItem struct {
	ItemID   string          `json:"item_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Contribution is one participant's share of a shared order.
type Contribution struct {
	UserID      string          `json:"user_id"`
	Items       []OrderItem     `json:"items"`
	ItemsTotal  decimal.Decimal `json:"items_total"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
}

type OrderPlaced struct {
	OrderID       string          `json:"order_id"`
	OwnerID       string          `json:"owner_id"`
	SupermarketID string          `json:"supermarket_id"`
	AddressID     string          `json:"address_id"`
	Slot          string          `json:"slot"`
	CartID        string          `json:"cart_id,omitempty"`
	SharedCartID  string          `json:"shared_cart_id,omitempty"`
	Items         []OrderItem     `json:"items"`
	BasketValue   decimal.Decimal `json:"basket_value"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Contributions []Contribution  `json:"contributions,omitempty"`
	PlacedAt      time.Time       `json:"placed_at"`
}

type OrderCompleted struct {
	OrderID     string    `json:"order_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type OrderCanceled struct {
	OrderID    string    `json:"order_id"`
	Reason     string    `json:"reason"`
	CanceledAt time.Time `json:"canceled_at"`
}
