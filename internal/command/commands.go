package command

import "github.com/shopspring/decimal"

// Cart Commands
type CreateCart struct {
	OwnerID       string `json:"owner_id"`
	SupermarketID string `json:"supermarket_id"`
}

type AddToCart struct {
	CartID   string          `json:"cart_id"`
	ItemID   string          `json:"item_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// RemoveFromCart removes Quantity units; zero removes the whole line.
type RemoveFromCart struct {
	CartID   string `json:"cart_id"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type EmptyCart struct {
	CartID string `json:"cart_id"`
}

// Checkout Commands
type SubmitCheckout struct {
	AttemptID     string `json:"attempt_id"`
	CartID        string `json:"cart_id"`
	OwnerID       string `json:"owner_id"`
	SupermarketID string `json:"supermarket_id"`
	AddressID     string `json:"address_id"`
	Slot          string `json:"slot"`
}

// Order Commands
type CancelOrder struct {
	OrderID     string `json:"order_id"`
	RequesterID string `json:"requester_id"`
	Reason      string `json:"reason"`
}

type CompleteOrder struct {
	OrderID string `json:"order_id"`
}

// Wallet Commands
type TopUpWallet struct {
	OwnerID string          `json:"owner_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// Account Commands
type RegisterAccount struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type AddAddress struct {
	UserID  string `json:"user_id"`
	Details string `json:"details"`
}
