// Package backend defines the contract between the storefront and the grocery
// backend: wire types, the client interfaces and the errors every
// implementation reports.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrServiceUnavailable wraps every transport or 5xx failure.
	ErrServiceUnavailable = errors.New("backend service unavailable")
	ErrNotFound           = errors.New("backend resource not found")
)

// RejectedError is a 4xx answer other than not-found. The backend refused the
// request and the message is meant for the shopper.
type RejectedError struct {
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("backend rejected request (%d): %s", e.Status, e.Message)
}

// ErrorBody is the JSON error envelope of the backend.
type ErrorBody struct {
	Error string `json:"error"`
}

type CartItem struct {
	ItemID   string          `json:"item_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type Cart struct {
	CartID        string          `json:"cart_id"`
	OwnerID       string          `json:"owner_id"`
	SupermarketID string          `json:"supermarket_id"`
	Status        string          `json:"status"`
	Items         []CartItem      `json:"items"`
	TotalPrice    decimal.Decimal `json:"total_price"`
}

type Address struct {
	AddressID string `json:"address_id"`
	Details   string `json:"address_details"`
}

type Wallet struct {
	OwnerID string          `json:"owner_id"`
	Balance decimal.Decimal `json:"balance"`
}

type CheckoutRequest struct {
	AttemptID     string `json:"attempt_id"`
	CartID        string `json:"cart_id"`
	OwnerID       string `json:"owner_id"`
	SupermarketID string `json:"supermarket_id"`
	AddressID     string `json:"address_id"`
	Slot          string `json:"slot"`
}

type CheckoutResult struct {
	OrderID      string          `json:"order_id,omitempty"`
	SharedCartID string          `json:"shared_cart_id,omitempty"`
	DeliveryTime string          `json:"delivery_time"`
	Message      string          `json:"message"`
	BasketValue  decimal.Decimal `json:"basket_value"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

type OrderItem struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

type Contribution struct {
	UserID                  string          `json:"user_id"`
	Name                    string          `json:"name,omitempty"`
	TotalContribution       decimal.Decimal `json:"total_contribution"`
	DeliveryFeeContribution decimal.Decimal `json:"delivery_fee_contribution"`
}

// Order is both the summary and the detail shape. In a summary a shared
// order carries only the requester's own contribution.
type Order struct {
	OrderID       string          `json:"order_id"`
	OwnerID       string          `json:"owner_id"`
	SharedCartID  string          `json:"shared_cart_id,omitempty"`
	Status        string          `json:"status"`
	Items         []OrderItem     `json:"items"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	Contributions []Contribution  `json:"contributors,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type CartAPI interface {
	CreateCart(ctx context.Context, ownerID, supermarketID string) (string, error)
	FetchCart(ctx context.Context, cartID string) (*Cart, error)
	AddItem(ctx context.Context, cartID, itemID string, quantity int, unitPrice decimal.Decimal) (*Cart, error)
	// RemoveItem removes quantity units; zero removes the line completely.
	RemoveItem(ctx context.Context, cartID, itemID string, quantity int) (*Cart, error)
	EmptyCart(ctx context.Context, cartID string) error
}

type CheckoutAPI interface {
	FetchAddresses(ctx context.Context, ownerID string) ([]Address, error)
	FetchWalletBalance(ctx context.Context, ownerID string) (decimal.Decimal, error)
	FetchDeliverySlots(ctx context.Context, supermarketID string) ([]string, error)
	SubmitCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
}

type OrderAPI interface {
	FetchOrders(ctx context.Context, ownerID string) ([]Order, error)
	FetchOrderDetail(ctx context.Context, orderID, requesterID string) (*Order, error)
}

// Client is everything the storefront needs from the backend.
type Client interface {
	CartAPI
	CheckoutAPI
	OrderAPI
}
