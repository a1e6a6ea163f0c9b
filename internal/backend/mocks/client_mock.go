package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/grocery-storefront/internal/backend"
	"github.com/example/grocery-storefront/internal/money"
	"github.com/shopspring/decimal"
)

// MockClient is an in-memory implementation of backend.Client for testing
type MockClient struct {
	mu sync.Mutex

	carts     map[string]*backend.Cart
	wallets   map[string]decimal.Decimal
	addresses map[string][]backend.Address
	slots     map[string][]string
	orders    map[string]backend.Order
	nextCart  int

	// For tracking calls in tests
	CreateCartCalls []string
	AddItemCalls    []ItemCall
	RemoveItemCalls []ItemCall
	EmptyCartCalls  []string
	FetchCartCalls  []string
	BalanceCalls    []string
	SubmitCalls     []backend.CheckoutRequest

	CartErr     error
	FetchErr    error
	CheckoutErr error
	BalanceErr  error
	SubmitErr   error
	OrdersErr   error

	SubmitCallback func(ctx context.Context, req backend.CheckoutRequest) (*backend.CheckoutResult, error)

	// AddItemCallback runs before AddItem touches the cart, unlocked
	AddItemCallback func()
}

// ItemCall records parameters passed to AddItem or RemoveItem
type ItemCall struct {
	CartID    string
	ItemID    string
	Quantity  int
	UnitPrice decimal.Decimal
}

// NewMockClient creates a new MockClient
func NewMockClient() *MockClient {
	return &MockClient{
		carts:     make(map[string]*backend.Cart),
		wallets:   make(map[string]decimal.Decimal),
		addresses: make(map[string][]backend.Address),
		slots:     make(map[string][]string),
		orders:    make(map[string]backend.Order),
	}
}

// SetBalance sets the wallet balance of an owner
func (m *MockClient) SetBalance(ownerID string, balance decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[ownerID] = balance
}

// SetAddresses sets the address book of an owner
func (m *MockClient) SetAddresses(ownerID string, addresses ...backend.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[ownerID] = addresses
}

// SetSlots sets the delivery slots of a supermarket
func (m *MockClient) SetSlots(supermarketID string, slots ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[supermarketID] = slots
}

// SetOrder stores an order returned by FetchOrders and FetchOrderDetail
func (m *MockClient) SetOrder(order backend.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.OrderID] = order
}

// SetCart stores a cart directly, bypassing the call log
func (m *MockClient) SetCart(cart backend.Cart) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := cart
	m.carts[cart.CartID] = &c
}

func (m *MockClient) CreateCart(ctx context.Context, ownerID, supermarketID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCartCalls = append(m.CreateCartCalls, ownerID)
	if m.CartErr != nil {
		return "", m.CartErr
	}
	m.nextCart++
	id := fmt.Sprintf("cart-%d", m.nextCart)
	m.carts[id] = &backend.Cart{CartID: id, OwnerID: ownerID, SupermarketID: supermarketID, Status: "active"}
	return id, nil
}

func (m *MockClient) FetchCart(ctx context.Context, cartID string) (*backend.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCartCalls = append(m.FetchCartCalls, cartID)
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	c, ok := m.carts[cartID]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return copyCart(c), nil
}

func (m *MockClient) AddItem(ctx context.Context, cartID, itemID string, quantity int, unitPrice decimal.Decimal) (*backend.Cart, error) {
	m.mu.Lock()
	callback := m.AddItemCallback
	m.mu.Unlock()
	if callback != nil {
		callback()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddItemCalls = append(m.AddItemCalls, ItemCall{CartID: cartID, ItemID: itemID, Quantity: quantity, UnitPrice: unitPrice})
	if m.CartErr != nil {
		return nil, m.CartErr
	}
	c, ok := m.carts[cartID]
	if !ok {
		return nil, backend.ErrNotFound
	}
	found := false
	for i := range c.Items {
		if c.Items[i].ItemID == itemID {
			c.Items[i].Quantity += quantity
			c.Items[i].Price = unitPrice
			found = true
		}
	}
	if !found {
		c.Items = append(c.Items, backend.CartItem{ItemID: itemID, Quantity: quantity, Price: unitPrice})
	}
	c.TotalPrice = cartTotal(c.Items)
	return copyCart(c), nil
}

func (m *MockClient) RemoveItem(ctx context.Context, cartID, itemID string, quantity int) (*backend.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveItemCalls = append(m.RemoveItemCalls, ItemCall{CartID: cartID, ItemID: itemID, Quantity: quantity})
	if m.CartErr != nil {
		return nil, m.CartErr
	}
	c, ok := m.carts[cartID]
	if !ok {
		return nil, backend.ErrNotFound
	}
	items := c.Items[:0]
	for _, item := range c.Items {
		if item.ItemID == itemID {
			if quantity == 0 || item.Quantity <= quantity {
				continue
			}
			item.Quantity -= quantity
		}
		items = append(items, item)
	}
	c.Items = items
	c.TotalPrice = cartTotal(c.Items)
	return copyCart(c), nil
}

func (m *MockClient) EmptyCart(ctx context.Context, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EmptyCartCalls = append(m.EmptyCartCalls, cartID)
	if m.CartErr != nil {
		return m.CartErr
	}
	if c, ok := m.carts[cartID]; ok {
		c.Items = nil
		c.TotalPrice = decimal.Zero
	}
	return nil
}

func (m *MockClient) FetchAddresses(ctx context.Context, ownerID string) ([]backend.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CheckoutErr != nil {
		return nil, m.CheckoutErr
	}
	return append([]backend.Address(nil), m.addresses[ownerID]...), nil
}

func (m *MockClient) FetchWalletBalance(ctx context.Context, ownerID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BalanceCalls = append(m.BalanceCalls, ownerID)
	if m.BalanceErr != nil {
		return decimal.Zero, m.BalanceErr
	}
	return m.wallets[ownerID], nil
}

func (m *MockClient) FetchDeliverySlots(ctx context.Context, supermarketID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CheckoutErr != nil {
		return nil, m.CheckoutErr
	}
	return append([]string(nil), m.slots[supermarketID]...), nil
}

func (m *MockClient) SubmitCheckout(ctx context.Context, req backend.CheckoutRequest) (*backend.CheckoutResult, error) {
	m.mu.Lock()
	m.SubmitCalls = append(m.SubmitCalls, req)
	callback := m.SubmitCallback
	submitErr := m.SubmitErr
	m.mu.Unlock()

	// Callback runs unlocked so tests can block inside it
	if callback != nil {
		return callback(ctx, req)
	}
	if submitErr != nil {
		return nil, submitErr
	}
	return &backend.CheckoutResult{
		OrderID:      "order-" + req.AttemptID,
		DeliveryTime: req.Slot,
		Message:      "Order placed successfully",
	}, nil
}

func (m *MockClient) FetchOrders(ctx context.Context, ownerID string) ([]backend.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OrdersErr != nil {
		return nil, m.OrdersErr
	}
	var orders []backend.Order
	for _, o := range m.orders {
		if o.OwnerID == ownerID || hasContributor(o, ownerID) {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

func (m *MockClient) FetchOrderDetail(ctx context.Context, orderID, requesterID string) (*backend.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OrdersErr != nil {
		return nil, m.OrdersErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, backend.ErrNotFound
	}
	return &o, nil
}

func hasContributor(o backend.Order, userID string) bool {
	for _, c := range o.Contributions {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

func cartTotal(items []backend.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(money.LineTotal(item.Price, item.Quantity))
	}
	return total
}

func copyCart(c *backend.Cart) *backend.Cart {
	cp := *c
	cp.Items = append([]backend.CartItem(nil), c.Items...)
	return &cp
}
