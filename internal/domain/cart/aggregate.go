// Package cart is the backend's event-sourced shopping cart. A cart belongs
// to one owner at one supermarket and accepts changes until checkout.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/example/grocery-storefront/internal/domain/aggregate"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/example/grocery-storefront/internal/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const AggregateType = "Cart"

type Status string

const (
	StatusActive     Status = "active"
	StatusCheckedOut Status = "checked_out"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrCartInactive    = errors.New("cart is no longer active")
	ErrInvalidCart     = errors.New("owner_id and supermarket_id are required")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidItem     = errors.New("item_id is required")
	ErrInvalidPrice    = errors.New("price must not be negative")
	ErrItemNotInCart   = errors.New("item is not in the cart")
)

type Item struct {
	ItemID   string          `json:"item_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Total is the line total in cents precision.
func (i Item) Total() decimal.Decimal {
	return money.LineTotal(i.Price, i.Quantity)
}

type Cart struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	SupermarketID string    `json:"supermarket_id"`
	Status        Status    `json:"status"`
	Items         []Item    `json:"items"` // insertion order
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Version       int       `json:"version"`
}

func (c *Cart) GetID() string   { return c.ID }
func (c *Cart) GetVersion() int { return c.Version }

// Total is recomputed from the lines every time.
func (c *Cart) Total() decimal.Decimal {
	totals := make([]decimal.Decimal, 0, len(c.Items))
	for _, item := range c.Items {
		totals = append(totals, item.Total())
	}
	return money.Sum(totals...)
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c *Cart) indexOf(itemID string) int {
	for i, item := range c.Items {
		if item.ItemID == itemID {
			return i
		}
	}
	return -1
}

// ApplyEvent applies a single event to the cart state (implements aggregate.Aggregate)
func (c *Cart) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventCartCreated:
		var data CartCreated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		c.ID = data.CartID
		c.OwnerID = data.OwnerID
		c.SupermarketID = data.SupermarketID
		c.Status = StatusActive
		c.Items = []Item{}
		c.CreatedAt = data.CreatedAt
		c.UpdatedAt = data.CreatedAt
	case EventItemAdded:
		var data ItemAddedToCart
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		if i := c.indexOf(data.ItemID); i >= 0 {
			c.Items[i].Quantity += data.Quantity
			c.Items[i].Price = data.Price
		} else {
			c.Items = append(c.Items, Item{ItemID: data.ItemID, Quantity: data.Quantity, Price: data.Price})
		}
		c.UpdatedAt = data.AddedAt
	case EventItemRemoved:
		var data ItemRemovedFromCart
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		if i := c.indexOf(data.ItemID); i >= 0 {
			if data.Quantity == 0 || data.Quantity >= c.Items[i].Quantity {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
			} else {
				c.Items[i].Quantity -= data.Quantity
			}
		}
		c.UpdatedAt = data.RemovedAt
	case EventCartEmptied:
		var data CartEmptied
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		c.Items = []Item{}
		c.UpdatedAt = data.EmptiedAt
	case EventCartCheckedOut:
		var data CartCheckedOut
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		c.Status = StatusCheckedOut
		c.UpdatedAt = data.CheckedOutAt
	}
	c.Version = event.Version
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
	logger     *zap.Logger
	now        func() time.Time
}

func NewService(es store.EventStoreInterface, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{eventStore: es, logger: logger.Named("cart"), now: time.Now}
}

// Get loads a cart by replaying its events
func (s *Service) Get(ctx context.Context, cartID string) (*Cart, error) {
	c, found, err := aggregate.LoadAggregate(ctx, s.eventStore, cartID, func() *Cart {
		return &Cart{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrCartNotFound
	}
	return c, nil
}

func (s *Service) Create(ctx context.Context, ownerID, supermarketID string) (*Cart, error) {
	if ownerID == "" || supermarketID == "" {
		return nil, ErrInvalidCart
	}

	c := &Cart{ID: "cart-" + uuid.New().String()}
	event := CartCreated{
		CartID:        c.ID,
		OwnerID:       ownerID,
		SupermarketID: supermarketID,
		CreatedAt:     s.now(),
	}
	if err := s.record(ctx, c, EventCartCreated, event); err != nil {
		return nil, err
	}
	s.logger.Info("cart created", zap.String("cart_id", c.ID), zap.String("owner_id", ownerID))
	return c, nil
}

func (s *Service) AddItem(ctx context.Context, cartID, itemID string, quantity int, price decimal.Decimal) (*Cart, error) {
	if itemID == "" {
		return nil, ErrInvalidItem
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if price.IsNegative() {
		return nil, ErrInvalidPrice
	}

	c, err := s.active(ctx, cartID)
	if err != nil {
		return nil, err
	}

	event := ItemAddedToCart{
		CartID:   cartID,
		ItemID:   itemID,
		Quantity: quantity,
		Price:    money.Round(price),
		AddedAt:  s.now(),
	}
	if err := s.record(ctx, c, EventItemAdded, event); err != nil {
		return nil, err
	}
	return c, nil
}

// RemoveItem removes quantity units of an item; zero removes the line.
func (s *Service) RemoveItem(ctx context.Context, cartID, itemID string, quantity int) (*Cart, error) {
	if itemID == "" {
		return nil, ErrInvalidItem
	}
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.active(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.indexOf(itemID) < 0 {
		return nil, ErrItemNotInCart
	}

	event := ItemRemovedFromCart{
		CartID:    cartID,
		ItemID:    itemID,
		Quantity:  quantity,
		RemovedAt: s.now(),
	}
	if err := s.record(ctx, c, EventItemRemoved, event); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Empty(ctx context.Context, cartID string) (*Cart, error) {
	c, err := s.active(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return c, nil
	}

	if err := s.record(ctx, c, EventCartEmptied, CartEmptied{CartID: cartID, EmptiedAt: s.now()}); err != nil {
		return nil, err
	}
	return c, nil
}

// MarkCheckedOut closes the cart to further changes.
func (s *Service) MarkCheckedOut(ctx context.Context, cartID, attemptID string) (*Cart, error) {
	c, err := s.active(ctx, cartID)
	if err != nil {
		return nil, err
	}

	event := CartCheckedOut{
		CartID:       cartID,
		OwnerID:      c.OwnerID,
		AttemptID:    attemptID,
		CheckedOutAt: s.now(),
	}
	if err := s.record(ctx, c, EventCartCheckedOut, event); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) active(ctx context.Context, cartID string) (*Cart, error) {
	c, err := s.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return nil, ErrCartInactive
	}
	return c, nil
}

func (s *Service) record(ctx context.Context, c *Cart, eventType string, data any) error {
	if err := aggregate.Record(ctx, s.eventStore, c, AggregateType, eventType, data); err != nil {
		return err
	}
	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, c, AggregateType); err != nil {
		s.logger.Warn("failed to create snapshot", zap.String("cart_id", c.ID), zap.Error(err))
	}
	return nil
}
