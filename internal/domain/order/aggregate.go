package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/grocery-storefront/internal/domain/aggregate"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/example/grocery-storefront/internal/money"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const AggregateType = "Order"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrEmptyOrder         = errors.New("order must have at least one item")
	ErrInvalidStatus      = errors.New("invalid order status transition")
	ErrOrderCompleted     = errors.New("order is already completed")
	ErrOrderCanceled      = errors.New("order is already canceled")
	ErrNoContributions    = errors.New("shared order needs at least one contribution")
	ErrContributionTotals = errors.New("contributions do not add up to the order total")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusCanceled},
	StatusCompleted: {}, // terminal state
	StatusCanceled:  {}, // terminal state
}

// CanTransitionTo checks if the order can transition to the target status
func (o *Order) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[o.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// transitionError returns an appropriate error for an invalid transition
func (o *Order) transitionError(target Status) error {
	switch o.Status {
	case StatusCanceled:
		return ErrOrderCanceled
	case StatusCompleted:
		return ErrOrderCompleted
	default:
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidStatus, o.Status, target)
	}
}

type Order struct {
	ID            string          `json:"id"`
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
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"` // Current event version
}

// Aggregate interface implementation
func (o *Order) GetID() string   { return o.ID }
func (o *Order) GetVersion() int { return o.Version }

func (o *Order) IsShared() bool { return o.SharedCartID != "" }

// ApplyEvent applies a single event to the order state (implements aggregate.Aggregate)
func (o *Order) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventOrderPlaced:
		var data OrderPlaced
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.ID = data.OrderID
		o.OwnerID = data.OwnerID
		o.SupermarketID = data.SupermarketID
		o.AddressID = data.AddressID
		o.Slot = data.Slot
		o.CartID = data.CartID
		o.SharedCartID = data.SharedCartID
		o.Items = data.Items
		o.BasketValue = data.BasketValue
		o.DeliveryFee = data.DeliveryFee
		o.TotalAmount = data.TotalAmount
		o.Contributions = data.Contributions
		o.Status = StatusPending
		o.CreatedAt = data.PlacedAt
		o.UpdatedAt = data.PlacedAt
	case EventOrderCompleted:
		var data OrderCompleted
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusCompleted
		o.UpdatedAt = data.CompletedAt
	case EventOrderCanceled:
		var data OrderCanceled
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		o.Status = StatusCanceled
		o.UpdatedAt = data.CanceledAt
	}
	o.Version = event.Version
	return nil
}

// ItemsTotal sums price × quantity over items.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	totals := make([]decimal.Decimal, 0, len(items))
	for _, item := range items {
		totals = append(totals, money.LineTotal(item.Price, item.Quantity))
	}
	return money.Sum(totals...)
}

// Placement describes a normal order drawn from one cart.
type Placement struct {
	OwnerID       string
	SupermarketID string
	AddressID     string
	Slot          string
	CartID        string
	Items         []OrderItem
	DeliveryFee   decimal.Decimal
}

// SharedPlacement describes an order drawn from a closed shared cart. The
// first contribution belongs to the organizer, who owns the order.
type SharedPlacement struct {
	SupermarketID string
	AddressID     string
	Slot          string
	SharedCartID  string
	DeliveryFee   decimal.Decimal
	Contributions []Contribution
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
	return &Service{eventStore: es, logger: logger.Named("order"), now: time.Now}
}

// Get loads an order by replaying events, using snapshot if available
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	o, found, err := aggregate.LoadAggregate(ctx, s.eventStore, orderID, func() *Order {
		return &Order{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) Place(ctx context.Context, p Placement) (*Order, error) {
	if len(p.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	basket := ItemsTotal(p.Items)
	fee := money.Round(p.DeliveryFee)
	event := OrderPlaced{
		OrderID:       "order-" + uuid.New().String(),
		OwnerID:       p.OwnerID,
		SupermarketID: p.SupermarketID,
		AddressID:     p.AddressID,
		Slot:          p.Slot,
		CartID:        p.CartID,
		Items:         p.Items,
		BasketValue:   basket,
		DeliveryFee:   fee,
		TotalAmount:   money.Sum(basket, fee),
		PlacedAt:      s.now(),
	}
	return s.place(ctx, event)
}

// PlaceShared places the order of a shared cart. Contributions must add up
// to the basket plus the delivery fee.
func (s *Service) PlaceShared(ctx context.Context, p SharedPlacement) (*Order, error) {
	if len(p.Contributions) == 0 {
		return nil, ErrNoContributions
	}

	var items []OrderItem
	var shares []decimal.Decimal
	for _, c := range p.Contributions {
		items = append(items, c.Items...)
		shares = append(shares, c.ItemsTotal, c.DeliveryFee)
	}
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	basket := ItemsTotal(items)
	fee := money.Round(p.DeliveryFee)
	total := money.Sum(basket, fee)
	if !money.Sum(shares...).Equal(total) {
		return nil, fmt.Errorf("%w: %s != %s", ErrContributionTotals, money.Sum(shares...).StringFixed(2), total.StringFixed(2))
	}

	event := OrderPlaced{
		OrderID:       "order-" + uuid.New().String(),
		OwnerID:       p.Contributions[0].UserID,
		SupermarketID: p.SupermarketID,
		AddressID:     p.AddressID,
		Slot:          p.Slot,
		SharedCartID:  p.SharedCartID,
		Items:         items,
		BasketValue:   basket,
		DeliveryFee:   fee,
		TotalAmount:   total,
		Contributions: p.Contributions,
		PlacedAt:      s.now(),
	}
	return s.place(ctx, event)
}

func (s *Service) place(ctx context.Context, event OrderPlaced) (*Order, error) {
	o := &Order{ID: event.OrderID}
	if err := s.record(ctx, o, EventOrderPlaced, event); err != nil {
		return nil, err
	}
	s.logger.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("owner_id", o.OwnerID),
		zap.Bool("shared", o.IsShared()),
		zap.String("total", o.TotalAmount.StringFixed(2)))
	return o, nil
}

func (s *Service) Complete(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanTransitionTo(StatusCompleted) {
		return nil, o.transitionError(StatusCompleted)
	}

	if err := s.record(ctx, o, EventOrderCompleted, OrderCompleted{OrderID: orderID, CompletedAt: s.now()}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Cancel(ctx context.Context, orderID, reason string) (*Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanTransitionTo(StatusCanceled) {
		return nil, o.transitionError(StatusCanceled)
	}

	event := OrderCanceled{
		OrderID:    orderID,
		Reason:     reason,
		CanceledAt: s.now(),
	}
	if err := s.record(ctx, o, EventOrderCanceled, event); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) record(ctx context.Context, o *Order, eventType string, data any) error {
	if err := aggregate.Record(ctx, s.eventStore, o, AggregateType, eventType, data); err != nil {
		return err
	}
	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, o, AggregateType); err != nil {
		s.logger.Warn("failed to create snapshot", zap.String("order_id", o.ID), zap.Error(err))
	}
	return nil
}
