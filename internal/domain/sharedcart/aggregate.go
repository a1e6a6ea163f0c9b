// Package sharedcart pools the scheduled orders of everyone delivering to the
// same address from the same supermarket in the same slot. Contributors
// prepay the full delivery fee; closing splits it and refunds the rest.
//
// Each (supermarket, address, slot) key has one event stream. A stream is
// reused across rounds: joining a closed cart opens the next round.
package sharedcart

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

const AggregateType = "SharedCart"

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

var (
	ErrSharedCartNotFound = errors.New("shared cart not found")
	ErrSharedCartClosed   = errors.New("shared cart is closed")
	ErrRoundMismatch      = errors.New("shared cart round has moved on")
	ErrNoItems            = errors.New("contribution must have at least one item")
	ErrInvalidKey         = errors.New("supermarket_id, address_id and slot are required")
)

type Contributor struct {
	UserID   string          `json:"user_id"`
	CartIDs  []string        `json:"cart_ids"`
	Items    []Item          `json:"items"`
	FeePaid  decimal.Decimal `json:"fee_paid"`
	JoinedAt time.Time       `json:"joined_at"`
}

func (c Contributor) ItemsTotal() decimal.Decimal {
	totals := make([]decimal.Decimal, 0, len(c.Items))
	for _, item := range c.Items {
		totals = append(totals, money.LineTotal(item.Price, item.Quantity))
	}
	return money.Sum(totals...)
}

type SharedCart struct {
	ID            string          `json:"id"`
	SupermarketID string          `json:"supermarket_id"`
	AddressID     string          `json:"address_id"`
	Slot          string          `json:"slot"`
	Round         int             `json:"round"`
	Status        Status          `json:"status"`
	DeliveryFee   decimal.Decimal `json:"delivery_fee"`
	Contributors  []Contributor   `json:"contributors"` // join order, organizer first
	Shares        []FeeShare      `json:"shares,omitempty"`
	OpenedAt      time.Time       `json:"opened_at"`
	ClosedAt      time.Time       `json:"closed_at,omitempty"`
	Version       int             `json:"version"`
}

// StreamID is the aggregate id for a (supermarket, address, slot) key.
func StreamID(supermarketID, addressID, slot string) string {
	key := supermarketID + "|" + addressID + "|" + slot
	return "shared-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// RoundID names one round of a stream; orders and checkout results carry it.
func RoundID(streamID string, round int) string {
	return fmt.Sprintf("%s-r%d", streamID, round)
}

func (s *SharedCart) GetID() string   { return s.ID }
func (s *SharedCart) GetVersion() int { return s.Version }

// CurrentID is the round id of the current round.
func (s *SharedCart) CurrentID() string { return RoundID(s.ID, s.Round) }

func (s *SharedCart) IsOpen() bool { return s.Status == StatusOpen }

func (s *SharedCart) Contributor(userID string) (Contributor, bool) {
	for _, c := range s.Contributors {
		if c.UserID == userID {
			return c, true
		}
	}
	return Contributor{}, false
}

// ApplyEvent applies a single event to the shared cart state (implements aggregate.Aggregate)
func (s *SharedCart) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventSharedCartOpened:
		var data SharedCartOpened
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		s.ID = data.SharedCartID
		s.SupermarketID = data.SupermarketID
		s.AddressID = data.AddressID
		s.Slot = data.Slot
		s.Round = data.Round
		s.Status = StatusOpen
		s.DeliveryFee = data.DeliveryFee
		s.Contributors = []Contributor{}
		s.Shares = nil
		s.OpenedAt = data.OpenedAt
		s.ClosedAt = time.Time{}
	case EventContributorJoined:
		var data ContributorJoined
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		s.join(data)
	case EventSharedCartClosed:
		var data SharedCartClosed
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		s.Status = StatusClosed
		s.Shares = data.Shares
		s.ClosedAt = data.ClosedAt
	}
	s.Version = event.Version
	return nil
}

func (s *SharedCart) join(data ContributorJoined) {
	for i := range s.Contributors {
		c := &s.Contributors[i]
		if c.UserID != data.UserID {
			continue
		}
		c.CartIDs = append(c.CartIDs, data.CartID)
		c.FeePaid = money.Sum(c.FeePaid, data.FeePaid)
		for _, item := range data.Items {
			merged := false
			for j := range c.Items {
				if c.Items[j].ItemID == item.ItemID && c.Items[j].Price.Equal(item.Price) {
					c.Items[j].Quantity += item.Quantity
					merged = true
					break
				}
			}
			if !merged {
				c.Items = append(c.Items, item)
			}
		}
		return
	}
	s.Contributors = append(s.Contributors, Contributor{
		UserID:   data.UserID,
		CartIDs:  []string{data.CartID},
		Items:    append([]Item(nil), data.Items...),
		FeePaid:  data.FeePaid,
		JoinedAt: data.JoinedAt,
	})
}

// Split divides the delivery fee equally between contributors. Leftover
// cents go to the earliest contributors, starting with the organizer.
func (s *SharedCart) Split() []FeeShare {
	parts := money.Split(s.DeliveryFee, len(s.Contributors))
	shares := make([]FeeShare, len(s.Contributors))
	for i, c := range s.Contributors {
		refund := money.Round(c.FeePaid.Sub(parts[i]))
		if refund.IsNegative() {
			refund = decimal.Zero
		}
		shares[i] = FeeShare{UserID: c.UserID, Share: parts[i], Refund: refund}
	}
	return shares
}

// FeeDue is the delivery fee a user must prepay to join the cart now: the
// full fee on first join of a round, nothing after that.
func (s *SharedCart) FeeDue(userID string, fee decimal.Decimal) decimal.Decimal {
	if s.IsOpen() {
		if _, ok := s.Contributor(userID); ok {
			return decimal.Zero
		}
	}
	return money.Round(fee)
}

// Contribution is what a participant is asked to prepay when joining.
type Contribution struct {
	UserID string
	CartID string
	Items  []Item
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
	return &Service{eventStore: es, logger: logger.Named("sharedcart"), now: time.Now}
}

func (s *Service) Get(ctx context.Context, streamID string) (*SharedCart, error) {
	sc, found, err := aggregate.LoadAggregate(ctx, s.eventStore, streamID, func() *SharedCart {
		return &SharedCart{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSharedCartNotFound
	}
	return sc, nil
}

// Find returns the shared cart for a key, or a not-yet-opened one with
// Round 0 and only its key set.
func (s *Service) Find(ctx context.Context, supermarketID, addressID, slot string) (*SharedCart, error) {
	if supermarketID == "" || addressID == "" || slot == "" {
		return nil, ErrInvalidKey
	}
	id := StreamID(supermarketID, addressID, slot)
	sc, err := s.Get(ctx, id)
	if errors.Is(err, ErrSharedCartNotFound) {
		return &SharedCart{ID: id, SupermarketID: supermarketID, AddressID: addressID, Slot: slot}, nil
	}
	return sc, err
}

// Join adds a contribution, opening a new round first when the cart is closed
// or has never been opened. fee is the supermarket's delivery fee; feePaid
// the amount the contributor prepaid with this join.
func (s *Service) Join(ctx context.Context, sc *SharedCart, fee decimal.Decimal, c Contribution, feePaid decimal.Decimal) (*SharedCart, error) {
	if len(c.Items) == 0 {
		return nil, ErrNoItems
	}

	if !sc.IsOpen() {
		opened := SharedCartOpened{
			SharedCartID:  sc.ID,
			Round:         sc.Round + 1,
			SupermarketID: sc.SupermarketID,
			AddressID:     sc.AddressID,
			Slot:          sc.Slot,
			DeliveryFee:   money.Round(fee),
			OpenedAt:      s.now(),
		}
		if err := s.record(ctx, sc, EventSharedCartOpened, opened); err != nil {
			return nil, err
		}
		s.logger.Info("shared cart opened", zap.String("shared_cart_id", sc.CurrentID()), zap.String("slot", sc.Slot))
	}

	joined := ContributorJoined{
		SharedCartID: sc.ID,
		Round:        sc.Round,
		UserID:       c.UserID,
		CartID:       c.CartID,
		Items:        c.Items,
		FeePaid:      money.Round(feePaid),
		JoinedAt:     s.now(),
	}
	if err := s.record(ctx, sc, EventContributorJoined, joined); err != nil {
		return nil, err
	}
	return sc, nil
}

// Close ends the given round and records the fee split.
func (s *Service) Close(ctx context.Context, streamID string, round int) (*SharedCart, error) {
	sc, err := s.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if sc.Round != round {
		return nil, fmt.Errorf("%w: closing round %d, current %d", ErrRoundMismatch, round, sc.Round)
	}
	if !sc.IsOpen() {
		return nil, ErrSharedCartClosed
	}

	closed := SharedCartClosed{
		SharedCartID: sc.ID,
		Round:        sc.Round,
		Shares:       sc.Split(),
		ClosedAt:     s.now(),
	}
	if err := s.record(ctx, sc, EventSharedCartClosed, closed); err != nil {
		return nil, err
	}
	s.logger.Info("shared cart closed",
		zap.String("shared_cart_id", sc.CurrentID()),
		zap.Int("contributors", len(sc.Contributors)))
	return sc, nil
}

func (s *Service) record(ctx context.Context, sc *SharedCart, eventType string, data any) error {
	if err := aggregate.Record(ctx, s.eventStore, sc, AggregateType, eventType, data); err != nil {
		return err
	}
	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, sc, AggregateType); err != nil {
		s.logger.Warn("failed to create snapshot", zap.String("shared_cart_id", sc.ID), zap.Error(err))
	}
	return nil
}
