// Package projection keeps the read models in step with the event stream.
package projection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/grocery-storefront/internal/domain/account"
	"github.com/example/grocery-storefront/internal/domain/order"
	"github.com/example/grocery-storefront/internal/domain/sharedcart"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/example/grocery-storefront/internal/money"
	"github.com/example/grocery-storefront/internal/readmodel"
	"go.uber.org/zap"
)

type Projector struct {
	readStore store.ReadStoreInterface
	logger    *zap.Logger
}

func NewProjector(readStore store.ReadStoreInterface, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{readStore: readStore, logger: logger.Named("projector")}
}

// HandleEvent decodes a published event and applies it. It matches the
// kafka.Consumer handler signature.
func (p *Projector) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	return p.Apply(ctx, event)
}

// Apply projects a single event. Aggregates without read models are ignored.
func (p *Projector) Apply(ctx context.Context, event store.Event) error {
	p.logger.Debug("received event",
		zap.String("event_type", event.EventType),
		zap.String("aggregate_type", event.AggregateType),
		zap.String("aggregate_id", event.AggregateID))

	switch event.AggregateType {
	case order.AggregateType:
		return p.handleOrderEvent(ctx, event)
	case account.AggregateType:
		return p.handleAccountEvent(ctx, event)
	case sharedcart.AggregateType:
		return p.handleSharedCartEvent(ctx, event)
	}
	return nil
}

// Publisher projects events synchronously as the event store appends them,
// for deployments without a broker.
func (p *Projector) Publisher() store.Publisher {
	return store.PublisherFunc(func(ctx context.Context, key string, event any) error {
		if e, ok := event.(store.Event); ok {
			return p.Apply(ctx, e)
		}
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		return p.HandleEvent(ctx, []byte(key), data)
	})
}

// Replay projects every stored event in append order.
func (p *Projector) Replay(ctx context.Context, es store.EventStoreInterface) (int, error) {
	events, err := es.GetAllEvents(ctx)
	if err != nil {
		return 0, err
	}
	for _, event := range events {
		if err := p.Apply(ctx, event); err != nil {
			return 0, err
		}
	}
	return len(events), nil
}

func (p *Projector) handleOrderEvent(ctx context.Context, event store.Event) error {
	switch event.EventType {
	case order.EventOrderPlaced:
		var e order.OrderPlaced
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}

		items := make([]readmodel.OrderItemReadModel, 0, len(e.Items))
		for _, item := range e.Items {
			items = append(items, readmodel.OrderItemReadModel{
				ItemID:    item.ItemID,
				Quantity:  item.Quantity,
				Price:     item.Price,
				TotalCost: money.LineTotal(item.Price, item.Quantity),
			})
		}

		var contributors []readmodel.ContributorReadModel
		for _, c := range e.Contributions {
			contributors = append(contributors, readmodel.ContributorReadModel{
				UserID:                  c.UserID,
				Name:                    p.accountName(ctx, c.UserID),
				ItemsTotal:              c.ItemsTotal,
				DeliveryFeeContribution: c.DeliveryFee,
				TotalContribution:       money.Sum(c.ItemsTotal, c.DeliveryFee),
			})
		}

		return p.readStore.Set(ctx, readmodel.Orders, e.OrderID, &readmodel.OrderReadModel{
			ID:            e.OrderID,
			OwnerID:       e.OwnerID,
			SupermarketID: e.SupermarketID,
			AddressID:     e.AddressID,
			Slot:          e.Slot,
			SharedCartID:  e.SharedCartID,
			Status:        string(order.StatusPending),
			Items:         items,
			BasketValue:   e.BasketValue,
			DeliveryFee:   e.DeliveryFee,
			TotalAmount:   e.TotalAmount,
			Contributors:  contributors,
			CreatedAt:     e.PlacedAt,
			UpdatedAt:     e.PlacedAt,
		})

	case order.EventOrderCompleted:
		var e order.OrderCompleted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.setOrderStatus(ctx, e.OrderID, order.StatusCompleted, e.CompletedAt)

	case order.EventOrderCanceled:
		var e order.OrderCanceled
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.setOrderStatus(ctx, e.OrderID, order.StatusCanceled, e.CanceledAt)
	}
	return nil
}

func (p *Projector) setOrderStatus(ctx context.Context, orderID string, status order.Status, at time.Time) error {
	found, err := p.readStore.Update(ctx, readmodel.Orders, orderID, func(current any) any {
		o := *current.(*readmodel.OrderReadModel)
		o.Status = string(status)
		o.UpdatedAt = at
		return &o
	})
	if err != nil {
		return err
	}
	if !found {
		p.logger.Warn("status change for unknown order", zap.String("order_id", orderID))
	}
	return nil
}

func (p *Projector) accountName(ctx context.Context, userID string) string {
	v, ok, err := p.readStore.Get(ctx, readmodel.Accounts, userID)
	if err != nil || !ok {
		return ""
	}
	return v.(*readmodel.AccountReadModel).Name
}

func (p *Projector) handleAccountEvent(ctx context.Context, event store.Event) error {
	switch event.EventType {
	case account.EventAccountRegistered:
		var e account.AccountRegistered
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.upsertAccount(ctx, e.UserID, e.RegisteredAt, func(a *readmodel.AccountReadModel) {
			a.Name = e.Name
			a.Email = e.Email
		})

	case account.EventAddressAdded:
		var e account.AddressAdded
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.upsertAccount(ctx, e.UserID, e.AddedAt, func(a *readmodel.AccountReadModel) {
			for _, existing := range a.Addresses {
				if existing.AddressID == e.AddressID {
					return
				}
			}
			a.Addresses = append(a.Addresses, readmodel.AddressReadModel{AddressID: e.AddressID, Details: e.Details})
		})
	}
	return nil
}

func (p *Projector) upsertAccount(ctx context.Context, userID string, at time.Time, apply func(*readmodel.AccountReadModel)) error {
	return p.readStore.Upsert(ctx, readmodel.Accounts, userID, func(current any, found bool) any {
		a := readmodel.AccountReadModel{UserID: userID, Addresses: []readmodel.AddressReadModel{}}
		if found {
			a = *current.(*readmodel.AccountReadModel)
			a.Addresses = append([]readmodel.AddressReadModel(nil), a.Addresses...)
		}
		apply(&a)
		a.UpdatedAt = at
		return &a
	})
}

func (p *Projector) handleSharedCartEvent(ctx context.Context, event store.Event) error {
	switch event.EventType {
	case sharedcart.EventSharedCartOpened:
		var e sharedcart.SharedCartOpened
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		return p.readStore.Set(ctx, readmodel.SharedCarts, e.SharedCartID, &readmodel.SharedCartReadModel{
			ID:            e.SharedCartID,
			RoundID:       sharedcart.RoundID(e.SharedCartID, e.Round),
			Round:         e.Round,
			SupermarketID: e.SupermarketID,
			AddressID:     e.AddressID,
			Slot:          e.Slot,
			Status:        string(sharedcart.StatusOpen),
			Contributors:  []string{},
			OpenedAt:      e.OpenedAt,
		})

	case sharedcart.EventContributorJoined:
		var e sharedcart.ContributorJoined
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		_, err := p.readStore.Update(ctx, readmodel.SharedCarts, e.SharedCartID, func(current any) any {
			sc := *current.(*readmodel.SharedCartReadModel)
			for _, id := range sc.Contributors {
				if id == e.UserID {
					return &sc
				}
			}
			sc.Contributors = append(append([]string(nil), sc.Contributors...), e.UserID)
			return &sc
		})
		return err

	case sharedcart.EventSharedCartClosed:
		var e sharedcart.SharedCartClosed
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return err
		}
		_, err := p.readStore.Update(ctx, readmodel.SharedCarts, e.SharedCartID, func(current any) any {
			sc := *current.(*readmodel.SharedCartReadModel)
			sc.Status = string(sharedcart.StatusClosed)
			sc.ClosedAt = e.ClosedAt
			return &sc
		})
		return err
	}
	return nil
}
