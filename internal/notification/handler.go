// Package notification emails shoppers about their orders.
package notification

import (
	"context"
	"encoding/json"

	"github.com/example/grocery-storefront/internal/domain/order"
	"github.com/example/grocery-storefront/internal/email"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/example/grocery-storefront/internal/readmodel"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Mailer is satisfied by email.Service.
type Mailer interface {
	SendOrderConfirmation(to string, c email.Confirmation) error
	SendRefundNotice(to, orderID string, amount decimal.Decimal, reason string) error
}

// Handler processes events for sending notifications
type Handler struct {
	mailer    Mailer
	readStore store.ReadStoreInterface
	logger    *zap.Logger
}

func NewHandler(mailer Mailer, readStore store.ReadStoreInterface, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		mailer:    mailer,
		readStore: readStore,
		logger:    logger.Named("notifier"),
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Error("failed to unmarshal event", zap.Error(err))
		return err
	}
	return h.Apply(ctx, event)
}

// Apply sends the notifications for one event. Only order events matter.
func (h *Handler) Apply(ctx context.Context, event store.Event) error {
	if event.AggregateType != order.AggregateType {
		return nil
	}

	switch event.EventType {
	case order.EventOrderPlaced:
		return h.handleOrderPlaced(ctx, event)
	case order.EventOrderCanceled:
		return h.handleOrderCanceled(ctx, event)
	}
	return nil
}

func (h *Handler) handleOrderPlaced(ctx context.Context, event store.Event) error {
	var e order.OrderPlaced
	if err := json.Unmarshal(event.Data, &e); err != nil {
		h.logger.Error("failed to unmarshal OrderPlaced event", zap.Error(err))
		return err
	}

	h.logger.Info("processing OrderPlaced", zap.String("order_id", e.OrderID), zap.String("owner_id", e.OwnerID))

	if len(e.Contributions) == 0 {
		return h.confirm(ctx, e.OwnerID, email.Confirmation{
			OrderID:     e.OrderID,
			Slot:        e.Slot,
			Items:       emailItems(e.Items),
			DeliveryFee: e.DeliveryFee,
		})
	}

	var firstErr error
	for _, c := range e.Contributions {
		err := h.confirm(ctx, c.UserID, email.Confirmation{
			OrderID:     e.OrderID,
			Slot:        e.Slot,
			Shared:      true,
			Items:       emailItems(c.Items),
			DeliveryFee: c.DeliveryFee,
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *Handler) confirm(ctx context.Context, userID string, c email.Confirmation) error {
	to, ok := h.emailFor(ctx, userID)
	if !ok {
		return nil
	}
	if err := h.mailer.SendOrderConfirmation(to, c); err != nil {
		h.logger.Error("failed to send confirmation", zap.String("to", to), zap.String("order_id", c.OrderID), zap.Error(err))
		return err
	}
	h.logger.Info("order confirmation sent", zap.String("to", to), zap.String("order_id", c.OrderID))
	return nil
}

func (h *Handler) handleOrderCanceled(ctx context.Context, event store.Event) error {
	var e order.OrderCanceled
	if err := json.Unmarshal(event.Data, &e); err != nil {
		h.logger.Error("failed to unmarshal OrderCanceled event", zap.Error(err))
		return err
	}

	v, ok, err := h.readStore.Get(ctx, readmodel.Orders, e.OrderID)
	if err != nil {
		h.logger.Error("failed to load order", zap.String("order_id", e.OrderID), zap.Error(err))
		return nil
	}
	if !ok {
		h.logger.Warn("canceled order not projected yet", zap.String("order_id", e.OrderID))
		return nil
	}
	o := v.(*readmodel.OrderReadModel)

	refunds := map[string]decimal.Decimal{o.OwnerID: o.TotalAmount}
	if o.IsShared() {
		refunds = make(map[string]decimal.Decimal, len(o.Contributors))
		for _, c := range o.Contributors {
			refunds[c.UserID] = c.TotalContribution
		}
	}

	var firstErr error
	for userID, amount := range refunds {
		to, ok := h.emailFor(ctx, userID)
		if !ok {
			continue
		}
		if err := h.mailer.SendRefundNotice(to, e.OrderID, amount, e.Reason); err != nil {
			h.logger.Error("failed to send refund notice", zap.String("to", to), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// emailFor looks the address up in the accounts read model. Users without
// one are skipped.
func (h *Handler) emailFor(ctx context.Context, userID string) (string, bool) {
	v, exists, err := h.readStore.Get(ctx, readmodel.Accounts, userID)
	if err != nil {
		h.logger.Error("error getting account", zap.String("user_id", userID), zap.Error(err))
		return "", false
	}
	if !exists {
		h.logger.Warn("account not found", zap.String("user_id", userID))
		return "", false
	}
	a, ok := v.(*readmodel.AccountReadModel)
	if !ok || a.Email == "" {
		h.logger.Warn("account has no email", zap.String("user_id", userID))
		return "", false
	}
	return a.Email, true
}

func emailItems(items []order.OrderItem) []email.OrderItem {
	out := make([]email.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, email.OrderItem{ItemID: item.ItemID, Quantity: item.Quantity, Price: item.Price})
	}
	return out
}
