// Package ledger reads the owner's order history back from the backend,
// splits it into normal and shared orders and checks that shared orders
// add up.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/grocery-storefront/internal/backend"
	"github.com/example/grocery-storefront/internal/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrOrderNotFound = errors.New("order not found")

// ReconciliationError reports a shared order whose contributions do not sum
// to its total cost.
type ReconciliationError struct {
	OrderID         string
	TotalCost       decimal.Decimal
	ContributionSum decimal.Decimal
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("order %s: contributions sum to %s but total cost is %s",
		e.OrderID, e.ContributionSum, e.TotalCost)
}

// Difference is the contribution sum minus the total cost.
func (e *ReconciliationError) Difference() decimal.Decimal {
	return e.ContributionSum.Sub(e.TotalCost)
}

// Detail is an order plus the outcome of reconciling it.
type Detail struct {
	Order          Order                `json:"order"`
	Reconciliation *ReconciliationError `json:"-"`
}

// Discrepancy is the human readable reconciliation failure, empty when the
// order reconciles.
func (d Detail) Discrepancy() string {
	if d.Reconciliation == nil {
		return ""
	}
	return d.Reconciliation.Error()
}

// Classify partitions orders into normal and shared, preserving order.
func Classify(orders []Order) (normal, shared []Order) {
	for _, o := range orders {
		switch o.Kind.(type) {
		case Shared:
			shared = append(shared, o)
		default:
			normal = append(normal, o)
		}
	}
	return normal, shared
}

// Reconcile checks that a shared order's contributions sum to its total cost
// within one cent. Normal orders always reconcile.
func Reconcile(o Order) error {
	s, ok := o.Kind.(Shared)
	if !ok {
		return nil
	}
	sum := decimal.Zero
	for _, c := range s.Contributions {
		sum = sum.Add(c.TotalContribution)
	}
	sum = money.Round(sum)
	if !money.Equal(sum, o.TotalCost) {
		return &ReconciliationError{OrderID: o.ID, TotalCost: o.TotalCost, ContributionSum: sum}
	}
	return nil
}

type Ledger struct {
	api    backend.OrderAPI
	logger *zap.Logger

	mu    sync.RWMutex
	known map[string]Order
}

func New(api backend.OrderAPI, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		api:    api,
		logger: logger.Named("ledger"),
		known:  make(map[string]Order),
	}
}

// List fetches the owner's order summaries.
func (l *Ledger) List(ctx context.Context, ownerID string) ([]Order, error) {
	summaries, err := l.api.FetchOrders(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list orders of %s: %w", ownerID, err)
	}

	orders := make([]Order, 0, len(summaries))
	l.mu.Lock()
	for _, s := range summaries {
		o := FromBackend(s)
		l.known[o.ID] = o
		orders = append(orders, o)
	}
	l.mu.Unlock()
	return orders, nil
}

// Detail returns one order. A normal order already listed is served from
// memory. Shared and unknown orders are looked up so the full contributor
// roster is present, then reconciled.
func (l *Ledger) Detail(ctx context.Context, orderID, requesterID string) (*Detail, error) {
	l.mu.RLock()
	known, ok := l.known[orderID]
	l.mu.RUnlock()
	if ok && !known.IsShared() {
		return &Detail{Order: known}, nil
	}

	b, err := l.api.FetchOrderDetail(ctx, orderID, requesterID)
	if errors.Is(err, backend.ErrNotFound) || (err == nil && b == nil) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", orderID, err)
	}

	detail := &Detail{Order: FromBackend(*b)}
	var rec *ReconciliationError
	if errors.As(Reconcile(detail.Order), &rec) {
		detail.Reconciliation = rec
		l.logger.Warn("shared order does not reconcile",
			zap.String("order_id", orderID),
			zap.String("total_cost", rec.TotalCost.String()),
			zap.String("contribution_sum", rec.ContributionSum.String()))
	}
	if !detail.Order.IsShared() {
		l.mu.Lock()
		l.known[orderID] = detail.Order
		l.mu.Unlock()
	}
	return detail, nil
}
