// Package wallet keeps each owner's prepaid balance as the sum of its
// credit and debit transactions.
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/grocery-storefront/internal/domain/aggregate"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/example/grocery-storefront/internal/money"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const AggregateType = "Wallet"

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
	ErrInvalidOwner        = errors.New("owner_id is required")
)

type TransactionType string

const (
	Credit TransactionType = "credit"
	Debit  TransactionType = "debit"
)

type Transaction struct {
	Type      TransactionType `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Wallet struct {
	ID           string          `json:"id"`
	OwnerID      string          `json:"owner_id"`
	Balance      decimal.Decimal `json:"balance"`
	Transactions []Transaction   `json:"transactions"`
	Version      int             `json:"version"`
}

// WalletID returns the aggregate id of an owner's wallet
func WalletID(ownerID string) string {
	return "wallet-" + ownerID
}

func (w *Wallet) GetID() string   { return w.ID }
func (w *Wallet) GetVersion() int { return w.Version }

// ApplyEvent applies a single event to the wallet state (implements aggregate.Aggregate)
func (w *Wallet) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventWalletCredited:
		var data WalletCredited
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		w.OwnerID = data.OwnerID
		w.Balance = money.Sum(w.Balance, data.Amount)
		w.Transactions = append(w.Transactions, Transaction{
			Type: Credit, Amount: data.Amount, Reason: data.Reason, Reference: data.Reference, CreatedAt: data.CreatedAt,
		})
	case EventWalletDebited:
		var data WalletDebited
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		w.OwnerID = data.OwnerID
		w.Balance = money.Round(w.Balance.Sub(data.Amount))
		w.Transactions = append(w.Transactions, Transaction{
			Type: Debit, Amount: data.Amount, Reference: data.Reference, CreatedAt: data.CreatedAt,
		})
	}
	w.ID = event.AggregateID
	w.Version = event.Version
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
	return &Service{eventStore: es, logger: logger.Named("wallet"), now: time.Now}
}

// Get returns the owner's wallet. An owner without transactions has an empty
// wallet rather than none.
func (s *Service) Get(ctx context.Context, ownerID string) (*Wallet, error) {
	if ownerID == "" {
		return nil, ErrInvalidOwner
	}
	id := WalletID(ownerID)
	w, found, err := aggregate.LoadAggregate(ctx, s.eventStore, id, func() *Wallet {
		return &Wallet{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return &Wallet{ID: id, OwnerID: ownerID, Balance: decimal.Zero, Transactions: []Transaction{}}, nil
	}
	return w, nil
}

func (s *Service) TopUp(ctx context.Context, ownerID string, amount decimal.Decimal) (*Wallet, error) {
	return s.credit(ctx, ownerID, amount, ReasonTopUp, "")
}

// Refund credits amount back to the owner for reference. A zero refund is a no-op.
func (s *Service) Refund(ctx context.Context, ownerID string, amount decimal.Decimal, reference string) (*Wallet, error) {
	if amount.IsZero() {
		return s.Get(ctx, ownerID)
	}
	return s.credit(ctx, ownerID, amount, ReasonRefund, reference)
}

// Debit takes amount from the wallet, refusing to go below zero.
func (s *Service) Debit(ctx context.Context, ownerID string, amount decimal.Decimal, reference string) (*Wallet, error) {
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	w, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if w.Balance.LessThan(amount) {
		return nil, fmt.Errorf("%w: balance %s, required %s", ErrInsufficientBalance, w.Balance.StringFixed(2), amount.StringFixed(2))
	}

	event := WalletDebited{
		OwnerID:   ownerID,
		Amount:    amount,
		Reference: reference,
		CreatedAt: s.now(),
	}
	if err := s.record(ctx, w, EventWalletDebited, event); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) credit(ctx context.Context, ownerID string, amount decimal.Decimal, reason, reference string) (*Wallet, error) {
	amount = money.Round(amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	w, err := s.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	event := WalletCredited{
		OwnerID:   ownerID,
		Amount:    amount,
		Reason:    reason,
		Reference: reference,
		CreatedAt: s.now(),
	}
	if err := s.record(ctx, w, EventWalletCredited, event); err != nil {
		return nil, err
	}
	s.logger.Info("wallet credited",
		zap.String("owner_id", ownerID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("reason", reason))
	return w, nil
}

func (s *Service) record(ctx context.Context, w *Wallet, eventType string, data any) error {
	if err := aggregate.Record(ctx, s.eventStore, w, AggregateType, eventType, data); err != nil {
		return err
	}
	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, w, AggregateType); err != nil {
		s.logger.Warn("failed to create snapshot", zap.String("wallet_id", w.ID), zap.Error(err))
	}
	return nil
}
