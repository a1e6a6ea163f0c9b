// Package account holds shopper profiles: the contact details used for
// notifications and the delivery addresses offered at checkout.
package account

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/example/grocery-storefront/internal/domain/aggregate"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const AggregateType = "Account"

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidUser     = errors.New("user_id is required")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidAddress  = errors.New("address details are required")
)

type Address struct {
	AddressID string `json:"address_id"`
	Details   string `json:"details"`
}

type Account struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Addresses []Address `json:"addresses"`
	Version   int       `json:"version"`
}

// AccountID returns the aggregate id of a user's account
func AccountID(userID string) string {
	return "account-" + userID
}

func (a *Account) GetID() string   { return a.ID }
func (a *Account) GetVersion() int { return a.Version }

func (a *Account) HasAddress(addressID string) bool {
	for _, addr := range a.Addresses {
		if addr.AddressID == addressID {
			return true
		}
	}
	return false
}

// ApplyEvent applies a single event to the account state (implements aggregate.Aggregate)
func (a *Account) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventAccountRegistered:
		var data AccountRegistered
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.UserID = data.UserID
		a.Name = data.Name
		a.Email = data.Email
	case EventAddressAdded:
		var data AddressAdded
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		a.UserID = data.UserID
		a.Addresses = append(a.Addresses, Address{AddressID: data.AddressID, Details: data.Details})
	}
	a.ID = event.AggregateID
	a.Version = event.Version
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
	return &Service{eventStore: es, logger: logger.Named("account"), now: time.Now}
}

func (s *Service) Get(ctx context.Context, userID string) (*Account, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}
	a, found, err := aggregate.LoadAggregate(ctx, s.eventStore, AccountID(userID), func() *Account {
		return &Account{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

// Register records or updates the user's name and email.
func (s *Service) Register(ctx context.Context, userID, name, email string) (*Account, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}
	email = strings.TrimSpace(email)
	if email != "" && !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	a, err := s.getOrNew(ctx, userID)
	if err != nil {
		return nil, err
	}

	event := AccountRegistered{
		UserID:       userID,
		Name:         strings.TrimSpace(name),
		Email:        email,
		RegisteredAt: s.now(),
	}
	if err := s.record(ctx, a, EventAccountRegistered, event); err != nil {
		return nil, err
	}
	return a, nil
}

// AddressID derives an address id from its details, so neighbours who save
// the same building share an id and can share deliveries.
func AddressID(details string) string {
	key := strings.ToLower(strings.Join(strings.Fields(details), " "))
	return "addr-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// AddAddress saves a delivery address and returns it. Saving an address the
// account already has returns it unchanged.
func (s *Service) AddAddress(ctx context.Context, userID, details string) (*Address, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}
	details = strings.TrimSpace(details)
	if details == "" {
		return nil, ErrInvalidAddress
	}

	a, err := s.getOrNew(ctx, userID)
	if err != nil {
		return nil, err
	}
	id := AddressID(details)
	for _, addr := range a.Addresses {
		if addr.AddressID == id {
			return &addr, nil
		}
	}

	event := AddressAdded{
		UserID:    userID,
		AddressID: id,
		Details:   details,
		AddedAt:   s.now(),
	}
	if err := s.record(ctx, a, EventAddressAdded, event); err != nil {
		return nil, err
	}
	return &Address{AddressID: event.AddressID, Details: event.Details}, nil
}

func (s *Service) getOrNew(ctx context.Context, userID string) (*Account, error) {
	a, err := s.Get(ctx, userID)
	if errors.Is(err, ErrAccountNotFound) {
		return &Account{ID: AccountID(userID), UserID: userID}, nil
	}
	return a, err
}

func (s *Service) record(ctx context.Context, a *Account, eventType string, data any) error {
	if err := aggregate.Record(ctx, s.eventStore, a, AggregateType, eventType, data); err != nil {
		return err
	}
	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, a, AggregateType); err != nil {
		s.logger.Warn("failed to create snapshot", zap.String("account_id", a.ID), zap.Error(err))
	}
	return nil
}
