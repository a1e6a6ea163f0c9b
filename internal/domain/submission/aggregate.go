// Package submission remembers the outcome of each checkout attempt so a
// retried attempt gets the original answer instead of a second charge.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/example/grocery-storefront/internal/domain/aggregate"
	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/shopspring/decimal"
)

const (
	AggregateType           = "Submission"
	EventSubmissionAccepted = "SubmissionAccepted"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAlreadyAccepted    = errors.New("submission already accepted")
	ErrInvalidAttempt     = errors.New("attempt_id is required")
)

// Result is what the checkout answered for the attempt.
type Result struct {
	OrderID      string          `json:"order_id,omitempty"`
	SharedCartID string          `json:"shared_cart_id,omitempty"`
	DeliveryTime string          `json:"delivery_time"`
	Message      string          `json:"message"`
	BasketValue  decimal.Decimal `json:"basket_value"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

type SubmissionAccepted struct {
	AttemptID  string    `json:"attempt_id"`
	OwnerID    string    `json:"owner_id"`
	CartID     string    `json:"cart_id"`
	Result     Result    `json:"result"`
	AcceptedAt time.Time `json:"accepted_at"`
}

type Submission struct {
	ID         string    `json:"id"`
	AttemptID  string    `json:"attempt_id"`
	OwnerID    string    `json:"owner_id"`
	CartID     string    `json:"cart_id"`
	Result     Result    `json:"result"`
	AcceptedAt time.Time `json:"accepted_at"`
	Version    int       `json:"version"`
}

func SubmissionID(attemptID string) string {
	return "submission-" + attemptID
}

func (s *Submission) GetID() string   { return s.ID }
func (s *Submission) GetVersion() int { return s.Version }

func (s *Submission) ApplyEvent(event store.Event) error {
	if event.EventType == EventSubmissionAccepted {
		var data SubmissionAccepted
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		s.AttemptID = data.AttemptID
		s.OwnerID = data.OwnerID
		s.CartID = data.CartID
		s.Result = data.Result
		s.AcceptedAt = data.AcceptedAt
	}
	s.ID = event.AggregateID
	s.Version = event.Version
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
	now        func() time.Time
}

func NewService(es store.EventStoreInterface) *Service {
	return &Service{eventStore: es, now: time.Now}
}

func (s *Service) Get(ctx context.Context, attemptID string) (*Submission, error) {
	if attemptID == "" {
		return nil, ErrInvalidAttempt
	}
	sub, found, err := aggregate.LoadAggregate(ctx, s.eventStore, SubmissionID(attemptID), func() *Submission {
		return &Submission{}
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrSubmissionNotFound
	}
	return sub, nil
}

// Accept records the result of an attempt. An attempt is accepted once.
func (s *Service) Accept(ctx context.Context, attemptID, ownerID, cartID string, result Result) (*Submission, error) {
	if attemptID == "" {
		return nil, ErrInvalidAttempt
	}
	if _, err := s.Get(ctx, attemptID); err == nil {
		return nil, ErrAlreadyAccepted
	} else if !errors.Is(err, ErrSubmissionNotFound) {
		return nil, err
	}

	sub := &Submission{ID: SubmissionID(attemptID)}
	event := SubmissionAccepted{
		AttemptID:  attemptID,
		OwnerID:    ownerID,
		CartID:     cartID,
		Result:     result,
		AcceptedAt: s.now(),
	}
	if err := aggregate.Record(ctx, s.eventStore, sub, AggregateType, EventSubmissionAccepted, event); err != nil {
		return nil, err
	}
	return sub, nil
}
