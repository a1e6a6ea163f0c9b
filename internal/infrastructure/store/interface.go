package store

import (
	"context"
	"errors"
)

var (
	// ErrVersionConflict is returned when two writers append the same version of an aggregate.
	ErrVersionConflict = errors.New("event version conflict")
	// ErrUnknownCollection is returned by stores that need a registered type per collection.
	ErrUnknownCollection = errors.New("unknown read model collection")
)

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error)
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)
	// GetEventsFromVersion returns the events of an aggregate with a version above the given one.
	GetEventsFromVersion(ctx context.Context, aggregateID string, version int) ([]Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
}

// Publisher receives every appended event. kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, key string, event any) error

func (f PublisherFunc) Publish(ctx context.Context, key string, event any) error {
	return f(ctx, key, event)
}
