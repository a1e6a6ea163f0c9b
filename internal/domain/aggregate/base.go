// Package aggregate holds the load, record and snapshot plumbing shared by
// the event-sourced domain services.
package aggregate

import (
	"context"
	"fmt"

	"github.com/example/grocery-storefront/internal/infrastructure/store"
)

// Aggregate defines the interface for event-sourced aggregates
type Aggregate interface {
	GetID() string
	GetVersion() int
	ApplyEvent(store.Event) error
}

// LoadAggregate loads an aggregate by replaying events, using snapshot if available
// Returns the aggregate, a boolean indicating if data was found, and any error
func LoadAggregate[T Aggregate](
	ctx context.Context,
	eventStore store.EventStoreInterface,
	id string,
	newAggregate func() T,
) (T, bool, error) {
	agg := newAggregate()
	var zero T

	snapshot, err := eventStore.GetSnapshot(ctx, id)
	if err != nil {
		return zero, false, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var events []store.Event
	if snapshot != nil {
		if err := snapshot.Restore(agg); err != nil {
			return zero, false, err
		}
		events, err = eventStore.GetEventsFromVersion(ctx, id, snapshot.Version)
	} else {
		events, err = eventStore.GetEvents(ctx, id)
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to get events: %w", err)
	}

	hasData := snapshot != nil || len(events) > 0

	for _, event := range events {
		if err := agg.ApplyEvent(event); err != nil {
			return zero, false, fmt.Errorf("failed to apply event: %w", err)
		}
	}

	return agg, hasData, nil
}

// Record appends an event for agg and applies the stored event to it, so the
// in-memory state and version match what a reload would produce.
func Record(
	ctx context.Context,
	eventStore store.EventStoreInterface,
	agg Aggregate,
	aggregateType, eventType string,
	data any,
) error {
	stored, err := eventStore.Append(ctx, agg.GetID(), aggregateType, eventType, data)
	if err != nil {
		return err
	}
	return agg.ApplyEvent(*stored)
}

// MaybeCreateSnapshot saves agg's state every store.SnapshotEvery events.
func MaybeCreateSnapshot(
	ctx context.Context,
	eventStore store.EventStoreInterface,
	agg Aggregate,
	aggregateType string,
) error {
	if !store.DueForSnapshot(agg.GetVersion()) {
		return nil
	}
	snapshot, err := store.NewSnapshot(agg.GetID(), aggregateType, agg.GetVersion(), agg)
	if err != nil {
		return err
	}
	if err := eventStore.SaveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
