package mocks

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/example/grocery-storefront/internal/infrastructure/store"
	"github.com/google/uuid"
)

var _ store.EventStoreInterface = (*MockEventStore)(nil)

// MockEventStore is a mock implementation of EventStoreInterface for testing
type MockEventStore struct {
	mu        sync.RWMutex
	events    map[string][]store.Event
	log       []store.Event
	snapshots map[string]*store.Snapshot

	// For tracking calls in tests
	AppendCalls       []AppendCall
	SaveSnapshotCalls []store.Snapshot
	AppendErr         error
	GetEventsErr      error
	// FailEventTypes makes Append fail for the listed event types only.
	FailEventTypes map[string]error
	AppendCallback    func(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*store.Event, error)
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	AggregateID   string
	AggregateType string
	EventType     string
	Data          any
}

// NewMockEventStore creates a new MockEventStore
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		events:      make(map[string][]store.Event),
		snapshots:   make(map[string]*store.Snapshot),
		AppendCalls: make([]AppendCall, 0),
	}
}

// Append stores an event in memory
func (m *MockEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*store.Event, error) {
	m.mu.Lock()
	m.AppendCalls = append(m.AppendCalls, AppendCall{
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          data,
	})
	callback := m.AppendCallback
	m.mu.Unlock()

	if callback != nil {
		return callback(ctx, aggregateID, aggregateType, eventType, data)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return nil, m.AppendErr
	}
	if err, ok := m.FailEventTypes[eventType]; ok {
		return nil, err
	}
	event, err := m.appendLocked(aggregateID, aggregateType, eventType, data)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (m *MockEventStore) appendLocked(aggregateID, aggregateType, eventType string, data any) (store.Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return store.Event{}, err
	}

	event := store.Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     time.Now(),
		Version:       len(m.events[aggregateID]) + 1,
	}
	m.events[aggregateID] = append(m.events[aggregateID], event)
	m.log = append(m.log, event)
	return event, nil
}

// GetEvents returns events for an aggregate
func (m *MockEventStore) GetEvents(_ context.Context, aggregateID string) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetEventsErr != nil {
		return nil, m.GetEventsErr
	}
	return append([]store.Event(nil), m.events[aggregateID]...), nil
}

func (m *MockEventStore) GetEventsFromVersion(_ context.Context, aggregateID string, version int) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetEventsErr != nil {
		return nil, m.GetEventsErr
	}
	var out []store.Event
	for _, e := range m.events[aggregateID] {
		if e.Version > version {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetAllEvents returns all events in append order
func (m *MockEventStore) GetAllEvents(_ context.Context) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.Event(nil), m.log...), nil
}

func (m *MockEventStore) GetSnapshot(_ context.Context, aggregateID string) (*store.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[aggregateID]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func (m *MockEventStore) SaveSnapshot(_ context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snapshot
	m.snapshots[snapshot.AggregateID] = &cp
	m.SaveSnapshotCalls = append(m.SaveSnapshotCalls, cp)
	return nil
}

// Reset clears all events and recorded calls
func (m *MockEventStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = make(map[string][]store.Event)
	m.log = nil
	m.snapshots = make(map[string]*store.Snapshot)
	m.AppendCalls = make([]AppendCall, 0)
	m.SaveSnapshotCalls = nil
	m.AppendErr = nil
	m.GetEventsErr = nil
	m.AppendCallback = nil
	m.FailEventTypes = nil
}

// SetEvents sets events directly for testing
func (m *MockEventStore) SetEvents(aggregateID string, events []store.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[aggregateID] = events
	m.log = append(m.log, events...)
}

// AddEvent adds a single event for testing without recording an Append call
func (m *MockEventStore) AddEvent(aggregateID, aggregateType, eventType string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.appendLocked(aggregateID, aggregateType, eventType, data)
	return err
}

// EventTypes lists the event types appended to an aggregate, in order
func (m *MockEventStore) EventTypes(aggregateID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var types []string
	for _, e := range m.events[aggregateID] {
		types = append(types, e.EventType)
	}
	return types
}
