package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/example/grocery-storefront/internal/infrastructure/store"
)

var _ store.ReadStoreInterface = (*MockReadStore)(nil)

// MockReadStore is a mock implementation of ReadStoreInterface for testing
type MockReadStore struct {
	mu   sync.RWMutex
	data map[string]map[string]any // collection -> id -> data

	// For tracking calls in tests
	SetCalls    []SetCall
	GetCalls    []GetCall
	DeleteCalls []DeleteCall
	UpdateCalls []UpdateCall

	// Err is returned by every operation when set
	Err error
}

// SetCall records parameters passed to Set
type SetCall struct {
	Collection string
	ID         string
	Data       any
}

// GetCall records parameters passed to Get
type GetCall struct {
	Collection string
	ID         string
}

// DeleteCall records parameters passed to Delete
type DeleteCall struct {
	Collection string
	ID         string
}

// UpdateCall records parameters passed to Update
type UpdateCall struct {
	Collection string
	ID         string
}

// NewMockReadStore creates a new MockReadStore
func NewMockReadStore() *MockReadStore {
	return &MockReadStore{
		data:        make(map[string]map[string]any),
		SetCalls:    make([]SetCall, 0),
		GetCalls:    make([]GetCall, 0),
		DeleteCalls: make([]DeleteCall, 0),
		UpdateCalls: make([]UpdateCall, 0),
	}
}

// Set stores a read model
func (m *MockReadStore) Set(_ context.Context, collection, id string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetCalls = append(m.SetCalls, SetCall{Collection: collection, ID: id, Data: data})
	if m.Err != nil {
		return m.Err
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]any)
	}
	m.data[collection][id] = data
	return nil
}

// Get retrieves a read model by id
func (m *MockReadStore) Get(_ context.Context, collection, id string) (any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls = append(m.GetCalls, GetCall{Collection: collection, ID: id})
	if m.Err != nil {
		return nil, false, m.Err
	}
	data, ok := m.data[collection][id]
	return data, ok, nil
}

// GetAll retrieves all items in a collection, ordered by id
func (m *MockReadStore) GetAll(_ context.Context, collection string) ([]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	ids := make([]string, 0, len(m.data[collection]))
	for id := range m.data[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, m.data[collection][id])
	}
	return items, nil
}

// Delete removes a read model
func (m *MockReadStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteCalls = append(m.DeleteCalls, DeleteCall{Collection: collection, ID: id})
	if m.Err != nil {
		return m.Err
	}
	if m.data[collection] != nil {
		delete(m.data[collection], id)
	}
	return nil
}

// Update modifies a read model using an update function
func (m *MockReadStore) Update(_ context.Context, collection, id string, updateFn func(current any) any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateCalls = append(m.UpdateCalls, UpdateCall{Collection: collection, ID: id})
	if m.Err != nil {
		return false, m.Err
	}
	current, ok := m.data[collection][id]
	if !ok {
		return false, nil
	}
	m.data[collection][id] = updateFn(current)
	return true, nil
}

// Upsert records an UpdateCall and creates the model when missing
func (m *MockReadStore) Upsert(_ context.Context, collection, id string, upsertFn func(current any, found bool) any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateCalls = append(m.UpdateCalls, UpdateCall{Collection: collection, ID: id})
	if m.Err != nil {
		return m.Err
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]any)
	}
	current, ok := m.data[collection][id]
	m.data[collection][id] = upsertFn(current, ok)
	return nil
}

// Reset clears all data and recorded calls
func (m *MockReadStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]map[string]any)
	m.SetCalls = make([]SetCall, 0)
	m.GetCalls = make([]GetCall, 0)
	m.DeleteCalls = make([]DeleteCall, 0)
	m.UpdateCalls = make([]UpdateCall, 0)
	m.Err = nil
}

// SetData sets data directly for testing
func (m *MockReadStore) SetData(collection, id string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]any)
	}
	m.data[collection][id] = data
}

// GetData gets data directly for testing (without recording the call)
func (m *MockReadStore) GetData(collection, id string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[collection][id]
	return data, ok
}
