package store

import (
	"context"
	"sort"
	"sync"
)

var _ ReadStoreInterface = (*ReadStore)(nil)

// collection maps read model ids to values.
type collection map[string]any

func (c collection) sorted() []any {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	items := make([]any, 0, len(ids))
	for _, id := range ids {
		items = append(items, c[id])
	}
	return items
}

// ReadStore keeps read models in memory. Values are stored as given, so
// update functions must return a new value rather than mutate current.
type ReadStore struct {
	mu          sync.RWMutex
	collections map[string]collection
}

func NewReadStore() *ReadStore {
	return &ReadStore{collections: make(map[string]collection)}
}

// writable returns the named collection, creating it. Callers hold mu.
func (rs *ReadStore) writable(name string) collection {
	c, ok := rs.collections[name]
	if !ok {
		c = make(collection)
		rs.collections[name] = c
	}
	return c
}

func (rs *ReadStore) Set(_ context.Context, name, id string, data any) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.writable(name)[id] = data
	return nil
}

func (rs *ReadStore) Get(_ context.Context, name, id string) (any, bool, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	v, ok := rs.collections[name][id]
	return v, ok, nil
}

func (rs *ReadStore) GetAll(_ context.Context, name string) ([]any, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.collections[name].sorted(), nil
}

func (rs *ReadStore) Delete(_ context.Context, name, id string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.collections[name], id)
	return nil
}

func (rs *ReadStore) Update(_ context.Context, name, id string, updateFn func(current any) any) (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	c := rs.collections[name]
	current, ok := c[id]
	if !ok {
		return false, nil
	}
	c[id] = updateFn(current)
	return true, nil
}

func (rs *ReadStore) Upsert(_ context.Context, name, id string, upsertFn func(current any, found bool) any) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	c := rs.writable(name)
	current, ok := c[id]
	c[id] = upsertFn(current, ok)
	return nil
}
