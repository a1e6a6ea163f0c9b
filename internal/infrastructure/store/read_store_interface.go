package store

import "context"

// ReadStoreInterface is the projection side's document store. Values are
// pointers to read model structs, grouped by collection name.
type ReadStoreInterface interface {
	Set(ctx context.Context, collection, id string, data any) error

	// Get reports false when id is not in the collection.
	Get(ctx context.Context, collection, id string) (any, bool, error)

	// GetAll returns the collection ordered by id.
	GetAll(ctx context.Context, collection string) ([]any, error)

	Delete(ctx context.Context, collection, id string) error

	// Update replaces a read model with the result of updateFn. It reports
	// false, and does not call updateFn, when the model does not exist.
	Update(ctx context.Context, collection, id string, updateFn func(current any) any) (bool, error)

	// Upsert is Update that also runs for a missing model, with current nil
	// and found false. The read and the write are atomic.
	Upsert(ctx context.Context, collection, id string, upsertFn func(current any, found bool) any) error
}
