package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresReadStore keeps every read model as a JSONB document in the
// read_models table. Each collection needs a factory returning a pointer to
// its model type so documents can be decoded on the way out.
type PostgresReadStore struct {
	db        *sql.DB
	factories map[string]func() any
}

func NewPostgresReadStore(db *sql.DB, factories map[string]func() any) *PostgresReadStore {
	return &PostgresReadStore{db: db, factories: factories}
}

func (rs *PostgresReadStore) decode(collection string, raw []byte) (any, error) {
	factory, ok := rs.factories[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	v := factory()
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	return v, nil
}

// Set stores a read model
func (rs *PostgresReadStore) Set(ctx context.Context, collection, id string, data any) error {
	if _, ok := rs.factories[collection]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	_, err = rs.db.ExecContext(ctx,
		`INSERT INTO read_models (collection, id, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, id, string(raw),
	)
	return err
}

// Get retrieves a read model by id
func (rs *PostgresReadStore) Get(ctx context.Context, collection, id string) (any, bool, error) {
	var raw []byte
	err := rs.db.QueryRowContext(ctx,
		`SELECT data FROM read_models WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := rs.decode(collection, raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// GetAll retrieves all items in a collection, ordered by id
func (rs *PostgresReadStore) GetAll(ctx context.Context, collection string) ([]any, error) {
	rows, err := rs.db.QueryContext(ctx,
		`SELECT data FROM read_models WHERE collection = $1 ORDER BY id ASC`,
		collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []any{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v, err := rs.decode(collection, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// Delete removes a read model
func (rs *PostgresReadStore) Delete(ctx context.Context, collection, id string) error {
	_, err := rs.db.ExecContext(ctx,
		`DELETE FROM read_models WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	return err
}

// Update reads, modifies and writes a read model inside one transaction,
// holding the row lock so concurrent projectors do not lose updates.
func (rs *PostgresReadStore) Update(ctx context.Context, collection, id string, updateFn func(current any) any) (bool, error) {
	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM read_models WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	current, err := rs.decode(collection, raw)
	if err != nil {
		return false, err
	}
	next, err := json.Marshal(updateFn(current))
	if err != nil {
		return false, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE read_models SET data = $3, updated_at = now() WHERE collection = $1 AND id = $2`,
		collection, id, string(next),
	); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// Upsert locks the row when it exists. Two upserts racing on a missing row
// both see found=false and the second write wins.
func (rs *PostgresReadStore) Upsert(ctx context.Context, collection, id string, upsertFn func(current any, found bool) any) error {
	tx, err := rs.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current any
	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT data FROM read_models WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id,
	).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		if current, err = rs.decode(collection, raw); err != nil {
			return err
		}
	}

	next, err := json.Marshal(upsertFn(current, current != nil))
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO read_models (collection, id, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, id, string(next),
	); err != nil {
		return err
	}
	return tx.Commit()
}
