//go:build integration

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("grocery"),
		postgres.WithUsername("grocery"),
		postgres.WithPassword("grocery"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := ConnectPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, RunMigrations(db, zap.NewNop()))
	return db
}

func TestPostgres_Integration(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, RunMigrations(db, zap.NewNop()))
	})

	t.Run("event store appends and reads back", func(t *testing.T) {
		es := NewPostgresEventStore(db, nil)

		first, err := es.Append(ctx, "cart-pg", "Cart", "CartCreated", map[string]string{"owner_id": "alice"})
		require.NoError(t, err)
		second, err := es.Append(ctx, "cart-pg", "Cart", "CartEmptied", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, first.Version)
		assert.Equal(t, 2, second.Version)

		events, err := es.GetEvents(ctx, "cart-pg")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.JSONEq(t, `{"owner_id":"alice"}`, string(events[0].Data))

		after, err := es.GetEventsFromVersion(ctx, "cart-pg", 1)
		require.NoError(t, err)
		require.Len(t, after, 1)
		assert.Equal(t, "CartEmptied", after[0].EventType)

		all, err := es.GetAllEvents(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(all), 2)
	})

	t.Run("concurrent appends never share a version", func(t *testing.T) {
		es := NewPostgresEventStore(db, nil)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := es.Append(ctx, "wallet-race", "Wallet", "WalletCredited", nil)
				if err != nil {
					assert.ErrorIs(t, err, ErrVersionConflict)
				}
			}()
		}
		wg.Wait()

		events, err := es.GetEvents(ctx, "wallet-race")
		require.NoError(t, err)
		for i, e := range events {
			assert.Equal(t, i+1, e.Version)
		}
	})

	t.Run("snapshots keep the newest version", func(t *testing.T) {
		es := NewPostgresEventStore(db, nil)
		save := func(version int) {
			require.NoError(t, es.SaveSnapshot(ctx, &Snapshot{
				AggregateID:   "order-snap",
				AggregateType: "Order",
				Version:       version,
				State:         json.RawMessage(fmt.Sprintf(`{"version":%d}`, version)),
				CreatedAt:     time.Now(),
			}))
		}
		save(20)
		save(10)

		snap, err := es.GetSnapshot(ctx, "order-snap")
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, 20, snap.Version)

		missing, err := es.GetSnapshot(ctx, "nothing")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("read store round trips documents", func(t *testing.T) {
		rs := NewPostgresReadStore(db, map[string]func() any{
			"orders": func() any { return &testModel{} },
		})

		require.NoError(t, rs.Set(ctx, "orders", "o1", &testModel{ID: "o1", Count: 1}))
		require.NoError(t, rs.Set(ctx, "orders", "o0", &testModel{ID: "o0"}))

		v, ok, err := rs.Get(ctx, "orders", "o1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 1, v.(*testModel).Count)

		ok, err = rs.Update(ctx, "orders", "o1", func(current any) any {
			m := current.(*testModel)
			m.Count = 5
			return m
		})
		require.NoError(t, err)
		assert.True(t, ok)

		items, err := rs.GetAll(ctx, "orders")
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "o0", items[0].(*testModel).ID)
		assert.Equal(t, 5, items[1].(*testModel).Count)

		require.NoError(t, rs.Delete(ctx, "orders", "o0"))
		_, ok, err = rs.Get(ctx, "orders", "o0")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.ErrorIs(t, rs.Set(ctx, "unknown", "x", 1), ErrUnknownCollection)

		bump := func(current any, found bool) any {
			if !found {
				return &testModel{ID: "o9", Count: 1}
			}
			m := current.(*testModel)
			m.Count++
			return m
		}
		require.NoError(t, rs.Upsert(ctx, "orders", "o9", bump))
		require.NoError(t, rs.Upsert(ctx, "orders", "o9", bump))
		v, ok, err = rs.Get(ctx, "orders", "o9")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 2, v.(*testModel).Count)
	})
}
