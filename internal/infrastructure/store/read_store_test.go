package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testModel struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestReadStore_SetGet(t *testing.T) {
	rs := NewReadStore()
	ctx := context.Background()

	_, ok, err := rs.Get(ctx, "orders", "o1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rs.Set(ctx, "orders", "o1", &testModel{ID: "o1"}))

	v, ok, err := rs.Get(ctx, "orders", "o1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "o1", v.(*testModel).ID)
}

func TestReadStore_GetAll_SortedByID(t *testing.T) {
	rs := NewReadStore()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, rs.Set(ctx, "orders", id, &testModel{ID: id}))
	}

	items, err := rs.GetAll(ctx, "orders")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].(*testModel).ID)
	assert.Equal(t, "c", items[2].(*testModel).ID)

	empty, err := rs.GetAll(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReadStore_Update(t *testing.T) {
	rs := NewReadStore()
	ctx := context.Background()
	require.NoError(t, rs.Set(ctx, "orders", "o1", &testModel{ID: "o1", Count: 1}))

	ok, err := rs.Update(ctx, "orders", "o1", func(current any) any {
		next := *current.(*testModel)
		next.Count++
		return &next
	})
	require.NoError(t, err)
	assert.True(t, ok)

	v, _, _ := rs.Get(ctx, "orders", "o1")
	assert.Equal(t, 2, v.(*testModel).Count)

	ok, err = rs.Update(ctx, "orders", "missing", func(current any) any { return current })
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadStore_Delete(t *testing.T) {
	rs := NewReadStore()
	ctx := context.Background()
	require.NoError(t, rs.Set(ctx, "orders", "o1", &testModel{ID: "o1"}))

	require.NoError(t, rs.Delete(ctx, "orders", "o1"))
	require.NoError(t, rs.Delete(ctx, "never", "o1"))

	_, ok, _ := rs.Get(ctx, "orders", "o1")
	assert.False(t, ok)
}

func TestReadStore_Upsert(t *testing.T) {
	rs := NewReadStore()
	ctx := context.Background()
	bump := func(current any, found bool) any {
		if !found {
			return &testModel{ID: "acc-1", Count: 1}
		}
		m := *current.(*testModel)
		m.Count++
		return &m
	}

	require.NoError(t, rs.Upsert(ctx, "accounts", "acc-1", bump))
	require.NoError(t, rs.Upsert(ctx, "accounts", "acc-1", bump))

	v, ok, err := rs.Get(ctx, "accounts", "acc-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, v.(*testModel).Count)
}
