// Package cache stores cart snapshots in Redis so storefront sessions survive
// a restart and a refresh failure can fall back to the last good cart.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/example/grocery-storefront/internal/storefront/cartstore"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 15 * time.Minute

var _ cartstore.SnapshotCache = (*RedisCache)(nil)

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: defaultTTL,
	}
}

// Get returns cartstore.ErrCacheMiss when nothing is cached for the owner.
func (r *RedisCache) Get(ctx context.Context, ownerID string) (*cartstore.Snapshot, error) {
	data, err := r.client.Get(ctx, cacheKey(ownerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cartstore.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var snap cartstore.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal cart snapshot failed: %w", err)
	}
	return &snap, nil
}

// Set writes the snapshot with a jittered TTL so sessions opened together do
// not expire together.
func (r *RedisCache) Set(ctx context.Context, ownerID string, snapshot *cartstore.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal cart snapshot failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	if err := r.client.Set(ctx, cacheKey(ownerID), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, ownerID string) error {
	if err := r.client.Del(ctx, cacheKey(ownerID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(ownerID string) string {
	return fmt.Sprintf("storefront:cart:%s", ownerID)
}
