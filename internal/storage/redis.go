package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisTTL = 7 * 24 * time.Hour

func NewRedisStorage(client *redis.Client, baseTTL time.Duration) *RedisStorage {
	if baseTTL <= 0 {
		baseTTL = DefaultRedisTTL
	}
	return &RedisStorage{
		client:  client,
		baseTTL: baseTTL,
	}
}

// RedisStorage keeps cart blobs as plain string values. Every save refreshes
// the expiry, so idle carts are evicted by redis itself.
type RedisStorage struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisStorage) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r *RedisStorage) Save(ctx context.Context, key string, blob []byte) error {
	// jitter spreads expiry of carts written together
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, key, blob, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
