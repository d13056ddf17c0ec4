package store

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBackend persists keys in Redis, giving a multi-node scheduler
// deployment a shared view of task claims, maintenance windows, and node
// heartbeats instead of each node's own in-memory map (spec §4.5 "Node
// identity & discovery").
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps an existing redis.Client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) Save(ctx context.Context, key string, data []byte) error {
	return r.client.Set(ctx, key, data, 0).Err()
}

func (r *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisBackend) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *RedisBackend) Close(ctx context.Context) error {
	return r.client.Close()
}

// SaveTTL saves a value with an expiry. It is not part of the Backend
// interface; the scheduler writes heartbeat records with Save and removes
// stale ones in evictStaleNodes.
func (r *RedisBackend) SaveTTL(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, data, ttl).Err()
}
