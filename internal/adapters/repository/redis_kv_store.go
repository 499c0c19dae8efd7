package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/taskmaster/tasksync/internal/infrastructure/config"
	"github.com/taskmaster/tasksync/internal/ports"
)

// RedisKeyValueStore implements ports.KeyValueStore on a Redis instance
type RedisKeyValueStore struct {
	client *redis.Client
	prefix string
}

// NewRedisKeyValueStore connects to Redis and verifies the connection
func NewRedisKeyValueStore(ctx context.Context, cfg config.RedisConfig) (*RedisKeyValueStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
	})

	store := NewRedisKeyValueStoreFromClient(client, cfg.KeyPrefix)
	if err := store.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.GetAddr(), err)
	}
	return store, nil
}

// NewRedisKeyValueStoreFromClient wraps an existing client
func NewRedisKeyValueStoreFromClient(client *redis.Client, prefix string) *RedisKeyValueStore {
	return &RedisKeyValueStore{client: client, prefix: prefix}
}

func (r *RedisKeyValueStore) key(k string) string {
	return r.prefix + k
}

func (r *RedisKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ports.ErrKeyNotFound
		}
		return "", fmt.Errorf("redis get %q: %w", key, err)
	}
	return value, nil
}

func (r *RedisKeyValueStore) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (r *RedisKeyValueStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

func (r *RedisKeyValueStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *RedisKeyValueStore) Close() error {
	return r.client.Close()
}
