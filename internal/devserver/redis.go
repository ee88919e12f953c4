package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix namespaces the collection hashes.
const redisKeyPrefix = "flox:"

// RedisStore implements Store with one Redis hash per collection
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(config RedisConfig) (*RedisStore, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:            config.Addr,
		Password:        config.Password,
		DB:              config.DB,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Get implements Store
func (r *RedisStore) Get(ctx context.Context, collection, id string) (Document, error) {
	val, err := r.client.HGet(ctx, redisKeyPrefix+collection, id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, NewStoreError("failed to get document", true).WithError(err)
	}
	return decodeDocument(val)
}

// Put implements Store
func (r *RedisStore) Put(ctx context.Context, collection, id string, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return NewStoreError("failed to encode document", false).WithError(err)
	}

	if err := r.client.HSet(ctx, redisKeyPrefix+collection, id, data).Err(); err != nil {
		return NewStoreError("failed to put document", true).WithError(err)
	}
	return nil
}

// Delete implements Store
func (r *RedisStore) Delete(ctx context.Context, collection, id string) error {
	result := r.client.HDel(ctx, redisKeyPrefix+collection, id)
	if err := result.Err(); err != nil {
		return NewStoreError("failed to delete document", true).WithError(err)
	}

	if result.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// List implements Store
func (r *RedisStore) List(ctx context.Context, collection string) (map[string]Document, error) {
	values, err := r.client.HGetAll(ctx, redisKeyPrefix+collection).Result()
	if err != nil {
		return nil, NewStoreError("failed to list documents", true).WithError(err)
	}

	result := make(map[string]Document, len(values))
	for id, val := range values {
		doc, err := decodeDocument([]byte(val))
		if err != nil {
			return nil, err
		}
		result[id] = doc
	}
	return result, nil
}

// Ping implements Store
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return NewStoreError("ping failed", false).WithError(err)
	}
	return nil
}

// Close implements Store
func (r *RedisStore) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Stats returns Redis connection pool stats
func (r *RedisStore) Stats() *redis.PoolStats {
	if r.client != nil {
		return r.client.PoolStats()
	}
	return nil
}
