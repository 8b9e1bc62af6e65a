// Package cache provides the key-value persistence collaborator consumed by
// the collaboration engine for document snapshots and whiteboard state. The
// engine treats it as a recovery and cold-start path, never as the source of
// truth while in-memory state is live.
package cache

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrNotFound indicates the requested key does not exist in the store.
var ErrNotFound = errors.New("cache: key not found")

// KeyValue is the narrow persistence interface the engine depends on.
type KeyValue interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

type redisKeyValue struct {
	rdb *redis.Client
}

// NewRedisKeyValue wraps a go-redis client in the KeyValue interface.
func NewRedisKeyValue(rdb *redis.Client) KeyValue {
	return &redisKeyValue{rdb: rdb}
}

func (r *redisKeyValue) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, value, ttl).Err()
}

func (r *redisKeyValue) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (r *redisKeyValue) HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	pipe := r.rdb.Pipeline()
	values := make([]interface{}, 0, len(fields)*2)
	for field, value := range fields {
		values = append(values, field, value)
	}
	pipe.HSet(ctx, key, values...)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *redisKeyValue) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return fields, nil
}

func (r *redisKeyValue) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, keys...).Err()
}

func (r *redisKeyValue) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}
