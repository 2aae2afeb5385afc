package search

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCountPrefix = "catalog:count:"

// RedisCountBackend stores result counts in Redis as plain integers.
type RedisCountBackend struct {
	client *redis.Client
}

func NewRedisCountBackend(client *redis.Client) *RedisCountBackend {
	return &RedisCountBackend{client: client}
}

func (r *RedisCountBackend) Get(ctx context.Context, key string) (int64, bool, error) {
	n, err := r.client.Get(ctx, redisCountPrefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return n, true, nil
}

func (r *RedisCountBackend) Set(ctx context.Context, key string, count int64, ttl time.Duration) error {
	return r.client.Set(ctx, redisCountPrefix+key, count, ttl).Err()
}

// Flush drops every shared count and returns how many keys it removed.
func (r *RedisCountBackend) Flush(ctx context.Context) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, redisCountPrefix+"*", 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			n, err := r.client.Del(ctx, batch...).Result()
			removed += int(n)
			if err != nil {
				return removed, err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	if len(batch) > 0 {
		n, err := r.client.Del(ctx, batch...).Result()
		removed += int(n)
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (r *RedisCountBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
