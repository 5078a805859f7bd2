package cache

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

var _ Cache = (*RedisCache)(nil)

// RedisCache implements Cache on a Redis server. The caller owns the client.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (r *RedisCache) key(k string) string {
	return r.prefix + k
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "cache/redis: get %s", key)
	}
	return value, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return errors.Wrapf(err, "cache/redis: set %s", key)
	}
	return nil
}

func (r *RedisCache) Add(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	added, err := r.client.SetNX(ctx, r.key(key), value, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "cache/redis: add %s", key)
	}
	return added, nil
}

func (r *RedisCache) Incr(ctx context.Context, key string) (int64, error) {
	value, err := r.client.Incr(ctx, r.key(key)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "cache/redis: incr %s", key)
	}
	return value, nil
}

func (r *RedisCache) Decr(ctx context.Context, key string) (int64, error) {
	value, err := r.client.Decr(ctx, r.key(key)).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "cache/redis: decr %s", key)
	}
	return value, nil
}

func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = r.key(k)
	}
	if err := r.client.Del(ctx, prefixed...).Err(); err != nil {
		return errors.Wrap(err, "cache/redis: delete")
	}
	return nil
}

// Ping verifies the connection.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
