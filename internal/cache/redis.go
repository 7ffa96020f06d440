package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "crypto-screener:http:"

// Redis is a Cache backed by Redis, shared by every replica of the API.
type Redis struct {
	rdb *redis.Client
}

// NewRedis connects to redisURL and pings it once.
func NewRedis(redisURL, password string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return &Redis{rdb: rdb}, nil
}

// Close shuts down the Redis connection.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set stores value with ttl as the Redis expiry. A non-positive ttl deletes the key.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return r.rdb.Del(ctx, redisKeyPrefix+key).Err()
	}
	return r.rdb.Set(ctx, redisKeyPrefix+key, value, ttl).Err()
}
