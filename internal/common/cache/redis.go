package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"concierge-automation/internal/common/errors"
)

// RedisConfig holds connection settings for the Redis dedup backend.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

// RedisDedup is a DedupStore backed by Redis. It lets multiple instances
// share the same seen-event set.
type RedisDedup struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisDedup(config *RedisConfig) (*RedisDedup, error) {
	if config == nil {
		return nil, errors.ConfigError("redis config is required")
	}
	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.ConnectionError("failed to connect to redis", err)
	}

	return &RedisDedup{rdb: rdb, prefix: "dedup:"}, nil
}

func (r *RedisDedup) Seen(ctx context.Context, key string) (bool, error) {
	count, err := r.rdb.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, errors.ConnectionError("failed to check dedup key", err)
	}
	return count > 0, nil
}

func (r *RedisDedup) MarkSeen(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.rdb.Set(ctx, r.prefix+key, "1", ttl).Err(); err != nil {
		return errors.ConnectionError("failed to mark dedup key", err)
	}
	return nil
}

func (r *RedisDedup) Close() error {
	return r.rdb.Close()
}
