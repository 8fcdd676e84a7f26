package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// RedisStore implements Store on top of Redis. Compare-operations use Lua so
// release/extend only succeed for the current holder.
type RedisStore struct {
	rdb    *redis.Client
	logger ectologger.Logger
}

// NewRedisStore creates a Redis-backed coordination store and verifies the
// connection.
func NewRedisStore(cfg RedisConfig, logger ectologger.Logger) (*RedisStore, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	logger.Infof("Connected to Redis at %s", addr)

	return &RedisStore{rdb: rdb, logger: logger}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Client exposes the underlying Redis client for health probes.
func (s *RedisStore) Client() *redis.Client {
	return s.rdb
}

// Ping checks if Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, s.wrap(err)
	}
	return ok, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.wrap(err)
	}
	return value, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return s.wrap(err)
	}
	return nil
}

var compareAndDeleteScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

func (s *RedisStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	result, err := compareAndDeleteScript.Run(ctx, s.rdb, []string{key}, value).Int64()
	if err != nil {
		return false, s.wrap(err)
	}
	return result == 1, nil
}

var compareAndExpireScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (s *RedisStore) CompareAndExpire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	result, err := compareAndExpireScript.Run(ctx, s.rdb, []string{key}, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, s.wrap(err)
	}
	return result == 1, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	value, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, s.wrap(err)
	}
	return value, nil
}

func (s *RedisStore) Decr(ctx context.Context, key string) (int64, error) {
	value, err := s.rdb.Decr(ctx, key).Result()
	if err != nil {
		return 0, s.wrap(err)
	}
	return value, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return s.wrap(err)
	}
	return nil
}

func (s *RedisStore) wrap(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
