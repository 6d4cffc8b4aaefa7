package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the durable cache tier. Entries are scoped to one user
// session by key prefix and expire server-side a little after the logical
// TTL, so abandoned sessions do not accumulate in Redis. Redis expiry is a
// janitor only; the tiered cache still validates timestamps on every read.
type RedisStore struct {
	client     *redis.Client
	keyPrefix  string
	expiration time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisStore connects to Redis and returns a durable store scoped by the
// given session identifier.
func NewRedisStore(cfg RedisConfig, sessionID string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, sessionID, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client. Useful for sharing one
// client across per-session stores and for tests.
func NewRedisStoreWithClient(client *redis.Client, sessionID string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client:     client,
		keyPrefix:  "receivables:result:" + sessionID + ":",
		expiration: ttl + time.Minute,
	}
}

// Get returns the stored value for key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return v, true, nil
}

// Set stores the value with the session-scoped expiration.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, value, s.expiration).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Remove deletes the key. Removing an absent key is not an error.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
