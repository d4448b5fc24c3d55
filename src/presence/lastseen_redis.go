package presence

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds connection settings for the Redis last-seen store.
type RedisConfig struct {
	Addr     string // Redis address, default "localhost:6379"
	Password string // Redis password, default ""
	DB       int    // Redis database number, default 0
	Prefix   string // Key prefix, default "realtime:last_seen:"
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "realtime:last_seen:",
	}
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
// Falls back to defaults for any missing values.
func RedisConfigFromEnv() *RedisConfig {
	cfg := DefaultRedisConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			cfg.DB = db
		}
	}
	if prefix := os.Getenv("REDIS_LASTSEEN_PREFIX"); prefix != "" {
		cfg.Prefix = prefix
	}
	return cfg
}

// RedisLastSeen records last-seen timestamps as plain string keys. A bare
// SET per identity gives the required last-write-wins semantics.
type RedisLastSeen struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisLastSeen creates a Redis-backed last-seen store.
func NewRedisLastSeen(cfg *RedisConfig, logger zerolog.Logger) *RedisLastSeen {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisLastSeen{
		client: client,
		prefix: cfg.Prefix,
		logger: logger.With().Str("component", "redis-last-seen").Logger(),
	}
}

// Ping verifies the Redis connection is reachable.
func (s *RedisLastSeen) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Touch records the identity's last-seen timestamp.
func (s *RedisLastSeen) Touch(ctx context.Context, did string, at time.Time) error {
	return s.client.Set(ctx, s.prefix+did, at.UTC().Format(time.RFC3339), 0).Err()
}

// Close releases the Redis connection.
func (s *RedisLastSeen) Close() error {
	return s.client.Close()
}
