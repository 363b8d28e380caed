package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// SeenStoreConfig contains configuration for the Redis-backed seen-set.
type SeenStoreConfig struct {
	// Addr is the Redis server address.
	Addr string

	// Password for Redis AUTH, empty when disabled.
	Password string

	// DB is the Redis database number.
	DB int

	// KeyPrefix namespaces the seen-set keys, e.g. "skolbridge:seen:marks".
	KeyPrefix string

	// TTL bounds how long a child's seen-set lives without updates. Zero
	// means the sets never expire.
	TTL time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultSeenStoreConfig returns sensible defaults for a key prefix.
func DefaultSeenStoreConfig(keyPrefix string) SeenStoreConfig {
	return SeenStoreConfig{
		Addr:      "localhost:6379",
		KeyPrefix: keyPrefix,
		TTL:       0,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SEEN STORE
// ══════════════════════════════════════════════════════════════════════════════

// SeenStore keeps one Redis set of record ids per child. Unlike the
// in-memory store it survives restarts, so records announced before a
// restart stay quiet after it.
type SeenStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *slog.Logger
}

// NewSeenStore creates a Redis-backed seen-set and verifies connectivity.
func NewSeenStore(ctx context.Context, config SeenStoreConfig) (*SeenStore, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: connect %s: %w", config.Addr, err)
	}

	return &SeenStore{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
		logger:    config.Logger,
	}, nil
}

func (s *SeenStore) key(childKey string) string {
	return s.keyPrefix + ":" + childKey
}

// Contains reports whether the record was already seen for the child.
func (s *SeenStore) Contains(ctx context.Context, childKey, recordID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key(childKey), recordID).Result()
	if err != nil {
		return false, fmt.Errorf("redis: sismember: %w", err)
	}
	return ok, nil
}

// Add marks the record as seen for the child.
func (s *SeenStore) Add(ctx context.Context, childKey, recordID string) error {
	key := s.key(childKey)
	if err := s.client.SAdd(ctx, key, recordID).Err(); err != nil {
		return fmt.Errorf("redis: sadd: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
			s.logger.Warn("failed to refresh seen-set ttl", "key", key, "error", err)
		}
	}
	return nil
}

// Close releases the Redis connection.
func (s *SeenStore) Close() error {
	return s.client.Close()
}
