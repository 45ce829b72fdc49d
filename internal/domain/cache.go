package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (community) + Redis (pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetHistory retrieves a cached history aggregate.
	GetHistory(ctx context.Context, clientID, beneficiaryID string) (*HistoryAggregate, error)

	// SetHistory caches a history aggregate.
	SetHistory(ctx context.Context, h *HistoryAggregate, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `env:"CACHE_TYPE"`

	// Local LRU cache settings (community tier)
	LocalMaxSize int           `env:"CACHE_LOCAL_MAX_SIZE"`
	LocalTTL     time.Duration `env:"CACHE_LOCAL_TTL"`

	// Redis settings (pro tier)
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	// Two-phase settings
	EnableTwoPhase bool `env:"CACHE_TWO_PHASE"` // If true, check local first, then Redis

	// HistoryTTL bounds how stale a cached history aggregate may be. Zero disables caching.
	HistoryTTL time.Duration `env:"CACHE_HISTORY_TTL"`
}
