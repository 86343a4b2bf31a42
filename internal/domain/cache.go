package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// Finalized batches are immutable, so their reports are safe to cache
// without invalidation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetBatch retrieves a cached finalized batch.
	GetBatch(ctx context.Context, batchID string) (*ProcessingBatch, error)

	// SetBatch caches a finalized batch.
	SetBatch(ctx context.Context, batch *ProcessingBatch, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `toml:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int      `toml:"local_max_size"`
	LocalTTL     Duration `toml:"local_ttl"`

	// Redis settings (Pro tier)
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `toml:"enable_two_phase"` // If true, check local first, then Redis

	// BatchTTL is how long finalized batches stay cached.
	BatchTTL Duration `toml:"batch_ttl"`
}
