package cache

import (
	"context"
	"fmt"
	"time"

	matchingapp "github.com/erp/reconciliation/internal/application/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Backend names accepted by the factory
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Factory builds the suggestion cache and the keyed locker from configuration
type Factory struct {
	matching              config.MatchingConfig
	client                *redis.Client
	clock                 shared.Clock
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory and the components it builds
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithClock overrides the clock used by in-memory components
func WithClock(clock shared.Clock) FactoryOption {
	return func(f *Factory) {
		f.clock = clock
	}
}

// WithInMemoryFallback controls whether a missing Redis client degrades to in-memory components.
// Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a factory; client may be nil when Redis is not configured
func NewFactory(cfg config.MatchingConfig, client *redis.Client, opts ...FactoryOption) *Factory {
	f := &Factory{
		matching:              cfg,
		client:                client,
		clock:                 shared.SystemClock,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SuggestionCache returns the configured suggestion cache
func (f *Factory) SuggestionCache() (matchingapp.SuggestionCache, error) {
	switch f.matching.CacheBackend {
	case BackendNone:
		return NopSuggestionCache{}, nil
	case BackendRedis:
		if f.client != nil {
			f.logger.Info("Using Redis suggestion cache", zap.Duration("ttl", f.matching.CacheTTL))
			return NewRedisSuggestionCache(f.client, "", f.matching.CacheTTL, f.logger), nil
		}
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis suggestion cache requested but no Redis client is available")
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory suggestion cache")
	}
	return NewInMemorySuggestionCache(f.matching.CacheTTL, f.clock, f.logger), nil
}

// Locker returns the configured keyed lock.
// WARNING: the in-memory locker does not serialize across process instances; the
// database constraints still hold but concurrent confirms then surface as conflicts.
func (f *Factory) Locker() (shared.Locker, error) {
	if f.matching.LockBackend == BackendRedis {
		if f.client != nil {
			f.logger.Info("Using Redis keyed locks", zap.Duration("ttl", f.matching.LockTTL))
			return NewRedisLocker(f.client, "", f.matching.LockTTL, f.logger), nil
		}
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis locks requested but no Redis client is available")
		}
		f.logger.Warn("Redis unavailable, falling back to in-process keyed locks")
	}
	return NewKeyedLocker(), nil
}
