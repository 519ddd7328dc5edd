package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	matchingapp "github.com/erp/reconciliation/internal/application/matching"
	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultSuggestionPrefix = "reco:suggestions:"

var _ matchingapp.SuggestionCache = (*RedisSuggestionCache)(nil)

// RedisSuggestionCache shares suggestion sets across instances.
// Each tenant has a generation counter; INCR on invalidation orphans older keys,
// which then expire through their TTL.
type RedisSuggestionCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisSuggestionCache creates a cache on an existing Redis client
func NewRedisSuggestionCache(client *redis.Client, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisSuggestionCache {
	if keyPrefix == "" {
		keyPrefix = defaultSuggestionPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSuggestionCache{client: client, keyPrefix: keyPrefix, ttl: ttl, logger: logger}
}

func (c *RedisSuggestionCache) counterKey(tenantID uuid.UUID) string {
	return c.keyPrefix + "gen:" + tenantID.String()
}

func (c *RedisSuggestionCache) generation(ctx context.Context, tenantID uuid.UUID) (uint64, error) {
	gen, err := c.client.Get(ctx, c.counterKey(tenantID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

func (c *RedisSuggestionCache) entryKey(ctx context.Context, tenantID uuid.UUID, key string) (string, error) {
	gen, err := c.generation(ctx, tenantID)
	if err != nil {
		return "", err
	}
	return c.keyPrefix + generationKey(tenantID, gen, key), nil
}

func (c *RedisSuggestionCache) Get(ctx context.Context, tenantID uuid.UUID, key string) (*matching.SuggestionSet, bool, error) {
	k, err := c.entryKey(ctx, tenantID, key)
	if err != nil {
		return nil, false, err
	}
	data, err := c.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read suggestion cache: %w", err)
	}

	var set matching.SuggestionSet
	if err := json.Unmarshal(data, &set); err != nil {
		// A payload written by an incompatible version is treated as a miss
		c.logger.Warn("Discarding undecodable cached suggestion set", zap.String("key", k), zap.Error(err))
		_ = c.client.Del(ctx, k).Err()
		return nil, false, nil
	}
	return &set, true, nil
}

func (c *RedisSuggestionCache) Set(ctx context.Context, tenantID uuid.UUID, key string, set *matching.SuggestionSet) error {
	if set == nil || c.ttl <= 0 {
		return nil
	}
	k, err := c.entryKey(ctx, tenantID, key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode suggestion set: %w", err)
	}
	if err := c.client.Set(ctx, k, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write suggestion cache: %w", err)
	}
	return nil
}

// InvalidateTenant bumps the tenant generation
func (c *RedisSuggestionCache) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	gen, err := c.client.Incr(ctx, c.counterKey(tenantID)).Result()
	if err != nil {
		return fmt.Errorf("failed to invalidate suggestion cache: %w", err)
	}
	c.logger.Debug("Suggestion cache generation bumped",
		zap.String("tenant_id", tenantID.String()),
		zap.Int64("generation", gen),
	)
	return nil
}

func uintString(v uint64) string {
	return strconv.FormatUint(v, 10)
}
