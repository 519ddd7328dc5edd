package cache

import (
	"context"
	"sync"
	"time"

	matchingapp "github.com/erp/reconciliation/internal/application/matching"
	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	_ matchingapp.SuggestionCache = (*InMemorySuggestionCache)(nil)
	_ matchingapp.SuggestionCache = NopSuggestionCache{}
)

// InMemorySuggestionCache keeps suggestion sets per tenant generation.
// Invalidating a tenant bumps its generation so older entries are never read again
// and are swept when they expire.
type InMemorySuggestionCache struct {
	entries *TTLCache[*matching.SuggestionSet]
	ttl     time.Duration
	logger  *zap.Logger

	mu          sync.Mutex
	generations map[uuid.UUID]uint64
}

// NewInMemorySuggestionCache creates a process-local suggestion cache
func NewInMemorySuggestionCache(ttl time.Duration, clock shared.Clock, logger *zap.Logger) *InMemorySuggestionCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemorySuggestionCache{
		entries:     NewTTLCache[*matching.SuggestionSet](clock, defaultCleanupInterval),
		ttl:         ttl,
		logger:      logger,
		generations: make(map[uuid.UUID]uint64),
	}
}

func (c *InMemorySuggestionCache) generation(tenantID uuid.UUID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[tenantID]
}

func (c *InMemorySuggestionCache) Get(ctx context.Context, tenantID uuid.UUID, key string) (*matching.SuggestionSet, bool, error) {
	set, ok := c.entries.Get(generationKey(tenantID, c.generation(tenantID), key))
	if ok {
		c.logger.Debug("Suggestion cache hit", zap.String("key", key))
	}
	return set, ok, nil
}

func (c *InMemorySuggestionCache) Set(ctx context.Context, tenantID uuid.UUID, key string, set *matching.SuggestionSet) error {
	if set == nil {
		return nil
	}
	c.entries.Set(generationKey(tenantID, c.generation(tenantID), key), set, c.ttl)
	return nil
}

// InvalidateTenant drops every cached set of the tenant
func (c *InMemorySuggestionCache) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	c.mu.Lock()
	old := c.generations[tenantID]
	c.generations[tenantID] = old + 1
	c.mu.Unlock()

	removed := c.entries.DeletePrefix(tenantPrefix(tenantID))
	c.logger.Debug("Suggestion cache invalidated",
		zap.String("tenant_id", tenantID.String()),
		zap.Uint64("generation", old+1),
		zap.Int("removed", removed),
	)
	return nil
}

// Stats exposes the underlying hit/miss counters
func (c *InMemorySuggestionCache) Stats() Stats {
	return c.entries.Stats()
}

// Close stops the sweeper
func (c *InMemorySuggestionCache) Close() error {
	c.entries.Close()
	return nil
}

// NopSuggestionCache never stores anything
type NopSuggestionCache struct{}

func (NopSuggestionCache) Get(context.Context, uuid.UUID, string) (*matching.SuggestionSet, bool, error) {
	return nil, false, nil
}

func (NopSuggestionCache) Set(context.Context, uuid.UUID, string, *matching.SuggestionSet) error {
	return nil
}

func (NopSuggestionCache) InvalidateTenant(context.Context, uuid.UUID) error {
	return nil
}

func tenantPrefix(tenantID uuid.UUID) string {
	return tenantID.String() + ":"
}

func generationKey(tenantID uuid.UUID, gen uint64, key string) string {
	return tenantPrefix(tenantID) + uintString(gen) + ":" + key
}
