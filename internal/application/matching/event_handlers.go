package matching

import (
	"context"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"go.uber.org/zap"
)

// SuggestionCacheInvalidator drops a tenant's cached suggestions whenever one
// of its links is confirmed or voided, since either changes the candidate pool
type SuggestionCacheInvalidator struct {
	cache  SuggestionCache
	logger *zap.Logger
}

// NewSuggestionCacheInvalidator creates a new SuggestionCacheInvalidator
func NewSuggestionCacheInvalidator(cache SuggestionCache, logger *zap.Logger) *SuggestionCacheInvalidator {
	return &SuggestionCacheInvalidator{cache: cache, logger: logger}
}

// EventTypes returns the link lifecycle events
func (h *SuggestionCacheInvalidator) EventTypes() []string {
	return []string{matching.EventTypeLinkConfirmed, matching.EventTypeLinkVoided}
}

// Handle invalidates the event tenant's suggestions
func (h *SuggestionCacheInvalidator) Handle(ctx context.Context, event shared.DomainEvent) error {
	if err := h.cache.InvalidateTenant(ctx, event.TenantID()); err != nil {
		return err
	}
	h.logger.Debug("suggestion cache invalidated",
		zap.String("event_type", event.EventType()),
		zap.String("tenant_id", event.TenantID().String()),
	)
	return nil
}
