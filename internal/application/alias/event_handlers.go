package alias

import (
	"context"
	"fmt"

	"github.com/erp/reconciliation/internal/domain/alias"
	"github.com/erp/reconciliation/internal/domain/shared"
	"go.uber.org/zap"
)

// PromotionLogger writes an audit line for every promoted pattern
type PromotionLogger struct {
	logger *zap.Logger
}

// NewPromotionLogger creates a new PromotionLogger
func NewPromotionLogger(logger *zap.Logger) *PromotionLogger {
	return &PromotionLogger{logger: logger.Named("alias_promotions")}
}

// EventTypes returns the promotion event type
func (h *PromotionLogger) EventTypes() []string {
	return []string{alias.EventTypePatternPromoted}
}

// Handle logs the promoted pattern
func (h *PromotionLogger) Handle(_ context.Context, event shared.DomainEvent) error {
	e, ok := event.(*alias.PatternPromotedEvent)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}
	h.logger.Info("alias pattern promoted",
		zap.String("tenant_id", e.TenantID().String()),
		zap.String("candidate_id", e.CandidateID.String()),
		zap.String("pattern", e.Pattern),
		zap.String("target_id", e.TargetID),
		zap.Int64("hits", e.Hits),
	)
	return nil
}
