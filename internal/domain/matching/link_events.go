package matching

import (
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types of the reconciliation link aggregate
const (
	EventTypeLinkConfirmed = "reconciliation.link_confirmed"
	EventTypeLinkVoided    = "reconciliation.link_voided"
	AggregateTypeLink      = "ReconciliationLink"
)

// LinkConfirmedEvent is raised when a reconciliation link is confirmed
type LinkConfirmedEvent struct {
	shared.BaseDomainEvent
	LinkID     uuid.UUID       `json:"link_id"`
	SourceKey  string          `json:"source_key"`
	TargetKeys []string        `json:"target_keys"`
	Amount     decimal.Decimal `json:"amount"`
	Confidence float64         `json:"confidence"`
}

// NewLinkConfirmedEvent creates a new LinkConfirmedEvent
func NewLinkConfirmedEvent(l *ReconciliationLink) *LinkConfirmedEvent {
	keys := make([]string, len(l.Targets))
	for i, t := range l.Targets {
		keys[i] = t.Ref.Key()
	}
	return &LinkConfirmedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLinkConfirmed, AggregateTypeLink, l.ID, l.TenantID, l.ConfirmedAt),
		LinkID:          l.ID,
		SourceKey:       l.Source.Key(),
		TargetKeys:      keys,
		Amount:          l.Amount,
		Confidence:      l.Confidence,
	}
}

// LinkVoidedEvent is raised when a link is voided
type LinkVoidedEvent struct {
	shared.BaseDomainEvent
	LinkID    uuid.UUID `json:"link_id"`
	SourceKey string    `json:"source_key"`
	Reason    string    `json:"reason"`
}

// NewLinkVoidedEvent creates a new LinkVoidedEvent
func NewLinkVoidedEvent(l *ReconciliationLink) *LinkVoidedEvent {
	at := time.Now()
	if l.VoidedAt != nil {
		at = *l.VoidedAt
	}
	return &LinkVoidedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLinkVoided, AggregateTypeLink, l.ID, l.TenantID, at),
		LinkID:          l.ID,
		SourceKey:       l.Source.Key(),
		Reason:          l.VoidReason,
	}
}
