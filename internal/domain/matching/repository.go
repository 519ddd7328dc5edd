package matching

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DocumentRepository stores the projections of documents owned by other domains
type DocumentRepository interface {
	TargetProvider
	// FindByRefs returns the documents that still exist; missing refs are simply absent
	FindByRefs(ctx context.Context, tenantID uuid.UUID, refs []RecordRef) ([]CandidateTarget, error)
	// Upsert inserts or refreshes projection rows
	Upsert(ctx context.Context, tenantID uuid.UUID, docs []CandidateTarget) error
}

// HistoryProvider counts prior confirmed links per counterpart
type HistoryProvider interface {
	CounterpartLinkCounts(ctx context.Context, tenantID uuid.UUID, counterpartIDs []string) (map[string]int, error)
}

// LinkRepository persists reconciliation links
type LinkRepository interface {
	HistoryProvider
	FindByID(ctx context.Context, tenantID, id uuid.UUID) (*ReconciliationLink, error)
	ListBySource(ctx context.Context, tenantID uuid.UUID, sourceKey string) ([]ReconciliationLink, error)
	// FindActive returns the active link with the given idempotency key, or nil
	FindActive(ctx context.Context, tenantID uuid.UUID, idempotencyKey string) (*ReconciliationLink, error)
	// Confirm stores the link atomically. It returns the existing link and false for an
	// identical earlier confirm, and a ConflictError when another active link holds the source.
	Confirm(ctx context.Context, link *ReconciliationLink) (*ReconciliationLink, bool, error)
	// Void persists a voided link, failing with a ConflictError if it was voided concurrently
	Void(ctx context.Context, link *ReconciliationLink) error
}

// FeedbackRepository appends feedback events
type FeedbackRepository interface {
	Append(ctx context.Context, event *FeedbackEvent) error
	// ListBetween returns events recorded in [from, to) ordered by time
	ListBetween(ctx context.Context, tenantID uuid.UUID, scope FeedbackScope, from, to time.Time) ([]FeedbackEvent, error)
}
