package alias

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows alias.list; nil fields do not filter
type ListFilter struct {
	MinHits  *int64
	Promoted *bool
	Limit    int
	Offset   int
}

// Repository persists alias candidates
type Repository interface {
	// RecordHit creates the (pattern, target) candidate with hits=1 or increments it,
	// in a single atomic statement, and returns the stored row
	RecordHit(ctx context.Context, tenantID uuid.UUID, pattern, targetID string, at time.Time) (*Candidate, error)
	// Promote sets promoted_at on every unpromoted candidate with hits >= minHits,
	// optionally limited to one candidate, and returns the candidates it promoted
	Promote(ctx context.Context, tenantID uuid.UUID, minHits int64, only *uuid.UUID, at time.Time) ([]Candidate, error)
	List(ctx context.Context, tenantID uuid.UUID, filter ListFilter) ([]Candidate, int64, error)
}
