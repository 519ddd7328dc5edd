package matching

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
)

// FeedbackScope names the flow a feedback event belongs to
type FeedbackScope string

const (
	FeedbackScopeReconciliation FeedbackScope = "reconciliation"
	FeedbackScopeAPMatch        FeedbackScope = "ap_match"
)

// IsValid checks if the scope is valid
func (s FeedbackScope) IsValid() bool {
	return s == FeedbackScopeReconciliation || s == FeedbackScopeAPMatch
}

// FeedbackEvent is an append-only record of a user accepting or rejecting suggestions
type FeedbackEvent struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Scope      FeedbackScope
	SubjectKey string
	Accepted   bool
	Reason     string
	// Candidates and Chosen are opaque snapshots of what the user saw and picked
	Candidates json.RawMessage
	Chosen     json.RawMessage
	RecordedBy string
	RecordedAt time.Time
}

// NewFeedbackEvent validates and stamps a feedback event. Snapshots may be any JSON.
func NewFeedbackEvent(
	tenantID uuid.UUID,
	scope FeedbackScope,
	subjectKey string,
	accepted bool,
	reason string,
	candidates, chosen json.RawMessage,
	recordedBy string,
	now time.Time,
) (*FeedbackEvent, error) {
	if !scope.IsValid() {
		return nil, shared.NewValidationError("unknown feedback scope %q", scope)
	}
	if strings.TrimSpace(subjectKey) == "" {
		return nil, shared.NewValidationError("feedback subject key is required")
	}
	if len(candidates) > 0 && !json.Valid(candidates) {
		return nil, shared.NewValidationError("candidates snapshot is not valid JSON")
	}
	if len(chosen) > 0 && !json.Valid(chosen) {
		return nil, shared.NewValidationError("chosen snapshot is not valid JSON")
	}
	if len(candidates) == 0 {
		candidates = json.RawMessage("[]")
	}
	return &FeedbackEvent{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Scope:      scope,
		SubjectKey: subjectKey,
		Accepted:   accepted,
		Reason:     reason,
		Candidates: candidates,
		Chosen:     chosen,
		RecordedBy: recordedBy,
		RecordedAt: now,
	}, nil
}
