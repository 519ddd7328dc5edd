package matching

import (
	"encoding/json"
	"time"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SuggestionsRequest is one get_suggestions call
type SuggestionsRequest struct {
	Source      matching.SourceRecord
	TargetKinds []matching.RecordKind
	// AmountTolPct and DateWindowDays override the resolved policy for this call
	AmountTolPct   *decimal.Decimal
	DateWindowDays *int
}

// SuggestionsResult is the ranked output of one call
type SuggestionsResult struct {
	Set *matching.SuggestionSet
	// Warning is a TransientError when the combination search ran out of budget
	Warning  error
	CacheHit bool
}

// BatchItem is the outcome of one request of a batch; exactly one of Result and Err is set
type BatchItem struct {
	Index  int
	Result *SuggestionsResult
	Err    error
}

// ConfirmResult is the stored link of a confirm call
type ConfirmResult struct {
	Link    *matching.ReconciliationLink
	Created bool
}

// VoidInput retires a link
type VoidInput struct {
	LinkID   uuid.UUID
	Reason   string
	VoidedBy string
}

// RecordFeedbackInput is one accept or reject decision
type RecordFeedbackInput struct {
	Scope      matching.FeedbackScope
	SubjectKey string
	Accepted   bool
	Reason     string
	Candidates json.RawMessage
	Chosen     json.RawMessage
	RecordedBy string
}

// ExportFeedbackInput selects the feedback written to one archive object
type ExportFeedbackInput struct {
	Scope matching.FeedbackScope
	From  time.Time
	To    time.Time
}

// ExportFeedbackResult describes the archive object written by an export
type ExportFeedbackResult struct {
	Key         string    `json:"key"`
	Scope       string    `json:"scope"`
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	Events      int       `json:"events"`
	Bytes       int       `json:"bytes"`
	DownloadURL string    `json:"download_url,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// feedbackLine is the NDJSON shape of an exported event
type feedbackLine struct {
	ID         uuid.UUID       `json:"id"`
	Scope      string          `json:"scope"`
	SubjectKey string          `json:"subject_key"`
	Accepted   bool            `json:"accepted"`
	Reason     string          `json:"reason,omitempty"`
	Candidates json.RawMessage `json:"candidates"`
	Chosen     json.RawMessage `json:"chosen,omitempty"`
	RecordedBy string          `json:"recorded_by,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}
