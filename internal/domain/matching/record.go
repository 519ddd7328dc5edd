package matching

import (
	"strings"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// SourceRecord is the record a user wants to reconcile
type SourceRecord struct {
	Kind          RecordKind
	ID            string
	Amount        decimal.Decimal
	Date          time.Time
	Currency      string
	Reference     string
	CounterpartID string
	ProjectID     string
}

// Ref returns the source reference
func (s SourceRecord) Ref() RecordRef {
	return RecordRef{Kind: s.Kind, ID: s.ID}
}

// Magnitude returns |amount|. Matching compares magnitudes so debits match invoices.
func (s SourceRecord) Magnitude() decimal.Decimal {
	return s.Amount.Abs()
}

// Validate checks the fields the engine relies on
func (s SourceRecord) Validate() error {
	if !s.Kind.IsValid() {
		return shared.NewValidationError("unknown source kind %q", s.Kind)
	}
	if s.Date.IsZero() {
		return shared.NewValidationError("source date is required")
	}
	if s.Amount.IsZero() {
		return shared.NewValidationError("source amount must not be zero")
	}
	return nil
}

// CandidateTarget is a document that could settle a source record
type CandidateTarget struct {
	Kind          RecordKind      `json:"kind"`
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Currency      string          `json:"currency,omitempty"`
	Reference     string          `json:"reference,omitempty"`
	CounterpartID string          `json:"counterpart_id,omitempty"`
	ProjectID     string          `json:"project_id,omitempty"`
	// POReference is the purchase order a purchase invoice quotes, if any
	POReference string `json:"po_reference,omitempty"`
}

// Ref returns the target reference
func (t CandidateTarget) Ref() RecordRef {
	return RecordRef{Kind: t.Kind, ID: t.ID}
}

// Magnitude returns |amount|
func (t CandidateTarget) Magnitude() decimal.Decimal {
	return t.Amount.Abs()
}

// AsSource views a stored document as a source record
func (t CandidateTarget) AsSource() SourceRecord {
	return SourceRecord{
		Kind:          t.Kind,
		ID:            t.ID,
		Amount:        t.Amount,
		Date:          t.Date,
		Currency:      t.Currency,
		Reference:     t.Reference,
		CounterpartID: t.CounterpartID,
		ProjectID:     t.ProjectID,
	}
}

func sameCurrency(a, b string) bool {
	// Projections without currency are assumed to be in the tenant's book currency
	if a == "" || b == "" {
		return true
	}
	return strings.EqualFold(a, b)
}
