package models

import (
	"encoding/json"
	"time"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentModel is the projection of a financial document owned by another domain
type DocumentModel struct {
	TenantID      uuid.UUID           `gorm:"type:uuid;primaryKey;index:idx_docs_kind_date,priority:1;index:idx_docs_kind_amount,priority:1"`
	Kind          matching.RecordKind `gorm:"type:varchar(30);primaryKey;index:idx_docs_kind_date,priority:2;index:idx_docs_kind_amount,priority:2"`
	DocID         string              `gorm:"column:doc_id;type:varchar(100);primaryKey"`
	Amount        decimal.Decimal     `gorm:"type:decimal(20,6);not null;index:idx_docs_kind_amount,priority:3"`
	Date          time.Time           `gorm:"type:date;not null;index:idx_docs_kind_date,priority:3"`
	Currency      string              `gorm:"type:varchar(3)"`
	Reference     string              `gorm:"type:varchar(200)"`
	CounterpartID string              `gorm:"type:varchar(100);index"`
	ProjectID     string              `gorm:"type:varchar(100)"`
	POReference   string              `gorm:"column:po_reference;type:varchar(100)"`
	UpdatedAt     time.Time           `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DocumentModel) TableName() string {
	return "matching_documents"
}

// ToDomain converts the projection row to a candidate target
func (m *DocumentModel) ToDomain() matching.CandidateTarget {
	return matching.CandidateTarget{
		Kind:          m.Kind,
		ID:            m.DocID,
		Amount:        m.Amount,
		Date:          m.Date.UTC(),
		Currency:      m.Currency,
		Reference:     m.Reference,
		CounterpartID: m.CounterpartID,
		ProjectID:     m.ProjectID,
		POReference:   m.POReference,
	}
}

// FromDomain populates the projection row
func (m *DocumentModel) FromDomain(tenantID uuid.UUID, t matching.CandidateTarget, now time.Time) {
	m.TenantID = tenantID
	m.Kind = t.Kind
	m.DocID = t.ID
	m.Amount = t.Amount
	m.Date = t.Date.UTC()
	m.Currency = t.Currency
	m.Reference = t.Reference
	m.CounterpartID = t.CounterpartID
	m.ProjectID = t.ProjectID
	m.POReference = t.POReference
	m.UpdatedAt = now
}

// ReconciliationLinkModel is the persistence model for the ReconciliationLink aggregate root.
// At most one active link may hold a source, enforced by a partial unique index.
type ReconciliationLinkModel struct {
	ID             uuid.UUID                   `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID                   `gorm:"type:uuid;not null;index:idx_reco_links_idem,priority:1;uniqueIndex:idx_reco_links_active_source,priority:1,where:status = 'active'"`
	SourceKind     matching.RecordKind         `gorm:"type:varchar(30);not null"`
	SourceID       string                      `gorm:"type:varchar(100);not null"`
	SourceKey      string                      `gorm:"type:varchar(140);not null;index;uniqueIndex:idx_reco_links_active_source,priority:2,where:status = 'active'"`
	SourceAmount   decimal.Decimal             `gorm:"type:decimal(20,6);not null"`
	Amount         decimal.Decimal             `gorm:"type:decimal(20,6);not null"`
	Difference     decimal.Decimal             `gorm:"type:decimal(20,6);not null"`
	Confidence     float64                     `gorm:"not null"`
	ReasonsJSON    string                      `gorm:"column:reasons;type:jsonb;not null;default:'[]'"`
	MetadataJSON   string                      `gorm:"column:metadata;type:jsonb;not null;default:'{}'"`
	IdempotencyKey string                      `gorm:"type:varchar(64);not null;index:idx_reco_links_idem,priority:2"`
	Status         matching.LinkStatus         `gorm:"type:varchar(20);not null;index"`
	ConfirmedAt    time.Time                   `gorm:"not null"`
	ConfirmedBy    string                      `gorm:"type:varchar(100)"`
	VoidedAt       *time.Time
	VoidedBy       string                      `gorm:"type:varchar(100)"`
	VoidReason     string                      `gorm:"type:varchar(500)"`
	CreatedAt      time.Time                   `gorm:"not null"`
	Targets        []ReconciliationTargetModel `gorm:"foreignKey:LinkID;references:ID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (ReconciliationLinkModel) TableName() string {
	return "reconciliation_links"
}

// ReconciliationTargetModel is one target document of a link
type ReconciliationTargetModel struct {
	LinkID        uuid.UUID           `gorm:"type:uuid;primaryKey"`
	Position      int                 `gorm:"primaryKey;autoIncrement:false"`
	TenantID      uuid.UUID           `gorm:"type:uuid;not null;index:idx_reco_targets_doc,priority:1"`
	TargetKind    matching.RecordKind `gorm:"type:varchar(30);not null;index:idx_reco_targets_doc,priority:2"`
	TargetID      string              `gorm:"type:varchar(100);not null;index:idx_reco_targets_doc,priority:3"`
	Amount        decimal.Decimal     `gorm:"type:decimal(20,6);not null"`
	CounterpartID string              `gorm:"type:varchar(100);index"`
}

// TableName returns the table name for GORM
func (ReconciliationTargetModel) TableName() string {
	return "reconciliation_link_targets"
}

// ToDomain converts the persistence model to a domain ReconciliationLink
func (m *ReconciliationLinkModel) ToDomain() *matching.ReconciliationLink {
	link := &matching.ReconciliationLink{
		TenantAggregateRoot: shared.TenantAggregateRoot{
			BaseAggregateRoot: shared.BaseAggregateRoot{
				BaseEntity: shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt},
			},
			TenantID: m.TenantID,
		},
		Source:         matching.RecordRef{Kind: m.SourceKind, ID: m.SourceID},
		SourceAmount:   m.SourceAmount,
		Targets:        make([]matching.LinkTarget, len(m.Targets)),
		Amount:         m.Amount,
		Difference:     m.Difference,
		Confidence:     m.Confidence,
		Reasons:        make([]matching.ReasonCode, 0),
		Metadata:       map[string]string{},
		IdempotencyKey: m.IdempotencyKey,
		Status:         m.Status,
		ConfirmedAt:    m.ConfirmedAt,
		ConfirmedBy:    m.ConfirmedBy,
		VoidedAt:       m.VoidedAt,
		VoidedBy:       m.VoidedBy,
		VoidReason:     m.VoidReason,
	}
	for _, t := range m.Targets {
		if t.Position < 0 || t.Position >= len(link.Targets) {
			continue
		}
		link.Targets[t.Position] = matching.LinkTarget{
			Ref:           matching.RecordRef{Kind: t.TargetKind, ID: t.TargetID},
			Amount:        t.Amount,
			CounterpartID: t.CounterpartID,
		}
	}

	var codes []string
	decodeJSON(m.ReasonsJSON, "reasons", &codes)
	if reasons, err := matching.ParseReasonCodes(codes); err == nil {
		link.Reasons = reasons
	} else {
		modelLogger.Warn("unknown reason code in stored link")
	}
	decodeJSON(m.MetadataJSON, "metadata", &link.Metadata)
	return link
}

// FromDomain populates the persistence model from a domain ReconciliationLink
func (m *ReconciliationLinkModel) FromDomain(l *matching.ReconciliationLink) {
	m.ID = l.ID
	m.TenantID = l.TenantID
	m.CreatedAt = l.CreatedAt
	m.SourceKind = l.Source.Kind
	m.SourceID = l.Source.ID
	m.SourceKey = l.Source.Key()
	m.SourceAmount = l.SourceAmount
	m.Amount = l.Amount
	m.Difference = l.Difference
	m.Confidence = l.Confidence
	m.ReasonsJSON = encodeJSON(matching.ReasonStrings(l.Reasons), "[]")
	metadata := l.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	m.MetadataJSON = encodeJSON(metadata, "{}")
	m.IdempotencyKey = l.IdempotencyKey
	m.Status = l.Status
	m.ConfirmedAt = l.ConfirmedAt
	m.ConfirmedBy = l.ConfirmedBy
	m.VoidedAt = l.VoidedAt
	m.VoidedBy = l.VoidedBy
	m.VoidReason = l.VoidReason

	m.Targets = make([]ReconciliationTargetModel, len(l.Targets))
	for i, t := range l.Targets {
		m.Targets[i] = ReconciliationTargetModel{
			LinkID:        l.ID,
			Position:      i,
			TenantID:      l.TenantID,
			TargetKind:    t.Ref.Kind,
			TargetID:      t.Ref.ID,
			Amount:        t.Amount,
			CounterpartID: t.CounterpartID,
		}
	}
}

// FeedbackModel is one append-only feedback row
type FeedbackModel struct {
	TenantModel
	Scope          matching.FeedbackScope `gorm:"type:varchar(20);not null;index:idx_feedback_period,priority:1"`
	SubjectKey     string                 `gorm:"type:varchar(200);not null;index"`
	Accepted       bool                   `gorm:"not null"`
	Reason         string                 `gorm:"type:varchar(500)"`
	CandidatesJSON string                 `gorm:"column:candidates;type:jsonb;not null;default:'[]'"`
	ChosenJSON     *string                `gorm:"column:chosen;type:jsonb"`
	RecordedBy     string                 `gorm:"type:varchar(100)"`
	RecordedAt     time.Time              `gorm:"not null;index:idx_feedback_period,priority:2"`
}

// TableName returns the table name for GORM
func (FeedbackModel) TableName() string {
	return "match_feedback"
}

// ToDomain converts the persistence model to a domain FeedbackEvent
func (m *FeedbackModel) ToDomain() matching.FeedbackEvent {
	e := matching.FeedbackEvent{
		ID:         m.ID,
		TenantID:   m.TenantID,
		Scope:      m.Scope,
		SubjectKey: m.SubjectKey,
		Accepted:   m.Accepted,
		Reason:     m.Reason,
		Candidates: json.RawMessage(m.CandidatesJSON),
		RecordedBy: m.RecordedBy,
		RecordedAt: m.RecordedAt,
	}
	if m.ChosenJSON != nil {
		e.Chosen = json.RawMessage(*m.ChosenJSON)
	}
	return e
}

// FromDomain populates the persistence model from a domain FeedbackEvent
func (m *FeedbackModel) FromDomain(e *matching.FeedbackEvent) {
	m.ID = e.ID
	m.TenantID = e.TenantID
	m.CreatedAt = e.RecordedAt
	m.Scope = e.Scope
	m.SubjectKey = e.SubjectKey
	m.Accepted = e.Accepted
	m.Reason = e.Reason
	m.CandidatesJSON = string(e.Candidates)
	if m.CandidatesJSON == "" {
		m.CandidatesJSON = "[]"
	}
	m.ChosenJSON = nil
	if len(e.Chosen) > 0 {
		chosen := string(e.Chosen)
		m.ChosenJSON = &chosen
	}
	m.RecordedBy = e.RecordedBy
	m.RecordedAt = e.RecordedAt
}
