package models

import (
	"time"

	"github.com/erp/reconciliation/internal/domain/alias"
	"github.com/google/uuid"
)

// AliasCandidateModel counts how often a normalized description led to a target
type AliasCandidateModel struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_alias_pattern_target,priority:1"`
	Pattern    string     `gorm:"type:varchar(300);not null;uniqueIndex:idx_alias_pattern_target,priority:2"`
	TargetID   string     `gorm:"type:varchar(100);not null;uniqueIndex:idx_alias_pattern_target,priority:3"`
	Hits       int64      `gorm:"not null;default:0"`
	LastHitAt  time.Time  `gorm:"not null"`
	PromotedAt *time.Time `gorm:"index"`
	CreatedAt  time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AliasCandidateModel) TableName() string {
	return "alias_candidates"
}

// ToDomain converts the persistence model to a domain Candidate
func (m *AliasCandidateModel) ToDomain() alias.Candidate {
	return alias.Candidate{
		ID:         m.ID,
		TenantID:   m.TenantID,
		Pattern:    m.Pattern,
		TargetID:   m.TargetID,
		Hits:       m.Hits,
		LastHitAt:  m.LastHitAt,
		PromotedAt: m.PromotedAt,
		CreatedAt:  m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain Candidate
func (m *AliasCandidateModel) FromDomain(c *alias.Candidate) {
	m.ID = c.ID
	m.TenantID = c.TenantID
	m.Pattern = c.Pattern
	m.TargetID = c.TargetID
	m.Hits = c.Hits
	m.LastHitAt = c.LastHitAt
	m.PromotedAt = c.PromotedAt
	m.CreatedAt = c.CreatedAt
}

// AllModels lists every model in migration order
func AllModels() []any {
	return []any{
		&DocumentModel{},
		&ReconciliationLinkModel{},
		&ReconciliationTargetModel{},
		&FeedbackModel{},
		&POLineModel{},
		&ApMatchLinkModel{},
		&AliasCandidateModel{},
	}
}
