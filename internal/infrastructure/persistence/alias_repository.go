package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/reconciliation/internal/domain/alias"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAliasRepository implements alias.Repository using GORM
type GormAliasRepository struct {
	db *tenant.TenantDB
}

// NewGormAliasRepository creates a new GormAliasRepository
func NewGormAliasRepository(db *gorm.DB) *GormAliasRepository {
	return &GormAliasRepository{db: tenant.NewTenantDB(db)}
}

var _ alias.Repository = (*GormAliasRepository)(nil)

// RecordHit inserts the candidate or increments its hit count in one statement
func (r *GormAliasRepository) RecordHit(ctx context.Context, tenantID uuid.UUID, pattern, targetID string, at time.Time) (*alias.Candidate, error) {
	model := models.AliasCandidateModel{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Pattern:   pattern,
		TargetID:  targetID,
		Hits:      1,
		LastHitAt: at,
		CreatedAt: at,
	}
	if err := r.db.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "pattern"}, {Name: "target_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"hits":        gorm.Expr("alias_candidates.hits + 1"),
				"last_hit_at": at,
			}),
		}).
		Create(&model).Error; err != nil {
		return nil, err
	}

	var stored models.AliasCandidateModel
	if err := r.db.ForTenant(ctx, tenantID).
		Where("pattern = ? AND target_id = ?", pattern, targetID).
		First(&stored).Error; err != nil {
		return nil, err
	}
	c := stored.ToDomain()
	return &c, nil
}

// Promote stamps promoted_at on eligible candidates. Each update re-checks
// promoted_at IS NULL, so a candidate is reported by exactly one caller.
func (r *GormAliasRepository) Promote(ctx context.Context, tenantID uuid.UUID, minHits int64, only *uuid.UUID, at time.Time) ([]alias.Candidate, error) {
	query := r.db.ForTenant(ctx, tenantID).
		Where("promoted_at IS NULL AND hits >= ?", minHits)
	if only != nil {
		query = query.Where("id = ?", *only)
	}
	var eligible []models.AliasCandidateModel
	if err := query.Order("hits DESC, pattern ASC").Find(&eligible).Error; err != nil {
		return nil, err
	}

	promoted := make([]alias.Candidate, 0, len(eligible))
	for i := range eligible {
		result := r.db.ForTenant(ctx, tenantID).
			Model(&models.AliasCandidateModel{}).
			Where("id = ? AND promoted_at IS NULL", eligible[i].ID).
			Update("promoted_at", at)
		if result.Error != nil {
			return promoted, result.Error
		}
		if result.RowsAffected == 0 {
			continue
		}
		c := eligible[i].ToDomain()
		stamp := at
		c.PromotedAt = &stamp
		promoted = append(promoted, c)
	}
	return promoted, nil
}

// List returns candidates ordered by hits, most frequent first
func (r *GormAliasRepository) List(ctx context.Context, tenantID uuid.UUID, filter alias.ListFilter) ([]alias.Candidate, int64, error) {
	filtered := func() *gorm.DB {
		query := r.db.ForTenant(ctx, tenantID).Model(&models.AliasCandidateModel{})
		if filter.MinHits != nil {
			query = query.Where("hits >= ?", *filter.MinHits)
		}
		if filter.Promoted != nil {
			if *filter.Promoted {
				query = query.Where("promoted_at IS NOT NULL")
			} else {
				query = query.Where("promoted_at IS NULL")
			}
		}
		return query
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := filtered()
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	var rows []models.AliasCandidateModel
	if err := query.Order("hits DESC, pattern ASC, target_id ASC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]alias.Candidate, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, total, nil
}

// FindByID loads one candidate
func (r *GormAliasRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*alias.Candidate, error) {
	var model models.AliasCandidateModel
	if err := r.db.ForTenant(ctx, tenantID).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, translateNotFound(err)
		}
		return nil, err
	}
	c := model.ToDomain()
	return &c, nil
}
