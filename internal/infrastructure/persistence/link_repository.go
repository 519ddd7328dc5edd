package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormLinkRepository implements matching.LinkRepository using GORM
type GormLinkRepository struct {
	db *tenant.TenantDB
}

// NewGormLinkRepository creates a new GormLinkRepository
func NewGormLinkRepository(db *gorm.DB) *GormLinkRepository {
	return &GormLinkRepository{db: tenant.NewTenantDB(db)}
}

var _ matching.LinkRepository = (*GormLinkRepository)(nil)

func preloadTargets(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// FindByID finds a link by its ID within a tenant
func (r *GormLinkRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*matching.ReconciliationLink, error) {
	var model models.ReconciliationLinkModel
	if err := r.db.ForTenant(ctx, tenantID).
		Preload("Targets", preloadTargets).
		Where("id = ?", id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("reconciliation link %s not found", id)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListBySource returns every link of a source, newest first
func (r *GormLinkRepository) ListBySource(ctx context.Context, tenantID uuid.UUID, sourceKey string) ([]matching.ReconciliationLink, error) {
	var rows []models.ReconciliationLinkModel
	if err := r.db.ForTenant(ctx, tenantID).
		Preload("Targets", preloadTargets).
		Where("source_key = ?", sourceKey).
		Order("confirmed_at DESC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	links := make([]matching.ReconciliationLink, len(rows))
	for i := range rows {
		links[i] = *rows[i].ToDomain()
	}
	return links, nil
}

// FindActive returns the active link with the given idempotency key, or nil when there is none
func (r *GormLinkRepository) FindActive(ctx context.Context, tenantID uuid.UUID, idempotencyKey string) (*matching.ReconciliationLink, error) {
	return activeByIdempotencyKey(r.db.DB().WithContext(ctx), tenantID, idempotencyKey)
}

// Confirm stores a new active link in one transaction. The partial unique index on
// (tenant_id, source_key) backs up the explicit checks against concurrent writers.
func (r *GormLinkRepository) Confirm(ctx context.Context, link *matching.ReconciliationLink) (*matching.ReconciliationLink, bool, error) {
	var existing *matching.ReconciliationLink
	err := r.db.Transaction(ctx, link.TenantID, func(tx *gorm.DB) error {
		found, err := activeByIdempotencyKey(tx, link.TenantID, link.IdempotencyKey)
		if err != nil {
			return err
		}
		if found != nil {
			existing = found
			return nil
		}

		if err := ensureSourceFree(tx, link); err != nil {
			return err
		}
		if err := ensureTargetsFree(tx, link); err != nil {
			return err
		}

		var model models.ReconciliationLinkModel
		model.FromDomain(link)
		targets := model.Targets
		model.Targets = nil
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.Create(&targets).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race with another writer: an identical link wins, anything else conflicts
			found, findErr := activeByIdempotencyKey(r.db.DB().WithContext(ctx), link.TenantID, link.IdempotencyKey)
			if findErr == nil && found != nil {
				return found, false, nil
			}
			return nil, false, shared.NewConflictError("%s is already reconciled", link.Source.Key())
		}
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	return link, true, nil
}

// Void retires an active link; the status guard makes a concurrent second void a conflict
func (r *GormLinkRepository) Void(ctx context.Context, link *matching.ReconciliationLink) error {
	result := r.db.ForTenant(ctx, link.TenantID).
		Model(&models.ReconciliationLinkModel{}).
		Where("id = ? AND status = ?", link.ID, matching.LinkStatusActive).
		Updates(map[string]any{
			"status":      matching.LinkStatusVoided,
			"voided_at":   link.VoidedAt,
			"voided_by":   link.VoidedBy,
			"void_reason": link.VoidReason,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewConflictError("link %s is already voided", link.ID)
	}
	return nil
}

// CounterpartLinkCounts counts active links per target counterpart
func (r *GormLinkRepository) CounterpartLinkCounts(ctx context.Context, tenantID uuid.UUID, counterpartIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(counterpartIDs))
	if len(counterpartIDs) == 0 {
		return counts, nil
	}

	type row struct {
		CounterpartID string
		Links         int
	}
	var rows []row
	if err := r.db.DB().WithContext(ctx).
		Table("reconciliation_link_targets AS t").
		Select("t.counterpart_id AS counterpart_id, COUNT(DISTINCT t.link_id) AS links").
		Joins("JOIN reconciliation_links l ON l.id = t.link_id").
		Where("t.tenant_id = ? AND l.status = ? AND t.counterpart_id IN ?", tenantID, matching.LinkStatusActive, counterpartIDs).
		Group("t.counterpart_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count counterpart links: %w", err)
	}
	for _, id := range counterpartIDs {
		counts[id] = 0
	}
	for _, row := range rows {
		counts[row.CounterpartID] = row.Links
	}
	return counts, nil
}

func activeByIdempotencyKey(tx *gorm.DB, tenantID uuid.UUID, key string) (*matching.ReconciliationLink, error) {
	var model models.ReconciliationLinkModel
	err := tx.Scopes(tenant.TenantScope(tenantID)).
		Preload("Targets", preloadTargets).
		Where("idempotency_key = ? AND status = ?", key, matching.LinkStatusActive).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.ToDomain(), nil
}

func ensureSourceFree(tx *gorm.DB, link *matching.ReconciliationLink) error {
	var count int64
	if err := tx.Model(&models.ReconciliationLinkModel{}).
		Scopes(tenant.TenantScope(link.TenantID)).
		Where("source_key = ? AND status = ?", link.Source.Key(), matching.LinkStatusActive).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return shared.NewConflictError("%s is already reconciled", link.Source.Key())
	}
	return nil
}

// ensureTargetsFree rejects targets already settled by, or acting as the source of, an active link
func ensureTargetsFree(tx *gorm.DB, link *matching.ReconciliationLink) error {
	keys := make([]string, len(link.Targets))
	ids := make([]string, len(link.Targets))
	wanted := make(map[string]bool, len(link.Targets))
	for i, t := range link.Targets {
		keys[i] = t.Ref.Key()
		ids[i] = t.Ref.ID
		wanted[t.Ref.Key()] = true
	}

	type held struct {
		TargetKind string
		TargetID   string
	}
	var rows []held
	if err := tx.Table("reconciliation_link_targets AS t").
		Select("t.target_kind AS target_kind, t.target_id AS target_id").
		Joins("JOIN reconciliation_links l ON l.id = t.link_id").
		Where("t.tenant_id = ? AND l.status = ? AND t.target_id IN ?", link.TenantID, matching.LinkStatusActive, ids).
		Scan(&rows).Error; err != nil {
		return err
	}
	taken := make([]string, 0)
	for _, h := range rows {
		if key := h.TargetKind + ":" + h.TargetID; wanted[key] {
			taken = append(taken, key)
		}
	}

	var sources []string
	if err := tx.Model(&models.ReconciliationLinkModel{}).
		Scopes(tenant.TenantScope(link.TenantID)).
		Where("source_key IN ? AND status = ?", keys, matching.LinkStatusActive).
		Pluck("source_key", &sources).Error; err != nil {
		return err
	}
	taken = append(taken, sources...)

	if len(taken) > 0 {
		sort.Strings(taken)
		return shared.NewConflictError("%s is already reconciled", taken[0]).WithDetails(map[string][]string{"reconciled": taken})
	}
	return nil
}
