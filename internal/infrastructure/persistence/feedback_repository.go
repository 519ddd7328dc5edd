package persistence

import (
	"context"
	"time"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormFeedbackRepository implements matching.FeedbackRepository using GORM
type GormFeedbackRepository struct {
	db *tenant.TenantDB
}

// NewGormFeedbackRepository creates a new GormFeedbackRepository
func NewGormFeedbackRepository(db *gorm.DB) *GormFeedbackRepository {
	return &GormFeedbackRepository{db: tenant.NewTenantDB(db)}
}

var _ matching.FeedbackRepository = (*GormFeedbackRepository)(nil)

// Append inserts one feedback row; rows are never updated
func (r *GormFeedbackRepository) Append(ctx context.Context, event *matching.FeedbackEvent) error {
	var model models.FeedbackModel
	model.FromDomain(event)
	return r.db.DB().WithContext(ctx).Create(&model).Error
}

// ListBetween returns the events of one scope recorded in [from, to)
func (r *GormFeedbackRepository) ListBetween(ctx context.Context, tenantID uuid.UUID, scope matching.FeedbackScope, from, to time.Time) ([]matching.FeedbackEvent, error) {
	var rows []models.FeedbackModel
	if err := r.db.ForTenant(ctx, tenantID).
		Where("scope = ? AND recorded_at >= ? AND recorded_at < ?", scope, from.UTC(), to.UTC()).
		Order("recorded_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]matching.FeedbackEvent, len(rows))
	for i := range rows {
		events[i] = rows[i].ToDomain()
	}
	return events, nil
}
