package persistence

import (
	"context"

	"github.com/erp/reconciliation/internal/domain/apmatch"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPOLineRepository implements apmatch.POLineRepository using GORM
type GormPOLineRepository struct {
	db    *tenant.TenantDB
	clock shared.Clock
}

// NewGormPOLineRepository creates a new GormPOLineRepository
func NewGormPOLineRepository(db *gorm.DB) *GormPOLineRepository {
	return &GormPOLineRepository{db: tenant.NewTenantDB(db), clock: shared.SystemClock}
}

var _ apmatch.POLineRepository = (*GormPOLineRepository)(nil)

// FindByPOs returns every line of the given orders in line order
func (r *GormPOLineRepository) FindByPOs(ctx context.Context, tenantID uuid.UUID, poIDs []string) ([]apmatch.POLine, error) {
	if len(poIDs) == 0 {
		return []apmatch.POLine{}, nil
	}
	var rows []models.POLineModel
	if err := r.db.ForTenant(ctx, tenantID).
		Where("po_id IN ?", poIDs).
		Order("po_id ASC, line_no ASC, line_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toPOLines(rows), nil
}

// FindOpen returns a vendor's lines that still have capacity
func (r *GormPOLineRepository) FindOpen(ctx context.Context, tenantID uuid.UUID, vendorID, currency string) ([]apmatch.POLine, error) {
	query := r.db.ForTenant(ctx, tenantID).
		Where("vendor_id = ?", vendorID).
		Where("allocated_amount < unit_price * qty_available")
	if currency != "" {
		query = query.Where("(currency = ? OR currency = '')", currency)
	}
	var rows []models.POLineModel
	if err := query.Order("po_id ASC, line_no ASC, line_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toPOLines(rows), nil
}

// Upsert refreshes line projections. Running allocations are owned by confirm
// and are only written when a line is first inserted.
func (r *GormPOLineRepository) Upsert(ctx context.Context, tenantID uuid.UUID, lines []apmatch.POLine) error {
	if len(lines) == 0 {
		return nil
	}
	now := r.clock()
	rows := make([]models.POLineModel, len(lines))
	for i := range lines {
		rows[i].FromDomain(tenantID, lines[i], now)
	}
	return r.db.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "po_id"}, {Name: "line_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"po_number", "line_no", "vendor_id", "project_id", "description", "currency",
				"unit_price", "qty_available", "updated_at",
			}),
		}).
		CreateInBatches(&rows, upsertBatchSize).Error
}

func toPOLines(rows []models.POLineModel) []apmatch.POLine {
	out := make([]apmatch.POLine, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}
