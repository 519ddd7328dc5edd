package persistence

import (
	"context"
	"fmt"

	"github.com/erp/reconciliation/internal/domain/apmatch"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormApLinkRepository implements apmatch.LinkRepository using GORM
type GormApLinkRepository struct {
	db *tenant.TenantDB
}

// NewGormApLinkRepository creates a new GormApLinkRepository
func NewGormApLinkRepository(db *gorm.DB) *GormApLinkRepository {
	return &GormApLinkRepository{db: tenant.NewTenantDB(db)}
}

var _ apmatch.LinkRepository = (*GormApLinkRepository)(nil)

// ListByInvoice returns an invoice's links in confirmation order
func (r *GormApLinkRepository) ListByInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID string) ([]apmatch.ApMatchLink, error) {
	var rows []models.ApMatchLinkModel
	if err := r.db.ForTenant(ctx, tenantID).
		Where("invoice_id = ?", invoiceID).
		Order("confirmed_at ASC, po_id ASC, po_line_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toApLinks(rows), nil
}

// AllocatedForInvoice sums the amounts already linked to an invoice
func (r *GormApLinkRepository) AllocatedForInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID string) (decimal.Decimal, error) {
	return allocatedForInvoice(r.db.ForTenant(ctx, tenantID), invoiceID)
}

// ConfirmBatch writes a batch atomically. Each line allocation is a conditional
// update, so capacity taken by a concurrent confirm makes the whole batch fail.
func (r *GormApLinkRepository) ConfirmBatch(ctx context.Context, batch *apmatch.LinkBatch, invoiceLimit decimal.Decimal) ([]apmatch.ApMatchLink, bool, error) {
	var existing []apmatch.ApMatchLink
	err := r.db.Transaction(ctx, batch.TenantID, func(tx *gorm.DB) error {
		var prior []models.ApMatchLinkModel
		if err := tx.Scopes(tenant.TenantScope(batch.TenantID)).
			Where("batch_key = ?", batch.Key).
			Order("po_id ASC, po_line_id ASC").
			Find(&prior).Error; err != nil {
			return err
		}
		if len(prior) > 0 {
			existing = toApLinks(prior)
			return nil
		}

		for i := range batch.Links {
			if err := allocateLine(tx, &batch.Links[i]); err != nil {
				return err
			}
		}

		rows := make([]models.ApMatchLinkModel, len(batch.Links))
		for i := range batch.Links {
			rows[i].FromDomain(&batch.Links[i])
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}

		total, err := allocatedForInvoice(tx.Scopes(tenant.TenantScope(batch.TenantID)), batch.InvoiceID)
		if err != nil {
			return err
		}
		if total.GreaterThan(invoiceLimit) {
			return shared.NewPolicyViolation("allocation violates matching policy", []apmatch.Violation{{
				Code:      apmatch.ViolationAllocationExceedsInvoice,
				Message:   fmt.Sprintf("allocations of %s exceed the %s allowed on invoice %s", total, invoiceLimit, batch.InvoiceID),
				InvoiceID: batch.InvoiceID,
				Requested: total,
				Available: invoiceLimit,
			}})
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	return batch.Links, true, nil
}

// allocateLine adds one link to its line's running totals if capacity remains
func allocateLine(tx *gorm.DB, link *apmatch.ApMatchLink) error {
	updates := map[string]any{
		"allocated_amount": gorm.Expr("allocated_amount + ?", link.Amount),
		"updated_at":       link.ConfirmedAt,
	}
	query := tx.Model(&models.POLineModel{}).
		Scopes(tenant.TenantScope(link.TenantID)).
		Where("po_id = ? AND line_id = ?", link.POID, link.POLineID).
		Where("allocated_amount + ? <= unit_price * qty_available", link.Amount)
	if link.Qty != nil {
		updates["allocated_qty"] = gorm.Expr("allocated_qty + ?", *link.Qty)
		query = query.Where("allocated_qty + ? <= qty_available", *link.Qty)
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewPolicyViolation("allocation violates matching policy", []apmatch.Violation{{
			Code:      apmatch.ViolationAmountExceedsRemaining,
			Message:   fmt.Sprintf("line %s of %s no longer has %s left", link.POLineID, link.POID, link.Amount),
			InvoiceID: link.InvoiceID,
			POID:      link.POID,
			POLineID:  link.POLineID,
			Requested: link.Amount,
			Available: decimal.Zero,
		}})
	}
	return nil
}

func allocatedForInvoice(db *gorm.DB, invoiceID string) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	row := db.Model(&models.ApMatchLinkModel{}).
		Where("invoice_id = ?", invoiceID).
		Select("SUM(amount)").
		Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

func toApLinks(rows []models.ApMatchLinkModel) []apmatch.ApMatchLink {
	out := make([]apmatch.ApMatchLink, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}
