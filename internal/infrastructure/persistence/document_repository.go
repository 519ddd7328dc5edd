package persistence

import (
	"context"
	"errors"
	"sort"

	"github.com/erp/reconciliation/internal/domain/apmatch"
	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/models"
	"github.com/erp/reconciliation/internal/infrastructure/persistence/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertBatchSize = 200

// Documents held by an active link, either side, are no longer candidates
const (
	notActiveTarget = `NOT EXISTS (SELECT 1 FROM reconciliation_link_targets t
		JOIN reconciliation_links l ON l.id = t.link_id
		WHERE l.status = 'active' AND t.tenant_id = matching_documents.tenant_id
		AND t.target_kind = matching_documents.kind AND t.target_id = matching_documents.doc_id)`
	notActiveSource = `NOT EXISTS (SELECT 1 FROM reconciliation_links l
		WHERE l.status = 'active' AND l.tenant_id = matching_documents.tenant_id
		AND l.source_kind = matching_documents.kind AND l.source_id = matching_documents.doc_id)`
)

// GormDocumentRepository implements matching.DocumentRepository and apmatch.InvoiceReader using GORM
type GormDocumentRepository struct {
	db    *tenant.TenantDB
	clock shared.Clock
}

// NewGormDocumentRepository creates a new GormDocumentRepository
func NewGormDocumentRepository(db *gorm.DB) *GormDocumentRepository {
	return &GormDocumentRepository{db: tenant.NewTenantDB(db), clock: shared.SystemClock}
}

var (
	_ matching.DocumentRepository = (*GormDocumentRepository)(nil)
	_ apmatch.InvoiceReader       = (*GormDocumentRepository)(nil)
)

// FindTargets returns unreconciled documents inside the query's date window and amount band
func (r *GormDocumentRepository) FindTargets(ctx context.Context, tenantID uuid.UUID, q matching.TargetQuery) ([]matching.CandidateTarget, error) {
	if len(q.Kinds) == 0 {
		return []matching.CandidateTarget{}, nil
	}

	query := r.db.ForTenant(ctx, tenantID).
		Model(&models.DocumentModel{}).
		Where("kind IN ?", q.Kinds).
		Where("date BETWEEN ? AND ?", q.From.UTC(), q.To.UTC()).
		Where("(amount BETWEEN ? AND ? OR amount BETWEEN ? AND ?)",
			q.MinAmount, q.MaxAmount, q.MaxAmount.Neg(), q.MinAmount.Neg()).
		Where("amount <> 0").
		Where(notActiveTarget).
		Where(notActiveSource)
	if q.Currency != "" {
		query = query.Where("(currency = ? OR currency = '')", q.Currency)
	}
	if q.Exclude.ID != "" {
		query = query.Where("NOT (kind = ? AND doc_id = ?)", q.Exclude.Kind, q.Exclude.ID)
	}

	var rows []models.DocumentModel
	if err := query.Order("date ASC, kind ASC, doc_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toTargets(rows), nil
}

// FindByRefs returns the stored documents for refs; unknown refs are skipped
func (r *GormDocumentRepository) FindByRefs(ctx context.Context, tenantID uuid.UUID, refs []matching.RecordRef) ([]matching.CandidateTarget, error) {
	byKind := make(map[matching.RecordKind][]string)
	for _, ref := range refs {
		byKind[ref.Kind] = append(byKind[ref.Kind], ref.ID)
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	found := make(map[string]matching.CandidateTarget, len(refs))
	for _, k := range kinds {
		var rows []models.DocumentModel
		if err := r.db.ForTenant(ctx, tenantID).
			Where("kind = ? AND doc_id IN ?", k, byKind[matching.RecordKind(k)]).
			Find(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			t := rows[i].ToDomain()
			found[t.Ref().Key()] = t
		}
	}

	// Preserve the caller's order
	out := make([]matching.CandidateTarget, 0, len(found))
	for _, ref := range refs {
		if t, ok := found[ref.Key()]; ok {
			out = append(out, t)
			delete(found, ref.Key())
		}
	}
	return out, nil
}

// Upsert inserts or refreshes projection rows keyed by (tenant, kind, doc_id)
func (r *GormDocumentRepository) Upsert(ctx context.Context, tenantID uuid.UUID, docs []matching.CandidateTarget) error {
	if len(docs) == 0 {
		return nil
	}
	now := r.clock()
	rows := make([]models.DocumentModel, len(docs))
	for i := range docs {
		rows[i].FromDomain(tenantID, docs[i], now)
	}
	return r.db.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "kind"}, {Name: "doc_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"amount", "date", "currency", "reference", "counterpart_id", "project_id", "po_reference", "updated_at",
			}),
		}).
		CreateInBatches(&rows, upsertBatchSize).Error
}

// FindInvoice loads a purchase invoice projection for AP matching
func (r *GormDocumentRepository) FindInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*apmatch.Invoice, error) {
	var row models.DocumentModel
	err := r.db.ForTenant(ctx, tenantID).
		Where("kind = ? AND doc_id = ?", matching.KindPurchaseInvoice, invoiceID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("purchase invoice %s not found", invoiceID)
		}
		return nil, err
	}
	return &apmatch.Invoice{
		ID:          row.DocID,
		VendorID:    row.CounterpartID,
		ProjectID:   row.ProjectID,
		Amount:      row.Amount,
		Currency:    row.Currency,
		Date:        row.Date.UTC(),
		Reference:   row.Reference,
		POReference: row.POReference,
	}, nil
}

func toTargets(rows []models.DocumentModel) []matching.CandidateTarget {
	out := make([]matching.CandidateTarget, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}
