package apmatch

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ApMatchLink is one confirmed allocation of an invoice to a PO line
type ApMatchLink struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	BatchID     uuid.UUID
	BatchKey    string
	InvoiceID   string
	POID        string
	POLineID    string
	Amount      decimal.Decimal
	Qty         *decimal.Decimal
	Confidence  float64
	Reasons     []matching.ReasonCode
	ConfirmedAt time.Time
	ConfirmedBy string
}

// LinkBatch is the set of links written by one confirm call
type LinkBatch struct {
	shared.TenantAggregateRoot
	InvoiceID string
	Key       string
	Links     []ApMatchLink
}

// Total sums the batch amounts
func (b *LinkBatch) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.Links {
		total = total.Add(l.Amount)
	}
	return total
}

// BatchKey hashes the invoice and its normalized allocations, independent of order
func BatchKey(invoiceID string, allocs []Allocation) string {
	parts := make([]string, len(allocs))
	for i, a := range allocs {
		qty := ""
		if a.Qty != nil {
			qty = a.Qty.String()
		}
		parts[i] = a.POID + ":" + a.POLineID + ":" + a.Amount.String() + ":" + qty
	}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(invoiceID + "|" + strings.Join(parts, ",")))
	return hex.EncodeToString(sum[:])
}

// NewLinkBatch turns a clean preview into links. A preview with violations is
// rejected with a PolicyViolation carrying them.
func NewLinkBatch(
	tenantID uuid.UUID,
	preview *PreviewResult,
	confidence float64,
	reasons []matching.ReasonCode,
	confirmedBy string,
	now time.Time,
) (*LinkBatch, error) {
	if !preview.Valid() {
		return nil, shared.NewPolicyViolation("allocation violates matching policy", preview.Violations)
	}
	if len(preview.Allocations) == 0 {
		return nil, shared.NewValidationError("at least one allocation is required")
	}
	if confidence < 0 || confidence > 1 {
		return nil, shared.NewValidationError("confidence must be between 0 and 1")
	}

	batch := &LinkBatch{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID, now),
		InvoiceID:           preview.InvoiceID,
		Key:                 BatchKey(preview.InvoiceID, preview.Allocations),
		Links:               make([]ApMatchLink, len(preview.Allocations)),
	}
	for i, a := range preview.Allocations {
		batch.Links[i] = ApMatchLink{
			ID:          uuid.New(),
			TenantID:    tenantID,
			BatchID:     batch.ID,
			BatchKey:    batch.Key,
			InvoiceID:   preview.InvoiceID,
			POID:        a.POID,
			POLineID:    a.POLineID,
			Amount:      a.Amount,
			Qty:         a.Qty,
			Confidence:  confidence,
			Reasons:     append([]matching.ReasonCode(nil), reasons...),
			ConfirmedAt: now,
			ConfirmedBy: confirmedBy,
		}
	}
	batch.AddDomainEvent(NewLinksConfirmedEvent(batch))
	return batch, nil
}

// Event types of the AP match flow
const (
	EventTypeLinksConfirmed = "apmatch.links_confirmed"
	AggregateTypeLinkBatch  = "ApMatchLinkBatch"
)

// LinksConfirmedEvent is raised when an invoice's allocations are confirmed
type LinksConfirmedEvent struct {
	shared.BaseDomainEvent
	InvoiceID string          `json:"invoice_id"`
	BatchID   uuid.UUID       `json:"batch_id"`
	Total     decimal.Decimal `json:"total"`
	Lines     int             `json:"lines"`
}

// NewLinksConfirmedEvent creates a new LinksConfirmedEvent
func NewLinksConfirmedEvent(b *LinkBatch) *LinksConfirmedEvent {
	return &LinksConfirmedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeLinksConfirmed, AggregateTypeLinkBatch, b.ID, b.TenantID, b.CreatedAt),
		InvoiceID:       b.InvoiceID,
		BatchID:         b.ID,
		Total:           b.Total(),
		Lines:           len(b.Links),
	}
}
