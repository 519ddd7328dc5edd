package apmatch

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceReader loads invoice projections; a missing invoice is a NotFoundError
type InvoiceReader interface {
	FindInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*Invoice, error)
}

// POLineRepository stores PO line projections and their running allocations
type POLineRepository interface {
	FindByPOs(ctx context.Context, tenantID uuid.UUID, poIDs []string) ([]POLine, error)
	// FindOpen returns lines with capacity left for a vendor, optionally limited to one currency
	FindOpen(ctx context.Context, tenantID uuid.UUID, vendorID, currency string) ([]POLine, error)
	Upsert(ctx context.Context, tenantID uuid.UUID, lines []POLine) error
}

// LinkRepository persists AP match links
type LinkRepository interface {
	ListByInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID string) ([]ApMatchLink, error)
	AllocatedForInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID string) (decimal.Decimal, error)
	// ConfirmBatch writes every link and applies every line allocation in one
	// transaction. A repeated batch returns the stored links and false. Line
	// capacity or invoice limit lost to a concurrent confirm is a PolicyViolation.
	ConfirmBatch(ctx context.Context, batch *LinkBatch, invoiceLimit decimal.Decimal) ([]ApMatchLink, bool, error)
}
