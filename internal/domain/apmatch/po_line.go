package apmatch

import (
	"strings"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Invoice is the projection of a purchase invoice awaiting PO matching
type Invoice struct {
	ID          string
	VendorID    string
	ProjectID   string
	Amount      decimal.Decimal
	Currency    string
	Date        time.Time
	Reference   string
	POReference string
}

// POLine is the projection of a purchase-order line with its running allocations
type POLine struct {
	POID            string
	PONumber        string
	LineID          string
	LineNo          int
	VendorID        string
	ProjectID       string
	Description     string
	Currency        string
	UnitPrice       decimal.Decimal
	QtyAvailable    decimal.Decimal
	AllocatedAmount decimal.Decimal
	AllocatedQty    decimal.Decimal
}

// Key identifies the line within the tenant
func (l POLine) Key() LineKey {
	return LineKey{POID: l.POID, LineID: l.LineID}
}

// Capacity is unit_price * qty_available, the most that can ever be invoiced on the line
func (l POLine) Capacity() decimal.Decimal {
	return l.UnitPrice.Mul(l.QtyAvailable)
}

// RemainingAmount is the capacity not yet allocated
func (l POLine) RemainingAmount() decimal.Decimal {
	return decimal.Max(l.Capacity().Sub(l.AllocatedAmount), decimal.Zero)
}

// RemainingQty is the quantity not yet allocated
func (l POLine) RemainingQty() decimal.Decimal {
	return decimal.Max(l.QtyAvailable.Sub(l.AllocatedQty), decimal.Zero)
}

// IsOpen reports whether anything is left to allocate
func (l POLine) IsOpen() bool {
	return l.RemainingAmount().IsPositive()
}

// Validate checks a projection row before it is stored
func (l POLine) Validate() error {
	if strings.TrimSpace(l.POID) == "" || strings.TrimSpace(l.LineID) == "" {
		return shared.NewValidationError("po_id and line_id are required")
	}
	if l.UnitPrice.IsNegative() || l.QtyAvailable.IsNegative() {
		return shared.NewValidationError("line %s/%s has a negative price or quantity", l.POID, l.LineID)
	}
	if l.AllocatedAmount.IsNegative() || l.AllocatedQty.IsNegative() {
		return shared.NewValidationError("line %s/%s has negative allocations", l.POID, l.LineID)
	}
	return nil
}

// LineKey identifies a PO line
type LineKey struct {
	POID   string
	LineID string
}

// String returns "po:line"
func (k LineKey) String() string {
	return k.POID + ":" + k.LineID
}

// ProposedLink is one requested allocation of an invoice. An empty POLineID
// allocates against the whole order, spread over its open lines in line order.
type ProposedLink struct {
	POID     string           `json:"po_id"`
	POLineID string           `json:"po_line_id,omitempty"`
	Amount   decimal.Decimal  `json:"amount"`
	Qty      *decimal.Decimal `json:"qty,omitempty"`
}

// Validate checks the shape of one proposed link
func (p ProposedLink) Validate() error {
	if strings.TrimSpace(p.POID) == "" {
		return shared.NewValidationError("po_id is required")
	}
	if !p.Amount.IsPositive() {
		return shared.NewValidationError("allocation amount for %s must be positive", p.POID)
	}
	if p.Qty != nil && !p.Qty.IsPositive() {
		return shared.NewValidationError("allocation quantity for %s must be positive", p.POID)
	}
	if p.Qty != nil && p.POLineID == "" {
		return shared.NewValidationError("a quantity needs a po_line_id")
	}
	return nil
}
