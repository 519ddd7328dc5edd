package apmatch

import (
	"github.com/shopspring/decimal"
)

// ViolationCode names a broken allocation rule
type ViolationCode string

const (
	ViolationAmountExceedsRemaining   ViolationCode = "amount_exceeds_remaining"
	ViolationQtyExceedsRemaining      ViolationCode = "qty_exceeds_remaining"
	ViolationAllocationExceedsInvoice ViolationCode = "allocation_exceeds_invoice"
	ViolationCurrencyMismatch         ViolationCode = "currency_mismatch"
	ViolationVendorMismatch           ViolationCode = "vendor_mismatch"
	ViolationPOLineNotFound           ViolationCode = "po_line_not_found"
)

// Violation describes one rule breach with the identifiers involved
type Violation struct {
	Code      ViolationCode   `json:"code"`
	Message   string          `json:"message"`
	InvoiceID string          `json:"invoice_id"`
	POID      string          `json:"po_id,omitempty"`
	POLineID  string          `json:"po_line_id,omitempty"`
	Requested decimal.Decimal `json:"requested"`
	Available decimal.Decimal `json:"available"`
}
