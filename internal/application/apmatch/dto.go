package apmatch

import (
	"github.com/erp/reconciliation/internal/domain/apmatch"
	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/shopspring/decimal"
)

// SuggestionsResult lists the purchase orders an invoice could be matched to
type SuggestionsResult struct {
	Invoice     *apmatch.Invoice
	OpenAmount  decimal.Decimal
	Suggestions []apmatch.POSuggestion
	Tolerance   matching.ToleranceConfig
}

// PreviewRequest is a proposed link set for one invoice
type PreviewRequest struct {
	InvoiceID string
	Links     []apmatch.ProposedLink
}

// ConfirmRequest confirms a proposed link set
type ConfirmRequest struct {
	InvoiceID   string
	Links       []apmatch.ProposedLink
	Confidence  float64
	Reasons     []matching.ReasonCode
	ConfirmedBy string
}

// ConfirmResult holds the stored links; Created is false for a repeated confirm
type ConfirmResult struct {
	InvoiceID string
	Links     []apmatch.ApMatchLink
	Created   bool
}
