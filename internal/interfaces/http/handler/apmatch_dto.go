package handler

import (
	"time"

	apmatchapp "github.com/erp/reconciliation/internal/application/apmatch"
	"github.com/erp/reconciliation/internal/domain/apmatch"
	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// APSuggestionsRequest asks for purchase orders matching an invoice
// @Description Request body for AP match suggestions
type APSuggestionsRequest struct {
	InvoiceID string `json:"invoice_id" binding:"required,max=128" example:"10234"`
}

// APLinksRequest carries a proposed link set
// @Description Proposed allocation of an invoice to purchase orders
type APLinksRequest struct {
	InvoiceID string                 `json:"invoice_id" binding:"required,max=128" example:"10234"`
	Links     []apmatch.ProposedLink `json:"links" binding:"required,min=1,max=200"`
}

// APConfirmRequest confirms a proposed link set
// @Description Request body for AP match confirmation
type APConfirmRequest struct {
	APLinksRequest
	Confidence float64  `json:"confidence" binding:"min=0,max=1" example:"0.92"`
	Reasons    []string `json:"reasons" example:"po_reference_match"`
}

func (r APConfirmRequest) toApp(actor string) (apmatchapp.ConfirmRequest, error) {
	reasons, err := matching.ParseReasonCodes(r.Reasons)
	if err != nil {
		return apmatchapp.ConfirmRequest{}, err
	}
	return apmatchapp.ConfirmRequest{
		InvoiceID:   r.InvoiceID,
		Links:       r.Links,
		Confidence:  r.Confidence,
		Reasons:     reasons,
		ConfirmedBy: actor,
	}, nil
}

// APLinksQuery selects the links of one invoice
type APLinksQuery struct {
	InvoiceID string `form:"invoice_id" binding:"required,max=128"`
}

// InvoiceResponse echoes the invoice projection a suggestion was computed for
type InvoiceResponse struct {
	ID          string          `json:"id"`
	VendorID    string          `json:"vendor_id,omitempty"`
	ProjectID   string          `json:"project_id,omitempty"`
	Amount      decimal.Decimal `json:"amount" swaggertype:"string"`
	Currency    string          `json:"currency"`
	Date        Date            `json:"date" swaggertype:"string"`
	Reference   string          `json:"reference,omitempty"`
	POReference string          `json:"po_reference,omitempty"`
}

// POSuggestionResponse is one ranked purchase order
type POSuggestionResponse struct {
	POID           string               `json:"po_id"`
	PONumber       string               `json:"po_number,omitempty"`
	Allocations    []apmatch.Allocation `json:"allocations"`
	CoverageAmount decimal.Decimal      `json:"coverage_amount" swaggertype:"string"`
	CoveragePct    decimal.Decimal      `json:"coverage_pct" swaggertype:"string"`
	Confidence     float64              `json:"confidence"`
	Reasons        []string             `json:"reasons"`
}

// APSuggestionsResponse lists ranked purchase orders for an invoice
type APSuggestionsResponse struct {
	Invoice     InvoiceResponse        `json:"invoice"`
	OpenAmount  decimal.Decimal        `json:"open_amount" swaggertype:"string"`
	Suggestions []POSuggestionResponse `json:"suggestions"`
	Tolerance   ToleranceResponse      `json:"tolerance"`
	ReasonTexts map[string]string      `json:"reason_texts,omitempty"`
}

func toAPSuggestionsResponse(result *apmatchapp.SuggestionsResult, tag language.Tag) APSuggestionsResponse {
	inv := result.Invoice
	resp := APSuggestionsResponse{
		Invoice: InvoiceResponse{
			ID:          inv.ID,
			VendorID:    inv.VendorID,
			ProjectID:   inv.ProjectID,
			Amount:      inv.Amount,
			Currency:    inv.Currency,
			Date:        Date{inv.Date},
			Reference:   inv.Reference,
			POReference: inv.POReference,
		},
		OpenAmount:  result.OpenAmount,
		Suggestions: make([]POSuggestionResponse, len(result.Suggestions)),
		Tolerance:   toToleranceResponse(result.Tolerance),
	}
	codes := make([][]matching.ReasonCode, len(result.Suggestions))
	for i, s := range result.Suggestions {
		resp.Suggestions[i] = POSuggestionResponse{
			POID:           s.POID,
			PONumber:       s.PONumber,
			Allocations:    s.Allocations,
			CoverageAmount: s.CoverageAmount,
			CoveragePct:    s.CoveragePct,
			Confidence:     s.Confidence,
			Reasons:        matching.ReasonStrings(s.Reasons),
		}
		codes[i] = s.Reasons
	}
	resp.ReasonTexts = reasonTexts(tag, codes...)
	return resp
}

// APPreviewResponse is a preview with its verdict
type APPreviewResponse struct {
	*apmatch.PreviewResult
	Valid bool `json:"valid"`
}

// ApLinkResponse is one stored invoice to PO line allocation
type ApLinkResponse struct {
	ID          uuid.UUID        `json:"id"`
	BatchID     uuid.UUID        `json:"batch_id"`
	InvoiceID   string           `json:"invoice_id"`
	POID        string           `json:"po_id"`
	POLineID    string           `json:"po_line_id"`
	Amount      decimal.Decimal  `json:"amount" swaggertype:"string"`
	Qty         *decimal.Decimal `json:"qty,omitempty" swaggertype:"string"`
	Confidence  float64          `json:"confidence"`
	Reasons     []string         `json:"reasons"`
	ConfirmedAt time.Time        `json:"confirmed_at"`
	ConfirmedBy string           `json:"confirmed_by,omitempty"`
}

func toApLinkResponses(links []apmatch.ApMatchLink) []ApLinkResponse {
	out := make([]ApLinkResponse, len(links))
	for i, l := range links {
		out[i] = ApLinkResponse{
			ID:          l.ID,
			BatchID:     l.BatchID,
			InvoiceID:   l.InvoiceID,
			POID:        l.POID,
			POLineID:    l.POLineID,
			Amount:      l.Amount,
			Qty:         l.Qty,
			Confidence:  l.Confidence,
			Reasons:     matching.ReasonStrings(l.Reasons),
			ConfirmedAt: l.ConfirmedAt,
			ConfirmedBy: l.ConfirmedBy,
		}
	}
	return out
}

// APConfirmResponse holds the stored links of an invoice
type APConfirmResponse struct {
	InvoiceID string           `json:"invoice_id"`
	Links     []ApLinkResponse `json:"links"`
	Created   bool             `json:"created"`
}

// POLineRequest is one purchase-order line projection
// @Description Purchase-order line projection
type POLineRequest struct {
	POID            string           `json:"po_id" binding:"required,max=128" example:"OC-5531"`
	PONumber        string           `json:"po_number" binding:"max=128" example:"5531"`
	LineID          string           `json:"line_id" binding:"required,max=128" example:"1"`
	LineNo          int              `json:"line_no" binding:"min=0" example:"1"`
	VendorID        string           `json:"vendor_id" binding:"max=128" example:"76.123.456-7"`
	ProjectID       string           `json:"project_id" binding:"max=128"`
	Description     string           `json:"description" binding:"max=500" example:"Hormigon H30"`
	Currency        string           `json:"currency" binding:"omitempty,len=3" example:"CLP"`
	UnitPrice       decimal.Decimal  `json:"unit_price" swaggertype:"string" example:"85000"`
	QtyAvailable    decimal.Decimal  `json:"qty_available" swaggertype:"string" example:"20"`
	AllocatedAmount *decimal.Decimal `json:"allocated_amount,omitempty" swaggertype:"string"`
	AllocatedQty    *decimal.Decimal `json:"allocated_qty,omitempty" swaggertype:"string"`
}

func (r POLineRequest) toDomain() apmatch.POLine {
	line := apmatch.POLine{
		POID:         r.POID,
		PONumber:     r.PONumber,
		LineID:       r.LineID,
		LineNo:       r.LineNo,
		VendorID:     r.VendorID,
		ProjectID:    r.ProjectID,
		Description:  r.Description,
		Currency:     r.Currency,
		UnitPrice:    r.UnitPrice,
		QtyAvailable: r.QtyAvailable,
	}
	if r.AllocatedAmount != nil {
		line.AllocatedAmount = *r.AllocatedAmount
	}
	if r.AllocatedQty != nil {
		line.AllocatedQty = *r.AllocatedQty
	}
	return line
}

// UpsertPOLinesRequest refreshes purchase-order line projections
// @Description Request body for PO line upserts
type UpsertPOLinesRequest struct {
	Lines []POLineRequest `json:"lines" binding:"required,min=1,max=1000,dive"`
}
