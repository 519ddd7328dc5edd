package apmatch

import (
	"fmt"
	"strings"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/shopspring/decimal"
)

// Tolerances are the effective limits a preview was evaluated with
type Tolerances struct {
	AmountTolPct        decimal.Decimal `json:"amount_tol_pct"`
	AmountTolerance     decimal.Decimal `json:"amount_tolerance"`
	InvoiceAmount       decimal.Decimal `json:"invoice_amount"`
	PreviouslyAllocated decimal.Decimal `json:"previously_allocated"`
	ProposedTotal       decimal.Decimal `json:"proposed_total"`
	// MaxAllocatable is invoice amount + tolerance - previously allocated
	MaxAllocatable decimal.Decimal `json:"max_allocatable"`
}

// PreviewResult is the outcome of checking a proposed link set
type PreviewResult struct {
	InvoiceID   string       `json:"invoice_id"`
	Allocations []Allocation `json:"allocations"`
	Violations  []Violation  `json:"violations"`
	Tolerances  Tolerances   `json:"tolerances"`
}

// Valid reports whether the link set can be confirmed
func (r *PreviewResult) Valid() bool {
	return len(r.Violations) == 0
}

// PreviewInput gathers everything a preview needs; nothing in it is mutated
type PreviewInput struct {
	Invoice Invoice
	// Lines must contain every line of every PO referenced by Proposed
	Lines               []POLine
	PreviouslyAllocated decimal.Decimal
	Proposed            []ProposedLink
	Tolerance           matching.ToleranceConfig
}

// Validator checks AP invoice to PO line allocations
type Validator struct{}

// NewValidator creates a validator
func NewValidator() *Validator {
	return &Validator{}
}

// Preview evaluates a proposed link set. Malformed input is a ValidationError;
// rule breaches are reported as violations, never as errors.
func (v *Validator) Preview(in PreviewInput) (*PreviewResult, error) {
	for _, p := range in.Proposed {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	inv := in.Invoice
	tol := in.Tolerance.Tolerance(inv.Amount)
	result := &PreviewResult{
		InvoiceID:   inv.ID,
		Allocations: make([]Allocation, 0, len(in.Proposed)),
		Violations:  make([]Violation, 0),
	}

	linesByPO := make(map[string][]POLine)
	lineByKey := make(map[LineKey]POLine, len(in.Lines))
	for _, l := range in.Lines {
		linesByPO[l.POID] = append(linesByPO[l.POID], l)
		lineByKey[l.Key()] = l
	}

	usedAmount := make(map[LineKey]decimal.Decimal)
	usedQty := make(map[LineKey]decimal.Decimal)
	proposedTotal := decimal.Zero
	checkedPO := make(map[string]bool)
	checkedLine := make(map[LineKey]bool)
	checkCurrency := func(line POLine) {
		if checkedLine[line.Key()] {
			return
		}
		checkedLine[line.Key()] = true
		if v, ok := currencyViolation(inv, line); ok {
			result.Violations = append(result.Violations, v)
		}
	}

	for _, p := range in.Proposed {
		proposedTotal = proposedTotal.Add(p.Amount)

		poLines := linesByPO[p.POID]
		if len(poLines) == 0 {
			result.Violations = append(result.Violations, Violation{
				Code:      ViolationPOLineNotFound,
				Message:   fmt.Sprintf("purchase order %s has no lines", p.POID),
				InvoiceID: inv.ID,
				POID:      p.POID,
				POLineID:  p.POLineID,
				Requested: p.Amount,
				Available: decimal.Zero,
			})
			continue
		}
		if !checkedPO[p.POID] {
			checkedPO[p.POID] = true
			if v, ok := vendorViolation(inv, poLines[0]); ok {
				result.Violations = append(result.Violations, v)
			}
		}

		if p.POLineID == "" {
			allocs, unplaced := AllocateFIFO(p.Amount, poLines, usedAmount)
			for _, a := range allocs {
				usedAmount[a.Key()] = usedAmount[a.Key()].Add(a.Amount)
				checkCurrency(lineByKey[a.Key()])
			}
			result.Allocations = append(result.Allocations, allocs...)
			if unplaced.IsPositive() {
				available := p.Amount.Sub(unplaced)
				result.Violations = append(result.Violations, Violation{
					Code:      ViolationAmountExceedsRemaining,
					Message:   fmt.Sprintf("purchase order %s has %s left, %s requested", p.POID, available, p.Amount),
					InvoiceID: inv.ID,
					POID:      p.POID,
					Requested: p.Amount,
					Available: available,
				})
			}
			continue
		}

		key := LineKey{POID: p.POID, LineID: p.POLineID}
		line, ok := lineByKey[key]
		if !ok {
			result.Violations = append(result.Violations, Violation{
				Code:      ViolationPOLineNotFound,
				Message:   fmt.Sprintf("line %s not found on purchase order %s", p.POLineID, p.POID),
				InvoiceID: inv.ID,
				POID:      p.POID,
				POLineID:  p.POLineID,
				Requested: p.Amount,
				Available: decimal.Zero,
			})
			continue
		}

		checkCurrency(line)

		available := line.RemainingAmount().Sub(usedAmount[key])
		if p.Amount.GreaterThan(available) {
			result.Violations = append(result.Violations, Violation{
				Code:      ViolationAmountExceedsRemaining,
				Message:   fmt.Sprintf("line %s of %s has %s left, %s requested", line.LineID, line.POID, decimal.Max(available, decimal.Zero), p.Amount),
				InvoiceID: inv.ID,
				POID:      line.POID,
				POLineID:  line.LineID,
				Requested: p.Amount,
				Available: decimal.Max(available, decimal.Zero),
			})
		}
		usedAmount[key] = usedAmount[key].Add(p.Amount)

		if p.Qty != nil {
			availableQty := line.RemainingQty().Sub(usedQty[key])
			if p.Qty.GreaterThan(availableQty) {
				result.Violations = append(result.Violations, Violation{
					Code:      ViolationQtyExceedsRemaining,
					Message:   fmt.Sprintf("line %s of %s has quantity %s left, %s requested", line.LineID, line.POID, decimal.Max(availableQty, decimal.Zero), *p.Qty),
					InvoiceID: inv.ID,
					POID:      line.POID,
					POLineID:  line.LineID,
					Requested: *p.Qty,
					Available: decimal.Max(availableQty, decimal.Zero),
				})
			}
			usedQty[key] = usedQty[key].Add(*p.Qty)
		}

		result.Allocations = append(result.Allocations, Allocation{
			POID:     p.POID,
			POLineID: p.POLineID,
			Amount:   p.Amount,
			Qty:      p.Qty,
		})
	}

	maxAllocatable := inv.Amount.Abs().Add(tol).Sub(in.PreviouslyAllocated)
	if proposedTotal.GreaterThan(maxAllocatable) {
		result.Violations = append(result.Violations, Violation{
			Code:      ViolationAllocationExceedsInvoice,
			Message:   fmt.Sprintf("allocations of %s exceed the %s still open on invoice %s", proposedTotal, decimal.Max(maxAllocatable, decimal.Zero), inv.ID),
			InvoiceID: inv.ID,
			Requested: proposedTotal,
			Available: decimal.Max(maxAllocatable, decimal.Zero),
		})
	}

	result.Tolerances = Tolerances{
		AmountTolPct:        in.Tolerance.AmountTolPct,
		AmountTolerance:     tol,
		InvoiceAmount:       inv.Amount,
		PreviouslyAllocated: in.PreviouslyAllocated,
		ProposedTotal:       proposedTotal,
		MaxAllocatable:      maxAllocatable,
	}
	return result, nil
}

// currencyViolation checks one allocated line against the invoice currency
func currencyViolation(inv Invoice, line POLine) (Violation, bool) {
	if inv.Currency == "" || line.Currency == "" || strings.EqualFold(inv.Currency, line.Currency) {
		return Violation{}, false
	}
	return Violation{
		Code:      ViolationCurrencyMismatch,
		Message:   fmt.Sprintf("invoice %s is in %s but line %s of purchase order %s is in %s", inv.ID, inv.Currency, line.LineID, line.POID, line.Currency),
		InvoiceID: inv.ID,
		POID:      line.POID,
		POLineID:  line.LineID,
	}, true
}

// vendorViolation checks the order's vendor once per PO
func vendorViolation(inv Invoice, line POLine) (Violation, bool) {
	if inv.VendorID == "" || line.VendorID == "" || inv.VendorID == line.VendorID {
		return Violation{}, false
	}
	return Violation{
		Code:      ViolationVendorMismatch,
		Message:   fmt.Sprintf("invoice %s and purchase order %s belong to different vendors", inv.ID, line.POID),
		InvoiceID: inv.ID,
		POID:      line.POID,
	}, true
}
