package apmatch

import (
	"sort"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/shopspring/decimal"
)

// Suggestion weights
const (
	weightPOReference = 0.5
	weightVendor      = 0.2
	weightCoverage    = 0.3
)

var hundred = decimal.NewFromInt(100)

// POSuggestion proposes allocating an invoice to one purchase order
type POSuggestion struct {
	POID        string
	PONumber    string
	Allocations []Allocation
	// CoverageAmount is the part of the open invoice amount the order can absorb
	CoverageAmount decimal.Decimal
	// CoveragePct is CoverageAmount / open invoice amount * 100
	CoveragePct decimal.Decimal
	Confidence  float64
	Reasons     []matching.ReasonCode
}

// Suggester ranks purchase orders for an invoice
type Suggester struct {
	maxSuggestions int
}

// NewSuggester creates a suggester returning at most maxSuggestions orders
func NewSuggester(maxSuggestions int) *Suggester {
	if maxSuggestions <= 0 {
		maxSuggestions = 10
	}
	return &Suggester{maxSuggestions: maxSuggestions}
}

// Suggest proposes allocations of the invoice's open amount over the given open
// lines. A single line that absorbs the amount within tolerance is preferred;
// otherwise lines are filled in order.
func (s *Suggester) Suggest(inv Invoice, openAmount decimal.Decimal, lines []POLine, tol matching.ToleranceConfig) []POSuggestion {
	if !openAmount.IsPositive() {
		return []POSuggestion{}
	}
	band := tol.Tolerance(inv.Amount)
	invoicePORef := matching.NormalizeReference(inv.POReference)

	byPO := make(map[string][]POLine)
	order := make([]string, 0)
	for _, l := range lines {
		if !l.IsOpen() {
			continue
		}
		if inv.Currency != "" && l.Currency != "" && inv.Currency != l.Currency {
			continue
		}
		if _, ok := byPO[l.POID]; !ok {
			order = append(order, l.POID)
		}
		byPO[l.POID] = append(byPO[l.POID], l)
	}

	out := make([]POSuggestion, 0, len(byPO))
	for _, poID := range order {
		poLines := byPO[poID]
		allocs := exactLine(openAmount, band, poLines)
		if allocs == nil {
			allocs, _ = AllocateFIFO(openAmount, poLines, nil)
		}
		covered := decimal.Zero
		for _, a := range allocs {
			covered = covered.Add(a.Amount)
		}
		covered = decimal.Min(covered, openAmount)
		ratio := covered.Div(openAmount)

		var reasons []matching.ReasonCode
		confidence := 0.0
		if invoicePORef != "" && invoicePORef == matching.NormalizeReference(poLines[0].PONumber) {
			confidence += weightPOReference
			reasons = append(reasons, matching.ReasonPOReference)
		}
		if inv.VendorID != "" && inv.VendorID == poLines[0].VendorID {
			confidence += weightVendor
			reasons = append(reasons, matching.ReasonCounterpartMatch)
		}
		r, _ := ratio.Float64()
		confidence += weightCoverage * r
		if openAmount.Sub(covered).LessThanOrEqual(band) {
			reasons = append(reasons, matching.ReasonFullCoverage)
		} else {
			reasons = append(reasons, matching.ReasonPartialCoverage)
		}

		out = append(out, POSuggestion{
			POID:           poID,
			PONumber:       poLines[0].PONumber,
			Allocations:    allocs,
			CoverageAmount: covered,
			CoveragePct:    ratio.Mul(hundred).Round(2),
			Confidence:     roundConfidence(confidence),
			Reasons:        reasons,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if !out[i].CoverageAmount.Equal(out[j].CoverageAmount) {
			return out[i].CoverageAmount.GreaterThan(out[j].CoverageAmount)
		}
		return out[i].POID < out[j].POID
	})
	if len(out) > s.maxSuggestions {
		out = out[:s.maxSuggestions]
	}
	return out
}

// exactLine returns a one-line allocation when some line's remaining amount is within
// band of the invoice, choosing the closest
func exactLine(amount, band decimal.Decimal, lines []POLine) []Allocation {
	var best *POLine
	var bestDiff decimal.Decimal
	for i := range lines {
		l := lines[i]
		diff := l.RemainingAmount().Sub(amount).Abs()
		if diff.GreaterThan(band) {
			continue
		}
		if best == nil || diff.LessThan(bestDiff) {
			best = &lines[i]
			bestDiff = diff
		}
	}
	if best == nil {
		return nil
	}
	take := decimal.Min(amount, best.RemainingAmount())
	return []Allocation{{POID: best.POID, POLineID: best.LineID, Amount: take}}
}

func roundConfidence(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(4).Float64()
	if f > 1 {
		return 1
	}
	return f
}
