package apmatch

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Allocation is a resolved line-level share of an invoice
type Allocation struct {
	POID     string           `json:"po_id"`
	POLineID string           `json:"po_line_id"`
	Amount   decimal.Decimal  `json:"amount"`
	Qty      *decimal.Decimal `json:"qty,omitempty"`
}

// Key returns the line the allocation lands on
func (a Allocation) Key() LineKey {
	return LineKey{POID: a.POID, LineID: a.POLineID}
}

// sortByLineNo orders lines the way they appear on the order
func sortByLineNo(lines []POLine) []POLine {
	sorted := make([]POLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].LineNo != sorted[j].LineNo {
			return sorted[i].LineNo < sorted[j].LineNo
		}
		return sorted[i].LineID < sorted[j].LineID
	})
	return sorted
}

// AllocateFIFO spreads amount over open lines in line order, taking from each
// line at most what it has left after the given usage. It returns the
// allocations and the part of amount that did not fit.
func AllocateFIFO(amount decimal.Decimal, lines []POLine, used map[LineKey]decimal.Decimal) ([]Allocation, decimal.Decimal) {
	remaining := amount
	out := make([]Allocation, 0)
	for _, line := range sortByLineNo(lines) {
		if !remaining.IsPositive() {
			break
		}
		free := line.RemainingAmount().Sub(used[line.Key()])
		if !free.IsPositive() {
			continue
		}
		take := decimal.Min(remaining, free)
		out = append(out, Allocation{POID: line.POID, POLineID: line.LineID, Amount: take})
		remaining = remaining.Sub(take)
	}
	return out, remaining
}
