package apmatch

import (
	"testing"
	"time"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	uuidForTest = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	testNow     = time.Date(2024, 9, 11, 9, 0, 0, 0, time.UTC)
)

func TestSuggester_PrefersCitedOrderWithFullCoverage(t *testing.T) {
	inv := testInvoice(300_000)
	inv.POReference = "oc po-2"
	lines := []POLine{
		line("po-1", "l1", 1, 100, 1_000), // 100,000 only
		line("po-2", "l1", 1, 100, 2_000),
		line("po-2", "l2", 2, 100, 2_000),
	}

	got := NewSuggester(5).Suggest(inv, inv.Amount, lines, matching.DefaultToleranceConfig())

	require.Len(t, got, 2)
	top := got[0]
	assert.Equal(t, "po-2", top.POID)
	assert.True(t, top.CoverageAmount.Equal(d(300_000)))
	assert.True(t, top.CoveragePct.Equal(d(100)))
	assert.Contains(t, top.Reasons, matching.ReasonPOReference)
	assert.Contains(t, top.Reasons, matching.ReasonFullCoverage)
	assert.Len(t, top.Allocations, 2)

	partial := got[1]
	assert.Equal(t, "po-1", partial.POID)
	assert.Contains(t, partial.Reasons, matching.ReasonPartialCoverage)
	assert.Equal(t, "33.33", partial.CoveragePct.StringFixed(2))
}

func TestSuggester_SingleLineWithinToleranceWins(t *testing.T) {
	lines := []POLine{
		line("po-1", "l1", 1, 100, 1_000),
		line("po-1", "l2", 2, 100, 2_995),
	}

	got := NewSuggester(5).Suggest(testInvoice(300_000), d(300_000), lines, matching.DefaultToleranceConfig())

	require.Len(t, got, 1)
	require.Len(t, got[0].Allocations, 1)
	assert.Equal(t, "l2", got[0].Allocations[0].POLineID)
	assert.True(t, got[0].Allocations[0].Amount.Equal(d(299_500)))
}

func TestSuggester_SkipsClosedLinesAndOtherCurrencies(t *testing.T) {
	closed := line("po-1", "l1", 1, 100, 10)
	closed.AllocatedAmount = d(1_000)
	usd := line("po-2", "l1", 1, 100, 10)
	usd.Currency = "USD"

	got := NewSuggester(5).Suggest(testInvoice(500), d(500), []POLine{closed, usd}, matching.DefaultToleranceConfig())

	assert.Empty(t, got)
}
