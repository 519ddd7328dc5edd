package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateGenerator_FiltersWindowAndAmount(t *testing.T) {
	provider := &fakeTargetProvider{targets: []CandidateTarget{
		invoice("in-window", 1_000_000, "2024-09-05"),
		invoice("outside-window", 1_000_000, "2024-08-01"),
		invoice("outside-band", 1_200_000, "2024-09-05"),
		invoice("edge-of-band", 1_010_000, "2024-09-10"),
	}}
	gen := NewCandidateGenerator(provider)
	source := bankMovement("bm-1", -1_000_000, "2024-09-10")

	got, err := gen.Generate(context.Background(), testTenant, source, nil, DefaultToleranceConfig(), ModeSingle)

	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, c := range got {
		ids[i] = c.Target.ID
	}
	assert.ElementsMatch(t, []string{"in-window", "edge-of-band"}, ids)

	require.Len(t, provider.queries, 1)
	q := provider.queries[0]
	assert.Equal(t, day("2024-08-26"), q.From)
	assert.True(t, q.MinAmount.Equal(amount(990_000)))
	assert.True(t, q.MaxAmount.Equal(amount(1_010_000)))
	assert.NotContains(t, q.Kinds, KindBankMovement)
}

func TestCandidateGenerator_CombinationModeKeepsSmallerMembers(t *testing.T) {
	provider := &fakeTargetProvider{targets: []CandidateTarget{
		invoice("small", 100_000, "2024-09-09"),
		invoice("too-big", 400_000, "2024-09-09"),
		invoice("zero", 0, "2024-09-09"),
	}}
	gen := NewCandidateGenerator(provider)

	got, err := gen.Generate(context.Background(), testTenant, bankMovement("bm", 300_000, "2024-09-10"), nil, DefaultToleranceConfig(), ModeCombination)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "small", got[0].Target.ID)
	assert.True(t, provider.queries[0].MinAmount.IsZero())
}

func TestCandidateGenerator_UnknownKindIsValidationError(t *testing.T) {
	gen := NewCandidateGenerator(&fakeTargetProvider{})

	_, err := gen.Generate(context.Background(), testTenant, bankMovement("bm", 10, "2024-09-10"),
		[]RecordKind{"credit_note"}, DefaultToleranceConfig(), ModeSingle)

	assert.True(t, shared.IsValidation(err))
}

func TestCandidateGenerator_DisallowedPairIsValidationError(t *testing.T) {
	gen := NewCandidateGenerator(&fakeTargetProvider{})
	source := SourceRecord{Kind: KindPurchaseInvoice, ID: "inv", Amount: amount(10), Date: day("2024-09-10")}

	_, err := gen.Generate(context.Background(), testTenant, source, []RecordKind{KindSalesInvoice}, DefaultToleranceConfig(), ModeSingle)

	assert.True(t, shared.IsValidation(err))
}

func TestCandidateGenerator_EmptyResultIsValid(t *testing.T) {
	gen := NewCandidateGenerator(&fakeTargetProvider{})

	got, err := gen.Generate(context.Background(), testTenant, bankMovement("bm", 10, "2024-09-10"), nil, DefaultToleranceConfig(), ModeSingle)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCandidateGenerator_AnnotatesSignals(t *testing.T) {
	target := invoice("inv", 1_000, "2024-09-08")
	target.Reference = "F-2024-0891"
	target.CounterpartID = "vendor-7"
	gen := NewCandidateGenerator(&fakeTargetProvider{targets: []CandidateTarget{target}})
	source := bankMovement("bm", 1_000, "2024-09-10")
	source.Reference = "f 2024 0891"
	source.CounterpartID = "vendor-7"

	got, err := gen.Generate(context.Background(), testTenant, source, nil, DefaultToleranceConfig(), ModeSingle)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].ReferenceMatch)
	assert.True(t, got[0].CounterpartMatch)
	assert.Equal(t, 2, got[0].DateDiffDays)
	assert.True(t, got[0].AmountDiff.IsZero())
}

func TestCandidateGenerator_SkipsOtherCurrencies(t *testing.T) {
	usd := invoice("usd", 1_000, "2024-09-10")
	usd.Currency = "USD"
	gen := NewCandidateGenerator(&fakeTargetProvider{targets: []CandidateTarget{usd}})

	got, err := gen.Generate(context.Background(), testTenant, bankMovement("bm", 1_000, "2024-09-10"), nil, DefaultToleranceConfig(), ModeSingle)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCandidateGenerator_ProviderErrorIsWrapped(t *testing.T) {
	boom := errors.New("connection reset")
	gen := NewCandidateGenerator(&fakeTargetProvider{err: boom})

	_, err := gen.Generate(context.Background(), testTenant, bankMovement("bm", 1_000, "2024-09-10"), nil, DefaultToleranceConfig(), ModeSingle)

	assert.ErrorIs(t, err, boom)
}

func TestCandidateGenerator_InvalidSource(t *testing.T) {
	gen := NewCandidateGenerator(&fakeTargetProvider{})
	source := SourceRecord{Kind: KindBankMovement, ID: "bm", Amount: decimal.Zero, Date: day("2024-09-10")}

	_, err := gen.Generate(context.Background(), testTenant, source, nil, DefaultToleranceConfig(), ModeSingle)

	assert.True(t, shared.IsValidation(err))
}
