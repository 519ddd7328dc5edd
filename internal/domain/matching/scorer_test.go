package matching

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorer_BankMovementWithMatchingReference(t *testing.T) {
	source := bankMovement("bm-1", 1_500_000, "2024-09-10")
	source.Reference = "F-2024-0891"
	target := invoice("inv-891", 1_500_000, "2024-09-08")
	target.Reference = "F-2024-0891"

	tol := DefaultToleranceConfig()
	score := NewDefaultScorer().Score(source, annotate(source, target), tol, 0)

	assert.GreaterOrEqual(t, score.Value, 0.9)
	assert.Equal(t, []ReasonCode{
		ReasonReferenceMatch,
		ReasonAmountNarrow,
		ReasonAmountWithinTolerance,
		ReasonDateProximity,
	}, score.Reasons)
}

func TestScorer_PunctuationOnlyReferenceIsNotApplicable(t *testing.T) {
	target := invoice("inv-1", 50_000, "2024-09-09")
	target.Reference = "F-1001"
	tol := DefaultToleranceConfig()
	scorer := NewDefaultScorer()

	blank := bankMovement("bm-1", 50_000, "2024-09-10")
	want := scorer.Score(blank, annotate(blank, target), tol, 0)

	for _, ref := range []string{"-", "/", " . "} {
		source := blank
		source.Reference = ref
		c := annotate(source, target)

		assert.False(t, CandidateSignals(source, c, tol, 0).ReferenceApplicable, "ref %q", ref)
		assert.Equal(t, want, scorer.Score(source, c, tol, 0), "ref %q", ref)
	}
	assert.False(t, ReferencesComparable("F-1001", "--"))
	assert.True(t, ReferencesComparable("f 1001", "F-1001"))
}

func TestScorer_ReasonsFollowPriorityOrder(t *testing.T) {
	sig := Signals{
		ReferenceApplicable:   true,
		ReferenceExact:        true,
		CounterpartApplicable: true,
		CounterpartMatch:      true,
		AmountNarrow:          true,
		AmountWithinTol:       true,
		DateProximity:         0.5,
		HistoryApplicable:     true,
		HistoryCount:          2,
	}
	score := NewDefaultScorer().ScoreSignals(sig)

	require.Len(t, score.Reasons, 6)
	for i := 1; i < len(score.Reasons); i++ {
		assert.Less(t, score.Reasons[i-1], score.Reasons[i])
	}
}

func TestScorer_PartialReferenceWeighsLessThanExact(t *testing.T) {
	s := NewDefaultScorer()
	base := Signals{ReferenceApplicable: true, AmountWithinTol: true}

	partial := base
	partial.ReferenceSimilarity = 0.9
	exact := base
	exact.ReferenceExact = true

	assert.Less(t, s.ScoreSignals(base).Value, s.ScoreSignals(partial).Value)
	assert.Less(t, s.ScoreSignals(partial).Value, s.ScoreSignals(exact).Value)
	assert.Contains(t, s.ScoreSignals(partial).Reasons, ReasonReferencePartial)
}

func TestScorer_Monotonic(t *testing.T) {
	s := NewDefaultScorer()
	rng := rand.New(rand.NewSource(42))

	randomSignals := func() Signals {
		return Signals{
			ReferenceApplicable:   rng.Intn(2) == 0,
			ReferenceExact:        rng.Intn(2) == 0,
			ReferenceSimilarity:   rng.Float64(),
			CounterpartApplicable: rng.Intn(2) == 0,
			CounterpartMatch:      rng.Intn(2) == 0,
			AmountNarrow:          rng.Intn(2) == 0,
			AmountWithinTol:       rng.Intn(2) == 0,
			DateProximity:         rng.Float64(),
			HistoryApplicable:     rng.Intn(2) == 0,
			HistoryCount:          rng.Intn(8),
		}
	}

	// Each mutation turns one signal true or makes it stronger, keeping the rest fixed
	mutations := map[string]func(Signals) Signals{
		"reference exact": func(s Signals) Signals { s.ReferenceApplicable, s.ReferenceExact = true, true; return s },
		"counterpart": func(s Signals) Signals {
			s.CounterpartApplicable, s.CounterpartMatch = true, true
			return s
		},
		"narrow amount":   func(s Signals) Signals { s.AmountNarrow = true; return s },
		"amount in band":  func(s Signals) Signals { s.AmountWithinTol = true; return s },
		"closer date":     func(s Signals) Signals { s.DateProximity += (1 - s.DateProximity) / 2; return s },
		"more history":    func(s Signals) Signals { s.HistoryCount++; return s },
		"full history":    func(s Signals) Signals { s.HistoryApplicable, s.HistoryCount = true, historySaturation; return s },
		"more similarity": func(s Signals) Signals { s.ReferenceSimilarity += (1 - s.ReferenceSimilarity) / 2; return s },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 2000; i++ {
				before := randomSignals()
				// Strengthening a partial signal only counts where it already applies
				if name == "more similarity" && !before.ReferenceApplicable {
					continue
				}
				if name == "more history" && !before.HistoryApplicable {
					continue
				}
				after := mutate(before)
				assert.GreaterOrEqual(t, s.ScoreSignals(after).Value, s.ScoreSignals(before).Value,
					"before=%+v after=%+v", before, after)
			}
		})
	}
}

func TestScorer_BoundedToUnitInterval(t *testing.T) {
	s := NewDefaultScorer()
	all := Signals{
		ReferenceApplicable: true, ReferenceExact: true,
		CounterpartApplicable: true, CounterpartMatch: true,
		AmountNarrow: true, AmountWithinTol: true, DateProximity: 1,
		HistoryApplicable: true, HistoryCount: 50,
	}
	assert.Equal(t, 1.0, s.ScoreSignals(all).Value)
	assert.Equal(t, 0.0, s.ScoreSignals(Signals{}).Value)
}

func TestDateProximity(t *testing.T) {
	tests := []struct {
		name   string
		days   int
		window int
		want   float64
	}{
		{"same day", 0, 15, 1},
		{"window edge", 15, 15, 0},
		{"beyond window", 20, 15, 0},
		{"half way", 5, 10, 0.5},
		{"negative days", -5, 10, 0.5},
		{"zero window same day", 0, 0, 1},
		{"zero window next day", 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DateProximity(tt.days, tt.window), 1e-9)
		})
	}
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 2, DaysBetween(day("2024-09-10"), day("2024-09-08")))
	assert.Equal(t, 2, DaysBetween(day("2024-09-08"), day("2024-09-10")))
	assert.Equal(t, 0, DaysBetween(day("2024-09-08").Add(23*3600e9), day("2024-09-08")))
}
