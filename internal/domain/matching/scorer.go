package matching

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// historySaturation is the number of prior links at which the history signal is at full weight
const historySaturation = 5

// ScoreWeights are the signal weights, highest priority first
type ScoreWeights struct {
	Reference    float64
	Counterpart  float64
	AmountNarrow float64
	AmountTol    float64
	Date         float64
	History      float64
}

// DefaultScoreWeights returns the production weights
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Reference:    0.45,
		Counterpart:  0.15,
		AmountNarrow: 0.20,
		AmountTol:    0.10,
		Date:         0.07,
		History:      0.03,
	}
}

// Signals are the observations the scorer weighs. A signal is applicable only
// when both records carry the data it compares.
type Signals struct {
	ReferenceApplicable   bool
	ReferenceExact        bool
	ReferenceSimilarity   float64
	CounterpartApplicable bool
	CounterpartMatch      bool
	AmountNarrow          bool
	AmountWithinTol       bool
	// DateProximity is 1 on the same day and decays linearly to 0 at the window edge
	DateProximity     float64
	HistoryApplicable bool
	HistoryCount      int
}

// Score is a normalized confidence with its reasons in priority order
type Score struct {
	Value   float64
	Reasons []ReasonCode
}

// Scorer turns signals into a confidence. It holds no state besides its weights.
type Scorer struct {
	weights ScoreWeights
}

// NewScorer creates a scorer with the given weights
func NewScorer(weights ScoreWeights) *Scorer {
	return &Scorer{weights: weights}
}

// NewDefaultScorer creates a scorer with the production weights
func NewDefaultScorer() *Scorer {
	return NewScorer(DefaultScoreWeights())
}

// Score rates one candidate against the source
func (s *Scorer) Score(source SourceRecord, c Candidate, tol ToleranceConfig, historyCount int) Score {
	return s.ScoreSignals(CandidateSignals(source, c, tol, historyCount))
}

// ScoreSignals computes sum(fired weights) / sum(applicable weights), clamped to [0,1]
func (s *Scorer) ScoreSignals(sig Signals) Score {
	w := s.weights
	var fired, applicable float64
	reasons := make([]ReasonCode, 0, 6)

	if sig.ReferenceApplicable {
		applicable += w.Reference
		switch {
		case sig.ReferenceExact:
			fired += w.Reference
			reasons = append(reasons, ReasonReferenceMatch)
		case sig.ReferenceSimilarity >= minPartialSimilarity:
			fired += w.Reference * 0.5 * math.Min(sig.ReferenceSimilarity, 1)
			reasons = append(reasons, ReasonReferencePartial)
		}
	}
	if sig.CounterpartApplicable {
		applicable += w.Counterpart
		if sig.CounterpartMatch {
			fired += w.Counterpart
			reasons = append(reasons, ReasonCounterpartMatch)
		}
	}

	applicable += w.AmountNarrow
	if sig.AmountNarrow {
		fired += w.AmountNarrow
		reasons = append(reasons, ReasonAmountNarrow)
	}
	applicable += w.AmountTol
	if sig.AmountWithinTol || sig.AmountNarrow {
		fired += w.AmountTol
		reasons = append(reasons, ReasonAmountWithinTolerance)
	}

	applicable += w.Date
	if sig.DateProximity > 0 {
		fired += w.Date * math.Min(sig.DateProximity, 1)
		reasons = append(reasons, ReasonDateProximity)
	}

	if sig.HistoryApplicable {
		applicable += w.History
		if sig.HistoryCount > 0 {
			fired += w.History * math.Min(float64(sig.HistoryCount)/historySaturation, 1)
			reasons = append(reasons, ReasonHistoryFrequency)
		}
	}

	if applicable == 0 {
		return Score{Reasons: reasons}
	}
	value := fired / applicable
	return Score{Value: clamp01(round4(value)), Reasons: reasons}
}

// CandidateSignals derives the scorer inputs for one candidate
func CandidateSignals(source SourceRecord, c Candidate, tol ToleranceConfig, historyCount int) Signals {
	t := c.Target
	diff := c.AmountDiff.Abs()
	return Signals{
		ReferenceApplicable:   ReferencesComparable(source.Reference, t.Reference),
		ReferenceExact:        c.ReferenceMatch,
		ReferenceSimilarity:   c.ReferenceSimilarity,
		CounterpartApplicable: source.CounterpartID != "" && t.CounterpartID != "",
		CounterpartMatch:      c.CounterpartMatch,
		AmountNarrow:          diff.LessThanOrEqual(tol.NarrowTolerance(source.Amount)),
		AmountWithinTol:       diff.LessThanOrEqual(tol.Tolerance(source.Amount)),
		DateProximity:         DateProximity(c.DateDiffDays, tol.DateWindowDays),
		HistoryApplicable:     t.CounterpartID != "",
		HistoryCount:          historyCount,
	}
}

// DateProximity is 1 - days/window, and for a zero window 1 only on the same day
func DateProximity(days, window int) float64 {
	if days < 0 {
		days = -days
	}
	if window <= 0 {
		if days == 0 {
			return 1
		}
		return 0
	}
	if days >= window {
		return 0
	}
	return 1 - float64(days)/float64(window)
}

// DaysBetween counts calendar days between two dates, ignoring time of day
func DaysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	days := int(db.Sub(da).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

func amountDiff(source, total decimal.Decimal) decimal.Decimal {
	return total.Abs().Sub(source.Abs())
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
