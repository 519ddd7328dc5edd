package matching

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// combinationSizePenalty lowers combination confidence per extra document so an
// equally good single match ranks first
const combinationSizePenalty = 0.05

// EngineConfig tunes ranking
type EngineConfig struct {
	// AcceptThreshold is the single score at or above which no combination search runs
	AcceptThreshold float64
	// MaxSuggestions caps the returned list
	MaxSuggestions int
}

// DefaultEngineConfig returns the production ranking settings
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{AcceptThreshold: 0.85, MaxSuggestions: 10}
}

// SuggestRequest is one get_suggestions call
type SuggestRequest struct {
	TenantID    uuid.UUID
	Source      SourceRecord
	TargetKinds []RecordKind
	Tolerance   ToleranceConfig
}

// Engine ranks single and combination suggestions for a source record
type Engine struct {
	generator *CandidateGenerator
	scorer    *Scorer
	search    *CombinationSearch
	history   HistoryProvider
	cfg       EngineConfig
}

// NewEngine wires the matching pipeline. history may be nil.
func NewEngine(generator *CandidateGenerator, scorer *Scorer, search *CombinationSearch, history HistoryProvider, cfg EngineConfig) *Engine {
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = DefaultEngineConfig().MaxSuggestions
	}
	return &Engine{
		generator: generator,
		scorer:    scorer,
		search:    search,
		history:   history,
		cfg:       cfg,
	}
}

// Suggest computes ranked suggestions. The result is Partial, never an error, when the
// combination search runs out of budget.
func (e *Engine) Suggest(ctx context.Context, req SuggestRequest) (*SuggestionSet, CombinationResult, error) {
	source := req.Source
	tol := req.Tolerance

	candidates, err := e.generator.Generate(ctx, req.TenantID, source, req.TargetKinds, tol, ModeSingle)
	if err != nil {
		return nil, CombinationResult{}, err
	}
	history, err := e.historyFor(ctx, req.TenantID, candidates)
	if err != nil {
		return nil, CombinationResult{}, err
	}

	singles := e.scoreAll(source, candidates, tol, history)
	sort.SliceStable(singles, func(i, j int) bool { return rankSingles(singles[i], singles[j], tol) })

	items := make([]Suggestion, 0, len(singles))
	for _, sc := range singles {
		items = append(items, &SingleSuggestion{
			Source:      source.Ref(),
			Target:      sc.Target,
			Score:       sc.Score.Value,
			ReasonCodes: sc.Score.Reasons,
			Diff:        sc.AmountDiff,
		})
	}

	var combo CombinationResult
	if len(singles) == 0 || singles[0].Score.Value < e.cfg.AcceptThreshold {
		combo, err = e.combinations(ctx, req, history)
		if err != nil {
			return nil, CombinationResult{}, err
		}
		combos := make([]Suggestion, 0, len(combo.Combinations))
		for _, c := range combo.Combinations {
			combos = append(combos, e.combinationSuggestion(source, tol, c, combo.Exhausted, history))
		}
		items = mergeByConfidence(items, combos)
	}

	if len(items) > e.cfg.MaxSuggestions {
		items = items[:e.cfg.MaxSuggestions]
	}

	return &SuggestionSet{
		Source:    source.Ref(),
		Items:     items,
		Partial:   combo.Exhausted,
		Tolerance: tol,
	}, combo, nil
}

func (e *Engine) combinations(ctx context.Context, req SuggestRequest, history map[string]int) (CombinationResult, error) {
	pool, err := e.generator.Generate(ctx, req.TenantID, req.Source, req.TargetKinds, req.Tolerance, ModeCombination)
	if err != nil {
		return CombinationResult{}, err
	}
	if missing := missingCounterparts(pool, history); len(missing) > 0 && e.history != nil {
		more, err := e.history.CounterpartLinkCounts(ctx, req.TenantID, missing)
		if err != nil {
			return CombinationResult{}, fmt.Errorf("load counterpart history: %w", err)
		}
		for k, v := range more {
			history[k] = v
		}
	}
	scored := e.scoreAll(req.Source, pool, req.Tolerance, history)
	return e.search.Search(ctx, req.Source.Magnitude(), req.Tolerance.Tolerance(req.Source.Amount), scored), nil
}

func (e *Engine) scoreAll(source SourceRecord, candidates []Candidate, tol ToleranceConfig, history map[string]int) []ScoredCandidate {
	out := make([]ScoredCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = ScoredCandidate{Candidate: c, Score: e.scorer.Score(source, c, tol, history[c.Target.CounterpartID])}
	}
	return out
}

// combinationSuggestion scores the combination as a whole: amount signals come from
// the combined total, the rest from the weakest member
func (e *Engine) combinationSuggestion(source SourceRecord, tol ToleranceConfig, c Combination, partial bool, history map[string]int) *CombinationSuggestion {
	diff := c.Difference.Abs()
	sig := Signals{
		AmountNarrow:    diff.LessThanOrEqual(tol.NarrowTolerance(source.Amount)),
		AmountWithinTol: diff.LessThanOrEqual(tol.Tolerance(source.Amount)),
		DateProximity:   1,
	}

	members := make([]CandidateTarget, len(c.Members))
	memberScores := make([]float64, len(c.Members))
	counterpartAll := source.CounterpartID != ""
	historyMin := math.MaxInt
	for i, m := range c.Members {
		members[i] = m.Target
		memberScores[i] = m.Score.Value
		if ReferencesComparable(source.Reference, m.Target.Reference) {
			sig.ReferenceApplicable = true
			sig.ReferenceExact = sig.ReferenceExact || m.ReferenceMatch
			sig.ReferenceSimilarity = math.Max(sig.ReferenceSimilarity, m.ReferenceSimilarity)
		}
		if m.Target.CounterpartID == "" {
			counterpartAll = false
		} else if !m.CounterpartMatch {
			counterpartAll = false
		}
		sig.DateProximity = math.Min(sig.DateProximity, DateProximity(m.DateDiffDays, tol.DateWindowDays))
		if m.Target.CounterpartID != "" && history[m.Target.CounterpartID] < historyMin {
			historyMin = history[m.Target.CounterpartID]
		}
	}
	if source.CounterpartID != "" {
		sig.CounterpartApplicable = true
		sig.CounterpartMatch = counterpartAll
	}
	if historyMin != math.MaxInt {
		sig.HistoryApplicable = true
		sig.HistoryCount = historyMin
	}

	score := e.scorer.ScoreSignals(sig)
	penalty := 1 - combinationSizePenalty*float64(len(members)-1)
	reasons := append([]ReasonCode{ReasonCombinationSum}, score.Reasons...)
	if partial {
		reasons = append(reasons, ReasonSearchPartial)
	}
	return &CombinationSuggestion{
		Source:       source.Ref(),
		Members:      members,
		MemberScores: memberScores,
		Score:        clamp01(round4(score.Value * penalty)),
		ReasonCodes:  reasons,
		Diff:         c.Difference,
		Partial:      partial,
	}
}

func (e *Engine) historyFor(ctx context.Context, tenantID uuid.UUID, candidates []Candidate) (map[string]int, error) {
	history := make(map[string]int)
	if e.history == nil {
		return history, nil
	}
	ids := missingCounterparts(candidates, history)
	if len(ids) == 0 {
		return history, nil
	}
	counts, err := e.history.CounterpartLinkCounts(ctx, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("load counterpart history: %w", err)
	}
	for k, v := range counts {
		history[k] = v
	}
	return history, nil
}

func missingCounterparts(candidates []Candidate, known map[string]int) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, c := range candidates {
		id := c.Target.CounterpartID
		if id == "" || seen[id] {
			continue
		}
		if _, ok := known[id]; ok {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// mergeByConfidence interleaves two ranked lists by confidence without reordering
// either one. Combinations keep the search order: smallest difference first.
func mergeByConfidence(singles, combos []Suggestion) []Suggestion {
	out := make([]Suggestion, 0, len(singles)+len(combos))
	i, j := 0, 0
	for i < len(singles) && j < len(combos) {
		if singles[i].Confidence() >= combos[j].Confidence() {
			out = append(out, singles[i])
			i++
		} else {
			out = append(out, combos[j])
			j++
		}
	}
	out = append(out, singles[i:]...)
	return append(out, combos[j:]...)
}

// rankSingles orders by score, then closer amount, then layer order, then closer date
func rankSingles(a, b ScoredCandidate, tol ToleranceConfig) bool {
	if a.Score.Value != b.Score.Value {
		return a.Score.Value > b.Score.Value
	}
	da, db := a.AmountDiff.Abs(), b.AmountDiff.Abs()
	if !da.Equal(db) {
		return da.LessThan(db)
	}
	ra, rb := tol.LayerRank(a.Target.Kind), tol.LayerRank(b.Target.Kind)
	if ra != rb {
		return ra < rb
	}
	if a.DateDiffDays != b.DateDiffDays {
		return a.DateDiffDays < b.DateDiffDays
	}
	return a.Target.Ref().Key() < b.Target.Ref().Key()
}

// TotalOf sums target magnitudes
func TotalOf(targets []CandidateTarget) decimal.Decimal {
	total := decimal.Zero
	for _, t := range targets {
		total = total.Add(t.Magnitude())
	}
	return total
}
