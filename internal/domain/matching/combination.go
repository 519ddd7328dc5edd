package matching

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ErrSearchBudgetExhausted marks a combination result cut short by its budget
var ErrSearchBudgetExhausted = shared.NewTransientError("combination search budget exhausted; results are partial")

// Search strategies reported in CombinationResult
const (
	StrategyDFS  = "dfs"
	StrategyMITM = "meet_in_the_middle"
)

const (
	maxScaleDigits = 6
	// amounts are scaled to int64; keep K+1 of them clear of overflow
	maxScaledMagnitude = int64(1) << 58
	clockCheckInterval = 256
)

// CombinationConfig bounds the search
type CombinationConfig struct {
	// MaxSize is K, the largest number of documents in one combination
	MaxSize int
	// MITMThreshold switches to meet-in-the-middle above this pool size
	MITMThreshold int
	// MaxPoolSize keeps only the best scored candidates
	MaxPoolSize int
	// MaxResults is the number of combinations returned
	MaxResults  int
	MaxNodes    int
	MaxDuration time.Duration
}

// DefaultCombinationConfig returns the production bounds
func DefaultCombinationConfig() CombinationConfig {
	return CombinationConfig{
		MaxSize:       5,
		MITMThreshold: 20,
		MaxPoolSize:   40,
		MaxResults:    3,
		MaxNodes:      500_000,
		MaxDuration:   250 * time.Millisecond,
	}
}

// ScoredCandidate is a pool member with its single-target score
type ScoredCandidate struct {
	Candidate
	Score Score
}

// Combination is a set of targets whose magnitudes add up to the source within tolerance
type Combination struct {
	Members []ScoredCandidate
	Total   decimal.Decimal
	// Difference is Total - |source|
	Difference decimal.Decimal
	MeanScore  float64
	key        string
}

// Size returns the number of documents
func (c Combination) Size() int {
	return len(c.Members)
}

// CombinationResult is the outcome of one search
type CombinationResult struct {
	Combinations []Combination
	Exhausted    bool
	Nodes        int
	Strategy     string
	Elapsed      time.Duration
}

// Err returns ErrSearchBudgetExhausted for a partial result
func (r CombinationResult) Err() error {
	if r.Exhausted {
		return ErrSearchBudgetExhausted
	}
	return nil
}

// CombinationSearch finds subsets of candidates summing to a target amount
type CombinationSearch struct {
	cfg   CombinationConfig
	clock shared.Clock
}

// NewCombinationSearch creates a search with the given bounds and clock
func NewCombinationSearch(cfg CombinationConfig, clock shared.Clock) *CombinationSearch {
	if clock == nil {
		clock = shared.SystemClock
	}
	if cfg.MaxSize < 2 {
		cfg.MaxSize = 2
	}
	if cfg.MaxResults < 1 {
		cfg.MaxResults = 1
	}
	return &CombinationSearch{cfg: cfg, clock: clock}
}

// Config returns the search bounds
func (s *CombinationSearch) Config() CombinationConfig {
	return s.cfg
}

// Search returns the best combinations of 2..K members with |sum - target| <= tol.
// Ranking: smallest |difference|, then fewest documents, then highest mean score.
func (s *CombinationSearch) Search(ctx context.Context, target, tol decimal.Decimal, pool []ScoredCandidate) CombinationResult {
	started := s.clock()
	target = target.Abs()
	tol = tol.Abs()

	items := s.preparePool(target.Add(tol), pool)
	run := newSearchRun(ctx, s.cfg, s.clock, started, target, tol, items)
	if len(items) < 2 || run.scale < 0 {
		return CombinationResult{Combinations: []Combination{}, Strategy: StrategyDFS, Elapsed: s.clock().Sub(started)}
	}

	strategy := StrategyDFS
	if len(items) > s.cfg.MITMThreshold && s.cfg.MITMThreshold > 0 {
		strategy = StrategyMITM
		run.meetInTheMiddle()
	} else {
		run.dfs(0, 0, 0, 0)
	}

	return CombinationResult{
		Combinations: run.results(),
		Exhausted:    run.exhausted,
		Nodes:        run.nodes,
		Strategy:     strategy,
		Elapsed:      s.clock().Sub(started),
	}
}

// preparePool drops members that cannot contribute, caps the pool by score and
// sorts it by amount descending
func (s *CombinationSearch) preparePool(ceiling decimal.Decimal, pool []ScoredCandidate) []ScoredCandidate {
	seen := make(map[string]bool, len(pool))
	items := make([]ScoredCandidate, 0, len(pool))
	for _, c := range pool {
		m := c.Target.Magnitude()
		key := c.Target.Ref().Key()
		if m.IsZero() || m.GreaterThan(ceiling) || seen[key] {
			continue
		}
		seen[key] = true
		items = append(items, c)
	}

	if s.cfg.MaxPoolSize > 0 && len(items) > s.cfg.MaxPoolSize {
		sort.SliceStable(items, func(i, j int) bool {
			if items[i].Score.Value != items[j].Score.Value {
				return items[i].Score.Value > items[j].Score.Value
			}
			return items[i].Target.Ref().Key() < items[j].Target.Ref().Key()
		})
		items = items[:s.cfg.MaxPoolSize]
	}

	sort.SliceStable(items, func(i, j int) bool {
		mi, mj := items[i].Target.Magnitude(), items[j].Target.Magnitude()
		if !mi.Equal(mj) {
			return mi.GreaterThan(mj)
		}
		if items[i].Score.Value != items[j].Score.Value {
			return items[i].Score.Value > items[j].Score.Value
		}
		return items[i].Target.Ref().Key() < items[j].Target.Ref().Key()
	})
	return items
}

// searchRun holds the state of one search over int64-scaled amounts
type searchRun struct {
	ctx     context.Context
	cfg     CombinationConfig
	clock   shared.Clock
	started time.Time

	target    decimal.Decimal
	tol       decimal.Decimal
	items     []ScoredCandidate
	amounts   []int64
	prefix    []int64
	scale     int32
	targetInt int64
	lo, hi    int64

	nodes     int
	nodeLimit int
	exhausted bool
	top       []Combination
	chosen    []int
}

func newSearchRun(ctx context.Context, cfg CombinationConfig, clock shared.Clock, started time.Time, target, tol decimal.Decimal, items []ScoredCandidate) *searchRun {
	r := &searchRun{
		ctx:     ctx,
		cfg:     cfg,
		clock:   clock,
		started: started,
		target:  target,
		tol:     tol,
		items:   items,
		chosen:  make([]int, 0, cfg.MaxSize),

		nodeLimit: cfg.MaxNodes,
	}
	r.scale = r.pickScale()
	if r.scale < 0 {
		return r
	}

	r.amounts = make([]int64, len(items))
	r.prefix = make([]int64, len(items)+1)
	for i, it := range items {
		r.amounts[i] = scaleRound(it.Target.Magnitude(), r.scale)
		r.prefix[i+1] = r.prefix[i] + r.amounts[i]
	}
	r.targetInt = scaleRound(target, r.scale)
	// Floor the tolerance so scaled comparisons never accept beyond it
	tolInt := tol.Shift(r.scale).Floor().IntPart()
	r.lo = r.targetInt - tolInt
	r.hi = r.targetInt + tolInt
	return r
}

// pickScale chooses the decimal places to keep: enough for every amount, capped,
// and reduced until the largest value fits comfortably in int64
func (r *searchRun) pickScale() int32 {
	var places int32
	maxMag := r.target.Add(r.tol)
	for _, it := range r.items {
		if p := -it.Target.Magnitude().Exponent(); p > places {
			places = p
		}
	}
	if p := -r.target.Exponent(); p > places {
		places = p
	}
	if places > maxScaleDigits {
		places = maxScaleDigits
	}
	limit := decimal.NewFromInt(maxScaledMagnitude)
	for ; places >= 0; places-- {
		if maxMag.Shift(places).LessThan(limit) {
			return places
		}
	}
	return -1
}

func scaleRound(d decimal.Decimal, places int32) int64 {
	return d.Shift(places).Round(0).IntPart()
}

// tick counts a node and reports whether the search may continue
func (r *searchRun) tick() bool {
	if r.exhausted {
		return false
	}
	r.nodes++
	if r.nodeLimit > 0 && r.nodes > r.nodeLimit {
		r.exhausted = true
		return false
	}
	if r.nodes%clockCheckInterval == 0 {
		if r.cfg.MaxDuration > 0 && r.clock().Sub(r.started) > r.cfg.MaxDuration {
			r.exhausted = true
			return false
		}
		if r.ctx.Err() != nil {
			r.exhausted = true
			return false
		}
	}
	return true
}

// dfs walks subsets in amount-descending order. Since every amount is positive,
// a member that overshoots hi is skipped and a branch that cannot reach lo even
// with the largest remaining members is cut.
func (r *searchRun) dfs(start, depth int, sum int64, scoreSum float64) {
	n := len(r.amounts)
	remainingSlots := r.cfg.MaxSize - depth
	for j := start; j < n; j++ {
		if !r.tick() {
			return
		}
		end := j + remainingSlots
		if end > n {
			end = n
		}
		if sum+(r.prefix[end]-r.prefix[j]) < r.lo {
			return
		}
		next := sum + r.amounts[j]
		if next > r.hi {
			continue
		}
		r.chosen = append(r.chosen, j)
		nextScore := scoreSum + r.items[j].Score.Value
		if depth+1 >= 2 && next >= r.lo {
			r.consider(r.chosen, next, nextScore)
		}
		if depth+1 < r.cfg.MaxSize {
			r.dfs(j+1, depth+1, next, nextScore)
		}
		r.chosen = r.chosen[:len(r.chosen)-1]
		if r.exhausted {
			return
		}
	}
}

// halfSubset is one subset of one half of the pool
type halfSubset struct {
	sum      int64
	scoreSum float64
	idx      []int
}

// meetInTheMiddle enumerates size-bounded subsets of both halves and pairs them
// through binary search over the sorted sums of the second half. A quarter of the
// node budget is held back for pairing, so a run cut short during enumeration
// still pairs whatever both halves listed.
func (r *searchRun) meetInTheMiddle() {
	n := len(r.amounts)
	mid := n / 2

	full := r.nodeLimit
	reserve := 0
	if full > 0 {
		reserve = full / 4
		if reserve == 0 {
			reserve = 1
		}
		r.nodeLimit = atLeastOne((full - reserve) / 2)
	}
	left := r.enumerate(0, mid)
	leftCut := r.exhausted
	// the right half gets its own share unless the clock or context ran out
	if full > 0 && r.nodes > r.nodeLimit {
		r.exhausted = false
	}
	if full > 0 {
		r.nodeLimit = atLeastOne(full - reserve)
	}
	right := r.enumerate(mid, n)
	cut := leftCut || r.exhausted
	r.exhausted = false
	r.nodeLimit = full
	sort.Slice(right, func(i, j int) bool { return right[i].sum < right[j].sum })

	// Once cut, pairing runs on its own allowance and ignores the clock
	allowance := 0
	if cut {
		allowance = len(left) + len(right)
		if rest := full - r.nodes; full > 0 && rest > allowance {
			allowance = rest
		}
	}
	step := func() bool {
		if !cut {
			return r.tick()
		}
		if allowance == 0 {
			return false
		}
		allowance--
		r.nodes++
		return true
	}

	defer func() { r.exhausted = r.exhausted || cut }()
	for _, a := range left {
		need := r.lo - a.sum
		i := sort.Search(len(right), func(k int) bool { return right[k].sum >= need })
		for ; i < len(right); i++ {
			b := right[i]
			total := a.sum + b.sum
			if total > r.hi {
				break
			}
			if !step() {
				return
			}
			size := len(a.idx) + len(b.idx)
			if size < 2 || size > r.cfg.MaxSize {
				continue
			}
			idx := make([]int, 0, size)
			idx = append(idx, a.idx...)
			idx = append(idx, b.idx...)
			r.consider(idx, total, a.scoreSum+b.scoreSum)
		}
	}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// enumerate lists subsets of items[from:to] with at most K members and sum <= hi,
// including the empty subset, one size at a time so a cut run keeps the smallest
// subsets. Singletons are always listed.
func (r *searchRun) enumerate(from, to int) []halfSubset {
	out := []halfSubset{{}}
	level := make([]halfSubset, 0, to-from)
	for j := from; j < to; j++ {
		r.nodes++
		if r.amounts[j] > r.hi {
			continue
		}
		sub := halfSubset{sum: r.amounts[j], scoreSum: r.items[j].Score.Value, idx: []int{j}}
		out = append(out, sub)
		level = append(level, sub)
	}

	for size := 2; size <= r.cfg.MaxSize && len(level) > 0; size++ {
		var next []halfSubset
		for _, cur := range level {
			for j := cur.idx[len(cur.idx)-1] + 1; j < to; j++ {
				if !r.tick() {
					return out
				}
				sum := cur.sum + r.amounts[j]
				if sum > r.hi {
					continue
				}
				idx := make([]int, len(cur.idx)+1)
				copy(idx, cur.idx)
				idx[len(cur.idx)] = j
				sub := halfSubset{sum: sum, scoreSum: cur.scoreSum + r.items[j].Score.Value, idx: idx}
				out = append(out, sub)
				next = append(next, sub)
			}
		}
		level = next
	}
	return out
}

// consider offers a subset to the top results
func (r *searchRun) consider(idx []int, sum int64, scoreSum float64) {
	diff := sum - r.targetInt
	if diff < 0 {
		diff = -diff
	}
	size := len(idx)
	mean := round4(scoreSum / float64(size))

	if len(r.top) >= r.cfg.MaxResults {
		worst := r.top[len(r.top)-1]
		worstDiff := worst.Difference.Abs().Shift(r.scale).Round(0).IntPart()
		if diff > worstDiff || (diff == worstDiff && size > worst.Size()) ||
			(diff == worstDiff && size == worst.Size() && mean < worst.MeanScore) {
			return
		}
	}

	c := r.build(idx, mean)
	// The scaled check is exact for amounts with at most maxScaleDigits places; re-check on decimals
	if c.Difference.Abs().GreaterThan(r.tol) {
		return
	}
	pos := sort.Search(len(r.top), func(k int) bool { return Better(c, r.top[k]) })
	r.top = append(r.top, Combination{})
	copy(r.top[pos+1:], r.top[pos:])
	r.top[pos] = c
	if len(r.top) > r.cfg.MaxResults {
		r.top = r.top[:r.cfg.MaxResults]
	}
}

func (r *searchRun) build(idx []int, mean float64) Combination {
	members := make([]ScoredCandidate, len(idx))
	keys := make([]string, len(idx))
	total := decimal.Zero
	for i, j := range idx {
		members[i] = r.items[j]
		keys[i] = r.items[j].Target.Ref().Key()
		total = total.Add(r.items[j].Target.Magnitude())
	}
	sort.Strings(keys)
	return Combination{
		Members:    members,
		Total:      total,
		Difference: total.Sub(r.target),
		MeanScore:  mean,
		key:        strings.Join(keys, "|"),
	}
}

func (r *searchRun) results() []Combination {
	if r.top == nil {
		return []Combination{}
	}
	return r.top
}

// Better reports whether a ranks strictly before b: smallest |difference|, fewest
// documents, highest mean score, then member keys for a stable order
func Better(a, b Combination) bool {
	da, db := a.Difference.Abs(), b.Difference.Abs()
	if !da.Equal(db) {
		return da.LessThan(db)
	}
	if a.Size() != b.Size() {
		return a.Size() < b.Size()
	}
	if a.MeanScore != b.MeanScore {
		return a.MeanScore > b.MeanScore
	}
	return a.Key() < b.Key()
}

// Key is the sorted member keys joined by "|"
func (c Combination) Key() string {
	if c.key != "" || len(c.Members) == 0 {
		return c.key
	}
	keys := make([]string, len(c.Members))
	for i, m := range c.Members {
		keys[i] = m.Target.Ref().Key()
	}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}
