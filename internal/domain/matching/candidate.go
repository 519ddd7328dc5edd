package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenerationMode selects the amount filter of the candidate generator
type GenerationMode int

const (
	// ModeSingle keeps targets whose amount is within tolerance of the source
	ModeSingle GenerationMode = iota
	// ModeCombination keeps targets that could be a member of a combination
	ModeCombination
)

// TargetQuery selects stored documents that could settle a source
type TargetQuery struct {
	Kinds []RecordKind
	From  time.Time
	To    time.Time
	// MinAmount and MaxAmount bound the magnitude |amount|
	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal
	Currency  string
	// Exclude is the source itself, never its own candidate
	Exclude RecordRef
}

// TargetProvider reads candidate documents from the projection store
type TargetProvider interface {
	FindTargets(ctx context.Context, tenantID uuid.UUID, q TargetQuery) ([]CandidateTarget, error)
}

// Candidate is a target annotated with the comparisons the scorer needs
type Candidate struct {
	Target              CandidateTarget
	ReferenceMatch      bool
	ReferenceSimilarity float64
	CounterpartMatch    bool
	// AmountDiff is |target| - |source|
	AmountDiff   decimal.Decimal
	DateDiffDays int
}

// CandidateGenerator filters stored documents by date window and amount band
type CandidateGenerator struct {
	provider TargetProvider
}

// NewCandidateGenerator creates a generator over a target provider
func NewCandidateGenerator(provider TargetProvider) *CandidateGenerator {
	return &CandidateGenerator{provider: provider}
}

// ResolveTargetKinds validates requested kinds against the source kind. With no request
// it returns the layer order entries the source may target.
func ResolveTargetKinds(source RecordKind, requested []RecordKind, tol ToleranceConfig) ([]RecordKind, error) {
	if len(requested) == 0 {
		kinds := make([]RecordKind, 0, len(tol.SourceLayerOrder))
		for _, k := range tol.SourceLayerOrder {
			if CanTarget(source, k) {
				kinds = append(kinds, k)
			}
		}
		return kinds, nil
	}
	seen := make(map[RecordKind]bool, len(requested))
	kinds := make([]RecordKind, 0, len(requested))
	for _, k := range requested {
		if !k.IsValid() {
			return nil, shared.NewValidationError("unknown target kind %q", k)
		}
		if !CanTarget(source, k) {
			return nil, shared.NewValidationError("%s records cannot be matched against %s", source, k)
		}
		if !seen[k] {
			seen[k] = true
			kinds = append(kinds, k)
		}
	}
	return kinds, nil
}

// Generate returns annotated candidates for the source. An empty result is valid.
func (g *CandidateGenerator) Generate(
	ctx context.Context,
	tenantID uuid.UUID,
	source SourceRecord,
	kinds []RecordKind,
	tol ToleranceConfig,
	mode GenerationMode,
) ([]Candidate, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	targetKinds, err := ResolveTargetKinds(source.Kind, kinds, tol)
	if err != nil {
		return nil, err
	}
	if len(targetKinds) == 0 {
		return []Candidate{}, nil
	}

	magnitude := source.Magnitude()
	band := tol.Tolerance(source.Amount)
	window := time.Duration(tol.DateWindowDays) * 24 * time.Hour

	q := TargetQuery{
		Kinds:     targetKinds,
		From:      startOfDay(source.Date).Add(-window),
		To:        startOfDay(source.Date).Add(window + 24*time.Hour - time.Nanosecond),
		MaxAmount: magnitude.Add(band),
		Currency:  source.Currency,
		Exclude:   source.Ref(),
	}
	if mode == ModeSingle {
		q.MinAmount = decimal.Max(magnitude.Sub(band), decimal.Zero)
	}

	targets, err := g.provider.FindTargets(ctx, tenantID, q)
	if err != nil {
		return nil, fmt.Errorf("find targets for %s: %w", source.Ref(), err)
	}

	out := make([]Candidate, 0, len(targets))
	for _, t := range targets {
		if !g.accept(source, t, q, tol) {
			continue
		}
		out = append(out, annotate(source, t))
	}
	return out, nil
}

// accept re-checks the query bounds, since providers may over-fetch
func (g *CandidateGenerator) accept(source SourceRecord, t CandidateTarget, q TargetQuery, tol ToleranceConfig) bool {
	if t.Ref() == q.Exclude {
		return false
	}
	if !containsKind(q.Kinds, t.Kind) {
		return false
	}
	if !sameCurrency(source.Currency, t.Currency) {
		return false
	}
	if DaysBetween(source.Date, t.Date) > tol.DateWindowDays {
		return false
	}
	m := t.Magnitude()
	if m.IsZero() || m.GreaterThan(q.MaxAmount) {
		return false
	}
	return m.GreaterThanOrEqual(q.MinAmount)
}

func annotate(source SourceRecord, t CandidateTarget) Candidate {
	sim := ReferenceSimilarity(source.Reference, t.Reference)
	return Candidate{
		Target:              t,
		ReferenceMatch:      sim == 1,
		ReferenceSimilarity: sim,
		CounterpartMatch:    source.CounterpartID != "" && source.CounterpartID == t.CounterpartID,
		AmountDiff:          amountDiff(source.Amount, t.Amount),
		DateDiffDays:        DaysBetween(source.Date, t.Date),
	}
}

func containsKind(kinds []RecordKind, k RecordKind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
