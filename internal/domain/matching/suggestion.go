package matching

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// SuggestionKind discriminates the Suggestion union
type SuggestionKind string

const (
	SuggestionSingle      SuggestionKind = "single"
	SuggestionCombination SuggestionKind = "combination"
)

// Suggestion is either a SingleSuggestion or a CombinationSuggestion
type Suggestion interface {
	Kind() SuggestionKind
	SourceRef() RecordRef
	Targets() []CandidateTarget
	Confidence() float64
	Reasons() []ReasonCode
	// Difference is sum(targets) - source, on magnitudes
	Difference() decimal.Decimal
	sealed()
}

// SingleSuggestion proposes one target document
type SingleSuggestion struct {
	Source      RecordRef
	Target      CandidateTarget
	Score       float64
	ReasonCodes []ReasonCode
	Diff        decimal.Decimal
}

func (s *SingleSuggestion) Kind() SuggestionKind        { return SuggestionSingle }
func (s *SingleSuggestion) SourceRef() RecordRef        { return s.Source }
func (s *SingleSuggestion) Targets() []CandidateTarget  { return []CandidateTarget{s.Target} }
func (s *SingleSuggestion) Confidence() float64         { return s.Score }
func (s *SingleSuggestion) Reasons() []ReasonCode       { return s.ReasonCodes }
func (s *SingleSuggestion) Difference() decimal.Decimal { return s.Diff }
func (s *SingleSuggestion) sealed()                     {}

// CombinationSuggestion proposes several targets whose amounts add up to the source
type CombinationSuggestion struct {
	Source       RecordRef
	Members      []CandidateTarget
	MemberScores []float64
	Score        float64
	ReasonCodes  []ReasonCode
	Diff         decimal.Decimal
	// Partial marks a combination found by a search that ran out of budget
	Partial bool
}

func (s *CombinationSuggestion) Kind() SuggestionKind        { return SuggestionCombination }
func (s *CombinationSuggestion) SourceRef() RecordRef        { return s.Source }
func (s *CombinationSuggestion) Targets() []CandidateTarget  { return s.Members }
func (s *CombinationSuggestion) Confidence() float64         { return s.Score }
func (s *CombinationSuggestion) Reasons() []ReasonCode       { return s.ReasonCodes }
func (s *CombinationSuggestion) Difference() decimal.Decimal { return s.Diff }
func (s *CombinationSuggestion) sealed()                     {}

// TargetRefs returns the references of a suggestion's targets
func TargetRefs(s Suggestion) []RecordRef {
	targets := s.Targets()
	refs := make([]RecordRef, len(targets))
	for i, t := range targets {
		refs[i] = t.Ref()
	}
	return refs
}

// suggestionEnvelope is the tagged wire form of a Suggestion
type suggestionEnvelope struct {
	Kind         SuggestionKind    `json:"kind"`
	Source       RecordRef         `json:"source"`
	Targets      []CandidateTarget `json:"targets"`
	MemberScores []float64         `json:"member_scores,omitempty"`
	Confidence   float64           `json:"confidence"`
	Reasons      []ReasonCode      `json:"reasons"`
	Difference   decimal.Decimal   `json:"difference"`
	Partial      bool              `json:"partial,omitempty"`
}

// MarshalJSON encodes the suggestion with its kind discriminator
func (s *SingleSuggestion) MarshalJSON() ([]byte, error) {
	return json.Marshal(suggestionEnvelope{
		Kind:       SuggestionSingle,
		Source:     s.Source,
		Targets:    []CandidateTarget{s.Target},
		Confidence: s.Score,
		Reasons:    s.ReasonCodes,
		Difference: s.Diff,
	})
}

// MarshalJSON encodes the suggestion with its kind discriminator
func (s *CombinationSuggestion) MarshalJSON() ([]byte, error) {
	return json.Marshal(suggestionEnvelope{
		Kind:         SuggestionCombination,
		Source:       s.Source,
		Targets:      s.Members,
		MemberScores: s.MemberScores,
		Confidence:   s.Score,
		Reasons:      s.ReasonCodes,
		Difference:   s.Diff,
		Partial:      s.Partial,
	})
}

// DecodeSuggestion decodes the tagged wire form back into the matching variant
func DecodeSuggestion(data []byte) (Suggestion, error) {
	var env suggestionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode suggestion: %w", err)
	}
	switch env.Kind {
	case SuggestionSingle:
		if len(env.Targets) != 1 {
			return nil, fmt.Errorf("decode suggestion: single suggestion has %d targets", len(env.Targets))
		}
		return &SingleSuggestion{
			Source:      env.Source,
			Target:      env.Targets[0],
			Score:       env.Confidence,
			ReasonCodes: env.Reasons,
			Diff:        env.Difference,
		}, nil
	case SuggestionCombination:
		return &CombinationSuggestion{
			Source:       env.Source,
			Members:      env.Targets,
			MemberScores: env.MemberScores,
			Score:        env.Confidence,
			ReasonCodes:  env.Reasons,
			Diff:         env.Difference,
			Partial:      env.Partial,
		}, nil
	default:
		return nil, fmt.Errorf("decode suggestion: unknown kind %q", env.Kind)
	}
}

// SuggestionSet is the ranked result of one get_suggestions call
type SuggestionSet struct {
	Source RecordRef
	Items  []Suggestion
	// Partial is set when the combination search ran out of budget
	Partial bool
	// Tolerance is the effective policy the suggestions were computed with
	Tolerance ToleranceConfig
}

// Warning returns the TransientError describing a partial result, or nil
func (s *SuggestionSet) Warning() error {
	if s == nil || !s.Partial {
		return nil
	}
	return ErrSearchBudgetExhausted
}

type suggestionSetWire struct {
	Source  RecordRef         `json:"source"`
	Items   []json.RawMessage `json:"items"`
	Partial bool              `json:"partial"`
}

// MarshalJSON encodes the set; tolerance is not part of the cached form
func (s *SuggestionSet) MarshalJSON() ([]byte, error) {
	wire := suggestionSetWire{Source: s.Source, Partial: s.Partial, Items: make([]json.RawMessage, 0, len(s.Items))}
	for _, item := range s.Items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		wire.Items = append(wire.Items, raw)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes a set encoded by MarshalJSON
func (s *SuggestionSet) UnmarshalJSON(data []byte) error {
	var wire suggestionSetWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	items := make([]Suggestion, 0, len(wire.Items))
	for _, raw := range wire.Items {
		item, err := DecodeSuggestion(raw)
		if err != nil {
			return err
		}
		items = append(items, item)
	}
	s.Source = wire.Source
	s.Items = items
	s.Partial = wire.Partial
	return nil
}
