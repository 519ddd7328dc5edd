package alias

import (
	"regexp"
	"strings"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
)

// Event types of the alias learner
const (
	EventTypePatternPromoted = "alias.pattern_promoted"
	AggregateTypeCandidate   = "AliasCandidate"
)

// longDigitRun matches folios and transaction numbers that differ on every movement
var longDigitRun = regexp.MustCompile(`\d{5,}`)

// NormalizePattern reduces a free-text description to a stable pattern:
// accents folded, lower case, punctuation removed and long digit runs replaced by #
func NormalizePattern(raw string) string {
	folded := shared.FoldText(raw)
	folded = longDigitRun.ReplaceAllString(folded, "#")
	return strings.Join(strings.Fields(folded), " ")
}

// Candidate counts how often a text pattern was matched to the same target
type Candidate struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Pattern    string
	TargetID   string
	Hits       int64
	LastHitAt  time.Time
	PromotedAt *time.Time
	CreatedAt  time.Time
}

// IsPromoted reports whether the candidate became a rule
func (c *Candidate) IsPromoted() bool {
	return c.PromotedAt != nil
}

// Eligible reports whether the candidate should be promoted at minHits
func (c *Candidate) Eligible(minHits int64) bool {
	return !c.IsPromoted() && c.Hits >= minHits
}

// Promote marks the candidate as a rule. Promotion is one-way; an already
// promoted candidate keeps its original timestamp.
func (c *Candidate) Promote(now time.Time) bool {
	if c.IsPromoted() {
		return false
	}
	c.PromotedAt = &now
	return true
}

// HitInput is one observation of a pattern being matched to a target
type HitInput struct {
	Pattern  string
	TargetID string
}

// Normalize validates the input and returns it with a normalized pattern
func (in HitInput) Normalize() (HitInput, error) {
	pattern := NormalizePattern(in.Pattern)
	if pattern == "" {
		return HitInput{}, shared.NewValidationError("pattern must contain letters or digits")
	}
	target := strings.TrimSpace(in.TargetID)
	if target == "" {
		return HitInput{}, shared.NewValidationError("target_id is required")
	}
	return HitInput{Pattern: pattern, TargetID: target}, nil
}

// PatternPromotedEvent is raised when a candidate becomes a rule
type PatternPromotedEvent struct {
	shared.BaseDomainEvent
	CandidateID uuid.UUID `json:"candidate_id"`
	Pattern     string    `json:"pattern"`
	TargetID    string    `json:"target_id"`
	Hits        int64     `json:"hits"`
}

// NewPatternPromotedEvent creates a new PatternPromotedEvent
func NewPatternPromotedEvent(c *Candidate) *PatternPromotedEvent {
	at := time.Now()
	if c.PromotedAt != nil {
		at = *c.PromotedAt
	}
	return &PatternPromotedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePatternPromoted, AggregateTypeCandidate, c.ID, c.TenantID, at),
		CandidateID:     c.ID,
		Pattern:         c.Pattern,
		TargetID:        c.TargetID,
		Hits:            c.Hits,
	}
}
