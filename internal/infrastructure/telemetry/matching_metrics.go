package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Suggestion outcomes
const (
	OutcomeMatched = "matched"
	OutcomeEmpty   = "empty"
	OutcomePartial = "partial"
	OutcomeError   = "error"
)

// MatchingMetrics holds the instruments of the matching flows. A nil
// *MatchingMetrics is valid and records nothing.
type MatchingMetrics struct {
	suggestions      *Counter
	suggestDuration  *Histogram
	searchNodes      *Histogram
	searchExhausted  *Counter
	cacheLookups     *Counter
	linksConfirmed   *Counter
	linkConflicts    *Counter
	policyViolations *Counter
	feedbackEvents   *Counter
	aliasPromotions  *Counter
}

// NewMatchingMetrics creates the matching instruments on meter
func NewMatchingMetrics(meter metric.Meter) (*MatchingMetrics, error) {
	m := &MatchingMetrics{}
	var err error

	counters := []struct {
		dst  **Counter
		name string
		desc string
		unit string
	}{
		{&m.suggestions, "matching_suggestions_total", "Suggestion requests by source kind and outcome", "{request}"},
		{&m.searchExhausted, "matching_search_exhausted_total", "Combination searches that hit their node or time budget", "{search}"},
		{&m.cacheLookups, "matching_cache_lookups_total", "Suggestion cache lookups by result", "{lookup}"},
		{&m.linksConfirmed, "matching_links_confirmed_total", "Confirm calls by scope and whether a link was created", "{link}"},
		{&m.linkConflicts, "matching_link_conflicts_total", "Confirms rejected because a record is already reconciled", "{conflict}"},
		{&m.policyViolations, "matching_policy_violations_total", "Confirms rejected by tolerance or capacity rules", "{violation}"},
		{&m.feedbackEvents, "matching_feedback_events_total", "Recorded feedback events by scope and outcome", "{event}"},
		{&m.aliasPromotions, "matching_alias_promotions_total", "Alias candidates promoted to rules", "{alias}"},
	}
	for _, c := range counters {
		if *c.dst, err = NewCounter(meter, c.name, c.desc, c.unit); err != nil {
			return nil, err
		}
	}

	if m.suggestDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "matching_suggest_duration_seconds",
		Description: "Latency of get_suggestions including the combination search",
		Unit:        "s",
		Boundaries:  SearchDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.searchNodes, err = NewHistogram(meter, HistogramOpts{
		Name:        "matching_search_nodes",
		Description: "Nodes expanded per combination search",
		Unit:        "{node}",
		Boundaries:  []float64{10, 100, 1000, 10000, 50000, 100000, 500000},
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordSuggest records one suggestion request
func (m *MatchingMetrics) RecordSuggest(ctx context.Context, sourceKind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrSourceKind.String(sourceKind), AttrOutcome.String(outcome)}
	m.suggestions.Inc(ctx, attrs...)
	m.suggestDuration.RecordDuration(ctx, d, AttrSourceKind.String(sourceKind))
}

// RecordSearch records the work of one combination search
func (m *MatchingMetrics) RecordSearch(ctx context.Context, strategy string, nodes int, exhausted bool) {
	if m == nil {
		return
	}
	m.searchNodes.Record(ctx, float64(nodes), AttrStrategy.String(strategy))
	if exhausted {
		m.searchExhausted.Inc(ctx, AttrStrategy.String(strategy))
	}
}

// RecordCacheLookup records a suggestion cache hit or miss
func (m *MatchingMetrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Inc(ctx, AttrCache.String(result))
}

// RecordConfirm records a successful confirm
func (m *MatchingMetrics) RecordConfirm(ctx context.Context, scope string, created bool) {
	if m == nil {
		return
	}
	m.linksConfirmed.Inc(ctx, AttrScope.String(scope), attribute.Bool("created", created))
}

// RecordConflict records a confirm lost to an existing link
func (m *MatchingMetrics) RecordConflict(ctx context.Context, scope string) {
	if m == nil {
		return
	}
	m.linkConflicts.Inc(ctx, AttrScope.String(scope))
}

// RecordPolicyViolation records a confirm rejected by policy
func (m *MatchingMetrics) RecordPolicyViolation(ctx context.Context, scope string) {
	if m == nil {
		return
	}
	m.policyViolations.Inc(ctx, AttrScope.String(scope))
}

// RecordFeedback records one feedback event
func (m *MatchingMetrics) RecordFeedback(ctx context.Context, scope string, accepted bool) {
	if m == nil {
		return
	}
	m.feedbackEvents.Inc(ctx, AttrScope.String(scope), attribute.Bool("accepted", accepted))
}

// RecordAliasPromotions adds n promoted aliases
func (m *MatchingMetrics) RecordAliasPromotions(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.aliasPromotions.Add(ctx, int64(n))
}
