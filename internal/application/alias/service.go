package alias

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/reconciliation/internal/domain/alias"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	serviceName = "AliasService"

	// DefaultMinHits is the hit count at which a candidate becomes a rule
	DefaultMinHits int64 = 3

	defaultListLimit = 50
	maxListLimit     = 500
)

// RecordHitResult is the candidate after a hit and whether the hit promoted it
type RecordHitResult struct {
	Candidate *alias.Candidate
	Promoted  bool
}

// ListResult is one page of candidates
type ListResult struct {
	Items []alias.Candidate
	Total int64
}

// AliasService learns description patterns from confirmed matches
type AliasService struct {
	repo    alias.Repository
	events  shared.EventPublisher
	metrics *telemetry.MatchingMetrics
	minHits int64
	clock   shared.Clock
	logger  *zap.Logger
}

// NewAliasService creates a new AliasService. minHits <= 0 uses DefaultMinHits.
func NewAliasService(repo alias.Repository, events shared.EventPublisher, metrics *telemetry.MatchingMetrics, minHits int64, clock shared.Clock, logger *zap.Logger) *AliasService {
	if minHits <= 0 {
		minHits = DefaultMinHits
	}
	if clock == nil {
		clock = shared.SystemClock
	}
	return &AliasService{
		repo:    repo,
		events:  events,
		metrics: metrics,
		minHits: minHits,
		clock:   clock,
		logger:  logger,
	}
}

// MinHits returns the configured promotion threshold
func (s *AliasService) MinHits() int64 {
	return s.minHits
}

// RecordHit counts one match of a pattern to a target and promotes the
// candidate as soon as it reaches the threshold
func (s *AliasService) RecordHit(ctx context.Context, tenantID uuid.UUID, in alias.HitInput) (*RecordHitResult, error) {
	hit, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "RecordHit",
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrAliasPattern, hit.Pattern,
	)
	defer span.End()

	now := s.clock()
	candidate, err := s.repo.RecordHit(ctx, tenantID, hit.Pattern, hit.TargetID, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("record alias hit: %w", err)
	}
	if !candidate.Eligible(s.minHits) {
		return &RecordHitResult{Candidate: candidate}, nil
	}

	only := candidate.ID
	promoted, err := s.promote(ctx, tenantID, s.minHits, &only, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(promoted) == 0 {
		// promoted concurrently by another hit
		return &RecordHitResult{Candidate: candidate}, nil
	}
	return &RecordHitResult{Candidate: &promoted[0], Promoted: true}, nil
}

// CheckPromotion promotes every candidate at or above minHits. A nil minHits
// uses the configured threshold.
func (s *AliasService) CheckPromotion(ctx context.Context, tenantID uuid.UUID, minHits *int64) ([]alias.Candidate, error) {
	threshold := s.minHits
	if minHits != nil {
		if *minHits < 1 {
			return nil, shared.NewValidationError("min_hits must be at least 1")
		}
		threshold = *minHits
	}
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "CheckPromotion",
		telemetry.SpanAttrTenantID, tenantID.String(),
	)
	defer span.End()

	promoted, err := s.promote(ctx, tenantID, threshold, nil, s.clock())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return promoted, nil
}

// List pages through candidates, most frequent first
func (s *AliasService) List(ctx context.Context, tenantID uuid.UUID, filter alias.ListFilter) (*ListResult, error) {
	if filter.MinHits != nil && *filter.MinHits < 0 {
		return nil, shared.NewValidationError("min_hits must not be negative")
	}
	if filter.Offset < 0 {
		return nil, shared.NewValidationError("offset must not be negative")
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultListLimit
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	items, total, err := s.repo.List(ctx, tenantID, filter)
	if err != nil {
		return nil, fmt.Errorf("list alias candidates: %w", err)
	}
	return &ListResult{Items: items, Total: total}, nil
}

func (s *AliasService) promote(ctx context.Context, tenantID uuid.UUID, minHits int64, only *uuid.UUID, at time.Time) ([]alias.Candidate, error) {
	promoted, err := s.repo.Promote(ctx, tenantID, minHits, only, at)
	if err != nil {
		return nil, fmt.Errorf("promote alias candidates: %w", err)
	}
	if len(promoted) == 0 {
		return promoted, nil
	}

	events := make([]shared.DomainEvent, len(promoted))
	for i := range promoted {
		events[i] = alias.NewPatternPromotedEvent(&promoted[i])
	}
	s.metrics.RecordAliasPromotions(ctx, len(promoted))
	if s.events != nil {
		if err := s.events.Publish(ctx, events...); err != nil {
			s.logger.Error("failed to publish domain events", zap.Error(err))
		}
	}
	return promoted, nil
}
