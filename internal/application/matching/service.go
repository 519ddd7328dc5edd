package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName = "ReconciliationService"
	scopeReco   = string(matching.FeedbackScopeReconciliation)

	defaultBatchMaxItems = 100
	defaultBatchWorkers  = 4
)

// ReconciliationService computes suggestions and manages reconciliation links
type ReconciliationService struct {
	engine    *matching.Engine
	resolver  *matching.ToleranceResolver
	documents matching.DocumentRepository
	links     matching.LinkRepository
	locker    shared.Locker
	events    shared.EventPublisher
	cache     SuggestionCache
	metrics   *telemetry.MatchingMetrics
	clock     shared.Clock
	logger    *zap.Logger

	batchMaxItems int
	batchWorkers  int
}

// ServiceOption configures ReconciliationService
type ServiceOption func(*ReconciliationService)

// WithSuggestionCache caches complete suggestion sets
func WithSuggestionCache(cache SuggestionCache) ServiceOption {
	return func(s *ReconciliationService) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithMetrics records matching metrics
func WithMetrics(m *telemetry.MatchingMetrics) ServiceOption {
	return func(s *ReconciliationService) {
		s.metrics = m
	}
}

// WithClock overrides the confirmation clock
func WithClock(clock shared.Clock) ServiceOption {
	return func(s *ReconciliationService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithBatchLimits bounds batch suggestion calls
func WithBatchLimits(maxItems, workers int) ServiceOption {
	return func(s *ReconciliationService) {
		if maxItems > 0 {
			s.batchMaxItems = maxItems
		}
		if workers > 0 {
			s.batchWorkers = workers
		}
	}
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	engine *matching.Engine,
	resolver *matching.ToleranceResolver,
	documents matching.DocumentRepository,
	links matching.LinkRepository,
	locker shared.Locker,
	events shared.EventPublisher,
	logger *zap.Logger,
	opts ...ServiceOption,
) *ReconciliationService {
	s := &ReconciliationService{
		engine:        engine,
		resolver:      resolver,
		documents:     documents,
		links:         links,
		locker:        locker,
		events:        events,
		cache:         noCache{},
		clock:         shared.SystemClock,
		logger:        logger,
		batchMaxItems: defaultBatchMaxItems,
		batchWorkers:  defaultBatchWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Suggest ranks single and combination suggestions for one source record.
// An exhausted search budget yields a partial result with a warning, not an error.
func (s *ReconciliationService) Suggest(ctx context.Context, tenantID uuid.UUID, req SuggestionsRequest) (*SuggestionsResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "Suggest",
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrSourceKey, req.Source.Ref().Key(),
	)
	defer span.End()

	started := time.Now()
	result, err := s.suggest(ctx, tenantID, req)
	outcome := telemetry.OutcomeError
	switch {
	case err != nil:
		telemetry.RecordError(span, err)
	case result.Set.Partial:
		outcome = telemetry.OutcomePartial
	case len(result.Set.Items) == 0:
		outcome = telemetry.OutcomeEmpty
	default:
		outcome = telemetry.OutcomeMatched
	}
	s.metrics.RecordSuggest(ctx, string(req.Source.Kind), outcome, time.Since(started))
	if err != nil {
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrSuggestions, len(result.Set.Items),
		telemetry.SpanAttrPartial, result.Set.Partial,
		telemetry.SpanAttrCacheHit, result.CacheHit,
	)
	return result, nil
}

func (s *ReconciliationService) suggest(ctx context.Context, tenantID uuid.UUID, req SuggestionsRequest) (*SuggestionsResult, error) {
	source := req.Source
	if err := source.Validate(); err != nil {
		return nil, err
	}
	tol, err := s.resolver.Resolve(source.CounterpartID, source.ProjectID, matching.ToleranceParams{
		AmountTolPct:   req.AmountTolPct,
		DateWindowDays: req.DateWindowDays,
	})
	if err != nil {
		return nil, err
	}
	kinds, err := matching.ResolveTargetKinds(source.Kind, req.TargetKinds, tol)
	if err != nil {
		return nil, err
	}

	key := suggestionCacheKey(source, kinds, tol)
	cached, hit, err := s.cache.Get(ctx, tenantID, key)
	if err != nil {
		s.logger.Warn("suggestion cache lookup failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
	s.metrics.RecordCacheLookup(ctx, hit)
	if hit {
		// cached sets are shared between callers
		out := *cached
		out.Tolerance = tol
		return &SuggestionsResult{Set: &out, CacheHit: true}, nil
	}

	var (
		set   *matching.SuggestionSet
		combo matching.CombinationResult
	)
	labels := telemetry.OperationLabels("suggest", map[string]string{
		telemetry.ProfilingLabelSourceKind: string(source.Kind),
	})
	telemetry.WithProfilingLabels(ctx, labels, func(c context.Context) {
		set, combo, err = s.engine.Suggest(c, matching.SuggestRequest{
			TenantID:    tenantID,
			Source:      source,
			TargetKinds: kinds,
			Tolerance:   tol,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("suggest for %s: %w", source.Ref(), err)
	}
	if combo.Strategy != "" {
		s.metrics.RecordSearch(ctx, combo.Strategy, combo.Nodes, combo.Exhausted)
	}

	if set.Partial {
		s.logger.Warn("combination search budget exhausted",
			zap.String("tenant_id", tenantID.String()),
			zap.String("source_key", source.Ref().Key()),
			zap.Int("nodes", combo.Nodes),
			zap.Duration("elapsed", combo.Elapsed),
		)
	} else if err := s.cache.Set(ctx, tenantID, key, set); err != nil {
		s.logger.Warn("suggestion cache store failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
	return &SuggestionsResult{Set: set, Warning: set.Warning()}, nil
}

// SuggestBatch runs Suggest for many sources concurrently. Per-item failures are
// reported on the item; only cancellation fails the whole batch.
func (s *ReconciliationService) SuggestBatch(ctx context.Context, tenantID uuid.UUID, reqs []SuggestionsRequest) ([]BatchItem, error) {
	if len(reqs) == 0 {
		return nil, shared.NewValidationError("at least one source is required")
	}
	if len(reqs) > s.batchMaxItems {
		return nil, shared.NewValidationError("a batch holds at most %d sources, got %d", s.batchMaxItems, len(reqs))
	}

	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "SuggestBatch",
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrBatchSize, len(reqs),
	)
	defer span.End()

	items := make([]BatchItem, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchWorkers)
	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := s.Suggest(gctx, tenantID, req)
			items[i] = BatchItem{Index: i, Result: result, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, shared.NewTransientError("batch suggestions interrupted: %v", err)
	}
	return items, nil
}

// UpsertDocuments refreshes document projections and drops the tenant's cached suggestions
func (s *ReconciliationService) UpsertDocuments(ctx context.Context, tenantID uuid.UUID, docs []matching.CandidateTarget) (int, error) {
	if len(docs) == 0 {
		return 0, shared.NewValidationError("at least one document is required")
	}
	for i, d := range docs {
		if err := d.AsSource().Validate(); err != nil {
			return 0, shared.NewValidationError("document %d: %s", i, err.Error())
		}
		if d.ID == "" {
			return 0, shared.NewValidationError("document %d: id is required", i)
		}
	}
	if err := s.documents.Upsert(ctx, tenantID, docs); err != nil {
		return 0, fmt.Errorf("upsert documents: %w", err)
	}
	s.invalidate(ctx, tenantID)
	return len(docs), nil
}

func (s *ReconciliationService) invalidate(ctx context.Context, tenantID uuid.UUID) {
	if err := s.cache.InvalidateTenant(ctx, tenantID); err != nil {
		s.logger.Warn("suggestion cache invalidation failed", zap.String("tenant_id", tenantID.String()), zap.Error(err))
	}
}

type noCache struct{}

func (noCache) Get(context.Context, uuid.UUID, string) (*matching.SuggestionSet, bool, error) {
	return nil, false, nil
}
func (noCache) Set(context.Context, uuid.UUID, string, *matching.SuggestionSet) error { return nil }
func (noCache) InvalidateTenant(context.Context, uuid.UUID) error                   { return nil }
