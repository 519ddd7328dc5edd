package matching

import (
	"context"
	"fmt"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Confirm stores a reconciliation link after re-checking tolerance against the
// stored projections. An identical earlier confirm returns the existing link.
func (s *ReconciliationService) Confirm(ctx context.Context, tenantID uuid.UUID, in matching.ConfirmInput) (*ConfirmResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "Confirm",
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrSourceKey, in.Source.Key(),
	)
	defer span.End()

	result, err := s.confirm(ctx, tenantID, in)
	switch {
	case err == nil:
		s.metrics.RecordConfirm(ctx, scopeReco, result.Created)
		telemetry.SetAttributes(span,
			telemetry.SpanAttrLinkID, result.Link.ID.String(),
			telemetry.SpanAttrCreated, result.Created,
		)
	case shared.IsConflict(err):
		s.metrics.RecordConflict(ctx, scopeReco)
	case shared.IsPolicyViolation(err):
		s.metrics.RecordPolicyViolation(ctx, scopeReco)
	}
	telemetry.RecordError(span, err)
	return result, err
}

func (s *ReconciliationService) confirm(ctx context.Context, tenantID uuid.UUID, in matching.ConfirmInput) (*ConfirmResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, lockKeys(tenantID, in.Source, in.Targets)...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// A repeat is answered before projections are re-read, so later upserts cannot turn it into a violation
	active, err := s.links.FindActive(ctx, tenantID, matching.IdempotencyKey(in.Source, in.Targets))
	if err != nil {
		return nil, fmt.Errorf("find active link: %w", err)
	}
	if active != nil {
		s.logger.Info("confirm repeated, returning existing link",
			zap.String("tenant_id", tenantID.String()),
			zap.String("link_id", active.ID.String()),
		)
		return &ConfirmResult{Link: active, Created: false}, nil
	}

	refs := append([]matching.RecordRef{in.Source}, in.Targets...)
	stored, err := s.documents.FindByRefs(ctx, tenantID, refs)
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	byKey := make(map[string]matching.CandidateTarget, len(stored))
	for _, d := range stored {
		byKey[d.Ref().Key()] = d
	}
	sourceDoc, ok := byKey[in.Source.Key()]
	if !ok {
		return nil, shared.NewNotFoundError("source %s not found", in.Source.Key())
	}
	targets := make([]matching.CandidateTarget, len(in.Targets))
	for i, ref := range in.Targets {
		t, ok := byKey[ref.Key()]
		if !ok {
			return nil, shared.NewNotFoundError("target %s not found", ref.Key())
		}
		targets[i] = t
	}

	source := sourceDoc.AsSource()
	tol, err := s.resolver.Resolve(source.CounterpartID, source.ProjectID, matching.ToleranceParams{})
	if err != nil {
		return nil, err
	}
	link, err := matching.NewReconciliationLink(tenantID, in, source, targets, tol, s.clock())
	if err != nil {
		return nil, err
	}

	saved, created, err := s.links.Confirm(ctx, link)
	if err != nil {
		return nil, err
	}
	if !created {
		s.logger.Info("confirm repeated, returning existing link",
			zap.String("tenant_id", tenantID.String()),
			zap.String("link_id", saved.ID.String()),
		)
		return &ConfirmResult{Link: saved, Created: false}, nil
	}

	s.logger.Info("reconciliation link confirmed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("link_id", link.ID.String()),
		zap.String("source_key", link.Source.Key()),
		zap.Int("targets", len(link.Targets)),
		zap.String("difference", link.Difference.String()),
	)
	s.publish(ctx, link)
	return &ConfirmResult{Link: link, Created: true}, nil
}

// Void retires an active link so its source can be reconciled again
func (s *ReconciliationService) Void(ctx context.Context, tenantID uuid.UUID, in VoidInput) (*matching.ReconciliationLink, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "Void",
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrLinkID, in.LinkID.String(),
	)
	defer span.End()

	link, err := s.links.FindByID(ctx, tenantID, in.LinkID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, lockKeys(tenantID, link.Source, nil)...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := link.Void(in.Reason, in.VoidedBy, s.clock()); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.links.Void(ctx, link); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("reconciliation link voided",
		zap.String("tenant_id", tenantID.String()),
		zap.String("link_id", link.ID.String()),
		zap.String("reason", link.VoidReason),
	)
	s.publish(ctx, link)
	return link, nil
}

// ListLinks returns the links of a source, newest first
func (s *ReconciliationService) ListLinks(ctx context.Context, tenantID uuid.UUID, sourceKey string) ([]matching.ReconciliationLink, error) {
	ref, err := matching.ParseRecordRef(sourceKey)
	if err != nil {
		return nil, err
	}
	return s.links.ListBySource(ctx, tenantID, ref.Key())
}

// publish hands the aggregate's events to the bus. A failing subscriber never
// undoes a stored link, so errors are only logged.
func (s *ReconciliationService) publish(ctx context.Context, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	agg.ClearDomainEvents()
	if s.events == nil || len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish domain events", zap.Error(err))
	}
}

func lockKeys(tenantID uuid.UUID, source matching.RecordRef, targets []matching.RecordRef) []string {
	keys := make([]string, 0, len(targets)+1)
	keys = append(keys, "reco:"+tenantID.String()+":"+source.Key())
	for _, t := range targets {
		keys = append(keys, "reco:"+tenantID.String()+":"+t.Key())
	}
	return keys
}
