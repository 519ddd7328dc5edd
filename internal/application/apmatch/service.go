package apmatch

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/erp/reconciliation/internal/domain/apmatch"
	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	serviceName = "APMatchService"
	scopeAP     = string(matching.FeedbackScopeAPMatch)
)

// APMatchService matches purchase invoices to purchase-order lines
type APMatchService struct {
	invoices  apmatch.InvoiceReader
	lines     apmatch.POLineRepository
	links     apmatch.LinkRepository
	resolver  *matching.ToleranceResolver
	suggester *apmatch.Suggester
	validator *apmatch.Validator
	locker    shared.Locker
	events    shared.EventPublisher
	metrics   *telemetry.MatchingMetrics
	clock     shared.Clock
	logger    *zap.Logger
}

// Option configures APMatchService
type Option func(*APMatchService)

// WithMetrics records confirm metrics
func WithMetrics(m *telemetry.MatchingMetrics) Option {
	return func(s *APMatchService) { s.metrics = m }
}

// WithClock overrides the confirmation clock
func WithClock(clock shared.Clock) Option {
	return func(s *APMatchService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewAPMatchService creates a new APMatchService
func NewAPMatchService(
	invoices apmatch.InvoiceReader,
	lines apmatch.POLineRepository,
	links apmatch.LinkRepository,
	resolver *matching.ToleranceResolver,
	suggester *apmatch.Suggester,
	locker shared.Locker,
	events shared.EventPublisher,
	logger *zap.Logger,
	opts ...Option,
) *APMatchService {
	s := &APMatchService{
		invoices:  invoices,
		lines:     lines,
		links:     links,
		resolver:  resolver,
		suggester: suggester,
		validator: apmatch.NewValidator(),
		locker:    locker,
		events:    events,
		clock:     shared.SystemClock,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Suggest ranks purchase orders of the invoice's vendor by how well they absorb
// the amount still open on the invoice
func (s *APMatchService) Suggest(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*SuggestionsResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "Suggest",
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrInvoiceID, invoiceID,
	)
	defer span.End()

	inv, tol, err := s.loadInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	allocated, err := s.links.AllocatedForInvoice(ctx, tenantID, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("load allocations: %w", err)
	}
	open := inv.Amount.Abs().Sub(allocated)

	var suggestions []apmatch.POSuggestion
	if open.IsPositive() {
		lines, err := s.lines.FindOpen(ctx, tenantID, inv.VendorID, inv.Currency)
		if err != nil {
			return nil, fmt.Errorf("load open po lines: %w", err)
		}
		suggestions = s.suggester.Suggest(*inv, open, lines, tol)
	} else {
		suggestions = []apmatch.POSuggestion{}
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrSuggestions, len(suggestions))
	return &SuggestionsResult{
		Invoice:     inv,
		OpenAmount:  decimal.Max(open, decimal.Zero),
		Suggestions: suggestions,
		Tolerance:   tol,
	}, nil
}

// Preview evaluates a proposed link set without storing anything
func (s *APMatchService) Preview(ctx context.Context, tenantID uuid.UUID, req PreviewRequest) (*apmatch.PreviewResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "Preview",
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrInvoiceID, req.InvoiceID,
	)
	defer span.End()

	if err := validateLinks(req.InvoiceID, req.Links); err != nil {
		return nil, err
	}
	preview, err := s.preview(ctx, tenantID, req.InvoiceID, req.Links)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return preview, nil
}

// Confirm stores a link set and updates PO line allocations in one transaction.
// Violations reject the whole set; a repeated identical confirm returns the stored links.
func (s *APMatchService) Confirm(ctx context.Context, tenantID uuid.UUID, req ConfirmRequest) (*ConfirmResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, serviceName, "Confirm",
		telemetry.SpanAttrTenantID, tenantID.String(),
		telemetry.SpanAttrInvoiceID, req.InvoiceID,
		telemetry.SpanAttrBatchSize, len(req.Links),
	)
	defer span.End()

	result, err := s.confirm(ctx, tenantID, req)
	switch {
	case err == nil:
		s.metrics.RecordConfirm(ctx, scopeAP, result.Created)
		telemetry.SetAttributes(span, telemetry.SpanAttrCreated, result.Created)
	case shared.IsConflict(err):
		s.metrics.RecordConflict(ctx, scopeAP)
	case shared.IsPolicyViolation(err):
		s.metrics.RecordPolicyViolation(ctx, scopeAP)
	}
	telemetry.RecordError(span, err)
	return result, err
}

func (s *APMatchService) confirm(ctx context.Context, tenantID uuid.UUID, req ConfirmRequest) (*ConfirmResult, error) {
	if err := validateLinks(req.InvoiceID, req.Links); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, lockKeys(tenantID, req.InvoiceID, req.Links)...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := s.links.ListByInvoice(ctx, tenantID, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("load invoice links: %w", err)
	}
	if prior := matchingBatch(existing, req.Links); prior != nil {
		s.logger.Info("ap confirm repeated, returning existing links",
			zap.String("tenant_id", tenantID.String()),
			zap.String("invoice_id", req.InvoiceID),
		)
		return &ConfirmResult{InvoiceID: req.InvoiceID, Links: prior, Created: false}, nil
	}

	preview, err := s.preview(ctx, tenantID, req.InvoiceID, req.Links)
	if err != nil {
		return nil, err
	}
	batch, err := apmatch.NewLinkBatch(tenantID, preview, req.Confidence, req.Reasons, req.ConfirmedBy, s.clock())
	if err != nil {
		return nil, err
	}

	limit := preview.Tolerances.InvoiceAmount.Abs().Add(preview.Tolerances.AmountTolerance)
	stored, created, err := s.links.ConfirmBatch(ctx, batch, limit)
	if err != nil {
		return nil, err
	}
	if !created {
		return &ConfirmResult{InvoiceID: req.InvoiceID, Links: stored, Created: false}, nil
	}

	s.logger.Info("ap match links confirmed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("invoice_id", req.InvoiceID),
		zap.Int("links", len(stored)),
		zap.String("total", batch.Total().String()),
	)
	s.publish(ctx, batch)
	return &ConfirmResult{InvoiceID: req.InvoiceID, Links: stored, Created: true}, nil
}

// ListLinks returns the stored links of an invoice
func (s *APMatchService) ListLinks(ctx context.Context, tenantID uuid.UUID, invoiceID string) ([]apmatch.ApMatchLink, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, shared.NewValidationError("invoice_id is required")
	}
	return s.links.ListByInvoice(ctx, tenantID, invoiceID)
}

// UpsertPOLines refreshes purchase-order line projections
func (s *APMatchService) UpsertPOLines(ctx context.Context, tenantID uuid.UUID, lines []apmatch.POLine) (int, error) {
	if len(lines) == 0 {
		return 0, shared.NewValidationError("at least one po line is required")
	}
	for _, l := range lines {
		if err := l.Validate(); err != nil {
			return 0, err
		}
	}
	if err := s.lines.Upsert(ctx, tenantID, lines); err != nil {
		return 0, fmt.Errorf("upsert po lines: %w", err)
	}
	return len(lines), nil
}

func (s *APMatchService) loadInvoice(ctx context.Context, tenantID uuid.UUID, invoiceID string) (*apmatch.Invoice, matching.ToleranceConfig, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, matching.ToleranceConfig{}, shared.NewValidationError("invoice_id is required")
	}
	inv, err := s.invoices.FindInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, matching.ToleranceConfig{}, err
	}
	tol, err := s.resolver.Resolve(inv.VendorID, inv.ProjectID, matching.ToleranceParams{})
	if err != nil {
		return nil, matching.ToleranceConfig{}, err
	}
	return inv, tol, nil
}

func (s *APMatchService) preview(ctx context.Context, tenantID uuid.UUID, invoiceID string, proposed []apmatch.ProposedLink) (*apmatch.PreviewResult, error) {
	inv, tol, err := s.loadInvoice(ctx, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	allocated, err := s.links.AllocatedForInvoice(ctx, tenantID, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("load allocations: %w", err)
	}
	lines, err := s.lines.FindByPOs(ctx, tenantID, poIDs(proposed))
	if err != nil {
		return nil, fmt.Errorf("load po lines: %w", err)
	}
	result, err := s.validator.Preview(apmatch.PreviewInput{
		Invoice:             *inv,
		Lines:               lines,
		PreviouslyAllocated: allocated,
		Proposed:            proposed,
		Tolerance:           tol,
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *APMatchService) publish(ctx context.Context, agg shared.AggregateRoot) {
	events := agg.GetDomainEvents()
	agg.ClearDomainEvents()
	if s.events == nil || len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish domain events", zap.Error(err))
	}
}

func validateLinks(invoiceID string, links []apmatch.ProposedLink) error {
	if strings.TrimSpace(invoiceID) == "" {
		return shared.NewValidationError("invoice_id is required")
	}
	if len(links) == 0 {
		return shared.NewValidationError("at least one link is required")
	}
	for _, l := range links {
		if err := l.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func poIDs(links []apmatch.ProposedLink) []string {
	seen := make(map[string]bool, len(links))
	ids := make([]string, 0, len(links))
	for _, l := range links {
		if !seen[l.POID] {
			seen[l.POID] = true
			ids = append(ids, l.POID)
		}
	}
	sort.Strings(ids)
	return ids
}

// lockKeys serializes confirms per invoice and per purchase order
func lockKeys(tenantID uuid.UUID, invoiceID string, links []apmatch.ProposedLink) []string {
	prefix := "ap:" + tenantID.String() + ":"
	keys := []string{prefix + "invoice:" + invoiceID}
	for _, id := range poIDs(links) {
		keys = append(keys, prefix+"po:"+id)
	}
	return keys
}

// matchingBatch returns the stored batch whose links settle exactly the proposed
// amounts. Whole-order proposals compare against the order total of the batch.
func matchingBatch(existing []apmatch.ApMatchLink, proposed []apmatch.ProposedLink) []apmatch.ApMatchLink {
	batches := make(map[uuid.UUID][]apmatch.ApMatchLink)
	order := make([]uuid.UUID, 0)
	for _, l := range existing {
		if _, ok := batches[l.BatchID]; !ok {
			order = append(order, l.BatchID)
		}
		batches[l.BatchID] = append(batches[l.BatchID], l)
	}
	for _, id := range order {
		if sameLinkSet(batches[id], proposed) {
			return batches[id]
		}
	}
	return nil
}

func sameLinkSet(stored []apmatch.ApMatchLink, proposed []apmatch.ProposedLink) bool {
	remaining := make(map[apmatch.LineKey]decimal.Decimal, len(stored))
	for _, l := range stored {
		k := apmatch.LineKey{POID: l.POID, LineID: l.POLineID}
		remaining[k] = remaining[k].Add(l.Amount)
	}

	wholePO := make(map[string]decimal.Decimal)
	for _, p := range proposed {
		if p.POLineID == "" {
			wholePO[p.POID] = wholePO[p.POID].Add(p.Amount)
			continue
		}
		k := apmatch.LineKey{POID: p.POID, LineID: p.POLineID}
		left, ok := remaining[k]
		if !ok || left.LessThan(p.Amount) {
			return false
		}
		remaining[k] = left.Sub(p.Amount)
	}

	byPO := make(map[string]decimal.Decimal)
	for k, v := range remaining {
		if v.IsZero() {
			continue
		}
		byPO[k.POID] = byPO[k.POID].Add(v)
	}
	if len(byPO) != len(wholePO) {
		return false
	}
	for po, amount := range wholePO {
		if !byPO[po].Equal(amount) {
			return false
		}
	}
	return true
}
