package matching

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LinkStatus is the lifecycle state of a reconciliation link
type LinkStatus string

const (
	LinkStatusActive LinkStatus = "active"
	LinkStatusVoided LinkStatus = "voided"
)

// IsValid checks if the status is valid
func (s LinkStatus) IsValid() bool {
	return s == LinkStatusActive || s == LinkStatusVoided
}

// LinkTarget is one document settled by a link
type LinkTarget struct {
	Ref           RecordRef
	Amount        decimal.Decimal
	CounterpartID string
}

// ReconciliationLink records a confirmed match of one source to one or more targets.
// Its content never changes after confirmation; voiding only retires it.
type ReconciliationLink struct {
	shared.TenantAggregateRoot
	Source         RecordRef
	SourceAmount   decimal.Decimal
	Targets        []LinkTarget
	Amount         decimal.Decimal // sum of target magnitudes
	Difference     decimal.Decimal // Amount - |SourceAmount|
	Confidence     float64
	Reasons        []ReasonCode
	Metadata       map[string]string
	IdempotencyKey string
	Status         LinkStatus
	ConfirmedAt    time.Time
	ConfirmedBy    string
	VoidedAt       *time.Time
	VoidedBy       string
	VoidReason     string
}

// ConfirmInput is the full link set of one confirm_reconcile call
type ConfirmInput struct {
	Source      RecordRef
	Targets     []RecordRef
	Confidence  float64
	Reasons     []ReasonCode
	Metadata    map[string]string
	ConfirmedBy string
}

// Validate checks the request shape before any lookup
func (in ConfirmInput) Validate() error {
	if err := in.Source.Validate(); err != nil {
		return err
	}
	if len(in.Targets) == 0 {
		return shared.NewValidationError("at least one target is required")
	}
	seen := make(map[string]bool, len(in.Targets))
	for _, t := range in.Targets {
		if err := t.Validate(); err != nil {
			return err
		}
		if t == in.Source {
			return shared.NewValidationError("a record cannot be reconciled with itself")
		}
		if !CanTarget(in.Source.Kind, t.Kind) {
			return shared.NewValidationError("%s records cannot be matched against %s", in.Source.Kind, t.Kind)
		}
		if seen[t.Key()] {
			return shared.NewValidationError("target %s is listed twice", t.Key())
		}
		seen[t.Key()] = true
	}
	if in.Confidence < 0 || in.Confidence > 1 {
		return shared.NewValidationError("confidence must be between 0 and 1")
	}
	for _, r := range in.Reasons {
		if !r.IsValid() {
			return shared.NewValidationError("unknown reason code %d", int(r))
		}
	}
	return nil
}

// IdempotencyKey returns sha256(source_key | sorted target keys)
func IdempotencyKey(source RecordRef, targets []RecordRef) string {
	keys := make([]string, len(targets))
	for i, t := range targets {
		keys[i] = t.Key()
	}
	sort.Strings(keys)
	sum := sha256.Sum256([]byte(source.Key() + "|" + strings.Join(keys, ",")))
	return hex.EncodeToString(sum[:])
}

// ToleranceBreach is the detail of a PolicyViolation raised at confirm time
type ToleranceBreach struct {
	SourceKey    string          `json:"source_key"`
	SourceAmount decimal.Decimal `json:"source_amount"`
	TargetsTotal decimal.Decimal `json:"targets_total"`
	Difference   decimal.Decimal `json:"difference"`
	Tolerance    decimal.Decimal `json:"tolerance"`
}

// NewReconciliationLink builds a link from the stored source and targets. It rejects
// a target sum outside tolerance with a PolicyViolation.
func NewReconciliationLink(
	tenantID uuid.UUID,
	in ConfirmInput,
	source SourceRecord,
	targets []CandidateTarget,
	tol ToleranceConfig,
	now time.Time,
) (*ReconciliationLink, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if len(targets) != len(in.Targets) {
		return nil, shared.NewNotFoundError("some targets of %s no longer exist", in.Source.Key())
	}

	total := decimal.Zero
	linkTargets := make([]LinkTarget, len(targets))
	for i, t := range targets {
		if !sameCurrency(source.Currency, t.Currency) {
			return nil, shared.NewPolicyViolation("target currency differs from source currency", map[string]string{
				"source_key":      source.Ref().Key(),
				"target_key":      t.Ref().Key(),
				"source_currency": source.Currency,
				"target_currency": t.Currency,
			})
		}
		total = total.Add(t.Magnitude())
		linkTargets[i] = LinkTarget{Ref: t.Ref(), Amount: t.Amount, CounterpartID: t.CounterpartID}
	}

	diff := total.Sub(source.Magnitude())
	if !tol.WithinTolerance(source.Amount, total) {
		return nil, shared.NewPolicyViolation("targets do not add up to the source amount within tolerance", ToleranceBreach{
			SourceKey:    source.Ref().Key(),
			SourceAmount: source.Amount,
			TargetsTotal: total,
			Difference:   diff,
			Tolerance:    tol.Tolerance(source.Amount),
		})
	}

	reasons := append([]ReasonCode(nil), in.Reasons...)
	metadata := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		metadata[k] = v
	}

	link := &ReconciliationLink{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID, now),
		Source:              in.Source,
		SourceAmount:        source.Amount,
		Targets:             linkTargets,
		Amount:              total,
		Difference:          diff,
		Confidence:          in.Confidence,
		Reasons:             reasons,
		Metadata:            metadata,
		IdempotencyKey:      IdempotencyKey(in.Source, in.Targets),
		Status:              LinkStatusActive,
		ConfirmedAt:         now,
		ConfirmedBy:         in.ConfirmedBy,
	}
	link.AddDomainEvent(NewLinkConfirmedEvent(link))
	return link, nil
}

// IsActive reports whether the link still reconciles its source
func (l *ReconciliationLink) IsActive() bool {
	return l.Status == LinkStatusActive
}

// TargetRefs returns the references of the linked targets
func (l *ReconciliationLink) TargetRefs() []RecordRef {
	refs := make([]RecordRef, len(l.Targets))
	for i, t := range l.Targets {
		refs[i] = t.Ref
	}
	return refs
}

// Void retires an active link so its source can be reconciled again
func (l *ReconciliationLink) Void(reason, by string, now time.Time) error {
	if !l.IsActive() {
		return shared.NewConflictError("link %s is already voided", l.ID)
	}
	if strings.TrimSpace(reason) == "" {
		return shared.NewValidationError("a void reason is required")
	}
	l.Status = LinkStatusVoided
	l.VoidedAt = &now
	l.VoidedBy = by
	l.VoidReason = reason
	l.AddDomainEvent(NewLinkVoidedEvent(l))
	return nil
}
