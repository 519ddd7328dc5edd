package matching

import (
	"fmt"
	"strings"

	"github.com/erp/reconciliation/internal/domain/shared"
)

// RecordKind identifies the layer a financial record comes from
type RecordKind string

const (
	KindBankMovement    RecordKind = "bank_movement"
	KindPurchaseInvoice RecordKind = "purchase_invoice"
	KindSalesInvoice    RecordKind = "sales_invoice"
	KindExpense         RecordKind = "expense"
	KindPayroll         RecordKind = "payroll"
	KindTax             RecordKind = "tax"
)

// IsValid checks if the kind is one of the known record layers
func (k RecordKind) IsValid() bool {
	switch k {
	case KindBankMovement, KindPurchaseInvoice, KindSalesInvoice, KindExpense, KindPayroll, KindTax:
		return true
	}
	return false
}

// String returns the string representation
func (k RecordKind) String() string {
	return string(k)
}

// AllRecordKinds returns every known record kind
func AllRecordKinds() []RecordKind {
	return []RecordKind{
		KindBankMovement,
		KindPurchaseInvoice,
		KindSalesInvoice,
		KindExpense,
		KindPayroll,
		KindTax,
	}
}

// ParseRecordKind parses a kind, returning a ValidationError for unknown values
func ParseRecordKind(s string) (RecordKind, error) {
	k := RecordKind(strings.TrimSpace(strings.ToLower(s)))
	if !k.IsValid() {
		return "", shared.NewValidationError("unknown record kind %q", s)
	}
	return k, nil
}

// allowedTargets lists which layers a source may be matched against.
// Bank movements settle documents; every document settles through the bank.
var allowedTargets = map[RecordKind][]RecordKind{
	KindBankMovement:    {KindPurchaseInvoice, KindSalesInvoice, KindExpense, KindPayroll, KindTax},
	KindPurchaseInvoice: {KindBankMovement},
	KindSalesInvoice:    {KindBankMovement},
	KindExpense:         {KindBankMovement},
	KindPayroll:         {KindBankMovement},
	KindTax:             {KindBankMovement},
}

// AllowedTargetKinds returns the target kinds a source kind can be matched against
func AllowedTargetKinds(source RecordKind) []RecordKind {
	return allowedTargets[source]
}

// CanTarget reports whether source records may be matched against target records
func CanTarget(source, target RecordKind) bool {
	for _, k := range allowedTargets[source] {
		if k == target {
			return true
		}
	}
	return false
}

// RecordRef identifies a record across layers
type RecordRef struct {
	Kind RecordKind `json:"kind"`
	ID   string     `json:"id"`
}

// Key returns the canonical "kind:id" form used for idempotency and locking
func (r RecordRef) Key() string {
	return string(r.Kind) + ":" + r.ID
}

// String implements fmt.Stringer
func (r RecordRef) String() string {
	return r.Key()
}

// Validate checks the reference is well formed
func (r RecordRef) Validate() error {
	if !r.Kind.IsValid() {
		return shared.NewValidationError("unknown record kind %q", r.Kind)
	}
	if strings.TrimSpace(r.ID) == "" {
		return shared.NewValidationError("record id is required for kind %s", r.Kind)
	}
	return nil
}

// ParseRecordRef parses a "kind:id" key
func ParseRecordRef(key string) (RecordRef, error) {
	kind, id, ok := strings.Cut(key, ":")
	if !ok {
		return RecordRef{}, shared.NewValidationError("record key %q must have the form kind:id", key)
	}
	ref := RecordRef{Kind: RecordKind(kind), ID: id}
	if err := ref.Validate(); err != nil {
		return RecordRef{}, fmt.Errorf("parse record key %q: %w", key, err)
	}
	return ref, nil
}
