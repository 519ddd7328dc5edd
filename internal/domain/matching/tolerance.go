package matching

import (
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var (
	defaultAmountTolPct = decimal.NewFromFloat(0.01)
	defaultNarrowTolPct = decimal.NewFromFloat(0.001)
)

// ToleranceConfig is the policy applied to one matching call
type ToleranceConfig struct {
	// AmountTolPct is the relative amount tolerance, 0.01 means 1%
	AmountTolPct decimal.Decimal
	// NarrowTolPct is the band that earns the narrow-amount signal
	NarrowTolPct decimal.Decimal
	// DateWindowDays is the +/- window around the source date
	DateWindowDays int
	// SourceLayerOrder ranks target kinds; it breaks score ties and is the default target set
	SourceLayerOrder []RecordKind
}

// DefaultToleranceConfig returns the built-in policy
func DefaultToleranceConfig() ToleranceConfig {
	return ToleranceConfig{
		AmountTolPct:   defaultAmountTolPct,
		NarrowTolPct:   defaultNarrowTolPct,
		DateWindowDays: 15,
		SourceLayerOrder: []RecordKind{
			KindPurchaseInvoice,
			KindSalesInvoice,
			KindExpense,
			KindPayroll,
			KindTax,
			KindBankMovement,
		},
	}
}

// Validate checks the policy is usable
func (c ToleranceConfig) Validate() error {
	if c.AmountTolPct.IsNegative() {
		return shared.NewValidationError("amount tolerance must not be negative")
	}
	if c.NarrowTolPct.IsNegative() {
		return shared.NewValidationError("narrow tolerance must not be negative")
	}
	if c.DateWindowDays < 0 {
		return shared.NewValidationError("date window must not be negative")
	}
	for _, k := range c.SourceLayerOrder {
		if !k.IsValid() {
			return shared.NewValidationError("unknown record kind %q in source layer order", k)
		}
	}
	return nil
}

// Tolerance returns the absolute amount tolerance for an amount: pct * max(|amount|, 1)
func (c ToleranceConfig) Tolerance(amount decimal.Decimal) decimal.Decimal {
	return c.AmountTolPct.Mul(decimal.Max(amount.Abs(), decimal.NewFromInt(1)))
}

// NarrowTolerance returns the absolute narrow band for an amount
func (c ToleranceConfig) NarrowTolerance(amount decimal.Decimal) decimal.Decimal {
	narrow := c.NarrowTolPct
	if narrow.GreaterThan(c.AmountTolPct) {
		narrow = c.AmountTolPct
	}
	return narrow.Mul(decimal.Max(amount.Abs(), decimal.NewFromInt(1)))
}

// WithinTolerance reports whether two magnitudes differ by no more than the tolerance of source
func (c ToleranceConfig) WithinTolerance(source, total decimal.Decimal) bool {
	return source.Abs().Sub(total.Abs()).Abs().LessThanOrEqual(c.Tolerance(source))
}

// LayerRank returns the position of kind in SourceLayerOrder, or len when absent
func (c ToleranceConfig) LayerRank(kind RecordKind) int {
	for i, k := range c.SourceLayerOrder {
		if k == kind {
			return i
		}
	}
	return len(c.SourceLayerOrder)
}

// ToleranceOverride replaces parts of the policy for one counterpart (vendor) or project
type ToleranceOverride struct {
	CounterpartID  string
	ProjectID      string
	AmountTolPct   *decimal.Decimal
	DateWindowDays *int
}

func (o ToleranceOverride) matches(counterpartID, projectID string) bool {
	if o.CounterpartID == "" && o.ProjectID == "" {
		return false
	}
	if o.CounterpartID != "" && o.CounterpartID != counterpartID {
		return false
	}
	if o.ProjectID != "" && o.ProjectID != projectID {
		return false
	}
	return true
}

// specificity orders overrides: project < counterpart < counterpart+project
func (o ToleranceOverride) specificity() int {
	s := 0
	if o.ProjectID != "" {
		s++
	}
	if o.CounterpartID != "" {
		s += 2
	}
	return s
}

// ToleranceParams are the per-request knobs of get_suggestions
type ToleranceParams struct {
	AmountTolPct   *decimal.Decimal
	DateWindowDays *int
}

// ToleranceResolver builds the effective policy for a call
type ToleranceResolver struct {
	defaults  ToleranceConfig
	overrides []ToleranceOverride
}

// NewToleranceResolver creates a resolver from defaults and overrides
func NewToleranceResolver(defaults ToleranceConfig, overrides ...ToleranceOverride) *ToleranceResolver {
	return &ToleranceResolver{defaults: defaults, overrides: overrides}
}

// Defaults returns the base policy
func (r *ToleranceResolver) Defaults() ToleranceConfig {
	return r.defaults
}

// Resolve applies matching overrides from least to most specific, then request params
func (r *ToleranceResolver) Resolve(counterpartID, projectID string, params ToleranceParams) (ToleranceConfig, error) {
	cfg := r.defaults
	cfg.SourceLayerOrder = append([]RecordKind(nil), r.defaults.SourceLayerOrder...)

	for level := 1; level <= 3; level++ {
		for _, o := range r.overrides {
			if o.specificity() != level || !o.matches(counterpartID, projectID) {
				continue
			}
			if o.AmountTolPct != nil {
				cfg.AmountTolPct = *o.AmountTolPct
			}
			if o.DateWindowDays != nil {
				cfg.DateWindowDays = *o.DateWindowDays
			}
		}
	}

	if params.AmountTolPct != nil {
		cfg.AmountTolPct = *params.AmountTolPct
	}
	if params.DateWindowDays != nil {
		cfg.DateWindowDays = *params.DateWindowDays
	}
	if err := cfg.Validate(); err != nil {
		return ToleranceConfig{}, err
	}
	return cfg, nil
}
