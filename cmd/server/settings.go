package main

import (
	"fmt"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/infrastructure/config"
	"github.com/shopspring/decimal"
)

// toleranceFromConfig builds the tenant-wide policy and its per counterpart or project overrides
func toleranceFromConfig(cfg config.MatchingConfig) (matching.ToleranceConfig, []matching.ToleranceOverride, error) {
	tol := matching.DefaultToleranceConfig()
	tol.AmountTolPct = decimal.NewFromFloat(cfg.AmountTolPct)
	tol.NarrowTolPct = decimal.NewFromFloat(cfg.NarrowTolPct)
	tol.DateWindowDays = cfg.DateWindowDays

	if len(cfg.SourceLayerOrder) > 0 {
		order := make([]matching.RecordKind, 0, len(cfg.SourceLayerOrder))
		for _, raw := range cfg.SourceLayerOrder {
			k, err := matching.ParseRecordKind(raw)
			if err != nil {
				return matching.ToleranceConfig{}, nil, fmt.Errorf("matching.source_layer_order: %w", err)
			}
			order = append(order, k)
		}
		tol.SourceLayerOrder = order
	}

	overrides := make([]matching.ToleranceOverride, 0, len(cfg.Overrides))
	for _, o := range cfg.Overrides {
		override := matching.ToleranceOverride{
			CounterpartID:  o.CounterpartID,
			ProjectID:      o.ProjectID,
			DateWindowDays: o.DateWindowDays,
		}
		if o.AmountTolPct != nil {
			pct := decimal.NewFromFloat(*o.AmountTolPct)
			override.AmountTolPct = &pct
		}
		overrides = append(overrides, override)
	}
	return tol, overrides, nil
}

func combinationFromConfig(cfg config.MatchingConfig) matching.CombinationConfig {
	return matching.CombinationConfig{
		MaxSize:       cfg.MaxCombinationSize,
		MITMThreshold: cfg.MITMThreshold,
		MaxPoolSize:   cfg.MaxPoolSize,
		MaxResults:    cfg.MaxCombinations,
		MaxNodes:      cfg.SearchMaxNodes,
		MaxDuration:   cfg.SearchMaxDuration,
	}
}

func engineFromConfig(cfg config.MatchingConfig) matching.EngineConfig {
	return matching.EngineConfig{
		AcceptThreshold: cfg.AcceptThreshold,
		MaxSuggestions:  cfg.MaxSuggestions,
	}
}
