package strategy

import (
	"fmt"
)

// Default tuning applied when the operator configuration leaves a field
// unset.
const (
	DefaultFreshnessWindowSeconds = int64(15 * 60)
	DefaultMinDifferentialBps     = uint32(50)
	DefaultCostRatioBps           = uint32(3_000)
	DefaultHoldingHorizonSeconds  = int64(30 * 24 * 60 * 60)
)

// Config captures the operator-defined strategy guardrails parsed from
// configuration.
type Config struct {
	FreshnessWindowSeconds int64  `toml:"FreshnessWindowSeconds"`
	MinDifferentialBps     uint32 `toml:"MinDifferentialBps"`
	CostRatioBps           uint32 `toml:"CostRatioBps"`
	HoldingHorizonSeconds  int64  `toml:"HoldingHorizonSeconds"`
}

// Params represents canonical, runtime-ready interpretations of the strategy
// settings.
type Params struct {
	FreshnessWindowSeconds int64
	MinDifferentialBps     uint32
	CostRatioBps           uint32
	HoldingHorizonSeconds  int64
}

// Parameters validates the configuration and applies canonical defaults.
func (c Config) Parameters() (Params, error) {
	params := Params{
		FreshnessWindowSeconds: c.FreshnessWindowSeconds,
		MinDifferentialBps:     c.MinDifferentialBps,
		CostRatioBps:           c.CostRatioBps,
		HoldingHorizonSeconds:  c.HoldingHorizonSeconds,
	}
	if params.FreshnessWindowSeconds < 0 || params.HoldingHorizonSeconds < 0 {
		return params, fmt.Errorf("strategy: windows must not be negative")
	}
	if params.FreshnessWindowSeconds == 0 {
		params.FreshnessWindowSeconds = DefaultFreshnessWindowSeconds
	}
	if params.MinDifferentialBps == 0 {
		params.MinDifferentialBps = DefaultMinDifferentialBps
	}
	if params.CostRatioBps == 0 {
		params.CostRatioBps = DefaultCostRatioBps
	}
	if params.CostRatioBps > 10_000 {
		return params, fmt.Errorf("strategy: CostRatioBps %d exceeds 100%%", c.CostRatioBps)
	}
	if params.HoldingHorizonSeconds == 0 {
		params.HoldingHorizonSeconds = DefaultHoldingHorizonSeconds
	}
	return params, nil
}
