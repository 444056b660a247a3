package engine

import "github.com/wattscale/wattscale/internal/telemetry"

// Contention labels system-wide resource pressure.
type Contention string

const (
	ContentionBalanced      Contention = "balanced"
	ContentionPowerPressure Contention = "power_pressure"
	ContentionOverprovision Contention = "overprovisioned"
	ContentionUnderutilized Contention = "underutilized_power"
)

// ContentionConfig holds the aggregate cutoffs for pressure detection.
type ContentionConfig struct {
	PowerPressureRatio      float64 `mapstructure:"power_pressure_ratio"`
	OverprovisionRPS        float64 `mapstructure:"overprovision_rps"`
	OverprovisionReplicas   int     `mapstructure:"overprovision_replicas"`
	UnderutilizedRPS        float64 `mapstructure:"underutilized_rps"`
	UnderutilizedPowerRatio float64 `mapstructure:"underutilized_power_ratio"`
}

// DefaultContentionConfig returns the reference cutoffs.
func DefaultContentionConfig() ContentionConfig {
	return ContentionConfig{
		PowerPressureRatio:      0.85,
		OverprovisionRPS:        3.0,
		OverprovisionReplicas:   15,
		UnderutilizedRPS:        25.0,
		UnderutilizedPowerRatio: 0.6,
	}
}

// DetectContention classifies this tick's aggregate totals against the
// power budget. Power pressure wins over every other state because it is
// the one that gates actuation.
func DetectContention(totals telemetry.SystemTotals, budgetWatts float64, cfg ContentionConfig) Contention {
	switch {
	case budgetWatts > 0 && totals.Power >= cfg.PowerPressureRatio*budgetWatts:
		return ContentionPowerPressure
	case totals.RPS < cfg.OverprovisionRPS && totals.Replicas > cfg.OverprovisionReplicas:
		return ContentionOverprovision
	case budgetWatts > 0 && totals.RPS > cfg.UnderutilizedRPS && totals.Power < cfg.UnderutilizedPowerRatio*budgetWatts:
		return ContentionUnderutilized
	default:
		return ContentionBalanced
	}
}
