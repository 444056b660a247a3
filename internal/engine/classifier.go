package engine

import (
	"github.com/wattscale/wattscale/internal/telemetry"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// ClassifierConfig holds the fixed cutoffs separating "high" from "low"
// system-wide RPS and power. Configuration, never derived at runtime.
type ClassifierConfig struct {
	HighRPSVariance   float64 `mapstructure:"high_rps_variance"`
	HighMeanRPS       float64 `mapstructure:"high_mean_rps"`
	HighPowerVariance float64 `mapstructure:"high_power_variance"`
	HighMeanPower     float64 `mapstructure:"high_mean_power"`
	LowMeanRPS        float64 `mapstructure:"low_mean_rps"`
	LowRPSVariance    float64 `mapstructure:"low_rps_variance"`
}

// DefaultClassifierConfig returns the reference cutoffs.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		HighRPSVariance:   25.0,
		HighMeanRPS:       15.0,
		HighPowerVariance: 16.0,
		HighMeanPower:     30.0,
		LowMeanRPS:        5.0,
		LowRPSVariance:    4.0,
	}
}

// Classifier infers the current workload pattern from the variance of
// recent system-wide totals and remembers the active label across ticks.
type Classifier struct {
	cfg     ClassifierConfig
	logger  *zap.Logger
	current Workload
}

// NewClassifier starts on the default workload label.
func NewClassifier(cfg ClassifierConfig, logger *zap.Logger) *Classifier {
	return &Classifier{
		cfg:     cfg,
		logger:  logger,
		current: WorkloadDefault,
	}
}

// Current returns the active workload label.
func (c *Classifier) Current() Workload { return c.current }

// Classify inspects the last 3 system snapshots and updates the active
// label. With fewer than 3 snapshots the label is left unchanged. A label
// change is logged as a workload-change event.
func (c *Classifier) Classify(snapshots []telemetry.SystemTotals) Workload {
	if len(snapshots) < 3 {
		return c.current
	}
	recent := snapshots[len(snapshots)-3:]

	rps := make([]float64, len(recent))
	power := make([]float64, len(recent))
	for i, s := range recent {
		rps[i] = s.RPS
		power[i] = s.Power
	}

	meanRPS, varRPS := stat.MeanVariance(rps, nil)
	meanPower, varPower := stat.MeanVariance(power, nil)

	var next Workload
	switch {
	case varRPS > c.cfg.HighRPSVariance && meanRPS > c.cfg.HighMeanRPS:
		next = WorkloadBursty
	case varPower > c.cfg.HighPowerVariance || meanPower > c.cfg.HighMeanPower:
		next = WorkloadComputeHeavy
	case meanRPS < c.cfg.LowMeanRPS && varRPS < c.cfg.LowRPSVariance:
		next = WorkloadSteady
	default:
		next = WorkloadSteady
	}

	if next != c.current {
		c.logger.Info("Workload pattern changed",
			zap.String("from", string(c.current)),
			zap.String("to", string(next)),
			zap.Float64("mean_rps", meanRPS),
			zap.Float64("rps_variance", varRPS),
			zap.Float64("mean_power", meanPower),
			zap.Float64("power_variance", varPower),
		)
		c.current = next
	}
	return c.current
}
