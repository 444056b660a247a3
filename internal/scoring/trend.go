package scoring

import "github.com/wattscale/wattscale/internal/history"

// Trend labels a service's short-horizon efficiency trajectory.
type Trend string

const (
	TrendStable    Trend = "stable"
	TrendDegrading Trend = "degrading"
	TrendImproving Trend = "improving"
)

// TrendConfig holds the slope cutoffs for the trend labels.
type TrendConfig struct {
	EPRSlope        float64 `mapstructure:"epr_slope"`
	EfficiencySlope float64 `mapstructure:"efficiency_slope"`
}

// DefaultTrendConfig returns the reference slope cutoffs.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{EPRSlope: 1.0, EfficiencySlope: 0.02}
}

// PredictTrend computes endpoint slopes over a service's history windows.
// Degrading means EPR is climbing while efficiency falls; improving is the
// mirror image. Fewer than 3 points is not enough signal, so stable.
func PredictTrend(h *history.ServiceHistory, cfg TrendConfig) Trend {
	if h == nil || h.EPR.Len() < 3 || h.Efficiency.Len() < 3 {
		return TrendStable
	}

	eprSlope := slope(h.EPR)
	effSlope := slope(h.Efficiency)

	switch {
	case eprSlope > cfg.EPRSlope && effSlope < -cfg.EfficiencySlope:
		return TrendDegrading
	case eprSlope < -cfg.EPRSlope && effSlope > cfg.EfficiencySlope:
		return TrendImproving
	default:
		return TrendStable
	}
}

func slope(w *history.Window) float64 {
	return (w.Last() - w.First()) / float64(w.Len())
}
