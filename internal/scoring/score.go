// Package scoring reduces one service's telemetry to the composite
// efficiency score and short-horizon trend the decision engine consumes.
package scoring

import (
	"math"

	"github.com/wattscale/wattscale/internal/telemetry"
)

// Weights blends the four score components into the composite.
type Weights struct {
	EPR         float64 `mapstructure:"epr"`
	Efficiency  float64 `mapstructure:"efficiency"`
	Utilization float64 `mapstructure:"utilization"`
	Resource    float64 `mapstructure:"resource"`
}

// DefaultWeights returns the reference composite blend.
func DefaultWeights() Weights {
	return Weights{EPR: 0.4, Efficiency: 0.3, Utilization: 0.2, Resource: 0.1}
}

// Breakdown carries the composite score together with the components that
// produced it, for the per-tick observability record.
type Breakdown struct {
	EPRScore         float64 `json:"epr_score"`
	EfficiencyScore  float64 `json:"efficiency_score"`
	UtilizationScore float64 `json:"utilization_score"`
	ResourceScore    float64 `json:"resource_score"`
	Composite        float64 `json:"composite"`
}

// Score maps one record to a 0-100 composite. A pure function of the
// current sample: an idle service with infinite EPR scores 0 on the EPR
// component, extra replicas are penalized 10 points each.
func Score(rec telemetry.ServiceRecord, w Weights) Breakdown {
	var b Breakdown

	epr := rec.EPR()
	if !math.IsInf(epr, 1) {
		b.EPRScore = clamp(100-8*epr, 0, 100)
	}
	b.EfficiencyScore = clamp(500*rec.Efficiency(), 0, 100)
	b.UtilizationScore = clamp(20*rec.RPS, 0, 100)

	penalty := 10 * math.Max(0, float64(rec.Replicas-1))
	b.ResourceScore = clamp(100-penalty, 0, 100)

	b.Composite = w.EPR*b.EPRScore +
		w.Efficiency*b.EfficiencyScore +
		w.Utilization*b.UtilizationScore +
		w.Resource*b.ResourceScore
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
