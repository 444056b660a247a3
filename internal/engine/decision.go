package engine

import (
	"math"

	"github.com/wattscale/wattscale/internal/scoring"
	"github.com/wattscale/wattscale/internal/telemetry"
)

// Action is the per-service outcome of one tick.
type Action string

const (
	ActionScaleUp   Action = "scale_up"
	ActionScaleDown Action = "scale_down"
	ActionNoChange  Action = "no_change"
)

// Reason explains why a decision came out the way it did.
type Reason string

const (
	ReasonEPRHigh           Reason = "epr_above_upper"
	ReasonScoreLow          Reason = "score_low"
	ReasonTrendDegrading    Reason = "trend_degrading"
	ReasonEPRLowIdle        Reason = "epr_below_lower_idle"
	ReasonTrendImproving    Reason = "trend_improving"
	ReasonCooldown          Reason = "cooldown"
	ReasonBlockedBudget     Reason = "blocked_budget"
	ReasonBlockedContention Reason = "blocked_contention"
	ReasonAtLimit           Reason = "replica_limit"
	ReasonSettled           Reason = "settled"
)

// Decision is one service's scaling verdict with the signals that
// produced it, sufficient to reconstruct the controller's reasoning
// offline.
type Decision struct {
	Service      string        `json:"service"`
	Action       Action        `json:"action"`
	Reason       Reason        `json:"reason"`
	FromReplicas int           `json:"from_replicas"`
	ToReplicas   int           `json:"to_replicas"`
	Score        float64       `json:"score"`
	Trend        scoring.Trend `json:"trend"`
	AvgEPR       float64       `json:"avg_epr"`
	Thresholds   Thresholds    `json:"thresholds"`
}

// DecisionInput carries everything the per-service decision function
// reads. System aggregates are computed before any per-service decision.
type DecisionInput struct {
	Record     telemetry.ServiceRecord
	Score      scoring.Breakdown
	Trend      scoring.Trend
	Thresholds Thresholds
	Contention Contention

	// AvgEPR is the service's EPR moving average; HaveEPR is false when
	// the window holds no finite samples yet (cold start or an always-idle
	// service), in which case neither EPR trigger path applies.
	AvgEPR  float64
	HaveEPR bool

	// TotalPower is the system total this tick, used for budget projection.
	TotalPower  float64
	BudgetWatts float64

	MinReplicas int
	MaxReplicas int

	// EPRUpperOverride relaxes the scale-up EPR bound for a persistently
	// underperforming service; 0 means no override.
	EPRUpperOverride float64
}

// Decide evaluates the per-service decision function of one tick for a
// service that is not in cooldown. Scale-up wins when both directions
// fire, so under-provisioned services are never starved.
func Decide(in DecisionInput) Decision {
	d := Decision{
		Service:      in.Record.Service,
		Action:       ActionNoChange,
		Reason:       ReasonSettled,
		FromReplicas: in.Record.Replicas,
		ToReplicas:   in.Record.Replicas,
		Score:        in.Score.Composite,
		Trend:        in.Trend,
		AvgEPR:       in.AvgEPR,
		Thresholds:   in.Thresholds,
	}

	if up, reason := wantsScaleUp(in); up {
		if in.Record.Replicas >= in.MaxReplicas {
			d.Reason = ReasonAtLimit
			return d
		}
		if blocked, why := scaleUpBlocked(in); blocked {
			d.Reason = why
			return d
		}
		d.Action = ActionScaleUp
		d.Reason = reason
		d.ToReplicas = in.Record.Replicas + 1
		return d
	}

	if down, reason := wantsScaleDown(in); down {
		if in.Record.Replicas <= in.MinReplicas {
			d.Reason = ReasonAtLimit
			return d
		}
		d.Action = ActionScaleDown
		d.Reason = reason
		d.ToReplicas = in.Record.Replicas - 1
		return d
	}

	return d
}

func wantsScaleUp(in DecisionInput) (bool, Reason) {
	// Scaling up a service whose power draw was never actually measured
	// would chase phantom load, so the trigger requires a real reading.
	powerOK := in.Record.PowerSource == telemetry.Measured && in.Record.Power > 0.1
	if !powerOK {
		return false, ""
	}

	eprUpper := in.Thresholds.EPRUpper
	if in.EPRUpperOverride > eprUpper {
		eprUpper = in.EPRUpperOverride
	}

	if in.HaveEPR && in.AvgEPR > eprUpper {
		return true, ReasonEPRHigh
	}
	if in.Score.Composite < 35 {
		return true, ReasonScoreLow
	}
	if in.Trend == scoring.TrendDegrading && in.Score.Composite < 50 {
		return true, ReasonTrendDegrading
	}
	return false, ""
}

func wantsScaleDown(in DecisionInput) (bool, Reason) {
	if in.HaveEPR &&
		in.AvgEPR < in.Thresholds.EPRLower &&
		in.Score.Composite > 75 &&
		in.Record.RPS < in.Thresholds.RPSScaleDown {
		return true, ReasonEPRLowIdle
	}
	if in.Trend == scoring.TrendImproving &&
		in.Score.Composite > 80 &&
		in.Record.RPS < 0.5 {
		return true, ReasonTrendImproving
	}
	return false, ""
}

// scaleUpBlocked applies the system-wide gates: the projected total power
// after adding one replica must stay under 90% of the budget, and a
// power-constrained system admits no scale-up at all.
func scaleUpBlocked(in DecisionInput) (bool, Reason) {
	if in.Contention == ContentionPowerPressure {
		return true, ReasonBlockedContention
	}
	if in.BudgetWatts > 0 {
		projected := in.TotalPower + perReplicaPower(in.Record)
		if projected > 0.9*in.BudgetWatts {
			return true, ReasonBlockedBudget
		}
	}
	return false, ""
}

// perReplicaPower estimates the marginal draw of one more replica as the
// service's current average per-replica draw.
func perReplicaPower(rec telemetry.ServiceRecord) float64 {
	if rec.Replicas <= 0 {
		return rec.Power
	}
	return rec.Power / math.Max(1, float64(rec.Replicas))
}
