package engine

import "math"

// Thresholds are the live scaling bounds for one tick: the active static
// profile tightened by the observed system averages.
type Thresholds struct {
	Workload        Workload `json:"workload"`
	EPRUpper        float64  `json:"epr_upper"`
	EPRLower        float64  `json:"epr_lower"`
	EfficiencyLower float64  `json:"efficiency_lower"`
	EfficiencyUpper float64  `json:"efficiency_upper"`
	RPSScaleDown    float64  `json:"rps_scale_down_threshold"`
}

// AdaptThresholds blends the workload profile with the global moving
// averages: the upper bounds stretch to at least 110% of the observed
// average, the lower bounds shrink to at most 90% of it, so live
// thresholds track the system instead of fighting it. Without history
// (cold start) the static profile applies verbatim.
func AdaptThresholds(w Workload, p Profile, avgEPR, avgEfficiency float64, haveHistory bool) Thresholds {
	t := Thresholds{
		Workload:        w,
		EPRUpper:        p.EPRUpper,
		EPRLower:        p.EPRLower,
		EfficiencyLower: p.EfficiencyLower,
		EfficiencyUpper: p.EfficiencyUpper,
		RPSScaleDown:    p.RPSScaleDown,
	}
	if !haveHistory {
		return t
	}

	if avgEPR > 0 {
		t.EPRUpper = math.Max(p.EPRUpper, avgEPR*1.1)
		t.EPRLower = math.Min(p.EPRLower, avgEPR*0.9)
	}
	if avgEfficiency > 0 {
		t.EfficiencyUpper = math.Max(p.EfficiencyUpper, avgEfficiency*1.1)
		t.EfficiencyLower = math.Min(p.EfficiencyLower, avgEfficiency*0.9)
	}
	return t
}
