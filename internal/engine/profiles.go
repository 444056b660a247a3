package engine

// Workload labels the traffic/resource pattern the classifier detects.
type Workload string

const (
	WorkloadDefault      Workload = "default"
	WorkloadSteady       Workload = "steady"
	WorkloadBursty       Workload = "bursty"
	WorkloadComputeHeavy Workload = "compute_heavy"
)

// Profile is the static threshold set tied to one workload pattern. One
// canonical table maps profile name to Profile; nothing inlines these
// constants per branch.
type Profile struct {
	EPRUpper        float64 `mapstructure:"epr_upper" json:"epr_upper"`
	EPRLower        float64 `mapstructure:"epr_lower" json:"epr_lower"`
	EfficiencyLower float64 `mapstructure:"efficiency_lower" json:"efficiency_lower"`
	EfficiencyUpper float64 `mapstructure:"efficiency_upper" json:"efficiency_upper"`
	RPSScaleDown    float64 `mapstructure:"rps_scale_down_threshold" json:"rps_scale_down_threshold"`
}

// DefaultProfiles returns the built-in profile table. The default profile
// carries the original experiment's efficiency cutoffs; bursty tolerates
// higher EPR before reacting, compute-heavy the highest.
func DefaultProfiles() map[Workload]Profile {
	return map[Workload]Profile{
		WorkloadDefault: {
			EPRUpper:        8.0,
			EPRLower:        1.5,
			EfficiencyLower: 0.25,
			EfficiencyUpper: 0.35,
			RPSScaleDown:    2.0,
		},
		WorkloadSteady: {
			EPRUpper:        7.0,
			EPRLower:        1.2,
			EfficiencyLower: 0.30,
			EfficiencyUpper: 0.40,
			RPSScaleDown:    1.5,
		},
		WorkloadBursty: {
			EPRUpper:        10.0,
			EPRLower:        2.0,
			EfficiencyLower: 0.20,
			EfficiencyUpper: 0.30,
			RPSScaleDown:    3.0,
		},
		WorkloadComputeHeavy: {
			EPRUpper:        12.0,
			EPRLower:        2.5,
			EfficiencyLower: 0.15,
			EfficiencyUpper: 0.25,
			RPSScaleDown:    2.5,
		},
	}
}
