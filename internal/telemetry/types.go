package telemetry

import (
	"math"
	"time"
)

// Provenance marks whether a metric value came from a direct measurement
// or from the sampler's estimation formulas.
type Provenance string

const (
	Measured  Provenance = "measured"
	Estimated Provenance = "estimated"
)

// ServiceRecord is one service's telemetry for a single tick. EPR and
// efficiency are derived from the latest sample on every tick and are
// never carried over from previous ticks.
type ServiceRecord struct {
	Service   string    `json:"service"`
	Replicas  int       `json:"replicas"`
	RPS       float64   `json:"rps"`
	Power     float64   `json:"power_watts"`
	P95ms     float64   `json:"latency_p95_ms"`
	P99ms     float64   `json:"latency_p99_ms"`
	SampledAt time.Time `json:"sampled_at"`

	PowerSource Provenance `json:"power_source"`
	RPSSource   Provenance `json:"rps_source"`
}

// EPR returns energy per request in joules. Undefined (infinite) at zero RPS.
func (r ServiceRecord) EPR() float64 {
	if r.RPS <= 0 {
		return math.Inf(1)
	}
	return r.Power / r.RPS
}

// Efficiency returns requests served per watt, 0 when no power is drawn.
func (r ServiceRecord) Efficiency() float64 {
	if r.Power <= 0 {
		return 0
	}
	return r.RPS / r.Power
}

// SystemTotals aggregates one tick across all tracked services.
type SystemTotals struct {
	Power    float64   `json:"power_watts"`
	RPS      float64   `json:"rps"`
	Replicas int       `json:"replicas"`
	At       time.Time `json:"at"`
}

// Totals sums a record set into system-wide aggregates.
func Totals(records map[string]ServiceRecord, at time.Time) SystemTotals {
	t := SystemTotals{At: at}
	for _, r := range records {
		t.Power += r.Power
		t.RPS += r.RPS
		t.Replicas += r.Replicas
	}
	return t
}
