package engine

import (
	"context"
	"math"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wattscale/wattscale/internal/actuator"
	"github.com/wattscale/wattscale/internal/history"
	"github.com/wattscale/wattscale/internal/scoring"
	"github.com/wattscale/wattscale/internal/telemetry"
	"go.uber.org/zap"
)

// SampleSource is the telemetry surface the controller consumes each tick.
type SampleSource interface {
	Sample(ctx context.Context) (map[string]telemetry.ServiceRecord, bool)
}

// Observer receives the controller's operational metrics. Satisfied by
// metrics.Exporter; the zero-value nopObserver is used when nil.
type Observer interface {
	TickCompleted()
	TelemetryDegraded()
	ActuationFailed()
	DecisionTaken(action string)
	SetStability(v float64)
	ObserveSystem(power, rps float64, replicas int)
	ObserveService(service string, score float64, replicas int, power, rps, epr float64, eprFinite bool)
}

// OverrideConfig tunes the learned threshold override for persistently
// underperforming services.
type OverrideConfig struct {
	LowScore     float64 `mapstructure:"low_score"`
	RecoverScore float64 `mapstructure:"recover_score"`
	Relax        float64 `mapstructure:"relax"`
}

// DefaultOverrideConfig returns the reference override tuning.
func DefaultOverrideConfig() OverrideConfig {
	return OverrideConfig{LowScore: 30, RecoverScore: 50, Relax: 1.2}
}

// Config is the controller's static-per-run configuration, validated
// before the loop starts.
type Config struct {
	Services         []string
	MinReplicas      int
	MaxReplicas      int
	PowerBudgetWatts float64
	TickInterval     time.Duration
	DryRun           bool

	ServiceHistory int
	SystemHistory  int

	Profiles   map[Workload]Profile
	Weights    scoring.Weights
	Trend      scoring.TrendConfig
	Classifier ClassifierConfig
	Contention ContentionConfig
	Cooldown   CooldownConfig
	Override   OverrideConfig
}

// ServiceStatus is one service's latest tick as served by the status API.
type ServiceStatus struct {
	Record            telemetry.ServiceRecord `json:"record"`
	Score             scoring.Breakdown       `json:"score"`
	Trend             scoring.Trend           `json:"trend"`
	Decision          Decision                `json:"decision"`
	CooldownRemaining time.Duration           `json:"cooldown_remaining"`
}

// Snapshot is the controller's externally visible state after a tick.
type Snapshot struct {
	RunID      string                   `json:"run_id"`
	StartedAt  time.Time                `json:"started_at"`
	Tick       uint64                   `json:"tick"`
	Workload   Workload                 `json:"workload"`
	Contention Contention               `json:"contention"`
	Stability  float64                  `json:"stability_score"`
	Thresholds Thresholds               `json:"thresholds"`
	Totals     telemetry.SystemTotals   `json:"totals"`
	Services   map[string]ServiceStatus `json:"services"`
	DryRun     bool                     `json:"dry_run"`
}

type overrideState struct {
	lowStreak int
	active    bool
}

// Controller is the energy-aware autoscaling control loop. All mutable
// state (history windows, cooldown timestamps, stability score, learned
// overrides) is owned by the loop and mutated only inside a tick; the
// only shared surface is the read-only snapshot behind its own mutex.
type Controller struct {
	cfg      Config
	logger   *zap.Logger
	sampler  SampleSource
	actuator actuator.Actuator
	observer Observer

	runID      string
	startedAt  time.Time
	store      *history.Store
	classifier *Classifier
	cooldowns  *CooldownController
	overrides  map[string]*overrideState
	tickCount  uint64

	snapMu   sync.RWMutex
	snapshot Snapshot
}

// NewController wires the controller from validated configuration.
func NewController(cfg Config, sampler SampleSource, act actuator.Actuator, observer Observer, logger *zap.Logger) *Controller {
	if observer == nil {
		observer = nopObserver{}
	}
	runID := uuid.NewString()
	return &Controller{
		cfg:        cfg,
		logger:     logger.With(zap.String("run_id", runID)),
		sampler:    sampler,
		actuator:   act,
		observer:   observer,
		runID:      runID,
		startedAt:  time.Now(),
		store:      history.NewStore(cfg.ServiceHistory, cfg.SystemHistory),
		classifier: NewClassifier(cfg.Classifier, logger),
		cooldowns:  NewCooldownController(cfg.Cooldown),
		overrides:  make(map[string]*overrideState),
	}
}

// RunID returns the identifier stamped on this run's logs and status.
func (c *Controller) RunID() string { return c.runID }

// Snapshot returns the state published by the most recent tick.
func (c *Controller) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapshot
}

// Run drives the control loop until the context is cancelled. The stop
// signal is honored at tick boundaries only, so an actuation call is
// never abandoned half-issued.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Info("Starting autoscaling controller",
		zap.Strings("services", c.cfg.Services),
		zap.Duration("tick_interval", c.cfg.TickInterval),
		zap.Float64("power_budget_watts", c.cfg.PowerBudgetWatts),
		zap.Bool("dry_run", c.cfg.DryRun),
	)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.safeTick(ctx)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Controller stopped", zap.Uint64("ticks", c.tickCount))
			return ctx.Err()
		case <-ticker.C:
			c.safeTick(ctx)
		}
	}
}

// safeTick confines any runtime fault to the tick that raised it. One bad
// payload must not take the process down.
func (c *Controller) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Tick aborted by runtime fault",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	c.tick(ctx)
}

func (c *Controller) tick(ctx context.Context) {
	now := time.Now()
	c.tickCount++

	records, degraded := c.sampler.Sample(ctx)
	if degraded {
		c.observer.TelemetryDegraded()
	}

	// System aggregates and history first; per-service thresholding
	// depends on them.
	totals := telemetry.Totals(records, now)
	for _, rec := range records {
		c.store.Record(rec.Service, rec.EPR(), rec.Efficiency())
	}
	c.store.RecordSystem(totals)

	workload := c.classifier.Classify(c.store.System())
	profile := c.profileFor(workload)
	avgEPR, avgEff, haveHistory := c.store.GlobalAverages()
	thresholds := AdaptThresholds(workload, profile, avgEPR, avgEff, haveHistory)
	contention := DetectContention(totals, c.cfg.PowerBudgetWatts, c.cfg.Contention)

	c.cooldowns.Tick(now)
	c.observer.SetStability(c.cooldowns.Stability())
	c.observer.ObserveSystem(totals.Power, totals.RPS, totals.Replicas)

	// Scale-ups issued earlier in the tick count against the budget
	// projection of later ones.
	projectedPower := totals.Power
	statuses := make(map[string]ServiceStatus, len(records))

	for _, svc := range sortedServices(records) {
		rec := records[svc]
		breakdown := scoring.Score(rec, c.cfg.Weights)
		hist := c.store.Service(svc)
		trend := scoring.PredictTrend(hist, c.cfg.Trend)
		override := c.updateOverride(svc, breakdown.Composite, profile)

		cooldown := c.cooldowns.Duration(breakdown.Composite, contention)
		inCooldown, remaining := c.cooldowns.InCooldown(svc, now, cooldown)

		var decision Decision
		if inCooldown {
			decision = Decision{
				Service:      svc,
				Action:       ActionNoChange,
				Reason:       ReasonCooldown,
				FromReplicas: rec.Replicas,
				ToReplicas:   rec.Replicas,
				Score:        breakdown.Composite,
				Trend:        trend,
				AvgEPR:       hist.EPR.Average(),
				Thresholds:   thresholds,
			}
		} else {
			decision = Decide(DecisionInput{
				Record:           rec,
				Score:            breakdown,
				Trend:            trend,
				Thresholds:       thresholds,
				Contention:       contention,
				AvgEPR:           hist.EPR.Average(),
				HaveEPR:          hist.EPR.Len() > 0,
				TotalPower:       projectedPower,
				BudgetWatts:      c.cfg.PowerBudgetWatts,
				MinReplicas:      c.cfg.MinReplicas,
				MaxReplicas:      c.cfg.MaxReplicas,
				EPRUpperOverride: override,
			})
		}

		if decision.Action != ActionNoChange {
			if c.actuate(ctx, &decision, now) && decision.Action == ActionScaleUp {
				projectedPower += perReplicaPower(rec)
			}
		}
		c.observer.DecisionTaken(string(decision.Action))

		epr := rec.EPR()
		c.observer.ObserveService(svc, breakdown.Composite, rec.Replicas, rec.Power, rec.RPS, epr, !math.IsInf(epr, 1))

		c.logger.Info("Tick",
			zap.String("service", svc),
			zap.Int("replicas", rec.Replicas),
			zap.Float64("rps", rec.RPS),
			zap.Float64("power_watts", rec.Power),
			zap.Float64("epr", epr),
			zap.Float64("efficiency", rec.Efficiency()),
			zap.Float64("score", breakdown.Composite),
			zap.String("trend", string(trend)),
			zap.String("workload", string(workload)),
			zap.String("contention", string(contention)),
			zap.String("power_source", string(rec.PowerSource)),
			zap.String("rps_source", string(rec.RPSSource)),
			zap.Duration("cooldown_remaining", remaining),
			zap.String("decision", string(decision.Action)),
			zap.String("reason", string(decision.Reason)),
		)

		statuses[svc] = ServiceStatus{
			Record:            rec,
			Score:             breakdown,
			Trend:             trend,
			Decision:          decision,
			CooldownRemaining: remaining,
		}
	}

	c.observer.TickCompleted()
	c.publish(Snapshot{
		RunID:      c.runID,
		StartedAt:  c.startedAt,
		Tick:       c.tickCount,
		Workload:   workload,
		Contention: contention,
		Stability:  c.cooldowns.Stability(),
		Thresholds: thresholds,
		Totals:     totals,
		Services:   statuses,
		DryRun:     c.cfg.DryRun,
	})
}

// actuate issues the scale command, bounded to ±1 replica per tick.
// Reports whether the new replica count took effect. Failures do not
// consume the cooldown; the trigger stays eligible next tick.
func (c *Controller) actuate(ctx context.Context, d *Decision, now time.Time) bool {
	if c.cfg.DryRun {
		c.logger.Info("Dry run, scale command suppressed",
			zap.String("service", d.Service),
			zap.String("action", string(d.Action)),
			zap.Int("to_replicas", d.ToReplicas),
		)
		c.cooldowns.MarkScaled(d.Service, now)
		return true
	}

	if err := c.actuator.Scale(ctx, d.Service, d.ToReplicas); err != nil {
		c.logger.Error("Scale command failed",
			zap.String("service", d.Service),
			zap.String("action", string(d.Action)),
			zap.Int("to_replicas", d.ToReplicas),
			zap.Error(err),
		)
		c.observer.ActuationFailed()
		return false
	}

	c.cooldowns.MarkScaled(d.Service, now)
	return true
}

// updateOverride tracks persistently underperforming services. A service
// scoring under the low mark for a full history window gets a relaxed
// EPR upper bound until its score recovers.
func (c *Controller) updateOverride(service string, score float64, profile Profile) float64 {
	st, ok := c.overrides[service]
	if !ok {
		st = &overrideState{}
		c.overrides[service] = st
	}

	switch {
	case score < c.cfg.Override.LowScore:
		st.lowStreak++
		if st.lowStreak >= c.cfg.ServiceHistory && !st.active {
			st.active = true
			c.logger.Info("Learned threshold override engaged",
				zap.String("service", service),
				zap.Float64("score", score),
			)
		}
	case score > c.cfg.Override.RecoverScore:
		st.lowStreak = 0
		if st.active {
			st.active = false
			c.logger.Info("Learned threshold override released",
				zap.String("service", service),
				zap.Float64("score", score),
			)
		}
	default:
		st.lowStreak = 0
	}

	if st.active {
		return profile.EPRUpper * c.cfg.Override.Relax
	}
	return 0
}

func (c *Controller) profileFor(w Workload) Profile {
	if p, ok := c.cfg.Profiles[w]; ok {
		return p
	}
	if p, ok := c.cfg.Profiles[WorkloadDefault]; ok {
		return p
	}
	return DefaultProfiles()[WorkloadDefault]
}

func (c *Controller) publish(s Snapshot) {
	c.snapMu.Lock()
	c.snapshot = s
	c.snapMu.Unlock()
}

func sortedServices(records map[string]telemetry.ServiceRecord) []string {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type nopObserver struct{}

func (nopObserver) TickCompleted()                                                        {}
func (nopObserver) TelemetryDegraded()                                                    {}
func (nopObserver) ActuationFailed()                                                      {}
func (nopObserver) DecisionTaken(string)                                                  {}
func (nopObserver) SetStability(float64)                                                  {}
func (nopObserver) ObserveSystem(float64, float64, int)                                   {}
func (nopObserver) ObserveService(string, float64, int, float64, float64, float64, bool) {}
