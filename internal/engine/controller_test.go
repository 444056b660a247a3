package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wattscale/wattscale/internal/scoring"
	"github.com/wattscale/wattscale/internal/telemetry"
	"go.uber.org/zap/zaptest"
)

type fakeSampler struct {
	fn    func(tick int) (map[string]telemetry.ServiceRecord, bool)
	calls int
}

func (f *fakeSampler) Sample(context.Context) (map[string]telemetry.ServiceRecord, bool) {
	f.calls++
	return f.fn(f.calls)
}

type scaleCall struct {
	service  string
	replicas int
}

type fakeActuator struct {
	calls []scaleCall
	err   error
}

func (f *fakeActuator) Scale(_ context.Context, service string, replicas int) error {
	f.calls = append(f.calls, scaleCall{service, replicas})
	return f.err
}

func (f *fakeActuator) CurrentReplicas(context.Context, string) (int, error) {
	return 1, nil
}

func testConfig() Config {
	return Config{
		Services:         []string{"s1", "s2"},
		MinReplicas:      1,
		MaxReplicas:      5,
		PowerBudgetWatts: 100,
		TickInterval:     time.Second,
		ServiceHistory:   5,
		SystemHistory:    10,
		Profiles:         DefaultProfiles(),
		Weights:          scoring.DefaultWeights(),
		Trend:            scoring.DefaultTrendConfig(),
		Classifier:       DefaultClassifierConfig(),
		Contention:       DefaultContentionConfig(),
		Cooldown:         DefaultCooldownConfig(),
		Override:         DefaultOverrideConfig(),
	}
}

func measured(service string, replicas int, rps, power float64) telemetry.ServiceRecord {
	return telemetry.ServiceRecord{
		Service:     service,
		Replicas:    replicas,
		RPS:         rps,
		Power:       power,
		SampledAt:   time.Now(),
		PowerSource: telemetry.Measured,
		RPSSource:   telemetry.Measured,
	}
}

// strugglingService draws heavy power for almost no traffic, which keeps
// its composite score under the scale-up cutoff.
func strugglingService(records map[string]telemetry.ServiceRecord) *fakeSampler {
	return &fakeSampler{fn: func(int) (map[string]telemetry.ServiceRecord, bool) {
		return records, false
	}}
}

func TestController_ScaleUpThenCooldownSuppression(t *testing.T) {
	sampler := strugglingService(map[string]telemetry.ServiceRecord{
		"s1": measured("s1", 2, 0.5, 30),
	})
	act := &fakeActuator{}
	c := NewController(testConfig(), sampler, act, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		c.tick(ctx)
	}

	// The trigger stays hot every tick, but the cooldown admits only the
	// first action inside its window.
	require.Len(t, act.calls, 1)
	assert.Equal(t, scaleCall{"s1", 3}, act.calls[0])

	snap := c.Snapshot()
	assert.Equal(t, uint64(10), snap.Tick)
	assert.Equal(t, ReasonCooldown, snap.Services["s1"].Decision.Reason)
}

func TestController_PowerPressureBlocksScaleUp(t *testing.T) {
	// Total draw of 95W against a 100W budget is power pressure.
	sampler := strugglingService(map[string]telemetry.ServiceRecord{
		"s1": measured("s1", 2, 0.5, 50),
		"s2": measured("s2", 2, 10, 45),
	})
	act := &fakeActuator{}
	c := NewController(testConfig(), sampler, act, nil, zaptest.NewLogger(t))

	c.tick(context.Background())

	assert.Empty(t, act.calls)
	snap := c.Snapshot()
	assert.Equal(t, ContentionPowerPressure, snap.Contention)
	assert.Equal(t, ReasonBlockedContention, snap.Services["s1"].Decision.Reason)
}

func TestController_BudgetProjectionBlocksScaleUp(t *testing.T) {
	// 84W total stays under the 85% pressure line, but one more s1 replica
	// projects 84+30=114W, past 90% of the budget.
	sampler := strugglingService(map[string]telemetry.ServiceRecord{
		"s1": measured("s1", 2, 0.5, 60),
		"s2": measured("s2", 2, 10, 24),
	})
	act := &fakeActuator{}
	c := NewController(testConfig(), sampler, act, nil, zaptest.NewLogger(t))

	c.tick(context.Background())

	assert.Empty(t, act.calls)
	snap := c.Snapshot()
	assert.Equal(t, ContentionBalanced, snap.Contention)
	assert.Equal(t, ReasonBlockedBudget, snap.Services["s1"].Decision.Reason)
}

func TestController_ScaleDownIdleService(t *testing.T) {
	// s1 runs cheap and nearly idle against a hungrier peer, so its EPR
	// average sits under the adapted lower bound.
	sampler := strugglingService(map[string]telemetry.ServiceRecord{
		"s1": measured("s1", 2, 1, 1),
		"s2": measured("s2", 2, 1, 2),
	})
	act := &fakeActuator{}
	c := NewController(testConfig(), sampler, act, nil, zaptest.NewLogger(t))

	c.tick(context.Background())

	require.Len(t, act.calls, 1)
	assert.Equal(t, scaleCall{"s1", 1}, act.calls[0])
	assert.Equal(t, ReasonEPRLowIdle, c.Snapshot().Services["s1"].Decision.Reason)
}

func TestController_ReplicaFloorHolds(t *testing.T) {
	sampler := strugglingService(map[string]telemetry.ServiceRecord{
		"s1": measured("s1", 1, 1, 1),
		"s2": measured("s2", 2, 1, 2),
	})
	act := &fakeActuator{}
	c := NewController(testConfig(), sampler, act, nil, zaptest.NewLogger(t))

	c.tick(context.Background())

	assert.Empty(t, act.calls)
	assert.Equal(t, ReasonAtLimit, c.Snapshot().Services["s1"].Decision.Reason)
}

func TestController_ReplicaCeilingHolds(t *testing.T) {
	sampler := strugglingService(map[string]telemetry.ServiceRecord{
		"s1": measured("s1", 5, 0.5, 30),
	})
	act := &fakeActuator{}
	c := NewController(testConfig(), sampler, act, nil, zaptest.NewLogger(t))

	c.tick(context.Background())

	assert.Empty(t, act.calls)
	d := c.Snapshot().Services["s1"].Decision
	assert.Equal(t, ReasonAtLimit, d.Reason)
	assert.Equal(t, 5, d.ToReplicas)
}

func TestController_DryRunDecidesWithoutActuating(t *testing.T) {
	cfg := testConfig()
	cfg.DryRun = true
	sampler := strugglingService(map[string]telemetry.ServiceRecord{
		"s1": measured("s1", 2, 0.5, 30),
	})
	act := &fakeActuator{}
	c := NewController(cfg, sampler, act, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	c.tick(ctx)
	c.tick(ctx)

	assert.Empty(t, act.calls, "dry run never reaches the orchestrator")

	snap := c.Snapshot()
	assert.True(t, snap.DryRun)
	// The suppressed action still consumed the cooldown, so the second
	// tick sits in it: anti-oscillation behavior matches a live run.
	assert.Equal(t, ReasonCooldown, snap.Services["s1"].Decision.Reason)
}

func TestController_FailedActuationRetriesNextTick(t *testing.T) {
	sampler := strugglingService(map[string]telemetry.ServiceRecord{
		"s1": measured("s1", 2, 0.5, 30),
	})
	act := &fakeActuator{err: errors.New("deployments.apps \"s1\" not found")}
	c := NewController(testConfig(), sampler, act, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	c.tick(ctx)
	c.tick(ctx)

	// Failure does not consume the cooldown, so the trigger fires again.
	assert.Len(t, act.calls, 2)
}

func TestController_ReclassifiesToBurstyAndSwitchesProfile(t *testing.T) {
	ticks := []telemetry.ServiceRecord{
		measured("s1", 2, 5, 10),
		measured("s1", 2, 20, 10),
		measured("s1", 2, 35, 10),
	}
	sampler := &fakeSampler{fn: func(tick int) (map[string]telemetry.ServiceRecord, bool) {
		return map[string]telemetry.ServiceRecord{"s1": ticks[tick-1]}, false
	}}
	c := NewController(testConfig(), sampler, &fakeActuator{}, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	c.tick(ctx)
	c.tick(ctx)
	assert.Equal(t, WorkloadDefault, c.Snapshot().Workload, "two snapshots are not enough to reclassify")

	c.tick(ctx)
	snap := c.Snapshot()
	assert.Equal(t, WorkloadBursty, snap.Workload)
	assert.InDelta(t, 10.0, snap.Thresholds.EPRUpper, 1e-9, "bursty profile bounds take effect")
}

func TestController_TickSurvivesPanickingSampler(t *testing.T) {
	sampler := &fakeSampler{fn: func(int) (map[string]telemetry.ServiceRecord, bool) {
		panic("telemetry backend returned garbage")
	}}
	c := NewController(testConfig(), sampler, &fakeActuator{}, nil, zaptest.NewLogger(t))

	assert.NotPanics(t, func() { c.safeTick(context.Background()) })
}

func TestController_OverrideEngagesAfterFullWindow(t *testing.T) {
	c := NewController(testConfig(), strugglingService(nil), &fakeActuator{}, nil, zaptest.NewLogger(t))
	profile := DefaultProfiles()[WorkloadDefault]

	for i := 0; i < 4; i++ {
		assert.Zero(t, c.updateOverride("s1", 10, profile), "streak shorter than the window")
	}

	got := c.updateOverride("s1", 10, profile)
	assert.InDelta(t, profile.EPRUpper*1.2, got, 1e-9)

	// Stays engaged through mid scores, releases on recovery.
	assert.InDelta(t, profile.EPRUpper*1.2, c.updateOverride("s1", 40, profile), 1e-9)
	assert.Zero(t, c.updateOverride("s1", 60, profile))
}

func TestController_RunStopsAtTickBoundary(t *testing.T) {
	cfg := testConfig()
	cfg.TickInterval = 10 * time.Millisecond
	sampler := strugglingService(map[string]telemetry.ServiceRecord{
		"s1": measured("s1", 2, 5, 6),
	})
	c := NewController(cfg, sampler, &fakeActuator{}, nil, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := c.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, c.Snapshot().Tick, uint64(1), "first tick fires immediately")
	assert.NotEmpty(t, c.RunID())
}
