package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeQuerier serves canned points keyed by query expression.
type fakeQuerier struct {
	results map[string][]Point
	errs    map[string]error
}

func (f *fakeQuerier) Query(_ context.Context, expr string) ([]Point, error) {
	if err, ok := f.errs[expr]; ok {
		return nil, err
	}
	return f.results[expr], nil
}

type fakeReplicaSource struct {
	replicas map[string]int
	err      error
}

func (f *fakeReplicaSource) CurrentReplicas(_ context.Context, service string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, ok := f.replicas[service]
	if !ok {
		return 0, errors.New("unknown deployment")
	}
	return n, nil
}

var testQueries = QueryConfig{
	Replicas: "replicas_q",
	Power:    "power_q",
	RPS:      "rps_q",
}

func newTestSampler(t *testing.T, q Querier, rs ReplicaSource, services ...string) *Sampler {
	t.Helper()
	return NewSampler(q, rs, services, testQueries, DefaultSamplerConfig(), zaptest.NewLogger(t))
}

func TestSampler_MeasuredValuesPassThrough(t *testing.T) {
	q := &fakeQuerier{results: map[string][]Point{
		"replicas_q": {{Service: "s1", Value: 3}},
		"power_q":    {{Service: "s1", Value: 12.5}},
		"rps_q":      {{Service: "s1", Value: 7.0}},
	}}
	s := newTestSampler(t, q, nil, "s1")

	records, degraded := s.Sample(context.Background())

	require.Contains(t, records, "s1")
	assert.False(t, degraded)

	rec := records["s1"]
	assert.Equal(t, 3, rec.Replicas)
	assert.Equal(t, 12.5, rec.Power)
	assert.Equal(t, 7.0, rec.RPS)
	assert.Equal(t, Measured, rec.PowerSource)
	assert.Equal(t, Measured, rec.RPSSource)
}

func TestSampler_EstimatesPowerFromRPS(t *testing.T) {
	tests := []struct {
		name      string
		replicas  float64
		rps       float64
		wantPower float64
	}{
		{"single replica under load", 1, 5, 6.0},  // 2.0 + 0.8*5
		{"multi replica under load", 4, 10, 7.0},  // 1.0*4 + 0.3*10
		{"single replica idle", 1, 0, 2.5},
		{"multi replica idle", 4, 0, 4.8}, // 1.2*4
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQuerier{results: map[string][]Point{
				"replicas_q": {{Service: "s1", Value: tt.replicas}},
				"rps_q":      {{Service: "s1", Value: tt.rps}},
			}}
			s := newTestSampler(t, q, nil, "s1")

			records, _ := s.Sample(context.Background())
			rec := records["s1"]

			assert.InDelta(t, tt.wantPower, rec.Power, 1e-9)
			assert.Equal(t, Estimated, rec.PowerSource)
			if tt.rps > 0 {
				assert.Equal(t, Measured, rec.RPSSource)
				assert.InDelta(t, tt.rps/tt.wantPower, rec.Efficiency(), 1e-9)
			}
		})
	}
}

func TestSampler_EstimatesRPSFromPowerAboveBaseline(t *testing.T) {
	// 2 replicas draw 5W against a 3W idle baseline: (5-3)/0.5 = 4 RPS.
	q := &fakeQuerier{results: map[string][]Point{
		"replicas_q": {{Service: "s1", Value: 2}},
		"power_q":    {{Service: "s1", Value: 5.0}},
	}}
	s := newTestSampler(t, q, nil, "s1")

	records, _ := s.Sample(context.Background())
	rec := records["s1"]

	assert.InDelta(t, 4.0, rec.RPS, 1e-9)
	assert.Equal(t, Estimated, rec.RPSSource)
	assert.Equal(t, Measured, rec.PowerSource)
}

func TestSampler_PlaceholderRPSAtIdlePower(t *testing.T) {
	// Power at the idle baseline carries no load signal; the placeholder
	// value source stands in, scaled by replica count.
	q := &fakeQuerier{results: map[string][]Point{
		"replicas_q": {{Service: "s1", Value: 3}},
		"power_q":    {{Service: "s1", Value: 4.5}}, // exactly 1.5*3
	}}
	s := newTestSampler(t, q, nil, "s1")
	s.SetRandSource(func() float64 { return 0.25 })

	records, _ := s.Sample(context.Background())
	rec := records["s1"]

	assert.InDelta(t, 0.75, rec.RPS, 1e-9)
	assert.Equal(t, Estimated, rec.RPSSource)
}

func TestSampler_FullBackendFailureDegradesEveryService(t *testing.T) {
	q := &fakeQuerier{errs: map[string]error{
		"replicas_q": errors.New("connection refused"),
		"power_q":    errors.New("connection refused"),
		"rps_q":      errors.New("connection refused"),
	}}
	rs := &fakeReplicaSource{replicas: map[string]int{"s1": 2}}
	s := newTestSampler(t, q, rs, "s1")

	records, degraded := s.Sample(context.Background())

	assert.True(t, degraded)
	rec := records["s1"]
	assert.Equal(t, 2, rec.Replicas, "replica count falls back to the orchestrator")
	assert.Equal(t, Estimated, rec.PowerSource)
	assert.Equal(t, Estimated, rec.RPSSource)
	assert.InDelta(t, 2.4, rec.Power, 1e-9, "idle estimate for 2 replicas")
	assert.Zero(t, rec.RPS)
}

func TestSampler_ReplicaFallbackChain(t *testing.T) {
	q := &fakeQuerier{results: map[string][]Point{
		"replicas_q": {{Service: "s1", Value: 4}},
		"power_q":    {{Service: "s1", Value: 10}},
		"rps_q":      {{Service: "s1", Value: 5}},
	}}
	rs := &fakeReplicaSource{err: errors.New("orchestrator unreachable")}
	s := newTestSampler(t, q, rs, "s1")
	ctx := context.Background()

	records, _ := s.Sample(ctx)
	require.Equal(t, 4, records["s1"].Replicas)

	// Backend loses the replica series; the orchestrator errors too, so the
	// last known value carries the tick.
	q.results["replicas_q"] = nil
	records, _ = s.Sample(ctx)
	assert.Equal(t, 4, records["s1"].Replicas)
}

func TestSampler_UnknownServiceDefaultsToOneReplica(t *testing.T) {
	q := &fakeQuerier{}
	s := newTestSampler(t, q, nil, "s9")

	records, _ := s.Sample(context.Background())
	assert.Equal(t, 1, records["s9"].Replicas)
}

func TestSampler_PartialFailureNeverAbortsTick(t *testing.T) {
	// Only the power query fails; RPS stays measured and power is estimated.
	q := &fakeQuerier{
		results: map[string][]Point{
			"replicas_q": {{Service: "s1", Value: 1}},
			"rps_q":      {{Service: "s1", Value: 5}},
		},
		errs: map[string]error{"power_q": errors.New("timeout")},
	}
	s := newTestSampler(t, q, nil, "s1")

	records, degraded := s.Sample(context.Background())

	assert.True(t, degraded)
	rec := records["s1"]
	assert.Equal(t, Measured, rec.RPSSource)
	assert.Equal(t, Estimated, rec.PowerSource)
	assert.InDelta(t, 6.0, rec.Power, 1e-9)
}
