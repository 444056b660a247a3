package telemetry

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"
)

// QueryConfig holds the PromQL templates the sampler issues each tick.
// The defaults match a Kepler + kube-state-metrics + muBench deployment.
type QueryConfig struct {
	Replicas   string `mapstructure:"replicas"`
	Power      string `mapstructure:"power"`
	RPS        string `mapstructure:"rps"`
	LatencyP95 string `mapstructure:"latency_p95"`
	LatencyP99 string `mapstructure:"latency_p99"`
}

// ClientConfig configures the telemetry backend connection.
type ClientConfig struct {
	Address      string        `mapstructure:"address"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PodPattern   string        `mapstructure:"pod_pattern"`
	ServiceLabel string        `mapstructure:"service_label"`
	PowerMode    string        `mapstructure:"power_mode"`
	Queries      QueryConfig   `mapstructure:"queries"`
}

// Point is one sample returned by the telemetry backend: the service it
// belongs to, its numeric value and the backend's timestamp.
type Point struct {
	Service string
	Value   float64
	At      time.Time
}

// Querier is the telemetry query surface the sampler consumes. Satisfied
// by PromClient in production and by fakes in tests.
type Querier interface {
	// Query evaluates one instant vector query and maps each returned
	// series to a service via the configured labels.
	Query(ctx context.Context, expr string) ([]Point, error)
}

// PromClient queries a Prometheus-compatible backend over its HTTP API.
type PromClient struct {
	api       promv1.API
	logger    *zap.Logger
	timeout   time.Duration
	podRe     *regexp.Regexp
	svcLabel  model.LabelName
	powerMode string
}

// NewPromClient builds a client for the configured backend address.
func NewPromClient(cfg ClientConfig, logger *zap.Logger) (*PromClient, error) {
	c, err := api.NewClient(api.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry client: %w", err)
	}

	podRe, err := regexp.Compile(cfg.PodPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pod pattern %q: %w", cfg.PodPattern, err)
	}

	return &PromClient{
		api:       promv1.NewAPI(c),
		logger:    logger,
		timeout:   cfg.Timeout,
		podRe:     podRe,
		svcLabel:  model.LabelName(cfg.ServiceLabel),
		powerMode: cfg.PowerMode,
	}, nil
}

// Query runs one instant query with the configured timeout and folds the
// result vector into per-service points. Series carrying a pod name are
// resolved through the pod pattern and summed per service (a service can
// run several pods); series carrying the service label directly are used
// as-is. Series matching neither are dropped.
func (c *PromClient) Query(ctx context.Context, expr string) ([]Point, error) {
	qctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, warnings, err := c.api.Query(qctx, expr, time.Now())
	if err != nil {
		return nil, fmt.Errorf("telemetry query failed: %w", err)
	}
	for _, w := range warnings {
		c.logger.Warn("Telemetry query warning", zap.String("warning", w))
	}

	vec, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected telemetry result type %s", result.Type())
	}

	byService := make(map[string]*Point)
	for _, sample := range vec {
		svc := c.serviceFor(sample.Metric)
		if svc == "" {
			continue
		}
		v := float64(sample.Value)
		if p, exists := byService[svc]; exists {
			p.Value += v
		} else {
			byService[svc] = &Point{
				Service: svc,
				Value:   v,
				At:      sample.Timestamp.Time(),
			}
		}
	}

	points := make([]Point, 0, len(byService))
	for _, p := range byService {
		points = append(points, *p)
	}
	return points, nil
}

// serviceFor extracts the owning service from a sample's label set.
func (c *PromClient) serviceFor(m model.Metric) string {
	if svc, ok := m[c.svcLabel]; ok && svc != "" {
		return string(svc)
	}
	if dep, ok := m["deployment"]; ok && dep != "" {
		return string(dep)
	}
	for _, label := range []model.LabelName{"pod_name", "pod"} {
		pod, ok := m[label]
		if !ok {
			continue
		}
		if mode, hasMode := m["mode"]; hasMode && c.powerMode != "" && string(mode) != c.powerMode {
			return ""
		}
		if match := c.podRe.FindStringSubmatch(string(pod)); len(match) > 1 {
			return match[1]
		}
	}
	return ""
}
