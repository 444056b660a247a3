// Package config loads and validates the static-per-run configuration.
// Everything the controller reads at runtime is fixed here at startup;
// a bad configuration is fatal before the loop begins, never after.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/wattscale/wattscale/internal/actuator"
	"github.com/wattscale/wattscale/internal/engine"
	"github.com/wattscale/wattscale/internal/logging"
	"github.com/wattscale/wattscale/internal/scoring"
	"github.com/wattscale/wattscale/internal/telemetry"
)

// Config is the full application configuration.
type Config struct {
	Logging logging.Config `mapstructure:"logging"`

	Services         []string      `mapstructure:"services"`
	MinReplicas      int           `mapstructure:"min_replicas"`
	MaxReplicas      int           `mapstructure:"max_replicas"`
	PowerBudgetWatts float64       `mapstructure:"power_budget_watts"`
	TickInterval     time.Duration `mapstructure:"tick_interval"`
	DryRun           bool          `mapstructure:"dry_run"`

	History    HistoryConfig             `mapstructure:"history"`
	Profiles   map[string]engine.Profile `mapstructure:"profiles"`
	Weights    scoring.Weights           `mapstructure:"weights"`
	Trend      scoring.TrendConfig       `mapstructure:"trend"`
	Classifier engine.ClassifierConfig   `mapstructure:"classifier"`
	Contention engine.ContentionConfig   `mapstructure:"contention"`
	Cooldown   engine.CooldownConfig     `mapstructure:"cooldown"`
	Override   engine.OverrideConfig     `mapstructure:"override"`

	Telemetry TelemetryConfig        `mapstructure:"telemetry"`
	Actuator  actuator.KubectlConfig `mapstructure:"actuator"`
	API       APIConfig              `mapstructure:"api"`
}

// HistoryConfig sets the moving-window capacities.
type HistoryConfig struct {
	ServiceWindow int `mapstructure:"service_window"`
	SystemWindow  int `mapstructure:"system_window"`
}

// TelemetryConfig groups the backend client and estimation settings.
type TelemetryConfig struct {
	Client  telemetry.ClientConfig  `mapstructure:"client"`
	Sampler telemetry.SamplerConfig `mapstructure:"sampler"`
}

// APIConfig configures the status/metrics HTTP listener.
type APIConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Namespace  string `mapstructure:"metrics_namespace"`
}

// Load reads the YAML config file, applies defaults and environment
// overrides (WATTSCALE_*), and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("WATTSCALE")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("services", []string{"s0", "s1", "s2", "s3", "s4", "s5", "s6"})
	v.SetDefault("min_replicas", 1)
	v.SetDefault("max_replicas", 5)
	v.SetDefault("power_budget_watts", 100.0)
	v.SetDefault("tick_interval", "30s")
	v.SetDefault("dry_run", false)

	v.SetDefault("history.service_window", 5)
	v.SetDefault("history.system_window", 10)

	for name, p := range engine.DefaultProfiles() {
		prefix := "profiles." + string(name)
		v.SetDefault(prefix+".epr_upper", p.EPRUpper)
		v.SetDefault(prefix+".epr_lower", p.EPRLower)
		v.SetDefault(prefix+".efficiency_lower", p.EfficiencyLower)
		v.SetDefault(prefix+".efficiency_upper", p.EfficiencyUpper)
		v.SetDefault(prefix+".rps_scale_down_threshold", p.RPSScaleDown)
	}

	w := scoring.DefaultWeights()
	v.SetDefault("weights.epr", w.EPR)
	v.SetDefault("weights.efficiency", w.Efficiency)
	v.SetDefault("weights.utilization", w.Utilization)
	v.SetDefault("weights.resource", w.Resource)

	tr := scoring.DefaultTrendConfig()
	v.SetDefault("trend.epr_slope", tr.EPRSlope)
	v.SetDefault("trend.efficiency_slope", tr.EfficiencySlope)

	cl := engine.DefaultClassifierConfig()
	v.SetDefault("classifier.high_rps_variance", cl.HighRPSVariance)
	v.SetDefault("classifier.high_mean_rps", cl.HighMeanRPS)
	v.SetDefault("classifier.high_power_variance", cl.HighPowerVariance)
	v.SetDefault("classifier.high_mean_power", cl.HighMeanPower)
	v.SetDefault("classifier.low_mean_rps", cl.LowMeanRPS)
	v.SetDefault("classifier.low_rps_variance", cl.LowRPSVariance)

	ct := engine.DefaultContentionConfig()
	v.SetDefault("contention.power_pressure_ratio", ct.PowerPressureRatio)
	v.SetDefault("contention.overprovision_rps", ct.OverprovisionRPS)
	v.SetDefault("contention.overprovision_replicas", ct.OverprovisionReplicas)
	v.SetDefault("contention.underutilized_rps", ct.UnderutilizedRPS)
	v.SetDefault("contention.underutilized_power_ratio", ct.UnderutilizedPowerRatio)

	cd := engine.DefaultCooldownConfig()
	v.SetDefault("cooldown.base", cd.Base)
	v.SetDefault("cooldown.churn_window", cd.ChurnWindow)
	v.SetDefault("cooldown.churn_high", cd.ChurnHigh)
	v.SetDefault("cooldown.churn_low", cd.ChurnLow)
	v.SetDefault("cooldown.stability_floor", cd.StabilityFloor)

	ov := engine.DefaultOverrideConfig()
	v.SetDefault("override.low_score", ov.LowScore)
	v.SetDefault("override.recover_score", ov.RecoverScore)
	v.SetDefault("override.relax", ov.Relax)

	v.SetDefault("telemetry.client.address", "http://localhost:9090")
	v.SetDefault("telemetry.client.timeout", "10s")
	v.SetDefault("telemetry.client.pod_pattern", `^(s[0-9]+)`)
	v.SetDefault("telemetry.client.service_label", "kubernetes_service")
	v.SetDefault("telemetry.client.power_mode", "dynamic")
	v.SetDefault("telemetry.client.queries.replicas", `kube_deployment_status_replicas{deployment=~"s[0-9]+"}`)
	v.SetDefault("telemetry.client.queries.power", `rate(kepler_container_joules_total{container_namespace="default"}[5m])`)
	v.SetDefault("telemetry.client.queries.rps", `rate(mub_request_processing_latency_milliseconds_count{kubernetes_service=~"s[0-9]+"}[5m])`)
	v.SetDefault("telemetry.client.queries.latency_p95", `histogram_quantile(0.95, rate(mub_request_processing_latency_milliseconds_bucket{kubernetes_service=~"s[0-9]+"}[5m]))`)
	v.SetDefault("telemetry.client.queries.latency_p99", `histogram_quantile(0.99, rate(mub_request_processing_latency_milliseconds_bucket{kubernetes_service=~"s[0-9]+"}[5m]))`)

	s := telemetry.DefaultSamplerConfig()
	v.SetDefault("telemetry.sampler.idle_watts_per_replica", s.IdleWattsPerReplica)
	v.SetDefault("telemetry.sampler.watts_per_rps", s.WattsPerRPS)

	a := actuator.DefaultKubectlConfig()
	v.SetDefault("actuator.binary", a.Binary)
	v.SetDefault("actuator.namespace", a.Namespace)
	v.SetDefault("actuator.timeout", a.Timeout)

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.metrics_namespace", "wattscale")

	lg := logging.DefaultConfig()
	v.SetDefault("logging.level", lg.Level)
	v.SetDefault("logging.encoding", lg.Encoding)
	v.SetDefault("logging.output_path", lg.OutputPath)
	v.SetDefault("logging.max_size_mb", lg.MaxSizeMB)
	v.SetDefault("logging.max_backups", lg.MaxBackups)
	v.SetDefault("logging.max_age_days", lg.MaxAgeDays)
	v.SetDefault("logging.compress", lg.Compress)
}

// Validate rejects configurations the controller cannot run under.
func Validate(cfg *Config) error {
	if len(cfg.Services) == 0 {
		return fmt.Errorf("at least one tracked service is required")
	}
	if cfg.MinReplicas < 0 {
		return fmt.Errorf("min_replicas cannot be negative")
	}
	if cfg.MinReplicas > cfg.MaxReplicas {
		return fmt.Errorf("min_replicas (%d) exceeds max_replicas (%d)", cfg.MinReplicas, cfg.MaxReplicas)
	}
	if cfg.PowerBudgetWatts <= 0 {
		return fmt.Errorf("power_budget_watts must be positive")
	}
	if cfg.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if cfg.Cooldown.Base <= 0 {
		return fmt.Errorf("cooldown.base must be positive")
	}
	if cfg.History.ServiceWindow < 1 || cfg.History.SystemWindow < 1 {
		return fmt.Errorf("history window capacities must be at least 1")
	}
	if _, ok := cfg.Profiles[string(engine.WorkloadDefault)]; !ok {
		return fmt.Errorf("profile table must contain a %q entry", engine.WorkloadDefault)
	}
	if cfg.Telemetry.Client.Address == "" {
		return fmt.Errorf("telemetry.client.address is required")
	}
	if cfg.API.Enabled && cfg.API.ListenAddr == "" {
		return fmt.Errorf("api.listen_addr is required when the API is enabled")
	}
	return nil
}

// EngineConfig folds the loaded configuration into the controller's shape.
func (c *Config) EngineConfig() engine.Config {
	profiles := make(map[engine.Workload]engine.Profile, len(c.Profiles))
	for name, p := range c.Profiles {
		profiles[engine.Workload(name)] = p
	}
	return engine.Config{
		Services:         c.Services,
		MinReplicas:      c.MinReplicas,
		MaxReplicas:      c.MaxReplicas,
		PowerBudgetWatts: c.PowerBudgetWatts,
		TickInterval:     c.TickInterval,
		DryRun:           c.DryRun,
		ServiceHistory:   c.History.ServiceWindow,
		SystemHistory:    c.History.SystemWindow,
		Profiles:         profiles,
		Weights:          c.Weights,
		Trend:            c.Trend,
		Classifier:       c.Classifier,
		Contention:       c.Contention,
		Cooldown:         c.Cooldown,
		Override:         c.Override,
	}
}
