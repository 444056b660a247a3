// Package metrics exposes the controller's own operational metrics on a
// dedicated Prometheus registry, so a run can be dissected with the same
// tooling that feeds the controller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Exporter registers and updates the controller gauges and counters.
type Exporter struct {
	registry *prometheus.Registry

	ticks             prometheus.Counter
	telemetryDegraded prometheus.Counter
	actuationFailures prometheus.Counter
	decisions         *prometheus.CounterVec

	stability     prometheus.Gauge
	totalPower    prometheus.Gauge
	totalRPS      prometheus.Gauge
	totalReplicas prometheus.Gauge

	serviceScore    *prometheus.GaugeVec
	serviceReplicas *prometheus.GaugeVec
	servicePower    *prometheus.GaugeVec
	serviceRPS      *prometheus.GaugeVec
	serviceEPR      *prometheus.GaugeVec
}

// NewExporter builds an exporter on a fresh registry.
func NewExporter(namespace string) *Exporter {
	if namespace == "" {
		namespace = "wattscale"
	}
	registry := prometheus.NewRegistry()

	e := &Exporter{
		registry: registry,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Completed control loop ticks.",
		}),
		telemetryDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telemetry_degraded_total",
			Help:      "Ticks with at least one failed telemetry query.",
		}),
		actuationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuation_failures_total",
			Help:      "Scale commands rejected or timed out by the orchestrator.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Scaling decisions by action.",
		}, []string{"action"}),
		stability: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stability_score",
			Help:      "System stability score in [0,1].",
		}),
		totalPower: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_power_watts",
			Help:      "System-wide power draw this tick.",
		}),
		totalRPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_rps",
			Help:      "System-wide request rate this tick.",
		}),
		totalReplicas: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_replicas",
			Help:      "System-wide replica count this tick.",
		}),
		serviceScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_score",
			Help:      "Composite efficiency score per service.",
		}, []string{"service"}),
		serviceReplicas: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_replicas",
			Help:      "Replica count per service.",
		}, []string{"service"}),
		servicePower: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_power_watts",
			Help:      "Power draw per service.",
		}, []string{"service"}),
		serviceRPS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_rps",
			Help:      "Request rate per service.",
		}, []string{"service"}),
		serviceEPR: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_epr_joules",
			Help:      "Energy per request per service (absent at zero RPS).",
		}, []string{"service"}),
	}

	registry.MustRegister(
		e.ticks, e.telemetryDegraded, e.actuationFailures, e.decisions,
		e.stability, e.totalPower, e.totalRPS, e.totalReplicas,
		e.serviceScore, e.serviceReplicas, e.servicePower, e.serviceRPS, e.serviceEPR,
	)
	return e
}

// Registry exposes the registry for the HTTP handler.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

// TickCompleted counts one finished tick.
func (e *Exporter) TickCompleted() { e.ticks.Inc() }

// TelemetryDegraded counts a tick that fell back to estimation.
func (e *Exporter) TelemetryDegraded() { e.telemetryDegraded.Inc() }

// ActuationFailed counts a rejected or timed out scale command.
func (e *Exporter) ActuationFailed() { e.actuationFailures.Inc() }

// DecisionTaken counts one decision by action label.
func (e *Exporter) DecisionTaken(action string) {
	e.decisions.WithLabelValues(action).Inc()
}

// SetStability publishes the stability score.
func (e *Exporter) SetStability(v float64) { e.stability.Set(v) }

// ObserveSystem publishes this tick's aggregates.
func (e *Exporter) ObserveSystem(power, rps float64, replicas int) {
	e.totalPower.Set(power)
	e.totalRPS.Set(rps)
	e.totalReplicas.Set(float64(replicas))
}

// ObserveService publishes one service's per-tick indicators. An infinite
// EPR (idle service) is published as a deletion so dashboards show a gap
// rather than a bogus number.
func (e *Exporter) ObserveService(service string, score float64, replicas int, power, rps, epr float64, eprFinite bool) {
	e.serviceScore.WithLabelValues(service).Set(score)
	e.serviceReplicas.WithLabelValues(service).Set(float64(replicas))
	e.servicePower.WithLabelValues(service).Set(power)
	e.serviceRPS.WithLabelValues(service).Set(rps)
	if eprFinite {
		e.serviceEPR.WithLabelValues(service).Set(epr)
	} else {
		e.serviceEPR.DeleteLabelValues(service)
	}
}
