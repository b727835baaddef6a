package alerting

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects the engine's operational counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	EventsProcessed  *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	AlertsFired      *prometheus.CounterVec
	AlertsSuppressed prometheus.Counter
	RuleFailures     *prometheus.CounterVec
	PauseCalls       prometheus.Counter
	PauseFailures    prometheus.Counter
}

// NewMetrics builds and registers the engine counters.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchtower",
			Name:      "events_processed_total",
			Help:      "Chain observation events consumed by the engine.",
		}, []string{"chain"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchtower",
			Name:      "events_dropped_total",
			Help:      "Events dropped because the side's queue was full at shutdown or malformed.",
		}, []string{"chain"}),
		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchtower",
			Name:      "alerts_fired_total",
			Help:      "Alerts admitted past deduplication, by severity.",
		}, []string{"level"}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "watchtower",
			Name:      "alerts_suppressed_total",
			Help:      "Alerts swallowed by the duplicate cool-down.",
		}),
		RuleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchtower",
			Name:      "rule_failures_total",
			Help:      "Rule evaluations that panicked and were isolated.",
		}, []string{"rule"}),
		PauseCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "watchtower",
			Name:      "pause_calls_total",
			Help:      "Protective pause_all invocations dispatched.",
		}),
		PauseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "watchtower",
			Name:      "pause_failures_total",
			Help:      "pause_all invocations that returned an error.",
		}),
	}

	m.registry.MustRegister(
		m.EventsProcessed,
		m.EventsDropped,
		m.AlertsFired,
		m.AlertsSuppressed,
		m.RuleFailures,
		m.PauseCalls,
		m.PauseFailures,
	)

	return m
}

// Registry exposes the underlying registry for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
