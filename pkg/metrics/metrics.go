// Package metrics exposes the prometheus instrumentation for the decision
// path, the optimizer, and degradation alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors registered for the pipeline.
type Metrics struct {
	DecisionsTotal    *prometheus.CounterVec
	DecisionLatency   prometheus.Histogram
	OptimizationRuns  *prometheus.CounterVec
	DegradationAlerts *prometheus.CounterVec
}

// New registers the pipeline collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adaptive_trader",
			Name:      "decisions_total",
			Help:      "Trade decisions by final status.",
		}, []string{"status"}),
		DecisionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "adaptive_trader",
			Name:      "decision_latency_seconds",
			Help:      "Latency of the signal-to-decision pipeline.",
			Buckets:   prometheus.DefBuckets,
		}),
		OptimizationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adaptive_trader",
			Name:      "optimization_runs_total",
			Help:      "Optimization runs by outcome.",
		}, []string{"status"}),
		DegradationAlerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adaptive_trader",
			Name:      "degradation_alerts_total",
			Help:      "Degradation alerts emitted by level.",
		}, []string{"level"}),
	}

	reg.MustRegister(m.DecisionsTotal, m.DecisionLatency, m.OptimizationRuns, m.DegradationAlerts)
	return m
}

// NewUnregistered returns collectors not bound to any registry, for tests.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
