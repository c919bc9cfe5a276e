// Package metrics defines the Prometheus instrumentation (A6) updated
// by the orchestrator (C11) and retry engine (C8) only — never by the
// pure error classifier (C7).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the orchestration engine reports to.
// Registered once against a caller-supplied registry so tests can use
// an isolated one instead of the global default.
type Metrics struct {
	ApproachTotal   *prometheus.CounterVec
	RetryAttempts   *prometheus.CounterVec
	ExecutionSeconds prometheus.Histogram
}

// New registers and returns the orchestration engine's collectors
// against reg. Pass prometheus.NewRegistry() in tests to avoid
// colliding with the global default registry across test runs.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ApproachTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_approach_total",
			Help: "Count of approach executions by approach and outcome.",
		}, []string{"approach", "outcome"}),
		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orchestrator_retry_attempts_total",
			Help: "Count of retry attempts by error category.",
		}, []string{"category"}),
		ExecutionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "orchestrator_execution_seconds",
			Help:    "End-to-end latency of one orchestrator Execute call.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// RecordApproach increments the approach/outcome counter.
func (m *Metrics) RecordApproach(approach, outcome string) {
	if m == nil {
		return
	}
	m.ApproachTotal.WithLabelValues(approach, outcome).Inc()
}

// RecordRetryAttempt increments the retry-attempts-by-category counter.
func (m *Metrics) RecordRetryAttempt(category string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(category).Inc()
}

// ObserveExecution records one Execute call's wall-clock duration in seconds.
func (m *Metrics) ObserveExecution(seconds float64) {
	if m == nil {
		return
	}
	m.ExecutionSeconds.Observe(seconds)
}
