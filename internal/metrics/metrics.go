// Package metrics provides Prometheus metrics for permutation-importance
// runs: scorer invocations and latency, permutation trials, completed
// steps and the costs they produce.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Scorer metrics
	ScorerCalls    prometheus.Counter   // Total number of scorer invocations
	ScorerFailures prometheus.Counter   // Total number of failed scorer invocations
	ScorerLatency  prometheus.Histogram // Scorer latency per invocation
	ScoredExamples prometheus.Counter   // Total number of examples scored

	// Permutation test metrics
	Trials         prometheus.Counter   // Total number of single-channel permutation trials
	Steps          prometheus.Counter   // Total number of completed permutation steps
	TrialCost      prometheus.Histogram // Distribution of trial costs
	OriginalCost   prometheus.Gauge     // Cost of the unpermuted data in the latest run
	CumulativeCost prometheus.Gauge     // Cost after the latest committed step

	ErrorsTotal prometheus.Counter
}

// New creates and registers all metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		ScorerCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "scorer_calls_total",
			Help: "Total number of scorer invocations",
		}),
		ScorerFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "scorer_failures_total",
			Help: "Total number of failed scorer invocations",
		}),
		ScorerLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scorer_latency_seconds",
			Help:    "Scorer latency per invocation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		ScoredExamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "scored_examples_total",
			Help: "Total number of examples scored",
		}),
		Trials: factory.NewCounter(prometheus.CounterOpts{
			Name: "permutation_trials_total",
			Help: "Total number of single-channel permutation trials",
		}),
		Steps: factory.NewCounter(prometheus.CounterOpts{
			Name: "permutation_steps_total",
			Help: "Total number of completed permutation steps",
		}),
		TrialCost: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "permutation_trial_cost",
			Help:    "Distribution of costs produced by permutation trials",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		OriginalCost: factory.NewGauge(prometheus.GaugeOpts{
			Name: "permutation_original_cost",
			Help: "Cost of the unpermuted data in the latest run",
		}),
		CumulativeCost: factory.NewGauge(prometheus.GaugeOpts{
			Name: "permutation_cumulative_cost",
			Help: "Cost after the latest committed permutation step",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
