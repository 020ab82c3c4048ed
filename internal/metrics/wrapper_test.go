package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	wrapper := NewWrapper(m)

	require.NotNil(t, wrapper)
	assert.Same(t, m, wrapper.m)
}

func TestWrapper_ScorerMetrics(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	w := NewWrapper(m)

	w.ScorerCallsInc()
	w.ScorerCallsInc()
	w.ScorerFailuresInc()
	w.ScoredExamplesAdd(250)
	w.ScorerLatencyObserve(0.02)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ScorerCalls))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScorerFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.ScoredExamples))
}

func TestWrapper_PermutationMetrics(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	w := NewWrapper(m)

	w.OriginalCostSet(0.42)
	for _, cost := range []float64{0.5, 0.7, 0.9} {
		w.TrialsInc()
		w.TrialCostObserve(cost)
	}
	w.StepCompleted(0.9)

	assert.Equal(t, 0.42, testutil.ToFloat64(m.OriginalCost))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Trials))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Steps))
	assert.Equal(t, 0.9, testutil.ToFloat64(m.CumulativeCost))
}

func TestNewWithRegistry_RegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	m.TrialCost.Observe(0.3)
	m.ScorerLatency.Observe(0.01)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["permutation_trial_cost"])
	assert.True(t, names["scorer_latency_seconds"])
	assert.True(t, names["permutation_original_cost"])
}
