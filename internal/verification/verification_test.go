package verification

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContingency(t *testing.T) {
	labels := []int{1, 1, 0, 0, 1}
	probs := []float64{0.9, 0.4, 0.6, 0.1, 0.7}

	ct, err := NewContingency(labels, probs, 0.5)
	require.NoError(t, err)
	assert.Equal(t, Contingency{Hits: 2, FalseAlarms: 1, Misses: 1, CorrectNulls: 1}, ct)

	assert.InDelta(t, 2.0/3, ct.POD(), 1e-12)
	assert.InDelta(t, 0.5, ct.POFD(), 1e-12)
	assert.InDelta(t, 2.0/3, ct.SuccessRatio(), 1e-12)
	assert.InDelta(t, 0.5, ct.CSI(), 1e-12)
	assert.InDelta(t, 1.0, ct.FrequencyBias(), 1e-12)
	assert.InDelta(t, 2.0/3-0.5, ct.PeirceScore(), 1e-12)
	assert.InDelta(t, 0.6, ct.Accuracy(), 1e-12)
	assert.InDelta(t, 0.5, ct.FOCN(), 1e-12)
}

func TestContingency_UndefinedRatios(t *testing.T) {
	ct := Contingency{CorrectNulls: 3}
	assert.True(t, math.IsNaN(ct.POD()))
	assert.True(t, math.IsNaN(ct.CSI()))
	assert.Equal(t, 0.0, ct.POFD())
}

func TestROCArea(t *testing.T) {
	labels := []int{0, 0, 1, 1}

	tests := []struct {
		name  string
		probs []float64
		want  float64
	}{
		{"perfect", []float64{0.1, 0.2, 0.8, 0.9}, 1},
		{"inverted", []float64{0.9, 0.8, 0.2, 0.1}, 0},
		{"no skill", []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"one swap", []float64{0.1, 0.7, 0.6, 0.9}, 0.75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roc, err := ROCCurve(labels, tt.probs, DefaultNumThresholds)
			require.NoError(t, err)
			assert.Len(t, roc.Thresholds, DefaultNumThresholds)
			assert.Equal(t, 0.0, roc.Thresholds[0])
			assert.Equal(t, 1.0, roc.Thresholds[DefaultNumThresholds-1])
			assert.InDelta(t, tt.want, roc.Area(), 1e-9)
		})
	}
}

func TestROCCurve_Errors(t *testing.T) {
	_, err := ROCCurve([]int{1, 1}, []float64{0.2, 0.3}, 11)
	assert.ErrorIs(t, err, ErrInput)

	_, err = ROCCurve([]int{0, 1}, []float64{0.2}, 11)
	assert.ErrorIs(t, err, ErrInput)

	_, err = ROCCurve([]int{0, 1}, []float64{0.2, 0.3}, 1)
	assert.ErrorIs(t, err, ErrInput)

	_, err = NewContingency(nil, nil, 0.5)
	assert.ErrorIs(t, err, ErrInput)

	_, err = NewContingency([]int{3}, []float64{0.5}, 0.5)
	assert.ErrorIs(t, err, ErrInput)
}

func TestEvaluate(t *testing.T) {
	labels := []int{0, 0, 1, 1}
	scores, err := Evaluate(labels, []float64{0.1, 0.2, 0.8, 0.9}, 0.5)
	require.NoError(t, err)

	assert.Equal(t, 4, scores.NumExamples)
	assert.Equal(t, 2, scores.NumPositive)
	assert.InDelta(t, 1.0, scores.AUC, 1e-9)
	assert.Equal(t, 1.0, scores.CSI)
	assert.Equal(t, 1.0, scores.FrequencyBias)

	// Nothing forecast positive: success ratio is undefined and reported as zero.
	scores, err = Evaluate(labels, []float64{0.1, 0.2, 0.3, 0.4}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.0, scores.SuccessRatio)
	assert.Equal(t, 0.0, scores.POD)
}
