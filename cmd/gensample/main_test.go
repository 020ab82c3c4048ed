package main

import (
	"context"
	"math/rand/v2"
	"testing"

	"storm-importance/internal/importance"
	"storm-importance/internal/preprocess"
	"storm-importance/internal/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestGenerate(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	set := generate(rng, 30, 8)

	require.NoError(t, set.Validate())
	assert.Equal(t, 30, set.NumExamples())
	assert.Len(t, set.Targets, 30*8*8)
	assert.Equal(t, "storm_0002", set.StormIDs[29])
	assert.Equal(t, 5, set.StormSteps[29])
}

func meanLabel(labels []int) float64 {
	var sum int
	for _, l := range labels {
		sum += l
	}
	return float64(sum) / float64(len(labels))
}

func TestSampleModel_Calibrated(t *testing.T) {
	rng := rand.New(rand.NewPCG(6695, 1))
	training := generate(rng, 400, 16)

	params, err := preprocess.FitMany(training)
	require.NoError(t, err)
	model, err := sampleModel(training, params, 90)
	require.NoError(t, err)
	require.NoError(t, model.Validate())

	threshold, err := preprocess.BinarizationThreshold(90, training)
	require.NoError(t, err)
	labels, err := preprocess.Binarize(training, threshold)
	require.NoError(t, err)
	normalized, err := preprocess.Apply(training, params)
	require.NoError(t, err)

	probs, err := model.Score(context.Background(), normalized)
	require.NoError(t, err)
	assert.InDelta(t, meanLabel(labels), stat.Mean(probs, nil), 0.01)
}

func TestSampleModel_ReflectivityMostImportant(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(6695, 1))
	training := generate(rng, 400, 16)
	validation := generate(rng, 200, 16)

	params, err := preprocess.FitMany(training)
	require.NoError(t, err)
	model, err := sampleModel(training, params, 90)
	require.NoError(t, err)

	threshold, err := preprocess.BinarizationThreshold(90, training)
	require.NoError(t, err)
	labels, err := preprocess.Binarize(validation, threshold)
	require.NoError(t, err)
	normalized, err := preprocess.Apply(validation, params)
	require.NoError(t, err)

	probs, err := model.Score(ctx, normalized)
	require.NoError(t, err)
	assert.InDelta(t, meanLabel(labels), stat.Mean(probs, nil), 0.05)

	result, err := importance.New(importance.Config{Seed: 6695}).
		Run(ctx, model, normalized, labels, scoring.BinaryCrossEntropy)
	require.NoError(t, err)

	top := result.Step1Ranking()[0]
	assert.Equal(t, "reflectivity_dbz", top.Predictor)
	assert.Greater(t, top.Cost, result.OriginalCost)
	assert.Equal(t, "reflectivity_dbz", result.Cumulative[0].Predictor)

	for _, entry := range result.Step1 {
		if entry.Predictor == "temperature_kelvins" {
			assert.Equal(t, result.OriginalCost, entry.Cost)
		}
	}
}

func TestCalibrate_NeedsBothClasses(t *testing.T) {
	_, _, err := calibrate([]float64{0.1, 0.2, 0.3}, []int{0, 0, 0})
	assert.Error(t, err)
}
