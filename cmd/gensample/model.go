package main

import (
	"errors"
	"fmt"
	"math"

	"storm-importance/internal/imagery"
	"storm-importance/internal/preprocess"
	"storm-importance/internal/scoring"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// scalePenalty keeps the fitted scale finite when the training labels are
// perfectly separated.
const scalePenalty = 1e-4

// sampleModel builds a logistic model for normalized inputs. The weights
// estimate the storm intensity from the reflectivity core and the rotation
// from the wind pattern, mixed as in the vorticity target. Temperature
// carries no weight. Scale and bias are then fitted so the probabilities
// match the labels obtained at the given binarization percentile.
func sampleModel(training *imagery.ExampleSet, params preprocess.Params, percentile float64) (*scoring.LogisticModel, error) {
	model, err := structuralModel(training.Rows, params)
	if err != nil {
		return nil, err
	}

	threshold, err := preprocess.BinarizationThreshold(percentile, training)
	if err != nil {
		return nil, err
	}
	labels, err := preprocess.Binarize(training, threshold)
	if err != nil {
		return nil, err
	}
	normalized, err := preprocess.Apply(training, params)
	if err != nil {
		return nil, err
	}

	size := len(model.Weights)
	linear := make([]float64, len(labels))
	for e := range linear {
		linear[e] = floats.Dot(model.Weights, normalized.Values[e*size:(e+1)*size])
	}

	scale, bias, err := calibrate(linear, labels)
	if err != nil {
		return nil, err
	}
	floats.Scale(scale, model.Weights)
	model.Bias = bias

	log.Info().
		Float64("scale", scale).
		Float64("bias", bias).
		Float64("threshold", threshold).
		Msg("Sample model calibrated")

	return model, nil
}

// structuralModel returns unit-scale weights whose dot product with a
// normalized example is intensity + 0.3*rotation plus a constant.
func structuralModel(size int, params preprocess.Params) (*scoring.LogisticModel, error) {
	stdev := make([]float64, len(predictorNames))
	for c, name := range predictorNames {
		p, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", preprocess.ErrMissingParams, name)
		}
		stdev[c] = p.Stdev
	}

	sigma := float64(size) / 5
	center := float64(size-1) / 2
	var sumG2, sumR2 float64
	for m := 0; m < size; m++ {
		for n := 0; n < size; n++ {
			g := gaussian(m, n, size, sigma)
			sumG2 += g * g
			sumR2 += (float64(m) - center) * (float64(m) - center) * g * g
		}
	}

	numChannels := len(predictorNames)
	weights := make([]float64, size*size*numChannels)
	for m := 0; m < size; m++ {
		for n := 0; n < size; n++ {
			g := gaussian(m, n, size, sigma)
			base := (m*size + n) * numChannels
			weights[base+reflectivityChannel] = stdev[reflectivityChannel] * g / (15 * sumG2)
			// u and v each carry half of the rotation estimate.
			weights[base+uWindChannel] = -0.3 * stdev[uWindChannel] * (float64(m) - center) * g / (2 * sumR2)
			weights[base+vWindChannel] = 0.3 * stdev[vWindChannel] * (float64(n) - center) * g / (2 * sumR2)
		}
	}

	return &scoring.LogisticModel{
		Predictors: append([]string(nil), predictorNames...),
		Rows:       size,
		Columns:    size,
		Weights:    weights,
	}, nil
}

// calibrate fits p = sigmoid(scale*x + bias) to labels by minimizing the
// mean log loss. The search starts from the log-odds of the positive rate.
func calibrate(x []float64, labels []int) (scale, bias float64, err error) {
	var positives int
	for _, l := range labels {
		positives += l
	}
	if positives == 0 || positives == len(labels) {
		return 0, 0, errors.New("calibration needs both classes in the training labels")
	}
	rate := float64(positives) / float64(len(labels))

	n := float64(len(x))
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			var loss float64
			for i, xi := range x {
				z := p[0]*xi + p[1]
				loss += softplus(z) - float64(labels[i])*z
			}
			return loss/n + 0.5*scalePenalty*p[0]*p[0]
		},
		Grad: func(grad, p []float64) {
			grad[0], grad[1] = 0, 0
			for i, xi := range x {
				r := logistic(p[0]*xi+p[1]) - float64(labels[i])
				grad[0] += r * xi
				grad[1] += r
			}
			grad[0] = grad[0]/n + scalePenalty*p[0]
			grad[1] /= n
		},
	}

	start := []float64{1, math.Log(rate / (1 - rate))}
	settings := &optimize.Settings{GradientThreshold: 1e-9}
	result, err := optimize.Minimize(problem, start, settings, &optimize.BFGS{})
	if err != nil {
		return 0, 0, fmt.Errorf("calibrate sample model: %w", err)
	}
	return result.X[0], result.X[1], nil
}

func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}

func logistic(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
