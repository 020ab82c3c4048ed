package preprocess

import (
	"errors"
	"fmt"
	"sort"

	"storm-importance/internal/imagery"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrNoTargets = errors.New("preprocess: example set has no target grids")

// TargetMaxima returns the maximum target value of every example.
func TargetMaxima(set *imagery.ExampleSet) ([]float64, error) {
	if set.Targets == nil {
		return nil, ErrNoTargets
	}

	maxima := make([]float64, set.NumExamples())
	for e := range maxima {
		maxima[e] = floats.Max(set.TargetGrid(e))
	}
	return maxima, nil
}

// BinarizationThreshold returns the q-th percentile (0-100) of the
// per-example target maxima over all sets. The percentile is the empirical
// quantile: the smallest observed maximum whose CDF reaches q/100.
func BinarizationThreshold(percentile float64, sets ...*imagery.ExampleSet) (float64, error) {
	if percentile < 0 || percentile > 100 {
		return 0, fmt.Errorf("preprocess: percentile must be in [0, 100], got %f", percentile)
	}

	var maxima []float64
	for _, set := range sets {
		m, err := TargetMaxima(set)
		if err != nil {
			return 0, err
		}
		maxima = append(maxima, m...)
	}
	if len(maxima) == 0 {
		return 0, ErrNoData
	}

	sort.Float64s(maxima)
	threshold := stat.Quantile(percentile/100, stat.Empirical, maxima, nil)

	log.Info().
		Float64("percentile", percentile).
		Float64("threshold", threshold).
		Int("examples", len(maxima)).
		Msg("Binarization threshold")

	return threshold, nil
}

// Binarize labels each example 1 when the maximum of its target grid
// reaches threshold, 0 otherwise.
func Binarize(set *imagery.ExampleSet, threshold float64) ([]int, error) {
	maxima, err := TargetMaxima(set)
	if err != nil {
		return nil, err
	}

	labels := make([]int, len(maxima))
	for i, m := range maxima {
		if m >= threshold {
			labels[i] = 1
		}
	}
	return labels, nil
}
