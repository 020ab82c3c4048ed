package scoring

import (
	"errors"
	"fmt"
	"math"
)

// Probabilities are clamped into [MinProbability, MaxProbability] before
// taking logarithms so that cross-entropy stays finite.
const (
	MinProbability = 1e-15
	MaxProbability = 1 - MinProbability
)

var ErrCostInput = errors.New("scoring: invalid cost function input")

// CostFunc scores predictions against binary labels. Lower is better.
type CostFunc func(labels []int, probabilities []float64) (float64, error)

// BinaryCrossEntropy is the mean base-2 cross-entropy between labels and
// clamped probabilities. The probabilities slice is not modified.
func BinaryCrossEntropy(labels []int, probabilities []float64) (float64, error) {
	if err := checkCostInput(labels, probabilities); err != nil {
		return 0, err
	}

	var sum float64
	for i, label := range labels {
		p := clampProbability(probabilities[i])
		y := float64(label)
		sum += y*math.Log2(p) + (1-y)*math.Log2(1-p)
	}
	return -sum / float64(len(labels)), nil
}

// BrierScore is the mean squared difference between probability and label.
func BrierScore(labels []int, probabilities []float64) (float64, error) {
	if err := checkCostInput(labels, probabilities); err != nil {
		return 0, err
	}

	var sum float64
	for i, label := range labels {
		d := probabilities[i] - float64(label)
		sum += d * d
	}
	return sum / float64(len(labels)), nil
}

// CostByName resolves a cost function from configuration.
func CostByName(name string) (CostFunc, error) {
	switch name {
	case "", "xentropy", "cross_entropy":
		return BinaryCrossEntropy, nil
	case "brier":
		return BrierScore, nil
	default:
		return nil, fmt.Errorf("scoring: unknown cost function %q", name)
	}
}

func clampProbability(p float64) float64 {
	if p < MinProbability {
		return MinProbability
	}
	if p > MaxProbability {
		return MaxProbability
	}
	return p
}

func checkCostInput(labels []int, probabilities []float64) error {
	if len(labels) == 0 {
		return fmt.Errorf("%w: no labels", ErrCostInput)
	}
	if len(labels) != len(probabilities) {
		return fmt.Errorf("%w: %d labels but %d probabilities", ErrCostInput, len(labels), len(probabilities))
	}
	for i, label := range labels {
		if label != 0 && label != 1 {
			return fmt.Errorf("%w: label %d at index %d is not 0 or 1", ErrCostInput, label, i)
		}
	}
	return nil
}
