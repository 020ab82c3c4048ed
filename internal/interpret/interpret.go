// Package interpret explains individual predictions of a differentiable
// scorer. Saliency maps show how the probability of a class responds to
// each input value. Backwards optimization adjusts an example by gradient
// descent until the scorer is confident in the class.
//
// Both work on normalized inputs, the same space the scorer sees.
package interpret

import (
	"context"
	"errors"
	"fmt"
	"math"

	"storm-importance/internal/imagery"
	"storm-importance/internal/preprocess"
	"storm-importance/internal/scoring"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	DefaultIterations   = 200
	DefaultLearningRate = 0.01

	// epsilon bounds the gradient normalizers away from zero.
	epsilon = 1e-7

	logEvery = 100
)

var ErrInvalidArgument = errors.New("interpret: invalid argument")

// Saliency returns, for every input value, the sensitivity of the
// probability of targetClass to that value. The result has the shape and
// channels of examples. Positive values mean increasing the input raises
// the probability. Values are divided by their standard deviation over the
// whole batch.
func Saliency(ctx context.Context, model scoring.Differentiable, examples *imagery.ExampleSet, targetClass int) (*imagery.ExampleSet, error) {
	if err := checkArgs(model, examples, targetClass); err != nil {
		return nil, err
	}

	_, grad, _, err := lossGradient(ctx, model, examples, targetClass)
	if err != nil {
		return nil, err
	}

	// Saliency points down the loss, towards the class.
	floats.Scale(-1/math.Max(stat.PopStdDev(grad, nil), epsilon), grad)

	out := &imagery.ExampleSet{
		PredictorNames: append([]string(nil), examples.PredictorNames...),
		Rows:           examples.Rows,
		Columns:        examples.Columns,
		Values:         grad,
	}
	return out, nil
}

// BWOConfig controls backwards optimization. Zero values select the
// defaults.
type BWOConfig struct {
	Iterations   int
	LearningRate float64

	// Params, when set, are used to express the optimized input in
	// physical units as well.
	Params preprocess.Params
}

// BWOResult holds an optimized batch and the probabilities of the target
// class before and after optimization.
type BWOResult struct {
	TargetClass          int
	Optimized            *imagery.ExampleSet
	Denormalized         *imagery.ExampleSet
	InitialProbabilities []float64
	FinalProbabilities   []float64
	InitialLoss          float64
	FinalLoss            float64
}

// BackwardsOptimize starts from a copy of init and repeatedly steps every
// input value against the gradient of mean((p - 1)^2), where p is the
// probability of targetClass. Each step moves by LearningRate times the
// gradient divided by its root mean square. init is not modified.
func BackwardsOptimize(ctx context.Context, model scoring.Differentiable, init *imagery.ExampleSet, targetClass int, cfg BWOConfig) (*BWOResult, error) {
	if err := checkArgs(model, init, targetClass); err != nil {
		return nil, err
	}
	if cfg.Iterations == 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.LearningRate == 0 {
		cfg.LearningRate = DefaultLearningRate
	}
	if cfg.Iterations < 0 {
		return nil, fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidArgument, cfg.Iterations)
	}
	if cfg.LearningRate <= 0 || cfg.LearningRate >= 1 {
		return nil, fmt.Errorf("%w: learning rate must be in (0, 1), got %v", ErrInvalidArgument, cfg.LearningRate)
	}

	optimized := init.Clone()
	res := &BWOResult{TargetClass: targetClass, Optimized: optimized}

	for i := 0; i < cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		loss, grad, probs, err := lossGradient(ctx, model, optimized, targetClass)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		if i == 0 {
			res.InitialLoss = loss
			res.InitialProbabilities = probs
		}
		if i%logEvery == 0 {
			log.Debug().
				Int("iteration", i).
				Int("iterations", cfg.Iterations).
				Float64("loss", loss).
				Msg("Backwards optimization")
		}

		rms := floats.Norm(grad, 2) / math.Sqrt(float64(len(grad)))
		floats.AddScaled(optimized.Values, -cfg.LearningRate/math.Max(rms, epsilon), grad)
	}

	loss, _, probs, err := lossGradient(ctx, model, optimized, targetClass)
	if err != nil {
		return nil, err
	}
	res.FinalLoss = loss
	res.FinalProbabilities = probs

	log.Info().
		Int("class", targetClass).
		Int("iterations", cfg.Iterations).
		Float64("initial_loss", res.InitialLoss).
		Float64("final_loss", res.FinalLoss).
		Msg("Backwards optimization complete")

	if cfg.Params != nil {
		res.Denormalized, err = preprocess.Invert(optimized, cfg.Params)
		if err != nil {
			return nil, fmt.Errorf("denormalize optimized input: %w", err)
		}
	}
	return res, nil
}

// lossGradient evaluates mean((p - 1)^2) over the batch, where p is the
// probability of targetClass, and its gradient with respect to every
// input value. It also returns p.
func lossGradient(ctx context.Context, model scoring.Differentiable, set *imagery.ExampleSet, targetClass int) (float64, []float64, []float64, error) {
	probs, err := model.Score(ctx, set)
	if err != nil {
		return 0, nil, nil, err
	}
	numExamples := set.NumExamples()
	if len(probs) != numExamples {
		return 0, nil, nil, fmt.Errorf("%w: expected %d, got %d", scoring.ErrOutputLength, numExamples, len(probs))
	}
	grad, err := model.Gradient(ctx, set, targetClass)
	if err != nil {
		return 0, nil, nil, err
	}
	if len(grad) != len(set.Values) {
		return 0, nil, nil, fmt.Errorf("%w: gradient has %d values, input %d",
			ErrInvalidArgument, len(grad), len(set.Values))
	}

	size := len(set.Values) / numExamples
	var loss float64
	for e, p := range probs {
		if targetClass == 0 {
			p = 1 - p
			probs[e] = p
		}
		loss += (p - 1) * (p - 1)
		floats.Scale(2*(p-1)/float64(numExamples), grad[e*size:(e+1)*size])
	}
	return loss / float64(numExamples), grad, probs, nil
}

func checkArgs(model scoring.Differentiable, examples *imagery.ExampleSet, targetClass int) error {
	if model == nil {
		return fmt.Errorf("%w: nil model", ErrInvalidArgument)
	}
	if examples == nil || examples.NumExamples() == 0 {
		return fmt.Errorf("%w: no examples", ErrInvalidArgument)
	}
	if err := examples.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if targetClass != 0 && targetClass != 1 {
		return fmt.Errorf("%w: target class must be 0 or 1, got %d", ErrInvalidArgument, targetClass)
	}
	return nil
}
