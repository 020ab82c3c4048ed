// Package importance ranks predictor channels by how much a trained
// scorer's cost grows when the channel's values are shuffled.
//
// One run produces two rankings. The single-pass (Breiman) ranking holds
// the cost of permuting each channel alone in the first step. The
// multi-pass (Lakshmanan) ranking is built step by step: every remaining
// channel is permuted on top of the current working copy, the one whose
// permutation hurts most is kept permuted, and the search continues until
// no channel is left.
//
// The engine operates on a private copy of the examples. Within a step,
// trials may run concurrently on independent copies; the winner is chosen
// and committed only after all trials of the step finish.
package importance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"storm-importance/internal/imagery"
	"storm-importance/internal/scoring"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidArgument = errors.New("importance: invalid argument")

// TieBreak decides which channel wins a step when trial costs are equal.
type TieBreak int

const (
	// TieBreakFirst keeps the first channel, in predictor order, that
	// reached the highest cost.
	TieBreakFirst TieBreak = iota
	// TieBreakLast lets any later channel with an equal cost replace the
	// current winner.
	TieBreakLast
)

func (t TieBreak) String() string {
	if t == TieBreakLast {
		return "last"
	}
	return "first"
}

// ParseTieBreak maps "first" or "last" to a TieBreak.
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "", "first":
		return TieBreakFirst, nil
	case "last":
		return TieBreakLast, nil
	default:
		return TieBreakFirst, fmt.Errorf("%w: unknown tie-break %q", ErrInvalidArgument, s)
	}
}

// MetricsInterface defines the metrics recorded during a run.
type MetricsInterface interface {
	TrialsInc()
	TrialCostObserve(float64)
	StepCompleted(float64)
	OriginalCostSet(float64)
}

// Config configures an Engine.
type Config struct {
	// Seed makes the per-example shuffles reproducible. Trial randomness is
	// derived from (Seed, step, channel), so results do not depend on
	// Workers.
	Seed uint64

	// Workers bounds the number of concurrent trials within a step. Values
	// above 1 require a scorer that is safe for concurrent use.
	Workers int

	TieBreak TieBreak
	Observer Observer
	Metrics  MetricsInterface
}

// Engine runs permutation tests.
type Engine struct {
	cfg Config
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine{cfg: cfg}
}

type trial struct {
	channel  int
	cost     float64
	permuted []float64 // E*M*N shuffled values of channel
}

// Run computes the baseline cost and both permutation rankings for scorer
// on examples. examples and labels are never modified. Errors returned by
// scorer or cost are passed through wrapped with the step and predictor
// they occurred at.
func (e *Engine) Run(ctx context.Context, scorer scoring.Scorer, examples *imagery.ExampleSet, labels []int, cost scoring.CostFunc) (*Result, error) {
	if err := validateInputs(scorer, examples, labels, cost); err != nil {
		return nil, err
	}

	working := examples.Clone()
	numChannels := working.NumChannels()

	log.Info().
		Int("examples", working.NumExamples()).
		Int("predictors", numChannels).
		Int("workers", e.cfg.Workers).
		Str("tie_break", e.cfg.TieBreak.String()).
		Msg("Starting permutation test")

	originalCost, err := evaluate(ctx, scorer, working, labels, cost)
	if err != nil {
		return nil, fmt.Errorf("original cost: %w", err)
	}
	if math.IsNaN(originalCost) || math.IsInf(originalCost, 0) {
		return nil, fmt.Errorf("%w: original cost is not finite (%v)", ErrInvalidArgument, originalCost)
	}
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.OriginalCostSet(originalCost)
	}
	log.Info().Float64("cost", originalCost).Msg("Original cost (no permutation)")

	result := &Result{
		OriginalCost: originalCost,
		Step1:        make([]Entry, 0, numChannels),
		Cumulative:   make([]Entry, 0, numChannels),
	}

	remaining := make([]int, numChannels)
	for c := range remaining {
		remaining[c] = c
	}

	for step := 1; len(remaining) > 0; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		trials, err := e.runStep(ctx, step, scorer, working, labels, cost, remaining)
		if err != nil {
			return nil, err
		}

		if step == 1 {
			for _, tr := range trials {
				result.Step1 = append(result.Step1, Entry{Predictor: working.PredictorNames[tr.channel], Cost: tr.cost})
			}
		}

		best := e.selectWorst(trials)
		commit(working, best)

		name := working.PredictorNames[best.channel]
		result.Cumulative = append(result.Cumulative, Entry{Predictor: name, Cost: best.cost})
		remaining = removeChannel(remaining, best.channel)

		log.Info().
			Int("step", step).
			Str("predictor", name).
			Float64("cost", best.cost).
			Msg("Best predictor at step")

		if e.cfg.Metrics != nil {
			e.cfg.Metrics.StepCompleted(best.cost)
		}
		if e.cfg.Observer != nil {
			e.cfg.Observer.OnStepComplete(step, name, best.cost)
		}
	}

	return result, nil
}

func validateInputs(scorer scoring.Scorer, examples *imagery.ExampleSet, labels []int, cost scoring.CostFunc) error {
	if scorer == nil {
		return fmt.Errorf("%w: nil scorer", ErrInvalidArgument)
	}
	if cost == nil {
		return fmt.Errorf("%w: nil cost function", ErrInvalidArgument)
	}
	if examples == nil {
		return fmt.Errorf("%w: nil example set", ErrInvalidArgument)
	}
	if err := examples.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if examples.NumExamples() == 0 {
		return fmt.Errorf("%w: example set is empty", ErrInvalidArgument)
	}
	if len(labels) != examples.NumExamples() {
		return fmt.Errorf("%w: %d labels for %d examples", ErrInvalidArgument, len(labels), examples.NumExamples())
	}
	for i, l := range labels {
		if l != 0 && l != 1 {
			return fmt.Errorf("%w: label %d at index %d is not 0 or 1", ErrInvalidArgument, l, i)
		}
	}
	if expected, ok := scoring.PredictorNamesOf(scorer); ok && !imagery.SameChannels(expected, examples.PredictorNames) {
		return fmt.Errorf("%w: scorer expects predictors %v, examples have %v",
			ErrInvalidArgument, expected, examples.PredictorNames)
	}
	return nil
}

// runStep permutes every remaining channel independently on top of
// working and returns the trials in the order of remaining.
func (e *Engine) runStep(ctx context.Context, step int, scorer scoring.Scorer, working *imagery.ExampleSet, labels []int, cost scoring.CostFunc, remaining []int) ([]trial, error) {
	trials := make([]trial, len(remaining))

	if e.cfg.Workers == 1 || len(remaining) == 1 {
		scratch := working.Clone()
		for i, c := range remaining {
			copy(scratch.Values, working.Values)
			tr, err := e.runTrial(ctx, step, c, scorer, scratch, labels, cost)
			if err != nil {
				return nil, err
			}
			trials[i] = tr
		}
		return trials, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, c := range remaining {
		g.Go(func() error {
			tr, err := e.runTrial(gCtx, step, c, scorer, working.Clone(), labels, cost)
			if err != nil {
				return err
			}
			trials[i] = tr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trials, nil
}

// runTrial shuffles channel c of every example in scratch, which must hold
// a copy of the working data, and scores the result.
func (e *Engine) runTrial(ctx context.Context, step, c int, scorer scoring.Scorer, scratch *imagery.ExampleSet, labels []int, cost scoring.CostFunc) (trial, error) {
	name := scratch.PredictorNames[c]
	log.Debug().Int("step", step).Str("predictor", name).Msg("Trying predictor")

	rng := trialRand(e.cfg.Seed, step, c)
	grid := scratch.Rows * scratch.Columns
	numExamples := scratch.NumExamples()
	permuted := make([]float64, numExamples*grid)

	for ex := 0; ex < numExamples; ex++ {
		vals := scratch.ChannelSlice(ex, c, permuted[ex*grid:(ex+1)*grid])
		rng.Shuffle(len(vals), func(i, j int) {
			vals[i], vals[j] = vals[j], vals[i]
		})
		scratch.SetChannelSlice(ex, c, vals)
	}

	trialCost, err := evaluate(ctx, scorer, scratch, labels, cost)
	if err != nil {
		return trial{}, fmt.Errorf("step %d, predictor %q: %w", step, name, err)
	}
	// Non-finite costs cannot be ranked.
	if math.IsNaN(trialCost) || math.IsInf(trialCost, 0) {
		return trial{}, fmt.Errorf("%w: step %d, predictor %q: cost is not finite (%v)",
			ErrInvalidArgument, step, name, trialCost)
	}

	log.Debug().Int("step", step).Str("predictor", name).Float64("cost", trialCost).Msg("Resulting cost")
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.TrialsInc()
		e.cfg.Metrics.TrialCostObserve(trialCost)
	}

	return trial{channel: c, cost: trialCost, permuted: permuted}, nil
}

// selectWorst returns the trial with the highest cost.
func (e *Engine) selectWorst(trials []trial) trial {
	best := 0
	for i := 1; i < len(trials); i++ {
		switch e.cfg.TieBreak {
		case TieBreakLast:
			if trials[i].cost >= trials[best].cost {
				best = i
			}
		default:
			if trials[i].cost > trials[best].cost {
				best = i
			}
		}
	}
	return trials[best]
}

// commit leaves the winning channel permuted in the working copy.
func commit(working *imagery.ExampleSet, tr trial) {
	grid := working.Rows * working.Columns
	for ex := 0; ex < working.NumExamples(); ex++ {
		working.SetChannelSlice(ex, tr.channel, tr.permuted[ex*grid:(ex+1)*grid])
	}
}

func evaluate(ctx context.Context, scorer scoring.Scorer, set *imagery.ExampleSet, labels []int, cost scoring.CostFunc) (float64, error) {
	probs, err := scorer.Score(ctx, set)
	if err != nil {
		return 0, err
	}
	if len(probs) != len(labels) {
		return 0, fmt.Errorf("%w: %w: expected %d, got %d",
			ErrInvalidArgument, scoring.ErrOutputLength, len(labels), len(probs))
	}
	return cost(labels, probs)
}

func trialRand(seed uint64, step, channel int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(step)<<32|uint64(channel)))
}

func removeChannel(remaining []int, c int) []int {
	out := remaining[:0]
	for _, r := range remaining {
		if r != c {
			out = append(out, r)
		}
	}
	return out
}
