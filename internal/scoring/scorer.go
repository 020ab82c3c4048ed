// Package scoring defines the contract between the interpretation code and
// a trained classifier: a Scorer maps a batch of storm examples to the
// probability of the positive class (extreme future vorticity), and a
// CostFunc turns labels and probabilities into a negatively oriented score.
//
// Concrete scorers include an in-process logistic model and a remote
// scorer that delegates to an HTTP inference service. Decorators add
// batching and metrics without changing per-example outputs.
package scoring

import (
	"context"
	"errors"
	"fmt"

	"storm-importance/internal/imagery"

	"github.com/rs/zerolog/log"
)

// DefaultBatchSize is the number of examples scored per call by Batched.
const DefaultBatchSize = 1000

var ErrOutputLength = errors.New("scoring: scorer returned wrong number of probabilities")

// Scorer predicts the probability of the positive class for every example.
// Implementations must be deterministic for a fixed input.
type Scorer interface {
	Score(ctx context.Context, batch *imagery.ExampleSet) ([]float64, error)
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(ctx context.Context, batch *imagery.ExampleSet) ([]float64, error)

func (f ScorerFunc) Score(ctx context.Context, batch *imagery.ExampleSet) ([]float64, error) {
	return f(ctx, batch)
}

// ChannelAware is implemented by scorers that expect a fixed, ordered set
// of predictor channels.
type ChannelAware interface {
	PredictorNames() []string
}

// PredictorNamesOf returns the channels a scorer expects, if it declares
// them. Decorators forward the question to the scorer they wrap, so a nil
// list means "not declared".
func PredictorNamesOf(s Scorer) ([]string, bool) {
	if ca, ok := s.(ChannelAware); ok {
		names := ca.PredictorNames()
		return names, names != nil
	}
	return nil, false
}

// Differentiable is implemented by scorers that can report how the
// probability of a class responds to each input value.
type Differentiable interface {
	Scorer
	// Gradient returns d p(targetClass) / d x for every value of batch, in
	// the layout of batch.Values. targetClass is 0 or 1.
	Gradient(ctx context.Context, batch *imagery.ExampleSet, targetClass int) ([]float64, error)
}

// MetricsInterface defines the metrics recorded around scorer calls.
type MetricsInterface interface {
	ScorerCallsInc()
	ScorerFailuresInc()
	ScorerLatencyObserve(float64)
	ScoredExamplesAdd(int)
}

// BatchedScorer applies an inner scorer to consecutive chunks of a batch.
type BatchedScorer struct {
	inner     Scorer
	batchSize int
}

// Batched wraps s so that at most batchSize examples are scored per call.
// A non-positive batchSize selects DefaultBatchSize.
func Batched(s Scorer, batchSize int) *BatchedScorer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchedScorer{inner: s, batchSize: batchSize}
}

func (b *BatchedScorer) Score(ctx context.Context, batch *imagery.ExampleSet) ([]float64, error) {
	numExamples := batch.NumExamples()
	if numExamples <= b.batchSize {
		return checked(ctx, b.inner, batch)
	}

	probs := make([]float64, 0, numExamples)
	for first := 0; first < numExamples; first += b.batchSize {
		last := min(first+b.batchSize, numExamples)

		log.Debug().
			Int("first", first).
			Int("last", last-1).
			Int("total", numExamples).
			Msg("Applying model to examples")

		chunk, err := checked(ctx, b.inner, batch.Slice(first, last))
		if err != nil {
			return nil, err
		}
		probs = append(probs, chunk...)
	}
	return probs, nil
}

func (b *BatchedScorer) PredictorNames() []string {
	names, _ := PredictorNamesOf(b.inner)
	return names
}

func checked(ctx context.Context, s Scorer, batch *imagery.ExampleSet) ([]float64, error) {
	probs, err := s.Score(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(probs) != batch.NumExamples() {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrOutputLength, batch.NumExamples(), len(probs))
	}
	return probs, nil
}

// InstrumentedScorer records call counts, failures and latency.
type InstrumentedScorer struct {
	inner   Scorer
	metrics MetricsInterface
}

// Instrumented wraps s with metrics. A nil metrics returns s unchanged.
func Instrumented(s Scorer, metrics MetricsInterface) Scorer {
	if metrics == nil {
		return s
	}
	return &InstrumentedScorer{inner: s, metrics: metrics}
}

func (i *InstrumentedScorer) Score(ctx context.Context, batch *imagery.ExampleSet) ([]float64, error) {
	start := clock.Now()
	i.metrics.ScorerCallsInc()

	probs, err := i.inner.Score(ctx, batch)
	i.metrics.ScorerLatencyObserve(clock.Since(start).Seconds())
	if err != nil {
		i.metrics.ScorerFailuresInc()
		return nil, err
	}
	i.metrics.ScoredExamplesAdd(batch.NumExamples())
	return probs, nil
}

func (i *InstrumentedScorer) PredictorNames() []string {
	names, _ := PredictorNamesOf(i.inner)
	return names
}
