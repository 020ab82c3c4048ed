// Package preprocess turns raw storm imagery into model inputs: per-channel
// z-score normalization (fit, apply, invert) and binarization of the
// future-vorticity target grids into yes/no labels.
package preprocess

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"storm-importance/internal/imagery"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingParams = errors.New("preprocess: missing normalization params")
	ErrZeroStdev     = errors.New("preprocess: zero standard deviation")
	ErrNoData        = errors.New("preprocess: no data")
)

// ChannelParams are the z-score parameters of one predictor.
type ChannelParams struct {
	Mean  float64 `json:"mean" yaml:"mean"`
	Stdev float64 `json:"stdev" yaml:"stdev"`
}

// Params maps predictor name to its normalization parameters.
type Params map[string]ChannelParams

// Accumulator estimates mean and standard deviation of one predictor over
// values that arrive in batches, without keeping the values around.
type Accumulator struct {
	Count        int     `json:"num_values"`
	Mean         float64 `json:"mean_value"`
	MeanOfSquare float64 `json:"mean_of_squares"`
}

// Update folds a new batch of values into the running estimates. Each
// running mean is a count-weighted average of the old estimate and the
// batch mean.
func (a *Accumulator) Update(values []float64) {
	if len(values) == 0 {
		return
	}

	batchMean := stat.Mean(values, nil)
	batchMeanSq := floats.Dot(values, values) / float64(len(values))

	weights := []float64{float64(a.Count), float64(len(values))}
	a.Mean = stat.Mean([]float64{a.Mean, batchMean}, weights)
	a.MeanOfSquare = stat.Mean([]float64{a.MeanOfSquare, batchMeanSq}, weights)
	a.Count += len(values)
}

// Stdev returns the sample standard deviation (n-1 denominator).
func (a *Accumulator) Stdev() float64 {
	if a.Count < 2 {
		return 0
	}
	n := float64(a.Count)
	variance := n / (n - 1) * (a.MeanOfSquare - a.Mean*a.Mean)
	if variance < 0 {
		// rounding on near-constant data
		variance = 0
	}
	return math.Sqrt(variance)
}

// Fit computes mean and sample standard deviation for every predictor.
func Fit(set *imagery.ExampleSet) (Params, error) {
	if set.NumExamples() == 0 {
		return nil, ErrNoData
	}

	params := make(Params, set.NumChannels())
	for c, name := range set.PredictorNames {
		mean, stdev := stat.MeanStdDev(set.ChannelValues(c), nil)
		params[name] = ChannelParams{Mean: mean, Stdev: stdev}
	}
	return params, nil
}

// FitMany computes normalization params across several example sets with
// the streaming Accumulator. All sets must share predictor names.
func FitMany(sets ...*imagery.ExampleSet) (Params, error) {
	var names []string
	var accs []Accumulator

	for _, set := range sets {
		if names == nil {
			names = set.PredictorNames
			accs = make([]Accumulator, len(names))
		} else if !imagery.SameChannels(names, set.PredictorNames) {
			return nil, fmt.Errorf("%w: predictor names differ: %v vs %v",
				imagery.ErrInvalidShape, names, set.PredictorNames)
		}

		for c := range names {
			accs[c].Update(set.ChannelValues(c))
		}
	}
	if names == nil || accs[0].Count == 0 {
		return nil, ErrNoData
	}

	params := make(Params, len(names))
	for c, name := range names {
		params[name] = ChannelParams{Mean: accs[c].Mean, Stdev: accs[c].Stdev()}
		log.Debug().
			Str("predictor", name).
			Float64("mean", params[name].Mean).
			Float64("stdev", params[name].Stdev).
			Msg("Normalization params")
	}
	return params, nil
}

// Apply returns a z-score normalized copy of set.
func Apply(set *imagery.ExampleSet, params Params) (*imagery.ExampleSet, error) {
	return transform(set, params, func(v float64, p ChannelParams) float64 {
		return (v - p.Mean) / p.Stdev
	})
}

// Invert maps normalized values back to physical units, returning a copy.
func Invert(set *imagery.ExampleSet, params Params) (*imagery.ExampleSet, error) {
	return transform(set, params, func(v float64, p ChannelParams) float64 {
		return p.Mean + p.Stdev*v
	})
}

func transform(set *imagery.ExampleSet, params Params, fn func(float64, ChannelParams) float64) (*imagery.ExampleSet, error) {
	channelParams := make([]ChannelParams, set.NumChannels())
	for c, name := range set.PredictorNames {
		p, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingParams, name)
		}
		if p.Stdev == 0 || math.IsNaN(p.Stdev) {
			return nil, fmt.Errorf("%w: %q", ErrZeroStdev, name)
		}
		channelParams[c] = p
	}

	out := set.Clone()
	numChannels := set.NumChannels()
	for i, v := range out.Values {
		out.Values[i] = fn(v, channelParams[i%numChannels])
	}
	return out, nil
}

// SaveParams writes params as JSON, or YAML when path ends in .yaml/.yml.
func SaveParams(params Params, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(params)
	} else {
		data, err = json.MarshalIndent(params, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal normalization params: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadParams reads params written by SaveParams.
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read normalization params %s: %w", path, err)
	}

	params := make(Params)
	if isYAML(path) {
		err = yaml.Unmarshal(data, &params)
	} else {
		err = json.Unmarshal(data, &params)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse normalization params %s: %w", path, err)
	}
	return params, nil
}

func isYAML(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}
