// Package imagery holds storm-centered example sets: E examples, each an
// M-by-N grid with C named predictor channels, plus optional target grids
// and storm metadata.
//
// Predictor values are stored in one flat row-major slice so that copies
// and per-channel slices stay cheap. The value for example e, row m,
// column n and channel c lives at ((e*M+m)*N+n)*C+c.
package imagery

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidShape       = errors.New("imagery: invalid shape")
	ErrDuplicatePredictor = errors.New("imagery: duplicate predictor name")
	ErrUnknownPredictor   = errors.New("imagery: unknown predictor")
)

// ExampleSet is a batch of storm-centered grids.
type ExampleSet struct {
	PredictorNames []string  `json:"predictor_names"`
	Rows           int       `json:"num_rows"`
	Columns        int       `json:"num_columns"`
	Values         []float64 `json:"predictor_values"`

	// Targets holds one M-by-N target grid per example (future vorticity).
	// Nil when the set carries no targets.
	Targets []float64 `json:"target_values,omitempty"`

	StormIDs   []string `json:"storm_ids,omitempty"`
	StormSteps []int    `json:"storm_steps,omitempty"`
}

// New builds an example set from predictor names, grid dimensions and the
// flat predictor values, and validates the result.
func New(names []string, rows, columns int, values []float64) (*ExampleSet, error) {
	set := &ExampleSet{
		PredictorNames: append([]string(nil), names...),
		Rows:           rows,
		Columns:        columns,
		Values:         values,
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// Validate checks dimensions, value counts and predictor name uniqueness.
func (s *ExampleSet) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil example set", ErrInvalidShape)
	}
	if s.Rows <= 0 || s.Columns <= 0 {
		return fmt.Errorf("%w: grid must be at least 1x1, got %dx%d", ErrInvalidShape, s.Rows, s.Columns)
	}
	if len(s.PredictorNames) == 0 {
		return fmt.Errorf("%w: no predictor channels", ErrInvalidShape)
	}

	seen := make(map[string]struct{}, len(s.PredictorNames))
	for _, name := range s.PredictorNames {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicatePredictor, name)
		}
		seen[name] = struct{}{}
	}

	if len(s.Values)%s.exampleSize() != 0 {
		return fmt.Errorf("%w: %d values is not a multiple of %d (rows*columns*channels)",
			ErrInvalidShape, len(s.Values), s.exampleSize())
	}

	numExamples := s.NumExamples()
	if s.Targets != nil && len(s.Targets) != numExamples*s.gridSize() {
		return fmt.Errorf("%w: expected %d target values, got %d",
			ErrInvalidShape, numExamples*s.gridSize(), len(s.Targets))
	}
	if s.StormIDs != nil && len(s.StormIDs) != numExamples {
		return fmt.Errorf("%w: expected %d storm IDs, got %d", ErrInvalidShape, numExamples, len(s.StormIDs))
	}
	if s.StormSteps != nil && len(s.StormSteps) != numExamples {
		return fmt.Errorf("%w: expected %d storm steps, got %d", ErrInvalidShape, numExamples, len(s.StormSteps))
	}
	return nil
}

// NumChannels returns C.
func (s *ExampleSet) NumChannels() int {
	return len(s.PredictorNames)
}

// NumExamples returns E.
func (s *ExampleSet) NumExamples() int {
	size := s.exampleSize()
	if size == 0 {
		return 0
	}
	return len(s.Values) / size
}

func (s *ExampleSet) gridSize() int {
	return s.Rows * s.Columns
}

func (s *ExampleSet) exampleSize() int {
	return s.Rows * s.Columns * len(s.PredictorNames)
}

// ChannelIndex returns the position of the named predictor.
func (s *ExampleSet) ChannelIndex(name string) (int, error) {
	for i, n := range s.PredictorNames {
		if n == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownPredictor, name)
}

func (s *ExampleSet) index(e, m, n, c int) int {
	return ((e*s.Rows+m)*s.Columns+n)*len(s.PredictorNames) + c
}

// At returns the predictor value at example e, row m, column n, channel c.
func (s *ExampleSet) At(e, m, n, c int) float64 {
	return s.Values[s.index(e, m, n, c)]
}

// Set stores v at example e, row m, column n, channel c.
func (s *ExampleSet) Set(e, m, n, c int, v float64) {
	s.Values[s.index(e, m, n, c)] = v
}

// ChannelSlice copies the M*N values of channel c for example e into dst,
// allocating when dst is too small, and returns it.
func (s *ExampleSet) ChannelSlice(e, c int, dst []float64) []float64 {
	size := s.gridSize()
	if cap(dst) < size {
		dst = make([]float64, size)
	}
	dst = dst[:size]

	numChannels := len(s.PredictorNames)
	base := e * s.exampleSize()
	for i := range dst {
		dst[i] = s.Values[base+i*numChannels+c]
	}
	return dst
}

// SetChannelSlice overwrites channel c of example e with vals (length M*N).
func (s *ExampleSet) SetChannelSlice(e, c int, vals []float64) {
	numChannels := len(s.PredictorNames)
	base := e * s.exampleSize()
	for i, v := range vals {
		s.Values[base+i*numChannels+c] = v
	}
}

// ChannelValues returns every value of channel c across all examples.
func (s *ExampleSet) ChannelValues(c int) []float64 {
	numChannels := len(s.PredictorNames)
	out := make([]float64, 0, len(s.Values)/numChannels)
	for i := c; i < len(s.Values); i += numChannels {
		out = append(out, s.Values[i])
	}
	return out
}

// TargetGrid returns the target grid of example e, or nil without targets.
func (s *ExampleSet) TargetGrid(e int) []float64 {
	if s.Targets == nil {
		return nil
	}
	size := s.gridSize()
	return s.Targets[e*size : (e+1)*size]
}

// Clone returns a deep copy.
func (s *ExampleSet) Clone() *ExampleSet {
	out := &ExampleSet{
		PredictorNames: append([]string(nil), s.PredictorNames...),
		Rows:           s.Rows,
		Columns:        s.Columns,
		Values:         append([]float64(nil), s.Values...),
	}
	if s.Targets != nil {
		out.Targets = append([]float64(nil), s.Targets...)
	}
	if s.StormIDs != nil {
		out.StormIDs = append([]string(nil), s.StormIDs...)
	}
	if s.StormSteps != nil {
		out.StormSteps = append([]int(nil), s.StormSteps...)
	}
	return out
}

// Slice returns a copy holding examples [first, last).
func (s *ExampleSet) Slice(first, last int) *ExampleSet {
	size := s.exampleSize()
	out := &ExampleSet{
		PredictorNames: append([]string(nil), s.PredictorNames...),
		Rows:           s.Rows,
		Columns:        s.Columns,
		Values:         append([]float64(nil), s.Values[first*size:last*size]...),
	}
	if s.Targets != nil {
		grid := s.gridSize()
		out.Targets = append([]float64(nil), s.Targets[first*grid:last*grid]...)
	}
	if s.StormIDs != nil {
		out.StormIDs = append([]string(nil), s.StormIDs[first:last]...)
	}
	if s.StormSteps != nil {
		out.StormSteps = append([]int(nil), s.StormSteps[first:last]...)
	}
	return out
}

// SameChannels reports whether both name lists match in content and order.
func SameChannels(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Concat joins example sets that share predictors and grid dimensions.
func Concat(sets ...*ExampleSet) (*ExampleSet, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", ErrInvalidShape)
	}
	out := sets[0].Clone()
	for _, s := range sets[1:] {
		if !SameChannels(out.PredictorNames, s.PredictorNames) {
			return nil, fmt.Errorf("%w: predictor names differ: %v vs %v",
				ErrInvalidShape, out.PredictorNames, s.PredictorNames)
		}
		if s.Rows != out.Rows || s.Columns != out.Columns {
			return nil, fmt.Errorf("%w: grid %dx%d vs %dx%d",
				ErrInvalidShape, out.Rows, out.Columns, s.Rows, s.Columns)
		}
		if (out.Targets == nil) != (s.Targets == nil) {
			return nil, fmt.Errorf("%w: cannot mix sets with and without targets", ErrInvalidShape)
		}
		out.Values = append(out.Values, s.Values...)
		if s.Targets != nil {
			out.Targets = append(out.Targets, s.Targets...)
		}
		out.StormIDs = appendMeta(out.StormIDs, s.StormIDs)
		out.StormSteps = appendMeta(out.StormSteps, s.StormSteps)
	}
	return out, out.Validate()
}

func appendMeta[T any](dst, src []T) []T {
	if dst == nil || src == nil {
		return nil
	}
	return append(dst, src...)
}
