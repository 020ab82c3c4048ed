package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"storm-importance/internal/imagery"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
)

var (
	ErrModelShape  = errors.New("scoring: model does not match input shape")
	ErrTargetClass = errors.New("scoring: target class must be 0 or 1")
)

// LogisticModel is a linear classifier over the full storm-centered grid:
// one weight per (row, column, channel) in the same layout as
// imagery.ExampleSet values, followed by a sigmoid.
type LogisticModel struct {
	Predictors []string  `json:"predictor_names" yaml:"predictor_names"`
	Rows       int       `json:"num_rows" yaml:"num_rows"`
	Columns    int       `json:"num_columns" yaml:"num_columns"`
	Weights    []float64 `json:"weights" yaml:"weights"`
	Bias       float64   `json:"bias" yaml:"bias"`
}

// Validate checks that the weight vector matches the declared grid.
func (m *LogisticModel) Validate() error {
	want := m.Rows * m.Columns * len(m.Predictors)
	if want == 0 || len(m.Weights) != want {
		return fmt.Errorf("%w: %d weights for %dx%dx%d grid",
			ErrModelShape, len(m.Weights), m.Rows, m.Columns, len(m.Predictors))
	}
	return nil
}

// PredictorNames implements ChannelAware.
func (m *LogisticModel) PredictorNames() []string {
	return m.Predictors
}

func (m *LogisticModel) checkInput(batch *imagery.ExampleSet) error {
	if batch.Rows != m.Rows || batch.Columns != m.Columns || !imagery.SameChannels(batch.PredictorNames, m.Predictors) {
		return fmt.Errorf("%w: model %dx%d %v, input %dx%d %v", ErrModelShape,
			m.Rows, m.Columns, m.Predictors, batch.Rows, batch.Columns, batch.PredictorNames)
	}
	return nil
}

// Score implements Scorer.
func (m *LogisticModel) Score(ctx context.Context, batch *imagery.ExampleSet) ([]float64, error) {
	if err := m.checkInput(batch); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := len(m.Weights)
	probs := make([]float64, batch.NumExamples())
	for e := range probs {
		x := batch.Values[e*size : (e+1)*size]
		probs[e] = sigmoid(m.Bias + floats.Dot(m.Weights, x))
	}
	return probs, nil
}

// Gradient implements Differentiable. For the positive class the gradient
// of example e is p(1-p)w, for the negative class its negation.
func (m *LogisticModel) Gradient(ctx context.Context, batch *imagery.ExampleSet, targetClass int) ([]float64, error) {
	if targetClass != 0 && targetClass != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrTargetClass, targetClass)
	}
	probs, err := m.Score(ctx, batch)
	if err != nil {
		return nil, err
	}

	size := len(m.Weights)
	grad := make([]float64, len(batch.Values))
	for e, p := range probs {
		slope := p * (1 - p)
		if targetClass == 0 {
			slope = -slope
		}
		floats.ScaleTo(grad[e*size:(e+1)*size], slope, m.Weights)
	}
	return grad, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	ez := math.Exp(z)
	return ez / (1 + ez)
}

// LoadLogisticModel reads a model file in JSON, or YAML for .yaml/.yml.
func LoadLogisticModel(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}

	var m LogisticModel
	if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
		err = yaml.Unmarshal(data, &m)
	} else {
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse model file %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("model_path", path).
		Strs("predictors", m.Predictors).
		Int("rows", m.Rows).
		Int("columns", m.Columns).
		Msg("Logistic model loaded successfully")

	return &m, nil
}

// SaveLogisticModel writes m as indented JSON.
func SaveLogisticModel(m *LogisticModel, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
