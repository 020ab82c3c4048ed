package imagery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// LoadJSON reads an example set written by SaveJSON.
func LoadJSON(path string) (*ExampleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read example file %s: %w", path, err)
	}

	var set ExampleSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse example file %s: %w", path, err)
	}
	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("example file %s: %w", path, err)
	}

	log.Info().
		Str("path", path).
		Int("examples", set.NumExamples()).
		Int("rows", set.Rows).
		Int("columns", set.Columns).
		Strs("predictors", set.PredictorNames).
		Msg("Loaded example set")

	return &set, nil
}

// LoadManyJSON reads and concatenates several example files.
func LoadManyJSON(paths []string) (*ExampleSet, error) {
	sets := make([]*ExampleSet, 0, len(paths))
	for _, p := range paths {
		set, err := LoadJSON(p)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return Concat(sets...)
}

// SaveJSON writes the example set to path, creating parent directories.
func SaveJSON(set *ExampleSet, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal example set: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
