// Command gensample writes synthetic storm-centered example sets, their
// normalization params and a logistic model calibrated on the training set,
// so the permutation pipeline can be run without real radar data.
//
// Each storm is a Gaussian reflectivity core whose intensity drives the
// future vorticity target. Winds add rotation around the core, temperature
// is background noise.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"

	"storm-importance/internal/imagery"
	"storm-importance/internal/preprocess"
	"storm-importance/internal/scoring"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var predictorNames = []string{"reflectivity_dbz", "temperature_kelvins", "u_wind_m_s01", "v_wind_m_s01"}

const (
	reflectivityChannel = iota
	temperatureChannel
	uWindChannel
	vWindChannel
)

func main() {
	var (
		outputDir   = flag.String("output", "sample", "Output directory")
		numTraining = flag.Int("training", 400, "Number of training examples")
		numExamples = flag.Int("validation", 200, "Number of validation examples")
		gridSize    = flag.Int("grid", 16, "Grid rows and columns")
		seed        = flag.Uint64("seed", 1, "Random seed")
		percentile  = flag.Float64("percentile", 90, "Binarization percentile the model is calibrated for")
	)
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))

	training := generate(rng, *numTraining, *gridSize)
	validation := generate(rng, *numExamples, *gridSize)

	if err := imagery.SaveJSON(training, filepath.Join(*outputDir, "training.json")); err != nil {
		log.Fatal().Err(err).Msg("Failed to write training examples")
	}
	if err := imagery.SaveJSON(validation, filepath.Join(*outputDir, "validation.json")); err != nil {
		log.Fatal().Err(err).Msg("Failed to write validation examples")
	}

	params, err := preprocess.FitMany(training)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to fit normalization params")
	}
	if err := preprocess.SaveParams(params, filepath.Join(*outputDir, "params.json")); err != nil {
		log.Fatal().Err(err).Msg("Failed to write normalization params")
	}

	model, err := sampleModel(training, params, *percentile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build model")
	}
	if err := scoring.SaveLogisticModel(model, filepath.Join(*outputDir, "model.json")); err != nil {
		log.Fatal().Err(err).Msg("Failed to write model")
	}

	log.Info().
		Str("output", *outputDir).
		Int("training", *numTraining).
		Int("validation", *numExamples).
		Int("grid", *gridSize).
		Msg("Sample data written")
}

func gaussian(m, n, size int, sigma float64) float64 {
	center := float64(size-1) / 2
	dy, dx := float64(m)-center, float64(n)-center
	return math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
}

func generate(rng *rand.Rand, numExamples, size int) *imagery.ExampleSet {
	numChannels := len(predictorNames)
	set := &imagery.ExampleSet{
		PredictorNames: append([]string(nil), predictorNames...),
		Rows:           size,
		Columns:        size,
		Values:         make([]float64, numExamples*size*size*numChannels),
		Targets:        make([]float64, numExamples*size*size),
		StormIDs:       make([]string, numExamples),
		StormSteps:     make([]int, numExamples),
	}
	sigma := float64(size) / 5

	for e := 0; e < numExamples; e++ {
		intensity := rng.NormFloat64()
		rotation := rng.NormFloat64()
		background := 285 + 8*rng.NormFloat64()

		set.StormIDs[e] = fmt.Sprintf("storm_%04d", e/12)
		set.StormSteps[e] = e % 12

		for m := 0; m < size; m++ {
			for n := 0; n < size; n++ {
				g := gaussian(m, n, size, sigma)
				center := float64(size-1) / 2

				set.Set(e, m, n, reflectivityChannel, 20+15*(1+intensity)*g+2*rng.NormFloat64())
				set.Set(e, m, n, temperatureChannel, background+rng.NormFloat64())
				// Counter-clockwise flow around the core scaled by rotation.
				set.Set(e, m, n, uWindChannel, -rotation*(float64(m)-center)*g+rng.NormFloat64())
				set.Set(e, m, n, vWindChannel, rotation*(float64(n)-center)*g+rng.NormFloat64())

				vorticity := 1e-3 * (intensity + 0.3*rotation + 0.3*rng.NormFloat64()) * g
				set.Targets[(e*size+m)*size+n] = vorticity
			}
		}
	}
	return set
}
