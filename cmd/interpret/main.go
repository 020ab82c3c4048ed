// Command interpret computes saliency maps and backwards-optimized examples
// for a logistic storm model.
//
// Saliency and the optimized examples are written as example-set JSON with
// the input's channels, so they can be inspected with the same tooling as
// the data. A summary file records the class probabilities before and
// after optimization.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"storm-importance/internal/imagery"
	"storm-importance/internal/interpret"
	"storm-importance/internal/preprocess"
	"storm-importance/internal/scoring"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	saliencyFile  = "saliency.json"
	optimizedFile = "bwo_examples.json"
	summaryFile   = "bwo_summary.json"
)

type options struct {
	dataPath     string
	modelPath    string
	paramsPath   string
	outputDir    string
	targetClass  int
	numExamples  int
	iterations   int
	learningRate float64
}

type summary struct {
	TargetClass          int       `json:"target_class"`
	Iterations           int       `json:"num_iterations"`
	LearningRate         float64   `json:"learning_rate"`
	InitialProbabilities []float64 `json:"initial_probabilities"`
	FinalProbabilities   []float64 `json:"final_probabilities"`
	InitialLoss          float64   `json:"initial_loss"`
	FinalLoss            float64   `json:"final_loss"`
}

func main() {
	var opts options
	flag.StringVar(&opts.dataPath, "data", "", "Example set to explain (JSON)")
	flag.StringVar(&opts.modelPath, "model", "", "Path to logistic model (JSON or YAML)")
	flag.StringVar(&opts.paramsPath, "params", "", "Normalization params; inputs are taken as normalized when empty")
	flag.StringVar(&opts.outputDir, "output", "interpretation", "Output directory")
	flag.IntVar(&opts.targetClass, "class", 1, "Target class (0 or 1)")
	flag.IntVar(&opts.numExamples, "examples", 1, "Number of leading examples to explain")
	flag.IntVar(&opts.iterations, "iterations", interpret.DefaultIterations, "Backwards optimization iterations")
	flag.Float64Var(&opts.learningRate, "learning-rate", interpret.DefaultLearningRate, "Backwards optimization learning rate")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}
	if opts.modelPath == "" {
		opts.modelPath = os.Getenv("MODEL_PATH")
	}
	if opts.paramsPath == "" {
		opts.paramsPath = os.Getenv("PARAMS_PATH")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatal().Err(err).Msg("Interpretation failed")
	}
}

func run(ctx context.Context, opts options) error {
	if opts.dataPath == "" || opts.modelPath == "" {
		return errors.New("both a data file and a model file are required")
	}

	examples, err := imagery.LoadJSON(opts.dataPath)
	if err != nil {
		return err
	}
	if opts.numExamples < 1 || opts.numExamples > examples.NumExamples() {
		return fmt.Errorf("examples must be between 1 and %d, got %d", examples.NumExamples(), opts.numExamples)
	}
	examples = examples.Slice(0, opts.numExamples)

	model, err := scoring.LoadLogisticModel(opts.modelPath)
	if err != nil {
		return err
	}

	var params preprocess.Params
	if opts.paramsPath != "" {
		params, err = preprocess.LoadParams(opts.paramsPath)
		if err != nil {
			return err
		}
		examples, err = preprocess.Apply(examples, params)
		if err != nil {
			return fmt.Errorf("normalize examples: %w", err)
		}
	}

	saliency, err := interpret.Saliency(ctx, model, examples, opts.targetClass)
	if err != nil {
		return fmt.Errorf("saliency: %w", err)
	}
	if err := imagery.SaveJSON(saliency, filepath.Join(opts.outputDir, saliencyFile)); err != nil {
		return err
	}

	res, err := interpret.BackwardsOptimize(ctx, model, examples, opts.targetClass, interpret.BWOConfig{
		Iterations:   opts.iterations,
		LearningRate: opts.learningRate,
		Params:       params,
	})
	if err != nil {
		return fmt.Errorf("backwards optimization: %w", err)
	}

	optimized := res.Optimized
	if res.Denormalized != nil {
		optimized = res.Denormalized
	}
	if err := imagery.SaveJSON(optimized, filepath.Join(opts.outputDir, optimizedFile)); err != nil {
		return err
	}

	data, err := json.MarshalIndent(summary{
		TargetClass:          res.TargetClass,
		Iterations:           opts.iterations,
		LearningRate:         opts.learningRate,
		InitialProbabilities: res.InitialProbabilities,
		FinalProbabilities:   res.FinalProbabilities,
		InitialLoss:          res.InitialLoss,
		FinalLoss:            res.FinalLoss,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(opts.outputDir, summaryFile), data, 0o600); err != nil {
		return err
	}

	log.Info().
		Str("output", opts.outputDir).
		Int("examples", examples.NumExamples()).
		Int("class", opts.targetClass).
		Msg("Interpretation written")
	return nil
}
