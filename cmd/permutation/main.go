package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storm-importance/internal/cfg"
	"storm-importance/internal/imagery"
	"storm-importance/internal/importance"
	"storm-importance/internal/metrics"
	"storm-importance/internal/preprocess"
	"storm-importance/internal/report"
	"storm-importance/internal/scoring"
	"storm-importance/internal/storage"
	"storm-importance/internal/verification"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Parse command line arguments
	var (
		envFile   = flag.String("env", ".env", "Optional .env file loaded before the configuration")
		outputDir = flag.String("output", "", "Output directory for reports (overrides config)")
		runName   = flag.String("run", "", "Run name used for stored results (overrides config)")
		workers   = flag.Int("workers", 0, "Concurrent trials per step (overrides config)")
		seed      = flag.Uint64("seed", 0, "Shuffle seed (overrides config when non-zero)")
		logLevel  = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("file", *envFile).Msg("Failed to load env file")
	}

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Override config with command line arguments
	err = config.ApplyOverrides(cfg.Overrides{
		OutputDir: *outputDir,
		RunName:   *runName,
		Workers:   *workers,
		Seed:      *seed,
		LogLevel:  *logLevel,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid command line override")
	}

	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config); err != nil {
		log.Fatal().Err(err).Msg("Permutation test failed")
	}
}

func run(ctx context.Context, c cfg.Settings) error {
	runID := uuid.NewString()
	log.Info().Str("run", c.RunName).Str("run_id", runID).Msg("Starting run")

	m := initializeMetrics(ctx, c)
	mw := metrics.NewWrapper(m)

	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	examples, labels, err := prepareExamples(c, store)
	if err != nil {
		return err
	}

	scorer, err := buildScorer(ctx, c, mw)
	if err != nil {
		return err
	}

	cost, err := scoring.CostByName(c.CostFunction)
	if err != nil {
		return err
	}
	tieBreak, err := importance.ParseTieBreak(c.TieBreak)
	if err != nil {
		return err
	}

	engine := importance.New(importance.Config{
		Seed:     c.Seed,
		Workers:  c.Workers,
		TieBreak: tieBreak,
		Observer: importance.LogObserver{Logger: log.Logger, Run: c.RunName},
		Metrics:  mw,
	})

	start := time.Now()
	result, err := engine.Run(ctx, scorer, examples, labels, cost)
	if err != nil {
		return err
	}
	log.Info().
		Dur("elapsed", time.Since(start)).
		Str("most_important_single_pass", result.Step1Ranking()[0].Predictor).
		Str("most_important_multi_pass", result.Cumulative[0].Predictor).
		Msg("Permutation test complete")

	scores := evaluate(ctx, c, scorer, examples, labels)

	reporter := report.NewReporter(report.Input{
		Run:          c.RunName,
		RunID:        runID,
		Result:       result,
		Verification: scores,
		CostFunction: c.CostFunction,
	}, c.OutputDir)
	if err := reporter.GenerateReport(); err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	if store != nil {
		rec := storage.ResultRecord{
			ID:           runID,
			Run:          c.RunName,
			Timestamp:    time.Now(),
			Seed:         c.Seed,
			TieBreak:     tieBreak.String(),
			CostFunction: c.CostFunction,
			NumExamples:  examples.NumExamples(),
			Result:       result.Record(),
			Verification: scores,
		}
		if _, err := store.StoreResult(rec); err != nil {
			return fmt.Errorf("store result: %w", err)
		}
		log.Info().Str("run", c.RunName).Str("run_id", runID).Msg("Result stored")
	}

	return nil
}

// initializeMetrics registers collectors with the default registry and
// serves them when a metrics port is configured. Otherwise collectors go
// to a private registry that is never exposed.
func initializeMetrics(ctx context.Context, c cfg.Settings) *metrics.Metrics {
	if c.MetricsPort == 0 {
		return metrics.NewWithRegistry(prometheus.NewRegistry())
	}

	m := metrics.New()
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		log.Info().Int("port", c.MetricsPort).Msg("Serving metrics")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return m
}

// initializeStorage opens the result store if STORE_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.StorePath == "" {
		return nil
	}
	if err := os.MkdirAll(c.StorePath, 0o755); err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	store, err := storage.New(c.StorePath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without persistence")
		return nil
	}
	return store
}

// prepareExamples loads the evaluated examples, normalizes them and turns
// their target grids into binary labels.
func prepareExamples(c cfg.Settings, store *storage.Store) (*imagery.ExampleSet, []int, error) {
	examples, err := imagery.LoadManyJSON(c.DataPaths)
	if err != nil {
		return nil, nil, err
	}
	if examples.Targets == nil {
		return nil, nil, fmt.Errorf("examples carry no target grids to derive labels from")
	}

	fitSets, err := loadFitSets(c)
	if err != nil {
		return nil, nil, err
	}

	threshold, err := preprocess.BinarizationThreshold(c.BinarizationPercentile, fitSets...)
	if err != nil {
		return nil, nil, fmt.Errorf("binarization threshold: %w", err)
	}
	log.Info().
		Float64("percentile", c.BinarizationPercentile).
		Float64("threshold", threshold).
		Msg("Binarization threshold computed")

	labels, err := preprocess.Binarize(examples, threshold)
	if err != nil {
		return nil, nil, err
	}

	if !c.Normalize {
		return examples, labels, nil
	}

	params, err := normalizationParams(c, store, fitSets)
	if err != nil {
		return nil, nil, err
	}
	normalized, err := preprocess.Apply(examples, params)
	if err != nil {
		return nil, nil, fmt.Errorf("normalize examples: %w", err)
	}
	return normalized, labels, nil
}

func loadFitSets(c cfg.Settings) ([]*imagery.ExampleSet, error) {
	paths := c.FitPaths()
	sets := make([]*imagery.ExampleSet, 0, len(paths))
	for _, p := range paths {
		set, err := imagery.LoadJSON(p)
		if err != nil {
			return nil, err
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// normalizationParams reuses parameters from the params file or the store
// when present and fits them on the training sets otherwise.
func normalizationParams(c cfg.Settings, store *storage.Store, fitSets []*imagery.ExampleSet) (preprocess.Params, error) {
	if c.ParamsPath != "" {
		if _, err := os.Stat(c.ParamsPath); err == nil {
			return preprocess.LoadParams(c.ParamsPath)
		}
	}
	if store != nil {
		params, err := store.GetParams(c.RunName)
		if err == nil {
			log.Info().Str("run", c.RunName).Msg("Using stored normalization params")
			return params, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	params, err := preprocess.FitMany(fitSets...)
	if err != nil {
		return nil, fmt.Errorf("fit normalization params: %w", err)
	}
	log.Info().Int("predictors", len(params)).Msg("Normalization params fitted")

	if c.ParamsPath != "" {
		if err := preprocess.SaveParams(params, c.ParamsPath); err != nil {
			return nil, err
		}
	}
	if store != nil {
		if err := store.StoreParams(c.RunName, params); err != nil {
			log.Warn().Err(err).Msg("Failed to store normalization params")
		}
	}
	return params, nil
}

func buildScorer(ctx context.Context, c cfg.Settings, mw *metrics.Wrapper) (scoring.Scorer, error) {
	var base scoring.Scorer
	if c.ModelPath != "" {
		model, err := scoring.LoadLogisticModel(c.ModelPath)
		if err != nil {
			return nil, err
		}
		base = model
	} else {
		remote := scoring.NewRemote(c.ScorerURL, nil, c.ScorerTimeout).
			SetRateLimit(c.ScorerRateLimit, c.Workers)
		if info, err := remote.LoadInfo(ctx); err != nil {
			log.Warn().Err(err).Msg("Remote model info unavailable, predictor names will not be checked")
		} else {
			log.Info().Strs("predictors", info.Predictors).Msg("Remote model info loaded")
		}
		base = remote
		log.Info().Str("url", c.ScorerURL).Msg("Using remote scorer")
	}
	return scoring.Batched(scoring.Instrumented(base, mw), c.BatchSize), nil
}

// evaluate scores the unpermuted examples once more for the verification
// report. Failures are logged and leave the report without verification.
func evaluate(ctx context.Context, c cfg.Settings, scorer scoring.Scorer, examples *imagery.ExampleSet, labels []int) *verification.Scores {
	probs, err := scorer.Score(ctx, examples)
	if err != nil {
		log.Warn().Err(err).Msg("Verification skipped: scoring failed")
		return nil
	}
	scores, err := verification.Evaluate(labels, probs, c.DecisionThreshold)
	if err != nil {
		log.Warn().Err(err).Msg("Verification skipped")
		return nil
	}
	log.Info().
		Float64("auc", scores.AUC).
		Float64("csi", scores.CSI).
		Float64("frequency_bias", scores.FrequencyBias).
		Msg("Model verification")
	return scores
}
