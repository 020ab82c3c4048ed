package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPaths              []string
	TrainingPaths          []string
	ParamsPath             string
	ModelPath              string
	ScorerURL              string
	ScorerTimeout          time.Duration
	ScorerRateLimit        float64
	BatchSize              int
	Seed                   uint64
	Workers                int
	TieBreak               string
	CostFunction           string
	BinarizationPercentile float64
	DecisionThreshold      float64
	Normalize              bool
	OutputDir              string
	StorePath              string
	RunName                string
	MetricsPort            int
	LogLevel               string
}

type ConfigFile struct {
	Data struct {
		Paths         []string `yaml:"paths"`
		TrainingPaths []string `yaml:"trainingPaths"`
		ParamsPath    string   `yaml:"paramsPath"`
		Normalize     *bool    `yaml:"normalize"`
	} `yaml:"data"`

	Model struct {
		Path            string  `yaml:"path"`
		ScorerURL       string  `yaml:"scorerURL"`
		ScorerTimeout   string  `yaml:"scorerTimeout"`
		ScorerRateLimit float64 `yaml:"scorerRateLimit"`
		BatchSize       int     `yaml:"batchSize"`
	} `yaml:"model"`

	Permutation struct {
		Seed                   uint64  `yaml:"seed"`
		Workers                int     `yaml:"workers"`
		TieBreak               string  `yaml:"tieBreak"`
		CostFunction           string  `yaml:"costFunction"`
		BinarizationPercentile float64 `yaml:"binarizationPercentile"`
		DecisionThreshold      float64 `yaml:"decisionThreshold"`
	} `yaml:"permutation"`

	Output struct {
		Dir       string `yaml:"dir"`
		StorePath string `yaml:"storePath"`
		RunName   string `yaml:"runName"`
	} `yaml:"output"`

	System struct {
		MetricsPort int    `yaml:"metricsPort"`
		LogLevel    string `yaml:"logLevel"`
	} `yaml:"system"`
}

const (
	defaultSeed                   = 6695
	defaultBatchSize              = 1000
	defaultBinarizationPercentile = 90.0
	defaultDecisionThreshold      = 0.5
	defaultScorerTimeout          = 30 * time.Second
)

func Load() (Settings, error) {
	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	scorerTimeout, err := time.ParseDuration(config.Model.ScorerTimeout)
	if err != nil {
		scorerTimeout = defaultScorerTimeout
	}

	normalize := true
	if config.Data.Normalize != nil {
		normalize = *config.Data.Normalize
	}

	// Override with environment variables if they exist
	settings := Settings{
		DataPaths:              getListFromEnvOrConfig("DATA_PATHS", config.Data.Paths),
		TrainingPaths:          getListFromEnvOrConfig("TRAINING_PATHS", config.Data.TrainingPaths),
		ParamsPath:             getEnvOrDefault("PARAMS_PATH", config.Data.ParamsPath),
		ModelPath:              getEnvOrDefault("MODEL_PATH", config.Model.Path),
		ScorerURL:              getEnvOrDefault("SCORER_URL", config.Model.ScorerURL),
		ScorerTimeout:          getDurationOrDefault("SCORER_TIMEOUT", scorerTimeout),
		ScorerRateLimit:        getFloatFromEnvOrConfig("SCORER_RATE_LIMIT", config.Model.ScorerRateLimit),
		BatchSize:              orDefault(getIntFromEnvOrConfig("BATCH_SIZE", config.Model.BatchSize), defaultBatchSize),
		Seed:                   getUintFromEnvOrConfig("SEED", config.Permutation.Seed, defaultSeed),
		Workers:                orDefault(getIntFromEnvOrConfig("WORKERS", config.Permutation.Workers), 1),
		TieBreak:               getEnvOrDefault("TIE_BREAK", orDefault(config.Permutation.TieBreak, "first")),
		CostFunction:           getEnvOrDefault("COST_FUNCTION", orDefault(config.Permutation.CostFunction, "xentropy")),
		BinarizationPercentile: orDefault(getFloatFromEnvOrConfig("BINARIZATION_PERCENTILE", config.Permutation.BinarizationPercentile), defaultBinarizationPercentile),
		DecisionThreshold:      orDefault(getFloatFromEnvOrConfig("DECISION_THRESHOLD", config.Permutation.DecisionThreshold), defaultDecisionThreshold),
		Normalize:              getBoolFromEnvOrConfig("NORMALIZE", normalize),
		OutputDir:              getEnvOrDefault("OUTPUT_DIR", orDefault(config.Output.Dir, "permutation_output")),
		StorePath:              getEnvOrDefault("STORE_PATH", config.Output.StorePath),
		RunName:                getEnvOrDefault("RUN_NAME", orDefault(config.Output.RunName, "default")),
		MetricsPort:            getIntFromEnvOrConfig("METRICS_PORT", config.System.MetricsPort),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", orDefault(config.System.LogLevel, "info")),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	dataPaths, err := getEnvRequired("DATA_PATHS")
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		DataPaths:              splitOrDefault(dataPaths, nil),
		TrainingPaths:          splitOrDefault(os.Getenv("TRAINING_PATHS"), nil),
		ParamsPath:             os.Getenv("PARAMS_PATH"), // optional
		ModelPath:              os.Getenv("MODEL_PATH"),
		ScorerURL:              os.Getenv("SCORER_URL"),
		ScorerTimeout:          getDurationOrDefault("SCORER_TIMEOUT", defaultScorerTimeout),
		ScorerRateLimit:        getFloatOrDefault("SCORER_RATE_LIMIT", 0),
		BatchSize:              getIntOrDefault("BATCH_SIZE", defaultBatchSize),
		Seed:                   getUintOrDefault("SEED", defaultSeed),
		Workers:                getIntOrDefault("WORKERS", 1),
		TieBreak:               getEnvOrDefault("TIE_BREAK", "first"),
		CostFunction:           getEnvOrDefault("COST_FUNCTION", "xentropy"),
		BinarizationPercentile: getFloatOrDefault("BINARIZATION_PERCENTILE", defaultBinarizationPercentile),
		DecisionThreshold:      getFloatOrDefault("DECISION_THRESHOLD", defaultDecisionThreshold),
		Normalize:              getBoolOrDefault("NORMALIZE", true),
		OutputDir:              getEnvOrDefault("OUTPUT_DIR", "permutation_output"),
		StorePath:              os.Getenv("STORE_PATH"), // optional
		RunName:                getEnvOrDefault("RUN_NAME", "default"),
		MetricsPort:            getIntOrDefault("METRICS_PORT", 0),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// FitPaths returns the files normalization and the binarization threshold
// are fitted on: the training files when given, the evaluated files
// otherwise.
func (s *Settings) FitPaths() []string {
	if len(s.TrainingPaths) > 0 {
		return s.TrainingPaths
	}
	return s.DataPaths
}

// Overrides holds command line values that take precedence over the
// loaded configuration. Zero values leave the setting unchanged.
type Overrides struct {
	OutputDir string
	RunName   string
	Workers   int
	Seed      uint64
	LogLevel  string
}

// ApplyOverrides applies o and validates the result again.
func (s *Settings) ApplyOverrides(o Overrides) error {
	if o.OutputDir != "" {
		s.OutputDir = o.OutputDir
	}
	if o.RunName != "" {
		s.RunName = o.RunName
	}
	if o.Workers != 0 {
		s.Workers = o.Workers
	}
	if o.Seed != 0 {
		s.Seed = o.Seed
	}
	if o.LogLevel != "" {
		s.LogLevel = o.LogLevel
	}
	return validateSettings(s)
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func orDefault[T comparable](v, defaultValue T) T {
	var zero T
	if v == zero {
		return defaultValue
	}
	return v
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getUintOrDefault(key string, defaultValue uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			return u
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getListFromEnvOrConfig(key string, configValues []string) []string {
	if env := os.Getenv(key); env != "" {
		return splitOrDefault(env, nil)
	}
	return configValues
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

func getUintFromEnvOrConfig(key string, configValue, defaultValue uint64) uint64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseUint(env, 10, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	return configValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}
