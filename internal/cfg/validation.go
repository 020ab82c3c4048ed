package cfg

import (
	"fmt"
	"time"

	"storm-importance/internal/importance"
	"storm-importance/internal/scoring"

	"github.com/rs/zerolog"
)

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate inputs
	if len(settings.DataPaths) == 0 {
		return fmt.Errorf("at least one data file must be specified")
	}

	// Validate scorer source
	if settings.ModelPath == "" && settings.ScorerURL == "" {
		return fmt.Errorf("either a model path or a scorer URL is required")
	}
	if settings.ModelPath != "" && settings.ScorerURL != "" {
		return fmt.Errorf("model path and scorer URL are mutually exclusive")
	}
	if settings.ScorerTimeout < time.Second || settings.ScorerTimeout > 10*time.Minute {
		return fmt.Errorf("scorer timeout must be between 1s and 10m, got %v", settings.ScorerTimeout)
	}

	if settings.ScorerRateLimit < 0 {
		return fmt.Errorf("scorer rate limit cannot be negative, got %f", settings.ScorerRateLimit)
	}

	// Validate integer values
	if settings.BatchSize <= 0 || settings.BatchSize > 100000 {
		return fmt.Errorf("batch size must be between 1 and 100000, got %d", settings.BatchSize)
	}
	if settings.Workers <= 0 || settings.Workers > 256 {
		return fmt.Errorf("workers must be between 1 and 256, got %d", settings.Workers)
	}
	if settings.MetricsPort != 0 && (settings.MetricsPort < 1024 || settings.MetricsPort > 65535) {
		return fmt.Errorf("metrics port must be 0 (disabled) or between 1024 and 65535, got %d", settings.MetricsPort)
	}

	// Validate float values
	if settings.BinarizationPercentile <= 0 || settings.BinarizationPercentile > 100 {
		return fmt.Errorf("binarization percentile must be between 0 and 100, got %f", settings.BinarizationPercentile)
	}
	if settings.DecisionThreshold <= 0 || settings.DecisionThreshold >= 1 {
		return fmt.Errorf("decision threshold must be between 0 and 1, got %f", settings.DecisionThreshold)
	}

	// Validate names
	if _, err := importance.ParseTieBreak(settings.TieBreak); err != nil {
		return fmt.Errorf("tie break must be \"first\" or \"last\", got %q", settings.TieBreak)
	}
	if _, err := scoring.CostByName(settings.CostFunction); err != nil {
		return fmt.Errorf("unknown cost function %q", settings.CostFunction)
	}
	if _, err := zerolog.ParseLevel(settings.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}
	if settings.RunName == "" {
		return fmt.Errorf("run name cannot be empty")
	}
	if settings.OutputDir == "" {
		return fmt.Errorf("output directory cannot be empty")
	}

	return nil
}
