package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var envKeys = []string{
	"CONFIG_FILE", "DATA_PATHS", "TRAINING_PATHS", "PARAMS_PATH", "MODEL_PATH",
	"SCORER_URL", "SCORER_TIMEOUT", "SCORER_RATE_LIMIT", "BATCH_SIZE", "SEED", "WORKERS", "TIE_BREAK",
	"COST_FUNCTION", "BINARIZATION_PERCENTILE", "DECISION_THRESHOLD", "NORMALIZE",
	"OUTPUT_DIR", "STORE_PATH", "RUN_NAME", "METRICS_PORT", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name: "defaults with required fields",
			envVars: map[string]string{
				"DATA_PATHS": "validation.json",
				"MODEL_PATH": "model.json",
			},
			validate: func(t *testing.T, settings Settings) {
				if len(settings.DataPaths) != 1 || settings.DataPaths[0] != "validation.json" {
					t.Errorf("expected DataPaths [validation.json], got %v", settings.DataPaths)
				}
				if settings.Seed != defaultSeed {
					t.Errorf("expected default seed %d, got %d", defaultSeed, settings.Seed)
				}
				if settings.Workers != 1 {
					t.Errorf("expected 1 worker, got %d", settings.Workers)
				}
				if settings.BatchSize != 1000 {
					t.Errorf("expected batch size 1000, got %d", settings.BatchSize)
				}
				if settings.TieBreak != "first" {
					t.Errorf("expected tie break first, got %s", settings.TieBreak)
				}
				if settings.BinarizationPercentile != 90 {
					t.Errorf("expected percentile 90, got %f", settings.BinarizationPercentile)
				}
				if !settings.Normalize {
					t.Error("expected normalization on by default")
				}
				if settings.ScorerTimeout != 30*time.Second {
					t.Errorf("expected scorer timeout 30s, got %v", settings.ScorerTimeout)
				}
				if settings.MetricsPort != 0 {
					t.Errorf("expected metrics disabled, got port %d", settings.MetricsPort)
				}
				if got := settings.FitPaths(); len(got) != 1 || got[0] != "validation.json" {
					t.Errorf("expected fit paths to fall back to data paths, got %v", got)
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				"DATA_PATHS":        "a.json, b.json",
				"TRAINING_PATHS":    "train.json",
				"SCORER_URL":        "http://localhost:8500",
				"SCORER_TIMEOUT":    "5s",
				"SCORER_RATE_LIMIT": "20",
				"SEED":              "42",
				"WORKERS":           "4",
				"TIE_BREAK":         "last",
				"COST_FUNCTION":     "brier",
				"NORMALIZE":         "false",
				"METRICS_PORT":      "9090",
				"RUN_NAME":          "validation",
			},
			validate: func(t *testing.T, settings Settings) {
				if len(settings.DataPaths) != 2 || settings.DataPaths[1] != "b.json" {
					t.Errorf("expected trimmed data paths, got %v", settings.DataPaths)
				}
				if got := settings.FitPaths(); len(got) != 1 || got[0] != "train.json" {
					t.Errorf("expected training paths, got %v", got)
				}
				if settings.Seed != 42 || settings.Workers != 4 {
					t.Errorf("unexpected seed/workers %d/%d", settings.Seed, settings.Workers)
				}
				if settings.TieBreak != "last" || settings.CostFunction != "brier" {
					t.Errorf("unexpected tie break/cost %s/%s", settings.TieBreak, settings.CostFunction)
				}
				if settings.Normalize {
					t.Error("expected normalization off")
				}
				if settings.ScorerRateLimit != 20 {
					t.Errorf("expected rate limit 20, got %f", settings.ScorerRateLimit)
				}
				if settings.ScorerTimeout != 5*time.Second {
					t.Errorf("expected scorer timeout 5s, got %v", settings.ScorerTimeout)
				}
				if settings.RunName != "validation" {
					t.Errorf("expected run name validation, got %s", settings.RunName)
				}
			},
		},
		{
			name:    "missing data paths",
			envVars: map[string]string{"MODEL_PATH": "model.json"},
			wantErr: true,
		},
		{
			name:    "missing scorer",
			envVars: map[string]string{"DATA_PATHS": "validation.json"},
			wantErr: true,
		},
		{
			name: "invalid tie break",
			envVars: map[string]string{
				"DATA_PATHS": "validation.json",
				"MODEL_PATH": "model.json",
				"TIE_BREAK":  "random",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			settings, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.validate != nil && err == nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearEnv(t)

	configContent := `
data:
  paths: ["validation_20110425.json"]
  trainingPaths: ["training_2010.json", "training_2011.json"]
  paramsPath: "norm.yaml"
  normalize: false

model:
  path: "model.yaml"
  scorerTimeout: "45s"
  batchSize: 256

permutation:
  seed: 12
  workers: 2
  tieBreak: "last"
  binarizationPercentile: 95
  decisionThreshold: 0.4

output:
  dir: "out"
  storePath: "data"
  runName: "spring"

system:
  metricsPort: 9100
  logLevel: "debug"
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", configPath)
	t.Setenv("WORKERS", "3")

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(settings.TrainingPaths) != 2 {
		t.Errorf("expected 2 training paths, got %v", settings.TrainingPaths)
	}
	if settings.Normalize {
		t.Error("expected normalize false from config")
	}
	if settings.ScorerTimeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %v", settings.ScorerTimeout)
	}
	if settings.BatchSize != 256 {
		t.Errorf("expected batch size 256, got %d", settings.BatchSize)
	}
	if settings.Seed != 12 {
		t.Errorf("expected seed 12, got %d", settings.Seed)
	}
	if settings.Workers != 3 {
		t.Errorf("expected env to override workers to 3, got %d", settings.Workers)
	}
	if settings.BinarizationPercentile != 95 || settings.DecisionThreshold != 0.4 {
		t.Errorf("unexpected percentile/threshold %f/%f", settings.BinarizationPercentile, settings.DecisionThreshold)
	}
	if settings.CostFunction != "xentropy" {
		t.Errorf("expected default cost function, got %s", settings.CostFunction)
	}
	if settings.StorePath != "data" || settings.RunName != "spring" || settings.OutputDir != "out" {
		t.Errorf("unexpected output settings %+v", settings)
	}
	if settings.MetricsPort != 9100 || settings.LogLevel != "debug" {
		t.Errorf("unexpected system settings %d/%s", settings.MetricsPort, settings.LogLevel)
	}
}

func TestLoadFromYAML_Errors(t *testing.T) {
	clearEnv(t)

	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}

	badPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(badPath, []byte("data: [unclosed"), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", badPath)
	if _, err := Load(); err == nil {
		t.Error("expected error for malformed config file")
	}
}
