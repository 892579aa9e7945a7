// Package config loads the toolkit's YAML configuration: model and report
// locations for both pipelines plus their training hyperparameters.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all cylinder-ai configuration.
type Config struct {
	Vision   PipelineConfig `yaml:"vision"`
	Forecast PipelineConfig `yaml:"forecast"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PipelineConfig configures one pipeline. ModelPath is where inference looks
// for a trained model; CheckpointPath is where training writes its best
// weights.
type PipelineConfig struct {
	ModelPath      string        `yaml:"model_path"`
	CheckpointPath string        `yaml:"checkpoint_path"`
	ReportDir      string        `yaml:"report_dir"`
	Train          TrainSettings `yaml:"train"`
}

// TrainSettings are the training hyperparameters for one pipeline.
type TrainSettings struct {
	Epochs            int     `yaml:"epochs"`
	BatchSize         int     `yaml:"batch_size"`
	LearnRate         float64 `yaml:"learn_rate"`
	EarlyStopPatience int     `yaml:"early_stop_patience"`
	PlateauPatience   int     `yaml:"plateau_patience"`
	PlateauFactor     float64 `yaml:"plateau_factor"`
	Seed              int64   `yaml:"seed"`
}

// LoggingConfig controls the CLI logger.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Vision: PipelineConfig{
			ModelPath:      "models/cylinder_safety.onnx",
			CheckpointPath: "models/cylinder_safety.ckpt",
			ReportDir:      "reports",
			Train: TrainSettings{
				Epochs:            50,
				BatchSize:         32,
				LearnRate:         1e-3,
				EarlyStopPatience: 10,
				PlateauPatience:   5,
				PlateauFactor:     0.5,
			},
		},
		Forecast: PipelineConfig{
			ModelPath:      "models/demand_lstm.onnx",
			CheckpointPath: "models/demand_lstm.ckpt",
			ReportDir:      "reports",
			Train: TrainSettings{
				Epochs:            100,
				BatchSize:         32,
				LearnRate:         1e-3,
				EarlyStopPatience: 15,
				PlateauPatience:   7,
				PlateauFactor:     0.5,
			},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
