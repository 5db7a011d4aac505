// Package config loads engine configuration from environment variables.
package config

import (
	"github.com/kelseyhightower/envconfig"

	"github.com/YuminosukeSato/automl/pkg/errors"
)

// Config holds every tunable of the training and serving engine.
// All values have working defaults so the engine runs with an empty environment.
type Config struct {
	Engine   EngineConfig
	Registry RegistryConfig
}

type EngineConfig struct {
	LogLevel string `envconfig:"AUTOML_LOG_LEVEL" default:"info"`

	// Seed drives the train/test shuffle and every stochastic estimator.
	// Repeated analyze calls on identical input must reproduce identical splits.
	Seed int64 `envconfig:"AUTOML_SEED" default:"42"`

	// TestFraction is the held-out share of rows used for evaluation.
	TestFraction float64 `envconfig:"AUTOML_TEST_FRACTION" default:"0.2"`

	// Workers bounds the pool fitting candidate algorithms in parallel.
	// Zero or negative means sequential fitting.
	Workers int `envconfig:"AUTOML_WORKERS" default:"4"`
}

type RegistryConfig struct {
	// Dir is the root directory of the model registry
	// (gob artifacts under models/, metadata in index.json).
	Dir string `envconfig:"AUTOML_REGISTRY_DIR" default:"./automl-registry"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process environment config")
	}
	if cfg.Engine.TestFraction <= 0 || cfg.Engine.TestFraction >= 1 {
		return nil, errors.NewValidationError("AUTOML_TEST_FRACTION",
			"must be strictly between 0 and 1", cfg.Engine.TestFraction)
	}
	return &cfg, nil
}

// Default returns the configuration the engine uses when the caller does not
// load one from the environment.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			LogLevel:     "info",
			Seed:         42,
			TestFraction: 0.2,
			Workers:      4,
		},
		Registry: RegistryConfig{
			Dir: "./automl-registry",
		},
	}
}
