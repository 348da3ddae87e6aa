// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Validation and load errors wrap this package's sentinel errors.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// LogFile, when set, also writes logs to a size-rotated file.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":5000".
	Addr string `koanf:"addr"`

	// ModelDir is the directory artifact file names are resolved against.
	ModelDir string `koanf:"model_dir"`

	// Artifact file names inside ModelDir. An empty name leaves the slot empty.
	XGBModelFile string `koanf:"xgb_model_file"`
	CNNModelFile string `koanf:"cnn_model_file"`
	ScalerFile   string `koanf:"scaler_file"`
	EncoderFile  string `koanf:"encoder_file"`
	FeaturesFile string `koanf:"features_file"`

	// FluxLength is the expected flux series length when no network is loaded.
	FluxLength int `koanf:"flux_length"`

	// FallbackFeatures is the tabular feature order used when neither the
	// feature list nor the model names its inputs.
	FallbackFeatures []string `koanf:"fallback_features"`

	// SequenceLabels optionally names the sequence model outputs when the
	// label encoder does not match them; empty means outputs are named by
	// index.
	SequenceLabels []string `koanf:"sequence_labels"`

	// CacheSize bounds the prediction cache; 0 disables it.
	CacheSize int `koanf:"cache_size"`

	// BatchWorkers caps concurrent inference per batch request.
	BatchWorkers int `koanf:"batch_workers"`

	// MaxBatchSize caps the number of items per batch request.
	MaxBatchSize int `koanf:"max_batch_size"`

	// MaxBodyBytes caps request bodies, including CSV uploads.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// CatalogFile overrides the embedded model cards, stats and examples.
	CatalogFile string `koanf:"catalog_file"`

	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string `koanf:"cors_origins"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "text",
		Addr:         ":5000",
		ModelDir:     "models",
		XGBModelFile: "exoplanet_xgboost_model.json",
		CNNModelFile: "exoplanet_cnn_model.json",
		ScalerFile:   "exoplanet_final_scaler.json",
		EncoderFile:  "exoplanet_final_label_encoder.json",
		FeaturesFile: "exoplanet_final_features.json",
		FluxLength:   3197,
		FallbackFeatures: []string{
			"koi_period", "koi_duration", "koi_depth", "koi_prad",
			"koi_teq", "koi_insol", "koi_steff", "koi_srad",
		},
		CacheSize:      1024,
		BatchWorkers:   runtime.NumCPU(),
		MaxBatchSize:   1000,
		MaxBodyBytes:   32 << 20,
		CORSOrigins:    []string{"*"},
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.FluxLength <= 0:
		return fmt.Errorf("%w: flux_length must be positive, got %d", ErrInvalidConfig, c.FluxLength)
	case c.CacheSize < 0:
		return fmt.Errorf("%w: cache_size must not be negative, got %d", ErrInvalidConfig, c.CacheSize)
	case c.BatchWorkers <= 0:
		return fmt.Errorf("%w: batch_workers must be positive, got %d", ErrInvalidConfig, c.BatchWorkers)
	case c.MaxBatchSize <= 0:
		return fmt.Errorf("%w: max_batch_size must be positive, got %d", ErrInvalidConfig, c.MaxBatchSize)
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("%w: max_body_bytes must be positive, got %d", ErrInvalidConfig, c.MaxBodyBytes)
	case len(c.FallbackFeatures) == 0:
		return fmt.Errorf("%w: fallback_features must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	for _, name := range []string{c.XGBModelFile, c.CNNModelFile, c.ScalerFile, c.EncoderFile, c.FeaturesFile} {
		if filepath.IsAbs(name) {
			return fmt.Errorf("%w: artifact %q must be relative to model_dir", ErrInvalidConfig, name)
		}
	}
	return nil
}
