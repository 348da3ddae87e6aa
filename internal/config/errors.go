package config

import "errors"

// Sentinel errors. Load failures wrap ErrLoadConfig; a loaded but unusable
// configuration wraps ErrInvalidConfig.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
