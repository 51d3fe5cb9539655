// Package config loads bridge settings from TOML with environment overrides.
package config

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
)

// Config is the top-level configuration.
type Config struct {
	Engine           string        `toml:"engine" validate:"oneof=interpreter compiler wasmtime"`
	CacheSize        int           `toml:"cache_size" validate:"gte=0"`
	MemoryLimitPages uint32        `toml:"memory_limit_pages" validate:"lte=65535"`
	MaxStackBytes    uint32        `toml:"max_stack_bytes"`
	DefaultGasLimit  uint64        `toml:"default_gas_limit" validate:"gt=0"`
	Log              LogConfig     `toml:"log"`
	Metrics          MetricsConfig `toml:"metrics"`
}

// LogConfig configures telemetry.NewLogger.
type LogConfig struct {
	Level       string `toml:"level" validate:"oneof=debug info warn error"`
	Development bool   `toml:"development"`
	// File, when set, receives logs rotated by size.
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `toml:"max_backups" validate:"gte=0"`
}

// MetricsConfig configures telemetry.NewMetrics.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Namespace string `toml:"namespace" validate:"omitempty,promname"`
}

// Default returns a valid configuration.
func Default() *Config {
	return &Config{
		Engine:          "compiler",
		CacheSize:       64,
		DefaultGasLimit: 10_000_000,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Namespace: "wasm_bridge",
		},
	}
}

var promName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("promname", func(fl validator.FieldLevel) bool {
		return promName.MatchString(fl.Field().String())
	})
	return v
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "validate config")
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return errors.InvalidInput(errors.PhaseConfig, "metrics.namespace is required when metrics are enabled")
	}
	return nil
}

// EngineKind returns the configured engine.
func (c *Config) EngineKind() (engine.Kind, error) {
	return engine.ParseKind(c.Engine)
}

// EngineConfig returns engine-wide limits.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		MemoryLimitPages: c.MemoryLimitPages,
		MaxStackBytes:    c.MaxStackBytes,
	}
}
