package config

import (
	"bytes"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/wippyai/wasm-bridge/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WASM_BRIDGE_"

// Load reads a TOML file, applies environment overrides and validates.
// Precedence: environment, then file, then defaults. An empty path skips
// the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read config file")
		}
		if err := Parse(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML into cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse TOML")
	}
	return nil
}

// Marshal encodes cfg as TOML.
func Marshal(cfg *Config) ([]byte, error) {
	out, err := toml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "encode TOML")
	}
	return out, nil
}

type lookupFunc func(string) (string, bool)

// applyEnvOverrides applies WASM_BRIDGE_<SECTION>_<FIELD> overrides.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var err error
	num := func(name string, bits int, set func(uint64)) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || err != nil {
			return
		}
		n, perr := strconv.ParseUint(v, 10, bits)
		if perr != nil {
			err = errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Value(v).
				Cause(perr).
				Detail("%s%s must be an unsigned integer", EnvPrefix, name).
				Build()
			return
		}
		set(n)
	}
	flag := func(name string, dst *bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || err != nil {
			return
		}
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			err = errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Value(v).
				Cause(perr).
				Detail("%s%s must be a boolean", EnvPrefix, name).
				Build()
			return
		}
		*dst = b
	}

	str("ENGINE", &cfg.Engine)
	num("CACHE_SIZE", 31, func(n uint64) { cfg.CacheSize = int(n) })
	num("MEMORY_LIMIT_PAGES", 32, func(n uint64) { cfg.MemoryLimitPages = uint32(n) })
	num("MAX_STACK_BYTES", 32, func(n uint64) { cfg.MaxStackBytes = uint32(n) })
	num("DEFAULT_GAS_LIMIT", 64, func(n uint64) { cfg.DefaultGasLimit = n })

	str("LOG_LEVEL", &cfg.Log.Level)
	flag("LOG_DEVELOPMENT", &cfg.Log.Development)
	str("LOG_FILE", &cfg.Log.File)
	num("LOG_MAX_SIZE_MB", 31, func(n uint64) { cfg.Log.MaxSizeMB = int(n) })
	num("LOG_MAX_BACKUPS", 31, func(n uint64) { cfg.Log.MaxBackups = int(n) })

	flag("METRICS_ENABLED", &cfg.Metrics.Enabled)
	str("METRICS_NAMESPACE", &cfg.Metrics.Namespace)
	return err
}
