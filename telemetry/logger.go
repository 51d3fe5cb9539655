// Package telemetry builds the bridge's logger and metrics.
package telemetry

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wippyai/wasm-bridge/abi"
	"github.com/wippyai/wasm-bridge/config"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/linker"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// NewLogger builds a logger from cfg. Console output goes to stderr; with
// cfg.File set, logs are also written there and rotated by size.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}

	var encCfg zapcore.EncoderConfig
	var console zapcore.Encoder
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		console = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		console = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(console, zapcore.Lock(os.Stderr), level),
	}
	if cfg.File != "" {
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileCfg),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    cfg.MaxSizeMB,
				MaxBackups: cfg.MaxBackups,
			}),
			level,
		))
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

// Install makes l the logger of every bridge package and of the fatal
// abort path.
func Install(l *zap.Logger) {
	trampoline.SetLogger(l.Named("trampoline"))
	engine.SetLogger(l.Named("engine"))
	linker.SetLogger(l.Named("linker"))
	runtime.SetLogger(l.Named("runtime"))
	abi.SetLogger(l.Named("abi"))
	errors.SetAbortLogger(l)
}
