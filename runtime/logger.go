package runtime

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the runtime package logger. No-op by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the runtime package logger.
// This must be called before any context is created.
func SetLogger(l *zap.Logger) {
	logger = l
}
