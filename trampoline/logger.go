package trampoline

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/hostfn"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the trampoline package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the trampoline package's logger.
// This must be called before any calls are dispatched.
func SetLogger(l *zap.Logger) {
	logger = l
}

func zapImport(sig hostfn.Signature) zap.Field {
	return zap.String("import", sig.Key())
}

func zapStatus(b uint8) zap.Field {
	return zap.Uint8("status", b)
}
