package errors

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// FatalError describes a condition the engine configuration declares
// impossible. Continuing after one would leave gas accounting or
// determinism silently wrong, so it is never returned as a normal error.
type FatalError struct {
	Cause  error
	Phase  Phase
	Detail string
}

func (e *FatalError) Error() string {
	msg := fmt.Sprintf("[%s] fatal: %s", e.Phase, e.Detail)
	if e.Cause != nil {
		msg += " (caused by: " + e.Cause.Error() + ")"
	}
	return msg
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

// AbortHandler is invoked with every fatal error. It must not return
// normally; the default logs and exits the process.
type AbortHandler func(*FatalError)

var (
	abortMu     sync.RWMutex
	abort       AbortHandler = defaultAbort
	abortLogger              = zap.NewNop()
)

// SetAbortHandler replaces the fatal-error handler and returns the previous one.
// A nil handler restores the default.
func SetAbortHandler(h AbortHandler) AbortHandler {
	abortMu.Lock()
	defer abortMu.Unlock()
	prev := abort
	if h == nil {
		h = defaultAbort
	}
	abort = h
	return prev
}

// SetAbortLogger sets the logger the default handler reports through.
func SetAbortLogger(l *zap.Logger) {
	abortMu.Lock()
	defer abortMu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	abortLogger = l
}

// Fatal hands a configuration-invariant violation to the abort handler.
// If a custom handler returns, Fatal panics with the error.
func Fatal(phase Phase, cause error, format string, args ...any) {
	err := &FatalError{
		Phase:  phase,
		Detail: fmt.Sprintf(format, args...),
		Cause:  cause,
	}

	abortMu.RLock()
	h := abort
	abortMu.RUnlock()

	h(err)
	panic(err)
}

func defaultAbort(err *FatalError) {
	abortMu.RLock()
	l := abortLogger
	abortMu.RUnlock()

	l.Error("aborting on invariant violation", zap.String("phase", string(err.Phase)), zap.Error(err))
	_ = l.Sync()
	fmt.Fprintln(os.Stderr, "wasm-bridge:", err.Error())
	os.Exit(134)
}
