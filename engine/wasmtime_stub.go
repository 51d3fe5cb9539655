//go:build !cgo

package engine

import "github.com/wippyai/wasm-bridge/errors"

const wasmtimeAvailable = false

// NewWasmtime reports that CompilerEngineB needs a cgo build.
func NewWasmtime(Config) (Engine, error) {
	return nil, errors.Unsupported(errors.PhaseEngine, "wasmtime requires cgo")
}
