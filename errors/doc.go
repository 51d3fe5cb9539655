// Package errors provides structured error types for the wasm bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the module/function or export it refers to and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLink, errors.KindRegistration).
//		Import("env", "log_u64").
//		Detail("already linked").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseInvoke, "export", "main")
//	err := errors.OutOfBounds(errors.PhaseMemory, 65530, 16, 65536)
//
// Conditions the engine configuration makes impossible are not returned at all:
// Fatal hands them to the abort handler, which terminates the process.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
