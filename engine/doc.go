// Package engine puts the three execution engines behind one capability
// interface.
//
//	InterpreterEngine  wazero interpreter, instrumented fuel
//	CompilerEngineA    wazero compiler, instrumented fuel
//	CompilerEngineB    wasmtime (cgo), native fuel
//
// # Lifecycle
//
//	mod, _ := eng.Compile(ctx, code)       // Module
//	tpl, _ := mod.Prepare(ctx, resolver)    // Template, shareable
//	inst, _ := tpl.Instantiate(ctx, store, fuel)
//	v, err := inst.Call(ctx, "main")
//	kind := eng.Classify(err)
//
// Host imports are resolved twice: Prepare checks presence and shape, and
// every call looks the binding up again through the Store so templates stay
// free of per-runtime state.
//
// # Classification
//
// Classify inspects engine trap codes before host errors. Fuel exhaustion is
// OutOfGasError, stack exhaustion UnrecoverableError, every other code trap
// DeterministicError. Traps that the configuration rules out (misaligned
// atomics, interrupts, process exit) abort through errors.Fatal.
package engine
