// Package wasmbridge is a deterministic host-call bridge for WebAssembly.
//
// Guest modules import host functions taking up to eight u64 arguments and
// returning at most one u64. Each import is bound to a native entry point
// and dispatched through a trampoline that reports a result and a status
// byte. Execution is gas metered the same way on every engine, so a
// module either completes or fails identically wherever it runs.
//
// # Architecture Overview
//
//	wasmbridge/          Host-facing Memory and GasMeter interfaces
//	├── hostfn/          Status and outcome taxonomy, import signatures
//	├── trampoline/      Arity-dispatched native calls (cgo or Go table)
//	├── gas/             Budgets, scoped limits and consume semantics
//	├── wasm/            Module decoding, building and fuel instrumentation
//	├── engine/          Interpreter, compiler and wasmtime backends
//	├── linker/          Import bindings and the pre-instance cache
//	├── runtime/         Contexts, runtimes, invocation and classification
//	├── resource/        Generation-checked handle arena
//	├── abi/             Handle-based surface for embedders
//	├── errors/          Structured errors and the fatal abort path
//	├── config/          TOML configuration with env overrides
//	└── telemetry/       Logger construction and Prometheus metrics
//
// # Quick Start
//
//	table := trampoline.NewFuncTable()
//	c, err := runtime.NewContext(ctx, engine.CompilerEngineA, table)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close(ctx)
//
//	entry := table.Register(1, func(_ trampoline.UserContext, args []uint64) hostfn.TrampolineResult {
//	    return hostfn.Ok(args[0] * 2)
//	})
//	_ = c.Link("env", "double", 1, hostfn.U64, entry)
//
//	rt, err := c.NewRuntime(ctx, code, 0, nil, runtime.WithGas(1_000_000))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	res := rt.Invoke(ctx, "main", nil)
//	fmt.Println(res.Value, res.Err, res.GasConsumed)
//
// # Outcomes
//
// Invoke never returns a Go error. Traps are classified before host
// statuses: a trap raised by bytecode is a deterministic error, running
// out of gas is OutOfGasError, and a host function may end the call with
// ReturnSuccess, OutOfGas or Unrecoverable.
//
// # Thread Safety
//
// A Context is safe for concurrent use. A Runtime is not; give each
// goroutine its own runtime.
package wasmbridge
