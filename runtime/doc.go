// Package runtime runs WebAssembly modules against native syscalls with a
// bounded gas budget.
//
// # Quick Start
//
//	table := trampoline.NewFuncTable()
//	wctx, err := runtime.NewContext(ctx, engine.InterpreterEngine, table, runtime.WithCache(64))
//	if err != nil {
//	    return err
//	}
//	defer wctx.Close(ctx)
//
//	entry := table.Register(1, logFn)
//	_ = wctx.Link("env", "log", 1, hostfn.Void, entry)
//
//	rt, err := wctx.NewRuntime(ctx, code, user, nil, runtime.WithGas(1_000_000))
//	if err != nil {
//	    return err
//	}
//	defer rt.Close(ctx)
//
//	limit := uint64(50_000)
//	res := rt.Invoke(ctx, "main", &limit)
//	if !res.OK() {
//	    // res.Err is one of the hostfn.InvokeError values
//	}
//
// # Lifecycle
//
// A Runtime starts Unlinked. Runtime.Link adds private bindings until the
// first Invoke or LazyLink instantiates the module; from then on the
// bindings are fixed. A failed instantiation is terminal and every later
// Invoke reports it as a deterministic error with no gas consumed.
//
// # Gas
//
// Syscalls and bytecode draw from the same budget. Before linking the budget
// lives in a plain counter; linking moves it into the engine's fuel store.
// A failing start function leaves whatever fuel it did not burn.
//
// # Caching
//
// When a runtime is created with a cache key and has no private bindings,
// its pre-instance is shared through the context cache. Runtimes created
// from a cached key skip compilation.
package runtime
