//go:build cgo

package engine

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/bytecodealliance/wasmtime-go/v29"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/wasm"
)

const wasmtimeAvailable = true

// WasmtimeEngine runs bytecode on wasmtime with native fuel.
type WasmtimeEngine struct {
	engine *wasmtime.Engine
	// memoryBytes caps linear memory per store.
	memoryBytes int64
	mu          sync.Mutex
	closed      bool
}

// NewWasmtime creates a CompilerEngineB.
func NewWasmtime(cfg Config) (Engine, error) {
	c := wasmtime.NewConfig()
	c.SetConsumeFuel(true)
	c.SetEpochInterruption(false)
	c.SetWasmThreads(false)
	c.SetStrategy(wasmtime.StrategyCranelift)
	c.SetCraneliftOptLevel(wasmtime.OptLevelSpeed)
	c.EnableCraneliftFlag("enable_nan_canonicalization")
	if cfg.MaxStackBytes > 0 {
		c.SetMaxWasmStack(int(cfg.MaxStackBytes))
	}

	Logger().Debug("creating engine", zap.Stringer("kind", CompilerEngineB))
	memoryBytes := int64(cfg.memoryLimitPages()) * 65536
	return &WasmtimeEngine{engine: wasmtime.NewEngineWithConfig(c), memoryBytes: memoryBytes}, nil
}

func (e *WasmtimeEngine) Kind() Kind { return CompilerEngineB }

func (e *WasmtimeEngine) Close(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Compile validates the deterministic subset and compiles natively.
func (e *WasmtimeEngine) Compile(_ context.Context, code []byte) (Module, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, errors.InvalidState(errors.PhaseCompile, "engine closed")
	}

	info, err := wasm.Check(code)
	if err != nil {
		return nil, errors.Compile(err)
	}
	for _, exp := range info.Exports {
		if reservedExport(exp.Name) {
			return nil, errors.Compile(errors.InvalidInput(errors.PhaseCompile, "reserved export "+exp.Name))
		}
	}
	mod, err := wasmtime.NewModule(e.engine, code)
	if err != nil {
		return nil, errors.Compile(err)
	}
	return &wasmtimeModule{engine: e, module: mod, imports: importsOf(info)}, nil
}

func (e *WasmtimeEngine) Classify(err error) hostfn.InvokeError {
	if err == nil {
		return hostfn.None
	}
	var trap *wasmtime.Trap
	if stderrors.As(err, &trap) {
		if code := trap.Code(); code != nil {
			switch *code {
			case wasmtime.OutOfFuel:
				return hostfn.OutOfGasError
			case wasmtime.StackOverflow:
				return hostfn.UnrecoverableError
			case wasmtime.MemoryOutOfBounds, wasmtime.TableOutOfBounds,
				wasmtime.IndirectCallToNull, wasmtime.BadSignature,
				wasmtime.IntegerOverflow, wasmtime.IntegerDivisionByZero,
				wasmtime.BadConversionToInteger, wasmtime.UnreachableCodeReached:
				return hostfn.DeterministicError
			case wasmtime.HeapMisaligned, wasmtime.Interrupt:
				errors.Fatal(errors.PhaseInvoke, err, "trap the engine configuration rules out")
			}
			return hostfn.UnrecoverableError
		}
	}
	if out, ok := classifyHost(err); ok {
		return out
	}
	return hostfn.UnrecoverableError
}

type wasmtimeModule struct {
	engine  *WasmtimeEngine
	module  *wasmtime.Module
	imports []Import
}

func (m *wasmtimeModule) Imports() []Import { return m.imports }

func (m *wasmtimeModule) Close(context.Context) error { return nil }

func (m *wasmtimeModule) Prepare(_ context.Context, r Resolver) (Template, error) {
	sigs, err := resolveImports(m.imports, r)
	if err != nil {
		return nil, err
	}
	return &wasmtimeTemplate{module: m, sigs: sigs}, nil
}

type wasmtimeTemplate struct {
	module *wasmtimeModule
	sigs   []hostfn.Signature
}

func (t *wasmtimeTemplate) Instantiate(_ context.Context, st *Store, fuel uint64) (Instance, error) {
	eng := t.module.engine.engine
	store := wasmtime.NewStore(eng)
	store.Limiter(t.module.engine.memoryBytes, -1, -1, -1, -1)
	if err := store.SetFuel(fuel); err != nil {
		errors.Fatal(errors.PhaseInstantiate, err, "fuel metering disabled")
	}

	inst := &wasmtimeInstance{store: store, st: st}
	linker := wasmtime.NewLinker(eng)
	for _, sig := range t.sigs {
		ft := funcTypeOf(sig)
		if err := linker.FuncNew(sig.Module, sig.Name, wasmtimeFuncType(ft), inst.hostCall(sig)); err != nil {
			return nil, errors.Registration(errors.PhaseInstantiate, sig.Module, sig.Name, err)
		}
	}

	in, err := linker.Instantiate(store, t.module.module)
	if err != nil {
		var trap *wasmtime.Trap
		if stderrors.As(err, &trap) {
			return inst, &StartError{Cause: inst.wrap(err)}
		}
		return nil, errors.Instantiation(err)
	}
	inst.instance = in
	return inst, nil
}

func wasmtimeFuncType(ft wasm.FuncType) *wasmtime.FuncType {
	params := make([]*wasmtime.ValType, len(ft.Params))
	for i := range params {
		params[i] = wasmtime.NewValType(wasmtime.KindI64)
	}
	results := make([]*wasmtime.ValType, len(ft.Results))
	for i := range results {
		results[i] = wasmtime.NewValType(wasmtime.KindI64)
	}
	return wasmtime.NewFuncType(params, results)
}

type wasmtimeInstance struct {
	store    *wasmtime.Store
	instance *wasmtime.Instance
	st       *Store
	// raised is the host error behind the trap a syscall returned.
	raised *hostfn.HostError
}

// hostCall adapts a binding to wasmtime. A raised status becomes a trap;
// the *hostfn.HostError is kept so Classify can recover it.
func (i *wasmtimeInstance) hostCall(sig hostfn.Signature) func(*wasmtime.Caller, []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	return func(_ *wasmtime.Caller, vals []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
		args := make([]uint64, len(vals))
		for n, v := range vals {
			args[n] = uint64(v.I64())
		}
		v, err := i.st.call(sig.Module, sig.Name, sig, args)
		if err != nil {
			var he *hostfn.HostError
			if !stderrors.As(err, &he) {
				he = &hostfn.HostError{Import: sig.Key(), Status: hostfn.Unrecoverable, Raw: uint8(hostfn.Unrecoverable)}
			}
			i.raised = he
			return nil, wasmtime.NewTrap(he.Error())
		}
		if sig.Return == hostfn.U64 {
			return []wasmtime.Val{wasmtime.ValI64(int64(v))}, nil
		}
		return []wasmtime.Val{}, nil
	}
}

// hostTrap joins a trap with the host error that raised it.
type hostTrap struct {
	trap error
	host *hostfn.HostError
}

func (e *hostTrap) Error() string   { return e.trap.Error() }
func (e *hostTrap) Unwrap() []error { return []error{e.trap, e.host} }

func (i *wasmtimeInstance) wrap(err error) error {
	if i.raised == nil {
		return err
	}
	he := i.raised
	i.raised = nil
	return &hostTrap{trap: err, host: he}
}

func (i *wasmtimeInstance) Available() uint64 {
	n, err := i.store.GetFuel()
	if err != nil {
		errors.Fatal(errors.PhaseGas, err, "fuel metering disabled")
	}
	return n
}

func (i *wasmtimeInstance) SetAvailable(n uint64) {
	if err := i.store.SetFuel(n); err != nil {
		errors.Fatal(errors.PhaseGas, err, "fuel metering disabled")
	}
}

func (i *wasmtimeInstance) Call(_ context.Context, export string) (uint64, error) {
	if i.instance == nil {
		return 0, errors.NotInitialized(errors.PhaseInvoke, "instance")
	}
	fn := i.instance.GetFunc(i.store, export)
	if fn == nil {
		return 0, exportNotFound(export)
	}
	ty := fn.Type(i.store)
	got := wasm.FuncType{Params: wasmtimeTypes(ty.Params()), Results: wasmtimeTypes(ty.Results())}
	if err := checkExportType(export, got); err != nil {
		return 0, err
	}

	i.raised = nil
	res, err := fn.Call(i.store)
	if err != nil {
		return 0, i.wrap(err)
	}
	v, ok := res.(int64)
	if !ok {
		errors.Fatal(errors.PhaseInvoke, nil, "export %s returned %T", export, res)
	}
	return uint64(v), nil
}

func wasmtimeTypes(vs []*wasmtime.ValType) []wasm.ValType {
	out := make([]wasm.ValType, len(vs))
	for n, v := range vs {
		switch v.Kind() {
		case wasmtime.KindI32:
			out[n] = wasm.ValI32
		case wasmtime.KindI64:
			out[n] = wasm.ValI64
		case wasmtime.KindF32:
			out[n] = wasm.ValF32
		case wasmtime.KindF64:
			out[n] = wasm.ValF64
		default:
			out[n] = wasm.ValFuncRef
		}
	}
	return out
}

func (i *wasmtimeInstance) Memory() []byte {
	if i.instance == nil {
		return nil
	}
	ext := i.instance.GetExport(i.store, "memory")
	if ext == nil || ext.Memory() == nil {
		for _, e := range i.instance.Exports(i.store) {
			if e.Memory() != nil {
				ext = e
				break
			}
		}
	}
	if ext == nil || ext.Memory() == nil {
		return nil
	}
	return ext.Memory().UnsafeData(i.store)
}

func (i *wasmtimeInstance) Close(context.Context) error {
	i.instance = nil
	i.raised = nil
	return nil
}
