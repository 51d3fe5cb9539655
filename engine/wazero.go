package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/wasm"
)

// WazeroEngine runs metered bytecode on wazero. Fuel is not native to
// wazero, so every module is instrumented before compilation.
type WazeroEngine struct {
	runtime wazero.Runtime
	// hostSigs is every import ever prepared, per host module.
	hostSigs map[string]map[string]hostfn.Signature
	kind     Kind
	// hostMu serializes host module replacement with instantiation.
	hostMu sync.Mutex
}

// NewInterpreter creates an InterpreterEngine.
func NewInterpreter(ctx context.Context, cfg Config) (*WazeroEngine, error) {
	return newWazero(ctx, InterpreterEngine, wazero.NewRuntimeConfigInterpreter(), cfg)
}

// NewCompiler creates a CompilerEngineA.
func NewCompiler(ctx context.Context, cfg Config) (*WazeroEngine, error) {
	return newWazero(ctx, CompilerEngineA, wazero.NewRuntimeConfigCompiler(), cfg)
}

func newWazero(ctx context.Context, kind Kind, rc wazero.RuntimeConfig, cfg Config) (*WazeroEngine, error) {
	rc = rc.
		WithCoreFeatures(api.CoreFeaturesV2).
		WithCloseOnContextDone(false).
		WithDebugInfoEnabled(false).
		WithMemoryLimitPages(cfg.memoryLimitPages())

	Logger().Debug("creating engine", zap.Stringer("kind", kind))
	return &WazeroEngine{
		runtime:  wazero.NewRuntimeWithConfig(ctx, rc),
		hostSigs: make(map[string]map[string]hostfn.Signature),
		kind:     kind,
	}, nil
}

func (e *WazeroEngine) Kind() Kind { return e.kind }

func (e *WazeroEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

func (e *WazeroEngine) Classify(err error) hostfn.InvokeError {
	return classifyWazero(err)
}

// Compile instruments and compiles bytecode.
func (e *WazeroEngine) Compile(ctx context.Context, code []byte) (Module, error) {
	info, err := wasm.Inspect(code)
	if err != nil {
		return nil, errors.Compile(err)
	}
	metered, err := wasm.Instrument(code, wasm.MeterOptions{CanonicalizeNaN: true})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInstrument, errors.KindInvalidData, err, "instrument module")
	}
	compiled, err := e.runtime.CompileModule(ctx, metered.Bytes)
	if err != nil {
		return nil, errors.Compile(err)
	}
	debugf("compiled %d bytes (%d instrumented)", len(code), len(metered.Bytes))
	return &wazeroModule{
		engine:   e,
		compiled: compiled,
		imports:  importsOf(info),
		start:    metered.Start,
		memory:   info.Memories > 0,
	}, nil
}

type wazeroModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
	imports  []Import
	start    bool
	// memory is false when the module defines no linear memory; wazero
	// then reports a typed nil from api.Module.Memory.
	memory bool
}

func (m *wazeroModule) Imports() []Import { return m.imports }

func (m *wazeroModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

func (m *wazeroModule) Prepare(_ context.Context, r Resolver) (Template, error) {
	sigs, err := resolveImports(m.imports, r)
	if err != nil {
		return nil, err
	}
	return &wazeroTemplate{module: m, sigs: sigs}, nil
}

type wazeroTemplate struct {
	module *wazeroModule
	sigs   []hostfn.Signature
}

func (t *wazeroTemplate) Instantiate(ctx context.Context, st *Store, fuel uint64) (Instance, error) {
	e := t.module.engine
	callCtx := withStore(ctx, st)

	e.hostMu.Lock()
	if err := e.ensureHostModules(ctx, t.sigs); err != nil {
		e.hostMu.Unlock()
		return nil, errors.Instantiation(err)
	}
	mod, err := e.runtime.InstantiateModule(callCtx, t.module.compiled,
		wazero.NewModuleConfig().WithName("").WithStartFunctions())
	e.hostMu.Unlock()
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	inst := &wazeroInstance{mod: mod, store: st, hasMemory: t.module.memory}
	var ok bool
	if inst.fuel, ok = mod.ExportedGlobal(wasm.FuelExport).(api.MutableGlobal); !ok {
		errors.Fatal(errors.PhaseInstantiate, nil, "instrumented module lacks %s", wasm.FuelExport)
	}
	if inst.exhausted, ok = mod.ExportedGlobal(wasm.ExhaustedExport).(api.MutableGlobal); !ok {
		errors.Fatal(errors.PhaseInstantiate, nil, "instrumented module lacks %s", wasm.ExhaustedExport)
	}
	inst.fuel.Set(fuel)

	if t.module.start {
		if _, err := inst.call(callCtx, mod.ExportedFunction(wasm.StartExport)); err != nil {
			return inst, &StartError{Cause: err}
		}
	}
	return inst, nil
}

// ensureHostModules makes every signature callable from a guest import.
// Host functions resolve their binding through the Store at call time, so
// a host module is only rebuilt when a name is new or changes shape.
// Caller holds hostMu.
func (e *WazeroEngine) ensureHostModules(ctx context.Context, sigs []hostfn.Signature) error {
	changed := make(map[string]bool)
	for _, sig := range sigs {
		known := e.hostSigs[sig.Module]
		if known == nil {
			known = make(map[string]hostfn.Signature)
			e.hostSigs[sig.Module] = known
		}
		if prev, ok := known[sig.Name]; !ok || prev != sig {
			known[sig.Name] = sig
			changed[sig.Module] = true
		}
	}

	for name := range changed {
		funcs := e.hostSigs[name]
		if _, err := e.getOrReplaceHostModule(ctx, name,
			func(existing api.Module) bool { return hostModuleMatches(existing, funcs) },
			func() (api.Module, error) { return e.buildHostModule(ctx, name, funcs) },
		); err != nil {
			return errors.Registration(errors.PhaseInstantiate, name, "", err)
		}
	}
	return nil
}

// getOrReplaceHostModule gets, validates, or replaces a host module.
func (e *WazeroEngine) getOrReplaceHostModule(ctx context.Context, name string, validator func(api.Module) bool, builder func() (api.Module, error)) (api.Module, error) {
	if mod := e.runtime.Module(name); mod != nil {
		if validator(mod) {
			return mod, nil
		}
		Logger().Debug("replacing host module", zap.String("module", name))
		if err := mod.Close(ctx); err != nil {
			return nil, err
		}
	}
	return builder()
}

func (e *WazeroEngine) buildHostModule(ctx context.Context, name string, funcs map[string]hostfn.Signature) (api.Module, error) {
	builder := e.runtime.NewHostModuleBuilder(name)
	for fn, sig := range funcs {
		ft := funcTypeOf(sig)
		builder.NewFunctionBuilder().
			WithGoModuleFunction(hostCall(sig), valueTypes(ft.Params), valueTypes(ft.Results)).
			WithName(fn).
			Export(fn)
	}
	return builder.Instantiate(ctx)
}

func hostModuleMatches(mod api.Module, funcs map[string]hostfn.Signature) bool {
	defs := mod.ExportedFunctionDefinitions()
	for name, sig := range funcs {
		def, ok := defs[name]
		if !ok {
			return false
		}
		if len(def.ParamTypes()) != int(sig.Arity) || len(def.ResultTypes()) != int(sig.Return) {
			return false
		}
	}
	return true
}

// hostCall adapts a binding to wazero's stack-based host ABI. Raised
// statuses abort the guest by panicking with the *hostfn.HostError;
// wazero recovers it and returns it wrapped from the guest call.
func hostCall(sig hostfn.Signature) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		st := storeFrom(ctx)
		if st == nil {
			errors.Fatal(errors.PhaseInvoke, nil, "host call %s outside a runtime", sig.Key())
		}
		v, err := st.call(sig.Module, sig.Name, sig, stack[:sig.Arity])
		if err != nil {
			panic(err)
		}
		if sig.Return == hostfn.U64 {
			stack[0] = v
		}
	}
}

func valueTypes(vs []wasm.ValType) []api.ValueType {
	out := make([]api.ValueType, len(vs))
	for i, v := range vs {
		out[i] = api.ValueType(v)
	}
	return out
}

type storeKey struct{}

func withStore(ctx context.Context, st *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, st)
}

func storeFrom(ctx context.Context) *Store {
	st, _ := ctx.Value(storeKey{}).(*Store)
	return st
}

type wazeroInstance struct {
	mod       api.Module
	fuel      api.MutableGlobal
	exhausted api.MutableGlobal
	store     *Store
	hasMemory bool
}

func (i *wazeroInstance) Available() uint64 { return i.fuel.Get() }

func (i *wazeroInstance) SetAvailable(n uint64) { i.fuel.Set(n) }

func (i *wazeroInstance) Call(ctx context.Context, export string) (uint64, error) {
	if reservedExport(export) {
		return 0, exportNotFound(export)
	}
	fn := i.mod.ExportedFunction(export)
	if fn == nil {
		return 0, exportNotFound(export)
	}
	def := fn.Definition()
	got := wasm.FuncType{Params: wasmTypes(def.ParamTypes()), Results: wasmTypes(def.ResultTypes())}
	if err := checkExportType(export, got); err != nil {
		return 0, err
	}
	res, err := i.call(withStore(ctx, i.store), fn)
	if err != nil {
		return 0, err
	}
	return res[0], nil
}

func (i *wazeroInstance) call(ctx context.Context, fn api.Function) ([]uint64, error) {
	i.exhausted.Set(0)
	res, err := fn.Call(ctx)
	if err != nil && i.exhausted.Get() != 0 {
		return nil, &OutOfFuelError{Cause: err}
	}
	return res, err
}

func (i *wazeroInstance) Memory() []byte {
	if !i.hasMemory {
		return nil
	}
	mem := i.mod.Memory()
	if mem == nil {
		return nil
	}
	buf, _ := mem.Read(0, mem.Size())
	return buf
}

func (i *wazeroInstance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}

func wasmTypes(vs []api.ValueType) []wasm.ValType {
	out := make([]wasm.ValType, len(vs))
	for i, v := range vs {
		out[i] = wasm.ValType(v)
	}
	return out
}
