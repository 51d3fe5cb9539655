package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/gas"
	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// Kind selects an execution engine.
type Kind uint8

const (
	// InterpreterEngine runs bytecode in wazero's interpreter.
	InterpreterEngine Kind = iota
	// CompilerEngineA compiles ahead of time with wazero's compiler.
	CompilerEngineA
	// CompilerEngineB compiles with wasmtime (Cranelift). Requires cgo.
	CompilerEngineB
)

func (k Kind) String() string {
	switch k {
	case InterpreterEngine:
		return "interpreter"
	case CompilerEngineA:
		return "compiler"
	case CompilerEngineB:
		return "wasmtime"
	}
	return fmt.Sprintf("engine(%d)", uint8(k))
}

// ParseKind accepts the names printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "interpreter", "interp":
		return InterpreterEngine, nil
	case "compiler", "wazero":
		return CompilerEngineA, nil
	case "wasmtime", "cranelift":
		return CompilerEngineB, nil
	}
	return 0, errors.New(errors.PhaseEngine, errors.KindInvalidInput).
		Value(s).
		Detail("unknown engine %q", s).
		Build()
}

// Available lists the engines usable in this build.
func Available() []Kind {
	kinds := []Kind{InterpreterEngine, CompilerEngineA}
	if wasmtimeAvailable {
		kinds = append(kinds, CompilerEngineB)
	}
	return kinds
}

// Config holds engine-wide settings. All engines run with threads, SIMD and
// interruption disabled and NaN results canonicalized.
type Config struct {
	// MemoryLimitPages caps linear memory growth. Zero, or anything above
	// MaxMemoryPages, means MaxMemoryPages.
	MemoryLimitPages uint32
	// MaxStackBytes caps native stack use of compiled code. wasmtime only.
	MaxStackBytes uint32
}

// MaxMemoryPages keeps every linear memory's byte length representable in
// a uint32.
const MaxMemoryPages = 65535

// memoryLimitPages is the effective page cap for cfg.
func (c Config) memoryLimitPages() uint32 {
	if c.MemoryLimitPages == 0 || c.MemoryLimitPages > MaxMemoryPages {
		return MaxMemoryPages
	}
	return c.MemoryLimitPages
}

// Binding is a host import resolved to a native syscall.
type Binding struct {
	Sig   hostfn.Signature
	Entry trampoline.EntryPoint
}

// Resolver looks up bindings by import name.
type Resolver interface {
	Resolve(module, name string) (Binding, bool)
}

// Store is the per-runtime state host calls read at call time.
type Store struct {
	Caller   trampoline.NativeCaller
	Bindings Resolver
	User     trampoline.UserContext
}

// call runs the binding for module#name against the store.
func (s *Store) call(module, name string, want hostfn.Signature, args []uint64) (uint64, error) {
	b, ok := s.Bindings.Resolve(module, name)
	if !ok || b.Sig.Arity != want.Arity || b.Sig.Return != want.Return {
		Logger().Error("binding changed after link", zapImport(module, name))
		return 0, &hostfn.HostError{Import: want.Key(), Status: hostfn.Unrecoverable, Raw: uint8(hostfn.Unrecoverable)}
	}
	return trampoline.Dispatch(s.Caller, trampoline.Capability{Entry: b.Entry, Context: s.User}, b.Sig, args)
}

// Engine compiles bytecode and classifies the errors its instances return.
// Safe for concurrent use.
type Engine interface {
	Kind() Kind
	Compile(ctx context.Context, code []byte) (Module, error)
	// Classify maps an error returned by Instance.Call or by a start
	// function to the invocation taxonomy. Trap codes are checked before
	// host errors. Conditions the configuration rules out abort.
	Classify(err error) hostfn.InvokeError
	Close(ctx context.Context) error
}

// Module is compiled bytecode, not yet bound to imports.
type Module interface {
	Imports() []Import
	// Prepare resolves every import against r and returns a reusable
	// pre-instance. All unresolved imports are reported together.
	Prepare(ctx context.Context, r Resolver) (Template, error)
	Close(ctx context.Context) error
}

// Template is an immutable pre-instance. Safe to share between runtimes
// whose bindings agree with the resolver it was prepared against.
type Template interface {
	// Instantiate creates an instance with fuel available and runs the
	// module's start function, if any. A failing start function yields a
	// *StartError together with the instance so consumed fuel can be read.
	Instantiate(ctx context.Context, st *Store, fuel uint64) (Instance, error)
}

// Instance is one instantiated module. Not safe for concurrent use.
type Instance interface {
	gas.Meter
	// Call invokes an export of type () -> i64.
	Call(ctx context.Context, export string) (uint64, error)
	// Memory returns a view of the default linear memory, or nil.
	Memory() []byte
	Close(ctx context.Context) error
}

// StartError reports a trap raised by a module's start function.
type StartError struct {
	Cause error
}

func (e *StartError) Error() string {
	return "start function: " + e.Cause.Error()
}

func (e *StartError) Unwrap() error {
	return e.Cause
}

// OutOfFuelError is the fuel-exhaustion trap on engines metered by
// instrumentation.
type OutOfFuelError struct {
	Cause error
}

func (e *OutOfFuelError) Error() string {
	return "out of fuel: " + e.Cause.Error()
}

func (e *OutOfFuelError) Unwrap() error {
	return e.Cause
}

// New creates an engine of the given kind.
func New(ctx context.Context, kind Kind, cfg Config) (Engine, error) {
	switch kind {
	case InterpreterEngine:
		return NewInterpreter(ctx, cfg)
	case CompilerEngineA:
		return NewCompiler(ctx, cfg)
	case CompilerEngineB:
		return NewWasmtime(cfg)
	}
	return nil, errors.Unsupported(errors.PhaseEngine, kind.String())
}
