package abi

import (
	"context"
	"math"
	"sync"
	"unicode/utf8"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/linker"
	"github.com/wippyai/wasm-bridge/resource"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// Handle is an opaque context or runtime reference. 0 is null.
type Handle = resource.Handle

const (
	typeContext resource.Type = iota + 1
	typeRuntime
)

// ContextConfig configures CreateContext.
type ContextConfig struct {
	Engine    engine.Kind
	Limits    engine.Config
	CacheSize int
	// EagerLink instantiates in CreateRuntime, which then returns null on
	// instantiation failure. Runtime-level links are impossible with it set.
	EagerLink bool
	Observer  runtime.Observer
}

// InvokeResult is the fixed-layout invocation outcome.
type InvokeResult struct {
	Result      uint64
	ErrorKind   hostfn.InvokeError
	GasConsumed uint64
}

// MemorySlice describes linear memory. Ptr is valid until the next call
// that touches the runtime.
type MemorySlice struct {
	Ptr  uintptr
	Size uint32
}

type contextEntry struct {
	ctx   *runtime.Context
	eager bool
}

// Bridge is the handle-based facade. Every method validates its inputs
// and reports failure as a null handle, false or a deterministic error;
// none of them panic on bad input.
type Bridge struct {
	arena    *resource.Arena
	contexts resource.Typed[*contextEntry]
	runtimes resource.Typed[*runtime.Runtime]
	caller   trampoline.NativeCaller

	// mu orders FreeContext against CreateRuntime.
	mu sync.RWMutex
}

// New creates a facade dispatching syscalls through caller.
func New(caller trampoline.NativeCaller) *Bridge {
	arena := resource.NewArena()
	return &Bridge{
		arena:    arena,
		contexts: resource.NewTyped[*contextEntry](arena, typeContext),
		runtimes: resource.NewTyped[*runtime.Runtime](arena, typeRuntime),
		caller:   caller,
	}
}

// CreateContext returns a context handle, or 0 if the engine cannot be
// initialized.
func (b *Bridge) CreateContext(cfg ContextConfig) Handle {
	opts := []runtime.ContextOption{runtime.WithEngineConfig(cfg.Limits)}
	if cfg.CacheSize > 0 {
		opts = append(opts, runtime.WithCache(cfg.CacheSize))
	}
	if cfg.Observer != nil {
		opts = append(opts, runtime.WithObserver(cfg.Observer))
	}

	c, err := runtime.NewContext(context.Background(), cfg.Engine, b.caller, opts...)
	if err != nil {
		Logger().Warn("create context", zap.Stringer("engine", cfg.Engine), zap.Error(err))
		return 0
	}
	h, err := b.contexts.Insert(&contextEntry{ctx: c, eager: cfg.EagerLink})
	if err != nil {
		_ = c.Close(context.Background())
		Logger().Warn("create context", zap.Error(err))
		return 0
	}
	return h
}

// FreeContext releases a context. It refuses while runtimes created from
// it are live.
func (b *Bridge) FreeContext(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.contexts.Get(h)
	if !ok {
		b.reject("free_context", errors.InvalidHandle(errors.PhaseABI, uint32(h), "context"))
		return false
	}
	if err := e.ctx.Close(context.Background()); err != nil {
		b.reject("free_context", err)
		return false
	}
	if _, err := b.contexts.Remove(h); err != nil {
		b.reject("free_context", err)
		return false
	}
	return true
}

// Link binds module#name on a context or on a not-yet-linked runtime.
func (b *Bridge) Link(h Handle, module, name []byte, entry trampoline.EntryPoint, arity, ret uint8) bool {
	if err := validName("module", module); err != nil {
		b.reject("link", err)
		return false
	}
	if err := validName("function", name); err != nil {
		b.reject("link", err)
		return false
	}

	kind := hostfn.ReturnKind(ret)
	var err error
	switch typ, _ := b.arena.TypeOf(h); typ {
	case typeContext:
		e, _ := b.contexts.Get(h)
		if e == nil {
			err = errors.InvalidHandle(errors.PhaseABI, uint32(h), "context")
			break
		}
		err = e.ctx.Link(string(module), string(name), arity, kind, entry)
	case typeRuntime:
		rt, ok := b.runtimes.Borrow(h)
		if !ok {
			err = errors.InvalidHandle(errors.PhaseABI, uint32(h), "runtime")
			break
		}
		err = rt.Link(string(module), string(name), arity, kind, entry)
		b.runtimes.Release(h)
	default:
		err = errors.InvalidHandle(errors.PhaseABI, uint32(h), "context or runtime")
	}
	if err != nil {
		b.reject("link", err)
		return false
	}
	return true
}

// CreateRuntime compiles code under a context. key must be nil or 32
// bytes. Returns 0 on malformed input or bytecode, and with eager linking
// on instantiation failure.
func (b *Bridge) CreateRuntime(code []byte, ctxHandle Handle, user trampoline.UserContext, key []byte) Handle {
	var ck *linker.CacheKey
	switch len(key) {
	case 0:
		if key != nil {
			b.reject("create_runtime", errors.InvalidInput(errors.PhaseABI, "cache key must be 32 bytes"))
			return 0
		}
	case len(linker.CacheKey{}):
		ck = new(linker.CacheKey)
		copy(ck[:], key)
	default:
		b.reject("create_runtime", errors.New(errors.PhaseABI, errors.KindInvalidInput).
			Value(len(key)).
			Detail("cache key must be 32 bytes, got %d", len(key)).
			Build())
		return 0
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.contexts.Get(ctxHandle)
	if !ok {
		b.reject("create_runtime", errors.InvalidHandle(errors.PhaseABI, uint32(ctxHandle), "context"))
		return 0
	}
	var opts []runtime.RuntimeOption
	if e.eager {
		opts = append(opts, runtime.WithEagerLink())
	}

	bg := context.Background()
	rt, err := e.ctx.NewRuntime(bg, code, user, ck, opts...)
	if err != nil {
		b.reject("create_runtime", err)
		return 0
	}
	h, err := b.runtimes.Insert(rt)
	if err != nil {
		rt.Close(bg)
		b.reject("create_runtime", err)
		return 0
	}
	return h
}

// FreeRuntime releases a runtime.
func (b *Bridge) FreeRuntime(h Handle) bool {
	rt, err := b.runtimes.Remove(h)
	if err != nil {
		b.reject("free_runtime", err)
		return false
	}
	rt.Close(context.Background())
	return true
}

// Invoke calls export with an optional gas limit. Bad handles and names
// are deterministic errors with no gas consumed.
func (b *Bridge) Invoke(h Handle, export []byte, limit *uint64) InvokeResult {
	if err := validName("export", export); err != nil {
		b.reject("invoke", err)
		return InvokeResult{ErrorKind: hostfn.DeterministicError}
	}
	rt, ok := b.runtimes.Borrow(h)
	if !ok {
		b.reject("invoke", errors.InvalidHandle(errors.PhaseABI, uint32(h), "runtime"))
		return InvokeResult{ErrorKind: hostfn.DeterministicError}
	}
	defer b.runtimes.Release(h)

	res := rt.Invoke(context.Background(), string(export), limit)
	return InvokeResult{Result: res.Value, ErrorKind: res.Err, GasConsumed: res.GasConsumed}
}

// GetMemory returns the runtime's linear memory, or a null slice.
func (b *Bridge) GetMemory(h Handle) MemorySlice {
	return memorySlice(b.Memory(h))
}

// memorySlice is null for an empty memory or one whose length does not fit
// the Size field.
func memorySlice(mem []byte) MemorySlice {
	if len(mem) == 0 || uint64(len(mem)) > math.MaxUint32 {
		return MemorySlice{}
	}
	return MemorySlice{Ptr: uintptr(unsafe.Pointer(unsafe.SliceData(mem))), Size: uint32(len(mem))}
}

// Memory is GetMemory as a Go slice.
func (b *Bridge) Memory(h Handle) []byte {
	rt, ok := b.runtimes.Get(h)
	if !ok {
		return nil
	}
	return rt.Memory()
}

// GetAvailableGas returns the runtime's gas, or 0 for a bad handle.
func (b *Bridge) GetAvailableGas(h Handle) uint64 {
	rt, ok := b.runtimes.Get(h)
	if !ok {
		return 0
	}
	return rt.AvailableGas()
}

// SetAvailableGas replaces the runtime's gas budget.
func (b *Bridge) SetAvailableGas(h Handle, n uint64) bool {
	rt, ok := b.runtimes.Get(h)
	if !ok {
		return false
	}
	rt.SetAvailableGas(n)
	return true
}

// ConsumeGas draws n from the runtime's budget; false on exhaustion or a
// bad handle.
func (b *Bridge) ConsumeGas(h Handle, n uint64) bool {
	rt, ok := b.runtimes.Get(h)
	if !ok {
		return false
	}
	return rt.ConsumeGas(n)
}

// Runtime returns the runtime behind h for in-process syscalls.
func (b *Bridge) Runtime(h Handle) (*runtime.Runtime, bool) {
	return b.runtimes.Get(h)
}

// Close frees every runtime, then every context.
func (b *Bridge) Close() error {
	bg := context.Background()
	// Collect first: Remove takes the arena lock Each holds.
	var handles []Handle
	b.runtimes.Each(func(h Handle, _ *runtime.Runtime) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		if rt, err := b.runtimes.Remove(h); err == nil {
			rt.Close(bg)
		}
	}

	var contexts []*runtime.Context
	b.contexts.Each(func(_ Handle, e *contextEntry) bool {
		contexts = append(contexts, e.ctx)
		return true
	})
	var firstErr error
	for _, c := range contexts {
		if err := c.Close(bg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := b.arena.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (b *Bridge) reject(op string, err error) {
	Logger().Debug("rejected", zap.String("op", op), zap.Error(err))
}

func validName(field string, name []byte) error {
	if !utf8.Valid(name) {
		return errors.InvalidUTF8(errors.PhaseABI, field, name)
	}
	return nil
}
