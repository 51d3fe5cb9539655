package trampoline

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/hostfn"
)

// Func is a syscall implemented in Go. args has exactly the arity the
// function was registered with.
type Func func(ctx UserContext, args []uint64) hostfn.TrampolineResult

type tableEntry struct {
	fn    Func
	arity int
}

// FuncTable is an in-process NativeCaller. Entry points it hands out are
// small integers rather than machine addresses.
// Thread-safe.
type FuncTable struct {
	funcs map[EntryPoint]tableEntry
	next  EntryPoint
	mu    sync.RWMutex
}

// NewFuncTable creates an empty table.
func NewFuncTable() *FuncTable {
	return &FuncTable{
		funcs: make(map[EntryPoint]tableEntry),
		next:  1,
	}
}

// Register adds fn and returns its entry point. Entry point 0 is never used.
func (t *FuncTable) Register(arity uint8, fn Func) EntryPoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	ep := t.next
	t.next++
	t.funcs[ep] = tableEntry{fn: fn, arity: int(arity)}
	return ep
}

// Unregister removes an entry point.
func (t *FuncTable) Unregister(ep EntryPoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.funcs, ep)
}

// Len returns the number of registered functions.
func (t *FuncTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.funcs)
}

func (t *FuncTable) call(c Capability, args ...uint64) (res hostfn.TrampolineResult) {
	t.mu.RLock()
	e, ok := t.funcs[c.Entry]
	t.mu.RUnlock()

	if !ok {
		Logger().Error("call to unregistered entry point", zap.Uint64("entry", uint64(c.Entry)))
		return hostfn.Fail(hostfn.Unrecoverable)
	}
	if e.arity != len(args) {
		Logger().Error("arity mismatch",
			zap.Uint64("entry", uint64(c.Entry)),
			zap.Int("registered", e.arity),
			zap.Int("called", len(args)))
		return hostfn.Fail(hostfn.Unrecoverable)
	}

	// A panicking syscall is a native fault, not a WASM-visible error.
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("syscall panicked", zap.Uint64("entry", uint64(c.Entry)), zap.Any("panic", r))
			res = hostfn.Fail(hostfn.Unrecoverable)
		}
	}()

	return e.fn(c.Context, args)
}

func (t *FuncTable) Call0(c Capability) hostfn.TrampolineResult {
	return t.call(c)
}

func (t *FuncTable) Call1(c Capability, a0 uint64) hostfn.TrampolineResult {
	return t.call(c, a0)
}

func (t *FuncTable) Call2(c Capability, a0, a1 uint64) hostfn.TrampolineResult {
	return t.call(c, a0, a1)
}

func (t *FuncTable) Call3(c Capability, a0, a1, a2 uint64) hostfn.TrampolineResult {
	return t.call(c, a0, a1, a2)
}

func (t *FuncTable) Call4(c Capability, a0, a1, a2, a3 uint64) hostfn.TrampolineResult {
	return t.call(c, a0, a1, a2, a3)
}

func (t *FuncTable) Call5(c Capability, a0, a1, a2, a3, a4 uint64) hostfn.TrampolineResult {
	return t.call(c, a0, a1, a2, a3, a4)
}

func (t *FuncTable) Call6(c Capability, a0, a1, a2, a3, a4, a5 uint64) hostfn.TrampolineResult {
	return t.call(c, a0, a1, a2, a3, a4, a5)
}

func (t *FuncTable) Call7(c Capability, a0, a1, a2, a3, a4, a5, a6 uint64) hostfn.TrampolineResult {
	return t.call(c, a0, a1, a2, a3, a4, a5, a6)
}

func (t *FuncTable) Call8(c Capability, a0, a1, a2, a3, a4, a5, a6, a7 uint64) hostfn.TrampolineResult {
	return t.call(c, a0, a1, a2, a3, a4, a5, a6, a7)
}

var _ NativeCaller = (*FuncTable)(nil)
