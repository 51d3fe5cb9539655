package linker

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/trampoline"
)

// Linker maps (module, function) to native syscall bindings.
// An overlay Linker consults its own table first, then its parent.
// Thread-safe.
type Linker struct {
	parent  *Linker
	modules map[string]*Namespace
	count   int
	mu      sync.RWMutex
}

// New creates an empty binding table.
func New() *Linker {
	return &Linker{modules: make(map[string]*Namespace)}
}

// Overlay creates an empty table layered over l. Links into the overlay
// never touch l.
func (l *Linker) Overlay() *Linker {
	o := New()
	o.parent = l
	return o
}

// Parent returns the table an overlay is layered over, or nil.
func (l *Linker) Parent() *Linker {
	return l.parent
}

// Link binds module#name to a syscall entry point.
// Names must be valid UTF-8, arity at most hostfn.MaxArity and entry
// non-null. Linking a name already bound here or in a parent fails and
// leaves every table unchanged.
func (l *Linker) Link(module, name string, arity uint8, ret hostfn.ReturnKind, entry trampoline.EntryPoint) error {
	return l.LinkSignature(hostfn.Signature{Module: module, Name: name, Arity: arity, Return: ret}, entry)
}

// LinkSignature is Link with a prebuilt signature.
func (l *Linker) LinkSignature(sig hostfn.Signature, entry trampoline.EntryPoint) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	if entry == 0 {
		return nullEntryError(sig)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.lookupLocked(sig.Module, sig.Name); ok {
		return duplicateError(sig, prev.Sig)
	}
	if l.parent != nil {
		if prev, ok := l.parent.Resolve(sig.Module, sig.Name); ok {
			return duplicateError(sig, prev.Sig)
		}
	}

	ns := l.modules[sig.Module]
	if ns == nil {
		ns = newNamespace(sig.Module)
		l.modules[sig.Module] = ns
	}
	ns.define(engine.Binding{Sig: sig, Entry: entry})
	l.count++

	Logger().Debug("linked", zap.Stringer("signature", sig), zap.Uintptr("entry", uintptr(entry)))
	return nil
}

func (l *Linker) lookupLocked(module, name string) (engine.Binding, bool) {
	ns := l.modules[module]
	if ns == nil {
		return engine.Binding{}, false
	}
	return ns.get(name)
}

// Resolve implements engine.Resolver.
func (l *Linker) Resolve(module, name string) (engine.Binding, bool) {
	l.mu.RLock()
	b, ok := l.lookupLocked(module, name)
	l.mu.RUnlock()
	if ok {
		return b, true
	}
	if l.parent != nil {
		return l.parent.Resolve(module, name)
	}
	return engine.Binding{}, false
}

// Len returns the number of bindings in this table, excluding parents.
func (l *Linker) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Empty reports whether this table, excluding parents, has no bindings.
func (l *Linker) Empty() bool {
	return l.Len() == 0
}

// Bindings returns this table's bindings sorted by module then name.
func (l *Linker) Bindings() []engine.Binding {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.modules))
	for name := range l.modules {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]engine.Binding, 0, l.count)
	for _, name := range names {
		out = append(out, l.modules[name].sorted()...)
	}
	return out
}

// Namespaces returns the import module names bound in this table.
func (l *Linker) Namespaces() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, len(l.modules))
	for name := range l.modules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
