package linker

import (
	"sort"

	"github.com/wippyai/wasm-bridge/engine"
)

// Namespace holds the bindings of one import module, e.g. "env".
// Not locked on its own; the owning Linker serializes access.
type Namespace struct {
	funcs map[string]engine.Binding
	name  string
}

func newNamespace(name string) *Namespace {
	return &Namespace{
		name:  name,
		funcs: make(map[string]engine.Binding),
	}
}

// Name returns the import module name.
func (ns *Namespace) Name() string {
	return ns.name
}

func (ns *Namespace) get(name string) (engine.Binding, bool) {
	b, ok := ns.funcs[name]
	return b, ok
}

func (ns *Namespace) define(b engine.Binding) {
	ns.funcs[b.Sig.Name] = b
}

// sorted returns the bindings ordered by function name.
func (ns *Namespace) sorted() []engine.Binding {
	out := make([]engine.Binding, 0, len(ns.funcs))
	for _, b := range ns.funcs {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sig.Name < out[j].Sig.Name })
	return out
}
