package engine

import (
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/wasm"
)

// Import is one import declared by a module.
type Import struct {
	Module string
	Name   string
	Type   wasm.FuncType
	Kind   byte
}

func (i Import) Key() string {
	return i.Module + "#" + i.Name
}

func importsOf(info *wasm.Info) []Import {
	out := make([]Import, 0, len(info.Imports))
	for _, imp := range info.Imports {
		in := Import{Module: imp.Module, Name: imp.Name, Kind: imp.Kind}
		if imp.Kind == wasm.KindFunc && int(imp.TypeIdx) < len(info.Types) {
			in.Type = info.Types[imp.TypeIdx]
		}
		out = append(out, in)
	}
	return out
}

// funcTypeOf is the core signature a binding satisfies.
func funcTypeOf(sig hostfn.Signature) wasm.FuncType {
	ft := wasm.FuncType{Params: make([]wasm.ValType, sig.Arity)}
	for i := range ft.Params {
		ft.Params[i] = wasm.ValI64
	}
	if sig.Return == hostfn.U64 {
		ft.Results = []wasm.ValType{wasm.ValI64}
	}
	return ft
}

// resolveImports binds every import or reports all that are missing.
// Non-function imports are not supported.
func resolveImports(imports []Import, r Resolver) ([]hostfn.Signature, error) {
	sigs := make([]hostfn.Signature, 0, len(imports))
	var missing []string
	for _, imp := range imports {
		if imp.Kind != wasm.KindFunc {
			return nil, errors.New(errors.PhaseInstantiate, errors.KindUnsupported).
				Import(imp.Module, imp.Name).
				Detail("import kind %d", imp.Kind).
				Build()
		}
		b, ok := r.Resolve(imp.Module, imp.Name)
		if !ok {
			missing = append(missing, imp.Key())
			continue
		}
		want := funcTypeOf(b.Sig)
		if !want.Equal(imp.Type) {
			e := errors.TypeMismatch(errors.PhaseInstantiate, imp.Name, want.String(), imp.Type.String())
			e.Module = imp.Module
			return nil, e
		}
		sigs = append(sigs, b.Sig)
	}
	if len(missing) > 0 {
		return nil, errors.Instantiation(errors.NewMissingImportsError(missing))
	}
	return sigs, nil
}

func checkExportType(name string, ft wasm.FuncType) error {
	want := wasm.FuncType{Results: []wasm.ValType{wasm.ValI64}}
	if !ft.Equal(want) {
		return errors.TypeMismatch(errors.PhaseInvoke, name, want.String(), ft.String())
	}
	return nil
}

func reservedExport(name string) bool {
	switch name {
	case wasm.FuelExport, wasm.ExhaustedExport, wasm.StartExport:
		return true
	}
	return false
}

func exportNotFound(name string) error {
	return errors.NotFound(errors.PhaseInvoke, "export", name)
}
