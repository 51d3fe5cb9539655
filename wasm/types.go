package wasm

import (
	"fmt"
	"strings"
)

// ValType is a WebAssembly value type encoding
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	}
	return fmt.Sprintf("0x%02x", byte(v))
}

// FuncType is a function signature
type FuncType struct {
	Params  []ValType
	Results []ValType
}

func (f FuncType) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(") -> (")
	for i, r := range f.Results {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(r.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Equal reports whether two signatures are identical.
func (f FuncType) Equal(o FuncType) bool {
	if len(f.Params) != len(o.Params) || len(f.Results) != len(o.Results) {
		return false
	}
	for i := range f.Params {
		if f.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range f.Results {
		if f.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// Import is a single module import
type Import struct {
	Module string
	Name   string
	Kind   byte
	// TypeIdx is set for function imports
	TypeIdx uint32
}

// Export is a single module export
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// Section is a raw, undecoded module section
type Section struct {
	Data []byte
	ID   byte
}
