package wasm

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Builder assembles small modules from raw instruction bytes.
// Function indices returned by ImportFunc and Func are stable only if all
// imports are added before the first Func.
type Builder struct {
	start    *uint32
	memory   *memoryDef
	types    []FuncType
	imports  []Import
	funcs    []funcDef
	exports  []Export
	globals  [][]byte
	nImports uint32
}

type funcDef struct {
	locals  []ValType
	code    []byte
	typeIdx uint32
}

type memoryDef struct {
	max *uint32
	min uint32
}

// NewBuilder creates an empty module builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) typeIndex(ft FuncType) uint32 {
	for i, t := range b.types {
		if t.Equal(ft) {
			return uint32(i)
		}
	}
	b.types = append(b.types, ft)
	return uint32(len(b.types) - 1)
}

// ImportFunc adds a function import and returns its function index.
func (b *Builder) ImportFunc(module, name string, params, results []ValType) uint32 {
	idx := b.typeIndex(FuncType{Params: params, Results: results})
	b.imports = append(b.imports, Import{Module: module, Name: name, Kind: KindFunc, TypeIdx: idx})
	b.nImports++
	return b.nImports - 1
}

// Func adds a function. code is the body without the final end.
func (b *Builder) Func(params, results, locals []ValType, code ...[]byte) uint32 {
	idx := b.typeIndex(FuncType{Params: params, Results: results})
	b.funcs = append(b.funcs, funcDef{typeIdx: idx, locals: locals, code: bytes.Join(code, nil)})
	return b.nImports + uint32(len(b.funcs)) - 1
}

// ExportFunc exports function idx as name.
func (b *Builder) ExportFunc(name string, idx uint32) *Builder {
	b.exports = append(b.exports, Export{Name: name, Kind: KindFunc, Index: idx})
	return b
}

// Memory declares memory 0 with min pages and an optional max.
func (b *Builder) Memory(min uint32, max *uint32) *Builder {
	b.memory = &memoryDef{min: min, max: max}
	return b
}

// ExportMemory exports memory 0 as name.
func (b *Builder) ExportMemory(name string) *Builder {
	b.exports = append(b.exports, Export{Name: name, Kind: KindMemory, Index: 0})
	return b
}

// GlobalI64 adds a mutable i64 global and returns its index.
func (b *Builder) GlobalI64(init int64) uint32 {
	var buf bytes.Buffer
	buf.WriteByte(byte(ValI64))
	buf.WriteByte(0x01)
	buf.WriteByte(OpI64Const)
	WriteLEB128s64(&buf, init)
	buf.WriteByte(OpEnd)
	b.globals = append(b.globals, buf.Bytes())
	return uint32(len(b.globals) - 1)
}

// Start sets the start function.
func (b *Builder) Start(idx uint32) *Builder {
	b.start = &idx
	return b
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	m := &Module{}

	if len(b.types) > 0 {
		var buf bytes.Buffer
		WriteLEB128u(&buf, uint32(len(b.types)))
		for _, t := range b.types {
			buf.WriteByte(funcTypeForm)
			writeValTypes(&buf, t.Params)
			writeValTypes(&buf, t.Results)
		}
		m.Put(SectionType, buf.Bytes())
	}

	if len(b.imports) > 0 {
		var buf bytes.Buffer
		WriteLEB128u(&buf, uint32(len(b.imports)))
		for _, imp := range b.imports {
			writeName(&buf, imp.Module)
			writeName(&buf, imp.Name)
			buf.WriteByte(KindFunc)
			WriteLEB128u(&buf, imp.TypeIdx)
		}
		m.Put(SectionImport, buf.Bytes())
	}

	if len(b.funcs) > 0 {
		var buf bytes.Buffer
		WriteLEB128u(&buf, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			WriteLEB128u(&buf, f.typeIdx)
		}
		m.Put(SectionFunction, buf.Bytes())
	}

	if b.memory != nil {
		var buf bytes.Buffer
		WriteLEB128u(&buf, 1)
		if b.memory.max != nil {
			buf.WriteByte(0x01)
			WriteLEB128u(&buf, b.memory.min)
			WriteLEB128u(&buf, *b.memory.max)
		} else {
			buf.WriteByte(0x00)
			WriteLEB128u(&buf, b.memory.min)
		}
		m.Put(SectionMemory, buf.Bytes())
	}

	if len(b.globals) > 0 {
		var buf bytes.Buffer
		WriteLEB128u(&buf, uint32(len(b.globals)))
		for _, g := range b.globals {
			buf.Write(g)
		}
		m.Put(SectionGlobal, buf.Bytes())
	}

	if len(b.exports) > 0 {
		var buf bytes.Buffer
		WriteLEB128u(&buf, uint32(len(b.exports)))
		for _, e := range b.exports {
			writeName(&buf, e.Name)
			buf.WriteByte(e.Kind)
			WriteLEB128u(&buf, e.Index)
		}
		m.Put(SectionExport, buf.Bytes())
	}

	if b.start != nil {
		var buf bytes.Buffer
		WriteLEB128u(&buf, *b.start)
		m.Put(SectionStart, buf.Bytes())
	}

	if len(b.funcs) > 0 {
		var buf bytes.Buffer
		WriteLEB128u(&buf, uint32(len(b.funcs)))
		for _, f := range b.funcs {
			var body bytes.Buffer
			WriteLEB128u(&body, uint32(len(f.locals)))
			for _, l := range f.locals {
				WriteLEB128u(&body, 1)
				body.WriteByte(byte(l))
			}
			body.Write(f.code)
			body.WriteByte(OpEnd)
			WriteLEB128u(&buf, uint32(body.Len()))
			buf.Write(body.Bytes())
		}
		m.Put(SectionCode, buf.Bytes())
	}

	return m.Encode()
}

func writeValTypes(buf *bytes.Buffer, vs []ValType) {
	WriteLEB128u(buf, uint32(len(vs)))
	for _, v := range vs {
		buf.WriteByte(byte(v))
	}
}

// Instruction helpers for hand-assembled bodies.

// Op returns a bare opcode.
func Op(op byte) []byte { return []byte{op} }

// I64Const encodes i64.const v.
func I64Const(v int64) []byte {
	var buf bytes.Buffer
	buf.WriteByte(OpI64Const)
	WriteLEB128s64(&buf, v)
	return buf.Bytes()
}

// I32Const encodes i32.const v.
func I32Const(v int32) []byte {
	var buf bytes.Buffer
	buf.WriteByte(OpI32Const)
	WriteLEB128s(&buf, v)
	return buf.Bytes()
}

// F32Const encodes f32.const v.
func F32Const(v float32) []byte {
	out := []byte{OpF32Const, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(out[1:], math.Float32bits(v))
	return out
}

// Call encodes call idx.
func Call(idx uint32) []byte { return withU32(OpCall, idx) }

// LocalGet encodes local.get idx.
func LocalGet(idx uint32) []byte { return withU32(OpLocalGet, idx) }

// LocalSet encodes local.set idx.
func LocalSet(idx uint32) []byte { return withU32(OpLocalSet, idx) }

// GlobalGet encodes global.get idx.
func GlobalGet(idx uint32) []byte { return withU32(OpGlobalGet, idx) }

// GlobalSet encodes global.set idx.
func GlobalSet(idx uint32) []byte { return withU32(OpGlobalSet, idx) }

// Br encodes br depth.
func Br(depth uint32) []byte { return withU32(OpBr, depth) }

// BrIf encodes br_if depth.
func BrIf(depth uint32) []byte { return withU32(OpBrIf, depth) }

// Block opens a block with an empty block type.
func Block() []byte { return []byte{OpBlock, BlockEmpty} }

// Loop opens a loop with an empty block type.
func Loop() []byte { return []byte{OpLoop, BlockEmpty} }

// IfResult opens an if with a single result.
func IfResult(t ValType) []byte { return []byte{OpIf, byte(t)} }

// I64Load encodes i64.load with 8-byte alignment at offset.
func I64Load(offset uint32) []byte { return memArg(OpI64Load, 3, offset) }

// I64Store encodes i64.store with 8-byte alignment at offset.
func I64Store(offset uint32) []byte { return memArg(OpI64Store, 3, offset) }

func memArg(op byte, align, offset uint32) []byte {
	var buf bytes.Buffer
	buf.WriteByte(op)
	WriteLEB128u(&buf, align)
	WriteLEB128u(&buf, offset)
	return buf.Bytes()
}

func withU32(op byte, v uint32) []byte {
	var buf bytes.Buffer
	buf.WriteByte(op)
	WriteLEB128u(&buf, v)
	return buf.Bytes()
}
