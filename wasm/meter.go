package wasm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Reserved export names added by Instrument.
const (
	FuelExport      = "__bridge_fuel"
	ExhaustedExport = "__bridge_exhausted"
	StartExport     = "__bridge_start"
)

// MeterOptions configures Instrument.
type MeterOptions struct {
	// CanonicalizeNaN rewrites float arithmetic so NaN results are bit-exact.
	CanonicalizeNaN bool
}

// Metered describes an instrumented module.
type Metered struct {
	Bytes []byte
	// Start is true when the module's start function was moved to StartExport.
	Start bool
}

// Instrument adds fuel metering to a module.
//
// Two mutable globals are appended and exported: the i64 fuel counter
// (FuelExport) and an i32 flag (ExhaustedExport) set to 1 right before the
// counter runs dry. Each straight-line segment of every defined function is
// prefixed with a check that charges the segment's instruction count:
//
//	if fuel < n { fuel = 0; exhausted = 1; unreachable }
//	fuel -= n
//
// A start function is detached and exported as StartExport so the caller can
// run it after fuel has been set.
func Instrument(data []byte, opts MeterOptions) (*Metered, error) {
	m, err := Split(data)
	if err != nil {
		return nil, err
	}
	info, err := m.Info()
	if err != nil {
		return nil, err
	}
	for _, reserved := range []string{FuelExport, ExhaustedExport, StartExport} {
		if _, ok := info.Export(reserved); ok {
			return nil, fmt.Errorf("wasm: export %q is reserved", reserved)
		}
	}

	fuelIdx := info.ImportedGlobals + info.DefinedGlobals
	flagIdx := fuelIdx + 1

	if err := appendGlobals(m); err != nil {
		return nil, err
	}

	exports := []Export{
		{Name: FuelExport, Kind: KindGlobal, Index: fuelIdx},
		{Name: ExhaustedExport, Kind: KindGlobal, Index: flagIdx},
	}
	out := &Metered{}
	if info.Start != nil {
		exports = append(exports, Export{Name: StartExport, Kind: KindFunc, Index: *info.Start})
		m.Remove(SectionStart)
		out.Start = true
	}
	if err := appendExports(m, exports); err != nil {
		return nil, err
	}

	if code := m.Find(SectionCode); code != nil {
		rw := &bodyRewriter{
			info:    info,
			fuelIdx: fuelIdx,
			flagIdx: flagIdx,
			canon:   opts.CanonicalizeNaN,
		}
		rewritten, err := rw.rewriteCode(code.Data)
		if err != nil {
			return nil, err
		}
		code.Data = rewritten
	}

	out.Bytes = m.Encode()
	return out, nil
}

func appendGlobals(m *Module) error {
	var existing []byte
	count := uint32(0)
	if s := m.Find(SectionGlobal); s != nil {
		r := newReader(s.Data)
		n, err := r.u32()
		if err != nil {
			return fmt.Errorf("wasm: global section: %w", err)
		}
		count = n
		existing = s.Data[r.pos:]
	}

	var buf bytes.Buffer
	WriteLEB128u(&buf, count+2)
	buf.Write(existing)
	// (global (mut i64) (i64.const 0))
	buf.Write([]byte{byte(ValI64), 0x01, OpI64Const, 0x00, OpEnd})
	// (global (mut i32) (i32.const 0))
	buf.Write([]byte{byte(ValI32), 0x01, OpI32Const, 0x00, OpEnd})
	m.Put(SectionGlobal, buf.Bytes())
	return nil
}

func appendExports(m *Module, add []Export) error {
	var existing []byte
	count := uint32(0)
	if s := m.Find(SectionExport); s != nil {
		r := newReader(s.Data)
		n, err := r.u32()
		if err != nil {
			return fmt.Errorf("wasm: export section: %w", err)
		}
		count = n
		existing = s.Data[r.pos:]
	}

	var buf bytes.Buffer
	WriteLEB128u(&buf, count+uint32(len(add)))
	buf.Write(existing)
	for _, e := range add {
		writeName(&buf, e.Name)
		buf.WriteByte(e.Kind)
		WriteLEB128u(&buf, e.Index)
	}
	m.Put(SectionExport, buf.Bytes())
	return nil
}

type bodyRewriter struct {
	info    *Info
	fuelIdx uint32
	flagIdx uint32
	canon   bool
}

func (rw *bodyRewriter) rewriteCode(data []byte) ([]byte, error) {
	r := newReader(data)
	n, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("wasm: code section: %w", err)
	}
	if int(n) != len(rw.info.Funcs) {
		return nil, fmt.Errorf("wasm: code section has %d bodies for %d functions", n, len(rw.info.Funcs))
	}

	var out bytes.Buffer
	WriteLEB128u(&out, n)
	for i := uint32(0); i < n; i++ {
		size, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("wasm: body %d: %w", i, err)
		}
		body, err := r.bytes(size)
		if err != nil {
			return nil, fmt.Errorf("wasm: body %d: %w", i, err)
		}
		ft, ok := rw.info.FuncType(rw.info.ImportedFuncs + i)
		if !ok {
			return nil, fmt.Errorf("wasm: body %d: no signature", i)
		}
		nb, err := rw.rewriteBody(body, uint32(len(ft.Params)))
		if err != nil {
			return nil, fmt.Errorf("wasm: body %d: %w", i, err)
		}
		WriteLEB128u(&out, uint32(len(nb)))
		out.Write(nb)
	}
	return out.Bytes(), nil
}

func (rw *bodyRewriter) rewriteBody(body []byte, params uint32) ([]byte, error) {
	r := newReader(body)
	groups, err := r.u32()
	if err != nil {
		return nil, err
	}
	locals := uint64(params)
	type localGroup struct {
		n uint32
		t byte
	}
	decls := make([]localGroup, 0, groups+2)
	for g := uint32(0); g < groups; g++ {
		cnt, err := r.u32()
		if err != nil {
			return nil, err
		}
		t, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if ValType(t) == ValV128 {
			return nil, fmt.Errorf("%w: v128 local", ErrUnsupportedOpcode)
		}
		locals += uint64(cnt)
		decls = append(decls, localGroup{n: cnt, t: t})
	}
	code := body[r.pos:]

	instrs, err := DecodeInstructions(code)
	if err != nil {
		return nil, err
	}
	if len(instrs) == 0 || instrs[len(instrs)-1].Opcode != OpEnd {
		return nil, fmt.Errorf("wasm: body does not end with end")
	}

	// Scratch locals for NaN canonicalization live past every existing local.
	scratch32, scratch64 := uint32(locals), uint32(locals+1)
	if rw.canon {
		if locals+2 > 50000 {
			return nil, fmt.Errorf("wasm: too many locals (%d)", locals)
		}
		decls = append(decls, localGroup{n: 1, t: byte(ValF32)}, localGroup{n: 1, t: byte(ValF64)})
	}

	var out bytes.Buffer
	WriteLEB128u(&out, uint32(len(decls)))
	for _, d := range decls {
		WriteLEB128u(&out, d.n)
		out.WriteByte(d.t)
	}

	segStart := 0
	for segStart < len(instrs) {
		segEnd := segStart
		for segEnd < len(instrs) && !isControlBoundary(instrs[segEnd].Opcode) {
			segEnd++
		}
		if segEnd < len(instrs) {
			segEnd++ // the boundary instruction belongs to its segment
		}

		// One unit per instruction; bulk memory ops are not length-scaled.
		rw.writeCharge(&out, uint64(segEnd-segStart))
		for _, in := range instrs[segStart:segEnd] {
			out.Write(code[in.Start:in.End])
			if rw.canon {
				switch {
				case nanProducingF32[in.Opcode]:
					writeCanonF32(&out, scratch32)
				case nanProducingF64[in.Opcode]:
					writeCanonF64(&out, scratch64)
				}
			}
		}
		segStart = segEnd
	}
	return out.Bytes(), nil
}

func (rw *bodyRewriter) writeCharge(out *bytes.Buffer, cost uint64) {
	if cost == 0 {
		return
	}
	// if fuel < cost { fuel = 0; exhausted = 1; unreachable }
	out.WriteByte(OpGlobalGet)
	WriteLEB128u(out, rw.fuelIdx)
	out.WriteByte(OpI64Const)
	WriteLEB128s64(out, int64(cost))
	out.WriteByte(OpI64LtU)
	out.WriteByte(OpIf)
	out.WriteByte(BlockEmpty)
	out.WriteByte(OpI64Const)
	out.WriteByte(0x00)
	out.WriteByte(OpGlobalSet)
	WriteLEB128u(out, rw.fuelIdx)
	out.WriteByte(OpI32Const)
	out.WriteByte(0x01)
	out.WriteByte(OpGlobalSet)
	WriteLEB128u(out, rw.flagIdx)
	out.WriteByte(OpUnreachable)
	out.WriteByte(OpEnd)
	// fuel -= cost
	out.WriteByte(OpGlobalGet)
	WriteLEB128u(out, rw.fuelIdx)
	out.WriteByte(OpI64Const)
	WriteLEB128s64(out, int64(cost))
	out.WriteByte(OpI64Sub)
	out.WriteByte(OpGlobalSet)
	WriteLEB128u(out, rw.fuelIdx)
}

// writeCanonF32 replaces the f32 on the stack with the canonical NaN when it is a NaN:
// select(x, canon, x == x).
func writeCanonF32(out *bytes.Buffer, scratch uint32) {
	out.WriteByte(OpLocalTee)
	WriteLEB128u(out, scratch)
	out.WriteByte(OpF32Const)
	out.Write(binary.LittleEndian.AppendUint32(nil, CanonicalNaN32))
	out.WriteByte(OpLocalGet)
	WriteLEB128u(out, scratch)
	out.WriteByte(OpLocalGet)
	WriteLEB128u(out, scratch)
	out.WriteByte(OpF32Eq)
	out.WriteByte(OpSelect)
}

func writeCanonF64(out *bytes.Buffer, scratch uint32) {
	out.WriteByte(OpLocalTee)
	WriteLEB128u(out, scratch)
	out.WriteByte(OpF64Const)
	out.Write(binary.LittleEndian.AppendUint64(nil, CanonicalNaN64))
	out.WriteByte(OpLocalGet)
	WriteLEB128u(out, scratch)
	out.WriteByte(OpLocalGet)
	WriteLEB128u(out, scratch)
	out.WriteByte(OpF64Eq)
	out.WriteByte(OpSelect)
}
