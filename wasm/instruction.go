package wasm

import (
	"errors"
	"fmt"
)

// ErrUnsupportedOpcode is returned for instructions outside the deterministic
// subset: SIMD, threads, exceptions, tail calls, typed function references.
var ErrUnsupportedOpcode = errors.New("wasm: unsupported opcode")

// Instruction is the position of one decoded instruction in a function body.
type Instruction struct {
	Start  int
	End    int
	Opcode byte
	// Sub is the sub-opcode for 0xFC-prefixed instructions.
	Sub uint32
}

// isControlBoundary reports whether execution may not fall through linearly
// past op: a fuel segment ends after it.
func isControlBoundary(op byte) bool {
	switch op {
	case OpBlock, OpLoop, OpIf, OpElse, OpEnd,
		OpBr, OpBrIf, OpBrTable, OpReturn, OpUnreachable:
		return true
	}
	return false
}

// DecodeInstructions scans an expression and returns instruction boundaries.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := newReader(code)
	var out []Instruction
	for !r.eof() {
		start := r.pos
		op, sub, err := readInstruction(r)
		if err != nil {
			return nil, fmt.Errorf("offset %d: %w", start, err)
		}
		out = append(out, Instruction{Start: start, End: r.pos, Opcode: op, Sub: sub})
	}
	return out, nil
}

// readInstruction reads one opcode and skips its immediates.
func readInstruction(r *reader) (byte, uint32, error) {
	op, err := r.readByte()
	if err != nil {
		return 0, 0, err
	}

	switch {
	case op == OpUnreachable, op == OpNop, op == OpElse, op == OpEnd, op == OpReturn,
		op == OpDrop, op == OpSelect, op == OpRefIsNull:
		return op, 0, nil

	case op == OpBlock, op == OpLoop, op == OpIf:
		return op, 0, skipBlockType(r)

	case op == OpBr, op == OpBrIf, op == OpCall,
		op >= OpLocalGet && op <= OpTableSet,
		op == OpRefFunc:
		_, err = r.u32()
		return op, 0, err

	case op == OpBrTable:
		n, err := r.u32()
		if err != nil {
			return op, 0, err
		}
		for i := uint32(0); i <= n; i++ {
			if _, err = r.u32(); err != nil {
				return op, 0, err
			}
		}
		return op, 0, nil

	case op == OpCallIndirect:
		if _, err = r.u32(); err != nil {
			return op, 0, err
		}
		_, err = r.u32()
		return op, 0, err

	case op == OpSelectType:
		n, err := r.u32()
		if err != nil {
			return op, 0, err
		}
		_, err = r.bytes(n)
		return op, 0, err

	case op >= OpI32Load && op <= OpI64Store32:
		if _, err = r.u32(); err != nil {
			return op, 0, err
		}
		_, err = r.u32()
		return op, 0, err

	case op == OpMemorySize, op == OpMemoryGrow:
		_, err = r.u32()
		return op, 0, err

	case op == OpI32Const:
		_, err = r.s32()
		return op, 0, err

	case op == OpI64Const:
		_, err = r.s64()
		return op, 0, err

	case op == OpF32Const:
		_, err = r.bytes(4)
		return op, 0, err

	case op == OpF64Const:
		_, err = r.bytes(8)
		return op, 0, err

	case op >= firstNumeric && op <= lastNumeric:
		return op, 0, nil

	case op == OpRefNull:
		_, err = r.readByte()
		return op, 0, err

	case op == OpPrefixMisc:
		sub, err := r.u32()
		if err != nil {
			return op, 0, err
		}
		return op, sub, skipMisc(r, sub)
	}

	return op, 0, fmt.Errorf("%w 0x%02x", ErrUnsupportedOpcode, op)
}

func skipBlockType(r *reader) error {
	b, err := r.peek()
	if err != nil {
		return err
	}
	switch ValType(b) {
	case ValType(BlockEmpty), ValI32, ValI64, ValF32, ValF64, ValFuncRef, ValExtern:
		r.pos++
		return nil
	case ValV128:
		return fmt.Errorf("%w: v128 block type", ErrUnsupportedOpcode)
	}
	_, err = r.s33()
	return err
}

func skipMisc(r *reader, sub uint32) error {
	var n int
	switch {
	case sub <= 7: // saturating truncation
		n = 0
	case sub == 8: // memory.init data, mem
		n = 2
	case sub == 9: // data.drop
		n = 1
	case sub == 10: // memory.copy
		n = 2
	case sub == 11: // memory.fill
		n = 1
	case sub == 12, sub == 14: // table.init, table.copy
		n = 2
	case sub == 13, sub == 15, sub == 16, sub == 17: // elem.drop, table.grow/size/fill
		n = 1
	default:
		return fmt.Errorf("%w 0xFC %d", ErrUnsupportedOpcode, sub)
	}
	for i := 0; i < n; i++ {
		if _, err := r.u32(); err != nil {
			return err
		}
	}
	return nil
}
