package runtime

import (
	"bytes"
	"encoding/binary"

	"github.com/wippyai/wasm-bridge/errors"
)

// Memory returns the live linear memory, or nil when the runtime is not
// linked or declares no memory. The slice is invalidated by the next call
// that can grow memory.
func (r *Runtime) Memory() []byte {
	if r.closed || r.instance == nil {
		return nil
	}
	return r.instance.Memory()
}

// span returns memory[offset:offset+n] after an overflow-safe bounds check.
func (r *Runtime) span(offset, n uint32) ([]byte, error) {
	mem := r.Memory()
	end := uint64(offset) + uint64(n)
	if end > uint64(len(mem)) {
		return nil, errors.OutOfBounds(errors.PhaseMemory, uint64(offset), uint64(n), uint64(len(mem)))
	}
	return mem[offset:end], nil
}

// ReadMemory copies n bytes starting at offset.
func (r *Runtime) ReadMemory(offset, n uint32) ([]byte, error) {
	src, err := r.span(offset, n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(src), nil
}

// WriteMemory copies data to offset. The whole window [offset,
// offset+maxLen) must be in bounds and data must fit in it.
func (r *Runtime) WriteMemory(offset uint32, data []byte, maxLen uint32) error {
	if uint64(len(data)) > uint64(maxLen) {
		return errors.New(errors.PhaseMemory, errors.KindOverflow).
			Value(len(data)).
			Detail("%d bytes exceed write window of %d", len(data), maxLen).
			Build()
	}
	dst, err := r.span(offset, maxLen)
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

// ReadUint64 loads a little-endian u64.
func (r *Runtime) ReadUint64(offset uint32) (uint64, error) {
	src, err := r.span(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(src), nil
}

// WriteUint64 stores a little-endian u64.
func (r *Runtime) WriteUint64(offset uint32, v uint64) error {
	dst, err := r.span(offset, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(dst, v)
	return nil
}

// Memset fills n bytes at dst with val.
func (r *Runtime) Memset(dst uint32, val byte, n uint32) error {
	b, err := r.span(dst, n)
	if err != nil {
		return err
	}
	for i := range b {
		b[i] = val
	}
	return nil
}

// Memcmp compares n bytes at lhs and rhs.
func (r *Runtime) Memcmp(lhs, rhs, n uint32) (int, error) {
	a, err := r.span(lhs, n)
	if err != nil {
		return 0, err
	}
	b, err := r.span(rhs, n)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(a, b), nil
}

// Copy moves n bytes from src to dst. Overlapping ranges are rejected.
func (r *Runtime) Copy(dst, src, n uint32) error {
	to, err := r.span(dst, n)
	if err != nil {
		return err
	}
	from, err := r.span(src, n)
	if err != nil {
		return err
	}
	if n > 0 && uint64(dst) < uint64(src)+uint64(n) && uint64(src) < uint64(dst)+uint64(n) {
		return errors.New(errors.PhaseMemory, errors.KindInvalidInput).
			Detail("overlapping copy [%d,+%d) <- [%d,+%d)", dst, n, src, n).
			Build()
	}
	copy(to, from)
	return nil
}
