package wasm

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrOverflow is returned when a LEB128 value exceeds the maximum bit width.
var ErrOverflow = errors.New("leb128: overflow")

// ErrTruncated is returned when input ends inside a value.
var ErrTruncated = errors.New("wasm: unexpected end of input")

// reader is a cursor over a byte slice with WASM-specific read methods.
type reader struct {
	buf []byte
	pos int
}

func newReader(b []byte) *reader {
	return &reader{buf: b}
}

func (r *reader) eof() bool {
	return r.pos >= len(r.buf)
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrTruncated
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) peek() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, ErrTruncated
	}
	return r.buf[r.pos], nil
}

func (r *reader) bytes(n uint32) ([]byte, error) {
	if uint64(r.pos)+uint64(n) > uint64(len(r.buf)) {
		return nil, ErrTruncated
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// u32 reads an unsigned LEB128 value
func (r *reader) u32() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		if shift == 28 && b&0x70 != 0 {
			return 0, ErrOverflow
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, ErrOverflow
		}
	}
}

// signed reads a signed LEB128 value of at most bits width
func (r *reader) signed(bits uint) (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	maxBytes := (bits + 6) / 7
	for i := uint(0); ; i++ {
		if i >= maxBytes {
			return 0, ErrOverflow
		}
		b, err = r.readByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}
	// Sign extend
	if shift < 64 && b&0x40 != 0 {
		result |= ^int64(0) << shift
	}
	return result, nil
}

func (r *reader) s32() (int32, error) {
	v, err := r.signed(32)
	return int32(v), err
}

func (r *reader) s33() (int64, error) {
	return r.signed(33)
}

func (r *reader) s64() (int64, error) {
	return r.signed(64)
}

func (r *reader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("wasm: invalid UTF-8 name %x", b)
	}
	return string(b), nil
}

// WriteLEB128u writes an unsigned LEB128 value
func WriteLEB128u(w *bytes.Buffer, v uint32) {
	WriteLEB128u64(w, uint64(v))
}

// WriteLEB128u64 writes an unsigned 64-bit LEB128 value
func WriteLEB128u64(w *bytes.Buffer, v uint64) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

// WriteLEB128s64 writes a signed 64-bit LEB128 value
func WriteLEB128s64(w *bytes.Buffer, v int64) {
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			more = false
		} else {
			b |= 0x80
		}
		w.WriteByte(b)
	}
}

// WriteLEB128s writes a signed LEB128 value
func WriteLEB128s(w *bytes.Buffer, v int32) {
	WriteLEB128s64(w, int64(v))
}

func writeName(w *bytes.Buffer, s string) {
	WriteLEB128u(w, uint32(len(s)))
	w.WriteString(s)
}
