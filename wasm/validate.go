package wasm

import "fmt"

// Check verifies that a module stays inside the deterministic subset without
// rewriting it. Engines with native fuel use it in place of Instrument.
func Check(data []byte) (*Info, error) {
	m, err := Split(data)
	if err != nil {
		return nil, err
	}
	info, err := m.Info()
	if err != nil {
		return nil, err
	}
	code := m.Find(SectionCode)
	if code == nil {
		return info, nil
	}

	r := newReader(code.Data)
	n, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("wasm: code section: %w", err)
	}
	if int(n) != len(info.Funcs) {
		return nil, fmt.Errorf("wasm: code section has %d bodies for %d functions", n, len(info.Funcs))
	}
	for i := uint32(0); i < n; i++ {
		size, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("wasm: body %d: %w", i, err)
		}
		body, err := r.bytes(size)
		if err != nil {
			return nil, fmt.Errorf("wasm: body %d: %w", i, err)
		}
		if err := checkBody(body); err != nil {
			return nil, fmt.Errorf("wasm: body %d: %w", i, err)
		}
	}
	return info, nil
}

func checkBody(body []byte) error {
	r := newReader(body)
	groups, err := r.u32()
	if err != nil {
		return err
	}
	for g := uint32(0); g < groups; g++ {
		if _, err := r.u32(); err != nil {
			return err
		}
		t, err := r.readByte()
		if err != nil {
			return err
		}
		if ValType(t) == ValV128 {
			return fmt.Errorf("%w: v128 local", ErrUnsupportedOpcode)
		}
	}
	_, err = DecodeInstructions(body[r.pos:])
	return err
}
