package wasm

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Module is a module split into raw sections. Section payloads are kept
// verbatim so a rewrite only re-encodes what it touches.
type Module struct {
	Sections []Section
}

// Split parses the module header and section framing.
func Split(data []byte) (*Module, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("wasm: module too short (%d bytes)", len(data))
	}
	if binary.LittleEndian.Uint32(data[0:4]) != Magic {
		return nil, fmt.Errorf("wasm: invalid magic number")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != Version {
		return nil, fmt.Errorf("wasm: unsupported version %d", v)
	}

	m := &Module{}
	r := newReader(data[8:])
	lastOrder := 0
	for !r.eof() {
		id, err := r.readByte()
		if err != nil {
			return nil, err
		}
		size, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("wasm: section %d size: %w", id, err)
		}
		payload, err := r.bytes(size)
		if err != nil {
			return nil, fmt.Errorf("wasm: section %d: %w", id, err)
		}
		if id != SectionCustom {
			order := sectionOrder(id)
			if order == 0 {
				return nil, fmt.Errorf("wasm: unknown section id %d", id)
			}
			if order <= lastOrder {
				return nil, fmt.Errorf("wasm: section %d out of order", id)
			}
			lastOrder = order
		}
		m.Sections = append(m.Sections, Section{ID: id, Data: payload})
	}
	return m, nil
}

// sectionOrder returns the canonical position of a non-custom section, 0 if unknown.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	}
	return 0
}

// Find returns the first section with id, or nil.
func (m *Module) Find(id byte) *Section {
	for i := range m.Sections {
		if m.Sections[i].ID == id {
			return &m.Sections[i]
		}
	}
	return nil
}

// Remove drops every section with id.
func (m *Module) Remove(id byte) {
	out := m.Sections[:0]
	for _, s := range m.Sections {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.Sections = out
}

// Put replaces the section with id, or inserts it at its canonical position.
func (m *Module) Put(id byte, data []byte) {
	if s := m.Find(id); s != nil {
		s.Data = data
		return
	}
	order := sectionOrder(id)
	at := len(m.Sections)
	for i, s := range m.Sections {
		if s.ID != SectionCustom && sectionOrder(s.ID) > order {
			at = i
			break
		}
	}
	m.Sections = append(m.Sections, Section{})
	copy(m.Sections[at+1:], m.Sections[at:])
	m.Sections[at] = Section{ID: id, Data: data}
}

// Encode serializes the module.
func (m *Module) Encode() []byte {
	var buf bytes.Buffer
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:8], Version)
	buf.Write(hdr[:])
	for _, s := range m.Sections {
		buf.WriteByte(s.ID)
		WriteLEB128u(&buf, uint32(len(s.Data)))
		buf.Write(s.Data)
	}
	return buf.Bytes()
}

// Info is the decoded index space of a module: enough to resolve imports,
// exports and function signatures without a full decode.
type Info struct {
	Start           *uint32
	Types           []FuncType
	Imports         []Import
	Exports         []Export
	Funcs           []uint32 // type index per defined function
	ImportedFuncs   uint32
	ImportedGlobals uint32
	DefinedGlobals  uint32
	Memories        uint32
}

// FuncType returns the signature of function idx in the function index space.
func (i *Info) FuncType(idx uint32) (FuncType, bool) {
	var typeIdx uint32
	if idx < i.ImportedFuncs {
		n := uint32(0)
		found := false
		for _, imp := range i.Imports {
			if imp.Kind != KindFunc {
				continue
			}
			if n == idx {
				typeIdx = imp.TypeIdx
				found = true
				break
			}
			n++
		}
		if !found {
			return FuncType{}, false
		}
	} else {
		d := idx - i.ImportedFuncs
		if d >= uint32(len(i.Funcs)) {
			return FuncType{}, false
		}
		typeIdx = i.Funcs[d]
	}
	if typeIdx >= uint32(len(i.Types)) {
		return FuncType{}, false
	}
	return i.Types[typeIdx], true
}

// Export returns the export with the given name.
func (i *Info) Export(name string) (Export, bool) {
	for _, e := range i.Exports {
		if e.Name == name {
			return e, true
		}
	}
	return Export{}, false
}

// FuncImports returns the function imports in index order.
func (i *Info) FuncImports() []Import {
	var out []Import
	for _, imp := range i.Imports {
		if imp.Kind == KindFunc {
			out = append(out, imp)
		}
	}
	return out
}

// Inspect decodes the index-space sections of a module.
func Inspect(data []byte) (*Info, error) {
	m, err := Split(data)
	if err != nil {
		return nil, err
	}
	return m.Info()
}

// Info decodes the index-space sections of a split module.
func (m *Module) Info() (*Info, error) {
	info := &Info{}
	for _, s := range m.Sections {
		var err error
		switch s.ID {
		case SectionType:
			info.Types, err = parseTypes(s.Data)
		case SectionImport:
			err = parseImports(s.Data, info)
		case SectionFunction:
			info.Funcs, err = parseU32Vec(s.Data)
		case SectionMemory:
			var n uint32
			n, err = parseMemories(s.Data)
			info.Memories += n
		case SectionGlobal:
			info.DefinedGlobals, err = newReader(s.Data).u32()
		case SectionExport:
			info.Exports, err = parseExports(s.Data)
		case SectionStart:
			var idx uint32
			idx, err = newReader(s.Data).u32()
			info.Start = &idx
		}
		if err != nil {
			return nil, fmt.Errorf("wasm: section %d: %w", s.ID, err)
		}
	}
	return info, nil
}

func parseTypes(data []byte) ([]FuncType, error) {
	r := newReader(data)
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	types := make([]FuncType, 0, n)
	for i := uint32(0); i < n; i++ {
		form, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if form != funcTypeForm {
			return nil, fmt.Errorf("unsupported type form 0x%02x", form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return nil, err
		}
		results, err := readValTypes(r)
		if err != nil {
			return nil, err
		}
		types = append(types, FuncType{Params: params, Results: results})
	}
	return types, nil
}

func readValTypes(r *reader) ([]ValType, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	b, err := r.bytes(n)
	if err != nil {
		return nil, err
	}
	out := make([]ValType, n)
	for i, v := range b {
		out[i] = ValType(v)
	}
	return out, nil
}

func parseImports(data []byte, info *Info) error {
	r := newReader(data)
	n, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		mod, err := r.name()
		if err != nil {
			return err
		}
		name, err := r.name()
		if err != nil {
			return err
		}
		kind, err := r.readByte()
		if err != nil {
			return err
		}
		imp := Import{Module: mod, Name: name, Kind: kind}
		switch kind {
		case KindFunc:
			if imp.TypeIdx, err = r.u32(); err != nil {
				return err
			}
			info.ImportedFuncs++
		case KindTable:
			if _, err = r.readByte(); err != nil {
				return err
			}
			if err = skipLimits(r); err != nil {
				return err
			}
		case KindMemory:
			if err = skipLimits(r); err != nil {
				return err
			}
			info.Memories++
		case KindGlobal:
			if _, err = r.bytes(2); err != nil {
				return err
			}
			info.ImportedGlobals++
		default:
			return fmt.Errorf("unsupported import kind %d", kind)
		}
		info.Imports = append(info.Imports, imp)
	}
	return nil
}

// skipLimits reads a limits structure. Shared and 64-bit memories are rejected.
func skipLimits(r *reader) error {
	flag, err := r.readByte()
	if err != nil {
		return err
	}
	switch flag {
	case 0x00:
		_, err = r.u32()
	case 0x01:
		if _, err = r.u32(); err == nil {
			_, err = r.u32()
		}
	default:
		return fmt.Errorf("unsupported limits flag 0x%02x", flag)
	}
	return err
}

func parseMemories(data []byte) (uint32, error) {
	r := newReader(data)
	n, err := r.u32()
	if err != nil {
		return 0, err
	}
	for i := uint32(0); i < n; i++ {
		if err := skipLimits(r); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func parseExports(data []byte) ([]Export, error) {
	r := newReader(data)
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]Export, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := r.name()
		if err != nil {
			return nil, err
		}
		kind, err := r.readByte()
		if err != nil {
			return nil, err
		}
		idx, err := r.u32()
		if err != nil {
			return nil, err
		}
		out = append(out, Export{Name: name, Kind: kind, Index: idx})
	}
	return out, nil
}

func parseU32Vec(data []byte) ([]uint32, error) {
	r := newReader(data)
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := r.u32()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
