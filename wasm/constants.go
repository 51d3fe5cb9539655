package wasm

// WebAssembly binary format magic number and version.
const (
	// Magic is the WebAssembly binary magic number ("\0asm" in little-endian).
	Magic uint32 = 0x6D736100

	// Version is the supported WebAssembly binary format version.
	Version uint32 = 0x01
)

// Section IDs define the binary identifiers for each module section.
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
	SectionTag       byte = 13
)

// Import/Export descriptor kinds.
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
	KindTag    byte = 4
)

// Value type encodings.
const (
	ValI32     ValType = 0x7F
	ValI64     ValType = 0x7E
	ValF32     ValType = 0x7D
	ValF64     ValType = 0x7C
	ValV128    ValType = 0x7B
	ValFuncRef ValType = 0x70
	ValExtern  ValType = 0x6F
)

// BlockEmpty is the empty block type.
const BlockEmpty byte = 0x40

// funcTypeForm prefixes every function type in the type section.
const funcTypeForm byte = 0x60

// Control flow opcodes
const (
	OpUnreachable  byte = 0x00
	OpNop          byte = 0x01
	OpBlock        byte = 0x02
	OpLoop         byte = 0x03
	OpIf           byte = 0x04
	OpElse         byte = 0x05
	OpEnd          byte = 0x0B
	OpBr           byte = 0x0C
	OpBrIf         byte = 0x0D
	OpBrTable      byte = 0x0E
	OpReturn       byte = 0x0F
	OpCall         byte = 0x10
	OpCallIndirect byte = 0x11
)

// Parametric and variable opcodes
const (
	OpDrop       byte = 0x1A
	OpSelect     byte = 0x1B
	OpSelectType byte = 0x1C
	OpLocalGet   byte = 0x20
	OpLocalSet   byte = 0x21
	OpLocalTee   byte = 0x22
	OpGlobalGet  byte = 0x23
	OpGlobalSet  byte = 0x24
	OpTableGet   byte = 0x25
	OpTableSet   byte = 0x26
)

// Memory opcodes
const (
	OpI32Load     byte = 0x28
	OpI64Load     byte = 0x29
	OpI32Store    byte = 0x36
	OpI64Store    byte = 0x37
	OpI64Store32  byte = 0x3E
	OpMemorySize  byte = 0x3F
	OpMemoryGrow  byte = 0x40
	OpI32Const    byte = 0x41
	OpI64Const    byte = 0x42
	OpF32Const    byte = 0x43
	OpF64Const    byte = 0x44
	firstNumeric  byte = 0x45
	lastNumeric   byte = 0xC4 // includes sign extension
	OpRefNull     byte = 0xD0
	OpRefIsNull   byte = 0xD1
	OpRefFunc     byte = 0xD2
	OpPrefixMisc  byte = 0xFC
	OpPrefixSIMD  byte = 0xFD
	OpPrefixAtoms byte = 0xFE
)

// Numeric opcodes used by generated code
const (
	OpI32Eqz            byte = 0x45
	OpI64LtU            byte = 0x54
	OpF32Eq             byte = 0x5B
	OpF64Eq             byte = 0x61
	OpI32Add            byte = 0x6A
	OpI32DivS           byte = 0x6D
	OpI64Add            byte = 0x7C
	OpI64Sub            byte = 0x7D
	OpI64Mul            byte = 0x7E
	OpI64DivU           byte = 0x80
	OpF32Sub            byte = 0x93
	OpF32Div            byte = 0x95
	OpF64Div            byte = 0xA3
	OpI32ReinterpretF32 byte = 0xBC
	OpI64ExtendI32U     byte = 0xAD
)

// nanProducingF32 lists f32 operations whose NaN results are not bit-exact across platforms.
var nanProducingF32 = [256]bool{
	0x8D: true, 0x8E: true, 0x8F: true, 0x90: true, 0x91: true, // ceil floor trunc nearest sqrt
	0x92: true, 0x93: true, 0x94: true, 0x95: true, 0x96: true, 0x97: true, // add sub mul div min max
	0xB6: true, // f32.demote_f64
}

// nanProducingF64 lists f64 operations whose NaN results are not bit-exact across platforms.
var nanProducingF64 = [256]bool{
	0x9B: true, 0x9C: true, 0x9D: true, 0x9E: true, 0x9F: true,
	0xA0: true, 0xA1: true, 0xA2: true, 0xA3: true, 0xA4: true, 0xA5: true,
	0xBB: true, // f64.promote_f32
}

// Canonical quiet NaN bit patterns.
const (
	CanonicalNaN32 uint32 = 0x7FC00000
	CanonicalNaN64 uint64 = 0x7FF8000000000000
)
