package wasmbridge

// Memory is the view a host function gets of a runtime's linear memory.
// Every access is bounds checked; offsets are guest addresses.
type Memory interface {
	ReadMemory(offset, n uint32) ([]byte, error)
	WriteMemory(offset uint32, data []byte, maxLen uint32) error
	ReadUint64(offset uint32) (uint64, error)
	WriteUint64(offset uint32, v uint64) error
	Memset(dst uint32, val byte, n uint32) error
	Memcmp(lhs, rhs, n uint32) (int, error)
	Copy(dst, src, n uint32) error
}

// GasMeter is the gas surface a host function charges against.
type GasMeter interface {
	AvailableGas() uint64
	SetAvailableGas(n uint64)
	// ConsumeGas deducts n when at least n remains. Otherwise the
	// budget drops to zero and it reports false.
	ConsumeGas(n uint64) bool
}

// Host is everything a syscall implementation needs from the runtime that
// invoked it. *runtime.Runtime satisfies it.
type Host interface {
	Memory
	GasMeter
}
