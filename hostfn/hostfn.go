package hostfn

import (
	"fmt"
	"unicode/utf8"

	"github.com/wippyai/wasm-bridge/errors"
)

// HostFnError is the status a syscall reports alongside its result.
type HostFnError uint8

const (
	// NoneOrRecoverable is a normal return; the result is meaningful.
	NoneOrRecoverable HostFnError = 0
	// ReturnSuccess ends the calling instance successfully; nothing after the call runs.
	ReturnSuccess HostFnError = 1
	// OutOfGas reports that the syscall exhausted the gas budget.
	OutOfGas HostFnError = 2
	// Unrecoverable reports a nondeterministic native fault.
	Unrecoverable HostFnError = 3
)

// ParseStatus interprets a raw status byte. Unknown values report false.
func ParseStatus(b uint8) (HostFnError, bool) {
	s := HostFnError(b)
	switch s {
	case NoneOrRecoverable, ReturnSuccess, OutOfGas, Unrecoverable:
		return s, true
	}
	return Unrecoverable, false
}

func (s HostFnError) String() string {
	switch s {
	case NoneOrRecoverable:
		return "none_or_recoverable"
	case ReturnSuccess:
		return "return_success"
	case OutOfGas:
		return "out_of_gas"
	case Unrecoverable:
		return "unrecoverable"
	}
	return fmt.Sprintf("host_fn_error(%d)", uint8(s))
}

// InvokeError is the host-visible outcome of an invocation.
type InvokeError uint8

const (
	None               InvokeError = 0
	DeterministicError InvokeError = 1
	OutOfGasError      InvokeError = 2
	UnrecoverableError InvokeError = 3
	Return             InvokeError = 4
)

func (e InvokeError) String() string {
	switch e {
	case None:
		return "none"
	case DeterministicError:
		return "deterministic_error"
	case OutOfGasError:
		return "out_of_gas_error"
	case UnrecoverableError:
		return "unrecoverable"
	case Return:
		return "return"
	}
	return fmt.Sprintf("invoke_error(%d)", uint8(e))
}

// Outcome maps a raised syscall status onto the invocation taxonomy.
// NoneOrRecoverable is never raised, so it reports false.
func (s HostFnError) Outcome() (InvokeError, bool) {
	switch s {
	case ReturnSuccess:
		return Return, true
	case OutOfGas:
		return OutOfGasError, true
	case Unrecoverable:
		return UnrecoverableError, true
	}
	return UnrecoverableError, false
}

// TrampolineResult is the pair every native call returns.
type TrampolineResult struct {
	Result uint64
	Status uint8
}

// Ok builds a successful result.
func Ok(v uint64) TrampolineResult {
	return TrampolineResult{Result: v}
}

// Fail builds a result that raises the given status.
func Fail(s HostFnError) TrampolineResult {
	return TrampolineResult{Status: uint8(s)}
}

// ReturnKind selects whether the WASM call site receives a value.
type ReturnKind uint8

const (
	Void ReturnKind = 0
	U64  ReturnKind = 1
)

func (k ReturnKind) String() string {
	switch k {
	case Void:
		return "void"
	case U64:
		return "u64"
	}
	return fmt.Sprintf("return_kind(%d)", uint8(k))
}

// MaxArity is the largest number of u64 arguments a syscall takes.
const MaxArity = 8

// Signature identifies a host import and its calling shape.
type Signature struct {
	Module string
	Name   string
	Arity  uint8
	Return ReturnKind
}

// Key returns "module#name".
func (s Signature) Key() string {
	return s.Module + "#" + s.Name
}

func (s Signature) String() string {
	ret := ""
	if s.Return == U64 {
		ret = " -> i64"
	}
	return fmt.Sprintf("%s(%d x i64)%s", s.Key(), s.Arity, ret)
}

// Validate checks names, arity and return kind.
func (s Signature) Validate() error {
	if !utf8.ValidString(s.Module) {
		return errors.InvalidUTF8(errors.PhaseLink, "module name", []byte(s.Module))
	}
	if !utf8.ValidString(s.Name) {
		return errors.InvalidUTF8(errors.PhaseLink, "function name", []byte(s.Name))
	}
	if s.Arity > MaxArity {
		return errors.New(errors.PhaseLink, errors.KindInvalidInput).
			Import(s.Module, s.Name).
			Value(s.Arity).
			Detail("arity %d exceeds %d", s.Arity, MaxArity).
			Build()
	}
	if s.Return != Void && s.Return != U64 {
		return errors.New(errors.PhaseLink, errors.KindInvalidInput).
			Import(s.Module, s.Name).
			Value(uint8(s.Return)).
			Detail("invalid return kind %d", uint8(s.Return)).
			Build()
	}
	return nil
}
