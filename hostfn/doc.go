// Package hostfn defines the status values that cross the syscall
// boundary and the outcome taxonomy reported for every invocation.
//
// A syscall returns a TrampolineResult. Its Status byte is one of the four
// HostFnError values; any other byte is treated as Unrecoverable. Raised
// statuses abort the calling instance as a *HostError and surface at the
// invocation boundary as an InvokeError:
//
//	ReturnSuccess -> Return
//	OutOfGas      -> OutOfGasError
//	Unrecoverable -> UnrecoverableError
//
// The numeric values of both enums are part of the external ABI.
package hostfn
