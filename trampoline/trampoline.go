package trampoline

import (
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfn"
)

// EntryPoint is an opaque native function reference.
type EntryPoint uintptr

// UserContext is the opaque per-execution pointer passed to every syscall.
type UserContext uintptr

// Capability pairs a syscall target with the context it runs against.
// It is copied freely and never dereferenced or released by the bridge.
type Capability struct {
	Entry   EntryPoint
	Context UserContext
}

// NativeCaller crosses into syscall code with a fixed number of arguments.
// Implementations must invoke the target with exactly the arguments given.
type NativeCaller interface {
	Call0(c Capability) hostfn.TrampolineResult
	Call1(c Capability, a0 uint64) hostfn.TrampolineResult
	Call2(c Capability, a0, a1 uint64) hostfn.TrampolineResult
	Call3(c Capability, a0, a1, a2 uint64) hostfn.TrampolineResult
	Call4(c Capability, a0, a1, a2, a3 uint64) hostfn.TrampolineResult
	Call5(c Capability, a0, a1, a2, a3, a4 uint64) hostfn.TrampolineResult
	Call6(c Capability, a0, a1, a2, a3, a4, a5 uint64) hostfn.TrampolineResult
	Call7(c Capability, a0, a1, a2, a3, a4, a5, a6 uint64) hostfn.TrampolineResult
	Call8(c Capability, a0, a1, a2, a3, a4, a5, a6, a7 uint64) hostfn.TrampolineResult
}

// Call performs the raw native call selected by len(args).
// More than hostfn.MaxArity arguments is a programming error and aborts.
func Call(nc NativeCaller, c Capability, args []uint64) hostfn.TrampolineResult {
	switch len(args) {
	case 0:
		return nc.Call0(c)
	case 1:
		return nc.Call1(c, args[0])
	case 2:
		return nc.Call2(c, args[0], args[1])
	case 3:
		return nc.Call3(c, args[0], args[1], args[2])
	case 4:
		return nc.Call4(c, args[0], args[1], args[2], args[3])
	case 5:
		return nc.Call5(c, args[0], args[1], args[2], args[3], args[4])
	case 6:
		return nc.Call6(c, args[0], args[1], args[2], args[3], args[4], args[5])
	case 7:
		return nc.Call7(c, args[0], args[1], args[2], args[3], args[4], args[5], args[6])
	case 8:
		return nc.Call8(c, args[0], args[1], args[2], args[3], args[4], args[5], args[6], args[7])
	}
	errors.Fatal(errors.PhaseInvoke, nil, "native call with %d arguments (max %d)", len(args), hostfn.MaxArity)
	return hostfn.TrampolineResult{}
}

// Dispatch calls the syscall bound to sig and interprets its status.
// A NoneOrRecoverable status yields the result (zero for Void); every other
// status, including unknown bytes, yields a *hostfn.HostError that the engine
// must raise as a trap.
func Dispatch(nc NativeCaller, c Capability, sig hostfn.Signature, args []uint64) (uint64, error) {
	if len(args) != int(sig.Arity) {
		errors.Fatal(errors.PhaseInvoke, nil, "%s called with %d arguments", sig, len(args))
	}

	res := Call(nc, c, args)

	status, known := hostfn.ParseStatus(res.Status)
	if !known {
		Logger().Warn("unknown syscall status byte",
			zapImport(sig), zapStatus(res.Status))
		return 0, &hostfn.HostError{Import: sig.Key(), Status: hostfn.Unrecoverable, Raw: res.Status}
	}
	if status != hostfn.NoneOrRecoverable {
		return 0, &hostfn.HostError{Import: sig.Key(), Status: status, Raw: res.Status}
	}
	if sig.Return == hostfn.Void {
		return 0, nil
	}
	return res.Result, nil
}
