// Package trampoline bridges WASM host-import calls to native syscalls.
//
// A syscall is reached through a Capability: an opaque entry point and the
// per-execution user context. The NativeCaller performing the call is
// injected, so the bridge can run against C function pointers (CCaller,
// cgo builds), Go functions (FuncTable) or a test double.
//
// Dispatch is the only place a syscall status is interpreted:
//
//	v, err := trampoline.Dispatch(caller, capability, sig, args)
//	if err != nil {
//	    // *hostfn.HostError: raise it as a trap, do not return v
//	}
package trampoline
