// Package abi is the handle-based boundary over runtime.
//
// Contexts and runtimes live in a resource.Arena and cross the boundary
// as opaque Handles; 0 is null. Names arrive as byte buffers and must be
// valid UTF-8. Every failure is reported as a null handle, false, or an
// InvokeResult with ErrorKind DeterministicError and zero gas:
//
//	b := abi.New(trampoline.CCaller{})
//	ctx := b.CreateContext(abi.ContextConfig{Engine: engine.CompilerEngineA, CacheSize: 64})
//	b.Link(ctx, []byte("env"), []byte("log"), entry, 1, uint8(hostfn.Void))
//	rt := b.CreateRuntime(code, ctx, user, nil)
//	b.SetAvailableGas(rt, 1_000_000)
//	res := b.Invoke(rt, []byte("main"), nil)
//	b.FreeRuntime(rt)
//	b.FreeContext(ctx)
package abi
