// Package wasm provides the WebAssembly binary handling the bridge needs on
// engines without native fuel: section framing, a small index-space decoder,
// an instruction scanner and the fuel/NaN instrumentation pass.
//
// Only the deterministic subset is accepted. SIMD, threads, exceptions,
// shared and 64-bit memories are rejected rather than metered.
//
// # Instrumentation
//
//	metered, err := wasm.Instrument(code, wasm.MeterOptions{CanonicalizeNaN: true})
//	// metered.Bytes exports FuelExport and ExhaustedExport globals
//
// # Building test modules
//
//	b := wasm.NewBuilder()
//	add := b.ImportFunc("env", "add", []wasm.ValType{wasm.ValI64, wasm.ValI64}, []wasm.ValType{wasm.ValI64})
//	main := b.Func(nil, []wasm.ValType{wasm.ValI64}, nil,
//		wasm.I64Const(1), wasm.I64Const(2), wasm.Call(add))
//	b.ExportFunc("main", main)
//	code := b.Bytes()
package wasm
