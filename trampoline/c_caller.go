//go:build cgo

package trampoline

/*
#include <stdint.h>

typedef struct {
	uint64_t result;
	uint8_t status;
} bridge_result;

typedef bridge_result (*bridge_fn0)(void*);
typedef bridge_result (*bridge_fn1)(void*, uint64_t);
typedef bridge_result (*bridge_fn2)(void*, uint64_t, uint64_t);
typedef bridge_result (*bridge_fn3)(void*, uint64_t, uint64_t, uint64_t);
typedef bridge_result (*bridge_fn4)(void*, uint64_t, uint64_t, uint64_t, uint64_t);
typedef bridge_result (*bridge_fn5)(void*, uint64_t, uint64_t, uint64_t, uint64_t, uint64_t);
typedef bridge_result (*bridge_fn6)(void*, uint64_t, uint64_t, uint64_t, uint64_t, uint64_t, uint64_t);
typedef bridge_result (*bridge_fn7)(void*, uint64_t, uint64_t, uint64_t, uint64_t, uint64_t, uint64_t, uint64_t);
typedef bridge_result (*bridge_fn8)(void*, uint64_t, uint64_t, uint64_t, uint64_t, uint64_t, uint64_t, uint64_t, uint64_t);

static bridge_result bridge_call0(uintptr_t f, uintptr_t ctx) {
	return ((bridge_fn0)f)((void*)ctx);
}
static bridge_result bridge_call1(uintptr_t f, uintptr_t ctx, uint64_t a0) {
	return ((bridge_fn1)f)((void*)ctx, a0);
}
static bridge_result bridge_call2(uintptr_t f, uintptr_t ctx, uint64_t a0, uint64_t a1) {
	return ((bridge_fn2)f)((void*)ctx, a0, a1);
}
static bridge_result bridge_call3(uintptr_t f, uintptr_t ctx, uint64_t a0, uint64_t a1, uint64_t a2) {
	return ((bridge_fn3)f)((void*)ctx, a0, a1, a2);
}
static bridge_result bridge_call4(uintptr_t f, uintptr_t ctx, uint64_t a0, uint64_t a1, uint64_t a2, uint64_t a3) {
	return ((bridge_fn4)f)((void*)ctx, a0, a1, a2, a3);
}
static bridge_result bridge_call5(uintptr_t f, uintptr_t ctx, uint64_t a0, uint64_t a1, uint64_t a2, uint64_t a3, uint64_t a4) {
	return ((bridge_fn5)f)((void*)ctx, a0, a1, a2, a3, a4);
}
static bridge_result bridge_call6(uintptr_t f, uintptr_t ctx, uint64_t a0, uint64_t a1, uint64_t a2, uint64_t a3, uint64_t a4, uint64_t a5) {
	return ((bridge_fn6)f)((void*)ctx, a0, a1, a2, a3, a4, a5);
}
static bridge_result bridge_call7(uintptr_t f, uintptr_t ctx, uint64_t a0, uint64_t a1, uint64_t a2, uint64_t a3, uint64_t a4, uint64_t a5, uint64_t a6) {
	return ((bridge_fn7)f)((void*)ctx, a0, a1, a2, a3, a4, a5, a6);
}
static bridge_result bridge_call8(uintptr_t f, uintptr_t ctx, uint64_t a0, uint64_t a1, uint64_t a2, uint64_t a3, uint64_t a4, uint64_t a5, uint64_t a6, uint64_t a7) {
	return ((bridge_fn8)f)((void*)ctx, a0, a1, a2, a3, a4, a5, a6, a7);
}
*/
import "C"

import "github.com/wippyai/wasm-bridge/hostfn"

// CCallerAvailable reports whether CCaller can reach native code in this build.
const CCallerAvailable = true

// CCaller calls C functions of the form
//
//	bridge_result fn(void* ctx, uint64_t a0, ...);
//
// where bridge_result is {uint64_t result; uint8_t status;}. Entry is the
// function address and Context is passed through untouched.
type CCaller struct{}

func fromC(r C.bridge_result) hostfn.TrampolineResult {
	return hostfn.TrampolineResult{Result: uint64(r.result), Status: uint8(r.status)}
}

func (CCaller) Call0(c Capability) hostfn.TrampolineResult {
	return fromC(C.bridge_call0(C.uintptr_t(c.Entry), C.uintptr_t(c.Context)))
}

func (CCaller) Call1(c Capability, a0 uint64) hostfn.TrampolineResult {
	return fromC(C.bridge_call1(C.uintptr_t(c.Entry), C.uintptr_t(c.Context), C.uint64_t(a0)))
}

func (CCaller) Call2(c Capability, a0, a1 uint64) hostfn.TrampolineResult {
	return fromC(C.bridge_call2(C.uintptr_t(c.Entry), C.uintptr_t(c.Context),
		C.uint64_t(a0), C.uint64_t(a1)))
}

func (CCaller) Call3(c Capability, a0, a1, a2 uint64) hostfn.TrampolineResult {
	return fromC(C.bridge_call3(C.uintptr_t(c.Entry), C.uintptr_t(c.Context),
		C.uint64_t(a0), C.uint64_t(a1), C.uint64_t(a2)))
}

func (CCaller) Call4(c Capability, a0, a1, a2, a3 uint64) hostfn.TrampolineResult {
	return fromC(C.bridge_call4(C.uintptr_t(c.Entry), C.uintptr_t(c.Context),
		C.uint64_t(a0), C.uint64_t(a1), C.uint64_t(a2), C.uint64_t(a3)))
}

func (CCaller) Call5(c Capability, a0, a1, a2, a3, a4 uint64) hostfn.TrampolineResult {
	return fromC(C.bridge_call5(C.uintptr_t(c.Entry), C.uintptr_t(c.Context),
		C.uint64_t(a0), C.uint64_t(a1), C.uint64_t(a2), C.uint64_t(a3), C.uint64_t(a4)))
}

func (CCaller) Call6(c Capability, a0, a1, a2, a3, a4, a5 uint64) hostfn.TrampolineResult {
	return fromC(C.bridge_call6(C.uintptr_t(c.Entry), C.uintptr_t(c.Context),
		C.uint64_t(a0), C.uint64_t(a1), C.uint64_t(a2), C.uint64_t(a3), C.uint64_t(a4),
		C.uint64_t(a5)))
}

func (CCaller) Call7(c Capability, a0, a1, a2, a3, a4, a5, a6 uint64) hostfn.TrampolineResult {
	return fromC(C.bridge_call7(C.uintptr_t(c.Entry), C.uintptr_t(c.Context),
		C.uint64_t(a0), C.uint64_t(a1), C.uint64_t(a2), C.uint64_t(a3), C.uint64_t(a4),
		C.uint64_t(a5), C.uint64_t(a6)))
}

func (CCaller) Call8(c Capability, a0, a1, a2, a3, a4, a5, a6, a7 uint64) hostfn.TrampolineResult {
	return fromC(C.bridge_call8(C.uintptr_t(c.Entry), C.uintptr_t(c.Context),
		C.uint64_t(a0), C.uint64_t(a1), C.uint64_t(a2), C.uint64_t(a3), C.uint64_t(a4),
		C.uint64_t(a5), C.uint64_t(a6), C.uint64_t(a7)))
}

var _ NativeCaller = CCaller{}
