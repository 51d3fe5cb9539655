//go:build cgo

// Package ctest provides C syscall targets for exercising the native caller.
//
// FoldN folds its context and arguments into one value, result = ctx then
// result = result*16 + a for each argument in order, so a swapped or dropped
// argument changes the result. Status returns its context as the status byte.
package ctest

/*
#include <stdint.h>

typedef struct {
	uint64_t result;
	uint8_t status;
} ctest_result;

static uint64_t fold(void* ctx, int n, const uint64_t* a) {
	uint64_t r = (uint64_t)(uintptr_t)ctx;
	for (int i = 0; i < n; i++) {
		r = r * 16 + a[i];
	}
	return r;
}

static ctest_result ok(uint64_t v) {
	ctest_result r = {v, 0};
	return r;
}

static ctest_result ctest_fold0(void* ctx) {
	return ok(fold(ctx, 0, 0));
}
static ctest_result ctest_fold1(void* ctx, uint64_t a0) {
	uint64_t a[] = {a0};
	return ok(fold(ctx, 1, a));
}
static ctest_result ctest_fold2(void* ctx, uint64_t a0, uint64_t a1) {
	uint64_t a[] = {a0, a1};
	return ok(fold(ctx, 2, a));
}
static ctest_result ctest_fold3(void* ctx, uint64_t a0, uint64_t a1, uint64_t a2) {
	uint64_t a[] = {a0, a1, a2};
	return ok(fold(ctx, 3, a));
}
static ctest_result ctest_fold4(void* ctx, uint64_t a0, uint64_t a1, uint64_t a2, uint64_t a3) {
	uint64_t a[] = {a0, a1, a2, a3};
	return ok(fold(ctx, 4, a));
}
static ctest_result ctest_fold5(void* ctx, uint64_t a0, uint64_t a1, uint64_t a2, uint64_t a3, uint64_t a4) {
	uint64_t a[] = {a0, a1, a2, a3, a4};
	return ok(fold(ctx, 5, a));
}
static ctest_result ctest_fold6(void* ctx, uint64_t a0, uint64_t a1, uint64_t a2, uint64_t a3, uint64_t a4, uint64_t a5) {
	uint64_t a[] = {a0, a1, a2, a3, a4, a5};
	return ok(fold(ctx, 6, a));
}
static ctest_result ctest_fold7(void* ctx, uint64_t a0, uint64_t a1, uint64_t a2, uint64_t a3, uint64_t a4, uint64_t a5, uint64_t a6) {
	uint64_t a[] = {a0, a1, a2, a3, a4, a5, a6};
	return ok(fold(ctx, 7, a));
}
static ctest_result ctest_fold8(void* ctx, uint64_t a0, uint64_t a1, uint64_t a2, uint64_t a3, uint64_t a4, uint64_t a5, uint64_t a6, uint64_t a7) {
	uint64_t a[] = {a0, a1, a2, a3, a4, a5, a6, a7};
	return ok(fold(ctx, 8, a));
}

static ctest_result ctest_status(void* ctx) {
	ctest_result r = {99, (uint8_t)(uintptr_t)ctx};
	return r;
}

static uintptr_t ctest_fold_addr(int n) {
	switch (n) {
	case 0: return (uintptr_t)ctest_fold0;
	case 1: return (uintptr_t)ctest_fold1;
	case 2: return (uintptr_t)ctest_fold2;
	case 3: return (uintptr_t)ctest_fold3;
	case 4: return (uintptr_t)ctest_fold4;
	case 5: return (uintptr_t)ctest_fold5;
	case 6: return (uintptr_t)ctest_fold6;
	case 7: return (uintptr_t)ctest_fold7;
	case 8: return (uintptr_t)ctest_fold8;
	}
	return 0;
}

static uintptr_t ctest_status_addr(void) {
	return (uintptr_t)ctest_status;
}
*/
import "C"

// Fold returns the address of the C target taking arity arguments, or 0
// for an arity above 8.
func Fold(arity int) uintptr {
	return uintptr(C.ctest_fold_addr(C.int(arity)))
}

// Status returns the address of a C target that takes no arguments and
// reports its context pointer as the status byte with result 99.
func Status() uintptr {
	return uintptr(C.ctest_status_addr())
}

// Expect computes what Fold's targets return for ctx and args.
func Expect(ctx uint64, args []uint64) uint64 {
	r := ctx
	for _, a := range args {
		r = r*16 + a
	}
	return r
}
