//go:build !cgo

package trampoline

import "github.com/wippyai/wasm-bridge/hostfn"

// CCallerAvailable reports whether CCaller can reach native code in this build.
const CCallerAvailable = false

// CCaller requires cgo. In this build every call reports Unrecoverable.
type CCaller struct{}

func (CCaller) fail() hostfn.TrampolineResult {
	Logger().Error("native call without cgo support")
	return hostfn.Fail(hostfn.Unrecoverable)
}

func (c CCaller) Call0(Capability) hostfn.TrampolineResult { return c.fail() }

func (c CCaller) Call1(Capability, uint64) hostfn.TrampolineResult { return c.fail() }

func (c CCaller) Call2(Capability, uint64, uint64) hostfn.TrampolineResult { return c.fail() }

func (c CCaller) Call3(Capability, uint64, uint64, uint64) hostfn.TrampolineResult {
	return c.fail()
}

func (c CCaller) Call4(Capability, uint64, uint64, uint64, uint64) hostfn.TrampolineResult {
	return c.fail()
}

func (c CCaller) Call5(Capability, uint64, uint64, uint64, uint64, uint64) hostfn.TrampolineResult {
	return c.fail()
}

func (c CCaller) Call6(Capability, uint64, uint64, uint64, uint64, uint64, uint64) hostfn.TrampolineResult {
	return c.fail()
}

func (c CCaller) Call7(Capability, uint64, uint64, uint64, uint64, uint64, uint64, uint64) hostfn.TrampolineResult {
	return c.fail()
}

func (c CCaller) Call8(Capability, uint64, uint64, uint64, uint64, uint64, uint64, uint64, uint64) hostfn.TrampolineResult {
	return c.fail()
}

var _ NativeCaller = CCaller{}
