//go:build cgo

package trampoline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bridge/hostfn"
	"github.com/wippyai/wasm-bridge/trampoline/internal/ctest"
)

func TestCCaller_AllArities(t *testing.T) {
	var cc CCaller
	for arity := 0; arity <= hostfn.MaxArity; arity++ {
		args := make([]uint64, arity)
		for i := range args {
			args[i] = uint64(i + 1)
		}
		c := Capability{Entry: EntryPoint(ctest.Fold(arity)), Context: 3}

		res := Call(cc, c, args)
		assert.Equal(t, uint8(0), res.Status, "arity %d", arity)
		assert.Equal(t, ctest.Expect(3, args), res.Result, "arity %d", arity)

		sig := hostfn.Signature{Module: "m", Name: "f", Arity: uint8(arity), Return: hostfn.U64}
		got, err := Dispatch(cc, c, sig, args)
		require.NoError(t, err)
		assert.Equal(t, ctest.Expect(3, args), got)
	}
}

func TestCCaller_ArgumentOrder(t *testing.T) {
	var cc CCaller
	c := Capability{Entry: EntryPoint(ctest.Fold(8)), Context: 1}
	fwd := cc.Call8(c, 1, 2, 3, 4, 5, 6, 7, 8)
	rev := cc.Call8(c, 8, 7, 6, 5, 4, 3, 2, 1)
	assert.Equal(t, uint64(0x112345678), fwd.Result)
	assert.NotEqual(t, fwd.Result, rev.Result)
}

func TestCCaller_ContextPassedThrough(t *testing.T) {
	var cc CCaller
	for _, ctx := range []UserContext{0, 1, 0xABCDEF} {
		res := cc.Call0(Capability{Entry: EntryPoint(ctest.Fold(0)), Context: ctx})
		assert.Equal(t, uint64(ctx), res.Result)
	}
}

func TestCCaller_RaisedStatus(t *testing.T) {
	var cc CCaller
	sig := hostfn.Signature{Module: "m", Name: "f", Return: hostfn.U64}

	for _, st := range []hostfn.HostFnError{hostfn.ReturnSuccess, hostfn.OutOfGas, hostfn.Unrecoverable} {
		c := Capability{Entry: EntryPoint(ctest.Status()), Context: UserContext(st)}
		_, err := Dispatch(cc, c, sig, nil)
		var he *hostfn.HostError
		require.True(t, errors.As(err, &he), "status %s", st)
		assert.Equal(t, st, he.Status)
		assert.Equal(t, uint8(st), he.Raw)
	}

	v, err := Dispatch(cc, Capability{Entry: EntryPoint(ctest.Status()), Context: 0}, sig, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), v)
}

func TestCCaller_UnknownStatusIsUnrecoverable(t *testing.T) {
	var cc CCaller
	sig := hostfn.Signature{Module: "m", Name: "f", Return: hostfn.U64}
	c := Capability{Entry: EntryPoint(ctest.Status()), Context: 7}

	_, err := Dispatch(cc, c, sig, nil)
	var he *hostfn.HostError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, hostfn.Unrecoverable, he.Status)
	assert.Equal(t, uint8(7), he.Raw)
	assert.Contains(t, err.Error(), "unknown status byte 7")
}
