package engine

import (
	stderrors "errors"

	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfn"
)

type trapClass uint8

const (
	trapDeterministic trapClass = iota + 1
	trapUnrecoverable
	trapImpossible
)

// wazeroTraps maps wazero runtime error messages to their class. wazero
// exposes traps as sentinel errors without a code, so the message is the key.
var wazeroTraps = map[string]trapClass{
	"unreachable":                   trapDeterministic,
	"integer divide by zero":        trapDeterministic,
	"integer overflow":              trapDeterministic,
	"invalid conversion to integer": trapDeterministic,
	"out of bounds memory access":   trapDeterministic,
	"invalid table access":          trapDeterministic,
	"indirect call type mismatch":   trapDeterministic,
	"stack overflow":                trapUnrecoverable,
	"callstack overflow":            trapUnrecoverable,
	"unaligned atomic":              trapImpossible,
	"expected shared memory":        trapImpossible,
	"too many waiters":              trapImpossible,
}

func (c trapClass) outcome(err error) hostfn.InvokeError {
	switch c {
	case trapDeterministic:
		return hostfn.DeterministicError
	case trapUnrecoverable:
		return hostfn.UnrecoverableError
	}
	errors.Fatal(errors.PhaseInvoke, err, "trap the engine configuration rules out")
	return hostfn.UnrecoverableError
}

// wazeroTrap finds a wazero trap anywhere in err's tree.
func wazeroTrap(err error) (trapClass, bool) {
	if err == nil {
		return 0, false
	}
	if c, ok := wazeroTraps[err.Error()]; ok {
		return c, true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return wazeroTrap(u.Unwrap())
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if c, ok := wazeroTrap(e); ok {
				return c, true
			}
		}
	}
	return 0, false
}

// classifyHost maps a host error raised through the trampoline.
func classifyHost(err error) (hostfn.InvokeError, bool) {
	var he *hostfn.HostError
	if !stderrors.As(err, &he) {
		return hostfn.None, false
	}
	out, ok := he.Status.Outcome()
	if !ok {
		errors.Fatal(errors.PhaseInvoke, err, "host error with status %s", he.Status)
	}
	return out, true
}

func classifyWazero(err error) hostfn.InvokeError {
	if err == nil {
		return hostfn.None
	}
	var oof *OutOfFuelError
	if stderrors.As(err, &oof) {
		return hostfn.OutOfGasError
	}
	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		errors.Fatal(errors.PhaseInvoke, err, "module exited (code %d)", exit.ExitCode())
	}
	if c, ok := wazeroTrap(err); ok {
		return c.outcome(err)
	}
	if out, ok := classifyHost(err); ok {
		return out
	}
	return hostfn.UnrecoverableError
}
