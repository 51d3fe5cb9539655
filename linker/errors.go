package linker

import (
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/hostfn"
)

func duplicateError(sig hostfn.Signature, prev hostfn.Signature) *errors.Error {
	return errors.New(errors.PhaseLink, errors.KindRegistration).
		Import(sig.Module, sig.Name).
		Value(prev).
		Detail("already linked as %s", prev).
		Build()
}

func nullEntryError(sig hostfn.Signature) *errors.Error {
	return errors.New(errors.PhaseLink, errors.KindInvalidInput).
		Import(sig.Module, sig.Name).
		Detail("null entry point").
		Build()
}
