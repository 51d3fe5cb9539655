package hostfn

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bridgeerrors "github.com/wippyai/wasm-bridge/errors"
)

func TestABIValues(t *testing.T) {
	assert.Equal(t, uint8(0), uint8(NoneOrRecoverable))
	assert.Equal(t, uint8(1), uint8(ReturnSuccess))
	assert.Equal(t, uint8(2), uint8(OutOfGas))
	assert.Equal(t, uint8(3), uint8(Unrecoverable))

	assert.Equal(t, uint8(0), uint8(None))
	assert.Equal(t, uint8(1), uint8(DeterministicError))
	assert.Equal(t, uint8(2), uint8(OutOfGasError))
	assert.Equal(t, uint8(3), uint8(UnrecoverableError))
	assert.Equal(t, uint8(4), uint8(Return))
}

func TestParseStatus(t *testing.T) {
	for b := 0; b < 256; b++ {
		s, ok := ParseStatus(uint8(b))
		if b <= 3 {
			assert.True(t, ok, "byte %d", b)
			assert.Equal(t, HostFnError(b), s)
			continue
		}
		assert.False(t, ok, "byte %d", b)
		assert.Equal(t, Unrecoverable, s, "byte %d must never coerce to success", b)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		status HostFnError
		want   InvokeError
		ok     bool
	}{
		{ReturnSuccess, Return, true},
		{OutOfGas, OutOfGasError, true},
		{Unrecoverable, UnrecoverableError, true},
		{NoneOrRecoverable, UnrecoverableError, false},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			got, ok := tt.status.Outcome()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestSignatureValidate(t *testing.T) {
	tests := []struct {
		name string
		sig  Signature
		kind bridgeerrors.Kind
	}{
		{"valid void", Signature{Module: "env", Name: "f", Arity: 0, Return: Void}, ""},
		{"valid max arity", Signature{Module: "env", Name: "f", Arity: 8, Return: U64}, ""},
		{"arity too large", Signature{Module: "env", Name: "f", Arity: 9, Return: U64}, bridgeerrors.KindInvalidInput},
		{"bad return kind", Signature{Module: "env", Name: "f", Arity: 1, Return: 2}, bridgeerrors.KindInvalidInput},
		{"bad module utf8", Signature{Module: "\xff", Name: "f"}, bridgeerrors.KindInvalidUTF8},
		{"bad name utf8", Signature{Module: "env", Name: "a\xc3"}, bridgeerrors.KindInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sig.Validate()
			if tt.kind == "" {
				require.NoError(t, err)
				return
			}
			var be *bridgeerrors.Error
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tt.kind, be.Kind)
			assert.Equal(t, bridgeerrors.PhaseLink, be.Phase)
		})
	}
}

func TestSignatureString(t *testing.T) {
	s := Signature{Module: "env", Name: "add", Arity: 2, Return: U64}
	assert.Equal(t, "env#add", s.Key())
	assert.Equal(t, "env#add(2 x i64) -> i64", s.String())
}

func TestHostError(t *testing.T) {
	err := &HostError{Import: "env#charge", Status: OutOfGas, Raw: 2}
	assert.Contains(t, err.Error(), "out_of_gas")
	assert.Contains(t, err.Error(), "env#charge")

	wrapped := errors.Join(errors.New("trap"), err)
	var he *HostError
	require.True(t, errors.As(wrapped, &he))
	assert.Equal(t, OutOfGas, he.Status)
	assert.ErrorIs(t, wrapped, NewHostError(OutOfGas))
	assert.NotErrorIs(t, wrapped, NewHostError(ReturnSuccess))

	unknown := &HostError{Status: Unrecoverable, Raw: 42}
	assert.True(t, strings.Contains(unknown.Error(), "unknown status byte 42"))
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "return", Return.String())
	assert.Equal(t, "invoke_error(9)", InvokeError(9).String())
	assert.Equal(t, "host_fn_error(7)", HostFnError(7).String())
	assert.Equal(t, "u64", U64.String())
	assert.Equal(t, "return_kind(5)", ReturnKind(5).String())
}

func TestResultHelpers(t *testing.T) {
	assert.Equal(t, TrampolineResult{Result: 7}, Ok(7))
	assert.Equal(t, TrampolineResult{Status: 2}, Fail(OutOfGas))
}
