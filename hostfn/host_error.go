package hostfn

import "fmt"

// HostError aborts an in-flight WASM call on behalf of a syscall.
// Engines carry it through their own trap mechanism; classification
// recovers it with errors.As.
type HostError struct {
	Import string
	Status HostFnError
	// Raw is the status byte as received; differs from Status only
	// when an unknown byte was coerced to Unrecoverable.
	Raw uint8
}

// NewHostError builds a HostError for a raised status.
func NewHostError(s HostFnError) *HostError {
	return &HostError{Status: s, Raw: uint8(s)}
}

func (e *HostError) Error() string {
	var where string
	if e.Import != "" {
		where = " in " + e.Import
	}
	if uint8(e.Status) != e.Raw {
		return fmt.Sprintf("host error%s: unknown status byte %d", where, e.Raw)
	}
	return fmt.Sprintf("host error%s: %s", where, e.Status)
}

// Is matches another HostError with the same status.
func (e *HostError) Is(target error) bool {
	t, ok := target.(*HostError)
	return ok && t.Status == e.Status
}
