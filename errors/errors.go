package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLink        Phase = "link"        // host function registration
	PhaseCompile     Phase = "compile"     // bytecode validation and compilation
	PhaseInstrument  Phase = "instrument"  // fuel metering rewrite
	PhaseInstantiate Phase = "instantiate" // import resolution and instance creation
	PhaseInvoke      Phase = "invoke"      // export resolution and call
	PhaseGas         Phase = "gas"         // fuel accounting
	PhaseMemory      Phase = "memory"      // linear memory access
	PhaseABI         Phase = "abi"         // handle facade
	PhaseConfig      Phase = "config"      // configuration loading
	PhaseEngine      Phase = "engine"      // engine construction
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindInvalidUTF8     Kind = "invalid_utf8"
	KindInvalidData     Kind = "invalid_data"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindOverflow        Kind = "overflow"
	KindUnsupported     Kind = "unsupported"
	KindNotFound        Kind = "not_found"
	KindNotInitialized  Kind = "not_initialized"
	KindTypeMismatch    Kind = "type_mismatch"
	KindMissingImport   Kind = "missing_import"
	KindRegistration    Kind = "registration"
	KindInstantiation   Kind = "instantiation"
	KindInvalidHandle   Kind = "invalid_handle"
	KindInvalidState    Kind = "invalid_state"
	KindOutOfGas        Kind = "out_of_gas"
	KindInvariantBroken Kind = "invariant_broken"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Module string
	Name   string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Module != "" || e.Name != "" {
		b.WriteString(" at ")
		b.WriteString(e.Module)
		if e.Name != "" {
			if e.Module != "" {
				b.WriteByte('#')
			}
			b.WriteString(e.Name)
		}
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Import sets the module and function name the error refers to
func (b *Builder) Import(module, name string) *Builder {
	b.err.Module = module
	b.err.Name = name
	return b
}

// Export sets the export name the error refers to
func (b *Builder) Export(name string) *Builder {
	b.err.Name = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error for a named field
func InvalidUTF8(phase Phase, field string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Detail: fmt.Sprintf("%s: invalid UTF-8 sequence: %x", field, preview),
		Value:  field,
	}
}

// OutOfBounds creates an out of bounds error for a linear memory range
func OutOfBounds(phase Phase, offset, length uint64, size uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%d, %d+%d) out of bounds (size %d)", offset, offset, length, size),
		Value:  offset,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotInitialized creates a not-initialized error for missing module/instance
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Name:   name,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// TypeMismatch creates a signature mismatch error for an export or import
func TypeMismatch(phase Phase, name, want, got string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Name:   name,
		Detail: fmt.Sprintf("expected %s, got %s", want, got),
	}
}

// Registration creates a registration error
func Registration(phase Phase, module, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Module: module,
		Name:   name,
		Detail: "register host function",
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// InvalidHandle creates an error for an unknown or mistyped handle
func InvalidHandle(phase Phase, handle uint32, want string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Detail: fmt.Sprintf("handle %d is not a live %s", handle, want),
		Value:  handle,
	}
}

// InvalidState creates an error for an operation attempted in the wrong lifecycle state
func InvalidState(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidState,
		Detail: detail,
	}
}

// Compile creates a bytecode compilation error
func Compile(cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindInvalidData,
		Detail: "compile module",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingImport represents a single unresolved import
type MissingImport struct {
	Module   string // e.g., "env"
	Function string // e.g., "log_u64"
}

// MissingImportsError is returned when instantiation fails due to unlinked host functions
type MissingImportsError struct {
	Imports []MissingImport
}

// NewMissingImportsError creates an error from a list of "module#function" strings
func NewMissingImportsError(imports []string) *MissingImportsError {
	result := &MissingImportsError{
		Imports: make([]MissingImport, 0, len(imports)),
	}
	for _, imp := range imports {
		mod, fn := parseImportKey(imp)
		result.Imports = append(result.Imports, MissingImport{
			Module:   mod,
			Function: fn,
		})
	}
	return result
}

func parseImportKey(key string) (module, function string) {
	mod, fn, found := strings.Cut(key, "#")
	if found {
		return mod, fn
	}
	return key, ""
}

func (e *MissingImportsError) Error() string {
	if len(e.Imports) == 0 {
		return "[instantiate] missing_import: no imports specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "missing %d host function(s):\n", len(e.Imports))

	// Group by module for cleaner output
	byMod := make(map[string][]string)
	var order []string
	for _, imp := range e.Imports {
		if _, exists := byMod[imp.Module]; !exists {
			order = append(order, imp.Module)
		}
		byMod[imp.Module] = append(byMod[imp.Module], imp.Function)
	}

	for _, mod := range order {
		b.WriteString("\n  ")
		b.WriteString(mod)
		b.WriteString(":\n")
		for _, fn := range byMod[mod] {
			b.WriteString("    - ")
			b.WriteString(fn)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingImportsError) Is(target error) bool {
	_, ok := target.(*MissingImportsError)
	return ok
}
