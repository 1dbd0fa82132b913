package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDeclare   Phase = "declare"   // type declaration and registration
	PhaseLayout    Phase = "layout"    // size/alignment/offset computation
	PhaseConstruct Phase = "construct" // value construction
	PhaseAccess    Phase = "access"    // path resolution, pointer load/store
	PhaseResolve   Phase = "resolve"   // library open, symbol lookup
	PhaseInvoke    Phase = "invoke"    // argument marshaling and native calls
	PhaseLoad      Phase = "load"      // backend module loading
	PhaseParse     Phase = "parse"     // declaration file decoding
)

// Kind categorizes the error
type Kind string

const (
	KindDefinition         Kind = "definition"
	KindLayout             Kind = "layout"
	KindConstruction       Kind = "construction"
	KindAccess             Kind = "access"
	KindWriteProtection    Kind = "write_protection"
	KindUnresolvedSymbol   Kind = "unresolved_symbol"
	KindConventionMismatch Kind = "convention_mismatch"
	KindUnsupported        Kind = "unsupported"
	KindInvalidInput       Kind = "invalid_input"
	KindNotFound           Kind = "not_found"
	KindAllocation         Kind = "allocation"
	KindInvalidData        Kind = "invalid_data"
)

// Sentinels for errors.Is matching on kind alone, regardless of phase.
var (
	ErrDefinition         = &Error{Kind: KindDefinition}
	ErrLayout             = &Error{Kind: KindLayout}
	ErrConstruction       = &Error{Kind: KindConstruction}
	ErrAccess             = &Error{Kind: KindAccess}
	ErrWriteProtection    = &Error{Kind: KindWriteProtection}
	ErrUnresolvedSymbol   = &Error{Kind: KindUnresolvedSymbol}
	ErrConventionMismatch = &Error{Kind: KindConventionMismatch}
	ErrUnsupported        = &Error{Kind: KindUnsupported}
	ErrNotFound           = &Error{Kind: KindNotFound}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	CType  string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.CType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.CType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", C type ")
			b.WriteString(e.CType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("C type ")
			b.WriteString(e.CType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.CType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
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

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
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

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// CType sets the C type spelling
func (b *Builder) CType(t string) *Builder {
	b.err.CType = t
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

// Definition creates a definition error for a type declaration
func Definition(ctype, detail string, args ...any) *Error {
	return New(PhaseDeclare, KindDefinition).CType(ctype).Detail(detail, args...).Build()
}

// Layout creates a layout error
func Layout(ctype, detail string, args ...any) *Error {
	return New(PhaseLayout, KindLayout).CType(ctype).Detail(detail, args...).Build()
}

// Incomplete creates a layout error for a type used where a complete type is required
func Incomplete(ctype string) *Error {
	return &Error{
		Phase:  PhaseLayout,
		Kind:   KindLayout,
		CType:  ctype,
		Detail: "incomplete type",
	}
}

// Construction creates a construction error
func Construction(path []string, detail string, args ...any) *Error {
	return New(PhaseConstruct, KindConstruction).Path(path...).Detail(detail, args...).Build()
}

// TypeMismatch creates a type mismatch error for an initializer or argument
func TypeMismatch(phase Phase, kind Kind, path []string, goType, ctype string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Path:   path,
		GoType: goType,
		CType:  ctype,
	}
}

// Overflow creates an error for a value that is not representable in the target type
func Overflow(phase Phase, kind Kind, path []string, value any, ctype string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Path:   path,
		CType:  ctype,
		Detail: fmt.Sprintf("value %v does not fit %s", value, ctype),
		Value:  value,
	}
}

// FieldUnknown creates an unknown field error
func FieldUnknown(phase Phase, kind Kind, path []string, fieldName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Path:   path,
		Detail: fmt.Sprintf("unknown field %q", fieldName),
	}
}

// Access creates an access error
func Access(path []string, detail string, args ...any) *Error {
	return New(PhaseAccess, KindAccess).Path(path...).Detail(detail, args...).Build()
}

// OutOfBounds creates an out of bounds access error
func OutOfBounds(path []string, index, length int) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindAccess,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// WriteProtected creates a write protection error
func WriteProtected(path []string, ctype string) *Error {
	return &Error{
		Phase:  PhaseAccess,
		Kind:   KindWriteProtection,
		Path:   path,
		CType:  ctype,
		Detail: "write through const-qualified chain",
	}
}

// UnresolvedSymbol creates an unresolved symbol error
func UnresolvedSymbol(library, symbol string, cause error) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindUnresolvedSymbol,
		Detail: fmt.Sprintf("symbol %q not found in %q", symbol, library),
		Cause:  cause,
	}
}

// ConventionMismatch creates an arity/type mismatch error for a call
func ConventionMismatch(function, detail string, args ...any) *Error {
	return New(PhaseInvoke, KindConventionMismatch).
		Path(function).
		Detail(detail, args...).
		Build()
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
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

// Load creates a library loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a declaration decoding error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// MissingSymbol represents a single unresolved symbol
type MissingSymbol struct {
	Library string // e.g., "libm.so.6"
	Symbol  string // e.g., "cbrt"
}

// MissingSymbolsError is returned by preflight checks that resolve many symbols at once
type MissingSymbolsError struct {
	Symbols []MissingSymbol
}

// NewMissingSymbolsError creates an error from a list of "library#symbol" strings
func NewMissingSymbolsError(keys []string) *MissingSymbolsError {
	result := &MissingSymbolsError{
		Symbols: make([]MissingSymbol, 0, len(keys)),
	}
	for _, key := range keys {
		lib, sym := parseSymbolKey(key)
		result.Symbols = append(result.Symbols, MissingSymbol{
			Library: lib,
			Symbol:  sym,
		})
	}
	return result
}

func parseSymbolKey(key string) (library, symbol string) {
	lib, sym, found := strings.Cut(key, "#")
	if found {
		return lib, sym
	}
	return "", key
}

func (e *MissingSymbolsError) Error() string {
	if len(e.Symbols) == 0 {
		return "[resolve] unresolved_symbol: no symbols specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("unresolved %d symbol(s):\n", len(e.Symbols)))

	byLib := make(map[string][]string)
	var libOrder []string
	for _, s := range e.Symbols {
		if _, exists := byLib[s.Library]; !exists {
			libOrder = append(libOrder, s.Library)
		}
		byLib[s.Library] = append(byLib[s.Library], s.Symbol)
	}

	for _, lib := range libOrder {
		b.WriteString("\n  ")
		b.WriteString(lib)
		b.WriteString(":\n")
		for _, sym := range byLib[lib] {
			b.WriteString("    - ")
			b.WriteString(sym)
			b.WriteByte('\n')
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type.
// It also matches the ErrUnresolvedSymbol sentinel.
func (e *MissingSymbolsError) Is(target error) bool {
	switch t := target.(type) {
	case *MissingSymbolsError:
		return true
	case *Error:
		return t.Kind == KindUnresolvedSymbol
	}
	return false
}
