// Package errors provides structured error types for the cbinding module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: field path, Go/C type names,
// and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConstruct, errors.KindConstruction).
//		Path("point", "x").
//		GoType("string").
//		CType("int").
//		Detail("cannot convert string to integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfBounds(path, 10, 5)
//	err := errors.UnresolvedSymbol("libm.so.6", "cbrt", cause)
//
// The kind sentinels (ErrDefinition, ErrLayout, ErrConstruction, ErrAccess,
// ErrWriteProtection, ErrUnresolvedSymbol, ErrConventionMismatch) match any
// error of that kind through errors.Is, whatever the phase.
package errors
