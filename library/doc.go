// Package library resolves (library, symbol) pairs to addresses.
//
// A Resolver hands out one Library per name. Declaring a library takes a
// reference without touching the backend; the backend handle is opened on
// first use and closed when the last reference is released or the resolver
// is closed. Symbol addresses are cached per library.
//
// Missing symbols are reported when they are first resolved, never at
// declaration time, so bindings may be declared before their library is
// available:
//
//	res := library.NewResolver(backend)
//	lib, _ := res.Declare("libm.so.6")
//	addr, err := lib.Resolve(ctx, "cbrt") // opens libm here
package library
