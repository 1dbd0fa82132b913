// Package invoke calls C functions through a library backend.
//
// A Function binds a symbol (or a raw address) to a ctype.Function. The
// calling convention is validated when the binding is made; the symbol is
// resolved on the first call, so a missing symbol surfaces as an
// unresolved-symbol error from Call rather than from NewFunction.
//
//	lib, _ := resolver.Declare("libm.so.6")
//	cbrt, _ := invoke.NewFunction(lib, "cbrt", &ctype.Function{
//		Return: ctype.Double,
//		Params: []ctype.Param{{Type: ctype.Double}},
//	})
//	r, err := cbrt.Call(ctx, 27.0) // float64(3)
//
// Arguments are Go values checked against the declared parameter types:
// integers must fit, strings are copied into temporary C strings for char
// pointers, and aggregates are given as *value.Value or as initializers.
// Extra arguments of a variadic function get the C default promotions.
//
// Results come back as int64, uint64, float32, float64, bool, value.Pointer,
// or *value.Value for aggregates. Void functions return nil.
//
// Globals are typed views of a symbol's storage, read and written through
// the library's address space.
package invoke
