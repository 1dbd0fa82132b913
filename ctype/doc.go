// Package ctype is the C type model: a closed set of tagged variants covering
// primitives, pointers, arrays, structs, unions, enums, qualified types and
// function signatures.
//
// Nodes are plain data and may be shared structurally. Tagged aggregates and
// enums are nominal: a Registry hands out one node per tag, created with an
// Incomplete marker on forward reference and completed in place by its
// definition.
//
//	reg := ctype.NewRegistry(ctype.LP64)
//	s := reg.StructTag("S") // forward reference, incomplete
//	t, err := reg.DefineStruct("T", []ctype.Field{
//		{Name: "i", Type: ctype.Int},
//		{Name: "s", Type: ctype.PointerTo(s)},
//	}, ctype.Native)
//
// Layout is not computed here; see package layout.
package ctype
