// Package layout computes C ABI size, alignment and field offsets for ctype
// nodes.
//
// Layouts are computed once per (type, alignment strategy) pair and cached by
// the Engine; a cached Layout is immutable and safe to share.
//
// # Layout Rules
//
//   - Primitives: size is the declared width; alignment is the width capped by
//     the target (i386 caps 8-byte scalars at 4)
//   - Pointers: target pointer size, independent of the pointee
//   - Arrays: element size times length, element alignment
//   - Structs: members in declaration order, each at the next multiple of its
//     alignment; bit-fields share storage units of their underlying type
//   - Unions: every member at offset 0, size of the largest member
//   - Packed aggregates: no padding, bit-exact bit-fields, alignment 1
//
// Anonymous struct/union members are flattened into a per-layout name table
// so promoted names resolve to the same offsets as the full path.
//
// # Usage
//
//	eng := layout.NewEngine(layout.Host())
//	l, err := eng.Layout(t)
//	// l.Size, l.Align, l.Member("x")
package layout
