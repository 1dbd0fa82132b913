// Package value constructs, reads and mutates C data described by ctype
// nodes.
//
// A Space pairs an address space (cbinding.Memory) with the layout engine of
// its target. Values are immutable byte sequences owned by Go; Pointers are
// non-owning typed addresses into the Space's memory.
//
// # Construction
//
//	v, _ := space.New(t)                                  // zero-filled
//	v, _ := space.New(t, map[string]any{"x": 1, "in.y": 2})
//	v, _ := space.New(arrT, []any{map[string]any{"x": 5}}) // trailing elements zeroed
//	w, _ := v.With(map[string]any{"x": 9})                // v unchanged
//
// # Access
//
// Paths such as "a.b[2].c" are resolved member by member. A member that is
// a pointer is followed transparently when more segments remain. Through a
// Value, leaves come back by copy; once the chain passes through a pointer
// the result is a Pointer to the leaf, usable with Load, Store, Get and Set.
// Bit-fields are always read and written by value.
//
// Any const-qualified segment on the chain, including the pointee of the
// starting Pointer, makes writes fail with a write-protection error.
//
// Scalars decode to int64 (signed integers), uint64 (unsigned integers),
// float32 or float64, bool, and Pointer. Enums decode to their underlying
// integer and accept enumerator names on construction.
package value
