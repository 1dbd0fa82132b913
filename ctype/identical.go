package ctype

// Identical reports whether a and b denote the same type. Tagged aggregates
// and enums compare by node; everything else compares structurally,
// including the calling convention of function types.
func Identical(a, b Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case *Primitive:
		y := b.(*Primitive)
		return x.kind == y.kind && x.Size == y.Size && x.Signed == y.Signed
	case *Pointer:
		return Identical(x.Elem, b.(*Pointer).Elem)
	case *Array:
		y := b.(*Array)
		return x.Unknown == y.Unknown && x.Len == y.Len && Identical(x.Elem, y.Elem)
	case *Qualified:
		y := b.(*Qualified)
		return x.Const == y.Const && x.Volatile == y.Volatile && Identical(x.Inner, y.Inner)
	case *Struct:
		y := b.(*Struct)
		return x.Tag == "" && y.Tag == "" && sameFields(x.Fields, y.Fields) && x.Strategy == y.Strategy
	case *Union:
		y := b.(*Union)
		return x.Tag == "" && y.Tag == "" && sameFields(x.Fields, y.Fields) && x.Strategy == y.Strategy
	case *Enum:
		return false
	case *Function:
		y := b.(*Function)
		if x.Convention != y.Convention || x.Variadic != y.Variadic || len(x.Params) != len(y.Params) {
			return false
		}
		if !Identical(x.Result(), y.Result()) {
			return false
		}
		for i := range x.Params {
			if !Identical(x.Params[i].Type, y.Params[i].Type) {
				return false
			}
		}
		return true
	}
	return false
}

func sameFields(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].BitField != b[i].BitField || a[i].BitWidth != b[i].BitWidth {
			return false
		}
		if !Identical(a[i].Type, b[i].Type) {
			return false
		}
	}
	return true
}
