package invoke

import (
	"fmt"

	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
	"github.com/wippyai/cbinding/layout"
)

// paramType returns the type a parameter is passed as: qualifiers dropped,
// arrays and functions decayed to pointers.
func paramType(t ctype.Type) ctype.Type {
	t, _ = ctype.Unqualify(t)
	switch tt := t.(type) {
	case *ctype.Array:
		return ctype.PointerTo(tt.Elem)
	case *ctype.Function:
		return ctype.PointerTo(tt)
	}
	return t
}

// lower maps a C type onto its machine slot.
func lower(e *layout.Engine, fn string, t ctype.Type) (abi.Param, error) {
	t = paramType(t)
	if en, ok := t.(*ctype.Enum); ok {
		if en.Underlying == nil {
			return abi.Param{}, errors.Incomplete(en.String())
		}
		t = en.Underlying
	}

	switch tt := t.(type) {
	case *ctype.Primitive:
		switch tt.Kind() {
		case ctype.KindVoid:
			return abi.Param{Class: abi.ClassVoid}, nil
		case ctype.KindBool, ctype.KindInt:
			p := abi.Param{Class: abi.ClassI32, Signed: tt.Signed, Size: tt.Size, Align: tt.Size}
			switch {
			case tt.Size == 8:
				p.Class = abi.ClassI64
			case tt.Size > 8:
				return abi.Param{}, errors.Unsupported(errors.PhaseInvoke, fmt.Sprintf("%s: %s by value", fn, tt))
			}
			return p, nil
		case ctype.KindFloat:
			switch tt.Size {
			case 4:
				return abi.Param{Class: abi.ClassF32, Size: 4, Align: 4}, nil
			case 8:
				return abi.Param{Class: abi.ClassF64, Size: 8, Align: 8}, nil
			}
			return abi.Param{}, errors.Unsupported(errors.PhaseInvoke, fmt.Sprintf("%s: %s by value", fn, tt))
		}
	case *ctype.Pointer:
		size := e.Target().PointerSize
		return abi.Param{Class: abi.ClassPtr, Size: size, Align: e.Target().PointerAlign}, nil
	case *ctype.Struct, *ctype.Union:
		l, err := e.Layout(tt)
		if err != nil {
			return abi.Param{}, err
		}
		return abi.Param{Class: abi.ClassAgg, Size: l.Size, Align: l.Align, Scalar: singleScalar(e, l)}, nil
	}
	return abi.Param{}, errors.ConventionMismatch(fn, "cannot pass %s", t)
}

// singleScalar returns the class of the one scalar an aggregate wraps, the
// way clang's single-element rule sees it, or ClassVoid.
func singleScalar(e *layout.Engine, l *layout.Layout) abi.Class {
	var only *layout.FieldLayout
	for i := range l.Fields {
		f := &l.Fields[i]
		if f.Field.BitField {
			if f.BitWidth == 0 {
				continue
			}
			return abi.ClassVoid
		}
		if f.Layout == nil || f.Layout.Size == 0 {
			continue
		}
		if only != nil {
			return abi.ClassVoid
		}
		only = f
	}
	if only == nil {
		return abi.ClassVoid
	}

	fl := only.Layout
	for fl.Elem != nil && fl.Len == 1 {
		fl = fl.Elem
	}
	if fl.Size != l.Size {
		return abi.ClassVoid
	}
	if fl.IsAggregate() {
		return singleScalar(e, fl)
	}
	if !ctype.IsScalar(fl.Type) {
		return abi.ClassVoid
	}
	p, err := lower(e, "", fl.Type)
	if err != nil {
		return abi.ClassVoid
	}
	return p.Class
}

// signature lowers the declared part of fn under strategy s.
func signature(e *layout.Engine, name string, fn *ctype.Function, s strategy) (*abi.Signature, error) {
	sig := &abi.Signature{
		Name:          name,
		Params:        make([]abi.Param, len(fn.Params)),
		Convention:    s.conv,
		CalleeCleanup: s.calleeCleanup,
		Fixed:         len(fn.Params),
		Variadic:      fn.Variadic,
	}
	for i, p := range fn.Params {
		lp, err := lower(e, name, p.Type)
		if err != nil {
			return nil, err
		}
		if lp.Class == abi.ClassVoid {
			return nil, errors.ConventionMismatch(name, "parameter %d has type void", i)
		}
		sig.Params[i] = lp
	}
	ret, err := lower(e, name, fn.Result())
	if err != nil {
		return nil, err
	}
	sig.Result = ret
	s.place(sig)
	return sig, nil
}

// extend widens a scalar's little-endian bytes to a raw slot.
func extend(data []byte, p abi.Param) uint64 {
	var raw uint64
	for i := len(data) - 1; i >= 0; i-- {
		raw = raw<<8 | uint64(data[i])
	}
	if p.Signed && !p.Class.IsFloat() && p.Size > 0 && p.Size < 8 {
		shift := 64 - p.Size*8
		raw = uint64(int64(raw<<shift) >> shift)
	}
	return raw
}

// rawBytes is the inverse of extend.
func rawBytes(raw uint64, size uint64) []byte {
	out := make([]byte, size)
	for i := range out {
		out[i] = byte(raw >> (8 * i))
	}
	return out
}
