package invoke

import (
	"math"
	"reflect"

	"go.uber.org/zap"

	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
	"github.com/wippyai/cbinding/value"
)

// marshaler converts Go arguments for one call. Strings passed for char
// pointers are copied into the space and freed by release.
type marshaler struct {
	space *value.Space
	fn    string
	temps []value.Pointer
}

func (m *marshaler) release() {
	for _, p := range m.temps {
		if err := m.space.Free(p); err != nil {
			Logger().Warn("free argument copy", zap.String("function", m.fn), zap.Error(err))
		}
	}
	m.temps = nil
}

func (m *marshaler) mismatch(i int, arg any, t ctype.Type) error {
	return errors.New(errors.PhaseInvoke, errors.KindConventionMismatch).
		Path(m.fn).
		GoType(abi.TypeName(arg)).
		CType(t.String()).
		Value(arg).
		Detail("argument %d", i).
		Build()
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

// charLike reports whether t points to a 1-byte integer, so a Go string may
// stand in for it.
func charLike(t ctype.Type) bool {
	p, ok := t.(*ctype.Pointer)
	if !ok {
		return false
	}
	elem, _ := ctype.Unqualify(p.Elem)
	prim, ok := elem.(*ctype.Primitive)
	return ok && prim.Kind() == ctype.KindInt && prim.Size == 1
}

// accepts reports whether arg belongs to the value class of the passed type
// t. Range and exactness are checked by construction afterwards.
func (m *marshaler) accepts(t ctype.Type, arg any) bool {
	if v, ok := arg.(*value.Value); ok {
		vt, _ := ctype.Unqualify(v.Type())
		return ctype.Identical(vt, t)
	}
	kind := reflect.Invalid
	if arg != nil {
		kind = reflect.TypeOf(arg).Kind()
	}
	switch t.Kind() {
	case ctype.KindBool:
		return kind == reflect.Bool
	case ctype.KindInt:
		return isInteger(kind)
	case ctype.KindEnum:
		return isInteger(kind) || kind == reflect.String
	case ctype.KindFloat:
		return kind == reflect.Float32 || kind == reflect.Float64 || isInteger(kind)
	case ctype.KindPointer:
		switch arg.(type) {
		case nil, value.Pointer, uintptr, *Function:
			return true
		case string:
			return charLike(t)
		}
		return false
	case ctype.KindStruct, ctype.KindUnion:
		switch kind {
		case reflect.Map, reflect.Slice, reflect.Array:
			return true
		}
	}
	return false
}

// narrows reports whether passing arg as a float of the given size would
// lose precision.
func narrows(arg any, size uint64) bool {
	f, ok := arg.(float64)
	if !ok || size != 4 || math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return float64(float32(f)) != f
}

// arg marshals arg as declared parameter i of type t lowered to p.
func (m *marshaler) arg(i int, t ctype.Type, p abi.Param, arg any) (abi.Arg, error) {
	t = paramType(t)
	if !m.accepts(t, arg) {
		return abi.Arg{}, m.mismatch(i, arg, t)
	}
	if narrows(arg, p.Size) && t.Kind() == ctype.KindFloat {
		return abi.Arg{}, m.mismatch(i, arg, t)
	}

	switch x := arg.(type) {
	case *Function:
		arg = nil
		if x != nil {
			ptr, err := x.pointer(m.space)
			if err != nil {
				return abi.Arg{}, err
			}
			arg = ptr
		}
	case string:
		pt, ok := t.(*ctype.Pointer)
		if !ok {
			break
		}
		ptr, err := m.space.CString(x)
		if err != nil {
			return abi.Arg{}, err
		}
		m.temps = append(m.temps, ptr)
		arg = ptr.Cast(pt.Elem)
	}
	if ptr, ok := arg.(value.Pointer); ok && ptr.Space() == nil {
		arg = nil
	}

	v, err := m.space.New(t, arg)
	if err != nil {
		return abi.Arg{}, errors.New(errors.PhaseInvoke, errors.KindConventionMismatch).
			Path(m.fn).
			CType(t.String()).
			Cause(err).
			Detail("argument %d", i).
			Build()
	}
	data := v.Bytes()
	if p.Class == abi.ClassAgg {
		return abi.Arg{Param: p, Data: data}, nil
	}
	return abi.Arg{Param: p, Raw: extend(data, p)}, nil
}

// promote picks the C type of a variadic argument from its Go type, with the
// default argument promotions applied.
func (m *marshaler) promote(i int, arg any) (ctype.Type, any, error) {
	switch x := arg.(type) {
	case nil:
		return ctype.PointerTo(ctype.Void), nil, nil
	case bool:
		if x {
			return ctype.Int, 1, nil
		}
		return ctype.Int, 0, nil
	case int8, int16, int32, uint8, uint16:
		return ctype.Int, x, nil
	case uint32:
		return ctype.UInt, x, nil
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return ctype.Int, x, nil
		}
		return ctype.LongLong, x, nil
	case int64:
		return ctype.LongLong, x, nil
	case uint, uint64, uintptr:
		return ctype.ULongLong, x, nil
	case float32:
		return ctype.Double, float64(x), nil
	case float64:
		return ctype.Double, x, nil
	case string:
		return ctype.PointerTo(ctype.ConstOf(m.space.Engine().Target().Char())), x, nil
	case value.Pointer:
		return ctype.PointerTo(x.Elem()), x, nil
	case *Function:
		return ctype.PointerTo(x.typ), x, nil
	case *value.Value:
		t := promoted(x.Type())
		if !ctype.IsScalar(t) {
			return t, x, nil
		}
		s, err := x.Scalar()
		if err != nil {
			return nil, nil, err
		}
		if b, ok := s.(bool); ok {
			return m.promote(i, b)
		}
		return t, s, nil
	}
	return nil, nil, errors.New(errors.PhaseInvoke, errors.KindConventionMismatch).
		Path(m.fn).
		GoType(abi.TypeName(arg)).
		Detail("variadic argument %d has no C default promotion", i).
		Build()
}

// promoted applies the default argument promotions to a C type.
func promoted(t ctype.Type) ctype.Type {
	t, _ = ctype.Unqualify(t)
	if en, ok := t.(*ctype.Enum); ok && en.Underlying != nil {
		t = en.Underlying
	}
	if p, ok := t.(*ctype.Primitive); ok {
		switch {
		case p.Kind() == ctype.KindBool, p.Kind() == ctype.KindInt && p.Size < 4:
			return ctype.Int
		case p.Kind() == ctype.KindFloat && p.Size < 8:
			return ctype.Double
		}
	}
	return t
}

// result decodes a raw return into a scalar, Pointer or *value.Value.
func result(space *value.Space, t ctype.Type, p abi.Param, res abi.Result) (any, error) {
	switch p.Class {
	case abi.ClassVoid:
		return nil, nil
	case abi.ClassAgg:
		return space.FromBytes(t, res.Data)
	}
	v, err := space.FromBytes(t, rawBytes(res.Raw, p.Size))
	if err != nil {
		return nil, err
	}
	return v.Scalar()
}
