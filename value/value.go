package value

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/layout"
)

// Value is an immutable typed byte sequence owning its bytes.
type Value struct {
	space  *Space
	typ    ctype.Type
	layout *layout.Layout
	data   []byte
}

func (v *Value) Type() ctype.Type        { return v.typ }
func (v *Value) Layout() *layout.Layout  { return v.layout }
func (v *Value) Space() *Space           { return v.space }
func (v *Value) Size() uint64            { return v.layout.Size }
func (v *Value) Bytes() []byte           { return bytes.Clone(v.data) }
func (v *Value) Equal(other *Value) bool { return other != nil && ctype.Identical(v.typ, other.typ) && bytes.Equal(v.data, other.data) }

// Len returns the element count of an array value, or zero.
func (v *Value) Len() int {
	if base, _ := ctype.Unqualify(v.typ); base.Kind() == ctype.KindArray {
		return int(v.layout.Len)
	}
	return 0
}

func (v *Value) root() *cursor {
	return &cursor{space: v.space, typ: v.typ, lay: v.layout, loc: location{buf: v.data}}
}

// Get resolves a path such as "a.b[2].c". Leaves are returned by copy;
// once the path passes through a pointer member the result is a Pointer to
// the leaf, except for bit-fields which are always returned by value.
func (v *Value) Get(path string) (any, error) {
	p, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return v.GetPath(p)
}

// GetPath is Get with a pre-parsed path.
func (v *Value) GetPath(p Path) (any, error) {
	c := v.root()
	if err := c.walk(p); err != nil {
		return nil, err
	}
	return c.read()
}

// Index returns element i of an array value.
func (v *Value) Index(i int) (any, error) {
	return v.GetPath(Path{Index(i)})
}

// Scalar decodes a scalar, enum or pointer value.
func (v *Value) Scalar() (any, error) {
	if !ctype.IsScalar(v.typ) {
		return nil, errors.Access(nil, "%s is not a scalar", v.typ)
	}
	return v.space.decode(v.data, v.typ, v.layout, nil)
}

// With returns a copy of v with overrides applied; v is left unchanged.
// Overrides take the same forms as initializers. Maps and slices replace
// only the members or elements they name.
func (v *Value) With(overrides any) (*Value, error) {
	out := &Value{space: v.space, typ: v.typ, layout: v.layout, data: bytes.Clone(v.data)}
	if overrides == nil {
		return out, nil
	}
	if err := v.space.encode(out.data, v.typ, v.layout, overrides, nil, true); err != nil {
		return nil, err
	}
	return out, nil
}

// Export converts the value to plain Go data: scalars as from Get, structs
// and unions as map[string]any keyed by member name with anonymous members
// flattened, arrays as []any.
func (v *Value) Export() (any, error) {
	return v.export(v.data, v.typ, v.layout, nil)
}

func (v *Value) export(b []byte, t ctype.Type, l *layout.Layout, path Path) (any, error) {
	base, _ := ctype.Unqualify(t)
	switch base.Kind() {
	case ctype.KindStruct, ctype.KindUnion:
		out := make(map[string]any)
		for _, m := range l.Members() {
			sub := path.with(Field(m.Name))
			if m.BitField {
				c := &cursor{space: v.space, typ: m.Type, member: &m, loc: location{buf: b, off: m.Offset}, path: sub}
				x, err := c.readBits()
				if err != nil {
					return nil, err
				}
				out[m.Name] = x
				continue
			}
			ml, err := v.space.engine.Layout(m.Type)
			if err != nil {
				return nil, err
			}
			if ml.Incomplete {
				continue
			}
			x, err := v.export(b[m.Offset:m.Offset+ml.Size], m.Type, ml, sub)
			if err != nil {
				return nil, err
			}
			out[m.Name] = x
		}
		return out, nil

	case ctype.KindArray:
		out := make([]any, l.Len)
		for i := range out {
			off := uint64(i) * l.Elem.Size
			x, err := v.export(b[off:off+l.Elem.Size], base.(*ctype.Array).Elem, l.Elem, path.with(Index(i)))
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	}
	return v.space.decode(b, t, l, path)
}

func (v *Value) String() string {
	x, err := v.Export()
	if err != nil {
		return fmt.Sprintf("%s{% x}", v.typ, v.data)
	}
	var b strings.Builder
	b.WriteString(v.typ.String())
	b.WriteString(formatExport(x))
	return b.String()
}

func formatExport(x any) string {
	switch x.(type) {
	case map[string]any, []any:
		return fmt.Sprint(x)
	}
	return "(" + fmt.Sprint(x) + ")"
}
