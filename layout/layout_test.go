package layout

import (
	"errors"
	"testing"

	"github.com/wippyai/cbinding/ctype"
	cerrors "github.com/wippyai/cbinding/errors"
)

func mustStruct(t *testing.T, strategy ctype.Strategy, fields ...ctype.Field) *ctype.Struct {
	t.Helper()
	s, err := ctype.NewStruct(fields, strategy, false)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func field(name string, typ ctype.Type) ctype.Field {
	return ctype.Field{Name: name, Type: typ}
}

func bits(name string, typ ctype.Type, width uint64) ctype.Field {
	return ctype.Field{Name: name, Type: typ, BitField: true, BitWidth: width}
}

func TestPrimitives(t *testing.T) {
	reg := ctype.NewRegistry(ctype.LP64)
	long, _ := reg.Lookup("long")
	ldouble, _ := reg.Lookup("long double")

	tests := []struct {
		typ   ctype.Type
		name  string
		size  uint64
		align uint64
	}{
		{ctype.Bool, "bool", 1, 1},
		{ctype.SChar, "schar", 1, 1},
		{ctype.Short, "short", 2, 2},
		{ctype.Int, "int", 4, 4},
		{long, "long", 8, 8},
		{ctype.LongLong, "long_long", 8, 8},
		{ctype.Float, "float", 4, 4},
		{ctype.Double, "double", 8, 8},
		{ldouble, "long_double", 16, 16},
		{ctype.PointerTo(ctype.Void), "void_ptr", 8, 8},
	}

	e := NewEngine(LP64)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, err := e.Layout(tc.typ)
			if err != nil {
				t.Fatal(err)
			}
			if l.Size != tc.size {
				t.Errorf("size: got %d, want %d", l.Size, tc.size)
			}
			if l.Align != tc.align {
				t.Errorf("align: got %d, want %d", l.Align, tc.align)
			}
		})
	}
}

func TestVoidHasNoLayout(t *testing.T) {
	_, err := NewEngine(LP64).Layout(ctype.Void)
	if !errors.Is(err, cerrors.ErrLayout) {
		t.Errorf("err = %v, want layout error", err)
	}
}

func TestNativeStruct(t *testing.T) {
	e := NewEngine(LP64)

	tests := []struct {
		name    string
		fields  []ctype.Field
		size    uint64
		align   uint64
		offsets map[string]uint64
	}{
		{
			name:    "char_int_double",
			fields:  []ctype.Field{field("c", ctype.SChar), field("i", ctype.Int), field("d", ctype.Double)},
			size:    16,
			align:   8,
			offsets: map[string]uint64{"c": 0, "i": 4, "d": 8},
		},
		{
			name:    "char_short_char",
			fields:  []ctype.Field{field("a", ctype.SChar), field("b", ctype.Short), field("c", ctype.SChar)},
			size:    6,
			align:   2,
			offsets: map[string]uint64{"a": 0, "b": 2, "c": 4},
		},
		{
			name:    "double_char",
			fields:  []ctype.Field{field("d", ctype.Double), field("c", ctype.SChar)},
			size:    16,
			align:   8,
			offsets: map[string]uint64{"d": 0, "c": 8},
		},
		{
			name:    "array_member",
			fields:  []ctype.Field{field("c", ctype.SChar), field("v", ctype.ArrayOf(ctype.Short, 3))},
			size:    8,
			align:   2,
			offsets: map[string]uint64{"c": 0, "v": 2},
		},
		{
			name:   "empty",
			fields: nil,
			size:   0,
			align:  1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, err := e.Layout(mustStruct(t, ctype.Native, tc.fields...))
			if err != nil {
				t.Fatal(err)
			}
			if l.Size != tc.size || l.Align != tc.align {
				t.Errorf("size/align: got %d/%d, want %d/%d", l.Size, l.Align, tc.size, tc.align)
			}
			for name, want := range tc.offsets {
				got, ok := l.Offsetof(name)
				if !ok {
					t.Fatalf("member %q missing", name)
				}
				if got != want {
					t.Errorf("offsetof(%s): got %d, want %d", name, got, want)
				}
			}
		})
	}
}

func TestSelfReferenceThroughPointer(t *testing.T) {
	for _, tc := range []struct {
		target Target
		size   uint64
	}{
		{LP64, 16},
		{ILP32, 8},
		{Wasm32, 8},
	} {
		t.Run(tc.target.Name, func(t *testing.T) {
			reg := ctype.NewRegistry(tc.target.DataModel)
			tt, err := reg.DefineStruct("T", []ctype.Field{
				field("i", ctype.Int),
				field("s", ctype.PointerTo(reg.StructTag("S"))),
			}, ctype.Native)
			if err != nil {
				t.Fatal(err)
			}
			l, err := NewEngine(tc.target).Layout(tt)
			if err != nil {
				t.Fatal(err)
			}
			if l.Size != tc.size {
				t.Errorf("size: got %d, want %d", l.Size, tc.size)
			}
		})
	}
}

func TestTargetAlignment(t *testing.T) {
	s := mustStruct(t, ctype.Native, field("c", ctype.SChar), field("x", ctype.LongLong))

	tests := []struct {
		target Target
		size   uint64
		offset uint64
	}{
		{LP64, 16, 8},
		{ILP32, 12, 4},
		{Wasm32, 16, 8},
	}
	for _, tc := range tests {
		t.Run(tc.target.Name, func(t *testing.T) {
			l, err := NewEngine(tc.target).Layout(s)
			if err != nil {
				t.Fatal(err)
			}
			off, _ := l.Offsetof("x")
			if l.Size != tc.size || off != tc.offset {
				t.Errorf("got size %d offset %d, want %d/%d", l.Size, off, tc.size, tc.offset)
			}
		})
	}
}

func TestBitFields(t *testing.T) {
	e := NewEngine(LP64)

	t.Run("shared_unit", func(t *testing.T) {
		l, err := e.Layout(mustStruct(t, ctype.Native,
			bits("a", ctype.UInt, 3),
			bits("b", ctype.UInt, 5),
			bits("c", ctype.UInt, 24),
		))
		if err != nil {
			t.Fatal(err)
		}
		if l.Size != 4 {
			t.Errorf("size: got %d, want 4", l.Size)
		}
		for name, bit := range map[string]uint64{"a": 0, "b": 3, "c": 8} {
			m, _ := l.Member(name)
			if m.Offset != 0 || m.BitOffset != bit {
				t.Errorf("%s: got %d:%d, want 0:%d", name, m.Offset, m.BitOffset, bit)
			}
			if m.StorageSize != 4 {
				t.Errorf("%s: storage %d, want 4", name, m.StorageSize)
			}
		}
	})

	t.Run("overflow_opens_unit", func(t *testing.T) {
		l, err := e.Layout(mustStruct(t, ctype.Native,
			bits("a", ctype.UInt, 3),
			bits("b", ctype.UInt, 5),
			bits("c", ctype.UInt, 30),
		))
		if err != nil {
			t.Fatal(err)
		}
		m, _ := l.Member("c")
		if m.Offset != 4 || m.BitOffset != 0 {
			t.Errorf("c: got %d:%d, want 4:0", m.Offset, m.BitOffset)
		}
		if l.Size != 8 {
			t.Errorf("size: got %d, want 8", l.Size)
		}
	})

	t.Run("after_scalar", func(t *testing.T) {
		l, err := e.Layout(mustStruct(t, ctype.Native,
			field("c", ctype.SChar),
			bits("a", ctype.UShort, 4),
			bits("b", ctype.UShort, 4),
		))
		if err != nil {
			t.Fatal(err)
		}
		m, _ := l.Member("b")
		if m.Offset != 2 || m.BitOffset != 4 {
			t.Errorf("b: got %d:%d, want 2:4", m.Offset, m.BitOffset)
		}
		if l.Size != 4 || l.Align != 2 {
			t.Errorf("size/align: got %d/%d, want 4/2", l.Size, l.Align)
		}
	})

	t.Run("unit_never_straddles_smaller_member", func(t *testing.T) {
		l, err := e.Layout(mustStruct(t, ctype.Native,
			field("c", ctype.SChar),
			bits("b", ctype.Int, 4),
		))
		if err != nil {
			t.Fatal(err)
		}
		m, _ := l.Member("b")
		if m.Offset != 4 || m.BitOffset != 0 {
			t.Errorf("b: got %d:%d, want 4:0", m.Offset, m.BitOffset)
		}
		if l.Size != 8 {
			t.Errorf("size: got %d, want 8", l.Size)
		}
	})

	t.Run("size_change_opens_unit", func(t *testing.T) {
		l, err := e.Layout(mustStruct(t, ctype.Native,
			bits("a", ctype.Int, 4),
			bits("b", ctype.SChar, 4),
		))
		if err != nil {
			t.Fatal(err)
		}
		m, _ := l.Member("b")
		if m.Offset != 4 || m.BitOffset != 0 || m.StorageSize != 1 {
			t.Errorf("b: got %d:%d in %d bytes, want 4:0 in 1", m.Offset, m.BitOffset, m.StorageSize)
		}
		if l.Size != 8 {
			t.Errorf("size: got %d, want 8", l.Size)
		}
	})

	t.Run("zero_width", func(t *testing.T) {
		l, err := e.Layout(mustStruct(t, ctype.Native,
			bits("a", ctype.UInt, 3),
			bits("", ctype.UInt, 0),
			bits("b", ctype.UInt, 3),
		))
		if err != nil {
			t.Fatal(err)
		}
		m, _ := l.Member("b")
		if m.Offset != 4 || m.BitOffset != 0 {
			t.Errorf("b: got %d:%d, want 4:0", m.Offset, m.BitOffset)
		}
		if l.Size != 8 {
			t.Errorf("size: got %d, want 8", l.Size)
		}
	})

	t.Run("unnamed_padding_does_not_align", func(t *testing.T) {
		l, err := e.Layout(mustStruct(t, ctype.Native,
			field("c", ctype.SChar),
			bits("", ctype.UInt, 4),
		))
		if err != nil {
			t.Fatal(err)
		}
		if l.Align != 1 {
			t.Errorf("align: got %d, want 1", l.Align)
		}
	})

	t.Run("enum_bitfield", func(t *testing.T) {
		reg := ctype.NewRegistry(ctype.LP64)
		en, err := reg.NewEnum([]ctype.Constant{{Name: "A", Value: 0}, {Name: "B", Value: 3}}, ctype.UInt)
		if err != nil {
			t.Fatal(err)
		}
		l, err := e.Layout(mustStruct(t, ctype.Native, bits("k", en, 2), bits("x", ctype.UInt, 6)))
		if err != nil {
			t.Fatal(err)
		}
		m, _ := l.Member("x")
		if m.Offset != 0 || m.BitOffset != 2 {
			t.Errorf("x: got %d:%d, want 0:2", m.Offset, m.BitOffset)
		}
	})
}

func TestBitFieldErrors(t *testing.T) {
	e := NewEngine(LP64)
	tests := []struct {
		name   string
		fields []ctype.Field
	}{
		{"too_wide", []ctype.Field{bits("a", ctype.UChar, 9)}},
		{"named_zero_width", []ctype.Field{bits("a", ctype.UInt, 0)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Layout(mustStruct(t, ctype.Native, tc.fields...))
			if !errors.Is(err, cerrors.ErrLayout) {
				t.Errorf("err = %v, want layout error", err)
			}
		})
	}
}

func TestPacked(t *testing.T) {
	e := NewEngine(LP64)

	t.Run("no_padding", func(t *testing.T) {
		l, err := e.Layout(mustStruct(t, ctype.Packed,
			field("c", ctype.SChar),
			field("i", ctype.Int),
			field("s", ctype.Short),
			field("d", ctype.Double),
		))
		if err != nil {
			t.Fatal(err)
		}
		if l.Size != 15 || l.Align != 1 {
			t.Errorf("size/align: got %d/%d, want 15/1", l.Size, l.Align)
		}
		for name, want := range map[string]uint64{"c": 0, "i": 1, "s": 5, "d": 7} {
			if got, _ := l.Offsetof(name); got != want {
				t.Errorf("offsetof(%s): got %d, want %d", name, got, want)
			}
		}
	})

	t.Run("bit_exact", func(t *testing.T) {
		l, err := e.Layout(mustStruct(t, ctype.Packed,
			bits("a", ctype.UInt, 3),
			bits("b", ctype.UInt, 7),
			field("c", ctype.SChar),
		))
		if err != nil {
			t.Fatal(err)
		}
		b, _ := l.Member("b")
		if b.Offset != 0 || b.BitOffset != 3 || b.StorageSize != 2 {
			t.Errorf("b: got %d:%d storage %d, want 0:3 storage 2", b.Offset, b.BitOffset, b.StorageSize)
		}
		if off, _ := l.Offsetof("c"); off != 2 {
			t.Errorf("offsetof(c): got %d, want 2", off)
		}
		if l.Size != 3 {
			t.Errorf("size: got %d, want 3", l.Size)
		}
	})

	t.Run("override", func(t *testing.T) {
		s := mustStruct(t, ctype.Native, field("c", ctype.SChar), field("i", ctype.Int))
		native, err := e.Layout(s)
		if err != nil {
			t.Fatal(err)
		}
		packed, err := e.LayoutFor(s, ctype.Packed)
		if err != nil {
			t.Fatal(err)
		}
		if native.Size != 8 || packed.Size != 5 {
			t.Errorf("native %d packed %d, want 8 and 5", native.Size, packed.Size)
		}
	})
}

func TestUnion(t *testing.T) {
	u, err := ctype.NewUnion([]ctype.Field{
		field("c", ctype.SChar),
		field("d", ctype.Double),
		field("arr", ctype.ArrayOf(ctype.Int, 3)),
		bits("flags", ctype.UInt, 5),
	}, ctype.Native, false)
	if err != nil {
		t.Fatal(err)
	}
	l, err := NewEngine(LP64).Layout(u)
	if err != nil {
		t.Fatal(err)
	}
	if l.Size != 16 || l.Align != 8 {
		t.Errorf("size/align: got %d/%d, want 16/8", l.Size, l.Align)
	}
	for _, m := range l.Members() {
		if m.Offset != 0 || m.BitOffset != 0 {
			t.Errorf("%s at %d:%d, want 0:0", m.Name, m.Offset, m.BitOffset)
		}
	}
}

func TestAnonymousMembers(t *testing.T) {
	inner, err := ctype.NewUnion([]ctype.Field{field("i", ctype.Int), field("f", ctype.Double)}, ctype.Native, true)
	if err != nil {
		t.Fatal(err)
	}
	named := mustStruct(t, ctype.Native, field("i", ctype.Int), field("f", ctype.Double))
	outer := mustStruct(t, ctype.Native,
		field("tag", ctype.SChar),
		ctype.Field{Type: inner},
		field("named", named),
	)

	l, err := NewEngine(LP64).Layout(outer)
	if err != nil {
		t.Fatal(err)
	}
	if l.Size != 32 {
		t.Errorf("size: got %d, want 32", l.Size)
	}

	m, ok := l.Member("f")
	if !ok {
		t.Fatal("promoted member f missing")
	}
	if m.Offset != l.Fields[1].Offset {
		t.Errorf("promoted f at %d, anonymous member at %d", m.Offset, l.Fields[1].Offset)
	}
	if len(m.Path) != 2 || m.Path[0] != 1 || m.Path[1] != 1 {
		t.Errorf("path: got %v, want [1 1]", m.Path)
	}
	if _, ok := l.Member("named.i"); ok {
		t.Error("members of named aggregates must not be promoted")
	}

	// Same offset through the containing member's own layout.
	innerL := l.Fields[1].Layout
	viaFull, _ := innerL.Offsetof("f")
	if l.Fields[1].Offset+viaFull != m.Offset {
		t.Errorf("full path offset %d != promoted %d", l.Fields[1].Offset+viaFull, m.Offset)
	}
}

func TestFlexibleArray(t *testing.T) {
	e := NewEngine(LP64)

	l, err := e.Layout(mustStruct(t, ctype.Native,
		field("n", ctype.Int),
		field("data", ctype.UnknownArrayOf(ctype.Double)),
	))
	if err != nil {
		t.Fatal(err)
	}
	if !l.Flexible {
		t.Error("expected flexible struct")
	}
	if l.Size != 8 || l.Align != 8 {
		t.Errorf("size/align: got %d/%d, want 8/8", l.Size, l.Align)
	}
	if off, _ := l.Offsetof("data"); off != 8 {
		t.Errorf("offsetof(data): got %d, want 8", off)
	}

	_, err = e.Layout(mustStruct(t, ctype.Native,
		field("data", ctype.UnknownArrayOf(ctype.Int)),
		field("n", ctype.Int),
	))
	if !errors.Is(err, cerrors.ErrLayout) {
		t.Errorf("non-trailing unknown array: err = %v, want layout error", err)
	}

	arr, err := e.Layout(ctype.UnknownArrayOf(ctype.Int))
	if err != nil {
		t.Fatal(err)
	}
	if !arr.Incomplete {
		t.Error("unknown-length array should be incomplete")
	}
	if _, err := e.SizeOf(ctype.UnknownArrayOf(ctype.Int)); !errors.Is(err, cerrors.ErrLayout) {
		t.Errorf("SizeOf unknown array: err = %v, want layout error", err)
	}
	counted, err := e.ArrayOf(ctype.Int, 5)
	if err != nil {
		t.Fatal(err)
	}
	if counted.Size != 20 {
		t.Errorf("counted size: got %d, want 20", counted.Size)
	}
}

func TestEnumAndQualified(t *testing.T) {
	reg := ctype.NewRegistry(ctype.LP64)
	e := NewEngine(LP64)

	small, err := reg.DefineEnum("Small", []ctype.Constant{{Name: "A", Value: 0}, {Name: "B", Value: 255}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if size, _ := e.SizeOf(small); size != 1 {
		t.Errorf("enum size: got %d, want 1", size)
	}

	neg, err := reg.DefineEnum("Neg", []ctype.Constant{{Name: "A", Value: -1}, {Name: "B", Value: 40000}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if size, _ := e.SizeOf(neg); size != 4 {
		t.Errorf("signed enum size: got %d, want 4", size)
	}

	c, err := e.Layout(ctype.ConstOf(ctype.Double))
	if err != nil {
		t.Fatal(err)
	}
	if c.Size != 8 || c.Align != 8 {
		t.Errorf("const double: got %d/%d, want 8/8", c.Size, c.Align)
	}
}

func TestIncompleteAndCycles(t *testing.T) {
	reg := ctype.NewRegistry(ctype.LP64)
	e := NewEngine(LP64)

	_, err := e.Layout(reg.StructTag("Opaque"))
	if !errors.Is(err, cerrors.ErrLayout) {
		t.Errorf("opaque struct: err = %v, want layout error", err)
	}

	if _, err := e.Layout(ctype.PointerTo(reg.StructTag("Opaque"))); err != nil {
		t.Errorf("pointer to opaque struct: %v", err)
	}

	if _, err := e.Layout(&ctype.Function{Return: ctype.Int}); !errors.Is(err, cerrors.ErrLayout) {
		t.Errorf("function type: err = %v, want layout error", err)
	}
}

func TestLayoutIsCached(t *testing.T) {
	e := NewEngine(LP64)
	s := mustStruct(t, ctype.Native, field("x", ctype.Int))

	a, err := e.Layout(s)
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Layout(s)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("repeated Layout should return the cached value")
	}
}

func TestTargetByName(t *testing.T) {
	for _, name := range []string{"lp64", "llp64", "ilp32", "wasm32"} {
		if _, ok := TargetByName(name); !ok {
			t.Errorf("target %q missing", name)
		}
	}
	if _, ok := TargetByName("pdp11"); ok {
		t.Error("unexpected target")
	}
	if h := Host(); h.PointerSize == 0 {
		t.Error("host target has no pointer size")
	}
}
