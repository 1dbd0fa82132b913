package ctype

import (
	"errors"
	"testing"

	cerrors "github.com/wippyai/cbinding/errors"
)

func TestForwardDeclarationIsShared(t *testing.T) {
	reg := NewRegistry(LP64)

	fwd := reg.StructTag("S")
	if IsComplete(fwd) {
		t.Fatal("forward declaration should be incomplete")
	}
	ptr := PointerTo(fwd)

	s, err := reg.DefineStruct("S", []Field{{Name: "x", Type: Int}}, Native)
	if err != nil {
		t.Fatalf("DefineStruct: %v", err)
	}
	if s != fwd {
		t.Error("definition should complete the forward-declared node")
	}
	if !IsComplete(ptr.Elem) {
		t.Error("pointer created before definition should see the complete type")
	}
	if s.Fields[0].Order != 0 {
		t.Errorf("Order = %d, want 0", s.Fields[0].Order)
	}
}

func TestRedefinition(t *testing.T) {
	reg := NewRegistry(LP64)
	if _, err := reg.DefineStruct("S", []Field{{Name: "x", Type: Int}}, Native); err != nil {
		t.Fatal(err)
	}
	_, err := reg.DefineStruct("S", []Field{{Name: "y", Type: Int}}, Native)
	if !errors.Is(err, cerrors.ErrDefinition) {
		t.Errorf("redefinition error = %v, want definition error", err)
	}
}

func TestDefinitionErrors(t *testing.T) {
	reg := NewRegistry(LP64)

	inner, err := NewStruct([]Field{{Name: "x", Type: Int}}, Native, true)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		fields func() []Field
	}{
		{"duplicate", func() []Field {
			return []Field{{Name: "a", Type: Int}, {Name: "a", Type: Float}}
		}},
		{"collision_after_flattening", func() []Field {
			return []Field{{Name: "x", Type: Int}, {Type: inner}}
		}},
		{"self_containment", func() []Field {
			return []Field{{Name: "self", Type: reg.StructTag("Loop")}}
		}},
		{"self_containment_through_array", func() []Field {
			return []Field{{Name: "self", Type: ArrayOf(reg.StructTag("Loop"), 2)}}
		}},
		{"function_member", func() []Field {
			return []Field{{Name: "f", Type: &Function{Return: Int}}}
		}},
		{"void_member", func() []Field {
			return []Field{{Name: "v", Type: Void}}
		}},
		{"float_bitfield", func() []Field {
			return []Field{{Name: "f", Type: Float, BitField: true, BitWidth: 3}}
		}},
		{"unnamed_scalar", func() []Field {
			return []Field{{Type: Int}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.DefineStruct("Loop", tt.fields(), Native)
			if !errors.Is(err, cerrors.ErrDefinition) {
				t.Fatalf("err = %v, want definition error", err)
			}
			if IsComplete(reg.StructTag("Loop")) {
				t.Error("failed definition must leave the tag incomplete")
			}
		})
	}
}

func TestSelfReferenceThroughPointer(t *testing.T) {
	reg := NewRegistry(LP64)
	node := reg.StructTag("node")
	_, err := reg.DefineStruct("node", []Field{
		{Name: "value", Type: Int},
		{Name: "next", Type: PointerTo(node)},
	}, Native)
	if err != nil {
		t.Fatalf("self reference through pointer should be allowed: %v", err)
	}
}

func TestIndirectCycle(t *testing.T) {
	reg := NewRegistry(LP64)
	a := reg.StructTag("A")
	if _, err := reg.DefineStruct("B", []Field{{Name: "a", Type: a}}, Native); err != nil {
		t.Fatal(err)
	}
	_, err := reg.DefineStruct("A", []Field{{Name: "b", Type: reg.StructTag("B")}}, Native)
	if !errors.Is(err, cerrors.ErrDefinition) {
		t.Errorf("err = %v, want definition error for A -> B -> A", err)
	}
}

func TestEnumPolicy(t *testing.T) {
	tests := []struct {
		name      string
		policy    EnumPolicy
		values    []int64
		want      *Primitive
		wantError bool
	}{
		{"small_unsigned", DefaultEnumPolicy, []int64{0, 1, 2}, UChar, false},
		{"unsigned_255", DefaultEnumPolicy, []int64{0, 255}, UChar, false},
		{"unsigned_256", DefaultEnumPolicy, []int64{256}, UShort, false},
		{"negative", DefaultEnumPolicy, []int64{-1, 1}, SChar, false},
		{"negative_wide", DefaultEnumPolicy, []int64{-1, 200}, Short, false},
		{"large", DefaultEnumPolicy, []int64{1 << 40}, ULongLong, false},
		{"prefer_signed", EnumPolicy{MinSize: 1, PreferSigned: true}, []int64{0, 100}, SChar, false},
		{"prefer_signed_overflow", EnumPolicy{MinSize: 1, PreferSigned: true}, []int64{0, 200}, UChar, false},
		{"gcc_like", EnumPolicy{MinSize: 4}, []int64{0, 1}, UInt, false},
		{"gcc_like_negative", EnumPolicy{MinSize: 4}, []int64{-5}, Int, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			constants := make([]Constant, len(tt.values))
			for i, v := range tt.values {
				constants[i] = Constant{Name: "c", Value: v}
			}
			got, err := tt.policy.Select(constants)
			if (err != nil) != tt.wantError {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Errorf("Select = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefineEnum(t *testing.T) {
	reg := NewRegistry(LP64, WithEnumPolicy(EnumPolicy{MinSize: 4}))

	e, err := reg.DefineEnum("color", []Constant{{"RED", 0}, {"GREEN", 1}, {"BLUE", 2}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if e.Underlying != UInt {
		t.Errorf("Underlying = %v, want unsigned int", e.Underlying)
	}
	if v, ok := e.Constant("BLUE"); !ok || v != 2 {
		t.Errorf("Constant(BLUE) = %d, %v", v, ok)
	}

	_, err = reg.DefineEnum("small", []Constant{{"BIG", 300}}, UInt8)
	if !errors.Is(err, cerrors.ErrDefinition) {
		t.Errorf("explicit underlying overflow err = %v", err)
	}

	_, err = reg.DefineEnum("dup", []Constant{{"A", 0}, {"A", 1}}, nil)
	if !errors.Is(err, cerrors.ErrDefinition) {
		t.Errorf("duplicate enumerator err = %v", err)
	}
}

func TestIdenticalFunctionsDifferByConvention(t *testing.T) {
	a := &Function{Return: Int, Params: []Param{{Type: Int}, {Type: Int}}}
	b := &Function{Return: Int, Params: []Param{{Type: Int}, {Type: Int}}}
	c := &Function{Return: Int, Params: []Param{{Type: Int}, {Type: Int}}, Convention: StdCall}

	if !Identical(a, b) {
		t.Error("structurally equal cdecl functions should be identical")
	}
	if Identical(a, c) {
		t.Error("functions differing in convention must be distinct")
	}
}

func TestIdenticalTagsAreNominal(t *testing.T) {
	r1 := NewRegistry(LP64)
	r2 := NewRegistry(LP64)
	if Identical(r1.StructTag("S"), r2.StructTag("S")) {
		t.Error("tags from different registries are different types")
	}
	if !Identical(PointerTo(r1.StructTag("S")), PointerTo(r1.StructTag("S"))) {
		t.Error("pointers to the same tag should be identical")
	}
}

func TestLookupDataModel(t *testing.T) {
	lp64 := NewRegistry(LP64)
	llp64 := NewRegistry(LLP64)

	long64, _ := lp64.Lookup("long")
	long32, _ := llp64.Lookup("unsigned long")
	if long64.(*Primitive).Size != 8 {
		t.Errorf("LP64 long size = %d, want 8", long64.(*Primitive).Size)
	}
	if p := long32.(*Primitive); p.Size != 4 || p.Signed {
		t.Errorf("LLP64 unsigned long = %+v", p)
	}

	if err := lp64.Typedef("myint", Int); err != nil {
		t.Fatal(err)
	}
	if got, ok := lp64.Lookup("myint"); !ok || got != Int {
		t.Errorf("Lookup(myint) = %v, %v", got, ok)
	}
	if err := lp64.Typedef("myint", Float); !errors.Is(err, cerrors.ErrDefinition) {
		t.Errorf("conflicting typedef err = %v", err)
	}
}

func TestSpelling(t *testing.T) {
	reg := NewRegistry(LP64)
	fn := &Function{Return: Int, Params: []Param{{Type: Int}, {Type: PointerTo(ConstOf(reg.prims["char"]))}}, Variadic: true}

	tests := []struct {
		typ  Type
		want string
	}{
		{PointerTo(Int), "int *"},
		{ArrayOf(Double, 4), "double[4]"},
		{UnknownArrayOf(Int), "int[]"},
		{ConstOf(Int), "const int"},
		{reg.StructTag("S"), "struct S"},
		{fn, "int (int, const char *, ...)"},
		{PointerTo(fn), "int (*)(int, const char *, ...)"},
		{&Function{Return: Void, Convention: StdCall}, "void __stdcall ()"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParseConvention(t *testing.T) {
	for name, want := range map[string]Convention{"": CDecl, "stdcall": StdCall, "__fastcall": FastCall, "ThisCall": ThisCall} {
		got, ok := ParseConvention(name)
		if !ok || got != want {
			t.Errorf("ParseConvention(%q) = %v, %v", name, got, ok)
		}
	}
	if _, ok := ParseConvention("pascal"); ok {
		t.Error("unknown convention should not parse")
	}
}
