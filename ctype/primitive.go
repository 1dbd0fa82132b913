package ctype

// Primitive is a scalar of a given width, signedness and kind (void, bool,
// integer or floating point).
type Primitive struct {
	Name   string
	Size   uint64
	Signed bool
	kind   Kind
}

// NewPrimitive returns a primitive node. kind must be KindVoid, KindBool,
// KindInt or KindFloat.
func NewPrimitive(name string, kind Kind, size uint64, signed bool) *Primitive {
	return &Primitive{Name: name, kind: kind, Size: size, Signed: signed}
}

func (p *Primitive) Kind() Kind     { return p.kind }
func (p *Primitive) String() string { return p.Name }
func (*Primitive) isType()          {}

// Bits returns the width in bits.
func (p *Primitive) Bits() uint64 { return p.Size * 8 }

// Fixed-width primitives shared by every data model.
var (
	Void      = NewPrimitive("void", KindVoid, 0, false)
	Bool      = NewPrimitive("_Bool", KindBool, 1, false)
	SChar     = NewPrimitive("signed char", KindInt, 1, true)
	UChar     = NewPrimitive("unsigned char", KindInt, 1, false)
	Short     = NewPrimitive("short", KindInt, 2, true)
	UShort    = NewPrimitive("unsigned short", KindInt, 2, false)
	Int       = NewPrimitive("int", KindInt, 4, true)
	UInt      = NewPrimitive("unsigned int", KindInt, 4, false)
	LongLong  = NewPrimitive("long long", KindInt, 8, true)
	ULongLong = NewPrimitive("unsigned long long", KindInt, 8, false)
	Float     = NewPrimitive("float", KindFloat, 4, true)
	Double    = NewPrimitive("double", KindFloat, 8, true)

	Int8   = NewPrimitive("int8_t", KindInt, 1, true)
	Int16  = NewPrimitive("int16_t", KindInt, 2, true)
	Int32  = NewPrimitive("int32_t", KindInt, 4, true)
	Int64  = NewPrimitive("int64_t", KindInt, 8, true)
	UInt8  = NewPrimitive("uint8_t", KindInt, 1, false)
	UInt16 = NewPrimitive("uint16_t", KindInt, 2, false)
	UInt32 = NewPrimitive("uint32_t", KindInt, 4, false)
	UInt64 = NewPrimitive("uint64_t", KindInt, 8, false)
)

// DataModel fixes the widths of the primitives C leaves to the platform.
type DataModel struct {
	Name           string
	PointerSize    uint64
	LongSize       uint64
	LongDoubleSize uint64
	WCharSize      uint64
	CharSigned     bool
	WCharSigned    bool
}

var (
	LP64 = DataModel{
		Name: "lp64", PointerSize: 8, LongSize: 8, LongDoubleSize: 16,
		WCharSize: 4, CharSigned: true, WCharSigned: true,
	}
	LLP64 = DataModel{
		Name: "llp64", PointerSize: 8, LongSize: 4, LongDoubleSize: 8,
		WCharSize: 2, CharSigned: true,
	}
	ILP32 = DataModel{
		Name: "ilp32", PointerSize: 4, LongSize: 4, LongDoubleSize: 12,
		WCharSize: 4, CharSigned: true, WCharSigned: true,
	}
	Wasm32 = DataModel{
		Name: "wasm32", PointerSize: 4, LongSize: 4, LongDoubleSize: 16,
		WCharSize: 4, CharSigned: true, WCharSigned: true,
	}
)

// primitives builds the name table for a data model.
func (m DataModel) primitives() map[string]*Primitive {
	long := NewPrimitive("long", KindInt, m.LongSize, true)
	ulong := NewPrimitive("unsigned long", KindInt, m.LongSize, false)
	char := NewPrimitive("char", KindInt, 1, m.CharSigned)
	sizeT := NewPrimitive("size_t", KindInt, m.PointerSize, false)
	ssizeT := NewPrimitive("ssize_t", KindInt, m.PointerSize, true)
	ptrdiff := NewPrimitive("ptrdiff_t", KindInt, m.PointerSize, true)
	intptr := NewPrimitive("intptr_t", KindInt, m.PointerSize, true)
	uintptr := NewPrimitive("uintptr_t", KindInt, m.PointerSize, false)
	wchar := NewPrimitive("wchar_t", KindInt, m.WCharSize, m.WCharSigned)
	longDouble := NewPrimitive("long double", KindFloat, m.LongDoubleSize, true)

	return map[string]*Primitive{
		"void":               Void,
		"_Bool":              Bool,
		"bool":               Bool,
		"char":               char,
		"signed char":        SChar,
		"unsigned char":      UChar,
		"short":              Short,
		"short int":          Short,
		"signed short":       Short,
		"unsigned short":     UShort,
		"unsigned short int": UShort,
		"int":                Int,
		"signed":             Int,
		"signed int":         Int,
		"unsigned":           UInt,
		"unsigned int":       UInt,
		"long":               long,
		"long int":           long,
		"signed long":        long,
		"unsigned long":      ulong,
		"unsigned long int":  ulong,
		"long long":          LongLong,
		"long long int":      LongLong,
		"signed long long":   LongLong,
		"unsigned long long": ULongLong,
		"float":              Float,
		"double":             Double,
		"long double":        longDouble,
		"int8_t":             Int8,
		"int16_t":            Int16,
		"int32_t":            Int32,
		"int64_t":            Int64,
		"uint8_t":            UInt8,
		"uint16_t":           UInt16,
		"uint32_t":           UInt32,
		"uint64_t":           UInt64,
		"size_t":             sizeT,
		"ssize_t":            ssizeT,
		"ptrdiff_t":          ptrdiff,
		"intptr_t":           intptr,
		"uintptr_t":          uintptr,
		"wchar_t":            wchar,
	}
}

// Char returns plain char under the model's signedness.
func (m DataModel) Char() *Primitive {
	return NewPrimitive("char", KindInt, 1, m.CharSigned)
}
