package ctype

import (
	"strconv"
	"strings"
)

// Kind discriminates the Type variants.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBool
	KindInt
	KindFloat
	KindPointer
	KindArray
	KindStruct
	KindUnion
	KindEnum
	KindQualified
	KindFunction
)

var kindNames = [...]string{
	KindVoid:      "void",
	KindBool:      "bool",
	KindInt:       "int",
	KindFloat:     "float",
	KindPointer:   "pointer",
	KindArray:     "array",
	KindStruct:    "struct",
	KindUnion:     "union",
	KindEnum:      "enum",
	KindQualified: "qualified",
	KindFunction:  "function",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Type is implemented by every node of the model.
type Type interface {
	Kind() Kind
	// String returns a C-like spelling of the type.
	String() string
	isType()
}

// Pointer is a pointer to Elem. Elem may be incomplete.
type Pointer struct {
	Elem Type
}

func PointerTo(elem Type) *Pointer {
	return &Pointer{Elem: elem}
}

func (*Pointer) Kind() Kind { return KindPointer }
func (*Pointer) isType()    {}

func (p *Pointer) String() string {
	if fn, ok := p.Elem.(*Function); ok {
		return fn.spell("(*)")
	}
	return p.Elem.String() + " *"
}

// Array is a fixed or unknown-length sequence of Elem.
type Array struct {
	Elem    Type
	Len     uint64
	Unknown bool
}

func ArrayOf(elem Type, n uint64) *Array {
	return &Array{Elem: elem, Len: n}
}

// UnknownArrayOf returns the incomplete array type elem[].
func UnknownArrayOf(elem Type) *Array {
	return &Array{Elem: elem, Unknown: true}
}

func (*Array) Kind() Kind { return KindArray }
func (*Array) isType()    {}

func (a *Array) String() string {
	if a.Unknown {
		return a.Elem.String() + "[]"
	}
	return a.Elem.String() + "[" + strconv.FormatUint(a.Len, 10) + "]"
}

// Qualified wraps Inner with cv-qualifiers. Qualifiers never change layout.
type Qualified struct {
	Inner    Type
	Const    bool
	Volatile bool
}

func ConstOf(inner Type) *Qualified {
	return &Qualified{Inner: inner, Const: true}
}

func (*Qualified) Kind() Kind { return KindQualified }
func (*Qualified) isType()    {}

func (q *Qualified) String() string {
	var b strings.Builder
	if q.Const {
		b.WriteString("const ")
	}
	if q.Volatile {
		b.WriteString("volatile ")
	}
	b.WriteString(q.Inner.String())
	return b.String()
}

// Unqualify strips every qualifier layer and reports whether any was const.
func Unqualify(t Type) (Type, bool) {
	isConst := false
	for {
		q, ok := t.(*Qualified)
		if !ok {
			return t, isConst
		}
		isConst = isConst || q.Const
		t = q.Inner
	}
}

// IsAggregate reports whether t is a struct or union, ignoring qualifiers.
func IsAggregate(t Type) bool {
	t, _ = Unqualify(t)
	k := t.Kind()
	return k == KindStruct || k == KindUnion
}

// IsEnum reports whether t is an enum, ignoring qualifiers.
func IsEnum(t Type) bool {
	t, _ = Unqualify(t)
	return t.Kind() == KindEnum
}

// IsInteger reports whether t is an integer, bool or enum type.
func IsInteger(t Type) bool {
	t, _ = Unqualify(t)
	switch t.Kind() {
	case KindInt, KindBool, KindEnum:
		return true
	}
	return false
}

// IsScalar reports whether t is passed and stored as a single machine value.
func IsScalar(t Type) bool {
	t, _ = Unqualify(t)
	switch t.Kind() {
	case KindInt, KindBool, KindEnum, KindFloat, KindPointer:
		return true
	}
	return false
}

// IsComplete reports whether t can be instantiated without extra information.
func IsComplete(t Type) bool {
	t, _ = Unqualify(t)
	switch tt := t.(type) {
	case *Primitive:
		return tt.kind != KindVoid
	case *Array:
		return !tt.Unknown && IsComplete(tt.Elem)
	case *Struct:
		return tt.complete
	case *Union:
		return tt.complete
	case *Enum:
		return tt.complete
	case *Function:
		return false
	}
	return true
}
