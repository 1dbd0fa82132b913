package ctype

import "strings"

// Convention is a calling convention; it is part of a Function's identity.
type Convention uint8

const (
	CDecl Convention = iota
	StdCall
	FastCall
	ThisCall
)

var conventionNames = [...]string{
	CDecl:    "cdecl",
	StdCall:  "stdcall",
	FastCall: "fastcall",
	ThisCall: "thiscall",
}

func (c Convention) String() string {
	if int(c) < len(conventionNames) {
		return conventionNames[c]
	}
	return "unknown"
}

// ParseConvention maps a convention name to its value; empty means cdecl.
func ParseConvention(name string) (Convention, bool) {
	if name == "" {
		return CDecl, true
	}
	for i, n := range conventionNames {
		if strings.EqualFold(n, name) || strings.EqualFold("__"+n, name) {
			return Convention(i), true
		}
	}
	return 0, false
}

// Param is a function parameter; Name is informational.
type Param struct {
	Type Type
	Name string
}

// Function is a function signature.
type Function struct {
	Return     Type
	Params     []Param
	Variadic   bool
	Convention Convention
}

func (*Function) Kind() Kind       { return KindFunction }
func (*Function) isType()          {}
func (f *Function) String() string { return f.spell("") }

func (f *Function) spell(declarator string) string {
	var b strings.Builder
	ret := f.Return
	if ret == nil {
		ret = Void
	}
	b.WriteString(ret.String())
	b.WriteByte(' ')
	if f.Convention != CDecl {
		b.WriteString("__")
		b.WriteString(f.Convention.String())
		b.WriteByte(' ')
	}
	b.WriteString(declarator)
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Type.String())
	}
	if f.Variadic {
		if len(f.Params) > 0 {
			b.WriteString(", ")
		}
		b.WriteString("...")
	}
	b.WriteByte(')')
	return b.String()
}

// Result returns the return type, treating nil as void.
func (f *Function) Result() Type {
	if f.Return == nil {
		return Void
	}
	return f.Return
}
