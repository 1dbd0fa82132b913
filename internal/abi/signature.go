package abi

import "strings"

// Convention is the calling convention a lowered signature was built for.
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

// Placement says where a lowered argument travels on conventions that split
// arguments between registers and stack.
type Placement uint8

const (
	PlaceStack Placement = iota
	PlaceRegister
)

// Param is one lowered argument or result slot.
type Param struct {
	Class     Class
	Placement Placement
	Signed    bool
	// Size is the byte width of the C value before promotion to Class.
	Size  uint64
	Align uint64
	// Scalar is set for aggregates that recursively hold a single scalar,
	// which some ABIs pass directly.
	Scalar Class
}

// Arg is a marshaled argument: a raw scalar slot, or aggregate bytes.
type Arg struct {
	Data  []byte
	Param Param
	Raw   uint64
}

// Result is a raw return slot, or aggregate bytes for ClassAgg results.
type Result struct {
	Data []byte
	Raw  uint64
}

// Signature is a fully lowered call description.
type Signature struct {
	Name       string
	Params     []Param
	Result     Param
	Convention Convention
	// CalleeCleanup is true when the callee pops its stack arguments.
	CalleeCleanup bool
	// Fixed is the count of declared parameters; arguments past it are variadic.
	Fixed    int
	Variadic bool
}

// Key identifies the machine shape of a signature, for per-shape caches.
func (s *Signature) Key() string {
	var b strings.Builder
	b.WriteString(s.Convention.String())
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		if s.Variadic && i == s.Fixed {
			b.WriteString("...")
		}
		b.WriteString(p.Class.String())
		if p.Signed {
			b.WriteByte('s')
		}
		if p.Placement == PlaceRegister {
			b.WriteString("@reg")
		}
	}
	b.WriteString(")")
	b.WriteString(s.Result.Class.String())
	if s.Result.Signed {
		b.WriteByte('s')
	}
	return b.String()
}

func (s *Signature) String() string {
	return s.Name + " " + s.Key()
}
