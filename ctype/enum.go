package ctype

import (
	"math"

	"github.com/wippyai/cbinding/errors"
)

// Constant is a named enumerator.
type Constant struct {
	Name  string
	Value int64
}

// Enum is a C enumeration laid out as its Underlying integer type.
type Enum struct {
	Underlying *Primitive
	Tag        string
	Constants  []Constant
	complete   bool
}

func (*Enum) Kind() Kind { return KindEnum }
func (*Enum) isType()    {}

func (e *Enum) String() string {
	if e.Tag != "" {
		return "enum " + e.Tag
	}
	return "enum {...}"
}

// Complete reports whether the enum has been defined.
func (e *Enum) Complete() bool { return e.complete }

// Constant returns the value of a named enumerator.
func (e *Enum) Constant(name string) (int64, bool) {
	for _, c := range e.Constants {
		if c.Name == name {
			return c.Value, true
		}
	}
	return 0, false
}

// Name returns the first enumerator with the given value.
func (e *Enum) Name(value int64) (string, bool) {
	for _, c := range e.Constants {
		if c.Value == value {
			return c.Name, true
		}
	}
	return "", false
}

// EnumPolicy chooses an enum's underlying integer type.
//
// The smallest standard integer type (char, short, int, long long) of at
// least MinSize bytes covering every constant wins. It is signed when any
// constant is negative; otherwise unsigned unless PreferSigned is set and a
// signed type of that size also covers the range.
type EnumPolicy struct {
	MinSize      uint64
	PreferSigned bool
}

// DefaultEnumPolicy picks the smallest covering type with no signedness hint.
var DefaultEnumPolicy = EnumPolicy{MinSize: 1}

var (
	signedLadder   = []*Primitive{SChar, Short, Int, LongLong}
	unsignedLadder = []*Primitive{UChar, UShort, UInt, ULongLong}
)

// Select returns the underlying type for the given constants.
func (p EnumPolicy) Select(constants []Constant) (*Primitive, error) {
	var lo, hi int64
	for i, c := range constants {
		if i == 0 || c.Value < lo {
			lo = c.Value
		}
		if i == 0 || c.Value > hi {
			hi = c.Value
		}
	}

	negative := lo < 0
	for i := range signedLadder {
		s, u := signedLadder[i], unsignedLadder[i]
		if s.Size < p.MinSize {
			continue
		}
		signedFits := fitsSigned(lo, hi, s.Size)
		if negative || p.PreferSigned {
			if signedFits {
				return s, nil
			}
			if negative {
				continue
			}
		}
		if lo >= 0 && uint64(hi) <= maxUnsigned(u.Size) {
			return u, nil
		}
	}
	return nil, errors.Definition("enum", "constants [%d, %d] exceed every integer type", lo, hi)
}

func fitsSigned(lo, hi int64, size uint64) bool {
	if size >= 8 {
		return true
	}
	limit := int64(1) << (size*8 - 1)
	return lo >= -limit && hi <= limit-1
}

func maxUnsigned(size uint64) uint64 {
	if size >= 8 {
		return math.MaxUint64
	}
	return uint64(1)<<(size*8) - 1
}
