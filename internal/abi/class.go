package abi

import "math"

// Class is the machine-level category of a lowered scalar.
type Class uint8

const (
	ClassVoid Class = iota
	ClassI32
	ClassI64
	ClassF32
	ClassF64
	ClassPtr
	// ClassAgg is a struct or union passed or returned by value.
	ClassAgg
)

var classNames = [...]string{
	ClassVoid: "void",
	ClassI32:  "i32",
	ClassI64:  "i64",
	ClassF32:  "f32",
	ClassF64:  "f64",
	ClassPtr:  "ptr",
	ClassAgg:  "aggregate",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

func (c Class) IsFloat() bool {
	return c == ClassF32 || c == ClassF64
}

// EncodeF32 stores a float32 in the low bits of a raw slot.
func EncodeF32(f float32) uint64 {
	return uint64(math.Float32bits(f))
}

func DecodeF32(raw uint64) float32 {
	return math.Float32frombits(uint32(raw))
}

func EncodeF64(f float64) uint64 {
	return math.Float64bits(f)
}

func DecodeF64(raw uint64) float64 {
	return math.Float64frombits(raw)
}
