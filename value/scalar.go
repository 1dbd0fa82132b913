package value

import (
	"encoding/binary"
	"math"

	"golang.org/x/exp/constraints"
)

// wide is an integer of either signedness widened to 64 bits.
type wide struct {
	bits uint64
	neg  bool
}

func widen[T constraints.Integer](v T) wide {
	if v < 0 {
		return wide{bits: uint64(int64(v)), neg: true}
	}
	return wide{bits: uint64(v)}
}

// integerOf widens any Go integer.
func integerOf(v any) (wide, bool) {
	switch x := v.(type) {
	case int:
		return widen(x), true
	case int8:
		return widen(x), true
	case int16:
		return widen(x), true
	case int32:
		return widen(x), true
	case int64:
		return widen(x), true
	case uint:
		return widen(x), true
	case uint8:
		return widen(x), true
	case uint16:
		return widen(x), true
	case uint32:
		return widen(x), true
	case uint64:
		return widen(x), true
	case uintptr:
		return widen(x), true
	}
	return wide{}, false
}

func floatOf(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// fits reports whether w is representable in an integer of the given width
// in bits and signedness.
func (w wide) fits(width uint64, signed bool) bool {
	if width >= 64 {
		if signed {
			return w.neg || w.bits <= math.MaxInt64
		}
		return !w.neg
	}
	if signed {
		limit := uint64(1) << (width - 1)
		if w.neg {
			return int64(w.bits) >= -int64(limit)
		}
		return w.bits < limit
	}
	return !w.neg && w.bits < uint64(1)<<width
}

func (w wide) any() any {
	if w.neg {
		return int64(w.bits)
	}
	return w.bits
}

// exactInt converts an integer to a float if no precision is lost.
func exactInt[F constraints.Float](w wide) (F, bool) {
	var f F
	if w.neg {
		f = F(int64(w.bits))
		return f, int64(float64(f)) == int64(w.bits)
	}
	f = F(w.bits)
	return f, float64(f) < 1<<64 && uint64(float64(f)) == w.bits
}

func putUint(b []byte, size, v uint64) {
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, v)
	default:
		for i := uint64(0); i < size && i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
	}
}

func getUint(b []byte, size uint64) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	}
	var v uint64
	for i := uint64(0); i < size && i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

func signExtend(v, width uint64) int64 {
	if width >= 64 {
		return int64(v)
	}
	shift := 64 - width
	return int64(v<<shift) >> shift
}

// readBits extracts width bits starting at bit offset off, little-endian.
func readBits(b []byte, off, width uint64) uint64 {
	var v uint64
	for i := uint64(0); i < width; i++ {
		pos := off + i
		if b[pos/8]&(1<<(pos%8)) != 0 {
			v |= 1 << i
		}
	}
	return v
}

// writeBits stores the low width bits of v at bit offset off.
func writeBits(b []byte, off, width, v uint64) {
	for i := uint64(0); i < width; i++ {
		pos := off + i
		mask := byte(1) << (pos % 8)
		if v&(1<<i) != 0 {
			b[pos/8] |= mask
		} else {
			b[pos/8] &^= mask
		}
	}
}
