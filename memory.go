package cbinding

// Memory is a little-endian byte-addressed address space.
// Address 0 is never valid; it is the null pointer.
type Memory interface {
	// Read returns length bytes at addr. The slice may alias the underlying
	// memory and is only valid until the next write or growth.
	Read(addr, length uint64) ([]byte, error)
	Write(addr uint64, data []byte) error
	ReadU8(addr uint64) (uint8, error)
	ReadU16(addr uint64) (uint16, error)
	ReadU32(addr uint64) (uint32, error)
	ReadU64(addr uint64) (uint64, error)
	WriteU8(addr uint64, value uint8) error
	WriteU16(addr uint64, value uint16) error
	WriteU32(addr uint64, value uint32) error
	WriteU64(addr uint64, value uint64) error
}

// MemorySizer reports the extent of an address space in bytes.
type MemorySizer interface {
	Size() uint64
}

// Allocator hands out blocks of an address space.
type Allocator interface {
	Alloc(size, align uint64) (uint64, error)
	Free(addr, size, align uint64)
}
