package cbinding

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// ArenaBase is the lowest address an Arena hands out.
const ArenaBase = 0x1000

// Arena is a growable address space backed by a Go byte slice. It serves as
// Memory and Allocator for values that never cross into a foreign runtime,
// and as the reference address space in tests.
type Arena struct {
	data  []byte
	free  map[uint64][]uint64 // size -> addresses
	limit uint64
	mu    sync.Mutex
}

// NewArena returns an empty arena. A zero limit means no limit.
func NewArena(limit uint64) *Arena {
	return &Arena{
		free:  make(map[uint64][]uint64),
		limit: limit,
	}
}

func (a *Arena) Size() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return ArenaBase + uint64(len(a.data))
}

func (a *Arena) Alloc(size, align uint64) (uint64, error) {
	if size == 0 {
		size = 1
	}
	if align == 0 {
		align = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, addr := range a.free[size] {
		if addr%align == 0 {
			list := a.free[size]
			a.free[size] = append(list[:i], list[i+1:]...)
			clear(a.data[addr-ArenaBase : addr-ArenaBase+size])
			return addr, nil
		}
	}

	end := ArenaBase + uint64(len(a.data))
	addr := (end + align - 1) &^ (align - 1)
	newLen := addr - ArenaBase + size
	if newLen < uint64(len(a.data)) || (a.limit > 0 && newLen > a.limit) {
		return 0, fmt.Errorf("arena exhausted: need %d bytes, limit %d", newLen, a.limit)
	}
	a.data = append(a.data, make([]byte, newLen-uint64(len(a.data)))...)
	return addr, nil
}

func (a *Arena) Free(addr, size, align uint64) {
	if addr == 0 {
		return
	}
	if size == 0 {
		size = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free[size] = append(a.free[size], addr)
}

func (a *Arena) span(addr, length uint64) ([]byte, error) {
	if addr < ArenaBase {
		return nil, fmt.Errorf("access out of bounds: addr=%#x, length=%d", addr, length)
	}
	off := addr - ArenaBase
	if off+length < off || off+length > uint64(len(a.data)) {
		return nil, fmt.Errorf("access out of bounds: addr=%#x, length=%d", addr, length)
	}
	return a.data[off : off+length], nil
}

func (a *Arena) Read(addr, length uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.span(addr, length)
}

func (a *Arena) Write(addr uint64, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, err := a.span(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

func (a *Arena) ReadU8(addr uint64) (uint8, error) {
	b, err := a.Read(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (a *Arena) ReadU16(addr uint64) (uint16, error) {
	b, err := a.Read(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (a *Arena) ReadU32(addr uint64) (uint32, error) {
	b, err := a.Read(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (a *Arena) ReadU64(addr uint64) (uint64, error) {
	b, err := a.Read(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (a *Arena) WriteU8(addr uint64, value uint8) error {
	return a.Write(addr, []byte{value})
}

func (a *Arena) WriteU16(addr uint64, value uint16) error {
	return a.Write(addr, binary.LittleEndian.AppendUint16(nil, value))
}

func (a *Arena) WriteU32(addr uint64, value uint32) error {
	return a.Write(addr, binary.LittleEndian.AppendUint32(nil, value))
}

func (a *Arena) WriteU64(addr uint64, value uint64) error {
	return a.Write(addr, binary.LittleEndian.AppendUint64(nil, value))
}

var (
	_ Memory      = (*Arena)(nil)
	_ MemorySizer = (*Arena)(nil)
	_ Allocator   = (*Arena)(nil)
)
