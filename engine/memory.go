package engine

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/cbinding"
	"github.com/wippyai/cbinding/errors"
)

// WazeroMemory exposes a wasm32 linear memory as a cbinding.Memory.
type WazeroMemory struct {
	mem api.Memory
}

func (m *WazeroMemory) offset(addr, length uint64) (uint32, uint32, error) {
	if addr > math.MaxUint32 || length > math.MaxUint32 {
		return 0, 0, fmt.Errorf("address 0x%x (len %d) outside wasm32 memory", addr, length)
	}
	return uint32(addr), uint32(length), nil
}

func (m *WazeroMemory) Read(addr, length uint64) ([]byte, error) {
	off, n, err := m.offset(addr, length)
	if err != nil {
		return nil, err
	}
	data, ok := m.mem.Read(off, n)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", addr, length)
	}
	return data, nil
}

func (m *WazeroMemory) Write(addr uint64, data []byte) error {
	off, _, err := m.offset(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	if !m.mem.Write(off, data) {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", addr, len(data))
	}
	return nil
}

func (m *WazeroMemory) ReadU8(addr uint64) (uint8, error) {
	off, _, err := m.offset(addr, 1)
	if err != nil {
		return 0, err
	}
	val, ok := m.mem.ReadByte(off)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d", addr)
	}
	return val, nil
}

func (m *WazeroMemory) ReadU16(addr uint64) (uint16, error) {
	off, _, err := m.offset(addr, 2)
	if err != nil {
		return 0, err
	}
	val, ok := m.mem.ReadUint16Le(off)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d", addr)
	}
	return val, nil
}

func (m *WazeroMemory) ReadU32(addr uint64) (uint32, error) {
	off, _, err := m.offset(addr, 4)
	if err != nil {
		return 0, err
	}
	val, ok := m.mem.ReadUint32Le(off)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d", addr)
	}
	return val, nil
}

func (m *WazeroMemory) ReadU64(addr uint64) (uint64, error) {
	off, _, err := m.offset(addr, 8)
	if err != nil {
		return 0, err
	}
	val, ok := m.mem.ReadUint64Le(off)
	if !ok {
		return 0, fmt.Errorf("read out of bounds: offset=%d", addr)
	}
	return val, nil
}

func (m *WazeroMemory) WriteU8(addr uint64, value uint8) error {
	off, _, err := m.offset(addr, 1)
	if err != nil {
		return err
	}
	if !m.mem.WriteByte(off, value) {
		return fmt.Errorf("write out of bounds: offset=%d", addr)
	}
	return nil
}

func (m *WazeroMemory) WriteU16(addr uint64, value uint16) error {
	off, _, err := m.offset(addr, 2)
	if err != nil {
		return err
	}
	if !m.mem.WriteUint16Le(off, value) {
		return fmt.Errorf("write out of bounds: offset=%d", addr)
	}
	return nil
}

func (m *WazeroMemory) WriteU32(addr uint64, value uint32) error {
	off, _, err := m.offset(addr, 4)
	if err != nil {
		return err
	}
	if !m.mem.WriteUint32Le(off, value) {
		return fmt.Errorf("write out of bounds: offset=%d", addr)
	}
	return nil
}

func (m *WazeroMemory) WriteU64(addr uint64, value uint64) error {
	off, _, err := m.offset(addr, 8)
	if err != nil {
		return err
	}
	if !m.mem.WriteUint64Le(off, value) {
		return fmt.Errorf("write out of bounds: offset=%d", addr)
	}
	return nil
}

func (m *WazeroMemory) Size() uint64 {
	if m.mem == nil {
		return 0
	}
	return uint64(m.mem.Size())
}

// wazeroAllocator allocates in a module's linear memory through its
// exported malloc and free.
type wazeroAllocator struct {
	allocFn  api.Function
	freeFn   api.Function
	mu       *sync.Mutex
	stackBuf []uint64
}

func (a *wazeroAllocator) Alloc(size, align uint64) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alloc(context.Background(), size, align)
}

func (a *wazeroAllocator) Free(addr, size, align uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free(context.Background(), addr, size)
}

// alloc must be called with mu held. malloc's result is aligned to 16 by
// the C runtime; larger alignments are rejected.
func (a *wazeroAllocator) alloc(ctx context.Context, size, align uint64) (uint64, error) {
	if a.allocFn == nil {
		return 0, errors.Unsupported(errors.PhaseInvoke, "module exports no malloc")
	}
	if align > 16 || size > math.MaxUint32 {
		return 0, errors.AllocationFailed(errors.PhaseInvoke, size, align)
	}
	if size == 0 {
		size = 1
	}
	a.stackBuf[0] = size
	if err := a.allocFn.CallWithStack(ctx, a.stackBuf[:1]); err != nil {
		return 0, errors.New(errors.PhaseInvoke, errors.KindAllocation).
			Cause(err).
			Detail("malloc(%d) trapped", size).
			Build()
	}
	addr := uint64(uint32(a.stackBuf[0]))
	if addr == 0 {
		Logger().Warn("malloc returned null", zap.Uint64("size", size))
		return 0, errors.AllocationFailed(errors.PhaseInvoke, size, align)
	}
	return addr, nil
}

func (a *wazeroAllocator) free(ctx context.Context, addr, size uint64) {
	if a.freeFn == nil || addr == 0 {
		return
	}
	a.stackBuf[0] = addr
	if err := a.freeFn.CallWithStack(ctx, a.stackBuf[:1]); err != nil {
		Logger().Warn("free trapped",
			zap.Uint64("addr", addr),
			zap.Uint64("size", size),
			zap.Error(err))
	}
}

var (
	_ cbinding.Memory      = (*WazeroMemory)(nil)
	_ cbinding.MemorySizer = (*WazeroMemory)(nil)
	_ cbinding.Allocator   = (*wazeroAllocator)(nil)
)
