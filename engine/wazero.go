package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
	"github.com/wippyai/cbinding/layout"
	"github.com/wippyai/cbinding/library"
	"github.com/wippyai/cbinding/value"
)

// funcHandleBase is the first address handed out for exported functions.
// It lies above any wasm32 data address a module can export.
const funcHandleBase = 0xFFFF0000

// WasmConfig holds configuration for the wasm backend
type WasmConfig struct {
	// Sources maps library names to module bytes. Names not found here are
	// read from the filesystem.
	Sources map[string][]byte

	// Stdout and Stderr receive the module's WASI output when WASI is set.
	Stdout io.Writer
	Stderr io.Writer

	// MemoryLimitPages sets the maximum memory per module in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// WASI instantiates wasi_snapshot_preview1 once so modules built against
	// wasi-libc can link.
	WASI bool
}

// WasmBackend opens wasm32 modules compiled from C as libraries.
type WasmBackend struct {
	runtime      wazero.Runtime
	layouts      *layout.Engine
	cfg          WasmConfig
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// NewWasmBackend creates a wasm backend with its own wazero runtime.
func NewWasmBackend(ctx context.Context, cfg *WasmConfig) (*WasmBackend, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	b := &WasmBackend{layouts: layout.NewEngine(layout.Wasm32)}
	if cfg != nil {
		b.cfg = *cfg
		if cfg.MemoryLimitPages > 0 {
			runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
		}
	}
	b.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	return b, nil
}

func (b *WasmBackend) Name() string { return "wasm32" }

// Layouts returns the layout engine shared by every module of this backend.
func (b *WasmBackend) Layouts() *layout.Engine { return b.layouts }

// InitWASI instantiates the WASI host module for this backend's runtime.
// Safe for concurrent calls.
func (b *WasmBackend) InitWASI(ctx context.Context) error {
	if b.wasiInitDone.Load() {
		return nil
	}

	b.wasiInitMu.Lock()
	defer b.wasiInitMu.Unlock()

	if b.wasiInitDone.Load() {
		return nil
	}

	if b.runtime.Module(wasiModuleName) == nil {
		if _, err := instantiateWASI(ctx, b.runtime); err != nil {
			if b.runtime.Module(wasiModuleName) == nil {
				return fmt.Errorf("instantiate WASI: %w", err)
			}
		}
	}

	b.wasiInitDone.Store(true)
	return nil
}

// Open compiles and instantiates the named module.
func (b *WasmBackend) Open(ctx context.Context, name string) (library.Handle, error) {
	wasmBytes, ok := b.cfg.Sources[name]
	if !ok {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		wasmBytes = data
	}

	if b.cfg.WASI {
		if err := b.InitWASI(ctx); err != nil {
			return nil, err
		}
	}

	compiled, err := b.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}

	// Anonymous instances may coexist in one runtime. Reactors built by
	// wasi-libc export _initialize, which runs as the start function.
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_initialize")
	if b.cfg.Stdout != nil {
		modCfg = modCfg.WithStdout(b.cfg.Stdout)
	}
	if b.cfg.Stderr != nil {
		modCfg = modCfg.WithStderr(b.cfg.Stderr)
	}

	instance, err := b.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		compiled.Close(ctx)
		return nil, fmt.Errorf("instantiate failed: %w", err)
	}

	m := &WasmModule{
		backend:  b,
		name:     name,
		compiled: compiled,
		instance: instance,
		handles:  make(map[string]uint64),
		stackBuf: make([]uint64, 1),
	}
	if mem := instance.ExportedMemory("memory"); mem != nil {
		m.memory = &WazeroMemory{mem: mem}
	} else if mem := instance.Memory(); mem != nil {
		m.memory = &WazeroMemory{mem: mem}
	}
	if allocFn := instance.ExportedFunction("malloc"); allocFn != nil {
		m.alloc = &wazeroAllocator{
			allocFn:  allocFn,
			freeFn:   instance.ExportedFunction("free"),
			mu:       &m.mu,
			stackBuf: m.stackBuf,
		}
	}

	Logger().Debug("instantiated wasm module",
		zap.String("name", name),
		zap.Bool("memory", m.memory != nil),
		zap.Bool("allocator", m.alloc != nil))
	return m, nil
}

func (b *WasmBackend) Close(ctx context.Context) error {
	return b.runtime.Close(ctx)
}

// WasmModule is an instantiated module. Calls into it are serialized.
type WasmModule struct {
	backend  *WasmBackend
	compiled wazero.CompiledModule
	instance api.Module
	memory   *WazeroMemory
	alloc    *wazeroAllocator
	space    *value.Space
	handles  map[string]uint64
	name     string
	funcs    []api.Function
	stackBuf []uint64
	mu       sync.Mutex
	spaceMu  sync.Mutex
}

// Lookup resolves an export. Functions get opaque handles; an exported i32
// global is a data symbol whose value is its address.
func (m *WasmModule) Lookup(_ context.Context, symbol string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.instance == nil {
		return 0, fmt.Errorf("module %q is closed", m.name)
	}
	if h, ok := m.handles[symbol]; ok {
		return h, nil
	}
	if fn := m.instance.ExportedFunction(symbol); fn != nil {
		h := funcHandleBase + uint64(len(m.funcs))
		m.funcs = append(m.funcs, fn)
		m.handles[symbol] = h
		debugf("function %s -> 0x%x", symbol, h)
		return h, nil
	}
	if g := m.instance.ExportedGlobal(symbol); g != nil {
		if g.Type() != api.ValueTypeI32 {
			return 0, fmt.Errorf("global %q is %s, not an i32 address", symbol, api.ValueTypeName(g.Type()))
		}
		addr := uint64(uint32(g.Get()))
		m.handles[symbol] = addr
		return addr, nil
	}
	return 0, fmt.Errorf("no export named %q", symbol)
}

// Memory returns the module's linear memory, or nil if it has none.
func (m *WasmModule) Memory() *WazeroMemory { return m.memory }

// Space returns the address space of the module's linear memory, laid out
// for wasm32. Allocation uses the module's malloc and free when exported.
func (m *WasmModule) Space() *value.Space {
	m.spaceMu.Lock()
	defer m.spaceMu.Unlock()
	if m.space == nil && m.memory != nil {
		var opts []value.Option
		if m.alloc != nil {
			opts = append(opts, value.WithAllocator(m.alloc))
		}
		m.space = value.NewSpace(m.memory, m.backend.layouts, opts...)
	}
	return m.space
}

func (m *WasmModule) function(addr uint64) (api.Function, bool) {
	if addr < funcHandleBase {
		return nil, false
	}
	idx := addr - funcHandleBase
	if idx >= uint64(len(m.funcs)) {
		return nil, false
	}
	return m.funcs[idx], true
}

// Call invokes the function behind addr with a lowered signature.
func (m *WasmModule) Call(ctx context.Context, addr uint64, sig *abi.Signature, args []abi.Arg) (abi.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.instance == nil {
		return abi.Result{}, fmt.Errorf("module %q is closed", m.name)
	}
	fn, ok := m.function(addr)
	if !ok {
		return abi.Result{}, errors.Unsupported(errors.PhaseInvoke,
			fmt.Sprintf("0x%x is not an exported function handle of %s", addr, m.name))
	}
	return m.call(ctx, fn, sig, args)
}

// NewCallback is not available: host functions cannot be added to a
// module's function table after instantiation.
func (m *WasmModule) NewCallback(sig *abi.Signature, _ func(args []uint64) uint64) (uint64, error) {
	return 0, errors.Unsupported(errors.PhaseInvoke, "callbacks into wasm32 module "+m.name+" ("+sig.String()+")")
}

func (m *WasmModule) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	if m.instance != nil {
		if err := m.instance.Close(ctx); err != nil {
			firstErr = err
		}
		m.instance = nil
	}
	if m.compiled != nil {
		if err := m.compiled.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		m.compiled = nil
	}
	m.funcs = nil
	m.handles = nil
	return firstErr
}

var (
	_ library.Backend = (*WasmBackend)(nil)
	_ library.Handle  = (*WasmModule)(nil)
)
