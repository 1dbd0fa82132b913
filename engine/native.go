//go:build (darwin || linux) && (amd64 || arm64)

package engine

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	"github.com/wippyai/cbinding"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
	"github.com/wippyai/cbinding/layout"
	"github.com/wippyai/cbinding/library"
	"github.com/wippyai/cbinding/value"
)

func libcName() string {
	if runtime.GOOS == "darwin" {
		return "/usr/lib/libSystem.B.dylib"
	}
	return "libc.so.6"
}

// NativeBackend opens host shared objects with dlopen and calls into them
// through purego. Every library shares the process address space.
type NativeBackend struct {
	layouts      *layout.Engine
	space        *value.Space
	malloc       func(size uintptr) uintptr
	alignedAlloc func(align, size uintptr) uintptr
	free         func(ptr uintptr)
	funcs        sync.Map // callKey -> reflect.Value
	callbacks    []reflect.Value
	libc         uintptr
	mu           sync.Mutex
}

type callKey struct {
	shape string
	addr  uint64
}

// NewNativeBackend loads libc for allocation and returns the backend.
func NewNativeBackend() (*NativeBackend, error) {
	libc, err := purego.Dlopen(libcName(), purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, errors.Load("open "+libcName(), err)
	}
	b := &NativeBackend{
		layouts: layout.NewEngine(layout.Host()),
		libc:    libc,
	}
	purego.RegisterLibFunc(&b.malloc, libc, "malloc")
	purego.RegisterLibFunc(&b.alignedAlloc, libc, "aligned_alloc")
	purego.RegisterLibFunc(&b.free, libc, "free")
	b.space = value.NewSpace(nativeMemory{}, b.layouts, value.WithAllocator(b))
	return b, nil
}

func (b *NativeBackend) Name() string { return "native" }

// Layouts returns the host layout engine.
func (b *NativeBackend) Layouts() *layout.Engine { return b.layouts }

// Space returns the process address space.
func (b *NativeBackend) Space() *value.Space { return b.space }

func (b *NativeBackend) Open(_ context.Context, name string) (library.Handle, error) {
	h, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, err
	}
	return &NativeLibrary{backend: b, name: name, handle: h}, nil
}

func (b *NativeBackend) Alloc(size, align uint64) (uint64, error) {
	if size == 0 {
		size = 1
	}
	var p uintptr
	if align > 16 {
		p = b.alignedAlloc(uintptr(align), uintptr(abi.AlignTo(size, align)))
	} else {
		p = b.malloc(uintptr(size))
	}
	if p == 0 {
		Logger().Warn("native allocation failed", zap.Uint64("size", size), zap.Uint64("align", align))
		return 0, errors.AllocationFailed(errors.PhaseInvoke, size, align)
	}
	return uint64(p), nil
}

func (b *NativeBackend) Free(addr, _, _ uint64) {
	if addr != 0 {
		b.free(uintptr(addr))
	}
}

func (b *NativeBackend) Close(context.Context) error {
	return purego.Dlclose(b.libc)
}

// NativeLibrary is a dlopen handle.
type NativeLibrary struct {
	backend *NativeBackend
	name    string
	handle  uintptr
}

func (l *NativeLibrary) Lookup(_ context.Context, symbol string) (uint64, error) {
	addr, err := purego.Dlsym(l.handle, symbol)
	if err != nil {
		return 0, err
	}
	return uint64(addr), nil
}

func (l *NativeLibrary) Close(context.Context) error {
	return purego.Dlclose(l.handle)
}

// Space returns the process address space.
func (l *NativeLibrary) Space() *value.Space { return l.backend.space }

// Call invokes addr. Register placement and callee cleanup need no action:
// 64-bit targets have a single C convention.
func (l *NativeLibrary) Call(ctx context.Context, addr uint64, sig *abi.Signature, args []abi.Arg) (abi.Result, error) {
	if err := ctx.Err(); err != nil {
		return abi.Result{}, err
	}
	if len(args) != len(sig.Params) {
		return abi.Result{}, errors.ConventionMismatch(sig.Name,
			"expected %d arguments, got %d", len(sig.Params), len(args))
	}
	if sig.Variadic && runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return abi.Result{}, errors.Unsupported(errors.PhaseInvoke, "variadic calls on darwin/arm64")
	}
	// purego does not set AL to the vector register count, so variadic
	// callees on amd64 read garbage for floating-point arguments.
	if sig.Variadic && runtime.GOARCH == "amd64" {
		for _, p := range sig.Params[min(sig.Fixed, len(sig.Params)):] {
			if p.Class.IsFloat() {
				return abi.Result{}, errors.Unsupported(errors.PhaseInvoke, "floating-point variadic arguments on amd64")
			}
		}
	}
	if addr == 0 {
		return abi.Result{}, errors.ConventionMismatch(sig.Name, "call through null function pointer")
	}

	fnType, shape, err := goFuncType(sig)
	if err != nil {
		return abi.Result{}, err
	}
	fn := l.backend.function(addr, fnType, shape)

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = toGo(fnType.In(i), a.Raw)
	}
	out := fn.Call(in)
	if len(out) == 0 {
		return abi.Result{}, nil
	}
	return abi.Result{Raw: fromGo(out[0])}, nil
}

// NewCallback exposes fn as a C function pointer with the given signature.
// purego never releases callbacks, so they live as long as the process.
func (l *NativeLibrary) NewCallback(sig *abi.Signature, fn func(args []uint64) uint64) (uint64, error) {
	if sig.Variadic {
		return 0, errors.Unsupported(errors.PhaseInvoke, "variadic callbacks")
	}
	fnType, _, err := goFuncType(sig)
	if err != nil {
		return 0, err
	}
	impl := reflect.MakeFunc(fnType, func(in []reflect.Value) []reflect.Value {
		raw := make([]uint64, len(in))
		for i, v := range in {
			raw[i] = fromGo(v)
		}
		ret := fn(raw)
		if fnType.NumOut() == 0 {
			return nil
		}
		return []reflect.Value{toGo(fnType.Out(0), ret)}
	})

	b := l.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	addr := purego.NewCallback(impl.Interface())
	b.callbacks = append(b.callbacks, impl)
	Logger().Debug("registered callback", zap.String("signature", sig.String()), zap.Uintptr("addr", addr))
	return uint64(addr), nil
}

func (b *NativeBackend) function(addr uint64, fnType reflect.Type, shape string) reflect.Value {
	key := callKey{addr: addr, shape: shape}
	if fn, ok := b.funcs.Load(key); ok {
		return fn.(reflect.Value)
	}
	ptr := reflect.New(fnType)
	purego.RegisterFunc(ptr.Interface(), uintptr(addr))
	fn, _ := b.funcs.LoadOrStore(key, ptr.Elem())
	return fn.(reflect.Value)
}

// goFuncType maps a lowered signature onto the Go func type purego calls.
func goFuncType(sig *abi.Signature) (reflect.Type, string, error) {
	var shape strings.Builder
	in := make([]reflect.Type, len(sig.Params))
	for i, p := range sig.Params {
		t, err := goType(sig.Name, p)
		if err != nil {
			return nil, "", err
		}
		in[i] = t
		shape.WriteString(t.String())
		shape.WriteByte(',')
	}
	var out []reflect.Type
	if sig.Result.Class != abi.ClassVoid {
		t, err := goType(sig.Name, sig.Result)
		if err != nil {
			return nil, "", err
		}
		out = append(out, t)
		shape.WriteString("->" + t.String())
	}
	return reflect.FuncOf(in, out, false), shape.String(), nil
}

var (
	typeInt8    = reflect.TypeFor[int8]()
	typeInt16   = reflect.TypeFor[int16]()
	typeInt32   = reflect.TypeFor[int32]()
	typeInt64   = reflect.TypeFor[int64]()
	typeUint8   = reflect.TypeFor[uint8]()
	typeUint16  = reflect.TypeFor[uint16]()
	typeUint32  = reflect.TypeFor[uint32]()
	typeUint64  = reflect.TypeFor[uint64]()
	typeFloat32 = reflect.TypeFor[float32]()
	typeFloat64 = reflect.TypeFor[float64]()
	typeUintptr = reflect.TypeFor[uintptr]()
)

func goType(fn string, p abi.Param) (reflect.Type, error) {
	switch p.Class {
	case abi.ClassF32:
		return typeFloat32, nil
	case abi.ClassF64:
		return typeFloat64, nil
	case abi.ClassPtr:
		return typeUintptr, nil
	case abi.ClassI32, abi.ClassI64:
		signed := [...]reflect.Type{1: typeInt8, 2: typeInt16, 4: typeInt32, 8: typeInt64}
		unsigned := [...]reflect.Type{1: typeUint8, 2: typeUint16, 4: typeUint32, 8: typeUint64}
		if p.Size > 8 || signed[p.Size] == nil {
			return nil, errors.ConventionMismatch(fn, "no machine integer of %d bytes", p.Size)
		}
		if p.Signed {
			return signed[p.Size], nil
		}
		return unsigned[p.Size], nil
	case abi.ClassAgg:
		return nil, errors.Unsupported(errors.PhaseInvoke,
			fmt.Sprintf("%s: aggregate of %d bytes by value on the native backend", fn, p.Size))
	}
	return nil, errors.ConventionMismatch(fn, "cannot lower %s", p.Class)
}

func toGo(t reflect.Type, raw uint64) reflect.Value {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v.SetInt(int64(raw))
	case reflect.Float32:
		v.SetFloat(float64(abi.DecodeF32(raw)))
	case reflect.Float64:
		v.SetFloat(abi.DecodeF64(raw))
	default:
		v.SetUint(raw)
	}
	return v
}

func fromGo(v reflect.Value) uint64 {
	switch v.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(v.Int())
	case reflect.Float32:
		return abi.EncodeF32(float32(v.Float()))
	case reflect.Float64:
		return abi.EncodeF64(v.Float())
	}
	return v.Uint()
}

// nativeMemory is the process address space.
type nativeMemory struct{}

func (nativeMemory) bytes(addr, length uint64) ([]byte, error) {
	if addr == 0 {
		return nil, fmt.Errorf("null address")
	}
	if length == 0 {
		return []byte{}, nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), length), nil
}

func (m nativeMemory) Read(addr, length uint64) ([]byte, error) { return m.bytes(addr, length) }

func (m nativeMemory) Write(addr uint64, data []byte) error {
	dst, err := m.bytes(addr, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}

func (m nativeMemory) ReadU8(addr uint64) (uint8, error) {
	b, err := m.bytes(addr, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (nativeMemory) ReadU16(addr uint64) (uint16, error) {
	if addr == 0 {
		return 0, fmt.Errorf("null address")
	}
	return *(*uint16)(unsafe.Pointer(uintptr(addr))), nil
}

func (nativeMemory) ReadU32(addr uint64) (uint32, error) {
	if addr == 0 {
		return 0, fmt.Errorf("null address")
	}
	return *(*uint32)(unsafe.Pointer(uintptr(addr))), nil
}

func (nativeMemory) ReadU64(addr uint64) (uint64, error) {
	if addr == 0 {
		return 0, fmt.Errorf("null address")
	}
	return *(*uint64)(unsafe.Pointer(uintptr(addr))), nil
}

func (m nativeMemory) WriteU8(addr uint64, v uint8) error { return m.Write(addr, []byte{v}) }

func (nativeMemory) WriteU16(addr uint64, v uint16) error {
	if addr == 0 {
		return fmt.Errorf("null address")
	}
	*(*uint16)(unsafe.Pointer(uintptr(addr))) = v
	return nil
}

func (nativeMemory) WriteU32(addr uint64, v uint32) error {
	if addr == 0 {
		return fmt.Errorf("null address")
	}
	*(*uint32)(unsafe.Pointer(uintptr(addr))) = v
	return nil
}

func (nativeMemory) WriteU64(addr uint64, v uint64) error {
	if addr == 0 {
		return fmt.Errorf("null address")
	}
	*(*uint64)(unsafe.Pointer(uintptr(addr))) = v
	return nil
}

func (l *NativeLibrary) String() string {
	return l.name + "@0x" + strconv.FormatUint(uint64(l.handle), 16)
}

var (
	_ library.Backend    = (*NativeBackend)(nil)
	_ library.Handle     = (*NativeLibrary)(nil)
	_ cbinding.Memory    = nativeMemory{}
	_ cbinding.Allocator = (*NativeBackend)(nil)
)
