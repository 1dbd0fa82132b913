package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"

	cerrors "github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
	"github.com/wippyai/cbinding/testbed"
)

func openFixture(t *testing.T) (*WasmBackend, *WasmModule) {
	t.Helper()
	ctx := context.Background()

	backend, err := NewWasmBackend(ctx, &WasmConfig{
		Sources: map[string][]byte{"fixture": testbed.CModule},
	})
	if err != nil {
		t.Fatalf("NewWasmBackend failed: %v", err)
	}
	t.Cleanup(func() { backend.Close(ctx) })

	h, err := backend.Open(ctx, "fixture")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { h.Close(ctx) })
	return backend, h.(*WasmModule)
}

func i32(v int32) abi.Arg {
	return abi.Arg{Param: abi.Param{Class: abi.ClassI32, Signed: true, Size: 4, Align: 4}, Raw: uint64(int64(v))}
}

func lookup(t *testing.T, m *WasmModule, name string) uint64 {
	t.Helper()
	addr, err := m.Lookup(context.Background(), name)
	if err != nil {
		t.Fatalf("Lookup(%q) failed: %v", name, err)
	}
	return addr
}

func TestNewWasmBackend(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg  *WasmConfig
		name string
	}{
		{nil, "nil config"},
		{&WasmConfig{}, "default config"},
		{&WasmConfig{MemoryLimitPages: 256}, "16MB limit"},
		{&WasmConfig{WASI: true}, "wasi"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend, err := NewWasmBackend(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("NewWasmBackend failed: %v", err)
			}
			defer backend.Close(ctx)

			if backend.runtime == nil {
				t.Error("backend runtime should not be nil")
			}
			if backend.Layouts().Target().PointerSize != 4 {
				t.Errorf("pointer size = %d, want 4", backend.Layouts().Target().PointerSize)
			}
		})
	}
}

func TestWasmBackend_InitWASIOnce(t *testing.T) {
	ctx := context.Background()
	backend, err := NewWasmBackend(ctx, &WasmConfig{WASI: true})
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close(ctx)

	for i := 0; i < 3; i++ {
		if err := backend.InitWASI(ctx); err != nil {
			t.Fatalf("InitWASI #%d failed: %v", i, err)
		}
	}
	if backend.runtime.Module(wasiModuleName) == nil {
		t.Error("WASI module not instantiated")
	}
}

func TestWasmBackend_OpenMissing(t *testing.T) {
	ctx := context.Background()
	backend, err := NewWasmBackend(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close(ctx)

	if _, err := backend.Open(ctx, "/nonexistent/lib.wasm"); err == nil {
		t.Error("expected error opening missing module")
	}
}

func TestWasmModule_Lookup(t *testing.T) {
	_, m := openFixture(t)

	add := lookup(t, m, "add")
	if add < funcHandleBase {
		t.Errorf("function handle 0x%x below 0x%x", add, uint64(funcHandleBase))
	}
	if again := lookup(t, m, "add"); again != add {
		t.Errorf("second lookup = 0x%x, want 0x%x", again, add)
	}
	if sum := lookup(t, m, "sum"); sum == add {
		t.Error("distinct functions share a handle")
	}
	if counter := lookup(t, m, "counter"); counter != testbed.CounterAddr {
		t.Errorf("counter = %d, want %d", counter, testbed.CounterAddr)
	}
	if _, err := m.Lookup(context.Background(), "nope"); err == nil {
		t.Error("expected error for missing export")
	}
}

func TestWasmModule_Memory(t *testing.T) {
	_, m := openFixture(t)

	v, err := m.Memory().ReadU32(testbed.CounterAddr)
	if err != nil {
		t.Fatal(err)
	}
	if v != testbed.CounterValue {
		t.Errorf("counter = %d, want %d", v, testbed.CounterValue)
	}
	if _, err := m.Memory().Read(1<<40, 4); err == nil {
		t.Error("expected error for address beyond wasm32")
	}
	if m.Memory().Size() != 65536 {
		t.Errorf("memory size = %d, want 65536", m.Memory().Size())
	}

	space := m.Space()
	if space == nil {
		t.Fatal("Space() = nil")
	}
	addr, err := space.Allocator().Alloc(8, 4)
	if err != nil {
		t.Fatal(err)
	}
	if addr != testbed.HeapBase {
		t.Errorf("first malloc = %d, want %d", addr, testbed.HeapBase)
	}
}

func TestWasmModule_Call(t *testing.T) {
	_, m := openFixture(t)
	ctx := context.Background()

	pair := abi.Param{Class: abi.ClassAgg, Size: 8, Align: 4}
	pairBytes := []byte{7, 0, 0, 0, 5, 0, 0, 0}

	tests := []struct {
		name   string
		symbol string
		sig    *abi.Signature
		args   []abi.Arg
		raw    uint64
		data   []byte
	}{
		{
			name:   "cdecl add",
			symbol: "add",
			sig:    &abi.Signature{Name: "add", Params: []abi.Param{i32(0).Param, i32(0).Param}, Result: i32(0).Param, Fixed: 2},
			args:   []abi.Arg{i32(2), i32(3)},
			raw:    5,
		},
		{
			name:   "negative result sign-extends",
			symbol: "add",
			sig:    &abi.Signature{Name: "add", Params: []abi.Param{i32(0).Param, i32(0).Param}, Result: i32(0).Param, Fixed: 2},
			args:   []abi.Arg{i32(-2), i32(-3)},
			raw:    bits(-5),
		},
		{
			name:   "single scalar aggregate result",
			symbol: "add",
			sig: &abi.Signature{Name: "add", Params: []abi.Param{i32(0).Param, i32(0).Param}, Fixed: 2,
				Result: abi.Param{Class: abi.ClassAgg, Size: 4, Align: 4, Scalar: abi.ClassI32}},
			args: []abi.Arg{i32(40), i32(2)},
			raw:  42,
			data: []byte{42, 0, 0, 0},
		},
		{
			name:   "aggregate result through sret",
			symbol: "make_pair",
			sig:    &abi.Signature{Name: "make_pair", Params: []abi.Param{i32(0).Param, i32(0).Param}, Result: pair, Fixed: 2},
			args:   []abi.Arg{i32(1), i32(2)},
			data:   []byte{1, 0, 0, 0, 2, 0, 0, 0},
		},
		{
			name:   "aggregate argument passed indirectly",
			symbol: "pair_sum",
			sig:    &abi.Signature{Name: "pair_sum", Params: []abi.Param{pair}, Result: i32(0).Param, Fixed: 1},
			args:   []abi.Arg{{Param: pair, Data: pairBytes}},
			raw:    12,
		},
		{
			name:   "variadic buffer",
			symbol: "sum",
			sig: &abi.Signature{Name: "sum", Fixed: 1, Variadic: true, Result: i32(0).Param,
				Params: []abi.Param{i32(0).Param, i32(0).Param, i32(0).Param, i32(0).Param}},
			args: []abi.Arg{i32(3), i32(10), i32(20), i32(12)},
			raw:  42,
		},
		{
			name:   "variadic with no trailing arguments",
			symbol: "sum",
			sig:    &abi.Signature{Name: "sum", Fixed: 1, Variadic: true, Result: i32(0).Param, Params: []abi.Param{i32(0).Param}},
			args:   []abi.Arg{i32(0)},
			raw:    0,
		},
		{
			name:   "floating point",
			symbol: "scale",
			sig: &abi.Signature{Name: "scale", Fixed: 2,
				Params: []abi.Param{{Class: abi.ClassF64, Size: 8, Align: 8}, {Class: abi.ClassF32, Size: 4, Align: 4}},
				Result: abi.Param{Class: abi.ClassF64, Size: 8, Align: 8}},
			args: []abi.Arg{
				{Param: abi.Param{Class: abi.ClassF64, Size: 8, Align: 8}, Raw: abi.EncodeF64(1.5)},
				{Param: abi.Param{Class: abi.ClassF32, Size: 4, Align: 4}, Raw: abi.EncodeF32(4)},
			},
			raw: abi.EncodeF64(6),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Call(ctx, lookup(t, m, tt.symbol), tt.sig, tt.args)
			if err != nil {
				t.Fatalf("Call failed: %v", err)
			}
			if res.Raw != tt.raw {
				t.Errorf("raw = %#x, want %#x", res.Raw, tt.raw)
			}
			if tt.data != nil && !bytes.Equal(res.Data, tt.data) {
				t.Errorf("data = %v, want %v", res.Data, tt.data)
			}
		})
	}
}

func TestWasmModule_SignatureMismatch(t *testing.T) {
	_, m := openFixture(t)
	ctx := context.Background()
	add := lookup(t, m, "add")

	tests := []struct {
		name string
		sig  *abi.Signature
		args []abi.Arg
	}{
		{
			name: "extra parameter",
			sig:  &abi.Signature{Name: "add", Params: []abi.Param{i32(0).Param, i32(0).Param, i32(0).Param}, Result: i32(0).Param, Fixed: 3},
			args: []abi.Arg{i32(1), i32(2), i32(3)},
		},
		{
			name: "wrong result class",
			sig:  &abi.Signature{Name: "add", Params: []abi.Param{i32(0).Param, i32(0).Param}, Result: abi.Param{Class: abi.ClassF64, Size: 8}, Fixed: 2},
			args: []abi.Arg{i32(1), i32(2)},
		},
		{
			name: "argument count differs from signature",
			sig:  &abi.Signature{Name: "add", Params: []abi.Param{i32(0).Param, i32(0).Param}, Result: i32(0).Param, Fixed: 2},
			args: []abi.Arg{i32(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Call(ctx, add, tt.sig, tt.args)
			if !errors.Is(err, cerrors.ErrConventionMismatch) {
				t.Errorf("err = %v, want convention mismatch", err)
			}
		})
	}
}

func TestWasmModule_CallUnknownAddress(t *testing.T) {
	_, m := openFixture(t)
	sig := &abi.Signature{Name: "f"}

	_, err := m.Call(context.Background(), testbed.CounterAddr, sig, nil)
	if !errors.Is(err, cerrors.ErrUnsupported) {
		t.Errorf("err = %v, want unsupported", err)
	}
	if _, err := m.NewCallback(sig, nil); !errors.Is(err, cerrors.ErrUnsupported) {
		t.Errorf("NewCallback err = %v, want unsupported", err)
	}
}

func TestWasmModule_Close(t *testing.T) {
	_, m := openFixture(t)
	ctx := context.Background()
	add := lookup(t, m, "add")

	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	sig := &abi.Signature{Name: "add", Params: []abi.Param{i32(0).Param, i32(0).Param}, Result: i32(0).Param, Fixed: 2}
	if _, err := m.Call(ctx, add, sig, []abi.Arg{i32(1), i32(2)}); err == nil {
		t.Error("expected error calling into closed module")
	}
	if _, err := m.Lookup(ctx, "add"); err == nil {
		t.Error("expected error looking up in closed module")
	}
}

// bits returns the two's-complement bit pattern of v as a raw register value.
func bits(v int64) uint64 { return uint64(v) }
