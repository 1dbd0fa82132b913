package invoke

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wippyai/cbinding"
	"github.com/wippyai/cbinding/ctype"
	cerrors "github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
	"github.com/wippyai/cbinding/layout"
	"github.com/wippyai/cbinding/library"
	"github.com/wippyai/cbinding/value"
)

// fakeHandle records lowered calls and answers them from ret.
type fakeHandle struct {
	space    *value.Space
	syms     map[string]uint64
	ret      abi.Result
	sig      *abi.Signature
	args     []abi.Arg
	addr     uint64
	callback func([]uint64) uint64
}

func (h *fakeHandle) Lookup(_ context.Context, symbol string) (uint64, error) {
	addr, ok := h.syms[symbol]
	if !ok {
		return 0, fmt.Errorf("undefined symbol: %s", symbol)
	}
	return addr, nil
}

func (h *fakeHandle) Close(context.Context) error { return nil }
func (h *fakeHandle) Space() *value.Space         { return h.space }

func (h *fakeHandle) Call(_ context.Context, addr uint64, sig *abi.Signature, args []abi.Arg) (abi.Result, error) {
	h.addr, h.sig, h.args = addr, sig, args
	return h.ret, nil
}

func (h *fakeHandle) NewCallback(_ *abi.Signature, fn func([]uint64) uint64) (uint64, error) {
	h.callback = fn
	return 0xC0DE, nil
}

type fakeBackend struct{ h *fakeHandle }

func (b *fakeBackend) Name() string { return "fake" }
func (b *fakeBackend) Open(context.Context, string) (library.Handle, error) {
	return b.h, nil
}

func newFake(t *testing.T, target layout.Target) (*fakeHandle, *library.Library) {
	t.Helper()
	h := &fakeHandle{
		space: value.NewSpace(cbinding.NewArena(0), layout.NewEngine(target)),
		syms:  map[string]uint64{"f": 0x100, "g": 0x200},
	}
	r := library.NewResolver(&fakeBackend{h: h})
	t.Cleanup(func() { r.Close(context.Background()) })
	lib, err := r.Declare("libfake")
	if err != nil {
		t.Fatal(err)
	}
	return h, lib
}

func bind(t *testing.T, lib *library.Library, symbol string, fn *ctype.Function) *Function {
	t.Helper()
	f, err := NewFunction(lib, symbol, fn)
	if err != nil {
		t.Fatalf("NewFunction(%s): %v", symbol, err)
	}
	return f
}

func params(ts ...ctype.Type) []ctype.Param {
	out := make([]ctype.Param, len(ts))
	for i, t := range ts {
		out[i] = ctype.Param{Type: t}
	}
	return out
}

func TestCallArguments(t *testing.T) {
	ctx := context.Background()
	h, lib := newFake(t, layout.LP64)
	charp := ctype.PointerTo(ctype.ConstOf(ctype.SChar))

	tests := []struct {
		name string
		fn   *ctype.Function
		args []any
		raw  []uint64
	}{
		{"ints", &ctype.Function{Return: ctype.Int, Params: params(ctype.Int, ctype.UChar)}, []any{-3, uint8(200)}, []uint64{bits(-3), 200}},
		{"signed char sign-extends", &ctype.Function{Params: params(ctype.SChar)}, []any{int8(-1)}, []uint64{^uint64(0)}},
		{"exact int to double", &ctype.Function{Params: params(ctype.Double)}, []any{2}, []uint64{abi.EncodeF64(2)}},
		{"float32 to float", &ctype.Function{Params: params(ctype.Float)}, []any{float32(0.1)}, []uint64{abi.EncodeF32(0.1)}},
		{"exact float64 to float", &ctype.Function{Params: params(ctype.Float)}, []any{0.5}, []uint64{abi.EncodeF32(0.5)}},
		{"bool", &ctype.Function{Params: params(ctype.Bool)}, []any{true}, []uint64{1}},
		{"null pointer", &ctype.Function{Params: params(ctype.PointerTo(ctype.Int))}, []any{nil}, []uint64{0}},
		{"uintptr", &ctype.Function{Params: params(ctype.PointerTo(ctype.Void))}, []any{uintptr(0x1234)}, []uint64{0x1234}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := bind(t, lib, "f", tt.fn)
			if _, err := f.Call(ctx, tt.args...); err != nil {
				t.Fatalf("Call failed: %v", err)
			}
			if h.addr != 0x100 {
				t.Errorf("called 0x%x, want 0x100", h.addr)
			}
			for i, want := range tt.raw {
				if h.args[i].Raw != want {
					t.Errorf("arg %d raw = %#x, want %#x", i, h.args[i].Raw, want)
				}
			}
		})
	}

	t.Run("string for char pointer", func(t *testing.T) {
		f := bind(t, lib, "f", &ctype.Function{Return: ctype.Int, Params: params(charp)})
		if _, err := f.Call(ctx, "hi"); err != nil {
			t.Fatal(err)
		}
		if h.args[0].Raw == 0 {
			t.Error("string argument passed as null")
		}
	})
}

func TestCallRejects(t *testing.T) {
	ctx := context.Background()
	_, lib := newFake(t, layout.LP64)

	tests := []struct {
		name string
		fn   *ctype.Function
		args []any
	}{
		{"too few", &ctype.Function{Params: params(ctype.Int, ctype.Int)}, []any{1}},
		{"too many", &ctype.Function{Params: params(ctype.Int)}, []any{1, 2}},
		{"variadic too few", &ctype.Function{Params: params(ctype.Int), Variadic: true}, nil},
		{"int overflow", &ctype.Function{Params: params(ctype.Int)}, []any{int64(1) << 40}},
		{"negative to unsigned", &ctype.Function{Params: params(ctype.UInt)}, []any{-1}},
		{"float to int", &ctype.Function{Params: params(ctype.Int)}, []any{1.5}},
		{"inexact float64 to float", &ctype.Function{Params: params(ctype.Float)}, []any{0.1}},
		{"int to bool", &ctype.Function{Params: params(ctype.Bool)}, []any{1}},
		{"string to int", &ctype.Function{Params: params(ctype.Int)}, []any{"1"}},
		{"string to int pointer", &ctype.Function{Params: params(ctype.PointerTo(ctype.Int))}, []any{"x"}},
		{"nil to int", &ctype.Function{Params: params(ctype.Int)}, []any{nil}},
		{"variadic struct", &ctype.Function{Params: params(ctype.Int), Variadic: true}, []any{1, struct{}{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := bind(t, lib, "f", tt.fn)
			_, err := f.Call(ctx, tt.args...)
			if !errors.Is(err, cerrors.ErrConventionMismatch) {
				t.Errorf("err = %v, want convention mismatch", err)
			}
		})
	}
}

func TestPointerArgumentTypes(t *testing.T) {
	ctx := context.Background()
	h, lib := newFake(t, layout.LP64)
	space := h.space

	ip, err := space.Alloc(ctype.Int, 7)
	if err != nil {
		t.Fatal(err)
	}
	dp, err := space.Alloc(ctype.Double)
	if err != nil {
		t.Fatal(err)
	}

	f := bind(t, lib, "f", &ctype.Function{Params: params(ctype.PointerTo(ctype.Int))})
	if _, err := f.Call(ctx, ip); err != nil {
		t.Fatalf("int * argument: %v", err)
	}
	if h.args[0].Raw != ip.Addr() {
		t.Errorf("raw = %#x, want %#x", h.args[0].Raw, ip.Addr())
	}
	if _, err := f.Call(ctx, dp); !errors.Is(err, cerrors.ErrConventionMismatch) {
		t.Errorf("double * for int *: err = %v, want convention mismatch", err)
	}

	arr := bind(t, lib, "f", &ctype.Function{Params: params(ctype.ArrayOf(ctype.Int, 4))})
	if _, err := arr.Call(ctx, ip); err != nil {
		t.Errorf("array parameter decays to pointer: %v", err)
	}
	if h.sig.Params[0].Class != abi.ClassPtr {
		t.Errorf("array parameter class = %s, want ptr", h.sig.Params[0].Class)
	}
}

func TestVariadicPromotions(t *testing.T) {
	ctx := context.Background()
	h, lib := newFake(t, layout.LP64)
	reg := ctype.NewRegistry(ctype.LP64)
	shortT, _ := reg.Lookup("short")

	sv, err := h.space.New(shortT, -2)
	if err != nil {
		t.Fatal(err)
	}

	fn := &ctype.Function{Return: ctype.Int, Params: params(ctype.PointerTo(ctype.ConstOf(ctype.SChar))), Variadic: true}
	f := bind(t, lib, "f", fn)
	_, err = f.Call(ctx, "%d", int8(1), uint32(2), 1<<40, float32(1.5), true, uint64(3), sv, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	want := []abi.Class{abi.ClassPtr, abi.ClassI32, abi.ClassI32, abi.ClassI64, abi.ClassF64, abi.ClassI32, abi.ClassI64, abi.ClassI32, abi.ClassPtr}
	if len(h.sig.Params) != len(want) {
		t.Fatalf("lowered %d params, want %d", len(h.sig.Params), len(want))
	}
	for i, c := range want {
		if h.sig.Params[i].Class != c {
			t.Errorf("param %d class = %s, want %s", i, h.sig.Params[i].Class, c)
		}
	}
	if !h.sig.Variadic || h.sig.Fixed != 1 {
		t.Errorf("variadic = %v fixed = %d, want true 1", h.sig.Variadic, h.sig.Fixed)
	}
	if h.sig.Params[2].Signed {
		t.Error("uint32 should promote to unsigned int")
	}
	if h.args[4].Raw != abi.EncodeF64(1.5) {
		t.Errorf("float32 promoted raw = %#x, want double 1.5", h.args[4].Raw)
	}
	if h.args[7].Raw != bits(-2) {
		t.Errorf("short value promoted raw = %#x, want -2", h.args[7].Raw)
	}
}

func TestConventionsReachBackend(t *testing.T) {
	ctx := context.Background()
	h, lib := newFake(t, layout.ILP32)
	obj := ctype.PointerTo(ctype.Void)

	tests := []struct {
		name      string
		fn        *ctype.Function
		args      []any
		conv      abi.Convention
		cleanup   bool
		registers []bool
	}{
		{
			name:      "cdecl",
			fn:        &ctype.Function{Params: params(ctype.Int, ctype.Int)},
			args:      []any{1, 2},
			conv:      abi.CDecl,
			registers: []bool{false, false},
		},
		{
			name:      "stdcall",
			fn:        &ctype.Function{Params: params(ctype.Int, ctype.Int), Convention: ctype.StdCall},
			args:      []any{1, 2},
			conv:      abi.StdCall,
			cleanup:   true,
			registers: []bool{false, false},
		},
		{
			name:      "fastcall",
			fn:        &ctype.Function{Params: params(ctype.Int, ctype.Double, ctype.LongLong, obj, ctype.Int), Convention: ctype.FastCall},
			args:      []any{1, 2.0, 3, nil, 5},
			conv:      abi.FastCall,
			cleanup:   true,
			registers: []bool{true, false, false, true, false},
		},
		{
			name:      "thiscall",
			fn:        &ctype.Function{Params: params(obj, ctype.Int), Convention: ctype.ThisCall},
			args:      []any{uintptr(0x10), 2},
			conv:      abi.ThisCall,
			cleanup:   true,
			registers: []bool{true, false},
		},
		{
			name:      "variadic stdcall",
			fn:        &ctype.Function{Params: params(ctype.Int), Variadic: true, Convention: ctype.StdCall},
			args:      []any{1, 2},
			conv:      abi.CDecl,
			registers: []bool{false, false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := bind(t, lib, "f", tt.fn)
			if _, err := f.Call(ctx, tt.args...); err != nil {
				t.Fatalf("Call failed: %v", err)
			}
			if h.sig.Convention != tt.conv {
				t.Errorf("convention = %s, want %s", h.sig.Convention, tt.conv)
			}
			if h.sig.CalleeCleanup != tt.cleanup {
				t.Errorf("callee cleanup = %v, want %v", h.sig.CalleeCleanup, tt.cleanup)
			}
			for i, reg := range tt.registers {
				if got := h.sig.Params[i].Placement == abi.PlaceRegister; got != reg {
					t.Errorf("param %d in register = %v, want %v", i, got, reg)
				}
			}
		})
	}
}

func TestThiscallValidation(t *testing.T) {
	_, lib := newFake(t, layout.ILP32)

	for name, fn := range map[string]*ctype.Function{
		"no parameters":     {Convention: ctype.ThisCall},
		"non-pointer first": {Params: params(ctype.Int), Convention: ctype.ThisCall},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewFunction(lib, "f", fn)
			if !errors.Is(err, cerrors.ErrConventionMismatch) {
				t.Errorf("err = %v, want convention mismatch", err)
			}
		})
	}
}

func TestResults(t *testing.T) {
	ctx := context.Background()
	h, lib := newFake(t, layout.LP64)
	reg := ctype.NewRegistry(ctype.LP64)
	pair, err := reg.DefineStruct("pair", []ctype.Field{
		{Name: "a", Type: ctype.Int},
		{Name: "b", Type: ctype.Int},
	}, ctype.Native)
	if err != nil {
		t.Fatal(err)
	}
	color, err := reg.DefineEnum("color", []ctype.Constant{{Name: "RED", Value: 0}, {Name: "BLUE", Value: -1}}, nil)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("void", func(t *testing.T) {
		h.ret = abi.Result{}
		got, err := bind(t, lib, "f", &ctype.Function{}).Call(ctx)
		if err != nil || got != nil {
			t.Errorf("got %v, %v; want nil, nil", got, err)
		}
	})

	t.Run("signed int", func(t *testing.T) {
		h.ret = abi.Result{Raw: uint64(0xFFFFFFFF)}
		got, err := bind(t, lib, "f", &ctype.Function{Return: ctype.Int}).Call(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != int64(-1) {
			t.Errorf("got %v (%T), want int64(-1)", got, got)
		}
	})

	t.Run("enum", func(t *testing.T) {
		h.ret = abi.Result{Raw: ^uint64(0)}
		got, err := bind(t, lib, "f", &ctype.Function{Return: color}).Call(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != int64(-1) {
			t.Errorf("got %v (%T), want int64(-1)", got, got)
		}
	})

	t.Run("double", func(t *testing.T) {
		h.ret = abi.Result{Raw: abi.EncodeF64(2.5)}
		got, err := bind(t, lib, "f", &ctype.Function{Return: ctype.Double}).Call(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != 2.5 {
			t.Errorf("got %v, want 2.5", got)
		}
	})

	t.Run("pointer", func(t *testing.T) {
		h.ret = abi.Result{Raw: 0x2000}
		got, err := bind(t, lib, "f", &ctype.Function{Return: ctype.PointerTo(pair)}).Call(ctx)
		if err != nil {
			t.Fatal(err)
		}
		p, ok := got.(value.Pointer)
		if !ok || p.Addr() != 0x2000 || p.Elem() != pair {
			t.Errorf("got %v, want struct pair * at 0x2000", got)
		}
	})

	t.Run("aggregate", func(t *testing.T) {
		h.ret = abi.Result{Data: []byte{1, 0, 0, 0, 2, 0, 0, 0}}
		got, err := bind(t, lib, "f", &ctype.Function{Return: pair}).Call(ctx)
		if err != nil {
			t.Fatal(err)
		}
		v, ok := got.(*value.Value)
		if !ok {
			t.Fatalf("got %T, want *value.Value", got)
		}
		if b, _ := v.Get("b"); b != int64(2) {
			t.Errorf("pair.b = %v, want 2", b)
		}
	})

	t.Run("aggregate argument", func(t *testing.T) {
		f := bind(t, lib, "f", &ctype.Function{Params: params(pair)})
		if _, err := f.Call(ctx, map[string]any{"a": 1, "b": 2}); err != nil {
			t.Fatal(err)
		}
		a := h.args[0]
		if a.Param.Class != abi.ClassAgg || len(a.Data) != 8 || a.Data[4] != 2 {
			t.Errorf("aggregate arg = %+v", a)
		}
	})
}

func TestUnresolvedAtFirstCall(t *testing.T) {
	ctx := context.Background()
	_, lib := newFake(t, layout.LP64)

	f, err := NewFunction(lib, "missing", &ctype.Function{})
	if err != nil {
		t.Fatalf("NewFunction should not resolve: %v", err)
	}
	if _, err := f.Call(ctx); !errors.Is(err, cerrors.ErrUnresolvedSymbol) {
		t.Errorf("err = %v, want unresolved symbol", err)
	}
}

func TestAddressAndFromPointer(t *testing.T) {
	ctx := context.Background()
	h, lib := newFake(t, layout.LP64)
	cb := &ctype.Function{Return: ctype.Int, Params: params(ctype.Int)}

	g := bind(t, lib, "g", cb)
	p, err := g.Address(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.Addr() != 0x200 || p.Elem() != cb {
		t.Errorf("Address = %v, want int (*)(int) at 0x200", p)
	}

	f := bind(t, lib, "f", &ctype.Function{Params: params(ctype.PointerTo(cb))})
	if _, err := f.Call(ctx, g); err != nil {
		t.Fatalf("passing a Function: %v", err)
	}
	if h.args[0].Raw != 0x200 {
		t.Errorf("function argument = %#x, want 0x200", h.args[0].Raw)
	}

	through, err := FromPointer(ctx, lib, p)
	if err != nil {
		t.Fatal(err)
	}
	h.ret = abi.Result{Raw: 9}
	got, err := through.Call(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if h.addr != 0x200 || got != int64(9) {
		t.Errorf("called 0x%x got %v, want 0x200 and 9", h.addr, got)
	}

	if _, err := FromPointer(ctx, lib, h.space.At(0x200, ctype.Int)); !errors.Is(err, cerrors.ErrConventionMismatch) {
		t.Errorf("non-function pointer: err = %v", err)
	}
	if _, err := FromPointer(ctx, lib, h.space.Null(cb)); !errors.Is(err, cerrors.ErrConventionMismatch) {
		t.Errorf("null function pointer: err = %v", err)
	}
}

func TestGlobal(t *testing.T) {
	ctx := context.Background()
	h, lib := newFake(t, layout.LP64)

	p, err := h.space.Alloc(ctype.Int, 42)
	if err != nil {
		t.Fatal(err)
	}
	h.syms["counter"] = p.Addr()
	h.syms["version"] = p.Addr()

	g, err := NewGlobal(lib, "counter", ctype.Int)
	if err != nil {
		t.Fatal(err)
	}
	if v, err := g.Load(ctx); err != nil || v != int64(42) {
		t.Fatalf("Load = %v, %v; want 42", v, err)
	}
	if err := g.Store(ctx, 7); err != nil {
		t.Fatal(err)
	}
	if v, _ := p.Load(); v != int64(7) {
		t.Errorf("memory = %v after Store, want 7", v)
	}

	ro, err := NewGlobal(lib, "version", ctype.ConstOf(ctype.Int))
	if err != nil {
		t.Fatal(err)
	}
	if err := ro.Store(ctx, 1); !errors.Is(err, cerrors.ErrWriteProtection) {
		t.Errorf("Store to const: err = %v, want write protection", err)
	}

	missing, _ := NewGlobal(lib, "nope", ctype.Int)
	if _, err := missing.Load(ctx); !errors.Is(err, cerrors.ErrUnresolvedSymbol) {
		t.Errorf("err = %v, want unresolved symbol", err)
	}
	if _, err := NewGlobal(lib, "v", ctype.Void); !errors.Is(err, cerrors.ErrDefinition) {
		t.Errorf("void global: err = %v, want definition error", err)
	}
}

func TestRegisterCallback(t *testing.T) {
	ctx := context.Background()
	h, lib := newFake(t, layout.LP64)
	fnType := &ctype.Function{Return: ctype.Int, Params: params(ctype.Int, ctype.Double)}

	var seen []any
	p, err := RegisterCallback(ctx, lib, fnType, func(args []any) (any, error) {
		seen = args
		return args[0].(int64) * 2, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.Addr() != 0xC0DE || p.Elem() != fnType {
		t.Errorf("callback pointer = %v", p)
	}

	out := h.callback([]uint64{bits(-21), abi.EncodeF64(0.5)})
	if int32(out) != -42 {
		t.Errorf("callback returned %d, want -42", int32(out))
	}
	if len(seen) != 2 || seen[0] != int64(-21) || seen[1] != 0.5 {
		t.Errorf("callback saw %v", seen)
	}

	failing, err := RegisterCallback(ctx, lib, fnType, func([]any) (any, error) {
		return nil, errors.New("boom")
	})
	if err != nil || failing.IsNull() {
		t.Fatal(err)
	}
	if out := h.callback([]uint64{1, 0}); out != 0 {
		t.Errorf("failing callback returned %d, want 0", out)
	}
}

func TestReleasedLibrary(t *testing.T) {
	ctx := context.Background()
	h, lib := newFake(t, layout.LP64)

	p, err := h.space.Alloc(ctype.Int, 5)
	if err != nil {
		t.Fatal(err)
	}
	h.syms["counter"] = p.Addr()

	f := bind(t, lib, "f", &ctype.Function{Return: ctype.Int})
	g, err := NewGlobal(lib, "counter", ctype.Int)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Call(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Load(ctx); err != nil {
		t.Fatal(err)
	}
	addr, _ := f.Address(ctx)
	through, err := FromPointer(ctx, lib, addr)
	if err != nil {
		t.Fatal(err)
	}

	if err := lib.Release(ctx); err != nil {
		t.Fatal(err)
	}
	h.addr = 0

	isInvalid := func(err error) bool {
		var e *cerrors.Error
		return errors.As(err, &e) && e.Kind == cerrors.KindInvalidInput
	}
	if _, err := f.Call(ctx); !isInvalid(err) {
		t.Errorf("call after release: err = %v, want invalid input", err)
	}
	if _, err := through.Call(ctx); !isInvalid(err) {
		t.Errorf("pointer call after release: err = %v, want invalid input", err)
	}
	if _, err := g.Load(ctx); !isInvalid(err) {
		t.Errorf("global after release: err = %v, want invalid input", err)
	}
	if h.addr != 0 {
		t.Errorf("released library was called at 0x%x", h.addr)
	}
	if lib.IsOpen() {
		t.Error("released library reopened")
	}
}

// bits returns the two's-complement bit pattern of v as a raw register value.
func bits(v int64) uint64 { return uint64(v) }
