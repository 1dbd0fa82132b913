package engine

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
)

// Lowering to the wasm32 basic C ABI as emitted by clang:
//
//	C value                         wasm
//	─────────────────────────────────────────────
//	int, pointer, enum, _Bool       i32
//	long long                       i64
//	float / double                  f32 / f64
//	single-scalar struct/union      the scalar
//	other struct/union argument     i32 pointer to a caller copy
//	other struct/union result       leading i32 sret pointer, no result
//	variadic arguments              trailing i32 pointer to a packed buffer
//
// Variadic slots are 4-byte aligned at least and take their own alignment
// beyond that; aggregates in them travel by pointer unless single-scalar.

// wasmCall is one call being marshaled; temporaries are freed after it.
type wasmCall struct {
	m      *WasmModule
	ctx    context.Context
	name   string
	params []uint64
	types  []api.ValueType
	temps  []uint64
}

func wasmType(c abi.Class) api.ValueType {
	switch c {
	case abi.ClassI64:
		return api.ValueTypeI64
	case abi.ClassF32:
		return api.ValueTypeF32
	case abi.ClassF64:
		return api.ValueTypeF64
	}
	return api.ValueTypeI32
}

// direct reports whether an aggregate travels as its single scalar.
func direct(p abi.Param) bool {
	return p.Class == abi.ClassAgg && p.Scalar != abi.ClassVoid
}

// scalarRaw reads the single scalar of an aggregate from its bytes.
func scalarRaw(data []byte) uint64 {
	var buf [8]byte
	copy(buf[:], data)
	return binary.LittleEndian.Uint64(buf[:])
}

func (c *wasmCall) temp(data []byte, align uint64) (uint64, error) {
	addr, err := c.m.alloc.alloc(c.ctx, uint64(len(data)), align)
	if err != nil {
		return 0, err
	}
	c.temps = append(c.temps, addr)
	if len(data) > 0 {
		if err := c.m.memory.Write(addr, data); err != nil {
			return 0, err
		}
	}
	return addr, nil
}

func (c *wasmCall) release() {
	if c.m.alloc == nil {
		return
	}
	for _, addr := range c.temps {
		c.m.alloc.free(c.ctx, addr, 0)
	}
	c.temps = nil
}

func (c *wasmCall) push(t api.ValueType, raw uint64) {
	if t == api.ValueTypeI32 || t == api.ValueTypeF32 {
		raw = uint64(uint32(raw))
	}
	c.params = append(c.params, raw)
	c.types = append(c.types, t)
}

func (c *wasmCall) needAlloc(what string) error {
	if c.m.alloc == nil || c.m.memory == nil {
		return errors.ConventionMismatch(c.name,
			"%s needs linear memory and an exported malloc in %s", what, c.m.name)
	}
	return nil
}

func (c *wasmCall) arg(a abi.Arg) error {
	switch {
	case direct(a.Param):
		c.push(wasmType(a.Param.Scalar), scalarRaw(a.Data))
	case a.Param.Class == abi.ClassAgg:
		if err := c.needAlloc("aggregate argument"); err != nil {
			return err
		}
		addr, err := c.temp(a.Data, a.Param.Align)
		if err != nil {
			return err
		}
		c.push(api.ValueTypeI32, addr)
	default:
		c.push(wasmType(a.Param.Class), a.Raw)
	}
	return nil
}

// varargs packs trailing arguments into a buffer and pushes its address.
func (c *wasmCall) varargs(args []abi.Arg) error {
	if len(args) == 0 {
		c.push(api.ValueTypeI32, 0)
		return nil
	}
	if err := c.needAlloc("variadic call"); err != nil {
		return err
	}

	var buf []byte
	for _, a := range args {
		size, align := uint64(4), uint64(4)
		var raw []byte
		switch {
		case direct(a.Param):
			size, align = a.Param.Size, max(a.Param.Align, 4)
			raw = a.Data
		case a.Param.Class == abi.ClassAgg:
			addr, err := c.temp(a.Data, a.Param.Align)
			if err != nil {
				return err
			}
			raw = binary.LittleEndian.AppendUint32(nil, uint32(addr))
		case a.Param.Class == abi.ClassI64 || a.Param.Class == abi.ClassF64:
			size, align = 8, 8
			raw = binary.LittleEndian.AppendUint64(nil, a.Raw)
		default:
			raw = binary.LittleEndian.AppendUint32(nil, uint32(a.Raw))
		}
		off := abi.AlignTo(uint64(len(buf)), align)
		end := off + max(size, 4)
		for uint64(len(buf)) < end {
			buf = append(buf, 0)
		}
		copy(buf[off:], raw)
	}

	addr, err := c.temp(buf, 16)
	if err != nil {
		return err
	}
	c.push(api.ValueTypeI32, addr)
	return nil
}

// check compares the lowered shape against the function's wasm type.
func (c *wasmCall) check(fn api.Function, results []api.ValueType) error {
	def := fn.Definition()
	want, got := def.ParamTypes(), c.types
	if !sameTypes(want, got) || !sameTypes(def.ResultTypes(), results) {
		return errors.ConventionMismatch(c.name,
			"declared signature lowers to %s but %s has type %s",
			formatFuncType(got, results), def.Name(), formatFuncType(want, def.ResultTypes()))
	}
	return nil
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatFuncType(params, results []api.ValueType) string {
	s := "("
	for i, t := range params {
		if i > 0 {
			s += " "
		}
		s += api.ValueTypeName(t)
	}
	s += ") -> ("
	for i, t := range results {
		if i > 0 {
			s += " "
		}
		s += api.ValueTypeName(t)
	}
	return s + ")"
}

// call must be called with m.mu held.
func (m *WasmModule) call(ctx context.Context, fn api.Function, sig *abi.Signature, args []abi.Arg) (abi.Result, error) {
	c := &wasmCall{m: m, ctx: ctx, name: sig.Name}
	defer c.release()

	if len(args) != len(sig.Params) {
		return abi.Result{}, errors.ConventionMismatch(sig.Name,
			"expected %d arguments, got %d", len(sig.Params), len(args))
	}

	ret := sig.Result
	sret := ret.Class == abi.ClassAgg && !direct(ret)
	var sretAddr uint64
	if sret {
		if err := c.needAlloc("aggregate result"); err != nil {
			return abi.Result{}, err
		}
		addr, err := c.temp(make([]byte, ret.Size), ret.Align)
		if err != nil {
			return abi.Result{}, err
		}
		sretAddr = addr
		c.push(api.ValueTypeI32, addr)
	}

	fixed := len(args)
	if sig.Variadic {
		fixed = sig.Fixed
	}
	for _, a := range args[:fixed] {
		if err := c.arg(a); err != nil {
			return abi.Result{}, err
		}
	}
	if sig.Variadic {
		if err := c.varargs(args[fixed:]); err != nil {
			return abi.Result{}, err
		}
	}

	var results []api.ValueType
	switch {
	case ret.Class == abi.ClassVoid || sret:
	case direct(ret):
		results = []api.ValueType{wasmType(ret.Scalar)}
	default:
		results = []api.ValueType{wasmType(ret.Class)}
	}
	if err := c.check(fn, results); err != nil {
		return abi.Result{}, err
	}

	out, err := fn.Call(ctx, c.params...)
	if err != nil {
		return abi.Result{}, errors.New(errors.PhaseInvoke, errors.KindInvalidData).
			Path(sig.Name).
			Cause(err).
			Detail("call into %s failed", m.name).
			Build()
	}

	switch {
	case sret:
		data, err := m.memory.Read(sretAddr, ret.Size)
		if err != nil {
			return abi.Result{}, err
		}
		return abi.Result{Data: append([]byte(nil), data...)}, nil
	case direct(ret):
		data := binary.LittleEndian.AppendUint64(nil, out[0])
		return abi.Result{Data: data[:ret.Size], Raw: out[0]}, nil
	case len(out) > 0:
		return abi.Result{Raw: widen(out[0], ret)}, nil
	}
	return abi.Result{}, nil
}

// widen extends an i32 result to the 64-bit raw form of its C type.
func widen(raw uint64, p abi.Param) uint64 {
	if p.Class != abi.ClassI32 {
		if p.Class == abi.ClassPtr {
			return uint64(uint32(raw))
		}
		return raw
	}
	if p.Signed {
		return uint64(int64(int32(uint32(raw))))
	}
	return uint64(uint32(raw))
}

func (m *WasmModule) String() string {
	return fmt.Sprintf("wasm32 module %s", m.name)
}
