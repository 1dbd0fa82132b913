package invoke

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
	"github.com/wippyai/cbinding/library"
	"github.com/wippyai/cbinding/value"
)

// Function is a callable binding of an address to a function type. Bindings
// made from a symbol resolve it at first use.
type Function struct {
	lib    *library.Library
	caller Caller
	typ    *ctype.Function
	sig    *abi.Signature
	symbol string
	strat  strategy
	addr   uint64
	mu     sync.Mutex
}

// NewFunction binds symbol of lib to fn. The calling convention is checked
// here; the library is not opened until the first call.
func NewFunction(lib *library.Library, symbol string, fn *ctype.Function) (*Function, error) {
	if fn == nil {
		return nil, errors.InvalidInput(errors.PhaseInvoke, "nil function type for "+symbol)
	}
	s, err := strategyFor(symbol, fn)
	if err != nil {
		return nil, err
	}
	return &Function{lib: lib, symbol: symbol, typ: fn, strat: s}, nil
}

// FromPointer binds a pointer-to-function value, such as one returned by a
// C function or by Address, for calls through lib's backend.
func FromPointer(ctx context.Context, lib *library.Library, p value.Pointer) (*Function, error) {
	elem, _ := ctype.Unqualify(p.Elem())
	fn, ok := elem.(*ctype.Function)
	if !ok {
		return nil, errors.ConventionMismatch(p.String(), "not a pointer to function")
	}
	if p.IsNull() {
		return nil, errors.ConventionMismatch(p.String(), "null function pointer")
	}
	c, err := callerOf(ctx, lib)
	if err != nil {
		return nil, err
	}
	s, err := strategyFor(p.String(), fn)
	if err != nil {
		return nil, err
	}
	return &Function{lib: lib, caller: c, symbol: p.String(), typ: fn, strat: s, addr: p.Addr()}, nil
}

func (f *Function) Name() string         { return f.symbol }
func (f *Function) Type() *ctype.Function { return f.typ }

// resolve returns the caller, address and lowered fixed signature.
func (f *Function) resolve(ctx context.Context) (Caller, uint64, *abi.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := live(f.lib); err != nil {
		f.caller = nil
		return nil, 0, nil, err
	}
	if f.addr == 0 {
		addr, err := f.lib.Resolve(ctx, f.symbol)
		if err != nil {
			return nil, 0, nil, err
		}
		f.addr = addr
	}
	if f.caller == nil {
		c, err := callerOf(ctx, f.lib)
		if err != nil {
			return nil, 0, nil, err
		}
		f.caller = c
	}
	if f.sig == nil {
		sig, err := signature(f.caller.Space().Engine(), f.symbol, f.typ, f.strat)
		if err != nil {
			return nil, 0, nil, err
		}
		f.sig = sig
	}
	return f.caller, f.addr, f.sig, nil
}

// Address returns a Pointer-to-Function for the bound code, usable as a
// function pointer argument.
func (f *Function) Address(ctx context.Context) (value.Pointer, error) {
	c, addr, _, err := f.resolve(ctx)
	if err != nil {
		return value.Pointer{}, err
	}
	return c.Space().At(addr, f.typ), nil
}

// pointer is Address for marshaling into space.
func (f *Function) pointer(space *value.Space) (value.Pointer, error) {
	c, addr, _, err := f.resolve(context.Background())
	if err != nil {
		return value.Pointer{}, err
	}
	if c.Space() != space {
		return value.Pointer{}, errors.ConventionMismatch(f.symbol, "function lives in another address space")
	}
	return space.At(addr, f.typ), nil
}

// Call invokes the function. Declared parameters take arguments of their
// value class that are exactly representable; trailing variadic arguments
// are passed as their Go type promoted like C default argument promotions.
// The result is nil for void, a scalar, a value.Pointer, or a *value.Value.
func (f *Function) Call(ctx context.Context, args ...any) (any, error) {
	fixed := len(f.typ.Params)
	switch {
	case !f.typ.Variadic && len(args) != fixed:
		return nil, errors.ConventionMismatch(f.symbol, "expected %d arguments, got %d", fixed, len(args))
	case f.typ.Variadic && len(args) < fixed:
		return nil, errors.ConventionMismatch(f.symbol, "expected at least %d arguments, got %d", fixed, len(args))
	}

	c, addr, sig, err := f.resolve(ctx)
	if err != nil {
		return nil, err
	}
	space := c.Space()
	m := &marshaler{space: space, fn: f.symbol}
	defer m.release()

	lowered := make([]abi.Arg, len(args))
	for i := 0; i < fixed; i++ {
		a, err := m.arg(i, f.typ.Params[i].Type, sig.Params[i], args[i])
		if err != nil {
			return nil, err
		}
		lowered[i] = a
	}

	call := sig
	if len(args) > fixed {
		call = &abi.Signature{}
		*call = *sig
		call.Params = append(make([]abi.Param, 0, len(args)), sig.Params...)
		for i := fixed; i < len(args); i++ {
			t, x, err := m.promote(i, args[i])
			if err != nil {
				return nil, err
			}
			p, err := lower(space.Engine(), f.symbol, t)
			if err != nil {
				return nil, err
			}
			a, err := m.arg(i, t, p, x)
			if err != nil {
				return nil, err
			}
			call.Params = append(call.Params, p)
			lowered[i] = a
		}
	}

	res, err := c.Call(ctx, addr, call, lowered)
	if err != nil {
		Logger().Debug("call failed",
			zap.String("function", f.symbol),
			zap.String("signature", call.Key()),
			zap.Error(err))
		return nil, err
	}
	return result(space, f.typ.Result(), sig.Result, res)
}
