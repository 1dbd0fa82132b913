package invoke

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
	"github.com/wippyai/cbinding/library"
	"github.com/wippyai/cbinding/value"
)

// HostFunc implements a C function in Go. Arguments arrive decoded the way
// Call decodes results; the returned value is converted to the declared
// return type.
type HostFunc func(args []any) (any, error)

// RegisterCallback exposes fn as a C function pointer of type fnType in lib's
// address space. Backends without trampolines return an unsupported error.
// C callers cannot observe Go errors: a failing callback is logged and
// returns zero.
func RegisterCallback(ctx context.Context, lib *library.Library, fnType *ctype.Function, fn HostFunc) (value.Pointer, error) {
	c, err := callerOf(ctx, lib)
	if err != nil {
		return value.Pointer{}, err
	}
	reg, ok := c.(CallbackRegistrar)
	if !ok {
		return value.Pointer{}, errors.Unsupported(errors.PhaseInvoke, "callbacks on library "+lib.Name())
	}

	name := "callback " + fnType.String()
	s, err := strategyFor(name, fnType)
	if err != nil {
		return value.Pointer{}, err
	}
	space := c.Space()
	sig, err := signature(space.Engine(), name, fnType, s)
	if err != nil {
		return value.Pointer{}, err
	}
	for _, p := range append([]abi.Param{sig.Result}, sig.Params...) {
		if p.Class == abi.ClassAgg {
			return value.Pointer{}, errors.Unsupported(errors.PhaseInvoke, name+": aggregates by value")
		}
	}

	tramp := func(raw []uint64) uint64 {
		out, err := dispatch(space, fnType, sig, fn, raw)
		if err != nil {
			Logger().Error("callback failed", zap.String("signature", sig.String()), zap.Error(err))
			return 0
		}
		return out
	}
	addr, err := reg.NewCallback(sig, tramp)
	if err != nil {
		return value.Pointer{}, err
	}
	Logger().Debug("registered callback",
		zap.String("library", lib.Name()),
		zap.String("type", fnType.String()),
		zap.Uint64("addr", addr))
	return space.At(addr, fnType), nil
}

// dispatch decodes raw arguments, runs fn and encodes its result.
func dispatch(space *value.Space, fnType *ctype.Function, sig *abi.Signature, fn HostFunc, raw []uint64) (_ uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()

	args := make([]any, len(fnType.Params))
	for i, p := range fnType.Params {
		if i >= len(raw) {
			return 0, errors.ConventionMismatch(sig.Name, "expected %d arguments, got %d", len(fnType.Params), len(raw))
		}
		a, err := result(space, paramType(p.Type), sig.Params[i], abi.Result{Raw: raw[i]})
		if err != nil {
			return 0, err
		}
		args[i] = a
	}

	ret, err := fn(args)
	if err != nil {
		return 0, err
	}
	if sig.Result.Class == abi.ClassVoid {
		return 0, nil
	}
	m := &marshaler{space: space, fn: sig.Name}
	a, err := m.arg(0, fnType.Result(), sig.Result, ret)
	if err != nil {
		return 0, err
	}
	return a.Raw, nil
}
