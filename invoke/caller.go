package invoke

import (
	"context"
	"fmt"

	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
	"github.com/wippyai/cbinding/library"
	"github.com/wippyai/cbinding/value"
)

// Caller is the execution side of a library handle: it owns the address
// space the library sees and performs lowered calls into it.
type Caller interface {
	Space() *value.Space
	Call(ctx context.Context, addr uint64, sig *abi.Signature, args []abi.Arg) (abi.Result, error)
}

// CallbackRegistrar is implemented by handles that can expose host
// functions as C function pointers.
type CallbackRegistrar interface {
	NewCallback(sig *abi.Signature, fn func(args []uint64) uint64) (uint64, error)
}

// live fails once lib is released, so bindings never call into a closed
// handle.
func live(lib *library.Library) error {
	if lib.Released() {
		return errors.InvalidInput(errors.PhaseInvoke, "library "+lib.Name()+" released")
	}
	return nil
}

// callerOf opens lib if needed and returns its handle as a Caller.
func callerOf(ctx context.Context, lib *library.Library) (Caller, error) {
	h, err := lib.Handle(ctx)
	if err != nil {
		return nil, err
	}
	c, ok := h.(Caller)
	if !ok {
		return nil, errors.Unsupported(errors.PhaseInvoke, fmt.Sprintf("library %s cannot be called into (%T)", lib.Name(), h))
	}
	if c.Space() == nil {
		return nil, errors.Unsupported(errors.PhaseInvoke, "library "+lib.Name()+" has no address space")
	}
	return c, nil
}

// Space returns the address space of lib, opening it if needed. Pointers
// passed to its functions must point into this space.
func Space(ctx context.Context, lib *library.Library) (*value.Space, error) {
	c, err := callerOf(ctx, lib)
	if err != nil {
		return nil, err
	}
	return c.Space(), nil
}
