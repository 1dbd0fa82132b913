package invoke

import (
	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
)

// strategy is how a calling convention places arguments and who cleans the
// stack. Backends for targets with a single convention ignore both.
type strategy struct {
	conv          abi.Convention
	calleeCleanup bool
	// registers is how many leading 32-bit integer or pointer arguments
	// travel in registers (ECX, then EDX).
	registers int
	// this requires the first parameter to be the object pointer.
	this bool
}

var strategies = map[ctype.Convention]strategy{
	ctype.CDecl:    {conv: abi.CDecl},
	ctype.StdCall:  {conv: abi.StdCall, calleeCleanup: true},
	ctype.FastCall: {conv: abi.FastCall, calleeCleanup: true, registers: 2},
	ctype.ThisCall: {conv: abi.ThisCall, calleeCleanup: true, registers: 1, this: true},
}

// strategyFor validates fn against its convention and returns the strategy.
// Callee cleanup cannot pop an unknown number of arguments, so variadic
// functions of the callee-cleanup conventions are called as cdecl, which is
// what C compilers emit for them.
func strategyFor(name string, fn *ctype.Function) (strategy, error) {
	s, ok := strategies[fn.Convention]
	if !ok {
		return strategy{}, errors.ConventionMismatch(name, "unknown calling convention %d", fn.Convention)
	}
	if s.this {
		if len(fn.Params) == 0 {
			return strategy{}, errors.ConventionMismatch(name, "thiscall needs an object pointer parameter")
		}
		if first, _ := ctype.Unqualify(fn.Params[0].Type); first.Kind() != ctype.KindPointer {
			return strategy{}, errors.ConventionMismatch(name,
				"thiscall object parameter is %s, not a pointer", fn.Params[0].Type)
		}
	}
	if fn.Variadic && s.calleeCleanup {
		s = strategies[ctype.CDecl]
	}
	return s, nil
}

// place marks the arguments the strategy passes in registers.
func (s strategy) place(sig *abi.Signature) {
	left := s.registers
	for i := range sig.Params {
		if left == 0 {
			return
		}
		p := &sig.Params[i]
		if p.Class == abi.ClassPtr || (p.Class == abi.ClassI32 && p.Size <= 4) {
			p.Placement = abi.PlaceRegister
			left--
		}
	}
}
