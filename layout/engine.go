package layout

import (
	"sync"

	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
)

// Engine computes and memoizes layouts for one target.
type Engine struct {
	cache  sync.Map // cacheKey -> *Layout
	target Target
}

type cacheKey struct {
	typ      ctype.Type
	strategy ctype.Strategy
}

func NewEngine(target Target) *Engine {
	return &Engine{target: target}
}

// Target returns the engine's target.
func (e *Engine) Target() Target { return e.target }

// Layout computes the layout of t using each aggregate's declared strategy.
func (e *Engine) Layout(t ctype.Type) (*Layout, error) {
	return e.layout(t, declaredStrategy(t), map[ctype.Type]bool{})
}

// LayoutFor computes the layout of t, overriding the strategy of t itself
// when it is an aggregate. Nested aggregates keep their declared strategy.
func (e *Engine) LayoutFor(t ctype.Type, strategy ctype.Strategy) (*Layout, error) {
	return e.layout(t, strategy, map[ctype.Type]bool{})
}

// ArrayOf lays out n elements of elem, supplying the count an unknown-length
// array lacks.
func (e *Engine) ArrayOf(elem ctype.Type, n uint64) (*Layout, error) {
	return e.Layout(ctype.ArrayOf(elem, n))
}

// SizeOf returns the size of a complete type.
func (e *Engine) SizeOf(t ctype.Type) (uint64, error) {
	l, err := e.Layout(t)
	if err != nil {
		return 0, err
	}
	if l.Incomplete {
		return 0, errors.Incomplete(t.String())
	}
	return l.Size, nil
}

func declaredStrategy(t ctype.Type) ctype.Strategy {
	if agg, ok := ctype.AggregateOf(t); ok {
		return agg.Strategy
	}
	return ctype.Native
}

func (e *Engine) layout(t ctype.Type, strategy ctype.Strategy, visiting map[ctype.Type]bool) (*Layout, error) {
	if t == nil {
		return nil, errors.Layout("<nil>", "missing type")
	}
	key := cacheKey{typ: t, strategy: strategy}
	if cached, ok := e.cache.Load(key); ok {
		return cached.(*Layout), nil
	}
	if visiting[t] {
		return nil, errors.Definition(t.String(), "type contains itself without an intervening pointer")
	}
	visiting[t] = true
	defer delete(visiting, t)

	l, err := e.compute(t, strategy, visiting)
	if err != nil {
		return nil, err
	}
	actual, _ := e.cache.LoadOrStore(key, l)
	return actual.(*Layout), nil
}

func (e *Engine) compute(t ctype.Type, strategy ctype.Strategy, visiting map[ctype.Type]bool) (*Layout, error) {
	switch tt := t.(type) {
	case *ctype.Primitive:
		if tt.Kind() == ctype.KindVoid {
			return nil, errors.Incomplete(tt.String())
		}
		return &Layout{Type: t, Size: tt.Size, Align: e.target.primitiveAlign(tt.Kind(), tt.Size)}, nil

	case *ctype.Pointer:
		return &Layout{Type: t, Size: e.target.PointerSize, Align: e.target.PointerAlign}, nil

	case *ctype.Array:
		return e.computeArray(tt, visiting)

	case *ctype.Struct:
		if !tt.Complete() {
			return nil, errors.Incomplete(tt.String())
		}
		if strategy == ctype.Packed {
			return e.packedStruct(tt, &tt.Aggregate, visiting)
		}
		return e.nativeStruct(tt, &tt.Aggregate, visiting)

	case *ctype.Union:
		if !tt.Complete() {
			return nil, errors.Incomplete(tt.String())
		}
		return e.union(tt, &tt.Aggregate, strategy, visiting)

	case *ctype.Enum:
		if !tt.Complete() {
			return nil, errors.Incomplete(tt.String())
		}
		base, err := e.layout(tt.Underlying, ctype.Native, visiting)
		if err != nil {
			return nil, err
		}
		return &Layout{Type: t, Size: base.Size, Align: base.Align}, nil

	case *ctype.Qualified:
		inner, err := e.layout(tt.Inner, declaredStrategy(tt.Inner), visiting)
		if err != nil {
			return nil, err
		}
		l := *inner
		l.Type = t
		return &l, nil

	case *ctype.Function:
		return nil, errors.Layout(tt.String(), "function types have no size")
	}
	return nil, errors.Layout(t.String(), "unsupported type %T", t)
}

func (e *Engine) computeArray(a *ctype.Array, visiting map[ctype.Type]bool) (*Layout, error) {
	elem, err := e.layout(a.Elem, declaredStrategy(a.Elem), visiting)
	if err != nil {
		return nil, err
	}
	if elem.Incomplete {
		return nil, errors.Layout(a.String(), "array of incomplete element %s", a.Elem)
	}
	if a.Unknown {
		return &Layout{Type: a, Elem: elem, Align: elem.Align, Incomplete: true}, nil
	}
	size, ok := abi.SafeMul(elem.Size, a.Len)
	if !ok || size > abi.MaxSize {
		return nil, errors.Layout(a.String(), "array too large")
	}
	return &Layout{Type: a, Elem: elem, Len: a.Len, Size: size, Align: elem.Align}, nil
}
