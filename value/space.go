package value

import (
	"github.com/wippyai/cbinding"
	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/layout"
)

// Space binds an address space to the layout engine of its target. Values
// built by a Space carry pointers into its Memory.
type Space struct {
	mem    cbinding.Memory
	alloc  cbinding.Allocator
	engine *layout.Engine
}

// Option configures a Space.
type Option func(*Space)

// WithAllocator sets the allocator used by Alloc. By default the Memory is
// used if it also implements cbinding.Allocator.
func WithAllocator(a cbinding.Allocator) Option {
	return func(s *Space) {
		s.alloc = a
	}
}

func NewSpace(mem cbinding.Memory, engine *layout.Engine, opts ...Option) *Space {
	s := &Space{mem: mem, engine: engine}
	if a, ok := mem.(cbinding.Allocator); ok {
		s.alloc = a
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Space) Memory() cbinding.Memory       { return s.mem }
func (s *Space) Allocator() cbinding.Allocator { return s.alloc }
func (s *Space) Engine() *layout.Engine        { return s.engine }

// PointerSize returns the pointer width of the target.
func (s *Space) PointerSize() uint64 { return s.engine.Target().PointerSize }

// New constructs a Value of type t. With no initializer the bytes are zero.
// The initializer may be a map[string]any keyed by member name (promoted
// names and paths included), a map[int]any keyed by declaration or element
// index, a positional slice, a Value of the same type, a scalar, or a Pointer.
func (s *Space) New(t ctype.Type, init ...any) (*Value, error) {
	if len(init) > 1 {
		return nil, errors.Construction(nil, "expected at most one initializer, got %d", len(init))
	}
	l, err := s.engine.Layout(t)
	if err != nil {
		return nil, err
	}
	if l.Incomplete {
		return nil, errors.Layout(t.String(), "unknown-length array needs an explicit count")
	}
	v := &Value{space: s, typ: t, layout: l, data: make([]byte, l.Size)}
	if len(init) == 1 {
		if err := s.encode(v.data, t, l, init[0], nil, false); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// NewArray constructs an array of count elements of elem. It is how values
// of unknown-length array types are instantiated.
func (s *Space) NewArray(elem ctype.Type, count uint64, init ...any) (*Value, error) {
	return s.New(ctype.ArrayOf(elem, count), init...)
}

// FromBytes wraps a copy of raw bytes as a Value of type t.
func (s *Space) FromBytes(t ctype.Type, data []byte) (*Value, error) {
	l, err := s.engine.Layout(t)
	if err != nil {
		return nil, err
	}
	if l.Incomplete {
		return nil, errors.Layout(t.String(), "unknown-length array needs an explicit count")
	}
	if uint64(len(data)) != l.Size {
		return nil, errors.Construction(nil, "%s needs %d bytes, got %d", t, l.Size, len(data))
	}
	return &Value{space: s, typ: t, layout: l, data: append([]byte(nil), data...)}, nil
}

// At returns a Pointer to an object of type elem at addr.
func (s *Space) At(addr uint64, elem ctype.Type) Pointer {
	return Pointer{space: s, elem: elem, addr: addr}
}

// Null returns the null pointer to elem.
func (s *Space) Null(elem ctype.Type) Pointer {
	return Pointer{space: s, elem: elem}
}

// Alloc allocates an object of type t in the address space, initializes it
// like New and returns a Pointer to it. The caller frees it with Free.
func (s *Space) Alloc(t ctype.Type, init ...any) (Pointer, error) {
	v, err := s.New(t, init...)
	if err != nil {
		return Pointer{}, err
	}
	return s.Place(v)
}

// AllocArray allocates count elements of elem and returns a Pointer to the
// first element carrying the count.
func (s *Space) AllocArray(elem ctype.Type, count uint64, init ...any) (Pointer, error) {
	v, err := s.NewArray(elem, count, init...)
	if err != nil {
		return Pointer{}, err
	}
	p, err := s.Place(v)
	if err != nil {
		return Pointer{}, err
	}
	return p.Cast(elem).WithCount(count), nil
}

// Place copies a Value into newly allocated memory.
func (s *Space) Place(v *Value) (Pointer, error) {
	if s.alloc == nil {
		return Pointer{}, errors.Unsupported(errors.PhaseConstruct, "address space has no allocator")
	}
	size := v.layout.Size
	if size == 0 {
		size = 1
	}
	addr, err := s.alloc.Alloc(size, v.layout.Align)
	if err != nil {
		return Pointer{}, errors.New(errors.PhaseConstruct, errors.KindAllocation).
			CType(v.typ.String()).
			Cause(err).
			Detail("allocate %d bytes", size).
			Build()
	}
	if addr == 0 {
		return Pointer{}, errors.AllocationFailed(errors.PhaseConstruct, size, v.layout.Align)
	}
	if err := s.mem.Write(addr, v.data); err != nil {
		s.alloc.Free(addr, size, v.layout.Align)
		return Pointer{}, errors.Wrap(errors.PhaseConstruct, errors.KindAccess, err, "initialize allocation")
	}
	return Pointer{space: s, elem: v.typ, addr: addr}, nil
}

// Free releases memory obtained from Alloc, AllocArray, Place or CString.
func (s *Space) Free(p Pointer) error {
	if p.addr == 0 || s.alloc == nil {
		return nil
	}
	l, err := s.engine.Layout(p.elem)
	if err != nil {
		return err
	}
	size := l.Size
	if p.count > 0 {
		size *= p.count
	}
	if size == 0 {
		size = 1
	}
	s.alloc.Free(p.addr, size, l.Align)
	return nil
}

// CString allocates a NUL-terminated copy of str as a char array and returns
// a char pointer carrying the length including the terminator.
func (s *Space) CString(str string) (Pointer, error) {
	char := s.engine.Target().Char()
	buf := make([]byte, len(str)+1)
	copy(buf, str)
	return s.AllocArray(char, uint64(len(buf)), buf)
}
