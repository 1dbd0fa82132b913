package value

import (
	"fmt"

	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
)

// maxCString bounds CString reads through pointers without a count.
const maxCString = 1 << 20

// Pointer is a non-owning typed address in a Space. It is a plain value;
// copies refer to the same memory.
type Pointer struct {
	space *Space
	elem  ctype.Type
	addr  uint64
	// count is the number of elements reachable from addr, zero if unknown.
	count    uint64
	readOnly bool
}

func (p Pointer) Addr() uint64     { return p.addr }
func (p Pointer) Elem() ctype.Type { return p.elem }
func (p Pointer) Space() *Space    { return p.space }
func (p Pointer) Count() uint64    { return p.count }
func (p Pointer) IsNull() bool     { return p.addr == 0 }

// ReadOnly reports whether writes through p are forbidden, either because
// the chain that produced it had a const segment or the pointee is const.
func (p Pointer) ReadOnly() bool {
	_, isConst := ctype.Unqualify(p.elem)
	return p.readOnly || isConst
}

// Type returns the pointer type itself.
func (p Pointer) Type() ctype.Type { return ctype.PointerTo(p.elem) }

func (p Pointer) String() string {
	if p.elem == nil {
		return fmt.Sprintf("(*)%#x", p.addr)
	}
	return fmt.Sprintf("(%s *)%#x", p.elem, p.addr)
}

// Cast reinterprets the pointee type. The element count is dropped; const
// protection is kept.
func (p Pointer) Cast(elem ctype.Type) Pointer {
	return Pointer{space: p.space, elem: elem, addr: p.addr, readOnly: p.readOnly}
}

// WithCount attaches an element count, making unknown-length arrays and
// pointer arithmetic bounds-checked.
func (p Pointer) WithCount(n uint64) Pointer {
	p.count = n
	return p
}

// Index returns a pointer to element i counting from p.
func (p Pointer) Index(i int) (Pointer, error) {
	if p.count > 0 && (i < 0 || uint64(i) >= p.count) {
		return Pointer{}, errors.OutOfBounds(nil, i, int(p.count))
	}
	l, err := p.space.engine.Layout(p.elem)
	if err != nil {
		return Pointer{}, err
	}
	if l.Incomplete || l.Size == 0 {
		return Pointer{}, errors.Access(nil, "pointer arithmetic on %s", p.elem)
	}
	q := p
	q.addr = p.addr + uint64(int64(i))*l.Size
	if p.count > 0 {
		q.count = p.count - uint64(i)
	}
	return q, nil
}

func (p Pointer) root() (*cursor, error) {
	if p.space == nil || p.addr == 0 {
		return nil, errors.Access(nil, "null pointer dereference")
	}
	l, err := p.space.engine.Layout(p.elem)
	if err != nil {
		return nil, err
	}
	return &cursor{
		space:    p.space,
		typ:      p.elem,
		lay:      l,
		loc:      location{mem: p.space.mem, off: p.addr, inMem: true},
		count:    p.count,
		deref:    true,
		readOnly: p.readOnly,
	}, nil
}

func (p Pointer) walk(path Path) (*cursor, error) {
	if len(path) > 0 && path[0].IsIndex {
		if base, _ := ctype.Unqualify(p.elem); base.Kind() != ctype.KindArray {
			q, err := p.Index(path[0].Index)
			if err != nil {
				return nil, err
			}
			p, path = q, path[1:]
		}
	}
	c, err := p.root()
	if err != nil {
		return nil, err
	}
	if err := c.walk(path); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads the pointee: a scalar, a Pointer for pointer pointees, or a
// Value copy for aggregates. An unknown-length array pointee is read as
// count elements.
func (p Pointer) Load() (any, error) {
	c, err := p.root()
	if err != nil {
		return nil, err
	}
	if c.lay.Incomplete {
		a, _ := ctype.Unqualify(p.elem)
		if p.count == 0 {
			return nil, errors.Access(nil, "unknown-length array %s needs an element count", p.elem)
		}
		c.typ = ctype.ArrayOf(a.(*ctype.Array).Elem, p.count)
		if c.lay, err = p.space.engine.Layout(c.typ); err != nil {
			return nil, err
		}
	}
	c.deref = false
	return c.read()
}

// Store replaces the pointee with x, built like an initializer of the
// pointee type.
func (p Pointer) Store(x any) error {
	c, err := p.root()
	if err != nil {
		return err
	}
	return c.write(x)
}

// Get resolves a path from the pointee. Non-bit-field leaves come back as
// Pointers to the leaf; bit-fields by value. An empty path loads the pointee.
// A leading index on a pointer to a non-array is pointer arithmetic.
func (p Pointer) Get(path string) (any, error) {
	if path == "" {
		return p.Load()
	}
	parsed, err := ParsePath(path)
	if err != nil {
		return nil, err
	}
	return p.GetPath(parsed)
}

// GetPath is Get with a pre-parsed path.
func (p Pointer) GetPath(path Path) (any, error) {
	c, err := p.walk(path)
	if err != nil {
		return nil, err
	}
	return c.read()
}

// Set writes x at the path. Any const segment along the chain makes it a
// write-protection error.
func (p Pointer) Set(path string, x any) error {
	parsed, err := ParsePath(path)
	if err != nil {
		return err
	}
	return p.SetPath(parsed, x)
}

// SetPath is Set with a pre-parsed path.
func (p Pointer) SetPath(path Path, x any) error {
	c, err := p.walk(path)
	if err != nil {
		return err
	}
	return c.write(x)
}

// CString reads a NUL-terminated byte string starting at p.
func (p Pointer) CString() (string, error) {
	if p.space == nil || p.addr == 0 {
		return "", errors.Access(nil, "null pointer dereference")
	}
	limit := uint64(maxCString)
	if p.count > 0 {
		limit = p.count
	}
	var buf []byte
	for i := uint64(0); i < limit; i++ {
		b, err := p.space.mem.ReadU8(p.addr + i)
		if err != nil {
			return "", errors.Wrap(errors.PhaseAccess, errors.KindAccess, err, "read string")
		}
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
	if p.count > 0 {
		return string(buf), nil
	}
	return "", errors.Access(nil, "string exceeds %d bytes", maxCString)
}
