package value

import (
	"fmt"

	"github.com/wippyai/cbinding"
	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/layout"
)

// location addresses bytes either inside a Value's buffer or in a Memory.
type location struct {
	buf   []byte
	mem   cbinding.Memory
	off   uint64
	inMem bool
}

func (l location) at(delta uint64) location {
	l.off += delta
	return l
}

func (l location) read(n uint64) ([]byte, error) {
	if !l.inMem {
		if l.off+n > uint64(len(l.buf)) {
			return nil, fmt.Errorf("read past end of value: offset=%d, length=%d", l.off, n)
		}
		return l.buf[l.off : l.off+n], nil
	}
	b, err := l.mem.Read(l.off, n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (l location) write(b []byte) error {
	if !l.inMem {
		if l.off+uint64(len(b)) > uint64(len(l.buf)) {
			return fmt.Errorf("write past end of value: offset=%d, length=%d", l.off, len(b))
		}
		copy(l.buf[l.off:], b)
		return nil
	}
	return l.mem.Write(l.off, b)
}

// cursor is the state of path resolution: the current node, where its bytes
// live, and what the chain so far implies for writes.
type cursor struct {
	space *Space
	typ   ctype.Type
	lay   *layout.Layout
	// member is set once a bit-field has been selected; it is terminal.
	member *layout.Member
	path   Path
	loc    location
	// count bounds an unknown-length array reached through a Pointer.
	count     uint64
	deref     bool
	readOnly  bool
	construct bool
}

func (c *cursor) fail(detail string, args ...any) *errors.Error {
	if c.construct {
		return errors.Construction(c.path.names(), detail, args...)
	}
	return errors.Access(c.path.names(), detail, args...)
}

func (c *cursor) walk(path Path) error {
	for _, seg := range path {
		if c.member != nil {
			return c.fail("bit-field %s has no members", c.member.Name)
		}
		if err := c.step(seg); err != nil {
			return err
		}
	}
	return nil
}

// step resolves one segment: strip qualifiers, follow pointers, then select
// a member or element.
func (c *cursor) step(seg Segment) error {
	for {
		t, isConst := ctype.Unqualify(c.typ)
		if isConst {
			c.readOnly = true
		}
		p, ok := t.(*ctype.Pointer)
		if !ok {
			break
		}
		if c.construct {
			c.path = c.path.with(seg)
			return c.fail("cannot initialize through pointer %s", t)
		}
		done, err := c.follow(p, seg)
		if err != nil || done {
			c.path = c.path.with(seg)
			return err
		}
	}
	c.path = c.path.with(seg)

	t, _ := ctype.Unqualify(c.typ)
	switch tt := t.(type) {
	case *ctype.Struct, *ctype.Union:
		if seg.IsIndex {
			return c.fail("cannot index %s", t)
		}
		m, ok := c.lay.Member(seg.Name)
		if !ok {
			if c.construct {
				return errors.FieldUnknown(errors.PhaseConstruct, errors.KindConstruction, c.path.names(), seg.Name)
			}
			return errors.FieldUnknown(errors.PhaseAccess, errors.KindAccess, c.path.names(), seg.Name)
		}
		c.loc = c.loc.at(m.Offset)
		c.typ = m.Type
		c.count = 0
		if m.BitField {
			c.member = &m
			c.lay = nil
			return nil
		}
		l, err := c.space.engine.Layout(m.Type)
		if err != nil {
			return err
		}
		c.lay = l
		return nil

	case *ctype.Array:
		if !seg.IsIndex {
			return c.fail("cannot select %q on array %s", seg.Name, t)
		}
		n := tt.Len
		if c.lay.Incomplete {
			if c.count == 0 {
				return c.fail("unknown-length array %s needs an element count", t)
			}
			n = c.count
		}
		if seg.Index < 0 || uint64(seg.Index) >= n {
			if c.construct {
				return errors.Construction(c.path.names(), "index %d out of bounds (length %d)", seg.Index, n)
			}
			return errors.OutOfBounds(c.path.names(), seg.Index, int(n))
		}
		c.loc = c.loc.at(uint64(seg.Index) * c.lay.Elem.Size)
		c.typ = tt.Elem
		c.lay = c.lay.Elem
		c.count = 0
		return nil
	}

	if seg.IsIndex {
		return c.fail("cannot index %s", t)
	}
	return c.fail("cannot select %q on %s", seg.Name, t)
}

// follow dereferences the pointer at the cursor. An index segment applied to
// a pointer to a non-array is pointer arithmetic and is consumed here.
func (c *cursor) follow(p *ctype.Pointer, seg Segment) (bool, error) {
	b, err := c.loc.read(c.space.PointerSize())
	if err != nil {
		return false, errors.Wrap(errors.PhaseAccess, errors.KindAccess, err, "read pointer")
	}
	addr := getUint(b, c.space.PointerSize())
	if addr == 0 {
		return false, c.fail("null pointer dereference")
	}
	if _, isFn := p.Elem.(*ctype.Function); isFn {
		return false, c.fail("cannot select into function pointer")
	}

	elemL, err := c.space.engine.Layout(p.Elem)
	if err != nil {
		return false, err
	}
	c.loc = location{mem: c.space.mem, off: addr, inMem: true}
	c.typ = p.Elem
	c.lay = elemL
	c.count = 0
	c.deref = true

	target, _ := ctype.Unqualify(p.Elem)
	if !seg.IsIndex || target.Kind() == ctype.KindArray {
		return false, nil
	}
	if elemL.Incomplete || elemL.Size == 0 {
		return false, c.fail("pointer arithmetic on %s", p.Elem)
	}
	c.loc = c.loc.at(uint64(int64(seg.Index)) * elemL.Size)
	if _, isConst := ctype.Unqualify(p.Elem); isConst {
		c.readOnly = true
	}
	return true, nil
}

// read returns the value at the cursor: a bit-field by value, a Pointer to
// the leaf when the chain went through a pointer, a copy otherwise.
func (c *cursor) read() (any, error) {
	if c.member != nil {
		return c.readBits()
	}
	if c.deref {
		return Pointer{space: c.space, elem: c.typ, addr: c.loc.off, count: c.count, readOnly: c.readOnly}, nil
	}
	if c.lay.Incomplete {
		return nil, c.fail("unknown-length array %s needs an element count", c.typ)
	}
	b, err := c.loc.read(c.lay.Size)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseAccess, errors.KindAccess, err, "read "+c.typ.String())
	}
	return c.space.decode(b, c.typ, c.lay, c.path)
}

func (c *cursor) readBits() (any, error) {
	m := c.member
	b, err := c.loc.read(m.StorageSize)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseAccess, errors.KindAccess, err, "read bit-field "+m.Name)
	}
	raw := readBits(b, m.BitOffset, m.BitWidth)
	base := bitBase(m.Type)
	switch {
	case base.Kind() == ctype.KindBool:
		return raw != 0, nil
	case base.Signed:
		return signExtend(raw, m.BitWidth), nil
	}
	return raw, nil
}

// write stores x at the cursor. Outside construction any const segment on
// the chain forbids the write.
func (c *cursor) write(x any) error {
	if !c.construct {
		if _, isConst := ctype.Unqualify(c.typ); isConst || c.readOnly {
			return errors.WriteProtected(c.path.names(), c.typ.String())
		}
	}
	if c.member != nil {
		m := c.member
		b, err := c.loc.read(m.StorageSize)
		if err != nil {
			return errors.Wrap(errors.PhaseAccess, errors.KindAccess, err, "read bit-field "+m.Name)
		}
		if err := c.space.encodeBits(b, m, x, c.path); err != nil {
			return err
		}
		return c.loc.write(b)
	}
	if c.lay.Incomplete {
		return c.fail("unknown-length array %s needs an element count", c.typ)
	}
	buf := make([]byte, c.lay.Size)
	if err := c.space.encode(buf, c.typ, c.lay, x, c.path, false); err != nil {
		return err
	}
	if err := c.loc.write(buf); err != nil {
		return errors.Wrap(errors.PhaseAccess, errors.KindAccess, err, "write "+c.typ.String())
	}
	return nil
}

// bitBase returns the integer primitive a bit-field is stored as.
func bitBase(t ctype.Type) *ctype.Primitive {
	t, _ = ctype.Unqualify(t)
	if e, ok := t.(*ctype.Enum); ok {
		return e.Underlying
	}
	return t.(*ctype.Primitive)
}
