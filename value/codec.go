package value

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/layout"
)

// decode converts the bytes of a t into its Go form: int64 or uint64 for
// integers and enums, float32/float64, bool, Pointer, or a *Value copy for
// aggregates and arrays.
func (s *Space) decode(b []byte, t ctype.Type, l *layout.Layout, path Path) (any, error) {
	base, _ := ctype.Unqualify(t)
	switch tt := base.(type) {
	case *ctype.Primitive:
		return decodePrimitive(b, tt, path)
	case *ctype.Enum:
		return decodePrimitive(b, tt.Underlying, path)
	case *ctype.Pointer:
		return Pointer{space: s, elem: tt.Elem, addr: getUint(b, s.PointerSize())}, nil
	case *ctype.Struct, *ctype.Union, *ctype.Array:
		return &Value{space: s, typ: t, layout: l, data: append(make([]byte, 0, len(b)), b...)}, nil
	}
	return nil, errors.Access(path.names(), "cannot read %s", t)
}

func decodePrimitive(b []byte, p *ctype.Primitive, path Path) (any, error) {
	switch p.Kind() {
	case ctype.KindBool:
		return b[0] != 0, nil
	case ctype.KindInt:
		raw := getUint(b, p.Size)
		if p.Signed {
			return signExtend(raw, p.Bits()), nil
		}
		return raw, nil
	case ctype.KindFloat:
		switch p.Size {
		case 4:
			return math.Float32frombits(uint32(getUint(b, 4))), nil
		case 8:
			return math.Float64frombits(getUint(b, 8)), nil
		}
		return nil, errors.New(errors.PhaseAccess, errors.KindUnsupported).
			Path(path.names()...).
			CType(p.String()).
			Detail("%d-byte floating point", p.Size).
			Build()
	}
	return nil, errors.Access(path.names(), "cannot read %s", p)
}

// encode writes init as a t into dst, which spans exactly the layout's size.
// Composite initializers zero dst first unless overlay is set, in which case
// only the named members or elements change.
func (s *Space) encode(dst []byte, t ctype.Type, l *layout.Layout, init any, path Path, overlay bool) error {
	if init == nil {
		clear(dst)
		return nil
	}
	if v, ok := init.(*Value); ok {
		return s.encodeValue(dst, t, v, path)
	}

	base, _ := ctype.Unqualify(t)
	switch tt := base.(type) {
	case *ctype.Primitive:
		return encodePrimitive(dst, tt, init, path)
	case *ctype.Enum:
		return encodeEnum(dst, tt, init, path)
	case *ctype.Pointer:
		return s.encodePointer(dst, tt, init, path)
	case *ctype.Struct, *ctype.Union:
		return s.encodeRecord(dst, base, l, init, path, overlay)
	case *ctype.Array:
		return s.encodeArray(dst, tt, l, init, path, overlay)
	}
	return errors.Construction(path.names(), "cannot construct %s", t)
}

func (s *Space) encodeValue(dst []byte, t ctype.Type, v *Value, path Path) error {
	want, _ := ctype.Unqualify(t)
	got, _ := ctype.Unqualify(v.typ)
	if !ctype.Identical(want, got) || len(v.data) != len(dst) {
		return errors.TypeMismatch(errors.PhaseConstruct, errors.KindConstruction, path.names(), "Value("+v.typ.String()+")", t.String())
	}
	copy(dst, v.data)
	return nil
}

func mismatch(path Path, init any, t ctype.Type) *errors.Error {
	return errors.TypeMismatch(errors.PhaseConstruct, errors.KindConstruction, path.names(), fmt.Sprintf("%T", init), t.String())
}

func encodePrimitive(dst []byte, p *ctype.Primitive, init any, path Path) error {
	switch p.Kind() {
	case ctype.KindBool:
		b, ok := init.(bool)
		if !ok {
			return mismatch(path, init, p)
		}
		if b {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
		return nil

	case ctype.KindInt:
		w, ok := integerOf(init)
		if !ok {
			return mismatch(path, init, p)
		}
		if !w.fits(p.Bits(), p.Signed) {
			return errors.Overflow(errors.PhaseConstruct, errors.KindConstruction, path.names(), init, p.String())
		}
		putUint(dst, p.Size, w.bits)
		return nil

	case ctype.KindFloat:
		f, isFloat := floatOf(init)
		if !isFloat {
			w, ok := integerOf(init)
			if !ok {
				return mismatch(path, init, p)
			}
			exact := false
			if p.Size == 4 {
				var f32 float32
				f32, exact = exactInt[float32](w)
				f = float64(f32)
			} else {
				f, exact = exactInt[float64](w)
			}
			if !exact {
				return errors.Overflow(errors.PhaseConstruct, errors.KindConstruction, path.names(), init, p.String())
			}
		}
		switch p.Size {
		case 4:
			if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
				return errors.Overflow(errors.PhaseConstruct, errors.KindConstruction, path.names(), init, p.String())
			}
			putUint(dst, 4, uint64(math.Float32bits(float32(f))))
		case 8:
			putUint(dst, 8, math.Float64bits(f))
		default:
			return errors.New(errors.PhaseConstruct, errors.KindUnsupported).
				Path(path.names()...).
				CType(p.String()).
				Detail("%d-byte floating point", p.Size).
				Build()
		}
		return nil
	}
	return errors.Construction(path.names(), "cannot construct %s", p)
}

// enumValue resolves an enumerator name or an integer.
func enumValue(e *ctype.Enum, init any) (wide, bool) {
	if name, ok := init.(string); ok {
		v, found := e.Constant(name)
		if !found {
			return wide{}, false
		}
		return widen(v), true
	}
	return integerOf(init)
}

func encodeEnum(dst []byte, e *ctype.Enum, init any, path Path) error {
	w, ok := enumValue(e, init)
	if !ok {
		if name, isName := init.(string); isName {
			return errors.Construction(path.names(), "%s has no enumerator %q", e, name)
		}
		return mismatch(path, init, e)
	}
	if !w.fits(e.Underlying.Bits(), e.Underlying.Signed) {
		return errors.Overflow(errors.PhaseConstruct, errors.KindConstruction, path.names(), init, e.String())
	}
	putUint(dst, e.Underlying.Size, w.bits)
	return nil
}

func (s *Space) encodePointer(dst []byte, p *ctype.Pointer, init any, path Path) error {
	var addr uint64
	switch x := init.(type) {
	case Pointer:
		if !pointerCompatible(p.Elem, x.elem) {
			return errors.TypeMismatch(errors.PhaseConstruct, errors.KindConstruction, path.names(), x.elem.String()+" *", p.String())
		}
		addr = x.addr
	case uintptr:
		addr = uint64(x)
	default:
		return mismatch(path, init, p)
	}
	if s.PointerSize() < 8 && addr>>(s.PointerSize()*8) != 0 {
		return errors.Overflow(errors.PhaseConstruct, errors.KindConstruction, path.names(), addr, p.String())
	}
	putUint(dst, s.PointerSize(), addr)
	return nil
}

// pointerCompatible reports whether a pointer to from may be stored where a
// pointer to to is expected: same type, either side void, or array decay.
func pointerCompatible(to, from ctype.Type) bool {
	to, _ = ctype.Unqualify(to)
	from, _ = ctype.Unqualify(from)
	if to.Kind() == ctype.KindVoid || from.Kind() == ctype.KindVoid {
		return true
	}
	if ctype.Identical(to, from) {
		return true
	}
	if a, ok := from.(*ctype.Array); ok {
		return pointerCompatible(to, a.Elem)
	}
	return false
}

func (s *Space) encodeBits(storage []byte, m *layout.Member, init any, path Path) error {
	base := bitBase(m.Type)
	var w wide
	switch t, _ := ctype.Unqualify(m.Type); {
	case base.Kind() == ctype.KindBool:
		b, ok := init.(bool)
		if !ok {
			return mismatch(path, init, m.Type)
		}
		if b {
			w.bits = 1
		}
	case t.Kind() == ctype.KindEnum:
		v, ok := enumValue(t.(*ctype.Enum), init)
		if !ok {
			return mismatch(path, init, m.Type)
		}
		w = v
	default:
		v, ok := integerOf(init)
		if !ok {
			return mismatch(path, init, m.Type)
		}
		w = v
	}
	if !w.fits(m.BitWidth, base.Signed) {
		return errors.Overflow(errors.PhaseConstruct, errors.KindConstruction, path.names(), init,
			fmt.Sprintf("%s:%d", m.Type, m.BitWidth))
	}
	writeBits(storage, m.BitOffset, m.BitWidth, w.bits)
	return nil
}

func (s *Space) encodeRecord(dst []byte, t ctype.Type, l *layout.Layout, init any, path Path, overlay bool) error {
	if !overlay {
		clear(dst)
	}
	isUnion := t.Kind() == ctype.KindUnion

	switch x := init.(type) {
	case map[string]any:
		if isUnion && len(x) > 1 {
			return errors.Construction(path.names(), "union initializer names %d members", len(x))
		}
		targets := make([]keyed, 0, len(x))
		for key, val := range x {
			c, err := s.target(dst, t, l, key, path)
			if err != nil {
				return err
			}
			targets = append(targets, keyed{key: key, val: val, c: c})
		}
		if err := overlapping(targets, path); err != nil {
			return err
		}
		sortKeyed(targets)
		for _, k := range targets {
			if err := k.c.write(k.val); err != nil {
				return err
			}
		}
		return nil

	case map[int]any:
		if isUnion && len(x) > 1 {
			return errors.Construction(path.names(), "union initializer names %d members", len(x))
		}
		indices := make([]int, 0, len(x))
		for i := range x {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		for _, i := range indices {
			if i < 0 || i >= len(l.Fields) || (l.Fields[i].Field.BitField && l.Fields[i].Field.Name == "") {
				return errors.Construction(path.names(), "%s has no member at index %d", t, i)
			}
			if err := s.encodeField(dst, l, i, x[i], path); err != nil {
				return err
			}
		}
		return nil

	case []any:
		if isUnion && len(x) > 1 {
			return errors.Construction(path.names(), "union takes one positional initializer, got %d", len(x))
		}
		next := 0
		for i := range l.Fields {
			if next == len(x) {
				break
			}
			f := l.Fields[i].Field
			if f.BitField && f.Name == "" {
				continue
			}
			if err := s.encodeField(dst, l, i, x[next], path); err != nil {
				return err
			}
			next++
		}
		if next < len(x) {
			return errors.Construction(path.names(), "too many initializers for %s: %d", t, len(x))
		}
		return nil
	}
	return mismatch(path, init, t)
}

// encodeField initializes the i-th declared member of a record.
func (s *Space) encodeField(dst []byte, l *layout.Layout, i int, val any, path Path) error {
	fl := l.Fields[i]
	name := fl.Field.Name
	if name == "" {
		name = fmt.Sprintf("#%d", i)
	}
	sub := path.with(Field(name))
	if fl.Field.BitField {
		m := layout.Member{
			Type:        fl.Field.Type,
			Name:        fl.Field.Name,
			Offset:      fl.Offset,
			BitOffset:   fl.BitOffset,
			BitWidth:    fl.BitWidth,
			StorageSize: fl.StorageSize,
			BitField:    true,
		}
		return s.encodeBits(dst[fl.Offset:fl.Offset+fl.StorageSize], &m, val, sub)
	}
	if fl.Layout.Incomplete {
		if val == nil {
			return nil
		}
		return errors.Construction(sub.names(), "flexible array member cannot be initialized")
	}
	return s.encode(dst[fl.Offset:fl.Offset+fl.Layout.Size], fl.Field.Type, fl.Layout, val, sub, false)
}

func (s *Space) encodeArray(dst []byte, a *ctype.Array, l *layout.Layout, init any, path Path, overlay bool) error {
	if !overlay {
		clear(dst)
	}
	elem := l.Elem
	at := func(i int, val any) error {
		if i < 0 || uint64(i) >= l.Len {
			return errors.Construction(path.names(), "index %d out of bounds (length %d)", i, l.Len)
		}
		off := uint64(i) * elem.Size
		return s.encode(dst[off:off+elem.Size], a.Elem, elem, val, path.with(Index(i)), false)
	}

	switch x := init.(type) {
	case map[int]any:
		indices := make([]int, 0, len(x))
		for i := range x {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		for _, i := range indices {
			if err := at(i, x[i]); err != nil {
				return err
			}
		}
		return nil

	case map[string]any:
		targets := make([]keyed, 0, len(x))
		for key, val := range x {
			c, err := s.target(dst, a, l, key, path)
			if err != nil {
				return err
			}
			targets = append(targets, keyed{key: key, val: val, c: c})
		}
		if err := overlapping(targets, path); err != nil {
			return err
		}
		sortKeyed(targets)
		for _, k := range targets {
			if err := k.c.write(k.val); err != nil {
				return err
			}
		}
		return nil

	case string:
		return encodeBytes(dst, a, l, []byte(x), path)
	case []byte:
		return encodeBytes(dst, a, l, x, path)
	}

	rv := reflect.ValueOf(init)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return mismatch(path, init, a)
	}
	if uint64(rv.Len()) > l.Len {
		return errors.Construction(path.names(), "too many initializers for %s: %d", a, rv.Len())
	}
	for i := 0; i < rv.Len(); i++ {
		if err := at(i, rv.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

func encodeBytes(dst []byte, a *ctype.Array, l *layout.Layout, b []byte, path Path) error {
	if !ctype.IsInteger(a.Elem) || l.Elem.Size != 1 {
		return errors.TypeMismatch(errors.PhaseConstruct, errors.KindConstruction, path.names(), "bytes", a.String())
	}
	if uint64(len(b)) > l.Len {
		return errors.Construction(path.names(), "%d bytes do not fit %s", len(b), a)
	}
	copy(dst, b)
	return nil
}

// keyed is a named initializer resolved to its destination.
type keyed struct {
	val any
	c   *cursor
	key string
}

// sortKeyed orders initializers by position so writes are deterministic.
func sortKeyed(ks []keyed) {
	sort.Slice(ks, func(i, j int) bool {
		a, b := ks[i].c, ks[j].c
		if a.loc.off != b.loc.off {
			return a.loc.off < b.loc.off
		}
		if len(ks[i].key) != len(ks[j].key) {
			return len(ks[i].key) < len(ks[j].key)
		}
		return ks[i].key < ks[j].key
	})
}

// bits returns the bit range of dst that an initializer writes.
func (k keyed) bits() (uint64, uint64) {
	if m := k.c.member; m != nil {
		start := k.c.loc.off*8 + m.BitOffset
		return start, start + m.BitWidth
	}
	return k.c.loc.off * 8, (k.c.loc.off + k.c.lay.Size) * 8
}

// overlapping rejects named initializers that write the same storage, such
// as a promoted member next to its anonymous container or a path next to
// the aggregate it points into.
func overlapping(ks []keyed, path Path) error {
	local := make([]keyed, 0, len(ks))
	for _, k := range ks {
		if !k.c.loc.inMem {
			local = append(local, k)
		}
	}
	sort.Slice(local, func(i, j int) bool {
		a, _ := local[i].bits()
		b, _ := local[j].bits()
		if a != b {
			return a < b
		}
		return local[i].key < local[j].key
	})
	var prev keyed
	var end uint64
	for i, k := range local {
		start, stop := k.bits()
		if i > 0 && start < end && stop > start {
			return errors.Construction(path.names(), "initializers %q and %q overlap", prev.key, k.key)
		}
		if stop > end || i == 0 {
			prev, end = k, stop
		}
	}
	return nil
}

// target resolves an initializer key, a member name or a path, inside dst.
func (s *Space) target(dst []byte, t ctype.Type, l *layout.Layout, key string, path Path) (*cursor, error) {
	segs := Path{Field(key)}
	if strings.ContainsAny(key, ".[") {
		p, err := ParsePath(key)
		if err != nil {
			return nil, errors.Construction(path.names(), "invalid initializer key %q", key)
		}
		segs = p
	}
	c := &cursor{space: s, typ: t, lay: l, path: path, loc: location{buf: dst}, construct: true}
	if err := c.walk(segs); err != nil {
		return nil, err
	}
	return c, nil
}
