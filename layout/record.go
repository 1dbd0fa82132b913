package layout

import (
	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
)

// storageUnit is the open bit-field allocation unit of a native struct.
type storageUnit struct {
	offset uint64
	size   uint64
	used   uint64
}

// bitBase returns the integer primitive a bit-field is carved from.
func bitBase(t ctype.Type) (*ctype.Primitive, bool) {
	t, _ = ctype.Unqualify(t)
	switch tt := t.(type) {
	case *ctype.Primitive:
		return tt, tt.Kind() == ctype.KindInt || tt.Kind() == ctype.KindBool
	case *ctype.Enum:
		return tt.Underlying, tt.Complete()
	}
	return nil, false
}

func (e *Engine) bitField(self ctype.Type, f ctype.Field) (*ctype.Primitive, uint64, error) {
	base, ok := bitBase(f.Type)
	if !ok {
		return nil, 0, errors.Layout(self.String(), "bit-field %q has non-integer type %s", f.Name, f.Type)
	}
	if f.BitWidth > base.Bits() {
		return nil, 0, errors.Layout(self.String(), "bit-field %q width %d exceeds %d-bit storage unit", f.Name, f.BitWidth, base.Bits())
	}
	if f.BitWidth == 0 && f.Name != "" {
		return nil, 0, errors.Layout(self.String(), "named bit-field %q has zero width", f.Name)
	}
	return base, e.target.primitiveAlign(base.Kind(), base.Size), nil
}

// member lays out a non-bit-field member. Unknown-length arrays are only
// accepted as the last member of a struct.
func (e *Engine) member(self ctype.Type, f ctype.Field, last bool, visiting map[ctype.Type]bool) (*Layout, error) {
	fl, err := e.layout(f.Type, declaredStrategy(f.Type), visiting)
	if err != nil {
		return nil, err
	}
	if fl.Incomplete && !(last && self.Kind() == ctype.KindStruct) {
		return nil, errors.Layout(self.String(), "unknown-length array %q must be the last struct member", f.Name)
	}
	return fl, nil
}

// nativeStruct gives each bit-field a unit of its declared type's size,
// aligned to that type, and shares a unit only between bit-fields of equal
// size. GCC and clang instead let a bit-field use any bits of the aligned
// word around the current offset, so a bit-field following a smaller member,
// or a run mixing declared sizes, lays out differently there.
func (e *Engine) nativeStruct(self ctype.Type, agg *ctype.Aggregate, visiting map[ctype.Type]bool) (*Layout, error) {
	l := &Layout{Type: self, Align: 1, Strategy: ctype.Native, Fields: make([]FieldLayout, len(agg.Fields))}
	var offset uint64
	var unit *storageUnit

	for i, f := range agg.Fields {
		if f.BitField {
			base, align, err := e.bitField(self, f)
			if err != nil {
				return nil, err
			}
			width := f.BitWidth
			if width == 0 {
				unit = nil
				offset = abi.AlignTo(offset, align)
				l.Fields[i] = FieldLayout{Field: f, Offset: offset, StorageSize: base.Size}
				continue
			}
			if unit == nil || unit.size != base.Size || unit.used+width > base.Bits() {
				unit = &storageUnit{offset: abi.AlignTo(offset, align), size: base.Size}
				offset = unit.offset + unit.size
			}
			l.Fields[i] = FieldLayout{
				Field:       f,
				Offset:      unit.offset,
				BitOffset:   unit.used,
				BitWidth:    width,
				StorageSize: base.Size,
			}
			unit.used += width
			if f.Name != "" && align > l.Align {
				l.Align = align
			}
			continue
		}

		unit = nil
		fl, err := e.member(self, f, i == len(agg.Fields)-1, visiting)
		if err != nil {
			return nil, err
		}
		offset = abi.AlignTo(offset, fl.Align)
		l.Fields[i] = FieldLayout{Field: f, Layout: fl, Offset: offset}
		if fl.Align > l.Align {
			l.Align = fl.Align
		}
		if fl.Incomplete {
			l.Flexible = true
			continue
		}
		next, ok := abi.SafeAdd(offset, fl.Size)
		if !ok || next > abi.MaxSize {
			return nil, errors.Layout(self.String(), "struct too large")
		}
		offset = next
	}

	l.Size = abi.AlignTo(offset, l.Align)
	if err := flatten(l); err != nil {
		return nil, err
	}
	return l, nil
}

func (e *Engine) packedStruct(self ctype.Type, agg *ctype.Aggregate, visiting map[ctype.Type]bool) (*Layout, error) {
	l := &Layout{Type: self, Align: 1, Strategy: ctype.Packed, Fields: make([]FieldLayout, len(agg.Fields))}
	var bitPos uint64

	for i, f := range agg.Fields {
		if f.BitField {
			if _, _, err := e.bitField(self, f); err != nil {
				return nil, err
			}
			if f.BitWidth == 0 {
				bitPos = abi.AlignTo(bitPos, 8)
				l.Fields[i] = FieldLayout{Field: f, Offset: bitPos / 8}
				continue
			}
			bitOffset := bitPos % 8
			l.Fields[i] = FieldLayout{
				Field:       f,
				Offset:      bitPos / 8,
				BitOffset:   bitOffset,
				BitWidth:    f.BitWidth,
				StorageSize: (bitOffset + f.BitWidth + 7) / 8,
			}
			bitPos += f.BitWidth
			continue
		}

		fl, err := e.member(self, f, i == len(agg.Fields)-1, visiting)
		if err != nil {
			return nil, err
		}
		bitPos = abi.AlignTo(bitPos, 8)
		l.Fields[i] = FieldLayout{Field: f, Layout: fl, Offset: bitPos / 8}
		if fl.Incomplete {
			l.Flexible = true
			continue
		}
		if fl.Size > abi.MaxSize || bitPos/8+fl.Size > abi.MaxSize {
			return nil, errors.Layout(self.String(), "struct too large")
		}
		bitPos += fl.Size * 8
	}

	l.Size = (bitPos + 7) / 8
	if err := flatten(l); err != nil {
		return nil, err
	}
	return l, nil
}

func (e *Engine) union(self ctype.Type, agg *ctype.Aggregate, strategy ctype.Strategy, visiting map[ctype.Type]bool) (*Layout, error) {
	l := &Layout{Type: self, Align: 1, Strategy: strategy, Fields: make([]FieldLayout, len(agg.Fields))}
	packed := strategy == ctype.Packed

	for i, f := range agg.Fields {
		var size, align uint64
		if f.BitField {
			base, baseAlign, err := e.bitField(self, f)
			if err != nil {
				return nil, err
			}
			size, align = base.Size, baseAlign
			if packed {
				size = (f.BitWidth + 7) / 8
			}
			l.Fields[i] = FieldLayout{Field: f, BitWidth: f.BitWidth, StorageSize: size}
			if f.Name == "" {
				align = 1
			}
		} else {
			fl, err := e.member(self, f, false, visiting)
			if err != nil {
				return nil, err
			}
			size, align = fl.Size, fl.Align
			l.Fields[i] = FieldLayout{Field: f, Layout: fl}
		}
		if size > l.Size {
			l.Size = size
		}
		if !packed && align > l.Align {
			l.Align = align
		}
	}

	l.Size = abi.AlignTo(l.Size, l.Align)
	if err := flatten(l); err != nil {
		return nil, err
	}
	return l, nil
}

// flatten builds the name table: direct names plus the members of anonymous
// aggregates, shifted by the anonymous member's offset.
func flatten(l *Layout) error {
	l.members = make(map[string]Member)
	for i, fl := range l.Fields {
		f := fl.Field
		if f.Name != "" {
			if _, dup := l.members[f.Name]; dup {
				return errors.Definition(l.Type.String(), "duplicate member %q", f.Name)
			}
			l.members[f.Name] = Member{
				Type:        f.Type,
				Name:        f.Name,
				Path:        []int{i},
				Offset:      fl.Offset,
				BitOffset:   fl.BitOffset,
				BitWidth:    fl.BitWidth,
				StorageSize: fl.StorageSize,
				BitField:    f.BitField,
			}
		}
		if !f.Promotes() || fl.Layout == nil {
			continue
		}
		for name, m := range fl.Layout.members {
			if _, dup := l.members[name]; dup {
				return errors.Definition(l.Type.String(), "promoted member %q collides", name)
			}
			path := make([]int, 0, len(m.Path)+1)
			path = append(path, i)
			path = append(path, m.Path...)
			m.Path = path
			m.Offset += fl.Offset
			l.members[name] = m
		}
	}
	return nil
}
