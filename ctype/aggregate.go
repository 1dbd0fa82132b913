package ctype

import (
	"strings"

	"github.com/wippyai/cbinding/errors"
)

// Strategy is the alignment policy of an aggregate.
type Strategy uint8

const (
	// Native applies the platform's default alignment and padding rules.
	Native Strategy = iota
	// Packed removes all padding.
	Packed
)

func (s Strategy) String() string {
	if s == Packed {
		return "packed"
	}
	return "native"
}

// Field is one member of a struct or union.
// An aggregate-typed field promotes that aggregate's members into the
// enclosing scope when the field has no name or the aggregate is marked
// anonymous; the latter keeps the member reachable by its own name too. An
// empty Name on a bit-field declares unnamed padding.
type Field struct {
	Type     Type
	Name     string
	BitWidth uint64
	BitField bool
	Order    int
}

// Anonymous reports whether the field has no name.
func (f Field) Anonymous() bool { return f.Name == "" }

// Promotes reports whether the field's members are reachable by name from
// the enclosing aggregate.
func (f Field) Promotes() bool {
	if f.BitField {
		return false
	}
	agg, ok := AggregateOf(f.Type)
	return ok && (f.Name == "" || agg.Anonymous)
}

// Aggregate holds what structs and unions share.
type Aggregate struct {
	Tag       string
	Fields    []Field
	Anonymous bool
	Strategy  Strategy
	complete  bool
}

// Complete reports whether the aggregate has been defined.
func (a *Aggregate) Complete() bool { return a.complete }

// Field returns the direct member with the given name.
func (a *Aggregate) Field(name string) (Field, bool) {
	for _, f := range a.Fields {
		if f.Name != "" && f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (a *Aggregate) spell(keyword string) string {
	if a.Tag != "" {
		return keyword + " " + a.Tag
	}
	var b strings.Builder
	b.WriteString(keyword)
	b.WriteString(" {")
	for i, f := range a.Fields {
		if i > 0 {
			b.WriteString(";")
		}
		b.WriteByte(' ')
		b.WriteString(f.Type.String())
		if f.Name != "" {
			b.WriteByte(' ')
			b.WriteString(f.Name)
		}
	}
	b.WriteString(" }")
	return b.String()
}

func (a *Aggregate) define(fields []Field, strategy Strategy) {
	for i := range fields {
		fields[i].Order = i
	}
	a.Fields = fields
	a.Strategy = strategy
	a.complete = true
}

func (a *Aggregate) reset() {
	a.Fields = nil
	a.Strategy = Native
	a.complete = false
}

// Struct is a C struct. Nodes obtained from a Registry are nominal by tag.
type Struct struct {
	Aggregate
}

// NewStruct returns a complete untagged struct after validating its fields.
func NewStruct(fields []Field, strategy Strategy, anonymous bool) (*Struct, error) {
	s := &Struct{}
	s.Anonymous = anonymous
	s.define(fields, strategy)
	if err := validateFields(s, s.Fields); err != nil {
		return nil, err
	}
	return s, nil
}

func (*Struct) Kind() Kind       { return KindStruct }
func (s *Struct) String() string { return s.spell("struct") }
func (*Struct) isType()          {}

// Union is a C union. Nodes obtained from a Registry are nominal by tag.
type Union struct {
	Aggregate
}

// NewUnion returns a complete untagged union after validating its fields.
func NewUnion(fields []Field, strategy Strategy, anonymous bool) (*Union, error) {
	u := &Union{}
	u.Anonymous = anonymous
	u.define(fields, strategy)
	if err := validateFields(u, u.Fields); err != nil {
		return nil, err
	}
	return u, nil
}

func (*Union) Kind() Kind       { return KindUnion }
func (u *Union) String() string { return u.spell("union") }
func (*Union) isType()          {}

// AggregateOf returns the shared part of a struct or union, ignoring qualifiers.
func AggregateOf(t Type) (*Aggregate, bool) {
	t, _ = Unqualify(t)
	switch a := t.(type) {
	case *Struct:
		return &a.Aggregate, true
	case *Union:
		return &a.Aggregate, true
	}
	return nil, false
}

func validateFields(self Type, fields []Field) error {
	names := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.Type == nil {
			return errors.Definition(self.String(), "field %q has no type", f.Name)
		}
		base, _ := Unqualify(f.Type)
		switch base.Kind() {
		case KindFunction:
			return errors.Definition(self.String(), "field %q has function type; use a pointer", f.Name)
		case KindVoid:
			return errors.Definition(self.String(), "field %q has type void", f.Name)
		}
		if f.BitField && !IsInteger(base) {
			return errors.Definition(self.String(), "bit-field %q must have integer type, not %s", f.Name, f.Type)
		}
		if f.Name == "" && !f.BitField && !IsAggregate(base) {
			return errors.Definition(self.String(), "unnamed member of type %s", f.Type)
		}
		if containsAggregate(f.Type, self, map[Type]bool{}) {
			return errors.Definition(self.String(), "field %q contains %s without an intervening pointer", f.Name, self)
		}
		if err := collectNames(self, f, names); err != nil {
			return err
		}
	}
	return nil
}

// collectNames adds the names a field makes visible, flattening anonymous
// aggregates, and reports collisions.
func collectNames(self Type, f Field, names map[string]struct{}) error {
	if f.Name != "" {
		if _, dup := names[f.Name]; dup {
			return errors.Definition(self.String(), "duplicate member %q", f.Name)
		}
		names[f.Name] = struct{}{}
	}
	if !f.Promotes() {
		return nil
	}
	inner, _ := AggregateOf(f.Type)
	if !inner.complete {
		return errors.Incomplete(f.Type.String())
	}
	for _, sub := range inner.Fields {
		if err := collectNames(self, sub, names); err != nil {
			return err
		}
	}
	return nil
}

// containsAggregate reports whether t embeds target by value.
func containsAggregate(t, target Type, seen map[Type]bool) bool {
	t, _ = Unqualify(t)
	switch tt := t.(type) {
	case *Array:
		return containsAggregate(tt.Elem, target, seen)
	case *Struct, *Union:
		if t == target {
			return true
		}
		if seen[t] {
			return false
		}
		seen[t] = true
		agg, _ := AggregateOf(t)
		for _, f := range agg.Fields {
			if containsAggregate(f.Type, target, seen) {
				return true
			}
		}
	}
	return false
}
