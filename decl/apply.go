package decl

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/multierr"

	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/layout"
)

// Declared is a named type introduced by a record.
type Declared struct {
	Name string
	Type ctype.Type
}

// Symbol is a function or global bound to a library symbol.
type Symbol struct {
	Name    string
	Library string
	Symbol  string
	Type    ctype.Type
}

// Set is the result of applying declarations for one target.
type Set struct {
	reg     *ctype.Registry
	engine  *layout.Engine
	types   []Declared
	funcs   []Symbol
	globals []Symbol
	names   map[string]struct{}
}

// NewSet returns an empty set for target.
func NewSet(target layout.Target, opts ...ctype.Option) *Set {
	return &Set{
		reg:    ctype.NewRegistry(target.DataModel, opts...),
		engine: layout.NewEngine(target),
		names:  make(map[string]struct{}),
	}
}

func (s *Set) Registry() *ctype.Registry { return s.reg }
func (s *Set) Engine() *layout.Engine    { return s.engine }
func (s *Set) Types() []Declared         { return s.types }
func (s *Set) Functions() []Symbol       { return s.funcs }
func (s *Set) Globals() []Symbol         { return s.globals }

// Function returns the declared function with the given name.
func (s *Set) Function(name string) (Symbol, *ctype.Function, bool) {
	for _, f := range s.funcs {
		if f.Name == name {
			return f, f.Type.(*ctype.Function), true
		}
	}
	return Symbol{}, nil, false
}

// Global returns the declared global with the given name.
func (s *Set) Global(name string) (Symbol, bool) {
	for _, g := range s.globals {
		if g.Name == name {
			return g, true
		}
	}
	return Symbol{}, false
}

// Apply declares recs in order. A failing record leaves no partial type
// behind and does not stop later records; all failures are returned
// together.
func (s *Set) Apply(recs []Record) error {
	var errs error
	for _, rec := range recs {
		if err := s.apply(rec); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", rec, err))
		}
	}
	return errs
}

func (s *Set) apply(rec Record) error {
	switch rec.Kind {
	case KindStruct, KindUnion:
		return s.aggregate(rec)
	case KindEnum:
		return s.enum(rec)
	case KindTypedef:
		return s.typedef(rec)
	case KindFunction:
		return s.function(rec)
	case KindGlobal:
		return s.global(rec)
	}
	return errors.Definition(rec.Name, "unknown declaration kind %q", rec.Kind)
}

func (s *Set) declare(name string, t ctype.Type) {
	s.types = append(s.types, Declared{Name: name, Type: t})
}

func (s *Set) aggregate(rec Record) error {
	if rec.Name == "" {
		return errors.Definition(string(rec.Kind), "declaration needs a tag")
	}
	if rec.Members == nil {
		if rec.Kind == KindStruct {
			s.reg.StructTag(rec.Name)
		} else {
			s.reg.UnionTag(rec.Name)
		}
		return nil
	}

	fields, err := s.fields(rec.Members)
	if err != nil {
		return err
	}
	strategy := ctype.Native
	if rec.Packed {
		strategy = ctype.Packed
	}

	var t ctype.Type
	var agg *ctype.Aggregate
	if rec.Kind == KindStruct {
		st := s.reg.StructTag(rec.Name)
		t, agg = st, &st.Aggregate
	} else {
		u := s.reg.UnionTag(rec.Name)
		t, agg = u, &u.Aggregate
	}
	if agg.Complete() {
		return errors.Definition(t.String(), "redefinition")
	}
	agg.Anonymous = rec.Anonymous

	if rec.Kind == KindStruct {
		_, err = s.reg.DefineStruct(rec.Name, fields, strategy)
	} else {
		_, err = s.reg.DefineUnion(rec.Name, fields, strategy)
	}
	if err == nil {
		_, err = s.engine.Layout(t)
	}
	if err != nil {
		s.reg.Undefine(t)
		agg.Anonymous = false
		return err
	}
	s.declare(t.String(), t)
	return nil
}

func (s *Set) enum(rec Record) error {
	constants, err := enumerators(rec.Constants)
	if err != nil {
		return err
	}
	underlying, err := s.underlying(rec.Underlying)
	if err != nil {
		return err
	}

	var e *ctype.Enum
	if rec.Name == "" {
		e, err = s.reg.NewEnum(constants, underlying)
		if err != nil {
			return err
		}
	} else {
		e, err = s.reg.DefineEnum(rec.Name, constants, underlying)
		if err != nil {
			return err
		}
		if _, err := s.engine.Layout(e); err != nil {
			s.reg.Undefine(e)
			return err
		}
	}
	s.declare(e.String(), e)
	return nil
}

func (s *Set) typedef(rec Record) error {
	if rec.Name == "" {
		return errors.Definition("typedef", "declaration needs a name")
	}
	t, err := s.resolve(rec.Type)
	if err != nil {
		return err
	}
	_, existed := s.reg.Typedefs()[rec.Name]
	if err := s.reg.Typedef(rec.Name, t); err != nil {
		return err
	}
	if err := s.validate(t); err != nil {
		if !existed {
			s.reg.RemoveTypedef(rec.Name)
		}
		return err
	}
	if !existed {
		s.declare(rec.Name, t)
	}
	return nil
}

func (s *Set) function(rec Record) error {
	var fn *ctype.Function
	switch {
	case rec.Signature != nil:
		f, err := s.signature(rec.Signature)
		if err != nil {
			return err
		}
		fn = f
	case rec.Type != nil:
		t, err := s.resolve(rec.Type)
		if err != nil {
			return err
		}
		u, _ := ctype.Unqualify(t)
		f, ok := u.(*ctype.Function)
		if !ok {
			return errors.Definition(t.String(), "function %s needs a function type", rec.Name)
		}
		fn = f
	default:
		return errors.Definition(rec.Name, "function has no signature")
	}
	sym, err := s.symbol(rec, fn)
	if err != nil {
		return err
	}
	s.funcs = append(s.funcs, sym)
	return nil
}

func (s *Set) global(rec Record) error {
	t, err := s.resolve(rec.Type)
	if err != nil {
		return err
	}
	switch u, _ := ctype.Unqualify(t); u.Kind() {
	case ctype.KindVoid, ctype.KindFunction:
		return errors.Definition(t.String(), "global %s cannot have this type", rec.Name)
	}
	if err := s.validate(t); err != nil {
		return err
	}
	sym, err := s.symbol(rec, t)
	if err != nil {
		return err
	}
	s.globals = append(s.globals, sym)
	return nil
}

func (s *Set) symbol(rec Record, t ctype.Type) (Symbol, error) {
	if rec.Name == "" {
		return Symbol{}, errors.Definition(string(rec.Kind), "declaration needs a name")
	}
	if rec.Library == "" {
		return Symbol{}, errors.Definition(rec.Name, "no library for %s", rec.Kind)
	}
	if _, dup := s.names[rec.Name]; dup {
		return Symbol{}, errors.Definition(rec.Name, "redeclared")
	}
	sym := Symbol{Name: rec.Name, Library: rec.Library, Symbol: rec.Symbol, Type: t}
	if sym.Symbol == "" {
		sym.Symbol = rec.Name
	}
	s.names[rec.Name] = struct{}{}
	return sym, nil
}

// validate lays out t when it is complete. Incomplete types stay usable
// behind pointers and are checked where they are used by value.
func (s *Set) validate(t ctype.Type) error {
	u, _ := ctype.Unqualify(t)
	if u.Kind() == ctype.KindFunction || u.Kind() == ctype.KindVoid || !ctype.IsComplete(u) {
		return nil
	}
	_, err := s.engine.Layout(t)
	return err
}

func (s *Set) fields(members []Member) ([]ctype.Field, error) {
	fields := make([]ctype.Field, len(members))
	for i, m := range members {
		t, err := s.resolve(&m.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = ctype.Field{Type: t, Name: m.Name}
		if m.Bits != nil {
			fields[i].BitField = true
			fields[i].BitWidth = *m.Bits
		}
	}
	return fields, nil
}

// enumerators assigns implicit values the way C does.
func enumerators(cs []Constant) ([]ctype.Constant, error) {
	out := make([]ctype.Constant, len(cs))
	var next int64
	overflow := false
	for i, c := range cs {
		if c.Value != nil {
			next, overflow = *c.Value, false
		} else if overflow {
			return nil, errors.Definition(c.Name, "enumerator value overflows")
		}
		out[i] = ctype.Constant{Name: c.Name, Value: next}
		overflow = next == math.MaxInt64
		next++
	}
	return out, nil
}

func (s *Set) underlying(name string) (*ctype.Primitive, error) {
	if name == "" {
		return nil, nil
	}
	t, ok := s.reg.Lookup(name)
	if !ok {
		return nil, unknownType(name)
	}
	u, _ := ctype.Unqualify(t)
	p, ok := u.(*ctype.Primitive)
	if !ok || p.Kind() != ctype.KindInt {
		return nil, errors.Definition(name, "enum underlying type must be an integer")
	}
	return p, nil
}

func (s *Set) signature(sig *Signature) (*ctype.Function, error) {
	conv, ok := ctype.ParseConvention(sig.Convention)
	if !ok {
		return nil, errors.Definition(sig.Convention, "unknown calling convention")
	}
	fn := &ctype.Function{Variadic: sig.Variadic, Convention: conv}
	if sig.Return != nil {
		ret, err := s.resolve(sig.Return)
		if err != nil {
			return nil, err
		}
		fn.Return = ret
	}
	for _, p := range sig.Params {
		t, err := s.resolve(&p.Type)
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, ctype.Param{Type: t, Name: p.Name})
	}
	// (void) is the empty parameter list.
	if len(fn.Params) == 1 && fn.Params[0].Type == ctype.Void && fn.Params[0].Name == "" {
		fn.Params = nil
	}
	return fn, nil
}

// resolve builds the type a reference names. A nil reference is void.
func (s *Set) resolve(ref *TypeRef) (ctype.Type, error) {
	switch {
	case ref == nil:
		return ctype.Void, nil
	case ref.Name != "":
		return s.named(ref.Name)
	case ref.Pointer != nil:
		elem, err := s.resolve(ref.Pointer)
		if err != nil {
			return nil, err
		}
		return ctype.PointerTo(elem), nil
	case ref.Array != nil:
		elem, err := s.resolve(ref.Array)
		if err != nil {
			return nil, err
		}
		if ref.Len == nil {
			return ctype.UnknownArrayOf(elem), nil
		}
		return ctype.ArrayOf(elem, *ref.Len), nil
	case ref.Const != nil:
		inner, err := s.resolve(ref.Const)
		if err != nil {
			return nil, err
		}
		return ctype.ConstOf(inner), nil
	case ref.Volatile != nil:
		inner, err := s.resolve(ref.Volatile)
		if err != nil {
			return nil, err
		}
		return &ctype.Qualified{Inner: inner, Volatile: true}, nil
	case ref.Struct != nil:
		if ref.Struct.Tag != "" {
			return s.reg.StructTag(ref.Struct.Tag), nil
		}
		fields, err := s.fields(ref.Struct.Members)
		if err != nil {
			return nil, err
		}
		return ctype.NewStruct(fields, strategyOf(ref.Struct.Packed), ref.Struct.Anonymous)
	case ref.Union != nil:
		if ref.Union.Tag != "" {
			return s.reg.UnionTag(ref.Union.Tag), nil
		}
		fields, err := s.fields(ref.Union.Members)
		if err != nil {
			return nil, err
		}
		return ctype.NewUnion(fields, strategyOf(ref.Union.Packed), ref.Union.Anonymous)
	case ref.Enum != nil:
		if ref.Enum.Tag != "" {
			return s.reg.EnumTag(ref.Enum.Tag), nil
		}
		constants, err := enumerators(ref.Enum.Constants)
		if err != nil {
			return nil, err
		}
		underlying, err := s.underlying(ref.Enum.Underlying)
		if err != nil {
			return nil, err
		}
		return s.reg.NewEnum(constants, underlying)
	case ref.Function != nil:
		return s.signature(ref.Function)
	}
	return nil, errors.Definition("", "empty type reference")
}

func strategyOf(packed bool) ctype.Strategy {
	if packed {
		return ctype.Packed
	}
	return ctype.Native
}

// named resolves a spelled type: a primitive or typedef name, optionally
// prefixed by struct, union, enum or const and suffixed by stars.
func (s *Set) named(name string) (ctype.Type, error) {
	name = strings.TrimSpace(name)
	if base, ok := strings.CutSuffix(name, "*"); ok {
		elem, err := s.named(base)
		if err != nil {
			return nil, err
		}
		return ctype.PointerTo(elem), nil
	}
	if rest, ok := strings.CutPrefix(name, "const "); ok {
		inner, err := s.named(rest)
		if err != nil {
			return nil, err
		}
		return ctype.ConstOf(inner), nil
	}
	if kw, tag, ok := strings.Cut(name, " "); ok {
		tag = strings.TrimSpace(tag)
		switch kw {
		case "struct":
			return s.reg.StructTag(tag), nil
		case "union":
			return s.reg.UnionTag(tag), nil
		case "enum":
			return s.reg.EnumTag(tag), nil
		}
	}
	if t, ok := s.reg.Lookup(name); ok {
		return t, nil
	}
	return nil, unknownType(name)
}

// unknownType is a definition error that also matches errors.ErrNotFound.
func unknownType(name string) error {
	return errors.New(errors.PhaseDeclare, errors.KindDefinition).
		CType(name).
		Cause(errors.NotFound(errors.PhaseDeclare, "type", name)).
		Detail("undeclared type name").
		Build()
}
