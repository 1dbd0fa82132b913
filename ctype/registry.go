package ctype

import (
	"sort"
	"sync"

	"github.com/wippyai/cbinding/errors"
)

type tagKey struct {
	name string
	kind Kind
}

// Registry owns the nominal side of the model: struct, union and enum tags
// and typedef names, over the primitives of one data model.
type Registry struct {
	prims    map[string]*Primitive
	tags     map[tagKey]Type
	typedefs map[string]Type
	model    DataModel
	policy   EnumPolicy
	mu       sync.RWMutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithEnumPolicy overrides the enum underlying-type policy.
func WithEnumPolicy(p EnumPolicy) Option {
	return func(r *Registry) {
		r.policy = p
	}
}

func NewRegistry(model DataModel, opts ...Option) *Registry {
	r := &Registry{
		prims:    model.primitives(),
		tags:     make(map[tagKey]Type),
		typedefs: make(map[string]Type),
		model:    model,
		policy:   DefaultEnumPolicy,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Model returns the registry's data model.
func (r *Registry) Model() DataModel { return r.model }

// Lookup resolves a primitive or typedef name.
func (r *Registry) Lookup(name string) (Type, bool) {
	if p, ok := r.prims[name]; ok {
		return p, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.typedefs[name]
	return t, ok
}

// StructTag returns the node for "struct tag", creating an incomplete one.
func (r *Registry) StructTag(tag string) *Struct {
	return r.tag(tag, KindStruct, func() Type { return &Struct{Aggregate{Tag: tag}} }).(*Struct)
}

// UnionTag returns the node for "union tag", creating an incomplete one.
func (r *Registry) UnionTag(tag string) *Union {
	return r.tag(tag, KindUnion, func() Type { return &Union{Aggregate{Tag: tag}} }).(*Union)
}

// EnumTag returns the node for "enum tag", creating an incomplete one.
func (r *Registry) EnumTag(tag string) *Enum {
	return r.tag(tag, KindEnum, func() Type { return &Enum{Tag: tag} }).(*Enum)
}

func (r *Registry) tag(name string, kind Kind, create func() Type) Type {
	key := tagKey{name: name, kind: kind}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tags[key]; ok {
		return t
	}
	t := create()
	r.tags[key] = t
	return t
}

// DefineStruct completes the struct with the given tag. Pointers created
// against its forward declaration observe the definition.
func (r *Registry) DefineStruct(tag string, fields []Field, strategy Strategy) (*Struct, error) {
	s := r.StructTag(tag)
	if err := r.defineAggregate(s, &s.Aggregate, fields, strategy); err != nil {
		return nil, err
	}
	return s, nil
}

// DefineUnion completes the union with the given tag.
func (r *Registry) DefineUnion(tag string, fields []Field, strategy Strategy) (*Union, error) {
	u := r.UnionTag(tag)
	if err := r.defineAggregate(u, &u.Aggregate, fields, strategy); err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Registry) defineAggregate(self Type, agg *Aggregate, fields []Field, strategy Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agg.complete {
		return errors.Definition(self.String(), "redefinition")
	}
	agg.define(fields, strategy)
	if err := validateFields(self, agg.Fields); err != nil {
		agg.reset()
		return err
	}
	return nil
}

// DefineEnum completes the enum with the given tag. A nil underlying type is
// chosen by the registry's EnumPolicy.
func (r *Registry) DefineEnum(tag string, constants []Constant, underlying *Primitive) (*Enum, error) {
	e := r.EnumTag(tag)
	if err := r.completeEnum(e, constants, underlying); err != nil {
		return nil, err
	}
	return e, nil
}

// NewEnum returns a complete untagged enum.
func (r *Registry) NewEnum(constants []Constant, underlying *Primitive) (*Enum, error) {
	e := &Enum{}
	if err := r.completeEnum(e, constants, underlying); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *Registry) completeEnum(e *Enum, constants []Constant, underlying *Primitive) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.complete {
		return errors.Definition(e.String(), "redefinition")
	}
	seen := make(map[string]struct{}, len(constants))
	for _, c := range constants {
		if _, dup := seen[c.Name]; dup {
			return errors.Definition(e.String(), "duplicate enumerator %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	if underlying == nil {
		u, err := r.policy.Select(constants)
		if err != nil {
			return err
		}
		underlying = u
	} else {
		if underlying.Kind() != KindInt {
			return errors.Definition(e.String(), "underlying type %s is not an integer", underlying)
		}
		for _, c := range constants {
			if !fitsPrimitive(c.Value, underlying) {
				return errors.Definition(e.String(), "enumerator %q = %d does not fit %s", c.Name, c.Value, underlying)
			}
		}
	}
	e.Constants = constants
	e.Underlying = underlying
	e.complete = true
	return nil
}

func fitsPrimitive(v int64, p *Primitive) bool {
	if p.Signed {
		return fitsSigned(v, v, p.Size)
	}
	return v >= 0 && uint64(v) <= maxUnsigned(p.Size)
}

// Typedef binds name to t. Rebinding to an identical type is allowed.
func (r *Registry) Typedef(name string, t Type) error {
	if _, ok := r.prims[name]; ok {
		return errors.Definition(name, "typedef shadows primitive")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.typedefs[name]; ok && !Identical(prev, t) {
		return errors.Definition(name, "conflicting typedef: %s vs %s", prev, t)
	}
	r.typedefs[name] = t
	return nil
}

// Undefine returns a tagged node to its incomplete state, or removes a
// typedef. Used to roll back a declaration whose layout failed.
func (r *Registry) Undefine(t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch tt := t.(type) {
	case *Struct:
		tt.reset()
	case *Union:
		tt.reset()
	case *Enum:
		tt.Constants = nil
		tt.Underlying = nil
		tt.complete = false
	}
}

// RemoveTypedef drops a typedef name.
func (r *Registry) RemoveTypedef(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.typedefs, name)
}

// Tags lists registered tags in sorted order, complete or not.
func (r *Registry) Tags() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.tags))
	for _, t := range r.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Incomplete lists tags that were referenced but never defined.
func (r *Registry) Incomplete() []Type {
	var out []Type
	for _, t := range r.Tags() {
		if !IsComplete(t) {
			out = append(out, t)
		}
	}
	return out
}

// Typedefs returns a snapshot of typedef bindings.
func (r *Registry) Typedefs() map[string]Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Type, len(r.typedefs))
	for k, v := range r.typedefs {
		out[k] = v
	}
	return out
}
