package decl

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind names what a Record declares.
type Kind string

const (
	KindStruct   Kind = "struct"
	KindUnion    Kind = "union"
	KindEnum     Kind = "enum"
	KindTypedef  Kind = "typedef"
	KindFunction Kind = "function"
	KindGlobal   Kind = "global"
)

// File is a declaration stream. Records without a library inherit Library.
type File struct {
	Library      string   `yaml:"library"`
	Target       string   `yaml:"target"`
	Declarations []Record `yaml:"declarations"`
}

// Record is one declaration.
//
// Struct and union records with no members key are forward declarations.
// Function and global records name the library and symbol they bind to;
// Symbol defaults to Name.
type Record struct {
	Kind       Kind       `yaml:"kind"`
	Name       string     `yaml:"name"`
	Members    []Member   `yaml:"members"`
	Constants  []Constant `yaml:"constants"`
	Underlying string     `yaml:"underlying"`
	Type       *TypeRef   `yaml:"type"`
	Signature  *Signature `yaml:"signature"`
	Packed     bool       `yaml:"packed"`
	Anonymous  bool       `yaml:"anonymous"`
	Library    string     `yaml:"library"`
	Symbol     string     `yaml:"symbol"`
	Line       int        `yaml:"-"`
}

func (r Record) String() string {
	if r.Line > 0 {
		return fmt.Sprintf("%s %s (line %d)", r.Kind, r.Name, r.Line)
	}
	return fmt.Sprintf("%s %s", r.Kind, r.Name)
}

// Member is a struct or union field. Bits makes it a bit-field; a zero
// width with no name is an alignment break.
type Member struct {
	Name string  `yaml:"name"`
	Type TypeRef `yaml:"type"`
	Bits *uint64 `yaml:"bits"`
}

// Constant is an enumerator. A missing value continues from the previous
// one, starting at zero.
type Constant struct {
	Name  string `yaml:"name"`
	Value *int64 `yaml:"value"`
}

// Signature is a function type.
type Signature struct {
	Return     *TypeRef `yaml:"return"`
	Params     []Param  `yaml:"params"`
	Variadic   bool     `yaml:"variadic"`
	Convention string   `yaml:"convention"`
}

type Param struct {
	Name string  `yaml:"name"`
	Type TypeRef `yaml:"type"`
}

// TypeRef refers to a type. The scalar form is a primitive, typedef or
// "struct tag" spelling; the mapping form builds a derived type:
//
//	{pointer: int}
//	{array: char, len: 16}
//	{const: char}
//	{struct: tag}
//	{struct: {members: [...], packed: true}}
//	{function: {return: int, params: [...]}}
type TypeRef struct {
	Name     string        `yaml:"-"`
	Pointer  *TypeRef      `yaml:"pointer"`
	Array    *TypeRef      `yaml:"array"`
	Len      *uint64       `yaml:"len"`
	Const    *TypeRef      `yaml:"const"`
	Volatile *TypeRef      `yaml:"volatile"`
	Struct   *AggregateRef `yaml:"struct"`
	Union    *AggregateRef `yaml:"union"`
	Enum     *EnumRef      `yaml:"enum"`
	Function *Signature    `yaml:"function"`
}

// UnmarshalYAML accepts the scalar spelling as well as the mapping form.
func (t *TypeRef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*t = TypeRef{Name: n.Value}
		return nil
	}
	type plain TypeRef
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*t = TypeRef(p)
	return nil
}

func (t *TypeRef) String() string {
	switch {
	case t == nil:
		return "void"
	case t.Name != "":
		return t.Name
	case t.Pointer != nil:
		return t.Pointer.String() + " *"
	case t.Array != nil:
		if t.Len == nil {
			return t.Array.String() + "[]"
		}
		return fmt.Sprintf("%s[%d]", t.Array, *t.Len)
	case t.Const != nil:
		return "const " + t.Const.String()
	case t.Volatile != nil:
		return "volatile " + t.Volatile.String()
	case t.Struct != nil:
		return "struct " + t.Struct.Tag
	case t.Union != nil:
		return "union " + t.Union.Tag
	case t.Enum != nil:
		return "enum " + t.Enum.Tag
	case t.Function != nil:
		return "function"
	}
	return "<empty>"
}

// AggregateRef is either a tag or an inline untagged definition.
type AggregateRef struct {
	Tag       string   `yaml:"-"`
	Members   []Member `yaml:"members"`
	Packed    bool     `yaml:"packed"`
	Anonymous bool     `yaml:"anonymous"`
}

func (a *AggregateRef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*a = AggregateRef{Tag: n.Value}
		return nil
	}
	type plain AggregateRef
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*a = AggregateRef(p)
	return nil
}

// EnumRef is either a tag or an inline untagged enum.
type EnumRef struct {
	Tag        string     `yaml:"-"`
	Constants  []Constant `yaml:"constants"`
	Underlying string     `yaml:"underlying"`
}

func (e *EnumRef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*e = EnumRef{Tag: n.Value}
		return nil
	}
	type plain EnumRef
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*e = EnumRef(p)
	return nil
}
