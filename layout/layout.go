package layout

import (
	"sort"

	"github.com/wippyai/cbinding/ctype"
)

// Layout is the computed memory shape of a type. It is immutable once
// returned by an Engine.
type Layout struct {
	Type ctype.Type
	Elem *Layout
	// Fields holds one entry per declared member, in declaration order.
	Fields  []FieldLayout
	members map[string]Member
	Size    uint64
	Align   uint64
	Len     uint64
	// Incomplete marks unknown-length arrays; their Size is zero.
	Incomplete bool
	// Flexible marks a struct whose last member is an unknown-length array.
	Flexible bool
	Strategy ctype.Strategy
}

// FieldLayout places one declared member.
type FieldLayout struct {
	Layout *Layout
	Field  ctype.Field
	Offset uint64
	// BitOffset and BitWidth are set for bit-fields; Offset is then the byte
	// offset of the storage window of StorageSize bytes.
	BitOffset   uint64
	BitWidth    uint64
	StorageSize uint64
}

// Member is an entry of the flattened name table: a name reachable from the
// aggregate, directly or promoted from anonymous members.
type Member struct {
	Type ctype.Type
	Name string
	// Path lists field indices from this layout down to the member.
	Path        []int
	Offset      uint64
	BitOffset   uint64
	BitWidth    uint64
	StorageSize uint64
	BitField    bool
}

// Member returns the flattened entry for name.
func (l *Layout) Member(name string) (Member, bool) {
	m, ok := l.members[name]
	return m, ok
}

// Members returns every reachable name ordered by offset, then name.
func (l *Layout) Members() []Member {
	out := make([]Member, 0, len(l.members))
	for _, m := range l.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Offset != out[j].Offset {
			return out[i].Offset < out[j].Offset
		}
		if out[i].BitOffset != out[j].BitOffset {
			return out[i].BitOffset < out[j].BitOffset
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Offsetof returns the byte offset of a named member.
func (l *Layout) Offsetof(name string) (uint64, bool) {
	m, ok := l.members[name]
	return m.Offset, ok
}

// IsAggregate reports whether the layout has a name table.
func (l *Layout) IsAggregate() bool {
	return l.members != nil
}
