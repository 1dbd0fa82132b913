package value

import (
	"strconv"
	"strings"

	"github.com/wippyai/cbinding/errors"
)

// Segment is one step of a Path: a member name or an array index.
type Segment struct {
	Name    string
	Index   int
	IsIndex bool
}

// Field returns a member segment.
func Field(name string) Segment { return Segment{Name: name} }

// Index returns an index segment.
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Name
}

// Path navigates from a Value or Pointer to a member or element.
type Path []Segment

// ParsePath parses paths of the form "a.b[2].c" or "[0].x".
func ParsePath(s string) (Path, error) {
	var p Path
	i := 0
	for i < len(s) {
		switch c := s[i]; {
		case c == '.':
			if i == 0 || i == len(s)-1 || s[i+1] == '.' || s[i+1] == '[' {
				return nil, errors.Access(nil, "malformed path %q", s)
			}
			i++
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, errors.Access(nil, "unterminated index in path %q", s)
			}
			n, err := strconv.Atoi(strings.TrimSpace(s[i+1 : i+end]))
			if err != nil || n < 0 {
				return nil, errors.Access(nil, "invalid index %q in path %q", s[i+1:i+end], s)
			}
			p = append(p, Index(n))
			i += end + 1
			if i < len(s) && s[i] != '.' && s[i] != '[' {
				return nil, errors.Access(nil, "malformed path %q", s)
			}
		default:
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				j++
			}
			p = append(p, Field(s[i:j]))
			i = j
		}
	}
	return p, nil
}

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if !s.IsIndex && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// names renders a path prefix for error reporting.
func (p Path) names() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.String()
	}
	return out
}

// with returns a copy of p extended by s.
func (p Path) with(s Segment) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = s
	return out
}
