package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/decl"
	"github.com/wippyai/cbinding/layout"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// printer writes the listing, styled only when writing to a terminal.
type printer struct {
	w      io.Writer
	styled bool
}

func (p *printer) render(s lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return s.Render(text)
}

func (p *printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) list(set *decl.Set) {
	t := set.Engine().Target()
	p.printf("%s pointer %d, long %d, char %s\n\n", p.render(titleStyle, "Target"),
		t.PointerSize, t.LongSize, signedness(t.CharSigned))

	if types := set.Types(); len(types) > 0 {
		p.printf("%s\n", p.render(titleStyle, "Types"))
		for _, d := range types {
			p.typeLayout(set.Engine(), d)
		}
		p.printf("\n")
	}
	if funcs := set.Functions(); len(funcs) > 0 {
		p.printf("%s\n", p.render(titleStyle, "Functions"))
		for _, f := range funcs {
			p.printf("  %s %s  [%s]\n", p.render(funcStyle, f.Name), p.render(typeStyle, f.Type.String()), where(f))
		}
		p.printf("\n")
	}
	if globals := set.Globals(); len(globals) > 0 {
		p.printf("%s\n", p.render(titleStyle, "Globals"))
		for _, g := range globals {
			p.printf("  %s %s  [%s]\n", p.render(funcStyle, g.Name), p.render(typeStyle, g.Type.String()), where(g))
		}
	}
}

func signedness(signed bool) string {
	if signed {
		return "signed"
	}
	return "unsigned"
}

func where(s decl.Symbol) string {
	if s.Symbol != s.Name {
		return s.Library + ":" + s.Symbol
	}
	return s.Library
}

func (p *printer) typeLayout(e *layout.Engine, d decl.Declared) {
	l, err := e.Layout(d.Type)
	if err != nil {
		p.printf("  %s  %s\n", p.render(typeStyle, d.Name), p.render(errorStyle, err.Error()))
		return
	}
	p.printf("  %s  size %d, align %d", p.render(typeStyle, d.Name), l.Size, l.Align)
	if d.Name != d.Type.String() {
		p.printf("  = %s", d.Type)
	}
	p.printf("\n")

	if en, ok := d.Type.(*ctype.Enum); ok {
		for _, c := range en.Constants {
			p.printf("    %-24s = %d\n", c.Name, c.Value)
		}
		return
	}
	if !l.IsAggregate() {
		return
	}
	for _, m := range l.Members() {
		// Promoted members are indented by nesting depth.
		name := strings.Repeat("  ", max(len(m.Path)-1, 0)) + m.Name
		if m.BitField {
			p.printf("    %4d:%-2d %-24s %s : %d\n", m.Offset, m.BitOffset, name, p.render(typeStyle, m.Type.String()), m.BitWidth)
			continue
		}
		p.printf("    %4d    %-24s %s\n", m.Offset, name, p.render(typeStyle, m.Type.String()))
	}
}
