package decl

import (
	"context"

	"go.uber.org/multierr"

	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/invoke"
	"github.com/wippyai/cbinding/library"
)

// Bindings are a Set's functions and globals bound through a resolver.
// Libraries are declared but not opened; symbols resolve at first use.
type Bindings struct {
	Functions map[string]*invoke.Function
	Globals   map[string]*invoke.Global
	libs      map[string]*library.Library
}

// Bind declares every library the set names and binds its symbols.
func (s *Set) Bind(r *library.Resolver) (*Bindings, error) {
	b := &Bindings{
		Functions: make(map[string]*invoke.Function, len(s.funcs)),
		Globals:   make(map[string]*invoke.Global, len(s.globals)),
		libs:      make(map[string]*library.Library),
	}
	lib := func(name string) (*library.Library, error) {
		if l, ok := b.libs[name]; ok {
			return l, nil
		}
		l, err := r.Declare(name)
		if err != nil {
			return nil, err
		}
		b.libs[name] = l
		return l, nil
	}

	var errs error
	for _, f := range s.funcs {
		l, err := lib(f.Library)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		fn, err := invoke.NewFunction(l, f.Symbol, f.Type.(*ctype.Function))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		b.Functions[f.Name] = fn
	}
	for _, g := range s.globals {
		l, err := lib(g.Library)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		gl, err := invoke.NewGlobal(l, g.Symbol, g.Type)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		b.Globals[g.Name] = gl
	}
	return b, errs
}

// Library returns the declared library with the given name.
func (b *Bindings) Library(name string) (*library.Library, bool) {
	l, ok := b.libs[name]
	return l, ok
}

// Release drops the references Bind took.
func (b *Bindings) Release(ctx context.Context) error {
	var err error
	for name, l := range b.libs {
		err = multierr.Append(err, l.Release(ctx))
		delete(b.libs, name)
	}
	return err
}
