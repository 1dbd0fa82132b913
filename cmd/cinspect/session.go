package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wippyai/cbinding/decl"
	"github.com/wippyai/cbinding/engine"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/layout"
	"github.com/wippyai/cbinding/library"
)

type backend interface {
	library.Backend
	Close(ctx context.Context) error
}

// session is a declaration file applied for one target and bound to the
// backend that can load its libraries.
type session struct {
	set      *decl.Set
	backend  backend
	resolver *library.Resolver
	bindings *decl.Bindings
	warnings error
}

type options struct {
	declFile string
	target   string
	lib      string
}

func isWasm(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".wasm")
}

func openSession(ctx context.Context, opts options) (*session, error) {
	f, err := decl.LoadFile(opts.declFile)
	if err != nil {
		return nil, err
	}
	if opts.lib != "" {
		f.Library = opts.lib
		for i := range f.Declarations {
			f.Declarations[i].Library = opts.lib
		}
	}

	wasm := isWasm(f.Library)
	for _, rec := range f.Declarations {
		wasm = wasm || isWasm(rec.Library)
	}

	targetName := opts.target
	if targetName == "" {
		targetName = f.Target
	}
	target := layout.Host()
	if wasm {
		target = layout.Wasm32
	}
	if targetName != "" {
		t, ok := layout.TargetByName(targetName)
		if !ok {
			return nil, fmt.Errorf("unknown target %q (lp64, llp64, ilp32, wasm32)", targetName)
		}
		target = t
	}

	s := &session{set: decl.NewSet(target)}
	s.warnings = s.set.Apply(f.Declarations)

	if wasm {
		b, err := engine.NewWasmBackend(ctx, &engine.WasmConfig{
			Stdout: os.Stdout,
			Stderr: os.Stderr,
			WASI:   true,
		})
		if err != nil {
			return nil, err
		}
		s.backend = b
	} else {
		b, err := engine.NewNativeBackend()
		if err != nil {
			return nil, err
		}
		s.backend = b
	}

	s.resolver = library.NewResolver(s.backend)
	s.bindings, err = s.set.Bind(s.resolver)
	if err != nil {
		s.close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *session) close(ctx context.Context) {
	if s.bindings != nil {
		_ = s.bindings.Release(ctx)
	}
	_ = s.resolver.Close(ctx)
	_ = s.backend.Close(ctx)
}

// call parses raw arguments against the declared function and calls it.
func (s *session) call(ctx context.Context, name string, raw []string) (string, error) {
	fn, ok := s.bindings.Functions[name]
	if !ok {
		return "", errors.NotFound(errors.PhaseInvoke, "function", name)
	}
	args, err := parseArgs(fn.Type(), raw)
	if err != nil {
		return "", err
	}
	result, err := fn.Call(ctx, args...)
	if err != nil {
		return "", err
	}
	return formatValue(result), nil
}
