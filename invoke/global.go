package invoke

import (
	"context"
	"sync"

	"github.com/wippyai/cbinding/ctype"
	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/library"
	"github.com/wippyai/cbinding/value"
)

// Global binds a data symbol to its type. Reads and writes go through a
// Pointer to the symbol, so a const type rejects Store.
type Global struct {
	lib    *library.Library
	typ    ctype.Type
	symbol string
	ptr    value.Pointer
	bound  bool
	mu     sync.Mutex
}

// NewGlobal binds symbol of lib to t. The library is opened on first use.
func NewGlobal(lib *library.Library, symbol string, t ctype.Type) (*Global, error) {
	if t == nil {
		return nil, errors.InvalidInput(errors.PhaseInvoke, "nil type for "+symbol)
	}
	switch u, _ := ctype.Unqualify(t); u.Kind() {
	case ctype.KindVoid, ctype.KindFunction:
		return nil, errors.Definition(t.String(), "global %s cannot have type %s", symbol, t)
	}
	return &Global{lib: lib, symbol: symbol, typ: t}, nil
}

func (g *Global) Name() string     { return g.symbol }
func (g *Global) Type() ctype.Type { return g.typ }

// Pointer returns a Pointer to the symbol's storage.
func (g *Global) Pointer(ctx context.Context) (value.Pointer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := live(g.lib); err != nil {
		g.ptr, g.bound = value.Pointer{}, false
		return value.Pointer{}, err
	}
	if g.bound {
		return g.ptr, nil
	}
	addr, err := g.lib.Resolve(ctx, g.symbol)
	if err != nil {
		return value.Pointer{}, err
	}
	c, err := callerOf(ctx, g.lib)
	if err != nil {
		return value.Pointer{}, err
	}
	g.ptr = c.Space().At(addr, g.typ)
	g.bound = true
	return g.ptr, nil
}

// Load reads the current value.
func (g *Global) Load(ctx context.Context) (any, error) {
	p, err := g.Pointer(ctx)
	if err != nil {
		return nil, err
	}
	return p.Load()
}

// Store overwrites the value.
func (g *Global) Store(ctx context.Context, x any) error {
	p, err := g.Pointer(ctx)
	if err != nil {
		return err
	}
	return p.Store(x)
}

// Get reads a member or element by path, such as "hdr.len" or "items[2]".
func (g *Global) Get(ctx context.Context, path string) (any, error) {
	p, err := g.Pointer(ctx)
	if err != nil {
		return nil, err
	}
	return p.Get(path)
}

// Set writes a member or element by path.
func (g *Global) Set(ctx context.Context, path string, x any) error {
	p, err := g.Pointer(ctx)
	if err != nil {
		return err
	}
	return p.Set(path, x)
}
