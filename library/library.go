package library

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/cbinding/errors"
)

// Backend opens libraries for one execution environment.
type Backend interface {
	Name() string
	Open(ctx context.Context, name string) (Handle, error)
}

// Handle is an opened library.
type Handle interface {
	// Lookup returns the address of symbol or an error if it is not exported.
	Lookup(ctx context.Context, symbol string) (uint64, error)
	Close(ctx context.Context) error
}

// Resolver maps library names to lazily opened, reference-counted handles.
// A name is opened at most once while referenced.
type Resolver struct {
	backend Backend
	libs    map[string]*Library
	mu      sync.Mutex
	closed  bool
}

func NewResolver(backend Backend) *Resolver {
	return &Resolver{
		backend: backend,
		libs:    make(map[string]*Library),
	}
}

// Backend returns the resolver's backend.
func (r *Resolver) Backend() Backend { return r.backend }

// Declare registers interest in a library without opening it and returns
// its shared Library. Each call takes a reference released by Release.
func (r *Resolver) Declare(name string) (*Library, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.InvalidInput(errors.PhaseResolve, "resolver closed")
	}
	lib, ok := r.libs[name]
	if !ok {
		lib = &Library{resolver: r, name: name, symbols: make(map[string]uint64)}
		r.libs[name] = lib
	}
	lib.refs++
	return lib, nil
}

// Open declares the library and opens it now. Repeated opens of the same
// name return the same Library and backend handle.
func (r *Resolver) Open(ctx context.Context, name string) (*Library, error) {
	lib, err := r.Declare(name)
	if err != nil {
		return nil, err
	}
	if _, err := lib.Handle(ctx); err != nil {
		_ = lib.Release(ctx)
		return nil, err
	}
	return lib, nil
}

// Lookup returns a declared library by name.
func (r *Resolver) Lookup(name string) (*Library, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lib, ok := r.libs[name]
	return lib, ok
}

// Libraries lists declared library names.
func (r *Resolver) Libraries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.libs))
	for name := range r.libs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Preflight resolves every symbol listed per library and reports all that
// are missing at once.
func (r *Resolver) Preflight(ctx context.Context, symbols map[string][]string) error {
	names := make([]string, 0, len(symbols))
	for name := range symbols {
		names = append(names, name)
	}
	sort.Strings(names)

	var missing []string
	for _, name := range names {
		lib, err := r.Declare(name)
		if err != nil {
			return err
		}
		for _, sym := range symbols[name] {
			if _, err := lib.Resolve(ctx, sym); err != nil {
				missing = append(missing, name+"#"+sym)
			}
		}
		if err := lib.Release(ctx); err != nil {
			return err
		}
	}
	if len(missing) > 0 {
		return errors.NewMissingSymbolsError(missing)
	}
	return nil
}

// Close closes every open library regardless of outstanding references.
func (r *Resolver) Close(ctx context.Context) error {
	r.mu.Lock()
	libs := r.libs
	r.libs = make(map[string]*Library)
	r.closed = true
	r.mu.Unlock()

	var err error
	for _, lib := range libs {
		err = multierr.Append(err, lib.close(ctx))
	}
	return err
}

// Library is a declared library. It opens on first use and caches resolved
// symbol addresses.
type Library struct {
	resolver *Resolver
	handle   Handle
	symbols  map[string]uint64
	name     string
	refs     int // guarded by resolver.mu
	released bool
	mu       sync.Mutex
}

func (l *Library) Name() string { return l.name }

// Released reports whether the last reference was dropped or the resolver
// closed. A released library never reopens.
func (l *Library) Released() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

// IsOpen reports whether the backend handle has been opened.
func (l *Library) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle != nil
}

// Handle returns the backend handle, opening the library on first use.
func (l *Library) Handle(ctx context.Context) (Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open(ctx)
}

func (l *Library) open(ctx context.Context) (Handle, error) {
	if l.handle != nil {
		return l.handle, nil
	}
	if l.released {
		return nil, errors.InvalidInput(errors.PhaseResolve, "library "+l.name+" released")
	}
	h, err := l.resolver.backend.Open(ctx, l.name)
	if err != nil {
		Logger().Warn("open library failed",
			zap.String("library", l.name),
			zap.String("backend", l.resolver.backend.Name()),
			zap.Error(err))
		return nil, errors.Load("open library "+l.name, err)
	}
	Logger().Debug("opened library",
		zap.String("library", l.name),
		zap.String("backend", l.resolver.backend.Name()))
	l.handle = h
	return h, nil
}

// Resolve returns the address of symbol, opening the library if needed.
// Failures surface here, at first use, as unresolved-symbol errors.
func (l *Library) Resolve(ctx context.Context, symbol string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if addr, ok := l.symbols[symbol]; ok {
		return addr, nil
	}
	h, err := l.open(ctx)
	if err != nil {
		return 0, errors.UnresolvedSymbol(l.name, symbol, err)
	}
	addr, err := h.Lookup(ctx, symbol)
	if err != nil {
		Logger().Debug("symbol not found",
			zap.String("library", l.name),
			zap.String("symbol", symbol),
			zap.Error(err))
		return 0, errors.UnresolvedSymbol(l.name, symbol, err)
	}
	l.symbols[symbol] = addr
	return addr, nil
}

// Release drops one reference; the last one closes the library.
func (l *Library) Release(ctx context.Context) error {
	r := l.resolver
	r.mu.Lock()
	l.refs--
	last := l.refs <= 0
	if last && r.libs[l.name] == l {
		delete(r.libs, l.name)
	}
	r.mu.Unlock()
	if !last {
		return nil
	}
	return l.close(ctx)
}

func (l *Library) close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	if l.handle == nil {
		return nil
	}
	err := l.handle.Close(ctx)
	l.handle = nil
	clear(l.symbols)
	Logger().Debug("closed library", zap.String("library", l.name), zap.Error(err))
	return err
}
