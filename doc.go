// Package cbinding models C-ABI data and function types inside a Go program
// and lets that program construct, inspect, mutate and call across the
// boundary without a separate compilation step.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	cbinding/            Root package with Memory, Allocator and Arena
//	├── ctype/           C type model and tag registry
//	├── layout/          Size, alignment and offset computation per target
//	├── value/           Values, Pointers and path-based access
//	├── library/         Lazy, ref-counted library and symbol resolution
//	├── invoke/          Function and global bindings, calling conventions
//	├── engine/          Execution backends: wazero (wasm32) and purego (native)
//	├── decl/            Declaration records and YAML loading
//	├── errors/          Structured error types
//	└── cmd/cinspect/    Layout inspection and call CLI
//
// # Quick Start
//
//	reg := ctype.NewRegistry(ctype.LP64)
//	point, _ := reg.DefineStruct("point", []ctype.Field{
//	    {Name: "x", Type: ctype.Int},
//	    {Name: "y", Type: ctype.Int},
//	}, ctype.Native)
//
//	space := value.NewSpace(cbinding.NewArena(0), layout.NewEngine(layout.LP64))
//	p, _ := space.New(point, map[string]any{"x": 3})
//	x, _ := p.Get("x") // int64(3)
//
// # Memory Model
//
// Every address space is little-endian and addressed with uint64. Address 0
// is the null pointer. Values own a private copy of their bytes; Pointers
// are non-owning views into a Memory.
package cbinding
