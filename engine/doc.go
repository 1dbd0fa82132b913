// Package engine provides the execution backends that open libraries, map
// their memory and call their functions.
//
// # Backends
//
//	WasmBackend    - wasm32 modules compiled from C, run by wazero
//	NativeBackend  - host shared objects through dlopen and purego
//
// Both implement library.Backend; their handles (WasmModule, NativeLibrary)
// implement library.Handle and additionally expose:
//
//	Space()        - the value.Space addressing the library's memory
//	Call()         - invoke an address with a lowered abi.Signature
//	NewCallback()  - expose a host function as a C function pointer
//
// # Wasm32 Modules
//
// A wasm module stands in for a shared library. Opening it compiles and
// instantiates it; reactors built by wasi-libc get _initialize run. The
// linear memory is the library's address space and the exported malloc and
// free serve as its allocator.
//
// Symbols resolve against exports:
//
//	Export kind     Address
//	─────────────────────────────────────────────
//	function        opaque handle from 0xFFFF0000
//	i32 global      the global's value (a data address)
//
// Arguments are lowered as clang's wasm32 basic C ABI does: aggregates
// travel by pointer unless they hold a single scalar, aggregate results come
// back through a hidden sret pointer, and variadic arguments are packed into
// a buffer passed as a trailing pointer. The lowered shape is checked
// against the export's wasm type before every call.
//
// # Native Libraries
//
// Available on linux and darwin, amd64 and arm64. Calls are made through
// func values registered with purego.RegisterFunc, built with reflection
// from the lowered signature and cached per address and shape. Aggregates by
// value are not supported. Memory access is raw; allocation uses libc.
//
// # Calling Conventions
//
// stdcall, fastcall and thiscall fold into the platform convention on both
// backends, as 64-bit and wasm32 compilers do.
//
// # Thread Safety
//
// Backends are safe for concurrent use. Calls into one WasmModule are
// serialized; native calls are not.
package engine
