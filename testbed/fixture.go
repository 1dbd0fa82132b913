// Package testbed holds end-to-end tests that run declarations against
// real modules, and the wasm32 fixture they share with package tests.
package testbed

// CModule is a wasm32 module shaped like clang output for:
//
//	int add(int a, int b);
//	void *malloc(size_t n);              // bump allocator from 1024
//	void free(void *p);                  // no-op
//	struct pair make_pair(int a, int b); // returned through sret
//	int sum(int count, ...);
//	int pair_sum(struct pair p);         // argument passed indirectly
//	double scale(double x, float f);
//	int counter = 42;                    // exported as an address global, at 16
//
// with struct pair { int a; int b; }.
var CModule = module(
	section(1, // types
		0x05,
		0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f, // (i32 i32) -> i32
		0x60, 0x01, 0x7f, 0x01, 0x7f, // (i32) -> i32
		0x60, 0x01, 0x7f, 0x00, // (i32) -> ()
		0x60, 0x03, 0x7f, 0x7f, 0x7f, 0x00, // (i32 i32 i32) -> ()
		0x60, 0x02, 0x7c, 0x7d, 0x01, 0x7c, // (f64 f32) -> f64
	),
	section(3, // functions
		0x07, 0x00, 0x01, 0x02, 0x03, 0x00, 0x01, 0x04,
	),
	section(5, // one page of memory
		0x01, 0x00, 0x01,
	),
	section(6, // globals
		0x02,
		0x7f, 0x01, 0x41, 0x80, 0x08, 0x0b, // heap: mut i32 = 1024
		0x7f, 0x00, 0x41, 0x10, 0x0b, // counter: i32 = 16
	),
	section(7, concat( // exports
		[]byte{0x09},
		export("memory", 0x02, 0),
		export("add", 0x00, 0),
		export("malloc", 0x00, 1),
		export("free", 0x00, 2),
		export("make_pair", 0x00, 3),
		export("sum", 0x00, 4),
		export("pair_sum", 0x00, 5),
		export("scale", 0x00, 6),
		export("counter", 0x03, 1),
	)...),
	section(10, concat( // code
		[]byte{0x07},
		// add
		body(0x00,
			0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b),
		// malloc: old := heap; heap += (n+7)&^7; return old
		body(0x00,
			0x23, 0x00,
			0x23, 0x00, 0x20, 0x00, 0x41, 0x07, 0x6a, 0x41, 0x78, 0x71, 0x6a,
			0x24, 0x00,
			0x0b),
		// free
		body(0x00, 0x0b),
		// make_pair: sret->a = a; sret->b = b
		body(0x00,
			0x20, 0x00, 0x20, 0x01, 0x36, 0x02, 0x00,
			0x20, 0x00, 0x20, 0x02, 0x36, 0x02, 0x04,
			0x0b),
		// sum: add count i32 slots from the va buffer
		body(0x01, 0x01, 0x7f,
			0x02, 0x40, 0x03, 0x40,
			0x20, 0x00, 0x45, 0x0d, 0x01,
			0x20, 0x02, 0x20, 0x01, 0x28, 0x02, 0x00, 0x6a, 0x21, 0x02,
			0x20, 0x01, 0x41, 0x04, 0x6a, 0x21, 0x01,
			0x20, 0x00, 0x41, 0x01, 0x6b, 0x21, 0x00,
			0x0c, 0x00, 0x0b, 0x0b,
			0x20, 0x02, 0x0b),
		// pair_sum
		body(0x00,
			0x20, 0x00, 0x28, 0x02, 0x00, 0x20, 0x00, 0x28, 0x02, 0x04, 0x6a, 0x0b),
		// scale: x * (double)f
		body(0x00,
			0x20, 0x00, 0x20, 0x01, 0xbb, 0xa2, 0x0b),
	)...),
	section(11, // data: counter = 42
		0x01, 0x00, 0x41, 0x10, 0x0b, 0x04, 0x2a, 0x00, 0x00, 0x00,
	),
)

// Fixture addresses and values.
const (
	CounterAddr  = 16
	CounterValue = 42
	HeapBase     = 1024
)

func module(sections ...[]byte) []byte {
	return concat(append([][]byte{{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}}, sections...)...)
}

// section and body only emit single-byte LEB128 sizes; every piece of the
// fixture is shorter than 128 bytes.
func section(id byte, content ...byte) []byte {
	return append([]byte{id, byte(len(content))}, content...)
}

func body(code ...byte) []byte {
	return append([]byte{byte(len(code))}, code...)
}

func export(name string, kind, index byte) []byte {
	out := append([]byte{byte(len(name))}, name...)
	return append(out, kind, index)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
