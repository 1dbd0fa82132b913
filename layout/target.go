package layout

import (
	"runtime"

	"github.com/wippyai/cbinding/ctype"
)

// Target is a data model plus the alignment rules of one ABI.
type Target struct {
	ctype.DataModel
	PointerAlign    uint64
	Int64Align      uint64
	DoubleAlign     uint64
	LongDoubleAlign uint64
}

var (
	// LP64 covers linux and darwin on amd64 and arm64.
	LP64 = Target{DataModel: ctype.LP64, PointerAlign: 8, Int64Align: 8, DoubleAlign: 8, LongDoubleAlign: 16}
	// LLP64 covers windows on amd64.
	LLP64 = Target{DataModel: ctype.LLP64, PointerAlign: 8, Int64Align: 8, DoubleAlign: 8, LongDoubleAlign: 8}
	// ILP32 covers the i386 System V ABI.
	ILP32 = Target{DataModel: ctype.ILP32, PointerAlign: 4, Int64Align: 4, DoubleAlign: 4, LongDoubleAlign: 4}
	// Wasm32 covers clang's wasm32 targets.
	Wasm32 = Target{DataModel: ctype.Wasm32, PointerAlign: 4, Int64Align: 8, DoubleAlign: 8, LongDoubleAlign: 16}
)

var targets = map[string]Target{
	"lp64":   LP64,
	"llp64":  LLP64,
	"ilp32":  ILP32,
	"wasm32": Wasm32,
}

// TargetByName returns a built-in target.
func TargetByName(name string) (Target, bool) {
	t, ok := targets[name]
	return t, ok
}

// Host returns the target of the running process.
func Host() Target {
	switch {
	case runtime.GOARCH == "wasm":
		return Wasm32
	case runtime.GOOS == "windows" && runtime.GOARCH == "386":
		t := ILP32
		t.Int64Align, t.DoubleAlign = 8, 8
		t.LongDoubleSize, t.LongDoubleAlign = 8, 8
		t.WCharSize, t.WCharSigned = 2, false
		return t
	case runtime.GOOS == "windows":
		return LLP64
	case runtime.GOARCH == "386" || runtime.GOARCH == "arm" || runtime.GOARCH == "mipsle":
		return ILP32
	}
	t := LP64
	if runtime.GOARCH == "arm64" && runtime.GOOS == "linux" {
		t.CharSigned = false
	}
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		t.LongDoubleSize, t.LongDoubleAlign = 8, 8
	}
	return t
}

// primitiveAlign returns the alignment of a scalar of the given kind and size.
func (t Target) primitiveAlign(kind ctype.Kind, size uint64) uint64 {
	switch {
	case size == 0:
		return 1
	case kind == ctype.KindFloat && size == 8:
		return t.DoubleAlign
	case kind == ctype.KindFloat && size > 8:
		return t.LongDoubleAlign
	case size == 8:
		return t.Int64Align
	case size > 8:
		return t.LongDoubleAlign
	}
	return size
}
