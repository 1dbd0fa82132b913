//go:build !((darwin || linux) && (amd64 || arm64))

package engine

import (
	"context"
	"runtime"

	"github.com/wippyai/cbinding/errors"
	"github.com/wippyai/cbinding/internal/abi"
	"github.com/wippyai/cbinding/layout"
	"github.com/wippyai/cbinding/library"
	"github.com/wippyai/cbinding/value"
)

// NativeBackend is unavailable on this platform.
type NativeBackend struct{}

func NewNativeBackend() (*NativeBackend, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "native libraries on "+runtime.GOOS+"/"+runtime.GOARCH)
}

func (*NativeBackend) Name() string                { return "native" }
func (*NativeBackend) Layouts() *layout.Engine     { return layout.NewEngine(layout.Host()) }
func (*NativeBackend) Space() *value.Space         { return nil }
func (*NativeBackend) Close(context.Context) error { return nil }

func (*NativeBackend) Alloc(size, align uint64) (uint64, error) {
	return 0, errors.AllocationFailed(errors.PhaseInvoke, size, align)
}
func (*NativeBackend) Free(_, _, _ uint64) {}

func (*NativeBackend) Open(context.Context, string) (library.Handle, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "native libraries on "+runtime.GOOS+"/"+runtime.GOARCH)
}

// NativeLibrary is unavailable on this platform.
type NativeLibrary struct{}

func (*NativeLibrary) Lookup(context.Context, string) (uint64, error) {
	return 0, errors.Unsupported(errors.PhaseResolve, "native symbols")
}
func (*NativeLibrary) Close(context.Context) error { return nil }
func (*NativeLibrary) Space() *value.Space         { return nil }
func (*NativeLibrary) Call(context.Context, uint64, *abi.Signature, []abi.Arg) (abi.Result, error) {
	return abi.Result{}, errors.Unsupported(errors.PhaseInvoke, "native calls")
}
func (*NativeLibrary) NewCallback(*abi.Signature, func([]uint64) uint64) (uint64, error) {
	return 0, errors.Unsupported(errors.PhaseInvoke, "native callbacks")
}
