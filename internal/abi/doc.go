// Package abi provides the lowered calling representation shared by the
// invocation layer and the execution backends.
//
// # Contents
//
//   - class.go: scalar value classes and their raw uint64 encoding
//   - signature.go: lowered signatures with convention and placement data
//   - helpers.go: alignment and overflow-checked size arithmetic
package abi
