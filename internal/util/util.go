// Package util collects small generic helpers shared across the kernel,
// the way teacher/util/util.go does for biscuit.
package util

import "encoding/binary"

// Int is satisfied by all built-in integer types, same constraint biscuit
// declares in teacher/util/util.go.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Min returns the smaller of a and b.
func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max[T Int](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// Rounddown aligns v down to the nearest multiple of b.
func Rounddown[T Int](v, b T) T {
	return v - (v % b)
}

// Roundup aligns v up to the nearest multiple of b.
func Roundup[T Int](v, b T) T {
	return Rounddown(v+b-1, b)
}

// DivRoundup returns ceil(a/b) for positive a, b.
func DivRoundup(a, b int) int {
	return (a + b - 1) / b
}

// PutU32 writes v little-endian at off, matching the on-disk byte order
// spec.md §3 mandates for every persisted header field.
func PutU32(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], v)
}

// GetU32 reads a little-endian uint32 at off.
func GetU32(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off : off+4])
}
