// Package util contains small generic helpers shared across packages,
// adapted from the teacher's util package. The original's Readn/Writen
// raw-pointer byte packing is dropped: this module funnels every guest
// memory access through vm.AddressSpace.ReadUser/WriteUser instead of
// unsafe.Pointer arithmetic, so no caller needs them.
package util

// Int is satisfied by all built-in integer types.
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
