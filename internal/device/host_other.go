//go:build !linux && !darwin

package device

import "unsafe"

// mapHost over-allocates on the Go heap and slices to the first aligned
// byte.
func mapHost(bytes, align int) (mem, backing []byte, err error) {
	backing = make([]byte, bytes+align-1)
	off := 0
	if mod := int(uintptr(unsafe.Pointer(&backing[0])) % uintptr(align)); mod != 0 {
		off = align - mod
	}
	return backing[off : off+bytes], backing, nil
}

func unmapHost([]byte) error { return nil }
