// Package device abstracts the memory of the execution context that runs
// mechanism kernels. Buffers are addressed by device addresses; host code
// moves data in and out through explicit copies and never aliases device
// memory with host slices.
package device

import (
	"errors"
	"unsafe"
)

var (
	ErrNotHostAddressable = errors.New("device: memory is not host addressable")
	ErrOutOfRange         = errors.New("device: access out of range")
	ErrFreed              = errors.New("device: buffer already freed")
)

// Device is an execution context owning its own memory.
type Device interface {
	Name() string
	// Alignment is the byte alignment of every allocation start.
	Alignment() int
	Alloc(bytes int) (Buffer, error)
	// Synchronize blocks until all previously issued copies, fills and
	// kernels have completed.
	Synchronize() error
}

// Buffer is a single device allocation.
type Buffer interface {
	Addr() uint64
	Len() int
	WriteAt(src []byte, off int) error
	ReadAt(dst []byte, off int) error
	Free() error
}

// Zeroer is implemented by buffers that can clear themselves without a
// host staging copy.
type Zeroer interface {
	Zero() error
}

// Resolver is implemented by devices whose memory the host can address
// directly, which is what host-executed kernels need.
type Resolver interface {
	Resolve(addr uint64, bytes int) ([]byte, error)
}

// Accountant reports the number of bytes currently allocated.
type Accountant interface {
	BytesInUse() int64
}

// Scalar is an element type that can live in device memory.
type Scalar interface {
	~float64 | ~float32 | ~int32 | ~int64 | ~uint32 | ~uint64
}

// SizeOf returns the size in bytes of one element of T.
func SizeOf[T Scalar]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

func asBytes[T Scalar](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*SizeOf[T]())
}

func fromBytes[T Scalar](b []byte) []T {
	n := len(b) / SizeOf[T]()
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), n)
}
