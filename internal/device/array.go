package device

import "fmt"

// Array is an owning device allocation of n elements of T.
// A zero-length Array holds no buffer.
type Array[T Scalar] struct {
	buf Buffer
	n   int
}

// NewArray allocates n elements on dev. Contents are unspecified.
func NewArray[T Scalar](dev Device, n int) (*Array[T], error) {
	if n < 0 {
		return nil, fmt.Errorf("device: negative array length %d", n)
	}
	if n == 0 {
		return &Array[T]{}, nil
	}
	buf, err := dev.Alloc(n * SizeOf[T]())
	if err != nil {
		return nil, err
	}
	return &Array[T]{buf: buf, n: n}, nil
}

// FromHost allocates an array on dev holding a copy of src.
func FromHost[T Scalar](dev Device, src []T) (*Array[T], error) {
	a, err := NewArray[T](dev, len(src))
	if err != nil {
		return nil, err
	}
	if err := a.CopyFrom(src); err != nil {
		_ = a.Free()
		return nil, err
	}
	return a, nil
}

// Filled allocates n elements on dev, all set to v.
func Filled[T Scalar](dev Device, n int, v T) (*Array[T], error) {
	a, err := NewArray[T](dev, n)
	if err != nil {
		return nil, err
	}
	if err := a.Fill(v); err != nil {
		_ = a.Free()
		return nil, err
	}
	return a, nil
}

func (a *Array[T]) Len() int {
	if a == nil {
		return 0
	}
	return a.n
}

// Ptr returns the address of the first element.
func (a *Array[T]) Ptr() Ptr[T] {
	if a == nil {
		return Ptr[T]{}
	}
	return Ptr[T]{buf: a.buf}
}

func (a *Array[T]) Fill(v T) error {
	if z, ok := a.Ptr().Buffer().(Zeroer); ok && v == 0 {
		return z.Zero()
	}
	return Fill(a.Ptr(), a.Len(), v)
}

// CopyFrom overwrites the array with src, which must have the same length.
func (a *Array[T]) CopyFrom(src []T) error {
	if len(src) != a.Len() {
		return fmt.Errorf("device: copy %d elements into array of %d", len(src), a.Len())
	}
	return Write(a.Ptr(), src)
}

// CopyFromArray overwrites the array with the contents of other.
func (a *Array[T]) CopyFromArray(other *Array[T]) error {
	vals, err := other.Host()
	if err != nil {
		return err
	}
	return a.CopyFrom(vals)
}

// Host copies the array back to host memory.
func (a *Array[T]) Host() ([]T, error) {
	return Read(a.Ptr(), a.Len())
}

// Free releases the allocation. Freeing twice is a no-op.
func (a *Array[T]) Free() error {
	if a == nil || a.buf == nil {
		return nil
	}
	err := a.buf.Free()
	a.buf = nil
	a.n = 0
	return err
}
