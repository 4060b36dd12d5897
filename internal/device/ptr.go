package device

import (
	"fmt"
	"log/slog"
)

// Ptr is a typed device address: a buffer plus an element offset into it.
// The zero Ptr is valid to store and compare but must not be dereferenced.
type Ptr[T Scalar] struct {
	buf Buffer
	off int
}

// PtrTo returns a pointer to element off of buf.
func PtrTo[T Scalar](buf Buffer, off int) Ptr[T] {
	return Ptr[T]{buf: buf, off: off}
}

// Addr returns the device address, or 0 for a nil pointer.
func (p Ptr[T]) Addr() uint64 {
	if p.buf == nil {
		return 0
	}
	return p.buf.Addr() + uint64(p.off*SizeOf[T]())
}

func (p Ptr[T]) IsNil() bool { return p.buf == nil }

func (p Ptr[T]) Buffer() Buffer { return p.buf }

// Offset is the element offset from the start of the owning buffer.
func (p Ptr[T]) Offset() int { return p.off }

// Add returns p advanced by n elements.
func (p Ptr[T]) Add(n int) Ptr[T] {
	return Ptr[T]{buf: p.buf, off: p.off + n}
}

func (p Ptr[T]) String() string {
	return fmt.Sprintf("%#x", p.Addr())
}

// LogValue renders the pointer as a hex address in structured logs.
func (p Ptr[T]) LogValue() slog.Value {
	return slog.StringValue(p.String())
}

// Write copies src to device memory starting at p.
func Write[T Scalar](p Ptr[T], src []T) error {
	if len(src) == 0 {
		return nil
	}
	if p.buf == nil {
		return fmt.Errorf("device: write %d elements through nil pointer", len(src))
	}
	return p.buf.WriteAt(asBytes(src), p.off*SizeOf[T]())
}

// Read copies n elements starting at p back to the host.
func Read[T Scalar](p Ptr[T], n int) ([]T, error) {
	out := make([]T, n)
	if n == 0 {
		return out, nil
	}
	if p.buf == nil {
		return nil, fmt.Errorf("device: read %d elements through nil pointer", n)
	}
	if err := p.buf.ReadAt(asBytes(out), p.off*SizeOf[T]()); err != nil {
		return nil, err
	}
	return out, nil
}

// Fill sets n elements starting at p to v.
func Fill[T Scalar](p Ptr[T], n int, v T) error {
	if n == 0 {
		return nil
	}
	stage := make([]T, n)
	for i := range stage {
		stage[i] = v
	}
	return Write(p, stage)
}

// Slice resolves a device address into a host slice of n elements. It only
// works on devices implementing Resolver.
func Slice[T Scalar](dev Device, addr uint64, n int) ([]T, error) {
	if n == 0 {
		return nil, nil
	}
	r, ok := dev.(Resolver)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotHostAddressable, dev.Name())
	}
	b, err := r.Resolve(addr, n*SizeOf[T]())
	if err != nil {
		return nil, err
	}
	return fromBytes[T](b), nil
}

// MultiplyInPlace scales s[i] by m[i] for i < n. Host-addressable devices
// scale in place; others stage through host memory.
func MultiplyInPlace(dev Device, s Ptr[float64], m Ptr[int32], n int) error {
	if n == 0 {
		return nil
	}
	if _, ok := dev.(Resolver); ok {
		vals, err := Slice[float64](dev, s.Addr(), n)
		if err != nil {
			return err
		}
		mult, err := Slice[int32](dev, m.Addr(), n)
		if err != nil {
			return err
		}
		for i := range vals {
			vals[i] *= float64(mult[i])
		}
		return nil
	}
	vals, err := Read(s, n)
	if err != nil {
		return err
	}
	mult, err := Read(m, n)
	if err != nil {
		return err
	}
	for i := range vals {
		vals[i] *= float64(mult[i])
	}
	return Write(s, vals)
}
