// Package arena implements the bulk packer: one device allocation sized up
// front and filled front to back through a cursor.
//
// The arena holds a number of per-site chunks, each reserving stride
// elements of which the first width are written, followed by an optional
// unpadded scalar tail. Appending the tail seals the arena.
package arena

import (
	"errors"
	"fmt"

	"github.com/samcharles93/mechpack/internal/device"
	"github.com/samcharles93/mechpack/internal/layout"
)

var (
	ErrFull   = errors.New("arena: capacity exceeded")
	ErrSealed = errors.New("arena: scalar tail already appended")
)

// Region is a named span of an arena, in elements.
type Region struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Len    int    `json:"len"`
	Stride int    `json:"stride"`
}

// Arena packs chunks of T into a single device buffer.
type Arena[T device.Scalar] struct {
	buf     device.Buffer
	width   int
	stride  int
	size    int
	cursor  int
	sealed  bool
	regions []Region
}

// New allocates an arena on dev with room for chunks per-site chunks of
// stride elements and a tail of scalars elements. width is the number of
// elements written per chunk and must not exceed stride.
func New[T device.Scalar](dev device.Device, width, stride, chunks, scalars int) (*Arena[T], error) {
	if width < 0 || width > stride {
		return nil, fmt.Errorf("arena: width %d does not fit stride %d", width, stride)
	}
	size, err := layout.Elements(chunks, stride, scalars)
	if err != nil {
		return nil, err
	}
	a := &Arena[T]{width: width, stride: stride, size: size}
	if size == 0 {
		return a, nil
	}
	bytes, ok := layout.MulOverflowSafe(size, device.SizeOf[T]())
	if !ok {
		return nil, fmt.Errorf("arena: %d elements overflow byte size", size)
	}
	a.buf, err = dev.Alloc(bytes)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Fill sets the whole arena, padding included, to v. Intended before any
// append so unused slots hold a recognisable value.
func (a *Arena[T]) Fill(v T) error {
	if z, ok := a.buf.(device.Zeroer); ok && v == 0 {
		return z.Zero()
	}
	return device.Fill(device.PtrTo[T](a.buf, 0), a.size, v)
}

// AppendChunk copies the first width elements of src into the next chunk.
func (a *Arena[T]) AppendChunk(name string, src []T) (device.Ptr[T], error) {
	if len(src) < a.width {
		return device.Ptr[T]{}, fmt.Errorf("arena: chunk %q has %d elements, need %d", name, len(src), a.width)
	}
	p, err := a.next(name, a.stride, a.width)
	if err != nil {
		return p, err
	}
	return p, device.Write(p, src[:a.width])
}

// AppendConst fills the next chunk's width elements with v.
func (a *Arena[T]) AppendConst(name string, v T) (device.Ptr[T], error) {
	p, err := a.next(name, a.stride, a.width)
	if err != nil {
		return p, err
	}
	return p, device.Fill(p, a.width, v)
}

// AppendScalars copies src unpadded after the last chunk and seals the arena.
func (a *Arena[T]) AppendScalars(name string, src []T) (device.Ptr[T], error) {
	p, err := a.next(name, len(src), len(src))
	if err != nil {
		return p, err
	}
	a.sealed = true
	return p, device.Write(p, src)
}

func (a *Arena[T]) next(name string, reserve, n int) (device.Ptr[T], error) {
	if a.sealed {
		return device.Ptr[T]{}, fmt.Errorf("%w: append %q", ErrSealed, name)
	}
	if a.cursor+reserve > a.size {
		return device.Ptr[T]{}, fmt.Errorf("%w: %q needs %d elements at %d of %d", ErrFull, name, reserve, a.cursor, a.size)
	}
	p := device.PtrTo[T](a.buf, a.cursor)
	a.regions = append(a.regions, Region{Name: name, Offset: a.cursor, Len: n, Stride: reserve})
	a.cursor += reserve
	return p, nil
}

// Width is the number of elements written per chunk.
func (a *Arena[T]) Width() int { return a.width }

// Stride is the number of elements reserved per chunk.
func (a *Arena[T]) Stride() int { return a.stride }

// Size is the capacity in elements.
func (a *Arena[T]) Size() int { return a.size }

// Cursor is the element offset of the next append.
func (a *Arena[T]) Cursor() int { return a.cursor }

// Bytes is the size of the underlying allocation.
func (a *Arena[T]) Bytes() int { return a.size * device.SizeOf[T]() }

func (a *Arena[T]) Buffer() device.Buffer { return a.buf }

// Regions lists appended regions in layout order.
func (a *Arena[T]) Regions() []Region {
	return append([]Region(nil), a.regions...)
}

// Free releases the allocation. Pointers handed out become invalid.
func (a *Arena[T]) Free() error {
	if a == nil || a.buf == nil {
		return nil
	}
	err := a.buf.Free()
	a.buf = nil
	return err
}
