//go:build cuda

// Package cuda provides a device.Device backed by CUDA global memory.
package cuda

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/samcharles93/mechpack/internal/backend/cuda/native"
	"github.com/samcharles93/mechpack/internal/device"
)

// Alignment is the start alignment cudaMalloc guarantees.
const Alignment = 256

type Device struct {
	stream native.Stream

	mu    sync.Mutex
	inUse int64

	// Pinned staging for host copies, grown on demand.
	stageMu  sync.Mutex
	stage    native.HostBuffer
	stageCap int
}

func New() (*Device, error) {
	count, err := native.DeviceCount()
	if err != nil {
		return nil, fmt.Errorf("cuda device query failed: %w", err)
	}
	if count < 1 {
		return nil, fmt.Errorf("no cuda devices detected")
	}
	stream, err := native.NewStream()
	if err != nil {
		return nil, fmt.Errorf("cuda stream create failed: %w", err)
	}
	return &Device{stream: stream}, nil
}

func (d *Device) Name() string { return "cuda" }

func (d *Device) Alignment() int { return Alignment }

func (d *Device) Synchronize() error {
	return wrap("synchronize", d.stream.Synchronize())
}

func (d *Device) Alloc(bytes int) (device.Buffer, error) {
	if bytes <= 0 {
		return nil, fmt.Errorf("device: alloc size must be > 0, got %d", bytes)
	}
	mem, err := native.AllocDevice(int64(bytes))
	if err != nil {
		return nil, wrap(fmt.Sprintf("alloc %d bytes", bytes), err)
	}
	d.mu.Lock()
	d.inUse += int64(bytes)
	d.mu.Unlock()
	return &buffer{dev: d, mem: mem, n: bytes}, nil
}

// BytesInUse reports the bytes held by live allocations.
func (d *Device) BytesInUse() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inUse
}

// Close synchronizes, releases the staging buffer and destroys the device
// stream. Buffers must be freed first.
func (d *Device) Close() error {
	if err := d.Synchronize(); err != nil {
		return err
	}
	d.stageMu.Lock()
	err := wrap("free staging", d.stage.Free())
	d.stage, d.stageCap = native.HostBuffer{}, 0
	d.stageMu.Unlock()
	if err != nil {
		return err
	}
	return wrap("stream destroy", d.stream.Destroy())
}

// staging returns n bytes of pinned host memory. Callers hold stageMu.
func (d *Device) staging(n int) ([]byte, error) {
	if n > d.stageCap {
		if err := d.stage.Free(); err != nil {
			return nil, wrap("free staging", err)
		}
		d.stage, d.stageCap = native.HostBuffer{}, 0
		size := max(n, 64<<10)
		hb, err := native.AllocHostPinned(int64(size))
		if err != nil {
			return nil, wrap(fmt.Sprintf("pin %d bytes", size), err)
		}
		d.stage, d.stageCap = hb, size
	}
	return unsafe.Slice((*byte)(d.stage.Ptr()), n), nil
}

// upload copies src to dst through the staging buffer and waits for the
// stream to drain.
func (d *Device) upload(dst native.DeviceBuffer, src []byte) error {
	d.stageMu.Lock()
	defer d.stageMu.Unlock()
	stage, err := d.staging(len(src))
	if err != nil {
		return err
	}
	copy(stage, src)
	if err := native.MemcpyH2DAsync(dst, d.stage.Ptr(), int64(len(src)), d.stream); err != nil {
		return wrap("copy to device", err)
	}
	return d.Synchronize()
}

func (d *Device) download(dst []byte, src native.DeviceBuffer) error {
	d.stageMu.Lock()
	defer d.stageMu.Unlock()
	stage, err := d.staging(len(dst))
	if err != nil {
		return err
	}
	if err := native.MemcpyD2HAsync(d.stage.Ptr(), src, int64(len(dst)), d.stream); err != nil {
		return wrap("copy to host", err)
	}
	if err := d.Synchronize(); err != nil {
		return err
	}
	copy(dst, stage)
	return nil
}

type buffer struct {
	dev   *Device
	mem   native.DeviceBuffer
	n     int
	freed bool
}

func (b *buffer) Addr() uint64 { return uint64(uintptr(b.mem.Ptr())) }

func (b *buffer) Len() int { return b.n }

// WriteAt returns once the bytes are on the device.
func (b *buffer) WriteAt(src []byte, off int) error {
	if err := b.check(len(src), off); err != nil {
		return err
	}
	if len(src) == 0 {
		return nil
	}
	return b.dev.upload(b.mem.Add(int64(off)), src)
}

func (b *buffer) ReadAt(dst []byte, off int) error {
	if err := b.check(len(dst), off); err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	return b.dev.download(dst, b.mem.Add(int64(off)))
}

// Zero clears the buffer on the device stream.
func (b *buffer) Zero() error {
	if b.freed {
		return device.ErrFreed
	}
	return wrap("memset", native.MemsetAsync(b.mem, 0, int64(b.n), b.dev.stream))
}

func (b *buffer) Free() error {
	if b.freed {
		return nil
	}
	b.freed = true
	b.dev.mu.Lock()
	b.dev.inUse -= int64(b.n)
	b.dev.mu.Unlock()
	return wrap("free", b.mem.Free())
}

func (b *buffer) check(n, off int) error {
	if b.freed {
		return device.ErrFreed
	}
	if off < 0 || off+n > b.n {
		return fmt.Errorf("%w: %d bytes at offset %d of %d", device.ErrOutOfRange, n, off, b.n)
	}
	return nil
}
