package device

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"unsafe"
)

// CacheLineSize is the default allocation alignment of the host device.
const CacheLineSize = 64

// Host is a device whose memory lives in the host address space, outside
// the Go heap. Copies are synchronous, so Synchronize is a no-op.
type Host struct {
	align int

	mu     sync.Mutex
	live   []*hostBuffer // sorted by addr
	inUse  int64
	allocs int64
}

// NewHost returns a host device with the given byte alignment. Values
// below CacheLineSize are raised to it.
func NewHost(alignment int) *Host {
	if alignment < CacheLineSize {
		alignment = CacheLineSize
	}
	return &Host{align: alignment}
}

func (h *Host) Name() string { return "host" }

func (h *Host) Alignment() int { return h.align }

func (h *Host) Synchronize() error { return nil }

func (h *Host) Alloc(bytes int) (Buffer, error) {
	if bytes <= 0 {
		return nil, fmt.Errorf("device: alloc size must be > 0, got %d", bytes)
	}
	mem, backing, err := mapHost(bytes, h.align)
	if err != nil {
		return nil, fmt.Errorf("device: alloc %d bytes: %w", bytes, err)
	}
	b := &hostBuffer{
		host:    h,
		mem:     mem,
		backing: backing,
		addr:    uint64(uintptr(unsafe.Pointer(unsafe.SliceData(mem)))),
	}

	h.mu.Lock()
	i, _ := slices.BinarySearchFunc(h.live, b.addr, func(e *hostBuffer, addr uint64) int {
		return cmp.Compare(e.addr, addr)
	})
	h.live = slices.Insert(h.live, i, b)
	h.inUse += int64(len(mem))
	h.allocs++
	h.mu.Unlock()
	return b, nil
}

// BytesInUse reports the bytes held by live allocations.
func (h *Host) BytesInUse() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inUse
}

// Live reports the number of live allocations.
func (h *Host) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// Resolve maps [addr, addr+bytes) back to the host memory of the live
// allocation containing it.
func (h *Host) Resolve(addr uint64, bytes int) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	i, found := slices.BinarySearchFunc(h.live, addr, func(e *hostBuffer, a uint64) int {
		return cmp.Compare(e.addr, a)
	})
	if !found {
		i--
	}
	if i < 0 || i >= len(h.live) {
		return nil, fmt.Errorf("%w: address %#x", ErrOutOfRange, addr)
	}
	b := h.live[i]
	off := int(addr - b.addr)
	if bytes < 0 || off+bytes > len(b.mem) {
		return nil, fmt.Errorf("%w: %d bytes at %#x", ErrOutOfRange, bytes, addr)
	}
	return b.mem[off : off+bytes], nil
}

func (h *Host) release(b *hostBuffer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	i, found := slices.BinarySearchFunc(h.live, b.addr, func(e *hostBuffer, addr uint64) int {
		return cmp.Compare(e.addr, addr)
	})
	if found && h.live[i] == b {
		h.live = slices.Delete(h.live, i, i+1)
		h.inUse -= int64(len(b.mem))
	}
}

type hostBuffer struct {
	host    *Host
	mem     []byte
	backing []byte
	addr    uint64
	freed   bool
}

func (b *hostBuffer) Addr() uint64 { return b.addr }

func (b *hostBuffer) Len() int { return len(b.mem) }

func (b *hostBuffer) WriteAt(src []byte, off int) error {
	if b.freed {
		return ErrFreed
	}
	if off < 0 || off+len(src) > len(b.mem) {
		return fmt.Errorf("%w: write %d bytes at offset %d of %d", ErrOutOfRange, len(src), off, len(b.mem))
	}
	copy(b.mem[off:], src)
	return nil
}

func (b *hostBuffer) ReadAt(dst []byte, off int) error {
	if b.freed {
		return ErrFreed
	}
	if off < 0 || off+len(dst) > len(b.mem) {
		return fmt.Errorf("%w: read %d bytes at offset %d of %d", ErrOutOfRange, len(dst), off, len(b.mem))
	}
	copy(dst, b.mem[off:])
	return nil
}

func (b *hostBuffer) Zero() error {
	if b.freed {
		return ErrFreed
	}
	clear(b.mem)
	return nil
}

func (b *hostBuffer) Free() error {
	if b.freed {
		return nil
	}
	b.freed = true
	b.host.release(b)
	err := unmapHost(b.backing)
	b.mem = nil
	b.backing = nil
	return err
}
