//go:build linux || darwin

package device

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mapHost backs an allocation with an anonymous private mapping. Mappings
// are page aligned, which covers any alignment up to the page size.
func mapHost(bytes, align int) (mem, backing []byte, err error) {
	page := unix.Getpagesize()
	if align > page {
		return nil, nil, fmt.Errorf("alignment %d exceeds page size %d", align, page)
	}
	size := (bytes + page - 1) / page * page
	backing, err = unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap failed: %w", err)
	}
	return backing[:bytes], backing, nil
}

func unmapHost(backing []byte) error {
	if backing == nil {
		return nil
	}
	return unix.Munmap(backing)
}
