// Package layout holds the size arithmetic shared by the packers: padded
// widths, element alignment and overflow-checked products.
package layout

import (
	"fmt"
	"math"
)

// RoundUp returns the smallest multiple of k that is >= n.
// k <= 1 leaves n unchanged.
func RoundUp(n, k int) int {
	if k <= 1 || n <= 0 {
		return max(n, 0)
	}
	return (n + k - 1) / k * k
}

// ElementAlignment converts a byte alignment into an element count for
// elements of elemSize bytes. The result is never below one.
func ElementAlignment(byteAlign, elemSize int) int {
	if elemSize <= 0 || byteAlign <= elemSize {
		return 1
	}
	return byteAlign / elemSize
}

// PaddedWidth rounds width up to the larger of the element alignments of the
// value and index buffers.
func PaddedWidth(width, byteAlign, valueSize, indexSize int) int {
	k := max(ElementAlignment(byteAlign, valueSize), ElementAlignment(byteAlign, indexSize))
	return RoundUp(width, k)
}

// AddOverflowSafe adds a and b, returning ok = false when the result would overflow int.
func AddOverflowSafe(a, b int) (int, bool) {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return 0, false
	case b < 0 && a < math.MinInt-b:
		return 0, false
	default:
		return a + b, true
	}
}

// MulOverflowSafe multiplies two non-negative counts, returning ok = false on overflow.
func MulOverflowSafe(a, b int) (int, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt/b {
		return 0, false
	}
	return a * b, true
}

// Elements computes chunks*stride + tail, the element count of a packed
// buffer holding chunks per-site chunks followed by a scalar tail.
func Elements(chunks, stride, tail int) (int, error) {
	body, ok := MulOverflowSafe(chunks, stride)
	if !ok {
		return 0, fmt.Errorf("layout: %d chunks of stride %d overflows", chunks, stride)
	}
	if tail < 0 {
		return 0, fmt.Errorf("layout: negative tail %d", tail)
	}
	total, ok := AddOverflowSafe(body, tail)
	if !ok {
		return 0, fmt.Errorf("layout: %d + %d elements overflows", body, tail)
	}
	return total, nil
}
