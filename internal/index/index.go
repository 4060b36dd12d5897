// Package index joins one sequence of site indices against another.
package index

import (
	"cmp"
	"fmt"
	"slices"
)

// Into returns, for every needle, the position in haystack at which it
// occurs. Every needle must occur in haystack. Duplicate needles are
// resolved independently; for duplicate haystack entries the first
// position wins.
//
// A sorted haystack is searched by bisection, anything else through a
// position map.
func Into[T cmp.Ordered](needles, haystack []T) ([]int, error) {
	out := make([]int, len(needles))
	if len(needles) == 0 {
		return out, nil
	}
	if slices.IsSorted(haystack) {
		for k, v := range needles {
			i, found := slices.BinarySearch(haystack, v)
			if !found {
				return nil, missing(k, v)
			}
			out[k] = i
		}
		return out, nil
	}

	pos := make(map[T]int, len(haystack))
	for i, v := range haystack {
		if _, seen := pos[v]; !seen {
			pos[v] = i
		}
	}
	for k, v := range needles {
		i, ok := pos[v]
		if !ok {
			return nil, missing(k, v)
		}
		out[k] = i
	}
	return out, nil
}

func missing[T any](k int, v T) error {
	return fmt.Errorf("index: needle %d (%v) not present in haystack", k, v)
}
