package utils

import (
	"fmt"
)

// Permutation maps between the original (mesh) ordering and a sorted ordering
//
//	Sort[k]   = original index stored at sorted position k
//	Unsort[i] = sorted position of original index i
//
// Both directions are always kept so that sorted results can be returned to
// the mesh ordering without searching.
type Permutation struct {
	Sort   []int
	Unsort []int
}

// NewPermutation validates that order is a bijection over [0, len(order))
// and builds its inverse. The input slice is copied.
func NewPermutation(order []int) (Permutation, error) {
	n := len(order)
	p := Permutation{
		Sort:   make([]int, n),
		Unsort: make([]int, n),
	}
	for i := range p.Unsort {
		p.Unsort[i] = -1
	}
	for k, orig := range order {
		if orig < 0 || orig >= n {
			return Permutation{}, fmt.Errorf("sort index %d at position %d out of range [0,%d)", orig, k, n)
		}
		if p.Unsort[orig] != -1 {
			return Permutation{}, fmt.Errorf("index %d appears at positions %d and %d",
				orig, p.Unsort[orig], k)
		}
		p.Sort[k] = orig
		p.Unsort[orig] = k
	}
	return p, nil
}

// Len returns the number of permuted items
func (p Permutation) Len() int {
	return len(p.Sort)
}

// Apply returns a new slice holding src in sorted order
func Apply[T any](p Permutation, src []T) []T {
	if len(src) != len(p.Sort) {
		panic(fmt.Sprintf("permutation length %d does not match slice length %d", len(p.Sort), len(src)))
	}
	dst := make([]T, len(src))
	for k, orig := range p.Sort {
		dst[k] = src[orig]
	}
	return dst
}

// Restore returns a new slice holding sorted back in original order
func Restore[T any](p Permutation, sorted []T) []T {
	if len(sorted) != len(p.Unsort) {
		panic(fmt.Sprintf("permutation length %d does not match slice length %d", len(p.Unsort), len(sorted)))
	}
	dst := make([]T, len(sorted))
	for orig, k := range p.Unsort {
		dst[orig] = sorted[k]
	}
	return dst
}

// ApplyStrided sorts a slice holding stride consecutive values per item,
// e.g. the K gauss points of each panel
func ApplyStrided[T any](p Permutation, src []T, stride int) []T {
	if len(src) != len(p.Sort)*stride {
		panic(fmt.Sprintf("strided length %d does not match %d items of stride %d",
			len(src), len(p.Sort), stride))
	}
	dst := make([]T, len(src))
	for k, orig := range p.Sort {
		copy(dst[k*stride:(k+1)*stride], src[orig*stride:(orig+1)*stride])
	}
	return dst
}

// RestoreStrided is the inverse of ApplyStrided
func RestoreStrided[T any](p Permutation, sorted []T, stride int) []T {
	if len(sorted) != len(p.Unsort)*stride {
		panic(fmt.Sprintf("strided length %d does not match %d items of stride %d",
			len(sorted), len(p.Unsort), stride))
	}
	dst := make([]T, len(sorted))
	for orig, k := range p.Unsort {
		copy(dst[orig*stride:(orig+1)*stride], sorted[k*stride:(k+1)*stride])
	}
	return dst
}
