// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"iter"

	"github.com/gomlx/exceptions"
)

// Strides returns the strides of each axis, in elements (not bytes), for a row-major layout.
func (s Shape) Strides() (strides []int) {
	rank := s.Rank()
	if rank == 0 {
		return
	}
	strides = make([]int, rank)
	currentStride := 1
	for axis := rank - 1; axis >= 0; axis-- {
		strides[axis] = currentStride
		currentStride *= s.Dimensions[axis]
	}
	return
}

// Iter iterates sequentially over all indices of the shape, in row-major order.
//
// It yields the flat index and the per-axis indices. The yielded slice is owned by the iterator:
// don't change it inside the loop.
func (s Shape) Iter() iter.Seq2[int, []int] {
	indices := make([]int, s.Rank())
	return s.IterOn(indices)
}

// IterOn is like Iter, but it uses the given slice for the per-axis indices.
// It panics if len(indices) != s.Rank().
func (s Shape) IterOn(indices []int) iter.Seq2[int, []int] {
	if len(indices) != s.Rank() {
		exceptions.Panicf("Shape.IterOn given len(indices) == %d, want it to be equal to the rank %d", len(indices), s.Rank())
	}
	return func(yield func(int, []int) bool) {
		if s.IsZeroSize() {
			return
		}
		for ii := range indices {
			indices[ii] = 0
		}
		size := s.Size()
		for flat := 0; flat < size; flat++ {
			if !yield(flat, indices) {
				return
			}
			for axis := s.Rank() - 1; axis >= 0; axis-- {
				indices[axis]++
				if indices[axis] < s.Dimensions[axis] {
					break
				}
				indices[axis] = 0
			}
		}
	}
}
