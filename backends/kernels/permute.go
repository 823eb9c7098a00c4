// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"slices"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/pkg/core/shapes"
	"github.com/gomlx/exceptions"
)

// Permute writes into dst the input tensor with its axes permuted: output axis i is input axis
// permutation[i].
func Permute(input shapes.Shape, permutation []int, src, dst device.Pointer) {
	rank := input.Rank()
	if len(permutation) != rank {
		exceptions.Panicf("kernels.Permute: permutation %v doesn't match %s", permutation, input)
	}
	sorted := slices.Clone(permutation)
	slices.Sort(sorted)
	for ii, axis := range sorted {
		if axis != ii {
			exceptions.Panicf("kernels.Permute: %v is not a permutation of %d axes", permutation, rank)
		}
	}
	elementSize := input.DType.Size()
	size := input.Size()
	in, out := src.Bytes(size*elementSize), dst.Bytes(size*elementSize)
	if size == 0 {
		return
	}

	inStrides := input.Strides()
	outDims := make([]int, rank)
	strides := make([]int, rank) // Input stride of each output axis.
	for ii, axis := range permutation {
		outDims[ii] = input.Dimensions[axis]
		strides[ii] = inStrides[axis]
	}
	counter := make([]int, rank)
	inIdx := 0
	for outIdx := range size {
		copy(out[outIdx*elementSize:(outIdx+1)*elementSize], in[inIdx*elementSize:(inIdx+1)*elementSize])
		for axis := rank - 1; axis >= 0; axis-- {
			counter[axis]++
			inIdx += strides[axis]
			if counter[axis] < outDims[axis] {
				break
			}
			inIdx -= strides[axis] * counter[axis]
			counter[axis] = 0
		}
	}
}
