// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/pkg/core/dtypes"
)

// Copy copies numBytes from src to dst. Overlapping ranges are handled like memmove.
func Copy(dst, src device.Pointer, numBytes int) {
	copy(dst.Bytes(numBytes), src.Bytes(numBytes))
}

// DepthConvert converts numElements values from srcType to dstType, saturating integer
// destinations to their range (rounding to nearest even when the source is a float).
func DepthConvert(srcType, dstType dtypes.DType, src, dst device.Pointer, numElements int) {
	if srcType == dstType {
		Copy(dst, src, numElements*srcType.Size())
		return
	}
	in, out := newView(srcType, src, numElements), newView(dstType, dst, numElements)
	Workers.ParallelFor(numElements, minElementsPerTask, func(start, end int) {
		for ii := start; ii < end; ii++ {
			out.Set(ii, saturate(dstType, in.At(ii)))
		}
	})
}

// ReferenceConvert converts numElements values from srcType to dstType with plain casts:
// floats are truncated toward zero and integers wrap around.
func ReferenceConvert(srcType, dstType dtypes.DType, src, dst device.Pointer, numElements int) {
	in, out := newView(srcType, src, numElements), newView(dstType, dst, numElements)
	for ii := range numElements {
		out.Set(ii, in.At(ii))
	}
}
