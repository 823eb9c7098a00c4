// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/pkg/core/shapes"
)

// Concat concatenates the inputs along axis into dst. All inputs share dtype and every
// dimension but axis.
func Concat(axis int, inputs []shapes.Shape, srcs []device.Pointer, dst device.Pointer) {
	if len(inputs) == 0 {
		return
	}
	first := inputs[0]
	elementSize := first.DType.Size()
	outer := 1
	for _, dim := range first.Dimensions[:axis] {
		outer *= dim
	}
	inner := elementSize
	for _, dim := range first.Dimensions[axis+1:] {
		inner *= dim
	}
	chunks := make([][]byte, len(inputs))
	rowBytes := 0
	for ii, input := range inputs {
		chunk := input.Dimensions[axis] * inner
		chunks[ii] = srcs[ii].Bytes(outer * chunk)
		rowBytes += chunk
	}
	out := dst.Bytes(outer * rowBytes)
	pos := 0
	for row := range outer {
		for _, data := range chunks {
			chunk := len(data) / max(outer, 1)
			pos += copy(out[pos:], data[row*chunk:(row+1)*chunk])
		}
	}
}
