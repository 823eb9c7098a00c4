// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package common

import (
	"slices"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/backends/kernels"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/pkg/errors"
)

// ScaleDescFor returns the descriptor resizing the last two axes of an Interpolate node.
// All the other axes must be left unchanged. The interpolation modes are left for the caller.
func ScaleDescFor(node *ir.Node) (kernels.ScaleDesc, error) {
	input, output := node.Inputs[0].Shape(), node.Outputs[0]
	rank := input.Rank()
	if rank < 2 {
		return kernels.ScaleDesc{}, errors.Errorf("input %s must have at least 2 axes", input)
	}
	if !slices.Equal(input.Dimensions[:rank-2], output.Dimensions[:rank-2]) {
		return kernels.ScaleDesc{}, errors.Errorf("only the last 2 axes can be resized: %s -> %s", input, output)
	}
	return kernels.ScaleDesc{
		DType:  input.DType,
		Planes: product(input.Dimensions[:rank-2]),
		InH:    input.Dimensions[rank-2],
		InW:    input.Dimensions[rank-1],
		OutH:   output.Dimensions[rank-2],
		OutW:   output.Dimensions[rank-1],
	}, nil
}

// NewScaleOp creates the operation running the scale kernel with desc.
func NewScaleOp(opts *Options, node *ir.Node, desc kernels.ScaleDesc) *KernelOp {
	return NewKernelOp(opts, node, "scale_"+string(desc.Mode), func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		kernels.Scale(desc, inputs[0], outputs[0])
	})
}
